package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

var (
	// ErrRegistryFull signals an application against a fully allocated
	// slot table.
	ErrRegistryFull = errors.New("node registry is full")

	// ErrAlreadyRegistered signals a second application from one account.
	ErrAlreadyRegistered = errors.New("account already holds a node slot")

	// ErrNotRegistered signals an operation against an account with no
	// node slot.
	ErrNotRegistered = errors.New("account holds no node slot")

	// ErrActivationRequirement signals an activation attempt without the
	// required stake backing.
	ErrActivationRequirement = errors.New("node activation stake requirement not met")

	// ErrSlotNotOwned signals a transfer of a slot the caller does not
	// hold.
	ErrSlotNotOwned = errors.New("node slot not owned by caller")
)

// NodeRecord is one registry slot.
type NodeRecord struct {
	Address   string `json:"address"`
	SlotIndex int    `json:"slot_index"`

	AppliedAtUnix   int64 `json:"applied_at_unix"`
	Active          bool  `json:"active"`
	ActivatedAtUnix int64 `json:"activated_at_unix,omitempty"`

	// TotalDividends is the cumulative uhcf paid to this slot.
	TotalDividends string `json:"total_dividends"`
}

// TotalDividendsInt returns the cumulative dividends as an integer.
func (n NodeRecord) TotalDividendsInt() sdkmath.Int {
	value, ok := sdkmath.NewIntFromString(n.TotalDividends)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return value
}

// DividendResult reports one distribution run.
type DividendResult struct {
	PoolBalance sdkmath.Int `json:"pool_balance"`
	ActiveCount int         `json:"active_count"`
	PerNode     sdkmath.Int `json:"per_node"`
	Paid        sdkmath.Int `json:"paid"`

	// Carried is the division remainder left in the pool for the next
	// run.
	Carried sdkmath.Int `json:"carried"`
}

// Params are the node registry parameters.
type Params struct {
	// MaxSlots is the hard registry capacity.
	MaxSlots int `json:"max_slots"`

	// ApplicationFee is the uusd fee charged on application, routed to
	// the treasury.
	ApplicationFee string `json:"application_fee"`

	// ActivationMinStake is the staked uhcf principal an applicant must
	// hold to activate; LP positions qualify at the lower LP minimum.
	ActivationMinStake   string `json:"activation_min_stake"`
	ActivationMinLpStake string `json:"activation_min_lp_stake"`
}

// DefaultParams returns the genesis registry parameters: 99 slots, a
// 3,000 uusd application fee and a 10,000/5,000 uhcf activation floor.
func DefaultParams() Params {
	return Params{
		MaxSlots:             99,
		ApplicationFee:       "3000",
		ActivationMinStake:   "10000",
		ActivationMinLpStake: "5000",
	}
}

// ApplicationFeeInt returns the application fee as an integer.
func (p Params) ApplicationFeeInt() sdkmath.Int { return parseIntOrZero(p.ApplicationFee) }

// ActivationMinStakeInt returns the normal-stake activation floor.
func (p Params) ActivationMinStakeInt() sdkmath.Int { return parseIntOrZero(p.ActivationMinStake) }

// ActivationMinLpStakeInt returns the LP-stake activation floor.
func (p Params) ActivationMinLpStakeInt() sdkmath.Int { return parseIntOrZero(p.ActivationMinLpStake) }

// ValidateParams checks every field against its accepted range.
func ValidateParams(p Params) error {
	if p.MaxSlots <= 0 {
		return fmt.Errorf("max_slots must be positive, got %d", p.MaxSlots)
	}
	if _, err := ledgertypes.ParsePositiveInt(p.ApplicationFee, "application_fee"); err != nil {
		return err
	}
	if _, err := ledgertypes.ParsePositiveInt(p.ActivationMinStake, "activation_min_stake"); err != nil {
		return err
	}
	if _, err := ledgertypes.ParsePositiveInt(p.ActivationMinLpStake, "activation_min_lp_stake"); err != nil {
		return err
	}
	return nil
}

func parseIntOrZero(raw string) sdkmath.Int {
	value, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return value
}

// GenesisState is the node module's exported state.
type GenesisState struct {
	Params   Params       `json:"params"`
	Nodes    []NodeRecord `json:"nodes,omitempty"`
	NextSlot int          `json:"next_slot"`
}

// DefaultGenesis returns an empty 99-slot registry.
func DefaultGenesis() *GenesisState {
	return &GenesisState{Params: DefaultParams()}
}

// Validate performs basic genesis sanity checks.
func (gs GenesisState) Validate() error {
	if err := ValidateParams(gs.Params); err != nil {
		return err
	}
	if len(gs.Nodes) > gs.Params.MaxSlots {
		return fmt.Errorf("%d genesis nodes exceed %d slots", len(gs.Nodes), gs.Params.MaxSlots)
	}
	seenAddr := make(map[string]struct{}, len(gs.Nodes))
	seenSlot := make(map[int]struct{}, len(gs.Nodes))
	for _, node := range gs.Nodes {
		if node.Address == "" {
			return fmt.Errorf("genesis node address cannot be empty")
		}
		if _, dup := seenAddr[node.Address]; dup {
			return fmt.Errorf("duplicate genesis node %s", node.Address)
		}
		if _, dup := seenSlot[node.SlotIndex]; dup {
			return fmt.Errorf("duplicate genesis slot %d", node.SlotIndex)
		}
		seenAddr[node.Address] = struct{}{}
		seenSlot[node.SlotIndex] = struct{}{}
	}
	return nil
}
