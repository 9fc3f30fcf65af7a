package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// TransferKind classifies a value-moving action for tax purposes.
type TransferKind string

const (
	TransferKindBuy   TransferKind = "buy"
	TransferKindSell  TransferKind = "sell"
	TransferKindPlain TransferKind = "transfer"
)

// Validate checks the kind is one of the three recognized classes.
func (k TransferKind) Validate() error {
	switch k {
	case TransferKindBuy, TransferKindSell, TransferKindPlain:
		return nil
	default:
		return fmt.Errorf("unknown transfer kind %q", k)
	}
}

// Account is the per-address ledger record. Accounts are created on first
// token receipt and never deleted; the balance of a non-exempt account can
// never be transferred below the dust floor.
type Account struct {
	Address string `json:"address"`

	// Balances holds one integer balance per denom, as decimal strings
	// so arbitrary-precision amounts survive the JSON round trip.
	Balances map[string]string `json:"balances"`

	// TotalBurned is this account's cumulative contribution to burns.
	TotalBurned string `json:"total_burned"`

	// ExcludedFromTax marks protocol pools and governance-exempted
	// addresses. Exempt senders skip both tax and the dust floor.
	ExcludedFromTax bool `json:"excluded_from_tax,omitempty"`

	// LastClaimUnix records the account's most recent reward claim.
	LastClaimUnix int64 `json:"last_claim_unix,omitempty"`
}

// NewAccount returns an empty account record for addr.
func NewAccount(addr string) Account {
	return Account{
		Address:     addr,
		Balances:    make(map[string]string),
		TotalBurned: "0",
	}
}

// BalanceOf returns the account's balance for denom, zero when unset.
func (a Account) BalanceOf(denom string) sdkmath.Int {
	raw, ok := a.Balances[denom]
	if !ok {
		return sdkmath.ZeroInt()
	}
	value, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return value
}

// SetBalance stores balance for denom.
func (a *Account) SetBalance(denom string, balance sdkmath.Int) {
	if a.Balances == nil {
		a.Balances = make(map[string]string)
	}
	a.Balances[denom] = balance.String()
}

// BurnedTotal returns the account's cumulative burn contribution.
func (a Account) BurnedTotal() sdkmath.Int {
	value, ok := sdkmath.NewIntFromString(a.TotalBurned)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return value
}

// AddBurned increments the account's burn contribution.
func (a *Account) AddBurned(amount sdkmath.Int) {
	a.TotalBurned = a.BurnedTotal().Add(amount).String()
}

// TransferResult reports the exact amounts moved per bucket by a single
// transfer so external auditors can reconcile every unit.
type TransferResult struct {
	Kind        TransferKind `json:"kind"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	GrossAmount sdkmath.Int  `json:"gross_amount"`
	NetAmount   sdkmath.Int  `json:"net_amount"`
	TaxAmount   sdkmath.Int  `json:"tax_amount"`

	// Tax bucket breakdown. BurnShare absorbs the integer remainder of
	// the split, so the four shares always sum to TaxAmount exactly.
	BurnShare      sdkmath.Int `json:"burn_share"`
	TreasuryShare  sdkmath.Int `json:"treasury_share"`
	LiquidityShare sdkmath.Int `json:"liquidity_share"`
	NodeShare      sdkmath.Int `json:"node_share"`

	// BurnRedirected is the portion of BurnShare that was routed to the
	// treasury instead of destroyed because supply sat at the burn floor.
	BurnRedirected sdkmath.Int `json:"burn_redirected"`

	// Anti-dump bonus points applied to the sell split, zero otherwise.
	BurnBonusBps Rate `json:"burn_bonus_bps,omitempty"`
	NodeBonusBps Rate `json:"node_bonus_bps,omitempty"`
}
