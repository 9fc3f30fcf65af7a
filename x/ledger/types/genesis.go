package types

import "fmt"

// GenesisState is the ledger module's exported state.
type GenesisState struct {
	Params Params `json:"params"`

	// TotalSupply is the fixed uhcf supply minted at genesis.
	TotalSupply string `json:"total_supply"`

	// TotalBurned carries the cumulative burn counter across an
	// export/import cycle. Empty means zero.
	TotalBurned string `json:"total_burned,omitempty"`

	// Accounts are the initial balances, including the protocol pools.
	Accounts []Account `json:"accounts,omitempty"`
}

// DefaultGenesis returns the default genesis state with a 1,000,000 HCF
// (1e12 uhcf) fixed supply and no funded accounts.
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Params:      DefaultParams(),
		TotalSupply: "1000000000000",
	}
}

// Validate performs basic genesis sanity checks.
func (gs GenesisState) Validate() error {
	if err := ValidateParams(gs.Params); err != nil {
		return err
	}
	supply, err := ParsePositiveInt(gs.TotalSupply, "total_supply")
	if err != nil {
		return err
	}
	if supply.LT(gs.Params.BurnFloorInt()) {
		return fmt.Errorf("total_supply %s is below burn_floor %s", gs.TotalSupply, gs.Params.BurnFloor)
	}
	seen := make(map[string]struct{}, len(gs.Accounts))
	for _, acct := range gs.Accounts {
		if acct.Address == "" {
			return fmt.Errorf("genesis account address cannot be empty")
		}
		if _, dup := seen[acct.Address]; dup {
			return fmt.Errorf("duplicate genesis account %s", acct.Address)
		}
		seen[acct.Address] = struct{}{}
	}
	return nil
}
