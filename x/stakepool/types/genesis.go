package types

import "fmt"

// GenesisState is the stakepool module's exported state.
type GenesisState struct {
	Params    Params          `json:"params"`
	Positions []StakePosition `json:"positions,omitempty"`
}

// DefaultGenesis returns the default genesis state with the standard
// tier table and no positions.
func DefaultGenesis() *GenesisState {
	return &GenesisState{Params: DefaultParams()}
}

// Validate performs basic genesis sanity checks.
func (gs GenesisState) Validate() error {
	if err := ValidateParams(gs.Params); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(gs.Positions))
	for _, position := range gs.Positions {
		if position.Owner == "" {
			return fmt.Errorf("genesis position owner cannot be empty")
		}
		if _, dup := seen[position.Owner]; dup {
			return fmt.Errorf("duplicate genesis position for %s", position.Owner)
		}
		seen[position.Owner] = struct{}{}
		if position.PrincipalInt().IsNegative() {
			return fmt.Errorf("genesis position %s has negative principal", position.Owner)
		}
	}
	return nil
}
