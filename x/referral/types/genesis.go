package types

import "fmt"

// ReferralEdge is an exported child -> parent binding.
type ReferralEdge struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

// GenesisState is the referral module's exported state.
type GenesisState struct {
	Params Params         `json:"params"`
	Edges  []ReferralEdge `json:"edges,omitempty"`
	Stats  []ReferralStats `json:"stats,omitempty"`
}

// DefaultGenesis returns the default genesis state with the standard
// generation and team-level tables and an empty graph.
func DefaultGenesis() *GenesisState {
	return &GenesisState{Params: DefaultParams()}
}

// Validate performs basic genesis sanity checks.
func (gs GenesisState) Validate() error {
	if err := ValidateParams(gs.Params); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(gs.Edges))
	for _, edge := range gs.Edges {
		if edge.Child == "" {
			return fmt.Errorf("genesis edge child cannot be empty")
		}
		if edge.Child == edge.Parent {
			return fmt.Errorf("%w: %s", ErrSelfReferral, edge.Child)
		}
		if _, dup := seen[edge.Child]; dup {
			return fmt.Errorf("duplicate genesis edge for %s", edge.Child)
		}
		seen[edge.Child] = struct{}{}
	}
	for _, stats := range gs.Stats {
		if stats.Address == "" {
			return fmt.Errorf("genesis stats address cannot be empty")
		}
	}
	return nil
}
