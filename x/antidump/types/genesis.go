package types

import "fmt"

// DayOpen is one pinned day-open price, keyed by UTC day index.
type DayOpen struct {
	Day  int64      `json:"day"`
	Open PricePoint `json:"open"`
}

// GenesisState is the antidump module's exported state.
type GenesisState struct {
	Params   Params    `json:"params"`
	DayOpens []DayOpen `json:"day_opens,omitempty"`
}

// DefaultGenesis returns the default genesis state.
func DefaultGenesis() *GenesisState {
	return &GenesisState{Params: DefaultParams()}
}

// Validate performs basic genesis sanity checks.
func (gs GenesisState) Validate() error {
	if err := ValidateParams(gs.Params); err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(gs.DayOpens))
	for _, open := range gs.DayOpens {
		if _, dup := seen[open.Day]; dup {
			return fmt.Errorf("duplicate day open for day %d", open.Day)
		}
		seen[open.Day] = struct{}{}
		if _, _, err := open.Open.Reserves(); err != nil {
			return fmt.Errorf("day %d open: %w", open.Day, err)
		}
	}
	return nil
}
