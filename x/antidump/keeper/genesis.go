package keeper

import (
	"context"
	"encoding/json"

	"github.com/hcfprotocol/hcfchain/x/antidump/types"
)

// InitGenesis writes the tier table and any pinned day opens.
func (k Keeper) InitGenesis(ctx context.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	if err := k.SetParams(ctx, gs.Params); err != nil {
		return err
	}
	for _, open := range gs.DayOpens {
		encoded, err := json.Marshal(open.Open)
		if err != nil {
			return err
		}
		if err := k.DayOpens.Set(ctx, open.Day, string(encoded)); err != nil {
			return err
		}
	}
	return nil
}

// ExportGenesis dumps the tier table and every pinned day open.
func (k Keeper) ExportGenesis(ctx context.Context) (*types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	gs := &types.GenesisState{Params: params}
	if err := k.DayOpens.Walk(ctx, nil, func(day int64, raw string) (bool, error) {
		var open types.PricePoint
		if err := json.Unmarshal([]byte(raw), &open); err != nil {
			return false, err
		}
		gs.DayOpens = append(gs.DayOpens, types.DayOpen{Day: day, Open: open})
		return false, nil
	}); err != nil {
		return nil, err
	}
	return gs, nil
}
