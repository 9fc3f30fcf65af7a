package keeper

import (
	"context"
	"encoding/json"

	"github.com/hcfprotocol/hcfchain/x/referral/types"
)

// InitGenesis writes the referral tables, edges and stats.
func (k Keeper) InitGenesis(ctx context.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	if err := k.SetParams(ctx, gs.Params); err != nil {
		return err
	}
	for _, edge := range gs.Edges {
		parent := edge.Parent
		if parent == "" {
			parent = types.RootSentinel
		}
		if err := k.Edges.Set(ctx, edge.Child, parent); err != nil {
			return err
		}
	}
	for _, stats := range gs.Stats {
		record := stats
		if err := k.setStats(ctx, &record); err != nil {
			return err
		}
	}
	return nil
}

// ExportGenesis dumps the tables, every edge and every stats record.
func (k Keeper) ExportGenesis(ctx context.Context) (*types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	gs := &types.GenesisState{Params: params}

	if err := k.Edges.Walk(ctx, nil, func(child, parent string) (bool, error) {
		gs.Edges = append(gs.Edges, types.ReferralEdge{Child: child, Parent: parent})
		return false, nil
	}); err != nil {
		return nil, err
	}
	if err := k.Stats.Walk(ctx, nil, func(_ string, raw string) (bool, error) {
		var stats types.ReferralStats
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			return false, err
		}
		gs.Stats = append(gs.Stats, stats)
		return false, nil
	}); err != nil {
		return nil, err
	}
	return gs, nil
}
