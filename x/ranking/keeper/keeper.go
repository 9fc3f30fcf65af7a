package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cosmossdk.io/collections"
	"cosmossdk.io/core/store"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
	"github.com/hcfprotocol/hcfchain/x/ranking/types"
	stakepooltypes "github.com/hcfprotocol/hcfchain/x/stakepool/types"
)

// LedgerKeeper is the subset of the ledger settlements pay through.
type LedgerKeeper interface {
	SendFromPool(ctx context.Context, pool, to string, amount sdkmath.Int) (*ledgertypes.TransferResult, error)
	PoolBalance(ctx context.Context, pool string) sdkmath.Int
}

// StakeSource feeds the stake scoreboard.
type StakeSource interface {
	WalkPositions(ctx context.Context, fn func(stakepooltypes.StakePosition) (bool, error)) error
}

// CommunitySource feeds the community-volume scoreboard.
type CommunitySource interface {
	CommunityVolumes(ctx context.Context) (map[string]sdkmath.Int, error)
}

// Keeper settles periodic ranking rewards out of the ranking pool.
type Keeper struct {
	storeService store.KVStoreService
	authority    string

	ledgerKeeper    LedgerKeeper
	stakeSource     StakeSource
	communitySource CommunitySource

	// Settled maps period index to the marshalled settlement result.
	// Presence of a key is the replay guard.
	Settled collections.Map[int64, string]
	Params  collections.Item[string]
}

// NewKeeper creates a new ranking keeper.
func NewKeeper(storeService store.KVStoreService, authority string) Keeper {
	sb := collections.NewSchemaBuilder(storeService)

	return Keeper{
		storeService: storeService,
		authority:    authority,
		Settled: collections.NewMap(
			sb,
			collections.NewPrefix(types.SettledKeyPrefix),
			"settled",
			collections.Int64Key,
			collections.StringValue,
		),
		Params: collections.NewItem(
			sb,
			collections.NewPrefix(types.ParamsKey),
			"params",
			collections.StringValue,
		),
	}
}

// SetLedgerKeeper wires the ledger.
func (k *Keeper) SetLedgerKeeper(ledger LedgerKeeper) {
	k.ledgerKeeper = ledger
}

// SetStakeSource wires the staking engine's scoreboard.
func (k *Keeper) SetStakeSource(source StakeSource) {
	k.stakeSource = source
}

// SetCommunitySource wires the referral module's scoreboard.
func (k *Keeper) SetCommunitySource(source CommunitySource) {
	k.communitySource = source
}

// GetAuthority returns the module's governance authority address.
func (k Keeper) GetAuthority() string {
	return k.authority
}

// GetParams returns the current ranking parameters.
func (k Keeper) GetParams(ctx context.Context) (types.Params, error) {
	raw, err := k.Params.Get(ctx)
	if err != nil {
		return types.DefaultParams(), nil
	}
	var params types.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return types.Params{}, fmt.Errorf("decode ranking params: %w", err)
	}
	return params, nil
}

// SetParams stores validated parameters (genesis path).
func (k Keeper) SetParams(ctx context.Context, params types.Params) error {
	if err := types.ValidateParams(params); err != nil {
		return err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return k.Params.Set(ctx, string(raw))
}

// UpdateParams replaces the parameters after an authority check.
func (k Keeper) UpdateParams(ctx context.Context, caller string, params types.Params) error {
	if caller != k.authority {
		return fmt.Errorf("%w: got %s, expected %s",
			ledgertypes.ErrUnauthorizedParameterChange, caller, k.authority)
	}
	return k.SetParams(ctx, params)
}

// CurrentPeriod derives the period index from block time.
func (k Keeper) CurrentPeriod(ctx context.Context) (int64, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return 0, err
	}
	return contextNow(ctx).Unix() / params.PeriodSecs, nil
}

// rankedEntry pairs an account with its scoreboard value.
type rankedEntry struct {
	addr  string
	value sdkmath.Int
}

// Settle pays one period's ranking rewards from the ranking pool. Each
// ranked account earns its band's bonus rate applied to its own metric
// value, clamped to whatever is left in the pool at its rank.
// Settlement is idempotent per period: a second call for the same
// period fails with ErrAlreadySettled before any value moves. Ties are
// broken by address, so the leaderboard is fully deterministic.
func (k Keeper) Settle(ctx context.Context, period int64, metric types.Metric) (*types.SettlementResult, error) {
	if k.ledgerKeeper == nil {
		return nil, fmt.Errorf("ranking keeper has no ledger wired")
	}
	if err := metric.Validate(); err != nil {
		return nil, err
	}
	if settled, err := k.Settled.Has(ctx, period); err == nil && settled {
		return nil, fmt.Errorf("%w: period %d", types.ErrAlreadySettled, period)
	}
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}

	ranked, err := k.leaderboard(ctx, metric)
	if err != nil {
		return nil, err
	}

	pool := k.ledgerKeeper.PoolBalance(ctx, ledgertypes.RankingRewardPoolName)
	result := &types.SettlementResult{
		Period:      period,
		Metric:      metric,
		PoolBalance: pool,
		Ranked:      len(ranked),
		TotalPaid:   sdkmath.ZeroInt(),
	}

	remaining := pool
	for _, band := range params.Bands {
		payout := types.BandPayout{
			FromRank:     band.FromRank,
			ToRank:       band.ToRank,
			BonusRateBps: band.BonusRateBps,
			Paid:         sdkmath.ZeroInt(),
		}
		lo := band.FromRank - 1
		hi := band.ToRank
		if hi > len(ranked) {
			hi = len(ranked)
		}
		if lo < hi {
			members := ranked[lo:hi]
			payout.Occupants = len(members)
			for _, member := range members {
				amount := band.BonusRateBps.MulBps(member.value)
				if amount.GT(remaining) {
					amount = remaining
				}
				if !amount.IsPositive() {
					continue
				}
				if _, err := k.ledgerKeeper.SendFromPool(ctx, ledgertypes.RankingRewardPoolName, member.addr, amount); err != nil {
					return nil, fmt.Errorf("pay rank reward to %s: %w", member.addr, err)
				}
				remaining = remaining.Sub(amount)
				payout.Paid = payout.Paid.Add(amount)
			}
			result.TotalPaid = result.TotalPaid.Add(payout.Paid)
		}
		result.Bands = append(result.Bands, payout)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := k.Settled.Set(ctx, period, string(raw)); err != nil {
		return nil, err
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"ranking_settled",
			sdk.NewAttribute("period", fmt.Sprintf("%d", period)),
			sdk.NewAttribute("metric", string(metric)),
			sdk.NewAttribute("ranked", fmt.Sprintf("%d", len(ranked))),
			sdk.NewAttribute("paid", result.TotalPaid.String()),
		))
	}
	return result, nil
}

// SettlementFor returns a settled period's stored result.
func (k Keeper) SettlementFor(ctx context.Context, period int64) (*types.SettlementResult, error) {
	raw, err := k.Settled.Get(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("period %d not settled", period)
	}
	var result types.SettlementResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// leaderboard builds the descending scoreboard for a metric. Zero
// scores never rank.
func (k Keeper) leaderboard(ctx context.Context, metric types.Metric) ([]rankedEntry, error) {
	scores := make(map[string]sdkmath.Int)
	switch metric {
	case types.MetricStake:
		if k.stakeSource == nil {
			return nil, fmt.Errorf("ranking keeper has no stake source wired")
		}
		if err := k.stakeSource.WalkPositions(ctx, func(position stakepooltypes.StakePosition) (bool, error) {
			if position.PrincipalInt().IsPositive() {
				scores[position.Owner] = position.PrincipalInt()
			}
			return false, nil
		}); err != nil {
			return nil, err
		}
	case types.MetricCommunity:
		if k.communitySource == nil {
			return nil, fmt.Errorf("ranking keeper has no community source wired")
		}
		volumes, err := k.communitySource.CommunityVolumes(ctx)
		if err != nil {
			return nil, err
		}
		for addr, volume := range volumes {
			if volume.IsPositive() {
				scores[addr] = volume
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownMetric, metric)
	}

	ranked := make([]rankedEntry, 0, len(scores))
	for addr, value := range scores {
		ranked = append(ranked, rankedEntry{addr: addr, value: value})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].value.Equal(ranked[j].value) {
			return ranked[i].value.GT(ranked[j].value)
		}
		return ranked[i].addr < ranked[j].addr
	})
	return ranked, nil
}

// InitGenesis writes the parameters and replay markers.
func (k Keeper) InitGenesis(ctx context.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	if err := k.SetParams(ctx, gs.Params); err != nil {
		return err
	}
	for _, period := range gs.SettledPeriods {
		if err := k.Settled.Set(ctx, period, "{}"); err != nil {
			return err
		}
	}
	return nil
}

// ExportGenesis dumps the parameters and every settled period index.
func (k Keeper) ExportGenesis(ctx context.Context) (*types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	gs := &types.GenesisState{Params: params}
	if err := k.Settled.Walk(ctx, nil, func(period int64, _ string) (bool, error) {
		gs.SettledPeriods = append(gs.SettledPeriods, period)
		return false, nil
	}); err != nil {
		return nil, err
	}
	return gs, nil
}

func unwrapSDKContext(ctx context.Context) (sdk.Context, bool) {
	if ctx == nil {
		return sdk.Context{}, false
	}
	if sdkCtx, ok := ctx.(sdk.Context); ok {
		return sdkCtx, true
	}
	if val := ctx.Value(sdk.SdkContextKey); val != nil {
		if sdkCtx, ok := val.(sdk.Context); ok {
			return sdkCtx, true
		}
	}
	return sdk.Context{}, false
}

func contextNow(ctx context.Context) time.Time {
	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		return sdkCtx.BlockTime()
	}
	return time.Now().UTC()
}

func emitEventIfPossible(ctx sdk.Context, event sdk.Event) {
	if em := ctx.EventManager(); em != nil {
		em.EmitEvent(event)
	}
}
