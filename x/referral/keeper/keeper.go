package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cosmossdk.io/collections"
	"cosmossdk.io/core/store"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
	"github.com/hcfprotocol/hcfchain/x/referral/types"
)

// LedgerKeeper is the subset of the ledger the referral module moves
// value through.
type LedgerKeeper interface {
	SendFromPool(ctx context.Context, pool, to string, amount sdkmath.Int) (*ledgertypes.TransferResult, error)
	BurnFrom(ctx context.Context, addr string, amount sdkmath.Int) (burned, redirected sdkmath.Int, err error)
}

// Keeper owns the fixed-at-registration upline graph, the per-account
// subtree statistics, and the 20-generation commission cascade.
type Keeper struct {
	storeService store.KVStoreService
	authority    string

	ledgerKeeper LedgerKeeper

	// Edges maps child -> parent. An edge is written exactly once at
	// first qualifying deposit, so the graph is an append-only DAG
	// rooted at the null-parent sentinel: cycles cannot form.
	Edges  collections.Map[string, string]
	Stats  collections.Map[string, string]
	Params collections.Item[string]
}

// NewKeeper creates a new referral keeper.
func NewKeeper(storeService store.KVStoreService, authority string) Keeper {
	sb := collections.NewSchemaBuilder(storeService)

	return Keeper{
		storeService: storeService,
		authority:    authority,
		Edges: collections.NewMap(
			sb,
			collections.NewPrefix(types.EdgeKeyPrefix),
			"edges",
			collections.StringKey,
			collections.StringValue,
		),
		Stats: collections.NewMap(
			sb,
			collections.NewPrefix(types.StatsKeyPrefix),
			"stats",
			collections.StringKey,
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

// GetAuthority returns the module's governance authority address.
func (k Keeper) GetAuthority() string {
	return k.authority
}

// GetParams returns the current referral tables.
func (k Keeper) GetParams(ctx context.Context) (types.Params, error) {
	raw, err := k.Params.Get(ctx)
	if err != nil {
		return types.DefaultParams(), nil
	}
	var params types.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return types.Params{}, fmt.Errorf("decode referral params: %w", err)
	}
	return params, nil
}

// SetParams stores validated tables (genesis path).
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

// UpdateParams replaces the tables after an authority check.
func (k Keeper) UpdateParams(ctx context.Context, caller string, params types.Params) error {
	if caller != k.authority {
		return fmt.Errorf("%w: got %s, expected %s",
			ledgertypes.ErrUnauthorizedParameterChange, caller, k.authority)
	}
	return k.SetParams(ctx, params)
}

// BindReferrer writes the child -> parent edge. The edge is immutable:
// a second bind for the same child is rejected, which keeps the graph
// acyclic without any traversal.
func (k Keeper) BindReferrer(ctx context.Context, child, parent string) error {
	if child == "" {
		return fmt.Errorf("child address cannot be empty")
	}
	if parent == "" {
		parent = types.RootSentinel
	}
	if child == parent {
		return fmt.Errorf("%w: %s", types.ErrSelfReferral, child)
	}
	if exists, err := k.Edges.Has(ctx, child); err == nil && exists {
		current, _ := k.Edges.Get(ctx, child)
		return fmt.Errorf("%w: %s is bound to %s", types.ErrEdgeAlreadyBound, child, current)
	}

	// The graph is acyclic before the insert, so walking the parent's
	// upline terminates; finding child on that path would close a cycle.
	for cur := parent; cur != types.RootSentinel; cur = k.UplineOf(ctx, cur) {
		if cur == child {
			return fmt.Errorf("%w: %s", types.ErrCircularReferral, parent)
		}
	}

	if err := k.Edges.Set(ctx, child, parent); err != nil {
		return err
	}

	if parent != types.RootSentinel {
		stats, err := k.getOrCreateStats(ctx, parent)
		if err != nil {
			return err
		}
		stats.DirectCount++
		if err := k.recomputeLevel(ctx, stats); err != nil {
			return err
		}
		if err := k.setStats(ctx, stats); err != nil {
			return err
		}
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"referral_bound",
			sdk.NewAttribute("child", child),
			sdk.NewAttribute("parent", parent),
		))
	}
	return nil
}

// UplineOf returns the bound parent, or the root sentinel when unbound.
func (k Keeper) UplineOf(ctx context.Context, child string) string {
	parent, err := k.Edges.Get(ctx, child)
	if err != nil {
		return types.RootSentinel
	}
	return parent
}

// GetStats loads the subtree statistics for addr, empty when absent.
func (k Keeper) GetStats(ctx context.Context, addr string) (*types.ReferralStats, error) {
	return k.getOrCreateStats(ctx, addr)
}

func (k Keeper) getOrCreateStats(ctx context.Context, addr string) (*types.ReferralStats, error) {
	raw, err := k.Stats.Get(ctx, addr)
	if err != nil {
		created := types.NewReferralStats(addr)
		return &created, nil
	}
	var stats types.ReferralStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("decode referral stats %s: %w", addr, err)
	}
	return &stats, nil
}

func (k Keeper) setStats(ctx context.Context, stats *types.ReferralStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return k.Stats.Set(ctx, stats.Address, string(raw))
}

// recomputeLevel re-derives the team level from the qualifying volume
// (largest child line excluded) and the direct count.
func (k Keeper) recomputeLevel(ctx context.Context, stats *types.ReferralStats) error {
	params, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	entry := params.LevelFor(stats.QualifyingVolume(), stats.DirectCount)
	if entry.Level != stats.TeamLevel {
		stats.TeamLevel = entry.Level
		if sdkCtx, ok := unwrapSDKContext(ctx); ok {
			emitEventIfPossible(sdkCtx, sdk.NewEvent(
				"team_level_changed",
				sdk.NewAttribute("account", stats.Address),
				sdk.NewAttribute("level", fmt.Sprintf("%d", entry.Level)),
			))
		}
	}
	return nil
}

// CommunityVolumes returns, for every account with more than one direct
// referral and positive team volume, the qualifying community volume.
// Consumed by the ranking module's community metric.
func (k Keeper) CommunityVolumes(ctx context.Context) (map[string]sdkmath.Int, error) {
	out := make(map[string]sdkmath.Int)
	err := k.Stats.Walk(ctx, nil, func(addr string, raw string) (bool, error) {
		var stats types.ReferralStats
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			return false, err
		}
		if stats.DirectCount > 1 && stats.TeamVolumeInt().IsPositive() {
			out[addr] = stats.QualifyingVolume()
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
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

func contextNow(ctx context.Context) (sdk.Context, time.Time) {
	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		return sdkCtx, sdkCtx.BlockTime()
	}
	return sdk.Context{}, time.Now().UTC()
}

func emitEventIfPossible(ctx sdk.Context, event sdk.Event) {
	if em := ctx.EventManager(); em != nil {
		em.EmitEvent(event)
	}
}
