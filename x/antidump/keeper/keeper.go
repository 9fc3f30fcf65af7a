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
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hcfprotocol/hcfchain/x/antidump/types"
	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// openCacheSize bounds the in-process cache of daily open prices.
const openCacheSize = 16

// PriceOracle reads the two-sided reserves of the HCF/USD trading pair.
type PriceOracle interface {
	Reserves(ctx context.Context) (base, stable sdkmath.Int, err error)
}

// Keeper evaluates intraday price declines against the governed tier
// table. The evaluation itself is a stateless function of
// (openPrice, currentPrice); the keeper only persists the per-day open
// and caches it for repeated evaluations inside one day.
type Keeper struct {
	storeService store.KVStoreService
	authority    string

	oracle PriceOracle

	// openCache avoids a store read per evaluation; keyed by UTC day.
	openCache *lru.Cache[int64, types.PricePoint]

	Params   collections.Item[string]
	DayOpens collections.Map[int64, string]
}

// NewKeeper creates a new antidump keeper.
func NewKeeper(storeService store.KVStoreService, authority string) Keeper {
	sb := collections.NewSchemaBuilder(storeService)
	cache, _ := lru.New[int64, types.PricePoint](openCacheSize)

	return Keeper{
		storeService: storeService,
		authority:    authority,
		openCache:    cache,
		Params: collections.NewItem(
			sb,
			collections.NewPrefix(types.ParamsKey),
			"params",
			collections.StringValue,
		),
		DayOpens: collections.NewMap(
			sb,
			collections.NewPrefix(types.DayOpenKeyPrefix),
			"day_opens",
			collections.Int64Key,
			collections.StringValue,
		),
	}
}

// SetPriceOracle wires the reserve oracle.
func (k *Keeper) SetPriceOracle(oracle PriceOracle) {
	k.oracle = oracle
}

// GetAuthority returns the module's governance authority address.
func (k Keeper) GetAuthority() string {
	return k.authority
}

// GetParams returns the current tier table.
func (k Keeper) GetParams(ctx context.Context) (types.Params, error) {
	raw, err := k.Params.Get(ctx)
	if err != nil {
		return types.DefaultParams(), nil
	}
	var params types.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return types.Params{}, fmt.Errorf("decode antidump params: %w", err)
	}
	return params, nil
}

// SetParams stores a validated tier table (genesis path).
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

// UpdateParams replaces the tier table after an authority check.
func (k Keeper) UpdateParams(ctx context.Context, caller string, params types.Params) error {
	if caller != k.authority {
		return fmt.Errorf("%w: got %s, expected %s",
			ledgertypes.ErrUnauthorizedParameterChange, caller, k.authority)
	}
	return k.SetParams(ctx, params)
}

// EvaluateDrop is the stateless tier lookup: given the day-open and
// current price points it computes the drop in bps of the open and
// returns the highest tier met, or nil below the lowest threshold.
func EvaluateDrop(params types.Params, open, current types.PricePoint) (*types.Snapshot, error) {
	openBase, openStable, err := open.Reserves()
	if err != nil {
		return nil, fmt.Errorf("open price: %w", err)
	}
	curBase, curStable, err := current.Reserves()
	if err != nil {
		return nil, fmt.Errorf("current price: %w", err)
	}

	// open = openStable/openBase, current = curStable/curBase.
	// dropBps = (open - current) / open * 10000, via cross-multiplication.
	openCross := openStable.Mul(curBase)
	curCross := curStable.Mul(openBase)

	drop := ledgertypes.Rate(0)
	if curCross.LT(openCross) {
		dropInt := openCross.Sub(curCross).Mul(sdkmath.NewInt(ledgertypes.BpsBase)).Quo(openCross)
		drop = ledgertypes.Rate(dropInt.Int64())
	}

	snapshot := &types.Snapshot{
		OpenPrice:    open,
		CurrentPrice: current,
		DropBps:      drop,
	}

	// Highest tier whose threshold the drop meets. The table is sorted
	// ascending, so scan from the top.
	for i := len(params.Tiers) - 1; i >= 0; i-- {
		if drop >= params.Tiers[i].DropThresholdBps {
			tier := params.Tiers[i]
			snapshot.Active = &tier
			break
		}
	}
	return snapshot, nil
}

// CurrentSnapshot reads the oracle, pins today's open on first read of
// the UTC day, and evaluates the drop tier.
func (k Keeper) CurrentSnapshot(ctx context.Context) (*types.Snapshot, error) {
	if k.oracle == nil {
		return nil, fmt.Errorf("price oracle is not configured")
	}

	base, stable, err := k.oracle.Reserves(ctx)
	if err != nil {
		return nil, fmt.Errorf("read price oracle: %w", err)
	}
	current := types.NewPricePoint(base, stable)

	_, now := contextNow(ctx)
	open, err := k.openForDay(ctx, utcDay(now), current)
	if err != nil {
		return nil, err
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	return EvaluateDrop(params, open, current)
}

// SellBonuses implements the ledger's AntiDumpSource: the burn and node
// bonus points of the active tier, zero when no tier is active or the
// oracle is unavailable. Oracle failures must not block transfers.
func (k Keeper) SellBonuses(ctx context.Context) (burnBonus, nodeBonus ledgertypes.Rate) {
	snapshot, err := k.CurrentSnapshot(ctx)
	if err != nil || snapshot.Active == nil {
		if err != nil {
			if sdkCtx, ok := unwrapSDKContext(ctx); ok {
				sdkCtx.Logger().Warn("anti-dump evaluation unavailable, selling untiered", "err", err)
			}
		}
		return 0, 0
	}
	return snapshot.Active.BurnBonusBps, snapshot.Active.NodeRewardBonusBps
}

// ProductionCut returns the active tier's staking accrual cut in bps,
// zero when no tier is active.
func (k Keeper) ProductionCut(ctx context.Context) ledgertypes.Rate {
	snapshot, err := k.CurrentSnapshot(ctx)
	if err != nil || snapshot.Active == nil {
		return 0
	}
	return snapshot.Active.ProductionCutBps
}

// openForDay returns the pinned open price for day, recording fallback
// as the open on the first evaluation of that day. The cache is
// read-through only: it is populated solely from store reads, so an
// open pinned under a rolled-back CacheContext never outlives the
// discarded write.
func (k Keeper) openForDay(ctx context.Context, day int64, fallback types.PricePoint) (types.PricePoint, error) {
	if open, ok := k.openCache.Get(day); ok {
		return open, nil
	}

	raw, err := k.DayOpens.Get(ctx, day)
	if err == nil {
		var open types.PricePoint
		if err := json.Unmarshal([]byte(raw), &open); err != nil {
			return types.PricePoint{}, fmt.Errorf("decode day open: %w", err)
		}
		k.openCache.Add(day, open)
		return open, nil
	}

	// First reading of the day becomes the open.
	encoded, err := json.Marshal(fallback)
	if err != nil {
		return types.PricePoint{}, err
	}
	if err := k.DayOpens.Set(ctx, day, string(encoded)); err != nil {
		return types.PricePoint{}, err
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"antidump_day_open_pinned",
			sdk.NewAttribute("utc_day", fmt.Sprintf("%d", day)),
			sdk.NewAttribute("base", fallback.Base),
			sdk.NewAttribute("stable", fallback.Stable),
		))
	}
	return fallback, nil
}

func utcDay(t time.Time) int64 {
	return t.UTC().Unix() / 86400
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
