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
	referraltypes "github.com/hcfprotocol/hcfchain/x/referral/types"
	"github.com/hcfprotocol/hcfchain/x/stakepool/types"
)

// LedgerKeeper is the subset of the ledger the staking engine depends on.
type LedgerKeeper interface {
	Transfer(ctx context.Context, from, to string, amount sdkmath.Int, kind ledgertypes.TransferKind) (*ledgertypes.TransferResult, error)
	SendFromPool(ctx context.Context, pool, to string, amount sdkmath.Int) (*ledgertypes.TransferResult, error)
	TransferAsset(ctx context.Context, from, to, denom string, amount sdkmath.Int) error
	RecordClaim(ctx context.Context, addr string, at time.Time) error
	BurnFrom(ctx context.Context, addr string, amount sdkmath.Int) (burned, redirected sdkmath.Int, err error)
	PoolBalance(ctx context.Context, pool string) sdkmath.Int
}

// ReferralHook receives deposit volume and reward events.
type ReferralHook interface {
	RecordDeposit(ctx context.Context, account string, amount sdkmath.Int) error
	DistributeOnReward(ctx context.Context, account string, reward sdkmath.Int) (*referraltypes.CascadeResult, error)
}

// ProductionCutSource reports the market-condition accrual reduction,
// in bps to subtract from the full rate factor.
type ProductionCutSource interface {
	ProductionCut(ctx context.Context) ledgertypes.Rate
}

// Keeper owns the stake positions and the deterministic yield engine.
type Keeper struct {
	storeService store.KVStoreService
	authority    string

	ledgerKeeper  LedgerKeeper
	referralHook  ReferralHook
	productionCut ProductionCutSource

	Positions   collections.Map[string, string]
	Params      collections.Item[string]
	TotalStaked collections.Item[string]
}

// NewKeeper creates a new stakepool keeper.
func NewKeeper(storeService store.KVStoreService, authority string) Keeper {
	sb := collections.NewSchemaBuilder(storeService)

	return Keeper{
		storeService: storeService,
		authority:    authority,
		Positions: collections.NewMap(
			sb,
			collections.NewPrefix(types.PositionKeyPrefix),
			"positions",
			collections.StringKey,
			collections.StringValue,
		),
		Params: collections.NewItem(
			sb,
			collections.NewPrefix(types.ParamsKey),
			"params",
			collections.StringValue,
		),
		TotalStaked: collections.NewItem(
			sb,
			collections.NewPrefix(types.TotalStakedKey),
			"total_staked",
			collections.StringValue,
		),
	}
}

// SetLedgerKeeper wires the ledger.
func (k *Keeper) SetLedgerKeeper(ledger LedgerKeeper) {
	k.ledgerKeeper = ledger
}

// SetReferralHook wires the referral module.
func (k *Keeper) SetReferralHook(hook ReferralHook) {
	k.referralHook = hook
}

// SetProductionCutSource wires the anti-dump production cut.
func (k *Keeper) SetProductionCutSource(source ProductionCutSource) {
	k.productionCut = source
}

// GetAuthority returns the module's governance authority address.
func (k Keeper) GetAuthority() string {
	return k.authority
}

// GetParams returns the current staking parameters.
func (k Keeper) GetParams(ctx context.Context) (types.Params, error) {
	raw, err := k.Params.Get(ctx)
	if err != nil {
		return types.DefaultParams(), nil
	}
	var params types.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return types.Params{}, fmt.Errorf("decode stakepool params: %w", err)
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

// GetPosition loads an account's stake position. Missing positions are
// reported with ErrNoPosition rather than a zero value.
func (k Keeper) GetPosition(ctx context.Context, owner string) (*types.StakePosition, error) {
	raw, err := k.Positions.Get(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoPosition, owner)
	}
	var position types.StakePosition
	if err := json.Unmarshal([]byte(raw), &position); err != nil {
		return nil, fmt.Errorf("decode position %s: %w", owner, err)
	}
	return &position, nil
}

func (k Keeper) setPosition(ctx context.Context, position *types.StakePosition) error {
	raw, err := json.Marshal(position)
	if err != nil {
		return err
	}
	return k.Positions.Set(ctx, position.Owner, string(raw))
}

// GetTotalStaked returns the aggregate staked principal.
func (k Keeper) GetTotalStaked(ctx context.Context) sdkmath.Int {
	raw, err := k.TotalStaked.Get(ctx)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	value, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return value
}

func (k Keeper) adjustTotalStaked(ctx context.Context, delta sdkmath.Int) error {
	next := k.GetTotalStaked(ctx).Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("total staked cannot go negative")
	}
	return k.TotalStaked.Set(ctx, next.String())
}

// StakeProfile reports an account's staked principal and whether the
// position is an LP stake; zero and false when no position exists.
// Consumed by the node module's activation check.
func (k Keeper) StakeProfile(ctx context.Context, owner string) (sdkmath.Int, bool) {
	position, err := k.GetPosition(ctx, owner)
	if err != nil {
		return sdkmath.ZeroInt(), false
	}
	return position.PrincipalInt(), position.IsLPStake
}

// WalkPositions visits every stored position. Used by the ranking
// module's stake metric and by genesis export.
func (k Keeper) WalkPositions(ctx context.Context, fn func(types.StakePosition) (bool, error)) error {
	return k.Positions.Walk(ctx, nil, func(_ string, raw string) (bool, error) {
		var position types.StakePosition
		if err := json.Unmarshal([]byte(raw), &position); err != nil {
			return false, err
		}
		return fn(position)
	})
}

// InitGenesis writes the parameters and any carried-over positions.
func (k Keeper) InitGenesis(ctx context.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	if err := k.SetParams(ctx, gs.Params); err != nil {
		return err
	}
	total := sdkmath.ZeroInt()
	for _, position := range gs.Positions {
		record := position
		if err := k.setPosition(ctx, &record); err != nil {
			return err
		}
		total = total.Add(record.PrincipalInt())
	}
	return k.TotalStaked.Set(ctx, total.String())
}

// ExportGenesis dumps the parameters and every position.
func (k Keeper) ExportGenesis(ctx context.Context) (*types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	gs := &types.GenesisState{Params: params}
	if err := k.WalkPositions(ctx, func(position types.StakePosition) (bool, error) {
		gs.Positions = append(gs.Positions, position)
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
