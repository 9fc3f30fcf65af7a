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
	"github.com/hcfprotocol/hcfchain/x/node/types"
)

// LedgerKeeper is the subset of the ledger the registry moves value
// through.
type LedgerKeeper interface {
	TransferAsset(ctx context.Context, from, to, denom string, amount sdkmath.Int) error
	SendFromPool(ctx context.Context, pool, to string, amount sdkmath.Int) (*ledgertypes.TransferResult, error)
	PoolBalance(ctx context.Context, pool string) sdkmath.Int
}

// StakeSource reports an applicant's stake backing.
type StakeSource interface {
	StakeProfile(ctx context.Context, owner string) (principal sdkmath.Int, isLP bool)
}

// Keeper owns the fixed-capacity node registry and its dividend flow.
type Keeper struct {
	storeService store.KVStoreService
	authority    string

	ledgerKeeper LedgerKeeper
	stakeSource  StakeSource

	Nodes    collections.Map[string, string]
	Params   collections.Item[string]
	NextSlot collections.Item[int64]
}

// NewKeeper creates a new node keeper.
func NewKeeper(storeService store.KVStoreService, authority string) Keeper {
	sb := collections.NewSchemaBuilder(storeService)

	return Keeper{
		storeService: storeService,
		authority:    authority,
		Nodes: collections.NewMap(
			sb,
			collections.NewPrefix(types.NodeKeyPrefix),
			"nodes",
			collections.StringKey,
			collections.StringValue,
		),
		Params: collections.NewItem(
			sb,
			collections.NewPrefix(types.ParamsKey),
			"params",
			collections.StringValue,
		),
		NextSlot: collections.NewItem(
			sb,
			collections.NewPrefix(types.NextSlotKey),
			"next_slot",
			collections.Int64Value,
		),
	}
}

// SetLedgerKeeper wires the ledger.
func (k *Keeper) SetLedgerKeeper(ledger LedgerKeeper) {
	k.ledgerKeeper = ledger
}

// SetStakeSource wires the staking engine.
func (k *Keeper) SetStakeSource(source StakeSource) {
	k.stakeSource = source
}

// GetAuthority returns the module's governance authority address.
func (k Keeper) GetAuthority() string {
	return k.authority
}

// GetParams returns the current registry parameters.
func (k Keeper) GetParams(ctx context.Context) (types.Params, error) {
	raw, err := k.Params.Get(ctx)
	if err != nil {
		return types.DefaultParams(), nil
	}
	var params types.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return types.Params{}, fmt.Errorf("decode node params: %w", err)
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

// GetNode loads an account's node record.
func (k Keeper) GetNode(ctx context.Context, addr string) (*types.NodeRecord, error) {
	raw, err := k.Nodes.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotRegistered, addr)
	}
	var node types.NodeRecord
	if err := json.Unmarshal([]byte(raw), &node); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", addr, err)
	}
	return &node, nil
}

func (k Keeper) setNode(ctx context.Context, node *types.NodeRecord) error {
	raw, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return k.Nodes.Set(ctx, node.Address, string(raw))
}

// Apply claims the next free slot for addr, charging the uusd
// application fee into the treasury. Slots are handed out in strict
// application order and never recycled.
func (k Keeper) Apply(ctx context.Context, addr string) (*types.NodeRecord, error) {
	if k.ledgerKeeper == nil {
		return nil, fmt.Errorf("node keeper has no ledger wired")
	}
	if addr == "" {
		return nil, fmt.Errorf("applicant address cannot be empty")
	}
	if exists, err := k.Nodes.Has(ctx, addr); err == nil && exists {
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyRegistered, addr)
	}
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	slot, err := k.NextSlot.Get(ctx)
	if err != nil {
		slot = 0
	}
	if int(slot) >= params.MaxSlots {
		return nil, fmt.Errorf("%w: all %d slots taken", types.ErrRegistryFull, params.MaxSlots)
	}

	fee := params.ApplicationFeeInt()
	if fee.IsPositive() {
		if err := k.ledgerKeeper.TransferAsset(ctx, addr, ledgertypes.TreasuryPoolName, ledgertypes.DenomStable, fee); err != nil {
			return nil, fmt.Errorf("charge application fee: %w", err)
		}
	}

	node := &types.NodeRecord{
		Address:        addr,
		SlotIndex:      int(slot),
		AppliedAtUnix:  contextNow(ctx).Unix(),
		TotalDividends: "0",
	}
	if err := k.setNode(ctx, node); err != nil {
		return nil, err
	}
	if err := k.NextSlot.Set(ctx, slot+1); err != nil {
		return nil, err
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"node_applied",
			sdk.NewAttribute("address", addr),
			sdk.NewAttribute("slot", fmt.Sprintf("%d", node.SlotIndex)),
		))
	}
	return node, nil
}

// Activate flips a registered slot to dividend-earning once the owner's
// stake backing clears the activation floor. LP positions qualify at
// the lower LP minimum. Activation is idempotent.
func (k Keeper) Activate(ctx context.Context, addr string) (*types.NodeRecord, error) {
	node, err := k.GetNode(ctx, addr)
	if err != nil {
		return nil, err
	}
	if node.Active {
		return node, nil
	}
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}

	principal := sdkmath.ZeroInt()
	isLP := false
	if k.stakeSource != nil {
		principal, isLP = k.stakeSource.StakeProfile(ctx, addr)
	}
	floor := params.ActivationMinStakeInt()
	if isLP {
		floor = params.ActivationMinLpStakeInt()
	}
	if principal.LT(floor) {
		return nil, fmt.Errorf("%w: staked %s uhcf, need %s", types.ErrActivationRequirement, principal, floor)
	}

	node.Active = true
	node.ActivatedAtUnix = contextNow(ctx).Unix()
	if err := k.setNode(ctx, node); err != nil {
		return nil, err
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"node_activated",
			sdk.NewAttribute("address", addr),
			sdk.NewAttribute("slot", fmt.Sprintf("%d", node.SlotIndex)),
		))
	}
	return node, nil
}

// TransferSlot reassigns a registry slot to a new owner. The slot index
// and its dividend history travel with the record, but activation does
// not: the new owner's own stake backing has to clear the floor, so the
// slot arrives deactivated.
func (k Keeper) TransferSlot(ctx context.Context, owner, newOwner string, slotIndex int) (*types.NodeRecord, error) {
	if newOwner == "" {
		return nil, fmt.Errorf("transfer target address cannot be empty")
	}
	node, err := k.GetNode(ctx, owner)
	if err != nil {
		return nil, err
	}
	if node.SlotIndex != slotIndex {
		return nil, fmt.Errorf("%w: %s holds slot %d, not %d", types.ErrSlotNotOwned, owner, node.SlotIndex, slotIndex)
	}
	if exists, err := k.Nodes.Has(ctx, newOwner); err == nil && exists {
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyRegistered, newOwner)
	}

	if err := k.Nodes.Remove(ctx, owner); err != nil {
		return nil, err
	}
	node.Address = newOwner
	node.Active = false
	node.ActivatedAtUnix = 0
	if err := k.setNode(ctx, node); err != nil {
		return nil, err
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"node_transferred",
			sdk.NewAttribute("from", owner),
			sdk.NewAttribute("to", newOwner),
			sdk.NewAttribute("slot", fmt.Sprintf("%d", node.SlotIndex)),
		))
	}
	return node, nil
}

// DistributeDividends splits the node dividend pool equally across the
// active slots in slot order. The division remainder stays in the pool
// and rides into the next run, so nothing is ever lost to rounding.
func (k Keeper) DistributeDividends(ctx context.Context) (*types.DividendResult, error) {
	if k.ledgerKeeper == nil {
		return nil, fmt.Errorf("node keeper has no ledger wired")
	}
	pool := k.ledgerKeeper.PoolBalance(ctx, ledgertypes.NodeDividendPoolName)
	result := &types.DividendResult{
		PoolBalance: pool,
		PerNode:     sdkmath.ZeroInt(),
		Paid:        sdkmath.ZeroInt(),
		Carried:     pool,
	}

	var active []types.NodeRecord
	if err := k.WalkNodes(ctx, func(node types.NodeRecord) (bool, error) {
		if node.Active {
			active = append(active, node)
		}
		return false, nil
	}); err != nil {
		return nil, err
	}
	result.ActiveCount = len(active)
	if len(active) == 0 || !pool.IsPositive() {
		return result, nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].SlotIndex < active[j].SlotIndex })

	perNode, err := ledgertypes.NewSafeMath().SafeDiv(pool, sdkmath.NewInt(int64(len(active))))
	if err != nil {
		return nil, fmt.Errorf("split dividend pool: %w", err)
	}
	if !perNode.IsPositive() {
		return result, nil
	}
	for i := range active {
		node := active[i]
		if _, err := k.ledgerKeeper.SendFromPool(ctx, ledgertypes.NodeDividendPoolName, node.Address, perNode); err != nil {
			return nil, fmt.Errorf("pay dividend to slot %d: %w", node.SlotIndex, err)
		}
		node.TotalDividends = node.TotalDividendsInt().Add(perNode).String()
		if err := k.setNode(ctx, &node); err != nil {
			return nil, err
		}
	}

	result.PerNode = perNode
	result.Paid = perNode.MulRaw(int64(len(active)))
	result.Carried = pool.Sub(result.Paid)

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"node_dividends",
			sdk.NewAttribute("pool", pool.String()),
			sdk.NewAttribute("active", fmt.Sprintf("%d", result.ActiveCount)),
			sdk.NewAttribute("per_node", perNode.String()),
			sdk.NewAttribute("carried", result.Carried.String()),
		))
	}
	return result, nil
}

// WalkNodes visits every registry record.
func (k Keeper) WalkNodes(ctx context.Context, fn func(types.NodeRecord) (bool, error)) error {
	return k.Nodes.Walk(ctx, nil, func(_ string, raw string) (bool, error) {
		var node types.NodeRecord
		if err := json.Unmarshal([]byte(raw), &node); err != nil {
			return false, err
		}
		return fn(node)
	})
}

// InitGenesis writes the parameters and any carried-over slots.
func (k Keeper) InitGenesis(ctx context.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	if err := k.SetParams(ctx, gs.Params); err != nil {
		return err
	}
	for _, node := range gs.Nodes {
		record := node
		if err := k.setNode(ctx, &record); err != nil {
			return err
		}
	}
	return k.NextSlot.Set(ctx, int64(gs.NextSlot))
}

// ExportGenesis dumps the parameters and every slot.
func (k Keeper) ExportGenesis(ctx context.Context) (*types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	gs := &types.GenesisState{Params: params}
	if err := k.WalkNodes(ctx, func(node types.NodeRecord) (bool, error) {
		gs.Nodes = append(gs.Nodes, node)
		return false, nil
	}); err != nil {
		return nil, err
	}
	next, err := k.NextSlot.Get(ctx)
	if err == nil {
		gs.NextSlot = int(next)
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
