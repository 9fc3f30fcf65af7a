package keeper_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cosmossdk.io/log"
	sdkmath "cosmossdk.io/math"
	storemetrics "cosmossdk.io/store/metrics"
	"cosmossdk.io/store/rootmulti"
	storetypes "cosmossdk.io/store/types"
	tmproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/runtime"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	ledgerkeeper "github.com/hcfprotocol/hcfchain/x/ledger/keeper"
	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
	"github.com/hcfprotocol/hcfchain/x/node/keeper"
	"github.com/hcfprotocol/hcfchain/x/node/types"
)

type stakeProfile struct {
	principal sdkmath.Int
	isLP      bool
}

// mockStakeSource serves canned stake backing per address.
type mockStakeSource struct {
	profiles map[string]stakeProfile
}

func (m *mockStakeSource) StakeProfile(_ context.Context, owner string) (sdkmath.Int, bool) {
	p, ok := m.profiles[owner]
	if !ok {
		return sdkmath.ZeroInt(), false
	}
	return p.principal, p.isLP
}

type harness struct {
	node   keeper.Keeper
	ledger ledgerkeeper.Keeper
	stakes *mockStakeSource
}

func setupKeeper(t *testing.T) (*harness, sdk.Context) {
	t.Helper()

	nodeKey := storetypes.NewKVStoreKey(types.StoreKey)
	ledgerKey := storetypes.NewKVStoreKey(ledgertypes.StoreKey)
	db := dbm.NewMemDB()
	cms := rootmulti.NewStore(db, log.NewNopLogger(), storemetrics.NoOpMetrics{})
	cms.MountStoreWithDB(nodeKey, storetypes.StoreTypeIAVL, nil)
	cms.MountStoreWithDB(ledgerKey, storetypes.StoreTypeIAVL, nil)
	require.NoError(t, cms.LoadLatestVersion())

	header := tmproto.Header{
		ChainID: "hcfchain-test-1",
		Height:  1,
		Time:    time.Unix(1_770_000_000, 0).UTC(),
	}
	ctx := sdk.NewContext(cms, header, false, log.NewNopLogger())

	reg := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(reg)
	cdc := codec.NewProtoCodec(reg)

	h := &harness{stakes: &mockStakeSource{profiles: make(map[string]stakeProfile)}}
	h.ledger = ledgerkeeper.NewKeeper(cdc, runtime.NewKVStoreService(ledgerKey), "hcf_governance")
	h.node = keeper.NewKeeper(runtime.NewKVStoreService(nodeKey), "hcf_governance")
	h.node.SetLedgerKeeper(&h.ledger)
	h.node.SetStakeSource(h.stakes)

	gs := ledgertypes.DefaultGenesis()
	for i := 0; i < 4; i++ {
		acct := ledgertypes.NewAccount(fmt.Sprintf("hcf1node%d", i))
		acct.SetBalance(ledgertypes.DenomStable, sdkmath.NewInt(10_000))
		gs.Accounts = append(gs.Accounts, acct)
	}
	dividendPool := ledgertypes.NewAccount(ledgertypes.NodeDividendPoolName)
	dividendPool.SetBalance(ledgertypes.DenomHCF, sdkmath.NewInt(1_000))
	gs.Accounts = append(gs.Accounts, dividendPool)
	require.NoError(t, h.ledger.InitGenesis(ctx, gs))
	require.NoError(t, h.node.SetParams(ctx, types.DefaultParams()))

	return h, ctx
}

func TestApplyAssignsSequentialSlotsAndChargesFee(t *testing.T) {
	h, ctx := setupKeeper(t)

	first, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)
	require.Equal(t, 0, first.SlotIndex)
	require.False(t, first.Active)

	second, err := h.node.Apply(ctx, "hcf1node1")
	require.NoError(t, err)
	require.Equal(t, 1, second.SlotIndex)

	require.Equal(t, sdkmath.NewInt(7_000),
		h.ledger.BalanceOf(ctx, "hcf1node0", ledgertypes.DenomStable))
	require.Equal(t, sdkmath.NewInt(6_000),
		h.ledger.BalanceOf(ctx, ledgertypes.TreasuryPoolName, ledgertypes.DenomStable))
}

func TestApplyRejectsSecondApplication(t *testing.T) {
	h, ctx := setupKeeper(t)

	_, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)
	_, err = h.node.Apply(ctx, "hcf1node0")
	require.ErrorIs(t, err, types.ErrAlreadyRegistered)
}

func TestApplyRejectsWhenRegistryFull(t *testing.T) {
	h, ctx := setupKeeper(t)

	params := types.DefaultParams()
	params.MaxSlots = 2
	require.NoError(t, h.node.SetParams(ctx, params))

	_, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)
	_, err = h.node.Apply(ctx, "hcf1node1")
	require.NoError(t, err)
	_, err = h.node.Apply(ctx, "hcf1node2")
	require.ErrorIs(t, err, types.ErrRegistryFull)
}

func TestApplyFailsWithoutFeeBalance(t *testing.T) {
	h, ctx := setupKeeper(t)

	_, err := h.node.Apply(ctx, "hcf1broke")
	require.Error(t, err)
	_, err = h.node.GetNode(ctx, "hcf1broke")
	require.ErrorIs(t, err, types.ErrNotRegistered)
}

func TestActivateRequiresStakeFloor(t *testing.T) {
	h, ctx := setupKeeper(t)

	_, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)

	h.stakes.profiles["hcf1node0"] = stakeProfile{principal: sdkmath.NewInt(9_999)}
	_, err = h.node.Activate(ctx, "hcf1node0")
	require.ErrorIs(t, err, types.ErrActivationRequirement)

	h.stakes.profiles["hcf1node0"] = stakeProfile{principal: sdkmath.NewInt(10_000)}
	node, err := h.node.Activate(ctx, "hcf1node0")
	require.NoError(t, err)
	require.True(t, node.Active)

	// Idempotent: a second activation keeps the original timestamp.
	again, err := h.node.Activate(ctx, "hcf1node0")
	require.NoError(t, err)
	require.Equal(t, node.ActivatedAtUnix, again.ActivatedAtUnix)
}

func TestLpStakeActivatesAtLowerFloor(t *testing.T) {
	h, ctx := setupKeeper(t)

	_, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)

	h.stakes.profiles["hcf1node0"] = stakeProfile{principal: sdkmath.NewInt(5_000), isLP: true}
	node, err := h.node.Activate(ctx, "hcf1node0")
	require.NoError(t, err)
	require.True(t, node.Active)
}

func TestActivateRejectsUnregistered(t *testing.T) {
	h, ctx := setupKeeper(t)

	_, err := h.node.Activate(ctx, "hcf1node0")
	require.ErrorIs(t, err, types.ErrNotRegistered)
}

func TestTransferSlotMovesRecordAndDeactivates(t *testing.T) {
	h, ctx := setupKeeper(t)
	h.stakes.profiles["hcf1node0"] = stakeProfile{principal: sdkmath.NewInt(10_000)}

	_, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)
	_, err = h.node.Activate(ctx, "hcf1node0")
	require.NoError(t, err)

	moved, err := h.node.TransferSlot(ctx, "hcf1node0", "hcf1node1", 0)
	require.NoError(t, err)
	require.Equal(t, "hcf1node1", moved.Address)
	require.Equal(t, 0, moved.SlotIndex)
	require.False(t, moved.Active, "activation does not travel with the slot")

	_, err = h.node.GetNode(ctx, "hcf1node0")
	require.ErrorIs(t, err, types.ErrNotRegistered)

	// The freed address can apply again and gets a fresh slot, never
	// the recycled one.
	fresh, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)
	require.Equal(t, 1, fresh.SlotIndex)
}

func TestTransferSlotRejectsWrongSlotOrTakenTarget(t *testing.T) {
	h, ctx := setupKeeper(t)

	_, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)
	_, err = h.node.Apply(ctx, "hcf1node1")
	require.NoError(t, err)

	_, err = h.node.TransferSlot(ctx, "hcf1node0", "hcf1node2", 5)
	require.ErrorIs(t, err, types.ErrSlotNotOwned)

	_, err = h.node.TransferSlot(ctx, "hcf1node0", "hcf1node1", 0)
	require.ErrorIs(t, err, types.ErrAlreadyRegistered)

	_, err = h.node.TransferSlot(ctx, "hcf1node2", "hcf1node3", 0)
	require.ErrorIs(t, err, types.ErrNotRegistered)
}

func TestTransferredSlotKeepsDividendHistory(t *testing.T) {
	h, ctx := setupKeeper(t)
	h.stakes.profiles["hcf1node0"] = stakeProfile{principal: sdkmath.NewInt(10_000)}

	_, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)
	_, err = h.node.Activate(ctx, "hcf1node0")
	require.NoError(t, err)
	_, err = h.node.DistributeDividends(ctx)
	require.NoError(t, err)

	moved, err := h.node.TransferSlot(ctx, "hcf1node0", "hcf1node1", 0)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_000), moved.TotalDividendsInt())
}

func TestDividendsSplitAcrossActiveSlots(t *testing.T) {
	h, ctx := setupKeeper(t)

	for i := 0; i < 3; i++ {
		addr := fmt.Sprintf("hcf1node%d", i)
		_, err := h.node.Apply(ctx, addr)
		require.NoError(t, err)
		h.stakes.profiles[addr] = stakeProfile{principal: sdkmath.NewInt(10_000)}
	}
	// Only the first two activate; the third slot stays dormant.
	for i := 0; i < 2; i++ {
		_, err := h.node.Activate(ctx, fmt.Sprintf("hcf1node%d", i))
		require.NoError(t, err)
	}

	result, err := h.node.DistributeDividends(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.ActiveCount)
	require.Equal(t, sdkmath.NewInt(500), result.PerNode)
	require.Equal(t, sdkmath.NewInt(1_000), result.Paid)
	require.True(t, result.Carried.IsZero())

	require.Equal(t, sdkmath.NewInt(500),
		h.ledger.BalanceOf(ctx, "hcf1node0", ledgertypes.DenomHCF))
	require.True(t, h.ledger.BalanceOf(ctx, "hcf1node2", ledgertypes.DenomHCF).IsZero())

	node, err := h.node.GetNode(ctx, "hcf1node0")
	require.NoError(t, err)
	require.Equal(t, "500", node.TotalDividends)
}

func TestDividendRemainderStaysInPool(t *testing.T) {
	h, ctx := setupKeeper(t)

	for i := 0; i < 3; i++ {
		addr := fmt.Sprintf("hcf1node%d", i)
		_, err := h.node.Apply(ctx, addr)
		require.NoError(t, err)
		h.stakes.profiles[addr] = stakeProfile{principal: sdkmath.NewInt(10_000)}
		_, err = h.node.Activate(ctx, addr)
		require.NoError(t, err)
	}

	result, err := h.node.DistributeDividends(ctx)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(333), result.PerNode)
	require.Equal(t, sdkmath.NewInt(999), result.Paid)
	require.Equal(t, sdkmath.NewInt(1), result.Carried)
	require.Equal(t, sdkmath.NewInt(1),
		h.ledger.PoolBalance(ctx, ledgertypes.NodeDividendPoolName))
}

func TestDividendsWithNoActiveNodesAreANoOp(t *testing.T) {
	h, ctx := setupKeeper(t)

	result, err := h.node.DistributeDividends(ctx)
	require.NoError(t, err)
	require.Zero(t, result.ActiveCount)
	require.True(t, result.Paid.IsZero())
	require.Equal(t, sdkmath.NewInt(1_000), result.Carried)
}

func TestGenesisRoundTrip(t *testing.T) {
	h, ctx := setupKeeper(t)

	_, err := h.node.Apply(ctx, "hcf1node0")
	require.NoError(t, err)
	_, err = h.node.Apply(ctx, "hcf1node1")
	require.NoError(t, err)

	exported, err := h.node.ExportGenesis(ctx)
	require.NoError(t, err)
	require.NoError(t, exported.Validate())
	require.Len(t, exported.Nodes, 2)
	require.Equal(t, 2, exported.NextSlot)
}
