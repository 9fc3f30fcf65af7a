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
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/runtime"
	"github.com/stretchr/testify/require"

	"github.com/hcfprotocol/hcfchain/x/antidump/keeper"
	"github.com/hcfprotocol/hcfchain/x/antidump/types"
	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

type mockOracle struct {
	base   int64
	stable int64
	err    error
}

func (m *mockOracle) Reserves(_ context.Context) (sdkmath.Int, sdkmath.Int, error) {
	if m.err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), m.err
	}
	return sdkmath.NewInt(m.base), sdkmath.NewInt(m.stable), nil
}

func setupKeeper(t *testing.T) (keeper.Keeper, sdk.Context) {
	t.Helper()

	storeKey := storetypes.NewKVStoreKey(types.StoreKey)
	db := dbm.NewMemDB()
	cms := rootmulti.NewStore(db, log.NewNopLogger(), storemetrics.NoOpMetrics{})
	cms.MountStoreWithDB(storeKey, storetypes.StoreTypeIAVL, nil)
	require.NoError(t, cms.LoadLatestVersion())

	header := tmproto.Header{
		ChainID: "hcfchain-test-1",
		Height:  1,
		Time:    time.Unix(1_770_000_000, 0).UTC(),
	}
	ctx := sdk.NewContext(cms, header, false, log.NewNopLogger())

	k := keeper.NewKeeper(runtime.NewKVStoreService(storeKey), "hcf_governance")
	require.NoError(t, k.SetParams(ctx, types.DefaultParams()))

	return k, ctx
}

func TestEvaluateDropPicksHighestTier(t *testing.T) {
	params := types.DefaultParams()
	open := types.NewPricePoint(sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000))

	cases := []struct {
		name       string
		curStable  int64
		wantBps    ledgertypes.Rate
		wantActive bool
		wantCut    ledgertypes.Rate
	}{
		{"no drop", 1_000_000, 0, false, 0},
		{"5% below first tier", 950_000, 500, false, 0},
		{"exactly 10%", 900_000, 1000, true, 500},
		{"35% hits second tier", 650_000, 3500, true, 1500},
		{"60% hits third tier", 400_000, 6000, true, 3000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			current := types.NewPricePoint(sdkmath.NewInt(1_000_000), sdkmath.NewInt(tc.curStable))
			snapshot, err := keeper.EvaluateDrop(params, open, current)
			require.NoError(t, err)
			require.Equal(t, tc.wantBps, snapshot.DropBps)
			if !tc.wantActive {
				require.Nil(t, snapshot.Active)
				return
			}
			require.NotNil(t, snapshot.Active)
			require.Equal(t, tc.wantCut, snapshot.Active.ProductionCutBps)
		})
	}
}

func TestPriceRecoveryDeactivatesTier(t *testing.T) {
	k, ctx := setupKeeper(t)
	oracle := &mockOracle{base: 1_000_000, stable: 1_000_000}
	k.SetPriceOracle(oracle)

	// First read of the day pins the open.
	snapshot, err := k.CurrentSnapshot(ctx)
	require.NoError(t, err)
	require.Nil(t, snapshot.Active)

	// Crash 40% intraday, then recover to -5%.
	oracle.stable = 600_000
	snapshot, err = k.CurrentSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Active)
	require.Equal(t, ledgertypes.Rate(4000), snapshot.DropBps)

	oracle.stable = 950_000
	snapshot, err = k.CurrentSnapshot(ctx)
	require.NoError(t, err)
	require.Nil(t, snapshot.Active, "recovery within the same day must deactivate the tier")
}

func TestDayOpenResetsAtUTCBoundary(t *testing.T) {
	k, ctx := setupKeeper(t)
	oracle := &mockOracle{base: 1_000_000, stable: 1_000_000}
	k.SetPriceOracle(oracle)

	_, err := k.CurrentSnapshot(ctx)
	require.NoError(t, err)

	// Crash late in the day.
	oracle.stable = 600_000
	snapshot, err := k.CurrentSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Active)

	// Next UTC day: the crashed price becomes the new open, so the
	// measured drop is zero again.
	nextDay := ctx.WithBlockTime(ctx.BlockTime().Add(24 * time.Hour))
	snapshot, err = k.CurrentSnapshot(nextDay)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.Rate(0), snapshot.DropBps)
	require.Nil(t, snapshot.Active)
}

func TestDiscardedEvaluationDoesNotPinDayOpen(t *testing.T) {
	k, ctx := setupKeeper(t)
	oracle := &mockOracle{base: 1_000_000, stable: 1_000_000}
	k.SetPriceOracle(oracle)

	// Evaluate inside a branch that is never written back, as a failed
	// engine operation would.
	branch, _ := ctx.CacheContext()
	_, err := k.CurrentSnapshot(branch)
	require.NoError(t, err)

	// The committed state saw no evaluation, so the next reading pins
	// the open fresh: against 600k the drop is zero, not 40%.
	oracle.stable = 600_000
	snapshot, err := k.CurrentSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.Rate(0), snapshot.DropBps)
	require.Nil(t, snapshot.Active)
}

func TestSellBonusesFailOpenOnOracleError(t *testing.T) {
	k, ctx := setupKeeper(t)
	k.SetPriceOracle(&mockOracle{err: fmt.Errorf("amm unreachable")})

	burnBonus, nodeBonus := k.SellBonuses(ctx)
	require.Equal(t, ledgertypes.Rate(0), burnBonus)
	require.Equal(t, ledgertypes.Rate(0), nodeBonus)
	require.Equal(t, ledgertypes.Rate(0), k.ProductionCut(ctx))
}

func TestSellBonusesMatchActiveTier(t *testing.T) {
	k, ctx := setupKeeper(t)
	oracle := &mockOracle{base: 1_000_000, stable: 1_000_000}
	k.SetPriceOracle(oracle)

	_, err := k.CurrentSnapshot(ctx)
	require.NoError(t, err)

	oracle.stable = 650_000
	burnBonus, nodeBonus := k.SellBonuses(ctx)
	require.Equal(t, ledgertypes.Rate(1000), burnBonus)
	require.Equal(t, ledgertypes.Rate(500), nodeBonus)
}

func TestValidateParamsRejectsUnorderedTiers(t *testing.T) {
	params := types.DefaultParams()
	params.Tiers[2].DropThresholdBps = params.Tiers[1].DropThresholdBps
	require.Error(t, types.ValidateParams(params))

	params = types.DefaultParams()
	params.Tiers[1].BurnBonusBps = params.Tiers[0].BurnBonusBps
	require.Error(t, types.ValidateParams(params))

	require.Error(t, types.ValidateParams(types.Params{}))
}

func TestGenesisRoundTripKeepsDayOpens(t *testing.T) {
	k, ctx := setupKeeper(t)
	oracle := &mockOracle{base: 1_000_000, stable: 800_000}
	k.SetPriceOracle(oracle)

	_, err := k.CurrentSnapshot(ctx)
	require.NoError(t, err)

	exported, err := k.ExportGenesis(ctx)
	require.NoError(t, err)
	require.Len(t, exported.DayOpens, 1)
	require.Equal(t, "800000", exported.DayOpens[0].Open.Stable)
	require.NoError(t, exported.Validate())
}
