package keeper_test

import (
	"context"
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
	"github.com/hcfprotocol/hcfchain/x/ranking/keeper"
	"github.com/hcfprotocol/hcfchain/x/ranking/types"
	stakepooltypes "github.com/hcfprotocol/hcfchain/x/stakepool/types"
)

// mockStakeSource walks a fixed set of positions.
type mockStakeSource struct {
	positions []stakepooltypes.StakePosition
}

func (m *mockStakeSource) WalkPositions(_ context.Context, fn func(stakepooltypes.StakePosition) (bool, error)) error {
	for _, position := range m.positions {
		stop, err := fn(position)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

// mockCommunitySource serves a fixed volume map.
type mockCommunitySource struct {
	volumes map[string]sdkmath.Int
}

func (m *mockCommunitySource) CommunityVolumes(_ context.Context) (map[string]sdkmath.Int, error) {
	return m.volumes, nil
}

type harness struct {
	ranking   keeper.Keeper
	ledger    ledgerkeeper.Keeper
	stakes    *mockStakeSource
	community *mockCommunitySource
}

func setupKeeper(t *testing.T) (*harness, sdk.Context) {
	t.Helper()

	rankingKey := storetypes.NewKVStoreKey(types.StoreKey)
	ledgerKey := storetypes.NewKVStoreKey(ledgertypes.StoreKey)
	db := dbm.NewMemDB()
	cms := rootmulti.NewStore(db, log.NewNopLogger(), storemetrics.NoOpMetrics{})
	cms.MountStoreWithDB(rankingKey, storetypes.StoreTypeIAVL, nil)
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

	h := &harness{
		stakes:    &mockStakeSource{},
		community: &mockCommunitySource{volumes: make(map[string]sdkmath.Int)},
	}
	h.ledger = ledgerkeeper.NewKeeper(cdc, runtime.NewKVStoreService(ledgerKey), "hcf_governance")
	h.ranking = keeper.NewKeeper(runtime.NewKVStoreService(rankingKey), "hcf_governance")
	h.ranking.SetLedgerKeeper(&h.ledger)
	h.ranking.SetStakeSource(h.stakes)
	h.ranking.SetCommunitySource(h.community)

	gs := ledgertypes.DefaultGenesis()
	rankingPool := ledgertypes.NewAccount(ledgertypes.RankingRewardPoolName)
	rankingPool.SetBalance(ledgertypes.DenomHCF, sdkmath.NewInt(100_000))
	gs.Accounts = []ledgertypes.Account{rankingPool}
	require.NoError(t, h.ledger.InitGenesis(ctx, gs))
	require.NoError(t, h.ranking.SetParams(ctx, types.DefaultParams()))

	return h, ctx
}

func position(owner string, principal int64) stakepooltypes.StakePosition {
	return stakepooltypes.StakePosition{
		Owner:     owner,
		Principal: sdkmath.NewInt(principal).String(),
	}
}

func TestSettleStakeMetricPaysBonusOnOwnStake(t *testing.T) {
	h, ctx := setupKeeper(t)
	h.stakes.positions = []stakepooltypes.StakePosition{
		position("hcf1whale", 50_000),
		position("hcf1fish", 1_000),
		position("hcf1crab", 500),
	}

	result, err := h.ranking.Settle(ctx, 1, types.MetricStake)
	require.NoError(t, err)
	require.Equal(t, 3, result.Ranked)

	// All three fall in the 1-100 band, which pays 100 bps of each
	// member's own stake.
	top := result.Bands[0]
	require.Equal(t, 3, top.Occupants)
	require.Equal(t, sdkmath.NewInt(515), top.Paid)
	require.Equal(t, sdkmath.NewInt(515), result.TotalPaid)

	require.Equal(t, sdkmath.NewInt(500),
		h.ledger.BalanceOf(ctx, "hcf1whale", ledgertypes.DenomHCF))
	require.Equal(t, sdkmath.NewInt(10),
		h.ledger.BalanceOf(ctx, "hcf1fish", ledgertypes.DenomHCF))
	require.Equal(t, sdkmath.NewInt(5),
		h.ledger.BalanceOf(ctx, "hcf1crab", ledgertypes.DenomHCF))
	require.Equal(t, sdkmath.NewInt(99_485),
		h.ledger.PoolBalance(ctx, ledgertypes.RankingRewardPoolName))
}

func TestSettleIsIdempotentPerPeriod(t *testing.T) {
	h, ctx := setupKeeper(t)
	h.stakes.positions = []stakepooltypes.StakePosition{position("hcf1a", 1_000)}

	_, err := h.ranking.Settle(ctx, 7, types.MetricStake)
	require.NoError(t, err)
	_, err = h.ranking.Settle(ctx, 7, types.MetricStake)
	require.ErrorIs(t, err, types.ErrAlreadySettled)

	// A different period settles fine.
	_, err = h.ranking.Settle(ctx, 8, types.MetricStake)
	require.NoError(t, err)
}

func TestSettleCommunityMetricUsesQualifyingVolumes(t *testing.T) {
	h, ctx := setupKeeper(t)
	h.community.volumes = map[string]sdkmath.Int{
		"hcf1leader": sdkmath.NewInt(30_000),
		"hcf1runner": sdkmath.NewInt(20_000),
		"hcf1zero":   sdkmath.ZeroInt(),
	}

	result, err := h.ranking.Settle(ctx, 1, types.MetricCommunity)
	require.NoError(t, err)
	require.Equal(t, 2, result.Ranked, "zero volumes never rank")
	require.Equal(t, sdkmath.NewInt(500), result.TotalPaid)
	require.Equal(t, sdkmath.NewInt(300), h.ledger.BalanceOf(ctx, "hcf1leader", ledgertypes.DenomHCF))
	require.Equal(t, sdkmath.NewInt(200), h.ledger.BalanceOf(ctx, "hcf1runner", ledgertypes.DenomHCF))
	require.True(t, h.ledger.BalanceOf(ctx, "hcf1zero", ledgertypes.DenomHCF).IsZero())
}

func TestSettleRejectsUnknownMetric(t *testing.T) {
	h, ctx := setupKeeper(t)

	_, err := h.ranking.Settle(ctx, 1, types.Metric("volume"))
	require.ErrorIs(t, err, types.ErrUnknownMetric)
}

func TestBandBoundariesWithDeterministicTieBreak(t *testing.T) {
	h, ctx := setupKeeper(t)

	// Two-rank top band so the tie-break decides who makes the cut.
	params := types.DefaultParams()
	params.Bands = []types.RankBand{
		{FromRank: 1, ToRank: 2, BonusRateBps: 100},
		{FromRank: 3, ToRank: 4, BonusRateBps: 50},
	}
	require.NoError(t, h.ranking.SetParams(ctx, params))

	h.stakes.positions = []stakepooltypes.StakePosition{
		position("hcf1c", 1_000),
		position("hcf1a", 1_000),
		position("hcf1b", 1_000),
	}

	result, err := h.ranking.Settle(ctx, 1, types.MetricStake)
	require.NoError(t, err)

	// Equal scores rank in address order: a and b take the top band's
	// 100 bps rate, c lands in the second at 50 bps.
	require.Equal(t, 2, result.Bands[0].Occupants)
	require.Equal(t, sdkmath.NewInt(20), result.Bands[0].Paid)
	require.Equal(t, 1, result.Bands[1].Occupants)
	require.Equal(t, sdkmath.NewInt(5), result.Bands[1].Paid)

	require.Equal(t, sdkmath.NewInt(10), h.ledger.BalanceOf(ctx, "hcf1a", ledgertypes.DenomHCF))
	require.Equal(t, sdkmath.NewInt(10), h.ledger.BalanceOf(ctx, "hcf1b", ledgertypes.DenomHCF))
	require.Equal(t, sdkmath.NewInt(5), h.ledger.BalanceOf(ctx, "hcf1c", ledgertypes.DenomHCF))
}

func TestSettleClampsPayoutsToPoolBalance(t *testing.T) {
	h, ctx := setupKeeper(t)
	h.stakes.positions = []stakepooltypes.StakePosition{
		position("hcf1whale", 500_000_000),
		position("hcf1fish", 1_000),
	}

	// The top entitlement alone (100 bps of 500M) dwarfs the 100,000
	// pool, so the whale drains it and later ranks get nothing.
	result, err := h.ranking.Settle(ctx, 1, types.MetricStake)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000), result.TotalPaid)
	require.Equal(t, sdkmath.NewInt(100_000), h.ledger.BalanceOf(ctx, "hcf1whale", ledgertypes.DenomHCF))
	require.True(t, h.ledger.BalanceOf(ctx, "hcf1fish", ledgertypes.DenomHCF).IsZero())
	require.True(t, h.ledger.PoolBalance(ctx, ledgertypes.RankingRewardPoolName).IsZero())
}

func TestEmptyLeaderboardSettlesWithoutPayouts(t *testing.T) {
	h, ctx := setupKeeper(t)

	result, err := h.ranking.Settle(ctx, 1, types.MetricStake)
	require.NoError(t, err)
	require.Zero(t, result.Ranked)
	require.True(t, result.TotalPaid.IsZero())

	// The empty run still burns the replay guard for the period.
	_, err = h.ranking.Settle(ctx, 1, types.MetricStake)
	require.ErrorIs(t, err, types.ErrAlreadySettled)
}

func TestCurrentPeriodTracksBlockTime(t *testing.T) {
	h, ctx := setupKeeper(t)

	period, err := h.ranking.CurrentPeriod(ctx)
	require.NoError(t, err)

	later := ctx.WithBlockTime(ctx.BlockTime().Add(7 * 24 * time.Hour))
	next, err := h.ranking.CurrentPeriod(later)
	require.NoError(t, err)
	require.Equal(t, period+1, next)
}

func TestSettlementForReturnsStoredResult(t *testing.T) {
	h, ctx := setupKeeper(t)
	h.stakes.positions = []stakepooltypes.StakePosition{position("hcf1a", 1_000)}

	settled, err := h.ranking.Settle(ctx, 3, types.MetricStake)
	require.NoError(t, err)

	stored, err := h.ranking.SettlementFor(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, settled.TotalPaid, stored.TotalPaid)
	require.Equal(t, types.MetricStake, stored.Metric)

	_, err = h.ranking.SettlementFor(ctx, 99)
	require.Error(t, err)
}

func TestValidateParamsRejectsGappyBands(t *testing.T) {
	params := types.DefaultParams()
	params.Bands = []types.RankBand{
		{FromRank: 1, ToRank: 100, BonusRateBps: 100},
		{FromRank: 102, ToRank: 500, BonusRateBps: 50},
	}
	require.Error(t, types.ValidateParams(params))
}

func TestValidateParamsRejectsIncreasingBonusRates(t *testing.T) {
	params := types.DefaultParams()
	params.Bands = []types.RankBand{
		{FromRank: 1, ToRank: 100, BonusRateBps: 50},
		{FromRank: 101, ToRank: 500, BonusRateBps: 100},
	}
	require.Error(t, types.ValidateParams(params))
}

func TestGenesisRoundTrip(t *testing.T) {
	h, ctx := setupKeeper(t)
	h.stakes.positions = []stakepooltypes.StakePosition{position("hcf1a", 1_000)}
	_, err := h.ranking.Settle(ctx, 5, types.MetricStake)
	require.NoError(t, err)

	exported, err := h.ranking.ExportGenesis(ctx)
	require.NoError(t, err)
	require.NoError(t, exported.Validate())
	require.Equal(t, []int64{5}, exported.SettledPeriods)
}
