package keeper_test

import (
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
	"github.com/hcfprotocol/hcfchain/x/referral/keeper"
	"github.com/hcfprotocol/hcfchain/x/referral/types"
)

type harness struct {
	referral keeper.Keeper
	ledger   ledgerkeeper.Keeper
}

func setupKeeper(t *testing.T) (*harness, sdk.Context) {
	t.Helper()

	referralKey := storetypes.NewKVStoreKey(types.StoreKey)
	ledgerKey := storetypes.NewKVStoreKey(ledgertypes.StoreKey)
	db := dbm.NewMemDB()
	cms := rootmulti.NewStore(db, log.NewNopLogger(), storemetrics.NoOpMetrics{})
	cms.MountStoreWithDB(referralKey, storetypes.StoreTypeIAVL, nil)
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

	h := &harness{}
	h.ledger = ledgerkeeper.NewKeeper(cdc, runtime.NewKVStoreService(ledgerKey), "hcf_governance")
	h.referral = keeper.NewKeeper(runtime.NewKVStoreService(referralKey), "hcf_governance")
	h.referral.SetLedgerKeeper(&h.ledger)

	gs := ledgertypes.DefaultGenesis()
	rewardPool := ledgertypes.NewAccount(ledgertypes.StakingRewardPoolName)
	rewardPool.SetBalance(ledgertypes.DenomHCF, sdkmath.NewInt(1_000_000))
	gs.Accounts = []ledgertypes.Account{rewardPool}
	require.NoError(t, h.ledger.InitGenesis(ctx, gs))
	require.NoError(t, h.referral.SetParams(ctx, types.DefaultParams()))

	return h, ctx
}

// bindChain binds addrs[0] to the root and each later entry to its
// predecessor.
func bindChain(t *testing.T, h *harness, ctx sdk.Context, addrs ...string) {
	t.Helper()
	parent := ""
	for _, addr := range addrs {
		require.NoError(t, h.referral.BindReferrer(ctx, addr, parent))
		parent = addr
	}
}

func TestBindReferrerIsWriteOnce(t *testing.T) {
	h, ctx := setupKeeper(t)

	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1b", "hcf1a"))
	err := h.referral.BindReferrer(ctx, "hcf1b", "hcf1other")
	require.ErrorIs(t, err, types.ErrEdgeAlreadyBound)
	require.Equal(t, "hcf1a", h.referral.UplineOf(ctx, "hcf1b"))
}

func TestBindReferrerRejectsSelfAndCycles(t *testing.T) {
	h, ctx := setupKeeper(t)

	require.ErrorIs(t, h.referral.BindReferrer(ctx, "hcf1a", "hcf1a"), types.ErrSelfReferral)

	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1x", "hcf1y"))
	require.ErrorIs(t, h.referral.BindReferrer(ctx, "hcf1y", "hcf1x"), types.ErrCircularReferral)

	// Longer cycles are caught too: z -> x -> y, then y -> z.
	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1z", "hcf1x"))
	require.ErrorIs(t, h.referral.BindReferrer(ctx, "hcf1y", "hcf1z"), types.ErrCircularReferral)
}

func TestBindIncrementsDirectCount(t *testing.T) {
	h, ctx := setupKeeper(t)

	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1c1", "hcf1a"))
	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1c2", "hcf1a"))

	stats, err := h.referral.GetStats(ctx, "hcf1a")
	require.NoError(t, err)
	require.Equal(t, 2, stats.DirectCount)
}

func TestRecordDepositPropagatesVolume(t *testing.T) {
	h, ctx := setupKeeper(t)
	bindChain(t, h, ctx, "hcf1a", "hcf1b", "hcf1c")

	require.NoError(t, h.referral.RecordDeposit(ctx, "hcf1c", sdkmath.NewInt(10_000)))

	deep, err := h.referral.GetStats(ctx, "hcf1c")
	require.NoError(t, err)
	require.Equal(t, "10000", deep.PersonalVolume)
	require.Equal(t, "0", deep.TeamVolume)

	mid, err := h.referral.GetStats(ctx, "hcf1b")
	require.NoError(t, err)
	require.Equal(t, "10000", mid.TeamVolume)
	require.Equal(t, "10000", mid.ChildLineVolumes["hcf1c"])

	top, err := h.referral.GetStats(ctx, "hcf1a")
	require.NoError(t, err)
	require.Equal(t, "10000", top.TeamVolume)
	require.Equal(t, "10000", top.ChildLineVolumes["hcf1b"])
}

func TestQualifyingVolumeExcludesLargestLine(t *testing.T) {
	stats := types.NewReferralStats("hcf1a")
	stats.TeamVolume = "30000"
	stats.ChildLineVolumes = map[string]string{
		"hcf1big":   "20000",
		"hcf1small": "10000",
	}
	require.Equal(t, sdkmath.NewInt(10_000), stats.QualifyingVolume())
}

func TestCascadePaysUnlockedGenerations(t *testing.T) {
	h, ctx := setupKeeper(t)
	bindChain(t, h, ctx, "hcf1a", "hcf1b", "hcf1c")

	result, err := h.referral.DistributeOnReward(ctx, "hcf1c", sdkmath.NewInt(10_000))
	require.NoError(t, err)

	// Unqualified uplines reach two generations at the 20% cap:
	// generation 1 pays the full 20%, generation 2 the full 10%.
	require.Len(t, result.Generations, 2)
	require.Equal(t, sdkmath.NewInt(2_000), result.Generations[0].Payout)
	require.Equal(t, "hcf1b", result.Generations[0].Upline)
	require.Equal(t, sdkmath.NewInt(1_000), result.Generations[1].Payout)
	require.Equal(t, "hcf1a", result.Generations[1].Upline)
	require.True(t, result.TotalBurned.IsZero())

	require.Equal(t, sdkmath.NewInt(2_000), h.ledger.BalanceOf(ctx, "hcf1b", ledgertypes.DenomHCF))
	require.Equal(t, sdkmath.NewInt(1_000), h.ledger.BalanceOf(ctx, "hcf1a", ledgertypes.DenomHCF))
}

func TestCascadeBurnsLockedGenerations(t *testing.T) {
	h, ctx := setupKeeper(t)
	bindChain(t, h, ctx, "hcf1g3", "hcf1g2", "hcf1g1", "hcf1c")
	supplyBefore := h.ledger.SupplyOf(ctx)

	result, err := h.referral.DistributeOnReward(ctx, "hcf1c", sdkmath.NewInt(10_000))
	require.NoError(t, err)

	// Generation 3 sits past the base unlock depth: its 5% entitlement
	// is burned in full, not paid.
	require.Len(t, result.Generations, 3)
	third := result.Generations[2]
	require.Equal(t, "hcf1g3", third.Upline)
	require.True(t, third.Payout.IsZero())
	require.Equal(t, sdkmath.NewInt(500), third.Clipped)
	require.Equal(t, sdkmath.NewInt(500), result.TotalBurned)
	require.Equal(t, supplyBefore.Sub(sdkmath.NewInt(500)), h.ledger.SupplyOf(ctx))
	require.True(t, h.ledger.BalanceOf(ctx, "hcf1g3", ledgertypes.DenomHCF).IsZero())
}

func TestCascadePayoutNeverExceedsTableRate(t *testing.T) {
	h, ctx := setupKeeper(t)

	addrs := make([]string, 0, 22)
	for i := 0; i < 22; i++ {
		addrs = append(addrs, fmt.Sprintf("hcf1u%02d", i))
	}
	bindChain(t, h, ctx, addrs...)

	reward := sdkmath.NewInt(50_000)
	result, err := h.referral.DistributeOnReward(ctx, addrs[len(addrs)-1], reward)
	require.NoError(t, err)
	require.Len(t, result.Generations, types.MaxGenerations)

	params := types.DefaultParams()
	for i, gen := range result.Generations {
		entitlement := params.GenerationRates[i].MulBps(reward)
		require.True(t, gen.Payout.LTE(entitlement),
			"generation %d payout %s exceeds table entitlement %s", i+1, gen.Payout, entitlement)
		require.Equal(t, entitlement, gen.Payout.Add(gen.Clipped),
			"payout plus clipped burn must equal the entitlement exactly")
	}
}

func TestQualifiedUplineClippedToLevelRate(t *testing.T) {
	h, ctx := setupKeeper(t)
	bindChain(t, h, ctx, "hcf1a", "hcf1b", "hcf1c")

	// Force hcf1a to V1: generation cap and team rate become 600 bps.
	require.NoError(t, h.referral.InitGenesis(ctx, &types.GenesisState{
		Params: types.DefaultParams(),
		Stats: []types.ReferralStats{{
			Address:        "hcf1a",
			DirectCount:    2,
			PersonalVolume: "0",
			TeamVolume:     "30000",
			ChildLineVolumes: map[string]string{
				"hcf1b": "15000",
				"hcf1x": "15000",
			},
			TeamLevel: 1,
		}},
	}))

	result, err := h.referral.DistributeOnReward(ctx, "hcf1c", sdkmath.NewInt(10_000))
	require.NoError(t, err)

	// Generation 2 entitlement is 10% but V1 caps at 6%; the 4% gap is
	// burned. The V1 team differential pays another 6%.
	second := result.Generations[1]
	require.Equal(t, sdkmath.NewInt(600), second.Payout)
	require.Equal(t, sdkmath.NewInt(400), second.Clipped)

	require.Len(t, result.TeamPayouts, 1)
	require.Equal(t, "hcf1a", result.TeamPayouts[0].Upline)
	require.Equal(t, 1, result.TeamPayouts[0].Level)
	require.Equal(t, sdkmath.NewInt(600), result.TeamPayouts[0].Payout)
}

func TestTeamDifferentialPaysOnlyTheMargin(t *testing.T) {
	h, ctx := setupKeeper(t)
	bindChain(t, h, ctx, "hcf1v2", "hcf1v1", "hcf1c")

	// hcf1v1 holds V1 (600 bps), its upline hcf1v2 holds V2 (1200 bps):
	// the V2 ancestor earns only the 600 bps margin.
	require.NoError(t, h.referral.InitGenesis(ctx, &types.GenesisState{
		Params: types.DefaultParams(),
		Stats: []types.ReferralStats{
			{Address: "hcf1v1", DirectCount: 2, PersonalVolume: "0", TeamVolume: "0", TeamLevel: 1},
			{Address: "hcf1v2", DirectCount: 4, PersonalVolume: "0", TeamVolume: "0", TeamLevel: 2},
		},
	}))

	result, err := h.referral.DistributeOnReward(ctx, "hcf1c", sdkmath.NewInt(10_000))
	require.NoError(t, err)

	require.Len(t, result.TeamPayouts, 2)
	require.Equal(t, sdkmath.NewInt(600), result.TeamPayouts[0].Payout)
	require.Equal(t, "hcf1v1", result.TeamPayouts[0].Upline)
	require.Equal(t, sdkmath.NewInt(600), result.TeamPayouts[1].Payout)
	require.Equal(t, "hcf1v2", result.TeamPayouts[1].Upline)
}

func TestTeamLevelRecomputedOnDeposit(t *testing.T) {
	h, ctx := setupKeeper(t)

	// Two direct children; deposits spread across both lines so the
	// largest-line exclusion still leaves the V1 minimum.
	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1left", "hcf1a"))
	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1right", "hcf1a"))
	require.NoError(t, h.referral.RecordDeposit(ctx, "hcf1left", sdkmath.NewInt(15_000)))
	require.NoError(t, h.referral.RecordDeposit(ctx, "hcf1right", sdkmath.NewInt(12_000)))

	stats, err := h.referral.GetStats(ctx, "hcf1a")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(12_000), stats.QualifyingVolume())
	require.Equal(t, 1, stats.TeamLevel)
}

func TestCommunityVolumesRequireTwoLines(t *testing.T) {
	h, ctx := setupKeeper(t)

	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1only", "hcf1solo"))
	require.NoError(t, h.referral.RecordDeposit(ctx, "hcf1only", sdkmath.NewInt(5_000)))

	volumes, err := h.referral.CommunityVolumes(ctx)
	require.NoError(t, err)
	require.NotContains(t, volumes, "hcf1solo", "single-line teams do not rank")

	require.NoError(t, h.referral.BindReferrer(ctx, "hcf1second", "hcf1solo"))
	require.NoError(t, h.referral.RecordDeposit(ctx, "hcf1second", sdkmath.NewInt(3_000)))

	volumes, err = h.referral.CommunityVolumes(ctx)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(3_000), volumes["hcf1solo"])
}

func TestGenesisRoundTrip(t *testing.T) {
	h, ctx := setupKeeper(t)
	bindChain(t, h, ctx, "hcf1a", "hcf1b")
	require.NoError(t, h.referral.RecordDeposit(ctx, "hcf1b", sdkmath.NewInt(1_000)))

	exported, err := h.referral.ExportGenesis(ctx)
	require.NoError(t, err)
	require.NoError(t, exported.Validate())
	require.Len(t, exported.Edges, 2)
	require.NotEmpty(t, exported.Stats)
}
