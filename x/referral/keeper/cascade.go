package keeper

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
	"github.com/hcfprotocol/hcfchain/x/referral/types"
)

// RecordDeposit propagates a new deposit's volume through the upline
// chain: the depositor's personal volume, every ancestor's team volume
// and the per-line counter of the direct child the deposit arrived
// through. Team levels are re-derived on every touched ancestor.
func (k Keeper) RecordDeposit(ctx context.Context, account string, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}

	stats, err := k.getOrCreateStats(ctx, account)
	if err != nil {
		return err
	}
	stats.PersonalVolume = stats.PersonalVolumeInt().Add(amount).String()
	if err := k.setStats(ctx, stats); err != nil {
		return err
	}

	lineChild := account
	current := k.UplineOf(ctx, account)
	for depth := 0; depth < types.MaxGenerations && current != types.RootSentinel; depth++ {
		parentStats, err := k.getOrCreateStats(ctx, current)
		if err != nil {
			return err
		}
		parentStats.TeamVolume = parentStats.TeamVolumeInt().Add(amount).String()
		if parentStats.ChildLineVolumes == nil {
			parentStats.ChildLineVolumes = make(map[string]string)
		}
		parentStats.ChildLineVolumes[lineChild] = parentStats.ChildLineVolumeInt(lineChild).Add(amount).String()
		if err := k.recomputeLevel(ctx, parentStats); err != nil {
			return err
		}
		if err := k.setStats(ctx, parentStats); err != nil {
			return err
		}

		lineChild = current
		current = k.UplineOf(ctx, current)
	}
	return nil
}

// DistributeOnReward runs the 20-generation commission cascade for one
// reward event. Each generation's table entitlement is clipped to the
// upline's qualification cap and the unqualified remainder is burned,
// so no upline ever collects more than the table rate and the sum of
// pays and burns equals the sum of entitlements exactly. Team-level
// differential rewards ride the same walk.
func (k Keeper) DistributeOnReward(ctx context.Context, account string, reward sdkmath.Int) (*types.CascadeResult, error) {
	if k.ledgerKeeper == nil {
		return nil, fmt.Errorf("referral keeper has no ledger wired")
	}
	result := &types.CascadeResult{
		Account:     account,
		EventAmount: reward,
		TotalPaid:   sdkmath.ZeroInt(),
		TotalBurned: sdkmath.ZeroInt(),
	}
	if !reward.IsPositive() {
		return result, nil
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}

	bestTeamRate := ledgertypes.Rate(0)
	current := k.UplineOf(ctx, account)

	for generation := 0; generation < types.MaxGenerations && current != types.RootSentinel; generation++ {
		stats, err := k.getOrCreateStats(ctx, current)
		if err != nil {
			return nil, err
		}
		entry := k.levelEntry(params, stats.TeamLevel)

		if generation < len(params.GenerationRates) {
			tableRate := params.GenerationRates[generation]
			cap := params.GenerationCapFor(entry, generation)
			paidRate := tableRate
			if cap < paidRate {
				paidRate = cap
			}

			entitlement := tableRate.MulBps(reward)
			payout := paidRate.MulBps(reward)
			clipped := entitlement.Sub(payout)

			if payout.IsPositive() {
				if _, err := k.ledgerKeeper.SendFromPool(ctx, ledgertypes.StakingRewardPoolName, current, payout); err != nil {
					return nil, fmt.Errorf("generation %d payout to %s: %w", generation+1, current, err)
				}
				result.TotalPaid = result.TotalPaid.Add(payout)
			}
			if clipped.IsPositive() {
				if _, _, err := k.ledgerKeeper.BurnFrom(ctx, ledgertypes.StakingRewardPoolName, clipped); err != nil {
					return nil, fmt.Errorf("generation %d clip burn: %w", generation+1, err)
				}
				result.TotalBurned = result.TotalBurned.Add(clipped)
			}
			result.Generations = append(result.Generations, types.GenerationPayout{
				Generation:   generation + 1,
				Upline:       current,
				TableRateBps: tableRate,
				PaidRateBps:  paidRate,
				Payout:       payout,
				Clipped:      clipped,
			})
		}

		// Differential team reward: an upline earns only the margin of
		// its level rate over the highest rate already paid below it.
		if entry.RewardRateBps > bestTeamRate {
			diff := entry.RewardRateBps - bestTeamRate
			teamPayout := diff.MulBps(reward)
			if teamPayout.IsPositive() {
				if _, err := k.ledgerKeeper.SendFromPool(ctx, ledgertypes.StakingRewardPoolName, current, teamPayout); err != nil {
					return nil, fmt.Errorf("team payout to %s: %w", current, err)
				}
				result.TotalPaid = result.TotalPaid.Add(teamPayout)
				result.TeamPayouts = append(result.TeamPayouts, types.TeamPayout{
					Upline:  current,
					Level:   entry.Level,
					RateBps: entry.RewardRateBps,
					Payout:  teamPayout,
				})
			}
			bestTeamRate = entry.RewardRateBps
		}

		current = k.UplineOf(ctx, current)
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"referral_cascade",
			sdk.NewAttribute("account", account),
			sdk.NewAttribute("reward", reward.String()),
			sdk.NewAttribute("paid", result.TotalPaid.String()),
			sdk.NewAttribute("burned", result.TotalBurned.String()),
		))
	}
	return result, nil
}

// levelEntry resolves a stored level number back to its table entry,
// falling back to the implicit level-0 entry.
func (k Keeper) levelEntry(params types.Params, level int) types.TeamLevelEntry {
	for _, entry := range params.TeamLevels {
		if entry.Level == level {
			return entry
		}
	}
	return types.TeamLevelEntry{
		Level:               0,
		RewardRateBps:       0,
		UnlockedGenerations: params.BaseUnlockedGenerations,
	}
}
