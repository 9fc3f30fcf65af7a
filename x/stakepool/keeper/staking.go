package keeper

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
	"github.com/hcfprotocol/hcfchain/x/stakepool/types"
)

// Stake locks principal into the stake vault and creates or tops up the
// owner's position. During the launch window the per-UTC-day purchase
// limit applies and an over-limit stake is rejected whole.
func (k Keeper) Stake(ctx context.Context, owner string, amount sdkmath.Int, isLP bool, lockDays int64) (*types.StakePosition, error) {
	if k.ledgerKeeper == nil {
		return nil, fmt.Errorf("stakepool keeper has no ledger wired")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("stake amount must be positive, got %s", amount)
	}
	if lockDays != 0 && lockDays != 100 && lockDays != 300 {
		return nil, fmt.Errorf("%w: got %d", types.ErrInvalidEquityLock, lockDays)
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	now := contextNow(ctx).Unix()
	day := now / types.SecondsPerDay

	position, err := k.GetPosition(ctx, owner)
	if err != nil {
		position = &types.StakePosition{
			Owner:           owner,
			Principal:       "0",
			IsLPStake:       isLP,
			EquityLockDays:  lockDays,
			StakedAtUnix:    now,
			LastAccrualUnix: now,
			PendingReward:   "0",
			CapDay:          day,
			CapAccrued:      "0",
			PurchaseDay:     day,
			PurchasedToday:  "0",
		}
	} else {
		if position.IsLPStake != isLP || position.EquityLockDays != lockDays {
			return nil, fmt.Errorf("position terms are fixed at first stake: have lp=%t lock=%dd, got lp=%t lock=%dd",
				position.IsLPStake, position.EquityLockDays, isLP, lockDays)
		}
		if _, err := k.accrue(ctx, position, params); err != nil {
			return nil, err
		}
	}

	if withinLaunchWindow(params, now) {
		if position.PurchaseDay != day {
			position.PurchaseDay = day
			position.PurchasedToday = "0"
		}
		total := position.PurchasedTodayInt().Add(amount)
		if total.GT(params.DailyPurchaseLimitInt()) {
			return nil, fmt.Errorf("%w: %s purchased today, %s requested, limit %s",
				types.ErrPurchaseLimitExceeded, position.PurchasedToday, amount, params.DailyPurchaseLimit)
		}
		position.PurchasedToday = total.String()
	}

	principal := position.PrincipalInt().Add(amount)
	tier, err := params.TierFor(principal)
	if err != nil {
		return nil, err
	}

	if _, err := k.ledgerKeeper.Transfer(ctx, owner, ledgertypes.StakeVaultPoolName, amount, ledgertypes.TransferKindPlain); err != nil {
		return nil, fmt.Errorf("move principal to vault: %w", err)
	}

	position.Principal = principal.String()
	position.Tier = tier
	if err := k.setPosition(ctx, position); err != nil {
		return nil, err
	}
	if err := k.adjustTotalStaked(ctx, amount); err != nil {
		return nil, err
	}
	if k.referralHook != nil {
		if err := k.referralHook.RecordDeposit(ctx, owner, amount); err != nil {
			return nil, fmt.Errorf("record referral volume: %w", err)
		}
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"stake",
			sdk.NewAttribute("owner", owner),
			sdk.NewAttribute("amount", amount.String()),
			sdk.NewAttribute("tier", fmt.Sprintf("%d", tier)),
			sdk.NewAttribute("lp", fmt.Sprintf("%t", isLP)),
		))
	}
	return position, nil
}

// Claim settles the accrued reward: a node-pool cut is peeled off, the
// remainder is paid from the staking reward pool and the gross reward
// drives the referral cascade. Claiming with nothing pending is a no-op.
func (k Keeper) Claim(ctx context.Context, owner string) (*types.ClaimResult, error) {
	if k.ledgerKeeper == nil {
		return nil, fmt.Errorf("stakepool keeper has no ledger wired")
	}
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	position, err := k.GetPosition(ctx, owner)
	if err != nil {
		return nil, err
	}
	if _, err := k.accrue(ctx, position, params); err != nil {
		return nil, err
	}

	gross := position.PendingInt()
	result := &types.ClaimResult{
		Owner:       owner,
		GrossReward: gross,
		NodePoolCut: sdkmath.ZeroInt(),
		Paid:        sdkmath.ZeroInt(),
	}
	if !gross.IsPositive() {
		return result, k.setPosition(ctx, position)
	}

	nodeCut := params.ClaimNodeFeeBps.MulBps(gross)
	paid := gross.Sub(nodeCut)

	if nodeCut.IsPositive() {
		if _, err := k.ledgerKeeper.SendFromPool(ctx, ledgertypes.StakingRewardPoolName, ledgertypes.NodeDividendPoolName, nodeCut); err != nil {
			return nil, fmt.Errorf("route node cut: %w", err)
		}
	}
	if paid.IsPositive() {
		if _, err := k.ledgerKeeper.SendFromPool(ctx, ledgertypes.StakingRewardPoolName, owner, paid); err != nil {
			return nil, fmt.Errorf("pay claim: %w", err)
		}
	}
	result.NodePoolCut = nodeCut
	result.Paid = paid

	position.PendingReward = "0"
	if err := k.setPosition(ctx, position); err != nil {
		return nil, err
	}
	if err := k.ledgerKeeper.RecordClaim(ctx, owner, contextNow(ctx)); err != nil {
		return nil, fmt.Errorf("stamp claim time: %w", err)
	}

	if k.referralHook != nil {
		cascade, err := k.referralHook.DistributeOnReward(ctx, owner, gross)
		if err != nil {
			return nil, fmt.Errorf("referral cascade: %w", err)
		}
		result.ReferralBreakdown = cascade.Generations
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"claim",
			sdk.NewAttribute("owner", owner),
			sdk.NewAttribute("gross", gross.String()),
			sdk.NewAttribute("node_cut", nodeCut.String()),
			sdk.NewAttribute("paid", paid.String()),
		))
	}
	return result, nil
}

// Compound folds the pending reward into principal instead of paying it
// out. The reward moves from the reward pool into the stake vault, so
// conservation holds and the larger principal starts accruing at once.
func (k Keeper) Compound(ctx context.Context, owner string) (*types.StakePosition, error) {
	if k.ledgerKeeper == nil {
		return nil, fmt.Errorf("stakepool keeper has no ledger wired")
	}
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	position, err := k.GetPosition(ctx, owner)
	if err != nil {
		return nil, err
	}
	if _, err := k.accrue(ctx, position, params); err != nil {
		return nil, err
	}

	pending := position.PendingInt()
	if !pending.IsPositive() {
		return position, k.setPosition(ctx, position)
	}

	principal := position.PrincipalInt().Add(pending)
	tier, err := params.TierFor(principal)
	if err != nil {
		return nil, err
	}
	if _, err := k.ledgerKeeper.SendFromPool(ctx, ledgertypes.StakingRewardPoolName, ledgertypes.StakeVaultPoolName, pending); err != nil {
		return nil, fmt.Errorf("move compounded reward to vault: %w", err)
	}

	position.Principal = principal.String()
	position.Tier = tier
	position.PendingReward = "0"
	position.CompoundCount++
	if err := k.setPosition(ctx, position); err != nil {
		return nil, err
	}
	if err := k.adjustTotalStaked(ctx, pending); err != nil {
		return nil, err
	}
	if k.referralHook != nil {
		if err := k.referralHook.RecordDeposit(ctx, owner, pending); err != nil {
			return nil, fmt.Errorf("record referral volume: %w", err)
		}
	}

	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"compound",
			sdk.NewAttribute("owner", owner),
			sdk.NewAttribute("amount", pending.String()),
			sdk.NewAttribute("principal", position.Principal),
		))
	}
	return position, nil
}

// Unstake withdraws principal from the vault. The withdrawal fee is paid
// in ugas for normal stakes and at the higher uusd rate for LP stakes;
// withdrawing inside the retention window burns a slice of the
// withdrawn principal. A full exit with nothing pending removes the
// position entirely.
func (k Keeper) Unstake(ctx context.Context, owner string, amount sdkmath.Int) (*types.UnstakeResult, error) {
	if k.ledgerKeeper == nil {
		return nil, fmt.Errorf("stakepool keeper has no ledger wired")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("unstake amount must be positive, got %s", amount)
	}
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	position, err := k.GetPosition(ctx, owner)
	if err != nil {
		return nil, err
	}
	if _, err := k.accrue(ctx, position, params); err != nil {
		return nil, err
	}

	principal := position.PrincipalInt()
	if amount.GT(principal) {
		return nil, fmt.Errorf("unstake %s exceeds staked principal %s", amount, principal)
	}
	remaining := principal.Sub(amount)
	tier := position.Tier
	if remaining.IsPositive() {
		tier, err = params.TierFor(remaining)
		if err != nil {
			return nil, fmt.Errorf("remaining principal %s: %w; unstake fully instead", remaining, err)
		}
	}

	// Withdrawal fee, charged up front in the side asset.
	feeDenom := ledgertypes.DenomGas
	feeRate := params.UnstakeFeeBps
	if position.IsLPStake {
		feeDenom = ledgertypes.DenomStable
		feeRate = params.LpUnstakeFeeBps
	}
	fee := feeRate.MulBps(amount)
	if fee.IsPositive() {
		if err := k.ledgerKeeper.TransferAsset(ctx, owner, ledgertypes.TreasuryPoolName, feeDenom, fee); err != nil {
			return nil, fmt.Errorf("charge withdrawal fee: %w", err)
		}
	}

	now := contextNow(ctx).Unix()
	retentionBurn := sdkmath.ZeroInt()
	if now < position.StakedAtUnix+params.RetentionDays*types.SecondsPerDay {
		retentionBurn = params.RetentionBurnBps.MulBps(amount)
	}
	returned := amount.Sub(retentionBurn)

	if returned.IsPositive() {
		if _, err := k.ledgerKeeper.SendFromPool(ctx, ledgertypes.StakeVaultPoolName, owner, returned); err != nil {
			return nil, fmt.Errorf("return principal: %w", err)
		}
	}
	if retentionBurn.IsPositive() {
		if _, _, err := k.ledgerKeeper.BurnFrom(ctx, ledgertypes.StakeVaultPoolName, retentionBurn); err != nil {
			return nil, fmt.Errorf("retention burn: %w", err)
		}
	}

	position.Principal = remaining.String()
	position.Tier = tier
	if position.IsZero() {
		if err := k.Positions.Remove(ctx, owner); err != nil {
			return nil, err
		}
	} else if err := k.setPosition(ctx, position); err != nil {
		return nil, err
	}
	if err := k.adjustTotalStaked(ctx, amount.Neg()); err != nil {
		return nil, err
	}

	result := &types.UnstakeResult{
		Owner:              owner,
		Returned:           returned,
		FeeAmount:          fee,
		FeeDenom:           feeDenom,
		RetentionBurn:      retentionBurn,
		RemainingPrincipal: remaining,
	}
	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"unstake",
			sdk.NewAttribute("owner", owner),
			sdk.NewAttribute("returned", returned.String()),
			sdk.NewAttribute("fee", fee.String()+feeDenom),
			sdk.NewAttribute("retention_burn", retentionBurn.String()),
		))
	}
	return result, nil
}

// PreviewPendingReward runs the accrual math without persisting anything.
func (k Keeper) PreviewPendingReward(ctx context.Context, owner string) (sdkmath.Int, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	position, err := k.GetPosition(ctx, owner)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	scratch := *position
	if _, err := k.accrue(ctx, &scratch, params); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return scratch.PendingInt(), nil
}

// accrue advances a position's pending reward to the current block time.
// The formula is pure integer math:
//
//	accrual = principal * rateBps * factorBps * elapsedSecs / (10000 * 10000 * 86400)
//
// where rateBps is the tier rate (LP doubled in the table) scaled by the
// equity-lock bonus, and factorBps folds the global decay and the
// anti-dump production cut together, floored at the minimum factor.
// The result is then clamped by the per-UTC-day cap; clamped excess is
// discarded, never deferred.
func (k Keeper) accrue(ctx context.Context, position *types.StakePosition, params types.Params) (*types.AccrualResult, error) {
	now := contextNow(ctx).Unix()
	elapsed := now - position.LastAccrualUnix
	result := &types.AccrualResult{
		Owner:        position.Owner,
		ElapsedSecs:  elapsed,
		GrossAccrual: sdkmath.ZeroInt(),
		Granted:      sdkmath.ZeroInt(),
		CapDiscarded: sdkmath.ZeroInt(),
	}
	if elapsed <= 0 {
		return result, nil
	}
	position.LastAccrualUnix = now

	principal := position.PrincipalInt()
	if !principal.IsPositive() {
		return result, nil
	}
	if position.Tier < 0 || position.Tier >= len(params.Tiers) {
		return nil, fmt.Errorf("%w: tier %d out of range", types.ErrUnknownTier, position.Tier)
	}

	tier := params.Tiers[position.Tier]
	rate := tier.BaseDailyRateBps
	if position.IsLPStake {
		rate = tier.LpDailyRateBps
	}
	lockBonus := params.LockBonusBps(position.EquityLockDays)
	rate = rate + ledgertypes.Rate(int64(rate)*int64(lockBonus)/ledgertypes.BpsBase)
	result.RateBps = rate

	factor := k.decayFactor(ctx, params)
	result.DecayFactorBps = factor
	cut := ledgertypes.Rate(0)
	if k.productionCut != nil {
		cut = k.productionCut.ProductionCut(ctx)
	}
	result.ProductionCutBps = cut
	factor -= cut
	if factor < params.MinRateFactorBps {
		factor = params.MinRateFactorBps
	}

	sm := ledgertypes.NewSafeMath()
	scaled, err := sm.SafeMul(principal, sdkmath.NewInt(int64(rate)*int64(factor)))
	if err != nil {
		return nil, fmt.Errorf("accrual for %s: %w", position.Owner, err)
	}
	gross, err := sm.SafeMulDiv(scaled, sdkmath.NewInt(elapsed),
		sdkmath.NewInt(int64(ledgertypes.BpsBase)*int64(ledgertypes.BpsBase)*types.SecondsPerDay))
	if err != nil {
		return nil, fmt.Errorf("accrual for %s: %w", position.Owner, err)
	}
	result.GrossAccrual = gross

	// Daily cap, keyed by UTC day; the tracker resets on day change.
	day := now / types.SecondsPerDay
	if position.CapDay != day {
		position.CapDay = day
		position.CapAccrued = "0"
	}
	capLimit := params.DailyCapBps.MulBps(principal)
	headroom := capLimit.Sub(position.CapAccruedInt())
	if headroom.IsNegative() {
		headroom = sdkmath.ZeroInt()
	}
	granted := gross
	if granted.GT(headroom) {
		granted = headroom
	}
	result.Granted = granted
	result.CapDiscarded = gross.Sub(granted)

	position.CapAccrued = position.CapAccruedInt().Add(granted).String()
	position.PendingReward = position.PendingInt().Add(granted).String()
	return result, nil
}

// decayFactor derives the global rate factor from aggregate staked
// principal: full rate up to the threshold, then one step of reduction
// per started DecayStep of excess, floored at the minimum factor. The
// factor never recovers faster than the aggregate shrinks, so repeated
// reads at constant stake are monotonic.
func (k Keeper) decayFactor(ctx context.Context, params types.Params) ledgertypes.Rate {
	total := k.GetTotalStaked(ctx)
	excess := total.Sub(params.DecayThresholdInt())
	if !excess.IsPositive() {
		return ledgertypes.Rate(ledgertypes.BpsBase)
	}
	steps := excess.Quo(params.DecayStepInt()).AddRaw(1)
	reduction := steps.MulRaw(int64(params.DecayPerStepBps))
	factor := sdkmath.NewInt(ledgertypes.BpsBase).Sub(reduction)
	min := sdkmath.NewInt(int64(params.MinRateFactorBps))
	if factor.LT(min) {
		factor = min
	}
	return ledgertypes.Rate(factor.Int64())
}

func withinLaunchWindow(params types.Params, now int64) bool {
	if params.LaunchWindowDays <= 0 {
		return false
	}
	end := params.LaunchUnix + params.LaunchWindowDays*types.SecondsPerDay
	return now >= params.LaunchUnix && now < end
}
