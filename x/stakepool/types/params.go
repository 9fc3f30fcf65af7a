package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// StakeTier keys a daily yield pair by minimum principal. The LP rate
// rewards paired-liquidity staking and must strictly exceed the base
// rate.
type StakeTier struct {
	MinPrincipal     string           `json:"min_principal"`
	BaseDailyRateBps ledgertypes.Rate `json:"base_daily_rate_bps"`
	LpDailyRateBps   ledgertypes.Rate `json:"lp_daily_rate_bps"`
}

// MinPrincipalInt returns the tier minimum as an integer.
func (t StakeTier) MinPrincipalInt() sdkmath.Int {
	value, _ := sdkmath.NewIntFromString(t.MinPrincipal)
	return value
}

// Params holds the staking engine's governance parameters.
type Params struct {
	// Tiers is the ascending tier table, at most five entries.
	Tiers []StakeTier `json:"tiers"`

	// Equity-lock accrual bonuses; the higher threshold wins.
	EquityLock100BonusBps ledgertypes.Rate `json:"equity_lock_100_bonus_bps"`
	EquityLock300BonusBps ledgertypes.Rate `json:"equity_lock_300_bonus_bps"`

	// Global decay: once aggregate staked principal exceeds
	// DecayThreshold, every DecayStep of excess shaves DecayPerStepBps
	// off the effective rate factor, floored at MinRateFactorBps.
	DecayThreshold   string           `json:"decay_threshold"`
	DecayStep        string           `json:"decay_step"`
	DecayPerStepBps  ledgertypes.Rate `json:"decay_per_step_bps"`
	MinRateFactorBps ledgertypes.Rate `json:"min_rate_factor_bps"`

	// DailyCapBps caps per-account accrual per UTC day, in bps of the
	// account's principal. Excess accrual is discarded, not deferred.
	DailyCapBps ledgertypes.Rate `json:"daily_cap_bps"`

	// Launch-window purchase limiting.
	LaunchUnix         int64  `json:"launch_unix"`
	LaunchWindowDays   int64  `json:"launch_window_days"`
	DailyPurchaseLimit string `json:"daily_purchase_limit"`

	// Unstake fees: normal stakes pay UnstakeFeeBps of the withdrawn
	// principal in ugas; LP stakes pay the larger LpUnstakeFeeBps in
	// uusd.
	UnstakeFeeBps   ledgertypes.Rate `json:"unstake_fee_bps"`
	LpUnstakeFeeBps ledgertypes.Rate `json:"lp_unstake_fee_bps"`

	// Retention: withdrawing before RetentionDays burns
	// RetentionBurnBps of the withdrawn principal.
	RetentionDays    int64            `json:"retention_days"`
	RetentionBurnBps ledgertypes.Rate `json:"retention_burn_bps"`

	// ClaimNodeFeeBps is the cut of every claim routed to the node
	// dividend pool.
	ClaimNodeFeeBps ledgertypes.Rate `json:"claim_node_fee_bps"`
}

// DefaultParams returns the genesis staking parameters.
func DefaultParams() Params {
	return Params{
		Tiers: []StakeTier{
			{MinPrincipal: "100", BaseDailyRateBps: 40, LpDailyRateBps: 80},
			{MinPrincipal: "1000", BaseDailyRateBps: 50, LpDailyRateBps: 100},
			{MinPrincipal: "10000", BaseDailyRateBps: 70, LpDailyRateBps: 140},
			{MinPrincipal: "100000", BaseDailyRateBps: 80, LpDailyRateBps: 160},
			{MinPrincipal: "1000000", BaseDailyRateBps: 100, LpDailyRateBps: 200},
		},
		EquityLock100BonusBps: 2000, // +20%
		EquityLock300BonusBps: 4000, // +40%
		DecayThreshold:        "100000000000",
		DecayStep:             "10000000000",
		DecayPerStepBps:       100,
		MinRateFactorBps:      3000,
		DailyCapBps:           1000, // 10% of principal per day
		LaunchUnix:            0,
		LaunchWindowDays:      7,
		DailyPurchaseLimit:    "500000",
		UnstakeFeeBps:         100,
		LpUnstakeFeeBps:       500,
		RetentionDays:         30,
		RetentionBurnBps:      300,
		ClaimNodeFeeBps:       200,
	}
}

// ValidateParams checks every field against its accepted range.
func ValidateParams(p Params) error {
	if len(p.Tiers) == 0 || len(p.Tiers) > 5 {
		return fmt.Errorf("tier table must have 1..5 entries, got %d", len(p.Tiers))
	}
	for i, tier := range p.Tiers {
		minPrincipal, err := ledgertypes.ParsePositiveInt(tier.MinPrincipal, fmt.Sprintf("tier %d min_principal", i))
		if err != nil {
			return err
		}
		if err := tier.BaseDailyRateBps.Validate(); err != nil {
			return fmt.Errorf("tier %d base rate: %w", i, err)
		}
		if err := tier.LpDailyRateBps.Validate(); err != nil {
			return fmt.Errorf("tier %d lp rate: %w", i, err)
		}
		if tier.LpDailyRateBps <= tier.BaseDailyRateBps {
			return fmt.Errorf("tier %d lp rate %d bps must exceed base rate %d bps",
				i, tier.LpDailyRateBps, tier.BaseDailyRateBps)
		}
		if i > 0 && !minPrincipal.GT(p.Tiers[i-1].MinPrincipalInt()) {
			return fmt.Errorf("tier %d min_principal %s must exceed tier %d min_principal %s",
				i, tier.MinPrincipal, i-1, p.Tiers[i-1].MinPrincipal)
		}
	}
	if p.EquityLock300BonusBps <= p.EquityLock100BonusBps {
		return fmt.Errorf("300-day lock bonus %d bps must exceed 100-day bonus %d bps",
			p.EquityLock300BonusBps, p.EquityLock100BonusBps)
	}
	if _, err := ledgertypes.ParsePositiveInt(p.DecayThreshold, "decay_threshold"); err != nil {
		return err
	}
	if _, err := ledgertypes.ParsePositiveInt(p.DecayStep, "decay_step"); err != nil {
		return err
	}
	if err := p.DecayPerStepBps.Validate(); err != nil {
		return fmt.Errorf("decay_per_step_bps: %w", err)
	}
	if err := p.MinRateFactorBps.Validate(); err != nil {
		return fmt.Errorf("min_rate_factor_bps: %w", err)
	}
	if p.MinRateFactorBps == 0 {
		return fmt.Errorf("min_rate_factor_bps must be positive so decay never zeroes accrual")
	}
	if err := p.DailyCapBps.Validate(); err != nil {
		return fmt.Errorf("daily_cap_bps: %w", err)
	}
	if p.DailyCapBps == 0 {
		return fmt.Errorf("daily_cap_bps must be positive")
	}
	if p.LaunchWindowDays < 0 {
		return fmt.Errorf("launch_window_days must be non-negative, got %d", p.LaunchWindowDays)
	}
	if p.LaunchWindowDays > 0 {
		if _, err := ledgertypes.ParsePositiveInt(p.DailyPurchaseLimit, "daily_purchase_limit"); err != nil {
			return err
		}
	}
	for name, r := range map[string]ledgertypes.Rate{
		"unstake_fee_bps":    p.UnstakeFeeBps,
		"lp_unstake_fee_bps": p.LpUnstakeFeeBps,
		"retention_burn_bps": p.RetentionBurnBps,
		"claim_node_fee_bps": p.ClaimNodeFeeBps,
	} {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if p.LpUnstakeFeeBps <= p.UnstakeFeeBps {
		return fmt.Errorf("lp_unstake_fee_bps %d must exceed unstake_fee_bps %d",
			p.LpUnstakeFeeBps, p.UnstakeFeeBps)
	}
	if p.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be non-negative, got %d", p.RetentionDays)
	}
	return nil
}

// DecayThresholdInt returns the decay threshold as an integer.
func (p Params) DecayThresholdInt() sdkmath.Int {
	value, _ := sdkmath.NewIntFromString(p.DecayThreshold)
	return value
}

// DecayStepInt returns the decay step as an integer.
func (p Params) DecayStepInt() sdkmath.Int {
	value, _ := sdkmath.NewIntFromString(p.DecayStep)
	return value
}

// DailyPurchaseLimitInt returns the per-day purchase limit as an integer.
func (p Params) DailyPurchaseLimitInt() sdkmath.Int {
	value, _ := sdkmath.NewIntFromString(p.DailyPurchaseLimit)
	return value
}

// TierFor returns the index of the highest tier whose minimum the
// principal meets, or ErrUnknownTier below the lowest minimum.
func (p Params) TierFor(principal sdkmath.Int) (int, error) {
	tier := -1
	for i := range p.Tiers {
		if principal.GTE(p.Tiers[i].MinPrincipalInt()) {
			tier = i
		}
	}
	if tier < 0 {
		return 0, fmt.Errorf("%w: %s uhcf is below tier 0 minimum %s",
			ErrUnknownTier, principal, p.Tiers[0].MinPrincipal)
	}
	return tier, nil
}

// LockBonusBps returns the equity-lock bonus for the given lock length;
// the higher threshold wins and the bonuses are mutually exclusive.
func (p Params) LockBonusBps(lockDays int64) ledgertypes.Rate {
	switch {
	case lockDays >= 300:
		return p.EquityLock300BonusBps
	case lockDays >= 100:
		return p.EquityLock100BonusBps
	default:
		return 0
	}
}
