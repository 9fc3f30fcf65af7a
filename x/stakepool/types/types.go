package types

import (
	sdkmath "cosmossdk.io/math"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
	referraltypes "github.com/hcfprotocol/hcfchain/x/referral/types"
)

// SecondsPerDay is the fixed-point day denominator for accrual math.
const SecondsPerDay int64 = 86400

// StakePosition is the per-account staking record. A position is created
// on first stake, mutated by accrual, compound and claim, and zeroed on
// full unstake.
type StakePosition struct {
	Owner string `json:"owner"`

	// Principal is the staked uhcf amount.
	Principal string `json:"principal"`

	// Tier is the index of the highest tier whose minimum the principal
	// meets. Re-derived on every principal change.
	Tier int `json:"tier"`

	IsLPStake      bool  `json:"is_lp_stake"`
	EquityLockDays int64 `json:"equity_lock_days"`
	CompoundCount  int64 `json:"compound_count"`

	StakedAtUnix    int64 `json:"staked_at_unix"`
	LastAccrualUnix int64 `json:"last_accrual_unix"`

	// PendingReward accrues monotonically between claims.
	PendingReward string `json:"pending_reward"`

	// Daily accrual cap tracker, keyed by UTC day.
	CapDay     int64  `json:"cap_day"`
	CapAccrued string `json:"cap_accrued"`

	// Launch-window purchase tracker, keyed by UTC day.
	PurchaseDay    int64  `json:"purchase_day"`
	PurchasedToday string `json:"purchased_today"`
}

// PrincipalInt returns the principal as an integer.
func (p StakePosition) PrincipalInt() sdkmath.Int { return parseIntOrZero(p.Principal) }

// PendingInt returns the pending reward as an integer.
func (p StakePosition) PendingInt() sdkmath.Int { return parseIntOrZero(p.PendingReward) }

// CapAccruedInt returns today's capped accrual as an integer.
func (p StakePosition) CapAccruedInt() sdkmath.Int { return parseIntOrZero(p.CapAccrued) }

// PurchasedTodayInt returns today's purchased amount as an integer.
func (p StakePosition) PurchasedTodayInt() sdkmath.Int { return parseIntOrZero(p.PurchasedToday) }

// IsZero reports whether the position holds no principal or reward.
func (p StakePosition) IsZero() bool {
	return !p.PrincipalInt().IsPositive() && !p.PendingInt().IsPositive()
}

func parseIntOrZero(raw string) sdkmath.Int {
	value, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return value
}

// AccrualResult reports one accrual step for auditing.
type AccrualResult struct {
	Owner       string           `json:"owner"`
	ElapsedSecs int64            `json:"elapsed_secs"`
	RateBps     ledgertypes.Rate `json:"rate_bps"`

	// GrossAccrual is the uncapped accrual for the elapsed window.
	GrossAccrual sdkmath.Int `json:"gross_accrual"`

	// Granted is the accrual actually credited after the daily cap.
	Granted sdkmath.Int `json:"granted"`

	// CapDiscarded is the excess clamped away, never deferred.
	CapDiscarded sdkmath.Int `json:"cap_discarded"`

	// DecayFactorBps and ProductionCutBps record the multipliers applied.
	DecayFactorBps   ledgertypes.Rate `json:"decay_factor_bps"`
	ProductionCutBps ledgertypes.Rate `json:"production_cut_bps"`
}

// ClaimResult reports the exact amounts moved by a claim.
type ClaimResult struct {
	Owner       string      `json:"owner"`
	GrossReward sdkmath.Int `json:"gross_reward"`
	NodePoolCut sdkmath.Int `json:"node_pool_cut"`
	Paid        sdkmath.Int `json:"paid"`

	// ReferralBreakdown is the per-generation cascade triggered by the
	// claim, as reported by the referral module.
	ReferralBreakdown []referraltypes.GenerationPayout `json:"referral_breakdown,omitempty"`
}

// UnstakeResult reports the exact amounts moved by an unstake.
type UnstakeResult struct {
	Owner              string      `json:"owner"`
	Returned           sdkmath.Int `json:"returned"`
	FeeAmount          sdkmath.Int `json:"fee_amount"`
	FeeDenom           string      `json:"fee_denom"`
	RetentionBurn      sdkmath.Int `json:"retention_burn"`
	RemainingPrincipal sdkmath.Int `json:"remaining_principal"`
}
