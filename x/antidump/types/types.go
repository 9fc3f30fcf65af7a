package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// DropTier defines the response to one band of intraday price decline.
// Tiers are kept sorted ascending by threshold; the active tier is the
// highest whose threshold the measured drop meets.
type DropTier struct {
	// DropThresholdBps is the minimum open-to-current decline, in bps
	// of the open price, at which this tier activates.
	DropThresholdBps ledgertypes.Rate `json:"drop_threshold_bps"`

	// SlippageBonusBps widens sell slippage while the tier is active.
	SlippageBonusBps ledgertypes.Rate `json:"slippage_bonus_bps"`

	// BurnBonusBps is added to the burn share of the sell-tax split.
	BurnBonusBps ledgertypes.Rate `json:"burn_bonus_bps"`

	// NodeRewardBonusBps is added to the node share of the sell-tax split.
	NodeRewardBonusBps ledgertypes.Rate `json:"node_reward_bonus_bps"`

	// ProductionCutBps temporarily reduces staking accrual.
	ProductionCutBps ledgertypes.Rate `json:"production_cut_bps"`
}

// Params holds the ordered anti-dump tier table.
type Params struct {
	Tiers []DropTier `json:"tiers"`
}

// DefaultParams returns the 10/30/50% drop bands.
func DefaultParams() Params {
	return Params{
		Tiers: []DropTier{
			{
				DropThresholdBps:   1000, // 10% drop
				SlippageBonusBps:   500,
				BurnBonusBps:       500,
				NodeRewardBonusBps: 200,
				ProductionCutBps:   500,
			},
			{
				DropThresholdBps:   3000, // 30% drop
				SlippageBonusBps:   1500,
				BurnBonusBps:       1000,
				NodeRewardBonusBps: 500,
				ProductionCutBps:   1500,
			},
			{
				DropThresholdBps:   5000, // 50% drop
				SlippageBonusBps:   3000,
				BurnBonusBps:       2000,
				NodeRewardBonusBps: 1000,
				ProductionCutBps:   3000,
			},
		},
	}
}

// ValidateParams checks the tier table is ascending by threshold with
// strictly increasing bonus magnitudes.
func ValidateParams(p Params) error {
	if len(p.Tiers) == 0 {
		return fmt.Errorf("at least one drop tier required")
	}
	for i, tier := range p.Tiers {
		for name, r := range map[string]ledgertypes.Rate{
			"drop_threshold_bps":    tier.DropThresholdBps,
			"slippage_bonus_bps":    tier.SlippageBonusBps,
			"burn_bonus_bps":        tier.BurnBonusBps,
			"node_reward_bonus_bps": tier.NodeRewardBonusBps,
			"production_cut_bps":    tier.ProductionCutBps,
		} {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("tier %d %s: %w", i, name, err)
			}
		}
		if tier.DropThresholdBps == 0 {
			return fmt.Errorf("tier %d drop threshold must be positive", i)
		}
		if i == 0 {
			continue
		}
		prev := p.Tiers[i-1]
		if tier.DropThresholdBps <= prev.DropThresholdBps {
			return fmt.Errorf("tier %d threshold %d bps must exceed tier %d threshold %d bps",
				i, tier.DropThresholdBps, i-1, prev.DropThresholdBps)
		}
		if tier.BurnBonusBps <= prev.BurnBonusBps ||
			tier.NodeRewardBonusBps <= prev.NodeRewardBonusBps ||
			tier.SlippageBonusBps <= prev.SlippageBonusBps ||
			tier.ProductionCutBps <= prev.ProductionCutBps {
			return fmt.Errorf("tier %d bonuses must strictly exceed tier %d bonuses", i, i-1)
		}
	}
	return nil
}

// Snapshot captures one anti-dump evaluation. It is derived on demand
// and never persisted beyond the current evaluation window.
type Snapshot struct {
	OpenPrice    PricePoint       `json:"open_price"`
	CurrentPrice PricePoint       `json:"current_price"`
	DropBps      ledgertypes.Rate `json:"drop_bps"`

	// Active is nil when the drop is below the lowest tier threshold.
	Active *DropTier `json:"active,omitempty"`
}

// PricePoint is a two-sided reserve reading of the HCF/USD pair. The
// implied price is Stable/Base; keeping both sides lets comparisons use
// cross-multiplication instead of division.
type PricePoint struct {
	Base   string `json:"base"`
	Stable string `json:"stable"`
}

// NewPricePoint builds a price point from reserve integers.
func NewPricePoint(base, stable sdkmath.Int) PricePoint {
	return PricePoint{Base: base.String(), Stable: stable.String()}
}

// Reserves returns the integer reserve pair.
func (p PricePoint) Reserves() (base, stable sdkmath.Int, err error) {
	base, ok := sdkmath.NewIntFromString(p.Base)
	if !ok || !base.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("invalid base reserve %q", p.Base)
	}
	stable, ok = sdkmath.NewIntFromString(p.Stable)
	if !ok || stable.IsNegative() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("invalid stable reserve %q", p.Stable)
	}
	return base, stable, nil
}
