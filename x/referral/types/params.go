package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// MaxGenerations is the fixed depth of the commission cascade.
const MaxGenerations = 20

// TeamLevelEntry maps a qualification threshold pair to a level. The
// table is ascending; an account's level is the highest entry whose
// volume and direct-count minimums it meets.
type TeamLevelEntry struct {
	Level          int    `json:"level"`
	MinVolume      string `json:"min_volume"`
	MinDirectCount int    `json:"min_direct_count"`

	// RewardRateBps is the team-reward rate for the level and the cap
	// applied to generation payouts under burn-clipping.
	RewardRateBps ledgertypes.Rate `json:"reward_rate_bps"`

	// UnlockedGenerations is how deep into the cascade the level may
	// earn; payouts beyond it are burned.
	UnlockedGenerations int `json:"unlocked_generations"`
}

// MinVolumeInt returns the entry's volume threshold as an integer.
func (e TeamLevelEntry) MinVolumeInt() sdkmath.Int {
	value, _ := sdkmath.NewIntFromString(e.MinVolume)
	return value
}

// Params holds the referral module's governance parameters.
//
// The verification scripts that accompany the original deployment carry
// several mutually inconsistent copies of these tables; they are
// governance data here, and no single historical copy is authoritative.
type Params struct {
	// GenerationRates is the 20-entry non-increasing commission table.
	GenerationRates []ledgertypes.Rate `json:"generation_rates"`

	// TeamLevels is the ascending V1..V6 qualification table. Level 0
	// (unqualified) is implicit: zero team rate, BaseUnlockedGenerations.
	TeamLevels []TeamLevelEntry `json:"team_levels"`

	// BaseUnlockedGenerations is the cascade depth available to
	// unqualified accounts.
	BaseUnlockedGenerations int `json:"base_unlocked_generations"`

	// MaxGenerationCapBps caps any single generation payout rate for
	// unqualified uplines under burn-clipping.
	MaxGenerationCapBps ledgertypes.Rate `json:"max_generation_cap_bps"`
}

// DefaultParams returns the genesis referral tables:
// 20%,10%,5%x6,3%x7,2%x5 generation rates and six team levels.
func DefaultParams() Params {
	rates := []ledgertypes.Rate{2000, 1000}
	for i := 0; i < 6; i++ {
		rates = append(rates, 500)
	}
	for i := 0; i < 7; i++ {
		rates = append(rates, 300)
	}
	for i := 0; i < 5; i++ {
		rates = append(rates, 200)
	}

	return Params{
		GenerationRates: rates,
		TeamLevels: []TeamLevelEntry{
			{Level: 1, MinVolume: "10000", MinDirectCount: 2, RewardRateBps: 600, UnlockedGenerations: 5},
			{Level: 2, MinVolume: "100000", MinDirectCount: 4, RewardRateBps: 1200, UnlockedGenerations: 8},
			{Level: 3, MinVolume: "1000000", MinDirectCount: 6, RewardRateBps: 1800, UnlockedGenerations: 11},
			{Level: 4, MinVolume: "10000000", MinDirectCount: 8, RewardRateBps: 2400, UnlockedGenerations: 14},
			{Level: 5, MinVolume: "100000000", MinDirectCount: 10, RewardRateBps: 3000, UnlockedGenerations: 17},
			{Level: 6, MinVolume: "1000000000", MinDirectCount: 12, RewardRateBps: 3600, UnlockedGenerations: MaxGenerations},
		},
		BaseUnlockedGenerations: 2,
		MaxGenerationCapBps:     2000,
	}
}

// ValidateParams checks both tables for shape and monotonicity.
func ValidateParams(p Params) error {
	if len(p.GenerationRates) != MaxGenerations {
		return fmt.Errorf("generation rate table must have exactly %d entries, got %d",
			MaxGenerations, len(p.GenerationRates))
	}
	for i, rate := range p.GenerationRates {
		if err := rate.Validate(); err != nil {
			return fmt.Errorf("generation %d rate: %w", i, err)
		}
		if i > 0 && rate > p.GenerationRates[i-1] {
			return fmt.Errorf("generation rates must be non-increasing: generation %d rate %d exceeds generation %d rate %d",
				i, rate, i-1, p.GenerationRates[i-1])
		}
	}
	if p.GenerationRates[0] == 0 {
		return fmt.Errorf("generation 0 rate must be positive")
	}

	if len(p.TeamLevels) == 0 {
		return fmt.Errorf("at least one team level required")
	}
	for i, entry := range p.TeamLevels {
		if entry.Level != i+1 {
			return fmt.Errorf("team level entries must be numbered 1..%d in order, entry %d has level %d",
				len(p.TeamLevels), i, entry.Level)
		}
		if _, err := ledgertypes.ParsePositiveInt(entry.MinVolume, fmt.Sprintf("level %d min_volume", entry.Level)); err != nil {
			return err
		}
		if entry.MinDirectCount < 1 {
			return fmt.Errorf("level %d min_direct_count must be >= 1, got %d", entry.Level, entry.MinDirectCount)
		}
		if err := entry.RewardRateBps.Validate(); err != nil {
			return fmt.Errorf("level %d reward rate: %w", entry.Level, err)
		}
		if entry.UnlockedGenerations < 1 || entry.UnlockedGenerations > MaxGenerations {
			return fmt.Errorf("level %d unlocked_generations must be in [1, %d], got %d",
				entry.Level, MaxGenerations, entry.UnlockedGenerations)
		}
		if i == 0 {
			continue
		}
		prev := p.TeamLevels[i-1]
		if !entry.MinVolumeInt().GT(prev.MinVolumeInt()) ||
			entry.MinDirectCount <= prev.MinDirectCount ||
			entry.RewardRateBps <= prev.RewardRateBps ||
			entry.UnlockedGenerations < prev.UnlockedGenerations {
			return fmt.Errorf("team level %d thresholds must strictly exceed level %d", entry.Level, prev.Level)
		}
	}

	if p.BaseUnlockedGenerations < 0 || p.BaseUnlockedGenerations > MaxGenerations {
		return fmt.Errorf("base_unlocked_generations must be in [0, %d], got %d",
			MaxGenerations, p.BaseUnlockedGenerations)
	}
	if err := p.MaxGenerationCapBps.Validate(); err != nil {
		return fmt.Errorf("max_generation_cap_bps: %w", err)
	}
	return nil
}

// LevelFor returns the highest team level whose thresholds the given
// qualifying volume and direct count meet; zero when none do.
func (p Params) LevelFor(qualifyingVolume sdkmath.Int, directCount int) TeamLevelEntry {
	best := TeamLevelEntry{
		Level:               0,
		RewardRateBps:       0,
		UnlockedGenerations: p.BaseUnlockedGenerations,
	}
	for _, entry := range p.TeamLevels {
		if qualifyingVolume.GTE(entry.MinVolumeInt()) && directCount >= entry.MinDirectCount {
			best = entry
		}
	}
	return best
}

// GenerationCapFor returns the burn-clipping cap for an upline holding
// the given level entry at the given generation depth (0-based).
func (p Params) GenerationCapFor(entry TeamLevelEntry, generation int) ledgertypes.Rate {
	if generation >= entry.UnlockedGenerations {
		return 0
	}
	if entry.Level == 0 {
		return p.MaxGenerationCapBps
	}
	return entry.RewardRateBps
}
