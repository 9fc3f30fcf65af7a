package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

const (
	// ModuleName defines the module name
	ModuleName = "ranking"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName
)

var (
	// SettledKeyPrefix marks settled periods, keyed by period index.
	SettledKeyPrefix = []byte{0x01}

	// ParamsKey is the key for storing module params.
	ParamsKey = []byte{0x02}
)

var (
	// ErrAlreadySettled signals a repeat settlement of one period.
	// Settlement is strictly once per period; replays are rejected
	// without moving any value.
	ErrAlreadySettled = errors.New("ranking period already settled")

	// ErrUnknownMetric signals an unrecognized ranking metric.
	ErrUnknownMetric = errors.New("unknown ranking metric")
)

// Metric selects the scoreboard a settlement ranks by.
type Metric string

const (
	// MetricStake ranks accounts by staked principal.
	MetricStake Metric = "stake"

	// MetricCommunity ranks accounts by qualifying community volume.
	MetricCommunity Metric = "community"
)

// Validate checks the metric is one of the known scoreboards.
func (m Metric) Validate() error {
	switch m {
	case MetricStake, MetricCommunity:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownMetric, m)
}

// RankBand is one contiguous slice of the leaderboard. Ranks are
// 1-based and inclusive on both ends.
type RankBand struct {
	FromRank int `json:"from_rank"`
	ToRank   int `json:"to_rank"`

	// BonusRateBps is the bonus every account in the band earns on its
	// own metric value for the period.
	BonusRateBps ledgertypes.Rate `json:"bonus_rate_bps"`
}

// BandPayout reports one band's outcome in a settlement.
type BandPayout struct {
	FromRank     int              `json:"from_rank"`
	ToRank       int              `json:"to_rank"`
	BonusRateBps ledgertypes.Rate `json:"bonus_rate_bps"`
	Occupants    int              `json:"occupants"`
	Paid         sdkmath.Int      `json:"paid"`
}

// SettlementResult reports one period settlement.
type SettlementResult struct {
	Period      int64        `json:"period"`
	Metric      Metric       `json:"metric"`
	PoolBalance sdkmath.Int  `json:"pool_balance"`
	Ranked      int          `json:"ranked"`
	Bands       []BandPayout `json:"bands"`
	TotalPaid   sdkmath.Int  `json:"total_paid"`
}

// Params are the ranking parameters.
type Params struct {
	// PeriodSecs is the settlement period length.
	PeriodSecs int64 `json:"period_secs"`

	// Bands is the ascending, non-overlapping leaderboard split with
	// non-increasing bonus rates (a better rank never earns a lower
	// rate).
	Bands []RankBand `json:"bands"`
}

// DefaultParams returns the genesis ranking parameters: weekly periods
// and the 1-100 / 101-500 / 501-2000 band split.
func DefaultParams() Params {
	return Params{
		PeriodSecs: 7 * 86400,
		Bands: []RankBand{
			{FromRank: 1, ToRank: 100, BonusRateBps: 100},
			{FromRank: 101, ToRank: 500, BonusRateBps: 50},
			{FromRank: 501, ToRank: 2000, BonusRateBps: 30},
		},
	}
}

// ValidateParams checks period length and band shape.
func ValidateParams(p Params) error {
	if p.PeriodSecs <= 0 {
		return fmt.Errorf("period_secs must be positive, got %d", p.PeriodSecs)
	}
	if len(p.Bands) == 0 {
		return fmt.Errorf("at least one rank band is required")
	}
	prevTo := 0
	prevRate := ledgertypes.Rate(ledgertypes.BpsBase)
	for i, band := range p.Bands {
		if band.FromRank != prevTo+1 {
			return fmt.Errorf("band %d must start at rank %d, got %d", i, prevTo+1, band.FromRank)
		}
		if band.ToRank < band.FromRank {
			return fmt.Errorf("band %d ends before it starts (%d..%d)", i, band.FromRank, band.ToRank)
		}
		if err := band.BonusRateBps.Validate(); err != nil {
			return fmt.Errorf("band %d: %w", i, err)
		}
		if band.BonusRateBps == 0 {
			return fmt.Errorf("band %d bonus rate must be positive", i)
		}
		if band.BonusRateBps > prevRate {
			return fmt.Errorf("band %d bonus rate %d bps exceeds the previous band's %d bps",
				i, band.BonusRateBps, prevRate)
		}
		prevRate = band.BonusRateBps
		prevTo = band.ToRank
	}
	return nil
}

// GenesisState is the ranking module's exported state.
type GenesisState struct {
	Params         Params  `json:"params"`
	SettledPeriods []int64 `json:"settled_periods,omitempty"`
}

// DefaultGenesis returns the default genesis state.
func DefaultGenesis() *GenesisState {
	return &GenesisState{Params: DefaultParams()}
}

// Validate performs basic genesis sanity checks.
func (gs GenesisState) Validate() error {
	return ValidateParams(gs.Params)
}
