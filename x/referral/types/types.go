package types

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// ErrEdgeAlreadyBound signals an attempt to rebind an account's
// referrer. Edges are written exactly once and immutable thereafter,
// which rules out cycles by construction.
var ErrEdgeAlreadyBound = errors.New("referrer already bound")

// ErrSelfReferral signals an account naming itself as referrer.
var ErrSelfReferral = errors.New("account cannot refer itself")

// ErrCircularReferral signals a bind whose parent is a descendant of
// the child, which would close a cycle in the graph.
var ErrCircularReferral = errors.New("referrer is a descendant of the account")

// ReferralStats is the per-account subtree record the team level is
// derived from. Volumes are decimal strings in uhcf.
type ReferralStats struct {
	Address string `json:"address"`

	// DirectCount is the number of directly referred accounts.
	DirectCount int `json:"direct_count"`

	// PersonalVolume is the account's own cumulative deposit volume.
	PersonalVolume string `json:"personal_volume"`

	// TeamVolume is the cumulative deposit volume of the whole subtree,
	// the account's own volume excluded.
	TeamVolume string `json:"team_volume"`

	// ChildLineVolumes tracks each direct child's full line volume so
	// the largest line can be excluded from qualification.
	ChildLineVolumes map[string]string `json:"child_line_volumes,omitempty"`

	// TeamLevel is the derived V-level (0 = unqualified, 1..6 = V1..V6).
	TeamLevel int `json:"team_level"`
}

// NewReferralStats returns an empty stats record for addr.
func NewReferralStats(addr string) ReferralStats {
	return ReferralStats{
		Address:          addr,
		PersonalVolume:   "0",
		TeamVolume:       "0",
		ChildLineVolumes: make(map[string]string),
	}
}

// PersonalVolumeInt returns the personal volume as an integer.
func (s ReferralStats) PersonalVolumeInt() sdkmath.Int { return parseIntOrZero(s.PersonalVolume) }

// TeamVolumeInt returns the team volume as an integer.
func (s ReferralStats) TeamVolumeInt() sdkmath.Int { return parseIntOrZero(s.TeamVolume) }

// ChildLineVolumeInt returns one child line's volume as an integer.
func (s ReferralStats) ChildLineVolumeInt(child string) sdkmath.Int {
	return parseIntOrZero(s.ChildLineVolumes[child])
}

// QualifyingVolume is the team volume with the single largest child
// line excluded — the anti-manipulation basis for team levels.
func (s ReferralStats) QualifyingVolume() sdkmath.Int {
	largest := sdkmath.ZeroInt()
	for child := range s.ChildLineVolumes {
		if v := s.ChildLineVolumeInt(child); v.GT(largest) {
			largest = v
		}
	}
	qualifying := s.TeamVolumeInt().Sub(largest)
	if qualifying.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return qualifying
}

func parseIntOrZero(raw string) sdkmath.Int {
	value, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return value
}

// GenerationPayout is one generation's audit entry in a cascade.
type GenerationPayout struct {
	Generation   int              `json:"generation"`
	Upline       string           `json:"upline"`
	TableRateBps ledgertypes.Rate `json:"table_rate_bps"`
	PaidRateBps  ledgertypes.Rate `json:"paid_rate_bps"`
	Payout       sdkmath.Int      `json:"payout"`

	// Clipped is the burned portion of the table-rate entitlement the
	// upline did not qualify for.
	Clipped sdkmath.Int `json:"clipped"`
}

// TeamPayout is one upline's team-level differential entry.
type TeamPayout struct {
	Upline  string           `json:"upline"`
	Level   int              `json:"level"`
	RateBps ledgertypes.Rate `json:"rate_bps"`
	Payout  sdkmath.Int      `json:"payout"`
}

// CascadeResult reports every amount moved by one qualifying event.
type CascadeResult struct {
	Account     string             `json:"account"`
	EventAmount sdkmath.Int        `json:"event_amount"`
	Generations []GenerationPayout `json:"generations,omitempty"`
	TeamPayouts []TeamPayout       `json:"team_payouts,omitempty"`
	TotalPaid   sdkmath.Int        `json:"total_paid"`
	TotalBurned sdkmath.Int        `json:"total_burned"`
}
