package types

const (
	// ModuleName defines the module name
	ModuleName = "referral"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName

	// RootSentinel is the designated null parent terminating every
	// upline chain.
	RootSentinel = "hcf_root"
)

var (
	// EdgeKeyPrefix stores child -> parent referral edges.
	EdgeKeyPrefix = []byte{0x01}

	// StatsKeyPrefix stores per-account subtree statistics.
	StatsKeyPrefix = []byte{0x02}

	// ParamsKey is the key for storing module params.
	ParamsKey = []byte{0x03}
)
