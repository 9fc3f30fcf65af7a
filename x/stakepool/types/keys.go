package types

const (
	// ModuleName defines the module name
	ModuleName = "stakepool"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName
)

var (
	// PositionKeyPrefix is the prefix for per-account stake positions.
	PositionKeyPrefix = []byte{0x01}

	// ParamsKey is the key for storing module params.
	ParamsKey = []byte{0x02}

	// TotalStakedKey stores the aggregate staked principal.
	TotalStakedKey = []byte{0x03}
)
