package types

const (
	// ModuleName defines the module name
	ModuleName = "node"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName
)

var (
	// NodeKeyPrefix is the prefix for per-account node records.
	NodeKeyPrefix = []byte{0x01}

	// ParamsKey is the key for storing module params.
	ParamsKey = []byte{0x02}

	// NextSlotKey stores the next slot index to hand out.
	NextSlotKey = []byte{0x03}
)
