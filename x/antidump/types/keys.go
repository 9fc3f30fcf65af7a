package types

const (
	// ModuleName defines the module name
	ModuleName = "antidump"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName
)

var (
	// ParamsKey is the key for storing module params.
	ParamsKey = []byte{0x01}

	// DayOpenKeyPrefix stores the recorded open price per UTC day.
	DayOpenKeyPrefix = []byte{0x02}
)
