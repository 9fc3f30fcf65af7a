package types

const (
	// ModuleName defines the module name
	ModuleName = "ledger"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName

	// RouterKey defines the module's message routing key
	RouterKey = ModuleName
)

// Internal pool accounts. These are ordinary ledger accounts with
// reserved names; all of them are created tax-excluded at genesis.
const (
	// TreasuryPoolName receives the treasury share of every tax split
	// plus any burn amount redirected by the burn floor.
	TreasuryPoolName = "hcf_treasury"

	// LiquidityPoolName receives the liquidity-reserve share.
	LiquidityPoolName = "hcf_liquidity"

	// StakingRewardPoolName funds staking yield claims.
	StakingRewardPoolName = "hcf_staking_rewards"

	// NodeDividendPoolName accumulates the node share of taxes and fees.
	NodeDividendPoolName = "hcf_node_dividends"

	// RankingRewardPoolName funds periodic ranking settlements.
	RankingRewardPoolName = "hcf_ranking_rewards"

	// StakeVaultPoolName custodies staked principal.
	StakeVaultPoolName = "hcf_stake_vault"

	// NullAccount is the sentinel counterparty for mints and burns.
	NullAccount = "hcf_null"
)

// Denominations handled by the ledger.
const (
	// DenomHCF is the fixed-supply native token in its smallest unit.
	DenomHCF = "uhcf"

	// DenomStable is the stable-pegged settlement asset.
	DenomStable = "uusd"

	// DenomGas is the network gas asset used for withdrawal fees.
	DenomGas = "ugas"
)

var (
	// AccountKeyPrefix is the prefix for per-account records.
	AccountKeyPrefix = []byte{0x01}

	// ParamsKey is the key for storing module params.
	ParamsKey = []byte{0x02}

	// TotalSupplyKey stores the current uhcf total supply.
	TotalSupplyKey = []byte{0x03}

	// TotalBurnedKey stores the cumulative uhcf burned.
	TotalBurnedKey = []byte{0x04}
)
