package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
	sdkmath "cosmossdk.io/math"
	"cosmossdk.io/store/metrics"
	"cosmossdk.io/store/rootmulti"
	storetypes "cosmossdk.io/store/types"
	tmproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/runtime"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"

	antidumpkeeper "github.com/hcfprotocol/hcfchain/x/antidump/keeper"
	antidumptypes "github.com/hcfprotocol/hcfchain/x/antidump/types"
	ledgerkeeper "github.com/hcfprotocol/hcfchain/x/ledger/keeper"
	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
	nodekeeper "github.com/hcfprotocol/hcfchain/x/node/keeper"
	nodetypes "github.com/hcfprotocol/hcfchain/x/node/types"
	rankingkeeper "github.com/hcfprotocol/hcfchain/x/ranking/keeper"
	rankingtypes "github.com/hcfprotocol/hcfchain/x/ranking/types"
	referralkeeper "github.com/hcfprotocol/hcfchain/x/referral/keeper"
	referraltypes "github.com/hcfprotocol/hcfchain/x/referral/types"
	stakepoolkeeper "github.com/hcfprotocol/hcfchain/x/stakepool/keeper"
	stakepooltypes "github.com/hcfprotocol/hcfchain/x/stakepool/types"
)

// DefaultAuthority is the governance account permitted to change module
// parameters.
const DefaultAuthority = "hcf_governance"

// Cross-module wiring is by interface; these pin the contracts at
// compile time.
var (
	_ ledgerkeeper.AntiDumpSource         = (*antidumpkeeper.Keeper)(nil)
	_ referralkeeper.LedgerKeeper         = (*ledgerkeeper.Keeper)(nil)
	_ stakepoolkeeper.LedgerKeeper        = (*ledgerkeeper.Keeper)(nil)
	_ stakepoolkeeper.ReferralHook        = (*referralkeeper.Keeper)(nil)
	_ stakepoolkeeper.ProductionCutSource = (*antidumpkeeper.Keeper)(nil)
	_ nodekeeper.LedgerKeeper             = (*ledgerkeeper.Keeper)(nil)
	_ nodekeeper.StakeSource              = (*stakepoolkeeper.Keeper)(nil)
	_ rankingkeeper.LedgerKeeper          = (*ledgerkeeper.Keeper)(nil)
	_ rankingkeeper.StakeSource           = (*stakepoolkeeper.Keeper)(nil)
	_ rankingkeeper.CommunitySource       = (*referralkeeper.Keeper)(nil)
)

// GenesisDoc aggregates every module's genesis state.
type GenesisDoc struct {
	Ledger    *ledgertypes.GenesisState    `json:"ledger"`
	AntiDump  *antidumptypes.GenesisState  `json:"antidump"`
	StakePool *stakepooltypes.GenesisState `json:"stakepool"`
	Referral  *referraltypes.GenesisState  `json:"referral"`
	Node      *nodetypes.GenesisState      `json:"node"`
	Ranking   *rankingtypes.GenesisState   `json:"ranking"`
}

// DefaultGenesisDoc returns every module's default genesis.
func DefaultGenesisDoc() *GenesisDoc {
	return &GenesisDoc{
		Ledger:    ledgertypes.DefaultGenesis(),
		AntiDump:  antidumptypes.DefaultGenesis(),
		StakePool: stakepooltypes.DefaultGenesis(),
		Referral:  referraltypes.DefaultGenesis(),
		Node:      nodetypes.DefaultGenesis(),
		Ranking:   rankingtypes.DefaultGenesis(),
	}
}

// Config carries engine construction options.
type Config struct {
	// Authority is the parameter-change account; DefaultAuthority when
	// empty.
	Authority string

	// ChainID tags every context; informational only.
	ChainID string

	// DB is the backing store; an in-memory DB when nil.
	DB dbm.DB

	// Oracle supplies swap-pair reserves for the anti-dump controller.
	// The controller fails open when nil.
	Oracle antidumpkeeper.PriceOracle

	// Clock supplies block time; time.Now in UTC when nil.
	Clock func() time.Time

	Logger log.Logger
}

// Engine hosts all six module keepers over one committed store and
// serializes every mutating operation behind a single writer lock.
// Reads taken between operations always observe fully settled state.
type Engine struct {
	mu sync.Mutex

	cms     storetypes.CommitMultiStore
	logger  log.Logger
	chainID string
	clock   func() time.Time
	height  int64

	Ledger    ledgerkeeper.Keeper
	AntiDump  antidumpkeeper.Keeper
	StakePool stakepoolkeeper.Keeper
	Referral  referralkeeper.Keeper
	Node      nodekeeper.Keeper
	Ranking   rankingkeeper.Keeper
}

// NewEngine constructs and wires the full module set.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Authority == "" {
		cfg.Authority = DefaultAuthority
	}
	if cfg.DB == nil {
		cfg.DB = dbm.NewMemDB()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	keys := storetypes.NewKVStoreKeys(
		ledgertypes.StoreKey,
		antidumptypes.StoreKey,
		stakepooltypes.StoreKey,
		referraltypes.StoreKey,
		nodetypes.StoreKey,
		rankingtypes.StoreKey,
	)

	cms := rootmulti.NewStore(cfg.DB, cfg.Logger, metrics.NoOpMetrics{})
	for _, key := range keys {
		cms.MountStoreWithDB(key, storetypes.StoreTypeIAVL, nil)
	}
	if err := cms.LoadLatestVersion(); err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	registry := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(registry)
	cdc := codec.NewProtoCodec(registry)

	e := &Engine{
		cms:     cms,
		logger:  cfg.Logger,
		chainID: cfg.ChainID,
		clock:   cfg.Clock,
		height:  cms.LatestVersion(),
	}
	e.Ledger = ledgerkeeper.NewKeeper(cdc, runtime.NewKVStoreService(keys[ledgertypes.StoreKey]), cfg.Authority)
	e.AntiDump = antidumpkeeper.NewKeeper(runtime.NewKVStoreService(keys[antidumptypes.StoreKey]), cfg.Authority)
	e.StakePool = stakepoolkeeper.NewKeeper(runtime.NewKVStoreService(keys[stakepooltypes.StoreKey]), cfg.Authority)
	e.Referral = referralkeeper.NewKeeper(runtime.NewKVStoreService(keys[referraltypes.StoreKey]), cfg.Authority)
	e.Node = nodekeeper.NewKeeper(runtime.NewKVStoreService(keys[nodetypes.StoreKey]), cfg.Authority)
	e.Ranking = rankingkeeper.NewKeeper(runtime.NewKVStoreService(keys[rankingtypes.StoreKey]), cfg.Authority)

	if cfg.Oracle != nil {
		e.AntiDump.SetPriceOracle(cfg.Oracle)
	}
	e.Ledger.SetAntiDumpSource(&e.AntiDump)
	e.Referral.SetLedgerKeeper(&e.Ledger)
	e.StakePool.SetLedgerKeeper(&e.Ledger)
	e.StakePool.SetReferralHook(&e.Referral)
	e.StakePool.SetProductionCutSource(&e.AntiDump)
	e.Node.SetLedgerKeeper(&e.Ledger)
	e.Node.SetStakeSource(&e.StakePool)
	e.Ranking.SetLedgerKeeper(&e.Ledger)
	e.Ranking.SetStakeSource(&e.StakePool)
	e.Ranking.SetCommunitySource(&e.Referral)

	return e, nil
}

// InitGenesis seeds every module. Call exactly once on a fresh store.
func (e *Engine) InitGenesis(doc *GenesisDoc) error {
	if doc == nil {
		doc = DefaultGenesisDoc()
	}
	return e.execute("init_genesis", func(ctx sdk.Context) error {
		if err := e.Ledger.InitGenesis(ctx, doc.Ledger); err != nil {
			return fmt.Errorf("ledger genesis: %w", err)
		}
		if err := e.AntiDump.InitGenesis(ctx, doc.AntiDump); err != nil {
			return fmt.Errorf("antidump genesis: %w", err)
		}
		if err := e.StakePool.InitGenesis(ctx, doc.StakePool); err != nil {
			return fmt.Errorf("stakepool genesis: %w", err)
		}
		if err := e.Referral.InitGenesis(ctx, doc.Referral); err != nil {
			return fmt.Errorf("referral genesis: %w", err)
		}
		if err := e.Node.InitGenesis(ctx, doc.Node); err != nil {
			return fmt.Errorf("node genesis: %w", err)
		}
		if err := e.Ranking.InitGenesis(ctx, doc.Ranking); err != nil {
			return fmt.Errorf("ranking genesis: %w", err)
		}
		return nil
	})
}

// ExportGenesis dumps every module's state.
func (e *Engine) ExportGenesis() (*GenesisDoc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := e.newContext()

	doc := &GenesisDoc{}
	var err error
	if doc.Ledger, err = e.Ledger.ExportGenesis(ctx); err != nil {
		return nil, err
	}
	if doc.AntiDump, err = e.AntiDump.ExportGenesis(ctx); err != nil {
		return nil, err
	}
	if doc.StakePool, err = e.StakePool.ExportGenesis(ctx); err != nil {
		return nil, err
	}
	if doc.Referral, err = e.Referral.ExportGenesis(ctx); err != nil {
		return nil, err
	}
	if doc.Node, err = e.Node.ExportGenesis(ctx); err != nil {
		return nil, err
	}
	if doc.Ranking, err = e.Ranking.ExportGenesis(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// Transfer moves uhcf with tax routing.
func (e *Engine) Transfer(from, to string, amount sdkmath.Int, kind ledgertypes.TransferKind) (*ledgertypes.TransferResult, error) {
	var result *ledgertypes.TransferResult
	err := e.execute("transfer", func(ctx sdk.Context) error {
		var err error
		result, err = e.Ledger.Transfer(ctx, from, to, amount, kind)
		return err
	})
	return result, err
}

// Stake locks principal into the staking engine.
func (e *Engine) Stake(owner string, amount sdkmath.Int, isLP bool, lockDays int64) (*stakepooltypes.StakePosition, error) {
	var position *stakepooltypes.StakePosition
	err := e.execute("stake", func(ctx sdk.Context) error {
		var err error
		position, err = e.StakePool.Stake(ctx, owner, amount, isLP, lockDays)
		return err
	})
	return position, err
}

// Claim settles accrued staking rewards.
func (e *Engine) Claim(owner string) (*stakepooltypes.ClaimResult, error) {
	var result *stakepooltypes.ClaimResult
	err := e.execute("claim", func(ctx sdk.Context) error {
		var err error
		result, err = e.StakePool.Claim(ctx, owner)
		return err
	})
	return result, err
}

// Compound folds pending rewards into principal.
func (e *Engine) Compound(owner string) (*stakepooltypes.StakePosition, error) {
	var position *stakepooltypes.StakePosition
	err := e.execute("compound", func(ctx sdk.Context) error {
		var err error
		position, err = e.StakePool.Compound(ctx, owner)
		return err
	})
	return position, err
}

// Unstake withdraws principal.
func (e *Engine) Unstake(owner string, amount sdkmath.Int) (*stakepooltypes.UnstakeResult, error) {
	var result *stakepooltypes.UnstakeResult
	err := e.execute("unstake", func(ctx sdk.Context) error {
		var err error
		result, err = e.StakePool.Unstake(ctx, owner, amount)
		return err
	})
	return result, err
}

// BindReferrer writes the one-shot referral edge.
func (e *Engine) BindReferrer(child, parent string) error {
	return e.execute("bind_referrer", func(ctx sdk.Context) error {
		return e.Referral.BindReferrer(ctx, child, parent)
	})
}

// ApplyNode claims a registry slot.
func (e *Engine) ApplyNode(addr string) (*nodetypes.NodeRecord, error) {
	var record *nodetypes.NodeRecord
	err := e.execute("node_apply", func(ctx sdk.Context) error {
		var err error
		record, err = e.Node.Apply(ctx, addr)
		return err
	})
	return record, err
}

// ActivateNode flips a slot to dividend-earning.
func (e *Engine) ActivateNode(addr string) (*nodetypes.NodeRecord, error) {
	var record *nodetypes.NodeRecord
	err := e.execute("node_activate", func(ctx sdk.Context) error {
		var err error
		record, err = e.Node.Activate(ctx, addr)
		return err
	})
	return record, err
}

// TransferNode reassigns a registry slot to a new owner.
func (e *Engine) TransferNode(owner, newOwner string, slotIndex int) (*nodetypes.NodeRecord, error) {
	var record *nodetypes.NodeRecord
	err := e.execute("node_transfer", func(ctx sdk.Context) error {
		var err error
		record, err = e.Node.TransferSlot(ctx, owner, newOwner, slotIndex)
		return err
	})
	return record, err
}

// DistributeNodeDividends splits the node pool across active slots.
func (e *Engine) DistributeNodeDividends() (*nodetypes.DividendResult, error) {
	var result *nodetypes.DividendResult
	err := e.execute("node_dividends", func(ctx sdk.Context) error {
		var err error
		result, err = e.Node.DistributeDividends(ctx)
		return err
	})
	return result, err
}

// SettleRanking settles the current period on the given metric.
func (e *Engine) SettleRanking(metric rankingtypes.Metric) (*rankingtypes.SettlementResult, error) {
	var result *rankingtypes.SettlementResult
	err := e.execute("ranking_settle", func(ctx sdk.Context) error {
		period, err := e.Ranking.CurrentPeriod(ctx)
		if err != nil {
			return err
		}
		result, err = e.Ranking.Settle(ctx, period, metric)
		return err
	})
	return result, err
}

// FundPool moves uhcf from an account into a protocol pool untaxed.
func (e *Engine) FundPool(from, pool string, amount sdkmath.Int) error {
	return e.execute("fund_pool", func(ctx sdk.Context) error {
		return e.Ledger.FundPool(ctx, from, pool, amount)
	})
}

// MintAsset credits a side asset (uusd, ugas); uhcf supply is fixed and
// cannot be minted.
func (e *Engine) MintAsset(to, denom string, amount sdkmath.Int) error {
	return e.execute("mint_asset", func(ctx sdk.Context) error {
		return e.Ledger.MintAsset(ctx, to, denom, amount)
	})
}

// Do runs an arbitrary mutating function under the writer lock with the
// same all-or-nothing commit as the named operations. Parameter updates
// go through here.
func (e *Engine) Do(name string, fn func(ctx context.Context) error) error {
	return e.execute(name, func(ctx sdk.Context) error {
		return fn(ctx)
	})
}

// Balance reads an account's uhcf balance.
func (e *Engine) Balance(addr string) sdkmath.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Ledger.PoolBalance(e.newContext(), addr)
}

// PendingReward previews an owner's accrued reward without mutating
// anything.
func (e *Engine) PendingReward(owner string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.StakePool.PreviewPendingReward(e.newContext(), owner)
}

// View runs a read-only function against settled state.
func (e *Engine) View(fn func(ctx context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.newContext())
}

// execute runs one mutating operation atomically: the operation writes
// into a cache layer that is flattened and committed only on success, so
// a failed operation leaves no partial state behind.
func (e *Engine) execute(name string, fn func(ctx sdk.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.height++
	ctx := e.newContext()
	cacheCtx, write := ctx.CacheContext()
	if err := fn(cacheCtx); err != nil {
		e.height--
		e.logger.Debug("operation rejected", "op", name, "err", err)
		return err
	}
	write()
	e.cms.Commit()
	return nil
}

func (e *Engine) newContext() sdk.Context {
	header := tmproto.Header{
		ChainID: e.chainID,
		Height:  e.height,
		Time:    e.clock(),
	}
	return sdk.NewContext(e.cms, header, false, e.logger)
}
