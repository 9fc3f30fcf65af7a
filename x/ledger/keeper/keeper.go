package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cosmossdk.io/collections"
	"cosmossdk.io/core/store"
	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// AntiDumpSource supplies the active sell-tax bonus points. It is wired
// after construction because the anti-dump keeper is built later in the
// app wiring order.
type AntiDumpSource interface {
	SellBonuses(ctx context.Context) (burnBonus, nodeBonus types.Rate)
}

// Keeper owns every uhcf/uusd/ugas balance, the supply and burn
// counters, and the per-transfer tax routing. All other engine modules
// move value exclusively through this keeper.
type Keeper struct {
	cdc          codec.Codec
	storeService store.KVStoreService
	authority    string

	antiDumpSource AntiDumpSource

	metrics *ModuleMetrics

	Accounts    collections.Map[string, string]
	Params      collections.Item[string]
	TotalSupply collections.Item[string]
	TotalBurned collections.Item[string]
}

// NewKeeper creates a new ledger keeper.
func NewKeeper(
	cdc codec.Codec,
	storeService store.KVStoreService,
	authority string,
) Keeper {
	sb := collections.NewSchemaBuilder(storeService)

	return Keeper{
		cdc:          cdc,
		storeService: storeService,
		authority:    authority,
		metrics:      NewModuleMetrics(),
		Accounts: collections.NewMap(
			sb,
			collections.NewPrefix(types.AccountKeyPrefix),
			"accounts",
			collections.StringKey,
			collections.StringValue,
		),
		Params: collections.NewItem(
			sb,
			collections.NewPrefix(types.ParamsKey),
			"params",
			collections.StringValue,
		),
		TotalSupply: collections.NewItem(
			sb,
			collections.NewPrefix(types.TotalSupplyKey),
			"total_supply",
			collections.StringValue,
		),
		TotalBurned: collections.NewItem(
			sb,
			collections.NewPrefix(types.TotalBurnedKey),
			"total_burned",
			collections.StringValue,
		),
	}
}

// SetAntiDumpSource wires the anti-dump tier source used by sell taxes.
func (k *Keeper) SetAntiDumpSource(source AntiDumpSource) {
	k.antiDumpSource = source
}

// GetAuthority returns the module's governance authority address.
func (k Keeper) GetAuthority() string {
	return k.authority
}

// Metrics returns the in-process module metrics (may be nil in tests).
func (k Keeper) Metrics() *ModuleMetrics {
	return k.metrics
}

// GetParams returns the current ledger parameters.
func (k Keeper) GetParams(ctx context.Context) (types.Params, error) {
	raw, err := k.Params.Get(ctx)
	if err != nil {
		return types.DefaultParams(), nil
	}
	var params types.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return types.Params{}, fmt.Errorf("decode ledger params: %w", err)
	}
	return params, nil
}

// SetParams stores validated parameters without an authority check. It
// is used by genesis initialization; governance updates go through
// UpdateParams.
func (k Keeper) SetParams(ctx context.Context, params types.Params) error {
	if err := types.ValidateParams(params); err != nil {
		return err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return k.Params.Set(ctx, string(raw))
}

// UpdateParams replaces the parameter set atomically after verifying the
// caller is the module authority.
func (k Keeper) UpdateParams(ctx context.Context, caller string, params types.Params) error {
	if caller != k.authority {
		return fmt.Errorf("%w: got %s, expected %s", types.ErrUnauthorizedParameterChange, caller, k.authority)
	}
	if err := k.SetParams(ctx, params); err != nil {
		return err
	}
	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"ledger_params_updated",
			sdk.NewAttribute("authority", caller),
		))
	}
	return nil
}

// GetAccount loads an account record, or ErrUnknownAccount.
func (k Keeper) GetAccount(ctx context.Context, addr string) (*types.Account, error) {
	raw, err := k.Accounts.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownAccount, addr)
	}
	var acct types.Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", addr, err)
	}
	return &acct, nil
}

// getOrCreateAccount returns the account record, creating an empty one
// on first reference. Accounts are never deleted afterwards.
func (k Keeper) getOrCreateAccount(ctx context.Context, addr string) (*types.Account, error) {
	acct, err := k.GetAccount(ctx, addr)
	if err == nil {
		return acct, nil
	}
	created := types.NewAccount(addr)
	return &created, nil
}

func (k Keeper) setAccount(ctx context.Context, acct *types.Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	return k.Accounts.Set(ctx, acct.Address, string(raw))
}

// SetTaxExcluded toggles an account's tax exemption. Authority-gated:
// exemption also bypasses the dust floor.
func (k Keeper) SetTaxExcluded(ctx context.Context, caller, addr string, excluded bool) error {
	if caller != k.authority {
		return fmt.Errorf("%w: got %s, expected %s", types.ErrUnauthorizedParameterChange, caller, k.authority)
	}
	acct, err := k.getOrCreateAccount(ctx, addr)
	if err != nil {
		return err
	}
	acct.ExcludedFromTax = excluded
	return k.setAccount(ctx, acct)
}

// BalanceOf returns addr's balance for denom; zero for unknown accounts.
func (k Keeper) BalanceOf(ctx context.Context, addr, denom string) sdkmath.Int {
	acct, err := k.GetAccount(ctx, addr)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return acct.BalanceOf(denom)
}

// SupplyOf returns the current uhcf total supply.
func (k Keeper) SupplyOf(ctx context.Context) sdkmath.Int {
	return k.counter(ctx, k.TotalSupply)
}

// BurnedTotal returns the cumulative uhcf burned.
func (k Keeper) BurnedTotal(ctx context.Context) sdkmath.Int {
	return k.counter(ctx, k.TotalBurned)
}

func (k Keeper) counter(ctx context.Context, item collections.Item[string]) sdkmath.Int {
	raw, err := item.Get(ctx)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	value, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return value
}

func (k Keeper) setCounter(ctx context.Context, item collections.Item[string], value sdkmath.Int) error {
	return item.Set(ctx, value.String())
}

// RecordClaim stamps the account's last claim time. Called by the
// staking engine inside the same atomic step as the payout.
func (k Keeper) RecordClaim(ctx context.Context, addr string, at time.Time) error {
	acct, err := k.getOrCreateAccount(ctx, addr)
	if err != nil {
		return err
	}
	acct.LastClaimUnix = at.Unix()
	return k.setAccount(ctx, acct)
}

// InitGenesis seeds params, mints the fixed supply to the null account,
// funds the genesis accounts, and marks every protocol pool tax-exempt.
func (k Keeper) InitGenesis(ctx context.Context, gs *types.GenesisState) error {
	if gs == nil {
		gs = types.DefaultGenesis()
	}
	if err := gs.Validate(); err != nil {
		return err
	}
	if err := k.SetParams(ctx, gs.Params); err != nil {
		return err
	}

	supply, err := types.ParsePositiveInt(gs.TotalSupply, "total_supply")
	if err != nil {
		return err
	}
	if err := k.setCounter(ctx, k.TotalSupply, supply); err != nil {
		return err
	}
	burned := sdkmath.ZeroInt()
	if gs.TotalBurned != "" {
		value, ok := sdkmath.NewIntFromString(gs.TotalBurned)
		if !ok || value.IsNegative() {
			return fmt.Errorf("invalid total_burned %q", gs.TotalBurned)
		}
		burned = value
	}
	if err := k.setCounter(ctx, k.TotalBurned, burned); err != nil {
		return err
	}

	// The undistributed remainder of the fixed supply sits in the null
	// account until genesis accounts are funded below. An exported null
	// account (import path) is written as-is and not counted against the
	// remainder.
	remaining := supply
	nullImported := false
	for _, acct := range gs.Accounts {
		acctCopy := acct
		if acctCopy.Address == types.NullAccount {
			nullImported = true
			acctCopy.ExcludedFromTax = true
		} else {
			remaining = remaining.Sub(acctCopy.BalanceOf(types.DenomHCF))
		}
		if err := k.setAccount(ctx, &acctCopy); err != nil {
			return err
		}
	}
	if remaining.IsNegative() {
		return fmt.Errorf("genesis accounts allocate more uhcf than total_supply %s", gs.TotalSupply)
	}

	if !nullImported {
		null := types.NewAccount(types.NullAccount)
		null.ExcludedFromTax = true
		null.SetBalance(types.DenomHCF, remaining)
		if err := k.setAccount(ctx, &null); err != nil {
			return err
		}
	}

	for _, pool := range []string{
		types.TreasuryPoolName,
		types.LiquidityPoolName,
		types.StakingRewardPoolName,
		types.NodeDividendPoolName,
		types.RankingRewardPoolName,
		types.StakeVaultPoolName,
	} {
		acct, err := k.getOrCreateAccount(ctx, pool)
		if err != nil {
			return err
		}
		acct.ExcludedFromTax = true
		if err := k.setAccount(ctx, acct); err != nil {
			return err
		}
	}
	return nil
}

// ExportGenesis exports the module's state.
func (k Keeper) ExportGenesis(ctx context.Context) (*types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []types.Account
	err = k.Accounts.Walk(ctx, nil, func(_ string, raw string) (bool, error) {
		var acct types.Account
		if err := json.Unmarshal([]byte(raw), &acct); err != nil {
			return false, err
		}
		accounts = append(accounts, acct)
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	return &types.GenesisState{
		Params:      params,
		TotalSupply: k.SupplyOf(ctx).String(),
		TotalBurned: k.BurnedTotal(ctx).String(),
		Accounts:    accounts,
	}, nil
}

func unwrapSDKContext(ctx context.Context) (sdk.Context, bool) {
	if ctx == nil {
		return sdk.Context{}, false
	}
	if sdkCtx, ok := ctx.(sdk.Context); ok {
		return sdkCtx, true
	}
	if val := ctx.Value(sdk.SdkContextKey); val != nil {
		if sdkCtx, ok := val.(sdk.Context); ok {
			return sdkCtx, true
		}
	}
	return sdk.Context{}, false
}

func contextNow(ctx context.Context) (sdk.Context, time.Time) {
	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		return sdkCtx, sdkCtx.BlockTime()
	}
	return sdk.Context{}, time.Now().UTC()
}

func emitEventIfPossible(ctx sdk.Context, event sdk.Event) {
	if em := ctx.EventManager(); em != nil {
		em.EmitEvent(event)
	}
}
