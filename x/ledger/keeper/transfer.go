package keeper

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// Transfer moves uhcf between two accounts, collecting and routing the
// tax appropriate for the given kind. It is the single entry point for
// every value-moving action in the engine.
//
// Tax routing rules:
//   - Tax-exempt senders and recipients move the gross amount untaxed.
//   - For sells, the anti-dump tier's bonus points are added to the burn
//     and node shares and taken from treasury, then liquidity.
//   - The treasury, liquidity, and node shares truncate; the burn share
//     is the exact remainder, so the four shares always sum to the tax.
//   - Burns that would push total supply below the burn floor are
//     redirected to the treasury to preserve conservation.
func (k Keeper) Transfer(
	ctx context.Context,
	from, to string,
	amount sdkmath.Int,
	kind types.TransferKind,
) (*types.TransferResult, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("transfer requires both sender and recipient")
	}
	if from == to {
		return nil, fmt.Errorf("transfer sender and recipient must differ")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive, got %s", amount)
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}

	sender, err := k.GetAccount(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: sender %s holds no balance", types.ErrInsufficientBalance, from)
	}
	balance := sender.BalanceOf(types.DenomHCF)
	if balance.LT(amount) {
		return nil, fmt.Errorf("%w: %s has %s uhcf, needs %s",
			types.ErrInsufficientBalance, from, balance, amount)
	}

	dustFloor := params.DustFloorInt()
	if !sender.ExcludedFromTax && balance.Sub(amount).LT(dustFloor) {
		return nil, fmt.Errorf("%w: %s may spend at most %s uhcf (dust floor %s)",
			types.ErrBelowDustFloor, from, balance.Sub(dustFloor), dustFloor)
	}

	recipient, err := k.getOrCreateAccount(ctx, to)
	if err != nil {
		return nil, err
	}

	result := &types.TransferResult{
		Kind:           kind,
		From:           from,
		To:             to,
		GrossAmount:    amount,
		TaxAmount:      sdkmath.ZeroInt(),
		BurnShare:      sdkmath.ZeroInt(),
		TreasuryShare:  sdkmath.ZeroInt(),
		LiquidityShare: sdkmath.ZeroInt(),
		NodeShare:      sdkmath.ZeroInt(),
		BurnRedirected: sdkmath.ZeroInt(),
	}

	taxExempt := sender.ExcludedFromTax || recipient.ExcludedFromTax
	if !taxExempt {
		result.TaxAmount = params.TaxRateFor(kind).MulBps(amount)
	}
	result.NetAmount = amount.Sub(result.TaxAmount)

	sender.SetBalance(types.DenomHCF, balance.Sub(amount))
	recipient.SetBalance(types.DenomHCF, recipient.BalanceOf(types.DenomHCF).Add(result.NetAmount))
	if err := k.setAccount(ctx, sender); err != nil {
		return nil, err
	}
	if err := k.setAccount(ctx, recipient); err != nil {
		return nil, err
	}

	if result.TaxAmount.IsPositive() {
		if err := k.routeTax(ctx, params, kind, sender, result); err != nil {
			return nil, err
		}
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"ledger_transfer",
		sdk.NewAttribute("kind", string(kind)),
		sdk.NewAttribute("from", from),
		sdk.NewAttribute("to", to),
		sdk.NewAttribute("gross", result.GrossAmount.String()),
		sdk.NewAttribute("net", result.NetAmount.String()),
		sdk.NewAttribute("tax", result.TaxAmount.String()),
		sdk.NewAttribute("burn", result.BurnShare.String()),
		sdk.NewAttribute("treasury", result.TreasuryShare.String()),
		sdk.NewAttribute("liquidity", result.LiquidityShare.String()),
		sdk.NewAttribute("node", result.NodeShare.String()),
		sdk.NewAttribute("burn_redirected", result.BurnRedirected.String()),
	))

	if k.metrics != nil {
		k.metrics.RecordTransfer(kind, result.TaxAmount)
	}

	return result, nil
}

// routeTax splits result.TaxAmount into the four buckets and applies
// them. The sender account has already been persisted with the debit;
// it is re-written here only to track its burn contribution.
func (k Keeper) routeTax(
	ctx context.Context,
	params types.Params,
	kind types.TransferKind,
	sender *types.Account,
	result *types.TransferResult,
) error {
	burnBps := int64(params.Split.BurnBps)
	treasuryBps := int64(params.Split.TreasuryBps)
	liquidityBps := int64(params.Split.LiquidityBps)
	nodeBps := int64(params.Split.NodeBps)

	if kind == types.TransferKindSell && k.antiDumpSource != nil {
		burnBonus, nodeBonus := k.antiDumpSource.SellBonuses(ctx)
		result.BurnBonusBps = burnBonus
		result.NodeBonusBps = nodeBonus

		// Bonus points come out of treasury first, then liquidity, so
		// the effective split still sums to exactly 10000.
		shift := int64(burnBonus) + int64(nodeBonus)
		fromTreasury := min64(shift, treasuryBps)
		treasuryBps -= fromTreasury
		shift -= fromTreasury
		fromLiquidity := min64(shift, liquidityBps)
		liquidityBps -= fromLiquidity
		shift -= fromLiquidity

		applied := int64(burnBonus) + int64(nodeBonus) - shift
		// Preserve the burn/node proportion of whatever fit.
		nodeApplied := applied * int64(nodeBonus) / max64(int64(burnBonus)+int64(nodeBonus), 1)
		nodeBps += nodeApplied
		burnBps += applied - nodeApplied
	}

	sm := types.NewSafeMath()
	tax := result.TaxAmount
	var err error
	if result.TreasuryShare, err = sm.SafeBpsMultiply(tax, treasuryBps); err != nil {
		return fmt.Errorf("treasury share: %w", err)
	}
	if result.LiquidityShare, err = sm.SafeBpsMultiply(tax, liquidityBps); err != nil {
		return fmt.Errorf("liquidity share: %w", err)
	}
	if result.NodeShare, err = sm.SafeBpsMultiply(tax, nodeBps); err != nil {
		return fmt.Errorf("node share: %w", err)
	}
	// The burn share is the exact remainder: conservation holds by
	// construction and the <=1 unit of rounding dust lands here.
	result.BurnShare = tax.Sub(result.TreasuryShare).Sub(result.LiquidityShare).Sub(result.NodeShare)
	if result.BurnShare.IsNegative() {
		return fmt.Errorf("tax split produced negative burn share %s for tax %s", result.BurnShare, tax)
	}

	burned, redirected, err := k.destroy(ctx, params, result.BurnShare)
	if err != nil {
		return err
	}
	result.BurnRedirected = redirected

	if err := k.creditPool(ctx, types.TreasuryPoolName, result.TreasuryShare.Add(redirected)); err != nil {
		return err
	}
	if err := k.creditPool(ctx, types.LiquidityPoolName, result.LiquidityShare); err != nil {
		return err
	}
	if err := k.creditPool(ctx, types.NodeDividendPoolName, result.NodeShare); err != nil {
		return err
	}

	if burned.IsPositive() {
		sender.AddBurned(burned)
		if err := k.setAccount(ctx, sender); err != nil {
			return err
		}
	}
	return nil
}

// destroy reduces total supply by amount, redirecting any portion that
// would breach the burn floor. Returns (burned, redirected).
func (k Keeper) destroy(ctx context.Context, params types.Params, amount sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if !amount.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
	}

	supply := k.SupplyOf(ctx)
	floor := params.BurnFloorInt()

	burnable := supply.Sub(floor)
	if burnable.IsNegative() {
		burnable = sdkmath.ZeroInt()
	}
	burned := sdkmath.MinInt(amount, burnable)
	redirected := amount.Sub(burned)

	if burned.IsPositive() {
		next, err := types.NewSafeMath().SafeSub(supply, burned)
		if err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("supply decrement: %w", err)
		}
		if err := k.setCounter(ctx, k.TotalSupply, next); err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
		if err := k.setCounter(ctx, k.TotalBurned, k.BurnedTotal(ctx).Add(burned)); err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
		sdkCtx, _ := contextNow(ctx)
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"tokens_burned",
			sdk.NewAttribute("amount", burned.String()),
			sdk.NewAttribute("redirected", redirected.String()),
		))
	}
	return burned, redirected, nil
}

// BurnFrom destroys amount from addr's uhcf balance, honoring the burn
// floor redirect. Used for referral clipping and unstake penalties. The
// redirected portion is credited to the treasury.
func (k Keeper) BurnFrom(ctx context.Context, addr string, amount sdkmath.Int) (burned, redirected sdkmath.Int, err error) {
	if !amount.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
	}
	params, err := k.GetParams(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	acct, err := k.GetAccount(ctx, addr)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	balance := acct.BalanceOf(types.DenomHCF)
	if balance.LT(amount) {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf(
			"%w: %s has %s uhcf, burn needs %s", types.ErrInsufficientBalance, addr, balance, amount)
	}

	acct.SetBalance(types.DenomHCF, balance.Sub(amount))
	if err := k.setAccount(ctx, acct); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	burned, redirected, err = k.destroy(ctx, params, amount)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if redirected.IsPositive() {
		if err := k.creditPool(ctx, types.TreasuryPoolName, redirected); err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
	}
	if burned.IsPositive() {
		acct, err = k.GetAccount(ctx, addr)
		if err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
		acct.AddBurned(burned)
		if err := k.setAccount(ctx, acct); err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
	}
	return burned, redirected, nil
}

// TransferAsset moves a non-taxed asset (uusd, ugas) between accounts.
// uhcf is rejected here so every native-token move goes through Transfer.
func (k Keeper) TransferAsset(ctx context.Context, from, to, denom string, amount sdkmath.Int) error {
	if denom == types.DenomHCF {
		return fmt.Errorf("uhcf transfers must use Transfer")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("asset transfer amount must be positive, got %s", amount)
	}
	sender, err := k.GetAccount(ctx, from)
	if err != nil {
		return fmt.Errorf("%w: sender %s holds no %s", types.ErrInsufficientBalance, from, denom)
	}
	balance := sender.BalanceOf(denom)
	if balance.LT(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s",
			types.ErrInsufficientBalance, from, balance, denom, amount)
	}
	recipient, err := k.getOrCreateAccount(ctx, to)
	if err != nil {
		return err
	}

	sender.SetBalance(denom, balance.Sub(amount))
	recipient.SetBalance(denom, recipient.BalanceOf(denom).Add(amount))
	if err := k.setAccount(ctx, sender); err != nil {
		return err
	}
	return k.setAccount(ctx, recipient)
}

// MintAsset credits a non-native asset out of thin air. Stable and gas
// assets are externally backed; the ledger only mirrors their balances.
func (k Keeper) MintAsset(ctx context.Context, to, denom string, amount sdkmath.Int) error {
	if denom == types.DenomHCF {
		return fmt.Errorf("uhcf supply is fixed at genesis and cannot be minted")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("mint amount must be positive, got %s", amount)
	}
	acct, err := k.getOrCreateAccount(ctx, to)
	if err != nil {
		return err
	}
	acct.SetBalance(denom, acct.BalanceOf(denom).Add(amount))
	return k.setAccount(ctx, acct)
}

// PoolBalance returns a protocol pool's uhcf balance.
func (k Keeper) PoolBalance(ctx context.Context, pool string) sdkmath.Int {
	return k.BalanceOf(ctx, pool, types.DenomHCF)
}

// creditPool adds uhcf to a protocol pool account.
func (k Keeper) creditPool(ctx context.Context, pool string, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	acct, err := k.getOrCreateAccount(ctx, pool)
	if err != nil {
		return err
	}
	acct.ExcludedFromTax = true
	acct.SetBalance(types.DenomHCF, acct.BalanceOf(types.DenomHCF).Add(amount))
	return k.setAccount(ctx, acct)
}

// FundPool moves uhcf from an account into a protocol pool untaxed.
func (k Keeper) FundPool(ctx context.Context, from, pool string, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	acct, err := k.GetAccount(ctx, from)
	if err != nil {
		return fmt.Errorf("%w: %s holds no balance", types.ErrInsufficientBalance, from)
	}
	balance := acct.BalanceOf(types.DenomHCF)
	if balance.LT(amount) {
		return fmt.Errorf("%w: %s has %s uhcf, needs %s",
			types.ErrInsufficientBalance, from, balance, amount)
	}
	acct.SetBalance(types.DenomHCF, balance.Sub(amount))
	if err := k.setAccount(ctx, acct); err != nil {
		return err
	}
	return k.creditPool(ctx, pool, amount)
}

// SendFromPool pays uhcf out of a protocol pool. Pools are tax-exempt,
// so the recipient receives the exact amount.
func (k Keeper) SendFromPool(ctx context.Context, pool, to string, amount sdkmath.Int) (*types.TransferResult, error) {
	return k.Transfer(ctx, pool, to, amount, types.TransferKindPlain)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
