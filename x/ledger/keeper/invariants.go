package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// CheckSupplyInvariant verifies that the sum of every account's uhcf
// balance equals the recorded total supply. Any mismatch means a
// transfer leaked or double-counted value.
func (k Keeper) CheckSupplyInvariant(ctx context.Context) error {
	sm := types.NewSafeMath()
	total := sdkmath.ZeroInt()
	err := k.Accounts.Walk(ctx, nil, func(addr string, raw string) (bool, error) {
		var acct types.Account
		if err := json.Unmarshal([]byte(raw), &acct); err != nil {
			return false, err
		}
		sum, err := sm.SafeAdd(total, acct.BalanceOf(types.DenomHCF))
		if err != nil {
			return false, fmt.Errorf("summing balances at %s: %w", addr, err)
		}
		total = sum
		return false, nil
	})
	if err != nil {
		return err
	}

	supply := k.SupplyOf(ctx)
	if !total.Equal(supply) {
		return fmt.Errorf("supply invariant broken: balances sum to %s, recorded supply %s", total, supply)
	}
	return nil
}

// CheckBurnInvariant verifies the supply never fell below the burn floor
// and that the cumulative burn counter reconciles with the genesis
// supply.
func (k Keeper) CheckBurnInvariant(ctx context.Context, genesisSupply sdkmath.Int) error {
	params, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	supply := k.SupplyOf(ctx)
	if supply.LT(params.BurnFloorInt()) {
		return fmt.Errorf("burn invariant broken: supply %s below burn floor %s", supply, params.BurnFloor)
	}
	if !supply.Add(k.BurnedTotal(ctx)).Equal(genesisSupply) {
		return fmt.Errorf("burn invariant broken: supply %s + burned %s != genesis %s",
			supply, k.BurnedTotal(ctx), genesisSupply)
	}
	return nil
}
