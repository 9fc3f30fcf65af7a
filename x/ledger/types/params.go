package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// TaxSplit defines how a collected tax is divided. The four shares are
// basis points that must sum to exactly 10000.
type TaxSplit struct {
	BurnBps      Rate `json:"burn_bps"`
	TreasuryBps  Rate `json:"treasury_bps"`
	LiquidityBps Rate `json:"liquidity_bps"`
	NodeBps      Rate `json:"node_bps"`
}

// Validate checks that all shares are non-negative and sum to 10000.
func (s TaxSplit) Validate() error {
	for name, r := range map[string]Rate{
		"burn":      s.BurnBps,
		"treasury":  s.TreasuryBps,
		"liquidity": s.LiquidityBps,
		"node":      s.NodeBps,
	} {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s share: %w", name, err)
		}
	}
	total := int64(s.BurnBps) + int64(s.TreasuryBps) + int64(s.LiquidityBps) + int64(s.NodeBps)
	if total != BpsBase {
		return fmt.Errorf("tax split bps must sum to %d, got %d", BpsBase, total)
	}
	return nil
}

// Params holds the ledger's governance parameters.
type Params struct {
	// Tax rates per transfer kind, in bps of the gross amount.
	BuyTaxBps      Rate `json:"buy_tax_bps"`
	SellTaxBps     Rate `json:"sell_tax_bps"`
	TransferTaxBps Rate `json:"transfer_tax_bps"`

	// Split applied to every collected tax.
	Split TaxSplit `json:"split"`

	// DustFloor is the minimum uhcf balance a non-exempt sender must
	// retain; it can never be transferred out.
	DustFloor string `json:"dust_floor"`

	// BurnFloor is the total-supply level at which burning stops;
	// would-be burns are redirected to the treasury below it.
	BurnFloor string `json:"burn_floor"`
}

// DefaultParams returns the genesis parameter set: 2% buy tax, 5% sell
// tax, 1% transfer tax, split 40/30/20/10 burn/treasury/liquidity/node,
// a 0.0001 HCF dust floor, and a 990,000 HCF burn floor.
func DefaultParams() Params {
	return Params{
		BuyTaxBps:      200,
		SellTaxBps:     500,
		TransferTaxBps: 100,
		Split: TaxSplit{
			BurnBps:      4000,
			TreasuryBps:  3000,
			LiquidityBps: 2000,
			NodeBps:      1000,
		},
		DustFloor: "100",
		BurnFloor: "990000000000",
	}
}

// ValidateParams checks every field against its accepted range.
func ValidateParams(p Params) error {
	for name, r := range map[string]Rate{
		"buy_tax_bps":      p.BuyTaxBps,
		"sell_tax_bps":     p.SellTaxBps,
		"transfer_tax_bps": p.TransferTaxBps,
	} {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		// A tax of 100% would zero out every transfer; cap at 25%.
		if int64(r) > 2500 {
			return fmt.Errorf("%s must be <= 2500 bps, got %d", name, r)
		}
	}
	if err := p.Split.Validate(); err != nil {
		return fmt.Errorf("split: %w", err)
	}
	if _, err := ParsePositiveInt(p.DustFloor, "dust_floor"); err != nil {
		return err
	}
	if _, err := ParsePositiveInt(p.BurnFloor, "burn_floor"); err != nil {
		return err
	}
	return nil
}

// DustFloorInt returns the dust floor as an integer amount.
func (p Params) DustFloorInt() sdkmath.Int {
	value, _ := sdkmath.NewIntFromString(p.DustFloor)
	return value
}

// BurnFloorInt returns the burn floor as an integer amount.
func (p Params) BurnFloorInt() sdkmath.Int {
	value, _ := sdkmath.NewIntFromString(p.BurnFloor)
	return value
}

// TaxRateFor returns the tax rate for the given transfer kind.
func (p Params) TaxRateFor(kind TransferKind) Rate {
	switch kind {
	case TransferKindBuy:
		return p.BuyTaxBps
	case TransferKindSell:
		return p.SellTaxBps
	default:
		return p.TransferTaxBps
	}
}

// ParsePositiveInt parses a decimal string into a positive sdkmath.Int,
// naming the field in any error.
func ParsePositiveInt(raw, field string) (sdkmath.Int, error) {
	value, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%s must be a decimal integer, got %q", field, raw)
	}
	if !value.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%s must be positive, got %s", field, raw)
	}
	return value, nil
}
