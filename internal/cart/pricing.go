// Package cart is the single authority for what a cart line costs and for
// keeping the line list consistent as items are added, merged, updated, or
// removed.
package cart

import "github.com/registerpos/registerd/internal/catalog"

// TaxMode states whether displayed prices already contain tax.
type TaxMode string

const (
	TaxInclusive TaxMode = "inclusive"
	TaxExclusive TaxMode = "exclusive"
)

// TaxRate is the flat VAT rate applied across the register.
const TaxRate = 0.15

// catalogTaxMode is the mode catalog prices are stored in.
const catalogTaxMode = TaxExclusive

// AdjustPrice converts a price between tax modes. A price already in the
// target mode is returned untouched; conversion happens on mode mismatch
// only, in either direction.
func AdjustPrice(price float64, from, to TaxMode) float64 {
	if from == to {
		return price
	}
	if to == TaxInclusive {
		return price * (1 + TaxRate)
	}
	return price / (1 + TaxRate)
}

// PricingStrategy selects how a line's price is computed when no explicit
// override is given.
type PricingStrategy string

const (
	StrategyDefault  PricingStrategy = "default"
	StrategyLastSold PricingStrategy = "lastSoldPrice"
)

// PriceSource records where a line's effective price actually came from.
type PriceSource string

const (
	SourceDefault  PriceSource = "default"
	SourceLastSold PriceSource = "lastSold"
)

// catalogPrice returns the tax-mode-adjusted catalog price for a product in
// the given unit.
func catalogPrice(p catalog.Product, unit string, mode TaxMode) float64 {
	return AdjustPrice(p.UnitPrice(unit), catalogTaxMode, mode)
}
