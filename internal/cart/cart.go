package cart

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/registerpos/registerd/internal/backend"
	"github.com/registerpos/registerd/internal/catalog"
)

// customPriceTolerance is how far an operator-entered price must differ from
// the computed price before it is worth persisting as a last-sold record.
const customPriceTolerance = 0.01

// Line is one cart line item. Identity for merge purposes is the triple
// (product id, unit, custom-price presence/value).
type Line struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Price         float64     `json:"price"`
	Qty           int         `json:"qty"`
	Unit          string      `json:"unit"`
	StoredUnit    string      `json:"stored_unit,omitempty"`
	TaxID         string      `json:"tax_id,omitempty"`
	TaxPercentage float64     `json:"tax_percentage,omitempty"`
	CustomPrice   *float64    `json:"custom_price,omitempty"`
	OriginalPrice float64     `json:"original_price"`
	PricingSource PriceSource `json:"pricing_source"`
	LastSoldDate  time.Time   `json:"last_sold_date,omitempty"`
}

// State is one immutable snapshot of the cart. Mutations replace the whole
// snapshot, so a reader always sees either the pre- or post-mutation state.
type State struct {
	Lines      []Line
	CustomerID string
	BranchID   string
	TaxMode    TaxMode
	Strategy   PricingStrategy
}

// Summary is derived from the current state, never stored.
type Summary struct {
	CartCount int     `json:"cart_count"`
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Total     float64 `json:"total"`
}

// PriceSaver persists a last-sold price record remotely.
type PriceSaver interface {
	SaveLastSoldPrice(ctx context.Context, rec backend.LastSoldPrice) (backend.LastSoldPrice, error)
}

// AddOptions tune a single add-to-cart operation.
type AddOptions struct {
	Qty         int
	Unit        string
	CustomPrice *float64
}

// LineUpdate carries field changes to merge into an existing line. Nil
// fields are left untouched.
type LineUpdate struct {
	Qty         *int
	Price       *float64
	CustomPrice *float64
	Name        *string
}

// Cart is the canonical cart state container. Reads are lock-free snapshot
// loads; writes serialize and swap in a fresh snapshot.
type Cart struct {
	logger *slog.Logger
	prices *LastSoldCache
	saver  PriceSaver

	writeMu sync.Mutex
	state   atomic.Pointer[State]
}

// New constructs an empty cart for the given branch, tax mode, and strategy.
func New(logger *slog.Logger, prices *LastSoldCache, saver PriceSaver, branchID string, mode TaxMode, strategy PricingStrategy) *Cart {
	c := &Cart{logger: logger, prices: prices, saver: saver}
	c.state.Store(&State{BranchID: branchID, TaxMode: mode, Strategy: strategy})
	return c
}

// Snapshot returns the current state. The contents must not be mutated.
func (c *Cart) Snapshot() State {
	return *c.state.Load()
}

// Lines returns a copy of the current line list.
func (c *Cart) Lines() []Line {
	state := c.state.Load()
	lines := make([]Line, len(state.Lines))
	copy(lines, state.Lines)
	return lines
}

func (c *Cart) mutate(fn func(next *State)) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	prev := c.state.Load()
	next := *prev
	next.Lines = make([]Line, len(prev.Lines))
	copy(next.Lines, prev.Lines)
	fn(&next)
	c.state.Store(&next)
}

// Add puts a product in the cart. An existing line matching on product id,
// unit, and custom price merges by summing quantities; its price is not
// recomputed (first-write pricing wins for the merge key). Otherwise a new
// line is appended with the effective price from the custom override or the
// active pricing strategy.
func (c *Cart) Add(ctx context.Context, product catalog.Product, opts AddOptions) Line {
	qty := opts.Qty
	if qty <= 0 {
		qty = 1
	}
	unit := opts.Unit
	if unit == "" {
		unit = catalog.UnitPiece
	}

	var added Line
	c.mutate(func(next *State) {
		for i := range next.Lines {
			if !mergeable(next.Lines[i], product.ID, unit, opts.CustomPrice) {
				continue
			}
			next.Lines[i].Qty += qty
			added = next.Lines[i]
			return
		}

		computed, source, soldDate := c.computePrice(next, product, unit)
		line := Line{
			ID:            product.ID,
			Name:          product.Name,
			Price:         computed,
			Qty:           qty,
			Unit:          unit,
			StoredUnit:    product.StoredUnit,
			TaxID:         product.TaxID,
			TaxPercentage: product.TaxPercentage,
			OriginalPrice: computed,
			PricingSource: source,
			LastSoldDate:  soldDate,
		}
		if opts.CustomPrice != nil {
			price := *opts.CustomPrice
			line.Price = price
			line.CustomPrice = &price
			if math.Abs(price-computed) > customPriceTolerance {
				c.persistCustomPrice(ctx, product.ID, next.BranchID, unit, price, next.TaxMode)
			}
		}
		next.Lines = append(next.Lines, line)
		added = line
	})
	return added
}

// mergeable reports whether an existing line matches the merge key: same
// product and unit, and either both plain or both carrying the identical
// custom price.
func mergeable(line Line, productID, unit string, customPrice *float64) bool {
	if line.ID != productID || line.Unit != unit {
		return false
	}
	if (line.CustomPrice == nil) != (customPrice == nil) {
		return false
	}
	if line.CustomPrice != nil && *line.CustomPrice != *customPrice {
		return false
	}
	return true
}

// computePrice resolves the effective unit price via the active strategy.
func (c *Cart) computePrice(state *State, product catalog.Product, unit string) (float64, PriceSource, time.Time) {
	if state.Strategy == StrategyLastSold && c.prices != nil {
		if entry, ok := c.prices.Get(product.ID, state.BranchID, unit); ok {
			price := AdjustPrice(entry.Price, entry.TaxMode, state.TaxMode)
			return price, SourceLastSold, entry.Date
		}
	}
	return catalogPrice(product, unit, state.TaxMode), SourceDefault, time.Time{}
}

// persistCustomPrice saves an operator override as the new last-sold price,
// detached from the add operation. At most one save per add; failure is
// logged, never rolled back into the cart.
func (c *Cart) persistCustomPrice(ctx context.Context, productID, branchID, unit string, price float64, mode TaxMode) {
	if c.saver == nil {
		return
	}
	rec := backend.LastSoldPrice{
		ProductID: productID,
		BranchID:  branchID,
		Unit:      unit,
		Price:     price,
		TaxMode:   string(mode),
	}
	go func() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		saved, err := c.saver.SaveLastSoldPrice(saveCtx, rec)
		if err != nil {
			c.logger.Warn("custom price save failed",
				slog.String("product", productID),
				slog.String("unit", unit),
				slog.Any("error", err))
			return
		}
		if c.prices != nil {
			date := saved.CreatedAt
			if date.IsZero() {
				date = time.Now().UTC()
			}
			c.prices.Put(PriceEntry{
				ProductID: productID,
				BranchID:  branchID,
				Unit:      unit,
				Price:     price,
				Date:      date,
				TaxMode:   mode,
			})
		}
	}()
}

// Update merges field changes into the first line with the given id.
func (c *Cart) Update(id string, update LineUpdate) {
	c.updateWhere(func(line Line) bool { return line.ID == id }, update)
}

// UpdateUnit merges field changes into the line matching id and unit.
func (c *Cart) UpdateUnit(id, unit string, update LineUpdate) {
	c.updateWhere(func(line Line) bool { return line.ID == id && line.Unit == unit }, update)
}

func (c *Cart) updateWhere(match func(Line) bool, update LineUpdate) {
	c.mutate(func(next *State) {
		for i := range next.Lines {
			if !match(next.Lines[i]) {
				continue
			}
			if update.Qty != nil {
				next.Lines[i].Qty = *update.Qty
			}
			if update.Price != nil {
				next.Lines[i].Price = *update.Price
			}
			if update.CustomPrice != nil {
				price := *update.CustomPrice
				next.Lines[i].CustomPrice = &price
				next.Lines[i].Price = price
			}
			if update.Name != nil {
				next.Lines[i].Name = *update.Name
			}
			return
		}
	})
}

// Remove deletes the line matching (id, unit) exactly. Removing an absent
// line is a no-op.
func (c *Cart) Remove(id, unit string) {
	c.mutate(func(next *State) {
		for i := range next.Lines {
			if next.Lines[i].ID == id && next.Lines[i].Unit == unit {
				next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
				return
			}
		}
	})
}

// Clear empties the line list and clears the selected customer; clearing the
// cart ends the in-progress sale.
func (c *Cart) Clear() {
	c.mutate(func(next *State) {
		next.Lines = nil
		next.CustomerID = ""
	})
}

// SetCustomer selects the customer for the in-progress sale.
func (c *Cart) SetCustomer(customerID string) {
	c.mutate(func(next *State) {
		next.CustomerID = customerID
	})
}

// SetTaxMode switches the active tax mode and converts every existing
// line's prices into the new mode, so lines added before and after the
// switch price consistently and Summary applies one mode throughout.
func (c *Cart) SetTaxMode(mode TaxMode) {
	c.mutate(func(next *State) {
		if next.TaxMode == mode {
			return
		}
		from := next.TaxMode
		for i := range next.Lines {
			line := &next.Lines[i]
			line.Price = AdjustPrice(line.Price, from, mode)
			line.OriginalPrice = AdjustPrice(line.OriginalPrice, from, mode)
			if line.CustomPrice != nil {
				converted := AdjustPrice(*line.CustomPrice, from, mode)
				line.CustomPrice = &converted
			}
		}
		next.TaxMode = mode
	})
}

// SetStrategy switches the active pricing strategy.
func (c *Cart) SetStrategy(strategy PricingStrategy) {
	c.mutate(func(next *State) {
		next.Strategy = strategy
	})
}

// SetBranch switches the selected branch and invalidates the whole
// last-sold price cache; cached prices are not comparable across branches.
func (c *Cart) SetBranch(branchID string) {
	c.mutate(func(next *State) {
		next.BranchID = branchID
	})
	if c.prices != nil {
		c.prices.Invalidate()
	}
}

// Summary computes the derived totals for the current state.
func (c *Cart) Summary() Summary {
	state := c.state.Load()
	var summary Summary
	for _, line := range state.Lines {
		summary.CartCount += line.Qty
		summary.Subtotal += line.Price * float64(line.Qty)
	}
	if state.TaxMode == TaxInclusive {
		summary.Tax = summary.Subtotal * TaxRate / (1 + TaxRate)
		summary.Total = summary.Subtotal
	} else {
		summary.Tax = summary.Subtotal * TaxRate
		summary.Total = summary.Subtotal + summary.Tax
	}
	return summary
}
