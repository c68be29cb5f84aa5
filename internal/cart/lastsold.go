package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/registerpos/registerd/internal/backend"
)

// FetchState tracks an in-flight last-sold price lookup for one product.
type FetchState string

const (
	FetchLoading FetchState = "loading"
	FetchLoaded  FetchState = "loaded"
	FetchError   FetchState = "error"
)

// fetchChunkSize bounds how many product ids go into one backend lookup.
const fetchChunkSize = 25

// PriceEntry is a cached last-sold price, scoped to product, branch and unit.
type PriceEntry struct {
	ProductID string
	BranchID  string
	Unit      string
	Price     float64
	Date      time.Time
	TaxMode   TaxMode
}

// PriceFetcher looks up last-sold price records in the accounting backend.
type PriceFetcher interface {
	FetchLastSoldPrices(ctx context.Context, productIDs []string, branchID string) ([]backend.LastSoldPrice, error)
}

// priceKey builds the deterministic composite cache key.
func priceKey(productID, branchID, unit string) string {
	return fmt.Sprintf("%s_%s_%s", productID, branchID, unit)
}

// LastSoldCache holds branch-scoped last-sold prices plus per-product fetch
// status. Entries are meaningless across branches, so a branch change clears
// the cache in full.
type LastSoldCache struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]PriceEntry
	status  map[string]FetchState
}

// NewLastSoldCache constructs an empty cache.
func NewLastSoldCache(logger *slog.Logger) *LastSoldCache {
	return &LastSoldCache{
		logger:  logger,
		entries: make(map[string]PriceEntry),
		status:  make(map[string]FetchState),
	}
}

// Get returns the cached entry for (product, branch, unit) if present.
func (c *LastSoldCache) Get(productID, branchID, unit string) (PriceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[priceKey(productID, branchID, unit)]
	return entry, ok
}

// Put stores an entry, marking the product loaded.
func (c *LastSoldCache) Put(entry PriceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[priceKey(entry.ProductID, entry.BranchID, entry.Unit)] = entry
	c.status[entry.ProductID] = FetchLoaded
}

// Status returns the fetch state for a product id.
func (c *LastSoldCache) Status(productID string) (FetchState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.status[productID]
	return state, ok
}

// Invalidate drops every entry and status. Called on branch change.
func (c *LastSoldCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]PriceEntry)
	c.status = make(map[string]FetchState)
}

// Len returns the number of cached entries.
func (c *LastSoldCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fetch populates the cache for the given products in one branch. Every
// requested id is marked loading before the network round-trip and resolves
// to exactly one of loaded or error afterwards; ids already in flight are
// skipped to avoid duplicate fetches.
func (c *LastSoldCache) Fetch(ctx context.Context, fetcher PriceFetcher, productIDs []string, branchID string) {
	c.mu.Lock()
	pending := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		if c.status[id] == FetchLoading {
			continue
		}
		c.status[id] = FetchLoading
		pending = append(pending, id)
	}
	c.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	var (
		resultMu sync.Mutex
		fetched  []backend.LastSoldPrice
	)
	g, gctx := errgroup.Group{}, ctx
	for start := 0; start < len(pending); start += fetchChunkSize {
		chunk := pending[start:min(start+fetchChunkSize, len(pending))]
		g.Go(func() error {
			prices, err := fetcher.FetchLastSoldPrices(gctx, chunk, branchID)
			if err != nil {
				return err
			}
			resultMu.Lock()
			fetched = append(fetched, prices...)
			resultMu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		c.logger.Warn("last sold price fetch failed",
			slog.String("branch", branchID), slog.Any("error", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	loaded := make(map[string]bool, len(fetched))
	for _, price := range fetched {
		entry := PriceEntry{
			ProductID: price.ProductID,
			BranchID:  price.BranchID,
			Unit:      price.Unit,
			Price:     price.Price,
			Date:      price.CreatedAt,
			TaxMode:   TaxMode(price.TaxMode),
		}
		c.entries[priceKey(entry.ProductID, entry.BranchID, entry.Unit)] = entry
		c.status[entry.ProductID] = FetchLoaded
		loaded[entry.ProductID] = true
	}
	// Products with no record, or covered by a failed chunk, resolve to
	// error so no id is left permanently loading. A missing record is a
	// valid terminal state, not a failure.
	for _, id := range pending {
		if !loaded[id] {
			c.status[id] = FetchError
		}
	}
}
