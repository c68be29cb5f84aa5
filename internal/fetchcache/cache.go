// Package fetchcache is the single source of truth the rest of the register
// reads catalog collections from. It balances freshness against network cost:
// fresh mirror data is served immediately, stale data triggers a refresh, and
// concurrent reads share one in-flight fetch.
package fetchcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/registerpos/registerd/internal/mirror"
)

// ErrStaleData signals that the network fetch failed and the returned records
// come from the mirror. The data is usable; the error is advisory.
var ErrStaleData = errors.New("fetchcache: serving stale data")

// maxRetries bounds sync retries when RetryOnError is set.
const maxRetries = 2

// DefaultSyncInterval is how often the background loop re-checks staleness.
const DefaultSyncInterval = 60 * time.Second

// Fetcher loads the full collection from the network.
type Fetcher[T mirror.Record] func(ctx context.Context) ([]T, error)

// Config tunes staleness behavior for one collection.
type Config struct {
	// StaleTime is how long a result is reusable without triggering a
	// background refresh.
	StaleTime time.Duration
	// MaxAge is how long before cached data is unusable and a read must
	// block on the network.
	MaxAge time.Duration
	// EnableBackgroundSync refreshes stale-but-usable data off the
	// caller's path.
	EnableBackgroundSync bool
	// RetryOnError retries a failed network fetch up to maxRetries times.
	RetryOnError bool
}

// Cache wraps a mirror store and a network fetcher for one collection.
type Cache[T mirror.Record] struct {
	collection string
	store      *mirror.Store[T]
	fetch      Fetcher[T]
	cfg        Config
	logger     *slog.Logger

	group      singleflight.Group
	generation atomic.Uint64

	mu          sync.Mutex
	subscribers []func([]T)

	now func() time.Time
}

// New constructs a cache for the named collection.
func New[T mirror.Record](collection string, store *mirror.Store[T], fetch Fetcher[T], cfg Config, logger *slog.Logger) *Cache[T] {
	return &Cache[T]{
		collection: collection,
		store:      store,
		fetch:      fetch,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Generation returns a counter bumped on every successful sync. The search
// index rebuilds only when this changes.
func (c *Cache[T]) Generation() uint64 {
	return c.generation.Load()
}

// Meta reports sync metadata for the collection.
func (c *Cache[T]) Meta(ctx context.Context) (mirror.Meta, error) {
	return c.store.Meta(ctx)
}

// Subscribe registers a callback invoked with the fresh records after every
// successful sync.
func (c *Cache[T]) Subscribe(fn func([]T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Read returns the current collection. Fresh mirror data is returned
// immediately; an empty or expired mirror blocks on the network. When the
// network fails but the mirror holds data, that data is returned together
// with ErrStaleData.
func (c *Cache[T]) Read(ctx context.Context) ([]T, error) {
	records, err := c.store.GetAll(ctx)
	if err != nil {
		c.logger.Warn("mirror read failed, treating as empty",
			slog.String("collection", c.collection), slog.Any("error", err))
		records = nil
	}
	meta, err := c.store.Meta(ctx)
	if err != nil {
		c.logger.Warn("mirror meta read failed",
			slog.String("collection", c.collection), slog.Any("error", err))
	}

	age := c.now().Sub(meta.LastSync)
	if len(records) > 0 && !meta.LastSync.IsZero() && age < c.cfg.MaxAge {
		if c.cfg.EnableBackgroundSync && age >= c.cfg.StaleTime {
			go func() {
				bg := context.WithoutCancel(ctx)
				if _, err := c.sync(bg); err != nil {
					c.logger.Warn("background refresh failed",
						slog.String("collection", c.collection), slog.Any("error", err))
				}
			}()
		}
		return records, nil
	}

	fresh, err := c.sync(ctx)
	if err != nil {
		if len(records) > 0 {
			return records, fmt.Errorf("%w: %s", ErrStaleData, err)
		}
		return nil, err
	}
	return fresh, nil
}

// ForceSync unconditionally fetches from the network, updates the mirror and
// notifies subscribers, regardless of current staleness.
func (c *Cache[T]) ForceSync(ctx context.Context) ([]T, error) {
	return c.sync(ctx)
}

// sync coalesces concurrent fetches for the collection into one in-flight
// network request; late arrivals receive the same result.
func (c *Cache[T]) sync(ctx context.Context) ([]T, error) {
	resultChan := c.group.DoChan(c.collection, func() (interface{}, error) {
		return c.fetchAndStore(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]T), nil
	}
}

func (c *Cache[T]) fetchAndStore(ctx context.Context) ([]T, error) {
	if err := c.store.MarkSyncing(ctx); err != nil {
		c.logger.Warn("mark syncing failed",
			slog.String("collection", c.collection), slog.Any("error", err))
	}

	attempts := 1
	if c.cfg.RetryOnError {
		attempts += maxRetries
	}

	var records []T
	var err error
	for i := 0; i < attempts; i++ {
		records, err = c.fetch(ctx)
		if err == nil {
			break
		}
	}
	if err != nil {
		if markErr := c.store.MarkError(ctx); markErr != nil {
			c.logger.Warn("mark error failed",
				slog.String("collection", c.collection), slog.Any("error", markErr))
		}
		return nil, fmt.Errorf("fetchcache: sync %s: %w", c.collection, err)
	}

	if err := c.store.Set(ctx, records); err != nil {
		return nil, err
	}
	c.generation.Add(1)
	c.notify(records)
	return records, nil
}

func (c *Cache[T]) notify(records []T) {
	c.mu.Lock()
	subs := make([]func([]T), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(records)
	}
}

// RunBackgroundSync polls sync metadata on a fixed interval and force-syncs
// when the collection has gone stale. It blocks until ctx is cancelled, so
// the ticker is always torn down with its context.
func (c *Cache[T]) RunBackgroundSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			meta, err := c.store.Meta(ctx)
			if err != nil {
				c.logger.Warn("staleness check failed",
					slog.String("collection", c.collection), slog.Any("error", err))
				continue
			}
			if c.now().Sub(meta.LastSync) < c.cfg.StaleTime {
				continue
			}
			if _, err := c.sync(ctx); err != nil {
				c.logger.Warn("periodic sync failed",
					slog.String("collection", c.collection), slog.Any("error", err))
			}
		}
	}
}
