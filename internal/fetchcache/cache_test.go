package fetchcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/registerpos/registerd/internal/catalog"
	"github.com/registerpos/registerd/internal/mirror"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	records []catalog.Product
	err     error
	block   chan struct{}
}

func (f *fakeFetcher) fetch(ctx context.Context) ([]catalog.Product, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestCache(t *testing.T, cfg Config, fetcher *fakeFetcher) (*Cache[catalog.Product], *mirror.Store[catalog.Product], *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := mirror.NewStore[catalog.Product](client, mirror.CollectionProducts)
	cache := New(mirror.CollectionProducts, store, fetcher.fetch, cfg, testLogger())
	return cache, store, client
}

// rewindLastSync rewrites the sync metadata so the collection appears to have
// been synced age ago.
func rewindLastSync(t *testing.T, client *redis.Client, age time.Duration) {
	t.Helper()
	ctx := context.Background()
	payload, err := client.Get(ctx, "mirror:meta:products").Bytes()
	require.NoError(t, err)
	var meta mirror.Meta
	require.NoError(t, json.Unmarshal(payload, &meta))
	meta.LastSync = time.Now().UTC().Add(-age)
	updated, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, client.Set(ctx, "mirror:meta:products", updated, 0).Err())
}

func TestReadServesFreshMirrorWithoutNetwork(t *testing.T) {
	fetcher := &fakeFetcher{}
	cache, store, _ := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour}, fetcher)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, []catalog.Product{{ID: "P1", Name: "Red Apple"}}))

	got, err := cache.Read(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 0, fetcher.callCount())
}

func TestReadBlocksOnNetworkPastMaxAge(t *testing.T) {
	fetcher := &fakeFetcher{records: []catalog.Product{{ID: "P2", Name: "Fresh"}}}
	cache, store, client := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour}, fetcher)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, []catalog.Product{{ID: "P1", Name: "Old"}}))

	// Just under the threshold: cached data, no fetch.
	rewindLastSync(t, client, time.Hour-time.Second)
	got, err := cache.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "P1", got[0].ID)
	require.Equal(t, 0, fetcher.callCount())

	// Just over: the read must hit the network.
	rewindLastSync(t, client, time.Hour+time.Second)
	got, err = cache.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "P2", got[0].ID)
	require.Equal(t, 1, fetcher.callCount())
}

func TestReadEmptyMirrorFetches(t *testing.T) {
	fetcher := &fakeFetcher{records: []catalog.Product{{ID: "P1", Name: "Red Apple"}}}
	cache, store, _ := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour}, fetcher)
	ctx := context.Background()

	got, err := cache.Read(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, fetcher.callCount())

	// The fetch result must now be mirrored.
	mirrored, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
}

func TestReadFallsBackToMirrorOnNetworkFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	cache, store, client := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour}, fetcher)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, []catalog.Product{{ID: "P1", Name: "Cached"}}))
	rewindLastSync(t, client, 2*time.Hour)

	got, err := cache.Read(ctx)
	require.ErrorIs(t, err, ErrStaleData)
	require.Len(t, got, 1)
	require.Equal(t, "P1", got[0].ID)

	meta, metaErr := store.Meta(ctx)
	require.NoError(t, metaErr)
	require.Equal(t, mirror.StatusError, meta.Status)
}

func TestReadPropagatesErrorWhenMirrorEmpty(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	cache, _, _ := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour}, fetcher)

	got, err := cache.Read(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrStaleData)
	require.Empty(t, got)
}

func TestConcurrentReadsCoalesce(t *testing.T) {
	fetcher := &fakeFetcher{
		records: []catalog.Product{{ID: "P1", Name: "Red Apple"}},
		block:   make(chan struct{}),
	}
	cache, _, _ := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour}, fetcher)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := cache.Read(ctx)
			if err == nil {
				results[i] = len(got)
			}
		}(i)
	}

	// Let all readers pile up behind the single in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	require.Equal(t, 1, fetcher.callCount())
	for _, n := range results {
		require.Equal(t, 1, n)
	}
}

func TestRetryOnError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("flaky")}
	cache, _, _ := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour, RetryOnError: true}, fetcher)

	_, err := cache.Read(context.Background())
	require.Error(t, err)
	require.Equal(t, 1+maxRetries, fetcher.callCount())
}

func TestBackgroundRefreshDoesNotBlockRead(t *testing.T) {
	fetcher := &fakeFetcher{records: []catalog.Product{{ID: "P2", Name: "Fresh"}}}
	cfg := Config{StaleTime: time.Minute, MaxAge: time.Hour, EnableBackgroundSync: true}
	cache, store, client := newTestCache(t, cfg, fetcher)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, []catalog.Product{{ID: "P1", Name: "Stale"}}))
	rewindLastSync(t, client, 10*time.Minute)

	got, err := cache.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "P1", got[0].ID, "read must serve the mirror immediately")

	require.Eventually(t, func() bool {
		return fetcher.callCount() == 1
	}, time.Second, 10*time.Millisecond, "background refresh should fire")
}

func TestForceSyncBumpsGenerationAndNotifies(t *testing.T) {
	fetcher := &fakeFetcher{records: []catalog.Product{{ID: "P1", Name: "Red Apple"}}}
	cache, _, _ := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour}, fetcher)
	ctx := context.Background()

	var notified atomic.Int32
	cache.Subscribe(func(records []catalog.Product) {
		notified.Add(int32(len(records)))
	})

	require.Equal(t, uint64(0), cache.Generation())
	_, err := cache.ForceSync(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), cache.Generation())
	require.Equal(t, int32(1), notified.Load())

	// ForceSync ignores freshness entirely.
	_, err = cache.ForceSync(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.callCount())
	require.Equal(t, uint64(2), cache.Generation())
}

func TestRunBackgroundSyncRefreshesStaleCollection(t *testing.T) {
	fetcher := &fakeFetcher{records: []catalog.Product{{ID: "P2", Name: "Fresh"}}}
	cache, store, client := newTestCache(t, Config{StaleTime: time.Minute, MaxAge: time.Hour}, fetcher)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, []catalog.Product{{ID: "P1", Name: "Old"}}))
	rewindLastSync(t, client, 2*time.Minute)

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		cache.RunBackgroundSync(loopCtx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return cache.Generation() >= 1
	}, time.Second, 5*time.Millisecond)

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, "P2", got[0].ID)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop kept running after cancel")
	}
}

func TestRunBackgroundSyncSkipsFreshCollection(t *testing.T) {
	fetcher := &fakeFetcher{}
	cache, store, _ := newTestCache(t, Config{StaleTime: time.Hour, MaxAge: 2 * time.Hour}, fetcher)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, []catalog.Product{{ID: "P1", Name: "Red Apple"}}))

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		cache.RunBackgroundSync(loopCtx, time.Millisecond)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()
	<-done
	require.Equal(t, 0, fetcher.callCount())
}
