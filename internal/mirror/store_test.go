package mirror

import (
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/registerpos/registerd/internal/catalog"
)

func newTestStore(t *testing.T) (*Store[catalog.Product], *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore[catalog.Product](client, CollectionProducts), client
}

func sampleProducts() []catalog.Product {
	return []catalog.Product{
		{ID: "P1", Name: "Red Apple", SKU: "A1", Price: 10, GroupName: "Fruit"},
		{ID: "P2", Name: "Green Apple", SKU: "A2", Price: 12, GroupName: "Fruit"},
		{ID: "P3", Name: "Milk Carton", SKU: "M1", Price: 5, GroupName: "Dairy"},
	}
}

func TestSetIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	products := sampleProducts()
	require.NoError(t, store.Set(ctx, products))
	require.NoError(t, store.Set(ctx, products))

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(products))

	ids := make(map[string]bool, len(got))
	for _, p := range got {
		ids[p.ID] = true
	}
	for _, p := range products {
		require.True(t, ids[p.ID], "missing product %s", p.ID)
	}
}

func TestSetStampsUniformSyncVersion(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, sampleProducts()))

	meta, err := store.Meta(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusSynced, meta.Status)
	require.NotEmpty(t, meta.Version)
	require.False(t, meta.LastSync.IsZero())

	raw, err := client.HGetAll(ctx, "mirror:products").Result()
	require.NoError(t, err)
	require.Len(t, raw, 3)
	for id, payload := range raw {
		var env struct {
			SyncVersion string `json:"sync_version"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &env))
		require.Equal(t, meta.Version, env.SyncVersion, "record %s version mismatch", id)
	}
}

func TestGetAllNeverSynced(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)

	meta, err := store.Meta(context.Background())
	require.NoError(t, err)
	require.True(t, meta.LastSync.IsZero())
}

func TestGetBySearch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, sampleProducts()))

	got, err := store.GetBySearch(ctx, "apple", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = store.GetBySearch(ctx, "apple", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = store.GetBySearch(ctx, "dairy", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "P3", got[0].ID)
}

func TestGetByCategory(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, sampleProducts()))

	got, err := store.GetByCategory(ctx, "Fruit")
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = store.GetByCategory(ctx, CategoryAll)
	require.NoError(t, err)
	require.Len(t, got, 3)

	got, err = store.GetByCategory(ctx, "Bakery")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, sampleProducts()))
	require.NoError(t, store.Clear(ctx))

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	meta, err := store.Meta(ctx)
	require.NoError(t, err)
	require.True(t, meta.LastSync.IsZero())
}

func TestMarkErrorPreservesLastSync(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, sampleProducts()))

	before, err := store.Meta(ctx)
	require.NoError(t, err)

	require.NoError(t, store.MarkError(ctx))

	after, err := store.Meta(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusError, after.Status)
	require.Equal(t, before.LastSync, after.LastSync)
	require.Equal(t, before.Version, after.Version)
}
