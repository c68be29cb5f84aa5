// Package mirror persists the last known-good catalog snapshots in Redis so
// the register has usable data before any network round-trip completes.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Collection names understood by the store.
const (
	CollectionProducts  = "products"
	CollectionCustomers = "customers"
)

// CategoryAll is the sentinel meaning "no category filter".
const CategoryAll = "All"

// SyncStatus tracks the outcome of the most recent sync attempt.
type SyncStatus string

const (
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
)

// Meta is the per-collection sync metadata record.
type Meta struct {
	LastSync time.Time  `json:"last_sync"`
	Version  string     `json:"version"`
	Status   SyncStatus `json:"status"`
}

// Record is what the store can persist: a domain record with a natural key
// and substring-searchable fields.
type Record interface {
	Key() string
	Category() string
	MatchesSearch(query string) bool
}

// envelope is the persisted form of a record: the domain record plus the
// write timestamp and the sync batch version.
type envelope[T any] struct {
	Record      T         `json:"record"`
	LastUpdated time.Time `json:"last_updated"`
	SyncVersion string    `json:"sync_version"`
}

// Store is a versioned object store for one collection. All records written
// in a single Set share the same sync version token.
type Store[T Record] struct {
	client     *redis.Client
	collection string
	now        func() time.Time
}

// NewStore constructs a store for the named collection.
func NewStore[T Record](client *redis.Client, collection string) *Store[T] {
	return &Store[T]{client: client, collection: collection, now: time.Now}
}

func (s *Store[T]) recordsKey() string { return "mirror:" + s.collection }
func (s *Store[T]) metaKey() string    { return "mirror:meta:" + s.collection }

// GetAll returns every record of the collection in no guaranteed order.
// A never-synced collection yields an empty slice.
func (s *Store[T]) GetAll(ctx context.Context) ([]T, error) {
	raw, err := s.client.HGetAll(ctx, s.recordsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("mirror: get all %s: %w", s.collection, err)
	}
	records := make([]T, 0, len(raw))
	for _, payload := range raw {
		var env envelope[T]
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			// A corrupt entry is treated as missing rather than
			// failing the whole read.
			continue
		}
		records = append(records, env.Record)
	}
	return records, nil
}

// Set upserts every record, stamping all of them with the same fresh sync
// version and timestamp, then records sync metadata with status synced.
func (s *Store[T]) Set(ctx context.Context, records []T) error {
	version := uuid.NewString()
	now := s.now().UTC()

	pipe := s.client.TxPipeline()
	for _, rec := range records {
		payload, err := json.Marshal(envelope[T]{
			Record:      rec,
			LastUpdated: now,
			SyncVersion: version,
		})
		if err != nil {
			return fmt.Errorf("mirror: encode %s record: %w", s.collection, err)
		}
		pipe.HSet(ctx, s.recordsKey(), rec.Key(), payload)
	}
	meta, err := json.Marshal(Meta{LastSync: now, Version: version, Status: StatusSynced})
	if err != nil {
		return fmt.Errorf("mirror: encode %s meta: %w", s.collection, err)
	}
	pipe.Set(ctx, s.metaKey(), meta, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror: set %s: %w", s.collection, err)
	}
	return nil
}

// GetBySearch is the linear-scan fallback used when the in-memory index is
// unavailable. Results are capped at limit.
func (s *Store[T]) GetBySearch(ctx context.Context, query string, limit int) ([]T, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]T, 0, limit)
	for _, rec := range all {
		if !rec.MatchesSearch(query) {
			continue
		}
		matches = append(matches, rec)
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

// GetByCategory filters by exact group-name match. CategoryAll means no
// filter.
func (s *Store[T]) GetByCategory(ctx context.Context, category string) ([]T, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if category == CategoryAll {
		return all, nil
	}
	matches := make([]T, 0, len(all))
	for _, rec := range all {
		if rec.Category() == category {
			matches = append(matches, rec)
		}
	}
	return matches, nil
}

// Clear deletes all records and metadata for the collection. Used on logout.
func (s *Store[T]) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.recordsKey(), s.metaKey()).Err(); err != nil {
		return fmt.Errorf("mirror: clear %s: %w", s.collection, err)
	}
	return nil
}

// Meta returns the sync metadata. A never-synced collection yields the zero
// Meta (LastSync.IsZero() reports true).
func (s *Store[T]) Meta(ctx context.Context) (Meta, error) {
	payload, err := s.client.Get(ctx, s.metaKey()).Bytes()
	if err == redis.Nil {
		return Meta{}, nil
	}
	if err != nil {
		return Meta{}, fmt.Errorf("mirror: meta %s: %w", s.collection, err)
	}
	var meta Meta
	if err := json.Unmarshal(payload, &meta); err != nil {
		return Meta{}, fmt.Errorf("mirror: decode %s meta: %w", s.collection, err)
	}
	return meta, nil
}

// MarkSyncing records that a sync attempt is in flight, preserving the
// previous sync timestamp and version.
func (s *Store[T]) MarkSyncing(ctx context.Context) error {
	return s.setStatus(ctx, StatusSyncing)
}

// MarkError records a failed sync attempt. Failure must still be reflected
// in the metadata so staleness decisions see it.
func (s *Store[T]) MarkError(ctx context.Context) error {
	return s.setStatus(ctx, StatusError)
}

func (s *Store[T]) setStatus(ctx context.Context, status SyncStatus) error {
	meta, err := s.Meta(ctx)
	if err != nil {
		return err
	}
	meta.Status = status
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("mirror: encode %s meta: %w", s.collection, err)
	}
	if err := s.client.Set(ctx, s.metaKey(), payload, 0).Err(); err != nil {
		return fmt.Errorf("mirror: mark %s %s: %w", s.collection, status, err)
	}
	return nil
}
