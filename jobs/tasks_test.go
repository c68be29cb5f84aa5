package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/registerpos/registerd/internal/backend"
)

type mockSaver struct {
	saved []backend.LastSoldPrice
	err   error
}

func (m *mockSaver) SaveLastSoldPrice(_ context.Context, rec backend.LastSoldPrice) (backend.LastSoldPrice, error) {
	if m.err != nil {
		return backend.LastSoldPrice{}, m.err
	}
	m.saved = append(m.saved, rec)
	return rec, nil
}

type mockSyncer struct {
	collections []string
	err         error
}

func (m *mockSyncer) ForceSyncCollection(_ context.Context, collection string) error {
	m.collections = append(m.collections, collection)
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPriceSaveJobHandle(t *testing.T) {
	saver := &mockSaver{}
	job := NewPriceSaveJob(saver, testLogger(), nil)

	task, err := NewSaveLastSoldPriceTask(SaveLastSoldPricePayload{
		ProductID: "P1", BranchID: "BR-1", Unit: "PCS", Price: 9.5, TaxMode: "exclusive",
	})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, saver.saved, 1)
	require.Equal(t, "P1", saver.saved[0].ProductID)
	require.Equal(t, 9.5, saver.saved[0].Price)
}

func TestPriceSaveJobFailureIsSwallowed(t *testing.T) {
	saver := &mockSaver{err: errors.New("backend down")}
	job := NewPriceSaveJob(saver, testLogger(), nil)

	task, err := NewSaveLastSoldPriceTask(SaveLastSoldPricePayload{ProductID: "P1"})
	require.NoError(t, err)

	// one attempt only, never requeued
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestPriceSaveJobBadPayload(t *testing.T) {
	job := NewPriceSaveJob(&mockSaver{}, testLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSaveLastSoldPrice, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCatalogRefreshJobHandle(t *testing.T) {
	syncer := &mockSyncer{}
	job := NewCatalogRefreshJob(syncer, testLogger(), nil)

	task, err := NewCatalogRefreshTask("products")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"products"}, syncer.collections)
}

func TestCatalogRefreshJobPropagatesError(t *testing.T) {
	syncer := &mockSyncer{err: errors.New("sync failed")}
	job := NewCatalogRefreshJob(syncer, testLogger(), nil)

	task, err := NewCatalogRefreshTask("customers")
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}
