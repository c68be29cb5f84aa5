package journal

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	inserts int
	recents int
	err     error
	sales   []Sale
}

func (m *mockRepo) Insert(ctx context.Context, sale Sale) (Sale, error) {
	m.inserts++
	if m.err != nil {
		return Sale{}, m.err
	}
	sale.ID = int64(m.inserts)
	m.sales = append(m.sales, sale)
	return sale, nil
}

func (m *mockRepo) Recent(ctx context.Context, limit int) ([]Sale, error) {
	m.recents++
	if limit < len(m.sales) {
		return m.sales[:limit], nil
	}
	return m.sales, nil
}

func TestRecordDuplicateIsNoOp(t *testing.T) {
	repo := &mockRepo{err: ErrDuplicate}
	svc := NewService(repo, slog.New(slog.DiscardHandler))

	err := svc.Record(context.Background(), Sale{Reference: "ref-1"})
	require.NoError(t, err)
	require.Equal(t, 1, repo.inserts)
}

func TestRecordAndRecent(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, Sale{Reference: "ref-1", Total: 115}))
	require.NoError(t, svc.Record(ctx, Sale{Reference: "ref-2", Total: 230}))

	sales, err := svc.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sales, 2)
}
