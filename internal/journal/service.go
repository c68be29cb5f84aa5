package journal

import (
	"context"
	"errors"
	"log/slog"
)

// Service records completed sales and serves recent history.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record persists a completed sale. Recording the same reference twice is a
// no-op; the journal is idempotent per checkout.
func (s *Service) Record(ctx context.Context, sale Sale) error {
	_, err := s.repo.Insert(ctx, sale)
	if errors.Is(err, ErrDuplicate) {
		s.logger.Info("sale already journaled", slog.String("reference", sale.Reference))
		return nil
	}
	return err
}

// Recent returns the most recent sales, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Sale, error) {
	return s.repo.Recent(ctx, limit)
}
