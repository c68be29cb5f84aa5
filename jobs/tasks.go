package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/registerpos/registerd/internal/backend"
	"github.com/registerpos/registerd/internal/cart"
	jobmetrics "github.com/registerpos/registerd/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSaveLastSoldPrice persists a sold price as the new
	// last-sold record for its product, branch and unit.
	TaskTypeSaveLastSoldPrice = "pricing:save_last_sold"
	// TaskTypeCatalogRefresh force-syncs one mirrored collection.
	TaskTypeCatalogRefresh = "catalog:refresh"
)

// SaveLastSoldPricePayload describes one price record to persist.
type SaveLastSoldPricePayload struct {
	ProductID string  `json:"product_id"`
	BranchID  string  `json:"branch_id"`
	Unit      string  `json:"unit"`
	Price     float64 `json:"price"`
	TaxMode   string  `json:"tax_mode"`
}

// NewSaveLastSoldPriceTask constructs an Asynq task.
func NewSaveLastSoldPriceTask(payload SaveLastSoldPricePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSaveLastSoldPrice, data), nil
}

// CatalogRefreshPayload names the collection to refresh.
type CatalogRefreshPayload struct {
	Collection string `json:"collection"`
}

// NewCatalogRefreshTask constructs an Asynq task.
func NewCatalogRefreshTask(collection string) (*asynq.Task, error) {
	data, err := json.Marshal(CatalogRefreshPayload{Collection: collection})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCatalogRefresh, data), nil
}

// PriceSaveJob handles TaskTypeSaveLastSoldPrice tasks.
type PriceSaveJob struct {
	saver   cart.PriceSaver
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewPriceSaveJob constructs the job.
func NewPriceSaveJob(saver cart.PriceSaver, logger *slog.Logger, metrics *jobmetrics.Metrics) *PriceSaveJob {
	return &PriceSaveJob{saver: saver, logger: logger, metrics: metrics}
}

// Handle persists one price record. The task runs with zero retries; a
// failed save is logged and dropped, never replayed against the register.
func (j *PriceSaveJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskTypeSaveLastSoldPrice)
	var payload SaveLastSoldPricePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	_, err := j.saver.SaveLastSoldPrice(ctx, backend.LastSoldPrice{
		ProductID: payload.ProductID,
		BranchID:  payload.BranchID,
		Unit:      payload.Unit,
		Price:     payload.Price,
		TaxMode:   payload.TaxMode,
	})
	if err != nil {
		j.logger.Warn("last sold price save failed",
			slog.String("product", payload.ProductID),
			slog.String("unit", payload.Unit),
			slog.Any("error", err))
	}
	_ = tracker.End(err)
	return nil
}

// CollectionSyncer force-syncs one mirrored collection by name.
type CollectionSyncer interface {
	ForceSyncCollection(ctx context.Context, collection string) error
}

// CatalogRefreshJob handles TaskTypeCatalogRefresh tasks.
type CatalogRefreshJob struct {
	syncer  CollectionSyncer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewCatalogRefreshJob constructs the job.
func NewCatalogRefreshJob(syncer CollectionSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogRefreshJob {
	return &CatalogRefreshJob{syncer: syncer, logger: logger, metrics: metrics}
}

// Handle refreshes the named collection.
func (j *CatalogRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskTypeCatalogRefresh)
	var payload CatalogRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if err := j.syncer.ForceSyncCollection(ctx, payload.Collection); err != nil {
		j.logger.Warn("catalog refresh failed",
			slog.String("collection", payload.Collection),
			slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
