package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/registerpos/registerd/internal/app"
	"github.com/registerpos/registerd/internal/backend"
	"github.com/registerpos/registerd/internal/catalog"
	"github.com/registerpos/registerd/internal/fetchcache"
	jobmetrics "github.com/registerpos/registerd/internal/jobs"
	"github.com/registerpos/registerd/internal/mirror"
	"github.com/registerpos/registerd/internal/platform/cache"
	"github.com/registerpos/registerd/jobs"
)

type collectionSyncer struct {
	products  *fetchcache.Cache[catalog.Product]
	customers *fetchcache.Cache[catalog.Customer]
}

func (s collectionSyncer) ForceSyncCollection(ctx context.Context, collection string) error {
	switch collection {
	case mirror.CollectionProducts:
		_, err := s.products.ForceSync(ctx)
		return err
	case mirror.CollectionCustomers:
		_, err := s.customers.ForceSync(ctx)
		return err
	default:
		return fmt.Errorf("worker: unknown collection %s", collection)
	}
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	backendClient := backend.NewClient(cfg.BackendURL)

	cacheCfg := fetchcache.Config{
		StaleTime:    cfg.CacheStaleTime,
		MaxAge:       cfg.CacheMaxAge,
		RetryOnError: true,
	}
	productStore := mirror.NewStore[catalog.Product](redisClient, mirror.CollectionProducts)
	products := fetchcache.New(mirror.CollectionProducts, productStore,
		func(ctx context.Context) ([]catalog.Product, error) {
			return backendClient.FetchProducts(ctx, cfg.ProductFetchLimit)
		}, cacheCfg, logger)
	customerStore := mirror.NewStore[catalog.Customer](redisClient, mirror.CollectionCustomers)
	customers := fetchcache.New(mirror.CollectionCustomers, customerStore,
		func(ctx context.Context) ([]catalog.Customer, error) {
			return backendClient.FetchCustomers(ctx, cfg.CustomerFetchLimit)
		}, cacheCfg, logger)

	metrics := jobmetrics.NewMetrics(nil)
	priceJob := jobs.NewPriceSaveJob(backendClient, logger, metrics)
	refreshJob := jobs.NewCatalogRefreshJob(collectionSyncer{products: products, customers: customers}, logger, metrics)

	productRefreshTask, err := jobs.NewCatalogRefreshTask(mirror.CollectionProducts)
	if err != nil {
		logger.Error("build product refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	customerRefreshTask, err := jobs.NewCatalogRefreshTask(mirror.CollectionCustomers)
	if err != nil {
		logger.Error("build customer refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSaveLastSoldPrice, Handler: priceJob.Handle},
			{Type: jobs.TaskTypeCatalogRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: productRefreshTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "30 * * * *", Task: customerRefreshTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
