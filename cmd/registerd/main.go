package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/registerpos/registerd/internal/api"
	"github.com/registerpos/registerd/internal/app"
	"github.com/registerpos/registerd/internal/backend"
	"github.com/registerpos/registerd/internal/cart"
	"github.com/registerpos/registerd/internal/catalog"
	"github.com/registerpos/registerd/internal/checkout"
	"github.com/registerpos/registerd/internal/debounce"
	"github.com/registerpos/registerd/internal/fetchcache"
	"github.com/registerpos/registerd/internal/journal"
	"github.com/registerpos/registerd/internal/mirror"
	"github.com/registerpos/registerd/internal/observability"
	"github.com/registerpos/registerd/internal/platform/cache"
	"github.com/registerpos/registerd/internal/platform/db"
	"github.com/registerpos/registerd/internal/search"
	"github.com/registerpos/registerd/internal/settings"
	"github.com/registerpos/registerd/jobs"
)

const scanTimeout = 5 * time.Second

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	if err := backendClient.Ping(ctx); err != nil {
		logger.Warn("backend unreachable at startup", slog.Any("error", err))
	}

	cacheCfg := fetchcache.Config{
		StaleTime:            cfg.CacheStaleTime,
		MaxAge:               cfg.CacheMaxAge,
		EnableBackgroundSync: true,
		RetryOnError:         true,
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

	go products.RunBackgroundSync(ctx, cfg.SyncInterval)
	go customers.RunBackgroundSync(ctx, cfg.SyncInterval)

	settingsStore := settings.NewStore(redisClient)
	strategy, err := settingsStore.PricingStrategy(ctx)
	if err != nil {
		logger.Warn("read pricing strategy", slog.Any("error", err))
		strategy = cart.StrategyDefault
	}
	taxMode, err := settingsStore.TaxMode(ctx)
	if err != nil {
		logger.Warn("read tax mode", slog.Any("error", err))
		taxMode = cart.TaxInclusive
	}
	branchID, err := settingsStore.Branch(ctx, cfg.BranchID)
	if err != nil {
		logger.Warn("read branch", slog.Any("error", err))
		branchID = cfg.BranchID
	}

	lastSold := cart.NewLastSoldCache(logger)
	register := cart.New(logger, lastSold, backendClient, branchID, taxMode, strategy)

	journalRepo := journal.NewRepository(dbpool)
	journalService := journal.NewService(journalRepo, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	checkoutService := checkout.NewService(register, backendClient, journalService, jobsClient, logger)

	productEngine := search.NewEngine[catalog.Product]()
	productSession := debounce.NewSession(cfg.ProductSearchDelay, func(query string) []catalog.Product {
		scanCtx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()
		records, err := products.Read(scanCtx)
		if err != nil && !errors.Is(err, fetchcache.ErrStaleData) {
			logger.Warn("product scan read", slog.Any("error", err))
			// Unranked mirror scan when the cache cannot produce records.
			matches, scanErr := productStore.GetBySearch(scanCtx, query, 50)
			if scanErr != nil {
				logger.Warn("product mirror scan", slog.Any("error", scanErr))
				return nil
			}
			return matches
		}
		return productEngine.Query(records, products.Generation(), query, 50)
	})
	go productSession.Run(ctx)

	customerEngine := search.NewEngine[catalog.Customer]()
	customerSession := debounce.NewSession(cfg.CustomerSearchDelay, func(query string) []catalog.Customer {
		scanCtx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()
		records, err := customers.Read(scanCtx)
		if err != nil && !errors.Is(err, fetchcache.ErrStaleData) {
			logger.Warn("customer scan read", slog.Any("error", err))
			matches, scanErr := customerStore.GetBySearch(scanCtx, query, 50)
			if scanErr != nil {
				logger.Warn("customer mirror scan", slog.Any("error", scanErr))
				return nil
			}
			return matches
		}
		return customerEngine.Query(records, customers.Generation(), query, 50)
	})
	go customerSession.Run(ctx)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	apiHandler := api.NewHandler(api.HandlerParams{
		Logger:          logger,
		Products:        products,
		Customers:       customers,
		ProductSession:  productSession,
		CustomerSession: customerSession,
		Cart:            register,
		Prices:          lastSold,
		PriceFetcher:    backendClient,
		Checkout:        checkoutService,
		Settings:        settingsStore,
		Sales:           journalService,
		Metrics:         metrics,
	})

	router := app.NewRouter(app.RouterParams{
		Config:     cfg,
		Logger:     logger,
		APIHandler: apiHandler,
		JobHandler: jobHandler,
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
