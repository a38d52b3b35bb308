package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bitcoin-rates-service/internal/adapter/cache"
	httpRouter "bitcoin-rates-service/internal/adapter/http"
	"bitcoin-rates-service/internal/adapter/repository"
	"bitcoin-rates-service/internal/adapter/storage"
	"bitcoin-rates-service/internal/config"
	"bitcoin-rates-service/internal/metrics"
	"bitcoin-rates-service/internal/service"
	"bitcoin-rates-service/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewRotatingLogger(cfg.Logging.Level, logger.FileOptions{
		Filename:   cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	log.Info("Starting bitcoin rates service", "storage", cfg.Storage.Backend)

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	store, closeStore, err := openStore(cfg.Storage, cfg.Cache.KeyPrefix, log)
	if err != nil {
		log.Error("Failed to open cache storage", "error", err, "backend", cfg.Storage.Backend)
		os.Exit(1)
	}
	defer closeStore()

	rateCache := cache.NewTieredCache(store, log.With("component", "cache"),
		cache.WithDefaultTTL(cfg.Cache.TTL),
		cache.WithRecorder(appMetrics),
		cache.WithKeyPrefix(cfg.Cache.KeyPrefix, cfg.Cache.IndexKey),
	)

	httpClient := &http.Client{Timeout: cfg.ExchangeAPI.Timeout}
	rateRepo := repository.NewRateFetcher(
		[]repository.Provider{
			repository.NewCoinGecko(cfg.ExchangeAPI.CoinGeckoURL, httpClient),
			repository.NewCoinDesk(cfg.ExchangeAPI.CoinDeskURL, httpClient),
		},
		cfg.ExchangeAPI.MaxRetries,
		log.With("component", "fetcher"),
		repository.WithFetchRecorder(appMetrics),
	)

	serviceOpts := []service.Option{service.WithRatesTTL(cfg.Cache.TTL)}
	if cfg.ExchangeAPI.SampleFallback {
		serviceOpts = append(serviceOpts, service.WithFallback(repository.SampleSnapshot))
	}
	rateService := service.NewRateService(rateRepo, rateCache, log, serviceOpts...)

	handler := httpRouter.NewHandler(rateService, log, appMetrics)
	router := httpRouter.NewRouter(handler, log, appMetrics, prometheus.DefaultGatherer)
	routes := router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancelBackground := context.WithCancel(context.Background())
	go refreshRates(ctx, rateService, cfg.ExchangeAPI.RefreshRate, log)
	go cleanupCache(ctx, rateService, cfg.Cache.CleanupInterval, log)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	cancelBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}

// openStore builds the store behind the persistent cache tier. The returned
// func releases its connections.
func openStore(cfg config.StorageConfig, keyPrefix string, log *logger.Logger) (cache.Store, func() error, error) {
	switch cfg.Backend {
	case "redis":
		store, err := storage.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, storage.WithKeyPrefix(keyPrefix))
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using redis cache storage", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return store, store.Close, nil

	case "postgres":
		store, err := storage.NewPostgresStore(cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		log.Info("Using postgres cache storage")
		return store, store.Close, nil

	default:
		log.Info("Using in-process cache storage")
		return cache.NewMapStore(), func() error { return nil }, nil
	}
}

// refreshRates fetches once at startup and then on every tick.
func refreshRates(ctx context.Context, service *service.RateService, interval time.Duration, log *logger.Logger) {
	if err := service.RefreshRates(ctx); err != nil {
		log.Error("Failed to refresh rates at startup", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := service.RefreshRates(ctx); err != nil {
				log.Error("Failed to refresh rates", "error", err)
			}
		case <-ctx.Done():
			log.Info("Stopping rate refresh goroutine")
			return
		}
	}
}

// cleanupCache sweeps expired entries on every tick. The cache already ran
// one pass when it was built.
func cleanupCache(ctx context.Context, service *service.RateService, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			service.CleanupCache(ctx)
		case <-ctx.Done():
			log.Info("Stopping cache cleanup goroutine")
			return
		}
	}
}
