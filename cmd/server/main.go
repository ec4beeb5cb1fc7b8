// Command server serves earthquake searches over HTTP and, when Kafka ingest
// is enabled, keeps the record store fed from the source topic.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/quake-search-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-search-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-search-service/internal/adapter/mapbox"
	"github.com/couchcryptid/quake-search-service/internal/adapter/resultcache"
	"github.com/couchcryptid/quake-search-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/quake-search-service/internal/config"
	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/couchcryptid/quake-search-service/internal/pipeline"
	"github.com/couchcryptid/quake-search-service/internal/search"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN,
		sqlstore.BreakerSettings{Failures: cfg.BreakerFailures, Timeout: cfg.BreakerTimeout}, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	backend, err := resultcache.Open(resultcache.Settings{
		Backend: cfg.CacheBackend,
		Size:    cfg.CacheSize,
		Dir:     cfg.CacheDir,
	}, logger)
	if err != nil {
		return err
	}
	var cache search.ResultCache
	if backend != nil {
		defer backend.Close()
		cache = backend
	}
	logger.Info("result cache configured", "backend", cfg.CacheBackend, "ttl", cfg.CacheTTL)

	svc := search.NewService(store, cache, logger, metrics, search.Options{
		CacheTTL:      cfg.CacheTTL,
		MaxCandidates: cfg.SearchMaxCandidates,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, store, httpadapter.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start ingest pipeline (feature-flagged via KAFKA_ENABLED).
	var closers []func() error
	if cfg.KafkaEnabled {
		closers = startIngest(ctx, cfg, store, logger, metrics)
	} else {
		logger.Info("kafka ingest disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// startIngest launches the Kafka -> store pipeline and returns the closers
// for its Kafka clients.
func startIngest(ctx context.Context, cfg *config.Config, store *sqlstore.Store, logger *slog.Logger, metrics *observability.Metrics) []func() error {
	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, cfg.MapboxRPS, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, 0, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	closers := []func() error{reader.Close}

	var opts []pipeline.Option
	if cfg.KafkaDLQTopic != "" {
		dlq := kafkaadapter.NewDeadLetterWriter(cfg, logger)
		closers = append(closers, dlq.Close)
		opts = append(opts, pipeline.WithDeadLetters(dlq))
	}

	p := pipeline.New(reader, pipeline.NewTransformer(geocoder, logger), store, logger, metrics, cfg.BatchSize, opts...)
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()
	return closers
}
