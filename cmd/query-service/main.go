package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/analytics"
	"github.com/Wuchinator/landing-analytics/internal/config"
	"github.com/Wuchinator/landing-analytics/internal/httpserver"
	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/query"
	"github.com/Wuchinator/landing-analytics/internal/storage"
	"github.com/Wuchinator/landing-analytics/pkg/logger"
	"github.com/Wuchinator/landing-analytics/pkg/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log = logger.WithService(log, "query-service")
	log.Info("Starting Query Service",
		zap.String("environment", cfg.Environment),
		zap.String("http_port", cfg.HTTP.QueryPort),
	)
	if cfg.Analytics.Password == "" {
		log.Warn("ANALYTICS_PASSWORD is not set, every stats request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := kv.New(ctx, kv.Config{
		URL:     cfg.KV.URL,
		Token:   cfg.KV.Token,
		Timeout: cfg.KV.Timeout,
		Retries: cfg.KV.Retries,
	}, log)
	defer backend.Close()
	if backend.Kind() == kv.KindMemory {
		log.Warn("Query service is reading an empty in-process store and will report zeros; " +
			"without a KV store the dashboard is served by event-service at /api/stats")
	}

	clock := clockwork.NewRealClock()
	store := storage.New(backend, storage.Config{
		EngagementMarkTTL: cfg.Analytics.EngagementMarkTTL,
		ActiveVisitorTTL:  cfg.Analytics.ActiveVisitorTTL,
	}, clock, log)

	// History is optional: without PostgreSQL the snapshot still works.
	var history query.HistoryRepository
	var db *postgres.DB
	if cfg.Rollup.Enabled {
		db, err = postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.PostgresDSN(),
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		}, log)
		if err != nil {
			log.Warn("PostgreSQL unavailable, history endpoint disabled", zap.Error(err))
		} else {
			defer db.Close()
			history = analytics.NewRepository(db.DB, log)
		}
	}

	queryService := query.NewService(store, history, clock, log)
	queryHandler := query.NewHandler(queryService, cfg.Analytics.Password, clock, log).
		WithTimelineDays(cfg.Analytics.TimelineDays)

	health := func(ctx context.Context) (bool, map[string]string) {
		status := kv.CheckStatus(ctx, backend)
		deps := map[string]string{"kv": status.Type + ":" + status.Indicator}
		healthy := status.Connected
		if db != nil {
			if err := db.HealthCheck(ctx); err != nil {
				deps["postgres"] = err.Error()
				healthy = false
			} else {
				deps["postgres"] = "ok"
			}
		}
		return healthy, deps
	}

	router := httpserver.NewRouter(log, health, httpserver.CORS(cfg.HTTP.AllowedOrigins))
	queryHandler.Routes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.QueryPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := httpserver.Serve(ctx, srv, cfg.HTTP.ShutdownTimeout, log); err != nil {
		log.Fatal("HTTP server failed", zap.Error(err))
	}
	log.Info("Query Service stopped")
}
