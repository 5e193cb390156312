package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/config"
	"github.com/Wuchinator/landing-analytics/internal/event"
	"github.com/Wuchinator/landing-analytics/internal/httpserver"
	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/query"
	"github.com/Wuchinator/landing-analytics/internal/storage"
	"github.com/Wuchinator/landing-analytics/pkg/kafka"
	"github.com/Wuchinator/landing-analytics/pkg/logger"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Error loading config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Error initializing logger: %v", err))
	}

	defer log.Sync()

	log = logger.WithService(log, "event-service")
	log.Info("Starting Event Service",
		zap.String("environment", cfg.Environment),
		zap.String("http_port", cfg.HTTP.EventPort),
		zap.String("ingest_mode", cfg.Analytics.IngestMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := kv.New(ctx, kv.Config{
		URL:     cfg.KV.URL,
		Token:   cfg.KV.Token,
		Timeout: cfg.KV.Timeout,
		Retries: cfg.KV.Retries,
	}, log)
	defer backend.Close()

	clock := clockwork.NewRealClock()
	store := storage.New(backend, storage.Config{
		EngagementMarkTTL: cfg.Analytics.EngagementMarkTTL,
		ActiveVisitorTTL:  cfg.Analytics.ActiveVisitorTTL,
	}, clock, log)

	var ingester event.Ingester
	switch cfg.Analytics.IngestMode {
	case config.IngestKafka:
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:          cfg.Kafka.Brokers,
			Topic:            cfg.Kafka.Topic,
			Retries:          cfg.Kafka.ProducerRetries,
			Timeout:          cfg.Kafka.ProducerTimeout,
			RequiredAcks:     cfg.Kafka.RequiredAcks,
			Compression:      cfg.Kafka.CompressionType,
			IdempotentWrites: cfg.Kafka.IdempotentWrites,
			MaxMessageBytes:  cfg.Kafka.MaxMessageBytes,
		}, log)
		if err != nil {
			log.Fatal("Error initializing kafka", zap.Error(err))
		}
		defer producer.Close()
		ingester = event.NewAsyncIngester(producer, cfg.Analytics.MaxBatchSize, clock, log)
	default:
		ingester = event.NewService(store, event.Config{
			MaxBatchSize: cfg.Analytics.MaxBatchSize,
			SessionTTL:   cfg.Analytics.SessionTTL,
		}, log)
	}

	router := newRouter(cfg, backend, store, ingester, clock, log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.EventPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := httpserver.Serve(ctx, srv, cfg.HTTP.ShutdownTimeout, log); err != nil {
		log.Fatal("HTTP server failed", zap.Error(err))
	}
	log.Info("Event Service stopped")
}

func newRouter(cfg *config.Config, backend kv.Backend, store *storage.Store, ingester event.Ingester, clock clockwork.Clock, log *zap.Logger) chi.Router {
	health := func(ctx context.Context) (bool, map[string]string) {
		status := kv.CheckStatus(ctx, backend)
		return status.Connected, map[string]string{"kv": status.Type + ":" + status.Indicator}
	}

	router := httpserver.NewRouter(log, health, httpserver.CORS(cfg.HTTP.AllowedOrigins))
	router.Group(func(r chi.Router) {
		r.Use(httpserver.RateLimit(cfg.HTTP.RateLimit))
		event.NewHandler(ingester, store.Active, clock, log).Routes(r)
	})

	// In-memory counters exist only in this process, so the dashboard has to
	// be served from here.
	if backend.Kind() == kv.KindMemory && cfg.Analytics.IngestMode == config.IngestDirect {
		log.Warn("Serving /api/stats from event-service: counters are held in process memory")
		query.NewHandler(query.NewService(store, nil, clock, log), cfg.Analytics.Password, clock, log).
			WithTimelineDays(cfg.Analytics.TimelineDays).
			Routes(router)
	}
	return router
}
