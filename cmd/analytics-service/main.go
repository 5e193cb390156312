package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/analytics"
	"github.com/Wuchinator/landing-analytics/internal/config"
	"github.com/Wuchinator/landing-analytics/internal/event"
	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/storage"
	"github.com/Wuchinator/landing-analytics/pkg/kafka"
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

	log = logger.WithService(log, "analytics-service")
	log.Info("Starting Analytics Service",
		zap.String("environment", cfg.Environment),
		zap.String("consumer_group", cfg.Kafka.GroupID),
		zap.Bool("rollup_enabled", cfg.Rollup.Enabled),
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
	if backend.Kind() == kv.KindMemory {
		log.Warn("Analytics service is aggregating into process memory, query-service will not see these counters and rollups are disabled")
	}

	clock := clockwork.NewRealClock()
	store := storage.New(backend, storage.Config{
		EngagementMarkTTL: cfg.Analytics.EngagementMarkTTL,
		ActiveVisitorTTL:  cfg.Analytics.ActiveVisitorTTL,
	}, clock, log)

	aggregator := event.NewService(store, event.Config{
		MaxBatchSize: cfg.Analytics.MaxBatchSize,
		SessionTTL:   cfg.Analytics.SessionTTL,
	}, log)
	analyticsService := analytics.NewService(aggregator, log)

	var wg sync.WaitGroup

	if cfg.Rollup.Enabled {
		db, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.PostgresDSN(),
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		}, log)
		if err != nil {
			log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()

		repo := analytics.NewRepository(db.DB, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to prepare rollup schema", zap.Error(err))
		}

		rollup := analytics.NewRollupService(repo, store, clock, cfg.Rollup.Interval, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			rollup.Run(ctx)
		}()
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:           cfg.Kafka.Brokers,
		Topics:            []string{cfg.Kafka.Topic},
		GroupID:           cfg.Kafka.GroupID,
		AutoCommit:        true,
		CommitInterval:    1 * time.Second,
		SessionTimeout:    10 * time.Second,
		RebalanceStrategy: "sticky",
	}, analyticsService.CreateMessageHandler(), log)
	if err != nil {
		log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil {
			log.Error("Consumer error", zap.Error(err))
		}
	}()

	select {
	case <-consumer.WaitReady():
		log.Info("Kafka consumer is ready and consuming messages")
	case <-ctx.Done():
	}

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("Shutdown timed out")
	}
	if err := consumer.Close(); err != nil {
		log.Error("Failed to close consumer", zap.Error(err))
	}

	log.Info("Analytics Service stopped")
}
