package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/event"
	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/metrics"
	"github.com/Wuchinator/landing-analytics/internal/storage"
)

// BatchProcessor is the aggregator fed by the Kafka consumer.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, events []event.Event) (*event.BatchResult, error)
}

// Service consumes published event batches and aggregates them.
type Service struct {
	processor BatchProcessor
	logger    *zap.Logger
}

func NewService(processor BatchProcessor, logger *zap.Logger) *Service {
	return &Service{
		processor: processor,
		logger:    logger,
	}
}

func (s *Service) ProcessMessage(ctx context.Context, key, value []byte) error {
	var msg event.BatchMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		metrics.ConsumedMessagesTotal.WithLabelValues("malformed").Inc()
		s.logger.Error("Failed to unmarshal event batch",
			zap.Error(err),
			zap.String("key", string(key)),
		)
		return fmt.Errorf("failed to decode batch: %w", err)
	}

	result, err := s.processor.ProcessBatch(ctx, msg.Events)
	if err != nil {
		metrics.ConsumedMessagesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("failed to process batch: %w", err)
	}
	metrics.ConsumedMessagesTotal.WithLabelValues("processed").Inc()

	s.logger.Debug("Event batch consumed",
		zap.String("key", string(key)),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Duration("lag", time.Since(msg.AcceptedAt)),
	)
	return nil
}

// CreateMessageHandler adapts ProcessMessage to the Kafka consumer.
func (s *Service) CreateMessageHandler() func(ctx context.Context, key, value []byte) error {
	return s.ProcessMessage
}

// RollupService copies per-day counters and daily unique visitor counts from
// the KV store into PostgreSQL so history outlives the KV data.
type RollupService struct {
	repo     Repository
	store    *storage.Store
	clock    clockwork.Clock
	interval time.Duration
	logger   *zap.Logger
}

func NewRollupService(repo Repository, store *storage.Store, clock clockwork.Clock, interval time.Duration, logger *zap.Logger) *RollupService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RollupService{
		repo:     repo,
		store:    store,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// RollupOnce writes today's and yesterday's values. Yesterday is included so
// late events for the previous day are still captured after midnight. Any
// failed read aborts the rollup so stored history is never replaced by zeros.
func (r *RollupService) RollupOnce(ctx context.Context) (int, error) {
	if r.store.Backend.Kind() == kv.KindMemory {
		return 0, ErrVolatileStore
	}

	now := r.clock.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	days := []time.Time{today.AddDate(0, 0, -1), today}

	rows := make([]*DailyMetric, 0, len(days)*(len(dailyCounters)+1))
	for _, d := range days {
		day := storage.Day(d)
		for _, c := range dailyCounters {
			value, err := r.store.Counters.TryGet(ctx, c.key(day))
			if err != nil {
				return 0, fmt.Errorf("failed to read %s for %s: %w", c.metric, day, err)
			}
			rows = append(rows, NewDailyMetric(d, c.metric, value, now))
		}
		unique, err := r.store.Visitors.TryCountUnique(ctx, storage.VisitorsUniqueDay(day))
		if err != nil {
			return 0, fmt.Errorf("failed to read %s for %s: %w", MetricUniqueVisitors, day, err)
		}
		rows = append(rows, NewDailyMetric(d, MetricUniqueVisitors, unique, now))
	}

	if err := r.repo.UpsertDaily(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to store rollup: %w", err)
	}
	metrics.RollupRowsTotal.Add(float64(len(rows)))

	r.logger.Info("Daily rollup completed",
		zap.Int("rows", len(rows)),
		zap.String("today", storage.Day(today)),
	)
	return len(rows), nil
}

// Run rolls up once immediately and then on every tick until ctx ends. It
// returns at once when the store does not outlive the process.
func (r *RollupService) Run(ctx context.Context) {
	if r.store.Backend.Kind() == kv.KindMemory {
		r.logger.Warn("Rollup disabled: in-memory counters would overwrite history", zap.Error(ErrVolatileStore))
		return
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RollupOnce(ctx); err != nil {
			r.logger.Error("Daily rollup failed", zap.Error(err))
		}
		select {
		case <-ticker.Chan():
		case <-ctx.Done():
			r.logger.Info("Rollup stopped")
			return
		}
	}
}
