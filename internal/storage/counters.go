package storage

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/metrics"
)

// Counters is the typed counter store. Increment and Get never fail: a
// backend error is logged, counted in analytics_storage_degraded_total and
// answered with 0. The Try/Batch/Set variants return errors to callers that
// must react to them.
type Counters struct {
	backend kv.Backend
	logger  *zap.Logger
}

func NewCounters(backend kv.Backend, logger *zap.Logger) *Counters {
	return &Counters{
		backend: backend,
		logger:  logger,
	}
}

func (c *Counters) Increment(ctx context.Context, key string, by int64) int64 {
	value, err := c.TryIncrement(ctx, key, by)
	if err != nil {
		c.degraded("increment", key, err)
		return 0
	}
	return value
}

// TryIncrement adds by to key. Backends without a native increment-by-N get a
// read-then-write, which can lose updates under contention.
func (c *Counters) TryIncrement(ctx context.Context, key string, by int64) (int64, error) {
	if by == 1 {
		return c.backend.Incr(ctx, key)
	}
	if incr, ok := c.backend.(kv.IncrementerBy); ok {
		return incr.IncrBy(ctx, key, by)
	}

	current, err := c.read(ctx, key)
	if err != nil {
		return 0, err
	}
	next := current + by
	if err := c.backend.Set(ctx, key, strconv.FormatInt(next, 10)); err != nil {
		return 0, fmt.Errorf("failed to write counter %s: %w", key, err)
	}
	return next, nil
}

func (c *Counters) Get(ctx context.Context, key string) int64 {
	value, err := c.read(ctx, key)
	if err != nil {
		c.degraded("get", key, err)
		return 0
	}
	return value
}

// TryGet is Get for callers that must not mistake a failed read for zero.
func (c *Counters) TryGet(ctx context.Context, key string) (int64, error) {
	return c.read(ctx, key)
}

func (c *Counters) Set(ctx context.Context, key string, value int64) error {
	if err := c.backend.Set(ctx, key, strconv.FormatInt(value, 10)); err != nil {
		return fmt.Errorf("failed to set counter %s: %w", key, err)
	}
	return nil
}

// BatchIncrement applies all deltas through the backend pipeline.
func (c *Counters) BatchIncrement(ctx context.Context, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	if err := c.backend.PipelineIncr(ctx, deltas); err != nil {
		return fmt.Errorf("failed to apply %d counter deltas: %w", len(deltas), err)
	}
	return nil
}

func (c *Counters) read(ctx context.Context, key string) (int64, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s: %w", key, kv.ErrNotInteger)
	}
	return value, nil
}

func (c *Counters) degraded(op, key string, err error) {
	metrics.RecordDegraded(op)
	c.logger.Warn("Storage operation degraded to default",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
