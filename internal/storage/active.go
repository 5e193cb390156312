package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/metrics"
)

// ActiveVisitors keeps a presence key per session holding the last-seen time
// in epoch milliseconds. It is the only consumer of key enumeration and is
// never used for unique visitor counts.
type ActiveVisitors struct {
	backend kv.Backend
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewActiveVisitors(backend kv.Backend, ttl time.Duration, clock clockwork.Clock, logger *zap.Logger) *ActiveVisitors {
	return &ActiveVisitors{
		backend: backend,
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
	}
}

func (a *ActiveVisitors) Touch(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	now := strconv.FormatInt(a.clock.Now().UnixMilli(), 10)
	if err := a.backend.SetWithTTL(ctx, ActiveVisitorKey(sessionID), now, a.ttl); err != nil {
		return fmt.Errorf("failed to mark visitor active: %w", err)
	}
	return nil
}

// Count returns sessions seen within the TTL window. Keys whose TTL has not
// been enforced yet are filtered by their stored timestamp.
func (a *ActiveVisitors) Count(ctx context.Context) int64 {
	keys, err := a.backend.Keys(ctx, activeVisitorPrefix+"*")
	if err != nil {
		a.degraded(err)
		return 0
	}

	cutoff := a.clock.Now().Add(-a.ttl).UnixMilli()
	var count int64
	for _, key := range keys {
		raw, ok, err := a.backend.Get(ctx, key)
		if err != nil {
			a.degraded(err)
			continue
		}
		if !ok {
			continue
		}
		seen, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if seen > cutoff {
			count++
		}
	}
	return count
}

func (a *ActiveVisitors) degraded(err error) {
	metrics.RecordDegraded("active_visitors")
	a.logger.Warn("Storage operation degraded to default",
		zap.String("op", "active_visitors"),
		zap.Error(err),
	)
}
