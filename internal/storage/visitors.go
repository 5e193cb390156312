package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/metrics"
)

// Visitors tracks unique visitors as append-only sets, one per scope
// (VisitorsUnique for all time, VisitorsUniqueDay for a UTC day). Counts come
// from set cardinality only.
type Visitors struct {
	backend kv.Backend
	logger  *zap.Logger
}

func NewVisitors(backend kv.Backend, logger *zap.Logger) *Visitors {
	return &Visitors{
		backend: backend,
		logger:  logger,
	}
}

// RecordVisit reports whether visitorID is new to the scope.
func (v *Visitors) RecordVisit(ctx context.Context, scope, visitorID string) (bool, error) {
	if visitorID == "" {
		return false, ErrEmptySessionID
	}
	added, err := v.backend.SAdd(ctx, scope, visitorID)
	if err != nil {
		return false, fmt.Errorf("failed to record visit in %s: %w", scope, err)
	}
	return added, nil
}

func (v *Visitors) CountUnique(ctx context.Context, scope string) int64 {
	count, err := v.TryCountUnique(ctx, scope)
	if err != nil {
		metrics.RecordDegraded("count_unique")
		v.logger.Warn("Storage operation degraded to default",
			zap.String("op", "count_unique"),
			zap.String("key", scope),
			zap.Error(err),
		)
		return 0
	}
	return count
}

// TryCountUnique returns the scope's cardinality or the backend error.
func (v *Visitors) TryCountUnique(ctx context.Context, scope string) (int64, error) {
	count, err := v.backend.SCard(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to count visitors in %s: %w", scope, err)
	}
	return count, nil
}
