package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/kv"
)

// Engagement maintains the running engagement total and the number of
// contributing sessions. Each session adds only the part of its duration
// above the high-water mark stored under EngagementMarkKey.
type Engagement struct {
	backend  kv.Backend
	counters *Counters
	markTTL  time.Duration
	logger   *zap.Logger
}

func NewEngagement(backend kv.Backend, counters *Counters, markTTL time.Duration, logger *zap.Logger) *Engagement {
	return &Engagement{
		backend:  backend,
		counters: counters,
		markTTL:  markTTL,
		logger:   logger,
	}
}

// Report records durationMs for sessionID. It returns the milliseconds added
// to the total and whether this was the session's first contribution.
// Non-positive durations are ignored.
func (e *Engagement) Report(ctx context.Context, sessionID string, durationMs int64) (int64, bool, error) {
	if sessionID == "" {
		return 0, false, ErrEmptySessionID
	}
	if durationMs <= 0 {
		return 0, false, nil
	}

	previous, err := e.raiseMark(ctx, sessionID, durationMs)
	if err != nil {
		return 0, false, err
	}
	if durationMs <= previous {
		return 0, false, nil
	}

	added := durationMs - previous
	if _, err := e.counters.TryIncrement(ctx, EngagementTotalMs, added); err != nil {
		return 0, false, fmt.Errorf("failed to add engagement time: %w", err)
	}

	first := previous == 0
	if first {
		if _, err := e.counters.TryIncrement(ctx, EngagementCount, 1); err != nil {
			return added, false, fmt.Errorf("failed to count engaged session: %w", err)
		}
	}

	e.logger.Debug("Engagement recorded",
		zap.String("session_id", sessionID),
		zap.Int64("duration_ms", durationMs),
		zap.Int64("added_ms", added),
		zap.Bool("first", first),
	)
	return added, first, nil
}

// raiseMark stores max(mark, durationMs) and returns the previous mark. The
// atomic path is used when the backend offers it; otherwise two concurrent
// reports for one session may both read the same mark.
func (e *Engagement) raiseMark(ctx context.Context, sessionID string, durationMs int64) (int64, error) {
	key := EngagementMarkKey(sessionID)

	if setter, ok := e.backend.(kv.MaxSetter); ok {
		previous, err := setter.SetMax(ctx, key, durationMs, e.markTTL)
		if err != nil {
			return 0, fmt.Errorf("failed to update engagement mark: %w", err)
		}
		return previous, nil
	}

	raw, ok, err := e.backend.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read engagement mark: %w", err)
	}
	var previous int64
	if ok {
		previous, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("engagement mark %s: %w", key, kv.ErrNotInteger)
		}
	}
	if durationMs > previous {
		if err := e.backend.SetWithTTL(ctx, key, strconv.FormatInt(durationMs, 10), e.markTTL); err != nil {
			return 0, fmt.Errorf("failed to write engagement mark: %w", err)
		}
	}
	return previous, nil
}

// Average returns the mean engagement in milliseconds, 0 without sessions.
func (e *Engagement) Average(ctx context.Context) float64 {
	count := e.counters.Get(ctx, EngagementCount)
	if count == 0 {
		return 0
	}
	return float64(e.counters.Get(ctx, EngagementTotalMs)) / float64(count)
}
