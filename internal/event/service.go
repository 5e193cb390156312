package event

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/metrics"
	"github.com/Wuchinator/landing-analytics/internal/storage"
)

const (
	DefaultMaxBatchSize = 100
	DefaultSessionTTL   = 30 * time.Minute
)

type Config struct {
	MaxBatchSize int
	SessionTTL   time.Duration
}

// Ingester accepts a batch of events from the HTTP layer.
type Ingester interface {
	Ingest(ctx context.Context, events []Event) (*BatchResult, error)
}

// Service is the batch aggregator: it validates events, folds them into
// counter deltas and applies them together with engagement, session and
// unique visitor writes.
type Service struct {
	store  *storage.Store
	cfg    Config
	logger *zap.Logger
}

func NewService(store *storage.Store, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Service) MaxBatchSize() int {
	return s.cfg.MaxBatchSize
}

// Ingest aggregates the batch synchronously.
func (s *Service) Ingest(ctx context.Context, events []Event) (*BatchResult, error) {
	return s.ProcessBatch(ctx, events)
}

// ProcessBatch returns an error only for batch-level rejections (empty or
// oversized); per-event problems are reported in the result.
func (s *Service) ProcessBatch(ctx context.Context, events []Event) (*BatchResult, error) {
	if err := checkBatchSize(len(events), s.cfg.MaxBatchSize); err != nil {
		return nil, err
	}
	started := time.Now()
	defer metrics.ObserveBatch("direct", started)

	result := &BatchResult{}
	valid := validate(events, result)

	buckets := classify(valid)
	counterDeltas := make(deltas)
	for category, bucket := range buckets {
		if category == CategoryEngagement {
			continue
		}
		for _, e := range bucket {
			foldCounters(counterDeltas, e)
		}
	}

	engagementFailed := make(map[*Event]bool)
	for _, e := range buckets[CategoryEngagement] {
		if _, _, err := s.store.Engagement.Report(ctx, e.SessionID, engagementMillis(e)); err != nil {
			s.logger.Warn("Failed to record engagement",
				zap.String("event_id", e.EventID),
				zap.String("session_id", e.SessionID),
				zap.Error(err),
			)
			engagementFailed[e] = true
			result.fail(e, err)
		}
	}

	if err := s.store.Counters.BatchIncrement(ctx, counterDeltas); err != nil {
		var partial *kv.PipelineError
		if errors.As(err, &partial) {
			s.logger.Warn("Bulk counter update partially applied, retrying failed keys",
				zap.Int("events", len(valid)),
				zap.Strings("failed_keys", partial.Failed),
				zap.Error(err),
			)
			metrics.BatchFallbackTotal.Inc()
			applied := s.retryFailedKeys(ctx, valid, counterDeltas, partial.Failed, engagementFailed, result)
			s.touchVisitors(ctx, applied)
			s.record(result)
			return result, nil
		}

		s.logger.Error("Bulk counter update failed, applying events one by one",
			zap.Int("events", len(valid)),
			zap.Int("keys", len(counterDeltas)),
			zap.Error(err),
		)
		metrics.BatchFallbackTotal.Inc()
		s.applyEventByEvent(ctx, valid, engagementFailed, result)
		s.record(result)
		return result, nil
	}

	result.Processed += len(valid) - len(engagementFailed)
	s.touchVisitors(ctx, valid)

	s.logger.Debug("Batch processed",
		zap.Int("events", len(events)),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("counter_keys", len(counterDeltas)),
	)
	s.record(result)
	return result, nil
}

// retryFailedKeys re-applies only the keys a partially applied pipeline left
// out. An event touching a key that fails again is reported as failed while
// its other counters stay applied. It returns the events whose counters all
// landed.
func (s *Service) retryFailedKeys(ctx context.Context, valid []Event, batch deltas, failed []string, skip map[*Event]bool, result *BatchResult) []Event {
	stillFailing := make(map[string]error)
	for _, key := range failed {
		if _, err := s.store.Counters.TryIncrement(ctx, key, batch[key]); err != nil {
			stillFailing[key] = err
		}
	}

	applied := make([]Event, 0, len(valid))
	for i := range valid {
		e := &valid[i]
		if err := firstFailedKey(e, stillFailing); err != nil {
			if !skip[e] {
				result.fail(e, err)
			}
			continue
		}
		applied = append(applied, *e)
		if !skip[e] {
			result.Processed++
		}
	}
	return applied
}

func firstFailedKey(e *Event, failing map[string]error) error {
	if len(failing) == 0 {
		return nil
	}
	single := make(deltas)
	foldCounters(single, e)
	for _, key := range sortedKeys(single) {
		if err, ok := failing[key]; ok {
			return err
		}
	}
	return nil
}

// applyEventByEvent is the degraded path used when the bulk increment fails
// without applying anything: counters only, one event at a time, no session
// or unique visitor writes.
func (s *Service) applyEventByEvent(ctx context.Context, valid []Event, skip map[*Event]bool, result *BatchResult) {
	for i := range valid {
		e := &valid[i]
		if skip[e] {
			continue
		}
		single := make(deltas)
		foldCounters(single, e)

		var failure error
		for _, key := range sortedKeys(single) {
			if _, err := s.store.Counters.TryIncrement(ctx, key, single[key]); err != nil {
				failure = err
				break
			}
		}
		if failure != nil {
			result.fail(e, failure)
			continue
		}
		result.Processed++
	}
}

type sessionState struct {
	snapshot storage.Session
	days     map[string]struct{}
}

// touchVisitors updates per-session state once per session in the batch.
// Failures here do not fail events; the counters are already applied.
func (s *Service) touchVisitors(ctx context.Context, valid []Event) {
	order := make([]string, 0)
	states := make(map[string]*sessionState)

	for i := range valid {
		e := &valid[i]
		state, ok := states[e.SessionID]
		if !ok {
			state = &sessionState{
				snapshot: storage.Session{
					SessionID: e.SessionID,
					FirstSeen: e.Timestamp,
					LastSeen:  e.Timestamp,
					LastEvent: e.EventName,
				},
				days: make(map[string]struct{}),
			}
			states[e.SessionID] = state
			order = append(order, e.SessionID)
		}
		snap := &state.snapshot
		snap.EventCount++
		if e.Timestamp < snap.FirstSeen {
			snap.FirstSeen = e.Timestamp
		}
		if e.Timestamp >= snap.LastSeen {
			snap.LastSeen = e.Timestamp
			snap.LastEvent = e.EventName
		}
		state.days[storage.Day(e.Time())] = struct{}{}
	}

	for _, sessionID := range order {
		state := states[sessionID]
		if err := s.store.Sessions.Touch(ctx, state.snapshot, s.cfg.SessionTTL); err != nil {
			s.visitorWriteFailed("touch_session", sessionID, err)
		}
		if _, err := s.store.Visitors.RecordVisit(ctx, storage.VisitorsUnique, sessionID); err != nil {
			s.visitorWriteFailed("record_visit", sessionID, err)
		}
		for day := range state.days {
			if _, err := s.store.Visitors.RecordVisit(ctx, storage.VisitorsUniqueDay(day), sessionID); err != nil {
				s.visitorWriteFailed("record_visit_day", sessionID, err)
			}
		}
	}
}

func (s *Service) visitorWriteFailed(op, sessionID string, err error) {
	metrics.RecordDegraded(op)
	s.logger.Warn("Visitor state write failed",
		zap.String("op", op),
		zap.String("session_id", sessionID),
		zap.Error(err),
	)
}

func (s *Service) record(result *BatchResult) {
	metrics.RecordEvents("processed", result.Processed)
	metrics.RecordEvents("failed", result.Failed)
}

func checkBatchSize(n, limit int) error {
	if n == 0 {
		return ErrEmptyBatch
	}
	if n > limit {
		return fmt.Errorf("%w (%d)", ErrBatchTooLarge, limit)
	}
	return nil
}

// validate returns the valid events and records the rest as failed.
func validate(events []Event, result *BatchResult) []Event {
	valid := make([]Event, 0, len(events))
	for i := range events {
		if err := events[i].Validate(); err != nil {
			result.fail(&events[i], err)
			continue
		}
		valid = append(valid, events[i])
	}
	return valid
}

func sortedKeys(d deltas) []string {
	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
