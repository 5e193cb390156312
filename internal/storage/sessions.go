package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/metrics"
)

// Session is the short-lived record kept per visitor. Timestamps are epoch
// milliseconds as reported by the client.
type Session struct {
	SessionID  string `json:"sessionId"`
	FirstSeen  int64  `json:"firstSeen"`
	LastSeen   int64  `json:"lastSeen"`
	LastEvent  string `json:"lastEvent"`
	EventCount int    `json:"events"`
}

// Sessions stores Session records with a TTL. Their expiry has no effect on
// unique visitor sets or counters.
type Sessions struct {
	backend kv.Backend
	logger  *zap.Logger
}

func NewSessions(backend kv.Backend, logger *zap.Logger) *Sessions {
	return &Sessions{
		backend: backend,
		logger:  logger,
	}
}

// Touch overwrites the record and resets its TTL. Last write wins.
func (s *Sessions) Touch(ctx context.Context, session Session, ttl time.Duration) error {
	if session.SessionID == "" {
		return ErrEmptySessionID
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.backend.SetWithTTL(ctx, SessionKey(session.SessionID), string(payload), ttl); err != nil {
		return fmt.Errorf("failed to store session %s: %w", session.SessionID, err)
	}
	return nil
}

// Read returns the record, or false when it is absent, expired or unreadable.
func (s *Sessions) Read(ctx context.Context, sessionID string) (*Session, bool) {
	raw, ok, err := s.backend.Get(ctx, SessionKey(sessionID))
	if err != nil {
		metrics.RecordDegraded("read_session")
		s.logger.Warn("Storage operation degraded to default",
			zap.String("op", "read_session"),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.logger.Warn("Ignoring unreadable session record",
			zap.String("session_id", sessionID),
			zap.Error(fmt.Errorf("%w: %v", ErrCorruptRecord, err)),
		)
		return nil, false
	}
	return &session, true
}
