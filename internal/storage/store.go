package storage

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/kv"
)

type Config struct {
	EngagementMarkTTL time.Duration
	ActiveVisitorTTL  time.Duration
}

// Store groups the typed stores that share one backend.
type Store struct {
	Backend    kv.Backend
	Counters   *Counters
	Visitors   *Visitors
	Sessions   *Sessions
	Engagement *Engagement
	Active     *ActiveVisitors
}

func New(backend kv.Backend, cfg Config, clock clockwork.Clock, logger *zap.Logger) *Store {
	if cfg.EngagementMarkTTL <= 0 {
		cfg.EngagementMarkTTL = 24 * time.Hour
	}
	if cfg.ActiveVisitorTTL <= 0 {
		cfg.ActiveVisitorTTL = 5 * time.Minute
	}
	counters := NewCounters(backend, logger)
	return &Store{
		Backend:    backend,
		Counters:   counters,
		Visitors:   NewVisitors(backend, logger),
		Sessions:   NewSessions(backend, logger),
		Engagement: NewEngagement(backend, counters, cfg.EngagementMarkTTL, logger),
		Active:     NewActiveVisitors(backend, cfg.ActiveVisitorTTL, clock, logger),
	}
}
