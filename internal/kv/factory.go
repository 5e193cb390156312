package kv

import (
	"context"
	"time"

	"github.com/Wuchinator/landing-analytics/pkg/upstash"
	"go.uber.org/zap"
)

const startupPingTimeout = 5 * time.Second

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retries int
}

func (c Config) networked() bool {
	return c.URL != "" && c.Token != ""
}

// New selects the backend once at process start. Credentials present means
// Upstash; if the client cannot be built or the first ping fails, the
// in-memory store is returned instead and the failure is logged.
func New(ctx context.Context, cfg Config, logger *zap.Logger) Backend {
	if !cfg.networked() {
		logger.Info("No KV credentials configured, using in-memory analytics storage")
		return NewMemory(logger)
	}

	client, err := upstash.New(upstash.Config{
		URL:        cfg.URL,
		Token:      cfg.Token,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.Retries,
	}, logger)
	if err != nil {
		logger.Warn("Failed to create Upstash client, falling back to in-memory storage", zap.Error(err))
		return NewMemory(logger, withFallbackReason(err.Error()))
	}

	backend := NewUpstash(client, logger)

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		logger.Warn("Failed to connect to Upstash Redis, falling back to in-memory storage", zap.Error(err))
		return NewMemory(logger, withFallbackReason(err.Error()))
	}

	logger.Info("Connected to Upstash Redis")
	return backend
}
