package event

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/metrics"
)

type KafkaProducer interface {
	SendMessage(ctx context.Context, key string, value any) error
}

// AsyncIngester validates a batch and publishes its valid events to Kafka
// for the analytics service to aggregate. Processed counts accepted events.
type AsyncIngester struct {
	producer     KafkaProducer
	maxBatchSize int
	clock        clockwork.Clock
	logger       *zap.Logger
}

func NewAsyncIngester(producer KafkaProducer, maxBatchSize int, clock clockwork.Clock, logger *zap.Logger) *AsyncIngester {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &AsyncIngester{
		producer:     producer,
		maxBatchSize: maxBatchSize,
		clock:        clock,
		logger:       logger,
	}
}

func (a *AsyncIngester) Ingest(ctx context.Context, events []Event) (*BatchResult, error) {
	if err := checkBatchSize(len(events), a.maxBatchSize); err != nil {
		return nil, err
	}
	started := time.Now()
	defer metrics.ObserveBatch("kafka", started)

	result := &BatchResult{}
	valid := validate(events, result)
	if len(valid) == 0 {
		metrics.RecordEvents("failed", result.Failed)
		return result, nil
	}

	// The batch is one message keyed by its first valid event's session, so a
	// single-session batch stays in one partition. Mixed batches are not split.
	key := valid[0].SessionID
	msg := BatchMessage{Events: valid, AcceptedAt: a.clock.Now().UTC()}
	if err := a.producer.SendMessage(ctx, key, msg); err != nil {
		a.logger.Error("Failed to publish event batch",
			zap.Int("events", len(valid)),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	result.Processed = len(valid)
	metrics.RecordEvents("published", result.Processed)
	metrics.RecordEvents("failed", result.Failed)

	a.logger.Debug("Event batch published",
		zap.Int("events", len(valid)),
		zap.Int("rejected", result.Failed),
		zap.String("key", key),
	)
	return result, nil
}
