package event

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingProducer struct {
	keys   []string
	values []any
	err    error
}

func (p *recordingProducer) SendMessage(_ context.Context, key string, value any) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func TestAsyncIngesterPublishesValidEvents(t *testing.T) {
	producer := &recordingProducer{}
	ingester := NewAsyncIngester(producer, 0, clockwork.NewFakeClockAt(day), zaptest.NewLogger(t))

	result, err := ingester.Ingest(context.Background(), []Event{
		newEvent("e1", EventTypePageView, "s1", nil),
		newEvent("e2", EventTypeClick, "", nil),
		newEvent("e3", EventTypeClick, "s2", map[string]any{"action": "cta"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, producer.values, 1)
	assert.Equal(t, []string{"s1"}, producer.keys)

	payload, err := json.Marshal(producer.values[0])
	require.NoError(t, err)
	var msg BatchMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	require.Len(t, msg.Events, 2)
	assert.Equal(t, "e3", msg.Events[1].EventID)
	assert.Equal(t, "cta", msg.Events[1].StringProperty("action"))
	assert.True(t, msg.AcceptedAt.Equal(day))
}

func TestAsyncIngesterKeysBatchByFirstValidSession(t *testing.T) {
	producer := &recordingProducer{}
	ingester := NewAsyncIngester(producer, 0, clockwork.NewFakeClock(), zaptest.NewLogger(t))

	result, err := ingester.Ingest(context.Background(), []Event{
		newEvent("e1", EventTypePageView, "", nil),
		newEvent("e2", EventTypePageView, "s2", nil),
		newEvent("e3", EventTypePageView, "s3", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, []string{"s2"}, producer.keys)
	require.Len(t, producer.values, 1)
}

func TestAsyncIngesterRejections(t *testing.T) {
	producer := &recordingProducer{}
	ingester := NewAsyncIngester(producer, 2, clockwork.NewFakeClock(), zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := ingester.Ingest(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = ingester.Ingest(ctx, make([]Event, 3))
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	result, err := ingester.Ingest(ctx, []Event{{EventID: "bad"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, producer.values)

	producer.err = errors.New("kafka: client has run out of available brokers")
	_, err = ingester.Ingest(ctx, []Event{newEvent("e1", EventTypePageView, "s1", nil)})
	assert.ErrorIs(t, err, ErrPublishFailed)
}
