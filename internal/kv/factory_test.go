package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewWithoutCredentialsUsesMemory(t *testing.T) {
	backend := New(context.Background(), Config{}, zaptest.NewLogger(t))
	assert.Equal(t, KindMemory, backend.Kind())

	backend = New(context.Background(), Config{URL: "https://only-url.example"}, zaptest.NewLogger(t))
	assert.Equal(t, KindMemory, backend.Kind())
}

func TestNewFallsBackWhenUnreachable(t *testing.T) {
	backend := New(context.Background(), Config{
		URL:     "http://127.0.0.1:1",
		Token:   "bad",
		Timeout: 200 * time.Millisecond,
	}, zaptest.NewLogger(t))

	memory, ok := backend.(*Memory)
	require.True(t, ok)
	assert.NotEmpty(t, memory.FallbackReason())

	status := CheckStatus(context.Background(), backend)
	assert.True(t, status.Connected)
	assert.Equal(t, "memory", status.Type)
	assert.Equal(t, IndicatorWarning, status.Indicator)
	assert.NotEmpty(t, status.Error)
}

func TestCheckStatus(t *testing.T) {
	status := CheckStatus(context.Background(), nil)
	assert.False(t, status.Connected)
	assert.Equal(t, "none", status.Type)
	assert.Equal(t, IndicatorDisconnected, status.Indicator)

	status = CheckStatus(context.Background(), NewMemory(zaptest.NewLogger(t)))
	assert.True(t, status.Connected)
	assert.Equal(t, "memory", status.Type)
	assert.Empty(t, status.Error)
	assert.Equal(t, IndicatorWarning, status.Indicator)

	upstash, fake := newFakeUpstash(t)
	status = CheckStatus(context.Background(), upstash)
	assert.True(t, status.Connected)
	assert.Equal(t, "redis", status.Type)
	assert.Equal(t, IndicatorConnected, status.Indicator)

	fake.setDown(true)
	status = CheckStatus(context.Background(), upstash)
	assert.False(t, status.Connected)
	assert.Equal(t, "none", status.Type)
	assert.Equal(t, IndicatorDisconnected, status.Indicator)
	assert.NotEmpty(t, status.Error)
}
