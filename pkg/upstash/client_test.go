package upstash

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testURL = "https://kv.example.com"

func newTestClient(t *testing.T, cfg Config) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	cfg.URL = testURL
	cfg.Token = "secret-token"
	cfg.Transport = transport
	client, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client, transport
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{URL: testURL}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Config{Token: "x"}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDoSendsCommandArray(t *testing.T) {
	client, transport := newTestClient(t, Config{})

	transport.RegisterResponder(http.MethodPost, testURL+"/", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer secret-token", req.Header.Get("Authorization"))
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		var args []any
		require.NoError(t, json.Unmarshal(body, &args))
		assert.Equal(t, []any{"INCRBY", "analytics:pageviews:total", float64(5)}, args)
		return httpmock.NewStringResponse(http.StatusOK, `{"result":12}`), nil
	})

	result, err := client.Do(context.Background(), "INCRBY", "analytics:pageviews:total", 5)
	require.NoError(t, err)
	n, err := result.Int()
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestDoCommandError(t *testing.T) {
	client, transport := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodPost, testURL+"/",
		httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"WRONGTYPE Operation against a key holding the wrong kind of value"}`))

	_, err := client.Do(context.Background(), "incr", "some:set")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "INCR", cmdErr.Command)
	assert.Contains(t, cmdErr.Message, "WRONGTYPE")
}

func TestDoUnauthorized(t *testing.T) {
	client, transport := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodPost, testURL+"/",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":"Unauthorized"}`))

	_, err := client.Do(context.Background(), "PING")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPipeline(t *testing.T) {
	client, transport := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodPost, testURL+"/pipeline", func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		var commands [][]any
		require.NoError(t, json.Unmarshal(body, &commands))
		assert.Len(t, commands, 2)
		return httpmock.NewStringResponse(http.StatusOK, `[{"result":3},{"error":"ERR value is not an integer"}]`), nil
	})

	results, err := client.Pipeline(context.Background(), [][]any{
		{"INCRBY", "a", 3},
		{"INCRBY", "b", 1},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err())
	assert.Error(t, results[1].Err())
}

func TestPipelineEmpty(t *testing.T) {
	client, transport := newTestClient(t, Config{})
	results, err := client.Pipeline(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	client, transport := newTestClient(t, Config{RetryCount: 0, BreakerFailures: 2})
	transport.RegisterResponder(http.MethodPost, testURL+"/",
		httpmock.NewStringResponder(http.StatusInternalServerError, `oops`))

	for i := 0; i < 2; i++ {
		_, err := client.Do(context.Background(), "PING")
		assert.ErrorIs(t, err, ErrServer)
	}

	_, err := client.Do(context.Background(), "PING")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestResultDecoding(t *testing.T) {
	n, err := Result{Result: json.RawMessage(`"42"`)}.Int()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = Result{Result: json.RawMessage(`null`)}.Int()
	require.NoError(t, err)
	assert.Zero(t, n)

	s, ok, err := Result{Result: json.RawMessage(`17`)}.Text()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "17", s)

	_, ok, err = Result{}.Text()
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := Result{Result: json.RawMessage(`["a","b"]`)}.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestTransportErrorsResendOnlyIdempotentRequests(t *testing.T) {
	client, transport := newTestClient(t, Config{RetryCount: 2})
	transport.RegisterResponder(http.MethodPost, testURL+"/", httpmock.NewErrorResponder(errors.New("read timeout")))
	transport.RegisterResponder(http.MethodPost, testURL+"/pipeline", httpmock.NewErrorResponder(errors.New("read timeout")))
	ctx := context.Background()

	_, err := client.Pipeline(ctx, [][]any{{"INCRBY", "a", 3}})
	require.Error(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["POST "+testURL+"/pipeline"])

	_, err = client.Do(ctx, "INCR", "a")
	require.Error(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["POST "+testURL+"/"])

	_, err = client.Do(ctx, "GET", "a")
	require.Error(t, err)
	assert.Equal(t, 1+3, transport.GetCallCountInfo()["POST "+testURL+"/"])
}

func TestPipelineResentWhenServerRefuses(t *testing.T) {
	client, transport := newTestClient(t, Config{RetryCount: 2})
	transport.RegisterResponder(http.MethodPost, testURL+"/pipeline",
		httpmock.ResponderFromMultipleResponses([]*http.Response{
			httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"),
			httpmock.NewStringResponse(http.StatusOK, `[{"result":3}]`),
		}))

	results, err := client.Pipeline(context.Background(), [][]any{{"INCRBY", "a", 3}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, transport.GetTotalCallCount())
}
