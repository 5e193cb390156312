package upstash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	DefaultTimeout       = 3 * time.Second
	DefaultRetryCount    = 2
	DefaultRetryWaitTime = 50 * time.Millisecond
	DefaultRetryMaxWait  = 500 * time.Millisecond
)

// Config describes how to reach an Upstash-compatible Redis REST endpoint.
type Config struct {
	URL        string
	Token      string
	Timeout    time.Duration
	RetryCount int

	// Transport replaces the HTTP transport, used by tests.
	Transport http.RoundTripper

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client speaks the Upstash REST protocol: every command is a JSON array
// POSTed to the base URL, pipelines are arrays of arrays POSTed to /pipeline.
type Client struct {
	http       *resty.Client
	increments *resty.Client
	breaker    *gobreaker.CircuitBreaker[*resty.Response]
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = DefaultRetryCount
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 10 * time.Second
	}

	// An increment or pipeline that timed out may already have been applied,
	// so those are only resent when the server says it did not take them.
	commands := newHTTPClient(cfg, retryCommand)
	increments := newHTTPClient(cfg, retryUnapplied)

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "upstash",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Command errors (wrong type, bad args) mean the server is healthy.
		IsSuccessful: func(err error) bool {
			var cmdErr *CommandError
			return err == nil || errors.As(err, &cmdErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Upstash circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	logger.Info("Upstash REST client initialized",
		zap.String("url", cfg.URL),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("retries", cfg.RetryCount),
	)

	return &Client{
		http:       commands,
		increments: increments,
		breaker:    breaker,
		logger:     logger,
	}, nil
}

func newHTTPClient(cfg Config, retryIf resty.RetryConditionFunc) *resty.Client {
	c := resty.New()
	c.SetBaseURL(strings.TrimRight(cfg.URL, "/"))
	c.SetAuthToken(cfg.Token)
	c.SetTimeout(cfg.Timeout)
	c.SetHeader("Content-Type", "application/json")
	c.JSONMarshal = json.Marshal
	c.JSONUnmarshal = json.Unmarshal
	if cfg.Transport != nil {
		c.SetTransport(cfg.Transport)
	}
	c.SetRetryCount(cfg.RetryCount)
	c.SetRetryWaitTime(DefaultRetryWaitTime)
	c.SetRetryMaxWaitTime(DefaultRetryMaxWait)
	c.AddRetryCondition(retryIf)
	return c
}

func retryCommand(response *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	switch response.StatusCode() {
	case
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func retryUnapplied(response *resty.Response, err error) bool {
	if err != nil || response == nil {
		return false
	}
	switch response.StatusCode() {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// Do executes a single command and returns its result.
func (c *Client) Do(ctx context.Context, args ...any) (Result, error) {
	var result Result
	httpClient := c.http
	if !idempotent(args) {
		httpClient = c.increments
	}
	if err := c.post(ctx, httpClient, "/", args, &result); err != nil {
		return Result{}, fmt.Errorf("%s: %w", commandName(args), err)
	}
	if result.Error != "" {
		return Result{}, &CommandError{Command: commandName(args), Message: result.Error}
	}
	return result, nil
}

// Pipeline executes the commands in one round trip. The returned slice has one
// entry per command; per-command failures are reported through Result.Err.
func (c *Client) Pipeline(ctx context.Context, commands [][]any) ([]Result, error) {
	if len(commands) == 0 {
		return nil, nil
	}

	var results []Result
	if err := c.post(ctx, c.increments, "/pipeline", commands, &results); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if len(results) != len(commands) {
		return nil, fmt.Errorf("pipeline: %w: expected %d results, got %d",
			ErrMalformedResponse, len(commands), len(results))
	}
	return results, nil
}

func (c *Client) post(ctx context.Context, httpClient *resty.Client, path string, body any, out any) error {
	_, err := c.breaker.Execute(func() (*resty.Response, error) {
		response, err := httpClient.R().
			SetContext(ctx).
			SetBody(body).
			Post(path)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		switch {
		case response.StatusCode() == http.StatusUnauthorized:
			return response, ErrUnauthorized
		case response.StatusCode() >= http.StatusInternalServerError:
			return response, fmt.Errorf("%w: status %d", ErrServer, response.StatusCode())
		}

		// Upstash reports command errors as 400 with {"error": "..."}.
		if err := json.Unmarshal(response.Body(), out); err != nil {
			return response, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return response, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func idempotent(args []any) bool {
	switch commandName(args) {
	case "INCR", "INCRBY", "DECR", "DECRBY":
		return false
	default:
		return true
	}
}

func commandName(args []any) string {
	if len(args) == 0 {
		return "EMPTY"
	}
	if name, ok := args[0].(string); ok {
		return strings.ToUpper(name)
	}
	return fmt.Sprint(args[0])
}
