package kv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Wuchinator/landing-analytics/pkg/upstash"
	"go.uber.org/zap"
)

// setMaxScript raises KEYS[1] to ARGV[1] when larger, refreshes the TTL
// (ARGV[2] seconds, 0 = none) and returns the previous value.
const setMaxScript = `
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local val = tonumber(ARGV[1])
if val > cur then
  redis.call('SET', KEYS[1], ARGV[1])
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
end
return cur
`

// Commander is the subset of upstash.Client used by the Upstash backend.
type Commander interface {
	Do(ctx context.Context, args ...any) (upstash.Result, error)
	Pipeline(ctx context.Context, commands [][]any) ([]upstash.Result, error)
}

// Upstash is the networked variant backed by a Redis REST endpoint.
type Upstash struct {
	client Commander
	logger *zap.Logger
}

func NewUpstash(client Commander, logger *zap.Logger) *Upstash {
	return &Upstash{
		client: client,
		logger: logger,
	}
}

func (u *Upstash) Kind() Kind {
	return KindRedis
}

func (u *Upstash) Incr(ctx context.Context, key string) (int64, error) {
	return u.doInt(ctx, "INCR", key)
}

func (u *Upstash) IncrBy(ctx context.Context, key string, by int64) (int64, error) {
	return u.doInt(ctx, "INCRBY", key, by)
}

func (u *Upstash) Get(ctx context.Context, key string) (string, bool, error) {
	result, err := u.do(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	return result.Text()
}

func (u *Upstash) Set(ctx context.Context, key, value string) error {
	_, err := u.do(ctx, "SET", key, value)
	return err
}

func (u *Upstash) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	_, err := u.do(ctx, "SET", key, value, "EX", ttlSeconds(ttl))
	return err
}

func (u *Upstash) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	n, err := u.doInt(ctx, "EXPIRE", key, ttlSeconds(ttl))
	return n == 1, err
}

func (u *Upstash) SAdd(ctx context.Context, key, member string) (bool, error) {
	n, err := u.doInt(ctx, "SADD", key, member)
	return n == 1, err
}

func (u *Upstash) SCard(ctx context.Context, key string) (int64, error) {
	return u.doInt(ctx, "SCARD", key)
}

func (u *Upstash) Keys(ctx context.Context, pattern string) ([]string, error) {
	result, err := u.do(ctx, "KEYS", pattern)
	if err != nil {
		return nil, err
	}
	keys, err := result.Strings()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (u *Upstash) PipelineIncr(ctx context.Context, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	keys := make([]string, 0, len(deltas))
	for key := range deltas {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	commands := make([][]any, 0, len(keys))
	for _, key := range keys {
		if deltas[key] == 1 {
			commands = append(commands, []any{"INCR", key})
			continue
		}
		commands = append(commands, []any{"INCRBY", key, deltas[key]})
	}

	results, err := u.client.Pipeline(ctx, commands)
	if err != nil {
		return translate(err)
	}

	var (
		failed []string
		cause  error
	)
	for i, result := range results {
		if err := result.Err(); err != nil {
			failed = append(failed, keys[i])
			if cause == nil {
				cause = translate(err)
			}
		}
	}
	if len(failed) > 0 {
		return &PipelineError{Failed: failed, Total: len(keys), Err: cause}
	}

	u.logger.Debug("Pipeline increment applied", zap.Int("keys", len(keys)))
	return nil
}

func (u *Upstash) SetMax(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error) {
	var seconds int64
	if ttl > 0 {
		seconds = ttlSeconds(ttl)
	}
	return u.doInt(ctx, "EVAL", setMaxScript, 1, key, value, seconds)
}

func (u *Upstash) Ping(ctx context.Context) error {
	result, err := u.do(ctx, "PING")
	if err != nil {
		return err
	}
	pong, _, err := result.Text()
	if err != nil {
		return err
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", pong)
	}
	return nil
}

func (u *Upstash) Close() error {
	return nil
}

func (u *Upstash) do(ctx context.Context, args ...any) (upstash.Result, error) {
	result, err := u.client.Do(ctx, args...)
	if err != nil {
		return upstash.Result{}, translate(err)
	}
	return result, nil
}

func (u *Upstash) doInt(ctx context.Context, args ...any) (int64, error) {
	result, err := u.do(ctx, args...)
	if err != nil {
		return 0, err
	}
	return result.Int()
}

// translate maps Redis error replies onto the package's sentinel errors so
// both variants fail the same way.
func translate(err error) error {
	var cmdErr *upstash.CommandError
	if !errors.As(err, &cmdErr) {
		return err
	}
	switch {
	case strings.HasPrefix(cmdErr.Message, "WRONGTYPE"):
		return fmt.Errorf("%w: %v", ErrWrongType, err)
	case strings.Contains(cmdErr.Message, "not an integer"):
		return fmt.Errorf("%w: %v", ErrNotInteger, err)
	default:
		return err
	}
}

func ttlSeconds(ttl time.Duration) int64 {
	return int64(math.Max(1, math.Ceil(ttl.Seconds())))
}
