// Package kv abstracts the key-value store that holds analytics aggregates.
//
// Two variants exist: Upstash (a Redis REST endpoint) and Memory (an
// in-process fallback). Both implement Backend with identical semantics; the
// variant is chosen once at startup by New.
package kv

import (
	"context"
	"time"
)

type Kind string

const (
	KindRedis  Kind = "redis"
	KindMemory Kind = "memory"
)

// Backend is the operation set shared by every storage variant. Methods
// return errors; the degraded-default policy is applied by the callers in
// internal/storage.
type Backend interface {
	Kind() Kind

	// Incr atomically adds one and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Get returns the raw value; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Expire reports whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SAdd reports whether member was not yet in the set.
	SAdd(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Keys supports a single leading or trailing '*' wildcard.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// PipelineIncr applies every delta with as few round trips as the
	// variant allows. A plain error means no delta was applied; a
	// *PipelineError lists the keys that were not applied while the rest
	// were.
	PipelineIncr(ctx context.Context, deltas map[string]int64) error

	Ping(ctx context.Context) error
	Close() error
}

// IncrementerBy is implemented by variants with a native increment-by-N.
type IncrementerBy interface {
	IncrBy(ctx context.Context, key string, by int64) (int64, error)
}

// MaxSetter is implemented by variants that can atomically raise a stored
// integer to value when value is larger. It returns the previous value (0
// when absent). The key's TTL is refreshed on every call.
type MaxSetter interface {
	SetMax(ctx context.Context, key string, value int64, ttl time.Duration) (previous int64, err error)
}
