package kv

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type entry struct {
	value     string
	set       map[string]struct{}
	expiresAt time.Time
}

func (e *entry) isSet() bool {
	return e.set != nil
}

// Memory is the in-process fallback. Values live only as long as the process
// and are not shared between instances. A mutex serializes access because
// net/http serves requests from concurrent goroutines.
type Memory struct {
	mu     sync.Mutex
	data   map[string]*entry
	clock  clockwork.Clock
	logger *zap.Logger
	closed bool

	// reason is set when Memory replaces a networked backend that failed.
	reason string
}

type MemoryOption func(*Memory)

func WithClock(clock clockwork.Clock) MemoryOption {
	return func(m *Memory) {
		m.clock = clock
	}
}

func withFallbackReason(reason string) MemoryOption {
	return func(m *Memory) {
		m.reason = reason
	}
}

func NewMemory(logger *zap.Logger, opts ...MemoryOption) *Memory {
	m := &Memory{
		data:   make(map[string]*entry),
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Kind() Kind {
	return KindMemory
}

// FallbackReason is non-empty when this store stands in for a networked
// backend that could not be initialized.
func (m *Memory) FallbackReason() string {
	return m.reason
}

// lookup returns the live entry for key, evicting it when expired.
// Callers must hold m.mu.
func (m *Memory) lookup(key string) *entry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.data, key)
		return nil
	}
	return e
}

func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrBy(ctx, key, 1)
}

func (m *Memory) IncrBy(_ context.Context, key string, by int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.incrLocked(key, by)
}

func (m *Memory) incrLocked(key string, by int64) (int64, error) {
	e := m.lookup(key)
	if e == nil {
		e = &entry{value: "0"}
		m.data[key] = e
	}
	if e.isSet() {
		return 0, ErrWrongType
	}
	current, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	current += by
	e.value = strconv.FormatInt(current, 10)

	m.logger.Debug("Memory counter updated",
		zap.String("key", key),
		zap.Int64("value", current),
		zap.Int64("by", by),
	)
	return current, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	e := m.lookup(key)
	if e == nil {
		return "", false, nil
	}
	if e.isSet() {
		return "", false, ErrWrongType
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = &entry{value: value}
	return nil
}

func (m *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = &entry{value: value, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	e := m.lookup(key)
	if e == nil {
		return false, nil
	}
	e.expiresAt = m.clock.Now().Add(ttl)
	return true, nil
}

func (m *Memory) SAdd(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	e := m.lookup(key)
	if e == nil {
		e = &entry{set: make(map[string]struct{})}
		m.data[key] = e
	}
	if !e.isSet() {
		return false, ErrWrongType
	}
	if _, exists := e.set[member]; exists {
		return false, nil
	}
	e.set[member] = struct{}{}
	return true, nil
}

func (m *Memory) SCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	e := m.lookup(key)
	if e == nil {
		return 0, nil
	}
	if !e.isSet() {
		return 0, ErrWrongType
	}
	return int64(len(e.set)), nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0)
	for key := range m.data {
		if m.lookup(key) == nil {
			continue
		}
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) PipelineIncr(_ context.Context, deltas map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	// Validate every key first so a bad key leaves the others untouched.
	for key := range deltas {
		if err := m.checkIncrLocked(key); err != nil {
			return fmt.Errorf("pipeline increment %s: %w", key, err)
		}
	}
	for key, by := range deltas {
		if _, err := m.incrLocked(key, by); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) checkIncrLocked(key string) error {
	e := m.lookup(key)
	if e == nil {
		return nil
	}
	if e.isSet() {
		return ErrWrongType
	}
	if _, err := strconv.ParseInt(e.value, 10, 64); err != nil {
		return ErrNotInteger
	}
	return nil
}

func (m *Memory) SetMax(_ context.Context, key string, value int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	var previous int64
	e := m.lookup(key)
	if e != nil {
		if e.isSet() {
			return 0, ErrWrongType
		}
		n, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		previous = n
	}
	stored := previous
	if value > previous {
		stored = value
	}
	next := &entry{value: strconv.FormatInt(stored, 10)}
	if ttl > 0 {
		next.expiresAt = m.clock.Now().Add(ttl)
	}
	m.data[key] = next
	return previous, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = make(map[string]*entry)
	return nil
}

// matchPattern implements the subset of Redis glob matching this system
// uses: "prefix*", "*suffix", "*" and exact keys.
func matchPattern(pattern, key string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(key, strings.TrimPrefix(pattern, "*"))
	default:
		return key == pattern
	}
}
