package event

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/pkg/upstash"
)

// memoryCommander answers Upstash commands from a Memory backend so the
// aggregator can be exercised against the networked variant. Pipeline
// commands on a key listed in failKeys get an error reply while the rest of
// the pipeline is applied.
type memoryCommander struct {
	mem *kv.Memory

	mu        sync.Mutex
	failKeys  map[string]bool
	pipelines int
}

func newMemoryCommander(mem *kv.Memory, failKeys ...string) *memoryCommander {
	c := &memoryCommander{mem: mem, failKeys: make(map[string]bool)}
	for _, key := range failKeys {
		c.failKeys[key] = true
	}
	return c
}

func (c *memoryCommander) Do(ctx context.Context, args ...any) (upstash.Result, error) {
	value, err := c.exec(ctx, args)
	if err != nil {
		return upstash.Result{}, err
	}
	return reply(value)
}

func (c *memoryCommander) Pipeline(ctx context.Context, commands [][]any) ([]upstash.Result, error) {
	c.mu.Lock()
	c.pipelines++
	c.mu.Unlock()

	results := make([]upstash.Result, 0, len(commands))
	for _, args := range commands {
		if c.failing(fmt.Sprint(args[1])) {
			results = append(results, upstash.Result{Error: "ERR transient"})
			continue
		}
		value, err := c.exec(ctx, args)
		if err != nil {
			results = append(results, upstash.Result{Error: err.Error()})
			continue
		}
		result, err := reply(value)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (c *memoryCommander) failing(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failKeys[key]
}

func (c *memoryCommander) exec(ctx context.Context, args []any) (any, error) {
	name := strings.ToUpper(fmt.Sprint(args[0]))
	str := func(i int) string { return fmt.Sprint(args[i]) }
	num := func(i int) int64 {
		n, _ := args[i].(int64)
		return n
	}

	switch name {
	case "PING":
		return "PONG", c.mem.Ping(ctx)
	case "INCR":
		return c.mem.Incr(ctx, str(1))
	case "INCRBY":
		return c.mem.IncrBy(ctx, str(1), num(2))
	case "GET":
		value, ok, err := c.mem.Get(ctx, str(1))
		if err != nil || !ok {
			return nil, err
		}
		return value, nil
	case "SET":
		if len(args) == 5 {
			return "OK", c.mem.SetWithTTL(ctx, str(1), str(2), time.Duration(num(4))*time.Second)
		}
		return "OK", c.mem.Set(ctx, str(1), str(2))
	case "EXPIRE":
		ok, err := c.mem.Expire(ctx, str(1), time.Duration(num(2))*time.Second)
		if ok {
			return 1, err
		}
		return 0, err
	case "SADD":
		added, err := c.mem.SAdd(ctx, str(1), str(2))
		if added {
			return 1, err
		}
		return 0, err
	case "SCARD":
		return c.mem.SCard(ctx, str(1))
	case "KEYS":
		return c.mem.Keys(ctx, str(1))
	case "EVAL":
		// EVAL script 1 key value ttl
		return c.mem.SetMax(ctx, str(3), num(4), time.Duration(num(5))*time.Second)
	default:
		return nil, fmt.Errorf("ERR unknown command '%s'", name)
	}
}

func reply(value any) (upstash.Result, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return upstash.Result{}, err
	}
	return upstash.Result{Result: raw}, nil
}
