package kv

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Wuchinator/landing-analytics/pkg/upstash"
)

const fakeUpstashURL = "https://fake-upstash.test"

// fakeRedis emulates the handful of Redis commands the Upstash backend sends.
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
	ttls    map[string]int64
	down    bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		ttls:    make(map[string]int64),
	}
}

// newFakeUpstash returns an Upstash backend whose HTTP transport is served by
// an in-memory Redis emulation.
func newFakeUpstash(t *testing.T) (*Upstash, *fakeRedis) {
	t.Helper()
	fake := newFakeRedis()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, fakeUpstashURL+"/", fake.single)
	transport.RegisterResponder(http.MethodPost, fakeUpstashURL+"/pipeline", fake.pipeline)

	client, err := upstash.New(upstash.Config{
		URL:       fakeUpstashURL,
		Token:     "test-token",
		Transport: transport,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return NewUpstash(client, zaptest.NewLogger(t)), fake
}

func (f *fakeRedis) single(req *http.Request) (*http.Response, error) {
	if f.isDown() {
		return httpmock.NewStringResponse(http.StatusServiceUnavailable, "down"), nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	var args []any
	if err := json.Unmarshal(body, &args); err != nil {
		return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"ERR bad body"}`), nil
	}
	result, errMsg := f.exec(args)
	if errMsg != "" {
		return httpmock.NewJsonResponse(http.StatusBadRequest, map[string]any{"error": errMsg})
	}
	return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"result": result})
}

func (f *fakeRedis) pipeline(req *http.Request) (*http.Response, error) {
	if f.isDown() {
		return httpmock.NewStringResponse(http.StatusServiceUnavailable, "down"), nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	var commands [][]any
	if err := json.Unmarshal(body, &commands); err != nil {
		return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"ERR bad body"}`), nil
	}
	replies := make([]map[string]any, 0, len(commands))
	for _, args := range commands {
		result, errMsg := f.exec(args)
		if errMsg != "" {
			replies = append(replies, map[string]any{"error": errMsg})
			continue
		}
		replies = append(replies, map[string]any{"result": result})
	}
	return httpmock.NewJsonResponse(http.StatusOK, replies)
}

func (f *fakeRedis) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeRedis) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

const wrongType = "WRONGTYPE Operation against a key holding the wrong kind of value"

func (f *fakeRedis) exec(args []any) (any, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := strings.ToUpper(arg(args, 0))
	key := arg(args, 1)
	switch name {
	case "PING":
		return "PONG", ""
	case "INCR", "INCRBY":
		if _, ok := f.sets[key]; ok {
			return nil, wrongType
		}
		by := int64(1)
		if name == "INCRBY" {
			by, _ = strconv.ParseInt(arg(args, 2), 10, 64)
		}
		current, err := strconv.ParseInt(valueOr(f.strings, key, "0"), 10, 64)
		if err != nil {
			return nil, "ERR value is not an integer or out of range"
		}
		current += by
		f.strings[key] = strconv.FormatInt(current, 10)
		return current, ""
	case "GET":
		if _, ok := f.sets[key]; ok {
			return nil, wrongType
		}
		if value, ok := f.strings[key]; ok {
			return value, ""
		}
		return nil, ""
	case "SET":
		delete(f.sets, key)
		f.strings[key] = arg(args, 2)
		delete(f.ttls, key)
		if strings.EqualFold(arg(args, 3), "EX") {
			f.ttls[key], _ = strconv.ParseInt(arg(args, 4), 10, 64)
		}
		return "OK", ""
	case "EXPIRE":
		_, isString := f.strings[key]
		_, isSet := f.sets[key]
		if !isString && !isSet {
			return 0, ""
		}
		f.ttls[key], _ = strconv.ParseInt(arg(args, 2), 10, 64)
		return 1, ""
	case "SADD":
		if _, ok := f.strings[key]; ok {
			return nil, wrongType
		}
		set, ok := f.sets[key]
		if !ok {
			set = make(map[string]struct{})
			f.sets[key] = set
		}
		member := arg(args, 2)
		if _, exists := set[member]; exists {
			return 0, ""
		}
		set[member] = struct{}{}
		return 1, ""
	case "SCARD":
		if _, ok := f.strings[key]; ok {
			return nil, wrongType
		}
		return len(f.sets[key]), ""
	case "KEYS":
		keys := make([]string, 0)
		for k := range f.strings {
			if matchPattern(key, k) {
				keys = append(keys, k)
			}
		}
		for k := range f.sets {
			if matchPattern(key, k) {
				keys = append(keys, k)
			}
		}
		return keys, ""
	case "EVAL":
		// Only the set-if-greater script is sent: EVAL script 1 key value ttl.
		target := arg(args, 3)
		value, _ := strconv.ParseInt(arg(args, 4), 10, 64)
		ttl, _ := strconv.ParseInt(arg(args, 5), 10, 64)
		current, _ := strconv.ParseInt(valueOr(f.strings, target, "0"), 10, 64)
		if value > current {
			f.strings[target] = strconv.FormatInt(value, 10)
		}
		if ttl > 0 {
			f.ttls[target] = ttl
		}
		return current, ""
	default:
		return nil, "ERR unknown command '" + name + "'"
	}
}

func arg(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	switch v := args[i].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func valueOr(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}
