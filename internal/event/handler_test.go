package event

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Wuchinator/landing-analytics/internal/httpserver"
	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/storage"
)

type handlerFixture struct {
	router http.Handler
	store  *storage.Store
	clock  *clockwork.FakeClock
}

func newHandlerFixture(t *testing.T, ingester func(*Service) Ingester) *handlerFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClockAt(day)
	store := storage.New(kv.NewMemory(logger, kv.WithClock(clock)), storage.Config{}, clock, logger)
	svc := NewService(store, Config{}, logger)

	var in Ingester = svc
	if ingester != nil {
		in = ingester(svc)
	}

	router := httpserver.NewRouter(logger, nil)
	NewHandler(in, store.Active, clock, logger).Routes(router)
	return &handlerFixture{router: router, store: store, clock: clock}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpserver.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestBatchEndpoint(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/analytics/batch", `{"events":[
		{"eventId":"e1","eventName":"page_view","timestamp":1748772000000,"sessionId":"s1"},
		{"eventId":"e2","eventName":"click","timestamp":1748772000000,"sessionId":"s1","properties":{"action":"checkout_click"}},
		{"eventId":"e3","eventName":"page_view","timestamp":1748772000000}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success   bool         `json:"success"`
		Processed int          `json:"processed"`
		Failed    int          `json:"failed"`
		Errors    []EventError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Processed)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "e3", resp.Errors[0].EventID)

	assert.Equal(t, int64(1), f.store.Counters.Get(context.Background(), storage.CheckoutFormsTotal))
}

func TestBatchEndpointOmitsEmptyErrors(t *testing.T) {
	f := newHandlerFixture(t, nil)
	rec := f.do(http.MethodPost, "/api/analytics/batch",
		`{"events":[{"eventId":"e1","eventName":"page_view","timestamp":1748772000000,"sessionId":"s1"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "errors")
}

func TestBatchEndpointRejections(t *testing.T) {
	f := newHandlerFixture(t, nil)

	many := make([]string, DefaultMaxBatchSize+1)
	for i := range many {
		many[i] = `{"eventId":"x","eventName":"page_view","timestamp":1,"sessionId":"s"}`
	}

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"not json", `{"events":`, httpserver.MsgInvalidBody},
		{"missing events", `{}`, httpserver.MsgInvalidBody},
		{"events not a list", `{"events":{"a":1}}`, httpserver.MsgInvalidBody},
		{"array body", `[1,2]`, httpserver.MsgInvalidBody},
		{"empty", `{"events":[]}`, "No events to process"},
		{"too large", `{"events":[` + strings.Join(many, ",") + `]}`, "Batch size exceeds limit (100)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/analytics/batch", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}

	assert.Zero(t, f.store.Counters.Get(context.Background(), storage.PageviewsTotal))
}

func TestBatchEndpointWrongMethod(t *testing.T) {
	f := newHandlerFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/analytics/batch", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, httpserver.MsgMethodNotAllowed, errorMessage(t, rec))
}

type failingIngester struct{}

func (failingIngester) Ingest(context.Context, []Event) (*BatchResult, error) {
	return nil, errors.New("broker unreachable")
}

func TestBatchEndpointInternalError(t *testing.T) {
	f := newHandlerFixture(t, func(*Service) Ingester { return failingIngester{} })
	rec := f.do(http.MethodPost, "/api/analytics/batch",
		`{"events":[{"eventId":"e1","eventName":"page_view","timestamp":1,"sessionId":"s1"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, httpserver.MsgInternal, errorMessage(t, rec))
}

func TestTrackEndpoint(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx := context.Background()

	rec := f.do(http.MethodPost, "/api/analytics/track", `{"event_type":"pageview","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/analytics/track",
		`{"event_type":"engagement","session_id":"s1","data":{"duration":4500}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/analytics/track",
		`{"event_type":"checkout_abandoned","session_id":"s1","timestamp":"2025-05-31T12:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(1), f.store.Counters.Get(ctx, storage.PageviewsDay(dayKey)))
	assert.Equal(t, int64(4500), f.store.Counters.Get(ctx, storage.EngagementTotalMs))
	assert.Equal(t, int64(1), f.store.Counters.Get(ctx, storage.AbandonedDay("2025-05-31")))
	assert.Equal(t, int64(1), f.store.Visitors.CountUnique(ctx, storage.VisitorsUnique))
}

func TestTrackEndpointValidation(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/analytics/track", `{"event_type":"pageview"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields: session_id", errorMessage(t, rec))

	rec = f.do(http.MethodPost, "/api/analytics/track", `{"event_type":"purchase","session_id":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(errorMessage(t, rec), "Invalid event_type. Must be one of: pageview"))

	rec = f.do(http.MethodPost, "/api/analytics/track", `["pageview"]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httpserver.MsgInvalidBody, errorMessage(t, rec))
}

func TestActiveVisitorsEndpoint(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/analytics/active-visitors", `{"sessionId":"a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1,"updated":true}`, rec.Body.String())

	f.do(http.MethodPost, "/api/analytics/active-visitors", `{"sessionId":"b"}`)
	rec = f.do(http.MethodGet, "/api/analytics/active-visitors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	f.clock.Advance(6 * time.Minute)
	rec = f.do(http.MethodGet, "/api/analytics/active-visitors", "")
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/analytics/active-visitors", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Session ID required", errorMessage(t, rec))

	rec = f.do(http.MethodDelete, "/api/analytics/active-visitors", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
