package event

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/httpserver"
	"github.com/Wuchinator/landing-analytics/internal/storage"
)

// LegacyEventTypes are accepted by the single-event track endpoint.
var LegacyEventTypes = []string{
	"pageview", "click", "scroll", "engagement",
	"lead_capture", "checkout_form_shown", "checkout_abandoned",
}

type Handler struct {
	ingester Ingester
	active   *storage.ActiveVisitors
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewHandler(ingester Ingester, active *storage.ActiveVisitors, clock clockwork.Clock, logger *zap.Logger) *Handler {
	return &Handler{
		ingester: ingester,
		active:   active,
		clock:    clock,
		logger:   logger,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/analytics", func(r chi.Router) {
		r.Post("/batch", h.Batch)
		r.Post("/track", h.Track)
		r.Get("/active-visitors", h.ActiveVisitors)
		r.Post("/active-visitors", h.TouchActiveVisitor)
	})
}

type BatchRequest struct {
	Events *[]json.RawMessage `json:"events"`
}

type BatchResponse struct {
	Success bool `json:"success"`
	*BatchResult
}

func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil || req.Events == nil {
		httpserver.WriteError(w, http.StatusBadRequest, httpserver.MsgInvalidBody)
		return
	}

	result, err := h.ingester.Ingest(r.Context(), DecodeEvents(*req.Events))
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, BatchResponse{Success: true, BatchResult: result})
}

type TrackRequest struct {
	EventType string         `json:"event_type"`
	SessionID string         `json:"session_id"`
	Timestamp any            `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, httpserver.MsgInvalidBody)
		return
	}

	var missing []string
	if req.EventType == "" {
		missing = append(missing, "event_type")
	}
	if req.SessionID == "" {
		missing = append(missing, "session_id")
	}
	if len(missing) > 0 {
		httpserver.WriteError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	e, err := h.legacyToEvent(req)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest,
			"Invalid event_type. Must be one of: "+strings.Join(LegacyEventTypes, ", "))
		return
	}

	result, err := h.ingester.Ingest(r.Context(), []Event{e})
	if err != nil {
		h.writeIngestError(w, err)
		return
	}
	if result.Failed > 0 {
		httpserver.WriteError(w, http.StatusBadRequest, capitalize(result.Errors[0].Error))
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// legacyToEvent maps the single-event vocabulary onto batch events. Legacy
// engagement durations are milliseconds; batch ones are seconds.
func (h *Handler) legacyToEvent(req TrackRequest) (Event, error) {
	props := make(map[string]any, len(req.Data))
	for k, v := range req.Data {
		props[k] = v
	}

	e := Event{
		EventID:    uuid.NewString(),
		SessionID:  req.SessionID,
		Timestamp:  h.legacyTimestamp(req.Timestamp),
		Properties: props,
	}

	switch req.EventType {
	case "pageview":
		e.EventName = EventTypePageView
	case "click":
		e.EventName = EventTypeClick
	case "scroll":
		e.EventName = EventTypeScrollDepth
	case "engagement":
		e.EventName = EventTypeEngagementTime
		if ms, ok := e.NumberProperty("duration"); ok {
			props["duration"] = ms / 1000
		}
	case "lead_capture":
		e.EventName = EventTypeLeadCapture
	case "checkout_form_shown":
		e.EventName = EventTypeCheckoutFormShown
	case "checkout_abandoned":
		e.EventName = EventTypeCheckoutAbandoned
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidEventType, req.EventType)
	}
	return e, nil
}

// legacyTimestamp accepts epoch milliseconds or an RFC 3339 string and falls
// back to the current time.
func (h *Handler) legacyTimestamp(v any) int64 {
	switch ts := v.(type) {
	case float64:
		if ts > 0 {
			return int64(ts)
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t.UnixMilli()
		}
	}
	return h.clock.Now().UnixMilli()
}

type ActiveVisitorsResponse struct {
	Count   int64 `json:"count"`
	Updated bool  `json:"updated,omitempty"`
}

func (h *Handler) ActiveVisitors(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, ActiveVisitorsResponse{Count: h.active.Count(r.Context())})
}

func (h *Handler) TouchActiveVisitor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, httpserver.MsgInvalidBody)
		return
	}
	if req.SessionID == "" {
		httpserver.WriteError(w, http.StatusBadRequest, "Session ID required")
		return
	}

	if err := h.active.Touch(r.Context(), req.SessionID); err != nil {
		h.logger.Error("Failed to mark visitor active",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		httpserver.WriteError(w, http.StatusInternalServerError, httpserver.MsgInternal)
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, ActiveVisitorsResponse{
		Count:   h.active.Count(r.Context()),
		Updated: true,
	})
}

func (h *Handler) writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrBatchTooLarge):
		httpserver.WriteError(w, http.StatusBadRequest, capitalize(err.Error()))
	default:
		h.logger.Error("Failed to ingest events", zap.Error(err))
		httpserver.WriteError(w, http.StatusInternalServerError, httpserver.MsgInternal)
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
