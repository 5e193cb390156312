package query

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Wuchinator/landing-analytics/internal/httpserver"
	"github.com/Wuchinator/landing-analytics/internal/storage"
)

const (
	MsgAuthRequired       = "Authentication required"
	MsgInvalidCredentials = "Invalid credentials"

	defaultHistoryDays = 30
)

type Handler struct {
	service      *Service
	password     string
	timelineDays int
	clock        clockwork.Clock
	logger       *zap.Logger
}

func NewHandler(service *Service, password string, clock clockwork.Clock, logger *zap.Logger) *Handler {
	return &Handler{
		service:      service,
		password:     password,
		timelineDays: DefaultTimelineDays,
		clock:        clock,
		logger:       logger,
	}
}

// WithTimelineDays sets the timeline length used when ?days is absent.
func (h *Handler) WithTimelineDays(days int) *Handler {
	if days > 0 {
		h.timelineDays = days
	}
	return h
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/stats", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/", h.Stats)
		r.Get("/history", h.History)
	})
}

// authenticate compares the bearer token with the shared dashboard secret.
// An unset secret rejects every request.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httpserver.WriteError(w, http.StatusUnauthorized, MsgAuthRequired)
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if h.password == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.password)) != 1 {
			h.logger.Warn("Rejected stats request", zap.String("remote_addr", r.RemoteAddr))
			httpserver.WriteError(w, http.StatusUnauthorized, MsgInvalidCredentials)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	days := h.timelineDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpserver.WriteError(w, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = n
	}

	snap, err := h.service.Snapshot(r.Context(), days)
	if err != nil {
		h.logger.Error("Failed to compose stats", zap.Error(err))
		httpserver.WriteError(w, http.StatusInternalServerError, httpserver.MsgInternal)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, snap)
}

// History serves /api/stats/history?from=YYYY-MM-DD&to=YYYY-MM-DD&metric=.
// Without bounds it covers the last 30 days.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := h.clock.Now().UTC()
	from := to.AddDate(0, 0, -(defaultHistoryDays - 1))

	var err error
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(storage.DayLayout, raw); err != nil {
			httpserver.WriteError(w, http.StatusBadRequest, "Invalid to parameter")
			return
		}
		if q.Get("from") == "" {
			from = to.AddDate(0, 0, -(defaultHistoryDays - 1))
		}
	}
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(storage.DayLayout, raw); err != nil {
			httpserver.WriteError(w, http.StatusBadRequest, "Invalid from parameter")
			return
		}
	}

	history, err := h.service.History(r.Context(), from, to, q.Get("metric"))
	switch {
	case err == nil:
		httpserver.WriteJSON(w, http.StatusOK, history)
	case errors.Is(err, ErrHistoryUnavailable):
		httpserver.WriteError(w, http.StatusServiceUnavailable, "History not available")
	case errors.Is(err, ErrInvalidRange):
		httpserver.WriteError(w, http.StatusBadRequest, "Invalid date range")
	case errors.Is(err, ErrUnknownMetric):
		httpserver.WriteError(w, http.StatusBadRequest, "Unknown metric")
	default:
		h.logger.Error("Failed to read history", zap.Error(err))
		httpserver.WriteError(w, http.StatusInternalServerError, httpserver.MsgInternal)
	}
}
