// Package httpserver holds the chi router, middleware and JSON helpers
// shared by the HTTP services.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthFunc reports service health for /health.
type HealthFunc func(ctx context.Context) (healthy bool, dependencies map[string]string)

type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// NewRouter returns a chi router with request IDs, logging, panic recovery,
// JSON 404/405 replies, /health and /metrics. Extra middleware (CORS) runs
// after recovery and before routing.
func NewRouter(log *zap.Logger, health HealthFunc, middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging(log))
	r.Use(Recovery(log))
	r.Use(middlewares...)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, MsgNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health == nil {
			WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
			return
		}
		healthy, deps := health(r.Context())
		if !healthy {
			WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Dependencies: deps})
			return
		}
		WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Dependencies: deps})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Serve runs srv until ctx is cancelled, then shuts it down within timeout.
func Serve(ctx context.Context, srv *http.Server, timeout time.Duration, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown timed out", zap.Error(err))
		return srv.Close()
	}
	log.Info("HTTP server stopped")
	return nil
}
