package kv

import "context"

const (
	IndicatorConnected    = "connected"
	IndicatorWarning      = "warning"
	IndicatorDisconnected = "disconnected"
)

// Status is the connectivity block shown on the dashboard.
type Status struct {
	Connected bool   `json:"connected"`
	Type      string `json:"type"`
	Error     string `json:"error,omitempty"`
	Indicator string `json:"indicator"`
}

// CheckStatus pings the backend. The memory variant is reported as a warning
// because its data is not durable.
func CheckStatus(ctx context.Context, backend Backend) Status {
	if backend == nil {
		return Status{Type: "none", Error: "No client initialized", Indicator: IndicatorDisconnected}
	}

	if err := backend.Ping(ctx); err != nil {
		return Status{Type: "none", Error: err.Error(), Indicator: IndicatorDisconnected}
	}

	status := Status{Connected: true, Type: string(backend.Kind()), Indicator: IndicatorConnected}
	if backend.Kind() == KindMemory {
		status.Indicator = IndicatorWarning
		if fallback, ok := backend.(interface{ FallbackReason() string }); ok {
			status.Error = fallback.FallbackReason()
		}
	}
	return status
}
