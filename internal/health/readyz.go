package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// MaxPingLatency is the slowest engine ping still reported as ready.
const MaxPingLatency = 200 * time.Millisecond

// Pinger reports engine reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readyz returns an http.Handler that reports engine readiness.
func Readyz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		err := p.Ping(r.Context())
		latency := time.Since(start)

		ok := err == nil && latency <= MaxPingLatency
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}

		payload := map[string]any{
			"engine_ok":    err == nil,
			"last_ping_ms": latency.Milliseconds(),
		}
		if err != nil {
			payload["error"] = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}
}
