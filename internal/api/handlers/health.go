package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aminelidof/lidof-english-coach/internal/metrics"
)

// Pinger is satisfied by the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	redis    Pinger
	counters *metrics.Counters
}

// NewHealthHandler accepts a nil redis when Redis is disabled.
func NewHealthHandler(redis Pinger, counters *metrics.Counters) *HealthHandler {
	return &HealthHandler{redis: redis, counters: counters}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, map[string]interface{}{"status": statusStr(status), "checks": checks})
}

// Fallbacks reports how often each pipeline stage degraded. With Redis the
// totals cover every replica.
func (h *HealthHandler) Fallbacks(w http.ResponseWriter, r *http.Request) {
	if h.counters == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"scope": "local", "fallbacks": map[string]int64{}})
		return
	}

	scope := "shared"
	counts, err := h.counters.Shared(r.Context())
	if err != nil {
		scope = "local"
		counts = h.counters.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scope": scope, "fallbacks": counts})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
