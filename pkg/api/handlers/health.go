package handlers

import (
	"net/http"
	"time"

	"github.com/quarryfs/quarry/pkg/service"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the cache service ready to serve reads?
type HealthHandler struct {
	svc     *service.Service
	started time.Time
}

// NewHealthHandler creates a new health handler.
//
// The service parameter may be nil, in which case the readiness check
// reports unhealthy.
func NewHealthHandler(svc *service.Service) *HealthHandler {
	return &HealthHandler{
		svc:     svc,
		started: time.Now().UTC(),
	}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running, along with uptime
// information consumed by the status command. This endpoint is designed
// for Kubernetes liveness probes and should always succeed as long as
// the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.started)
	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"service":    "quarry",
		"started_at": h.started.Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK if the cache service is initialized and its index
// answers queries. Returns 503 Service Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("cache service not initialized"))
		return
	}

	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"indexed_objects": stats.Indexed,
		"open_objects":    stats.Open,
	}))
}
