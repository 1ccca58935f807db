package handlers

import (
	"net/http"

	"github.com/quarryfs/quarry/pkg/service"
)

// StatsHandler handles the cache statistics endpoint.
type StatsHandler struct {
	svc *service.Service
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(svc *service.Service) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// Get handles GET /stats - engine, backing, quota and index counters.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		internalError(w, "failed to collect stats")
		return
	}

	writeJSON(w, http.StatusOK, okResponse(stats))
}
