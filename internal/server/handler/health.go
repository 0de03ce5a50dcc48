package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	status    func() domain.Connection
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. status may be nil, in which case
// only liveness is reported.
func NewHealthHandler(status func() domain.Connection, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{status: status, startedAt: time.Now().UTC(), logger: logger}
}

// HealthCheck responds with the process liveness and the link status. The
// process is healthy even while the link recovers.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.status != nil {
		conn := h.status()
		body["link"] = conn.Status
		body["quality"] = conn.Quality
	}
	writeJSON(w, http.StatusOK, body)
}
