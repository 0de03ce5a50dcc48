package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/simlink/internal/delta"
	"github.com/alanyoungcy/simlink/internal/domain"
)

// Link is the subset of the link engine the API reads and controls.
type Link interface {
	Status() domain.Connection
	Snapshot() domain.Snapshot
	DeltaStats() delta.Stats
	ManualReconnect()
	Disconnect()
	Disposed() bool
}

// LinkHandler serves connection status, reconstructed state and the manual
// reconnect/disconnect controls.
type LinkHandler struct {
	link   Link
	logger *slog.Logger
}

// NewLinkHandler creates a LinkHandler.
func NewLinkHandler(link Link, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{link: link, logger: logHandler(logger, "link")}
}

// GetConnection responds with the current connection snapshot and delta
// counters.
// GET /api/connection
func (h *LinkHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connection": h.link.Status(),
		"delta":      h.link.DeltaStats(),
		"disposed":   h.link.Disposed(),
	})
}

// GetState responds with the reconstructed state, or a single collection
// when ?collection= is given.
// GET /api/state
func (h *LinkHandler) GetState(w http.ResponseWriter, r *http.Request) {
	snap := h.link.Snapshot()
	name := r.URL.Query().Get("collection")
	if name == "" {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	coll := snap.Collection(name)
	if coll == nil {
		writeError(w, http.StatusNotFound, "collection not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sequence":   snap.Sequence,
		"updated_at": snap.UpdatedAt,
		"collection": name,
		"data":       coll,
	})
}

// Reconnect resets the backoff schedule and reconnects immediately.
// POST /api/reconnect
func (h *LinkHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if h.link.Disposed() {
		writeError(w, http.StatusConflict, "link disposed")
		return
	}
	h.logger.Info("manual reconnect requested", slog.String("remote_addr", r.RemoteAddr))
	h.link.ManualReconnect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

// Disconnect closes the link without scheduling a reconnect.
// POST /api/disconnect
func (h *LinkHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if h.link.Disposed() {
		writeError(w, http.StatusConflict, "link disposed")
		return
	}
	h.logger.Info("manual disconnect requested", slog.String("remote_addr", r.RemoteAddr))
	h.link.Disconnect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "disconnecting"})
}
