package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// journalEntryResponse is the JSON shape of one journal row.
type journalEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Status    domain.Status  `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// JournalHandler serves the connection journal and the latest archive
// record. Either store may be nil when the process runs without Postgres.
type JournalHandler struct {
	journal  domain.JournalStore
	archive  domain.ArchiveIndex
	deviceID func() string
	logger   *slog.Logger
}

// NewJournalHandler creates a JournalHandler for the device returned by
// deviceID.
func NewJournalHandler(journal domain.JournalStore, archive domain.ArchiveIndex, deviceID func() string, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{
		journal:  journal,
		archive:  archive,
		deviceID: deviceID,
		logger:   logHandler(logger, "journal"),
	}
}

// ListJournal returns journal entries, newest first.
// GET /api/journal?limit=&offset=&since=&until=
func (h *JournalHandler) ListJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	entries, err := h.journal.List(r.Context(), h.deviceID(), parseListOpts(r))
	if err != nil {
		h.logger.Error("list journal failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list journal")
		return
	}

	out := make([]journalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntryResponse{
			ID:        e.ID,
			Event:     e.Event,
			Status:    e.Status,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

// LatestArchive returns the most recent archived snapshot record.
// GET /api/archive/latest
func (h *JournalHandler) LatestArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}
	rec, err := h.archive.Latest(r.Context(), h.deviceID())
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no archive yet")
		return
	}
	if err != nil {
		h.logger.Error("latest archive failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load archive record")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":  rec.DeviceID,
		"sequence":   rec.Sequence,
		"object_key": rec.ObjectKey,
		"size_bytes": rec.SizeBytes,
		"created_at": rec.CreatedAt,
	})
}
