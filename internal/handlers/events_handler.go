package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/powerchain/backend/internal/database"
	"github.com/powerchain/backend/internal/models"
	"github.com/powerchain/backend/internal/services"
)

// EventSource reads committed events back from the journal.
type EventSource interface {
	Recent(ctx context.Context, kind models.EventKind, limit int) ([]database.JournalRecord, error)
}

type EventsHandler struct {
	source EventSource
}

func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{source: source}
}

// Recent lists journaled ledger events, newest first
// @Summary Recent ledger events
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param kind query string false "Event kind"
// @Param limit query int false "Max events (default 100, max 500)"
// @Success 200 {object} object{events=[]database.JournalRecord}
// @Failure 503 {object} services.ErrorResponse
// @Router /events [get]
func (h *EventsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		services.SendErrorResponse(w, "Event journal unavailable", http.StatusServiceUnavailable, nil)
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			services.SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	records, err := h.source.Recent(r.Context(), models.EventKind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"events": records})
}
