package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/uberfix/fixhooks/internal/platform/database"
)

// Handler serves audit query endpoints for operators.
type Handler struct {
	db    database.Querier
	store *Store
}

// NewHandler creates an audit query handler.
func NewHandler(db database.Querier, store *Store) *Handler {
	return &Handler{db: db, store: store}
}

// HandleListEvents returns recent audit events.
// GET /internal/audit/events?action=webhook.verification_failed&source=twilio&limit=50&after=<RFC3339>
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := ListEventsParams{Limit: 50}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 200"})
			return
		}
		params.Limit = n
	}
	if v := q.Get("action"); v != "" {
		params.Action = &v
	}
	if v := q.Get("resource_type"); v != "" {
		params.ResourceType = &v
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}
	for key, dst := range map[string]**time.Time{"after": &params.After, "before": &params.Before} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": key + " must be RFC3339"})
			return
		}
		*dst = &ts
	}

	if h.db == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []any{}, "count": 0})
		return
	}

	events, err := h.store.ListEvents(r.Context(), h.db, params)
	if err != nil {
		slog.Error("listing audit events", "error", err)
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
