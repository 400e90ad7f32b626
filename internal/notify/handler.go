package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

const maxDispatchBody = 64 << 10

type dispatcher interface {
	Dispatch(ctx context.Context, req Request) (*Result, error)
}

// Handler exposes the dispatcher over HTTP.
type Handler struct {
	dispatcher dispatcher
}

// NewHandler creates a dispatch handler.
func NewHandler(d dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// HandleDispatch handles POST /internal/notifications.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDispatchBody))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, ErrUnknownChannel) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownEventType), errors.Is(err, ErrRecipientMissing):
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		default:
			slog.Error("dispatching notification", "type", req.Type, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "dispatch failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
