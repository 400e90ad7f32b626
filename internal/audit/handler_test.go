package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleListEvents_NilPool(t *testing.T) {
	h := NewHandler(nil, NewStore())
	req := httptest.NewRequest(http.MethodGet, "/internal/audit/events", nil)
	w := httptest.NewRecorder()

	h.HandleListEvents(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestHandleListEvents_Filters(t *testing.T) {
	h := NewHandler(nil, NewStore())
	req := httptest.NewRequest(http.MethodGet,
		"/internal/audit/events?action=webhook.verification_failed&source=twilio&limit=10&after=2026-01-01T00:00:00Z", nil)
	w := httptest.NewRecorder()

	h.HandleListEvents(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`)
}

func TestHandleListEvents_BadInput(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"limit too large", "?limit=500"},
		{"limit not a number", "?limit=abc"},
		{"bad after", "?after=yesterday"},
		{"bad before", "?before=2026-13-45"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, NewStore())
			req := httptest.NewRequest(http.MethodGet, "/internal/audit/events"+tt.query, nil)
			w := httptest.NewRecorder()

			h.HandleListEvents(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
