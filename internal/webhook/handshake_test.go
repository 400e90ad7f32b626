package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uberfix/fixhooks/internal/audit"
)

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

func TestHandleHandshake(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"match", "secret", "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "secret", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, ""},
		{"wrong mode", "secret", "hub.mode=unsubscribe&hub.verify_token=secret&hub.challenge=42", http.StatusForbidden, ""},
		{"empty configured token", "", "hub.mode=subscribe&hub.verify_token=&hub.challenge=42", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp/flow?"+tt.query, nil)
			w := httptest.NewRecorder()

			HandleHandshake("meta", tt.configured)(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
				assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
			}
		})
	}
}

type captureAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureAudit) Log(_ context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureAudit) Close() error { return nil }

type panickingAudit struct{}

func (panickingAudit) Log(context.Context, audit.Event) { panic("store down") }
func (panickingAudit) Close() error                     { return nil }

func TestFailureRecorder_Record(t *testing.T) {
	capture := &captureAudit{}
	rec := NewFailureRecorder(capture)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/messages", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("User-Agent", "TwilioProxy/1.1")

	rec.Record(req.Context(), "twilio", req, "invalid signature")

	require.Len(t, capture.events, 1)
	e := capture.events[0]
	assert.Equal(t, audit.ActionWebhookVerificationFailed, e.Action)
	assert.Equal(t, "203.0.113.7", e.Metadata[audit.MetadataIP])
	assert.Equal(t, "TwilioProxy/1.1", e.Metadata[audit.MetadataUserAgent])
	assert.Equal(t, "/webhooks/twilio/messages", e.Metadata[audit.MetadataPath])
}

func TestFailureRecorder_SwallowsPanics(t *testing.T) {
	rec := NewFailureRecorder(panickingAudit{})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta/leads", nil)

	assert.NotPanics(t, func() {
		rec.Record(req.Context(), "meta", req, "missing signature")
	})
}
