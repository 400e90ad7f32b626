// Package audit records append-only security and lifecycle events.
package audit

import (
	"context"
	"time"
)

// Event represents a single auditable action in the system.
type Event struct {
	Action       string // e.g. "webhook.verification_failed", "flow.request_created"
	ResourceType string // e.g. "webhook", "maintenance_request", "lead"
	ResourceID   string
	Metadata     map[string]any
	Source       string // "twilio", "meta", "whatsapp_flow", "system"
}

const (
	ActionWebhookVerificationFailed = "webhook.verification_failed"
	ActionInboundMessageReceived    = "inbound.message.received"
	ActionInboundMessageDuplicate   = "inbound.message.duplicate"
	ActionFlowRequestCreated        = "flow.request_created"
	ActionLeadConverted             = "lead.converted"
	ActionNotificationDispatched    = "notification.dispatched"
	ActionNotificationDuplicate     = "notification.duplicate"
)

const (
	MetadataProvider      = "provider"
	MetadataIP            = "ip"
	MetadataUserAgent     = "user_agent"
	MetadataPath          = "path"
	MetadataReason        = "reason"
	MetadataTimestamp     = "timestamp"
	MetadataCorrelationID = "correlation_id"
	MetadataExternalID    = "external_id"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// VerificationFailure describes a rejected webhook call.
type VerificationFailure struct {
	Provider  string
	IP        string
	UserAgent string
	Path      string
	Reason    string
	At        time.Time
}

// Event converts the failure into its audit record.
func (f VerificationFailure) Event() Event {
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		Action:       ActionWebhookVerificationFailed,
		ResourceType: "webhook",
		Source:       f.Provider,
		Metadata: map[string]any{
			MetadataProvider:  f.Provider,
			MetadataIP:        f.IP,
			MetadataUserAgent: f.UserAgent,
			MetadataPath:      f.Path,
			MetadataReason:    f.Reason,
			MetadataTimestamp: at.UTC().Format(time.RFC3339Nano),
		},
	}
}
