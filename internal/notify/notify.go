// Package notify fans a single domain event out to in-app, email, SMS and
// WhatsApp deliveries and reports per-channel outcomes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnknownEventType = errors.New("unknown notification type")
	ErrUnknownChannel   = errors.New("unknown notification channel")
	ErrRecipientMissing = errors.New("recipient_id is required")
	ErrChannelDisabled  = errors.New("channel not configured")
	// ErrDispatchInterrupted means the context ended before every channel
	// finished; the dispatch may be retried.
	ErrDispatchInterrupted = errors.New("dispatch interrupted")
)

// EventType names a notification template.
type EventType string

const (
	EventRequestCreated        EventType = "request_created"
	EventStatusUpdated         EventType = "status_updated"
	EventVendorAssigned        EventType = "vendor_assigned"
	EventSLAWarning            EventType = "sla_warning"
	EventRequestCompleted      EventType = "request_completed"
	EventTechnicianApproved    EventType = "technician_approved"
	EventTechnicianRejected    EventType = "technician_rejected"
	EventTechnicianJobAssigned EventType = "technician_job_assigned"
)

// Valid reports whether t has a template.
func (t EventType) Valid() bool {
	_, ok := templates[t]
	return ok
}

// Channel is a delivery path.
type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel normalizes a channel name.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// UnmarshalText rejects unknown channel names when decoding.
func (c *Channel) UnmarshalText(b []byte) error {
	parsed, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Data carries template variables. Unset fields render empty unless the
// template supplies its own fallback.
type Data struct {
	RequestTitle    string `json:"request_title,omitempty"`
	RequestStatus   string `json:"request_status,omitempty"`
	OldStatus       string `json:"old_status,omitempty"`
	NewStatus       string `json:"new_status,omitempty"`
	VendorName      string `json:"vendor_name,omitempty"`
	PropertyName    string `json:"property_name,omitempty"`
	SLADeadline     string `json:"sla_deadline,omitempty"`
	Notes           string `json:"notes,omitempty"`
	TechnicianName  string `json:"technician_name,omitempty"`
	TechnicianID    string `json:"technician_id,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	LoginURL        string `json:"login_url,omitempty"`
	Distance        string `json:"distance,omitempty"`
	JobType         string `json:"job_type,omitempty"`
}

// Request is one dispatch call.
type Request struct {
	Type           EventType  `json:"type"`
	RequestID      *uuid.UUID `json:"request_id,omitempty"`
	RecipientID    uuid.UUID  `json:"recipient_id"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	RecipientPhone string     `json:"recipient_phone,omitempty"`
	Channels       []Channel  `json:"channels,omitempty"`
	Data           Data       `json:"data"`
	// DedupKey, when set, makes replays of the same event a no-op.
	DedupKey string `json:"dedup_key,omitempty"`
}

// ChannelResult is the outcome of one channel.
type ChannelResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func succeeded() *ChannelResult { return &ChannelResult{Success: true} }

func failed(err error) *ChannelResult {
	return &ChannelResult{Success: false, Error: err.Error()}
}

// Results holds one entry per channel; nil means the channel was not requested.
type Results struct {
	InApp    *ChannelResult `json:"in_app"`
	Email    *ChannelResult `json:"email"`
	SMS      *ChannelResult `json:"sms"`
	WhatsApp *ChannelResult `json:"whatsapp"`
}

// Result is the aggregate outcome. Success is true only when every
// requested channel succeeded.
type Result struct {
	Success   bool    `json:"success"`
	Duplicate bool    `json:"duplicate,omitempty"`
	Results   Results `json:"results"`
}

func (r *Results) each(fn func(*ChannelResult)) {
	for _, cr := range []*ChannelResult{r.InApp, r.Email, r.SMS, r.WhatsApp} {
		if cr != nil {
			fn(cr)
		}
	}
}

// TextMessage is an SMS or WhatsApp body for one recipient.
type TextMessage struct {
	To   string
	Body string
}

// Delivery describes an accepted outbound message.
type Delivery struct {
	Provider  string
	MessageID string
	To        string
}

// TextSender delivers text over SMS or WhatsApp.
type TextSender interface {
	SendText(ctx context.Context, ch Channel, msg TextMessage) (Delivery, error)
}

// Email is one transactional email.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers transactional email and returns the provider message id.
type Mailer interface {
	SendEmail(ctx context.Context, e Email) (string, error)
}
