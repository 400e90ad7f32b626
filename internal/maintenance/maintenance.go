// Package maintenance is the datastore adapter for maintenance requests and
// the records the webhook pipeline writes around them.
package maintenance

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoOrganization   = errors.New("no default organization configured")
	ErrRequestNotFound  = errors.New("maintenance request not found")
	ErrNotificationGone = errors.New("notification not found")
	ErrTitleRequired    = errors.New("request title is required")
	ErrChannelRequired  = errors.New("request channel is required")
)

// Request channels.
const (
	ChannelWhatsAppFlow   = "whatsapp_flow"
	ChannelFacebookLeadAd = "facebook_lead_ad"
)

// Priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Organization is the owning company and branch for new requests.
type Organization struct {
	CompanyID uuid.UUID
	BranchID  *uuid.UUID
}

// NewRequest is the input to CreateRequest.
type NewRequest struct {
	Org           Organization
	RequestNumber string
	Title         string
	Description   string
	ClientName    string
	ClientPhone   string
	ClientEmail   string
	Location      string
	ServiceType   string
	Priority      string
	Status        string
	WorkflowStage string
	Channel       string
	CustomerNotes string
}

// Request is a persisted maintenance request.
type Request struct {
	ID            uuid.UUID  `json:"id"`
	CompanyID     uuid.UUID  `json:"company_id"`
	BranchID      *uuid.UUID `json:"branch_id,omitempty"`
	RequestNumber string     `json:"request_number"`
	Title         string     `json:"title"`
	ClientName    string     `json:"client_name"`
	ClientPhone   string     `json:"client_phone"`
	Priority      string     `json:"priority"`
	Status        string     `json:"status"`
	WorkflowStage string     `json:"workflow_stage"`
	Channel       string     `json:"channel"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Notification is an in-app notification row.
type Notification struct {
	RecipientID uuid.UUID
	Title       string
	Message     string
	Type        string // info, warning, success
	EntityType  string
	EntityID    *uuid.UUID
	EventType   string
	// SourceMessageID links staff alerts to the inbound message that caused them.
	SourceMessageID *uuid.UUID
}

// MessageLog records an outbound or flow-originated message.
type MessageLog struct {
	RequestID   *uuid.UUID
	Recipient   string
	MessageType string // sms, whatsapp, email
	Provider    string
	Content     string
	Status      string
	ExternalID  string
	Metadata    map[string]any
}

// InboundMessage is a message received from a messaging provider.
// External ids are unique per provider.
type InboundMessage struct {
	ID               uuid.UUID
	Provider         string
	ExternalID       string
	From             string
	To               string
	Body             string
	Channel          string // sms or whatsapp
	NumMedia         int
	MediaURL         string
	MediaContentType string
	ProfileName      string
	WaID             string
	RequestID        *uuid.UUID
	ReceivedAt       time.Time
}

// Lead is a Meta lead-ads submission.
type Lead struct {
	ID          uuid.UUID
	LeadgenID   string
	FormID      string
	PageID      string
	AdID        string
	AdgroupID   string
	CampaignID  string
	FullName    string
	Email       string
	Phone       string
	City        string
	Address     string
	ServiceType string
	Message     string
	RawData     json.RawMessage
	Status      string
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
