package flow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/uberfix/fixhooks/internal/audit"
	"github.com/uberfix/fixhooks/internal/flowcrypto"
	"github.com/uberfix/fixhooks/internal/maintenance"
	"github.com/uberfix/fixhooks/internal/notify"
	"github.com/uberfix/fixhooks/internal/providers"
	"github.com/uberfix/fixhooks/internal/webhook"
)

const (
	defaultMaxBody       = 1 << 20
	defaultInitialScreen = "REQUEST_FORM"
	defaultSuccessScreen = "SUCCESS"
)

type requestStore interface {
	DefaultOrganization(ctx context.Context) (maintenance.Organization, error)
	CreateRequest(ctx context.Context, in maintenance.NewRequest) (*maintenance.Request, error)
	StaffUserIDs(ctx context.Context) ([]uuid.UUID, error)
	InsertNotifications(ctx context.Context, recipients []uuid.UUID, n maintenance.Notification) (int64, error)
	InsertMessageLog(ctx context.Context, m maintenance.MessageLog) error
}

// Confirmer sends the WhatsApp confirmation to the requester.
type Confirmer interface {
	SendWhatsApp(ctx context.Context, to, body string) (string, error)
}

// Config controls the flow screens and limits.
type Config struct {
	FlowID        string
	InitialScreen string
	SuccessScreen string
	MaxBodyBytes  int64
	// Now stamps reference codes; nil uses time.Now.
	Now func() time.Time
}

// Handler serves the encrypted data-exchange endpoint.
type Handler struct {
	codec     *flowcrypto.Codec
	store     requestStore
	confirmer Confirmer
	audit     audit.Logger
	cfg       Config
}

// NewHandler creates a flow handler. A nil codec answers every POST with
// 500; a nil confirmer skips requester confirmations.
func NewHandler(codec *flowcrypto.Codec, store requestStore, confirmer Confirmer, auditLog audit.Logger, cfg Config) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if cfg.InitialScreen == "" {
		cfg.InitialScreen = defaultInitialScreen
	}
	if cfg.SuccessScreen == "" {
		cfg.SuccessScreen = defaultSuccessScreen
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{codec: codec, store: store, confirmer: confirmer, audit: auditLog, cfg: cfg}
}

// HandleExchange handles POST /webhooks/whatsapp/flow.
func (h *Handler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	if h.codec == nil {
		slog.Error("flow private key not configured")
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	body, err := webhook.ReadBody(r, h.cfg.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, webhook.ErrBodyTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.codec.DecryptCause(body)
	if err != nil {
		slog.Warn("flow request rejected", "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	var req exchangeRequest
	if err := json.Unmarshal(session.Payload, &req); err != nil {
		// Still answered in-protocol: the client only understands encrypted screens.
		slog.Warn("flow payload has unexpected shape, serving initial screen", "error", err)
		req = exchangeRequest{Version: payloadVersion(session.Payload)}
	}

	resp := h.exchange(r.Context(), req)

	sealed, err := session.Encrypt(resp)
	if err != nil {
		slog.Error("sealing flow response", "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sealed))
}

func (h *Handler) exchange(ctx context.Context, req exchangeRequest) response {
	switch req.Action {
	case ActionPing:
		return response{Version: req.Version, Data: map[string]any{"status": "active"}}
	case ActionInit:
		return h.initialScreen(req)
	case ActionDataExchange:
		return h.submit(ctx, req)
	default:
		slog.Warn("unknown flow action", "action", req.Action, "screen", req.Screen)
		return h.initialScreen(req)
	}
}

// payloadVersion salvages a string version from a payload that failed to
// decode as a whole.
func payloadVersion(payload []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	var version string
	if err := json.Unmarshal(fields["version"], &version); err != nil {
		return ""
	}
	return version
}

func (h *Handler) initialScreen(req exchangeRequest) response {
	return response{Version: req.Version, Screen: h.cfg.InitialScreen, Data: map[string]any{}}
}

func (h *Handler) errorScreen(req exchangeRequest, msg string) response {
	return response{Version: req.Version, Screen: h.cfg.InitialScreen, Data: map[string]any{"error_message": msg}}
}

// submit creates a request from a completed form. Everything after the
// insert is best effort.
func (h *Handler) submit(ctx context.Context, req exchangeRequest) response {
	sub, missing := parseSubmission(req)
	if len(missing) > 0 {
		slog.Info("flow submission incomplete", "missing", missing)
		return h.errorScreen(req, msgMissingFields)
	}

	org, err := h.store.DefaultOrganization(ctx)
	if err != nil {
		slog.Error("flow submission has no owning organization", "error", err)
		return h.errorScreen(req, msgSystemError)
	}

	ref := ReferenceCode(h.cfg.Now())
	created, err := h.store.CreateRequest(ctx, maintenance.NewRequest{
		Org:           org,
		RequestNumber: ref,
		Title:         sub.title(),
		Description:   sub.Description,
		ClientName:    sub.RequesterName,
		ClientPhone:   sub.SenderPhone,
		ServiceType:   sub.ServiceType,
		Location:      sub.Location,
		Priority:      MapPriority(sub.Priority),
		Status:        "Open",
		WorkflowStage: "submitted",
		Channel:       maintenance.ChannelWhatsAppFlow,
	})
	if err != nil {
		slog.Error("creating flow request", "error", err)
		return h.errorScreen(req, msgCreateFailed)
	}
	slog.Info("flow request created", "request_id", created.ID, "request_number", ref)

	h.confirm(ctx, sub, ref)
	h.notifyStaff(ctx, created, sub)
	h.logMessage(ctx, created, sub)

	h.audit.Log(ctx, audit.Event{
		Action:       audit.ActionFlowRequestCreated,
		ResourceType: "maintenance_request",
		ResourceID:   created.ID.String(),
		Source:       maintenance.ChannelWhatsAppFlow,
		Metadata:     map[string]any{"request_number": ref, "flow_id": h.cfg.FlowID},
	})

	return response{
		Version: req.Version,
		Screen:  h.cfg.SuccessScreen,
		Data: map[string]any{
			"request_number": ref,
			"extension_message_response": map[string]any{
				"params": map[string]any{
					"flow_token":     req.FlowToken,
					"request_number": ref,
					"requester_name": sub.RequesterName,
				},
			},
		},
	}
}

func (h *Handler) confirm(ctx context.Context, sub Submission, ref string) {
	if h.confirmer == nil || sub.SenderPhone == "" {
		return
	}
	to := providers.FormatWhatsAppID(sub.SenderPhone)
	if _, err := h.confirmer.SendWhatsApp(ctx, to, sub.confirmation(ref)); err != nil {
		slog.Warn("flow confirmation failed", "request_number", ref, "error", err)
	}
}

func (h *Handler) notifyStaff(ctx context.Context, created *maintenance.Request, sub Submission) {
	tpl, _ := notify.Lookup(notify.EventRequestCreated)
	staff, err := h.store.StaffUserIDs(ctx)
	if err != nil {
		slog.Warn("listing staff for flow request", "request_id", created.ID, "error", err)
		return
	}
	if len(staff) == 0 {
		return
	}
	_, err = h.store.InsertNotifications(ctx, staff, maintenance.Notification{
		Title:      tpl.Title,
		Message:    tpl.Message(notify.Data{RequestTitle: sub.title()}),
		Type:       tpl.Severity,
		EntityType: "maintenance_request",
		EntityID:   &created.ID,
		EventType:  string(notify.EventRequestCreated),
	})
	if err != nil {
		slog.Warn("notifying staff of flow request", "request_id", created.ID, "error", err)
	}
}

func (h *Handler) logMessage(ctx context.Context, created *maintenance.Request, sub Submission) {
	recipient := sub.SenderPhone
	if recipient == "" {
		recipient = "whatsapp_flow_user"
	}
	err := h.store.InsertMessageLog(ctx, maintenance.MessageLog{
		RequestID:   &created.ID,
		Recipient:   recipient,
		MessageType: "whatsapp",
		Provider:    "meta",
		Content:     "طلب صيانة جديد من WhatsApp Flow: " + sub.title(),
		Status:      "sent",
		Metadata: map[string]any{
			"source":           maintenance.ChannelWhatsAppFlow,
			"flow_id":          h.cfg.FlowID,
			"requester_name":   sub.RequesterName,
			"maintenance_type": sub.ServiceType,
			"branch_name":      sub.Location,
			"priority":         sub.Priority,
		},
	})
	if err != nil {
		slog.Warn("logging flow message", "request_id", created.ID, "error", err)
	}
}
