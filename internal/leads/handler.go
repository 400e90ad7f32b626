package leads

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/uberfix/fixhooks/internal/audit"
	"github.com/uberfix/fixhooks/internal/maintenance"
	"github.com/uberfix/fixhooks/internal/providers"
	"github.com/uberfix/fixhooks/internal/webhook"
)

const defaultMaxBody = 1 << 20

type leadStore interface {
	LeadExists(ctx context.Context, leadgenID string) (bool, error)
	DefaultOrganization(ctx context.Context) (maintenance.Organization, error)
	SaveLead(ctx context.Context, lead *maintenance.Lead) (bool, error)
	ConvertLead(ctx context.Context, lead *maintenance.Lead, in maintenance.NewRequest) (*maintenance.Request, bool, error)
}

// Fetcher loads the submitted answers of a lead.
type Fetcher interface {
	FetchLead(ctx context.Context, leadgenID string) (*providers.LeadDetails, error)
}

// Handler receives lead-ads webhooks.
type Handler struct {
	store    leadStore
	fetcher  Fetcher
	verifier webhook.Verifier
	failures *webhook.FailureRecorder
	audit    audit.Logger
	maxBody  int64
}

// NewHandler creates a lead webhook handler. A nil fetcher stores leads
// without their answers; a nil verifier accepts unsigned deliveries.
func NewHandler(store leadStore, fetcher Fetcher, verifier webhook.Verifier, auditLog audit.Logger, maxBody int64) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Handler{
		store:    store,
		fetcher:  fetcher,
		verifier: verifier,
		failures: webhook.NewFailureRecorder(auditLog),
		audit:    auditLog,
		maxBody:  maxBody,
	}
}

// HandleWebhook handles POST /webhooks/meta/leads. Meta retries anything but
// a 200, so per-lead failures are logged and still acknowledged.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := webhook.ReadBody(r, h.maxBody)
	if err != nil {
		if errors.Is(err, webhook.ErrBodyTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if h.verifier != nil {
		ok, reason := webhook.VerifySignature(h.verifier, webhook.Request{Header: r.Header, Body: body})
		if !ok {
			h.failures.Record(ctx, h.verifier.Provider(), r, reason)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid signature"})
			return
		}
	} else {
		slog.Warn("meta app secret not configured, skipping signature verification", "path", r.URL.Path)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		slog.Warn("parsing lead webhook", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if env.Object != objectPage {
		slog.Info("ignoring lead webhook object", "object", env.Object)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != fieldLeadgen {
				continue
			}
			if err := h.processLead(ctx, change.Value); err != nil {
				slog.Error("processing lead", "page_id", entry.ID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) processLead(ctx context.Context, raw json.RawMessage) error {
	var v LeadgenValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	leadgenID := string(v.LeadgenID)
	if leadgenID == "" {
		slog.Warn("leadgen change without leadgen_id")
		return nil
	}

	exists, err := h.store.LeadExists(ctx, leadgenID)
	if err != nil {
		return err
	}
	if exists {
		slog.Info("lead already processed", "leadgen_id", leadgenID)
		return nil
	}

	var fields Fields
	if h.fetcher != nil {
		details, err := h.fetcher.FetchLead(ctx, leadgenID)
		if err != nil {
			slog.Warn("fetching lead details", "leadgen_id", leadgenID, "error", err)
		} else {
			fields = ParseFieldData(details.FieldData)
		}
	}

	lead := &maintenance.Lead{
		LeadgenID:   leadgenID,
		FormID:      string(v.FormID),
		PageID:      string(v.PageID),
		AdID:        string(v.AdID),
		AdgroupID:   string(v.AdgroupID),
		CampaignID:  string(v.CampaignID),
		FullName:    fields.FullName,
		Email:       fields.Email,
		Phone:       fields.Phone,
		City:        fields.City,
		Address:     fields.Address,
		ServiceType: fields.ServiceType,
		Message:     fields.Message,
		RawData:     raw,
	}

	org, err := h.store.DefaultOrganization(ctx)
	if err != nil {
		slog.Error("no owning organization for lead, storing unconverted", "leadgen_id", leadgenID, "error", err)
		_, err := h.store.SaveLead(ctx, lead)
		return err
	}

	created, inserted, err := h.store.ConvertLead(ctx, lead, newRequest(org, fields))
	if err != nil {
		return err
	}
	if !inserted {
		slog.Info("lead already processed", "leadgen_id", leadgenID)
		return nil
	}

	slog.Info("lead converted", "leadgen_id", leadgenID, "request_id", created.ID)
	h.audit.Log(ctx, audit.Event{
		Action:       audit.ActionLeadConverted,
		ResourceType: "lead",
		ResourceID:   lead.ID.String(),
		Source:       "meta",
		Metadata: map[string]any{
			audit.MetadataExternalID: leadgenID,
			"request_id":             created.ID.String(),
		},
	})
	return nil
}

func newRequest(org maintenance.Organization, f Fields) maintenance.NewRequest {
	location := f.Address
	if location == "" {
		location = f.City
	}
	return maintenance.NewRequest{
		Org:         org,
		Title:       "طلب من إعلان فيسبوك - " + or(f.FullName, "عميل جديد"),
		Description: or(f.Message, "طلب صيانة وارد من إعلان فيسبوك"),
		ClientName:  or(f.FullName, "عميل من فيسبوك"),
		ClientPhone: f.Phone,
		ClientEmail: f.Email,
		Location:    location,
		ServiceType: f.ServiceType,
		Priority:    maintenance.PriorityMedium,
		Status:      "pending",
		Channel:     maintenance.ChannelFacebookLeadAd,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
