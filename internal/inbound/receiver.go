package inbound

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/uberfix/fixhooks/internal/audit"
	"github.com/uberfix/fixhooks/internal/maintenance"
	"github.com/uberfix/fixhooks/internal/webhook"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxBody   = 1 << 20
	defaultBatchSize = 200
	ackMessage       = "شكراً لتواصلك معنا. سيتم الرد عليك في أقرب وقت."
)

// Correlator resolves the domain request an address belongs to. A nil id
// with a nil error means no match.
type Correlator interface {
	CorrelateRequest(ctx context.Context, address string) (*uuid.UUID, error)
}

type messageStore interface {
	InsertInboundMessage(ctx context.Context, m *maintenance.InboundMessage) (bool, error)
	StaffUserIDs(ctx context.Context) ([]uuid.UUID, error)
	InsertNotifications(ctx context.Context, recipients []uuid.UUID, n maintenance.Notification) (int64, error)
}

// Config controls request handling.
type Config struct {
	// PublicBaseURL is the origin Twilio signs against; empty derives it
	// from the request.
	PublicBaseURL string
	MaxBodyBytes  int64
	// StaffBatchSize caps recipients per notification insert.
	StaffBatchSize int
}

// Receiver handles Twilio inbound message webhooks.
type Receiver struct {
	store      messageStore
	correlator Correlator
	verifier   webhook.Verifier
	failures   *webhook.FailureRecorder
	audit      audit.Logger
	cfg        Config
}

// NewReceiver creates a receiver. A nil verifier disables signature checks,
// which is logged on every request.
func NewReceiver(store messageStore, correlator Correlator, verifier webhook.Verifier, auditLog audit.Logger, cfg Config) *Receiver {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.StaffBatchSize <= 0 {
		cfg.StaffBatchSize = defaultBatchSize
	}
	return &Receiver{
		store:      store,
		correlator: correlator,
		verifier:   verifier,
		failures:   webhook.NewFailureRecorder(auditLog),
		audit:      auditLog,
		cfg:        cfg,
	}
}

// HandleTwilio handles POST /webhooks/twilio/messages.
func (rcv *Receiver) HandleTwilio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := webhook.ReadBody(r, rcv.cfg.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, webhook.ErrBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if rcv.verifier != nil {
		ok, reason := webhook.VerifySignature(rcv.verifier, webhook.Request{
			URL:    webhook.RequestURL(r, rcv.cfg.PublicBaseURL),
			Header: r.Header,
			Body:   body,
		})
		if !ok {
			rcv.failures.Record(ctx, rcv.verifier.Provider(), r, reason)
			writeError(w, http.StatusForbidden, "invalid signature")
			return
		}
	} else {
		slog.Warn("twilio auth token not configured, skipping signature verification", "path", r.URL.Path)
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		slog.Warn("parsing twilio payload", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := ParseMessage(form)
	if err != nil {
		slog.Warn("parsing twilio payload", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if rcv.correlator != nil {
		requestID, err := rcv.correlator.CorrelateRequest(ctx, msg.From)
		if err != nil {
			slog.Warn("correlating inbound message", "external_id", msg.ExternalID, "error", err)
		}
		msg.RequestID = requestID
	}

	inserted, err := rcv.store.InsertInboundMessage(ctx, msg)
	if err != nil {
		slog.Error("storing inbound message", "external_id", msg.ExternalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process incoming message")
		return
	}
	if !inserted {
		slog.Info("duplicate inbound message ignored", "provider", msg.Provider, "external_id", msg.ExternalID)
		rcv.audit.Log(ctx, audit.Event{
			Action:       audit.ActionInboundMessageDuplicate,
			ResourceType: "inbound_message",
			Source:       msg.Provider,
			Metadata:     map[string]any{audit.MetadataExternalID: msg.ExternalID},
		})
		writeTwiML(w, ackMessage)
		return
	}

	slog.Info("inbound message received",
		"provider", msg.Provider,
		"external_id", msg.ExternalID,
		"channel", msg.Channel,
		"has_media", msg.NumMedia > 0,
		"correlated", msg.RequestID != nil,
	)
	rcv.audit.Log(ctx, audit.Event{
		Action:       audit.ActionInboundMessageReceived,
		ResourceType: "inbound_message",
		ResourceID:   msg.ID.String(),
		Source:       msg.Provider,
		Metadata:     map[string]any{audit.MetadataExternalID: msg.ExternalID, "channel": msg.Channel},
	})

	if err := rcv.notifyStaff(ctx, msg); err != nil {
		slog.Warn("staff fan-out failed", "external_id", msg.ExternalID, "error", err)
	}

	writeTwiML(w, ackMessage)
}

// notifyStaff writes one alert per staff user in fixed-size batches.
func (rcv *Receiver) notifyStaff(ctx context.Context, msg *maintenance.InboundMessage) error {
	staff, err := rcv.store.StaffUserIDs(ctx)
	if err != nil {
		return err
	}
	if len(staff) == 0 {
		return nil
	}

	title, message := staffAlert(msg)
	n := maintenance.Notification{
		Title:           title,
		Message:         message,
		Type:            "info",
		EntityType:      "message",
		EntityID:        msg.RequestID,
		SourceMessageID: &msg.ID,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(staff); start += rcv.cfg.StaffBatchSize {
		end := min(start+rcv.cfg.StaffBatchSize, len(staff))
		batch := staff[start:end]
		g.Go(func() error {
			_, err := rcv.store.InsertNotifications(gctx, batch, n)
			return err
		})
	}
	return g.Wait()
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func writeTwiML(w http.ResponseWriter, message string) {
	out, err := xml.MarshalIndent(twimlResponse{Message: message}, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process incoming message")
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
