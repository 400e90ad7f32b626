package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uberfix/fixhooks/internal/audit"
	"github.com/uberfix/fixhooks/internal/maintenance"
	"golang.org/x/sync/errgroup"
)

const (
	entityMaintenanceRequest = "maintenance_request"
	releaseTimeout           = 2 * time.Second
)

type dispatchStore interface {
	InsertNotification(ctx context.Context, n maintenance.Notification) (uuid.UUID, error)
	SetDeliveryFlag(ctx context.Context, id uuid.UUID, flag string, delivered bool) error
	InsertMessageLog(ctx context.Context, m maintenance.MessageLog) error
}

// DispatcherConfig controls optional collaborators and defaults.
type DispatcherConfig struct {
	// DefaultChannels apply when a request names none.
	DefaultChannels []Channel
	Dedup           DedupGuard
	Audit           audit.Logger
	Logger          *slog.Logger
}

// Dispatcher renders templates and delivers them per channel.
type Dispatcher struct {
	store  dispatchStore
	texts  TextSender
	mailer Mailer
	cfg    DispatcherConfig
}

// NewDispatcher creates a dispatcher. texts and mailer may be nil, in which
// case the matching channels report ErrChannelDisabled.
func NewDispatcher(store dispatchStore, texts TextSender, mailer Mailer, cfg DispatcherConfig) *Dispatcher {
	if len(cfg.DefaultChannels) == 0 {
		cfg.DefaultChannels = []Channel{ChannelInApp}
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{store: store, texts: texts, mailer: mailer, cfg: cfg}
}

// Dispatch delivers req on every requested channel. It fails when the
// request itself is invalid or ctx ends mid-dispatch; channel failures are
// reported in the Result. A channel without the contact it needs is not
// attempted and stays nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	tpl, ok := Lookup(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, req.Type)
	}
	if req.RecipientID == uuid.Nil {
		return nil, ErrRecipientMissing
	}

	claimed := false
	if req.DedupKey != "" && d.cfg.Dedup != nil {
		first, err := d.cfg.Dedup.Claim(ctx, req.DedupKey)
		if err != nil {
			d.cfg.Logger.Warn("dedup check failed, dispatching anyway", "dedup_key", req.DedupKey, "error", err)
		} else if !first {
			d.cfg.Logger.Info("duplicate notification skipped", "type", req.Type, "dedup_key", req.DedupKey)
			d.cfg.Audit.Log(ctx, audit.Event{
				Action:       audit.ActionNotificationDuplicate,
				ResourceType: "notification",
				ResourceID:   req.RecipientID.String(),
				Metadata:     map[string]any{"type": string(req.Type), "dedup_key": req.DedupKey},
				Source:       "notify",
			})
			return &Result{Success: true, Duplicate: true}, nil
		}
		claimed = err == nil
	}

	channels := req.Channels
	if len(channels) == 0 {
		channels = d.cfg.DefaultChannels
	}
	wants := make(map[Channel]bool, len(channels))
	for _, ch := range channels {
		wants[ch] = true
	}

	message := tpl.render(req.Data)
	var res Result

	var notificationID uuid.UUID
	if wants[ChannelInApp] {
		id, err := d.store.InsertNotification(ctx, maintenance.Notification{
			RecipientID: req.RecipientID,
			Title:       tpl.Title,
			Message:     message,
			Type:        tpl.Severity,
			EntityType:  entityMaintenanceRequest,
			EntityID:    req.RequestID,
			EventType:   string(req.Type),
		})
		if err != nil {
			d.cfg.Logger.Error("in-app notification failed", "recipient_id", req.RecipientID, "error", err)
			res.Results.InApp = failed(err)
		} else {
			notificationID = id
			res.Results.InApp = succeeded()
		}
	}
	inAppOK := res.Results.InApp != nil && res.Results.InApp.Success

	// Email, SMS and WhatsApp are independent of one another.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	if wants[ChannelEmail] {
		g.Go(func() error {
			r := d.sendEmail(gctx, req, tpl)
			mu.Lock()
			res.Results.Email = r
			mu.Unlock()
			return nil
		})
	}
	for _, ch := range []Channel{ChannelSMS, ChannelWhatsApp} {
		if !wants[ch] {
			continue
		}
		g.Go(func() error {
			r := d.sendText(gctx, ch, req, message)
			if inAppOK && r != nil {
				d.setFlag(gctx, notificationID, ch, r.Success)
			}
			mu.Lock()
			if ch == ChannelSMS {
				res.Results.SMS = r
			} else {
				res.Results.WhatsApp = r
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		d.release(req.DedupKey, claimed)
		return nil, fmt.Errorf("%w: %w", ErrDispatchInterrupted, err)
	}

	res.Success = true
	res.Results.each(func(cr *ChannelResult) {
		if !cr.Success {
			res.Success = false
		}
	})

	d.cfg.Audit.Log(ctx, audit.Event{
		Action:       audit.ActionNotificationDispatched,
		ResourceType: "notification",
		ResourceID:   req.RecipientID.String(),
		Metadata:     map[string]any{"type": string(req.Type), "success": res.Success},
		Source:       "notify",
	})
	if !res.Success {
		// A failed dispatch must stay retryable under the same key.
		d.release(req.DedupKey, claimed)
	}
	return &res, nil
}

func (d *Dispatcher) release(key string, claimed bool) {
	if !claimed {
		return
	}
	// The request context may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := d.cfg.Dedup.Release(ctx, key); err != nil {
		d.cfg.Logger.Warn("dedup key release failed", "dedup_key", key, "error", err)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, req Request, tpl Template) *ChannelResult {
	if req.RecipientEmail == "" {
		d.cfg.Logger.Debug("email skipped, no recipient address", "type", req.Type)
		return nil
	}
	if d.mailer == nil {
		return failed(ErrChannelDisabled)
	}
	id, err := d.mailer.SendEmail(ctx, Email{
		To:      req.RecipientEmail,
		Subject: tpl.EmailSubject,
		HTML:    tpl.EmailHTML(req.Data),
	})
	if err != nil {
		d.cfg.Logger.Error("email notification failed", "type", req.Type, "error", err)
		return failed(err)
	}
	d.cfg.Logger.Info("email notification sent", "type", req.Type, "message_id", id)
	return succeeded()
}

func (d *Dispatcher) sendText(ctx context.Context, ch Channel, req Request, body string) *ChannelResult {
	if req.RecipientPhone == "" {
		d.cfg.Logger.Debug("text skipped, no recipient phone", "channel", ch, "type", req.Type)
		return nil
	}
	if d.texts == nil {
		return failed(ErrChannelDisabled)
	}

	delivery, err := d.texts.SendText(ctx, ch, TextMessage{To: req.RecipientPhone, Body: body})
	entry := maintenance.MessageLog{
		RequestID:   req.RequestID,
		Recipient:   req.RecipientPhone,
		MessageType: string(ch),
		Provider:    delivery.Provider,
		Content:     body,
		Status:      "sent",
		ExternalID:  delivery.MessageID,
		Metadata:    map[string]any{"notification_type": string(req.Type)},
	}
	if delivery.To != "" {
		entry.Recipient = delivery.To
	}
	if err != nil {
		entry.Status = "failed"
		entry.Metadata["error"] = err.Error()
		d.cfg.Logger.Error("text notification failed", "channel", ch, "type", req.Type, "error", err)
	}
	if entry.Provider == "" {
		entry.Provider = "unknown"
	}
	if logErr := d.store.InsertMessageLog(ctx, entry); logErr != nil {
		d.cfg.Logger.Warn("message log write failed", "channel", ch, "error", logErr)
	}

	if err != nil {
		return failed(err)
	}
	return succeeded()
}

func (d *Dispatcher) setFlag(ctx context.Context, id uuid.UUID, ch Channel, delivered bool) {
	flag := maintenance.FlagSMSSent
	if ch == ChannelWhatsApp {
		flag = maintenance.FlagWhatsAppSent
	}
	if err := d.store.SetDeliveryFlag(ctx, id, flag, delivered); err != nil {
		d.cfg.Logger.Warn("delivery flag update failed", "notification_id", id, "flag", flag, "error", err)
	}
}
