package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/uberfix/fixhooks/internal/platform/database"
)

// Delivery flag columns on notifications.
const (
	FlagSMSSent      = "sms_sent"
	FlagWhatsAppSent = "whatsapp_sent"
)

// InsertNotification writes an in-app notification and returns its id.
func (s *Store) InsertNotification(ctx context.Context, q database.Querier, n Notification) (uuid.UUID, error) {
	if n.Type == "" {
		n.Type = "info"
	}
	var id uuid.UUID
	err := q.QueryRow(ctx,
		`INSERT INTO notifications (recipient_id, title, message, type, entity_type, entity_id, event_type, source_message_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		n.RecipientID, n.Title, n.Message, n.Type, nullable(n.EntityType), n.EntityID, nullable(n.EventType), n.SourceMessageID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting notification: %w", err)
	}
	return id, nil
}

// InsertNotifications writes one notification per recipient in a single
// statement and returns how many rows were written.
func (s *Store) InsertNotifications(ctx context.Context, q database.Querier, recipients []uuid.UUID, n Notification) (int64, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	if n.Type == "" {
		n.Type = "info"
	}
	tag, err := q.Exec(ctx,
		`INSERT INTO notifications (recipient_id, title, message, type, entity_type, entity_id, event_type, source_message_id)
		 SELECT r, $2, $3, $4, $5, $6, $7, $8 FROM unnest($1::uuid[]) AS r`,
		recipients, n.Title, n.Message, n.Type, nullable(n.EntityType), n.EntityID, nullable(n.EventType), n.SourceMessageID,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetDeliveryFlag records whether a channel delivered the notification.
func (s *Store) SetDeliveryFlag(ctx context.Context, q database.Querier, id uuid.UUID, flag string, delivered bool) error {
	var sql string
	switch flag {
	case FlagSMSSent:
		sql = `UPDATE notifications SET sms_sent = $2 WHERE id = $1`
	case FlagWhatsAppSent:
		sql = `UPDATE notifications SET whatsapp_sent = $2 WHERE id = $1`
	default:
		return fmt.Errorf("unknown delivery flag %q", flag)
	}
	tag, err := q.Exec(ctx, sql, id, delivered)
	if err != nil {
		return fmt.Errorf("setting %s: %w", flag, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationGone
	}
	return nil
}

// InsertMessageLog records a message log entry.
func (s *Store) InsertMessageLog(ctx context.Context, q database.Querier, m MessageLog) error {
	var meta []byte
	if m.Metadata != nil {
		var err error
		meta, err = json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling message log metadata: %w", err)
		}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO message_logs (request_id, recipient, message_type, provider, content, status, external_id, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.RequestID, m.Recipient, m.MessageType, m.Provider, m.Content, m.Status, nullable(m.ExternalID), meta,
	)
	if err != nil {
		return fmt.Errorf("inserting message log: %w", err)
	}
	return nil
}

// InsertInboundMessage stores a received message. It returns false without
// error when the provider already delivered this external id.
func (s *Store) InsertInboundMessage(ctx context.Context, q database.Querier, m *InboundMessage) (bool, error) {
	err := q.QueryRow(ctx,
		`INSERT INTO inbound_messages (
			provider, external_id, sender, recipient, body, channel,
			num_media, media_url, media_content_type, profile_name, wa_id, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (provider, external_id) DO NOTHING
		RETURNING id, received_at`,
		m.Provider, m.ExternalID, m.From, m.To, m.Body, m.Channel,
		m.NumMedia, nullable(m.MediaURL), nullable(m.MediaContentType), nullable(m.ProfileName), nullable(m.WaID), m.RequestID,
	).Scan(&m.ID, &m.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting inbound message: %w", err)
	}
	return true, nil
}
