// Package events consumes maintenance request lifecycle events from Kafka
// and dispatches the notifications they imply.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/uberfix/fixhooks/internal/notify"
)

// LifecycleEvent is one message on the lifecycle topic.
type LifecycleEvent struct {
	EventType      notify.EventType `json:"event_type"`
	RequestID      *uuid.UUID       `json:"request_id,omitempty"`
	RecipientID    uuid.UUID        `json:"recipient_id"`
	RecipientEmail string           `json:"recipient_email,omitempty"`
	RecipientPhone string           `json:"recipient_phone,omitempty"`
	Channels       []notify.Channel `json:"channels,omitempty"`
	Data           notify.Data      `json:"data"`
	DedupKey       string           `json:"dedup_key,omitempty"`
}

// Decode parses a message value. Events without a dedup key are keyed by
// their log position so redelivery after a rebalance is not re-sent.
func Decode(m kafka.Message) (notify.Request, error) {
	var e LifecycleEvent
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return notify.Request{}, fmt.Errorf("decoding lifecycle event: %w", err)
	}
	key := e.DedupKey
	if key == "" {
		key = "kafka:" + m.Topic + ":" + strconv.Itoa(m.Partition) + ":" + strconv.FormatInt(m.Offset, 10)
	}
	return notify.Request{
		Type:           e.EventType,
		RequestID:      e.RequestID,
		RecipientID:    e.RecipientID,
		RecipientEmail: e.RecipientEmail,
		RecipientPhone: e.RecipientPhone,
		Channels:       e.Channels,
		Data:           e.Data,
		DedupKey:       key,
	}, nil
}
