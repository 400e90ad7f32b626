package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uberfix/fixhooks/internal/platform/database"
)

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	_, err = db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(action, resource_type, resource_id, metadata, source)"
	var placeholders []string
	var args []any

	for i, e := range events {
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))

		var metaJSON []byte
		var err error
		if e.Metadata != nil {
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		var resourceID *string
		if e.ResourceID != "" {
			resourceID = &e.ResourceID
		}

		args = append(args, e.Action, e.ResourceType, resourceID, metaJSON, e.Source)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListEventsParams defines filters for querying audit events.
type ListEventsParams struct {
	Action       *string
	ResourceType *string
	Source       *string
	After        *time.Time
	Before       *time.Time
	Limit        int
}

// StoredEvent is an audit event as read back from the database.
type StoredEvent struct {
	ID           uuid.UUID       `json:"id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *string         `json:"resource_id"`
	Metadata     json.RawMessage `json:"metadata"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListEvents returns events matching p, newest first.
func (s *Store) ListEvents(ctx context.Context, db database.Querier, p ListEventsParams) ([]StoredEvent, error) {
	sql, args := buildListQuery(p)
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	events := make([]StoredEvent, 0)
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Metadata, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func buildListQuery(p ListEventsParams) (string, []any) {
	conditions := []string{"TRUE"}
	var args []any
	argN := 1

	if p.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argN))
		args = append(args, *p.Action)
		argN++
	}
	if p.ResourceType != nil {
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", argN))
		args = append(args, *p.ResourceType)
		argN++
	}
	if p.Source != nil {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argN))
		args = append(args, *p.Source)
		argN++
	}
	if p.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argN))
		args = append(args, *p.After)
		argN++
	}
	if p.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argN))
		args = append(args, *p.Before)
		argN++
	}

	sql := fmt.Sprintf(
		`SELECT id, action, resource_type, resource_id, metadata, source, created_at
		FROM audit_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`,
		strings.Join(conditions, " AND "), argN,
	)
	args = append(args, p.Limit)

	return sql, args
}
