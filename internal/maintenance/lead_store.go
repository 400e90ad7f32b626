package maintenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/uberfix/fixhooks/internal/platform/database"
)

// Lead statuses.
const (
	LeadStatusNew       = "new"
	LeadStatusConverted = "converted"
)

// InsertLead stores a lead. It returns false without error when the
// leadgen id was already stored.
func (s *Store) InsertLead(ctx context.Context, q database.Querier, l *Lead) (bool, error) {
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
	var raw []byte
	if len(l.RawData) > 0 {
		raw = l.RawData
	}
	err := q.QueryRow(ctx,
		`INSERT INTO facebook_leads (
			leadgen_id, form_id, page_id, ad_id, adgroup_id, campaign_id,
			full_name, email, phone, city, address, service_type, message, raw_data, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (leadgen_id) DO NOTHING
		RETURNING id`,
		l.LeadgenID, nullable(l.FormID), nullable(l.PageID), nullable(l.AdID), nullable(l.AdgroupID), nullable(l.CampaignID),
		nullable(l.FullName), nullable(l.Email), nullable(l.Phone), nullable(l.City), nullable(l.Address),
		nullable(l.ServiceType), nullable(l.Message), raw, l.Status,
	).Scan(&l.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting lead: %w", err)
	}
	return true, nil
}

// MarkLeadConverted links a lead to the request created from it.
func (s *Store) MarkLeadConverted(ctx context.Context, q database.Querier, leadID, requestID uuid.UUID) error {
	_, err := q.Exec(ctx,
		`UPDATE facebook_leads
		 SET status = $3, request_id = $2, converted_at = now()
		 WHERE id = $1`,
		leadID, requestID, LeadStatusConverted,
	)
	if err != nil {
		return fmt.Errorf("marking lead converted: %w", err)
	}
	return nil
}

// LeadExists reports whether a leadgen id was already stored.
func (s *Store) LeadExists(ctx context.Context, q database.Querier, leadgenID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM facebook_leads WHERE leadgen_id = $1)`,
		leadgenID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking lead: %w", err)
	}
	return exists, nil
}
