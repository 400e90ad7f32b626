package maintenance

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/uberfix/fixhooks/internal/platform/database"
)

// Store handles maintenance database operations.
// Methods accept database.Querier so they can run inside database.WithTx.
type Store struct{}

// NewStore creates a maintenance store.
func NewStore() *Store {
	return &Store{}
}

// DefaultOrganization returns the oldest company and its oldest branch. A
// company without a branch counts as no organization.
func (s *Store) DefaultOrganization(ctx context.Context, q database.Querier) (Organization, error) {
	var org Organization
	err := q.QueryRow(ctx,
		`SELECT c.id,
		        (SELECT b.id FROM branches b WHERE b.company_id = c.id ORDER BY b.created_at, b.id LIMIT 1)
		 FROM companies c
		 ORDER BY c.created_at, c.id
		 LIMIT 1`,
	).Scan(&org.CompanyID, &org.BranchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNoOrganization
		}
		return Organization{}, fmt.Errorf("getting default organization: %w", err)
	}
	if org.BranchID == nil {
		return Organization{}, ErrNoOrganization
	}
	return org, nil
}

// CreateRequest inserts a maintenance request.
func (s *Store) CreateRequest(ctx context.Context, q database.Querier, in NewRequest) (*Request, error) {
	if in.Title == "" {
		return nil, ErrTitleRequired
	}
	if in.Channel == "" {
		return nil, ErrChannelRequired
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if in.Status == "" {
		in.Status = "Open"
	}
	if in.WorkflowStage == "" {
		in.WorkflowStage = "submitted"
	}

	var r Request
	err := q.QueryRow(ctx,
		`INSERT INTO maintenance_requests (
			company_id, branch_id, request_number, title, description,
			client_name, client_phone, client_email, location, service_type,
			priority, status, workflow_stage, channel, customer_notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, company_id, branch_id, COALESCE(request_number, ''), title, client_name, client_phone,
		          priority, status, workflow_stage, channel, created_at`,
		in.Org.CompanyID, in.Org.BranchID, nullable(in.RequestNumber), in.Title, in.Description,
		in.ClientName, in.ClientPhone, in.ClientEmail, in.Location, in.ServiceType,
		in.Priority, in.Status, in.WorkflowStage, in.Channel, in.CustomerNotes,
	).Scan(
		&r.ID, &r.CompanyID, &r.BranchID, &r.RequestNumber, &r.Title, &r.ClientName, &r.ClientPhone,
		&r.Priority, &r.Status, &r.WorkflowStage, &r.Channel, &r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating maintenance request: %w", err)
	}
	return &r, nil
}

var nonDigits = regexp.MustCompile(`\D`)

// FindRequestByPhone returns the newest request whose client phone equals
// phone or ends with its last ten digits.
func (s *Store) FindRequestByPhone(ctx context.Context, q database.Querier, phone string) (*uuid.UUID, error) {
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if digits == "" {
		return nil, ErrRequestNotFound
	}

	var id uuid.UUID
	err := q.QueryRow(ctx,
		`SELECT id FROM maintenance_requests
		 WHERE client_phone = $1
		    OR regexp_replace(client_phone, '\D', '', 'g') LIKE '%' || $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		phone, digits,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("finding request by phone: %w", err)
	}
	return &id, nil
}

// StaffUserIDs returns users holding admin, manager or staff roles.
func (s *Store) StaffUserIDs(ctx context.Context, q database.Querier) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx,
		`SELECT DISTINCT user_id FROM user_roles
		 WHERE role IN ('admin', 'manager', 'staff')
		 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing staff users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning staff user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
