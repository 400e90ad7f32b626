package maintenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uberfix/fixhooks/internal/platform/database"
)

// Repository binds a Store to a connection pool for callers that do not
// manage transactions themselves.
type Repository struct {
	pool  *database.Pool
	store *Store
}

// NewRepository creates a pool-bound repository.
func NewRepository(pool *database.Pool, store *Store) *Repository {
	return &Repository{pool: pool, store: store}
}

func (r *Repository) DefaultOrganization(ctx context.Context) (Organization, error) {
	return r.store.DefaultOrganization(ctx, r.pool)
}

func (r *Repository) CreateRequest(ctx context.Context, in NewRequest) (*Request, error) {
	return r.store.CreateRequest(ctx, r.pool, in)
}

// CorrelateRequest resolves the newest request for a sender address.
// A miss returns nil without error.
func (r *Repository) CorrelateRequest(ctx context.Context, address string) (*uuid.UUID, error) {
	id, err := r.store.FindRequestByPhone(ctx, r.pool, address)
	if errors.Is(err, ErrRequestNotFound) {
		return nil, nil
	}
	return id, err
}

func (r *Repository) StaffUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.store.StaffUserIDs(ctx, r.pool)
}

func (r *Repository) InsertNotification(ctx context.Context, n Notification) (uuid.UUID, error) {
	return r.store.InsertNotification(ctx, r.pool, n)
}

func (r *Repository) InsertNotifications(ctx context.Context, recipients []uuid.UUID, n Notification) (int64, error) {
	return r.store.InsertNotifications(ctx, r.pool, recipients, n)
}

func (r *Repository) SetDeliveryFlag(ctx context.Context, id uuid.UUID, flag string, delivered bool) error {
	return r.store.SetDeliveryFlag(ctx, r.pool, id, flag, delivered)
}

func (r *Repository) InsertMessageLog(ctx context.Context, m MessageLog) error {
	return r.store.InsertMessageLog(ctx, r.pool, m)
}

func (r *Repository) InsertInboundMessage(ctx context.Context, m *InboundMessage) (bool, error) {
	return r.store.InsertInboundMessage(ctx, r.pool, m)
}

func (r *Repository) LeadExists(ctx context.Context, leadgenID string) (bool, error) {
	return r.store.LeadExists(ctx, r.pool, leadgenID)
}

// SaveLead stores a lead without creating a request from it.
func (r *Repository) SaveLead(ctx context.Context, lead *Lead) (bool, error) {
	return r.store.InsertLead(ctx, r.pool, lead)
}

// ConvertLead stores the lead, creates a request from it and marks the lead
// converted, all in one transaction. A lead already stored returns
// (nil, false, nil).
func (r *Repository) ConvertLead(ctx context.Context, lead *Lead, in NewRequest) (*Request, bool, error) {
	var created *Request
	inserted := false
	err := database.WithTx(ctx, r.pool, func(ctx context.Context, q database.Querier) error {
		ok, err := r.store.InsertLead(ctx, q, lead)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		inserted = true

		req, err := r.store.CreateRequest(ctx, q, in)
		if err != nil {
			return err
		}
		if err := r.store.MarkLeadConverted(ctx, q, lead.ID, req.ID); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("converting lead %s: %w", lead.LeadgenID, err)
	}
	return created, inserted, nil
}
