package tenants

import (
	"context"
	"encoding/json"
	"errors"

	"lettings_triage_backend/platform/phone"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("tenant not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tenantColumns = `id, name, inbound_phone, forward_to_phone, owner_notification_phone,
	timezone, allowed_postcode_prefixes, booking_url_viewings,
	message_templates, compliance_policy, created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.InboundPhone, &t.ForwardToPhone, &t.OwnerNotificationPhone,
		&t.Timezone, &t.AllowedPostcodePrefixes, &t.BookingURLViewings,
		&t.MessageTemplatesJSON, &t.CompliancePolicyJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetByID loads a tenant by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// CompliancePolicy returns the tenant's raw policy JSON. Parsing and
// defaulting live in the compliance package.
func (r *Repository) CompliancePolicy(ctx context.Context, tenantID uuid.UUID) (json.RawMessage, error) {
	var policy json.RawMessage
	err := r.pool.QueryRow(ctx,
		`SELECT compliance_policy FROM tenants WHERE id = $1`, tenantID,
	).Scan(&policy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return policy, nil
}

// GetByInboundPhone resolves the tenant owning an inbound provider number.
// Providers are inconsistent about number formatting, so all common variants
// of the posted number are tried.
func (r *Repository) GetByInboundPhone(ctx context.Context, toPhone string) (*Tenant, error) {
	variants := phone.Variants(toPhone)
	if len(variants) == 0 {
		return nil, ErrNotFound
	}

	row := r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE inbound_phone = ANY($1) LIMIT 1`,
		variants,
	)
	return scanTenant(row)
}
