package voice

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordParams captures one dial-status callback.
type RecordParams struct {
	TenantID       uuid.UUID
	CallerPhone    string
	ToPhone        string
	ProviderCallID *string
	DialStatus     *string
	Outcome        Outcome
	Answered       bool
}

const callColumns = `id, tenant_id, caller_phone, to_phone, provider_call_id,
	dial_status, outcome, answered, created_at, updated_at`

func scanCall(row pgx.Row) (*Call, error) {
	var c Call
	var outcome string
	err := row.Scan(&c.ID, &c.TenantID, &c.CallerPhone, &c.ToPhone, &c.ProviderCallID,
		&c.DialStatus, &outcome, &c.Answered, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Outcome = Outcome(outcome)
	return &c, nil
}

// Record stores a call attempt. Providers retry callbacks, so rows are keyed
// by the provider call id and a retry updates in place.
func (r *Repository) Record(ctx context.Context, p RecordParams) (*Call, error) {
	if p.ProviderCallID == nil {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO calls (tenant_id, caller_phone, to_phone, dial_status, outcome, answered)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+callColumns,
			p.TenantID, p.CallerPhone, p.ToPhone, p.DialStatus, string(p.Outcome), p.Answered,
		)
		return scanCall(row)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO calls (tenant_id, caller_phone, to_phone, provider_call_id, dial_status, outcome, answered)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (provider_call_id)
		 DO UPDATE SET tenant_id = $1, caller_phone = $2, to_phone = $3,
			dial_status = $5, outcome = $6, answered = $7, updated_at = now()
		 RETURNING `+callColumns,
		p.TenantID, p.CallerPhone, p.ToPhone, p.ProviderCallID, p.DialStatus, string(p.Outcome), p.Answered,
	)
	return scanCall(row)
}
