package compliance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("compliance document not found")

// Document is one tenant+property+type compliance record. Status is derived;
// the stored value is only the last derivation.
type Document struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	PropertyID     uuid.UUID
	PropertyRef    string
	DocumentType   string
	Status         Status
	IssueDate      *time.Time
	ExpiryDate     *time.Time
	LastReminderAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const documentSelect = `
	SELECT d.id, d.tenant_id, d.property_id, p.property_ref, d.document_type,
		d.status, d.issue_date, d.expiry_date, d.last_reminder_at, d.created_at, d.updated_at
	FROM compliance_documents d
	JOIN properties p ON p.id = d.property_id`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var status string
	err := row.Scan(&d.ID, &d.TenantID, &d.PropertyID, &d.PropertyRef, &d.DocumentType,
		&status, &d.IssueDate, &d.ExpiryDate, &d.LastReminderAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.Status = Status(status)
	return &d, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.pool.QueryRow(ctx, documentSelect+` WHERE d.id = $1`, id)
	return scanDocument(row)
}

// ListIDsForTenant returns every document id for a tenant, for schedule resync.
func (r *Repository) ListIDsForTenant(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM compliance_documents WHERE tenant_id = $1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStatus stores the latest derived status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE compliance_documents SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	return err
}

// UpdateStatusAndReminder stores the derived status and stamps the reminder time.
func (r *Repository) UpdateStatusAndReminder(ctx context.Context, id uuid.UUID, status Status, reminderAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE compliance_documents SET status = $2, last_reminder_at = $3, updated_at = now() WHERE id = $1`,
		id, string(status), reminderAt)
	return err
}
