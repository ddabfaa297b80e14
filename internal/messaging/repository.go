package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Direction of a logged message.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Message is one immutable row in the message log.
type Message struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	Direction            Direction
	FromPhone            string
	ToPhone              string
	Body                 string
	ProviderMessageID    *string
	LeadID               *uuid.UUID
	MaintenanceRequestID *uuid.UUID
	CreatedAt            time.Time
}

// LogParams describes a message to append to the log.
type LogParams struct {
	TenantID             uuid.UUID
	Direction            Direction
	FromPhone            string
	ToPhone              string
	Body                 string
	ProviderMessageID    *string
	LeadID               *uuid.UUID
	MaintenanceRequestID *uuid.UUID
}

// Repository appends to and reads the message log. Rows are never updated.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Log(ctx context.Context, p LogParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (tenant_id, direction, from_phone, to_phone, body,
			provider_message_id, lead_id, maintenance_request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		p.TenantID, string(p.Direction), p.FromPhone, p.ToPhone, p.Body,
		p.ProviderMessageID, p.LeadID, p.MaintenanceRequestID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ListForLead returns the conversation transcript for a lead, oldest first.
func (r *Repository) ListForLead(ctx context.Context, leadID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, direction, from_phone, to_phone, body,
			provider_message_id, lead_id, maintenance_request_id, created_at
		 FROM messages
		 WHERE lead_id = $1
		 ORDER BY created_at ASC`,
		leadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		var m Message
		var direction string
		if err := rows.Scan(&m.ID, &m.TenantID, &direction, &m.FromPhone, &m.ToPhone, &m.Body,
			&m.ProviderMessageID, &m.LeadID, &m.MaintenanceRequestID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Direction = Direction(direction)
		items = append(items, m)
	}
	return items, rows.Err()
}
