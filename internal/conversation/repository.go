package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lettings_triage_backend/internal/extraction"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("conversation entity not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, tenant_id, caller_phone, source_call_id, intent, status, flow_step,
	name, desired_area, postcode, property_query, requirements, notes,
	first_outbound_at, created_at, updated_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	var intent, status string
	err := row.Scan(&l.ID, &l.TenantID, &l.CallerPhone, &l.SourceCallID, &intent, &status, &l.FlowStep,
		&l.Name, &l.DesiredArea, &l.Postcode, &l.PropertyQuery, &l.Requirements, &l.Notes,
		&l.FirstOutboundAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.Intent = extraction.Intent(intent)
	l.Status = LeadStatus(status)
	return &l, nil
}

const maintenanceColumns = `id, tenant_id, caller_phone, source_call_id, status, severity,
	needs_human, flow_step, name, property_address, postcode, issue_description,
	created_at, updated_at`

func scanMaintenance(row pgx.Row) (*MaintenanceRequest, error) {
	var m MaintenanceRequest
	var status string
	var severity *string
	err := row.Scan(&m.ID, &m.TenantID, &m.CallerPhone, &m.SourceCallID, &status, &severity,
		&m.NeedsHuman, &m.FlowStep, &m.Name, &m.PropertyAddress, &m.Postcode, &m.IssueDescription,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.Status = MaintenanceStatus(status)
	if severity != nil {
		s := extraction.Severity(*severity)
		m.Severity = &s
	}
	return &m, nil
}

// FindActiveLead returns the most recent OPEN/QUALIFIED lead for the caller,
// or nil when there is none.
func (r *Repository) FindActiveLead(ctx context.Context, tenantID uuid.UUID, callerPhone string) (*Lead, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE tenant_id = $1 AND caller_phone = $2 AND status = ANY($3)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tenantID, callerPhone, []string{string(LeadOpen), string(LeadQualified)},
	)
	lead, err := scanLead(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return lead, err
}

// FindActiveMaintenance returns the most recent non-terminal maintenance
// request for the caller, or nil when there is none.
func (r *Repository) FindActiveMaintenance(ctx context.Context, tenantID uuid.UUID, callerPhone string) (*MaintenanceRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_requests
		 WHERE tenant_id = $1 AND caller_phone = $2 AND status = ANY($3)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tenantID, callerPhone,
		[]string{string(MaintenanceOpen), string(MaintenanceLogged), string(MaintenanceInProgress)},
	)
	request, err := scanMaintenance(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return request, err
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

func (r *Repository) CreateLead(ctx context.Context, p CreateLeadParams) (*Lead, error) {
	firstOutbound := "NULL"
	if p.FirstOutboundAt {
		firstOutbound = "now()"
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO leads (tenant_id, caller_phone, source_call_id, intent, status, flow_step, first_outbound_at)
		 VALUES ($1, $2, $3, $4, $5, $6, `+firstOutbound+`)
		 RETURNING `+leadColumns,
		p.TenantID, p.CallerPhone, p.SourceCallID, string(p.Intent), string(p.Status), p.FlowStep,
	)
	return scanLead(row)
}

func (r *Repository) UpdateLead(ctx context.Context, id uuid.UUID, update LeadUpdate) error {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Intent != nil {
		add("intent", string(*update.Intent))
	}
	if update.FlowStep != nil {
		add("flow_step", *update.FlowStep)
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.ClearDesiredArea {
		sets = append(sets, "desired_area = NULL")
	} else if update.DesiredArea != nil {
		add("desired_area", *update.DesiredArea)
	}
	if update.Postcode != nil {
		add("postcode", *update.Postcode)
	}
	if update.PropertyQuery != nil {
		add("property_query", *update.PropertyQuery)
	}
	if update.Requirements != nil {
		add("requirements", *update.Requirements)
	}
	if update.Notes != nil {
		add("notes", *update.Notes)
	}

	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $1", strings.Join(sets, ", "))
	_, err := r.pool.Exec(ctx, query, args...)
	return err
}

func (r *Repository) CreateMaintenance(ctx context.Context, p CreateMaintenanceParams) (*MaintenanceRequest, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO maintenance_requests (tenant_id, caller_phone, source_call_id, status, flow_step)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+maintenanceColumns,
		p.TenantID, p.CallerPhone, p.SourceCallID, string(p.Status), p.FlowStep,
	)
	return scanMaintenance(row)
}

func (r *Repository) UpdateMaintenance(ctx context.Context, id uuid.UUID, update MaintenanceUpdate) error {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Severity != nil {
		add("severity", string(*update.Severity))
	}
	if update.NeedsHuman != nil {
		add("needs_human", *update.NeedsHuman)
	}
	if update.FlowStep != nil {
		add("flow_step", *update.FlowStep)
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.PropertyAddress != nil {
		add("property_address", *update.PropertyAddress)
	}
	if update.Postcode != nil {
		add("postcode", *update.Postcode)
	}
	if update.IssueDescription != nil {
		add("issue_description", *update.IssueDescription)
	}

	query := fmt.Sprintf("UPDATE maintenance_requests SET %s WHERE id = $1", strings.Join(sets, ", "))
	_, err := r.pool.Exec(ctx, query, args...)
	return err
}

// GetOptOut returns the opt-out row for (tenant, phone), or nil when absent.
func (r *Repository) GetOptOut(ctx context.Context, tenantID uuid.UUID, phone string) (*OptOut, error) {
	var o OptOut
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, phone, active, reason, created_at, updated_at
		 FROM opt_outs WHERE tenant_id = $1 AND phone = $2`,
		tenantID, phone,
	).Scan(&o.TenantID, &o.Phone, &o.Active, &o.Reason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// UpsertOptOut activates the opt-out for (tenant, phone).
func (r *Repository) UpsertOptOut(ctx context.Context, tenantID uuid.UUID, phone, reason string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO opt_outs (tenant_id, phone, active, reason)
		 VALUES ($1, $2, true, $3)
		 ON CONFLICT (tenant_id, phone)
		 DO UPDATE SET active = true, reason = $3, updated_at = now()`,
		tenantID, phone, reason,
	)
	return err
}
