package conversation

import (
	"context"

	"lettings_triage_backend/internal/extraction"
	"lettings_triage_backend/internal/messaging"

	"github.com/google/uuid"
)

// LeadUpdate is a partial update; nil fields are left untouched.
// ClearDesiredArea nulls desired_area when a postcode supersedes it.
type LeadUpdate struct {
	Status           *LeadStatus
	Intent           *extraction.Intent
	FlowStep         *int
	Name             *string
	DesiredArea      *string
	ClearDesiredArea bool
	Postcode         *string
	PropertyQuery    *string
	Requirements     *string
	Notes            *string
}

// MaintenanceUpdate is a partial update; nil fields are left untouched.
type MaintenanceUpdate struct {
	Status           *MaintenanceStatus
	Severity         *extraction.Severity
	NeedsHuman       *bool
	FlowStep         *int
	Name             *string
	PropertyAddress  *string
	Postcode         *string
	IssueDescription *string
}

// CreateLeadParams creates a fresh lead at the start of a conversation.
type CreateLeadParams struct {
	TenantID        uuid.UUID
	CallerPhone     string
	SourceCallID    *string
	Intent          extraction.Intent
	Status          LeadStatus
	FlowStep        int
	FirstOutboundAt bool
}

// CreateMaintenanceParams creates a maintenance request, usually from a
// converted lead.
type CreateMaintenanceParams struct {
	TenantID     uuid.UUID
	CallerPhone  string
	SourceCallID *string
	Status       MaintenanceStatus
	FlowStep     int
}

// Store is the persistence surface of the state machine. The pgx Repository
// implements it; tests use an in-memory fake.
type Store interface {
	FindActiveLead(ctx context.Context, tenantID uuid.UUID, callerPhone string) (*Lead, error)
	FindActiveMaintenance(ctx context.Context, tenantID uuid.UUID, callerPhone string) (*MaintenanceRequest, error)
	GetLead(ctx context.Context, id uuid.UUID) (*Lead, error)
	CreateLead(ctx context.Context, p CreateLeadParams) (*Lead, error)
	UpdateLead(ctx context.Context, id uuid.UUID, update LeadUpdate) error
	CreateMaintenance(ctx context.Context, p CreateMaintenanceParams) (*MaintenanceRequest, error)
	UpdateMaintenance(ctx context.Context, id uuid.UUID, update MaintenanceUpdate) error
	GetOptOut(ctx context.Context, tenantID uuid.UUID, phone string) (*OptOut, error)
	UpsertOptOut(ctx context.Context, tenantID uuid.UUID, phone, reason string) error
}

// MessageLog appends to the immutable message log.
type MessageLog interface {
	Log(ctx context.Context, p messaging.LogParams) (uuid.UUID, error)
}

// JobCanceler cancels the pending jobs tied to a conversation when it reaches
// a terminal status. Implemented by the jobs repository.
type JobCanceler interface {
	CancelPendingForConversation(ctx context.Context, leadID, maintenanceRequestID *uuid.UUID, reason string) (int64, error)
}
