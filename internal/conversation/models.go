// Package conversation owns the Lead and MaintenanceRequest flows: the state
// machine that advances a conversation one collected field at a time, and the
// cross-cutting interceptors (opt-out, safety, anger, out-of-area) that
// pre-empt it.
package conversation

import (
	"time"

	"lettings_triage_backend/internal/extraction"

	"github.com/google/uuid"
)

// LeadStatus is the lifecycle state of a viewing/general enquiry.
type LeadStatus string

const (
	LeadOpen       LeadStatus = "OPEN"
	LeadQualified  LeadStatus = "QUALIFIED"
	LeadScheduled  LeadStatus = "SCHEDULED"
	LeadNeedsHuman LeadStatus = "NEEDS_HUMAN"
	LeadClosed     LeadStatus = "CLOSED"
	LeadOutOfArea  LeadStatus = "OUT_OF_AREA"
	LeadOptedOut   LeadStatus = "OPTED_OUT"
)

// IsTerminal reports whether no further automated step may advance this lead.
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case LeadClosed, LeadOptedOut, LeadOutOfArea, LeadNeedsHuman, LeadScheduled:
		return true
	}
	return false
}

// MaintenanceStatus is the lifecycle state of a repair conversation.
type MaintenanceStatus string

const (
	MaintenanceOpen       MaintenanceStatus = "OPEN"
	MaintenanceLogged     MaintenanceStatus = "LOGGED"
	MaintenanceInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceNeedsHuman MaintenanceStatus = "NEEDS_HUMAN"
	MaintenanceClosed     MaintenanceStatus = "CLOSED"
	MaintenanceOutOfArea  MaintenanceStatus = "OUT_OF_AREA"
	MaintenanceOptedOut   MaintenanceStatus = "OPTED_OUT"
)

// IsTerminal reports whether automation is finished with this request.
func (s MaintenanceStatus) IsTerminal() bool {
	switch s {
	case MaintenanceClosed, MaintenanceNeedsHuman, MaintenanceOutOfArea, MaintenanceOptedOut:
		return true
	}
	return false
}

// Lead is one viewing/general enquiry conversation.
type Lead struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	CallerPhone     string
	SourceCallID    *string
	Intent          extraction.Intent
	Status          LeadStatus
	FlowStep        int
	Name            *string
	DesiredArea     *string
	Postcode        *string
	PropertyQuery   *string
	Requirements    *string
	Notes           *string
	FirstOutboundAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MaintenanceRequest is one repair/incident conversation.
type MaintenanceRequest struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	CallerPhone      string
	SourceCallID     *string
	Status           MaintenanceStatus
	Severity         *extraction.Severity
	NeedsHuman       bool
	FlowStep         int
	Name             *string
	PropertyAddress  *string
	Postcode         *string
	IssueDescription *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OptOut suppresses all automated outbound sends to a phone.
type OptOut struct {
	TenantID  uuid.UUID
	Phone     string
	Active    bool
	Reason    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ref identifies which entity owns a conversation at a point in time.
// At most one of the two ids is set.
type Ref struct {
	LeadID               *uuid.UUID
	MaintenanceRequestID *uuid.UUID
}

func leadRef(id uuid.UUID) Ref {
	return Ref{LeadID: &id}
}

func maintenanceRef(id uuid.UUID) Ref {
	return Ref{MaintenanceRequestID: &id}
}
