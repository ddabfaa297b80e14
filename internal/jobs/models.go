// Package jobs is the durable scheduling engine: a Postgres-backed job table
// claimed with SKIP LOCKED leases, executed at-least-once by the worker.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type of scheduled work.
type Type string

const (
	TypeLeadFollowUp       Type = "LEAD_FOLLOW_UP"
	TypeComplianceReminder Type = "COMPLIANCE_REMINDER"
	TypeOwnerNotification  Type = "OWNER_NOTIFICATION"
)

// Status of a job. PENDING is the only claimable state; SENT, CANCELED and
// FAILED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusCanceled Status = "CANCELED"
	StatusFailed   Status = "FAILED"
)

const DefaultMaxAttempts = 3

// Job is one row of scheduled work. LockedAt/LockedBy form the lease: a
// PENDING job whose lease has expired is claimable again, which is what makes
// delivery at-least-once rather than at-most-once.
type Job struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	Type                 Type
	Status               Status
	RunAt                time.Time
	Payload              json.RawMessage
	Attempts             int
	MaxAttempts          int
	LastError            *string
	LockedAt             *time.Time
	LockedBy             *string
	LeadID               *uuid.UUID
	MaintenanceRequestID *uuid.UUID
	SentAt               *time.Time
	CanceledAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// LeadFollowUpPayload is carried by LEAD_FOLLOW_UP jobs.
type LeadFollowUpPayload struct {
	Reason           string `json:"reason"`
	FollowUpSequence int    `json:"followUpSequence"`
	LeadID           string `json:"leadId" validate:"required,uuid"`
	CallerPhone      string `json:"callerPhone"`
}

// ComplianceReminderPayload is carried by COMPLIANCE_REMINDER jobs.
type ComplianceReminderPayload struct {
	ComplianceDocumentID string `json:"complianceDocumentId" validate:"required,uuid"`
	ReminderKind         string `json:"reminderKind"`
	ThresholdDays        *int   `json:"thresholdDays"`
}

// OwnerNotificationPayload is carried by OWNER_NOTIFICATION jobs. ToPhone
// overrides the tenant's owner notification number when set.
type OwnerNotificationPayload struct {
	Body    string  `json:"body" validate:"required"`
	ToPhone *string `json:"toPhone,omitempty"`
}

const missedCallFollowUpReason = "MISSED_CALL_FOLLOW_UP"
