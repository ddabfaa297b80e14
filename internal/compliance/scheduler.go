package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"lettings_triage_backend/platform/logger"

	"github.com/google/uuid"
)

// DocumentStore is the slice of the repository the scheduler needs.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListIDsForTenant(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

// PolicyReader resolves a tenant's compliance policy JSON.
type PolicyReader interface {
	CompliancePolicy(ctx context.Context, tenantID uuid.UUID) (json.RawMessage, error)
}

// ReminderJobStore is the job-table port the scheduler drives. Implemented by
// the jobs repository; kept narrow so this package does not depend on it.
type ReminderJobStore interface {
	CancelPendingRemindersForDocument(ctx context.Context, documentID uuid.UUID, reason string) (int64, error)
	InsertReminders(ctx context.Context, tenantID, documentID uuid.UUID, events []ReminderEvent) (int, error)
}

// Scheduler rebuilds a document's reminder schedule: derive the current
// status, drop all pending reminder jobs, insert the fresh event set.
// Rebuilding is idempotent.
type Scheduler struct {
	documents DocumentStore
	policies  PolicyReader
	jobStore  ReminderJobStore
	log       *logger.Logger
	now       func() time.Time
}

func NewScheduler(documents DocumentStore, policies PolicyReader, jobStore ReminderJobStore, log *logger.Logger) *Scheduler {
	return &Scheduler{
		documents: documents,
		policies:  policies,
		jobStore:  jobStore,
		log:       log,
		now:       time.Now,
	}
}

const scheduleReplacedReason = "Replaced by latest compliance schedule."

// ResyncDocument rebuilds the reminder jobs for one document and returns the
// number of jobs inserted. A missing document resyncs to nothing.
func (s *Scheduler) ResyncDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	document, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	policyJSON, err := s.policies.CompliancePolicy(ctx, document.TenantID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	policy := ParsePolicy(policyJSON)
	status := DeriveStatus(document.ExpiryDate, now, policy)

	if err := s.documents.UpdateStatus(ctx, document.ID, status); err != nil {
		return 0, err
	}

	if _, err := s.jobStore.CancelPendingRemindersForDocument(ctx, document.ID, scheduleReplacedReason); err != nil {
		return 0, err
	}

	events := ComputeReminderEvents(document.ExpiryDate, policy, now)
	if len(events) == 0 {
		return 0, nil
	}

	inserted, err := s.jobStore.InsertReminders(ctx, document.TenantID, document.ID, events)
	if err != nil {
		return 0, err
	}

	s.log.Info("compliance schedule rebuilt",
		"document_id", document.ID.String(), "status", string(status), "jobs", inserted)
	return inserted, nil
}

// ResyncTenant rebuilds reminder schedules for every document of a tenant.
// Used after a policy change.
func (s *Scheduler) ResyncTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	ids, err := s.documents.ListIDsForTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		count, err := s.ResyncDocument(ctx, id)
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}
