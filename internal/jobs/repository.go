package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"lettings_triage_backend/internal/compliance"

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

const jobColumns = `id, tenant_id, type, status, run_at, payload, attempts, max_attempts,
	last_error, locked_at, locked_by, lead_id, maintenance_request_id,
	sent_at, canceled_at, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var jobType, status string
	err := row.Scan(&j.ID, &j.TenantID, &jobType, &status, &j.RunAt, &j.Payload,
		&j.Attempts, &j.MaxAttempts, &j.LastError, &j.LockedAt, &j.LockedBy,
		&j.LeadID, &j.MaintenanceRequestID, &j.SentAt, &j.CanceledAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Type = Type(jobType)
	j.Status = Status(status)
	return &j, nil
}

// ClaimDue leases up to batchSize due PENDING jobs for this worker. SKIP
// LOCKED keeps concurrent workers from blocking on the same rows, and the
// lease predicate lets an expired claim from a dead worker be re-taken.
func (r *Repository) ClaimDue(ctx context.Context, workerID string, batchSize int, leaseTimeout time.Duration) ([]Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	leaseExpiredBefore := time.Now().Add(-leaseTimeout)

	rows, err := tx.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM jobs
			WHERE status = 'PENDING'
			  AND run_at <= now()
			  AND (locked_at IS NULL OR locked_at <= $1)
			ORDER BY run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs AS j
		SET locked_at = now(), locked_by = $3, updated_at = now()
		FROM due
		WHERE j.id = due.id
		RETURNING `+qualifiedJobColumns("j"),
		leaseExpiredBefore, batchSize, workerID,
	)
	if err != nil {
		return nil, err
	}

	var claimed []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, *job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// The CTE selects in run_at order, but UPDATE ... RETURNING carries no
	// ordering guarantee, so the batch executes in re-sorted order.
	sortByRunAt(claimed)
	return claimed, nil
}

func sortByRunAt(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
}

func qualifiedJobColumns(alias string) string {
	return alias + `.id, ` + alias + `.tenant_id, ` + alias + `.type, ` + alias + `.status, ` +
		alias + `.run_at, ` + alias + `.payload, ` + alias + `.attempts, ` + alias + `.max_attempts, ` +
		alias + `.last_error, ` + alias + `.locked_at, ` + alias + `.locked_by, ` +
		alias + `.lead_id, ` + alias + `.maintenance_request_id, ` +
		alias + `.sent_at, ` + alias + `.canceled_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// MarkSent finalizes a successful execution: attempts counted, lease cleared.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'SENT', sent_at = now(), attempts = attempts + 1,
			locked_at = NULL, locked_by = NULL, last_error = NULL, updated_at = now()
		WHERE id = $1`, id)
	return err
}

// MarkCanceled finalizes a job whose work turned out unnecessary or
// impossible, recording why in last_error.
func (r *Repository) MarkCanceled(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'CANCELED', canceled_at = now(),
			locked_at = NULL, locked_by = NULL, last_error = $2, updated_at = now()
		WHERE id = $1`, id, reason)
	return err
}

// MarkRetryOrFailed handles an execution error: back to PENDING with a delayed
// run_at until max attempts are exhausted, then FAILED. Returns the status
// written.
func (r *Repository) MarkRetryOrFailed(ctx context.Context, job *Job, execErr error, retryDelay time.Duration) (Status, error) {
	attempts := job.Attempts + 1
	reason := execErr.Error()

	if attempts >= job.MaxAttempts {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'FAILED', attempts = $2, last_error = $3,
				locked_at = NULL, locked_by = NULL, updated_at = now()
			WHERE id = $1`, job.ID, attempts, reason)
		return StatusFailed, err
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'PENDING', attempts = $2, run_at = $3, last_error = $4,
			locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1`, job.ID, attempts, time.Now().Add(retryDelay), reason)
	return StatusPending, err
}

// InsertParams describes one job to enqueue.
type InsertParams struct {
	TenantID             uuid.UUID
	Type                 Type
	RunAt                time.Time
	Payload              any
	LeadID               *uuid.UUID
	MaintenanceRequestID *uuid.UUID
}

// Insert enqueues one PENDING job.
func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `
		INSERT INTO jobs (tenant_id, type, status, run_at, payload, max_attempts, lead_id, maintenance_request_id)
		VALUES ($1, $2, 'PENDING', $3, $4, $5, $6, $7)
		RETURNING id`,
		p.TenantID, string(p.Type), p.RunAt, payload, DefaultMaxAttempts,
		p.LeadID, p.MaintenanceRequestID,
	).Scan(&id)
	return id, err
}

// InsertLeadFollowUps enqueues the missed-call follow-up sequence, one job per
// run time, numbered from 1.
func (r *Repository) InsertLeadFollowUps(ctx context.Context, tenantID, leadID uuid.UUID, callerPhone string, runTimes []time.Time) (int, error) {
	for index, runAt := range runTimes {
		_, err := r.Insert(ctx, InsertParams{
			TenantID: tenantID,
			Type:     TypeLeadFollowUp,
			RunAt:    runAt,
			Payload: LeadFollowUpPayload{
				Reason:           missedCallFollowUpReason,
				FollowUpSequence: index + 1,
				LeadID:           leadID.String(),
				CallerPhone:      callerPhone,
			},
			LeadID: &leadID,
		})
		if err != nil {
			return index, err
		}
	}
	return len(runTimes), nil
}

// CancelPendingForConversation cancels every PENDING job tied to the lead
// and/or maintenance request. Satisfies conversation.JobCanceler.
func (r *Repository) CancelPendingForConversation(ctx context.Context, leadID, maintenanceRequestID *uuid.UUID, reason string) (int64, error) {
	if leadID == nil && maintenanceRequestID == nil {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'CANCELED', canceled_at = now(), last_error = $3,
			locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE status = 'PENDING'
		  AND (($1::uuid IS NOT NULL AND lead_id = $1)
		   OR  ($2::uuid IS NOT NULL AND maintenance_request_id = $2))`,
		leadID, maintenanceRequestID, reason,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CancelPendingRemindersForDocument drops the pending reminder jobs of one
// compliance document. Satisfies compliance.ReminderJobStore.
func (r *Repository) CancelPendingRemindersForDocument(ctx context.Context, documentID uuid.UUID, reason string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'CANCELED', canceled_at = now(), last_error = $2,
			locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE status = 'PENDING'
		  AND type = 'COMPLIANCE_REMINDER'
		  AND payload->>'complianceDocumentId' = $1`,
		documentID.String(), reason,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertReminders enqueues one COMPLIANCE_REMINDER job per event. Satisfies
// compliance.ReminderJobStore.
func (r *Repository) InsertReminders(ctx context.Context, tenantID, documentID uuid.UUID, events []compliance.ReminderEvent) (int, error) {
	for index, event := range events {
		_, err := r.Insert(ctx, InsertParams{
			TenantID: tenantID,
			Type:     TypeComplianceReminder,
			RunAt:    event.RunAt,
			Payload: ComplianceReminderPayload{
				ComplianceDocumentID: documentID.String(),
				ReminderKind:         string(event.Kind),
				ThresholdDays:        event.ThresholdDays,
			},
		})
		if err != nil {
			return index, err
		}
	}
	return len(events), nil
}

// HasPendingOverdueReminder reports whether a PENDING OVERDUE reminder other
// than excludeJobID already exists for the document. Keeps the overdue chase
// chain from forking.
func (r *Repository) HasPendingOverdueReminder(ctx context.Context, documentID, excludeJobID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE id <> $1
			  AND type = 'COMPLIANCE_REMINDER'
			  AND status = 'PENDING'
			  AND payload->>'complianceDocumentId' = $2
			  AND payload->>'reminderKind' = 'OVERDUE'
		)`, excludeJobID, documentID.String(),
	).Scan(&exists)
	return exists, err
}

// CancelPendingForTerminalConversations sweeps PENDING jobs whose lead or
// maintenance request already reached a terminal status. Run at the top of
// each worker cycle.
func (r *Repository) CancelPendingForTerminalConversations(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'CANCELED', canceled_at = now(),
			last_error = 'Conversation reached terminal status before job execution.',
			locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE status = 'PENDING'
		  AND (
			EXISTS (
				SELECT 1 FROM leads l
				WHERE l.id = jobs.lead_id
				  AND l.status IN ('CLOSED', 'SCHEDULED', 'NEEDS_HUMAN', 'OUT_OF_AREA', 'OPTED_OUT')
			)
			OR EXISTS (
				SELECT 1 FROM maintenance_requests m
				WHERE m.id = jobs.maintenance_request_id
				  AND m.status IN ('CLOSED', 'NEEDS_HUMAN', 'OUT_OF_AREA', 'OPTED_OUT')
			)
		  )`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
