package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lettings_triage_backend/internal/compliance"
	"lettings_triage_backend/internal/conversation"
	"lettings_triage_backend/internal/messaging"
	"lettings_triage_backend/internal/templates"
	"lettings_triage_backend/internal/tenants"
	"lettings_triage_backend/platform/logger"
	"lettings_triage_backend/platform/validator"

	"github.com/google/uuid"
)

// Outcome of one successful job execution.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeCanceled Outcome = "canceled"
)

// JobStore is the slice of the repository the executor drives.
type JobStore interface {
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkCanceled(ctx context.Context, id uuid.UUID, reason string) error
	Insert(ctx context.Context, p InsertParams) (uuid.UUID, error)
	HasPendingOverdueReminder(ctx context.Context, documentID, excludeJobID uuid.UUID) (bool, error)
}

// LeadStore reads and closes leads during follow-up execution.
type LeadStore interface {
	GetLead(ctx context.Context, id uuid.UUID) (*conversation.Lead, error)
	UpdateLead(ctx context.Context, id uuid.UUID, update conversation.LeadUpdate) error
	GetOptOut(ctx context.Context, tenantID uuid.UUID, phone string) (*conversation.OptOut, error)
}

// TenantStore resolves tenants for outbound sends.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*tenants.Tenant, error)
}

// DocumentStore reads and restamps compliance documents.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*compliance.Document, error)
	UpdateStatusAndReminder(ctx context.Context, id uuid.UUID, status compliance.Status, reminderAt time.Time) error
}

// MessageLog appends executed sends to the message log.
type MessageLog interface {
	Log(ctx context.Context, p messaging.LogParams) (uuid.UUID, error)
}

// Executor runs one claimed job to completion. Handler errors bubble up to
// the worker, which decides between retry and FAILED; a cancel is a success
// from the engine's point of view.
type Executor struct {
	store     JobStore
	leads     LeadStore
	tenants   TenantStore
	documents DocumentStore
	messages  MessageLog
	sender    messaging.Sender
	validate  *validator.Validator
	log       *logger.Logger
	now       func() time.Time
}

func NewExecutor(
	store JobStore,
	leads LeadStore,
	tenantStore TenantStore,
	documents DocumentStore,
	messages MessageLog,
	sender messaging.Sender,
	validate *validator.Validator,
	log *logger.Logger,
) *Executor {
	return &Executor{
		store:     store,
		leads:     leads,
		tenants:   tenantStore,
		documents: documents,
		messages:  messages,
		sender:    sender,
		validate:  validate,
		log:       log,
		now:       time.Now,
	}
}

// Execute dispatches one claimed job. An unsupported type cancels rather than
// fails: retrying it could never succeed.
func (e *Executor) Execute(ctx context.Context, job *Job) (Outcome, error) {
	switch job.Type {
	case TypeLeadFollowUp:
		return e.executeLeadFollowUp(ctx, job)
	case TypeComplianceReminder:
		return e.executeComplianceReminder(ctx, job)
	case TypeOwnerNotification:
		return e.executeOwnerNotification(ctx, job)
	}
	return e.cancel(ctx, job, fmt.Sprintf("Unsupported job type: %s", job.Type))
}

func (e *Executor) cancel(ctx context.Context, job *Job, reason string) (Outcome, error) {
	if err := e.store.MarkCanceled(ctx, job.ID, reason); err != nil {
		return "", err
	}
	e.log.JobFinalized(job.ID.String(), string(job.Type), string(OutcomeCanceled), job.Attempts)
	return OutcomeCanceled, nil
}

func (e *Executor) finalizeSent(ctx context.Context, job *Job) (Outcome, error) {
	if err := e.store.MarkSent(ctx, job.ID); err != nil {
		return "", err
	}
	e.log.JobFinalized(job.ID.String(), string(job.Type), string(OutcomeSent), job.Attempts+1)
	return OutcomeSent, nil
}

func (e *Executor) sendAndLog(ctx context.Context, tenant *tenants.Tenant, toPhone, body string, leadID, maintenanceRequestID *uuid.UUID) error {
	result, err := e.sender.SendSms(ctx, messaging.SendInput{
		From: tenant.InboundPhone,
		To:   toPhone,
		Body: body,
	})
	if err != nil {
		return err
	}

	_, err = e.messages.Log(ctx, messaging.LogParams{
		TenantID:             tenant.ID,
		Direction:            messaging.DirectionOutbound,
		FromPhone:            tenant.InboundPhone,
		ToPhone:              toPhone,
		Body:                 body,
		ProviderMessageID:    &result.ProviderMessageID,
		LeadID:               leadID,
		MaintenanceRequestID: maintenanceRequestID,
	})
	return err
}

func (e *Executor) executeLeadFollowUp(ctx context.Context, job *Job) (Outcome, error) {
	var payload LeadFollowUpPayload
	_ = json.Unmarshal(job.Payload, &payload)

	leadID := job.LeadID
	if leadID == nil {
		parsed, err := uuid.Parse(payload.LeadID)
		if err != nil {
			return e.cancel(ctx, job, "Missing leadId on follow-up job payload.")
		}
		leadID = &parsed
	}

	lead, err := e.leads.GetLead(ctx, *leadID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return e.cancel(ctx, job, fmt.Sprintf("Lead not found: %s", leadID))
		}
		return "", err
	}

	if lead.Status.IsTerminal() {
		return e.cancel(ctx, job, fmt.Sprintf("Lead status %s is terminal for follow-up.", lead.Status))
	}

	tenant, err := e.tenants.GetByID(ctx, lead.TenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return e.cancel(ctx, job, fmt.Sprintf("Tenant not found for lead %s", leadID))
		}
		return "", err
	}

	optOut, err := e.leads.GetOptOut(ctx, tenant.ID, lead.CallerPhone)
	if err != nil {
		return "", err
	}
	if optOut != nil && optOut.Active {
		status := conversation.LeadOptedOut
		if err := e.leads.UpdateLead(ctx, lead.ID, conversation.LeadUpdate{Status: &status}); err != nil {
			return "", err
		}
		return e.cancel(ctx, job, "Caller has opted out.")
	}

	key := templates.KeyLeadFollowUpFirst
	if payload.FollowUpSequence > 1 {
		key = templates.KeyLeadFollowUpSecond
	}
	body := templates.Resolve(tenant.TemplateOverrides(), key, nil)

	if err := e.sendAndLog(ctx, tenant, lead.CallerPhone, body, &lead.ID, nil); err != nil {
		return "", err
	}
	return e.finalizeSent(ctx, job)
}

func (e *Executor) executeComplianceReminder(ctx context.Context, job *Job) (Outcome, error) {
	var payload ComplianceReminderPayload
	_ = json.Unmarshal(job.Payload, &payload)

	if err := e.validate.Struct(payload); err != nil {
		return e.cancel(ctx, job, "Missing complianceDocumentId in payload.")
	}
	documentID := uuid.MustParse(payload.ComplianceDocumentID)

	document, err := e.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, compliance.ErrNotFound) {
			return e.cancel(ctx, job, fmt.Sprintf("Compliance document not found: %s", documentID))
		}
		return "", err
	}

	tenant, err := e.tenants.GetByID(ctx, document.TenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return e.cancel(ctx, job, fmt.Sprintf("Tenant not found for compliance document %s", documentID))
		}
		return "", err
	}

	policy := compliance.ParsePolicy(tenant.CompliancePolicyJSON)
	now := e.now()
	status := compliance.DeriveStatus(document.ExpiryDate, now, policy)

	if err := e.documents.UpdateStatusAndReminder(ctx, document.ID, status, now); err != nil {
		return "", err
	}

	if status == compliance.StatusOK {
		return e.cancel(ctx, job, "Compliance document is no longer due/overdue.")
	}

	expiryPart := "No expiry date."
	if document.ExpiryDate != nil {
		expiryPart = fmt.Sprintf("Expiry: %s.", document.ExpiryDate.UTC().Format("2006-01-02"))
	}
	body := fmt.Sprintf("Compliance reminder: %s for %s is %s. %s",
		document.DocumentType, document.PropertyRef, status, expiryPart)

	if err := e.sendAndLog(ctx, tenant, tenant.OwnerNotificationPhone, body, nil, nil); err != nil {
		return "", err
	}

	// An OVERDUE reminder re-arms itself so the chase repeats until the
	// document is renewed, but only one successor may be pending at a time.
	if status == compliance.StatusOverdue {
		exists, err := e.store.HasPendingOverdueReminder(ctx, document.ID, job.ID)
		if err != nil {
			return "", err
		}
		if !exists {
			_, err = e.store.Insert(ctx, InsertParams{
				TenantID: tenant.ID,
				Type:     TypeComplianceReminder,
				RunAt:    now.Add(time.Duration(policy.OverdueReminderDays) * 24 * time.Hour),
				Payload: ComplianceReminderPayload{
					ComplianceDocumentID: document.ID.String(),
					ReminderKind:         string(compliance.ReminderOverdue),
				},
			})
			if err != nil {
				return "", err
			}
		}
	}

	return e.finalizeSent(ctx, job)
}

func (e *Executor) executeOwnerNotification(ctx context.Context, job *Job) (Outcome, error) {
	var payload OwnerNotificationPayload
	_ = json.Unmarshal(job.Payload, &payload)

	if err := e.validate.Struct(payload); err != nil {
		return e.cancel(ctx, job, "Missing owner notification body in payload.")
	}

	tenant, err := e.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return e.cancel(ctx, job, fmt.Sprintf("Tenant not found: %s", job.TenantID))
		}
		return "", err
	}

	toPhone := tenant.OwnerNotificationPhone
	if payload.ToPhone != nil && *payload.ToPhone != "" {
		toPhone = *payload.ToPhone
	}

	if err := e.sendAndLog(ctx, tenant, toPhone, payload.Body, job.LeadID, job.MaintenanceRequestID); err != nil {
		return "", err
	}
	return e.finalizeSent(ctx, job)
}
