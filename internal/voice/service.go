package voice

import (
	"context"
	"time"

	"lettings_triage_backend/internal/conversation"
	"lettings_triage_backend/internal/extraction"
	"lettings_triage_backend/internal/messaging"
	"lettings_triage_backend/internal/scheduling"
	"lettings_triage_backend/internal/templates"
	"lettings_triage_backend/internal/tenants"
	"lettings_triage_backend/platform/logger"

	"github.com/google/uuid"
)

// CallStore persists call attempts. Implemented by Repository.
type CallStore interface {
	Record(ctx context.Context, p RecordParams) (*Call, error)
}

// LeadCreator opens the triage lead. Implemented by the conversation
// repository.
type LeadCreator interface {
	CreateLead(ctx context.Context, p conversation.CreateLeadParams) (*conversation.Lead, error)
}

// FollowUpScheduler enqueues the missed-call follow-up jobs. Implemented by
// the jobs repository.
type FollowUpScheduler interface {
	InsertLeadFollowUps(ctx context.Context, tenantID, leadID uuid.UUID, callerPhone string, runTimes []time.Time) (int, error)
}

// MessageLog appends to the message log.
type MessageLog interface {
	Log(ctx context.Context, p messaging.LogParams) (uuid.UUID, error)
}

// DialStatusInput is one provider dial-status callback, tenant-resolved.
type DialStatusInput struct {
	Tenant         *tenants.Tenant
	FromPhone      string
	ToPhone        string
	ProviderCallID *string
	DialStatus     string
}

// DialStatusResult reports what the callback produced.
type DialStatusResult struct {
	CallID        uuid.UUID
	LeadID        *uuid.UUID
	TriageStarted bool
}

// Service turns a missed call into an open triage conversation: record the
// call, create the lead, send the triage SMS, schedule follow-ups, alert the
// owner.
type Service struct {
	calls     CallStore
	leads     LeadCreator
	followUps FollowUpScheduler
	messages  MessageLog
	sender    messaging.Sender
	log       *logger.Logger
	now       func() time.Time
}

func NewService(
	calls CallStore,
	leads LeadCreator,
	followUps FollowUpScheduler,
	messages MessageLog,
	sender messaging.Sender,
	log *logger.Logger,
) *Service {
	return &Service{
		calls:     calls,
		leads:     leads,
		followUps: followUps,
		messages:  messages,
		sender:    sender,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) HandleDialStatus(ctx context.Context, input DialStatusInput) (DialStatusResult, error) {
	tenant := input.Tenant
	classification := ClassifyDialStatus(input.DialStatus)

	var dialStatus *string
	if input.DialStatus != "" {
		dialStatus = &input.DialStatus
	}

	call, err := s.calls.Record(ctx, RecordParams{
		TenantID:       tenant.ID,
		CallerPhone:    input.FromPhone,
		ToPhone:        input.ToPhone,
		ProviderCallID: input.ProviderCallID,
		DialStatus:     dialStatus,
		Outcome:        classification.Outcome,
		Answered:       classification.Answered,
	})
	if err != nil {
		return DialStatusResult{}, err
	}

	if !classification.ShouldStartTriage {
		return DialStatusResult{CallID: call.ID}, nil
	}

	now := s.now()

	lead, err := s.leads.CreateLead(ctx, conversation.CreateLeadParams{
		TenantID:        tenant.ID,
		CallerPhone:     input.FromPhone,
		SourceCallID:    input.ProviderCallID,
		Intent:          extraction.IntentUnknown,
		Status:          conversation.LeadOpen,
		FlowStep:        0,
		FirstOutboundAt: true,
	})
	if err != nil {
		return DialStatusResult{}, err
	}

	triageBody := templates.Resolve(tenant.TemplateOverrides(), templates.KeyMissedCallTriage, nil)
	if err := s.sendAndLog(ctx, tenant, input.FromPhone, triageBody, lead.ID); err != nil {
		return DialStatusResult{}, err
	}

	runTimes := scheduling.MissedCallFollowUpRunTimes(now, tenant.Location())
	if _, err := s.followUps.InsertLeadFollowUps(ctx, tenant.ID, lead.ID, input.FromPhone, runTimes); err != nil {
		return DialStatusResult{}, err
	}

	ownerBody := "Missed call from " + input.FromPhone + ". Triage SMS was sent and follow-ups are scheduled."
	if err := s.sendAndLog(ctx, tenant, tenant.OwnerNotificationPhone, ownerBody, lead.ID); err != nil {
		return DialStatusResult{}, err
	}

	s.log.Info("missed-call triage started",
		"tenant_id", tenant.ID.String(), "lead_id", lead.ID.String(), "outcome", string(classification.Outcome))

	return DialStatusResult{CallID: call.ID, LeadID: &lead.ID, TriageStarted: true}, nil
}

func (s *Service) sendAndLog(ctx context.Context, tenant *tenants.Tenant, toPhone, body string, leadID uuid.UUID) error {
	result, err := s.sender.SendSms(ctx, messaging.SendInput{
		From: tenant.InboundPhone,
		To:   toPhone,
		Body: body,
	})
	if err != nil {
		return err
	}

	_, err = s.messages.Log(ctx, messaging.LogParams{
		TenantID:          tenant.ID,
		Direction:         messaging.DirectionOutbound,
		FromPhone:         tenant.InboundPhone,
		ToPhone:           toPhone,
		Body:              body,
		ProviderMessageID: &result.ProviderMessageID,
		LeadID:            &leadID,
	})
	return err
}
