package conversation

import (
	"context"
	"regexp"
	"strings"

	"lettings_triage_backend/internal/extraction"
	"lettings_triage_backend/internal/messaging"
	"lettings_triage_backend/internal/templates"
	"lettings_triage_backend/internal/tenants"
	"lettings_triage_backend/platform/logger"
)

// InboundSms is one message posted by the SMS provider, already routed to its
// tenant and phone-normalized by the webhook layer.
type InboundSms struct {
	Tenant            *tenants.Tenant
	FromPhone         string
	ToPhone           string
	Body              string
	ProviderMessageID *string
}

// Service drives the conversation state machine: interceptors first, then the
// per-intent flow for the active conversation.
type Service struct {
	store     Store
	messages  MessageLog
	jobs      JobCanceler
	sender    messaging.Sender
	extractor extraction.Extractor
	log       *logger.Logger
}

func NewService(
	store Store,
	messages MessageLog,
	jobs JobCanceler,
	sender messaging.Sender,
	extractor extraction.Extractor,
	log *logger.Logger,
) *Service {
	return &Service{
		store:     store,
		messages:  messages,
		jobs:      jobs,
		sender:    sender,
		extractor: extractor,
		log:       log,
	}
}

var safetyPattern = regexp.MustCompile(`(?i)\b(gas leak|smell gas|fire|sparks|carbon monoxide|co alarm|electrical burning|flood|smoke)\b`)

func hasSafetyRisk(text string) bool {
	return safetyPattern.MatchString(text)
}

func normalizePrefix(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

// postcodeOutOfArea reports whether a postcode falls outside the tenant's
// allowed prefixes. No postcode, or no configured prefixes, never trips it.
func postcodeOutOfArea(postcode *string, allowedPrefixes []string) bool {
	if postcode == nil || len(allowedPrefixes) == 0 {
		return false
	}

	normalized := normalizePrefix(*postcode)
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(normalized, normalizePrefix(prefix)) {
			return false
		}
	}
	return true
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// summarizeInboundForOwner compacts whitespace and truncates to 140 runes so
// the quoted message fits inside a single owner alert segment.
func summarizeInboundForOwner(text string) string {
	compact := strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	runes := []rune(compact)
	if len(runes) <= 140 {
		return compact
	}
	return string(runes[:137]) + "..."
}

// HandleInbound runs one inbound SMS through the state machine. An empty body
// is dropped without side effects.
func (s *Service) HandleInbound(ctx context.Context, input InboundSms) error {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil
	}
	tenant := input.Tenant

	signals := s.extractor.Extract(ctx, body)

	lead, err := s.store.FindActiveLead(ctx, tenant.ID, input.FromPhone)
	if err != nil {
		return err
	}
	maintenance, err := s.store.FindActiveMaintenance(ctx, tenant.ID, input.FromPhone)
	if err != nil {
		return err
	}

	if signals.Stop {
		return s.processStop(ctx, input, body, lead, maintenance)
	}

	optOut, err := s.store.GetOptOut(ctx, tenant.ID, input.FromPhone)
	if err != nil {
		return err
	}
	if optOut != nil && optOut.Active {
		// Opted-out callers still get their messages recorded, nothing else.
		return s.logInbound(ctx, input, body, refFor(lead, maintenance))
	}

	if maintenance == nil && lead == nil {
		lead, err = s.ensureLead(ctx, tenant, input.FromPhone)
		if err != nil {
			return err
		}
	}

	if maintenance != nil {
		if err := s.logInbound(ctx, input, body, maintenanceRef(maintenance.ID)); err != nil {
			return err
		}

		safety := signals.SafetyRisk || hasSafetyRisk(body)
		if signals.AngerSignals && !safety {
			return s.processCalmHandoff(ctx, tenant, input.FromPhone, nil, maintenance, body)
		}
		return s.runMaintenanceFlow(ctx, tenant, maintenance, input.FromPhone, body, signals)
	}

	if lead == nil {
		return nil
	}

	intent := lead.Intent
	if intent == extraction.IntentUnknown {
		intent = signals.Intent
	}

	if err := s.logInbound(ctx, input, body, leadRef(lead.ID)); err != nil {
		return err
	}

	if signals.AngerSignals {
		return s.processCalmHandoff(ctx, tenant, input.FromPhone, lead, nil, body)
	}

	if lead.Intent == extraction.IntentUnknown {
		return s.processIntentSelection(ctx, tenant, lead, input.FromPhone, intent)
	}

	if intent == extraction.IntentMaintenance {
		request, err := s.convertLeadToMaintenance(ctx, lead)
		if err != nil {
			return err
		}
		return s.runMaintenanceFlow(ctx, tenant, request, input.FromPhone, body, signals)
	}

	if intent == extraction.IntentViewing {
		return s.runViewingFlow(ctx, tenant, lead, input.FromPhone, body, signals)
	}

	return s.runGeneralFlow(ctx, tenant, lead, input.FromPhone, body, signals)
}

func refFor(lead *Lead, maintenance *MaintenanceRequest) Ref {
	var ref Ref
	if lead != nil {
		ref.LeadID = &lead.ID
	}
	if maintenance != nil {
		ref.MaintenanceRequestID = &maintenance.ID
	}
	return ref
}

func (s *Service) logInbound(ctx context.Context, input InboundSms, body string, ref Ref) error {
	_, err := s.messages.Log(ctx, messaging.LogParams{
		TenantID:             input.Tenant.ID,
		Direction:            messaging.DirectionInbound,
		FromPhone:            input.FromPhone,
		ToPhone:              input.ToPhone,
		Body:                 body,
		ProviderMessageID:    input.ProviderMessageID,
		LeadID:               ref.LeadID,
		MaintenanceRequestID: ref.MaintenanceRequestID,
	})
	return err
}

// sendCustomer sends to the caller and logs the outbound message. An empty
// body after trimming is a no-op.
func (s *Service) sendCustomer(ctx context.Context, tenant *tenants.Tenant, toPhone, body string, ref Ref) error {
	return s.sendOutbound(ctx, tenant, toPhone, body, ref)
}

// sendOwner alerts the tenant's owner notification number.
func (s *Service) sendOwner(ctx context.Context, tenant *tenants.Tenant, body string, ref Ref) error {
	return s.sendOutbound(ctx, tenant, tenant.OwnerNotificationPhone, body, ref)
}

func (s *Service) sendOutbound(ctx context.Context, tenant *tenants.Tenant, toPhone, body string, ref Ref) error {
	outbound := strings.TrimSpace(body)
	if outbound == "" {
		return nil
	}

	result, err := s.sender.SendSms(ctx, messaging.SendInput{
		From: tenant.InboundPhone,
		To:   toPhone,
		Body: outbound,
	})
	if err != nil {
		return err
	}

	_, err = s.messages.Log(ctx, messaging.LogParams{
		TenantID:             tenant.ID,
		Direction:            messaging.DirectionOutbound,
		FromPhone:            tenant.InboundPhone,
		ToPhone:              toPhone,
		Body:                 outbound,
		ProviderMessageID:    &result.ProviderMessageID,
		LeadID:               ref.LeadID,
		MaintenanceRequestID: ref.MaintenanceRequestID,
	})
	return err
}

func (s *Service) resolveTemplate(tenant *tenants.Tenant, key string, vars map[string]string) string {
	return templates.Resolve(tenant.TemplateOverrides(), key, vars)
}

func (s *Service) ensureLead(ctx context.Context, tenant *tenants.Tenant, callerPhone string) (*Lead, error) {
	return s.store.CreateLead(ctx, CreateLeadParams{
		TenantID:    tenant.ID,
		CallerPhone: callerPhone,
		Intent:      extraction.IntentUnknown,
		Status:      LeadOpen,
		FlowStep:    0,
	})
}

const stopReason = "STOP message"

// processStop opts the caller out: record the message, flip the opt-out,
// close the active conversations, cancel their jobs, confirm once.
func (s *Service) processStop(ctx context.Context, input InboundSms, body string, lead *Lead, maintenance *MaintenanceRequest) error {
	tenant := input.Tenant
	ref := refFor(lead, maintenance)

	if err := s.logInbound(ctx, input, body, ref); err != nil {
		return err
	}

	if err := s.store.UpsertOptOut(ctx, tenant.ID, input.FromPhone, stopReason); err != nil {
		return err
	}

	if lead != nil {
		status := LeadOptedOut
		if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Status: &status}); err != nil {
			return err
		}
	}
	if maintenance != nil {
		status := MaintenanceOptedOut
		if err := s.store.UpdateMaintenance(ctx, maintenance.ID, MaintenanceUpdate{Status: &status}); err != nil {
			return err
		}
	}

	if _, err := s.cancelJobs(ctx, ref, stopReason); err != nil {
		return err
	}

	return s.sendCustomer(ctx, tenant, input.FromPhone,
		s.resolveTemplate(tenant, templates.KeyOptOutConfirm, nil), ref)
}

func (s *Service) cancelJobs(ctx context.Context, ref Ref, reason string) (int64, error) {
	if ref.LeadID == nil && ref.MaintenanceRequestID == nil {
		return 0, nil
	}
	return s.jobs.CancelPendingForConversation(ctx, ref.LeadID, ref.MaintenanceRequestID, reason)
}

// processOutOfArea closes the conversation as OUT_OF_AREA and tells the caller.
func (s *Service) processOutOfArea(ctx context.Context, tenant *tenants.Tenant, fromPhone string, ref Ref) error {
	if ref.LeadID != nil {
		status := LeadOutOfArea
		if err := s.store.UpdateLead(ctx, *ref.LeadID, LeadUpdate{Status: &status}); err != nil {
			return err
		}
	}
	if ref.MaintenanceRequestID != nil {
		status := MaintenanceOutOfArea
		if err := s.store.UpdateMaintenance(ctx, *ref.MaintenanceRequestID, MaintenanceUpdate{Status: &status}); err != nil {
			return err
		}
	}

	if _, err := s.cancelJobs(ctx, ref, "Out of area"); err != nil {
		return err
	}

	return s.sendCustomer(ctx, tenant, fromPhone,
		s.resolveTemplate(tenant, templates.KeyOutOfArea, nil), ref)
}

// processCalmHandoff parks an angry conversation with a human: NEEDS_HUMAN,
// jobs canceled, de-escalation to the caller, quoted alert to the owner.
func (s *Service) processCalmHandoff(ctx context.Context, tenant *tenants.Tenant, fromPhone string, lead *Lead, maintenance *MaintenanceRequest, inboundBody string) error {
	ref := refFor(lead, maintenance)

	if lead != nil {
		status := LeadNeedsHuman
		if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Status: &status}); err != nil {
			return err
		}
	}
	if maintenance != nil {
		status := MaintenanceNeedsHuman
		needsHuman := true
		if err := s.store.UpdateMaintenance(ctx, maintenance.ID, MaintenanceUpdate{
			Status:     &status,
			NeedsHuman: &needsHuman,
		}); err != nil {
			return err
		}
	}

	if _, err := s.cancelJobs(ctx, ref, "Calm-mode handoff"); err != nil {
		return err
	}

	if err := s.sendCustomer(ctx, tenant, fromPhone,
		s.resolveTemplate(tenant, templates.KeyCalmDeescalation, nil), ref); err != nil {
		return err
	}

	ownerBody := `Calm-mode handoff required for ` + fromPhone + `. Last message: "` + summarizeInboundForOwner(inboundBody) + `"`
	return s.sendOwner(ctx, tenant, ownerBody, ref)
}

// processIntentSelection handles a lead that has not picked a branch yet:
// repeat the triage menu until an intent arrives, then enter that flow.
func (s *Service) processIntentSelection(ctx context.Context, tenant *tenants.Tenant, lead *Lead, fromPhone string, intent extraction.Intent) error {
	ref := leadRef(lead.ID)

	switch intent {
	case extraction.IntentUnknown:
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyMissedCallTriage, nil), ref)

	case extraction.IntentViewing:
		step := 1
		chosen := extraction.IntentViewing
		if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Intent: &chosen, FlowStep: &step}); err != nil {
			return err
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyViewingAskName, nil), ref)

	case extraction.IntentGeneral:
		step := 1
		chosen := extraction.IntentGeneral
		if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Intent: &chosen, FlowStep: &step}); err != nil {
			return err
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyGeneralAskName, nil), ref)
	}

	chosen := extraction.IntentMaintenance
	if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Intent: &chosen}); err != nil {
		return err
	}

	request, err := s.convertLeadToMaintenance(ctx, lead)
	if err != nil {
		return err
	}
	return s.sendCustomer(ctx, tenant, fromPhone,
		s.resolveTemplate(tenant, templates.KeyMaintenanceAskName, nil), maintenanceRef(request.ID))
}

// convertLeadToMaintenance moves a lead conversation to the maintenance
// branch. An already-active request is reused; otherwise a new one starts at
// the name step and the lead closes behind it.
func (s *Service) convertLeadToMaintenance(ctx context.Context, lead *Lead) (*MaintenanceRequest, error) {
	existing, err := s.store.FindActiveMaintenance(ctx, lead.TenantID, lead.CallerPhone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	request, err := s.store.CreateMaintenance(ctx, CreateMaintenanceParams{
		TenantID:     lead.TenantID,
		CallerPhone:  lead.CallerPhone,
		SourceCallID: lead.SourceCallID,
		Status:       MaintenanceOpen,
		FlowStep:     1,
	})
	if err != nil {
		return nil, err
	}

	intent := extraction.IntentMaintenance
	status := LeadClosed
	notes := "Converted to maintenance flow"
	if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{
		Intent: &intent,
		Status: &status,
		Notes:  &notes,
	}); err != nil {
		return nil, err
	}

	return request, nil
}
