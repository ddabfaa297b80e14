package conversation

import (
	"context"
	"regexp"
	"strings"

	"lettings_triage_backend/internal/extraction"
	"lettings_triage_backend/internal/templates"
	"lettings_triage_backend/internal/tenants"
)

var (
	bookingPattern         = regexp.MustCompile(`(?i)\b(book|booking|schedule|link|slot)\b`)
	viewingCallbackPattern = regexp.MustCompile(`(?i)\b(call|callback|ring|tomorrow|am|pm)\b`)
	generalCallbackPattern = regexp.MustCompile(`(?i)\b(call|callback|ring|am|pm|tomorrow|today)\b`)
)

func orDefault(value *string, fallback string) string {
	if value != nil && *value != "" {
		return *value
	}
	return fallback
}

// runViewingFlow advances a viewing enquiry one collected field per message:
// name, area/postcode (with the out-of-area gate), requirements, then the
// booking-or-callback fork.
func (s *Service) runViewingFlow(ctx context.Context, tenant *tenants.Tenant, lead *Lead, fromPhone, body string, signals extraction.Signals) error {
	ref := leadRef(lead.ID)
	step := lead.FlowStep
	if step == 0 {
		step = 1
	}

	if step <= 1 {
		if signals.Name != nil {
			next := 2
			if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Name: signals.Name, FlowStep: &next}); err != nil {
				return err
			}
			return s.sendCustomer(ctx, tenant, fromPhone,
				s.resolveTemplate(tenant, templates.KeyViewingAskArea, nil), ref)
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyViewingAskName, nil), ref)
	}

	if step == 2 {
		if postcodeOutOfArea(signals.Postcode, tenant.AllowedPostcodePrefixes) {
			return s.processOutOfArea(ctx, tenant, fromPhone, ref)
		}

		areaOrProperty := orDefault(signals.AreaOrProperty, strings.TrimSpace(body))
		if areaOrProperty == "" && signals.Postcode == nil {
			return s.sendCustomer(ctx, tenant, fromPhone,
				s.resolveTemplate(tenant, templates.KeyViewingAskArea, nil), ref)
		}

		next := 3
		update := LeadUpdate{PropertyQuery: &areaOrProperty, FlowStep: &next}
		if signals.Postcode != nil {
			// A concrete postcode supersedes any free-text area.
			update.ClearDesiredArea = true
			update.Postcode = signals.Postcode
		} else {
			update.DesiredArea = &areaOrProperty
		}
		if err := s.store.UpdateLead(ctx, lead.ID, update); err != nil {
			return err
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyViewingAskRequirements, nil), ref)
	}

	if step == 3 {
		requirements := strings.TrimSpace(body)
		if requirements == "" {
			return s.sendCustomer(ctx, tenant, fromPhone,
				s.resolveTemplate(tenant, templates.KeyViewingAskRequirements, nil), ref)
		}

		next := 4
		if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Requirements: &requirements, FlowStep: &next}); err != nil {
			return err
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyViewingAskBooking, nil), ref)
	}

	wantsBooking := bookingPattern.MatchString(body)
	hasCallback := signals.CallbackText != nil || viewingCallbackPattern.MatchString(body)

	if wantsBooking && tenant.BookingURLViewings != nil {
		status := LeadScheduled
		step := 5
		if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Status: &status, FlowStep: &step}); err != nil {
			return err
		}
		if _, err := s.cancelJobs(ctx, ref, "Viewing scheduled"); err != nil {
			return err
		}
		if err := s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyViewingBookingLink, map[string]string{
				"bookingUrlViewings": *tenant.BookingURLViewings,
			}), ref); err != nil {
			return err
		}
		return s.sendOwner(ctx, tenant,
			"Viewing lead scheduled: "+orDefault(lead.Name, "Unknown name")+" ("+fromPhone+")", ref)
	}

	if hasCallback {
		status := LeadQualified
		step := 5
		callback := orDefault(signals.CallbackText, body)
		if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{
			Status:   &status,
			FlowStep: &step,
			Notes:    &callback,
		}); err != nil {
			return err
		}
		if err := s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyViewingQualified, map[string]string{
				"name": orDefault(lead.Name, "there"),
			}), ref); err != nil {
			return err
		}
		return s.sendOwner(ctx, tenant,
			"Viewing lead qualified: "+orDefault(lead.Name, "Unknown name")+" ("+fromPhone+"). Callback requested: "+callback, ref)
	}

	return s.sendCustomer(ctx, tenant, fromPhone,
		s.resolveTemplate(tenant, templates.KeyViewingAskBooking, nil), ref)
}

// runGeneralFlow collects name, topic and a callback time for an
// uncategorized enquiry.
func (s *Service) runGeneralFlow(ctx context.Context, tenant *tenants.Tenant, lead *Lead, fromPhone, body string, signals extraction.Signals) error {
	ref := leadRef(lead.ID)
	step := lead.FlowStep
	if step == 0 {
		step = 1
	}

	if step <= 1 {
		if signals.Name != nil {
			next := 2
			if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Name: signals.Name, FlowStep: &next}); err != nil {
				return err
			}
			return s.sendCustomer(ctx, tenant, fromPhone,
				s.resolveTemplate(tenant, templates.KeyGeneralAskTopic, nil), ref)
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyGeneralAskName, nil), ref)
	}

	if step == 2 {
		topic := strings.TrimSpace(body)
		if topic == "" {
			return s.sendCustomer(ctx, tenant, fromPhone,
				s.resolveTemplate(tenant, templates.KeyGeneralAskTopic, nil), ref)
		}

		next := 3
		if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{Notes: &topic, FlowStep: &next}); err != nil {
			return err
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyGeneralAskCallback, nil), ref)
	}

	if signals.CallbackText == nil && !generalCallbackPattern.MatchString(body) {
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyGeneralAskCallback, nil), ref)
	}

	status := LeadQualified
	next := 4
	callback := orDefault(signals.CallbackText, body)
	notes := strings.TrimSpace(orDefault(lead.Notes, "") + "\nCallback: " + callback)
	if err := s.store.UpdateLead(ctx, lead.ID, LeadUpdate{
		Status:   &status,
		FlowStep: &next,
		Notes:    &notes,
	}); err != nil {
		return err
	}

	if err := s.sendCustomer(ctx, tenant, fromPhone,
		s.resolveTemplate(tenant, templates.KeyGeneralQualified, map[string]string{
			"name": orDefault(lead.Name, "there"),
		}), ref); err != nil {
		return err
	}

	return s.sendOwner(ctx, tenant,
		"General enquiry qualified: "+orDefault(lead.Name, "Unknown name")+" ("+fromPhone+"). Callback: "+callback, ref)
}

// runMaintenanceFlow collects name, address (with the out-of-area gate),
// issue and severity. A safety risk pre-empts every step.
func (s *Service) runMaintenanceFlow(ctx context.Context, tenant *tenants.Tenant, request *MaintenanceRequest, fromPhone, body string, signals extraction.Signals) error {
	ref := maintenanceRef(request.ID)
	step := request.FlowStep
	if step == 0 {
		step = 1
	}

	if signals.SafetyRisk || hasSafetyRisk(body) {
		status := MaintenanceNeedsHuman
		needsHuman := true
		severity := extraction.SeverityEmergency
		issue := orDefault(request.IssueDescription, body)
		if err := s.store.UpdateMaintenance(ctx, request.ID, MaintenanceUpdate{
			Status:           &status,
			NeedsHuman:       &needsHuman,
			Severity:         &severity,
			IssueDescription: &issue,
		}); err != nil {
			return err
		}
		if _, err := s.cancelJobs(ctx, ref, "Emergency handoff"); err != nil {
			return err
		}
		if err := s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyEmergencySafety, nil), ref); err != nil {
			return err
		}
		return s.sendOwner(ctx, tenant,
			"Emergency maintenance handoff: "+orDefault(request.Name, "Unknown name")+" ("+fromPhone+").", ref)
	}

	if step <= 1 {
		if signals.Name != nil {
			next := 2
			if err := s.store.UpdateMaintenance(ctx, request.ID, MaintenanceUpdate{Name: signals.Name, FlowStep: &next}); err != nil {
				return err
			}
			return s.sendCustomer(ctx, tenant, fromPhone,
				s.resolveTemplate(tenant, templates.KeyMaintenanceAskAddress, nil), ref)
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyMaintenanceAskName, nil), ref)
	}

	if step == 2 {
		if postcodeOutOfArea(signals.Postcode, tenant.AllowedPostcodePrefixes) {
			return s.processOutOfArea(ctx, tenant, fromPhone, ref)
		}

		address := orDefault(signals.AreaOrProperty, strings.TrimSpace(body))
		if address == "" && signals.Postcode == nil {
			return s.sendCustomer(ctx, tenant, fromPhone,
				s.resolveTemplate(tenant, templates.KeyMaintenanceAskAddress, nil), ref)
		}

		next := 3
		update := MaintenanceUpdate{FlowStep: &next}
		if address != "" {
			update.PropertyAddress = &address
		}
		if signals.Postcode != nil {
			update.Postcode = signals.Postcode
		}
		if err := s.store.UpdateMaintenance(ctx, request.ID, update); err != nil {
			return err
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyMaintenanceAskIssue, nil), ref)
	}

	if step == 3 {
		issue := orDefault(signals.IssueDescription, strings.TrimSpace(body))
		if issue == "" {
			return s.sendCustomer(ctx, tenant, fromPhone,
				s.resolveTemplate(tenant, templates.KeyMaintenanceAskIssue, nil), ref)
		}

		next := 4
		if err := s.store.UpdateMaintenance(ctx, request.ID, MaintenanceUpdate{IssueDescription: &issue, FlowStep: &next}); err != nil {
			return err
		}
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyMaintenanceAskSeverity, nil), ref)
	}

	if signals.Severity == nil {
		return s.sendCustomer(ctx, tenant, fromPhone,
			s.resolveTemplate(tenant, templates.KeyMaintenanceAskSeverity, nil), ref)
	}

	status := MaintenanceLogged
	next := 5
	if err := s.store.UpdateMaintenance(ctx, request.ID, MaintenanceUpdate{
		Severity: signals.Severity,
		Status:   &status,
		FlowStep: &next,
	}); err != nil {
		return err
	}

	if err := s.sendCustomer(ctx, tenant, fromPhone,
		s.resolveTemplate(tenant, templates.KeyMaintenanceLogged, map[string]string{
			"name": orDefault(request.Name, "there"),
		}), ref); err != nil {
		return err
	}

	return s.sendOwner(ctx, tenant,
		"Maintenance logged ("+string(*signals.Severity)+"): "+orDefault(request.Name, "Unknown name")+" ("+fromPhone+").", ref)
}
