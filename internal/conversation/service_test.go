package conversation

import (
	"context"
	"strings"
	"testing"

	"lettings_triage_backend/internal/extraction"
	"lettings_triage_backend/internal/messaging"
	"lettings_triage_backend/internal/tenants"
	"lettings_triage_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	leads       map[uuid.UUID]*Lead
	maintenance map[uuid.UUID]*MaintenanceRequest
	optOuts     map[string]*OptOut
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:       make(map[uuid.UUID]*Lead),
		maintenance: make(map[uuid.UUID]*MaintenanceRequest),
		optOuts:     make(map[string]*OptOut),
	}
}

func (f *fakeStore) FindActiveLead(_ context.Context, tenantID uuid.UUID, callerPhone string) (*Lead, error) {
	for _, lead := range f.leads {
		if lead.TenantID == tenantID && lead.CallerPhone == callerPhone &&
			(lead.Status == LeadOpen || lead.Status == LeadQualified) {
			return lead, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindActiveMaintenance(_ context.Context, tenantID uuid.UUID, callerPhone string) (*MaintenanceRequest, error) {
	for _, request := range f.maintenance {
		if request.TenantID == tenantID && request.CallerPhone == callerPhone {
			switch request.Status {
			case MaintenanceOpen, MaintenanceLogged, MaintenanceInProgress:
				return request, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeStore) GetLead(_ context.Context, id uuid.UUID) (*Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return lead, nil
}

func (f *fakeStore) CreateLead(_ context.Context, p CreateLeadParams) (*Lead, error) {
	lead := &Lead{
		ID:           uuid.New(),
		TenantID:     p.TenantID,
		CallerPhone:  p.CallerPhone,
		SourceCallID: p.SourceCallID,
		Intent:       p.Intent,
		Status:       p.Status,
		FlowStep:     p.FlowStep,
	}
	f.leads[lead.ID] = lead
	return lead, nil
}

func (f *fakeStore) UpdateLead(_ context.Context, id uuid.UUID, update LeadUpdate) error {
	lead, ok := f.leads[id]
	if !ok {
		return ErrNotFound
	}
	if update.Status != nil {
		lead.Status = *update.Status
	}
	if update.Intent != nil {
		lead.Intent = *update.Intent
	}
	if update.FlowStep != nil {
		lead.FlowStep = *update.FlowStep
	}
	if update.Name != nil {
		lead.Name = update.Name
	}
	if update.ClearDesiredArea {
		lead.DesiredArea = nil
	} else if update.DesiredArea != nil {
		lead.DesiredArea = update.DesiredArea
	}
	if update.Postcode != nil {
		lead.Postcode = update.Postcode
	}
	if update.PropertyQuery != nil {
		lead.PropertyQuery = update.PropertyQuery
	}
	if update.Requirements != nil {
		lead.Requirements = update.Requirements
	}
	if update.Notes != nil {
		lead.Notes = update.Notes
	}
	return nil
}

func (f *fakeStore) CreateMaintenance(_ context.Context, p CreateMaintenanceParams) (*MaintenanceRequest, error) {
	request := &MaintenanceRequest{
		ID:           uuid.New(),
		TenantID:     p.TenantID,
		CallerPhone:  p.CallerPhone,
		SourceCallID: p.SourceCallID,
		Status:       p.Status,
		FlowStep:     p.FlowStep,
	}
	f.maintenance[request.ID] = request
	return request, nil
}

func (f *fakeStore) UpdateMaintenance(_ context.Context, id uuid.UUID, update MaintenanceUpdate) error {
	request, ok := f.maintenance[id]
	if !ok {
		return ErrNotFound
	}
	if update.Status != nil {
		request.Status = *update.Status
	}
	if update.Severity != nil {
		request.Severity = update.Severity
	}
	if update.NeedsHuman != nil {
		request.NeedsHuman = *update.NeedsHuman
	}
	if update.FlowStep != nil {
		request.FlowStep = *update.FlowStep
	}
	if update.Name != nil {
		request.Name = update.Name
	}
	if update.PropertyAddress != nil {
		request.PropertyAddress = update.PropertyAddress
	}
	if update.Postcode != nil {
		request.Postcode = update.Postcode
	}
	if update.IssueDescription != nil {
		request.IssueDescription = update.IssueDescription
	}
	return nil
}

func (f *fakeStore) GetOptOut(_ context.Context, tenantID uuid.UUID, phone string) (*OptOut, error) {
	return f.optOuts[tenantID.String()+phone], nil
}

func (f *fakeStore) UpsertOptOut(_ context.Context, tenantID uuid.UUID, phone, reason string) error {
	f.optOuts[tenantID.String()+phone] = &OptOut{
		TenantID: tenantID,
		Phone:    phone,
		Active:   true,
		Reason:   &reason,
	}
	return nil
}

type fakeMessageLog struct {
	entries []messaging.LogParams
}

func (f *fakeMessageLog) Log(_ context.Context, p messaging.LogParams) (uuid.UUID, error) {
	f.entries = append(f.entries, p)
	return uuid.New(), nil
}

type fakeJobCanceler struct {
	cancels []string
}

func (f *fakeJobCanceler) CancelPendingForConversation(_ context.Context, leadID, maintenanceRequestID *uuid.UUID, reason string) (int64, error) {
	f.cancels = append(f.cancels, reason)
	return 1, nil
}

type fakeSender struct {
	sent []messaging.SendInput
}

func (f *fakeSender) SendSms(_ context.Context, input messaging.SendInput) (messaging.SendResult, error) {
	f.sent = append(f.sent, input)
	return messaging.SendResult{ProviderMessageID: "SM-test", Provider: "fake"}, nil
}

type fixture struct {
	service *Service
	store   *fakeStore
	log     *fakeMessageLog
	jobs    *fakeJobCanceler
	sender  *fakeSender
	tenant  *tenants.Tenant
}

func newFixture() *fixture {
	store := newFakeStore()
	messageLog := &fakeMessageLog{}
	jobs := &fakeJobCanceler{}
	sender := &fakeSender{}
	bookingURL := "https://book.example.com/viewings"

	tenant := &tenants.Tenant{
		ID:                      uuid.New(),
		Name:                    "Acme Lettings",
		InboundPhone:            "+441134960000",
		OwnerNotificationPhone:  "+441134960099",
		Timezone:                "Europe/London",
		AllowedPostcodePrefixes: []string{"LS", "BD"},
		BookingURLViewings:      &bookingURL,
	}

	service := NewService(store, messageLog, jobs, sender,
		extraction.NewHeuristicExtractor(), logger.New("development"))

	return &fixture{service: service, store: store, log: messageLog, jobs: jobs, sender: sender, tenant: tenant}
}

func (f *fixture) inbound(body string) InboundSms {
	return InboundSms{
		Tenant:    f.tenant,
		FromPhone: "+447700900001",
		ToPhone:   f.tenant.InboundPhone,
		Body:      body,
	}
}

func (f *fixture) handle(t *testing.T, body string) {
	t.Helper()
	if err := f.service.HandleInbound(context.Background(), f.inbound(body)); err != nil {
		t.Fatalf("HandleInbound(%q): %v", body, err)
	}
}

func (f *fixture) singleLead(t *testing.T) *Lead {
	t.Helper()
	if len(f.store.leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(f.store.leads))
	}
	for _, lead := range f.store.leads {
		return lead
	}
	return nil
}

func (f *fixture) singleMaintenance(t *testing.T) *MaintenanceRequest {
	t.Helper()
	if len(f.store.maintenance) != 1 {
		t.Fatalf("expected 1 maintenance request, got %d", len(f.store.maintenance))
	}
	for _, request := range f.store.maintenance {
		return request
	}
	return nil
}

func TestEmptyBodyIsDropped(t *testing.T) {
	f := newFixture()
	f.handle(t, "   ")
	if len(f.sender.sent) != 0 || len(f.log.entries) != 0 {
		t.Fatal("empty body must have no side effects")
	}
}

func TestMenuReplyTwoConvertsToMaintenance(t *testing.T) {
	f := newFixture()
	f.handle(t, "2")

	lead := f.singleLead(t)
	if lead.Status != LeadClosed {
		t.Fatalf("lead status = %s, want CLOSED", lead.Status)
	}
	if lead.Intent != extraction.IntentMaintenance {
		t.Fatalf("lead intent = %s, want MAINTENANCE", lead.Intent)
	}

	request := f.singleMaintenance(t)
	if request.Status != MaintenanceOpen || request.FlowStep != 1 {
		t.Fatalf("maintenance = %s step %d, want OPEN step 1", request.Status, request.FlowStep)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("expected 1 outbound send, got %d", len(f.sender.sent))
	}
	if !strings.Contains(f.sender.sent[0].Body, "full name") {
		t.Fatalf("expected the name prompt, got %q", f.sender.sent[0].Body)
	}
}

func TestUnknownIntentRepeatsTriageMenu(t *testing.T) {
	f := newFixture()
	f.handle(t, "hello?")

	lead := f.singleLead(t)
	if lead.Intent != extraction.IntentUnknown || lead.Status != LeadOpen {
		t.Fatalf("lead should stay OPEN/UNKNOWN, got %s/%s", lead.Status, lead.Intent)
	}
	if len(f.sender.sent) != 1 || !strings.Contains(f.sender.sent[0].Body, "Reply 1, 2, or 3") {
		t.Fatalf("expected the triage menu, got %v", f.sender.sent)
	}
}

func TestStopOptsOutAndGoesSilent(t *testing.T) {
	f := newFixture()
	f.handle(t, "1")
	lead := f.singleLead(t)
	if lead.Intent != extraction.IntentViewing {
		t.Fatalf("setup: intent = %s", lead.Intent)
	}

	f.handle(t, "STOP")

	if lead.Status != LeadOptedOut {
		t.Fatalf("lead status = %s, want OPTED_OUT", lead.Status)
	}
	if len(f.jobs.cancels) == 0 {
		t.Fatal("pending jobs should be canceled on STOP")
	}
	confirm := f.sender.sent[len(f.sender.sent)-1]
	if !strings.Contains(confirm.Body, "opted out") {
		t.Fatalf("expected opt-out confirmation, got %q", confirm.Body)
	}

	sendsBefore := len(f.sender.sent)
	f.handle(t, "actually can I book a viewing")
	if len(f.sender.sent) != sendsBefore {
		t.Fatal("opted-out caller must not receive automated replies")
	}
	last := f.log.entries[len(f.log.entries)-1]
	if last.Direction != messaging.DirectionInbound {
		t.Fatal("opted-out caller's message should still be logged")
	}
}

func TestViewingFlowProgressesToBookingLink(t *testing.T) {
	f := newFixture()
	f.handle(t, "1")
	f.handle(t, "my name is Jane Smith")

	lead := f.singleLead(t)
	if lead.Name == nil || *lead.Name != "Jane Smith" || lead.FlowStep != 2 {
		t.Fatalf("after name: %+v", lead)
	}

	f.handle(t, "somewhere near LS1 4AP")
	if lead.FlowStep != 3 {
		t.Fatalf("after area: step = %d, want 3", lead.FlowStep)
	}
	if lead.Postcode == nil || *lead.Postcode != "LS1 4AP" {
		t.Fatalf("postcode = %v, want LS1 4AP", lead.Postcode)
	}

	f.handle(t, "2 beds, up to 900 pcm")
	if lead.FlowStep != 4 || lead.Requirements == nil {
		t.Fatalf("after requirements: step %d requirements %v", lead.FlowStep, lead.Requirements)
	}

	f.handle(t, "BOOK please")
	if lead.Status != LeadScheduled || lead.FlowStep != 5 {
		t.Fatalf("after booking: %s step %d", lead.Status, lead.FlowStep)
	}

	// Booking link to the caller plus an owner alert.
	link := f.sender.sent[len(f.sender.sent)-2]
	if !strings.Contains(link.Body, "https://book.example.com/viewings") {
		t.Fatalf("expected booking link, got %q", link.Body)
	}
	owner := f.sender.sent[len(f.sender.sent)-1]
	if owner.To != f.tenant.OwnerNotificationPhone || !strings.Contains(owner.Body, "Viewing lead scheduled") {
		t.Fatalf("expected owner alert, got %+v", owner)
	}
	if len(f.jobs.cancels) == 0 {
		t.Fatal("scheduling should cancel pending follow-ups")
	}
}

func TestOutOfAreaPostcodeClosesLead(t *testing.T) {
	f := newFixture()
	f.handle(t, "1")
	f.handle(t, "my name is Jane Smith")

	f.handle(t, "I want to rent in M1 1AA")

	lead := f.singleLead(t)
	if lead.Status != LeadOutOfArea {
		t.Fatalf("lead status = %s, want OUT_OF_AREA", lead.Status)
	}
	last := f.sender.sent[len(f.sender.sent)-1]
	if !strings.Contains(last.Body, "outside our current area") {
		t.Fatalf("expected out-of-area message, got %q", last.Body)
	}
	if len(f.jobs.cancels) == 0 {
		t.Fatal("out-of-area should cancel pending jobs")
	}
}

func TestGasLeakTriggersEmergencyHandoff(t *testing.T) {
	f := newFixture()
	f.handle(t, "2")
	request := f.singleMaintenance(t)

	f.handle(t, "I can smell gas in the kitchen")

	if request.Status != MaintenanceNeedsHuman || !request.NeedsHuman {
		t.Fatalf("maintenance = %+v, want NEEDS_HUMAN", request)
	}
	if request.Severity == nil || *request.Severity != extraction.SeverityEmergency {
		t.Fatalf("severity = %v, want EMERGENCY", request.Severity)
	}

	// Safety message to the caller and a handoff alert to the owner.
	caller := f.sender.sent[len(f.sender.sent)-2]
	if !strings.Contains(caller.Body, "safety-critical") {
		t.Fatalf("expected safety message, got %q", caller.Body)
	}
	owner := f.sender.sent[len(f.sender.sent)-1]
	if owner.To != f.tenant.OwnerNotificationPhone || !strings.Contains(owner.Body, "Emergency maintenance handoff") {
		t.Fatalf("expected emergency owner alert, got %+v", owner)
	}
}

func TestAngryLeadGetsCalmHandoff(t *testing.T) {
	f := newFixture()
	f.handle(t, "1")

	longComplaint := "this is ridiculous, I have been ignored for weeks and I am going to the ombudsman " +
		"unless someone calls me back right now about this absolutely unacceptable situation with the flat"
	f.handle(t, longComplaint)

	lead := f.singleLead(t)
	if lead.Status != LeadNeedsHuman {
		t.Fatalf("lead status = %s, want NEEDS_HUMAN", lead.Status)
	}

	caller := f.sender.sent[len(f.sender.sent)-2]
	if !strings.Contains(caller.Body, "sorry for the frustration") {
		t.Fatalf("expected de-escalation message, got %q", caller.Body)
	}
	owner := f.sender.sent[len(f.sender.sent)-1]
	if !strings.Contains(owner.Body, "Calm-mode handoff required") {
		t.Fatalf("expected owner handoff alert, got %q", owner.Body)
	}
	// The quoted message is compacted and truncated to 140 runes.
	if !strings.Contains(owner.Body, "...") {
		t.Fatalf("expected truncated quote in owner alert, got %q", owner.Body)
	}
}

func TestMaintenanceFlowCompletes(t *testing.T) {
	f := newFixture()
	f.handle(t, "2")
	request := f.singleMaintenance(t)

	f.handle(t, "my name is Tom Jones")
	if request.FlowStep != 2 || request.Name == nil {
		t.Fatalf("after name: %+v", request)
	}

	f.handle(t, "12 Alder Road, LS2 7EY")
	if request.FlowStep != 3 {
		t.Fatalf("after address: step = %d", request.FlowStep)
	}

	f.handle(t, "the tap in the bathroom drips constantly")
	if request.FlowStep != 4 || request.IssueDescription == nil {
		t.Fatalf("after issue: %+v", request)
	}

	f.handle(t, "ROUTINE")
	if request.Status != MaintenanceLogged || request.FlowStep != 5 {
		t.Fatalf("after severity: %s step %d", request.Status, request.FlowStep)
	}
	owner := f.sender.sent[len(f.sender.sent)-1]
	if !strings.Contains(owner.Body, "Maintenance logged (ROUTINE)") {
		t.Fatalf("expected logged owner alert, got %q", owner.Body)
	}
}

func TestSummarizeInboundForOwner(t *testing.T) {
	short := summarizeInboundForOwner("  hello   world  ")
	if short != "hello world" {
		t.Fatalf("got %q", short)
	}

	long := strings.Repeat("a", 200)
	got := summarizeInboundForOwner(long)
	if len([]rune(got)) != 140 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncation wrong: len=%d suffix=%q", len([]rune(got)), got[len(got)-3:])
	}
}

func TestPostcodeOutOfArea(t *testing.T) {
	prefixes := []string{"ls ", "BD"}
	in := "LS1 4AP"
	out := "M1 1AA"

	if postcodeOutOfArea(&in, prefixes) {
		t.Fatal("LS postcode should be in area despite prefix whitespace/case")
	}
	if !postcodeOutOfArea(&out, prefixes) {
		t.Fatal("M1 postcode should be out of area")
	}
	if postcodeOutOfArea(nil, prefixes) {
		t.Fatal("missing postcode never trips the gate")
	}
	if postcodeOutOfArea(&out, nil) {
		t.Fatal("no configured prefixes never trips the gate")
	}
}
