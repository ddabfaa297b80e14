package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"lettings_triage_backend/internal/conversation"
	"lettings_triage_backend/internal/tenants"
	"lettings_triage_backend/internal/voice"
	"lettings_triage_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeTenantResolver struct {
	byPhone map[string]*tenants.Tenant
}

func (f *fakeTenantResolver) GetByInboundPhone(_ context.Context, toPhone string) (*tenants.Tenant, error) {
	tenant, ok := f.byPhone[toPhone]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	return tenant, nil
}

type fakeSmsProcessor struct {
	inputs []conversation.InboundSms
}

func (f *fakeSmsProcessor) HandleInbound(_ context.Context, input conversation.InboundSms) error {
	f.inputs = append(f.inputs, input)
	return nil
}

type fakeVoiceProcessor struct {
	inputs []voice.DialStatusInput
}

func (f *fakeVoiceProcessor) HandleDialStatus(_ context.Context, input voice.DialStatusInput) (voice.DialStatusResult, error) {
	f.inputs = append(f.inputs, input)
	return voice.DialStatusResult{CallID: uuid.New()}, nil
}

type webhookFixture struct {
	engine *gin.Engine
	sms    *fakeSmsProcessor
	voice  *fakeVoiceProcessor
	tenant *tenants.Tenant
}

func newWebhookFixture() *webhookFixture {
	gin.SetMode(gin.TestMode)

	tenant := &tenants.Tenant{
		ID:             uuid.New(),
		Name:           "Acme Lettings",
		InboundPhone:   "+441134960000",
		ForwardToPhone: "+441134960001",
	}
	resolver := &fakeTenantResolver{byPhone: map[string]*tenants.Tenant{tenant.InboundPhone: tenant}}
	sms := &fakeSmsProcessor{}
	voiceProcessor := &fakeVoiceProcessor{}

	handler := NewHandler(resolver, sms, voiceProcessor, logger.New("development"))

	engine := gin.New()
	group := engine.Group("/webhooks/twilio")
	group.POST("/sms/incoming", handler.HandleInboundSms)
	group.POST("/voice/incoming", handler.HandleIncomingVoice)
	group.POST("/voice/dial-status", handler.HandleDialStatus)

	return &webhookFixture{engine: engine, sms: sms, voice: voiceProcessor, tenant: tenant}
}

func (f *webhookFixture) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	f.engine.ServeHTTP(recorder, req)
	return recorder
}

func TestInboundSmsRoutesToStateMachine(t *testing.T) {
	f := newWebhookFixture()

	recorder := f.post("/webhooks/twilio/sms/incoming", url.Values{
		"To":         {"0113 496 0000"},
		"From":       {"07700 900123"},
		"Body":       {"2"},
		"MessageSid": {"SM123"},
	})

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if recorder.Body.String() != emptyTwiml {
		t.Fatalf("body = %q, want empty TwiML", recorder.Body.String())
	}

	if len(f.sms.inputs) != 1 {
		t.Fatalf("expected 1 processed message, got %d", len(f.sms.inputs))
	}
	input := f.sms.inputs[0]
	if input.Tenant.ID != f.tenant.ID {
		t.Fatal("wrong tenant resolved")
	}
	// Provider numbers arrive in national format and are normalized to E.164.
	if input.FromPhone != "+447700900123" || input.ToPhone != "+441134960000" {
		t.Fatalf("phones = %s / %s", input.FromPhone, input.ToPhone)
	}
	if input.ProviderMessageID == nil || *input.ProviderMessageID != "SM123" {
		t.Fatalf("provider message id = %v", input.ProviderMessageID)
	}
}

func TestInboundSmsMissingFieldsRejected(t *testing.T) {
	f := newWebhookFixture()

	recorder := f.post("/webhooks/twilio/sms/incoming", url.Values{
		"To":   {"0113 496 0000"},
		"Body": {"   "},
	})

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	if len(f.sms.inputs) != 0 {
		t.Fatal("incomplete callback must not reach the state machine")
	}
}

func TestInboundSmsUnknownTenantAcknowledged(t *testing.T) {
	f := newWebhookFixture()

	recorder := f.post("/webhooks/twilio/sms/incoming", url.Values{
		"To":   {"+441134969999"},
		"From": {"+447700900123"},
		"Body": {"hello"},
	})

	// 200 so the provider stops retrying a number we do not serve.
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if len(f.sms.inputs) != 0 {
		t.Fatal("unknown tenant must not reach the state machine")
	}
}

func TestIncomingVoiceReturnsForwardingTwiml(t *testing.T) {
	f := newWebhookFixture()

	recorder := f.post("/webhooks/twilio/voice/incoming", url.Values{
		"To":   {"+441134960000"},
		"From": {"+447700900123"},
	})

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "<Number>+441134960001</Number>") {
		t.Fatalf("expected forward number in TwiML, got %q", body)
	}
	if !strings.Contains(body, "/webhooks/twilio/voice/dial-status") {
		t.Fatalf("expected dial-status action in TwiML, got %q", body)
	}
}

func TestDialStatusRoutesToVoiceService(t *testing.T) {
	f := newWebhookFixture()

	recorder := f.post("/webhooks/twilio/voice/dial-status", url.Values{
		"To":             {"+441134960000"},
		"From":           {"+447700900123"},
		"CallSid":        {"CA123"},
		"DialCallStatus": {"no-answer"},
	})

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if len(f.voice.inputs) != 1 {
		t.Fatalf("expected 1 dial-status input, got %d", len(f.voice.inputs))
	}
	input := f.voice.inputs[0]
	if input.DialStatus != "no-answer" {
		t.Fatalf("dial status = %q", input.DialStatus)
	}
	if input.ProviderCallID == nil || *input.ProviderCallID != "CA123" {
		t.Fatalf("provider call id = %v", input.ProviderCallID)
	}
}

func TestDialStatusFallsBackToCallStatus(t *testing.T) {
	f := newWebhookFixture()

	f.post("/webhooks/twilio/voice/dial-status", url.Values{
		"To":         {"+441134960000"},
		"From":       {"+447700900123"},
		"CallStatus": {"busy"},
	})

	if len(f.voice.inputs) != 1 || f.voice.inputs[0].DialStatus != "busy" {
		t.Fatalf("expected CallStatus fallback, got %+v", f.voice.inputs)
	}
}
