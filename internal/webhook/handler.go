package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lettings_triage_backend/internal/conversation"
	"lettings_triage_backend/internal/tenants"
	"lettings_triage_backend/internal/voice"
	"lettings_triage_backend/platform/logger"
	"lettings_triage_backend/platform/phone"

	"github.com/gin-gonic/gin"
)

// TenantResolver maps the provider's To number onto a tenant.
type TenantResolver interface {
	GetByInboundPhone(ctx context.Context, toPhone string) (*tenants.Tenant, error)
}

// SmsProcessor runs the conversation state machine.
type SmsProcessor interface {
	HandleInbound(ctx context.Context, input conversation.InboundSms) error
}

// VoiceProcessor handles dial-status callbacks.
type VoiceProcessor interface {
	HandleDialStatus(ctx context.Context, input voice.DialStatusInput) (voice.DialStatusResult, error)
}

type Handler struct {
	tenants TenantResolver
	sms     SmsProcessor
	voice   VoiceProcessor
	log     *logger.Logger
}

func NewHandler(tenantResolver TenantResolver, sms SmsProcessor, voiceProcessor VoiceProcessor, log *logger.Logger) *Handler {
	return &Handler{tenants: tenantResolver, sms: sms, voice: voiceProcessor, log: log}
}

func twimlResponse(c *gin.Context, status int, body string) {
	c.Data(status, "text/xml; charset=utf-8", []byte(body))
}

// HandleInboundSms receives the provider's inbound-SMS callback. The provider
// only needs an empty TwiML acknowledgment; all real work is the state
// machine's. Unknown tenants are acknowledged so the provider stops retrying.
func (h *Handler) HandleInboundSms(c *gin.Context) {
	toPhone := phone.NormalizeE164(c.PostForm("To"))
	fromPhone := phone.NormalizeE164(c.PostForm("From"))
	body := c.PostForm("Body")

	messageSid := c.PostForm("MessageSid")
	if messageSid == "" {
		messageSid = c.PostForm("SmsSid")
	}

	if toPhone == "" || fromPhone == "" || strings.TrimSpace(body) == "" {
		twimlResponse(c, http.StatusBadRequest, emptyTwiml)
		return
	}

	tenant, err := h.resolveTenant(c, toPhone)
	if err != nil || tenant == nil {
		twimlResponse(c, http.StatusOK, emptyTwiml)
		return
	}

	var providerMessageID *string
	if messageSid != "" {
		providerMessageID = &messageSid
	}

	if err := h.sms.HandleInbound(c.Request.Context(), conversation.InboundSms{
		Tenant:            tenant,
		FromPhone:         fromPhone,
		ToPhone:           toPhone,
		Body:              body,
		ProviderMessageID: providerMessageID,
	}); err != nil {
		h.log.Error("inbound sms processing failed", "tenant_id", tenant.ID.String(), "error", err.Error())
		twimlResponse(c, http.StatusInternalServerError, emptyTwiml)
		return
	}

	twimlResponse(c, http.StatusOK, emptyTwiml)
}

// HandleIncomingVoice answers an incoming call with forwarding TwiML. The
// dial outcome comes back on the dial-status callback.
func (h *Handler) HandleIncomingVoice(c *gin.Context) {
	toPhone := phone.NormalizeE164(c.PostForm("To"))

	tenant, err := h.resolveTenant(c, toPhone)
	if err != nil || tenant == nil {
		twimlResponse(c, http.StatusOK, emptyTwiml)
		return
	}

	callbackURL := resolveCallbackURL(c, "/webhooks/twilio/voice/dial-status")
	twimlResponse(c, http.StatusOK, dialForwardTwiml(tenant.ForwardToPhone, callbackURL, 20))
}

// HandleDialStatus receives the outcome of the forwarded call and starts
// missed-call triage when nobody answered.
func (h *Handler) HandleDialStatus(c *gin.Context) {
	toPhone := phone.NormalizeE164(c.PostForm("To"))
	fromPhone := phone.NormalizeE164(c.PostForm("From"))
	callSid := c.PostForm("CallSid")

	dialStatus := c.PostForm("DialCallStatus")
	if dialStatus == "" {
		dialStatus = c.PostForm("CallStatus")
	}

	if toPhone == "" || fromPhone == "" {
		twimlResponse(c, http.StatusBadRequest, emptyTwiml)
		return
	}

	tenant, err := h.resolveTenant(c, toPhone)
	if err != nil || tenant == nil {
		twimlResponse(c, http.StatusOK, emptyTwiml)
		return
	}

	var providerCallID *string
	if callSid != "" {
		providerCallID = &callSid
	}

	if _, err := h.voice.HandleDialStatus(c.Request.Context(), voice.DialStatusInput{
		Tenant:         tenant,
		FromPhone:      fromPhone,
		ToPhone:        toPhone,
		ProviderCallID: providerCallID,
		DialStatus:     dialStatus,
	}); err != nil {
		h.log.Error("dial-status processing failed", "tenant_id", tenant.ID.String(), "error", err.Error())
		twimlResponse(c, http.StatusInternalServerError, emptyTwiml)
		return
	}

	twimlResponse(c, http.StatusOK, emptyTwiml)
}

func (h *Handler) resolveTenant(c *gin.Context, toPhone string) (*tenants.Tenant, error) {
	if toPhone == "" {
		return nil, nil
	}
	tenant, err := h.tenants.GetByInboundPhone(c.Request.Context(), toPhone)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			h.log.Warn("webhook for unknown inbound number", "to", toPhone)
			return nil, nil
		}
		h.log.DatabaseError("tenant lookup", err)
		return nil, err
	}
	return tenant, nil
}

func resolveCallbackURL(c *gin.Context, path string) string {
	scheme := "https"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + c.Request.Host + path
}
