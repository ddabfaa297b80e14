package webhook

import (
	apphttp "lettings_triage_backend/internal/http"
	"lettings_triage_backend/platform/logger"
)

// Module is the provider-callback bounded context implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(tenantResolver TenantResolver, sms SmsProcessor, voiceProcessor VoiceProcessor, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(tenantResolver, sms, voiceProcessor, log),
	}
}

func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the provider callback routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	twilio := ctx.Webhooks.Group("/twilio")
	twilio.POST("/sms/incoming", m.handler.HandleInboundSms)
	twilio.POST("/voice/incoming", m.handler.HandleIncomingVoice)
	twilio.POST("/voice/dial-status", m.handler.HandleDialStatus)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
