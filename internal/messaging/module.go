package messaging

import (
	apphttp "lettings_triage_backend/internal/http"
)

// Module is the message-log bounded context implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(messages TranscriptReader) *Module {
	return &Module{handler: NewHandler(messages)}
}

func (m *Module) Name() string {
	return "messaging"
}

// RegisterRoutes mounts the transcript lookup.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/leads/:leadId/messages", m.handler.HandleListForLead)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
