package compliance

import (
	apphttp "lettings_triage_backend/internal/http"
	"lettings_triage_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the compliance bounded context implementing http.Module.
type Module struct {
	repository *Repository
	scheduler  *Scheduler
	handler    *Handler
}

func NewModule(pool *pgxpool.Pool, policies PolicyReader, jobStore ReminderJobStore, log *logger.Logger) *Module {
	repository := NewRepository(pool)
	scheduler := NewScheduler(repository, policies, jobStore, log)

	return &Module{
		repository: repository,
		scheduler:  scheduler,
		handler:    NewHandler(scheduler),
	}
}

func (m *Module) Name() string {
	return "compliance"
}

// Repository exposes the document store for the job executor wiring.
func (m *Module) Repository() *Repository {
	return m.repository
}

// Scheduler exposes the resync operations.
func (m *Module) Scheduler() *Scheduler {
	return m.scheduler
}

// RegisterRoutes mounts the resync endpoints.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/compliance")
	group.POST("/documents/:documentId/resync", m.handler.HandleResyncDocument)
	group.POST("/tenants/:tenantId/resync", m.handler.HandleResyncTenant)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
