package compliance

import (
	"net/http"

	"lettings_triage_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the schedule resync operations. Called after document or
// policy edits so the reminder jobs match the new data.
type Handler struct {
	scheduler *Scheduler
}

func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// HandleResyncDocument rebuilds the reminder schedule for one document.
func (h *Handler) HandleResyncDocument(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("documentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid document id", nil)
		return
	}

	inserted, err := h.scheduler.ResyncDocument(c.Request.Context(), documentID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"documentId": documentID, "jobsScheduled": inserted})
}

// HandleResyncTenant rebuilds the reminder schedules for every document of a
// tenant, typically after a policy change.
func (h *Handler) HandleResyncTenant(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenantId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid tenant id", nil)
		return
	}

	inserted, err := h.scheduler.ResyncTenant(c.Request.Context(), tenantID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"tenantId": tenantID, "jobsScheduled": inserted})
}
