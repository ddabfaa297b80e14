package messaging

import (
	"context"
	"net/http"
	"time"

	"lettings_triage_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TranscriptReader reads a conversation transcript from the message log.
type TranscriptReader interface {
	ListForLead(ctx context.Context, leadID uuid.UUID) ([]Message, error)
}

// Handler exposes read-only transcript lookups for operators reviewing a
// conversation before a handoff.
type Handler struct {
	messages TranscriptReader
}

func NewHandler(messages TranscriptReader) *Handler {
	return &Handler{messages: messages}
}

type transcriptMessage struct {
	ID                uuid.UUID `json:"id"`
	Direction         Direction `json:"direction"`
	FromPhone         string    `json:"fromPhone"`
	ToPhone           string    `json:"toPhone"`
	Body              string    `json:"body"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// HandleListForLead returns the transcript for a lead, oldest first.
func (h *Handler) HandleListForLead(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}

	messages, err := h.messages.ListForLead(c.Request.Context(), leadID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	items := make([]transcriptMessage, 0, len(messages))
	for _, m := range messages {
		items = append(items, transcriptMessage{
			ID:                m.ID,
			Direction:         m.Direction,
			FromPhone:         m.FromPhone,
			ToPhone:           m.ToPhone,
			Body:              m.Body,
			ProviderMessageID: m.ProviderMessageID,
			CreatedAt:         m.CreatedAt,
		})
	}

	httpkit.OK(c, gin.H{"leadId": leadID, "messages": items})
}
