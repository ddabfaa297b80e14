package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeTranscriptReader struct {
	byLead map[uuid.UUID][]Message
}

func (f *fakeTranscriptReader) ListForLead(_ context.Context, leadID uuid.UUID) ([]Message, error) {
	return f.byLead[leadID], nil
}

func newTranscriptEngine(reader TranscriptReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	module := NewModule(reader)
	engine.GET("/api/v1/leads/:leadId/messages", module.handler.HandleListForLead)
	return engine
}

func TestListForLeadReturnsTranscript(t *testing.T) {
	leadID := uuid.New()
	sid := "SM123"
	reader := &fakeTranscriptReader{byLead: map[uuid.UUID][]Message{
		leadID: {
			{
				ID:        uuid.New(),
				Direction: DirectionInbound,
				FromPhone: "+447700900001",
				ToPhone:   "+441134960000",
				Body:      "2",
				CreatedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
			},
			{
				ID:                uuid.New(),
				Direction:         DirectionOutbound,
				FromPhone:         "+441134960000",
				ToPhone:           "+447700900001",
				Body:              "Thanks for reporting this. Can I take your full name?",
				ProviderMessageID: &sid,
				CreatedAt:         time.Date(2026, 2, 1, 10, 0, 5, 0, time.UTC),
			},
		},
	}}

	engine := newTranscriptEngine(reader)
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/leads/"+leadID.String()+"/messages", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}

	var body struct {
		LeadID   uuid.UUID `json:"leadId"`
		Messages []struct {
			Direction         string  `json:"direction"`
			Body              string  `json:"body"`
			ProviderMessageID *string `json:"providerMessageId"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.LeadID != leadID {
		t.Fatalf("leadId = %s, want %s", body.LeadID, leadID)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(body.Messages))
	}
	if body.Messages[0].Direction != "INBOUND" || body.Messages[0].Body != "2" {
		t.Fatalf("first message = %+v", body.Messages[0])
	}
	if body.Messages[1].ProviderMessageID == nil || *body.Messages[1].ProviderMessageID != "SM123" {
		t.Fatalf("provider message id = %v", body.Messages[1].ProviderMessageID)
	}
}

func TestListForLeadEmptyTranscript(t *testing.T) {
	reader := &fakeTranscriptReader{byLead: map[uuid.UUID][]Message{}}
	engine := newTranscriptEngine(reader)

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/leads/"+uuid.NewString()+"/messages", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}

	var body struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Messages == nil || len(body.Messages) != 0 {
		t.Fatalf("expected empty array, got %v", body.Messages)
	}
}

func TestListForLeadInvalidID(t *testing.T) {
	engine := newTranscriptEngine(&fakeTranscriptReader{})

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/leads/not-a-uuid/messages", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}
