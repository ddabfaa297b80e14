package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"lettings_triage_backend/internal/conversation"
	"lettings_triage_backend/internal/messaging"
	"lettings_triage_backend/platform/logger"
	"lettings_triage_backend/platform/validator"

	"github.com/google/uuid"
)

type fakeClaimStore struct {
	swept   int64
	batches [][]Job
	marked  []Status
}

func (f *fakeClaimStore) ClaimDue(_ context.Context, _ string, _ int, _ time.Duration) ([]Job, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeClaimStore) MarkRetryOrFailed(_ context.Context, job *Job, _ error, _ time.Duration) (Status, error) {
	status := StatusPending
	if job.Attempts+1 >= job.MaxAttempts {
		status = StatusFailed
	}
	f.marked = append(f.marked, status)
	return status, nil
}

func (f *fakeClaimStore) CancelPendingForTerminalConversations(_ context.Context) (int64, error) {
	return f.swept, nil
}

type failingSender struct{}

func (failingSender) SendSms(_ context.Context, _ messaging.SendInput) (messaging.SendResult, error) {
	return messaging.SendResult{}, errors.New("provider unavailable")
}

func TestWorkerCycleExecutesClaimedBatch(t *testing.T) {
	f := newExecutorFixture()
	lead := f.addLead(conversation.LeadOpen)

	followUp := followUpJob(f.tenant.ID, lead.ID, 1)
	unsupported := Job{
		ID:       uuid.New(),
		TenantID: f.tenant.ID,
		Type:     Type("MYSTERY"),
		Payload:  json.RawMessage(`{}`),
	}

	claims := &fakeClaimStore{
		swept:   3,
		batches: [][]Job{{*followUp, unsupported}},
	}
	worker := NewWorker(claims, f.executor, WorkerOptions{WorkerID: "worker-test"}, logger.New("development"))

	stats, err := worker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if stats.Swept != 3 {
		t.Fatalf("swept = %d, want 3", stats.Swept)
	}
	if stats.Locked != 2 || stats.Sent != 1 || stats.Canceled != 1 {
		t.Fatalf("stats = %+v, want 2 locked / 1 sent / 1 canceled", stats)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(f.sender.sent))
	}
}

func TestWorkerCycleRetriesThenFails(t *testing.T) {
	f := newExecutorFixture()
	lead := f.addLead(conversation.LeadOpen)

	// Same executor wiring, but the provider is down.
	executor := NewExecutor(f.store, f.leads, f.tenants, f.documents, f.messages,
		failingSender{}, validator.New(), logger.New("development"))

	fresh := followUpJob(f.tenant.ID, lead.ID, 1)
	fresh.Attempts = 0
	fresh.MaxAttempts = DefaultMaxAttempts

	exhausted := followUpJob(f.tenant.ID, lead.ID, 1)
	exhausted.Attempts = DefaultMaxAttempts - 1
	exhausted.MaxAttempts = DefaultMaxAttempts

	claims := &fakeClaimStore{batches: [][]Job{{*fresh, *exhausted}}}
	worker := NewWorker(claims, executor, WorkerOptions{WorkerID: "worker-test"}, logger.New("development"))

	stats, err := worker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if stats.Retried != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 1 retried / 1 failed", stats)
	}
	if len(claims.marked) != 2 {
		t.Fatalf("expected both jobs handed to MarkRetryOrFailed, got %d", len(claims.marked))
	}
}

func TestWorkerRunOnceStopsAfterOneCycle(t *testing.T) {
	f := newExecutorFixture()
	claims := &fakeClaimStore{}
	worker := NewWorker(claims, f.executor, WorkerOptions{WorkerID: "worker-test", RunOnce: true}, logger.New("development"))

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
