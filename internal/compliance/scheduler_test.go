package compliance

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"lettings_triage_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeDocumentStore struct {
	documents map[uuid.UUID]*Document
	byTenant  map[uuid.UUID][]uuid.UUID
	statuses  map[uuid.UUID]Status
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{
		documents: make(map[uuid.UUID]*Document),
		byTenant:  make(map[uuid.UUID][]uuid.UUID),
		statuses:  make(map[uuid.UUID]Status),
	}
}

func (f *fakeDocumentStore) add(d *Document) {
	f.documents[d.ID] = d
	f.byTenant[d.TenantID] = append(f.byTenant[d.TenantID], d.ID)
}

func (f *fakeDocumentStore) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	document, ok := f.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return document, nil
}

func (f *fakeDocumentStore) ListIDsForTenant(_ context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	return f.byTenant[tenantID], nil
}

func (f *fakeDocumentStore) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	f.statuses[id] = status
	return nil
}

type fakePolicyReader struct {
	policy json.RawMessage
}

func (f *fakePolicyReader) CompliancePolicy(_ context.Context, _ uuid.UUID) (json.RawMessage, error) {
	return f.policy, nil
}

type fakeReminderJobStore struct {
	cancels  []uuid.UUID
	inserted map[uuid.UUID][]ReminderEvent
}

func newFakeReminderJobStore() *fakeReminderJobStore {
	return &fakeReminderJobStore{inserted: make(map[uuid.UUID][]ReminderEvent)}
}

func (f *fakeReminderJobStore) CancelPendingRemindersForDocument(_ context.Context, documentID uuid.UUID, _ string) (int64, error) {
	f.cancels = append(f.cancels, documentID)
	return 1, nil
}

func (f *fakeReminderJobStore) InsertReminders(_ context.Context, _, documentID uuid.UUID, events []ReminderEvent) (int, error) {
	f.inserted[documentID] = events
	return len(events), nil
}

func newTestScheduler(documents *fakeDocumentStore, jobs *fakeReminderJobStore, now time.Time) *Scheduler {
	scheduler := NewScheduler(documents, &fakePolicyReader{}, jobs, logger.New("development"))
	scheduler.now = func() time.Time { return now }
	return scheduler
}

func TestResyncDocumentRebuildsSchedule(t *testing.T) {
	documents := newFakeDocumentStore()
	jobs := newFakeReminderJobStore()
	now := mustTime(t, "2026-02-01T00:00:00Z")

	expiry := mustTime(t, "2026-03-15T00:00:00Z")
	document := &Document{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		ExpiryDate: &expiry,
	}
	documents.add(document)

	scheduler := newTestScheduler(documents, jobs, now)

	inserted, err := scheduler.ResyncDocument(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("ResyncDocument: %v", err)
	}

	// Three due-soon thresholds plus the overdue chase.
	if inserted != 4 {
		t.Fatalf("inserted = %d, want 4", inserted)
	}
	if len(jobs.cancels) != 1 || jobs.cancels[0] != document.ID {
		t.Fatalf("pending reminders not replaced: %v", jobs.cancels)
	}
	if documents.statuses[document.ID] != StatusDueSoon {
		t.Fatalf("status = %s, want DUE_SOON", documents.statuses[document.ID])
	}
	if len(jobs.inserted[document.ID]) != 4 {
		t.Fatalf("events inserted = %d, want 4", len(jobs.inserted[document.ID]))
	}
}

func TestResyncDocumentMissingExpiry(t *testing.T) {
	documents := newFakeDocumentStore()
	jobs := newFakeReminderJobStore()
	now := mustTime(t, "2026-02-01T00:00:00Z")

	document := &Document{ID: uuid.New(), TenantID: uuid.New()}
	documents.add(document)

	scheduler := newTestScheduler(documents, jobs, now)

	inserted, err := scheduler.ResyncDocument(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("ResyncDocument: %v", err)
	}

	if inserted != 0 {
		t.Fatalf("inserted = %d, want 0", inserted)
	}
	if documents.statuses[document.ID] != StatusMissing {
		t.Fatalf("status = %s, want MISSING", documents.statuses[document.ID])
	}
	// Stale reminders still get cleared even when nothing replaces them.
	if len(jobs.cancels) != 1 {
		t.Fatal("pending reminders should be canceled")
	}
}

func TestResyncDocumentUnknownIsNoop(t *testing.T) {
	documents := newFakeDocumentStore()
	jobs := newFakeReminderJobStore()
	scheduler := newTestScheduler(documents, jobs, time.Now())

	inserted, err := scheduler.ResyncDocument(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ResyncDocument: %v", err)
	}
	if inserted != 0 || len(jobs.cancels) != 0 {
		t.Fatal("unknown document must resync to nothing")
	}
}

func TestResyncTenantWalksEveryDocument(t *testing.T) {
	documents := newFakeDocumentStore()
	jobs := newFakeReminderJobStore()
	now := mustTime(t, "2026-02-01T00:00:00Z")
	tenantID := uuid.New()

	expiryA := mustTime(t, "2026-03-15T00:00:00Z")
	expiryB := mustTime(t, "2026-07-01T00:00:00Z")
	documents.add(&Document{ID: uuid.New(), TenantID: tenantID, ExpiryDate: &expiryA})
	documents.add(&Document{ID: uuid.New(), TenantID: tenantID, ExpiryDate: &expiryB})

	scheduler := newTestScheduler(documents, jobs, now)

	total, err := scheduler.ResyncTenant(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("ResyncTenant: %v", err)
	}

	// 4 events for the near expiry, 4 for the far one.
	if total != 8 {
		t.Fatalf("total = %d, want 8", total)
	}
	if len(jobs.cancels) != 2 {
		t.Fatalf("expected both documents swept, got %d", len(jobs.cancels))
	}
}
