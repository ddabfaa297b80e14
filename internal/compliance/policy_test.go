package compliance

import (
	"encoding/json"
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func TestParsePolicyDefaults(t *testing.T) {
	policy := ParsePolicy(nil)
	if policy.OverdueReminderDays != 7 {
		t.Fatalf("expected overdue days 7, got %d", policy.OverdueReminderDays)
	}
	if len(policy.DueSoonDays) != 3 || policy.DueSoonDays[0] != 30 || policy.DueSoonDays[2] != 7 {
		t.Fatalf("unexpected default due-soon days: %v", policy.DueSoonDays)
	}
}

func TestParsePolicyMalformedFallsBack(t *testing.T) {
	policy := ParsePolicy(json.RawMessage(`{not json`))
	if len(policy.DueSoonDays) != 3 || policy.OverdueReminderDays != 7 {
		t.Fatalf("expected defaults for malformed input, got %+v", policy)
	}
}

func TestParsePolicyNormalizes(t *testing.T) {
	policy := ParsePolicy(json.RawMessage(`{"dueSoonDays": [7, 14, 7, 0, -3], "overdueReminderDays": 14}`))

	// Deduplicated, clamped to >=1, sorted descending.
	want := []int{14, 7, 1}
	if len(policy.DueSoonDays) != len(want) {
		t.Fatalf("expected %v, got %v", want, policy.DueSoonDays)
	}
	for i, v := range want {
		if policy.DueSoonDays[i] != v {
			t.Fatalf("expected %v, got %v", want, policy.DueSoonDays)
		}
	}
	if policy.OverdueReminderDays != 14 {
		t.Fatalf("expected overdue days 14, got %d", policy.OverdueReminderDays)
	}
}

func TestDeriveStatus(t *testing.T) {
	policy := DefaultPolicy()
	now := mustTime(t, "2026-02-01T10:00:00Z")

	tests := []struct {
		name   string
		expiry *time.Time
		want   Status
	}{
		{"no expiry", nil, StatusMissing},
		{"expired yesterday", timePtr(mustTime(t, "2026-01-31T09:00:00Z")), StatusOverdue},
		{"expires later today", timePtr(mustTime(t, "2026-02-01T18:00:00Z")), StatusDueSoon},
		{"expires within max threshold", timePtr(mustTime(t, "2026-02-20T10:00:00Z")), StatusDueSoon},
		{"expires at exactly 30 days", timePtr(mustTime(t, "2026-03-03T10:00:00Z")), StatusDueSoon},
		{"expires far out", timePtr(mustTime(t, "2026-06-01T10:00:00Z")), StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.expiry, now, policy); got != tc.want {
				t.Fatalf("DeriveStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func timePtr(v time.Time) *time.Time { return &v }

func TestComputeReminderEventsFullSchedule(t *testing.T) {
	policy := DefaultPolicy()
	now := mustTime(t, "2026-02-01T00:00:00Z")
	expiry := mustTime(t, "2026-03-15T00:00:00Z")

	events := ComputeReminderEvents(&expiry, policy, now)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	// Three due-soon events ascending, overdue strictly last.
	wantThresholds := []int{30, 14, 7}
	for i, threshold := range wantThresholds {
		event := events[i]
		if event.Kind != ReminderDueSoon {
			t.Fatalf("event %d kind = %s, want DUE_SOON", i, event.Kind)
		}
		if event.ThresholdDays == nil || *event.ThresholdDays != threshold {
			t.Fatalf("event %d threshold = %v, want %d", i, event.ThresholdDays, threshold)
		}
		wantRunAt := expiry.Add(-time.Duration(threshold) * 24 * time.Hour)
		if !event.RunAt.Equal(wantRunAt) {
			t.Fatalf("event %d runAt = %s, want %s", i, event.RunAt, wantRunAt)
		}
	}

	overdue := events[3]
	if overdue.Kind != ReminderOverdue {
		t.Fatalf("last event kind = %s, want OVERDUE", overdue.Kind)
	}
	if overdue.ThresholdDays != nil {
		t.Fatalf("overdue threshold should be nil, got %v", *overdue.ThresholdDays)
	}
	wantOverdue := expiry.Add(7 * 24 * time.Hour)
	if !overdue.RunAt.Equal(wantOverdue) {
		t.Fatalf("overdue runAt = %s, want %s", overdue.RunAt, wantOverdue)
	}

	for i := 1; i < len(events); i++ {
		if events[i].RunAt.Before(events[i-1].RunAt) {
			t.Fatalf("events not sorted ascending at index %d", i)
		}
	}
}

func TestComputeReminderEventsPastThresholdsSkipped(t *testing.T) {
	policy := DefaultPolicy()
	expiry := mustTime(t, "2026-03-15T00:00:00Z")
	now := mustTime(t, "2026-03-10T00:00:00Z")

	events := ComputeReminderEvents(&expiry, policy, now)
	if len(events) != 1 {
		t.Fatalf("expected only the overdue event, got %d events", len(events))
	}
	if events[0].Kind != ReminderOverdue {
		t.Fatalf("expected OVERDUE event, got %s", events[0].Kind)
	}
}

func TestComputeReminderEventsOverdueClampedForward(t *testing.T) {
	policy := DefaultPolicy()
	expiry := mustTime(t, "2025-01-01T00:00:00Z")
	now := mustTime(t, "2026-02-01T00:00:00Z")

	events := ComputeReminderEvents(&expiry, policy, now)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].RunAt.After(now) {
		t.Fatalf("overdue runAt %s should be clamped after now %s", events[0].RunAt, now)
	}
}

func TestComputeReminderEventsNoExpiry(t *testing.T) {
	if events := ComputeReminderEvents(nil, DefaultPolicy(), time.Now()); events != nil {
		t.Fatalf("expected nil events for missing expiry, got %v", events)
	}
}
