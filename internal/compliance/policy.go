// Package compliance derives document status from expiry dates and tenant
// policy, and computes the reminder schedule that keeps owners notified.
package compliance

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Status of a compliance document. Always derived, never authoritative.
type Status string

const (
	StatusOK      Status = "OK"
	StatusDueSoon Status = "DUE_SOON"
	StatusOverdue Status = "OVERDUE"
	StatusMissing Status = "MISSING"
)

// ReminderKind distinguishes pre-expiry nudges from post-expiry chasing.
type ReminderKind string

const (
	ReminderDueSoon ReminderKind = "DUE_SOON"
	ReminderOverdue ReminderKind = "OVERDUE"
)

// Policy holds a tenant's reminder thresholds.
type Policy struct {
	DueSoonDays         []int
	OverdueReminderDays int
}

// ReminderEvent is one scheduled notification for a document.
type ReminderEvent struct {
	RunAt         time.Time
	Kind          ReminderKind
	ThresholdDays *int
}

const day = 24 * time.Hour

// DefaultPolicy returns the built-in thresholds: 30/14/7 days before expiry,
// overdue chase every 7 days.
func DefaultPolicy() Policy {
	return Policy{
		DueSoonDays:         []int{30, 14, 7},
		OverdueReminderDays: 7,
	}
}

// ParsePolicy decodes a tenant's compliance policy JSON. Malformed or missing
// input falls back to defaults field by field. Due-soon thresholds are
// deduplicated, clamped to at least one day, and sorted descending.
func ParsePolicy(source json.RawMessage) Policy {
	defaults := DefaultPolicy()
	if len(source) == 0 {
		return defaults
	}

	var raw map[string]any
	if err := json.Unmarshal(source, &raw); err != nil {
		return defaults
	}

	policy := defaults

	if list, ok := raw["dueSoonDays"].([]any); ok {
		seen := make(map[int]struct{})
		days := make([]int, 0, len(list))
		for _, item := range list {
			num, ok := item.(float64)
			if !ok || math.IsNaN(num) || math.IsInf(num, 0) {
				continue
			}
			value := int(math.Floor(num))
			if value < 1 {
				value = 1
			}
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			days = append(days, value)
		}
		if len(days) > 0 {
			sort.Sort(sort.Reverse(sort.IntSlice(days)))
			policy.DueSoonDays = days
		}
	}

	if num, ok := raw["overdueReminderDays"].(float64); ok && !math.IsNaN(num) && !math.IsInf(num, 0) {
		value := int(math.Floor(num))
		if value < 1 {
			value = 1
		}
		policy.OverdueReminderDays = value
	}

	return policy
}

// DeriveStatus classifies a document by its expiry date. A part-day remainder
// counts as a full day, so expiry later today is zero days out.
func DeriveStatus(expiry *time.Time, now time.Time, policy Policy) Status {
	if expiry == nil {
		return StatusMissing
	}

	daysToExpiry := int(math.Ceil(expiry.Sub(now).Hours() / 24))
	if daysToExpiry < 0 {
		return StatusOverdue
	}

	maxThreshold := 0
	for _, d := range policy.DueSoonDays {
		if d > maxThreshold {
			maxThreshold = d
		}
	}
	if daysToExpiry <= maxThreshold {
		return StatusDueSoon
	}

	return StatusOK
}

// ComputeReminderEvents returns the future reminder schedule for a document:
// one DUE_SOON event per threshold still ahead of now, and always exactly one
// OVERDUE event at expiry + overdueReminderDays, clamped forward to now+1s if
// that instant has passed. Events are sorted ascending by run time.
func ComputeReminderEvents(expiry *time.Time, policy Policy, now time.Time) []ReminderEvent {
	if expiry == nil {
		return nil
	}

	events := make([]ReminderEvent, 0, len(policy.DueSoonDays)+1)

	for _, days := range policy.DueSoonDays {
		days := days
		runAt := expiry.Add(-time.Duration(days) * day)
		if runAt.After(now) {
			events = append(events, ReminderEvent{
				RunAt:         runAt,
				Kind:          ReminderDueSoon,
				ThresholdDays: &days,
			})
		}
	}

	overdueRunAt := expiry.Add(time.Duration(policy.OverdueReminderDays) * day)
	if !overdueRunAt.After(now) {
		overdueRunAt = now.Add(time.Second)
	}
	events = append(events, ReminderEvent{
		RunAt: overdueRunAt,
		Kind:  ReminderOverdue,
	})

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].RunAt.Before(events[j].RunAt)
	})

	return events
}
