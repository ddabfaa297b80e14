// Package voice handles the provider's dial-status callback: record the call,
// and when nobody picked up, open the missed-call triage conversation.
package voice

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the recorded result of an inbound call attempt.
type Outcome string

const (
	OutcomeAnswered Outcome = "ANSWERED"
	OutcomeNoAnswer Outcome = "NO_ANSWER"
	OutcomeBusy     Outcome = "BUSY"
	OutcomeFailed   Outcome = "FAILED"
)

// Call is one recorded inbound call attempt.
type Call struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	CallerPhone    string
	ToPhone        string
	ProviderCallID *string
	DialStatus     *string
	Outcome        Outcome
	Answered       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Classification maps a provider dial status onto our outcome and says
// whether triage should start.
type Classification struct {
	Outcome           Outcome
	Answered          bool
	ShouldStartTriage bool
}

// ClassifyDialStatus folds the provider's dial status into a call outcome.
// Anything unrecognized counts as answered, so triage only starts on the
// statuses known to mean the caller never got through.
func ClassifyDialStatus(statusRaw string) Classification {
	switch strings.ToLower(strings.TrimSpace(statusRaw)) {
	case "no-answer":
		return Classification{Outcome: OutcomeNoAnswer, ShouldStartTriage: true}
	case "busy":
		return Classification{Outcome: OutcomeBusy, ShouldStartTriage: true}
	case "failed":
		return Classification{Outcome: OutcomeFailed, ShouldStartTriage: true}
	}
	return Classification{Outcome: OutcomeAnswered, Answered: true}
}
