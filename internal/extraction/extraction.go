// Package extraction turns raw inbound SMS text into the structured signals
// the conversation state machine consumes. An external NLP backend does the
// heavy lifting when configured; a deterministic keyword extractor always
// runs underneath it so the pipeline degrades rather than fails.
package extraction

import "context"

// Intent is the coarse classification of an enquiry.
type Intent string

const (
	IntentUnknown     Intent = "UNKNOWN"
	IntentViewing     Intent = "VIEWING"
	IntentMaintenance Intent = "MAINTENANCE"
	IntentGeneral     Intent = "GENERAL"
)

// Severity grades a maintenance issue.
type Severity string

const (
	SeverityRoutine   Severity = "ROUTINE"
	SeverityUrgent    Severity = "URGENT"
	SeverityEmergency Severity = "EMERGENCY"
)

// Signals is the structured output extracted from one inbound message.
type Signals struct {
	Stop             bool
	Intent           Intent
	Postcode         *string
	Severity         *Severity
	AngerSignals     bool
	SafetyRisk       bool
	Name             *string
	AreaOrProperty   *string
	CallbackText     *string
	IssueDescription *string
	Summary          *string
	UsedNLP          bool
}

// Extractor produces Signals from a message body.
// Implementations must never return an error to callers for backend outages;
// the composite extractor swallows those and substitutes the heuristic result.
type Extractor interface {
	Extract(ctx context.Context, body string) Signals
}
