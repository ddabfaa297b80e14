package extraction

import (
	"context"
	"regexp"
	"strings"
)

var (
	ukPostcodePattern   = regexp.MustCompile(`(?i)\b([A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2})\b`)
	stopPattern         = regexp.MustCompile(`(?i)\b(stop|unsubscribe|cancel|end|quit|remove me)\b`)
	viewingPattern      = regexp.MustCompile(`(?i)\b(viewing|rent|rental|let|letting|property)\b`)
	maintenancePattern  = regexp.MustCompile(`(?i)\b(repair|maintenance|leak|boiler|heating|plumbing|electrical|fault)\b`)
	generalPattern      = regexp.MustCompile(`(?i)\b(other|general|question|query|enquiry)\b`)
	urgentPattern       = regexp.MustCompile(`(?i)\b(urgent|asap|today|immediately)\b`)
	emergencyPattern    = regexp.MustCompile(`(?i)\b(emergency|danger|fire|gas leak|smell gas|smoke|flood|sparks|electroc|carbon monoxide|co alarm)\b`)
	routinePattern      = regexp.MustCompile(`(?i)\b(routine|normal|non[- ]?urgent)\b`)
	angerKeywordPattern = regexp.MustCompile(`(?i)\b(complaint|lawyer|ombudsman|unsafe|ignored|ridiculous|disgusting|angry)\b`)
	profanityPattern    = regexp.MustCompile(`(?i)\b(fuck|fucking|shit|bastard|damn)\b`)
	namePattern         = regexp.MustCompile(`(?i)\b(i am|i'm|this is|my name is)\s+([a-z][a-z' -]{1,40})`)
	callbackPattern     = regexp.MustCompile(`(?i)\b(callback|call me|ring me|tomorrow|am|pm|morning|afternoon|evening)\b`)
	nonLetterPattern    = regexp.MustCompile(`[^A-Za-z]`)
	lowerPattern        = regexp.MustCompile(`[^A-Z]`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// HeuristicExtractor is the deterministic keyword extractor. It is the
// fallback when no NLP backend is configured or the backend misbehaves.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (e *HeuristicExtractor) Extract(_ context.Context, body string) Signals {
	text := normalizeWhitespace(body)

	intent := heuristicIntent(text)
	postcode := heuristicPostcode(text)

	signals := Signals{
		Stop:         stopPattern.MatchString(text),
		Intent:       intent,
		Postcode:     postcode,
		Severity:     heuristicSeverity(text),
		AngerSignals: angerKeywordPattern.MatchString(text) || profanityPattern.MatchString(text) || isMostlyCaps(text),
		SafetyRisk:   emergencyPattern.MatchString(text),
		Name:         heuristicName(text),
	}

	if intent == IntentViewing && postcode == nil && text != "" {
		signals.AreaOrProperty = &text
	}
	if callbackPattern.MatchString(text) {
		signals.CallbackText = &text
	}
	if intent == IntentMaintenance && text != "" {
		signals.IssueDescription = &text
	}
	if text != "" {
		signals.Summary = &text
	}

	return signals
}

func heuristicIntent(text string) Intent {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1":
		return IntentViewing
	case "2":
		return IntentMaintenance
	case "3":
		return IntentGeneral
	}

	if maintenancePattern.MatchString(text) {
		return IntentMaintenance
	}
	if viewingPattern.MatchString(text) {
		return IntentViewing
	}
	if generalPattern.MatchString(text) {
		return IntentGeneral
	}
	return IntentUnknown
}

func heuristicSeverity(text string) *Severity {
	var severity Severity
	switch {
	case emergencyPattern.MatchString(text):
		severity = SeverityEmergency
	case urgentPattern.MatchString(text):
		severity = SeverityUrgent
	case routinePattern.MatchString(text):
		severity = SeverityRoutine
	default:
		return nil
	}
	return &severity
}

func heuristicName(text string) *string {
	match := namePattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	value := normalizeWhitespace(match[2])
	if len(value) <= 1 {
		return nil
	}
	return &value
}

func heuristicPostcode(text string) *string {
	match := ukPostcodePattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	value := normalizeWhitespace(strings.ToUpper(match[1]))
	return &value
}

// isMostlyCaps flags shouting: at least ten letters, over 85% uppercase.
func isMostlyCaps(text string) bool {
	letters := nonLetterPattern.ReplaceAllString(text, "")
	if len(letters) < 10 {
		return false
	}
	upper := len(lowerPattern.ReplaceAllString(letters, ""))
	return float64(upper)/float64(len(letters)) > 0.85
}

func normalizeWhitespace(value string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
}
