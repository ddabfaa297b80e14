package extraction

import (
	"context"
	"testing"
)

func extract(t *testing.T, body string) Signals {
	t.Helper()
	return NewHeuristicExtractor().Extract(context.Background(), body)
}

func TestMenuReplies(t *testing.T) {
	tests := []struct {
		body string
		want Intent
	}{
		{"1", IntentViewing},
		{"2", IntentMaintenance},
		{"3", IntentGeneral},
		{" 2 ", IntentMaintenance},
	}
	for _, tc := range tests {
		if got := extract(t, tc.body).Intent; got != tc.want {
			t.Fatalf("intent for %q = %s, want %s", tc.body, got, tc.want)
		}
	}
}

func TestStopDetection(t *testing.T) {
	if !extract(t, "STOP").Stop {
		t.Fatal("STOP should set the stop signal")
	}
	if !extract(t, "please remove me from your list").Stop {
		t.Fatal("remove me should set the stop signal")
	}
	if extract(t, "my boiler stopped working").Stop {
		t.Fatal("'stopped' must not trip the stop word boundary")
	}
}

func TestMaintenanceBeatsViewing(t *testing.T) {
	signals := extract(t, "the boiler in my rental property is leaking")
	if signals.Intent != IntentMaintenance {
		t.Fatalf("intent = %s, want MAINTENANCE", signals.Intent)
	}
	if signals.IssueDescription == nil {
		t.Fatal("maintenance message should carry an issue description")
	}
}

func TestSafetyRiskAndSeverity(t *testing.T) {
	signals := extract(t, "I can smell gas in the kitchen")
	if !signals.SafetyRisk {
		t.Fatal("gas smell should flag a safety risk")
	}
	if signals.Severity == nil || *signals.Severity != SeverityEmergency {
		t.Fatalf("severity = %v, want EMERGENCY", signals.Severity)
	}
}

func TestSeverityKeywords(t *testing.T) {
	if s := extract(t, "it's urgent, please come today").Severity; s == nil || *s != SeverityUrgent {
		t.Fatalf("severity = %v, want URGENT", s)
	}
	if s := extract(t, "ROUTINE").Severity; s == nil || *s != SeverityRoutine {
		t.Fatalf("severity = %v, want ROUTINE", s)
	}
	if s := extract(t, "hello there").Severity; s != nil {
		t.Fatalf("severity = %v, want nil", *s)
	}
}

func TestAngerSignals(t *testing.T) {
	if !extract(t, "this is ridiculous, I'm filing a complaint").AngerSignals {
		t.Fatal("complaint keywords should flag anger")
	}
	if !extract(t, "WHY IS NOBODY ANSWERING MY MESSAGES").AngerSignals {
		t.Fatal("shouting should flag anger")
	}
	if extract(t, "OK").AngerSignals {
		t.Fatal("short uppercase replies are not shouting")
	}
}

func TestNameExtraction(t *testing.T) {
	signals := extract(t, "Hi, my name is Jane Smith")
	if signals.Name == nil || *signals.Name != "Jane Smith" {
		t.Fatalf("name = %v, want Jane Smith", signals.Name)
	}
	if extract(t, "what time is it").Name != nil {
		t.Fatal("no name phrase should yield nil")
	}
}

func TestPostcodeExtraction(t *testing.T) {
	signals := extract(t, "looking to rent near sw1a 1aa please")
	if signals.Postcode == nil || *signals.Postcode != "SW1A 1AA" {
		t.Fatalf("postcode = %v, want SW1A 1AA", signals.Postcode)
	}
}

func TestCallbackText(t *testing.T) {
	signals := extract(t, "please call me tomorrow morning")
	if signals.CallbackText == nil {
		t.Fatal("callback phrasing should populate callback text")
	}
}
