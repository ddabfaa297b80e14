// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "GB"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Variants returns lookup candidates for a raw inbound number: the raw value,
// its trimmed form, the E.164 form and the form without a leading plus.
// Providers are inconsistent about the exact shape they post back.
func Variants(raw string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)

	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(raw)
	add(strings.TrimSpace(raw))

	normalized := NormalizeE164(raw)
	add(normalized)
	if strings.HasPrefix(normalized, "+") {
		add(strings.TrimPrefix(normalized, "+"))
	} else if normalized != "" {
		add("+" + normalized)
	}

	return out
}
