// Package tenants holds the tenant routing/configuration records.
// A tenant is a letting agency: its inbound number, notification numbers,
// postcode coverage and per-tenant overrides for templates and compliance
// policy.
package tenants

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tenant is the routing/config row for one agency.
type Tenant struct {
	ID                      uuid.UUID
	Name                    string
	InboundPhone            string
	ForwardToPhone          string
	OwnerNotificationPhone  string
	Timezone                string
	AllowedPostcodePrefixes []string
	BookingURLViewings      *string
	MessageTemplatesJSON    json.RawMessage
	CompliancePolicyJSON    json.RawMessage
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// TemplateOverrides decodes the tenant's message-template overrides.
// Malformed JSON and non-string values are ignored.
func (t *Tenant) TemplateOverrides() map[string]string {
	if len(t.MessageTemplatesJSON) == 0 {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(t.MessageTemplatesJSON, &raw); err != nil {
		return nil
	}

	out := make(map[string]string, len(raw))
	for key, value := range raw {
		if s, ok := value.(string); ok && s != "" {
			out[key] = s
		}
	}
	return out
}

// Location resolves the tenant's IANA time zone, defaulting to Europe/London.
func (t *Tenant) Location() *time.Location {
	name := t.Timezone
	if name == "" {
		name = "Europe/London"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("UTC", 0)
	}
	return loc
}
