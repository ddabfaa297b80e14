// Package templates resolves the outbound message texts: built-in defaults,
// tenant overrides merged on top, and {{variable}} substitution.
package templates

import (
	"regexp"
	"strings"
)

// Template keys used across the conversation flows and job handlers.
const (
	KeyMissedCallTriage       = "missedCallTriage"
	KeyOptOutConfirm          = "optOutConfirm"
	KeyOutOfArea              = "outOfArea"
	KeyViewingAskName         = "viewingAskName"
	KeyViewingAskArea         = "viewingAskArea"
	KeyViewingAskRequirements = "viewingAskRequirements"
	KeyViewingAskBooking      = "viewingAskBooking"
	KeyViewingBookingLink     = "viewingBookingLink"
	KeyViewingQualified       = "viewingQualified"
	KeyGeneralAskName         = "generalAskName"
	KeyGeneralAskTopic        = "generalAskTopic"
	KeyGeneralAskCallback     = "generalAskCallback"
	KeyGeneralQualified       = "generalQualified"
	KeyMaintenanceAskName     = "maintenanceAskName"
	KeyMaintenanceAskAddress  = "maintenanceAskAddress"
	KeyMaintenanceAskIssue    = "maintenanceAskIssue"
	KeyMaintenanceAskSeverity = "maintenanceAskSeverity"
	KeyMaintenanceLogged      = "maintenanceLogged"
	KeyLeadFollowUpFirst      = "leadFollowUpFirst"
	KeyLeadFollowUpSecond     = "leadFollowUpSecond"
	KeyEmergencySafety        = "emergencySafety"
	KeyCalmDeescalation       = "calmDeescalation"
)

var defaults = map[string]string{
	KeyMissedCallTriage:       "Sorry we missed your call - are you contacting us about: 1) Renting/viewing a property 2) A repair/maintenance issue 3) Something else. Reply 1, 2, or 3.",
	KeyOptOutConfirm:          "You are now opted out and will not receive further automated messages from us.",
	KeyOutOfArea:              "Thanks for your message. It looks like this postcode is outside our current area. We have marked this as out-of-area.",
	KeyViewingAskName:         "Thanks for your interest. Can I take your full name?",
	KeyViewingAskArea:         "Please share your desired area/postcode, or the property reference/address you are enquiring about.",
	KeyViewingAskRequirements: "Please share brief requirements (beds and budget are helpful but optional).",
	KeyViewingAskBooking:      "Would you like to book directly online, or prefer a callback time? Reply with BOOK or share a callback time.",
	KeyViewingBookingLink:     "Please book your viewing here: {{bookingUrlViewings}}",
	KeyViewingQualified:       "Thanks {{name}}. We have logged your details and a colleague will contact you to confirm next steps.",
	KeyGeneralAskName:         "Thanks for contacting us. Can I take your full name?",
	KeyGeneralAskTopic:        "Please share what this is about in one or two lines.",
	KeyGeneralAskCallback:     "Please share the best callback time for you.",
	KeyGeneralQualified:       "Thanks {{name}}. We have logged this and a colleague will get back to you at the requested time.",
	KeyMaintenanceAskName:     "Thanks for reporting this. Can I take your full name?",
	KeyMaintenanceAskAddress:  "Please share the property address or postcode.",
	KeyMaintenanceAskIssue:    "Please describe the issue briefly.",
	KeyMaintenanceAskSeverity: "How severe is this issue? Reply ROUTINE, URGENT, or EMERGENCY.",
	KeyMaintenanceLogged:      "Thanks {{name}}. We have logged your maintenance request and will follow up shortly.",
	KeyLeadFollowUpFirst:      "Just checking in on your enquiry. Reply 1, 2, or 3 so we can route this quickly.",
	KeyLeadFollowUpSecond:     "We are still here to help with your enquiry. Reply with details and we will follow up as soon as possible.",
	KeyEmergencySafety:        "This sounds safety-critical. Please call emergency services if there is immediate danger. A human team member is taking over now.",
	KeyCalmDeescalation:       "Thanks for raising this. We are sorry for the frustration. A human colleague will review and contact you within one business day.",
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Resolve returns the message text for key: tenant overrides win over the
// built-in defaults, placeholders are substituted from vars, and unresolved
// placeholders render as the empty string.
func Resolve(overrides map[string]string, key string, vars map[string]string) string {
	template, ok := overrides[key]
	if !ok || strings.TrimSpace(template) == "" {
		template = defaults[key]
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})

	return strings.TrimSpace(rendered)
}
