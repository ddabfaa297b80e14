// Package webhook receives the SMS/voice provider callbacks and routes them
// into the conversation and voice services.
package webhook

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const emptyTwiml = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func escapeXml(value string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(value))
	return b.String()
}

// dialForwardTwiml tells the provider to forward the call and report the
// outcome to the dial-status callback.
func dialForwardTwiml(forwardToPhone, statusCallbackURL string, timeoutSeconds int) string {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}
	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<Response>`+
			`<Dial timeout="%d" action="%s" method="POST">`+
			`<Number>%s</Number>`+
			`</Dial>`+
			`</Response>`,
		timeoutSeconds, escapeXml(statusCallbackURL), escapeXml(forwardToPhone),
	)
}
