// Package redact scrubs sensitive fragments from strings before they
// reach logs or stored failure notes. Handler errors routinely embed
// provider connection strings, API credentials, and recipient email
// addresses; failure notes are operator-visible and must not leak them.
package redact

import "regexp"

// Redaction placeholders
const (
	credentialPlaceholder = "[REDACTED_CREDENTIAL]"
	connStringPlaceholder = "[REDACTED_CONNECTION]"
	emailPlaceholder      = "[REDACTED_EMAIL]"
)

var (
	// Connection strings with inline credentials
	connStringRegex = regexp.MustCompile(`(?i)(postgres|postgresql|mysql|redis|amqp|https?)://[^@\s]+@[^\s]+`)

	// Credential and token assignments
	credentialRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|password|passwd|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// Email addresses (sequence recipients, CRM contacts)
	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// String scrubs all known sensitive patterns from s.
func String(s string) string {
	s = connStringRegex.ReplaceAllString(s, connStringPlaceholder)
	s = credentialRegex.ReplaceAllString(s, "$1$2"+credentialPlaceholder)
	s = emailRegex.ReplaceAllString(s, emailPlaceholder)
	return s
}

// Error scrubs an error's text. Returns the empty string for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
