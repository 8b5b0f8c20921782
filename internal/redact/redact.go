// Package redact strips sensitive values from strings before they are
// logged. Gateway errors routinely embed backend URLs, e-mail addresses,
// bearer tokens and confirmation codes; none of those may reach a log line
// verbatim.
package redact

import "regexp"

// Placeholders substituted for redacted values.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedEmailPlaceholder      = "[REDACTED_EMAIL]"
	RedactedCodePlaceholder       = "[REDACTED_CODE]"
	RedactedURLCredsPlaceholder   = "[REDACTED_URL_CREDENTIALS]@"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Order matters: JWTs are removed before the generic key pattern can
// swallow them, and URL credentials before e-mail addresses.
var rules = []rule{
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), RedactedJWTPlaceholder},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/=]+`), "Bearer " + RedactionPlaceholder},
	{regexp.MustCompile(`(?i)\b(redis|rediss|postgres|postgresql)://[^@\s]+@`), "${1}://" + RedactedURLCredsPlaceholder},
	{regexp.MustCompile(`(?i)(password|passwd|pwd|pass)(["']?\s*[=:]\s*["']?)[^"'&,\s}]{1,}`), "${1}${2}" + RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|signature)(["']?\s*[=:]\s*["']?)[A-Za-z0-9_\-.~+/]{8,}`), "${1}${2}" + RedactedKeyPlaceholder},
	{regexp.MustCompile(`(AKIA|ASIA)[A-Z0-9]{12,}`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`(?i)(confirm_code|code)(["']?\s*[=:]\s*["']?)\d{6}\b`), "${1}${2}" + RedactedCodePlaceholder},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), RedactedEmailPlaceholder},
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
