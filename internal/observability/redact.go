package observability

import "regexp"

// RedactedPlaceholder replaces sensitive data in log output.
const RedactedPlaceholder = "[REDACTED]"

//nolint:gochecknoglobals // compiled once
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),              // OpenAI keys
	regexp.MustCompile(`r8_[a-zA-Z0-9]{20,}`),                     // Replicate tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{16,}`),        // Authorization headers
	regexp.MustCompile(`(?i)token\s+[a-zA-Z0-9._-]{16,}`),         // Token auth headers
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)\s*[:=]\s*[^\s,;"]{8,}`),
	regexp.MustCompile(`(?i)mongodb(\+srv)?://[^\s"]+:[^\s"]+@`), // credentials in connection strings
	regexp.MustCompile(`(?i)redis://[^\s"]*:[^\s"]+@`),
}

// Redact scrubs API keys, bearer tokens and credentials from a string.
func Redact(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}
