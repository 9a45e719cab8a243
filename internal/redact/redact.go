// Package redact strips credentials and secret material from text before it
// is written to the audit trail. Transcript content stored by the pipeline is
// not redacted — the audit log is a secondary copy and must not become a
// second place secrets leak from.
package redact

import "regexp"

var sensitivePatterns = []*regexp.Regexp{
	// Cloud credentials
	regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// GitHub tokens
	regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`),
	regexp.MustCompile(`gh[poursa]_[A-Za-z0-9]{36}`),

	// Generic API keys and tokens
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|secretkey|secret-key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_-]{20,}`),

	// Private key material
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Basic auth embedded in URLs
	regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`),

	// Vendor token formats
	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),
	regexp.MustCompile(`sk_live_[0-9a-zA-Z]{24}`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}`),

	// Password-style assignments
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

const placeholder = "[REDACTED]"

// Redact replaces every recognized secret in input with a placeholder.
// Idempotent: the placeholder matches none of the patterns.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, placeholder)
	}
	return result
}
