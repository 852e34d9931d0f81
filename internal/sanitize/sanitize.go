// Package sanitize redacts secrets from log lines and warnings before they
// leave a process boundary.
package sanitize

import "regexp"

// pattern is a precompiled regex and its replacement, compiled once at
// package init rather than per call.
type pattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// patterns covers the secret shapes that can leak through warnings and log
// lines: OpenAI-style API keys, DATABASE_URL/postgres/redis connection
// strings, and the agent API key env assignment.
var patterns = []pattern{
	{
		name:        "openai_secret_key",
		regex:       regexp.MustCompile(`sk-[A-Za-z0-9_-]{10,}`),
		replacement: "sk-***REDACTED***",
	},
	{
		name:        "openai_project_key",
		regex:       regexp.MustCompile(`gpt-[A-Za-z0-9_-]{10,}`),
		replacement: "gpt-***REDACTED***",
	},
	{
		name:        "database_url_assignment",
		regex:       regexp.MustCompile(`(?i)DATABASE_URL=\S+`),
		replacement: "DATABASE_URL=***REDACTED***",
	},
	{
		name:        "postgres_connection_string",
		regex:       regexp.MustCompile(`postgres(?:ql)?://\S+`),
		replacement: "postgres://***REDACTED***",
	},
	{
		name:        "redis_connection_string",
		regex:       regexp.MustCompile(`redis://\S+`),
		replacement: "redis://***REDACTED***",
	},
	{
		name:        "agent_api_key_assignment",
		regex:       regexp.MustCompile(`(?i)AGENT_API_KEY=\S+`),
		replacement: "AGENT_API_KEY=***REDACTED***",
	},
}

// Message masks every known secret shape in msg. Safe to call on already-clean
// text; patterns that do not match are no-ops.
func Message(msg string) string {
	for _, p := range patterns {
		msg = p.regex.ReplaceAllString(msg, p.replacement)
	}
	return msg
}

// Error masks err's message the same way Message does, returning a plain
// string since the sanitized text must never be re-wrapped as a typed error
// a caller might accidentally unwrap to the original secret.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Message(err.Error())
}
