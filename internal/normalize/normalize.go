// Package normalize canonicalizes failure messages so that messages which
// differ only in volatile details compare equal.
package normalize

import (
	"regexp"
	"strings"
)

// Placeholder tokens substituted for volatile substrings.
const (
	TokenDateTime = "{DATETIME}"
	TokenTime     = "{TIME}"
	TokenGUID     = "{GUID}"
	TokenNumber   = "{N}"
	TokenPath     = "{PATH}"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

// rules run in order on the lower-cased message. Date and time patterns come
// before the number rule, which would otherwise consume them piecemeal.
var rules = []rule{
	// 2026-01-25t10:30:45.123+02:00, 2026-01-25 10:30, 2026-01-25
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[t ]\d{1,2}:\d{2}(?::\d{2})?(?:[.,]\d+)?(?:z|[+-]\d{2}:?\d{2})?)?`), TokenDateTime},
	// 20260125t103045z, 20260125_103045, 20260125-103045
	{regexp.MustCompile(`\b\d{8}[t_-]?\d{6}z?\b`), TokenDateTime},
	// 01/25/2026 10:30:45 pm
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}(?:,? \d{1,2}:\d{2}(?::\d{2})?(?: ?[ap]m)?)?`), TokenDateTime},
	{regexp.MustCompile(`\b\d{1,2}:\d{2}:\d{2}(?:\.\d+)?\b`), TokenTime},
	{regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), TokenGUID},
	{regexp.MustCompile(`\d+`), TokenNumber},
	// c:\work\run{N}\out.log, \\share\logs
	{regexp.MustCompile(`\b[a-z]:\\[^\s"'<>|]*|\\\\[^\s"'<>|]+`), TokenPath},
	// /var/lib/agent/run.log at the start of a token
	{regexp.MustCompile(`(^|[\s"'(=\[])/[^\s"'()<>\[\]]+`), "${1}" + TokenPath},
}

var whitespace = regexp.MustCompile(`\s+`)

// Message returns the canonical form of a failure message.
func Message(message string) string {
	s := strings.ToLower(message)
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
