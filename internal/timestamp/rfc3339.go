// Package timestamp locates timestamps embedded in free-form log text.
package timestamp

import (
	"regexp"
	"time"
)

var rfc3339Regex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})`)

// FindRFC3339 returns the first RFC 3339 timestamp in text, converted to UTC.
// Only the first candidate is considered: if it does not parse (for example
// month 13), no timestamp is reported.
func FindRFC3339(text string) (time.Time, bool) {
	candidate := rfc3339Regex.FindString(text)
	if candidate == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, candidate)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}
