package store

import (
	"regexp"
	"strings"
)

var (
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	spaces     = regexp.MustCompile(`\s+`)
)

// Sanitize maps a query to a stable table name: lower-cased, stripped of
// everything but letters, digits, underscores, whitespace and hyphens, with
// whitespace runs collapsed to one underscore. It is idempotent.
func Sanitize(query string) string {
	s := strings.ToLower(strings.TrimSpace(query))
	s = disallowed.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return spaces.ReplaceAllString(s, "_")
}
