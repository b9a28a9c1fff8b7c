// Package identity derives the durable deduplication key of a place.
package identity

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/JakeFAU/places-crawler/internal/place"
)

// Separator joins the two folded halves of a key. Occurrences inside a
// field are escaped so distinct pairs never collide.
const Separator = "|"

var escaper = strings.NewReplacer(`\`, `\\`, Separator, `\`+Separator)

// Key returns the identity key for a (name, address) pair. Both sides are
// trimmed and case-folded independently.
func Key(name, address string) string {
	return fold(name) + Separator + fold(address)
}

// Complete reports whether both halves carry a real value. Blank values and
// the unknown sentinel count as absent.
func Complete(name, address string) bool {
	return present(name) && present(address)
}

func fold(s string) string {
	return escaper.Replace(cases.Fold().String(strings.TrimSpace(s)))
}

func present(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != place.Unknown
}
