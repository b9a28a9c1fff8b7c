// Package source defines the record-source boundary the crawl engine
// drives: one interactive listing session that can search, reveal more
// candidates, open a candidate and answer per-field lookups.
package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/JakeFAU/places-crawler/internal/place"
)

var (
	// ErrNoResults means the listing never appeared after a search.
	ErrNoResults = errors.New("source: no results listing")
	// ErrNoCandidate means the requested candidate index is not visible.
	ErrNoCandidate = errors.New("source: candidate not available")
)

// Field identifies a single-value lookup on the open candidate.
type Field string

// Lookup fields.
const (
	Name        Field = "name"
	Category    Field = "category"
	Rating      Field = "rating"
	ReviewsText Field = "reviews_text"
	Address     Field = "address"
	PlusCode    Field = "plus_code"
	LocatedIn   Field = "located_in"
	Phone       Field = "phone"
	Website     Field = "website"
	OpenStatus  Field = "open_status"
)

// StarRow is the histogram row for the given star count (1..5).
func StarRow(stars int) Field {
	return Field(fmt.Sprintf("stars_%d", stars))
}

// Source is one stateful browsing session. Calls are not safe for
// concurrent use.
type Source interface {
	// Search submits the query and waits for the listing to appear.
	Search(ctx context.Context, query string) error
	// Count returns the number of currently visible candidates.
	Count(ctx context.Context) (int, error)
	// Open focuses candidate index and returns its canonical URL.
	Open(ctx context.Context, index int) (string, error)
	// Scroll asks the listing to reveal more candidates.
	Scroll(ctx context.Context) error
	// Lookup reads one field of the open candidate. ok is false when the
	// field is absent or the lookup failed.
	Lookup(ctx context.Context, f Field) (value string, ok bool)
	// Images returns raw image URLs of the open candidate in page order.
	Images(ctx context.Context) []string
	// Reviewers returns the reviewer sub-records of the open candidate.
	Reviewers(ctx context.Context) []place.Reviewer
	// Close ends the session.
	Close() error
}

var backgroundURL = regexp.MustCompile(`url\("(.*?)"\)`)

// BackgroundImageURL extracts the URL of a CSS background-image style.
func BackgroundImageURL(style string) (string, bool) {
	m := backgroundURL.FindStringSubmatch(style)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}
