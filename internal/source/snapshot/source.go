// Package snapshot replays a saved listing page with goquery. Each card in
// the page links to a detail panel marked with data-snapshot-place whose
// data-url matches the card href; scrolling reveals PageSize more cards.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/source"
)

// DefaultPageSize is the number of cards visible before the first scroll.
const DefaultPageSize = 20

// Attributes understood on snapshot elements.
const (
	PanelAttr     = "data-snapshot-place"
	PanelURLAttr  = "data-url"
	OpenErrorAttr = "data-open-error"
)

var _ source.Source = (*Source)(nil)

// Source implements source.Source over a parsed HTML document.
type Source struct {
	doc       *goquery.Document
	cards     *goquery.Selection
	pageSize int
	scrolls  int
	searched bool
	current  *goquery.Selection
}

// Open parses the snapshot file at path.
func Open(path string, pageSize int) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return New(f, pageSize)
}

// New parses a snapshot from r.
func New(r io.Reader, pageSize int) (*Source, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Source{
		doc:      doc,
		cards:    doc.Find(source.CardSelector),
		pageSize: pageSize,
		current:  doc.Find("#__none__"),
	}, nil
}

// Search succeeds when the snapshot holds at least one card. The query is
// not interpreted.
func (s *Source) Search(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cards.Length() == 0 {
		return source.ErrNoResults
	}
	s.searched = true
	return nil
}

// Count returns the number of cards revealed so far.
func (s *Source) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !s.searched {
		return 0, nil
	}
	return min(s.cards.Length(), s.pageSize*(s.scrolls+1)), nil
}

// Open focuses the detail panel of card index.
func (s *Source) Open(ctx context.Context, index int) (string, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= n {
		return "", fmt.Errorf("card %d: %w", index, source.ErrNoCandidate)
	}
	card := s.cards.Eq(index)
	if reason, bad := card.Attr(OpenErrorAttr); bad {
		return "", fmt.Errorf("card %d: %s", index, reason)
	}
	href, ok := card.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", fmt.Errorf("card %d: %w", index, source.ErrNoCandidate)
	}
	s.current = s.doc.Find("[" + PanelAttr + "]").FilterFunction(func(_ int, panel *goquery.Selection) bool {
		u, _ := panel.Attr(PanelURLAttr)
		return u == href
	}).First()
	return href, nil
}

// Scroll reveals another page of cards.
func (s *Source) Scroll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.scrolls++
	return nil
}

// Lookup reads a field from the focused panel.
func (s *Source) Lookup(_ context.Context, f source.Field) (string, bool) {
	sel, ok := source.SelectorFor(f)
	if !ok {
		return "", false
	}
	return read(s.current.Find(sel.CSS).First(), sel.Attr)
}

// Images returns every image URL of the focused panel in page order. The
// engine filters thumbnails and applies the image cap.
func (s *Source) Images(context.Context) []string {
	var out []string
	s.take(source.GalleryImageSelector, func(el *goquery.Selection) {
		if v, ok := read(el, "src"); ok {
			out = append(out, v)
		}
	})
	s.take(source.ReviewImageSelector, func(el *goquery.Selection) {
		if style, ok := read(el, "style"); ok {
			if u, ok := source.BackgroundImageURL(style); ok {
				out = append(out, u)
			}
		}
	})
	s.take(source.StreetViewSelector, func(el *goquery.Selection) {
		if v, ok := read(el, "src"); ok {
			out = append(out, v)
		}
	})
	return out
}

// Reviewers returns the reviewer blocks of the focused panel.
func (s *Source) Reviewers(context.Context) []place.Reviewer {
	var out []place.Reviewer
	s.current.Find(source.ReviewBlockSelector).Each(func(_ int, block *goquery.Selection) {
		out = append(out, place.Reviewer{
			Name:       text(block.Find(source.ReviewerNameSelector).First(), ""),
			ProfileURL: text(block.Find(source.ReviewerProfileSelector).First(), source.ReviewerProfileAttr),
		})
	})
	return out
}

// Close is a no-op.
func (s *Source) Close() error {
	return nil
}

func (s *Source) take(sel string, fn func(*goquery.Selection)) {
	s.current.Find(sel).Each(func(_ int, el *goquery.Selection) {
		fn(el)
	})
}

func read(el *goquery.Selection, attr string) (string, bool) {
	if el.Length() == 0 {
		return "", false
	}
	if attr == "" {
		v := strings.TrimSpace(el.Text())
		return v, v != ""
	}
	v, ok := el.Attr(attr)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func text(el *goquery.Selection, attr string) place.Text {
	if v, ok := read(el, attr); ok {
		return place.Found(v)
	}
	return place.Missing()
}
