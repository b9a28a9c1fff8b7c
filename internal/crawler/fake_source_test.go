package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/source"
)

// fakeSource reveals pageSize more cards per scroll.
type fakeSource struct {
	cards      []string
	pageSize   int
	scrolls    int
	openFail   map[int]bool
	searchErrs []error
	searches   int
	fields     map[string]map[source.Field]string
	images     []string
	onOpen     func(index int)

	current string
	opened  []int
}

func newFakeSource(n int) *fakeSource {
	cards := make([]string, n)
	fields := make(map[string]map[source.Field]string, n)
	for i := range cards {
		url := fmt.Sprintf("https://maps.example.com/maps/place/p%d/@21.17%d,72.83%d,17z", i, i, i)
		cards[i] = url
		fields[url] = map[source.Field]string{
			source.Name:        fmt.Sprintf("Place %d", i),
			source.Address:     fmt.Sprintf("%d Ring Road", i),
			source.ReviewsText: "(1,204)",
		}
	}
	return &fakeSource{cards: cards, pageSize: len(cards), fields: fields, openFail: map[int]bool{}}
}

func (f *fakeSource) Search(context.Context, string) error {
	f.searches++
	if len(f.searchErrs) > 0 {
		err := f.searchErrs[0]
		f.searchErrs = f.searchErrs[1:]
		return err
	}
	return nil
}

func (f *fakeSource) Count(context.Context) (int, error) {
	return min(len(f.cards), f.pageSize*(f.scrolls+1)), nil
}

func (f *fakeSource) Open(_ context.Context, index int) (string, error) {
	f.opened = append(f.opened, index)
	if f.onOpen != nil {
		f.onOpen(index)
	}
	if f.openFail[index] {
		return "", errors.New("click intercepted")
	}
	if index >= len(f.cards) {
		return "", source.ErrNoCandidate
	}
	f.current = f.cards[index]
	return f.current, nil
}

func (f *fakeSource) Scroll(context.Context) error {
	f.scrolls++
	return nil
}

func (f *fakeSource) Lookup(_ context.Context, field source.Field) (string, bool) {
	v, ok := f.fields[f.current][field]
	return v, ok
}

func (f *fakeSource) Images(context.Context) []string {
	return f.images
}

func (f *fakeSource) Reviewers(context.Context) []place.Reviewer {
	return []place.Reviewer{{Name: place.Found("Asha"), ProfileURL: place.Missing()}}
}

func (f *fakeSource) Close() error {
	return nil
}

// sleepRecorder records every pause without waiting.
type sleepRecorder struct {
	pauses []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.pauses = append(s.pauses, d)
	return ctx.Err()
}
