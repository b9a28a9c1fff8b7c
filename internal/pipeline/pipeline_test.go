package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/crawler"
	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/progress"
	"github.com/JakeFAU/places-crawler/internal/source"
	"github.com/JakeFAU/places-crawler/internal/source/snapshot"
	"github.com/JakeFAU/places-crawler/internal/storage"
	"github.com/JakeFAU/places-crawler/internal/storage/memory"
	"github.com/JakeFAU/places-crawler/internal/store"
)

// stepClock advances one second per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type card struct {
	url       string
	name      string
	address   string
	openError bool
}

func listing(cards ...card) string {
	var b strings.Builder
	b.WriteString("<html><body><div role=\"feed\">")
	for _, c := range cards {
		if c.openError {
			fmt.Fprintf(&b, `<a href="%s" data-open-error="detached">x</a>`, c.url)
			continue
		}
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, c.url, c.name)
	}
	b.WriteString("</div>")
	for _, c := range cards {
		fmt.Fprintf(&b, `<section data-snapshot-place data-url="%s"><h1 class="DUwDvf">%s</h1>`, c.url, c.name)
		if c.address != "" {
			fmt.Fprintf(&b, `<button data-item-id="address"><div class="Io6YTe">%s</div></button>`, c.address)
		}
		b.WriteString(`<button data-item-id="phone:tel:1"><div class="Io6YTe">0261 000 000</div></button></section>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func distinctCards(n int) []card {
	out := make([]card, n)
	for i := range out {
		out[i] = card{
			url:     fmt.Sprintf("https://maps.example.com/maps/place/p%d/@21.1%d,72.8%d,17z", i, i, i),
			name:    fmt.Sprintf("Cafe %d", i),
			address: fmt.Sprintf("%d Main St", i),
		}
	}
	return out
}

func newEngine(t *testing.T, html string) *crawler.Engine {
	t.Helper()
	src, err := snapshot.New(strings.NewReader(html), 3)
	require.NoError(t, err)
	cfg := crawler.DefaultConfig()
	cfg.MaxScrolls = 2
	e, err := crawler.NewEngine(cfg, src, zap.NewNop(),
		crawler.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		crawler.WithDelay(func(lo, _ time.Duration) time.Duration { return lo }),
	)
	require.NoError(t, err)
	return e
}

func newStore(t *testing.T, table storage.Table) *store.Store {
	t.Helper()
	st, err := store.New(context.Background(), table, zap.NewNop())
	require.NoError(t, err)
	return st
}

func newPipeline(t *testing.T, e *crawler.Engine, st *store.Store, opts Options) *Pipeline {
	t.Helper()
	p, err := New(e, st, opts, &stepClock{now: time.Unix(0, 0)}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestRunStopsAtMaxPlaces(t *testing.T) {
	t.Parallel()
	table := memory.NewTable("cafe_in_surat")
	st := newStore(t, table)
	p := newPipeline(t, newEngine(t, listing(distinctCards(8)...)), st, Options{})

	res, err := p.Run(context.Background(), crawler.Request{Query: "Cafe in Surat", MaxPlaces: 5})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, Counters{Fetched: 5, Saved: 5}, res.Counters)
	assert.Equal(t, 5, st.RowCount())
	assert.Len(t, table.Rows(), 5)
	assert.Equal(t, PhaseFinished, p.Snapshot().Phase)
	assert.Equal(t, 5, p.Snapshot().Result.Counters.Saved)
}

func TestRunCountsRejections(t *testing.T) {
	t.Parallel()
	cards := []card{
		{url: "https://maps.example.com/maps/place/a", name: "Joe's Cafe", address: "123 Main St"},
		{url: "https://maps.example.com/maps/place/a?hl=en", name: "JOE'S CAFE", address: " 123 Main St "},
		{url: "https://maps.example.com/maps/place/b", name: "No Address"},
		{url: "https://maps.example.com/maps/place/c", openError: true},
		{url: "https://maps.example.com/maps/place/a", name: "Joe's Cafe", address: "123 Main St"},
		{url: "https://maps.example.com/maps/place/d", name: "Blue Door", address: "9 Ring Rd"},
	}
	st := newStore(t, memory.NewTable("q"))
	p := newPipeline(t, newEngine(t, listing(cards...)), st, Options{})

	res, err := p.Run(context.Background(), crawler.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, Counters{Fetched: 4, Saved: 2, Duplicates: 1, Incomplete: 1, Failed: 1}, res.Counters)
	assert.True(t, st.Contains("joe's cafe", "123 main st"))
	assert.Equal(t, 2, st.RowCount())
}

func TestRunResumeSkipsStoredPlaces(t *testing.T) {
	t.Parallel()
	table := memory.NewTable("q")
	html := listing(distinctCards(7)...)

	first := newPipeline(t, newEngine(t, html), newStore(t, table), Options{})
	res, err := first.Run(context.Background(), crawler.Request{Query: "q", MaxPlaces: 4})
	require.NoError(t, err)
	require.Equal(t, 4, res.Counters.Saved)

	st := newStore(t, table)
	require.Equal(t, 4, st.RowCount())
	second := newPipeline(t, newEngine(t, html), st, Options{})
	res, err = second.Run(context.Background(), crawler.Request{Query: "q", Skip: st.RowCount()})
	require.NoError(t, err)
	assert.Equal(t, Counters{Fetched: 3, Saved: 3, Skipped: 4}, res.Counters)
	assert.Equal(t, 7, st.RowCount())
}

func TestRunWithoutSkipDetectsDuplicatesAcrossRuns(t *testing.T) {
	t.Parallel()
	table := memory.NewTable("q")
	html := listing(distinctCards(3)...)

	_, err := newPipeline(t, newEngine(t, html), newStore(t, table), Options{}).
		Run(context.Background(), crawler.Request{Query: "q"})
	require.NoError(t, err)

	st := newStore(t, table)
	res, err := newPipeline(t, newEngine(t, html), st, Options{}).
		Run(context.Background(), crawler.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Counters.Duplicates)
	assert.Zero(t, res.Counters.Saved)
	assert.Equal(t, 3, st.RowCount())
}

func TestRunFieldSelection(t *testing.T) {
	t.Parallel()
	st := newStore(t, memory.NewTable("q"))
	p := newPipeline(t, newEngine(t, listing(distinctCards(1)...)), st, Options{Fields: []string{place.FieldPhone}})

	_, err := p.Run(context.Background(), crawler.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{place.FieldName, place.FieldAddress, place.FieldPhone}, st.Header())
}

func TestRunFullCatalogHeader(t *testing.T) {
	t.Parallel()
	st := newStore(t, memory.NewTable("q"))
	p := newPipeline(t, newEngine(t, listing(distinctCards(1)...)), st, Options{ImageColumns: 2})

	_, err := p.Run(context.Background(), crawler.Request{Query: "q"})
	require.NoError(t, err)
	header := st.Header()
	assert.Contains(t, header, "Image 1")
	assert.Contains(t, header, "Image 2")
	assert.NotContains(t, header, "Image 3")
	assert.Contains(t, header, place.FieldStarBreakdown)
}

// cancelingTable cancels the run after its first successful append.
type cancelingTable struct {
	*memory.Table
	cancel context.CancelFunc
}

func (c *cancelingTable) Append(ctx context.Context, header, row []string, grew bool) error {
	err := c.Table.Append(ctx, header, row, grew)
	c.cancel()
	return err
}

func TestRunInterrupted(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	table := &cancelingTable{Table: memory.NewTable("q"), cancel: cancel}
	st := newStore(t, table)
	p := newPipeline(t, newEngine(t, listing(distinctCards(5)...)), st, Options{})

	res, err := p.Run(ctx, crawler.Request{Query: "q", Auto: true})
	require.NoError(t, err, "cancellation is a clean stop")
	assert.Equal(t, OutcomeInterrupted, res.Outcome)
	assert.Equal(t, 1, res.Counters.Saved)
	assert.Equal(t, 1, st.RowCount())
	assert.Len(t, table.Rows(), 1)
}

type failingTable struct {
	*memory.Table
}

func (failingTable) Append(context.Context, []string, []string, bool) error {
	return errors.New("disk full")
}

func TestRunStorageFailureIsFatal(t *testing.T) {
	t.Parallel()
	st := newStore(t, failingTable{Table: memory.NewTable("q")})
	p := newPipeline(t, newEngine(t, listing(distinctCards(3)...)), st, Options{})

	res, err := p.Run(context.Background(), crawler.Request{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, res.Counters.Fetched)
	assert.Zero(t, res.Counters.Saved)
	assert.Zero(t, st.RowCount())
}

func TestRunStartupFailure(t *testing.T) {
	t.Parallel()
	st := newStore(t, memory.NewTable("q"))
	p := newPipeline(t, newEngine(t, "<html><body></body></html>"), st, Options{})

	res, err := p.Run(context.Background(), crawler.Request{Query: "q"})
	require.ErrorIs(t, err, crawler.ErrStartup)
	require.ErrorIs(t, err, source.ErrNoResults)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, st.RowCount())
}

func TestResultRate(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 30.0, Result{Counters: Counters{Saved: 15}, Elapsed: 30 * time.Second}.Rate(), 1e-9)
	assert.Zero(t, Result{Counters: Counters{Saved: 3}}.Rate())
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := New(nil, nil, Options{}, nil, nil)
	require.Error(t, err)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) add(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func TestRunEmitsEvents(t *testing.T) {
	t.Parallel()
	cards := distinctCards(2)
	cards = append(cards, cards[0])
	cards[2].url += "?hl=en"

	rec := &recordingEmitter{}
	st := newStore(t, memory.NewTable("cafe"))
	p := newPipeline(t, newEngine(t, listing(cards...)), st, Options{RunID: "run-1", Events: progress.EmitterFunc(rec.add)})

	res, err := p.Run(context.Background(), crawler.Request{Query: "Cafe"})
	require.NoError(t, err)
	require.Equal(t, OutcomeExhausted, res.Outcome)

	stages := make([]progress.Stage, 0, len(rec.events))
	for _, evt := range rec.events {
		assert.Equal(t, "run-1", evt.RunID)
		assert.False(t, evt.TS.IsZero())
		require.NoError(t, evt.Validate())
		stages = append(stages, evt.Stage)
	}
	assert.Equal(t, []progress.Stage{
		progress.StageRunStart, progress.StagePlace, progress.StagePlace, progress.StagePlace, progress.StageRunDone,
	}, stages)
	assert.Equal(t, store.Duplicate.String(), rec.events[3].Outcome)
	assert.Equal(t, "exhausted", rec.events[4].Outcome)
	assert.Equal(t, 2, rec.events[4].Saved)
}

func TestRunEmitsErrorEvent(t *testing.T) {
	t.Parallel()
	rec := &recordingEmitter{}
	st := newStore(t, memory.NewTable("empty"))
	p := newPipeline(t, newEngine(t, "<html><body></body></html>"), st, Options{RunID: "run-1", Events: progress.EmitterFunc(rec.add)})

	_, err := p.Run(context.Background(), crawler.Request{Query: "Nothing"})
	require.Error(t, err)
	require.Len(t, rec.events, 2)
	last := rec.events[1]
	assert.Equal(t, progress.StageRunError, last.Stage)
	assert.Equal(t, "failed", last.Outcome)
	assert.NotEmpty(t, last.Note)
}
