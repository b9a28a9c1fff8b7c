package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/places-crawler/internal/metrics"
	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/source"
)

// State is a position in the listing state machine.
type State int

// Cursor states. Done, Exhausted, Interrupted and Failed are terminal.
const (
	StateSearching State = iota
	StateListing
	StateScrollWait
	StateExtracting
	StateDone
	StateExhausted
	StateInterrupted
	StateFailed
)

var stateNames = [...]string{"searching", "listing", "scroll_wait", "extracting", "done", "exhausted", "interrupted", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further places can be produced.
func (s State) Terminal() bool {
	return s >= StateDone
}

// Stats counts candidate outcomes of one cursor.
type Stats struct {
	Unique       int
	Skipped      int
	Extracted    int
	OpenFailures int
	Revisits     int
	Scrolls      int
}

// Cursor is a pull-based sequence of places over one search. It is not
// restartable and not safe for concurrent use.
type Cursor struct {
	engine  *Engine
	req     Request
	state   State
	seen    *lru.Cache[string, struct{}]
	limiter *rate.Limiter
	logger  *zap.Logger

	index     int
	lastCount int
	scrolls   int
	owed      time.Duration
	stats     Stats
	err       error
}

// State returns the current state.
func (c *Cursor) State() State {
	return c.state
}

// Stats returns a copy of the candidate counters.
func (c *Cursor) Stats() Stats {
	return c.stats
}

// Next returns the next extracted place. Once a terminal state is reached
// every call returns the same error: ErrDone, ErrExhausted, an error
// wrapping ErrInterrupted, or a source failure.
//
// The throttle delay owed for the previously yielded place is paid at the
// start of the following call, so cancellation during the delay never loses
// a place.
func (c *Cursor) Next(ctx context.Context) (place.Place, error) {
	if c.err != nil {
		return place.Place{}, c.err
	}
	if c.limitReached() {
		return c.finish(StateDone, ErrDone)
	}
	if c.owed > 0 {
		d := c.owed
		c.owed = 0
		metrics.ObserveThrottle(d)
		if err := c.engine.sleep(ctx, d); err != nil {
			return c.interrupt(err)
		}
	}

	cfg := c.engine.cfg
	src := c.engine.src
	for {
		if err := ctx.Err(); err != nil {
			return c.interrupt(err)
		}
		c.state = StateListing
		count, err := src.Count(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return c.interrupt(ctxErr)
			}
			return c.finish(StateFailed, fmt.Errorf("count candidates: %w", err))
		}
		if count > c.lastCount {
			c.lastCount = count
			c.scrolls = 0
		}

		if c.index >= count {
			if c.scrolls >= cfg.MaxScrolls {
				return c.finish(StateExhausted, ErrExhausted)
			}
			c.state = StateScrollWait
			if err := src.Scroll(ctx); err != nil {
				c.logger.Debug("scroll failed", zap.Error(err))
			}
			c.scrolls++
			c.stats.Scrolls++
			metrics.ObserveScroll()
			if err := c.engine.sleep(ctx, cfg.ScrollPause); err != nil {
				return c.interrupt(err)
			}
			continue
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return c.interrupt(err)
			}
		}

		c.state = StateExtracting
		index := c.index
		c.index++
		url, err := src.Open(ctx, index)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return c.interrupt(ctxErr)
			}
			c.stats.OpenFailures++
			metrics.ObserveCandidate("open_failed")
			c.logger.Warn("failed to open candidate", zap.Int("index", index), zap.Error(err))
			continue
		}
		if c.seen.Contains(url) {
			c.stats.Revisits++
			metrics.ObserveCandidate("revisit")
			continue
		}
		c.seen.Add(url, struct{}{})
		c.stats.Unique++
		metrics.ObserveCandidate("opened")

		if c.stats.Unique <= c.req.Skip {
			c.stats.Skipped++
			metrics.ObserveCandidate("skipped")
			c.logger.Debug("skipping candidate", zap.Int("unique", c.stats.Unique), zap.Int("skip", c.req.Skip))
			continue
		}
		if c.limitReached() {
			return c.finish(StateDone, ErrDone)
		}

		p := c.extract(ctx, url)
		if err := ctx.Err(); err != nil {
			return c.interrupt(err)
		}
		c.stats.Extracted++
		c.owed = c.engine.delay(cfg.DelayMin, cfg.DelayMax)
		metrics.ObserveCandidate("extracted")
		c.state = StateListing
		return p, nil
	}
}

func (c *Cursor) limitReached() bool {
	return !c.req.Auto && c.req.MaxPlaces > 0 && c.stats.Extracted >= c.req.MaxPlaces
}

func (c *Cursor) finish(state State, err error) (place.Place, error) {
	c.state = state
	c.err = err
	return place.Place{}, err
}

func (c *Cursor) interrupt(cause error) (place.Place, error) {
	if errors.Is(cause, ErrInterrupted) {
		return c.finish(StateInterrupted, cause)
	}
	return c.finish(StateInterrupted, fmt.Errorf("%w: %w", ErrInterrupted, cause))
}

// extract reads every field of the open candidate. Lookups are
// independent; a miss leaves that field absent.
func (c *Cursor) extract(ctx context.Context, url string) place.Place {
	src := c.engine.src
	p := place.Place{
		Name:       c.lookup(ctx, source.Name),
		Category:   c.lookup(ctx, source.Category),
		Rating:     c.lookup(ctx, source.Rating),
		Address:    c.lookup(ctx, source.Address),
		PlusCode:   c.lookup(ctx, source.PlusCode),
		LocatedIn:  c.lookup(ctx, source.LocatedIn),
		Phone:      c.lookup(ctx, source.Phone),
		Website:    c.lookup(ctx, source.Website),
		OpenStatus: c.lookup(ctx, source.OpenStatus),
		MapsURL:    url,
	}
	if reviews := c.lookup(ctx, source.ReviewsText); reviews.OK {
		p.ReviewsCount = ParseReviewCount(reviews.Value)
	}
	p.Latitude, p.Longitude = ExtractLatLng(url)
	p.Images = CollectImages(src.Images(ctx), c.engine.cfg.MaxImages)
	p.StarBreakdown = make(place.StarBreakdown, 0, 5)
	for stars := 5; stars >= 1; stars-- {
		p.StarBreakdown = append(p.StarBreakdown, place.StarRow{
			Stars: stars,
			Label: c.lookup(ctx, source.StarRow(stars)),
		})
	}
	p.Reviewers = src.Reviewers(ctx)
	return p
}

func (c *Cursor) lookup(ctx context.Context, f source.Field) place.Text {
	value, ok := c.engine.src.Lookup(ctx, f)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		metrics.ObserveFieldMiss(string(f))
		c.logger.Debug("field not found", zap.String("field", string(f)))
		return place.Missing()
	}
	return place.Found(value)
}
