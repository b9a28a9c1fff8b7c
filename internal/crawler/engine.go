package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/places-crawler/internal/metrics"
	"github.com/JakeFAU/places-crawler/internal/source"
)

var (
	// ErrDone signals that the requested number of places was yielded.
	ErrDone = errors.New("crawler: limit reached")
	// ErrExhausted signals that scrolling stopped revealing candidates.
	ErrExhausted = errors.New("crawler: no more results")
	// ErrInterrupted signals external cancellation. It wraps the context error.
	ErrInterrupted = errors.New("crawler: interrupted")
	// ErrStartup signals that the source never produced a listing.
	ErrStartup = errors.New("crawler: startup failed")
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DelayFunc draws a throttle delay from [lo, hi].
type DelayFunc func(lo, hi time.Duration) time.Duration

// Request describes one crawl session.
type Request struct {
	Query string
	// MaxPlaces caps yielded places; zero means no cap.
	MaxPlaces int
	// Skip is the number of unique candidates bypassed before extraction.
	Skip int
	// Auto ignores MaxPlaces and runs until the source is exhausted or the
	// context is canceled.
	Auto bool
}

// Engine drives a single source session.
type Engine struct {
	cfg    Config
	src    source.Source
	logger *zap.Logger
	retry  *SearchRetry
	sleep  SleepFunc
	delay  DelayFunc
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSleep replaces the context-aware sleep used for every pause.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// WithDelay replaces the throttle delay generator.
func WithDelay(fn DelayFunc) Option {
	return func(e *Engine) {
		e.delay = fn
	}
}

// WithRetryPolicy replaces the search retry policy.
func WithRetryPolicy(p *SearchRetry) Option {
	return func(e *Engine) {
		e.retry = p
	}
}

// NewEngine wires an engine around src.
func NewEngine(cfg Config, src source.Source, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if src == nil {
		return nil, errors.New("crawler: source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("crawler config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	e := &Engine{
		cfg:    cfg,
		src:    src,
		logger: logger.Named("crawler"),
		retry:  NewSearchRetry(cfg.SearchAttempts),
		sleep:  sleepContext,
		delay:  uniformDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Crawl submits the query and returns a cursor positioned at the first
// candidate. A source that never shows a listing yields ErrStartup.
func (e *Engine) Crawl(ctx context.Context, req Request) (*Cursor, error) {
	if req.Skip < 0 {
		return nil, fmt.Errorf("crawler: skip must be >= 0, got %d", req.Skip)
	}
	if req.MaxPlaces < 0 {
		return nil, fmt.Errorf("crawler: max places must be >= 0, got %d", req.MaxPlaces)
	}
	if err := e.search(ctx, req.Query); err != nil {
		return nil, err
	}
	seen, err := lru.New[string, struct{}](e.cfg.SessionURLCapacity)
	if err != nil {
		return nil, fmt.Errorf("session url set: %w", err)
	}
	c := &Cursor{
		engine: e,
		req:    req,
		state:  StateListing,
		seen:   seen,
		logger: e.logger.With(zap.String("query", req.Query)),
	}
	if e.cfg.OpenQPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(e.cfg.OpenQPS), 1)
	}
	return c, nil
}

func (e *Engine) search(ctx context.Context, query string) error {
	for attempt := 1; ; attempt++ {
		err := e.src.Search(ctx, query)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
		}
		if !e.retry.Allow(err, attempt) {
			return fmt.Errorf("%w: %w", ErrStartup, err)
		}
		wait := e.retry.Wait(attempt)
		e.logger.Warn("search failed, retrying",
			zap.String("query", query),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := e.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniformDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
