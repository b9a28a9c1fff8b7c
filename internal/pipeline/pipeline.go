// Package pipeline is the composition root of a crawl run: it pulls places
// from the crawl engine, flattens them and offers each one to the record
// store, tallying what happened.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/crawler"
	"github.com/JakeFAU/places-crawler/internal/metrics"
	"github.com/JakeFAU/places-crawler/internal/normalize"
	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/progress"
	"github.com/JakeFAU/places-crawler/internal/store"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Options shape every flattened record.
type Options struct {
	// Fields restricts the persisted fields. Nil keeps the whole catalog.
	Fields       []string
	ImageColumns int
	// RunID tags emitted events.
	RunID string
	// Events receives run and place events. Nil disables them.
	Events progress.Emitter
}

// Outcome is how a run ended.
type Outcome string

// Run outcomes.
const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeExhausted   Outcome = "exhausted"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFailed      Outcome = "failed"
)

// Phase is the lifecycle position reported to status readers.
type Phase string

// Run phases.
const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

// Counters tallies candidate and record outcomes of a run.
type Counters struct {
	Fetched    int `json:"fetched"`
	Saved      int `json:"saved"`
	Duplicates int `json:"duplicates"`
	Incomplete int `json:"incomplete"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Result summarizes a run.
type Result struct {
	Query     string        `json:"query"`
	Location  string        `json:"location"`
	Outcome   Outcome       `json:"outcome,omitempty"`
	Counters  Counters      `json:"counters"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Rate returns saved records per minute.
func (r Result) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Counters.Saved) / r.Elapsed.Minutes()
}

// Snapshot is a point-in-time view of a run for concurrent readers.
type Snapshot struct {
	Phase  Phase  `json:"phase"`
	Result Result `json:"result"`
}

// Pipeline runs crawl sessions against one store.
type Pipeline struct {
	engine *crawler.Engine
	store  *store.Store
	opts   Options
	clock  Clock
	logger *zap.Logger

	mu   sync.Mutex
	snap Snapshot
}

// New wires a pipeline.
func New(engine *crawler.Engine, st *store.Store, opts Options, clock Clock, logger *zap.Logger) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("pipeline: engine is required")
	}
	if st == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if clock == nil {
		return nil, errors.New("pipeline: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ImageColumns <= 0 {
		opts.ImageColumns = normalize.DefaultImageColumns
	}
	metrics.Init()
	return &Pipeline{
		engine: engine,
		store:  st,
		opts:   opts,
		clock:  clock,
		logger: logger.Named("pipeline"),
		snap:   Snapshot{Phase: PhaseIdle},
	}, nil
}

// Run drives one crawl session to its end. Cancellation is not an error:
// the result carries OutcomeInterrupted and everything accepted before it
// is already durable. Startup, source and storage failures are returned.
func (p *Pipeline) Run(ctx context.Context, req crawler.Request) (Result, error) {
	res := Result{
		Query:     req.Query,
		Location:  p.store.Location(),
		StartedAt: p.clock.Now(),
	}
	p.publish(PhaseStarting, res)
	p.logger.Info("crawl starting",
		zap.String("query", req.Query),
		zap.String("location", res.Location),
		zap.Int("max_places", req.MaxPlaces),
		zap.Int("skip", req.Skip),
		zap.Bool("auto", req.Auto),
	)

	p.emit(progress.Event{Stage: progress.StageRunStart, Query: req.Query})

	cursor, err := p.engine.Crawl(ctx, req)
	if err != nil {
		res.Outcome = classify(err)
		return p.finish(res, err)
	}
	p.publish(PhaseRunning, res)

	// Writes never observe cancellation; a record that reached the store is
	// either fully persisted or rejected.
	writeCtx := context.WithoutCancel(ctx)
	norm := normalize.Options{ImageColumns: p.opts.ImageColumns}
	for {
		pl, err := cursor.Next(ctx)
		stats := cursor.Stats()
		res.Counters.Failed = stats.OpenFailures
		res.Counters.Skipped = stats.Skipped
		if err != nil {
			res.Outcome = classify(err)
			return p.finish(res, err)
		}
		res.Counters.Fetched++

		rec := normalize.Flatten(place.Select(pl.Fields(), p.opts.Fields), norm)
		outcome, err := p.store.WriteRow(writeCtx, rec)
		if err != nil {
			res.Outcome = OutcomeFailed
			return p.finish(res, fmt.Errorf("write %q: %w", pl.Name.String(), err))
		}
		metrics.ObserveRecord(outcome.String())
		switch outcome {
		case store.Accepted:
			res.Counters.Saved++
			p.logger.Info("place saved",
				zap.Int("saved", res.Counters.Saved),
				zap.String("name", pl.Name.String()),
			)
		case store.Duplicate:
			res.Counters.Duplicates++
			p.logger.Debug("duplicate place", zap.String("name", pl.Name.String()))
		case store.Incomplete:
			res.Counters.Incomplete++
			p.logger.Debug("place without identity", zap.String("url", pl.MapsURL))
		}
		p.emit(progress.Event{
			Stage:   progress.StagePlace,
			Name:    pl.Name.String(),
			URL:     pl.MapsURL,
			Outcome: outcome.String(),
			Saved:   res.Counters.Saved,
		})
		res.Elapsed = p.clock.Now().Sub(res.StartedAt)
		p.publish(PhaseRunning, res)
	}
}

// Snapshot returns the latest published state. Safe for concurrent use.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Pipeline) publish(phase Phase, res Result) {
	p.mu.Lock()
	p.snap = Snapshot{Phase: phase, Result: res}
	p.mu.Unlock()
}

func (p *Pipeline) finish(res Result, err error) (Result, error) {
	res.Elapsed = p.clock.Now().Sub(res.StartedAt)
	p.publish(PhaseFinished, res)
	metrics.ObserveRun(string(res.Outcome))

	fields := []zap.Field{
		zap.String("outcome", string(res.Outcome)),
		zap.Int("fetched", res.Counters.Fetched),
		zap.Int("saved", res.Counters.Saved),
		zap.Int("duplicates", res.Counters.Duplicates),
		zap.Int("incomplete", res.Counters.Incomplete),
		zap.Int("failed", res.Counters.Failed),
		zap.Int("skipped", res.Counters.Skipped),
		zap.Duration("elapsed", res.Elapsed),
	}
	evt := progress.Event{
		Stage:   progress.StageRunDone,
		Query:   res.Query,
		Outcome: string(res.Outcome),
		Saved:   res.Counters.Saved,
		Dur:     res.Elapsed,
	}
	switch res.Outcome {
	case OutcomeCompleted, OutcomeExhausted, OutcomeInterrupted:
		p.emit(evt)
		p.logger.Info("crawl finished", fields...)
		return res, nil
	default:
		evt.Stage = progress.StageRunError
		evt.Note = err.Error()
		p.emit(evt)
		p.logger.Warn("crawl failed", append(fields, zap.Error(err))...)
		return res, err
	}
}

func (p *Pipeline) emit(evt progress.Event) {
	if p.opts.Events == nil {
		return
	}
	evt.RunID = p.opts.RunID
	evt.TS = p.clock.Now()
	p.opts.Events.Emit(evt)
}

func classify(err error) Outcome {
	switch {
	case errors.Is(err, crawler.ErrDone):
		return OutcomeCompleted
	case errors.Is(err, crawler.ErrExhausted):
		return OutcomeExhausted
	case errors.Is(err, crawler.ErrInterrupted):
		return OutcomeInterrupted
	default:
		return OutcomeFailed
	}
}
