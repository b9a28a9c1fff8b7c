package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageRunStart Stage = "RUN_START"
	StagePlace    Stage = "PLACE"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event is one milestone of a crawl run.
type Event struct {
	// RunID identifies the run that emitted the event.
	RunID string `json:"run_id"`
	// TS is the time recorded by the emitter.
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	Query string    `json:"query,omitempty"`
	// Name and URL describe the place for StagePlace events.
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
	// Outcome is the store outcome for a place, or the run outcome.
	Outcome string `json:"outcome,omitempty"`
	// Saved is the running number of accepted rows.
	Saved int `json:"saved"`
	// Dur is the elapsed run time on terminal events.
	Dur  time.Duration `json:"dur_ns,omitempty"`
	Note string        `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart:
		if e.Query == "" {
			return errors.New("run start requires query")
		}
	case StagePlace, StageRunDone, StageRunError:
		if e.Outcome == "" {
			return fmt.Errorf("%s requires outcome", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Stage == StageRunDone || e.Stage == StageRunError
}
