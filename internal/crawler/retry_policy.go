package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// SearchRetry bounds how often a failed search is resubmitted and how long
// the engine waits in between. Waits use equal jitter: half the capped
// exponential step plus a random share of the other half.
type SearchRetry struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// NewSearchRetry returns a policy allowing attempts searches in total.
func NewSearchRetry(attempts int) *SearchRetry {
	return &SearchRetry{Attempts: max(attempts, 1), Base: time.Second, Cap: 10 * time.Second}
}

// Allow reports whether a search that failed with err on the given 1-based
// attempt may run again.
func (p *SearchRetry) Allow(err error, attempt int) bool {
	switch {
	case err == nil, attempt >= p.Attempts:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Wait returns the pause before attempt+1.
func (p *SearchRetry) Wait(attempt int) time.Duration {
	step := p.Cap
	if attempt < 30 {
		step = min(p.Base<<attempt, p.Cap)
	}
	half := step / 2
	return half + jitter(step-half)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
