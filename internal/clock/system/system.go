// Package system provides the wall clock used by the crawl pipeline.
package system

import "time"

// DefaultPrecision matches the millisecond resolution of journal timestamps.
const DefaultPrecision = time.Millisecond

// Clock reports UTC wall time truncated to a fixed precision.
type Clock struct {
	precision time.Duration
	now       func() time.Time
}

// New returns a Clock with DefaultPrecision.
func New() *Clock {
	return NewWithPrecision(DefaultPrecision)
}

// NewWithPrecision returns a Clock truncating to precision. A non-positive
// precision disables truncation.
func NewWithPrecision(precision time.Duration) *Clock {
	return &Clock{precision: precision, now: time.Now}
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	t := c.now().UTC()
	if c.precision > 0 {
		t = t.Truncate(c.precision)
	}
	return t
}
