// Package clock abstracts wall-clock time so run windows are testable.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Real is a Clock backed by the system clock. Times are UTC.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a manually advanced Clock for tests.
type Fake struct {
	now time.Time
}

// NewFake creates a Fake pinned to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

func (c *Fake) Now() time.Time {
	return c.now
}

// Advance moves the fake clock forward by d.
func (c *Fake) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
