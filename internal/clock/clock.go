// Package clock supplies the current instant to services so tests can pin it.
package clock

import "time"

// Clock reports the current instant in UTC.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// NewSystem returns the wall clock.
func NewSystem() Clock { return System{} }

// Now returns time.Now in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed reports the same instant on every call.
type Fixed struct {
	at time.Time
}

// NewFixed pins the clock at t, converted to UTC so results do not depend on t's location.
func NewFixed(t time.Time) Clock { return Fixed{at: t.UTC()} }

// Now returns the pinned instant.
func (f Fixed) Now() time.Time { return f.at }
