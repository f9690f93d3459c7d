// Package clock provides catalog.Clock implementations.
package clock

import "time"

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant, so checkpoints and published
// payloads built with it are reproducible.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}
