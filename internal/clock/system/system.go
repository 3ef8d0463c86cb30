// Package system provides a real clock implementation.
package system

import "time"

// Clock implements pharma.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns midnight UTC of the clock's current day. It is the
// default staleness threshold: anything scraped before today is stale.
func (c Clock) StartOfDay() time.Time {
	return c.Now().Truncate(24 * time.Hour)
}
