// Package system provides the wall clock used by the cache and pipeline.
package system

import "time"

// Clock implements capture.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Cache expiry compares these timestamps arithmetically, so the
// monotonic reading is stripped to keep persisted and in-memory values comparable.
func (Clock) Now() time.Time {
	return time.Now().UTC().Round(0)
}
