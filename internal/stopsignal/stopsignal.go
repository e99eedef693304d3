// Package stopsignal implements the cooperative early-termination flag shared by the tasks of one cycle.
//
// A Signal is created once by the scheduler, reset at the start of every cycle and handed explicitly
// to every task the cycle spawns. Collectors Poll it once per environment step; the trainer and the
// evaluator may Set it. There is no forced termination: a task only stops when it looks at the flag.
package stopsignal

import "sync/atomic"

// Signal is a single-cycle stop flag. The zero value is ready to use and not set.
type Signal struct {
	set atomic.Bool
}

// New returns a Signal that is not set.
func New() *Signal {
	return &Signal{}
}

// Reset clears the flag. It is called by the scheduler at the start of each cycle, before any task
// of the cycle is spawned.
func (s *Signal) Reset() {
	s.set.Store(false)
}

// Set raises the flag. It returns true only for the call that actually changed it, so callers can
// log the stop once.
func (s *Signal) Set() (first bool) {
	return s.set.CompareAndSwap(false, true)
}

// Poll returns whether the flag is set. Once it returns true it keeps returning true until the next Reset.
func (s *Signal) Poll() bool {
	return s.set.Load()
}
