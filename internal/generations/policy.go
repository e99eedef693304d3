package generations

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// Window is the kind of retention window of a Policy.
type Window int

const (
	// FixedWindow reads the current slot plus a small fixed number (1 to 4) of the preceding slots, and
	// usually mixes in samples from the seed pool.
	FixedWindow Window = iota

	// SlidingWindow reads the current slot plus all other slots not being written, tracked by an explicit FIFO.
	SlidingWindow
)

func (w Window) String() string {
	switch w {
	case FixedWindow:
		return "fixed"
	case SlidingWindow:
		return "sliding"
	}
	return fmt.Sprintf("Window(%d)", int(w))
}

// SeedMode defines how many samples of the fixed seed pool are mixed into each training set.
type SeedMode int

const (
	// SeedNone doesn't use the seed pool.
	SeedNone SeedMode = iota

	// SeedMatchRotating samples (with replacement) as many seed batches as there are batches in the
	// rotating slots read, so the seed pool accounts for about half of the training set.
	SeedMatchRotating

	// SeedHalfRotating samples (with replacement) half as many seed batches as there are batches in the
	// rotating slots read, capped at the size of the seed pool.
	SeedHalfRotating
)

func (m SeedMode) String() string {
	switch m {
	case SeedNone:
		return "none"
	case SeedMatchRotating:
		return "match"
	case SeedHalfRotating:
		return "half"
	}
	return fmt.Sprintf("SeedMode(%d)", int(m))
}

// SeedSize returns how many seed batches to sample, given the number of batches in the rotating slots
// read and the size of the seed pool.
func (m SeedMode) SeedSize(rotatingCount, poolSize int) int {
	if poolSize <= 0 {
		return 0
	}
	switch m {
	case SeedMatchRotating:
		return rotatingCount
	case SeedHalfRotating:
		return min(rotatingCount/2, poolSize)
	}
	return 0
}

// Assignment of slots for one cycle. It is immutable once computed.
type Assignment struct {
	Cycle int

	// CurrentSlot (i mod K) was written by the previous cycle and is read by this one.
	CurrentSlot int

	// WriteSlot ((i+1) mod K) is where this cycle's collectors append new batches.
	WriteSlot int

	// HistorySlots are the older slots read, oldest first.
	HistorySlots []int

	// ReadSlots are HistorySlots followed by CurrentSlot. It never contains WriteSlot.
	ReadSlots []int
}

func (a Assignment) String() string {
	return fmt.Sprintf("cycle=%d current=%d write=%d read=%v", a.Cycle, a.CurrentSlot, a.WriteSlot, a.ReadSlots)
}

// Policy is a retention policy over a ring of NumSlots slots.
//
// Its only state is the FIFO of the last K-2 slots read as history: at any cycle it holds exactly the slots
// that are neither the current nor the write slot. A Policy is not safe for concurrent use: it is owned by
// the scheduler.
type Policy struct {
	Window   Window
	NumSlots int

	// Evicts is true if the write slot is cleared before each cycle writes to it, bounding storage.
	// Otherwise batches accumulate in a slot every time it is reused.
	Evicts bool

	Seed SeedMode

	// history FIFO, oldest first.
	history []int
}

// NewFixedWindow creates a fixed-window policy over numSlots slots: each cycle reads the current slot and the
// numSlots-2 previous ones (1 to 4), mixed with the seed pool according to seed.
//
// The self-imitation setup uses K=3, and the continuous policy-gradient setup uses K=5.
func NewFixedWindow(numSlots int, seed SeedMode) (*Policy, error) {
	if numSlots < 3 || numSlots > 6 {
		return nil, errors.Errorf("fixed-window policy requires between 3 and 6 slots, got %d", numSlots)
	}
	return newPolicy(FixedWindow, numSlots, false, seed), nil
}

// NewSlidingWindow creates a sliding-window policy: the current slot plus a FIFO of the last numSlots-2
// slots, with unbounded accumulation inside each slot.
func NewSlidingWindow(numSlots int, seed SeedMode) (*Policy, error) {
	if numSlots < 3 {
		return nil, errors.Errorf("sliding-window policy requires at least 3 slots, got %d", numSlots)
	}
	return newPolicy(SlidingWindow, numSlots, false, seed), nil
}

// NewEvictingSlidingWindow is like NewSlidingWindow, but the write slot is emptied before every cycle.
func NewEvictingSlidingWindow(numSlots int, seed SeedMode) (*Policy, error) {
	p, err := NewSlidingWindow(numSlots, seed)
	if err != nil {
		return nil, err
	}
	p.Evicts = true
	return p, nil
}

func newPolicy(window Window, numSlots int, evicts bool, seed SeedMode) *Policy {
	p := &Policy{Window: window, NumSlots: numSlots, Evicts: evicts, Seed: seed}
	p.Reset()
	return p
}

// String implements fmt.Stringer.
func (p *Policy) String() string {
	s := fmt.Sprintf("%s-window(K=%d, seed=%s)", p.Window, p.NumSlots, p.Seed)
	if p.Evicts {
		s = "evicting-" + s
	}
	return s
}

// Reset the policy state to the one before cycle 0: history is [2, 3, ..., K-1].
func (p *Policy) Reset() {
	p.history = make([]int, 0, p.NumSlots-2)
	for slot := 2; slot < p.NumSlots; slot++ {
		p.history = append(p.history, slot)
	}
}

// History returns a copy of the history FIFO, oldest first.
func (p *Policy) History() []int {
	return slices.Clone(p.history)
}

// SlotForCycle computes the slot assignment for the cycle. It doesn't change the policy state: calling it
// twice for the same cycle, without a Rotate in between, yields the same assignment.
func (p *Policy) SlotForCycle(cycle int) Assignment {
	a := Assignment{
		Cycle:        cycle,
		CurrentSlot:  cycle % p.NumSlots,
		WriteSlot:    (cycle + 1) % p.NumSlots,
		HistorySlots: slices.Clone(p.history),
	}
	a.ReadSlots = append(slices.Clone(p.history), a.CurrentSlot)
	return a
}

// Rotate advances the policy state after the cycle of the given assignment completed: the cycle's current
// slot becomes the newest history entry and the oldest one is dropped.
func (p *Policy) Rotate(a Assignment) {
	if len(p.history) == 0 {
		return
	}
	copy(p.history, p.history[1:])
	p.history[len(p.history)-1] = a.CurrentSlot
}

// FastForward resets the policy and rotates it as if cycles [0, cycle) had been completed, so a run can be
// resumed at cycle.
func (p *Policy) FastForward(cycle int) {
	p.Reset()
	// After K-2 rotations the history is fully determined by the last K-2 cycles.
	from := max(0, cycle-len(p.history))
	for ii := from; ii < cycle; ii++ {
		p.Rotate(Assignment{CurrentSlot: ii % p.NumSlots})
	}
}
