// Package delay tracks the range of transmission delays assigned to
// connections, one checker per worker thread, and folds the per-thread
// ranges into the global extrema.
package delay

import (
	"errors"
	"fmt"

	"synaptor/internal/model"
)

var ErrDelayRange = errors.New("delay out of range")

// Checker records every delay assigned to a connection created on its
// thread. It is owned exclusively by that thread; no locking.
type Checker struct {
	minSeen model.Steps
	maxSeen model.Steps
	seen    bool

	pinnedMin model.Steps
	pinnedMax model.Steps
	pinned    bool
}

func NewChecker() *Checker {
	return &Checker{}
}

// SetBounds pins operator-chosen extrema. Every delay observed so far and
// every delay observed afterwards must satisfy them.
func (c *Checker) SetBounds(min, max model.Steps) error {
	if min < 1 || max < min {
		return fmt.Errorf("%w: invalid bounds [%d, %d]", ErrDelayRange, min, max)
	}
	if c.seen && (c.minSeen < min || c.maxSeen > max) {
		return fmt.Errorf("%w: recorded delays [%d, %d] violate bounds [%d, %d]",
			ErrDelayRange, c.minSeen, c.maxSeen, min, max)
	}
	c.pinnedMin = min
	c.pinnedMax = max
	c.pinned = true
	return nil
}

// Check validates a delay against pinned bounds without recording it.
// Callers use it to fail a connect before any state is mutated.
func (c *Checker) Check(d model.Steps) error {
	if d < 1 {
		return fmt.Errorf("%w: delay %d is below one step", ErrDelayRange, d)
	}
	if c.pinned && (d < c.pinnedMin || d > c.pinnedMax) {
		return fmt.Errorf("%w: delay %d outside pinned [%d, %d]",
			ErrDelayRange, d, c.pinnedMin, c.pinnedMax)
	}
	return nil
}

// Observe validates and records a delay.
func (c *Checker) Observe(d model.Steps) error {
	if err := c.Check(d); err != nil {
		return err
	}
	if !c.seen {
		c.minSeen, c.maxSeen = d, d
		c.seen = true
		return nil
	}
	if d < c.minSeen {
		c.minSeen = d
	}
	if d > c.maxSeen {
		c.maxSeen = d
	}
	return nil
}

// Range reports the recorded local extrema. ok is false if nothing has
// been observed yet.
func (c *Checker) Range() (min, max model.Steps, ok bool) {
	return c.minSeen, c.maxSeen, c.seen
}

func (c *Checker) Pinned() (min, max model.Steps, ok bool) {
	return c.pinnedMin, c.pinnedMax, c.pinned
}

// Rebase converts recorded and pinned extrema to a new time base.
func (c *Checker) Rebase(tc model.TimeConverter) {
	if c.seen {
		c.minSeen = tc.ConvertSteps(c.minSeen)
		c.maxSeen = tc.ConvertSteps(c.maxSeen)
	}
	if c.pinned {
		c.pinnedMin = tc.ConvertSteps(c.pinnedMin)
		c.pinnedMax = tc.ConvertSteps(c.pinnedMax)
	}
}

// Range is one observed [Min, Max] interval used as extra input to Fold,
// e.g. the delay scan of a connection-storage array.
type Range struct {
	Min model.Steps
	Max model.Steps
}

// Fold combines all checkers' local ranges plus any extra ranges into the
// global extrema. ok is false when nothing has been observed anywhere.
func Fold(checkers []*Checker, extra ...Range) (min, max model.Steps, ok bool) {
	fold := func(lo, hi model.Steps) {
		if !ok {
			min, max, ok = lo, hi, true
			return
		}
		if lo < min {
			min = lo
		}
		if hi > max {
			max = hi
		}
	}
	for _, c := range checkers {
		if lo, hi, seen := c.Range(); seen {
			fold(lo, hi)
		}
	}
	for _, r := range extra {
		fold(r.Min, r.Max)
	}
	return min, max, ok
}
