package model

import (
	"fmt"
	"math"
)

// Steps is a transmission delay discretized to simulation steps.
type Steps int64

// TimeBase fixes the discretization of simulation time: how many
// milliseconds one step covers.
type TimeBase struct {
	ResolutionMS float64
}

func DefaultTimeBase() TimeBase {
	return TimeBase{ResolutionMS: 0.1}
}

func (tb TimeBase) Validate() error {
	if tb.ResolutionMS <= 0 {
		return fmt.Errorf("time resolution must be > 0, got %g", tb.ResolutionMS)
	}
	return nil
}

// DelaySteps converts a delay in milliseconds to steps, rounding to the
// nearest step. Delays are strictly positive: anything that rounds to
// less than one step is clamped to one step.
func (tb TimeBase) DelaySteps(ms float64) (Steps, error) {
	if ms <= 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("delay must be a positive duration, got %g ms", ms)
	}
	s := Steps(math.Round(ms / tb.ResolutionMS))
	if s < 1 {
		s = 1
	}
	return s, nil
}

func (tb TimeBase) MS(s Steps) float64 {
	return float64(s) * tb.ResolutionMS
}

// TimeConverter rebases step counts after a time-resolution change.
// Converted delays keep their duration in milliseconds, re-rounded to the
// new grid, and stay at least one step.
type TimeConverter struct {
	Old TimeBase
	New TimeBase
}

func (tc TimeConverter) ConvertSteps(s Steps) Steps {
	out := Steps(math.Round(tc.Old.MS(s) / tc.New.ResolutionMS))
	if out < 1 {
		out = 1
	}
	return out
}
