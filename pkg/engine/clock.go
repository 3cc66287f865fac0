package engine

import (
	"fmt"
	"time"
)

// Cycle rate bounds.
const (
	MinCyclesPerSecond     = 1
	MaxCyclesPerSecond     = 100000
	DefaultCyclesPerSecond = 500
)

// MaxCatchUp caps the elapsed time converted by a single Advance call.
// After a long stall (window drag, debugger break) the machine resumes at
// normal speed instead of executing a burst of queued cycles.
const MaxCatchUp = 250 * time.Millisecond

// CycleClock converts elapsed wall-clock time into whole Step counts.
//
// The remainder is carried between calls in units of nanoseconds*cps, so the
// long-run rate is exact regardless of how the elapsed time is sliced:
// 60 calls of 1/60 s at 500 cps always yield exactly 500 steps.
//
// CycleClock is not safe for concurrent use.
type CycleClock struct {
	cps int

	// acc holds the fractional step count scaled by time.Second.
	acc int64
}

// NewCycleClock creates a clock running at cps steps per second.
func NewCycleClock(cps int) (*CycleClock, error) {
	if err := validateCPS(cps); err != nil {
		return nil, err
	}
	return &CycleClock{cps: cps}, nil
}

func validateCPS(cps int) error {
	if cps < MinCyclesPerSecond || cps > MaxCyclesPerSecond {
		return fmt.Errorf("invalid cycles per second: %d (must be %d-%d)", cps, MinCyclesPerSecond, MaxCyclesPerSecond)
	}
	return nil
}

// Advance returns how many steps are due after elapsed time has passed.
// Negative durations yield zero.
func (c *CycleClock) Advance(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	if elapsed > MaxCatchUp {
		elapsed = MaxCatchUp
	}
	c.acc += int64(elapsed) * int64(c.cps)
	steps := c.acc / int64(time.Second)
	c.acc %= int64(time.Second)
	return int(steps)
}

// CPS returns the configured rate.
func (c *CycleClock) CPS() int {
	return c.cps
}

// SetCPS changes the rate. The pending fraction is dropped.
func (c *CycleClock) SetCPS(cps int) error {
	if err := validateCPS(cps); err != nil {
		return err
	}
	c.cps = cps
	c.acc = 0
	return nil
}

// Reset drops the pending fraction.
func (c *CycleClock) Reset() {
	c.acc = 0
}
