/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package holdover implements the three-state RECOVERY -> LOCKED -> HOLDOVER
// controller that chooses the reference source and servo mode for the
// grandmaster clock.
package holdover

import (
	"sync"
	"time"
)

// State is the controller's formal lock state.
type State uint8

const (
	StateNone State = iota
	StateRecovery
	StateLocked
	StateHoldover
)

func (s State) String() string {
	switch s {
	case StateRecovery:
		return "RECOVERY"
	case StateLocked:
		return "LOCKED"
	case StateHoldover:
		return "HOLDOVER"
	}
	return "NONE"
}

// Config tunes the RECOVERY->LOCKED lock-acquisition gate and the holdover
// age at which Degraded reports true. RtcPhaseGuardNS is carried in the
// configuration but no code path reads it: the controller has no PHC/RTC-PPS
// phase input and does not demote to free-run on a phase error.
type Config struct {
	LockOffsetNS        int64
	LockFreqErrPPB      float64
	LockConsecutive     int
	RtcPhaseGuardNS     int64
	DegradedHoldoverAge time.Duration
}

// DefaultConfig returns the thresholds from the holdover controller design:
// lock requires |offset|<100ns and |freq_err|<5ppb for 10 consecutive
// samples; a clock class downgrade to 187 after one hour in holdover.
func DefaultConfig() Config {
	return Config{
		LockOffsetNS:        100,
		LockFreqErrPPB:      5,
		LockConsecutive:     10,
		RtcPhaseGuardNS:     100_000_000,
		DegradedHoldoverAge: time.Hour,
	}
}

// Controller is the grandmaster's three-state holdover state machine. It is
// safe for concurrent read (State/IsLocked/HoldoverElapsed) and
// single-writer (Sample/Reset) use, matching the worker-thread ownership
// model.
type Controller struct {
	cfg Config

	mu sync.Mutex

	state             State
	stable            bool
	consecutiveGood   int
	consecutiveLocked int
	lastSyncLabelSec  uint64
	enteredHoldover   time.Time

	now func() time.Time
}

// New constructs a Controller starting in RECOVERY, the state the spec's
// transition table treats as the universal reset target.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg, state: StateRecovery, now: time.Now}
}

// Sample feeds one PPS-edge-worth of reference validity and servo error into
// the state machine and returns the resulting state.
func (c *Controller) Sample(ppsValid, todValid bool, offsetNS int64, freqErrPPB float64) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	refOK := ppsValid && todValid

	switch c.state {
	case StateRecovery, StateNone:
		if refOK && abs64(offsetNS) < c.cfg.LockOffsetNS && absF(freqErrPPB) < c.cfg.LockFreqErrPPB {
			c.consecutiveGood++
		} else {
			c.consecutiveGood = 0
		}
		if c.consecutiveGood >= c.cfg.LockConsecutive {
			c.state = StateLocked
			c.stable = true
			c.consecutiveGood = 0
		}
	case StateLocked:
		if !refOK {
			c.state = StateHoldover
			c.enteredHoldover = c.now()
			c.stable = false
			return c.state
		}
		c.stable = abs64(offsetNS) < c.cfg.LockOffsetNS && absF(freqErrPPB) < c.cfg.LockFreqErrPPB
	case StateHoldover:
		if refOK {
			c.state = StateRecovery
			c.consecutiveGood = 0
			c.stable = false
		}
	}

	return c.state
}

// Reset forces the controller back to RECOVERY, as required on an explicit
// operator or HAL-driven reset from any state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateRecovery
	c.consecutiveGood = 0
	c.stable = false
}

// State reports the controller's formal state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsLocked reports instantaneous stability: true only when the state is
// LOCKED and the most recent sample was within the lock thresholds. The
// formal state can remain LOCKED ("stability lost") while IsLocked reports
// false.
func (c *Controller) IsLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateLocked && c.stable
}

// HoldoverElapsed reports how long the controller has been in HOLDOVER; zero
// outside that state.
func (c *Controller) HoldoverElapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateHoldover {
		return 0
	}
	return c.now().Sub(c.enteredHoldover)
}

// Degraded reports whether the holdover has run long enough that the
// advertised clockClass must degrade from 7 to 187.
func (c *Controller) Degraded() bool {
	return c.HoldoverElapsed() >= c.cfg.DegradedHoldoverAge
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
