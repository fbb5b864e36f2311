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

package servo

// GMPiServoCfg configures the grandmaster PI servo. Defaults per the
// disciplining design: Kp=0.7, Ki=3e-5, integral clamp +-1e10 ns.
type GMPiServoCfg struct {
	Kp             float64
	Ki             float64
	IMax           int64
	MaxCorrection  int32 // clamp on the output, ppb
	LockOffsetNS   int64 // |offset| below this counts toward lock
	LockSampleReq  int   // consecutive samples below LockOffsetNS to report StateLocked
	FirstStepNS    int64 // |offset| above this on the very first sample issues a Step instead of a Slew
}

// DefaultGMPiServoCfg returns the tuning values from the disciplining design.
func DefaultGMPiServoCfg() GMPiServoCfg {
	return GMPiServoCfg{
		Kp:            0.7,
		Ki:            3e-5,
		IMax:          10_000_000_000,
		MaxCorrection: 500_000,
		LockOffsetNS:  1_000,
		LockSampleReq: 10,
		FirstStepNS:   1_000_000_000, // 1s: anything coarser than this at startup steps instead of slewing
	}
}

// GMPiServo is the grandmaster's primary disciplining servo: a classic
// proportional-integral controller over phase offset, with anti-windup via
// clamping the integral accumulator, producing a frequency-only Slew once
// locked and a Step on a first, unbounded offset.
type GMPiServo struct {
	cfg           GMPiServoCfg
	integral      int64
	firstSample   bool
	lockedRun     int
	state         State
}

// NewGMPiServo constructs a PI servo with the given configuration.
func NewGMPiServo(cfg GMPiServoCfg) *GMPiServo {
	return &GMPiServo{cfg: cfg, firstSample: true, state: StateInit}
}

// Sample feeds one phase offset sample (nanoseconds, positive means the
// local clock is ahead of reference) and returns the correction to apply.
func (s *GMPiServo) Sample(offsetNS int64) Correction {
	if s.firstSample {
		s.firstSample = false
		if abs64(offsetNS) > s.cfg.FirstStepNS {
			s.state = StateJump
			return Correction{Kind: Step}
		}
	}

	s.integral += offsetNS
	if s.integral > s.cfg.IMax {
		s.integral = s.cfg.IMax
	} else if s.integral < -s.cfg.IMax {
		s.integral = -s.cfg.IMax
	}

	ppb := s.cfg.Kp*float64(offsetNS) + s.cfg.Ki*float64(s.integral)
	clamped := clampPPB(ppb, s.cfg.MaxCorrection)

	if abs64(offsetNS) <= s.cfg.LockOffsetNS {
		s.lockedRun++
	} else {
		s.lockedRun = 0
	}
	if s.lockedRun >= s.cfg.LockSampleReq {
		s.state = StateLocked
	} else {
		s.state = StateFilter
	}

	return Correction{Kind: Slew, PPB: clamped}
}

// Reset clears the integral accumulator and lock history; called by the
// holdover controller on RECOVERY->LOCKED so the integrator does not carry
// stale error across a reference change.
func (s *GMPiServo) Reset() {
	s.integral = 0
	s.lockedRun = 0
	s.firstSample = true
	s.state = StateInit
}

// State reports the servo's current lock state.
func (s *GMPiServo) State() State {
	return s.state
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampPPB(v float64, max int32) int32 {
	if v > float64(max) {
		return max
	}
	if v < -float64(max) {
		return -max
	}
	return int32(v)
}
