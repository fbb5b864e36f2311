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

import log "github.com/sirupsen/logrus"

// phase is the three-phase servo's internal sub-state, distinct from the
// shared lock State reported to callers.
type phase uint8

const (
	phaseOffsetCorrection phase = iota
	phaseDriftBaseline
	phaseDriftEvaluation
)

// ThreePhaseServoCfg configures the experimental three-phase servo.
type ThreePhaseServoCfg struct {
	Kp                 float64 // proportional gain used only in phase A
	StepThresholdNS     int64   // |offset| above this in phase A issues a Step rather than a Slew
	ConvergeOffsetNS    int64   // |offset| below this for ConvergeSamples ends phase A
	ConvergeSamples     int
	BaselinePulses      int     // pulses to accumulate in phase B before computing baseline drift
	EmaAlpha            float64 // EMA weight for the new sample in phase C (freq_ema = alpha*df + (1-alpha)*freq_ema)
	EmergencyStepNS     int64   // |offset| above this in phase C forces an emergency Step
	MaxCorrection       int32
}

// DefaultThreePhaseServoCfg returns the tuning values from the disciplining design.
func DefaultThreePhaseServoCfg() ThreePhaseServoCfg {
	return ThreePhaseServoCfg{
		Kp:               0.5,
		StepThresholdNS:  1_000_000,
		ConvergeOffsetNS: 1_000,
		ConvergeSamples:  5,
		BaselinePulses:   20,
		EmaAlpha:         0.1,
		EmergencyStepNS:  500_000_000,
		MaxCorrection:    500_000,
	}
}

// ThreePhaseServo implements the experimental OFFSET_CORRECTION ->
// DRIFT_BASELINE -> DRIFT_EVALUATION controller: absorb startup phase error,
// measure a frequency baseline with corrections frozen, then run slew-only
// with an EMA-filtered frequency-error feedback loop.
type ThreePhaseServo struct {
	cfg ThreePhaseServoCfg

	ph            phase
	convergedRun  int
	baselineCount int
	baselineSum   int64
	baselineDrift float64
	freqEma       float64
	lastOffset    int64
	haveLast      bool
}

// NewThreePhaseServo constructs a three-phase servo in its initial phase.
func NewThreePhaseServo(cfg ThreePhaseServoCfg) *ThreePhaseServo {
	return &ThreePhaseServo{cfg: cfg, ph: phaseOffsetCorrection}
}

// Sample feeds one phase offset sample (nanoseconds) and returns the
// correction to apply, advancing the phase A->B->C state machine as needed.
func (s *ThreePhaseServo) Sample(offsetNS int64) Correction {
	switch s.ph {
	case phaseOffsetCorrection:
		return s.sampleOffsetCorrection(offsetNS)
	case phaseDriftBaseline:
		return s.sampleDriftBaseline(offsetNS)
	default:
		return s.sampleDriftEvaluation(offsetNS)
	}
}

func (s *ThreePhaseServo) sampleOffsetCorrection(offsetNS int64) Correction {
	if abs64(offsetNS) > s.cfg.StepThresholdNS {
		s.convergedRun = 0
		return Correction{Kind: Step}
	}
	if abs64(offsetNS) <= s.cfg.ConvergeOffsetNS {
		s.convergedRun++
	} else {
		s.convergedRun = 0
	}
	ppb := clampPPB(s.cfg.Kp*float64(offsetNS), s.cfg.MaxCorrection)
	if s.convergedRun >= s.cfg.ConvergeSamples {
		log.Debug("three-phase servo: offset converged, entering DRIFT_BASELINE")
		s.ph = phaseDriftBaseline
		s.baselineCount = 0
		s.baselineSum = 0
	}
	return Correction{Kind: Slew, PPB: ppb}
}

func (s *ThreePhaseServo) sampleDriftBaseline(offsetNS int64) Correction {
	if s.baselineCount > 0 {
		s.baselineSum += offsetNS - s.lastOffset
	}
	s.lastOffset = offsetNS
	s.baselineCount++
	if s.baselineCount >= s.cfg.BaselinePulses {
		s.baselineDrift = 0
		if s.baselineCount > 1 {
			s.baselineDrift = float64(s.baselineSum) / float64(s.baselineCount-1)
		}
		s.freqEma = s.baselineDrift
		log.Debugf("three-phase servo: baseline drift %.2f ns/pulse, entering DRIFT_EVALUATION", s.baselineDrift)
		s.ph = phaseDriftEvaluation
		s.haveLast = false
	}
	// frequency corrections frozen during baseline measurement
	return Correction{Kind: Hold}
}

func (s *ThreePhaseServo) sampleDriftEvaluation(offsetNS int64) Correction {
	if abs64(offsetNS) > s.cfg.EmergencyStepNS {
		s.ph = phaseOffsetCorrection
		s.convergedRun = 0
		return Correction{Kind: Step}
	}
	df := float64(offsetNS)
	if s.haveLast {
		df = float64(offsetNS - s.lastOffset)
	}
	s.haveLast = true
	s.lastOffset = offsetNS
	s.freqEma = s.cfg.EmaAlpha*df + (1-s.cfg.EmaAlpha)*s.freqEma
	return Correction{Kind: Slew, PPB: clampPPB(s.freqEma, s.cfg.MaxCorrection)}
}

// Reset returns the servo to its initial OFFSET_CORRECTION phase.
func (s *ThreePhaseServo) Reset() {
	s.ph = phaseOffsetCorrection
	s.convergedRun = 0
	s.baselineCount = 0
	s.baselineSum = 0
	s.baselineDrift = 0
	s.freqEma = 0
	s.haveLast = false
}

// State maps the internal phase onto the shared lock State vocabulary.
func (s *ThreePhaseServo) State() State {
	switch s.ph {
	case phaseOffsetCorrection:
		if s.convergedRun > 0 {
			return StateFilter
		}
		return StateJump
	case phaseDriftBaseline:
		return StateFilter
	default:
		return StateLocked
	}
}
