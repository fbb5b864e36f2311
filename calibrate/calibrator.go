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

// Package calibrate performs the one-shot pre-run measurement of a local
// hardware clock's raw frequency error against the GPS reference, so the
// disciplining servo can start from a pre-compensated accumulator instead of
// zero.
package calibrate

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Config tunes the calibration run.
type Config struct {
	// Pulses is how many PPS pulses separate the two measurement points.
	Pulses int
	// MaxAbsDriftPPM rejects a measurement as a sampling error.
	MaxAbsDriftPPM float64
	// MaxAttempts bounds the retry loop on a rejected measurement.
	MaxAttempts int
}

// DefaultConfig returns the tuning used by the disciplining design: 20
// pulses, reject beyond +-2000ppm, retry up to 5 times.
func DefaultConfig() Config {
	return Config{
		Pulses:         20,
		MaxAbsDriftPPM: 2000,
		MaxAttempts:    5,
	}
}

// PulseSource yields successive (t_ref_ns, t_clk_ns) pairs, one per PPS
// edge, blocking until the next edge is available. It is satisfied by the
// HAL's PpsSource + Phc pairing.
type PulseSource interface {
	NextPulse() (tRefNS, tClkNS int64, err error)
}

// Result is the outcome of one calibration attempt.
type Result struct {
	DriftPPM     float64
	Attempts     int
	InitialFreq  int32 // -drift_ppm expressed in ppb, ready to hand to Phc.AdjustFrequency
}

// Run performs the calibration procedure against src, retrying rejected
// measurements up to cfg.MaxAttempts times.
func Run(src PulseSource, cfg Config) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		driftPPM, err := measureOnce(src, cfg.Pulses)
		if err != nil {
			lastErr = err
			continue
		}
		if driftPPM > cfg.MaxAbsDriftPPM || driftPPM < -cfg.MaxAbsDriftPPM {
			log.Warnf("phc calibration: rejecting measurement %.2f ppm as a sampling error (attempt %d/%d)", driftPPM, attempt, cfg.MaxAttempts)
			lastErr = fmt.Errorf("drift %.2fppm exceeds sanity bound %.2fppm", driftPPM, cfg.MaxAbsDriftPPM)
			continue
		}
		return Result{
			DriftPPM:    driftPPM,
			Attempts:    attempt,
			InitialFreq: int32(-driftPPM * 1000), // ppm -> ppb
		}, nil
	}
	return Result{}, fmt.Errorf("phc calibration failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func measureOnce(src PulseSource, pulses int) (float64, error) {
	tRef0, tClk0, err := src.NextPulse()
	if err != nil {
		return 0, fmt.Errorf("capturing calibration start pulse: %w", err)
	}
	var tRefN, tClkN int64
	for i := 0; i < pulses; i++ {
		tRefN, tClkN, err = src.NextPulse()
		if err != nil {
			return 0, fmt.Errorf("capturing calibration pulse %d/%d: %w", i+1, pulses, err)
		}
	}
	refDelta := tRefN - tRef0
	if refDelta == 0 {
		return 0, fmt.Errorf("zero reference interval across %d pulses", pulses)
	}
	clkDelta := tClkN - tClk0
	driftPPM := float64((clkDelta-refDelta)) / float64(refDelta) * 1e6
	return driftPPM, nil
}
