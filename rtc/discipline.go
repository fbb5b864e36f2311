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

// Package rtc implements RtcDiscipline: a long-window drift estimator,
// orthogonal to the main servo, that periodically trims the real-time
// clock's aging-offset register.
package rtc

import (
	"math"
	"time"

	"github.com/eclesh/welford"
	log "github.com/sirupsen/logrus"
)

// Config tunes the sampling window and adjustment gates.
type Config struct {
	Capacity          int
	SampleInterval    time.Duration
	MinSamples        int
	MinAdjustInterval time.Duration
	MaxStddevPPM      float64
	LSBStepPPM        float64
	MaxLSBDelta       int8
	StepResetPPM      float64 // a detected RTC-vs-reference step this large (ppm-equivalent over one sample interval) resets the buffer
}

// DefaultConfig returns the thresholds from the RtcDiscipline design: 120
// sample capacity at 10s intervals, adjust only after >=60 samples and
// >=1200s since the last adjustment with stddev<0.3ppm, quantized to 0.1ppm
// per aging LSB, clamped to +-3 LSB.
func DefaultConfig() Config {
	return Config{
		Capacity:          120,
		SampleInterval:    10 * time.Second,
		MinSamples:        60,
		MinAdjustInterval: 1200 * time.Second,
		MaxStddevPPM:      0.3,
		LSBStepPPM:        0.1,
		MaxLSBDelta:       3,
		StepResetPPM:      100_000, // a full second of RTC/reference divergence within one sample interval
	}
}

// Discipline accumulates RTC-vs-disciplined-PHC drift samples and decides
// when to trim the RTC aging-offset register.
type Discipline struct {
	cfg Config

	samples        []float64 // ppm, oldest first
	lastAdjustTime time.Time
	haveLastAdjust bool
	now            func() time.Time
}

// New constructs an empty Discipline.
func New(cfg Config) *Discipline {
	return &Discipline{cfg: cfg, now: time.Now}
}

// AddSample records one drift-ppm observation between the RTC and the
// disciplined PHC. A step of StepResetPPM or more resets the accumulation
// buffer with no adjustment issued.
func (d *Discipline) AddSample(driftPPM float64) {
	if len(d.samples) > 0 {
		last := d.samples[len(d.samples)-1]
		if math.Abs(driftPPM-last) >= d.cfg.StepResetPPM {
			log.Warnf("rtc discipline: detected a %.2fppm step, resetting accumulation buffer", driftPPM-last)
			d.samples = nil
			return
		}
	}
	d.samples = append(d.samples, driftPPM)
	if len(d.samples) > d.cfg.Capacity {
		d.samples = d.samples[len(d.samples)-d.cfg.Capacity:]
	}
}

// ShouldAdjust reports whether enough clean, stable samples have
// accumulated and enough time has passed since the last adjustment.
func (d *Discipline) ShouldAdjust() bool {
	if len(d.samples) < d.cfg.MinSamples {
		return false
	}
	if d.haveLastAdjust && d.now().Sub(d.lastAdjustTime) < d.cfg.MinAdjustInterval {
		return false
	}
	return d.stddevPPM() < d.cfg.MaxStddevPPM
}

func (d *Discipline) stddevPPM() float64 {
	s := welford.New()
	for _, v := range d.samples {
		s.Add(v)
	}
	return s.Stddev()
}

func (d *Discipline) meanPPM() float64 {
	s := welford.New()
	for _, v := range d.samples {
		s.Add(v)
	}
	return s.Mean()
}

// CalculateLSBAdjustment quantizes the mean accumulated drift to whole
// aging-offset LSBs, clamped to +-MaxLSBDelta.
func (d *Discipline) CalculateLSBAdjustment() int8 {
	lsb := math.Round(d.meanPPM() / d.cfg.LSBStepPPM)
	if lsb > float64(d.cfg.MaxLSBDelta) {
		lsb = float64(d.cfg.MaxLSBDelta)
	} else if lsb < -float64(d.cfg.MaxLSBDelta) {
		lsb = -float64(d.cfg.MaxLSBDelta)
	}
	return int8(lsb)
}

// AgingWriter is the HAL surface Discipline drives: writing the trim value
// to the RTC's aging-offset register.
type AgingWriter interface {
	WriteAging(delta int8) error
}

// Adjust issues the computed LSB adjustment to w and clears the
// accumulation buffer, recording the adjustment time. It is a no-op (returns
// false, nil) if ShouldAdjust is currently false.
func (d *Discipline) Adjust(w AgingWriter) (issued bool, err error) {
	if !d.ShouldAdjust() {
		return false, nil
	}
	delta := d.CalculateLSBAdjustment()
	if err := w.WriteAging(delta); err != nil {
		return false, err
	}
	d.samples = nil
	d.lastAdjustTime = d.now()
	d.haveLastAdjust = true
	return true, nil
}
