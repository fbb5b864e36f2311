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

package drift

import (
	"math"
	"sort"
	"sync"

	"github.com/eclesh/welford"
)

const nominalRefIntervalNS = 1_000_000_000

// Observer owns a fixed-capacity ring of Samples and produces an Estimate on
// demand. It is single-writer (the worker thread calling Update/Notify),
// multi-reader (status snapshots, BMCA); readers take the same mutex the
// writer does, copying out an Estimate value rather than holding a pointer
// into the ring.
type Observer struct {
	cfg Config

	mu sync.Mutex

	ring     []Sample
	writeIdx int
	filled   int

	seq          uint64
	currentEpoch uint64

	holdoff          int
	ticksInEpoch     uint64
	lastStepDetected bool
	referenceBad     bool
	referenceLost    bool

	havePrev   bool
	prevTRefNS int64
	prevTClkNS int64
	prevOffset int64
}

// New constructs an Observer with the given configuration.
func New(cfg Config) *Observer {
	return &Observer{
		cfg:  cfg,
		ring: make([]Sample, cfg.Capacity),
	}
}

// Update intakes one (reference, local-clock) timestamp pair, runs the spike
// detection pipeline, and pushes the resulting Sample into the ring.
func (o *Observer) Update(tRefNS, tClkNS int64) Sample {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	offset := tClkNS - tRefNS

	s := Sample{
		Seq:      o.seq,
		EpochID:  o.currentEpoch,
		TRefNS:   tRefNS,
		TClkNS:   tClkNS,
		OffsetNS: offset,
		Valid:    true,
	}

	if o.lastStepDetected {
		s.Flags |= FlagEpochBoundary
		o.lastStepDetected = false
	}

	if o.havePrev {
		s.DtRefNS = tRefNS - o.prevTRefNS
		s.DtClkNS = tClkNS - o.prevTClkNS

		// 1. step detection: a jump in offset poisons everything downstream
		// with +-1s-style ambiguity artifacts unless caught here first.
		if abs64(offset-o.prevOffset) > o.cfg.MaxOffsetStepNS {
			s.Flags |= FlagOffsetSpike
			s.Valid = false
			o.bumpEpochLocked()
			s.EpochID = o.currentEpoch
			s.Flags |= FlagEpochBoundary
			o.holdoff = o.cfg.HoldoffAfterStepTicks
		} else {
			// 2. reference-interval validation
			if abs64(s.DtRefNS-nominalRefIntervalNS) > o.cfg.MaxDtRefDeviationNS {
				s.Flags |= FlagDtRefInvalid
				s.Valid = false
			}
			if s.DtClkNS <= 0 {
				s.Flags |= FlagDtClkInvalid
				s.Valid = false
			}

			if s.DtRefNS != 0 {
				s.DriftNSPerS = float64(offset-o.prevOffset) * 1e9 / float64(s.DtRefNS)
			}
			driftPPM := s.DriftNSPerS / 1000.0

			// 3. drift bound
			if math.Abs(driftPPM) > o.cfg.MaxDriftPPM {
				s.Flags |= FlagDriftSpike
				s.Valid = false
			}

			// 4. MAD outlier, only once the epoch has enough valid history
			if s.Valid {
				if o.madOutlierLocked(driftPPM) {
					s.Flags |= FlagDriftSpike
					s.Valid = false
				}
			}
		}
	}

	if o.holdoff > 0 {
		s.Flags |= FlagInHoldoff
		if s.Valid {
			o.holdoff--
		}
	}

	// An offset spike is not carried forward as the previous sample: the
	// new epoch's deltas start from the next sample.
	if s.Flags&FlagOffsetSpike == 0 {
		o.prevTRefNS = tRefNS
		o.prevTClkNS = tClkNS
		o.prevOffset = offset
		o.havePrev = true
	}

	o.ticksInEpoch++

	o.ring[o.writeIdx] = s
	o.writeIdx = (o.writeIdx + 1) % len(o.ring)
	if o.filled < len(o.ring) {
		o.filled++
	}

	return s
}

func (o *Observer) bumpEpochLocked() {
	o.currentEpoch++
	o.ticksInEpoch = 0
	o.havePrev = false
}

// madOutlierLocked rejects driftPPM via median absolute deviation once at
// least cfg.MinValidSamples valid, in-epoch drift values are available.
func (o *Observer) madOutlierLocked(driftPPM float64) bool {
	vals := o.epochDriftValuesLocked()
	if len(vals) < o.cfg.MinValidSamples {
		return false
	}
	median := medianOf(vals)
	deviations := make([]float64, len(vals))
	for i, v := range vals {
		deviations[i] = math.Abs(v - median)
	}
	mad := medianOf(deviations)
	if mad == 0 {
		return false
	}
	return math.Abs(driftPPM-median) > o.cfg.OutlierMADSigma*mad
}

func (o *Observer) epochDriftValuesLocked() []float64 {
	var vals []float64
	for i := 0; i < o.filled; i++ {
		s := o.ring[i]
		if s.Valid && s.EpochID == o.currentEpoch {
			vals = append(vals, s.DriftNSPerS/1000.0)
		}
	}
	return vals
}

func medianOf(vals []float64) float64 {
	cp := append([]float64(nil), vals...)
	sort.Float64s(cp)
	n := len(cp)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return cp[n/2]
	}
	return (cp[n/2-1] + cp[n/2]) / 2
}

// Estimate computes the observer's current statistical snapshot from the
// samples belonging to the current epoch only.
func (o *Observer) Estimate() Estimate {
	o.mu.Lock()
	defer o.mu.Unlock()

	var total, valid uint64
	var offsets, refTimes, driftsPPM []float64
	for i := 0; i < o.filled; i++ {
		s := o.ring[i]
		if s.EpochID != o.currentEpoch {
			continue
		}
		total++
		if !s.Valid {
			continue
		}
		valid++
		offsets = append(offsets, float64(s.OffsetNS))
		refTimes = append(refTimes, float64(s.TRefNS))
		if s.DtRefNS != 0 {
			driftsPPM = append(driftsPPM, s.DriftNSPerS/1000.0)
		}
	}

	e := Estimate{
		CurrentEpoch:   o.currentEpoch,
		TicksInEpoch:   o.ticksInEpoch,
		TicksInHoldoff: uint64(o.holdoff),
		TotalSamples:   total,
		ValidSamples:   valid,
	}

	e.Ready = int(valid) >= o.cfg.MinValidSamples
	if len(offsets) > 0 {
		offStats := welford.New()
		for _, v := range offsets {
			offStats.Add(v)
		}
		e.OffsetMeanNS = offStats.Mean()
		e.OffsetStddevNS = offStats.Stddev()
		e.OffsetMedianNS = medianOf(offsets)
		e.JitterNSRMS = rmsOf(offsets, e.OffsetMeanNS)
	}
	if len(driftsPPM) > 0 {
		driftStats := welford.New()
		for _, v := range driftsPPM {
			driftStats.Add(v)
		}
		switch o.cfg.Method {
		case MethodLinearRegression:
			e.DriftPPM = linearRegressionSlopePPM(refTimes, offsets)
		default:
			e.DriftPPM = driftStats.Mean()
		}
		e.DriftStddevPPM = driftStats.Stddev()
	}

	e.HealthFlags = o.healthFlagsLocked(e)
	e.Trustworthy = e.Ready && o.holdoff == 0 && e.DriftStddevPPM < o.cfg.MaxDriftStddevPPM

	return e
}

func (o *Observer) healthFlagsLocked(e Estimate) HealthFlag {
	var h HealthFlag
	if !e.Ready {
		h |= HealthNotReady
	}
	if o.holdoff > 0 {
		h |= HealthInHoldoff
	}
	if o.referenceBad {
		h |= HealthReferenceBad
	}
	if o.referenceLost {
		h |= HealthMissingTicks
	}
	if e.TotalSamples > e.ValidSamples {
		h |= HealthWindowContaminated
	}
	if e.JitterNSRMS > o.cfg.MaxJitterNSRMS {
		h |= HealthJitterTooHigh
	}
	if e.OffsetStddevNS > o.cfg.MaxOffsetStddevNS {
		h |= HealthOffsetUnstable
	}
	return h
}

// linearRegressionSlopePPM fits offset (ns) against reference time (ns) by
// ordinary least squares and reports the slope in parts per million.
func linearRegressionSlopePPM(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom // ns per ns == unitless fractional drift
	return slope * 1e6
}

func rmsOf(vals []float64, mean float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range vals {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
