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

// Package reference binds PPS edges to UTC second labels reported over a
// serial NMEA time-of-day stream, resolving the +-1s ambiguity that a naive
// "read the latest ToD string" scheme introduces.
package reference

import (
	"sync"
	"time"
)

// Policy is the latched relationship between a ToD arrival and the PPS edge
// it labels.
type Policy uint8

const (
	// PolicyUnknown means the binder has not yet latched a policy.
	PolicyUnknown Policy = iota
	// PolicyLabelsLast means the ToD string labels the PPS edge that most
	// recently preceded its arrival (the typical case: 100ms < dt < 700ms).
	PolicyLabelsLast
	// PolicyLabelsNext means the ToD string labels the PPS edge that will
	// occur after its arrival.
	PolicyLabelsNext
)

func (p Policy) String() string {
	switch p {
	case PolicyLabelsLast:
		return "LABELS_LAST"
	case PolicyLabelsNext:
		return "LABELS_NEXT"
	}
	return "UNKNOWN"
}

// Config tunes the binder's lock-acquisition and loss-detection thresholds.
type Config struct {
	// NLock is the number of consecutive consistent-bucket ToD observations
	// required to latch the base pair.
	NLock int
	// BucketLastMin/BucketLastMax bound dt (ToD arrival minus last PPS edge)
	// for the "labels last" bucket.
	BucketLastMin time.Duration
	BucketLastMax time.Duration
	// InconsistentTolerance is carried in Config but not consulted by the
	// Binder: a sample counts as inconsistent when its dt falls in a
	// different bucket from the latched policy, whatever the size of the
	// deviation.
	InconsistentTolerance time.Duration
	// InconsistentK is the number of consecutive inconsistent samples that
	// invalidates the lock and raises REFERENCE_BAD.
	InconsistentK int
	// TodGap is how long without a ToD observation raises the informational
	// REFERENCE_LOST condition.
	TodGap time.Duration
}

// DefaultConfig returns the thresholds from the time-reference association design.
func DefaultConfig() Config {
	return Config{
		NLock:                 5,
		BucketLastMin:         100 * time.Millisecond,
		BucketLastMax:         700 * time.Millisecond,
		InconsistentTolerance: 400 * time.Millisecond,
		InconsistentK:         5,
		TodGap:                10 * time.Second,
	}
}

// Binder associates PPS edges with UTC second labels. All exported methods
// are safe for concurrent use; the critical section held is always short,
// matching the RT-thread/worker-thread split of the concurrency model.
type Binder struct {
	cfg Config

	mu sync.Mutex

	havePPS     bool
	lastPPSSeq  uint32
	lastPPSMono int64
	lastTodMono int64
	haveTod     bool

	policy          Policy
	consistentRun   int
	inconsistentRun int

	locked     bool
	baseSeq    uint32
	baseUTCSec uint64

	referenceBad  bool
	referenceLost bool
}

// New constructs a Binder in its unlocked initial state.
func New(cfg Config) *Binder {
	return &Binder{cfg: cfg}
}

// ObservePPS records the monotonic arrival time of PPS edge seq. seq must be
// monotonically increasing; the RT edge loop guarantees this.
func (b *Binder) ObservePPS(seq uint32, tMonoNS int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.haveTod && tMonoNS-b.lastTodMono > b.cfg.TodGap.Nanoseconds() {
		b.referenceLost = true
	}
	b.lastPPSSeq = seq
	b.lastPPSMono = tMonoNS
	b.havePPS = true
}

// ObserveTod records a parsed ToD second label and its arrival monotonic
// time, and advances the lock-acquisition state machine.
func (b *Binder) ObserveTod(utcSec uint64, tMonoArrivalNS int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.haveTod && tMonoArrivalNS-b.lastTodMono > b.cfg.TodGap.Nanoseconds() {
		b.referenceLost = true
	}
	b.lastTodMono = tMonoArrivalNS
	b.haveTod = true

	if !b.havePPS {
		return
	}

	dt := time.Duration(tMonoArrivalNS - b.lastPPSMono)
	bucket := classifyBucket(dt, b.cfg)

	if !b.locked {
		b.advanceLockAcquisition(bucket, utcSec)
		return
	}

	b.checkOngoingConsistency(bucket)
}

func classifyBucket(dt time.Duration, cfg Config) Policy {
	if dt >= cfg.BucketLastMin && dt < cfg.BucketLastMax {
		return PolicyLabelsLast
	}
	return PolicyLabelsNext
}

func (b *Binder) advanceLockAcquisition(bucket Policy, utcSec uint64) {
	if bucket == b.policy && b.policy != PolicyUnknown {
		b.consistentRun++
	} else {
		b.policy = bucket
		b.consistentRun = 1
	}

	if b.consistentRun < b.cfg.NLock {
		return
	}

	switch b.policy {
	case PolicyLabelsLast:
		b.baseSeq = b.lastPPSSeq
	case PolicyLabelsNext:
		b.baseSeq = b.lastPPSSeq + 1
	}
	b.baseUTCSec = utcSec
	b.locked = true
	b.referenceBad = false
	b.inconsistentRun = 0
}

func (b *Binder) checkOngoingConsistency(bucket Policy) {
	if bucket == b.policy {
		b.inconsistentRun = 0
		return
	}
	b.inconsistentRun++
	if b.inconsistentRun >= b.cfg.InconsistentK {
		b.invalidateLocked()
		b.referenceBad = true
	}
}

// LabelFor returns the UTC second label for PPS edge seq, if the binder is
// currently locked.
func (b *Binder) LabelFor(seq uint32) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.locked {
		return 0, false
	}
	return b.baseUTCSec + uint64(seq-b.baseSeq), true
}

// Locked reports whether the binder currently holds a valid base pair.
func (b *Binder) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// ReferenceBad reports whether the latched policy has been contradicted for
// InconsistentK consecutive observations since the last lock.
func (b *Binder) ReferenceBad() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.referenceBad
}

// ReferenceLost reports the informational condition that the ToD stream has
// gone silent for longer than cfg.TodGap. The base pair remains valid.
func (b *Binder) ReferenceLost() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.referenceLost
}

// OnStep invalidates the base pair and forces a re-lock, as required
// whenever the disciplined clock has stepped.
func (b *Binder) OnStep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidateLocked()
}

func (b *Binder) invalidateLocked() {
	b.locked = false
	b.policy = PolicyUnknown
	b.consistentRun = 0
	b.inconsistentRun = 0
}
