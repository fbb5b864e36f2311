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

// Package foreignmaster holds the bounded set of remote masters the port has
// observed via Announce messages, with age-out.
package foreignmaster

import (
	"net"
	"time"

	ptp "github.com/gnssgm/gmcore/ptp/protocol"
)

// Master is one observed remote clock.
type Master struct {
	ClockIdentity       ptp.ClockIdentity
	SourceAddress       net.IP
	Priority1           uint8
	Priority2           uint8
	ClockQuality        ptp.ClockQuality
	StepsRemoved        uint16
	TimeSource          ptp.TimeSource
	LastAnnounceTimeNS  int64
	LastSequenceID      uint16
	Valid               bool
}

// Config tunes table size and the default announce interval used for age-out.
type Config struct {
	Capacity         int
	AnnounceInterval time.Duration
	AgeOutMultiple   int
}

// DefaultConfig returns a 4-slot table aging entries out at 3x a 1s
// announce interval, per the BMCA design.
func DefaultConfig() Config {
	return Config{
		Capacity:         4,
		AnnounceInterval: time.Second,
		AgeOutMultiple:   3,
	}
}

// Table is the fixed-size, oldest-reuse foreign master set. BMCA reads its
// valid entries; the selected master itself is tracked by bmca.Port, not
// here.
type Table struct {
	cfg     Config
	entries []Master
}

// New constructs an empty Table of cfg.Capacity slots.
func New(cfg Config) *Table {
	return &Table{cfg: cfg, entries: make([]Master, 0, cfg.Capacity)}
}

// Observe records an Announce from a remote master, inserting a new slot,
// updating an existing one, or reusing the oldest slot on overflow.
func (t *Table) Observe(m Master) {
	for i := range t.entries {
		if t.entries[i].ClockIdentity == m.ClockIdentity {
			m.Valid = true
			t.entries[i] = m
			return
		}
	}
	m.Valid = true
	if len(t.entries) < t.cfg.Capacity {
		t.entries = append(t.entries, m)
		return
	}
	oldest := 0
	for i := range t.entries {
		if t.entries[i].LastAnnounceTimeNS < t.entries[oldest].LastAnnounceTimeNS {
			oldest = i
		}
	}
	t.entries[oldest] = m
}

// AgeOut invalidates any slot whose last Announce is older than
// AgeOutMultiple x AnnounceInterval relative to nowNS.
func (t *Table) AgeOut(nowNS int64) {
	limit := t.cfg.AnnounceInterval.Nanoseconds() * int64(t.cfg.AgeOutMultiple)
	for i := range t.entries {
		if !t.entries[i].Valid {
			continue
		}
		if nowNS-t.entries[i].LastAnnounceTimeNS > limit {
			t.entries[i].Valid = false
		}
	}
}

// Valid returns a copy of every currently non-aged-out entry.
func (t *Table) Valid() []Master {
	out := make([]Master, 0, len(t.entries))
	for _, m := range t.entries {
		if m.Valid {
			out = append(out, m)
		}
	}
	return out
}
