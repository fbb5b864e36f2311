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

// Package bmca implements the Best Master Clock Algorithm: a lexicographic
// comparator over (priority1, clockClass, clockAccuracy,
// offsetScaledLogVariance, priority2, clockIdentity), run on every received
// Announce and on a periodic tick.
package bmca

import (
	"github.com/gnssgm/gmcore/foreignmaster"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
)

// Dataset is the comparable vector BMCA runs over, for either the local
// clock or a foreign master.
type Dataset struct {
	Priority1     uint8
	ClockQuality  ptp.ClockQuality
	Priority2     uint8
	ClockIdentity ptp.ClockIdentity
}

// Compare returns a negative number if a is better than b, a positive number
// if b is better, and zero if the datasets are identical (including
// identity, which only happens for the same clock).
func Compare(a, b Dataset) int {
	if a.Priority1 != b.Priority1 {
		return int(a.Priority1) - int(b.Priority1)
	}
	if a.ClockQuality.ClockClass != b.ClockQuality.ClockClass {
		return int(a.ClockQuality.ClockClass) - int(b.ClockQuality.ClockClass)
	}
	if a.ClockQuality.ClockAccuracy != b.ClockQuality.ClockAccuracy {
		return int(a.ClockQuality.ClockAccuracy) - int(b.ClockQuality.ClockAccuracy)
	}
	if a.ClockQuality.OffsetScaledLogVariance != b.ClockQuality.OffsetScaledLogVariance {
		return int(a.ClockQuality.OffsetScaledLogVariance) - int(b.ClockQuality.OffsetScaledLogVariance)
	}
	if a.Priority2 != b.Priority2 {
		return int(a.Priority2) - int(b.Priority2)
	}
	if a.ClockIdentity != b.ClockIdentity {
		if a.ClockIdentity < b.ClockIdentity {
			return -1
		}
		return 1
	}
	return 0
}

// Action is BMCA's decision for the local PTP port.
type Action uint8

const (
	// ActionBeMaster means the local clock is the best; the port should run
	// (or remain) MASTER.
	ActionBeMaster Action = iota
	// ActionBeSlave means a foreign master is better; the port should run
	// (or remain) SLAVE, tracking SelectedMaster.
	ActionBeSlave
)

// Result is BMCA's output for one evaluation.
type Result struct {
	Action         Action
	SelectedMaster ptp.ClockIdentity
}

// Run compares the local dataset against every currently valid foreign
// master and returns the winning action. Running Run twice with identical
// inputs yields an identical Result (BMCA idempotence).
func Run(local Dataset, foreign []foreignmaster.Master) Result {
	best := local
	var bestID ptp.ClockIdentity
	bestIsLocal := true

	for _, f := range foreign {
		cand := Dataset{
			Priority1:     f.Priority1,
			ClockQuality:  f.ClockQuality,
			Priority2:     f.Priority2,
			ClockIdentity: f.ClockIdentity,
		}
		if Compare(cand, best) < 0 {
			best = cand
			bestID = f.ClockIdentity
			bestIsLocal = false
		}
	}

	if bestIsLocal {
		return Result{Action: ActionBeMaster}
	}
	return Result{Action: ActionBeSlave, SelectedMaster: bestID}
}
