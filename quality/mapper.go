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

// Package quality translates the holdover controller's state and the drift
// observer's estimate into the IEEE 1588 clockClass/clockAccuracy/
// offsetScaledLogVariance triple advertised in Announce messages.
package quality

import (
	"time"

	"github.com/gnssgm/gmcore/drift"
	"github.com/gnssgm/gmcore/holdover"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
)

// ClockClass187 and ClockClass248 are PTP clock classes the teacher's
// ptp.ClockClass enum does not carry (it only models the GNSS-GM-local
// values 6/7/13/14/52/58/255): 187 is the degraded-holdover class used once
// an oscillator has coasted beyond its rated holdover window, and 248 is the
// "uncalibrated, never locked to any reference" class.
const (
	ClockClass187 ptp.ClockClass = 187
	ClockClass248 ptp.ClockClass = 248
)

// clockAccuracy32 is the ">1s" accuracy code; not present in the teacher's
// enum because it only models values up through SecondGreater10 (0x31).
const clockAccuracy32 ptp.ClockAccuracy = 0x32

// Source describes the reference presently feeding the holdover controller.
type Source uint8

const (
	// SourceNone means no reference has ever been acquired.
	SourceNone Source = iota
	// SourcePPS means a PPS edge with satellite fix backs the current lock.
	SourcePPS
	// SourceTodOnly means only the ToD serial stream (no independent PPS
	// phase confirmation) backs the current lock.
	SourceTodOnly
)

// SatelliteInfo carries the GNSS fix quality the mapper needs to pick
// between the PPS-backed and ToD-only LOCKED rows.
type SatelliteInfo struct {
	Count int
}

// Map is the pure function (ControllerState, holdover_seconds, Estimate) ->
// ClockQuality from the clock-quality design, extended with the GNSS
// satellite count and reference-source distinction needed to choose between
// the two LOCKED rows.
func Map(state holdover.State, source Source, sats SatelliteInfo, holdoverElapsed time.Duration, est drift.Estimate) ptp.ClockQuality {
	switch state {
	case holdover.StateLocked:
		if source == SourcePPS && sats.Count >= 4 {
			return ptp.ClockQuality{
				ClockClass:              ptp.ClockClass6,
				ClockAccuracy:           ptp.ClockAccuracyNanosecond100,
				OffsetScaledLogVariance: 0x4E00,
			}
		}
		if sats.Count >= 3 {
			return ptp.ClockQuality{
				ClockClass:              ptp.ClockClass6,
				ClockAccuracy:           ptp.ClockAccuracyMicrosecond100,
				OffsetScaledLogVariance: 0x5A00,
			}
		}
		// locked but satellite count has not been reported/insufficient:
		// fall through to the never-locked row rather than overstate quality.
		return neverLocked()
	case holdover.StateHoldover:
		if holdoverElapsed < time.Hour {
			return ptp.ClockQuality{
				ClockClass:              ptp.ClockClass7,
				ClockAccuracy:           ptp.ClockAccuracySecondGreater10,
				OffsetScaledLogVariance: 0x7000,
			}
		}
		return ptp.ClockQuality{
			ClockClass:              ClockClass187,
			ClockAccuracy:           clockAccuracy32,
			OffsetScaledLogVariance: 0x8000,
		}
	default:
		return neverLocked()
	}
}

func neverLocked() ptp.ClockQuality {
	return ptp.ClockQuality{
		ClockClass:              ClockClass248,
		ClockAccuracy:           ptp.ClockAccuracyUnknown,
		OffsetScaledLogVariance: 0xFFFF,
	}
}
