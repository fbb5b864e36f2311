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

package quality

import (
	"testing"
	"time"

	"github.com/gnssgm/gmcore/drift"
	"github.com/gnssgm/gmcore/holdover"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	"github.com/stretchr/testify/require"
)

func TestMapLockedPPSFourSats(t *testing.T) {
	q := Map(holdover.StateLocked, SourcePPS, SatelliteInfo{Count: 4}, 0, drift.Estimate{})
	require.Equal(t, ptp.ClockQuality{ClockClass: ptp.ClockClass6, ClockAccuracy: ptp.ClockAccuracyNanosecond100, OffsetScaledLogVariance: 0x4E00}, q)
}

func TestMapLockedTodOnlyThreeSats(t *testing.T) {
	q := Map(holdover.StateLocked, SourceTodOnly, SatelliteInfo{Count: 3}, 0, drift.Estimate{})
	require.Equal(t, ptp.ClockClass6, q.ClockClass)
	require.Equal(t, ptp.ClockAccuracyMicrosecond100, q.ClockAccuracy)
	require.Equal(t, uint16(0x5A00), q.OffsetScaledLogVariance)
}

func TestMapHoldoverBeforeAndAfterOneHour(t *testing.T) {
	before := Map(holdover.StateHoldover, SourceNone, SatelliteInfo{}, 3599*time.Second, drift.Estimate{})
	require.Equal(t, ptp.ClockClass7, before.ClockClass)

	after := Map(holdover.StateHoldover, SourceNone, SatelliteInfo{}, 3601*time.Second, drift.Estimate{})
	require.Equal(t, ClockClass187, after.ClockClass)
	require.Equal(t, uint16(0x8000), after.OffsetScaledLogVariance)
}

func TestMapNeverLocked(t *testing.T) {
	q := Map(holdover.StateNone, SourceNone, SatelliteInfo{}, 0, drift.Estimate{})
	require.Equal(t, ClockClass248, q.ClockClass)
	require.Equal(t, ptp.ClockAccuracyUnknown, q.ClockAccuracy)
}
