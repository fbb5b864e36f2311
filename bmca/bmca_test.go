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

package bmca

import (
	"testing"

	"github.com/gnssgm/gmcore/foreignmaster"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	"github.com/stretchr/testify/require"
)

func TestRunPrefersBetterForeignMaster(t *testing.T) {
	local := Dataset{
		Priority1:     128,
		ClockQuality:  ptp.ClockQuality{ClockClass: 7, ClockAccuracy: ptp.ClockAccuracyMicrosecond100, OffsetScaledLogVariance: 0x5A00},
		Priority2:     128,
		ClockIdentity: ptp.ClockIdentity(0xAA),
	}
	foreign := []foreignmaster.Master{
		{
			ClockIdentity: ptp.ClockIdentity(0xBB),
			Priority1:     128,
			ClockQuality:  ptp.ClockQuality{ClockClass: 6, ClockAccuracy: ptp.ClockAccuracyNanosecond100, OffsetScaledLogVariance: 0x4E00},
			Priority2:     128,
			Valid:         true,
		},
	}
	r := Run(local, foreign)
	require.Equal(t, ActionBeSlave, r.Action)
	require.Equal(t, ptp.ClockIdentity(0xBB), r.SelectedMaster)
}

func TestRunKeepsLocalMasterWhenBest(t *testing.T) {
	local := Dataset{Priority1: 128, ClockQuality: ptp.ClockQuality{ClockClass: 6}, ClockIdentity: ptp.ClockIdentity(0xAA)}
	r := Run(local, nil)
	require.Equal(t, ActionBeMaster, r.Action)
}

func TestRunIsIdempotent(t *testing.T) {
	local := Dataset{Priority1: 128, ClockQuality: ptp.ClockQuality{ClockClass: 7}, ClockIdentity: ptp.ClockIdentity(0xAA)}
	foreign := []foreignmaster.Master{{ClockIdentity: ptp.ClockIdentity(0xBB), Priority1: 128, ClockQuality: ptp.ClockQuality{ClockClass: 6}, Valid: true}}
	r1 := Run(local, foreign)
	r2 := Run(local, foreign)
	require.Equal(t, r1, r2)
}

func TestPortApplyIsIdempotentOnUnchangedWinner(t *testing.T) {
	p := NewPort()
	r := Result{Action: ActionBeMaster}
	require.True(t, p.Apply(r))
	require.False(t, p.Apply(r))
}
