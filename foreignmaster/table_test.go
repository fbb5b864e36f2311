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

package foreignmaster

import (
	"testing"

	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	"github.com/stretchr/testify/require"
)

func idOf(b byte) ptp.ClockIdentity {
	return ptp.ClockIdentity(uint64(b))
}

func TestObserveInsertsAndUpdates(t *testing.T) {
	tb := New(DefaultConfig())
	tb.Observe(Master{ClockIdentity: idOf(1), LastAnnounceTimeNS: 100})
	tb.Observe(Master{ClockIdentity: idOf(1), LastAnnounceTimeNS: 200})
	require.Len(t, tb.Valid(), 1)
	require.Equal(t, int64(200), tb.Valid()[0].LastAnnounceTimeNS)
}

func TestObserveReusesOldestSlotOnOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 2
	tb := New(cfg)
	tb.Observe(Master{ClockIdentity: idOf(1), LastAnnounceTimeNS: 100})
	tb.Observe(Master{ClockIdentity: idOf(2), LastAnnounceTimeNS: 200})
	tb.Observe(Master{ClockIdentity: idOf(3), LastAnnounceTimeNS: 300})
	require.Len(t, tb.Valid(), 2)
	for _, m := range tb.Valid() {
		require.NotEqual(t, idOf(1), m.ClockIdentity)
	}
}

func TestAgeOutInvalidatesStaleEntries(t *testing.T) {
	tb := New(DefaultConfig())
	tb.Observe(Master{ClockIdentity: idOf(1), LastAnnounceTimeNS: 0})
	tb.AgeOut(int64(4 * 1_000_000_000))
	require.Empty(t, tb.Valid())
}
