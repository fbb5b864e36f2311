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

package emitter

import (
	"net"
	"sync"
	"testing"

	"github.com/gnssgm/gmcore/bmca"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	"github.com/stretchr/testify/require"
)

type fakeNet struct {
	mu       sync.Mutex
	event    [][]byte
	general  [][]byte
	txStamps map[uint16]int64
}

func newFakeNet() *fakeNet {
	return &fakeNet{txStamps: map[uint16]int64{}}
}

func (f *fakeNet) SendEvent(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), b...)
	f.event = append(f.event, cp)
	return nil
}

func (f *fakeNet) SendGeneral(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), b...)
	f.general = append(f.general, cp)
	return nil
}

func (f *fakeNet) Recv(buf []byte) (int, net.IP, int64, bool) { return 0, nil, 0, false }

func (f *fakeNet) TxTimestamp(seq uint16) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.txStamps[seq]
	if !ok {
		return 0, false
	}
	return ts, true
}

func masterSnapshot() Snapshot {
	return Snapshot{
		ClockIdentity: ptp.ClockIdentity(0x1122334455667788),
		Priority1:     128,
		Priority2:     128,
		ClockQuality:  ptp.ClockQuality{ClockClass: 6, ClockAccuracy: ptp.ClockAccuracyNanosecond100},
		TimeSource:    ptp.TimeSourceGNSS,
		PortState:     bmca.PortMaster,
	}
}

func TestEmitAnnounceSendsWhenMaster(t *testing.T) {
	n := newFakeNet()
	e := New(n, DefaultConfig())
	e.UpdateSnapshot(masterSnapshot())

	require.NoError(t, e.emitAnnounce())
	require.Len(t, n.general, 1)

	var got ptp.Announce
	require.NoError(t, got.UnmarshalBinary(n.general[0]))
	require.Equal(t, ptp.MessageAnnounce, got.Header.MessageType())
	require.Equal(t, ptp.TimeSourceGNSS, got.TimeSource)
	require.EqualValues(t, 0, got.Header.SequenceID)
}

func TestEmitAnnounceSilentWhenSlave(t *testing.T) {
	n := newFakeNet()
	e := New(n, DefaultConfig())
	snap := masterSnapshot()
	snap.PortState = bmca.PortSlave
	e.UpdateSnapshot(snap)

	require.NoError(t, e.emitAnnounce())
	require.Empty(t, n.general)
}

func TestEmitSyncFollowUpSequencesAndUsesTxTimestamp(t *testing.T) {
	n := newFakeNet()
	n.txStamps[0] = 1_700_000_000_123456789
	e := New(n, DefaultConfig())
	e.UpdateSnapshot(masterSnapshot())

	require.NoError(t, e.emitSyncFollowUp())
	require.Len(t, n.event, 1)
	require.Len(t, n.general, 1)

	var sync ptp.SyncDelayReq
	require.NoError(t, sync.UnmarshalBinary(n.event[0]))
	require.EqualValues(t, 0, sync.Header.SequenceID)
	require.NotZero(t, sync.Header.FlagField&ptp.FlagTwoStep)

	var fu ptp.FollowUp
	require.NoError(t, fu.UnmarshalBinary(n.general[0]))
	require.EqualValues(t, 0, fu.Header.SequenceID)
	require.EqualValues(t, 1_700_000_000, fu.PreciseOriginTimestamp.Time().Unix())
}

func TestEmitSyncFollowUpSkipsFollowUpWithoutTxTimestamp(t *testing.T) {
	n := newFakeNet()
	e := New(n, DefaultConfig())
	e.UpdateSnapshot(masterSnapshot())

	require.NoError(t, e.emitSyncFollowUp())
	require.Len(t, n.event, 1)
	require.Empty(t, n.general)
}

func TestEmitBeforeAnySnapshotIsSilent(t *testing.T) {
	n := newFakeNet()
	e := New(n, DefaultConfig())

	require.NoError(t, e.emitAnnounce())
	require.NoError(t, e.emitSyncFollowUp())
	require.Empty(t, n.general)
	require.Empty(t, n.event)
}
