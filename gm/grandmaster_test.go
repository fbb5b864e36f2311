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

package gm

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gnssgm/gmcore/bmca"
	"github.com/gnssgm/gmcore/hal"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	"github.com/stretchr/testify/require"
)

type fakePps struct{}

func (fakePps) WaitEdge(ctx context.Context, timeout time.Duration) (hal.PpsEdge, error) {
	<-ctx.Done()
	return hal.PpsEdge{}, ctx.Err()
}

type fakeTod struct{}

func (fakeTod) TryRead() (hal.TodObservation, bool) { return hal.TodObservation{}, false }

type fakePhc struct {
	freqCalls []int32
	stepCalls []ptp.Timestamp
}

func (f *fakePhc) Read() (int64, error) { return 0, nil }
func (f *fakePhc) AdjustFrequency(ppb int32) error {
	f.freqCalls = append(f.freqCalls, ppb)
	return nil
}
func (f *fakePhc) Step(target ptp.Timestamp) error {
	f.stepCalls = append(f.stepCalls, target)
	return nil
}
func (f *fakePhc) MaxFreqPPB() int32 { return 500_000 }

type fakeRtc struct{}

func (fakeRtc) Read() (ptp.Timestamp, error)        { return ptp.Timestamp{}, nil }
func (fakeRtc) Write(ptp.Timestamp) error            { return nil }
func (fakeRtc) ReadAging() (int8, error)             { return 0, nil }
func (fakeRtc) WriteAging(int8) error                { return nil }
func (fakeRtc) ReadTemperature() (float32, bool)     { return 0, false }

type fakeNet struct{}

func (fakeNet) SendEvent(b []byte) error   { return nil }
func (fakeNet) SendGeneral(b []byte) error { return nil }
func (fakeNet) Recv(buf []byte) (int, net.IP, int64, bool) { return 0, nil, 0, false }
func (fakeNet) TxTimestamp(seq uint16) (int64, bool)       { return time.Now().UnixNano(), true }

func newTestGrandmaster() (*Grandmaster, *fakePhc) {
	phc := &fakePhc{}
	cfg := DefaultConfig()
	cfg.ClockIdentity = ptp.ClockIdentity(0xABCDEF0123456789)
	g := New(cfg, fakePps{}, fakeTod{}, phc, fakeRtc{}, fakeNet{})
	return g, phc
}

// feedLockedEdges drives the binder to lock by alternating consistent
// PPS/ToD pairs.
func feedLockedEdges(g *Grandmaster, n int) {
	baseMono := int64(0)
	baseUTC := uint64(1_700_000_000)
	for i := 0; i < n; i++ {
		seq := uint32(i)
		mono := baseMono + int64(i)*int64(time.Second)
		g.binder.ObservePPS(seq, mono)
		g.binder.ObserveTod(baseUTC+uint64(i), mono+int64(300*time.Millisecond))
	}
}

func TestProcessEdgeWithoutLockStaysInHoldoverRecovery(t *testing.T) {
	g, phc := newTestGrandmaster()
	g.processEdge(hal.PpsEdge{Seq: 0, TLocalMonoNS: 0, TPhcNS: 0})
	require.Empty(t, phc.freqCalls)
	require.Empty(t, phc.stepCalls)
}

func TestProcessEdgeAppliesSlewOnceLocked(t *testing.T) {
	g, phc := newTestGrandmaster()
	feedLockedEdges(g, g.cfg.Binder.NLock)
	require.True(t, g.binder.Locked())

	seq := uint32(g.cfg.Binder.NLock)
	refSec, ok := g.binder.LabelFor(seq)
	require.True(t, ok)

	tPhc := int64(refSec)*int64(time.Second) + 50_000 // 50us local offset
	g.processEdge(hal.PpsEdge{Seq: seq, TLocalMonoNS: int64(seq) * int64(time.Second), TPhcNS: tPhc})

	require.NotEmpty(t, phc.freqCalls)
}

func TestGrandmasterPortStateDefaultsToInitializing(t *testing.T) {
	g, _ := newTestGrandmaster()
	require.Equal(t, bmca.PortInitializing, g.PortState())
}

func TestGrandmasterRunStopsOnContextCancel(t *testing.T) {
	g, _ := newTestGrandmaster()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Run(ctx)
	require.Error(t, err)
}
