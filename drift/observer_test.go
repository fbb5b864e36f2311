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
	"testing"

	"github.com/stretchr/testify/require"
)

// feedClean pushes n clean 1Hz samples starting at tRef=0 with a 50us
// initial offset that grows by 100 ns per second (0.1 ppm).
func feedClean(o *Observer, n int) {
	tRef := int64(0)
	tClk := int64(50_000)
	for i := 0; i < n; i++ {
		o.Update(tRef, tClk)
		tRef += 1_000_000_000
		tClk += 1_000_000_000 + 100
	}
}

func TestObserverBecomesTrustworthyAfterMinValidSamples(t *testing.T) {
	cfg := DefaultConfig()
	o := New(cfg)
	feedClean(o, cfg.MinValidSamples-1)
	e := o.Estimate()
	require.False(t, e.Ready)
	// one more sample continuing the same series
	n := int64(cfg.MinValidSamples - 1)
	o.Update(n*1_000_000_000, n*(1_000_000_000+100)+50_000)
	e = o.Estimate()
	require.True(t, e.Ready)
	require.True(t, e.Trustworthy)
}

func TestObserverStepTriggersEpochBumpAndHoldoff(t *testing.T) {
	cfg := DefaultConfig()
	o := New(cfg)
	feedClean(o, cfg.MinValidSamples)
	e := o.Estimate()
	require.True(t, e.Trustworthy)
	epochBefore := o.currentEpoch

	// inject a +2ms offset step
	s := o.Update(int64(cfg.MinValidSamples)*1_000_000_000, int64(cfg.MinValidSamples)*1_000_000_000+50_000+2_000_000)
	require.True(t, s.Flags&FlagOffsetSpike != 0)
	require.Equal(t, epochBefore+1, o.currentEpoch)

	e = o.Estimate()
	require.False(t, e.Trustworthy)
	require.Equal(t, uint64(cfg.HoldoffAfterStepTicks), e.TicksInHoldoff)

	// five clean samples should clear holdoff, same epoch
	tRef := int64(cfg.MinValidSamples+1) * 1_000_000_000
	tClk := tRef + 50_000
	for i := 0; i < 5; i++ {
		o.Update(tRef, tClk)
		tRef += 1_000_000_000
		tClk += 1_000_000_000
	}
	e = o.Estimate()
	require.Equal(t, epochBefore+1, e.CurrentEpoch)
}

func TestObserverNoCrossEpochStatistics(t *testing.T) {
	cfg := DefaultConfig()
	o := New(cfg)
	feedClean(o, cfg.MinValidSamples)
	o.Notify(EventClockStepped)
	e := o.Estimate()
	require.Equal(t, uint64(0), e.TotalSamples)
}

func TestObserverHoldoffImpliesUntrustworthy(t *testing.T) {
	cfg := DefaultConfig()
	o := New(cfg)
	o.Notify(EventReferenceChanged)
	feedClean(o, cfg.HoldoffAfterRefTicks-1)
	e := o.Estimate()
	require.Greater(t, e.TicksInHoldoff, uint64(0))
	require.False(t, e.Trustworthy)
}
