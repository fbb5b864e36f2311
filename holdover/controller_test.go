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

package holdover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControllerLocksAfterConsecutiveGoodSamples(t *testing.T) {
	c := New(DefaultConfig())
	require.Equal(t, StateRecovery, c.State())
	var s State
	for i := 0; i < 10; i++ {
		s = c.Sample(true, true, 50, 1)
	}
	require.Equal(t, StateLocked, s)
	require.True(t, c.IsLocked())
}

func TestControllerGoesToHoldoverOnSingleBadSample(t *testing.T) {
	c := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		c.Sample(true, true, 50, 1)
	}
	require.Equal(t, StateLocked, c.State())
	s := c.Sample(false, true, 50, 1)
	require.Equal(t, StateHoldover, s)
}

func TestControllerDegradesAfterOneHour(t *testing.T) {
	c := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		c.Sample(true, true, 50, 1)
	}
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }
	c.Sample(false, true, 50, 1)
	require.Equal(t, StateHoldover, c.State())
	require.False(t, c.Degraded())

	fakeNow = fakeNow.Add(61 * time.Minute)
	require.True(t, c.Degraded())
}

func TestControllerRecoversOnReferenceReturn(t *testing.T) {
	c := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		c.Sample(true, true, 50, 1)
	}
	c.Sample(false, true, 50, 1)
	require.Equal(t, StateHoldover, c.State())
	s := c.Sample(true, true, 50, 1)
	require.Equal(t, StateRecovery, s)
}

func TestControllerStabilityLostRetainsLockedState(t *testing.T) {
	c := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		c.Sample(true, true, 50, 1)
	}
	s := c.Sample(true, true, 5000, 1)
	require.Equal(t, StateLocked, s)
	require.False(t, c.IsLocked())
}
