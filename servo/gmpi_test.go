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

package servo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGMPiServoLocksOnSmallOffsets(t *testing.T) {
	s := NewGMPiServo(DefaultGMPiServoCfg())
	var c Correction
	for i := 0; i < 10; i++ {
		c = s.Sample(50)
		require.Equal(t, Slew, c.Kind)
	}
	require.Equal(t, StateLocked, s.State())
}

func TestGMPiServoFirstSampleSteps(t *testing.T) {
	s := NewGMPiServo(DefaultGMPiServoCfg())
	c := s.Sample(2_000_000_000)
	require.Equal(t, Step, c.Kind)
	require.Equal(t, StateJump, s.State())
}

func TestGMPiServoClampsCorrection(t *testing.T) {
	cfg := DefaultGMPiServoCfg()
	s := NewGMPiServo(cfg)
	s.Sample(100) // consume the first-sample path with a small offset
	c := s.Sample(100_000_000_000)
	require.Equal(t, Slew, c.Kind)
	require.LessOrEqual(t, c.PPB, cfg.MaxCorrection)
	require.GreaterOrEqual(t, c.PPB, -cfg.MaxCorrection)
}

func TestGMPiServoReset(t *testing.T) {
	s := NewGMPiServo(DefaultGMPiServoCfg())
	for i := 0; i < 10; i++ {
		s.Sample(50)
	}
	require.Equal(t, StateLocked, s.State())
	s.Reset()
	require.Equal(t, StateInit, s.State())
	require.Equal(t, int64(0), s.integral)
}
