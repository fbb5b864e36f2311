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

func TestThreePhaseServoStepsOnLargeStartupOffset(t *testing.T) {
	s := NewThreePhaseServo(DefaultThreePhaseServoCfg())
	c := s.Sample(5_000_000)
	require.Equal(t, Step, c.Kind)
}

func TestThreePhaseServoProgression(t *testing.T) {
	cfg := DefaultThreePhaseServoCfg()
	s := NewThreePhaseServo(cfg)

	for i := 0; i < cfg.ConvergeSamples; i++ {
		c := s.Sample(100)
		require.Equal(t, Slew, c.Kind)
	}
	require.Equal(t, phaseDriftBaseline, s.ph)

	for i := 0; i < cfg.BaselinePulses-1; i++ {
		c := s.Sample(50)
		require.Equal(t, Hold, c.Kind)
	}
	c := s.Sample(50)
	require.Equal(t, Hold, c.Kind)
	require.Equal(t, phaseDriftEvaluation, s.ph)
	require.Equal(t, StateLocked, s.State())

	c = s.Sample(60)
	require.Equal(t, Slew, c.Kind)
}

func TestThreePhaseServoEmergencyStep(t *testing.T) {
	cfg := DefaultThreePhaseServoCfg()
	s := NewThreePhaseServo(cfg)
	s.ph = phaseDriftEvaluation
	c := s.Sample(cfg.EmergencyStepNS + 1)
	require.Equal(t, Step, c.Kind)
	require.Equal(t, phaseOffsetCorrection, s.ph)
}
