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

package calibrate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSource produces pulses one second apart with a fixed ppm clock error.
type fakeSource struct {
	tRef, tClk int64
	driftPPM   float64
}

func (f *fakeSource) NextPulse() (int64, int64, error) {
	r, c := f.tRef, f.tClk
	f.tRef += 1_000_000_000
	f.tClk += 1_000_000_000 + int64(f.driftPPM*1000)
	return r, c, nil
}

func TestRunMeasuresDriftWithinTolerance(t *testing.T) {
	src := &fakeSource{driftPPM: 100}
	res, err := Run(src, DefaultConfig())
	require.NoError(t, err)
	require.InDelta(t, 100, res.DriftPPM, 0.01)
	require.Equal(t, int32(-100_000), res.InitialFreq)
}

func TestRunRejectsInsaneDrift(t *testing.T) {
	src := &fakeSource{driftPPM: 5000}
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	_, err := Run(src, cfg)
	require.Error(t, err)
}
