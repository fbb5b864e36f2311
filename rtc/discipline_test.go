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

package rtc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAgingWriter struct {
	lastDelta int8
	calls     int
}

func (f *fakeAgingWriter) WriteAging(delta int8) error {
	f.lastDelta = delta
	f.calls++
	return nil
}

func TestShouldAdjustGatesOnMinSamples(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < 59; i++ {
		d.AddSample(0.5)
	}
	require.False(t, d.ShouldAdjust())
	d.AddSample(0.5)
	require.True(t, d.ShouldAdjust())
}

func TestCalculateLSBAdjustmentClampsAndRounds(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < 60; i++ {
		d.AddSample(0.5)
	}
	require.Equal(t, int8(3), d.CalculateLSBAdjustment())
}

func TestAdjustIssuesOnceAndClearsBuffer(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < 60; i++ {
		d.AddSample(0.5)
	}
	w := &fakeAgingWriter{}
	issued, err := d.Adjust(w)
	require.NoError(t, err)
	require.True(t, issued)
	require.Equal(t, int8(3), w.lastDelta)
	require.Empty(t, d.samples)

	// immediately after, not enough time has passed nor samples accumulated
	d.AddSample(0.5)
	require.False(t, d.ShouldAdjust())
}

func TestAddSampleResetsBufferOnStep(t *testing.T) {
	d := New(DefaultConfig())
	d.AddSample(0.1)
	d.AddSample(2_000_000)
	require.Len(t, d.samples, 0)
}
