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

package reference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBinderLocksAfterNConsistentObservations(t *testing.T) {
	b := New(DefaultConfig())
	base := int64(0)
	for i := uint32(0); i < 6; i++ {
		edgeMono := base + int64(i)*int64(time.Second)
		b.ObservePPS(i, edgeMono)
		_, ok := b.LabelFor(i)
		if i < 5 {
			require.False(t, ok)
		}
		b.ObserveTod(1000+uint64(i), edgeMono+int64(200*time.Millisecond))
	}
	require.True(t, b.Locked())
	label, ok := b.LabelFor(5)
	require.True(t, ok)
	require.Equal(t, uint64(1005), label)
}

func TestBinderLabelArithmeticHolds(t *testing.T) {
	b := New(DefaultConfig())
	base := int64(0)
	for i := uint32(0); i < 6; i++ {
		edgeMono := base + int64(i)*int64(time.Second)
		b.ObservePPS(i, edgeMono)
		b.ObserveTod(1000+uint64(i), edgeMono+int64(200*time.Millisecond))
	}
	l5, _ := b.LabelFor(5)
	l10, _ := b.LabelFor(10)
	require.Equal(t, uint64(5), l10-l5)
}

func TestBinderAmbiguityDelaysLock(t *testing.T) {
	b := New(DefaultConfig())
	base := int64(0)
	// first 4 ToDs alternate between the "last" and "next" bucket
	buckets := []time.Duration{200 * time.Millisecond, 900 * time.Millisecond, 200 * time.Millisecond, 900 * time.Millisecond}
	for i, d := range buckets {
		edgeMono := base + int64(i)*int64(time.Second)
		b.ObservePPS(uint32(i), edgeMono)
		b.ObserveTod(1000+uint64(i), edgeMono+int64(d))
		require.False(t, b.Locked())
	}
	// now stabilizes on the "last" bucket for NLock consecutive observations
	for i := 4; i < 4+5; i++ {
		edgeMono := base + int64(i)*int64(time.Second)
		b.ObservePPS(uint32(i), edgeMono)
		b.ObserveTod(1000+uint64(i), edgeMono+int64(200*time.Millisecond))
	}
	require.True(t, b.Locked())
}

func TestBinderOnStepInvalidatesLock(t *testing.T) {
	b := New(DefaultConfig())
	base := int64(0)
	for i := uint32(0); i < 6; i++ {
		edgeMono := base + int64(i)*int64(time.Second)
		b.ObservePPS(i, edgeMono)
		b.ObserveTod(1000+uint64(i), edgeMono+int64(200*time.Millisecond))
	}
	require.True(t, b.Locked())
	b.OnStep()
	require.False(t, b.Locked())
	_, ok := b.LabelFor(5)
	require.False(t, ok)
}

func TestBinderReferenceLostAfterGap(t *testing.T) {
	b := New(DefaultConfig())
	b.ObservePPS(0, 0)
	b.ObserveTod(100, int64(200*time.Millisecond))
	require.False(t, b.ReferenceLost())
	b.ObserveTod(101, int64(200*time.Millisecond)+int64(11*time.Second))
	require.True(t, b.ReferenceLost())
}
