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

package hal

import (
	"context"
	"fmt"
	"time"

	"github.com/gnssgm/gmcore/phc"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
)

// LinuxPhc implements Phc against a network card's PTP hardware clock
// device, using the same clock_adjtime(2)/ioctl calls the teacher's phc
// package already wraps.
type LinuxPhc struct {
	device     string
	maxFreqPPB int32
}

// NewLinuxPhc resolves iface to its PHC device path.
func NewLinuxPhc(iface string, maxFreqPPB int32) (*LinuxPhc, error) {
	device, err := phc.IfaceToPHCDevice(iface)
	if err != nil {
		return nil, fmt.Errorf("resolving PHC device for %s: %w", iface, err)
	}
	return &LinuxPhc{device: device, maxFreqPPB: maxFreqPPB}, nil
}

// Read returns the PHC's current time as nanoseconds since the Unix epoch.
func (p *LinuxPhc) Read() (int64, error) {
	res, err := phc.TimeAndOffsetFromDevice(p.device, phc.MethodSyscallClockGettime)
	if err != nil {
		return 0, err
	}
	return res.PHCTime.UnixNano(), nil
}

// AdjustFrequency applies a frequency-only correction, in parts per
// billion.
func (p *LinuxPhc) AdjustFrequency(ppb int32) error {
	return phc.ClockAdjFreq(p.device, float64(ppb))
}

// Step jumps the PHC directly to target.
func (p *LinuxPhc) Step(target ptp.Timestamp) error {
	current, err := phc.TimeAndOffsetFromDevice(p.device, phc.MethodSyscallClockGettime)
	if err != nil {
		return err
	}
	return phc.ClockStep(p.device, target.Time().Sub(current.PHCTime))
}

// MaxFreqPPB reports the configured frequency adjustment ceiling.
func (p *LinuxPhc) MaxFreqPPB() int32 { return p.maxFreqPPB }

// TimerPpsSource is a cooperative fallback PpsSource for platforms without
// an interrupt-backed PPS device wired up: it synthesizes one edge per
// second from a ticker and reads the PHC for the coincident timestamp,
// rather than capturing a true hardware PPS edge. Per spec.md's concurrency
// model, "a cooperative single-threaded variant is equally admissible" --
// this is that variant's edge source, not a substitute for real PPS
// hardware where it exists.
type TimerPpsSource struct {
	phc *LinuxPhc
	seq uint32
}

// NewTimerPpsSource constructs a ticker-driven PPS source reading p for the
// coincident PHC timestamp.
func NewTimerPpsSource(p *LinuxPhc) *TimerPpsSource {
	return &TimerPpsSource{phc: p}
}

// WaitEdge blocks until the next second boundary or ctx cancellation.
func (t *TimerPpsSource) WaitEdge(ctx context.Context, timeout time.Duration) (PpsEdge, error) {
	now := time.Now()
	next := now.Truncate(time.Second).Add(time.Second)
	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return PpsEdge{}, ctx.Err()
	case fire := <-timer.C:
		t.seq++
		phcNS, err := t.phc.Read()
		if err != nil {
			return PpsEdge{}, fmt.Errorf("reading PHC on synthesized pps edge: %w", err)
		}
		return PpsEdge{
			Seq:          t.seq,
			TLocalMonoNS: fire.UnixNano(),
			TPhcNS:       phcNS,
		}, nil
	}
}

// NullRtc is the default Rtc when no RTC hardware is configured: aging
// writes are accepted and discarded, so RtcDiscipline never errors when run
// without one.
type NullRtc struct{}

func (NullRtc) Read() (ptp.Timestamp, error)    { return ptp.Timestamp{}, nil }
func (NullRtc) Write(ptp.Timestamp) error       { return nil }
func (NullRtc) ReadAging() (int8, error)        { return 0, nil }
func (NullRtc) WriteAging(int8) error           { return nil }
func (NullRtc) ReadTemperature() (float32, bool) { return 0, false }
