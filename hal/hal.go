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

// Package hal names the five platform contracts the grandmaster core
// consumes and never implements byte-level itself: PPS capture, the parsed
// time-of-day stream, the PTP hardware clock, the RTC, and the network
// transport. The Linux adapters in this package (LinuxPhc over the phc
// package, TimerPpsSource, SerialTodSource, UDPPtpNet, NullRtc) satisfy
// these interfaces; the serial wire protocol, I2C register layout, and NMEA
// byte-level parser are explicitly out of scope and are expected to be
// supplied by the platform integration, not by this module.
package hal

import (
	"context"
	"net"
	"time"

	ptp "github.com/gnssgm/gmcore/ptp/protocol"
)

// PpsEdge is one PPS interrupt/ioctl event as delivered to the RT edge loop.
type PpsEdge struct {
	Seq           uint32
	TRefLabelSec  uint64
	TLocalMonoNS  int64
	TPhcNS        int64
	JitterNS      int64
}

// PpsSource is the blocking PPS edge capture contract. Implementations must
// guarantee a monotonically increasing Seq across calls.
type PpsSource interface {
	WaitEdge(ctx context.Context, timeout time.Duration) (PpsEdge, error)
}

// TodObservation is one parsed time-of-day report.
type TodObservation struct {
	UTCSec         uint64
	FixQuality     int
	SatelliteCount int
	ArrivalMonoNS  int64
}

// TodSource is the non-blocking parsed time-of-day stream contract. The
// NMEA byte-level parser itself is out of scope; TodSource is the seam an
// external parser feeds through.
type TodSource interface {
	TryRead() (TodObservation, bool)
}

// Phc is the PTP Hardware Clock contract.
type Phc interface {
	Read() (int64, error)
	AdjustFrequency(ppb int32) error
	Step(target ptp.Timestamp) error
	MaxFreqPPB() int32
}

// Rtc is the real-time clock contract. The I2C register-level protocol is
// out of scope; concrete adapters translate these semantic operations into
// whatever bus transaction the hardware requires.
type Rtc interface {
	Read() (ptp.Timestamp, error)
	Write(ptp.Timestamp) error
	ReadAging() (int8, error)
	WriteAging(int8) error
	ReadTemperature() (float32, bool)
}

// PtpNet is the network transport contract for Announce/Sync/Follow_Up.
type PtpNet interface {
	SendEvent(b []byte) error
	SendGeneral(b []byte) error
	Recv(buf []byte) (n int, src net.IP, rxTimestampNS int64, ok bool)
	TxTimestamp(seq uint16) (int64, bool)
}
