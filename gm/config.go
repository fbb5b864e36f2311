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

// Package gm wires ReferenceBinder, DriftObserver, the disciplining servo,
// HoldoverController, ClockQualityMapper, BMCA/ForeignMasterTable,
// AnnounceSyncEmitter and RtcDiscipline into the grandmaster's RT-edge and
// worker concurrency model.
package gm

import (
	"time"

	"github.com/gnssgm/gmcore/bmca"
	"github.com/gnssgm/gmcore/calibrate"
	"github.com/gnssgm/gmcore/drift"
	"github.com/gnssgm/gmcore/emitter"
	"github.com/gnssgm/gmcore/foreignmaster"
	"github.com/gnssgm/gmcore/holdover"
	"github.com/gnssgm/gmcore/quality"
	"github.com/gnssgm/gmcore/reference"
	"github.com/gnssgm/gmcore/rtc"
	"github.com/gnssgm/gmcore/servo"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
)

// ServoKind selects which Controller implementation the grandmaster runs.
type ServoKind uint8

const (
	ServoPI ServoKind = iota
	ServoThreePhase
)

// Config collects every subsystem's tuning plus the grandmaster's own
// identity and domain parameters.
type Config struct {
	ClockIdentity ptp.ClockIdentity
	DomainNumber  uint8
	Priority1     uint8
	Priority2     uint8
	UTCOffset     int16

	ServoKind ServoKind

	EdgeQueueDepth int // SPSC bounded queue depth between the RT edge loop and the worker

	BmcaTickInterval time.Duration
	RtcTickInterval  time.Duration

	Binder     reference.Config
	Drift      drift.Config
	PI         servo.GMPiServoCfg
	ThreePhase servo.ThreePhaseServoCfg
	Holdover   holdover.Config
	Calibrate  calibrate.Config
	ForeignMaster foreignmaster.Config
	Emitter    emitter.Config
	Rtc        rtc.Config
}

// DefaultConfig returns the subsystem defaults from each component's own
// design, plus a conservative 64-entry edge queue and 1s/10s BMCA/RTC
// tick intervals.
func DefaultConfig() Config {
	return Config{
		DomainNumber:   0,
		Priority1:      128,
		Priority2:      128,
		ServoKind:      ServoPI,
		EdgeQueueDepth: 64,

		BmcaTickInterval: time.Second,
		RtcTickInterval:  10 * time.Second,

		Binder:        reference.DefaultConfig(),
		Drift:         drift.DefaultConfig(),
		PI:            servo.DefaultGMPiServoCfg(),
		ThreePhase:    servo.DefaultThreePhaseServoCfg(),
		Holdover:      holdover.DefaultConfig(),
		Calibrate:     calibrate.DefaultConfig(),
		ForeignMaster: foreignmaster.DefaultConfig(),
		Emitter:       emitter.DefaultConfig(),
		Rtc:           rtc.DefaultConfig(),
	}
}
