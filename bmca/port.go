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

package bmca

import ptp "github.com/gnssgm/gmcore/ptp/protocol"

// PortState is the PTP port's externally visible state. Transitions are
// driven solely by BMCA's Result.
type PortState uint8

const (
	PortInitializing PortState = iota
	PortListening
	PortMaster
	PortSlave
)

func (p PortState) String() string {
	switch p {
	case PortInitializing:
		return "INITIALIZING"
	case PortListening:
		return "LISTENING"
	case PortMaster:
		return "MASTER"
	case PortSlave:
		return "SLAVE"
	}
	return "UNKNOWN"
}

// Port tracks a PTP port's state and currently selected master, applying
// BMCA's Result on each evaluation. Transitions are idempotent: an unchanged
// winner performs no action beyond confirming the current state.
type Port struct {
	state          PortState
	selectedMaster ptp.ClockIdentity
}

// NewPort constructs a Port in the INITIALIZING state.
func NewPort() *Port {
	return &Port{state: PortInitializing}
}

// Apply feeds one BMCA Result into the port state machine and returns
// whether the state actually changed.
func (p *Port) Apply(r Result) (changed bool) {
	switch r.Action {
	case ActionBeMaster:
		changed = p.state != PortMaster
		p.state = PortMaster
		p.selectedMaster = ptp.ClockIdentity(0)
	case ActionBeSlave:
		changed = p.state != PortSlave || p.selectedMaster != r.SelectedMaster
		p.state = PortSlave
		p.selectedMaster = r.SelectedMaster
	}
	return changed
}

// State reports the port's current state.
func (p *Port) State() PortState { return p.state }

// SelectedMaster reports the clock identity the port is tracking while
// SLAVE; zero while MASTER.
func (p *Port) SelectedMaster() ptp.ClockIdentity { return p.selectedMaster }
