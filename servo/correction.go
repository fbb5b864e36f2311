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

import ptp "github.com/gnssgm/gmcore/ptp/protocol"

// Kind is the tag of a Correction sum type.
type Kind uint8

// The three actions a Controller may request from the PHC on a given sample.
const (
	// Slew asks the HAL to adjust the PHC frequency by PPB parts per billion.
	Slew Kind = iota
	// Step asks the caller to jump the PHC to the current reference time.
	Step
	// Hold asks the HAL to leave the PHC frequency untouched.
	Hold
)

func (k Kind) String() string {
	switch k {
	case Slew:
		return "SLEW"
	case Step:
		return "STEP"
	case Hold:
		return "HOLD"
	}
	return "UNSUPPORTED"
}

// Correction is the output of a Controller.Sample call. PPB is meaningful
// for Slew. The controllers in this package leave Target zero; on Step the
// caller jumps the PHC to its own reference time.
type Correction struct {
	Kind   Kind
	PPB    int32
	Target ptp.Timestamp
}

// Controller is the common contract both the PI and three-phase servo
// variants satisfy: instantaneous phase error in, a Correction and the
// resulting lock State out.
type Controller interface {
	Sample(offsetNS int64) Correction
	Reset()
	State() State
}
