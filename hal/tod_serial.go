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
	"bufio"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// LineParser turns one line read off the ToD serial stream into an
// observation. The NMEA byte-level grammar itself is out of scope for this
// module; LineParser is the seam a platform integration plugs a real parser
// into (e.g. a $GPZDA/$GPRMC decoder).
type LineParser func(line string) (TodObservation, error)

// SerialTodSource is a TodSource backed by a serial port, in the style of
// this codebase's other go.bug.st/serial consumers: open the port, read
// lines on a background goroutine, and hand back only the most recent
// parsed observation to non-blocking TryRead callers.
type SerialTodSource struct {
	port   serial.Port
	parse  LineParser
	latest chan TodObservation
}

// OpenSerialTodSource opens device at baud and starts the background reader.
func OpenSerialTodSource(device string, baud int, parse LineParser) (*SerialTodSource, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening ToD serial device %s: %w", device, err)
	}
	s := &SerialTodSource{
		port:   port,
		parse:  parse,
		latest: make(chan TodObservation, 1),
	}
	go s.readLoop()
	return s, nil
}

func (s *SerialTodSource) readLoop() {
	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		arrival := time.Now().UnixNano()
		obs, err := s.parse(scanner.Text())
		if err != nil {
			log.Debugf("tod serial: discarding unparseable line: %v", err)
			continue
		}
		obs.ArrivalMonoNS = arrival
		select {
		case <-s.latest:
		default:
		}
		s.latest <- obs
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("tod serial: read loop ended: %v", err)
	}
}

// TryRead returns the most recently parsed observation, if any arrived since
// the last call.
func (s *SerialTodSource) TryRead() (TodObservation, bool) {
	select {
	case obs := <-s.latest:
		return obs, true
	default:
		return TodObservation{}, false
	}
}

// Close releases the underlying serial port.
func (s *SerialTodSource) Close() error {
	return s.port.Close()
}
