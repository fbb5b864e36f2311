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
	"fmt"
	"net"
	"sync"

	"github.com/gnssgm/gmcore/dscp"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	"github.com/gnssgm/gmcore/timestamp"
)

// PtpMulticastGroup is the IPv4 multicast address PTP event/general traffic
// is sent to in multicast mode (IEEE 1588-2019 Table 20).
const PtpMulticastGroup = "224.0.1.129"

// UDPPtpNet is a PtpNet backed by UDP/IPv4 multicast, software TX/RX
// timestamped the same way the teacher's ptp4u server and sptp client open
// their event/general sockets.
type UDPPtpNet struct {
	eventConn   *net.UDPConn
	generalConn *net.UDPConn
	eFd         int
	gFd         int
	dst         *net.UDPAddr

	mu      sync.Mutex
	pending map[uint16]int64
}

// NewUDPPtpNet binds the event (319) and general (320) ports on iface,
// joins the PTP multicast group, and enables software send/receive
// timestamping.
func NewUDPPtpNet(iface string, dscpValue int) (*UDPPtpNet, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", iface, err)
	}
	group := net.ParseIP(PtpMulticastGroup)

	eventConn, err := net.ListenMulticastUDP("udp4", ifi, &net.UDPAddr{IP: group, Port: ptp.PortEvent})
	if err != nil {
		return nil, fmt.Errorf("binding event port: %w", err)
	}
	generalConn, err := net.ListenMulticastUDP("udp4", ifi, &net.UDPAddr{IP: group, Port: ptp.PortGeneral})
	if err != nil {
		eventConn.Close()
		return nil, fmt.Errorf("binding general port: %w", err)
	}

	eFd, err := timestamp.ConnFd(eventConn)
	if err != nil {
		eventConn.Close()
		generalConn.Close()
		return nil, fmt.Errorf("getting event socket fd: %w", err)
	}
	gFd, err := timestamp.ConnFd(generalConn)
	if err != nil {
		eventConn.Close()
		generalConn.Close()
		return nil, fmt.Errorf("getting general socket fd: %w", err)
	}

	if err := timestamp.EnableSWTimestamps(eFd); err != nil {
		eventConn.Close()
		generalConn.Close()
		return nil, fmt.Errorf("enabling event socket timestamps: %w", err)
	}
	if err := timestamp.EnableSWTimestampsRx(gFd); err != nil {
		eventConn.Close()
		generalConn.Close()
		return nil, fmt.Errorf("enabling general socket timestamps: %w", err)
	}
	if err := dscp.Enable(eFd, group, dscpValue); err != nil {
		eventConn.Close()
		generalConn.Close()
		return nil, fmt.Errorf("setting event socket dscp: %w", err)
	}
	if err := dscp.Enable(gFd, group, dscpValue); err != nil {
		eventConn.Close()
		generalConn.Close()
		return nil, fmt.Errorf("setting general socket dscp: %w", err)
	}

	return &UDPPtpNet{
		eventConn:   eventConn,
		generalConn: generalConn,
		eFd:         eFd,
		gFd:         gFd,
		dst:         &net.UDPAddr{IP: group, Port: ptp.PortEvent},
		pending:     make(map[uint16]int64),
	}, nil
}

// SendEvent sends b (a Sync or Delay_Req) on the event socket and records a
// software TX timestamp keyed by the message's sequence ID for a later
// TxTimestamp call.
func (u *UDPPtpNet) SendEvent(b []byte) error {
	if _, err := u.eventConn.WriteToUDP(b, &net.UDPAddr{IP: u.dst.IP, Port: ptp.PortEvent}); err != nil {
		return fmt.Errorf("sending event packet: %w", err)
	}
	seqID := uint32(b[30])<<8 | uint32(b[31])
	toob := make([]byte, timestamp.ControlSizeBytes)
	ts, _, err := timestamp.ReadTimeStampSeqIDBuf(u.eFd, toob, seqID)
	if err != nil {
		return nil // best-effort: emitter treats a missing TX timestamp as "skip Follow_Up"
	}
	u.mu.Lock()
	u.pending[uint16(seqID)] = ts.UnixNano()
	u.mu.Unlock()
	return nil
}

// SendGeneral sends b (an Announce or Follow_Up) on the general socket.
func (u *UDPPtpNet) SendGeneral(b []byte) error {
	if _, err := u.generalConn.WriteToUDP(b, &net.UDPAddr{IP: u.dst.IP, Port: ptp.PortGeneral}); err != nil {
		return fmt.Errorf("sending general packet: %w", err)
	}
	return nil
}

// Recv reads one packet off the general socket, where Announce (and any
// Follow_Up/Delay_Resp) traffic from foreign masters arrives; this is the
// grandmaster's only inbound path, since no Delay_Req responder is
// implemented here (see spec.md §1 Non-goals).
func (u *UDPPtpNet) Recv(buf []byte) (int, net.IP, int64, bool) {
	n, saddr, rxTS, err := timestamp.ReadPacketWithRXTimestampBuf(u.gFd, buf, make([]byte, timestamp.ControlSizeBytes))
	if err != nil {
		return 0, nil, 0, false
	}
	return n, timestamp.SockaddrToIP(saddr), rxTS.UnixNano(), true
}

// TxTimestamp returns the software TX timestamp recorded for seq by a prior
// SendEvent call, if one arrived.
func (u *UDPPtpNet) TxTimestamp(seq uint16) (int64, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ns, ok := u.pending[seq]
	if ok {
		delete(u.pending, seq)
	}
	return ns, ok
}

// Close releases both sockets.
func (u *UDPPtpNet) Close() error {
	e := u.eventConn.Close()
	g := u.generalConn.Close()
	if e != nil {
		return e
	}
	return g
}
