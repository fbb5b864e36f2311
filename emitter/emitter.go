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

// Package emitter implements AnnounceSyncEmitter: the periodic Announce and
// Sync/Follow_Up packet lifecycle a PTP master runs while in the MASTER port
// state. It is deliberately one-way: it reads a Snapshot value published by
// the controller on every state change and has no back-reference into it.
package emitter

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gnssgm/gmcore/bmca"
	"github.com/gnssgm/gmcore/hal"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	log "github.com/sirupsen/logrus"
)

// Snapshot is the grandmaster dataset the emitter renders into wire packets.
// It carries no methods and no reference back to its producer.
type Snapshot struct {
	ClockIdentity ptp.ClockIdentity
	Priority1     uint8
	Priority2     uint8
	ClockQuality  ptp.ClockQuality
	StepsRemoved  uint16
	TimeSource    ptp.TimeSource
	UTCOffset     int16
	PortState     bmca.PortState
	DomainNumber  uint8
}

// Config tunes the Announce and Sync intervals. Defaults follow the common
// PTP profile: 1s Announce (logMessageInterval 0), 125ms Sync
// (logMessageInterval -3).
type Config struct {
	AnnounceInterval    time.Duration
	AnnounceLogInterval ptp.LogInterval
	SyncInterval        time.Duration
	SyncLogInterval     ptp.LogInterval
}

// DefaultConfig returns the common 1s Announce / 125ms Sync profile.
func DefaultConfig() Config {
	return Config{
		AnnounceInterval:    time.Second,
		AnnounceLogInterval: 0,
		SyncInterval:        125 * time.Millisecond,
		SyncLogInterval:     -3,
	}
}

// Emitter drives the Announce and Sync/Follow_Up timers. It is silent
// (sends nothing) whenever the latest Snapshot reports a non-MASTER port
// state.
type Emitter struct {
	cfg Config
	net hal.PtpNet

	snap atomic.Pointer[Snapshot]

	mu           sync.Mutex
	announceSeq  uint16
	syncSeq      uint16
	portNumber   uint16
}

// New constructs an Emitter bound to net. UpdateSnapshot must be called at
// least once before Run starts producing traffic.
func New(net hal.PtpNet, cfg Config) *Emitter {
	return &Emitter{cfg: cfg, net: net, portNumber: 1}
}

// UpdateSnapshot publishes the latest grandmaster dataset. Safe to call
// concurrently with Run.
func (e *Emitter) UpdateSnapshot(s Snapshot) {
	e.snap.Store(&s)
}

func (e *Emitter) currentSnapshot() (Snapshot, bool) {
	p := e.snap.Load()
	if p == nil {
		return Snapshot{}, false
	}
	return *p, true
}

// Run blocks, emitting Announce and Sync/Follow_Up pairs on their
// respective tickers until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) error {
	announceTicker := time.NewTicker(e.cfg.AnnounceInterval)
	syncTicker := time.NewTicker(e.cfg.SyncInterval)
	defer announceTicker.Stop()
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-announceTicker.C:
			if err := e.emitAnnounce(); err != nil {
				log.Warnf("emitter: announce: %v", err)
			}
		case <-syncTicker.C:
			if err := e.emitSyncFollowUp(); err != nil {
				log.Warnf("emitter: sync/follow_up: %v", err)
			}
		}
	}
}

func (e *Emitter) emitAnnounce() error {
	snap, ok := e.currentSnapshot()
	if !ok || snap.PortState != bmca.PortMaster {
		return nil
	}

	e.mu.Lock()
	seq := e.announceSeq
	e.announceSeq++
	e.mu.Unlock()

	pkt := &ptp.Announce{
		Header: ptp.Header{
			SdoIDAndMsgType: ptp.NewSdoIDAndMsgType(ptp.MessageAnnounce, 0),
			Version:         ptp.Version,
			MessageLength:   uint16(binary.Size(ptp.AnnounceBody{})) + 34,
			DomainNumber:    snap.DomainNumber,
			FlagField:       ptp.FlagPTPTimescale,
			SourcePortIdentity: ptp.PortIdentity{
				ClockIdentity: snap.ClockIdentity,
				PortNumber:    e.portNumber,
			},
			SequenceID:         seq,
			LogMessageInterval: e.cfg.AnnounceLogInterval,
		},
		AnnounceBody: ptp.AnnounceBody{
			OriginTimestamp:         ptp.NewTimestamp(time.Now()),
			CurrentUTCOffset:        snap.UTCOffset,
			GrandmasterPriority1:    snap.Priority1,
			GrandmasterClockQuality: snap.ClockQuality,
			GrandmasterPriority2:    snap.Priority2,
			GrandmasterIdentity:     snap.ClockIdentity,
			StepsRemoved:            snap.StepsRemoved,
			TimeSource:              snap.TimeSource,
		},
	}
	b, err := pkt.MarshalBinary()
	if err != nil {
		return err
	}
	return e.net.SendGeneral(b)
}

func (e *Emitter) emitSyncFollowUp() error {
	snap, ok := e.currentSnapshot()
	if !ok || snap.PortState != bmca.PortMaster {
		return nil
	}

	e.mu.Lock()
	seq := e.syncSeq
	e.syncSeq++
	e.mu.Unlock()

	sync := &ptp.SyncDelayReq{
		Header: ptp.Header{
			SdoIDAndMsgType: ptp.NewSdoIDAndMsgType(ptp.MessageSync, 0),
			Version:         ptp.Version,
			MessageLength:   uint16(binary.Size(ptp.SyncDelayReqBody{})) + 34,
			DomainNumber:    snap.DomainNumber,
			FlagField:       ptp.FlagTwoStep | ptp.FlagPTPTimescale,
			SourcePortIdentity: ptp.PortIdentity{
				ClockIdentity: snap.ClockIdentity,
				PortNumber:    e.portNumber,
			},
			SequenceID:         seq,
			LogMessageInterval: e.cfg.SyncLogInterval,
		},
		SyncDelayReqBody: ptp.SyncDelayReqBody{
			// Two-step: the origin timestamp carried on the wire is
			// intentionally approximate; the precise value goes out
			// on Follow_Up once the real TX timestamp is known.
			OriginTimestamp: ptp.NewTimestamp(time.Now()),
		},
	}
	b, err := sync.MarshalBinary()
	if err != nil {
		return err
	}
	if err := e.net.SendEvent(b); err != nil {
		return err
	}

	txNS, ok := e.net.TxTimestamp(seq)
	if !ok {
		log.Warnf("emitter: no TX timestamp for sync seq %d, skipping follow_up", seq)
		return nil
	}

	followUp := &ptp.FollowUp{
		Header: ptp.Header{
			SdoIDAndMsgType: ptp.NewSdoIDAndMsgType(ptp.MessageFollowUp, 0),
			Version:         ptp.Version,
			MessageLength:   uint16(binary.Size(ptp.FollowUpBody{})) + 34,
			DomainNumber:    snap.DomainNumber,
			FlagField:       ptp.FlagPTPTimescale,
			SourcePortIdentity: ptp.PortIdentity{
				ClockIdentity: snap.ClockIdentity,
				PortNumber:    e.portNumber,
			},
			SequenceID:         seq,
			LogMessageInterval: e.cfg.SyncLogInterval,
		},
		FollowUpBody: ptp.FollowUpBody{
			PreciseOriginTimestamp: ptp.NewTimestamp(time.Unix(0, txNS)),
		},
	}
	b, err = followUp.MarshalBinary()
	if err != nil {
		return err
	}
	return e.net.SendGeneral(b)
}
