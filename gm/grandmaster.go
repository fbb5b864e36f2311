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

package gm

import (
	"context"
	"time"

	"github.com/gnssgm/gmcore/bmca"
	"github.com/gnssgm/gmcore/calibrate"
	"github.com/gnssgm/gmcore/drift"
	"github.com/gnssgm/gmcore/emitter"
	"github.com/gnssgm/gmcore/foreignmaster"
	"github.com/gnssgm/gmcore/hal"
	"github.com/gnssgm/gmcore/holdover"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	"github.com/gnssgm/gmcore/quality"
	"github.com/gnssgm/gmcore/reference"
	"github.com/gnssgm/gmcore/rtc"
	"github.com/gnssgm/gmcore/servo"
	"github.com/gnssgm/gmcore/timestamp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Grandmaster is the CORE aggregate: it owns every disciplining subsystem
// and the two threads that drive them. The RT edge thread only ever reads
// hal.PpsSource and writes to a bounded SPSC queue; every stateful decision
// (binding, drift estimation, servo, holdover, BMCA, emission) happens on
// the single worker thread, so none of the subsystems above need their own
// internal locking against this package -- they already lock against
// concurrent accessors by other callers (tests, CLI introspection), but the
// worker thread is always their only writer.
type Grandmaster struct {
	cfg Config

	pps    hal.PpsSource
	tod    hal.TodSource
	phc    hal.Phc
	rtcHAL hal.Rtc
	net    hal.PtpNet

	binder     *reference.Binder
	observer   *drift.Observer
	servo      servo.Controller
	hold       *holdover.Controller
	fmTable    *foreignmaster.Table
	port       *bmca.Port
	emit       *emitter.Emitter
	discipline *rtc.Discipline

	edges chan hal.PpsEdge

	satellites    quality.SatelliteInfo
	source        quality.Source
	prevHoldState holdover.State
}

// New wires every subsystem from cfg. The HAL implementations are supplied
// by the platform integration (see the hal package's doc comment); this
// package never talks to hardware directly.
func New(cfg Config, pps hal.PpsSource, tod hal.TodSource, phc hal.Phc, rtcHAL hal.Rtc, net hal.PtpNet) *Grandmaster {
	var ctl servo.Controller
	switch cfg.ServoKind {
	case ServoThreePhase:
		ctl = servo.NewThreePhaseServo(cfg.ThreePhase)
	default:
		ctl = servo.NewGMPiServo(cfg.PI)
	}

	return &Grandmaster{
		cfg:        cfg,
		pps:        pps,
		tod:        tod,
		phc:        phc,
		rtcHAL:     rtcHAL,
		net:        net,
		binder:     reference.New(cfg.Binder),
		observer:   drift.New(cfg.Drift),
		servo:      ctl,
		hold:       holdover.New(cfg.Holdover),
		fmTable:    foreignmaster.New(cfg.ForeignMaster),
		port:       bmca.NewPort(),
		emit:       emitter.New(net, cfg.Emitter),
		discipline: rtc.New(cfg.Rtc),
		edges:      make(chan hal.PpsEdge, cfg.EdgeQueueDepth),
		source:     quality.SourceNone,
	}
}

// Run blocks until ctx is cancelled or a subsystem goroutine returns an
// error, running the RT edge capture loop, the worker loop (which also
// drains the ToD source), the emitter, the periodic BMCA/RTC ticks, and the
// Announce receive loop concurrently.
func (g *Grandmaster) Run(ctx context.Context) error {
	g.runCalibration(ctx)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return g.runEdgeCapture(ctx) })
	eg.Go(func() error { return g.runWorker(ctx) })
	eg.Go(func() error { return g.emit.Run(ctx) })
	eg.Go(func() error { return g.runBmcaTick(ctx) })
	eg.Go(func() error { return g.runRtcTick(ctx) })
	eg.Go(func() error { return g.runAnnounceRecv(ctx) })

	return eg.Wait()
}

// runCalibration measures the PHC's raw frequency error against the PPS
// source before any servo sample is taken, and pre-compensates the PHC
// frequency so the accumulator starts near -drift_ppm instead of zero. A
// failed calibration is non-fatal: the servo still converges from zero, just
// more slowly.
func (g *Grandmaster) runCalibration(ctx context.Context) {
	result, err := calibrate.Run(calibrationPulseSource{ctx: ctx, pps: g.pps}, g.cfg.Calibrate)
	if err != nil {
		log.Warnf("gm: phc calibration: %v; starting servo uncompensated", err)
		return
	}
	if err := g.phc.AdjustFrequency(result.InitialFreq); err != nil {
		log.Warnf("gm: applying calibrated frequency %dppb: %v", result.InitialFreq, err)
		return
	}
	log.Infof("gm: phc calibrated at %.2fppm over %d attempt(s), pre-compensated %dppb", result.DriftPPM, result.Attempts, result.InitialFreq)
}

// calibrationPulseSource adapts hal.PpsSource to calibrate.PulseSource: each
// PPS edge already carries both the local-monotonic and PHC readings the
// calibrator needs.
type calibrationPulseSource struct {
	ctx context.Context
	pps hal.PpsSource
}

func (c calibrationPulseSource) NextPulse() (tRefNS, tClkNS int64, err error) {
	edge, err := c.pps.WaitEdge(c.ctx, 2*time.Second)
	if err != nil {
		return 0, 0, err
	}
	return edge.TLocalMonoNS, edge.TPhcNS, nil
}

// runEdgeCapture is the RT thread: it only blocks on hal.PpsSource and
// writes to the bounded queue. A full queue means the worker has fallen
// behind; the edge is dropped rather than blocking the RT thread, since a
// missed tick is recoverable (DriftObserver treats it as a gap) while a
// stalled capture loop is not.
func (g *Grandmaster) runEdgeCapture(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		edge, err := g.pps.WaitEdge(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("gm: pps edge wait: %v", err)
			continue
		}
		select {
		case g.edges <- edge:
		default:
			log.Warnf("gm: edge queue full, dropping pps seq %d", edge.Seq)
		}
	}
}

// runWorker consumes PPS edges in sequence order and drains the ToD source
// on every edge, guaranteeing the binder sees any available label before
// the edge is handed to the drift observer and servo.
func (g *Grandmaster) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case edge := <-g.edges:
			g.processEdge(edge)
		}
	}
}

func (g *Grandmaster) processEdge(edge hal.PpsEdge) {
	g.binder.ObservePPS(edge.Seq, edge.TLocalMonoNS)

	if obs, ok := g.tod.TryRead(); ok {
		g.binder.ObserveTod(obs.UTCSec, obs.ArrivalMonoNS)
		g.satellites.Count = obs.SatelliteCount
		if g.binder.Locked() {
			g.source = quality.SourcePPS
		}
	}

	ppsValid := g.binder.Locked() && !g.binder.ReferenceBad()
	todValid := !g.binder.ReferenceLost()

	if !ppsValid {
		g.hold.Sample(ppsValid, todValid, 0, 0)
		return
	}

	refSec, ok := g.binder.LabelFor(edge.Seq)
	if !ok {
		return
	}
	tRefNS := int64(refSec) * int64(time.Second)

	sample := g.observer.Update(tRefNS, edge.TPhcNS)
	if !sample.Valid {
		return
	}

	correction := g.servo.Sample(sample.OffsetNS)
	g.applyCorrection(correction, tRefNS)

	freqErrPPB := float64(0)
	if correction.Kind == servo.Slew {
		freqErrPPB = float64(correction.PPB)
	}
	state := g.hold.Sample(ppsValid, todValid, sample.OffsetNS, freqErrPPB)
	if state == holdover.StateLocked && g.prevHoldState == holdover.StateRecovery {
		// lock just reacquired: the integrator and the drift observer's
		// averaging window both carry stale error from before acquisition.
		g.servo.Reset()
		g.observer.Notify(drift.EventClockSlewed)
	}
	g.prevHoldState = state

	cq := quality.Map(state, g.source, g.satellites, g.hold.HoldoverElapsed(), g.observer.Estimate())
	g.publishSnapshot(cq)
}

func (g *Grandmaster) applyCorrection(c servo.Correction, tRefNS int64) {
	switch c.Kind {
	case servo.Step:
		target := ptp.NewTimestamp(time.Unix(0, tRefNS))
		if err := g.phc.Step(target); err != nil {
			log.Warnf("gm: phc step: %v", err)
			return
		}
		g.binder.OnStep()
	case servo.Slew:
		// The servo reports ppb in the same sign convention as its phase
		// offset input (positive offset means the local clock is ahead);
		// negate before handing it to the PHC, as the teacher's pps_source.go
		// negates freqAdj before AdjFreq.
		if err := g.phc.AdjustFrequency(-c.PPB); err != nil {
			log.Warnf("gm: phc adjust frequency: %v", err)
		}
	case servo.Hold:
	}
}

func (g *Grandmaster) publishSnapshot(cq ptp.ClockQuality) {
	g.emit.UpdateSnapshot(emitter.Snapshot{
		ClockIdentity: g.cfg.ClockIdentity,
		Priority1:     g.cfg.Priority1,
		Priority2:     g.cfg.Priority2,
		ClockQuality:  cq,
		TimeSource:    ptp.TimeSourceGNSS,
		UTCOffset:     g.cfg.UTCOffset,
		PortState:     g.port.State(),
		DomainNumber:  g.cfg.DomainNumber,
	})
}

// runBmcaTick evaluates BMCA against the foreign master table on every
// BmcaTickInterval and republishes the emitter snapshot when the port state
// changes, so a port state transition is visible to the next scheduled
// Announce.
func (g *Grandmaster) runBmcaTick(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.BmcaTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			g.fmTable.AgeOut(now.UnixNano())
			local := bmca.Dataset{
				Priority1:     g.cfg.Priority1,
				ClockQuality:  quality.Map(g.hold.State(), g.source, g.satellites, g.hold.HoldoverElapsed(), g.observer.Estimate()),
				Priority2:     g.cfg.Priority2,
				ClockIdentity: g.cfg.ClockIdentity,
			}
			r := bmca.Run(local, g.fmTable.Valid())
			if g.port.Apply(r) {
				log.Infof("gm: port state -> %s", g.port.State())
				g.publishSnapshot(local.ClockQuality)
			}
		}
	}
}

// runRtcTick reads the RTC and the disciplined PHC on the RtcTickInterval
// cadence (independent of the ~1Hz PPS edge rate), feeds the RTC-vs-PHC
// drift between consecutive reads to RtcDiscipline, and lets it decide on
// its own cadence whether to trim the RTC aging-offset register.
func (g *Grandmaster) runRtcTick(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.RtcTickInterval)
	defer ticker.Stop()

	var haveLast bool
	var lastRtcNS, lastPhcNS int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rtcTS, err := g.rtcHAL.Read()
			if err != nil {
				log.Warnf("gm: rtc read: %v", err)
				continue
			}
			phcNS, err := g.phc.Read()
			if err != nil {
				log.Warnf("gm: phc read for rtc discipline: %v", err)
				continue
			}
			rtcNS := rtcTS.Time().UnixNano()
			if haveLast {
				dRtcNS := float64(rtcNS - lastRtcNS)
				dPhcNS := float64(phcNS - lastPhcNS)
				if dPhcNS > 0 {
					g.discipline.AddSample((dRtcNS - dPhcNS) / dPhcNS * 1e6)
				}
			}
			lastRtcNS, lastPhcNS, haveLast = rtcNS, phcNS, true

			if issued, err := g.discipline.Adjust(g.rtcHAL); err != nil {
				log.Warnf("gm: rtc discipline adjust: %v", err)
			} else if issued {
				log.Infof("gm: rtc aging register trimmed")
			}
		}
	}
}

// runAnnounceRecv reads packets off the network transport and feeds any
// Announce it finds into the foreign master table -- the only path by
// which BMCA ever sees a competing master in production.
func (g *Grandmaster) runAnnounceRecv(ctx context.Context) error {
	buf := make([]byte, timestamp.PayloadSizeBytes)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, src, rxTS, ok := g.net.Recv(buf)
		if !ok {
			continue
		}
		msgType, err := ptp.ProbeMsgType(buf[:n])
		if err != nil {
			log.Warnf("gm: probing received message type: %v", err)
			continue
		}
		if msgType != ptp.MessageAnnounce {
			continue
		}
		var ann ptp.Announce
		if err := ann.UnmarshalBinary(buf[:n]); err != nil {
			log.Warnf("gm: unmarshaling announce: %v", err)
			continue
		}
		g.ObserveAnnounce(foreignmaster.Master{
			ClockIdentity:      ann.GrandmasterIdentity,
			SourceAddress:      src,
			Priority1:          ann.GrandmasterPriority1,
			Priority2:          ann.GrandmasterPriority2,
			ClockQuality:       ann.GrandmasterClockQuality,
			StepsRemoved:       ann.StepsRemoved,
			TimeSource:         ann.TimeSource,
			LastAnnounceTimeNS: rxTS,
			LastSequenceID:     ann.SequenceID,
		})
	}
}

// ObserveAnnounce feeds a received foreign Announce into the foreign master
// table; called by the platform's PTP receive path. Announces sourced from
// this clock's own identity (multicast loopback) are ignored.
func (g *Grandmaster) ObserveAnnounce(m foreignmaster.Master) {
	if m.ClockIdentity == g.cfg.ClockIdentity {
		return
	}
	g.fmTable.Observe(m)
}

// PortState reports the current PTP port state.
func (g *Grandmaster) PortState() bmca.PortState {
	return g.port.State()
}

// HoldoverState reports the current holdover/lock state, for status
// reporting (e.g. health-check gauges).
func (g *Grandmaster) HoldoverState() holdover.State {
	return g.hold.State()
}

// HoldoverElapsed reports how long the clock has been free-running without
// a valid reference, zero while locked.
func (g *Grandmaster) HoldoverElapsed() time.Duration {
	return g.hold.HoldoverElapsed()
}

// DriftEstimate reports the DriftObserver's current on-demand estimate, for
// status reporting.
func (g *Grandmaster) DriftEstimate() drift.Estimate {
	return g.observer.Estimate()
}
