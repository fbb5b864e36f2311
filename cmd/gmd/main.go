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

// Command gmd runs the GNSS-disciplined PTP grandmaster core.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/fatih/color"
	"github.com/gnssgm/gmcore/gm"
	"github.com/gnssgm/gmcore/hal"
	"github.com/gnssgm/gmcore/leapsectz"
	ptp "github.com/gnssgm/gmcore/ptp/protocol"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	exitOK = iota
	exitConfigError
	exitHALError
	exitReferenceNeverAcquired
)

var (
	ifaceFlag     string
	phcIfaceFlag  string
	gpsFlag       string
	gpsBaudFlag   int
	ppsFlag       string
	rtcFlag       string
	domainFlag    int
	priority1Flag int
	priority2Flag int
	servoFlag     string
	verboseFlag   bool
	dscpFlag      int
	utcOffsetFlag int
	monitorFlag   int
)

func main() {
	root := &cobra.Command{
		Use:   "gmd",
		Short: "GNSS-disciplined PTP grandmaster clock",
		RunE:  run,
	}

	flags := root.Flags()
	flags.StringVar(&ifaceFlag, "interface", "eth0", "network interface the PTP port runs on")
	flags.StringVar(&phcIfaceFlag, "phc", "", "network interface whose PHC is disciplined (defaults to --interface)")
	flags.StringVar(&gpsFlag, "gps", "", "serial device streaming time-of-day reports")
	flags.IntVar(&gpsBaudFlag, "gps-baud", 9600, "baud rate for --gps")
	flags.StringVar(&ppsFlag, "pps", "", "PPS device (unused: this build synthesizes edges from the PHC timer; reserved for a future interrupt-backed source)")
	flags.StringVar(&rtcFlag, "rtc", "", "RTC device for long-window aging discipline (omit to run without one)")
	flags.IntVar(&domainFlag, "domain", 0, "PTP domain number")
	flags.IntVar(&priority1Flag, "priority1", 128, "PTP priority1")
	flags.IntVar(&priority2Flag, "priority2", 128, "PTP priority2")
	flags.StringVar(&servoFlag, "servo", "pi", "servo variant: pi or three-phase")
	flags.BoolVar(&verboseFlag, "verbose", false, "verbose logging")
	flags.IntVar(&dscpFlag, "dscp", 0, "DSCP codepoint to mark outgoing PTP packets with")
	flags.IntVar(&utcOffsetFlag, "utc-offset", -1, "currentUtcOffset advertised in Announce messages (-1: derive from the system leap second table)")
	flags.IntVar(&monitorFlag, "monitoring-port", 4269, "port to serve Prometheus health-check gauges on (0 disables)")

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(exitFromError(err))
	}
}

// exitCodeErr tags an error with the process exit code it should produce.
type exitCodeErr struct {
	code int
	err  error
}

func (e *exitCodeErr) Error() string { return e.err.Error() }

func exitFromError(err error) int {
	var ce *exitCodeErr
	if e, ok := err.(*exitCodeErr); ok {
		ce = e
		return ce.code
	}
	return exitConfigError
}

func run(cmd *cobra.Command, args []string) error {
	log.SetLevel(log.InfoLevel)
	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	}

	if phcIfaceFlag == "" {
		phcIfaceFlag = ifaceFlag
	}
	if servoFlag != "pi" && servoFlag != "three-phase" {
		return &exitCodeErr{exitConfigError, fmt.Errorf("unknown --servo %q", servoFlag)}
	}

	clockIdentity, err := deriveClockIdentity(ifaceFlag)
	if err != nil {
		return &exitCodeErr{exitConfigError, err}
	}

	cfg := gm.DefaultConfig()
	cfg.ClockIdentity = clockIdentity
	cfg.DomainNumber = uint8(domainFlag)
	cfg.Priority1 = uint8(priority1Flag)
	cfg.Priority2 = uint8(priority2Flag)
	if servoFlag == "three-phase" {
		cfg.ServoKind = gm.ServoThreePhase
	}
	if utcOffsetFlag >= 0 {
		cfg.UTCOffset = int16(utcOffsetFlag)
	} else {
		offset, err := currentUTCOffset()
		if err != nil {
			return &exitCodeErr{exitConfigError, fmt.Errorf("deriving UTC offset from system leap second table: %w", err)}
		}
		cfg.UTCOffset = offset
	}

	phcHAL, err := hal.NewLinuxPhc(phcIfaceFlag, 500_000)
	if err != nil {
		return &exitCodeErr{exitHALError, fmt.Errorf("opening PHC: %w", err)}
	}
	pps := hal.NewTimerPpsSource(phcHAL)

	var tod hal.TodSource
	if gpsFlag != "" {
		src, err := hal.OpenSerialTodSource(gpsFlag, gpsBaudFlag, parseTodLine)
		if err != nil {
			return &exitCodeErr{exitHALError, fmt.Errorf("opening gps device: %w", err)}
		}
		defer src.Close()
		tod = src
	} else {
		tod = noTodSource{}
	}

	var rtcHAL hal.Rtc = hal.NullRtc{}
	if rtcFlag != "" {
		log.Warnf("--rtc %s given but this build has no concrete RTC I2C driver wired in; aging discipline is a no-op", rtcFlag)
	}

	ptpNet, err := hal.NewUDPPtpNet(ifaceFlag, dscpFlag)
	if err != nil {
		return &exitCodeErr{exitHALError, fmt.Errorf("opening PTP network transport: %w", err)}
	}
	defer ptpNet.Close()

	grandmaster := gm.New(cfg, pps, tod, phcHAL, rtcHAL, ptpNet)

	if monitorFlag != 0 {
		go newHealthExporter(monitorFlag, grandmaster).Start()
	}
	go sysStatsLoop()

	color.Cyan("gmd: clock identity %s, domain %d, servo %s", clockIdentity, domainFlag, servoFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- grandmaster.Run(ctx) }()

	if err := waitForFirstReference(ctx, grandmaster, 30*time.Second, done); err != nil {
		return err
	}

	color.Green("gmd: reference acquired, port state %s", grandmaster.PortState())
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("gmd: systemd notify: %v", err)
	} else if ok {
		log.Debugf("gmd: notified systemd readiness")
	}

	if err := <-done; err != nil && ctx.Err() == nil {
		return &exitCodeErr{exitHALError, err}
	}
	return nil
}

func sysStatsLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		logProcessStats()
	}
}

// waitForFirstReference blocks until grandmaster's port leaves INITIALIZING,
// the startup grace period elapses, or Run itself returns early. It returns
// nil on success and an exitCodeErr otherwise; when Run has already
// returned, its result is consumed from done here and not put back.
func waitForFirstReference(ctx context.Context, g *gm.Grandmaster, grace time.Duration, done chan error) error {
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &exitCodeErr{exitReferenceNeverAcquired, ctx.Err()}
		case err := <-done:
			if err == nil {
				err = fmt.Errorf("grandmaster exited before acquiring a reference")
			}
			return &exitCodeErr{exitHALError, err}
		case <-deadline.C:
			return &exitCodeErr{exitReferenceNeverAcquired, fmt.Errorf("no reference acquired within startup grace period")}
		case <-ticker.C:
			if g.PortState() != 0 { // anything other than PortInitializing
				return nil
			}
		}
	}
}

// currentUTCOffset derives TAI-UTC: the 10s offset in force before the
// first leap second, plus one for every leap second inserted before now
// according to the system's right/UTC timezone database, the same source
// the teacher's leapsectz package exists to parse.
func currentUTCOffset() (int16, error) {
	leaps, err := leapsectz.Parse()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	count := int16(10)
	for _, l := range leaps {
		if l.Time().Before(now) {
			count++
		}
	}
	return count, nil
}

func deriveClockIdentity(iface string) (ptp.ClockIdentity, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return 0, fmt.Errorf("looking up interface %s: %w", iface, err)
	}
	id, err := ptp.NewClockIdentity(ifi.HardwareAddr)
	if err != nil {
		return 0, fmt.Errorf("deriving clock identity from %s: %w", iface, err)
	}
	return id, nil
}

// parseTodLine is the default LineParser: "utc_sec,sat_count" CSV, a
// placeholder for the NMEA decoder a real deployment supplies (out of
// scope here, see hal.LineParser).
func parseTodLine(line string) (hal.TodObservation, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 2 {
		return hal.TodObservation{}, fmt.Errorf("expected \"utc_sec,sat_count\", got %q", line)
	}
	sec, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return hal.TodObservation{}, fmt.Errorf("parsing utc_sec: %w", err)
	}
	sats, err := strconv.Atoi(parts[1])
	if err != nil {
		return hal.TodObservation{}, fmt.Errorf("parsing sat_count: %w", err)
	}
	return hal.TodObservation{UTCSec: sec, SatelliteCount: sats, FixQuality: 1}, nil
}

type noTodSource struct{}

func (noTodSource) TryRead() (hal.TodObservation, bool) { return hal.TodObservation{}, false }
