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

package main

import (
	"fmt"
	"net/http"

	"github.com/gnssgm/gmcore/gm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// healthExporter is the out-of-band status interface spec.md §7 calls for:
// a Prometheus registry of gauges read live off the Grandmaster, in the
// same registry-plus-promhttp idiom as the teacher's sptp/stats exporter.
type healthExporter struct {
	registry   *prometheus.Registry
	listenPort int
}

func newHealthExporter(listenPort int, g *gm.Grandmaster) *healthExporter {
	e := &healthExporter{registry: prometheus.NewRegistry(), listenPort: listenPort}

	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "gmcore_port_state", Help: "current PTP port state (enum ordinal)"},
		func() float64 { return float64(g.PortState()) },
	))
	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "gmcore_holdover_state", Help: "current lock/holdover state (enum ordinal)"},
		func() float64 { return float64(g.HoldoverState()) },
	))
	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "gmcore_holdover_elapsed_seconds", Help: "time spent free-running without a reference"},
		func() float64 { return g.HoldoverElapsed().Seconds() },
	))
	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "gmcore_drift_ppm", Help: "DriftObserver's current drift estimate"},
		func() float64 { return g.DriftEstimate().DriftPPM },
	))
	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "gmcore_offset_mean_ns", Help: "DriftObserver's current mean offset estimate"},
		func() float64 { return g.DriftEstimate().OffsetMeanNS },
	))

	return e
}

// Start serves /metrics until the process exits; errors are logged, not
// fatal, since a scrape endpoint failing to bind shouldn't take the
// grandmaster down with it.
func (e *healthExporter) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	addr := fmt.Sprintf(":%d", e.listenPort)
	log.Infof("gmd: health metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("gmd: health metrics server: %v", err)
	}
}
