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
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
)

var procStartTime = time.Now()

// logProcessStats reports this process's own CPU/RSS footprint, the same
// self-monitoring signal the teacher's sptp client collects for its own
// runtime stats, so an operator watching gmd's logs can tell a runaway
// worker loop from a healthy one.
func logProcessStats() {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warnf("gmd: reading process stats: %v", err)
		return
	}
	cpuPct, _ := proc.Percent(0)
	mem, err := proc.MemoryInfo()
	var rss uint64
	if err == nil && mem != nil {
		rss = mem.RSS
	}
	log.Debugf("gmd: uptime=%s cpu_pct=%.2f rss_bytes=%d", time.Since(procStartTime), cpuPct, rss)
}
