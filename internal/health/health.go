// Package health periodically logs process and host resource usage, gated
// by configuration. Grounded on admin.go's HandleSystemLoad (gopsutil
// cpu.Info() core counting, /proc/loadavg-style thresholding) and
// instance_reporter-style periodic background logging, adapted from an
// HTTP-request-triggered snapshot into a ticking reporter suited to a
// headless router daemon with no admin HTTP surface of its own.
package health

import (
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Reporter periodically samples CPU and memory usage and logs a warning
// when either crosses a configured threshold.
type Reporter struct {
	Interval      time.Duration
	CPUWarnPct    float64
	MemWarnPct    float64
	stop          chan struct{}
}

// NewReporter constructs a Reporter with the given sampling interval and
// warning thresholds (percent, 0-100). A zero CPUWarnPct/MemWarnPct
// disables that particular warning.
func NewReporter(interval time.Duration, cpuWarnPct, memWarnPct float64) *Reporter {
	return &Reporter{Interval: interval, CPUWarnPct: cpuWarnPct, MemWarnPct: memWarnPct, stop: make(chan struct{})}
}

// Run blocks, sampling at Interval until Stop is called. Intended to run in
// its own goroutine, mirroring the teacher's background-ticker style
// (version_checker.go's StartVersionChecker, websocket.go's
// startStatsLogger).
func (r *Reporter) Run() {
	if r.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sample()
		}
	}
}

// Stop ends the reporting loop.
func (r *Reporter) Stop() {
	close(r.stop)
}

func (r *Reporter) sample() {
	cores := 0
	if info, err := cpu.Info(); err == nil {
		for _, c := range info {
			cores += int(c.Cores)
		}
	}

	pct, err := cpu.Percent(0, false)
	if err != nil || len(pct) == 0 {
		log.Printf("health: cpu sample failed: %v", err)
	} else {
		cpuPct := pct[0]
		status := "ok"
		if r.CPUWarnPct > 0 && cpuPct >= r.CPUWarnPct {
			status = "warning"
		}
		log.Printf("health: cpu=%.1f%% cores=%d status=%s", cpuPct, cores, status)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Printf("health: memory sample failed: %v", err)
		return
	}
	status := "ok"
	if r.MemWarnPct > 0 && vm.UsedPercent >= r.MemWarnPct {
		status = "warning"
	}
	log.Printf("health: mem=%.1f%% used (%d/%d MiB) status=%s", vm.UsedPercent, vm.Used/1024/1024, vm.Total/1024/1024, status)
}
