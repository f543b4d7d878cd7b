// Package health periodically samples host CPU and memory stats and
// exports them as metrics, the same gopsutil-backed pattern the source
// SDR server's instance reporter uses for its periodic check-in payload.
package health

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Reporter samples host resource usage on a fixed interval and exposes
// it via Prometheus gauges.
type Reporter struct {
	interval time.Duration

	cpuPercent prometheus.Gauge
	memPercent prometheus.Gauge
	memUsedMB  prometheus.Gauge
}

// NewReporter builds a Reporter sampling every interval.
func NewReporter(interval time.Duration) *Reporter {
	return &Reporter{
		interval: interval,
		cpuPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "audioreceiver_host_cpu_percent",
			Help: "Host-wide CPU utilization percentage, sampled over the reporting interval.",
		}),
		memPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "audioreceiver_host_mem_percent",
			Help: "Host-wide memory utilization percentage.",
		}),
		memUsedMB: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "audioreceiver_host_mem_used_mb",
			Help: "Host-wide memory used, in megabytes.",
		}),
	}
}

// Run samples host stats every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("health: reporter started with %s interval", r.interval)

	r.sample()
	for {
		select {
		case <-ctx.Done():
			log.Printf("health: reporter stopped")
			return
		case <-ticker.C:
			r.sample()
		}
	}
}

func (r *Reporter) sample() {
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		r.cpuPercent.Set(pct[0])
	} else if err != nil {
		log.Printf("health: failed to sample cpu percent: %v", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		r.memPercent.Set(vm.UsedPercent)
		r.memUsedMB.Set(float64(vm.Used) / (1024 * 1024))
	} else {
		log.Printf("health: failed to sample memory: %v", err)
	}
}
