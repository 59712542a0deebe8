// Package metrics exposes process resource sampling and the Prometheus
// counters of a filter run.
package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Sample is one snapshot of host and process resource usage
type Sample struct {
	CPUPercent     float64 // system-wide, 0-100
	ProcCPUPercent float64 // this process, can exceed 100 on multi-core
	ProcRSSBytes   uint64  // resident memory of this process (dominated by loaded indexes)
	MemPercent     float64
	DiskReadMBps   float64
	DiskWriteMBps  float64
	Timestamp      time.Time
}

// Collector samples resource usage on an interval, logs it and mirrors it
// into gauges on the run registry
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	cpuGauge  prometheus.Gauge
	rssGauge  prometheus.Gauge
	memGauge  prometheus.Gauge
	diskRead  prometheus.Gauge
	diskWrite prometheus.Gauge

	lastDisk     map[string]disk.IOCountersStat
	lastDiskTime time.Time

	mu   sync.RWMutex
	last *Sample
}

// NewCollector creates a collector. Intervals below one second fall back to 30s.
func NewCollector(interval time.Duration, logger *zap.Logger, reg *Registry) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	f := reg.factory()
	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
		cpuGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "process", Name: "cpu_percent",
			Help: "CPU usage of the tilefilter process",
		}),
		rssGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "process", Name: "rss_bytes",
			Help: "Resident memory of the tilefilter process",
		}),
		memGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "host", Name: "memory_percent",
			Help: "Host memory usage",
		}),
		diskRead: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "host", Name: "disk_read_mbps",
			Help: "Host disk read throughput",
		}),
		diskWrite: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "host", Name: "disk_write_mbps",
			Help: "Host disk write throughput",
		}),
	}
}

// Start samples until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// First sample initializes the disk baseline
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Last returns the most recent sample, nil before the first one
func (c *Collector) Last() *Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) collect() {
	s := &Sample{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcCPUPercent = pct
		}
		if mi, err := c.proc.MemoryInfo(); err == nil {
			s.ProcRSSBytes = mi.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemPercent = vm.UsedPercent
	}
	s.DiskReadMBps, s.DiskWriteMBps = c.diskRates(s.Timestamp)

	c.mu.Lock()
	c.last = s
	c.mu.Unlock()

	c.cpuGauge.Set(s.ProcCPUPercent)
	c.rssGauge.Set(float64(s.ProcRSSBytes))
	c.memGauge.Set(s.MemPercent)
	c.diskRead.Set(s.DiskReadMBps)
	c.diskWrite.Set(s.DiskWriteMBps)

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", s.CPUPercent),
		zap.Float64("proc_cpu", s.ProcCPUPercent),
		zap.String("proc_rss", FormatBytes(s.ProcRSSBytes)),
		zap.Float64("mem_pct", s.MemPercent),
		zap.String("disk_r", fmt.Sprintf("%.1f MB/s", s.DiskReadMBps)),
		zap.String("disk_w", fmt.Sprintf("%.1f MB/s", s.DiskWriteMBps)),
	)
}

// diskRates returns read and write throughput since the previous call
func (c *Collector) diskRates(now time.Time) (readMBps, writeMBps float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}

	last, lastTime := c.lastDisk, c.lastDiskTime
	c.lastDisk, c.lastDiskTime = counters, now
	if last == nil {
		return 0, 0
	}

	elapsed := now.Sub(lastTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var readDelta, writeDelta uint64
	for name, cur := range counters {
		prev, ok := last[name]
		if !ok {
			continue
		}
		// Counters may wrap
		if cur.ReadBytes >= prev.ReadBytes {
			readDelta += cur.ReadBytes - prev.ReadBytes
		}
		if cur.WriteBytes >= prev.WriteBytes {
			writeDelta += cur.WriteBytes - prev.WriteBytes
		}
	}

	const mb = 1024 * 1024
	return float64(readDelta) / elapsed / mb, float64(writeDelta) / elapsed / mb
}

// FormatBytes renders a byte count with a binary unit, e.g. "1.5 GB"
func FormatBytes(b uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/gb)
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/mb)
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/kb)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
