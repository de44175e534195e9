package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/embedids/internal/errors"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	psutilnet "github.com/shirou/gopsutil/net"
)

// Host samples cpu, memory, disk, network and uptime through gopsutil.
type Host struct {
	diskPath string

	mu          sync.Mutex
	lastPackets uint64
	lastAt      time.Time
}

// gopsutil readers that return slices; replaced in tests.
var (
	cpuPercent  = cpu.PercentWithContext
	netCounters = psutilnet.IOCountersWithContext
)

func NewHost(diskPath string) *Host {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Host{diskPath: diskPath}
}

func (h *Host) Name() string { return "host" }

func (h *Host) Close() error { return nil }

func (h *Host) Collect(ctx context.Context) ([]Sample, error) {
	at := timeNow()
	samples := make([]Sample, 0, 5)
	var failed []string

	add := func(name string, v float64) {
		samples = append(samples, Sample{Metric: name, Value: v, Time: at})
	}

	switch pct, err := cpuPercent(ctx, 0, false); {
	case err != nil:
		failed = append(failed, fmt.Sprintf("cpu: %v", err))
	case len(pct) == 0:
		failed = append(failed, "cpu: no data")
	default:
		add(MetricCPUPercent, pct[0])
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		add(MetricMemPercent, vm.UsedPercent)
	} else {
		failed = append(failed, fmt.Sprintf("mem: %v", err))
	}

	if usage, err := disk.UsageWithContext(ctx, h.diskPath); err == nil {
		add(MetricDiskPercent, usage.UsedPercent)
	} else {
		failed = append(failed, fmt.Sprintf("disk %s: %v", h.diskPath, err))
	}

	switch counters, err := netCounters(ctx, false); {
	case err != nil:
		failed = append(failed, fmt.Sprintf("net: %v", err))
	case len(counters) == 0:
		failed = append(failed, "net: no data")
	default:
		if rate, ok := h.packetRate(counters[0].PacketsRecv+counters[0].PacketsSent, at); ok {
			add(MetricNetPacketsRate, rate)
		}
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		add(MetricUptime, float64(uptime))
	} else {
		failed = append(failed, fmt.Sprintf("uptime: %v", err))
	}

	if len(failed) > 0 {
		return samples, errors.New().WithData(ErrHostReadFailed, failed)
	}

	return samples, nil
}

// packetRate turns the cumulative packet counter into packets per second.
// The first reading and counter resets produce no sample.
func (h *Host) packetRate(total uint64, at time.Time) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, prevAt := h.lastPackets, h.lastAt
	h.lastPackets, h.lastAt = total, at

	if prevAt.IsZero() || total < prev {
		return 0, false
	}

	elapsed := at.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return 0, false
	}

	return float64(total-prev) / elapsed, true
}
