package source

import (
	"context"
	"time"

	psutilnet "github.com/shirou/gopsutil/net"
)

// StubEmptyHostReaders makes the cpu and network readers succeed with no
// data until the returned func is called.
func StubEmptyHostReaders() (restore func()) {
	prevCPU, prevNet := cpuPercent, netCounters
	cpuPercent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return nil, nil
	}
	netCounters = func(context.Context, bool) ([]psutilnet.IOCountersStat, error) {
		return nil, nil
	}
	return func() {
		cpuPercent, netCounters = prevCPU, prevNet
	}
}
