// Package source collects raw telemetry samples for the detection core.
package source

import (
	"context"
	"time"

	"codeberg.org/mutker/embedids/internal/errors"
)

// Metric names emitted by the built-in sources.
const (
	MetricCPUPercent     = "cpu_percent"
	MetricMemPercent     = "mem_percent"
	MetricDiskPercent    = "disk_percent"
	MetricNetPacketsRate = "net_packets_rate"
	MetricUptime         = "uptime_seconds"
	MetricGPUTemperature = "gpu_temperature"
	MetricGPUFanSpeed    = "gpu_fan_speed"
	MetricGPUPower       = "gpu_power_watts"
)

const (
	ErrHostReadFailed = errors.ErrorCode("source_host_read_failed")
	ErrGPUInitFailed  = errors.ErrorCode("source_gpu_init_failed")
	ErrGPUReadFailed  = errors.ErrorCode("source_gpu_read_failed")
)

// Sample is one reading before it is converted to the metric's kind.
type Sample struct {
	Metric string
	Value  float64
	Time   time.Time
}

// Source produces samples on demand. Collect may return partial results
// together with an error when only some readings failed.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]Sample, error)
	Close() error
}

var timeNow = time.Now
