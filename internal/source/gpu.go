package source

import (
	"context"
	"fmt"

	"codeberg.org/mutker/embedids/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const milliWattsToWatts = 1000

// Device is the subset of nvml.Device the GPU source reads.
type Device interface {
	GetName() (string, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
	GetNumFans() (int, nvml.Return)
	GetFanSpeed_v2(int) (uint32, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
}

// GPU samples temperature, mean fan speed and power draw of one device.
type GPU struct {
	device   Device
	name     string
	fanCount int
	shutdown func() nvml.Return
}

// NewGPU initializes NVML and opens the device at index.
func NewGPU(index int) (*GPU, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrGPUInitFailed, newNVMLError(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		return nil, errFactory.Wrap(ErrGPUInitFailed, newNVMLError(ret))
	}

	g, err := NewGPUFromDevice(device)
	if err != nil {
		nvml.Shutdown()
		return nil, err
	}
	g.shutdown = nvml.Shutdown

	return g, nil
}

// NewGPUFromDevice wraps an already opened device. Close does not shut
// NVML down for such sources.
func NewGPUFromDevice(device Device) (*GPU, error) {
	g := &GPU{device: device}

	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		g.name = name
	}

	count, ret := device.GetNumFans()
	if ret != nvml.SUCCESS {
		return nil, errors.New().Wrap(ErrGPUInitFailed, newNVMLError(ret))
	}
	g.fanCount = count

	return g, nil
}

func (g *GPU) Name() string { return "gpu" }

// DeviceName is the marketing name NVML reports, if any.
func (g *GPU) DeviceName() string { return g.name }

func (g *GPU) Close() error {
	if g.shutdown == nil {
		return nil
	}
	if ret := g.shutdown(); ret != nvml.SUCCESS {
		return errors.New().Wrap(errors.ErrShutdownFailed, newNVMLError(ret))
	}
	g.shutdown = nil
	return nil
}

func (g *GPU) Collect(ctx context.Context) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	at := timeNow()
	samples := make([]Sample, 0, 3)
	var failed []error

	if temp, ret := g.device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		samples = append(samples, Sample{Metric: MetricGPUTemperature, Value: float64(temp), Time: at})
	} else {
		failed = append(failed, readError{what: "temperature", ret: ret})
	}

	if g.fanCount > 0 {
		var sum uint32
		read := 0
		for i := 0; i < g.fanCount; i++ {
			speed, ret := g.device.GetFanSpeed_v2(i)
			if ret != nvml.SUCCESS {
				failed = append(failed, readError{what: fmt.Sprintf("fan %d", i), ret: ret})
				continue
			}
			sum += speed
			read++
		}
		if read > 0 {
			samples = append(samples, Sample{Metric: MetricGPUFanSpeed, Value: float64(sum) / float64(read), Time: at})
		}
	}

	if power, ret := g.device.GetPowerUsage(); ret == nvml.SUCCESS {
		samples = append(samples, Sample{Metric: MetricGPUPower, Value: float64(power) / milliWattsToWatts, Time: at})
	} else {
		failed = append(failed, readError{what: "power", ret: ret})
	}

	if len(failed) > 0 {
		return samples, errors.New().WithData(ErrGPUReadFailed, failed)
	}

	return samples, nil
}

// readError defers the NVML error string lookup until it is printed.
type readError struct {
	what string
	ret  nvml.Return
}

func (e readError) Error() string {
	return e.what + ": " + nvml.ErrorString(e.ret)
}

type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}
