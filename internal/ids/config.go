package ids

import (
	"codeberg.org/mutker/embedids/internal/algorithm"
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
)

const (
	// MaxMetrics bounds Config.MaxMetrics
	MaxMetrics = 32
	// MaxAlgorithmsPerMetric is the slot count the daemon allocates per metric
	MaxAlgorithmsPerMetric = 8
)

// MetricConfig is a registry entry: a metric plus its algorithm slots.
// Algorithms is caller-owned; only the first NumAlgorithms slots are run.
type MetricConfig struct {
	Metric        metric.Metric
	Algorithms    []algorithm.Algorithm
	NumAlgorithms int
}

// Config binds caller-owned metric entries. Only the first
// NumActiveMetrics entries are considered.
type Config struct {
	Metrics          []MetricConfig
	MaxMetrics       int
	NumActiveMetrics int
}

// MetricInit populates cfg from primitives and caller-owned storage. The
// metric starts enabled with no algorithms registered.
func MetricInit(cfg *MetricConfig, name string, kind metric.Kind, history []metric.Datapoint, algorithms []algorithm.Algorithm) error {
	errFactory := errors.New()

	if cfg == nil || name == "" {
		return errFactory.New(errors.ErrInvalidParam)
	}
	if len(name) >= metric.MaxNameLen {
		return errFactory.WithData(errors.ErrMetricNameTooLong, name)
	}
	if !kind.Valid() {
		return errFactory.WithData(errors.ErrMetricTypeMismatch, kind.String())
	}
	if len(history) == 0 {
		return errFactory.WithData(errors.ErrInvalidParam, "history buffer is empty")
	}

	*cfg = MetricConfig{
		Metric: metric.Metric{
			Name:    name,
			Kind:    kind,
			Enabled: true,
			Store:   metric.NewStore(history),
		},
		Algorithms: algorithms,
	}

	return nil
}

// AddAlgorithm appends a into the next free slot.
func (c *MetricConfig) AddAlgorithm(a algorithm.Algorithm) error {
	if c.NumAlgorithms >= len(c.Algorithms) {
		return errors.New().New(errors.ErrBufferFull)
	}
	c.Algorithms[c.NumAlgorithms] = a
	c.NumAlgorithms++
	return nil
}

// active returns the populated algorithm slots.
func (c *MetricConfig) active() []algorithm.Algorithm {
	return c.Algorithms[:min(c.NumAlgorithms, len(c.Algorithms))]
}

// active returns the metric entries that take part in lookups.
func (c *Config) active() []MetricConfig {
	return c.Metrics[:min(max(c.NumActiveMetrics, 0), len(c.Metrics))]
}

// ValidateConfig checks the system-level configuration. Duplicate names
// are rejected because lookups would only ever reach the first one.
func ValidateConfig(cfg *Config) error {
	errFactory := errors.New()

	if cfg == nil || cfg.Metrics == nil {
		return errFactory.New(errors.ErrInvalidParam)
	}
	if cfg.MaxMetrics <= 0 || cfg.MaxMetrics > MaxMetrics {
		return errFactory.WithData(errors.ErrConfigInvalid, struct {
			Field string
			Value int
		}{
			Field: "max_metrics",
			Value: cfg.MaxMetrics,
		})
	}
	if cfg.NumActiveMetrics > len(cfg.Metrics) || cfg.NumActiveMetrics > cfg.MaxMetrics {
		return errFactory.WithData(errors.ErrConfigInvalid, struct {
			Field string
			Value int
		}{
			Field: "num_active_metrics",
			Value: cfg.NumActiveMetrics,
		})
	}

	active := cfg.active()
	for i := range active {
		for j := 0; j < i; j++ {
			if metric.NameEqual(active[i].Metric.Name, active[j].Metric.Name) {
				return errFactory.WithData(errors.ErrConfigInvalid, "duplicate metric "+active[i].Metric.Name)
			}
		}
	}

	return nil
}
