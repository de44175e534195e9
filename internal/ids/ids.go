// Package ids is the detection core: a System binds caller-owned metric
// entries and runs add, analyze and trend operations over them.
//
// A System is not safe for concurrent use. Callers that add and analyze
// from different goroutines must serialize access themselves.
package ids

import (
	"codeberg.org/mutker/embedids/internal/algorithm"
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
)

// Version of the detection core
const Version = "1.0.0"

// System is the handle over a bound Config.
type System struct {
	config      *Config
	initialized bool

	// UserContext is carried for the caller and never read here.
	UserContext any
}

// Init binds cfg and marks s initialized. cfg is referenced, not copied.
func (s *System) Init(cfg *Config) error {
	if s == nil || cfg == nil {
		return errors.New().New(errors.ErrInvalidParam)
	}

	s.config = cfg
	s.initialized = true

	return nil
}

// IsInitialized is safe to call on a nil System.
func (s *System) IsInitialized() bool {
	return s != nil && s.initialized
}

// Cleanup detaches the configuration and zeroes s. The bound Config is
// left untouched.
func (s *System) Cleanup() {
	if s == nil {
		return
	}
	*s = System{}
}

// FindMetric returns the first active entry named name, or nil.
func (s *System) FindMetric(name string) *MetricConfig {
	if !s.IsInitialized() || s.config == nil {
		return nil
	}

	active := s.config.active()
	for i := range active {
		if metric.NameEqual(active[i].Metric.Name, name) {
			return &active[i]
		}
	}

	return nil
}

// lookup applies the guards shared by the name-addressed operations.
func (s *System) lookup(name string) (*MetricConfig, error) {
	errFactory := errors.New()

	if !s.IsInitialized() {
		return nil, errFactory.New(errors.ErrNotInitialized)
	}
	if name == "" {
		return nil, errFactory.New(errors.ErrInvalidParam)
	}

	entry := s.FindMetric(name)
	if entry == nil {
		return nil, errFactory.WithData(errors.ErrMetricNotFound, name)
	}
	if !entry.Metric.Enabled {
		return nil, errFactory.WithData(errors.ErrMetricDisabled, name)
	}

	return entry, nil
}

// AddDatapoint appends a sample to the named metric's history.
func (s *System) AddDatapoint(name string, v metric.Value, timestampMs uint64) error {
	entry, err := s.lookup(name)
	if err != nil {
		return err
	}

	if !entry.Metric.Store.Bound() {
		return errors.New().WithData(errors.ErrInvalidParam, "metric has no history buffer")
	}

	return entry.Metric.Store.Append(v, timestampMs)
}

// AnalyzeMetric runs the named metric's pipeline and returns the first
// anomaly reported, in registration order.
func (s *System) AnalyzeMetric(name string) error {
	entry, err := s.lookup(name)
	if err != nil {
		return err
	}

	return algorithm.Run(&entry.Metric, entry.active())
}

// AnalyzeAll analyzes every enabled active metric in order and stops at
// the first one that reports a failure. Entries are visited by position,
// so unnamed or duplicate entries are analyzed too.
func (s *System) AnalyzeAll() error {
	if !s.IsInitialized() {
		return errors.New().New(errors.ErrNotInitialized)
	}

	active := s.config.active()
	for i := range active {
		if !active[i].Metric.Enabled {
			continue
		}
		if err := algorithm.Run(&active[i].Metric, active[i].active()); err != nil {
			return err
		}
	}

	return nil
}

// GetTrend classifies the direction of the named metric's recent samples.
func (s *System) GetTrend(name string) (algorithm.Trend, error) {
	entry, err := s.lookup(name)
	if err != nil {
		return algorithm.TrendStable, err
	}

	return algorithm.Classify(metric.NewView(&entry.Metric)), nil
}

// ResetAllMetrics clears the history of every active metric, enabled or not.
func (s *System) ResetAllMetrics() error {
	if !s.IsInitialized() {
		return errors.New().New(errors.ErrNotInitialized)
	}

	active := s.config.active()
	for i := range active {
		active[i].Metric.Store.Reset()
	}

	return nil
}

// ErrorString renders err the way GetErrorMessage renders its code.
func ErrorString(err error) string {
	return errors.GetErrorMessage(errors.CodeOf(err))
}
