// Package monitor drives the detection core from live telemetry: it
// samples the sources, stores datapoints, runs every metric's pipeline
// and reports detections.
package monitor

import (
	"context"
	"time"

	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/events"
	"codeberg.org/mutker/embedids/internal/ids"
	"codeberg.org/mutker/embedids/internal/logger"
	"codeberg.org/mutker/embedids/internal/metric"
	"codeberg.org/mutker/embedids/internal/observability"
	"codeberg.org/mutker/embedids/internal/source"
)

// Service owns one ids.System and is not safe for concurrent use.
type Service struct {
	system   *ids.System
	registry *ids.Config
	sources  []source.Source
	recorder events.Recorder
	metrics  *observability.Metrics
	interval time.Duration
	log      logger.Logger
}

// Report summarizes one Tick.
type Report struct {
	Samples   int
	Anomalies []*events.Event
}

type Option func(*Service)

func WithRecorder(r events.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// New binds registry to a fresh System. The service takes ownership of
// sources and the recorder and closes them in Close.
func New(registry *ids.Config, sources []source.Source, opts ...Option) (*Service, error) {
	s := &Service{
		system:   &ids.System{},
		registry: registry,
		sources:  sources,
		recorder: events.NewNop(),
		interval: 2 * time.Second,
		log:      logger.With("monitor"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.interval <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidInterval, s.interval.String())
	}
	if err := ids.ValidateConfig(registry); err != nil {
		return nil, err
	}
	if err := s.system.Init(registry); err != nil {
		return nil, err
	}

	return s, nil
}

// System exposes the bound detection core.
func (s *Service) System() *ids.System {
	return s.system
}

// Tick runs one sampling and analysis round.
func (s *Service) Tick(ctx context.Context) (Report, error) {
	var report Report

	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		samples, err := src.Collect(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("source", src.Name()).Msg("Collect failed")
			s.failure("collect", err)
		}

		for _, sample := range samples {
			if s.store(sample) {
				report.Samples++
			}
		}
	}

	at := time.Now()
	for i := range s.active() {
		entry := &s.registry.Metrics[i]
		if !entry.Metric.Enabled {
			continue
		}
		name := entry.Metric.Name

		trend, trendErr := s.system.GetTrend(name)
		if trendErr == nil {
			if s.metrics != nil {
				s.metrics.Trend(name, int(trend))
			}
			s.log.Debug().Str("metric", name).Str("trend", trend.String()).Msg("Trend")
		}

		err := s.system.AnalyzeMetric(name)
		if err == nil {
			continue
		}

		code := errors.CodeOf(err)
		if !errors.IsAnomaly(code) {
			s.log.Error().Err(err).Str("metric", name).Msg("Analysis failed")
			s.failure("analyze", err)
			continue
		}

		value, _ := entry.Metric.Store.Latest()
		v, _ := value.Value.Float64(entry.Metric.Kind)
		event := events.NewEvent(at, name, entry.Metric.Kind.String(), v, code, trend.String())
		report.Anomalies = append(report.Anomalies, event)

		s.log.Warn().
			Str("metric", name).
			Str("code", string(code)).
			Float64("value", v).
			Str("trend", trend.String()).
			Msg(errors.GetErrorMessage(code))

		if s.metrics != nil {
			s.metrics.Anomaly(name, string(code))
		}
		if err := s.recorder.Record(ctx, event); err != nil {
			s.log.Error().Err(err).Msg("Failed to journal event")
			s.failure("record", err)
		}
	}

	if s.metrics != nil {
		s.metrics.Tick()
	}

	return report, nil
}

func (s *Service) store(sample source.Sample) bool {
	entry := s.system.FindMetric(sample.Metric)
	if entry == nil {
		s.log.Debug().Str("metric", sample.Metric).Msg("Ignoring unconfigured metric")
		return false
	}

	v := metric.FromFloat64(entry.Metric.Kind, sample.Value)
	ts := uint64(max(sample.Time.UnixMilli(), 0))

	if err := s.system.AddDatapoint(sample.Metric, v, ts); err != nil {
		if errors.HasCode(err, errors.ErrMetricDisabled) {
			return false
		}
		s.log.Warn().Err(err).Str("metric", sample.Metric).Msg("Failed to store sample")
		s.failure("store", err)
		return false
	}

	if s.metrics != nil {
		s.metrics.Sample(sample.Metric, sample.Value)
	}

	return true
}

func (s *Service) active() []ids.MetricConfig {
	return s.registry.Metrics[:s.registry.NumActiveMetrics]
}

func (s *Service) failure(stage string, err error) {
	if s.metrics != nil {
		s.metrics.Failure(stage, string(errors.CodeOf(err)))
	}
}

// Run ticks until ctx is done. It returns nil on cancellation.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.interval).
		Int("metrics", s.registry.NumActiveMetrics).
		Int("sources", len(s.sources)).
		Msg("Monitoring started")

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			return errors.New().Wrap(errors.ErrMainLoop, err)
		}

		select {
		case <-ctx.Done():
			s.log.Info().Msg("Monitoring stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Close releases sources and the recorder and unbinds the System. It
// returns the first error encountered.
func (s *Service) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	for _, src := range s.sources {
		keep(src.Close())
	}
	keep(s.recorder.Close())
	s.system.Cleanup()

	return first
}
