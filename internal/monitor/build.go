package monitor

import (
	"fmt"
	"math"
	"strings"

	"codeberg.org/mutker/embedids/internal/algorithm"
	"codeberg.org/mutker/embedids/internal/config"
	"codeberg.org/mutker/embedids/internal/detectors"
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/ids"
	"codeberg.org/mutker/embedids/internal/metric"
)

// Build allocates every history buffer and algorithm slot up front and
// returns a validated registry. Nothing is allocated for the registry
// after this returns.
func Build(metrics []config.MetricConfig) (*ids.Config, error) {
	errFactory := errors.New()

	if len(metrics) > ids.MaxMetrics {
		return nil, errFactory.WithData(errors.ErrConfigInvalid, "too many metrics")
	}

	cfg := &ids.Config{
		Metrics:          make([]ids.MetricConfig, len(metrics)),
		MaxMetrics:       ids.MaxMetrics,
		NumActiveMetrics: len(metrics),
	}

	for i, mc := range metrics {
		kind, ok := metric.ParseKind(mc.Kind)
		if !ok {
			return nil, errFactory.WithData(errors.ErrMetricTypeMismatch, mc.Kind)
		}

		history := mc.History
		if history <= 0 {
			history = config.DefaultHistory
		}

		entry := &cfg.Metrics[i]
		if err := ids.MetricInit(entry, mc.Name, kind,
			make([]metric.Datapoint, history),
			make([]algorithm.Algorithm, len(mc.Algorithms))); err != nil {
			return nil, err
		}
		entry.Metric.Enabled = mc.IsEnabled()

		for _, ac := range mc.Algorithms {
			a, err := buildAlgorithm(kind, ac)
			if err != nil {
				return nil, errFactory.Wrap(errors.CodeOf(err), fmt.Errorf("metric %s: %w", mc.Name, err))
			}
			if err := entry.AddAlgorithm(a); err != nil {
				return nil, err
			}
		}
	}

	if err := ids.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func buildAlgorithm(kind metric.Kind, ac config.AlgorithmConfig) (algorithm.Algorithm, error) {
	a := algorithm.Algorithm{Enabled: ac.IsEnabled()}

	switch strings.ToLower(ac.Type) {
	case "threshold":
		var minValue, maxValue *metric.Value
		if ac.Min != nil {
			v := metric.FromFloat64(kind, *ac.Min)
			minValue = &v
		}
		if ac.Max != nil {
			v := metric.FromFloat64(kind, *ac.Max)
			maxValue = &v
		}
		a.Config = algorithm.ThresholdConfigInit(minValue, maxValue)

	case "trend":
		expected := algorithm.TrendStable
		if ac.Expected != "" {
			t, ok := algorithm.ParseTrend(strings.ToLower(ac.Expected))
			if !ok {
				return a, errors.New().WithData(errors.ErrInvalidParam, "trend "+ac.Expected)
			}
			expected = t
		}
		window := ac.Window
		if window == 0 {
			window = 2
		}
		trend, err := algorithm.TrendConfigInit(window, narrow(ac.MaxSlope), narrow(ac.MaxVariance), expected)
		if err != nil {
			return a, err
		}
		a.Config = trend

	case "custom":
		custom, err := detectors.Build(ac.Detector, ac.Params)
		if err != nil {
			return a, err
		}
		a.Config = custom

	default:
		return a, errors.New().WithData(errors.ErrAlgorithmNotSupported, ac.Type)
	}

	return a, nil
}

func narrow(f float64) float32 {
	if f > math.MaxFloat32 {
		return math.MaxFloat32
	}
	return float32(f)
}
