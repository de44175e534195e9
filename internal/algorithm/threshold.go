package algorithm

import (
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
)

// ThresholdConfig bounds the latest sample to the closed interval
// [Min, Max]. Bounds are read with the metric's own kind.
type ThresholdConfig struct {
	Min      metric.Value
	Max      metric.Value
	CheckMin bool
	CheckMax bool
}

func (ThresholdConfig) Type() Type { return TypeThreshold }
func (ThresholdConfig) sealed()    {}

// ThresholdConfigInit enables each bound that is given.
func ThresholdConfigInit(minValue, maxValue *metric.Value) ThresholdConfig {
	var cfg ThresholdConfig
	if minValue != nil {
		cfg.Min = *minValue
		cfg.CheckMin = true
	}
	if maxValue != nil {
		cfg.Max = *maxValue
		cfg.CheckMax = true
	}
	return cfg
}

func evaluateThreshold(m *metric.Metric, cfg *ThresholdConfig) error {
	latest, ok := m.Store.Latest()
	if !ok {
		return nil
	}

	var below, above bool
	v := latest.Value

	switch m.Kind {
	case metric.KindUint32:
		below = v.Uint32() < cfg.Min.Uint32()
		above = v.Uint32() > cfg.Max.Uint32()
	case metric.KindUint64:
		below = v.Uint64() < cfg.Min.Uint64()
		above = v.Uint64() > cfg.Max.Uint64()
	case metric.KindFloat, metric.KindPercentage, metric.KindRate:
		below = v.Float() < cfg.Min.Float()
		above = v.Float() > cfg.Max.Float()
	case metric.KindDouble:
		below = v.Double() < cfg.Min.Double()
		above = v.Double() > cfg.Max.Double()
	case metric.KindEnum:
		below = v.Enum() < cfg.Min.Enum()
		above = v.Enum() > cfg.Max.Enum()
	case metric.KindBool:
		// no ordering for booleans
		return nil
	}

	if (cfg.CheckMin && below) || (cfg.CheckMax && above) {
		return errors.New().New(errors.ErrThresholdExceeded)
	}

	return nil
}
