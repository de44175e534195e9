// Package algorithm implements the per-metric detection pipeline: the
// built-in threshold and trend evaluators and the custom evaluator contract.
package algorithm

import (
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
)

// Type tags an algorithm variant.
type Type uint8

const (
	TypeThreshold Type = iota
	TypeTrend
	TypeCustom
)

func (t Type) String() string {
	switch t {
	case TypeThreshold:
		return "threshold"
	case TypeTrend:
		return "trend"
	case TypeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Config is implemented only by ThresholdConfig, TrendConfig and
// CustomConfig.
type Config interface {
	Type() Type
	sealed()
}

// Algorithm is one slot in a metric's pipeline.
type Algorithm struct {
	Enabled bool
	Config  Config
}

// Type returns the variant tag of the configured algorithm.
func (a *Algorithm) Type() (Type, bool) {
	if a.Config == nil {
		return 0, false
	}
	return a.Config.Type(), true
}

// Init resets a to an empty configuration of type t.
func Init(a *Algorithm, t Type, enabled bool) error {
	errFactory := errors.New()

	if a == nil {
		return errFactory.New(errors.ErrInvalidParam)
	}

	switch t {
	case TypeThreshold:
		a.Config = ThresholdConfig{}
	case TypeTrend:
		a.Config = TrendConfig{}
	case TypeCustom:
		a.Config = CustomConfig{}
	default:
		return errFactory.WithData(errors.ErrAlgorithmNotSupported, t.String())
	}
	a.Enabled = enabled

	return nil
}

// Run executes algos against m in registration order, skipping disabled
// slots. The first failure stops the pipeline and is returned as is.
func Run(m *metric.Metric, algos []Algorithm) error {
	if m == nil {
		return errors.New().New(errors.ErrInvalidParam)
	}

	for i := range algos {
		a := &algos[i]
		if !a.Enabled {
			continue
		}

		var err error
		switch cfg := a.Config.(type) {
		case ThresholdConfig:
			err = evaluateThreshold(m, &cfg)
		case TrendConfig:
			err = evaluateTrend(m, &cfg)
		case CustomConfig:
			err = cfg.evaluate(m)
		default:
			err = errors.New().New(errors.ErrAlgorithmNotSupported)
		}

		if err != nil {
			return err
		}
	}

	return nil
}
