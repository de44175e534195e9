// Package detectors provides ready-made custom evaluators for the
// algorithm pipeline. Each detector keeps its mutable state in a struct
// owned by the caller and passed through algorithm.CustomConfig.State.
package detectors

import (
	"math"
	"sort"

	"codeberg.org/mutker/embedids/internal/algorithm"
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
)

// Detector names accepted by Build.
const (
	NamePattern      = "pattern"
	NameRateOfChange = "rate_of_change"
	NameVariance     = "variance"
	NameRapidChange  = "rapid_change"
)

var (
	// Pattern raises ErrThresholdExceeded once the mean of the last three
	// samples has strayed from the baseline for MaxViolations calls in a row.
	Pattern algorithm.Evaluator = algorithm.EvaluatorFunc(evaluatePattern)

	// RateOfChange raises ErrThresholdExceeded when the change between the
	// last two samples exceeds the allowed units per second.
	RateOfChange algorithm.Evaluator = algorithm.EvaluatorFunc(evaluateRate)

	// Variance raises ErrStatisticalAnomaly when the population variance of
	// the last Window samples exceeds Threshold.
	Variance algorithm.Evaluator = algorithm.EvaluatorFunc(evaluateVariance)

	// RapidChange raises ErrCustomDetection when a single step between the
	// two latest samples exceeds MaxStep.
	RapidChange algorithm.Evaluator = algorithm.EvaluatorFunc(evaluateRapidChange)
)

const patternSamples = 3

// PatternState is the mutable state of the Pattern detector.
type PatternState struct {
	Baseline              float64
	Multiplier            float64
	MaxViolations         int
	ConsecutiveViolations int
	Calls                 int
}

// RateState is the mutable state of the RateOfChange detector. A *float64
// passed as the slot config overrides MaxRate.
type RateState struct {
	MaxRate    float64
	Calls      int
	LastResult errors.ErrorCode
	LastRate   float64
}

// VarianceState is the mutable state of the Variance detector.
type VarianceState struct {
	Threshold float64
	Window    int
	Calls     int
	Variance  float64
}

// RapidChangeConfig configures the RapidChange detector. It is read-only.
type RapidChangeConfig struct {
	MaxStep    float64
	MinSamples int
}

func invalidState(name string) error {
	return errors.New().WithData(errors.ErrInvalidParam, name+" detector state")
}

func evaluatePattern(m metric.View, _, state any) error {
	st, ok := state.(*PatternState)
	if !ok || st == nil || !m.Valid() {
		return invalidState(NamePattern)
	}

	st.Calls++

	if m.Len() < patternSamples {
		return nil
	}

	var sum float64
	for k := 0; k < patternSamples; k++ {
		v, _ := m.Float64At(k)
		sum += v
	}

	deviation := math.Abs(sum/patternSamples - st.Baseline)
	if deviation <= st.Baseline*st.Multiplier {
		st.ConsecutiveViolations = 0
		return nil
	}

	st.ConsecutiveViolations++
	if st.ConsecutiveViolations < st.MaxViolations {
		return nil
	}

	st.ConsecutiveViolations = 0
	return errors.New().WithData(errors.ErrThresholdExceeded, deviation)
}

func evaluateRate(m metric.View, config, state any) error {
	st, ok := state.(*RateState)
	if !ok || st == nil || !m.Valid() {
		return invalidState(NameRateOfChange)
	}

	st.Calls++
	st.LastResult = errors.ErrOK

	latest, ok := m.Latest()
	if !ok {
		return nil
	}
	previous, ok := m.NthFromLatest(1)
	if !ok || latest.TimestampMs == previous.TimestampMs {
		return nil
	}

	v1, _ := latest.Value.Float64(m.Kind())
	v2, _ := previous.Value.Float64(m.Kind())
	elapsed := math.Abs(float64(latest.TimestampMs)-float64(previous.TimestampMs)) / 1000
	st.LastRate = math.Abs(v1-v2) / elapsed

	maxRate := st.MaxRate
	if limit, ok := config.(*float64); ok && limit != nil {
		maxRate = *limit
	}

	if st.LastRate > maxRate {
		st.LastResult = errors.ErrThresholdExceeded
		return errors.New().WithData(errors.ErrThresholdExceeded, st.LastRate)
	}

	return nil
}

func evaluateVariance(m metric.View, _, state any) error {
	st, ok := state.(*VarianceState)
	if !ok || st == nil || !m.Valid() || st.Window < 1 {
		return invalidState(NameVariance)
	}

	st.Calls++
	st.Variance = 0

	if m.Len() < st.Window {
		return nil
	}

	var sum float64
	for k := 0; k < st.Window; k++ {
		v, _ := m.Float64At(k)
		sum += v
	}
	mean := sum / float64(st.Window)

	var sq float64
	for k := 0; k < st.Window; k++ {
		v, _ := m.Float64At(k)
		sq += (v - mean) * (v - mean)
	}
	st.Variance = sq / float64(st.Window)

	if st.Variance > st.Threshold {
		return errors.New().WithData(errors.ErrStatisticalAnomaly, st.Variance)
	}

	return nil
}

func evaluateRapidChange(m metric.View, config, _ any) error {
	var cfg RapidChangeConfig
	switch c := config.(type) {
	case RapidChangeConfig:
		cfg = c
	case *RapidChangeConfig:
		if c == nil {
			return invalidState(NameRapidChange)
		}
		cfg = *c
	default:
		return invalidState(NameRapidChange)
	}

	if m.Len() < max(cfg.MinSamples, 2) {
		return nil
	}

	current, _ := m.Float64At(0)
	previous, _ := m.Float64At(1)
	if math.Abs(current-previous) > cfg.MaxStep {
		return errors.New().WithData(errors.ErrCustomDetection, current-previous)
	}

	return nil
}

// Names lists the detectors Build understands, sorted.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a detector Build understands.
func Known(name string) bool {
	_, ok := builders[name]
	return ok
}

type builder func(params map[string]float64) (algorithm.CustomConfig, error)

var builders = map[string]builder{
	NamePattern:      buildPattern,
	NameRateOfChange: buildRate,
	NameVariance:     buildVariance,
	NameRapidChange:  buildRapidChange,
}

// Build returns a custom slot for the named detector with freshly
// allocated state. Unknown names yield ErrAlgorithmNotSupported and a
// missing required parameter yields ErrInvalidParam.
func Build(name string, params map[string]float64) (algorithm.CustomConfig, error) {
	b, ok := builders[name]
	if !ok {
		return algorithm.CustomConfig{}, errors.New().WithData(errors.ErrAlgorithmNotSupported, name)
	}
	return b(params)
}

func param(params map[string]float64, key string) (float64, error) {
	v, ok := params[key]
	if !ok || math.IsNaN(v) {
		return 0, errors.New().WithData(errors.ErrInvalidParam, "missing parameter "+key)
	}
	return v, nil
}

func paramOr(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok && !math.IsNaN(v) {
		return v
	}
	return fallback
}

func buildPattern(params map[string]float64) (algorithm.CustomConfig, error) {
	baseline, err := param(params, "baseline")
	if err != nil {
		return algorithm.CustomConfig{}, err
	}
	multiplier, err := param(params, "multiplier")
	if err != nil {
		return algorithm.CustomConfig{}, err
	}

	return algorithm.CustomConfig{
		Evaluator: Pattern,
		State: &PatternState{
			Baseline:      baseline,
			Multiplier:    multiplier,
			MaxViolations: max(int(paramOr(params, "max_violations", 1)), 1),
		},
	}, nil
}

func buildRate(params map[string]float64) (algorithm.CustomConfig, error) {
	maxRate, err := param(params, "max_rate")
	if err != nil {
		return algorithm.CustomConfig{}, err
	}

	return algorithm.CustomConfig{
		Evaluator: RateOfChange,
		State:     &RateState{MaxRate: maxRate},
	}, nil
}

func buildVariance(params map[string]float64) (algorithm.CustomConfig, error) {
	threshold, err := param(params, "threshold")
	if err != nil {
		return algorithm.CustomConfig{}, err
	}
	window := int(paramOr(params, "window", 5))
	if window < 1 {
		return algorithm.CustomConfig{}, errors.New().WithData(errors.ErrInvalidParam, "window must be positive")
	}

	return algorithm.CustomConfig{
		Evaluator: Variance,
		State:     &VarianceState{Threshold: threshold, Window: window},
	}, nil
}

func buildRapidChange(params map[string]float64) (algorithm.CustomConfig, error) {
	step, err := param(params, "max_step")
	if err != nil {
		return algorithm.CustomConfig{}, err
	}

	return algorithm.CustomConfig{
		Evaluator: RapidChange,
		Config: &RapidChangeConfig{
			MaxStep:    step,
			MinSamples: int(paramOr(params, "min_samples", 2)),
		},
	}, nil
}
