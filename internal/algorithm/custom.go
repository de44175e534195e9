package algorithm

import (
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
)

// Evaluator is a caller-supplied detection step. It receives a read-only
// view of the metric, the algorithm's config and its mutable state. It may
// change state but never the metric, and returns nil or a coded error
// such as ErrCustomDetection.
type Evaluator interface {
	Evaluate(m metric.View, config, state any) error
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(m metric.View, config, state any) error

func (f EvaluatorFunc) Evaluate(m metric.View, config, state any) error {
	return f(m, config, state)
}

// CustomConfig aliases caller-owned evaluator, config and state. A nil
// Evaluator makes the slot a pass.
type CustomConfig struct {
	Evaluator Evaluator
	Config    any
	State     any
}

func (CustomConfig) Type() Type { return TypeCustom }
func (CustomConfig) sealed()    {}

func (c *CustomConfig) evaluate(m *metric.Metric) error {
	if c.Evaluator == nil {
		return nil
	}
	return c.Evaluator.Evaluate(metric.NewView(m), c.Config, c.State)
}

// RequireEvaluator reports ErrCustomAlgorithmNull for a slot without an
// evaluator. The pipeline itself treats such a slot as a pass.
func RequireEvaluator(c CustomConfig) error {
	if c.Evaluator == nil {
		return errors.New().New(errors.ErrCustomAlgorithmNull)
	}
	return nil
}
