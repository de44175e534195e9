package algorithm

import (
	"math"

	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
)

// Trend classifies the direction of recent samples.
type Trend uint8

const (
	TrendStable Trend = iota
	TrendIncreasing
	TrendDecreasing
)

func (t Trend) String() string {
	switch t {
	case TrendStable:
		return "stable"
	case TrendIncreasing:
		return "increasing"
	case TrendDecreasing:
		return "decreasing"
	default:
		return "unknown"
	}
}

// ParseTrend maps a configuration name to a Trend.
func ParseTrend(s string) (Trend, bool) {
	for _, t := range []Trend{TrendStable, TrendIncreasing, TrendDecreasing} {
		if t.String() == s {
			return t, true
		}
	}
	return TrendStable, false
}

const (
	classifyPoints   = 3
	relativeStable   = 0.05
	minimumThreshold = 1.0
)

// TrendConfig parameterizes the pipeline trend check.
type TrendConfig struct {
	WindowSize  int
	MaxSlope    float32
	MaxVariance float32
	Expected    Trend
}

func (TrendConfig) Type() Type { return TypeTrend }
func (TrendConfig) sealed()    {}

// TrendConfigInit validates and builds a trend configuration.
func TrendConfigInit(windowSize int, maxSlope, maxVariance float32, expected Trend) (TrendConfig, error) {
	errFactory := errors.New()

	if windowSize < 2 {
		return TrendConfig{}, errFactory.WithData(errors.ErrInvalidParam, "window size must be at least 2")
	}
	if isBadLimit(maxSlope) || isBadLimit(maxVariance) {
		return TrendConfig{}, errFactory.WithData(errors.ErrInvalidParam, "trend limits must be non-negative numbers")
	}
	if expected > TrendDecreasing {
		return TrendConfig{}, errFactory.WithData(errors.ErrInvalidParam, "unknown expected trend")
	}

	return TrendConfig{
		WindowSize:  windowSize,
		MaxSlope:    maxSlope,
		MaxVariance: maxVariance,
		Expected:    expected,
	}, nil
}

func isBadLimit(f float32) bool {
	return f < 0 || math.IsNaN(float64(f))
}

// evaluateTrend only gates on window size: a window that is not yet full
// passes, and so does a full one. MaxSlope, MaxVariance and Expected are
// carried but not evaluated.
func evaluateTrend(m *metric.Metric, cfg *TrendConfig) error {
	if cfg.WindowSize < 2 || m.Store.Len() < cfg.WindowSize {
		return nil
	}

	// TODO: least-squares slope over the window, compared with MaxSlope and
	// MaxVariance, reporting ErrTrendAnomaly against Expected.
	return nil
}

// Classify reports the direction of the last (up to) three samples using
// the mean of their first differences. A change smaller than 5% of the
// first sample in the window, or 1.0 whichever is larger, is Stable.
// Only unsigned and single-precision kinds are classified.
func Classify(v metric.View) Trend {
	switch v.Kind() {
	case metric.KindUint32, metric.KindUint64, metric.KindFloat, metric.KindPercentage, metric.KindRate:
	default:
		return TrendStable
	}

	n := min(v.Len(), classifyPoints)
	if n < 2 {
		return TrendStable
	}

	first, _ := v.Float64At(n - 1)
	prev := first
	var sum float64
	for k := n - 2; k >= 0; k-- {
		cur, _ := v.Float64At(k)
		sum += cur - prev
		prev = cur
	}
	avg := sum / float64(n-1)

	threshold := math.Max(math.Abs(first)*relativeStable, minimumThreshold)
	switch {
	case math.Abs(avg) < threshold:
		return TrendStable
	case avg > 0:
		return TrendIncreasing
	default:
		return TrendDecreasing
	}
}
