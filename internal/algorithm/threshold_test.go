package algorithm_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/embedids/internal/algorithm"
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetric(kind metric.Kind, capacity int) *metric.Metric {
	return &metric.Metric{
		Name:    "test_metric",
		Kind:    kind,
		Enabled: true,
		Store:   metric.NewStore(make([]metric.Datapoint, capacity)),
	}
}

func runWithLatest(t *testing.T, m *metric.Metric, v metric.Value, algos []algorithm.Algorithm) error {
	t.Helper()
	require.NoError(t, m.Store.Append(v, 1000))
	return algorithm.Run(m, algos)
}

func threshold(minValue, maxValue metric.Value) []algorithm.Algorithm {
	return []algorithm.Algorithm{{
		Enabled: true,
		Config:  algorithm.ThresholdConfigInit(&minValue, &maxValue),
	}}
}

func TestThresholdClosedInterval(t *testing.T) {
	tests := []struct {
		name     string
		kind     metric.Kind
		min, max metric.Value
		inside   []metric.Value
		outside  []metric.Value
	}{
		{
			name: "uint32", kind: metric.KindUint32,
			min: metric.Uint32Value(100), max: metric.Uint32Value(10000),
			inside:  []metric.Value{metric.Uint32Value(100), metric.Uint32Value(5000), metric.Uint32Value(10000)},
			outside: []metric.Value{metric.Uint32Value(99), metric.Uint32Value(10001)},
		},
		{
			name: "uint64", kind: metric.KindUint64,
			min: metric.Uint64Value(1_000_000), max: metric.Uint64Value(1_000_000_000),
			inside:  []metric.Value{metric.Uint64Value(1_000_000), metric.Uint64Value(1_000_000_000)},
			outside: []metric.Value{metric.Uint64Value(999_999), metric.Uint64Value(2_000_000_000)},
		},
		{
			name: "float", kind: metric.KindFloat,
			min: metric.FloatValue(0), max: metric.FloatValue(100),
			inside: []metric.Value{metric.FloatValue(0), metric.FloatValue(100)},
			outside: []metric.Value{
				metric.FloatValue(math.Nextafter32(0, -1)),
				metric.FloatValue(math.Nextafter32(100, 200)),
			},
		},
		{
			name: "percentage", kind: metric.KindPercentage,
			min: metric.FloatValue(10), max: metric.FloatValue(85),
			inside:  []metric.Value{metric.FloatValue(10), metric.FloatValue(85)},
			outside: []metric.Value{metric.FloatValue(9.99), metric.FloatValue(85.01)},
		},
		{
			name: "double", kind: metric.KindDouble,
			min: metric.DoubleValue(-1.5), max: metric.DoubleValue(1.5),
			inside: []metric.Value{metric.DoubleValue(-1.5), metric.DoubleValue(1.5)},
			outside: []metric.Value{
				metric.DoubleValue(math.Nextafter(-1.5, -2)),
				metric.DoubleValue(math.Nextafter(1.5, 2)),
			},
		},
		{
			name: "enum", kind: metric.KindEnum,
			min: metric.EnumValue(1), max: metric.EnumValue(2),
			inside:  []metric.Value{metric.EnumValue(1), metric.EnumValue(2)},
			outside: []metric.Value{metric.EnumValue(0), metric.EnumValue(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range tt.inside {
				m := newMetric(tt.kind, 4)
				assert.NoError(t, runWithLatest(t, m, v, threshold(tt.min, tt.max)))
			}
			for _, v := range tt.outside {
				m := newMetric(tt.kind, 4)
				err := runWithLatest(t, m, v, threshold(tt.min, tt.max))
				assert.Equal(t, errors.ErrThresholdExceeded, errors.CodeOf(err))
			}
		})
	}
}

func TestThresholdUsesLatestOnly(t *testing.T) {
	m := newMetric(metric.KindFloat, 4)
	algos := threshold(metric.FloatValue(0), metric.FloatValue(80))

	err := runWithLatest(t, m, metric.FloatValue(90), algos)
	assert.Equal(t, errors.ErrThresholdExceeded, errors.CodeOf(err))

	assert.NoError(t, runWithLatest(t, m, metric.FloatValue(20), algos))
}

func TestThresholdSingleBound(t *testing.T) {
	maxValue := metric.Uint32Value(10)
	algos := []algorithm.Algorithm{{Enabled: true, Config: algorithm.ThresholdConfigInit(nil, &maxValue)}}

	m := newMetric(metric.KindUint32, 2)
	assert.NoError(t, runWithLatest(t, m, metric.Uint32Value(0), algos))

	err := runWithLatest(t, m, metric.Uint32Value(11), algos)
	assert.Equal(t, errors.ErrThresholdExceeded, errors.CodeOf(err))

	cfg := algorithm.ThresholdConfigInit(nil, nil)
	assert.False(t, cfg.CheckMin)
	assert.False(t, cfg.CheckMax)
}

func TestThresholdBooleanNeverTriggers(t *testing.T) {
	m := newMetric(metric.KindBool, 8)
	algos := threshold(metric.BoolValue(false), metric.BoolValue(false))

	for _, b := range []bool{false, true, true, false, true} {
		assert.NoError(t, runWithLatest(t, m, metric.BoolValue(b), algos))
	}
}

func TestThresholdEmptyMetric(t *testing.T) {
	m := newMetric(metric.KindFloat, 4)
	assert.NoError(t, algorithm.Run(m, threshold(metric.FloatValue(10), metric.FloatValue(20))))
}
