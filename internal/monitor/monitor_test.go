package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/embedids/internal/algorithm"
	"codeberg.org/mutker/embedids/internal/config"
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/events"
	"codeberg.org/mutker/embedids/internal/monitor"
	"codeberg.org/mutker/embedids/internal/observability"
	"codeberg.org/mutker/embedids/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu     sync.Mutex
	rounds [][]source.Sample
	err    error
	closed bool
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Collect(context.Context) ([]source.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rounds) == 0 {
		return nil, s.err
	}
	next := s.rounds[0]
	s.rounds = s.rounds[1:]
	return next, s.err
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []*events.Event
	closed bool
}

func (r *memoryRecorder) Record(_ context.Context, e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memoryRecorder) Close() error {
	r.closed = true
	return nil
}

func ptr(f float64) *float64 { return &f }

func disabled() *bool {
	b := false
	return &b
}

func round(at int64, pairs ...any) []source.Sample {
	out := make([]source.Sample, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, source.Sample{
			Metric: pairs[i].(string),
			Value:  pairs[i+1].(float64),
			Time:   time.UnixMilli(at),
		})
	}
	return out
}

func testMetrics() []config.MetricConfig {
	return []config.MetricConfig{
		{
			Name: "temperature", Kind: "float", History: 8,
			Algorithms: []config.AlgorithmConfig{{Type: "threshold", Min: ptr(10), Max: ptr(80)}},
		},
		{
			Name: "fan", Kind: "uint32", History: 4,
			Algorithms: []config.AlgorithmConfig{
				{Type: "custom", Detector: "rapid_change", Params: map[string]float64{"max_step": 30}},
			},
		},
		{
			Name: "power", Kind: "double", History: 4, Enabled: disabled(),
			Algorithms: []config.AlgorithmConfig{{Type: "threshold", Max: ptr(1)}},
		},
	}
}

func newService(t *testing.T, src *scriptedSource, rec *memoryRecorder, m *observability.Metrics) *monitor.Service {
	t.Helper()
	registry, err := monitor.Build(testMetrics())
	require.NoError(t, err)

	svc, err := monitor.New(registry, []source.Source{src},
		monitor.WithRecorder(rec),
		monitor.WithMetrics(m),
		monitor.WithInterval(10*time.Millisecond))
	require.NoError(t, err)
	return svc
}

func TestBuild(t *testing.T) {
	registry, err := monitor.Build(testMetrics())
	require.NoError(t, err)

	require.Len(t, registry.Metrics, 3)
	assert.Equal(t, 3, registry.NumActiveMetrics)

	temp := registry.Metrics[0]
	assert.Equal(t, "temperature", temp.Metric.Name)
	assert.Equal(t, 8, temp.Metric.Store.Cap())
	assert.Equal(t, 1, temp.NumAlgorithms)
	threshold, ok := temp.Algorithms[0].Config.(algorithm.ThresholdConfig)
	require.True(t, ok)
	assert.True(t, threshold.CheckMin)
	assert.InDelta(t, 80.0, threshold.Max.Float(), 1e-6)

	fan := registry.Metrics[1]
	custom, ok := fan.Algorithms[0].Config.(algorithm.CustomConfig)
	require.True(t, ok)
	assert.NotNil(t, custom.Evaluator)

	assert.False(t, registry.Metrics[2].Metric.Enabled)
}

func TestBuildDefaults(t *testing.T) {
	registry, err := monitor.Build(config.DefaultMetrics())
	require.NoError(t, err)
	assert.Equal(t, len(config.DefaultMetrics()), registry.NumActiveMetrics)
}

func TestBuildErrors(t *testing.T) {
	metrics := testMetrics()
	metrics[0].Kind = "complex"
	_, err := monitor.Build(metrics)
	assert.Equal(t, errors.ErrMetricTypeMismatch, errors.CodeOf(err))

	metrics = testMetrics()
	metrics[1].Algorithms[0].Detector = "fourier"
	_, err = monitor.Build(metrics)
	assert.Equal(t, errors.ErrAlgorithmNotSupported, errors.CodeOf(err))

	metrics = testMetrics()
	metrics[1].Name = "temperature"
	_, err = monitor.Build(metrics)
	assert.Equal(t, errors.ErrConfigInvalid, errors.CodeOf(err))

	metrics = testMetrics()
	metrics[0].Algorithms = []config.AlgorithmConfig{{Type: "trend", Window: 1}}
	_, err = monitor.Build(metrics)
	assert.Equal(t, errors.ErrInvalidParam, errors.CodeOf(err))
}

func TestTick(t *testing.T) {
	src := &scriptedSource{rounds: [][]source.Sample{
		round(1000, "temperature", 25.0, "fan", 40.0, "power", 500.0, "humidity", 12.0),
		round(2000, "temperature", 95.0, "fan", 90.0),
	}}
	rec := &memoryRecorder{}
	m := observability.New()
	svc := newService(t, src, rec, m)

	report, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Samples, "unknown and disabled metrics are skipped")
	assert.Empty(t, report.Anomalies)

	report, err = svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Samples)
	require.Len(t, report.Anomalies, 2, "every metric is analyzed, not just the first failure")

	assert.Equal(t, "temperature", report.Anomalies[0].Metric)
	assert.Equal(t, errors.ErrThresholdExceeded, report.Anomalies[0].Code)
	assert.InDelta(t, 95.0, report.Anomalies[0].Value, 1e-6)
	assert.Equal(t, "increasing", report.Anomalies[0].Trend)

	assert.Equal(t, "fan", report.Anomalies[1].Metric)
	assert.Equal(t, errors.ErrCustomDetection, report.Anomalies[1].Code)

	assert.Len(t, rec.events, 2)

	require.NoError(t, svc.Close())
	assert.True(t, src.closed)
	assert.True(t, rec.closed)
	assert.False(t, svc.System().IsInitialized())
}

func TestTickPartialCollect(t *testing.T) {
	src := &scriptedSource{
		rounds: [][]source.Sample{round(1000, "temperature", 5.0)},
		err:    errors.New().New(source.ErrHostReadFailed),
	}
	rec := &memoryRecorder{}
	svc := newService(t, src, rec, nil)
	defer svc.Close()

	report, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Samples)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, errors.ErrThresholdExceeded, report.Anomalies[0].Code)
}

func TestTickCanceled(t *testing.T) {
	svc := newService(t, &scriptedSource{}, &memoryRecorder{}, nil)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun(t *testing.T) {
	src := &scriptedSource{rounds: [][]source.Sample{
		round(1000, "temperature", 90.0),
		round(2000, "temperature", 91.0),
	}}
	rec := &memoryRecorder{}
	svc := newService(t, src, rec, nil)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.events) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	registry, err := monitor.Build(testMetrics())
	require.NoError(t, err)

	_, err = monitor.New(registry, nil, monitor.WithInterval(0))
	assert.Equal(t, errors.ErrInvalidInterval, errors.CodeOf(err))

	_, err = monitor.New(nil, nil)
	assert.Equal(t, errors.ErrInvalidParam, errors.CodeOf(err))
}
