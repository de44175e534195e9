// Package observability exports detection counters for Prometheus.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "embedids"

// Metrics holds the daemon's collectors on a private registry, so several
// instances can coexist in one process.
type Metrics struct {
	registry  *prometheus.Registry
	samples   *prometheus.CounterVec
	anomalies *prometheus.CounterVec
	failures  *prometheus.CounterVec
	value     *prometheus.GaugeVec
	trend     *prometheus.GaugeVec
	ticks     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples stored per metric.",
		}, []string{"metric"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Detections reported by the algorithm pipeline.",
		}, []string{"metric", "code"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Operational failures per stage.",
		}, []string{"stage", "code"}),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Latest stored value per metric.",
		}, []string{"metric"}),
		trend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_trend",
			Help:      "Trend per metric: 0 stable, 1 increasing, 2 decreasing.",
		}, []string{"metric"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed sampling rounds.",
		}),
	}

	m.registry.MustRegister(
		m.samples, m.anomalies, m.failures, m.value, m.trend, m.ticks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Sample(metricName string, v float64) {
	m.samples.WithLabelValues(metricName).Inc()
	m.value.WithLabelValues(metricName).Set(v)
}

func (m *Metrics) Anomaly(metricName, code string) {
	m.anomalies.WithLabelValues(metricName, code).Inc()
}

func (m *Metrics) Failure(stage, code string) {
	m.failures.WithLabelValues(stage, code).Inc()
}

func (m *Metrics) Trend(metricName string, trend int) {
	m.trend.WithLabelValues(metricName).Set(float64(trend))
}

func (m *Metrics) Tick() {
	m.ticks.Inc()
}

// Registry exposes the private registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
