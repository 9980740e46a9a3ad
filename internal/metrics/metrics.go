package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/aqiserve/internal/aqi"
)

// Metrics owns the service's registry. Every method is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	PredictionsTotal  prometheus.Counter
	PredictionLatency prometheus.Histogram
	PredictionValue   prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	RequestLatency    *prometheus.HistogramVec
	Buckets           map[aqi.Category]prometheus.Counter
	QualityFlags      *prometheus.CounterVec
}

// New builds a fresh registry with the service metrics plus the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total successful AQI predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Model inference latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PredictionValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aqi_prediction_value",
			Help: "Most recent predicted AQI value",
		}),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requests_total",
				Help: "Total HTTP requests by endpoint, method and outcome status",
			},
			[]string{"endpoint", "method", "status"},
		),
		RequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "request_latency_seconds",
				Help:    "End-to-end HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		QualityFlags: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "input_quality_flags_total",
				Help: "Implausible feature readings accepted for prediction, by flag",
			},
			[]string{"flag"},
		),
		Buckets: make(map[aqi.Category]prometheus.Counter, len(aqi.Categories)),
	}

	for _, c := range aqi.Categories {
		m.Buckets[c] = factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_" + string(c),
			Help: "Predictions classified as " + string(c),
		})
	}
	return m
}

// ObservePrediction records one successful prediction and returns its bucket.
func (m *Metrics) ObservePrediction(value float64, took time.Duration) aqi.Category {
	m.PredictionsTotal.Inc()
	m.PredictionLatency.Observe(took.Seconds())
	m.PredictionValue.Set(value)

	c := aqi.Classify(value)
	m.Buckets[c].Inc()
	return c
}

// ObserveRequest records the outcome of one HTTP request.
func (m *Metrics) ObserveRequest(endpoint, method string, status int, took time.Duration) {
	m.RequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	m.RequestLatency.WithLabelValues(endpoint).Observe(took.Seconds())
}

// ObserveQualityFlags counts advisory input flags raised for one request.
func (m *Metrics) ObserveQualityFlags(flags []string) {
	for _, f := range flags {
		m.QualityFlags.WithLabelValues(f).Inc()
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:          m.registry,
		EnableOpenMetrics: true,
	})
}
