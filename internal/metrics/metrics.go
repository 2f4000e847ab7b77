package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	RequestCount      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	Predictions       *prometheus.CounterVec
	PredictionErrors  *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
}

// New registers the service collectors on a fresh registry, so tests and
// servers never share counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leafapi_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leafapi_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leafapi_predictions_total",
			Help: "Successful predictions by class",
		}, []string{"class"}),
		PredictionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leafapi_prediction_errors_total",
			Help: "Failed predictions by error kind",
		}, []string{"kind"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leafapi_inference_duration_seconds",
			Help:    "Time spent in model inference",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.RequestCount, m.RequestDuration, m.Predictions, m.PredictionErrors, m.InferenceDuration,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the chi route
// pattern, which keeps label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestCount.WithLabelValues(path, r.Method, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObservePrediction(class string, took time.Duration) {
	m.Predictions.WithLabelValues(class).Inc()
	m.InferenceDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveError(kind string) {
	m.PredictionErrors.WithLabelValues(kind).Inc()
}
