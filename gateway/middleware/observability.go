package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	opsOnce      sync.Once
	opsRequests  *prometheus.CounterVec
	opsDurations *prometheus.HistogramVec
)

func opsCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec) {
	opsOnce.Do(func() {
		opsRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paysplit",
			Subsystem: "ops",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the ops router.",
		}, []string{"route", "method", "status"})
		opsDurations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paysplit",
			Subsystem: "ops",
			Name:      "request_duration_seconds",
			Help:      "Latency of ops requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"})
		prometheus.MustRegister(opsRequests, opsDurations)
	})
	return opsRequests, opsDurations
}

// Observability records request counters and serves the metrics endpoint.
type Observability struct {
	logger    *slog.Logger
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

func NewObservability(logger *slog.Logger) *Observability {
	requests, durations := opsCollectors()
	return &Observability{logger: logger, requests: requests, durations: durations}
}

func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			o.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(duration.Seconds())
			if o.logger != nil {
				o.logger.Debug("ops request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", recorder.status,
					"duration_ms", duration.Milliseconds(),
				)
			}
		})
	}
}

// MetricsHandler exposes every collector registered on the default registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
