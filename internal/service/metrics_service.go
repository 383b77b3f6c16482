package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kps-school/kps-api/internal/realtime"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the realtime channel. It implements realtime.Recorder.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	pushTotal       *prometheus.CounterVec
	fanoutTotal     *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors. sessions may be
// nil when the realtime channel is disabled.
func NewMetricsService(sessions func() int) *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	pushTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_pushes_total",
		Help: "Unread-count push attempts by outcome",
	}, []string{"result"})

	fanoutTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_fanout_total",
		Help: "Guardian notifications created by trigger kind",
	}, []string{"kind"})

	wsSessions := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "realtime_sessions",
		Help: "Open websocket sessions on this instance",
	}, func() float64 {
		if sessions == nil {
			return 0
		}
		return float64(sessions())
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, pushTotal, fanoutTotal, wsSessions, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		pushTotal:       pushTotal,
		fanoutTotal:     fanoutTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObservePush records the outcome of one unread-count push attempt.
func (m *MetricsService) ObservePush(result realtime.DeliveryResult) {
	if m == nil {
		return
	}
	m.pushTotal.WithLabelValues(string(result)).Inc()
}

// ObserveFanout records guardian notifications created by a trigger.
func (m *MetricsService) ObserveFanout(kind string, created int) {
	if m == nil || created <= 0 {
		return
	}
	m.fanoutTotal.WithLabelValues(kind).Add(float64(created))
}
