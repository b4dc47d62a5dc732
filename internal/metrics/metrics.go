package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests can build as many as they like.
type Metrics struct {
	reg         *prometheus.Registry
	pages       *prometheus.CounterVec
	backend     *prometheus.CounterVec
	backendTime *prometheus.HistogramVec
	actions     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Portal requests by route pattern and status code.",
		}, []string{"route", "code"}),
		backend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_backend_requests_total",
			Help: "Calls made to the clinic backend.",
		}, []string{"method", "route", "code"}),
		backendTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_backend_request_duration_seconds",
			Help:    "Latency of clinic backend calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_actions_total",
			Help: "User actions by name and outcome.",
		}, []string{"action", "outcome"}),
	}
	m.reg.MustRegister(m.pages, m.backend, m.backendTime, m.actions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePage(route string, code int) {
	m.pages.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveBackend is called once per backend round trip; code 0 means the
// request never got a response.
func (m *Metrics) ObserveBackend(method, route string, code int, d time.Duration) {
	m.backend.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.backendTime.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveAction(action, outcome string) {
	m.actions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
