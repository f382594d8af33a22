package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics holds the collectors of the order core and the HTTP layer. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Checkouts     *prometheus.CounterVec
	Cancellations *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Events        *prometheus.CounterVec
	Requests      *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. Pass
// prometheus.NewRegistry() in tests to keep registrations isolated.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		Cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Customer cancellations by result.",
		}, []string{"result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Committed order status transitions by target status.",
		}, []string{"status"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Post-commit events by kind and delivery result.",
		}, []string{"kind", "result"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		gatherer: reg,
	}

	reg.MustRegister(m.Checkouts, m.Cancellations, m.Transitions, m.Events, m.Requests, m.LatencyMS)
	return m
}

// Result labels an operation outcome with an error code, or "ok".
func Result(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}

func (m *Metrics) Checkout(code string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(Result(code)).Inc()
}

func (m *Metrics) Cancellation(code string) {
	if m == nil {
		return
	}
	m.Cancellations.WithLabelValues(Result(code)).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Event(kind string, err error) {
	if m == nil {
		return
	}
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	m.Events.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) EventDropped(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, "dropped").Inc()
}

func (m *Metrics) Request(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
