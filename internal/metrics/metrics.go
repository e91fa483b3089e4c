// Package metrics holds the prometheus collectors of the service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tourledger"

type Metrics struct {
	reservations       *prometheus.CounterVec
	paymentTransitions *prometheus.CounterVec
	settlementAttempts *prometheus.CounterVec
	settlementOutcomes *prometheus.CounterVec
	failuresRecorded   prometheus.Counter
	httpDuration       *prometheus.HistogramVec
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Slot reservations by outcome.",
		}, []string{"outcome"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transitions_total",
			Help:      "Applied payment status transitions.",
		}, []string{"from", "to"}),
		settlementAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_attempts_total",
			Help:      "Calls made to the booking service.",
		}, []string{"result"}),
		settlementOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_notifications_total",
			Help:      "Settlement notifications by final outcome.",
		}, []string{"outcome"}),
		failuresRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_failures_recorded_total",
			Help:      "Settlement failures persisted by the worker.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reservations,
		m.paymentTransitions,
		m.settlementAttempts,
		m.settlementOutcomes,
		m.failuresRecorded,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Reservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PaymentTransition(from, to string) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SettlementAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.settlementAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SettlementOutcome(outcome string) {
	if m == nil {
		return
	}
	m.settlementOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FailureRecorded() {
	if m == nil {
		return
	}
	m.failuresRecorded.Inc()
}

// Middleware observes request latency labelled by the matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
