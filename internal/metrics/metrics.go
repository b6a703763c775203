package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the adapter's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	polls           *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	duplicates      prometheus.Counter
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kpay",
			Name:      "gateway_requests_total",
			Help:      "Gateway API calls by operation and HTTP status code.",
		}, []string{"operation", "code"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kpay",
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway API round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kpay",
			Name:      "status_polls_total",
			Help:      "Status polls by effective status.",
		}, []string{"status"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kpay",
			Name:      "sessions_created_total",
			Help:      "Payment sessions created by pricing mode.",
		}, []string{"pricing_mode"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kpay",
			Name:      "confirmations_total",
			Help:      "Gateway payment confirmations by outcome.",
		}, []string{"outcome"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kpay",
			Name:      "duplicate_processed_observations_total",
			Help:      "Processed observations that found the transaction already recorded.",
		}),
	}

	if reg == nil {
		return m
	}
	reg.MustRegister(
		m.gatewayRequests,
		m.gatewayLatency,
		m.polls,
		m.sessions,
		m.confirmations,
		m.duplicates,
	)
	return m
}

// ObserveGateway records one gateway call. code is 0 when no response arrived.
func (m *Metrics) ObserveGateway(operation string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(operation, strconv.Itoa(code)).Inc()
	m.gatewayLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) IncPoll(status string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(status).Inc()
}

func (m *Metrics) IncSession(mode string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}
