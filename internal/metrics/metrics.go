package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors the payment flow reports into. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	callbacks       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	receipts        *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		gatewayRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lipa_gateway_requests_total",
			Help: "Outbound M-Pesa requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		gatewayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lipa_gateway_request_duration_seconds",
			Help:    "Latency of outbound M-Pesa requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		callbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lipa_callbacks_total",
			Help: "Provider callbacks by processing outcome.",
		}, []string{"outcome"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lipa_payment_transitions_total",
			Help: "Payments reaching a terminal state.",
		}, []string{"state"}),
		receipts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lipa_receipts_total",
			Help: "Receipt notifications by outcome.",
		}, []string{"outcome"}),
		reconciled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lipa_reconcile_total",
			Help: "Reconciler decisions by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveGateway(op string, start time.Time, err error) {
	if m == nil {
		return
	}

	m.gatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.gatewayRequests.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) Callback(outcome string) {
	if m == nil {
		return
	}

	m.callbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}

	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) Receipt(err error) {
	if m == nil {
		return
	}

	m.receipts.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) Reconciled(outcome string) {
	if m == nil {
		return
	}

	m.reconciled.WithLabelValues(outcome).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}
