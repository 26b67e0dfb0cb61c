package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the M-Pesa donation flow.
type Metrics struct {
	InitiationsTotal *prometheus.CounterVec
	CallbacksTotal   *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	CompletedAmount  *prometheus.CounterVec
	GatewayDuration  *prometheus.HistogramVec
	NotificationErrs prometheus.Counter
}

// NewMetrics registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InitiationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donation_mpesa_initiations_total",
				Help: "STK push initiations by outcome",
			},
			[]string{"outcome"},
		),
		CallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donation_mpesa_callbacks_total",
				Help: "STK callbacks by reconciliation outcome",
			},
			[]string{"outcome"},
		),
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donation_status_transitions_total",
				Help: "Donation status transitions",
			},
			[]string{"from", "to", "source"},
		),
		CompletedAmount: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donation_completed_amount_total",
				Help: "Sum of completed donations in KES",
			},
			[]string{"type"},
		),
		GatewayDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "donation_mpesa_gateway_duration_seconds",
				Help:    "Latency of Daraja calls",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"op"},
		),
		NotificationErrs: f.NewCounter(prometheus.CounterOpts{
			Name: "donation_notification_errors_total",
			Help: "Receipt or admin emails that failed to send",
		}),
	}
}

func (m *Metrics) initiation(outcome string) {
	if m != nil {
		m.InitiationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) callback(outcome string) {
	if m != nil {
		m.CallbacksTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) transition(from, to, source, donationType string, amount float64) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to, source).Inc()
	if to == "completed" {
		m.CompletedAmount.WithLabelValues(donationType).Add(amount)
	}
}

func (m *Metrics) gatewayCall(op string, seconds float64) {
	if m != nil {
		m.GatewayDuration.WithLabelValues(op).Observe(seconds)
	}
}

func (m *Metrics) notificationFailed() {
	if m != nil {
		m.NotificationErrs.Inc()
	}
}
