package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the subscription workflow. A nil
// *Metrics is valid and records nothing, so tests can leave it out.
type Metrics struct {
	// Subscribe outcomes by result
	SubscribeOutcome *prometheus.CounterVec

	// Confirm outcomes by result
	ConfirmOutcome *prometheus.CounterVec

	// Newsletter deliveries by result
	NewsletterDeliveries *prometheus.CounterVec
}

// NewMetrics registers all subscription workflow metrics on the default
// registry. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		SubscribeOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_subscribe_total",
			Help: "Subscribe requests by outcome",
		}, []string{"outcome"}),

		ConfirmOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_confirm_total",
			Help: "Confirmation requests by outcome",
		}, []string{"outcome"}),

		NewsletterDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_deliveries_total",
			Help: "Newsletter deliveries by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) subscribeOutcome(outcome string) {
	if m != nil {
		m.SubscribeOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) confirmOutcome(outcome string) {
	if m != nil {
		m.ConfirmOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) newsletterDelivery(result string) {
	if m != nil {
		m.NewsletterDeliveries.WithLabelValues(result).Inc()
	}
}
