package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	DonationsTotal     prometheus.Counter
	DonatedCents       prometheus.Counter
	TransfersTotal     prometheus.Counter
	TransferredCents   prometheus.Counter
	ConfirmationsTotal *prometheus.CounterVec
}

// Confirmation result labels.
const (
	ConfirmationApplied  = "applied"
	ConfirmationReplayed = "replayed"
	ConfirmationUnknown  = "unknown"
	ConfirmationExpired  = "expired"
)

// New registers and returns the collectors. Pass a fresh registry in tests to
// avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DonationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "givetag_donations_total",
			Help: "Completed donations.",
		}),
		DonatedCents: factory.NewCounter(prometheus.CounterOpts{
			Name: "givetag_donated_cents_total",
			Help: "Total donated amount in cents.",
		}),
		TransfersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "givetag_transfers_total",
			Help: "Completed tag-to-tag transfers.",
		}),
		TransferredCents: factory.NewCounter(prometheus.CounterOpts{
			Name: "givetag_transferred_cents_total",
			Help: "Total transferred amount in cents.",
		}),
		ConfirmationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "givetag_provider_confirmations_total",
			Help: "Provider payment confirmations by result.",
		}, []string{"result"}),
	}
}
