package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketplaceMetrics records the purchase pipeline: order creation, hold
// contention, webhook processing, and completion.
type MarketplaceMetrics struct {
	ordersCreated        *prometheus.CounterVec
	reservationConflicts prometheus.Counter
	checkoutDuration     *prometheus.HistogramVec
	webhookEvents        *prometheus.CounterVec
	completions          *prometheus.CounterVec
}

// NewMarketplaceMetrics registers the marketplace metrics on the provided
// registerer. A nil registerer yields a no-op collector.
func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created, by purchase path.",
	}, []string{"path"})
	reservationConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservation_conflicts_total",
		Help: "Checkout attempts rejected because a ticket was already held.",
	})
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment provider events, by type and outcome.",
	}, []string{"type", "outcome"})
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_completions_total",
		Help: "Order completion attempts, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(ordersCreated, reservationConflicts, checkoutDuration, webhookEvents, completions)
	return &MarketplaceMetrics{
		ordersCreated:        ordersCreated,
		reservationConflicts: reservationConflicts,
		checkoutDuration:     checkoutDuration,
		webhookEvents:        webhookEvents,
		completions:          completions,
	}
}

// IncOrderCreated counts a created order on the named path.
func (m *MarketplaceMetrics) IncOrderCreated(path string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(path)).Inc()
}

// IncReservationConflict counts a lost hold race.
func (m *MarketplaceMetrics) IncReservationConflict() {
	if m == nil || m.reservationConflicts == nil {
		return
	}
	m.reservationConflicts.Inc()
}

// ObserveCheckoutDuration records how long a checkout request took.
func (m *MarketplaceMetrics) ObserveCheckoutDuration(path string, duration time.Duration) {
	if m == nil || m.checkoutDuration == nil {
		return
	}
	m.checkoutDuration.WithLabelValues(normalizeLabel(path)).Observe(duration.Seconds())
}

// IncWebhookEvent counts a processed provider event.
func (m *MarketplaceMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncCompletion counts a finalization attempt.
func (m *MarketplaceMetrics) IncCompletion(outcome string) {
	if m == nil || m.completions == nil {
		return
	}
	m.completions.WithLabelValues(normalizeLabel(outcome)).Inc()
}
