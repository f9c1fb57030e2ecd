package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks the checkout wizard, payment attempts and finalized orders.
type CheckoutMetrics struct {
	transitions     *prometheus.CounterVec
	payments        *prometheus.CounterVec
	paymentDuration *prometheus.HistogramVec
	orders          *prometheus.CounterVec
	promos          *prometheus.CounterVec
}

// NewCheckoutMetrics registers checkout metrics on reg. A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_step_transitions_total",
		Help: "Checkout wizard step transitions.",
	}, []string{"from", "to"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_attempts_total",
		Help: "Payment attempts by method and final state.",
	}, []string{"method", "state"})
	paymentDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_payment_duration_seconds",
		Help:    "Time from dispatch to a terminal payment state.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_finalized_total",
		Help: "Orders committed by checkout.",
	}, []string{"method"})
	promos := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_promo_attempts_total",
		Help: "Promo code attempts by result.",
	}, []string{"result"})
	reg.MustRegister(transitions, payments, paymentDuration, orders, promos)
	return &CheckoutMetrics{
		transitions:     transitions,
		payments:        payments,
		paymentDuration: paymentDuration,
		orders:          orders,
		promos:          promos,
	}
}

// IncTransition counts a move between two wizard steps.
func (c *CheckoutMetrics) IncTransition(from, to int) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(strconv.Itoa(from), strconv.Itoa(to)).Inc()
}

// ObservePayment records a payment attempt reaching state after duration.
func (c *CheckoutMetrics) ObservePayment(method, state string, duration time.Duration) {
	if c == nil || c.payments == nil {
		return
	}
	method = normalizeLabel(method)
	c.payments.WithLabelValues(method, normalizeLabel(state)).Inc()
	c.paymentDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncOrder counts one finalized order.
func (c *CheckoutMetrics) IncOrder(method string) {
	if c == nil || c.orders == nil {
		return
	}
	c.orders.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncPromo counts a promo attempt; result is applied, not_found or rate_limited.
func (c *CheckoutMetrics) IncPromo(result string) {
	if c == nil || c.promos == nil {
		return
	}
	c.promos.WithLabelValues(normalizeLabel(result)).Inc()
}

// NotificationMetrics counts operator notification deliveries.
type NotificationMetrics struct {
	deliveries *prometheus.CounterVec
}

// NewNotificationMetrics registers notification metrics on reg.
func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Operator notification attempts by channel and result.",
	}, []string{"channel", "result"})
	reg.MustRegister(deliveries)
	return &NotificationMetrics{deliveries: deliveries}
}

// IncDelivery counts one delivery outcome (sent, failed, duplicate, skipped).
func (n *NotificationMetrics) IncDelivery(channel, result string) {
	if n == nil || n.deliveries == nil {
		return
	}
	n.deliveries.WithLabelValues(normalizeLabel(channel), normalizeLabel(result)).Inc()
}
