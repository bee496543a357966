package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics records cart mutation and checkout outcomes.
type StorefrontMetrics struct {
	cartOps          *prometheus.CounterVec
	checkoutAttempts *prometheus.CounterVec
	remoteDuration   *prometheus.HistogramVec
}

// NewStorefrontMetrics registers the storefront metrics on the provided registerer.
func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	cartOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	checkoutAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by terminal result.",
	}, []string{"result"})
	remoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_request_duration_seconds",
		Help:    "Duration of remote commerce calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	reg.MustRegister(cartOps, checkoutAttempts, remoteDuration)
	return &StorefrontMetrics{
		cartOps:          cartOps,
		checkoutAttempts: checkoutAttempts,
		remoteDuration:   remoteDuration,
	}
}

// IncCartOp increments the counter for the named cart operation.
func (m *StorefrontMetrics) IncCartOp(operation string, success bool) {
	if m == nil || m.cartOps == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.cartOps.WithLabelValues(normalizeLabel(operation), outcome).Inc()
}

// IncCheckout increments the checkout counter for the given result.
func (m *StorefrontMetrics) IncCheckout(result string) {
	if m == nil || m.checkoutAttempts == nil {
		return
	}
	m.checkoutAttempts.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveRemote records the duration of a remote commerce call.
func (m *StorefrontMetrics) ObserveRemote(endpoint string, duration time.Duration) {
	if m == nil || m.remoteDuration == nil {
		return
	}
	m.remoteDuration.WithLabelValues(normalizeLabel(endpoint)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return strings.ReplaceAll(trimmed, " ", "_")
}
