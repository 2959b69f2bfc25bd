package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability
// of the order and payment flow.
type BusinessMetrics struct {
	// Orders
	OrdersCreated  *prometheus.CounterVec
	OrderValue     *prometheus.HistogramVec
	OrderItemCount prometheus.Histogram

	// Payments
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec

	// Gateway callbacks
	CallbackReceived  prometheus.Counter
	CallbackProcessed *prometheus.CounterVec
	CallbackFailed    *prometheus.CounterVec
	CallbackLatency   prometheus.Histogram

	// Stock
	StockDecremented prometheus.Counter
}

// Business is the process-wide metrics instance, nil until Init is called.
// Callers must nil-check before use so tests can run without registration.
var Business *BusinessMetrics

// Init registers all business metrics with the default registry.
func Init(namespace string) *BusinessMetrics {
	Business = &BusinessMetrics{
		OrdersCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created, labeled by payment method",
		}, []string{"payment_method"}),
		OrderValue: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_value_cents",
			Help:      "Order totals in cents",
			Buckets:   []float64{1000, 2500, 5000, 10000, 25000, 50000, 100000},
		}, []string{"payment_method"}),
		OrderItemCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_item_count",
			Help:      "Number of line items per order",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		PaymentSucceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_succeeded_total",
			Help:      "Payments confirmed by the gateway",
		}, []string{"payment_method"}),
		PaymentFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_failed_total",
			Help:      "Payments declined or failed, labeled by resolved status",
		}, []string{"status"}),
		CallbackReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_callbacks_received_total",
			Help:      "Gateway callbacks received, before validation",
		}),
		CallbackProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_callbacks_processed_total",
			Help:      "Gateway callbacks that resulted in an order update",
		}, []string{"resolved_status"}),
		CallbackFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_callbacks_failed_total",
			Help:      "Gateway callbacks that could not be applied",
		}, []string{"reason"}),
		CallbackLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_callback_duration_seconds",
			Help:      "End-to-end callback handling time",
			Buckets:   prometheus.DefBuckets,
		}),
		StockDecremented: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_decrements_total",
			Help:      "Product stock decrements applied on paid orders",
		}),
	}
	return Business
}
