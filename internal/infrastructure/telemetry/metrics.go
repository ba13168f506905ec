package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the process's Prometheus collectors.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	ordersCreatedTotal  prometheus.Counter
	settlementsTotal    *prometheus.CounterVec
	gatewayDuration     *prometheus.HistogramVec
	notificationsTotal  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		ordersCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_created_total",
				Help: "Total number of orders created",
			},
		),
		settlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlements_total",
				Help: "Settlement attempts by outcome",
			},
			[]string{"outcome"},
		),
		gatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_gateway_duration_seconds",
				Help:    "Payment gateway call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"event_type", "result"},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ordersCreatedTotal,
		m.settlementsTotal,
		m.gatewayDuration,
		m.notificationsTotal,
	)
	return m
}

func (m *Metrics) ObserveHTTPRequest(method, endpoint string, status int, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func (m *Metrics) RecordOrderCreated() {
	m.ordersCreatedTotal.Inc()
}

// RecordSettlement counts an attempt that reached outcome.
func (m *Metrics) RecordSettlement(outcome string) {
	m.settlementsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGatewayCall(outcome string, d time.Duration) {
	m.gatewayDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) RecordNotification(eventType string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notificationsTotal.WithLabelValues(eventType, result).Inc()
}
