package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PodMetrics observes the socket adapter: connection lifecycle, framing
// failures and dispatched requests.
type PodMetrics interface {
	// RecordRequest records a dispatched request. target is the invoked var,
	// or "describe". failed is true when the response was an error response.
	RecordRequest(op, target string, duration time.Duration, failed bool)

	// RecordFramingError counts a connection that never produced a request.
	// reason is a short label such as "truncated", "too_large" or "timeout".
	RecordFramingError(reason string)

	// RecordBytes counts bytes read from or written to clients.
	// direction is "read" or "write".
	RecordBytes(direction string, n int)

	SetActiveConnections(count int32)
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	RecordConnectionRejected(reason string)
}

type podMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	framingErrors          *prometheus.CounterVec
	bytesTransferred       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	connectionsRejected    *prometheus.CounterVec
}

// NewPodMetrics returns a Prometheus-backed PodMetrics, or a no-op one when
// metrics are disabled.
func NewPodMetrics() PodMetrics {
	if !IsEnabled() {
		return NewNoopPodMetrics()
	}

	reg := GetRegistry()

	return &podMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "podsock_requests_total",
				Help: "Total number of pod requests by op, var and status",
			},
			[]string{"op", "var", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "podsock_request_duration_seconds",
				Help: "Duration of pod request dispatch in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.005,  // 5ms
					0.025,  // 25ms
					0.1,    // 100ms
					0.5,    // 500ms
					2.5,    // 2.5s
					10.0,   // 10s
				},
			},
			[]string{"op", "var"},
		),
		framingErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "podsock_framing_errors_total",
				Help: "Connections closed without a decodable request, by reason",
			},
			[]string{"reason"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "podsock_bytes_transferred_total",
				Help: "Total bytes exchanged with pod clients",
			},
			[]string{"direction"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "podsock_active_connections",
				Help: "Current number of open client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "podsock_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "podsock_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "podsock_connections_force_closed_total",
				Help: "Connections closed by the shutdown timeout",
			},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "podsock_connections_rejected_total",
				Help: "Connections rejected before serving, by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *podMetrics) RecordRequest(op, target string, duration time.Duration, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	m.requestsTotal.WithLabelValues(op, target, status).Inc()
	m.requestDuration.WithLabelValues(op, target).Observe(duration.Seconds())
}

func (m *podMetrics) RecordFramingError(reason string) {
	m.framingErrors.WithLabelValues(reason).Inc()
}

func (m *podMetrics) RecordBytes(direction string, n int) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(n))
}

func (m *podMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *podMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *podMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *podMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *podMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

// NewNoopPodMetrics returns a PodMetrics that records nothing.
func NewNoopPodMetrics() PodMetrics {
	return noopPodMetrics{}
}

type noopPodMetrics struct{}

func (noopPodMetrics) RecordRequest(string, string, time.Duration, bool) {}
func (noopPodMetrics) RecordFramingError(string)                         {}
func (noopPodMetrics) RecordBytes(string, int)                           {}
func (noopPodMetrics) SetActiveConnections(int32)                        {}
func (noopPodMetrics) RecordConnectionAccepted()                         {}
func (noopPodMetrics) RecordConnectionClosed()                           {}
func (noopPodMetrics) RecordConnectionForceClosed()                      {}
func (noopPodMetrics) RecordConnectionRejected(string)                   {}
