package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics observes the storage backends behind built-in namespaces
// (badger for kv, S3 for objects).
type StoreMetrics interface {
	// RecordOperation records a backend call such as "get" or "put".
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBytes counts payload bytes moved by an operation.
	RecordBytes(operation string, n int64)
}

type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// The collectors are registered once per backend label; a second call with
// the same label reuses them.
var (
	storeMu         sync.Mutex
	storeCollectors = map[string]*storeMetrics{}
)

// NewStoreMetrics returns StoreMetrics labelled with backend ("badger", "s3").
// Returns a no-op implementation when metrics are disabled.
func NewStoreMetrics(backend string) StoreMetrics {
	if !IsEnabled() {
		return NewNoopStoreMetrics()
	}

	storeMu.Lock()
	defer storeMu.Unlock()

	if m, ok := storeCollectors[backend]; ok {
		return m
	}

	reg := GetRegistry()
	labels := prometheus.Labels{"backend": backend}

	m := &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "podsock_store_operations_total",
				Help:        "Total number of storage operations by operation and status",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "podsock_store_operation_duration_seconds",
				Help:        "Duration of storage operations in seconds",
				ConstLabels: labels,
				Buckets: []float64{
					0.0005, // 500us
					0.005,  // 5ms
					0.025,  // 25ms
					0.1,    // 100ms
					0.5,    // 500ms
					2.5,    // 2.5s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "podsock_store_bytes_total",
				Help:        "Payload bytes moved by storage operations",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
	}
	storeCollectors[backend] = m
	return m
}

func (m *storeMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *storeMetrics) RecordBytes(operation string, n int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(n))
}

func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) RecordOperation(string, time.Duration, error) {}
func (noopStoreMetrics) RecordBytes(string, int64)                    {}
