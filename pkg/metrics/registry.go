// Package metrics provides Prometheus metrics collection for podsock.
//
// All metrics are optional. Until InitRegistry is called, constructors return
// no-op implementations, so components can always record without nil checks.
//
// Usage:
//
//	metrics.InitRegistry()
//	podMetrics := metrics.NewPodMetrics()
//	adapter := unix.New(cfg, podMetrics)
//
//	// Or nil for no-op behavior
//	adapter := unix.New(cfg, nil)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide Prometheus registry. Later calls are
// ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
