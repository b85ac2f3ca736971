package config

import (
	"github.com/marmos91/podsock/pkg/metrics"
)

// MetricsResult contains all metrics components created from configuration.
type MetricsResult struct {
	// Server exposes /metrics (nil if disabled)
	Server *metrics.Server

	// PodMetrics is never nil; it is a no-op when metrics are disabled
	PodMetrics metrics.PodMetrics
}

// InitializeMetrics creates the metrics components. When metrics are
// disabled it returns no-op collectors and a nil server.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{PodMetrics: metrics.NewNoopPodMetrics()}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:     metrics.NewServer(metrics.ServerConfig{Port: cfg.Server.Metrics.Port}),
		PodMetrics: metrics.NewPodMetrics(),
	}
}

// StoreMetrics returns the collector for a namespace backend.
func (r *MetricsResult) StoreMetrics(backend string) metrics.StoreMetrics {
	if r == nil || r.Server == nil {
		return metrics.NewNoopStoreMetrics()
	}
	return metrics.NewStoreMetrics(backend)
}
