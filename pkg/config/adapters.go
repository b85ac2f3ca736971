package config

import (
	"fmt"

	"github.com/marmos91/podsock/pkg/adapter"
	"github.com/marmos91/podsock/pkg/adapter/unix"
	"github.com/marmos91/podsock/pkg/metrics"
)

// CreateAdapters creates all enabled transport adapters. podMetrics may be nil.
func CreateAdapters(cfg *Config, podMetrics metrics.PodMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.Unix.Enabled {
		adapters = append(adapters, unix.New(cfg.Adapters.Unix, podMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
