package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/pkg/namespaces/builtin"
	"github.com/marmos91/podsock/pkg/namespaces/kv"
	"github.com/marmos91/podsock/pkg/namespaces/objects"
	"github.com/marmos91/podsock/pkg/registry"
	"github.com/mitchellh/mapstructure"
)

// BuildRegistry opens every enabled namespace backend and registers its vars.
//
// The returned closers release backend resources and must be closed after
// the server stops. On error, anything already opened is closed.
func BuildRegistry(ctx context.Context, cfg *Config, version string, m *MetricsResult) (*registry.Registry, []io.Closer, error) {
	b := registry.NewBuilder()
	var closers []io.Closer

	fail := func(err error) (*registry.Registry, []io.Closer, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}

	if cfg.Namespaces.Builtin.Enabled {
		if err := builtin.Register(b, version); err != nil {
			return fail(fmt.Errorf("failed to register %s namespace: %w", builtin.Namespace, err))
		}
	}

	if enabled(cfg.Namespaces.KV) {
		store, err := createKVStore(cfg.Namespaces.KV, m)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, store)
		if err := store.Register(b); err != nil {
			return fail(fmt.Errorf("failed to register %s namespace: %w", kv.Namespace, err))
		}
	}

	if enabled(cfg.Namespaces.Objects) {
		store, err := createObjectsStore(ctx, cfg.Namespaces.Objects, m)
		if err != nil {
			return fail(err)
		}
		if err := store.Register(b); err != nil {
			return fail(fmt.Errorf("failed to register %s namespace: %w", objects.Namespace, err))
		}
	}

	reg := b.Build()
	if reg.Len() == 0 {
		return fail(errors.New("no namespaces enabled in configuration"))
	}

	logger.Info("Registry built: %d var(s)", reg.Len())
	return reg, closers, nil
}

func createKVStore(options map[string]any, m *MetricsResult) (*kv.Store, error) {
	var storeCfg kv.Config
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode kv namespace config: %w", err)
	}

	store, err := kv.Open(storeCfg, m.StoreMetrics("badger"))
	if err != nil {
		return nil, fmt.Errorf("failed to open kv store: %w", err)
	}
	return store, nil
}

func createObjectsStore(ctx context.Context, options map[string]any, m *MetricsResult) (*objects.Store, error) {
	var storeCfg objects.Config
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode objects namespace config: %w", err)
	}

	client, err := objects.NewClient(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	store, err := objects.NewStore(ctx, objects.StoreConfig{
		Client:         client,
		Bucket:         storeCfg.Bucket,
		KeyPrefix:      storeCfg.KeyPrefix,
		MaxObjectBytes: storeCfg.MaxObjectBytes,
		Metrics:        m.StoreMetrics("s3"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create objects store: %w", err)
	}
	return store, nil
}
