package config

import (
	"context"
	"path/filepath"
	"testing"
)

func TestBuildRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("BuiltinOnly", func(t *testing.T) {
		cfg := GetDefaultConfig()

		reg, closers, err := BuildRegistry(ctx, cfg, "1.2.3", InitializeMetrics(cfg))
		if err != nil {
			t.Fatalf("BuildRegistry failed: %v", err)
		}
		if len(closers) != 0 {
			t.Errorf("Expected no closers, got %d", len(closers))
		}
		for _, key := range []string{"pod/echo", "pod/ping", "pod/version"} {
			if h, _ := reg.Lookup(key); h == nil {
				t.Errorf("Expected %s to be registered", key)
			}
		}
	})

	t.Run("WithKV", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Namespaces.KV["enabled"] = true
		cfg.Namespaces.KV["path"] = filepath.Join(t.TempDir(), "kv")

		reg, closers, err := BuildRegistry(ctx, cfg, "dev", InitializeMetrics(cfg))
		if err != nil {
			t.Fatalf("BuildRegistry failed: %v", err)
		}
		defer func() {
			for _, c := range closers {
				_ = c.Close()
			}
		}()

		if len(closers) != 1 {
			t.Fatalf("Expected one closer for the kv store, got %d", len(closers))
		}
		if h, _ := reg.Lookup("kv/put"); h == nil {
			t.Error("Expected kv/put to be registered")
		}
		if reg.Len() != 7 {
			t.Errorf("Expected 7 vars, got %d: %v", reg.Len(), reg.Keys())
		}
	})

	t.Run("NothingEnabled", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Namespaces.Builtin.Enabled = false

		if _, _, err := BuildRegistry(ctx, cfg, "dev", nil); err == nil {
			t.Fatal("Expected error when no namespaces are enabled")
		}
	})

	t.Run("InvalidKVOptions", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Namespaces.KV["enabled"] = true
		cfg.Namespaces.KV["path"] = ""

		if _, _, err := BuildRegistry(ctx, cfg, "dev", nil); err == nil {
			t.Fatal("Expected error for kv without a path")
		}
	})

	t.Run("ObjectsWithoutRegion", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Namespaces.Objects["enabled"] = true
		cfg.Namespaces.Objects["bucket"] = "pods"
		cfg.Namespaces.Objects["region"] = ""

		if _, _, err := BuildRegistry(ctx, cfg, "dev", nil); err == nil {
			t.Fatal("Expected error for objects without a region")
		}
	})
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Unix.SocketPath = filepath.Join(t.TempDir(), "pod.sock")

	adapters, err := CreateAdapters(cfg, nil)
	if err != nil {
		t.Fatalf("CreateAdapters failed: %v", err)
	}
	if len(adapters) != 1 || adapters[0].Protocol() != "unix" {
		t.Fatalf("Expected a single unix adapter, got %v", adapters)
	}

	cfg.Adapters.Unix.Enabled = false
	if _, err := CreateAdapters(cfg, nil); err == nil {
		t.Error("Expected error when no adapters are enabled")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())

	if result.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if result.PodMetrics == nil {
		t.Error("Expected no-op pod metrics when disabled")
	}
	if result.StoreMetrics("badger") == nil {
		t.Error("Expected no-op store metrics when disabled")
	}
}
