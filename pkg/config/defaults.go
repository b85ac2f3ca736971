package config

import (
	"strings"
	"time"

	"github.com/marmos91/podsock/pkg/adapter/unix"
)

// newBaseConfig returns the config that file and environment values are
// unmarshalled onto. Booleans that default to true are set here because
// ApplyDefaults cannot tell an unset false from an explicit one.
func newBaseConfig() *Config {
	return &Config{
		Adapters: AdaptersConfig{
			Unix: unix.UnixConfig{Enabled: true},
		},
		Namespaces: NamespacesConfig{
			Builtin: BuiltinConfig{Enabled: true},
		},
	}
}

// ApplyDefaults sets default values for any unspecified configuration fields.
// Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	cfg.Adapters.Unix.ApplyDefaults()
	applyNamespaceDefaults(&cfg.Namespaces)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyNamespaceDefaults fills the option maps so a generated config file
// documents every backend, even disabled ones.
func applyNamespaceDefaults(cfg *NamespacesConfig) {
	if cfg.KV == nil {
		cfg.KV = make(map[string]any)
	}
	setDefault(cfg.KV, "enabled", false)
	setDefault(cfg.KV, "path", "/tmp/podsock-kv")
	setDefault(cfg.KV, "in_memory", false)

	if cfg.Objects == nil {
		cfg.Objects = make(map[string]any)
	}
	setDefault(cfg.Objects, "enabled", false)
	setDefault(cfg.Objects, "bucket", "")
	setDefault(cfg.Objects, "region", "us-east-1")
	setDefault(cfg.Objects, "key_prefix", "")
	setDefault(cfg.Objects, "endpoint", "")
	setDefault(cfg.Objects, "max_retries", 3)
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := newBaseConfig()
	ApplyDefaults(cfg)
	return cfg
}
