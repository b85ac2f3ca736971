package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/podsock/pkg/adapter/unix"
	"github.com/spf13/viper"
)

// Config is the complete podsock configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (PODSOCK_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Namespace backends follow the factory pattern: each backend owns its
// config type and the Namespaces section carries raw option maps that are
// decoded when the registry is built.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	Server ServerConfig `mapstructure:"server" yaml:"server"`

	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`

	Namespaces NamespacesConfig `mapstructure:"namespaces" yaml:"namespaces"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout bounds the time spent stopping all adapters
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// AdaptersConfig contains all transport adapter configurations.
type AdaptersConfig struct {
	Unix unix.UnixConfig `mapstructure:"unix" yaml:"unix"`
}

// NamespacesConfig selects the namespaces served by the pod.
type NamespacesConfig struct {
	// Builtin controls the "pod" namespace (echo, ping, version)
	Builtin BuiltinConfig `mapstructure:"builtin" yaml:"builtin"`

	// KV holds kv.Config options (enabled, path, in_memory)
	KV map[string]any `mapstructure:"kv" yaml:"kv"`

	// Objects holds objects.Config options (enabled, bucket, region, ...)
	Objects map[string]any `mapstructure:"objects" yaml:"objects"`
}

type BuiltinConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// envKeys are bound explicitly so that values set only in the environment
// reach Unmarshal.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"adapters.unix.enabled",
	"adapters.unix.socket_path",
	"adapters.unix.max_connections",
	"adapters.unix.max_message_bytes",
	"adapters.unix.read_timeout",
	"adapters.unix.write_timeout",
	"adapters.unix.shutdown_timeout",
	"adapters.unix.accept_rate",
	"adapters.unix.accept_burst",
	"namespaces.builtin.enabled",
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches the default location; a missing file is not
// an error and yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := newBaseConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) error {
	// Example: PODSOCK_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("PODSOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/podsock, ~/.config/podsock, or "."
// when no home directory can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "podsock")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "podsock")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
