package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `# podsock configuration file
#
# Every value can be overridden with an environment variable named after its
# path, e.g. PODSOCK_LOGGING_LEVEL=DEBUG or PODSOCK_ADAPTERS_UNIX_SOCKET_PATH.
`

// InitConfig writes the default configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path, creating parent
// directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg section by section, each preceded by
// a comment block.
func generateYAMLWithComments(cfg *Config) (string, error) {
	sections := []struct {
		comment string
		key     string
		value   any
	}{
		{"Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, file path)", "logging", cfg.Logging},
		{"Server-wide settings and the Prometheus endpoint", "server", cfg.Server},
		{"Transport adapters. The unix adapter serves one request per connection", "adapters", cfg.Adapters},
		{"Namespaces exposed through describe and invoke", "namespaces", cfg.Namespaces},
	}

	var sb strings.Builder
	sb.WriteString(configHeader)

	for _, s := range sections {
		out, err := yaml.Marshal(map[string]any{s.key: s.value})
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s section: %w", s.key, err)
		}
		sb.WriteString("\n# ")
		sb.WriteString(s.comment)
		sb.WriteString("\n")
		sb.Write(out)
	}

	return sb.String(), nil
}
