package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags first and then the rules tags cannot express.
// Log level case is accepted either way; ApplyDefaults normalizes it.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.Unix.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Adapters.Unix.ChunkSize > cfg.Adapters.Unix.MaxMessageBytes {
		return fmt.Errorf("adapters.unix: chunk_size (%d) exceeds max_message_bytes (%d)",
			cfg.Adapters.Unix.ChunkSize, cfg.Adapters.Unix.MaxMessageBytes)
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == 0 {
		return fmt.Errorf("server.metrics: port is required when metrics are enabled")
	}

	if enabled(cfg.Namespaces.Objects) {
		if s, _ := cfg.Namespaces.Objects["bucket"].(string); s == "" {
			return fmt.Errorf("namespaces.objects: bucket is required when enabled")
		}
	}

	return nil
}

// enabled reports whether an option map has enabled set to true.
func enabled(options map[string]any) bool {
	v, _ := options["enabled"].(bool)
	return v
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
