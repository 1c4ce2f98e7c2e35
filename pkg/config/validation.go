package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Returns an error describing the first validation failure, or nil if valid.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that struct tags cannot express.
func validateCustomRules(cfg *Config) error {
	httpCfg := &cfg.Adapters.HTTP

	if !httpCfg.Enabled {
		return fmt.Errorf("adapters: the http adapter must be enabled")
	}

	// Route paths must be unique; a later entry would silently win
	paths := make(map[string]bool, len(httpCfg.Routes))
	for i, route := range httpCfg.Routes {
		if paths[route.Path] {
			return fmt.Errorf("adapters.http.routes[%d]: duplicate route path %q", i, route.Path)
		}
		paths[route.Path] = true
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == httpCfg.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by the http adapter", httpCfg.Port)
	}

	if err := httpCfg.Validate(); err != nil {
		return fmt.Errorf("adapters.http: %w", err)
	}

	return nil
}

// formatValidationError converts validator errors into a readable message
// naming the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
