package config

import (
	"strings"
	"time"

	httpadapter "github.com/marmos91/rawhttpd/pkg/adapter/http"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Boolean fields (adapters.http.enabled, adapters.http.keep_alive) are
// defaulted by Load through viper so explicit false values survive.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize level to uppercase for consistency
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server-wide defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	applyHTTPDefaults(&cfg.HTTP)
}

// applyHTTPDefaults delegates to the adapter's own defaults so a config
// loaded from file and one built in code end up identical.
func applyHTTPDefaults(cfg *httpadapter.HTTPConfig) {
	cfg.ApplyDefaults()
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is used by the init command to generate a sample configuration file.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{
				Enabled:   true,
				KeepAlive: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
