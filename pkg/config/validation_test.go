package config

import (
	"strings"
	"testing"

	httpadapter "github.com/marmos91/rawhttpd/pkg/adapter/http"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Fatalf("Expected valid config, got: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "invalid log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "TRACE" },
			wantErr: "Level",
		},
		{
			name:    "invalid log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.Adapters.HTTP.Port = 70000 },
			wantErr: "Port",
		},
		{
			name:    "negative max clients",
			mutate:  func(cfg *Config) { cfg.Adapters.HTTP.MaxClients = -1 },
			wantErr: "MaxClients",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(cfg *Config) { cfg.Server.ShutdownTimeout = 0 },
			wantErr: "ShutdownTimeout",
		},
		{
			name: "route without leading slash",
			mutate: func(cfg *Config) {
				cfg.Adapters.HTTP.Routes = []httpadapter.RouteConfig{{Path: "health"}}
			},
			wantErr: "startswith",
		},
		{
			name: "duplicate route path",
			mutate: func(cfg *Config) {
				cfg.Adapters.HTTP.Routes = []httpadapter.RouteConfig{
					{Path: "/health", Body: "a"},
					{Path: "/health", Body: "b"},
				}
			},
			wantErr: "duplicate route path",
		},
		{
			name:    "http adapter disabled",
			mutate:  func(cfg *Config) { cfg.Adapters.HTTP.Enabled = false },
			wantErr: "must be enabled",
		},
		{
			name: "metrics port clash",
			mutate: func(cfg *Config) {
				cfg.Server.Metrics.Enabled = true
				cfg.Server.Metrics.Port = cfg.Adapters.HTTP.Port
			},
			wantErr: "already used",
		},
		{
			name:    "request size below terminator",
			mutate:  func(cfg *Config) { cfg.Adapters.HTTP.MaxRequestSize = 4 },
			wantErr: "MaxRequestSize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
