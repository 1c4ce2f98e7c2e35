package config

import (
	"github.com/marmos91/rawhttpd/pkg/metrics"
	promMetrics "github.com/marmos91/rawhttpd/pkg/metrics/prometheus"
)

// MetricsResult holds the metrics server and the collectors handed to
// adapters.
type MetricsResult struct {
	// Server is nil when metrics are disabled
	Server *metrics.Server

	// HTTPMetrics is never nil; no-op when metrics are disabled
	HTTPMetrics metrics.HTTPMetrics
}

// InitializeMetrics sets up metrics collection based on configuration.
//
// When metrics are enabled it initializes the global registry, creates the
// /metrics server and the Prometheus-backed HTTP metrics. Otherwise it
// returns no-op collectors and no server.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			HTTPMetrics: metrics.NewNoopHTTPMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Server.Metrics.Port,
		}),
		HTTPMetrics: promMetrics.NewHTTPMetrics(),
	}
}
