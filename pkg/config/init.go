package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `rawhttpd configuration file

Every setting can be overridden from the environment with the RAWHTTPD_
prefix, e.g. RAWHTTPD_ADAPTERS_HTTP_MAX_CLIENTS=16.`

// InitConfig writes a sample configuration file to the default location.
//
// Returns the path of the written file. Fails if the file already exists
// and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := GenerateSampleConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSampleConfig renders the default configuration as commented YAML.
func GenerateSampleConfig() ([]byte, error) {
	cfg := GetDefaultConfig()
	h := cfg.Adapters.HTTP

	root := mapping(
		field{"logging", mapping(
			field{"level", cfg.Logging.Level, "DEBUG, INFO, WARN or ERROR"},
			field{"format", cfg.Logging.Format, "text or json"},
			field{"output", cfg.Logging.Output, "stdout, stderr or a file path"},
		), "Logging configuration"},
		field{"server", mapping(
			field{"shutdown_timeout", cfg.Server.ShutdownTimeout.String(), "Maximum time to wait for all components to stop"},
			field{"metrics", mapping(
				field{"enabled", cfg.Server.Metrics.Enabled, ""},
				field{"port", cfg.Server.Metrics.Port, "Prometheus metrics are served at http://<host>:<port>/metrics"},
			), ""},
		), "Server-wide settings"},
		field{"adapters", mapping(
			field{"http", mapping(
				field{"enabled", h.Enabled, ""},
				field{"bind_address", h.BindAddress, ""},
				field{"port", h.Port, ""},
				field{"root_directory", h.RootDirectory, "Static files are only ever served from inside this directory"},
				field{"keep_alive", h.KeepAlive, "Allow more than one request per connection"},
				field{"timeout_seconds", h.TimeoutSeconds, "Budget for receiving one complete request header block"},
				field{"max_clients", h.MaxClients, "Connections above this ceiling get an immediate 503"},
				field{"max_request_size", h.MaxRequestSize, "Requests reaching this many bytes (headers plus declared body) get 413"},
				field{"accept_rate", h.AcceptRate, "New connections per second, 0 disables the limit"},
				field{"accept_burst", h.AcceptBurst, ""},
				field{"shutdown_timeout", h.ShutdownTimeout.String(), ""},
				field{"metrics_log_interval", h.MetricsLogInterval.String(), ""},
				field{"routes", []any{}, "Extra fixed-content routes, matched exactly:\n  - path: /health\n    content_type: text/plain\n    body: ok"},
			), ""},
		), "Protocol adapters"},
	)

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: sampleHeader,
		Content:     []*yaml.Node{root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}
	return buf.Bytes(), nil
}

// field is one key of a generated mapping.
type field struct {
	key     string
	value   any
	comment string
}

// mapping builds an ordered YAML mapping node.
func mapping(fields ...field) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: f.key, HeadComment: f.comment}

		value, ok := f.value.(*yaml.Node)
		if !ok {
			value = &yaml.Node{}
			if err := value.Encode(f.value); err != nil {
				// Only plain scalars and slices are passed in
				panic(fmt.Sprintf("encode %s: %v", f.key, err))
			}
		}
		n.Content = append(n.Content, key, value)
	}
	return n
}
