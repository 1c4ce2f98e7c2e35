package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// isolateConfigDir points the default config location at a temp directory.
func isolateConfigDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tmpDir
}

func TestInitConfig_Success(t *testing.T) {
	tmpDir := isolateConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, ".config", "rawhttpd", "config.yaml")
	if configPath != expectedPath {
		t.Errorf("Expected config at %s, got %s", expectedPath, configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"rawhttpd configuration file",
		"logging:",
		"server:",
		"adapters:",
		"http:",
		"root_directory:",
		"max_clients:",
		"routes:",
	}

	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}
}

func TestInitConfig_RefusesOverwrite(t *testing.T) {
	isolateConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("logging:\n  level: ERROR\n"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	if _, err := InitConfig(false); err == nil {
		t.Fatal("Expected error when config already exists")
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if !strings.Contains(string(content), "ERROR") {
		t.Error("Existing config was overwritten without force")
	}
}

func TestInitConfig_Force(t *testing.T) {
	isolateConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	if _, err := InitConfig(true); err != nil {
		t.Fatalf("InitConfig with force failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if strings.Contains(string(content), "garbage") {
		t.Error("Expected config to be overwritten with force")
	}
}

func TestInitConfigToPath_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "rawhttpd.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
}

func TestGenerateSampleConfig_ValidYAML(t *testing.T) {
	data, err := GenerateSampleConfig()
	if err != nil {
		t.Fatalf("GenerateSampleConfig failed: %v", err)
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}

	for _, key := range []string{"logging", "server", "adapters"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("Generated config missing top-level key %q", key)
		}
	}
}

func TestGenerateSampleConfig_LoadsAsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config does not load: %v", err)
	}

	want := GetDefaultConfig()
	if cfg.Logging != want.Logging {
		t.Errorf("Logging mismatch: got %+v, want %+v", cfg.Logging, want.Logging)
	}
	if cfg.Server != want.Server {
		t.Errorf("Server mismatch: got %+v, want %+v", cfg.Server, want.Server)
	}

	got, exp := cfg.Adapters.HTTP, want.Adapters.HTTP
	if got.Enabled != exp.Enabled || got.KeepAlive != exp.KeepAlive {
		t.Errorf("Flag mismatch: got %+v, want %+v", got, exp)
	}
	if got.Address() != exp.Address() || got.RootDirectory != exp.RootDirectory {
		t.Errorf("Listener mismatch: got %s %s, want %s %s",
			got.Address(), got.RootDirectory, exp.Address(), exp.RootDirectory)
	}
	if got.TimeoutSeconds != exp.TimeoutSeconds ||
		got.MaxClients != exp.MaxClients ||
		got.MaxRequestSize != exp.MaxRequestSize ||
		got.ShutdownTimeout != exp.ShutdownTimeout ||
		got.MetricsLogInterval != exp.MetricsLogInterval {
		t.Errorf("Limits mismatch: got %+v, want %+v", got, exp)
	}
	if len(got.Routes) != 0 {
		t.Errorf("Expected no routes, got %+v", got.Routes)
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())

	if result.Server != nil {
		t.Error("Expected no metrics server when metrics are disabled")
	}
	if result.HTTPMetrics == nil {
		t.Fatal("Expected no-op HTTP metrics, got nil")
	}
	// No-op collectors accept calls without a registry
	result.HTTPMetrics.RecordConnectionAccepted()
}
