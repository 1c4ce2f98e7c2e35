package framework

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/rawhttpd/internal/logger"
	httpadapter "github.com/marmos91/rawhttpd/pkg/adapter/http"
	"github.com/marmos91/rawhttpd/pkg/config"
	"github.com/marmos91/rawhttpd/pkg/server"
)

// TestServerConfig holds configuration for the test server.
// This is distinct from pkg/config.ServerConfig (application-level server settings).
type TestServerConfig struct {
	// Files are written below the document root before the server starts,
	// keyed by slash-separated relative path.
	Files map[string]string

	// Routes are passed through as adapters.http.routes
	Routes []httpadapter.RouteConfig

	MaxClients     int
	TimeoutSeconds int
	KeepAlive      bool
	Metrics        bool

	LogLevel       string
	StartupTimeout time.Duration
}

// TestServer wraps a complete rawhttpd server for testing.
type TestServer struct {
	t        testing.TB
	config   TestServerConfig
	cfg      *config.Config
	server   *server.Server
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	serveErr error
	started  bool
	mu       sync.Mutex
	rootDir  string
}

// NewTestServer prepares a server on free ports with a temporary document
// root. Call Start to run it; Stop is registered as a test cleanup.
func NewTestServer(t testing.TB, cfg TestServerConfig) *TestServer {
	t.Helper()

	if cfg.LogLevel == "" {
		cfg.LogLevel = "ERROR" // Keep tests quiet by default
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 10 * time.Second
	}

	rootDir := t.TempDir()
	for rel, content := range cfg.Files {
		path := filepath.Join(rootDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
	}

	appCfg := config.GetDefaultConfig()
	appCfg.Logging.Level = cfg.LogLevel
	appCfg.Server.ShutdownTimeout = 5 * time.Second
	appCfg.Server.Metrics.Enabled = cfg.Metrics
	appCfg.Server.Metrics.Port = findFreePort(t)

	h := &appCfg.Adapters.HTTP
	h.Port = findFreePort(t)
	h.RootDirectory = rootDir
	h.KeepAlive = cfg.KeepAlive
	h.Routes = cfg.Routes
	h.ShutdownTimeout = 2 * time.Second
	h.MetricsLogInterval = 0
	if cfg.MaxClients > 0 {
		h.MaxClients = cfg.MaxClients
	}
	if cfg.TimeoutSeconds > 0 {
		h.TimeoutSeconds = cfg.TimeoutSeconds
	}
	config.ApplyDefaults(appCfg)

	if err := config.Validate(appCfg); err != nil {
		t.Fatalf("Invalid test configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ts := &TestServer{
		t:       t,
		config:  cfg,
		cfg:     appCfg,
		ctx:     ctx,
		cancel:  cancel,
		rootDir: rootDir,
	}
	t.Cleanup(func() { _ = ts.Stop() })
	return ts
}

// Start runs the server in the background and waits until it accepts
// connections.
func (ts *TestServer) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return fmt.Errorf("server already started")
	}

	ts.t.Helper()

	logger.SetLevel(ts.config.LogLevel)

	m := config.InitializeMetrics(ts.cfg)

	ts.server = server.New(ts.cfg.Server.ShutdownTimeout)
	if m.Server != nil {
		ts.server.SetMetricsServer(m.Server)
	}
	if err := ts.server.AddAdapter(httpadapter.New(ts.cfg.Adapters.HTTP, m.HTTPMetrics)); err != nil {
		return fmt.Errorf("failed to add HTTP adapter: %w", err)
	}

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		if err := ts.server.Serve(ts.ctx); err != nil {
			ts.mu.Lock()
			ts.serveErr = err
			ts.mu.Unlock()
		}
	}()

	ts.t.Logf("Waiting for server to start on %s...", ts.Addr())
	if err := waitForPort(ts.Addr(), ts.config.StartupTimeout); err != nil {
		ts.cancel()
		ts.wg.Wait()
		return fmt.Errorf("server failed to start: %w", err)
	}
	if ts.config.Metrics {
		if err := waitForPort(ts.MetricsAddr(), ts.config.StartupTimeout); err != nil {
			ts.cancel()
			ts.wg.Wait()
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
	}

	ts.started = true
	ts.t.Logf("Server started successfully on %s", ts.Addr())
	return nil
}

// Stop cancels the server and waits for it to drain.
//
// Returns the error Serve returned, if any.
func (ts *TestServer) Stop() error {
	ts.mu.Lock()
	if !ts.started {
		ts.mu.Unlock()
		return nil
	}
	ts.started = false
	ts.mu.Unlock()

	ts.cancel()

	done := make(chan struct{})
	go func() {
		ts.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server stop timeout")
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.serveErr
}

// Addr returns the host:port of the HTTP adapter.
func (ts *TestServer) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", ts.cfg.Adapters.HTTP.Port)
}

// MetricsAddr returns the host:port of the metrics server.
func (ts *TestServer) MetricsAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", ts.cfg.Server.Metrics.Port)
}

// URL returns an http:// URL for path on the HTTP adapter.
func (ts *TestServer) URL(path string) string {
	return "http://" + ts.Addr() + path
}

// RootDir returns the document root.
func (ts *TestServer) RootDir() string {
	return ts.rootDir
}

// waitForPort polls addr until a TCP connection succeeds.
func waitForPort(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s", addr)
}

// findFreePort finds an available port
func findFreePort(t testing.TB) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}
