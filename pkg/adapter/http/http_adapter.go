package http

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/rawhttpd/internal/logger"
	httpproto "github.com/marmos91/rawhttpd/internal/protocol/http"
	"github.com/marmos91/rawhttpd/internal/ratelimiter"
	"github.com/marmos91/rawhttpd/pkg/metrics"
)

const (
	// rejectWriteTimeout bounds the synchronous 503 write in the accept loop.
	rejectWriteTimeout = time.Second

	// lingerTimeout bounds the drain that follows a half-close.
	lingerTimeout = 2 * time.Second

	// maxLingerBytes caps how much a lingering peer may still send us.
	maxLingerBytes = 64 << 10

	// maxRejectDrains caps the background drains of rejected connections.
	// Beyond it a rejected connection is closed right after the 503.
	maxRejectDrains = 64
)

// HTTPAdapter implements the adapter.Adapter interface for HTTP/1.1.
//
// Every accepted connection is checked against MaxClients. Connections at
// or above the ceiling get an immediate 503 and are never queued; admitted
// connections are served by their own goroutine until they close.
//
// Graceful shutdown:
//  1. Listener closed (no new connections)
//  2. Connection contexts cancelled (idle readers wake up and close)
//  3. Wait up to ShutdownTimeout for active connections
//  4. Remaining connections are force-closed
type HTTPAdapter struct {
	// config holds the server configuration. It is copied by value and
	// never mutated after New returns.
	config HTTPConfig

	// router answers parsed requests. Frozen before Serve.
	router *httpproto.Router

	// metrics collects request and connection metrics.
	metrics metrics.HTTPMetrics

	// limiter optionally bounds the accept rate. nil means unlimited.
	limiter *ratelimiter.RateLimiter

	// requestTimeout is the per-request framing budget.
	requestTimeout time.Duration

	// unavailable is the pre-serialized 503 response.
	unavailable []byte

	// rejectDrains is a semaphore bounding concurrent drainAndClose calls
	// started by reject.
	rejectDrains chan struct{}

	// activeConns tracks admitted connections for graceful shutdown.
	activeConns sync.WaitGroup

	// connCount is the number of admitted connections. It is incremented
	// only after admission and decremented exactly once per admitted
	// connection.
	connCount atomic.Int32

	// activeConnections maps connection IDs to net.Conn for force-close.
	activeConnections sync.Map

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// shutdownCtx is handed to every connection and cancelled on shutdown.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the interface to listen on.
	// Default: 127.0.0.1
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"required"`

	// Port is the TCP port to listen on.
	// Default: 7878
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// RootDirectory is the only directory static files are served from.
	// Default: ./public
	RootDirectory string `mapstructure:"root_directory" yaml:"root_directory" validate:"required"`

	// KeepAlive allows connections to carry more than one request.
	KeepAlive bool `mapstructure:"keep_alive" yaml:"keep_alive"`

	// TimeoutSeconds is the budget for receiving one complete header block,
	// waiting for the next request on a kept-alive connection included.
	// Default: 5
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"min=0"`

	// MaxClients is the admission ceiling on concurrent connections.
	// Default: 4
	MaxClients int `mapstructure:"max_clients" yaml:"max_clients" validate:"min=0"`

	// MaxRequestSize is the request size (headers plus declared body) at
	// which a request is refused with 413.
	// Default: 8192
	MaxRequestSize int `mapstructure:"max_request_size" yaml:"max_request_size" validate:"min=0"`

	// AcceptRate limits admitted connections per second. 0 disables it.
	AcceptRate float64 `mapstructure:"accept_rate" yaml:"accept_rate" validate:"min=0"`

	// AcceptBurst is the token bucket size for AcceptRate.
	AcceptBurst int `mapstructure:"accept_burst" yaml:"accept_burst" validate:"min=0"`

	// ShutdownTimeout is how long shutdown waits before force-closing.
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the active connection log line.
	// Default: 5m
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`

	// Routes are extra fixed-content routes registered at startup.
	Routes []RouteConfig `mapstructure:"routes" yaml:"routes" validate:"dive"`
}

// RouteConfig describes one fixed-content route.
type RouteConfig struct {
	// Path is matched exactly, query string included.
	Path string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`

	// ContentType defaults to text/html.
	ContentType string `mapstructure:"content_type" yaml:"content_type"`

	// Body is returned verbatim.
	Body string `mapstructure:"body" yaml:"body"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) ApplyDefaults() {
	// Note: Enabled and KeepAlive defaults are handled in pkg/config so an
	// explicit false from a configuration file is kept.

	if c.BindAddress == "" {
		c.BindAddress = "127.0.0.1"
	}
	if c.Port <= 0 {
		c.Port = 7878
	}
	if c.RootDirectory == "" {
		c.RootDirectory = "./public"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 5
	}
	if c.MaxClients <= 0 {
		c.MaxClients = 4
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = 8192
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
	for i := range c.Routes {
		if c.Routes[i].ContentType == "" {
			c.Routes[i].ContentType = httpproto.ContentTypeHTML
		}
	}
}

// Validate checks that the configuration can be served.
func (c *HTTPConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.BindAddress == "" {
		return fmt.Errorf("invalid bind address: must not be empty")
	}
	if c.RootDirectory == "" {
		return fmt.Errorf("invalid root directory: must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid TimeoutSeconds %d: must be > 0", c.TimeoutSeconds)
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("invalid MaxClients %d: must be > 0", c.MaxClients)
	}
	// The smallest complete request is the 4-byte terminator itself
	if c.MaxRequestSize <= len("\r\n\r\n") {
		return fmt.Errorf("invalid MaxRequestSize %d: must be > 4", c.MaxRequestSize)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid AcceptRate %v: must be >= 0", c.AcceptRate)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	for _, r := range c.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("invalid route path %q: must start with /", r.Path)
		}
	}
	return nil
}

// Timeout returns the per-request deadline budget.
func (c *HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Address returns the host:port the adapter binds to.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// New creates a new HTTPAdapter with the specified configuration.
//
// The route table is built and frozen here: the built-in routes, then the
// configured ones. The adapter is created in a stopped state; call Serve to
// start accepting connections.
//
// Parameters:
//   - config: Server configuration (address, limits, timeouts, routes)
//   - httpMetrics: Optional metrics collector (nil for no metrics)
//
// Panics if config validation fails.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) *HTTPAdapter {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	// Routes are copied so the caller's slice cannot alias the adapter's
	config.Routes = append([]RouteConfig(nil), config.Routes...)

	sanitizer := httpproto.NewPathSanitizer(config.RootDirectory, nil)
	router := httpproto.NewRouter(httpproto.NewStaticFiles(sanitizer))
	for _, r := range config.Routes {
		if err := router.Handle(r.Path, httpproto.Constant(r.ContentType, []byte(r.Body))); err != nil {
			panic(fmt.Sprintf("invalid HTTP route: %v", err))
		}
	}
	router.Freeze()
	logger.Debug("HTTP routes registered: %d", router.Len())

	limiter := ratelimiter.New(config.AcceptRate, config.AcceptBurst)
	if limiter != nil {
		logger.Debug("HTTP accept rate limit: %.2f/s (burst %d)", config.AcceptRate, limiter.Burst())
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &HTTPAdapter{
		config:         config,
		router:         router,
		metrics:        httpMetrics,
		limiter:        limiter,
		requestTimeout: config.Timeout(),
		unavailable:    httpproto.NewErrorResponse(httpproto.StatusServiceUnavailable).Bytes(),
		rejectDrains:   make(chan struct{}, maxRejectDrains),
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// Serve binds BindAddress:Port and serves until ctx is cancelled.
//
// Returns nil on graceful shutdown, or an error if the listener cannot be
// created or shutdown had to force-close connections.
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on %s: %w", s.config.Address(), err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves connections from an existing listener until ctx is
// cancelled. The adapter takes ownership of the listener.
//
// Serve or ServeListener should only be called once per HTTPAdapter.
func (s *HTTPAdapter) ServeListener(ctx context.Context, listener net.Listener) error {
	logger.Info("HTTP server listening on %s", listener.Addr())
	logger.Debug("HTTP config: root=%s keep_alive=%v timeout=%v max_clients=%d max_request_size=%d",
		s.config.RootDirectory, s.config.KeepAlive, s.requestTimeout, s.config.MaxClients, s.config.MaxRequestSize)

	// Closing the listener is what unblocks Accept, for both ctx
	// cancellation and Stop
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
		if err := listener.Close(); err != nil {
			logger.Debug("Error closing HTTP listener: %v", err)
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		tcpConn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting HTTP connection: %v", err)
				continue
			}
		}

		s.admit(tcpConn)
	}
}

// admit applies the admission policy to a freshly accepted connection.
//
// The ceiling check and the increment are separate steps, so concurrent
// accepts may transiently overcommit by a small amount.
func (s *HTTPAdapter) admit(tcpConn net.Conn) {
	if active := s.connCount.Load(); active >= int32(s.config.MaxClients) {
		logger.Debug("HTTP connection from %s rejected: %d active (max %d)",
			tcpConn.RemoteAddr(), active, s.config.MaxClients)
		s.reject(tcpConn, metrics.RejectCeiling)
		return
	}
	if !s.limiter.Allow() {
		logger.Debug("HTTP connection from %s rejected: accept rate exceeded", tcpConn.RemoteAddr())
		s.reject(tcpConn, metrics.RejectRateLimit)
		return
	}

	s.activeConns.Add(1)
	currentConns := s.connCount.Add(1)

	connID := uuid.NewString()
	s.activeConnections.Store(connID, tcpConn)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(currentConns)

	logger.Debug("HTTP connection %s accepted from %s (active: %d)",
		connID, tcpConn.RemoteAddr(), currentConns)

	conn := NewHTTPConnection(s, tcpConn, connID)
	go func() {
		defer func() {
			s.activeConnections.Delete(connID)

			s.activeConns.Done()
			currentConns := s.connCount.Add(-1)

			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(currentConns)

			logger.Debug("HTTP connection %s closed (active: %d)", connID, currentConns)
		}()

		conn.Serve(s.shutdownCtx)
	}()
}

// reject answers a connection with 503 and releases it without counting it.
//
// The 503 is written synchronously, then the write side is half-closed. The
// lingering drain and final close run in the background so the accept loop
// never waits on a slow peer. At most maxRejectDrains drains run at once.
func (s *HTTPAdapter) reject(tcpConn net.Conn, reason string) {
	s.metrics.RecordConnectionRejected(reason)

	if err := tcpConn.SetWriteDeadline(time.Now().Add(rejectWriteTimeout)); err != nil {
		logger.Debug("Failed to set write deadline for %s: %v", tcpConn.RemoteAddr(), err)
	}
	n, err := tcpConn.Write(s.unavailable)
	s.metrics.RecordBytesTransferred(metrics.DirectionWrite, int64(n))
	if err != nil {
		logger.Debug("Error writing 503 to %s: %v", tcpConn.RemoteAddr(), err)
		_ = tcpConn.Close()
		return
	}
	s.metrics.RecordRequest("", int(httpproto.StatusServiceUnavailable), 0)

	halfClose(tcpConn)

	select {
	case s.rejectDrains <- struct{}{}:
		go func() {
			defer func() { <-s.rejectDrains }()
			drainAndClose(tcpConn, lingerTimeout)
		}()
	default:
		// Drain slots exhausted
		_ = tcpConn.Close()
	}
}

// halfClose shuts down the write side of conn when the transport supports it.
func halfClose(conn net.Conn) {
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := conn.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			logger.Debug("Error half-closing connection to %s: %v", conn.RemoteAddr(), err)
		}
	}
}

// drainAndClose discards inbound bytes until the peer closes, timeout
// elapses or maxLingerBytes were read, then closes conn. Closing a socket
// with unread data makes the kernel send a reset, which can destroy a
// response the peer has not read yet.
func drainAndClose(conn net.Conn, timeout time.Duration) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 4096)
	for drained := 0; drained < maxLingerBytes; {
		n, err := conn.Read(buf)
		drained += n
		if err != nil {
			break
		}
	}
	_ = conn.Close()
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (the serve loop then closes the listener)
//  2. Cancel shutdownCtx (wakes connections waiting for a request)
//
// Safe to call multiple times and from multiple goroutines.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")

		close(s.shutdown)
		s.cancelRequests()
	})
}

// gracefulShutdown waits for active connections up to ShutdownTimeout and
// force-closes whatever is left.
//
// Returns nil if all connections completed, or an error naming how many
// connections were force-closed.
func (s *HTTPAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("HTTP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("HTTP shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes all tracked TCP connections. Their handlers
// fail on the next read or write and run their normal cleanup.
func (s *HTTPAdapter) forceCloseConnections() {
	logger.Info("Force-closing active HTTP connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		id := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing HTTP connection %s: %v", id, err)
		} else {
			closedCount++
			logger.Debug("Force-closed HTTP connection %s", id)
		}
		return true
	})

	if closedCount == 0 {
		logger.Debug("No connections to force-close")
	} else {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for active connections until
// ctx is done.
//
// Safe to call concurrently with Serve and multiple times.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	logger.Info("HTTP graceful shutdown: waiting for %d active connection(s) (context timeout)",
		s.connCount.Load())

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// logMetrics periodically logs the active connection count until ctx is
// cancelled.
func (s *HTTPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("HTTP metrics: active_connections=%d max_clients=%d",
				s.connCount.Load(), s.config.MaxClients)
		}
	}
}

// GetActiveConnections returns the current number of admitted connections.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the configured TCP port.
func (s *HTTPAdapter) Port() int {
	return s.config.Port
}

// Protocol returns "HTTP" as the protocol identifier.
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}
