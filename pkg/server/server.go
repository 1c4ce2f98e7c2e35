package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/rawhttpd/internal/logger"
	"github.com/marmos91/rawhttpd/pkg/adapter"
	"golang.org/x/sync/errgroup"
)

// MetricsServer is the optional out-of-band metrics endpoint run next to the
// adapters.
type MetricsServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Port() int
}

// Server manages the lifecycle of the registered protocol adapters and the
// optional metrics server.
//
// Lifecycle:
//  1. Creation: New() with the stop timeout
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() runs every component concurrently
//  4. Shutdown: context cancellation or the first component failure stops
//     all adapters in reverse registration order
//
// Example usage:
//
//	srv := server.New(30 * time.Second)
//	if err := srv.AddAdapter(httpadapter.New(cfg, m)); err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	return srv.Serve(ctx)
type Server struct {
	// stopTimeout bounds the Stop() calls issued during shutdown
	stopTimeout time.Duration

	// mu protects adapters, metrics and served
	mu       sync.Mutex
	adapters []adapter.Adapter
	metrics  MetricsServer
	served   bool
}

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve already called")

// New creates a server with no adapters registered.
//
// stopTimeout bounds how long shutdown waits for adapters to drain; zero or
// negative values default to 30 seconds.
func New(stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &Server{
		stopTimeout: stopTimeout,
		adapters:    make([]adapter.Adapter, 0, 1),
	}
}

// AddAdapter registers a protocol adapter.
//
// Each adapter must implement a different protocol and listen on a
// different port. Panics if a is nil or Serve has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}
	if s.metrics != nil && port != 0 && s.metrics.Port() == port {
		return fmt.Errorf("port %d already in use by the metrics server", port)
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// SetMetricsServer registers the metrics server run alongside the adapters.
// A nil server disables it.
func (s *Server) SetMetricsServer(m MetricsServer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot set metrics server after Serve() has been called")
	}
	s.metrics = m
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Serve runs every registered component and blocks until ctx is cancelled
// or one of them fails.
//
// Returns nil after a graceful shutdown triggered by ctx, the first
// component error otherwise. A second call returns ErrAlreadyServed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metrics
	s.mu.Unlock()

	logger.Info("Starting rawhttpd with %d adapter(s)", len(adapters))

	g, gctx := errgroup.WithContext(ctx)

	for _, a := range adapters {
		g.Go(func() error {
			logger.Info("Starting %s adapter on port %d", a.Protocol(), a.Port())
			if err := a.Serve(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("%s adapter failed: %v", a.Protocol(), err)
				return fmt.Errorf("%s adapter error: %w", a.Protocol(), err)
			}
			logger.Info("%s adapter stopped", a.Protocol())
			return nil
		})
	}

	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received (reason: %v)", context.Cause(gctx))
		s.stopAll(adapters)
		return nil
	})

	err := g.Wait()
	if err != nil {
		logger.Error("rawhttpd stopped with error: %v", err)
		return err
	}

	logger.Info("rawhttpd stopped gracefully")
	return nil
}

// stopAll stops adapters in reverse registration order under a shared
// stopTimeout budget. Errors are logged and do not stop the remaining calls.
func (s *Server) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		logger.Debug("Stopping %s adapter (port %d)", a.Protocol(), a.Port())

		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		}
	}
}
