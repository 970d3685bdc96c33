// Package server runs a set of responders that share one map store.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/pkg/adapter"
	"github.com/marmos91/goyp/pkg/store"
)

// stopTimeout bounds the Stop() calls issued during shutdown.
const stopTimeout = 30 * time.Second

// Server manages the lifecycle of the responders that share one map store.
//
// Lifecycle:
//  1. Creation: New() with the store
//  2. Registration: AddAdapter() for each responder
//  3. Startup: Serve() registers responders with the port mapper (if one
//     was added) and starts all of them
//  4. Shutdown: context cancellation or a failing responder stops all of
//     them in reverse registration order
//
// Example usage:
//
//	srv := server.New(st)
//	srv.AddAdapter(portmapper)
//	srv.AddAdapter(ypserver)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Server struct {
	store store.Store

	mu       sync.RWMutex
	adapters []adapter.Adapter

	served atomic.Bool
}

// New creates a Server around st. It panics if st is nil.
func New(st store.Store) *Server {
	if st == nil {
		panic("store cannot be nil")
	}
	return &Server{store: st}
}

// AddAdapter registers a responder, injecting the store into it when it
// uses one. Duplicate protocols and ports are rejected.
//
// Panics if a is nil or Serve() has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}
	if s.served.Load() {
		panic("cannot add adapter after Serve() has been called")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.adapters {
		if existing.Protocol() == a.Protocol() {
			return fmt.Errorf("adapter for protocol %s already registered", a.Protocol())
		}
		if existing.Port() == a.Port() {
			return fmt.Errorf("port %d already in use by %s adapter", a.Port(), existing.Protocol())
		}
	}

	if u, ok := a.(adapter.StoreUser); ok {
		u.SetStore(s.store)
	}
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", a.Protocol(), a.Port())
	return nil
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Serve starts all adapters and blocks until ctx is cancelled or one of
// them fails. It returns ctx.Err() after a requested shutdown, or the
// failing adapter's error.
//
// Serve may only be called once.
func (s *Server) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return errors.New("server is already serving")
	}

	adapters := s.Adapters()
	if len(adapters) == 0 {
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}

	s.registerPorts(adapters)

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			if err := a.Serve(ctx); err != nil {
				if ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", a.Protocol(), err)
					errChan <- adapterError{protocol: a.Protocol(), err: err}
					return
				}
				logger.Debug("%s adapter stopped: %v", a.Protocol(), err)
				return
			}
			logger.Info("%s adapter stopped", a.Protocol())
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.stopAllAdapters(adapters)
	wg.Wait()

	logger.Info("Server stopped")
	return shutdownErr
}

// registerPorts advertises every Registrable adapter through the port
// mapper adapter, if there is one.
func (s *Server) registerPorts(adapters []adapter.Adapter) {
	var registry adapter.PortRegistry
	for _, a := range adapters {
		if r, ok := a.(adapter.PortRegistry); ok {
			registry = r
			break
		}
	}
	if registry == nil {
		return
	}

	for _, a := range adapters {
		r, ok := a.(adapter.Registrable)
		if !ok {
			continue
		}
		for _, m := range r.Mappings() {
			if !registry.Register(m) {
				logger.Warn("%s: program %d version %d already registered", a.Protocol(), m.Prog, m.Vers)
			}
		}
	}
}

type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adp.Protocol(), err)
		}
	}
}
