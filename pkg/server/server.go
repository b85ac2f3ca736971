// Package server runs the pod adapters against a shared registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/pkg/adapter"
	"github.com/marmos91/podsock/pkg/registry"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve already called")

// PodServer owns the registry and the adapters exposing it.
//
// All adapters share the same frozen registry. Resources registered with
// AddCloser (storage handles used by namespaces) are closed after every
// adapter has stopped.
type PodServer struct {
	registry *registry.Registry
	adapters []adapter.Adapter
	closers  []io.Closer

	// StopTimeout bounds Stop on each adapter during shutdown. Default: 30s
	StopTimeout time.Duration

	mu     sync.Mutex
	served bool
}

// New creates a server for reg. Panics if reg is nil.
func New(reg *registry.Registry) *PodServer {
	if reg == nil {
		panic("registry cannot be nil")
	}

	return &PodServer{
		registry:    reg,
		adapters:    make([]adapter.Adapter, 0, 1),
		StopTimeout: 30 * time.Second,
	}
}

// AddAdapter registers a and injects the registry into it. Two adapters may
// not share a protocol or an address.
func (s *PodServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter after Serve() has been called")
	}

	for _, existing := range s.adapters {
		if existing.Protocol() == a.Protocol() {
			return fmt.Errorf("adapter for protocol %s already registered", a.Protocol())
		}
		if existing.Addr() == a.Addr() {
			return fmt.Errorf("address %s already in use by %s adapter", a.Addr(), existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on %s", a.Protocol(), a.Addr())
	return nil
}

// AddCloser registers a resource closed when Serve returns.
func (s *PodServer) AddCloser(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Serve starts every adapter and blocks until ctx is cancelled or one adapter
// fails, then stops the others.
//
// Returns ctx.Err() after a requested shutdown, or the first adapter error.
func (s *PodServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := append([]adapter.Adapter(nil), s.adapters...)
	s.mu.Unlock()

	defer s.closeResources()

	logger.Info("Starting podsock with %d adapter(s) and %d var(s)", len(adapters), s.registry.Len())

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			if err := a.Serve(ctx); err != nil {
				if ctx.Err() == nil {
					errChan <- adapterError{protocol: a.Protocol(), err: err}
					return
				}
				logger.Debug("%s adapter stopped: %v", a.Protocol(), err)
				return
			}
			logger.Info("%s adapter stopped", a.Protocol())
		}(a)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAll(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v, shutting down", adapterErr.protocol, adapterErr.err)
		s.stopAll(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	wg.Wait()
	logger.Info("podsock stopped")

	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAll stops adapters in reverse registration order.
func (s *PodServer) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.StopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		}
	}
}

func (s *PodServer) closeResources() {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Error("Error closing resource: %v", err)
		}
	}
}

// Adapters returns a copy of the registered adapters.
func (s *PodServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.Adapter(nil), s.adapters...)
}

// Registry returns the registry shared by all adapters.
func (s *PodServer) Registry() *registry.Registry {
	return s.registry
}
