// Package unix serves pod requests over a Unix domain socket.
//
// Every connection carries exactly one request and one response: the adapter
// reads until a whole bencode dictionary has arrived, dispatches it against the
// registry, writes the encoded response and closes the connection.
package unix

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/internal/protocol/frame"
	"github.com/marmos91/podsock/internal/ratelimiter"
	"github.com/marmos91/podsock/pkg/dispatcher"
	"github.com/marmos91/podsock/pkg/metrics"
	"github.com/marmos91/podsock/pkg/registry"
)

// UnixAdapter implements adapter.Adapter for a Unix domain socket.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed and socket file removed
//  3. shutdownCtx cancelled, so running handlers can abort
//  4. Wait for active connections (up to ShutdownTimeout)
//  5. Force-close whatever is left
type UnixAdapter struct {
	config UnixConfig

	// mu guards listener against a concurrent Stop.
	mu       sync.Mutex
	listener net.Listener

	// ready is closed once the listener is bound.
	ready chan struct{}

	dispatcher *dispatcher.Dispatcher
	metrics    metrics.PodMetrics
	limiter    *ratelimiter.RateLimiter

	activeConns  sync.WaitGroup
	connCount    atomic.Int32
	shutdownOnce sync.Once
	shutdown     chan struct{}

	// connSemaphore bounds concurrent connections; nil when unlimited.
	connSemaphore chan struct{}

	// shutdownCtx is handed to every handler and cancelled on shutdown.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection id to net.Conn for forced closure.
	activeConnections sync.Map
}

// UnixConfig configures the socket adapter.
//
// Default values (applied by New if zero):
//   - SocketPath: $XDG_RUNTIME_DIR/podsock.sock, or the temp dir
//   - SocketMode: 0600
//   - MaxConnections: 0 (unlimited)
//   - MaxMessageBytes: 1 MiB
//   - ChunkSize: 2 KiB
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
//   - AcceptRate: 0 (unlimited)
//   - MetricsLogInterval: 5m
type UnixConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// SocketPath is the filesystem path of the listening socket. A stale
	// file at this path is removed before binding.
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path" validate:"omitempty,max=104"`

	// SocketMode is applied to the socket file after binding.
	SocketMode uint32 `mapstructure:"socket_mode" yaml:"socket_mode" validate:"max=511"`

	// MaxConnections caps concurrent connections. When reached, accepting
	// pauses until one closes. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// MaxMessageBytes caps the buffered request. Larger requests are dropped
	// without a response.
	MaxMessageBytes int `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"min=0"`

	// ChunkSize is the size of each read from the socket.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size" validate:"min=0"`

	// ReadTimeout bounds the wait for each chunk. A client that goes quiet
	// for longer is disconnected.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long shutdown waits before force-closing.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// AcceptRate limits accepted connections per second. 0 disables.
	AcceptRate float64 `mapstructure:"accept_rate" yaml:"accept_rate" validate:"min=0"`

	// AcceptBurst is the token bucket size for AcceptRate.
	AcceptBurst int `mapstructure:"accept_burst" yaml:"accept_burst" validate:"min=0"`

	// MetricsLogInterval is the period of the "active connections" log line.
	// 0 disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// errStopped is returned by listen when shutdown began before the bind.
var errStopped = errors.New("unix adapter stopped")

// DefaultSocketPath returns the socket path used when none is configured.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return dir + string(os.PathSeparator) + "podsock.sock"
}

// ApplyDefaults fills in zero values. Exported so the config layer can
// render the effective values.
func (c *UnixConfig) ApplyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath()
	}
	if c.SocketMode == 0 {
		c.SocketMode = 0o600
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = frame.DefaultMaxMessageBytes
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = frame.DefaultChunkSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = max(1, int(c.AcceptRate))
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
}

func (c *UnixConfig) validate() error {
	if c.SocketPath == "" {
		return errors.New("socket path is required")
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ChunkSize <= 0 || c.MaxMessageBytes <= 0 {
		return fmt.Errorf("invalid buffer sizes: chunk_size=%d max_message_bytes=%d", c.ChunkSize, c.MaxMessageBytes)
	}
	if c.ChunkSize > c.MaxMessageBytes {
		return fmt.Errorf("chunk_size %d exceeds max_message_bytes %d", c.ChunkSize, c.MaxMessageBytes)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("invalid timeouts: read=%v write=%v", c.ReadTimeout, c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid AcceptRate %v: must be >= 0", c.AcceptRate)
	}
	return nil
}

// New creates a stopped adapter. podMetrics may be nil.
//
// Panics if config validation fails.
func New(config UnixConfig, podMetrics metrics.PodMetrics) *UnixAdapter {
	config.ApplyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid unix adapter config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Unix connection limit: %d", config.MaxConnections)
	}

	if podMetrics == nil {
		podMetrics = metrics.NewNoopPodMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &UnixAdapter{
		config:         config,
		ready:          make(chan struct{}),
		dispatcher:     dispatcher.New(nil),
		metrics:        podMetrics,
		limiter:        ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// SetRegistry injects the registry served by this adapter.
func (s *UnixAdapter) SetRegistry(reg *registry.Registry) {
	s.dispatcher = dispatcher.New(reg)
	logger.Debug("Unix adapter registry configured: %d var(s)", reg.Len())
}

// listen removes a stale socket file and binds the listener.
func (s *UnixAdapter) listen() error {
	path := s.config.SocketPath

	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&fs.ModeSocket == 0 {
			return fmt.Errorf("refusing to replace non-socket file %s", path)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove stale socket %s: %w", path, err)
		}
		logger.Debug("Removed stale socket %s", path)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	if err := os.Chmod(path, fs.FileMode(s.config.SocketMode)); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to chmod socket %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.shutdown:
		_ = listener.Close()
		_ = os.Remove(path)
		return errStopped
	default:
	}

	s.listener = listener
	return nil
}

// Serve binds the socket and accepts connections until ctx is cancelled.
//
// Returns nil after a graceful shutdown, an error if binding fails, if the
// listener fails outside of shutdown, or if connections had to be
// force-closed.
func (s *UnixAdapter) Serve(ctx context.Context) error {
	if err := s.listen(); err != nil {
		if errors.Is(err, errStopped) {
			logger.Debug("Unix adapter stopped before binding %s", s.config.SocketPath)
			return nil
		}
		return err
	}
	close(s.ready)

	logger.Info("Pod socket listening on %s", s.config.SocketPath)
	logger.Debug("Unix config: max_connections=%d max_message_bytes=%d read_timeout=%v write_timeout=%v accept_rate=%v",
		s.config.MaxConnections, s.config.MaxMessageBytes, s.config.ReadTimeout, s.config.WriteTimeout, s.config.AcceptRate)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Unix shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		if err := s.limiter.Wait(s.shutdownCtx); err != nil {
			s.releaseSlot()
			return s.gracefulShutdown()
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.releaseSlot()

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				s.initiateShutdown()
				_ = s.gracefulShutdown()
				return fmt.Errorf("accept on %s: %w", s.config.SocketPath, err)
			}
		}

		s.track(conn)
	}
}

// Ready is closed once the socket is bound and accepting.
func (s *UnixAdapter) Ready() <-chan struct{} {
	return s.ready
}

func (s *UnixAdapter) releaseSlot() {
	if s.connSemaphore != nil {
		<-s.connSemaphore
	}
}

// track registers conn and serves it in its own goroutine.
func (s *UnixAdapter) track(conn net.Conn) {
	id := uuid.NewString()

	s.activeConns.Add(1)
	current := s.connCount.Add(1)
	s.activeConnections.Store(id, conn)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)
	logger.Debug("Connection %s accepted (active: %d)", id, current)

	c := NewUnixConnection(s, conn, id)
	go func() {
		defer func() {
			s.activeConnections.Delete(id)
			s.activeConns.Done()
			current := s.connCount.Add(-1)
			s.releaseSlot()

			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(current)
			logger.Debug("Connection %s closed (active: %d)", id, current)
		}()

		c.Serve(s.shutdownCtx)
	}()
}

// initiateShutdown stops accepting and cancels in-flight handlers.
// Safe to call more than once.
func (s *UnixAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Unix shutdown initiated")

		s.mu.Lock()
		close(s.shutdown)
		listener := s.listener
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				logger.Debug("Error closing unix listener: %v", err)
			}
		}
		if err := os.Remove(s.config.SocketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to remove socket %s: %v", s.config.SocketPath, err)
		}

		s.cancelRequests()
	})
}

// gracefulShutdown waits up to ShutdownTimeout for connections to finish,
// then force-closes the rest.
func (s *UnixAdapter) gracefulShutdown() error {
	logger.Info("Unix graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	select {
	case <-s.connectionsDone():
		logger.Info("Unix graceful shutdown complete")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Unix shutdown timeout exceeded: %d connection(s) still active after %v, forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()
		return fmt.Errorf("unix shutdown timeout: %d connection(s) force-closed", remaining)
	}
}

func (s *UnixAdapter) connectionsDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

func (s *UnixAdapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", key, err)
		} else {
			closed++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed %d connection(s)", closed)
	}
}

// Stop initiates shutdown and waits for active connections until ctx is done.
func (s *UnixAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	select {
	case <-s.connectionsDone():
		return nil
	case <-ctx.Done():
		logger.Warn("Unix shutdown context cancelled: %d connection(s) still active: %v",
			s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

func (s *UnixAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("Unix metrics: active_connections=%d", s.connCount.Load())
		}
	}
}

// GetActiveConnections returns the number of connections being served.
func (s *UnixAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

func (s *UnixAdapter) Addr() string {
	return s.config.SocketPath
}

func (s *UnixAdapter) Protocol() string {
	return "unix"
}
