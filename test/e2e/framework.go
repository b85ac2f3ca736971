package e2e

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/pkg/client"
	"github.com/marmos91/podsock/pkg/config"
	"github.com/marmos91/podsock/pkg/registry"
	"github.com/marmos91/podsock/pkg/server"
)

const testVersion = "e2e"

// TestContext is a running podsock server plus a client pointed at it.
type TestContext struct {
	T          testing.TB
	Config     *TestConfig
	Server     *server.PodServer
	Registry   *registry.Registry
	Client     *client.Client
	SocketPath string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	serveErr   error
	tempDir    string
}

// NewTestContext starts a server for config and waits until its socket
// accepts connections.
func NewTestContext(t testing.TB, config *TestConfig) *TestContext {
	t.Helper()

	logger.SetLevel("ERROR")

	tempDir, err := os.MkdirTemp("", "podsock-e2e-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tc := &TestContext{
		T:          t,
		Config:     config,
		SocketPath: filepath.Join(tempDir, "pod.sock"),
		ctx:        ctx,
		cancel:     cancel,
		tempDir:    tempDir,
	}

	tc.startServer()
	tc.Client = client.New(tc.SocketPath, client.WithTimeout(10*time.Second))
	return tc
}

func (tc *TestContext) buildConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = "ERROR"
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Adapters.Unix.SocketPath = tc.SocketPath
	cfg.Adapters.Unix.ShutdownTimeout = 2 * time.Second
	cfg.Adapters.Unix.ReadTimeout = 2 * time.Second
	cfg.Adapters.Unix.MaxConnections = tc.Config.MaxConnections

	switch tc.Config.KV {
	case KVInMemory:
		cfg.Namespaces.KV["enabled"] = true
		cfg.Namespaces.KV["in_memory"] = true
	case KVBadger:
		cfg.Namespaces.KV["enabled"] = true
		cfg.Namespaces.KV["path"] = filepath.Join(tc.tempDir, "kv")
	}

	if tc.Config.Objects {
		cfg.Namespaces.Objects = objectsOptions(tc.Config.bucket)
	}

	if err := config.Validate(cfg); err != nil {
		tc.T.Fatalf("Invalid test configuration: %v", err)
	}
	return cfg
}

func (tc *TestContext) startServer() {
	tc.T.Helper()

	cfg := tc.buildConfig()
	metricsResult := config.InitializeMetrics(cfg)

	reg, closers, err := config.BuildRegistry(tc.ctx, cfg, testVersion, metricsResult)
	if err != nil {
		tc.T.Fatalf("Failed to build registry: %v", err)
	}
	tc.Registry = reg

	tc.Server = server.New(reg)
	tc.Server.StopTimeout = cfg.Server.ShutdownTimeout
	for _, c := range closers {
		tc.Server.AddCloser(c)
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult.PodMetrics)
	if err != nil {
		tc.T.Fatalf("Failed to create adapters: %v", err)
	}
	for _, a := range adapters {
		if err := tc.Server.AddAdapter(a); err != nil {
			tc.T.Fatalf("Failed to add adapter: %v", err)
		}
	}

	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		tc.serveErr = tc.Server.Serve(tc.ctx)
	}()

	if err := tc.waitForServer(5 * time.Second); err != nil {
		tc.cancel()
		tc.wg.Wait()
		tc.T.Fatalf("Server failed to start: %v (serve error: %v)", err, tc.serveErr)
	}
}

func (tc *TestContext) waitForServer(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", tc.SocketPath, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return errors.New("timeout waiting for socket " + tc.SocketPath)
}

// Cleanup stops the server, waits for it, and removes temporary files.
func (tc *TestContext) Cleanup() {
	tc.cancel()

	done := make(chan struct{})
	go func() {
		tc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if tc.serveErr != nil && !errors.Is(tc.serveErr, context.Canceled) {
			tc.T.Logf("Server stopped with error: %v", tc.serveErr)
		}
	case <-time.After(10 * time.Second):
		tc.T.Errorf("Server did not stop in time")
	}

	if err := os.RemoveAll(tc.tempDir); err != nil {
		tc.T.Logf("Warning: failed to remove temp directory %s: %v", tc.tempDir, err)
	}
}

// Context returns the context the server runs under.
func (tc *TestContext) Context() context.Context {
	return tc.ctx
}
