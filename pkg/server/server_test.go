package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/podsock/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until ctx is cancelled or Stop is called.
type fakeAdapter struct {
	protocol string
	addr     string
	serveErr error

	reg      *registry.Registry
	stopOnce sync.Once
	stopped  chan struct{}
	stops    atomic.Int32
}

func newFakeAdapter(protocol, addr string) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, addr: addr, stopped: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
	case <-f.stopped:
	}
	return nil
}

func (f *fakeAdapter) SetRegistry(reg *registry.Registry) { f.reg = reg }

func (f *fakeAdapter) Stop(context.Context) error {
	f.stops.Add(1)
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Addr() string     { return f.addr }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestAddAdapter(t *testing.T) {
	reg := registry.NewBuilder().Build()

	t.Run("InjectsRegistry", func(t *testing.T) {
		srv := New(reg)
		a := newFakeAdapter("unix", "/tmp/a.sock")

		require.NoError(t, srv.AddAdapter(a))
		assert.Same(t, reg, a.reg)
		assert.Len(t, srv.Adapters(), 1)
	})

	t.Run("RejectsDuplicateProtocol", func(t *testing.T) {
		srv := New(reg)
		require.NoError(t, srv.AddAdapter(newFakeAdapter("unix", "/tmp/a.sock")))

		err := srv.AddAdapter(newFakeAdapter("unix", "/tmp/b.sock"))
		assert.ErrorContains(t, err, "already registered")
	})

	t.Run("RejectsDuplicateAddress", func(t *testing.T) {
		srv := New(reg)
		require.NoError(t, srv.AddAdapter(newFakeAdapter("unix", "/tmp/a.sock")))

		err := srv.AddAdapter(newFakeAdapter("other", "/tmp/a.sock"))
		assert.ErrorContains(t, err, "already in use")
	})

	t.Run("RejectsNil", func(t *testing.T) {
		assert.Error(t, New(reg).AddAdapter(nil))
	})

	t.Run("NilRegistryPanics", func(t *testing.T) {
		assert.Panics(t, func() { New(nil) })
	})
}

func TestServe(t *testing.T) {
	reg := registry.NewBuilder().Build()

	t.Run("NoAdapters", func(t *testing.T) {
		err := New(reg).Serve(context.Background())
		assert.ErrorContains(t, err, "no adapters registered")
	})

	t.Run("CancelStopsAdaptersAndClosesResources", func(t *testing.T) {
		srv := New(reg)
		a := newFakeAdapter("unix", "/tmp/a.sock")
		require.NoError(t, srv.AddAdapter(a))

		var closed atomic.Bool
		srv.AddCloser(closerFunc(func() error {
			closed.Store(true)
			return nil
		}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Serve(ctx) }()

		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
		assert.Equal(t, int32(1), a.stops.Load())
		assert.True(t, closed.Load())

		assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyServed)
		assert.Error(t, srv.AddAdapter(newFakeAdapter("late", "/tmp/late.sock")))
	})

	t.Run("AdapterFailureStopsOthers", func(t *testing.T) {
		srv := New(reg)
		healthy := newFakeAdapter("unix", "/tmp/a.sock")
		broken := newFakeAdapter("broken", "/tmp/b.sock")
		broken.serveErr = errors.New("bind failed")
		require.NoError(t, srv.AddAdapter(healthy))
		require.NoError(t, srv.AddAdapter(broken))

		err := srv.Serve(context.Background())

		assert.ErrorContains(t, err, "broken adapter error: bind failed")
		assert.Equal(t, int32(1), healthy.stops.Load())
	})
}
