package kv

import (
	"context"
	"testing"

	"github.com/marmos91/podsock/pkg/dispatcher"
	"github.com/marmos91/podsock/pkg/pod"
	"github.com/marmos91/podsock/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(Config{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func invoke(t *testing.T, reg *registry.Registry, v, args string) pod.Response {
	t.Helper()
	return dispatcher.Dispatch(context.Background(), reg, &pod.Request{
		Op:   pod.OpInvoke,
		ID:   pod.String("1"),
		Var:  pod.String(v),
		Args: pod.String(args),
	})
}

func value(t *testing.T, resp pod.Response) string {
	t.Helper()

	inv, ok := resp.(*pod.InvokeResponse)
	require.True(t, ok, "expected invoke response, got %#v", resp)
	return string(inv.Value)
}

func errMessage(t *testing.T, resp pod.Response) string {
	t.Helper()

	e, ok := resp.(*pod.ErrorResponse)
	require.True(t, ok, "expected error response, got %#v", resp)
	return e.ExMessage
}

// ============================================================================
// Store Tests
// ============================================================================

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	t.Run("PutThenGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a", []byte(`{"n":1}`)))

		got, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(got))
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutRejectsInvalidJSON", func(t *testing.T) {
		assert.Error(t, store.Put(ctx, "bad", []byte("{")))
	})

	t.Run("DeleteReportsExistence", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "gone", []byte("1")))

		existed, err := store.Delete(ctx, "gone")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = store.Delete(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("KeysByPrefix", func(t *testing.T) {
		for _, k := range []string{"user/2", "user/1", "group/1"} {
			require.NoError(t, store.Put(ctx, k, []byte("true")))
		}

		keys, err := store.Keys(ctx, "user/")
		require.NoError(t, err)
		assert.Equal(t, []string{"user/1", "user/2"}, keys)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Get(cancelled, "a")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{}, nil)
	assert.ErrorContains(t, err, "path is required")
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "persisted", []byte(`"yes"`)))
	require.NoError(t, store.Close())

	store, err = Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, `"yes"`, string(got))
}

// ============================================================================
// Handler Tests
// ============================================================================

func TestHandlers(t *testing.T) {
	store := newTestStore(t)
	b := registry.NewBuilder()
	require.NoError(t, store.Register(b))
	reg := b.Build()

	assert.Equal(t, []string{"kv/delete", "kv/get", "kv/keys", "kv/put"}, reg.Keys())

	assert.Equal(t, "true", value(t, invoke(t, reg, "kv/put", `["color", {"r": 255}]`)))
	assert.JSONEq(t, `{"r": 255}`, value(t, invoke(t, reg, "kv/get", `["color"]`)))
	assert.Equal(t, `["color"]`, value(t, invoke(t, reg, "kv/keys", `[]`)))
	assert.Equal(t, "true", value(t, invoke(t, reg, "kv/delete", `["color"]`)))

	assert.Equal(t, "key not found: color", errMessage(t, invoke(t, reg, "kv/get", `["color"]`)))
	assert.Equal(t, "expected 2 args, got 1", errMessage(t, invoke(t, reg, "kv/put", `["only-key"]`)))
	assert.Contains(t, errMessage(t, invoke(t, reg, "kv/get", `[42]`)), "arg 0 must be a string")
	assert.Equal(t, "[]", value(t, invoke(t, reg, "kv/keys", ``)))
}
