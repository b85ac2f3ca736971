package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/marmos91/podsock/pkg/pod"
	"github.com/marmos91/podsock/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler returns the request args as the value.
var echoHandler = registry.HandlerFunc(func(_ context.Context, req *pod.Request) (pod.Response, error) {
	return pod.NewInvokeResponse(req.GetID(), []byte(req.GetArgs())), nil
})

func newTestRegistry(t *testing.T, keys ...string) *registry.Registry {
	t.Helper()

	b := registry.NewBuilder()
	for _, key := range keys {
		require.NoError(t, b.Register(key, echoHandler))
	}
	return b.Build()
}

func invoke(id, v, args string) *pod.Request {
	return &pod.Request{Op: pod.OpInvoke, ID: pod.String(id), Var: pod.String(v), Args: pod.String(args)}
}

// ============================================================================
// Describe Tests
// ============================================================================

func TestDescribe(t *testing.T) {
	t.Run("GroupsByNamespace", func(t *testing.T) {
		reg := newTestRegistry(t, "math/add", "math/sub", "str/upper")

		resp := Dispatch(context.Background(), reg, &pod.Request{Op: pod.OpDescribe})

		want := pod.NewDescribeResponse([]pod.Namespace{
			{Name: "math", Vars: []pod.Var{{Name: "add"}, {Name: "sub"}}},
			{Name: "str", Vars: []pod.Var{{Name: "upper"}}},
		})
		if diff := cmp.Diff(want, resp); diff != "" {
			t.Errorf("describe mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("SkipsKeysWithoutSeparator", func(t *testing.T) {
		reg := newTestRegistry(t, "orphan", "str/upper")

		resp := Dispatch(context.Background(), reg, &pod.Request{Op: pod.OpDescribe})

		describe, ok := resp.(*pod.DescribeResponse)
		require.True(t, ok)
		require.Len(t, describe.Namespaces, 1)
		assert.Equal(t, "str", describe.Namespaces[0].Name)
	})

	t.Run("SplitsOnFirstSeparatorOnly", func(t *testing.T) {
		reg := newTestRegistry(t, "a/b/c")

		resp := Dispatch(context.Background(), reg, &pod.Request{Op: pod.OpDescribe})

		describe := resp.(*pod.DescribeResponse)
		assert.Equal(t, []pod.Namespace{{Name: "a", Vars: []pod.Var{{Name: "b/c"}}}}, describe.Namespaces)
	})

	t.Run("EmptyRegistry", func(t *testing.T) {
		resp := Dispatch(context.Background(), newTestRegistry(t), &pod.Request{Op: pod.OpDescribe})

		describe := resp.(*pod.DescribeResponse)
		assert.Equal(t, pod.DescribeFormat, describe.Format)
		assert.Empty(t, describe.Namespaces)
	})
}

// ============================================================================
// Invoke Tests
// ============================================================================

func TestInvoke(t *testing.T) {
	reg := newTestRegistry(t, "math/add", "math/sub", "str/upper")

	t.Run("Hit", func(t *testing.T) {
		resp := Dispatch(context.Background(), reg, invoke("42", "math/add", "[1, 2]"))

		assert.Equal(t, pod.NewInvokeResponse("42", []byte("[1, 2]")), resp)
	})

	t.Run("Miss", func(t *testing.T) {
		resp := Dispatch(context.Background(), reg, invoke("42", "math/mul", "[1, 2]"))

		assert.Equal(t, &pod.ErrorResponse{
			ID:        pod.String("42"),
			Status:    pod.StatusError,
			ExMessage: "error no handler for math/mul",
		}, resp)
	})

	t.Run("MatchIsVerbatim", func(t *testing.T) {
		resp := Dispatch(context.Background(), reg, invoke("1", "math//add", "[]"))

		errResp, ok := resp.(*pod.ErrorResponse)
		require.True(t, ok)
		assert.Equal(t, "error no handler for math//add", errResp.ExMessage)
	})

	t.Run("MissingVar", func(t *testing.T) {
		resp := Dispatch(context.Background(), reg, &pod.Request{Op: pod.OpInvoke, ID: pod.String("7")})

		assert.Equal(t, pod.NewErrorResponse(pod.String("7"), ErrMissingVar), resp)
	})

	t.Run("MissingVarAndID", func(t *testing.T) {
		resp := Dispatch(context.Background(), reg, &pod.Request{Op: pod.OpInvoke})

		errResp := resp.(*pod.ErrorResponse)
		assert.Nil(t, errResp.ID)
		assert.Equal(t, "request lacks var name", errResp.ExMessage)
	})
}

func TestInvokeHandlerFailures(t *testing.T) {
	b := registry.NewBuilder()
	require.NoError(t, b.Register("fail/error", registry.HandlerFunc(
		func(context.Context, *pod.Request) (pod.Response, error) {
			return nil, errors.New("division by zero")
		})))
	require.NoError(t, b.Register("fail/panic", registry.HandlerFunc(
		func(context.Context, *pod.Request) (pod.Response, error) {
			panic("boom")
		})))
	require.NoError(t, b.Register("fail/nil", registry.HandlerFunc(
		func(context.Context, *pod.Request) (pod.Response, error) {
			return nil, nil
		})))
	require.NoError(t, b.Register("fail/custom", registry.HandlerFunc(
		func(_ context.Context, req *pod.Request) (pod.Response, error) {
			return pod.NewErrorResponse(req.ID, errors.New("custom")), nil
		})))
	d := New(b.Build())

	tests := []struct {
		name    string
		key     string
		message string
	}{
		{name: "Error", key: "fail/error", message: "division by zero"},
		{name: "Panic", key: "fail/panic", message: "handler fail/panic panicked: boom"},
		{name: "NilResponse", key: "fail/nil", message: "handler returned no response: fail/nil"},
		{name: "HandlerBuiltError", key: "fail/custom", message: "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(context.Background(), invoke("9", tt.key, "[]"))

			errResp, ok := resp.(*pod.ErrorResponse)
			require.True(t, ok, "got %T", resp)
			assert.Equal(t, "9", *errResp.ID)
			assert.Equal(t, pod.StatusError, errResp.Status)
			assert.Equal(t, tt.message, errResp.ExMessage)
		})
	}
}

func TestInvokePassesContext(t *testing.T) {
	type ctxKey struct{}

	b := registry.NewBuilder()
	require.NoError(t, b.Register("ctx/value", registry.HandlerFunc(
		func(ctx context.Context, req *pod.Request) (pod.Response, error) {
			v, _ := ctx.Value(ctxKey{}).(string)
			return pod.NewInvokeResponse(req.GetID(), []byte(v)), nil
		})))

	ctx := context.WithValue(context.Background(), ctxKey{}, "carried")
	resp := Dispatch(ctx, b.Build(), invoke("1", "ctx/value", ""))

	assert.Equal(t, pod.NewInvokeResponse("1", []byte("carried")), resp)
}

func TestUnsupportedOp(t *testing.T) {
	resp := Dispatch(context.Background(), newTestRegistry(t), &pod.Request{Op: pod.Op(99), ID: pod.String("x")})

	errResp, ok := resp.(*pod.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, "unsupported operation: op(99)", errResp.ExMessage)
}
