package builtin

import (
	"context"
	"testing"

	"github.com/marmos91/podsock/pkg/dispatcher"
	"github.com/marmos91/podsock/pkg/pod"
	"github.com/marmos91/podsock/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	b := registry.NewBuilder()
	require.NoError(t, Register(b, "1.2.3"))
	reg := b.Build()

	assert.Equal(t, []string{"pod/echo", "pod/ping", "pod/version"}, reg.Keys())

	tests := []struct {
		name  string
		key   string
		args  *string
		value string
	}{
		{name: "EchoReturnsArgsVerbatim", key: "pod/echo", args: pod.String(`[1, "two", {"x": 3}]`), value: `[1, "two", {"x": 3}]`},
		{name: "EchoWithoutArgs", key: "pod/echo", value: ""},
		{name: "Ping", key: "pod/ping", value: `"pong"`},
		{name: "Version", key: "pod/version", args: pod.String("[]"), value: `"1.2.3"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &pod.Request{Op: pod.OpInvoke, ID: pod.String("1"), Var: pod.String(tt.key), Args: tt.args}

			resp := dispatcher.Dispatch(context.Background(), reg, req)

			assert.Equal(t, pod.NewInvokeResponse("1", []byte(tt.value)), resp)
		})
	}

	t.Run("DoubleRegistrationFails", func(t *testing.T) {
		assert.ErrorIs(t, Register(b, "1.2.3"), registry.ErrDuplicateKey)
	})
}
