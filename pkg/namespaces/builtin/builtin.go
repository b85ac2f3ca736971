// Package builtin provides the always-available "pod" namespace.
package builtin

import (
	"context"
	"encoding/json"

	"github.com/marmos91/podsock/pkg/pod"
	"github.com/marmos91/podsock/pkg/registry"
)

// Namespace is the namespace the built-in vars are registered under.
const Namespace = "pod"

// Register adds pod/echo, pod/ping and pod/version to b.
func Register(b *registry.Builder, version string) error {
	return b.RegisterNamespace(Namespace, Handlers(version))
}

// Handlers returns the built-in vars keyed by var name.
func Handlers(version string) map[string]registry.Handler {
	return map[string]registry.Handler{
		"echo":    registry.HandlerFunc(echo),
		"ping":    registry.JSONFunc(ping),
		"version": versionHandler(version),
	}
}

// echo returns the args payload untouched.
func echo(_ context.Context, req *pod.Request) (pod.Response, error) {
	return pod.NewInvokeResponse(req.GetID(), []byte(req.GetArgs())), nil
}

func ping(context.Context, []json.RawMessage) (any, error) {
	return "pong", nil
}

func versionHandler(version string) registry.JSONFunc {
	return func(context.Context, []json.RawMessage) (any, error) {
		return version, nil
	}
}
