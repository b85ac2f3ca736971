// Package adapter defines the contract between the server and the transports
// that carry pod requests.
package adapter

import (
	"context"

	"github.com/marmos91/podsock/pkg/registry"
)

// Adapter accepts client connections on one transport and answers each with
// the shared registry.
//
// Lifecycle:
//  1. Creation: the adapter is built from its config section
//  2. SetRegistry: the server injects the frozen registry
//  3. Serve: blocks accepting connections until ctx is cancelled
//  4. Stop: optional explicit shutdown, safe to call concurrently with Serve
//
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Serve blocks until ctx is cancelled or a fatal error occurs. It returns
	// nil after a graceful shutdown.
	Serve(ctx context.Context) error

	// SetRegistry injects the registry. Called exactly once, before Serve.
	SetRegistry(reg *registry.Registry)

	// Stop initiates graceful shutdown and waits for in-flight connections
	// until ctx is done.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs and metrics (e.g. "unix").
	Protocol() string

	// Addr is the address clients connect to.
	Addr() string
}
