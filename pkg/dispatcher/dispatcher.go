// Package dispatcher turns a decoded request into a response using the
// registry. Dispatch never fails outward: every problem becomes an error
// response carrying the request id when one is known.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/pkg/pod"
	"github.com/marmos91/podsock/pkg/registry"
)

var (
	// ErrMissingVar is reported for an invoke without a var field.
	ErrMissingVar = errors.New("request lacks var name")

	// ErrNilResult is reported when a handler returns neither a response
	// nor an error.
	ErrNilResult = errors.New("handler returned no response")
)

// Dispatcher routes requests to the handlers of a frozen registry.
type Dispatcher struct {
	registry *registry.Registry
}

// New returns a dispatcher over reg. A nil registry serves no vars.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Dispatch is shorthand for New(reg).Dispatch(ctx, req).
func Dispatch(ctx context.Context, reg *registry.Registry, req *pod.Request) pod.Response {
	return New(reg).Dispatch(ctx, req)
}

// Dispatch answers a single request.
//
// Invoke looks the var up verbatim in the registry; no trimming, case folding
// or separator normalization happens on the requested name.
func (d *Dispatcher) Dispatch(ctx context.Context, req *pod.Request) pod.Response {
	logger.Debug("dispatch: op=%s id=%s var=%s", req.Op, req.GetID(), req.GetVar())

	switch req.Op {
	case pod.OpDescribe:
		return d.describe()
	case pod.OpInvoke:
		return d.invoke(ctx, req)
	default:
		return pod.NewErrorResponse(req.ID, fmt.Errorf("unsupported operation: %s", req.Op))
	}
}

// describe groups registry keys by the text before their first separator.
// Namespaces appear once each; vars are listed as registered, so only the
// registry's own uniqueness applies to them.
func (d *Dispatcher) describe() pod.Response {
	byNamespace := make(map[string][]pod.Var)
	for _, key := range d.registry.Keys() {
		ns, name, ok := registry.SplitKey(key)
		if !ok {
			logger.Warn("describe: skipping var %q: no namespace separator", key)
			continue
		}
		byNamespace[ns] = append(byNamespace[ns], pod.Var{Name: name})
	}

	names := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		names = append(names, ns)
	}
	sort.Strings(names)

	namespaces := make([]pod.Namespace, 0, len(names))
	for _, ns := range names {
		namespaces = append(namespaces, pod.Namespace{Name: ns, Vars: byNamespace[ns]})
	}
	return pod.NewDescribeResponse(namespaces)
}

func (d *Dispatcher) invoke(ctx context.Context, req *pod.Request) (resp pod.Response) {
	if req.Var == nil {
		return pod.NewErrorResponse(req.ID, ErrMissingVar)
	}
	key := *req.Var

	handler, ok := d.registry.Lookup(key)
	if !ok {
		return pod.NewErrorResponse(req.ID, fmt.Errorf("error no handler for %s", key))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler %s panicked: %v", key, r)
			resp = pod.NewErrorResponse(req.ID, fmt.Errorf("handler %s panicked: %v", key, r))
		}
	}()

	result, err := handler.Invoke(ctx, req)
	if err != nil {
		logger.Debug("handler %s failed: %v", key, err)
		return pod.NewErrorResponse(req.ID, err)
	}
	if result == nil {
		return pod.NewErrorResponse(req.ID, fmt.Errorf("%w: %s", ErrNilResult, key))
	}
	return result
}
