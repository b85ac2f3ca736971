package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/podsock/pkg/pod"
)

// Handler serves invocations of a single var.
//
// A handler returns either a Response (usually an *pod.InvokeResponse) or an
// error. Errors are reported to the client as an error response carrying the
// request id; handlers never write to the connection themselves.
type Handler interface {
	Invoke(ctx context.Context, req *pod.Request) (pod.Response, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req *pod.Request) (pod.Response, error)

func (f HandlerFunc) Invoke(ctx context.Context, req *pod.Request) (pod.Response, error) {
	return f(ctx, req)
}

// JSONFunc adapts a function working on decoded JSON values to Handler.
//
// The request args must hold a JSON array (absent args count as an empty
// array). The result is JSON-encoded into the response value, matching the
// "json" format advertised by describe.
type JSONFunc func(ctx context.Context, args []json.RawMessage) (any, error)

func (f JSONFunc) Invoke(ctx context.Context, req *pod.Request) (pod.Response, error) {
	args, err := DecodeArgs(req)
	if err != nil {
		return nil, err
	}

	result, err := f(ctx, args)
	if err != nil {
		return nil, err
	}

	value, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return pod.NewInvokeResponse(req.GetID(), value), nil
}

// DecodeArgs parses the request args as a JSON array.
func DecodeArgs(req *pod.Request) ([]json.RawMessage, error) {
	if req.Args == nil || *req.Args == "" {
		return nil, nil
	}

	var args []json.RawMessage
	if err := json.Unmarshal([]byte(*req.Args), &args); err != nil {
		return nil, fmt.Errorf("args must be a JSON array: %w", err)
	}
	return args, nil
}

// StringArgs decodes args as exactly want JSON strings.
func StringArgs(args []json.RawMessage, want int) ([]string, error) {
	if len(args) != want {
		return nil, fmt.Errorf("expected %d args, got %d", want, len(args))
	}

	out := make([]string, len(args))
	for i, raw := range args {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			return nil, fmt.Errorf("arg %d must be a string: %w", i, err)
		}
	}
	return out, nil
}
