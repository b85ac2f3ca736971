// Package client talks to a pod over its unix socket.
//
// Each call opens a fresh connection, writes one request and reads one
// response; the server closes the connection afterwards.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/podsock/internal/protocol/frame"
	"github.com/marmos91/podsock/pkg/pod"
)

// RemoteError is an error response returned by the pod.
type RemoteError struct {
	ID      string
	Message string
}

func (e *RemoteError) Error() string {
	if e.ID == "" {
		return e.Message
	}
	return fmt.Sprintf("request %s: %s", e.ID, e.Message)
}

// ErrUnexpectedResponse is returned when the response variant does not
// match the operation sent.
var ErrUnexpectedResponse = errors.New("unexpected response")

// Client is safe for concurrent use.
type Client struct {
	socketPath string
	timeout    time.Duration
	maxBytes   int
	dialer     net.Dialer
}

type Option func(*Client)

// WithTimeout bounds each call when the context has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxResponseBytes caps the buffered response.
func WithMaxResponseBytes(n int) Option {
	return func(c *Client) { c.maxBytes = n }
}

func New(socketPath string, opts ...Option) *Client {
	c := &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
		maxBytes:   16 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Describe lists the namespaces and vars the pod serves.
func (c *Client) Describe(ctx context.Context) (*pod.DescribeResponse, error) {
	resp, err := c.Do(ctx, &pod.Request{Op: pod.OpDescribe})
	if err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case *pod.DescribeResponse:
		return r, nil
	case *pod.ErrorResponse:
		return nil, remoteError(r)
	default:
		return nil, fmt.Errorf("%w: %T to describe", ErrUnexpectedResponse, resp)
	}
}

// Invoke calls var with args (a JSON array in the namespaces shipped here)
// and returns the raw value. An error response becomes a *RemoteError.
func (c *Client) Invoke(ctx context.Context, id, v, args string) ([]byte, error) {
	resp, err := c.Do(ctx, &pod.Request{
		Op:   pod.OpInvoke,
		ID:   pod.String(id),
		Var:  pod.String(v),
		Args: pod.String(args),
	})
	if err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case *pod.InvokeResponse:
		return r.Value, nil
	case *pod.ErrorResponse:
		return nil, remoteError(r)
	default:
		return nil, fmt.Errorf("%w: %T to invoke", ErrUnexpectedResponse, resp)
	}
}

// Do sends req and returns whatever response variant the pod produced.
func (c *Client) Do(ctx context.Context, req *pod.Request) (pod.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	buf, err := req.Encode()
	if err != nil {
		return nil, err
	}

	conn, err := c.dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(buf); err != nil {
		return nil, c.wrap(ctx, "failed to write request", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	resp, err := frame.ReadMessage(conn, pod.DecodeResponse, frame.Options{MaxMessageBytes: c.maxBytes})
	if err != nil {
		if errors.Is(err, frame.ErrNoMessage) {
			return nil, fmt.Errorf("pod closed the connection without a response: %w", err)
		}
		return nil, c.wrap(ctx, "failed to read response", err)
	}
	return resp, nil
}

// wrap prefers the context error when the context ended the call.
func (c *Client) wrap(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", msg, ctxErr)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func remoteError(r *pod.ErrorResponse) *RemoteError {
	e := &RemoteError{Message: r.ExMessage}
	if r.ID != nil {
		e.ID = *r.ID
	}
	return e
}
