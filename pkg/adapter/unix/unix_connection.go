package unix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/internal/protocol/frame"
	"github.com/marmos91/podsock/pkg/pod"
)

// UnixConnection serves the single request carried by one accepted connection.
//
// Stages run strictly in order: framing, dispatching, encoding, responding.
// A framing failure closes the connection without writing anything.
type UnixConnection struct {
	server *UnixAdapter
	conn   net.Conn
	id     string
}

func NewUnixConnection(server *UnixAdapter, conn net.Conn, id string) *UnixConnection {
	return &UnixConnection{server: server, conn: conn, id: id}
}

// Serve runs the connection to completion and closes it. Panics are
// recovered and logged so one bad connection cannot take down the process.
func (c *UnixConnection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection %s: %v", c.id, r)
		}
		_ = c.conn.Close()
	}()

	req, err := c.readRequest()
	if err != nil {
		reason := framingReason(err)
		c.server.metrics.RecordFramingError(reason)
		if reason == "empty" {
			logger.Debug("Connection %s closed before sending a request", c.id)
		} else {
			logger.Warn("Connection %s: failed to read request (%s): %v", c.id, reason, err)
		}
		return
	}

	start := time.Now()
	resp := c.server.dispatcher.Dispatch(ctx, req)
	_, failed := resp.(*pod.ErrorResponse)

	target := req.Op.String()
	if req.Op == pod.OpInvoke {
		target = req.GetVar()
	}
	c.server.metrics.RecordRequest(req.Op.String(), target, time.Since(start), failed)

	buf, ok := c.encode(resp)
	if !ok {
		return
	}

	if err := c.writeResponse(buf); err != nil {
		logger.Warn("Connection %s: failed to write response: %v", c.id, err)
	}
}

// readRequest frames and decodes the request, refreshing the read deadline
// before every chunk.
func (c *UnixConnection) readRequest() (*pod.Request, error) {
	r := &deadlineReader{conn: c.conn, timeout: c.server.config.ReadTimeout}

	req, err := frame.ReadMessage(r, pod.DecodeRequest, frame.Options{
		ChunkSize:       c.server.config.ChunkSize,
		MaxMessageBytes: c.server.config.MaxMessageBytes,
	})
	c.server.metrics.RecordBytes("read", r.n)
	if err != nil {
		return nil, err
	}

	logger.Debug("Connection %s: op=%s id=%s var=%s (%d bytes)",
		c.id, req.Op, req.GetID(), req.GetVar(), r.n)
	return req, nil
}

// encode serializes resp. When that fails the client gets an error response
// without an id instead; when even that fails, nothing is written.
func (c *UnixConnection) encode(resp pod.Response) ([]byte, bool) {
	buf, err := resp.Encode()
	if err == nil {
		return buf, true
	}

	logger.Error("Connection %s: failed to encode response: %v", c.id, err)

	fallback := pod.NewErrorResponse(nil, fmt.Errorf("failed to encode response: %w", err))
	buf, err = fallback.Encode()
	if err != nil {
		logger.Error("Connection %s: failed to encode error response: %v", c.id, err)
		return nil, false
	}
	return buf, true
}

func (c *UnixConnection) writeResponse(buf []byte) error {
	if c.server.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	// net.Conn.Write returns an error on any short write.
	n, err := c.conn.Write(buf)
	c.server.metrics.RecordBytes("write", n)
	return err
}

// deadlineReader pushes the read deadline forward before each Read, so the
// timeout bounds silence between chunks rather than the whole request.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
	n       int
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, fmt.Errorf("set read deadline: %w", err)
		}
	}
	n, err := r.conn.Read(p)
	r.n += n
	return n, err
}

// framingReason labels a read failure for logs and metrics.
func framingReason(err error) string {
	var fieldErr *pod.FieldError
	switch {
	case errors.Is(err, frame.ErrNoMessage):
		return "empty"
	case errors.Is(err, frame.ErrTruncated):
		return "truncated"
	case errors.Is(err, frame.ErrMessageTooLarge):
		return "too_large"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.As(err, &fieldErr), errors.Is(err, pod.ErrNotDictionary):
		return "invalid"
	default:
		return "io"
	}
}
