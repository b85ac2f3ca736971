// Package frame decides where a request ends on a stream that carries no length
// prefix.
//
// The reader accumulates chunks until a cheap completeness probe passes and the
// caller-supplied decoder accepts the buffer, or until the peer closes its write
// side. The probe is pluggable so the trailing-delimiter heuristic can be swapped
// for something stricter without touching the layers above.
package frame

import (
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultChunkSize is the size of each read from the connection.
	DefaultChunkSize = 2 * 1024

	// DefaultMaxMessageBytes caps the accumulated buffer.
	DefaultMaxMessageBytes = 1 << 20

	// DictTerminator closes every bencode dictionary (and list and integer).
	DictTerminator byte = 'e'
)

var (
	// ErrIncomplete is returned by decoders when the buffer holds a valid prefix
	// of a message but not a whole one. It is a control signal for ReadMessage,
	// never surfaced to callers except wrapped in ErrTruncated.
	ErrIncomplete = errors.New("frame: incomplete message")

	// ErrNoMessage means the peer closed the connection without sending a byte.
	ErrNoMessage = errors.New("frame: connection closed before any data")

	// ErrTruncated means the peer closed the connection mid-message.
	ErrTruncated = errors.New("frame: connection closed before a complete message")

	// ErrMessageTooLarge means the buffer grew past Options.MaxMessageBytes.
	ErrMessageTooLarge = errors.New("frame: message too large")
)

// DecodeFunc parses a whole buffer. It returns an error wrapping ErrIncomplete
// when more bytes may still complete the message.
type DecodeFunc[T any] func(buf []byte) (T, error)

// Probe reports whether buf may hold a complete message and is worth a full decode.
type Probe func(buf []byte) bool

// TrailingDelimiter returns a Probe that passes only when the last buffered byte
// equals delim. An empty buffer never passes.
func TrailingDelimiter(delim byte) Probe {
	return func(buf []byte) bool {
		if len(buf) == 0 {
			return false
		}
		return buf[len(buf)-1] == delim
	}
}

// Options tunes ReadMessage. Zero values select the defaults.
type Options struct {
	ChunkSize       int
	MaxMessageBytes int
	Probe           Probe
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.Probe == nil {
		o.Probe = TrailingDelimiter(DictTerminator)
	}
}

// ReadMessage reads from r until decode accepts the buffer.
//
// Outcomes:
//   - decode succeeds after a passing probe: the message is returned immediately,
//     bytes after it in the same chunk are ignored
//   - decode reports ErrIncomplete: keep reading
//   - decode reports any other error: returned as is, since a complete value
//     cannot be fixed by more input
//   - EOF: one final decode of the whole buffer decides the result
func ReadMessage[T any](r io.Reader, decode DecodeFunc[T], opts Options) (T, error) {
	opts.applyDefaults()

	var zero T
	chunk := make([]byte, opts.ChunkSize)
	var buf []byte

	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			if len(buf)+n > opts.MaxMessageBytes {
				return zero, fmt.Errorf("%w: more than %d bytes", ErrMessageTooLarge, opts.MaxMessageBytes)
			}
			buf = append(buf, chunk[:n]...)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return finalDecode(buf, decode)
			}
			return zero, fmt.Errorf("read: %w", readErr)
		}

		if n == 0 || !opts.Probe(buf) {
			continue
		}

		msg, err := decode(buf)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, ErrIncomplete) {
			return zero, err
		}
	}
}

func finalDecode[T any](buf []byte, decode DecodeFunc[T]) (T, error) {
	var zero T
	if len(buf) == 0 {
		return zero, ErrNoMessage
	}

	msg, err := decode(buf)
	if err == nil {
		return msg, nil
	}
	if errors.Is(err, ErrIncomplete) {
		return zero, fmt.Errorf("%w (%d bytes): %w", ErrTruncated, len(buf), err)
	}
	return zero, err
}
