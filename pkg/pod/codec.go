package pod

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	bencode "github.com/jackpal/bencode-go"
	"github.com/marmos91/podsock/internal/protocol/frame"
)

// dict is the generic form of a bencode dictionary as produced and consumed
// by the codec.
type dict = map[string]any

// maxNesting bounds list and dictionary depth. Responses nest five deep.
const maxNesting = 32

// decodeDict runs the codec over buf and requires a dictionary at the top level.
// Any codec failure is reported as frame.ErrIncomplete: a buffer that does not
// parse may still become valid once more bytes arrive.
func decodeDict(buf []byte) (dict, error) {
	if err := scanValue(buf); err != nil {
		return nil, err
	}

	v, err := bencode.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", frame.ErrIncomplete, err)
	}
	d, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotDictionary, v)
	}
	return d, nil
}

// scanValue walks the first bencode value in buf without allocating. The
// codec sizes string buffers from their length headers, so it only runs once
// every declared length fits inside buf. Anything short of a whole value is
// reported as frame.ErrIncomplete.
func scanValue(buf []byte) error {
	depth := 0
	for i := 0; ; {
		if i >= len(buf) {
			return incomplete("unexpected end of input")
		}

		switch c := buf[i]; {
		case c == 'd' || c == 'l':
			depth++
			if depth > maxNesting {
				return fmt.Errorf("%w: more than %d levels", ErrNestingTooDeep, maxNesting)
			}
			i++
			continue
		case c == 'e':
			if depth == 0 {
				return incomplete("unexpected end marker")
			}
			depth--
			i++
		case c == 'i':
			end := bytes.IndexByte(buf[i+1:], 'e')
			if end < 0 {
				return incomplete("unterminated integer")
			}
			i += end + 2
		case c >= '0' && c <= '9':
			colon := bytes.IndexByte(buf[i:], ':')
			if colon < 0 {
				return incomplete("unterminated string length")
			}
			n, err := strconv.ParseUint(string(buf[i:i+colon]), 10, 63)
			if err != nil {
				return incomplete("invalid string length")
			}
			start := i + colon + 1
			if n > uint64(len(buf)-start) {
				return incomplete(fmt.Sprintf("string of %d bytes, %d buffered", n, len(buf)-start))
			}
			i = start + int(n)
		default:
			return incomplete(fmt.Sprintf("unexpected byte %q", c))
		}

		if depth == 0 {
			return nil
		}
	}
}

func incomplete(reason string) error {
	return fmt.Errorf("%w: %s", frame.ErrIncomplete, reason)
}

func encodeDict(d dict) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, d); err != nil {
		return nil, fmt.Errorf("pod: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// sortedKeys returns the keys of d in byte order, the canonical bencode order.
func sortedKeys(d dict) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringField(d dict, name string) (string, bool, error) {
	v, ok := d[name]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, invalidType(name)
	}
	return s, true, nil
}

func listField(d dict, name string) ([]any, error) {
	v, ok := d[name]
	if !ok {
		return nil, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, invalidType(name)
	}
	return l, nil
}
