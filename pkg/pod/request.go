package pod

import (
	"github.com/marmos91/podsock/internal/logger"
)

// Request dictionary keys.
const (
	fieldOp   = "op"
	fieldID   = "id"
	fieldVar  = "var"
	fieldArgs = "args"
)

// DecodeRequest parses a bencode request dictionary.
//
// The schema is closed: any key other than op, id, var and args fails with a
// FieldError naming the key. A present op must be a string; an op string that
// names no known operation is logged and ignored, leaving OpDescribe.
//
// A buffer the codec cannot parse yields an error wrapping frame.ErrIncomplete.
func DecodeRequest(buf []byte) (*Request, error) {
	d, err := decodeDict(buf)
	if err != nil {
		return nil, err
	}

	req := &Request{Op: OpDescribe}
	for _, key := range sortedKeys(d) {
		switch key {
		case fieldID, fieldVar, fieldArgs:
			s, _, err := stringField(d, key)
			if err != nil {
				return nil, err
			}
			switch key {
			case fieldID:
				req.ID = String(s)
			case fieldVar:
				req.Var = String(s)
			case fieldArgs:
				req.Args = String(s)
			}
		case fieldOp:
			s, _, err := stringField(d, key)
			if err != nil {
				return nil, err
			}
			op, err := ParseOp(s)
			if err != nil {
				logger.Warn("trouble decoding op: %v", err)
				continue
			}
			req.Op = op
		default:
			return nil, unexpectedField(key)
		}
	}

	return req, nil
}

// Encode serializes the request. Used by clients; the server only decodes.
func (r *Request) Encode() ([]byte, error) {
	d := dict{fieldOp: r.Op.String()}
	if r.ID != nil {
		d[fieldID] = *r.ID
	}
	if r.Var != nil {
		d[fieldVar] = *r.Var
	}
	if r.Args != nil {
		d[fieldArgs] = *r.Args
	}
	return encodeDict(d)
}
