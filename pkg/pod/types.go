// Package pod defines the request and response entities exchanged with a pod
// client and their bencode wire mapping.
//
// A connection carries exactly one Request and one Response. Requests are
// dictionaries with the keys op, id, var and args. Responses are one of three
// dictionary shapes, told apart by their keys: namespaces (Describe), value
// (Invoke) or ex-message (Error).
package pod

import "fmt"

// Op is the requested operation.
type Op int

const (
	// OpDescribe enumerates the registered vars. It is the zero value, so a
	// request without a usable op field describes.
	OpDescribe Op = iota

	// OpInvoke calls the var named by the request.
	OpInvoke
)

const (
	opDescribe = "describe"
	opInvoke   = "invoke"
)

// String returns the wire name of the op.
func (o Op) String() string {
	switch o {
	case OpDescribe:
		return opDescribe
	case OpInvoke:
		return opInvoke
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ParseOp maps a wire string to an Op.
func ParseOp(s string) (Op, error) {
	switch s {
	case opDescribe:
		return OpDescribe, nil
	case opInvoke:
		return OpInvoke, nil
	default:
		return OpDescribe, fmt.Errorf("invalid operation: %s", s)
	}
}

// Status is carried by Invoke and Error responses.
type Status int

const (
	// StatusDone marks a successful invoke.
	StatusDone Status = iota

	// StatusError marks an error response.
	StatusError
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func parseStatus(s string) (Status, error) {
	switch s {
	case "done":
		return StatusDone, nil
	case "error":
		return StatusError, nil
	default:
		return StatusDone, fmt.Errorf("invalid status: %s", s)
	}
}

// Request is a decoded client request. Optional fields are nil when absent
// from the wire dictionary.
type Request struct {
	Op Op

	// ID is an opaque correlation string echoed in the response.
	ID *string

	// Var is the full "namespace/name" key of the var to invoke. It is only
	// consulted for OpInvoke and is matched verbatim against registry keys.
	Var *string

	// Args is the caller-encoded argument payload (JSON by convention). The
	// runtime never looks inside it.
	Args *string
}

// GetID returns the request id, or "" when absent.
func (r *Request) GetID() string {
	if r == nil || r.ID == nil {
		return ""
	}
	return *r.ID
}

// GetVar returns the requested var key, or "" when absent.
func (r *Request) GetVar() string {
	if r == nil || r.Var == nil {
		return ""
	}
	return *r.Var
}

// GetArgs returns the raw args payload, or "" when absent.
func (r *Request) GetArgs() string {
	if r == nil || r.Args == nil {
		return ""
	}
	return *r.Args
}

// Var is a single function inside a namespace.
type Var struct {
	Name string
}

// Namespace groups vars sharing the prefix before the first '/' of their key.
type Namespace struct {
	Name string
	Vars []Var
}

// Response is implemented by DescribeResponse, InvokeResponse and ErrorResponse.
// Handlers may return any of them.
type Response interface {
	// Encode serializes the response as a bencode dictionary.
	Encode() ([]byte, error)
}

// DescribeFormat is the payload encoding advertised to clients for args and
// values. It says nothing about the framing, which is always bencode.
const DescribeFormat = "json"

// DescribeResponse lists the registered vars grouped by namespace.
type DescribeResponse struct {
	Format     string
	Namespaces []Namespace
}

// InvokeResponse carries the encoded result of a successful invoke.
type InvokeResponse struct {
	ID     string
	Status Status
	Value  []byte
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	// ID is nil when the originating request id was unknown at failure time.
	ID        *string
	Status    Status
	ExMessage string
}

// NewDescribeResponse builds a describe response advertising DescribeFormat.
func NewDescribeResponse(namespaces []Namespace) *DescribeResponse {
	return &DescribeResponse{Format: DescribeFormat, Namespaces: namespaces}
}

// NewInvokeResponse builds a done response carrying value verbatim.
func NewInvokeResponse(id string, value []byte) *InvokeResponse {
	return &InvokeResponse{ID: id, Status: StatusDone, Value: value}
}

// NewErrorResponse builds an error response from err. A nil id leaves the id
// field out of the encoded dictionary.
func NewErrorResponse(id *string, err error) *ErrorResponse {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &ErrorResponse{ID: id, Status: StatusError, ExMessage: msg}
}

// String returns a pointer to s, for optional fields.
func String(s string) *string {
	return &s
}
