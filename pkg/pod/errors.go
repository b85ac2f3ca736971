package pod

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedField is wrapped by FieldError when a request dictionary
	// carries a key outside the closed schema.
	ErrUnexpectedField = errors.New("unexpected field")

	// ErrInvalidFieldType is wrapped by FieldError when a known key holds a
	// value of the wrong bencode type.
	ErrInvalidFieldType = errors.New("invalid field type")

	// ErrNotDictionary means the top-level value decoded but is not a dictionary.
	ErrNotDictionary = errors.New("pod: message is not a dictionary")

	// ErrNestingTooDeep means lists and dictionaries nest beyond what any
	// request or response needs.
	ErrNestingTooDeep = errors.New("pod: nesting too deep")

	// ErrUnknownVariant means a response dictionary matches none of the
	// Describe, Invoke or Error shapes.
	ErrUnknownVariant = errors.New("pod: unknown response variant")
)

// FieldError reports a schema violation on a single dictionary key.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("pod: %v %q", e.Err, e.Field)
}

// Unwrap returns the schema error kind.
func (e *FieldError) Unwrap() error {
	return e.Err
}

func unexpectedField(name string) error {
	return &FieldError{Field: name, Err: ErrUnexpectedField}
}

func invalidType(name string) error {
	return &FieldError{Field: name, Err: ErrInvalidFieldType}
}
