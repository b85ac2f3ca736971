package pod

import (
	"fmt"
)

// Response dictionary keys.
const (
	fieldFormat     = "format"
	fieldNamespaces = "namespaces"
	fieldName       = "name"
	fieldVars       = "vars"
	fieldStatus     = "status"
	fieldValue      = "value"
	fieldExMessage  = "ex-message"
)

// Encode writes the namespaces in the order given.
func (r *DescribeResponse) Encode() ([]byte, error) {
	namespaces := make([]any, 0, len(r.Namespaces))
	for _, ns := range r.Namespaces {
		vars := make([]any, 0, len(ns.Vars))
		for _, v := range ns.Vars {
			vars = append(vars, dict{fieldName: v.Name})
		}
		namespaces = append(namespaces, dict{
			fieldName: ns.Name,
			fieldVars: vars,
		})
	}

	return encodeDict(dict{
		fieldFormat:     r.Format,
		fieldNamespaces: namespaces,
	})
}

// Encode emits value as a raw byte string; it is never interpreted here.
func (r *InvokeResponse) Encode() ([]byte, error) {
	return encodeDict(dict{
		fieldID:     r.ID,
		fieldStatus: r.Status.String(),
		fieldValue:  string(r.Value),
	})
}

// Encode leaves id out when it is nil.
func (r *ErrorResponse) Encode() ([]byte, error) {
	d := dict{
		fieldExMessage: r.ExMessage,
		fieldStatus:    r.Status.String(),
	}
	if r.ID != nil {
		d[fieldID] = *r.ID
	}
	return encodeDict(d)
}

// DecodeResponse parses a response dictionary, choosing the variant by the
// keys present: namespaces, value, then ex-message.
func DecodeResponse(buf []byte) (Response, error) {
	d, err := decodeDict(buf)
	if err != nil {
		return nil, err
	}

	switch {
	case has(d, fieldNamespaces):
		return decodeDescribe(d)
	case has(d, fieldValue):
		return decodeInvoke(d)
	case has(d, fieldExMessage):
		return decodeError(d)
	default:
		return nil, fmt.Errorf("%w: keys %v", ErrUnknownVariant, sortedKeys(d))
	}
}

func has(d dict, key string) bool {
	_, ok := d[key]
	return ok
}

func decodeDescribe(d dict) (*DescribeResponse, error) {
	format, _, err := stringField(d, fieldFormat)
	if err != nil {
		return nil, err
	}
	rawNamespaces, err := listField(d, fieldNamespaces)
	if err != nil {
		return nil, err
	}

	resp := &DescribeResponse{Format: format, Namespaces: make([]Namespace, 0, len(rawNamespaces))}
	for _, raw := range rawNamespaces {
		nsDict, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidType(fieldNamespaces)
		}
		name, _, err := stringField(nsDict, fieldName)
		if err != nil {
			return nil, err
		}
		rawVars, err := listField(nsDict, fieldVars)
		if err != nil {
			return nil, err
		}

		ns := Namespace{Name: name, Vars: make([]Var, 0, len(rawVars))}
		for _, rv := range rawVars {
			varDict, ok := rv.(map[string]any)
			if !ok {
				return nil, invalidType(fieldVars)
			}
			varName, _, err := stringField(varDict, fieldName)
			if err != nil {
				return nil, err
			}
			ns.Vars = append(ns.Vars, Var{Name: varName})
		}
		resp.Namespaces = append(resp.Namespaces, ns)
	}
	return resp, nil
}

func decodeInvoke(d dict) (*InvokeResponse, error) {
	id, _, err := stringField(d, fieldID)
	if err != nil {
		return nil, err
	}
	status, err := decodeStatus(d)
	if err != nil {
		return nil, err
	}
	value, _, err := stringField(d, fieldValue)
	if err != nil {
		return nil, err
	}
	return &InvokeResponse{ID: id, Status: status, Value: []byte(value)}, nil
}

func decodeError(d dict) (*ErrorResponse, error) {
	msg, _, err := stringField(d, fieldExMessage)
	if err != nil {
		return nil, err
	}
	status, err := decodeStatus(d)
	if err != nil {
		return nil, err
	}

	resp := &ErrorResponse{Status: status, ExMessage: msg}
	id, ok, err := stringField(d, fieldID)
	if err != nil {
		return nil, err
	}
	if ok {
		resp.ID = String(id)
	}
	return resp, nil
}

func decodeStatus(d dict) (Status, error) {
	s, _, err := stringField(d, fieldStatus)
	if err != nil {
		return StatusDone, err
	}
	status, err := parseStatus(s)
	if err != nil {
		return StatusDone, &FieldError{Field: fieldStatus, Err: err}
	}
	return status, nil
}
