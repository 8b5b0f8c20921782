package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags what a stored value holds. The tag is chosen by the writer and
// persisted with the payload, so readers never guess from content.
type Kind byte

const (
	// KindScalar is an opaque string such as a public key or a role ID.
	KindScalar Kind = 's'
	// KindStructured is a JSON document.
	KindStructured Kind = 'j'
)

var (
	// ErrNotStructured is returned when decoding a scalar value as JSON.
	ErrNotStructured = errors.New("cache value is not structured")
	// ErrCorruptValue is returned when a persisted value has no valid tag.
	ErrCorruptValue = errors.New("corrupt cache value")
)

// Value is a tagged cache payload.
type Value struct {
	kind Kind
	data []byte
}

// Scalar wraps an opaque string.
func Scalar(s string) Value {
	return Value{kind: KindScalar, data: []byte(s)}
}

// Structured marshals v to JSON.
func Structured(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("marshal cache value: %w", err)
	}
	return Value{kind: KindStructured, data: data}, nil
}

// MustStructured is Structured for values that always marshal.
func MustStructured(v any) Value {
	val, err := Structured(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsStructured reports whether v holds JSON.
func (v Value) IsStructured() bool { return v.kind == KindStructured }

// String returns the raw payload.
func (v Value) String() string { return string(v.data) }

// Decode unmarshals a structured value into dst.
func (v Value) Decode(dst any) error {
	if v.kind != KindStructured {
		return ErrNotStructured
	}
	if err := json.Unmarshal(v.data, dst); err != nil {
		return fmt.Errorf("decode cache value: %w", err)
	}
	return nil
}

// Equal compares tag and payload.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && bytes.Equal(v.data, o.data)
}

// Encode returns the persisted form: one tag byte followed by the payload.
func (v Value) Encode() []byte {
	out := make([]byte, 0, len(v.data)+1)
	out = append(out, byte(v.kind))
	return append(out, v.data...)
}

// DecodeValue parses the persisted form produced by Encode.
func DecodeValue(b []byte) (Value, error) {
	if len(b) == 0 {
		return Value{}, ErrCorruptValue
	}
	switch Kind(b[0]) {
	case KindScalar, KindStructured:
		data := make([]byte, len(b)-1)
		copy(data, b[1:])
		return Value{kind: Kind(b[0]), data: data}, nil
	default:
		return Value{}, fmt.Errorf("%w: tag %q", ErrCorruptValue, b[0])
	}
}
