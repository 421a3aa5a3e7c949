// Package record defines the serializable shapes stored per entity:
// scalar values, named fields and the records that group them.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

// Supported scalar kinds.
const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "invalid"
	}
}

// Value is a closed variant over string, number and boolean.
// The zero Value is invalid and never passes validation.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// String builds a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool builds a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the variant held.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds one of the supported kinds.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsNumber returns the numeric payload and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsString returns the string payload and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsBool returns the boolean payload and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Equal reports whether both values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes the payload as a bare JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("%w: cannot encode invalid value", ErrInvalidRecord)
	}
}

// UnmarshalJSON accepts a JSON string, number or boolean. Anything else
// (null, arrays, objects) is rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrInvalidRecord)
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		*v = Bool(b)
	case 'n', '[', '{':
		return fmt.Errorf("%w: unsupported value %s", ErrInvalidRecord, string(data))
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		*v = Number(n)
	}
	return nil
}

// UnmarshalYAML decodes a YAML scalar node into a Value.
func (v *Value) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = String(x)
	case bool:
		*v = Bool(x)
	case int:
		*v = Number(float64(x))
	case int64:
		*v = Number(float64(x))
	case uint64:
		*v = Number(float64(x))
	case float64:
		*v = Number(x)
	default:
		return fmt.Errorf("%w: unsupported yaml value %v", ErrInvalidRecord, raw)
	}
	return nil
}

// MarshalYAML encodes the payload as a bare YAML scalar.
func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindNumber:
		return v.num, nil
	case KindBool:
		return v.b, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode invalid value", ErrInvalidRecord)
	}
}
