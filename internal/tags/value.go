package tags

import (
	"fmt"

	"github.com/spf13/cast"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a scalar tag value: a string, an integer, a float or a bool.
// The zero Value is the empty string.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the scalar type of v.
func (v Value) Kind() Kind { return v.kind }

// ValueOf converts a Go scalar into a Value. Integer and float kinds of any
// width are accepted; everything else is rejected with ErrNonScalar.
func ValueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := cast.ToInt64E(x)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrNonScalar, err)
		}
		return Int(n), nil
	case float32, float64:
		f, err := cast.ToFloat64E(x)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrNonScalar, err)
		}
		return Float(f), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrNonScalar, raw)
	}
}

// String returns the wire form of the value, the string interned into the
// packet dictionary. Booleans render as "1" and "".
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return cast.ToString(v.i)
	case KindFloat:
		return cast.ToString(v.f)
	case KindBool:
		if v.b {
			return "1"
		}
		return ""
	default:
		return v.s
	}
}

// Interface returns the underlying Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return v.s
	}
}

// MarshalText renders the wire form, so tag maps serialize as plain strings.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
