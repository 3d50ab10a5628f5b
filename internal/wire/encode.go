package wire

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrContract is wrapped by every encoding failure caused by the supplied
// values: a missing required field, a negative plain varint, a value of the
// wrong Go kind.
var ErrContract = errors.New("wire contract violation")

// Values maps schema field names to Go values. Scalars are Go numbers,
// bools, strings or byte slices; repeated fields are slices or arrays of
// those. Message fields carry pre-encoded bytes.
type Values map[string]any

// Encode serializes values according to schema, field numbers ascending.
func Encode(values Values, schema Schema) ([]byte, error) {
	return Append(nil, values, schema)
}

// Append is Encode appending to b.
func Append(b []byte, values Values, schema Schema) ([]byte, error) {
	var err error
	for _, f := range schema.Sorted() {
		v, present := values[f.Name]
		if present && v == nil {
			present = false
		}
		switch f.Cardinality {
		case Required:
			if !present {
				return nil, contractErr(f, "required field is missing")
			}
			b, err = appendValue(b, f, v)
		case Optional:
			if !present {
				continue
			}
			b, err = appendValue(b, f, v)
		case Repeated:
			if !present {
				continue
			}
			b, err = appendRepeated(b, f, v)
		default:
			panic(fmt.Sprintf("wire: field %q has unknown %s", f.Name, f.Cardinality))
		}
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func appendRepeated(b []byte, f Field, v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, contractErr(f, "repeated field needs a slice, got %T", v)
	}
	var err error
	for i := 0; i < rv.Len(); i++ {
		b, err = appendValue(b, f, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return b, nil
}

func appendValue(b []byte, f Field, v any) ([]byte, error) {
	wt := f.Type.WireType()
	b = protowire.AppendTag(b, f.Number, wt)

	switch f.Type {
	case TypeInt32, TypeInt64, TypeUint32, TypeUint64, TypeEnum:
		n, err := toUint(f, v)
		if err != nil {
			return nil, err
		}
		if (f.Type == TypeInt32 || f.Type == TypeUint32) && n > math.MaxUint32 {
			return nil, contractErr(f, "%d overflows 32 bits", n)
		}
		return protowire.AppendVarint(b, n), nil
	case TypeSint32, TypeSint64:
		n, err := toInt(f, v)
		if err != nil {
			return nil, err
		}
		if f.Type == TypeSint32 && (n < math.MinInt32 || n > math.MaxInt32) {
			return nil, contractErr(f, "%d overflows 32 bits", n)
		}
		return protowire.AppendVarint(b, protowire.EncodeZigZag(n)), nil
	case TypeBool:
		x, ok := v.(bool)
		if !ok {
			return nil, contractErr(f, "bool field got %T", v)
		}
		return protowire.AppendVarint(b, protowire.EncodeBool(x)), nil
	case TypeDouble:
		x, err := toFloat(f, v)
		if err != nil {
			return nil, err
		}
		return protowire.AppendFixed64(b, math.Float64bits(x)), nil
	case TypeFloat:
		x, err := toFloat(f, v)
		if err != nil {
			return nil, err
		}
		return protowire.AppendFixed32(b, math.Float32bits(float32(x))), nil
	case TypeFixed64:
		n, err := toUint(f, v)
		if err != nil {
			return nil, err
		}
		return protowire.AppendFixed64(b, n), nil
	case TypeSfixed64:
		n, err := toInt(f, v)
		if err != nil {
			return nil, err
		}
		return protowire.AppendFixed64(b, uint64(n)), nil
	case TypeFixed32:
		n, err := toUint(f, v)
		if err != nil {
			return nil, err
		}
		if n > math.MaxUint32 {
			return nil, contractErr(f, "%d overflows 32 bits", n)
		}
		return protowire.AppendFixed32(b, uint32(n)), nil
	case TypeSfixed32:
		n, err := toInt(f, v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, contractErr(f, "%d overflows 32 bits", n)
		}
		return protowire.AppendFixed32(b, uint32(int32(n))), nil
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, contractErr(f, "string field got %T", v)
		}
		if !utf8.ValidString(s) {
			s = strings.ToValidUTF8(s, "\uFFFD")
		}
		return protowire.AppendString(b, s), nil
	case TypeBytes, TypeMessage:
		switch x := v.(type) {
		case []byte:
			return protowire.AppendBytes(b, x), nil
		case string:
			return protowire.AppendString(b, x), nil
		default:
			return nil, contractErr(f, "%s field got %T", f.Type, v)
		}
	default:
		panic(fmt.Sprintf("wire: unknown field type %s", f.Type))
	}
}

func toUint(f Field, v any) (uint64, error) {
	var n int64
	switch x := v.(type) {
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case int, int8, int16, int32, int64:
		n = cast.ToInt64(x)
	default:
		return 0, contractErr(f, "%s field got %T", f.Type, v)
	}
	if n < 0 {
		return 0, contractErr(f, "negative value %d for %s", n, f.Type)
	}
	return uint64(n), nil
}

func toInt(f Field, v any) (int64, error) {
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return 0, contractErr(f, "%d overflows int64", x)
		}
		return int64(x), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return cast.ToInt64(x), nil
	default:
		return 0, contractErr(f, "%s field got %T", f.Type, v)
	}
}

func toFloat(f Field, v any) (float64, error) {
	switch v.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToFloat64(v), nil
	default:
		return 0, contractErr(f, "%s field got %T", f.Type, v)
	}
}

func contractErr(f Field, format string, args ...any) error {
	return fmt.Errorf("%w: field %d (%s): %s", ErrContract, f.Number, f.Name, fmt.Sprintf(format, args...))
}
