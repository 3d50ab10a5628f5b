// Package wire encodes field maps into the protobuf binary format according
// to a fixed schema.
//
// Only encoding is implemented. The schema is data known at build time, so
// an unknown declared type is a programming error and panics; problems with
// the values being encoded are reported as errors wrapping [ErrContract].
package wire

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Type is a declared protobuf scalar type. The numbering follows
// google.protobuf.FieldDescriptorProto.Type.
type Type int

const (
	TypeDouble   Type = 1
	TypeFloat    Type = 2
	TypeInt64    Type = 3
	TypeUint64   Type = 4
	TypeInt32    Type = 5
	TypeFixed64  Type = 6
	TypeFixed32  Type = 7
	TypeBool     Type = 8
	TypeString   Type = 9
	TypeGroup    Type = 10
	TypeMessage  Type = 11
	TypeBytes    Type = 12
	TypeUint32   Type = 13
	TypeEnum     Type = 14
	TypeSfixed32 Type = 15
	TypeSfixed64 Type = 16
	TypeSint32   Type = 17
	TypeSint64   Type = 18
)

var typeNames = map[Type]string{
	TypeDouble:   "double",
	TypeFloat:    "float",
	TypeInt64:    "int64",
	TypeUint64:   "uint64",
	TypeInt32:    "int32",
	TypeFixed64:  "fixed64",
	TypeFixed32:  "fixed32",
	TypeBool:     "bool",
	TypeString:   "string",
	TypeGroup:    "group",
	TypeMessage:  "message",
	TypeBytes:    "bytes",
	TypeUint32:   "uint32",
	TypeEnum:     "enum",
	TypeSfixed32: "sfixed32",
	TypeSfixed64: "sfixed64",
	TypeSint32:   "sint32",
	TypeSint64:   "sint64",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// WireType returns the protobuf wire type used to encode t. It panics for
// types the encoder does not know, including the deprecated groups.
func (t Type) WireType() protowire.Type {
	switch t {
	case TypeInt32, TypeInt64, TypeUint32, TypeUint64, TypeSint32, TypeSint64, TypeBool, TypeEnum:
		return protowire.VarintType
	case TypeFixed64, TypeSfixed64, TypeDouble:
		return protowire.Fixed64Type
	case TypeString, TypeBytes, TypeMessage:
		return protowire.BytesType
	case TypeFixed32, TypeSfixed32, TypeFloat:
		return protowire.Fixed32Type
	default:
		panic(fmt.Sprintf("wire: unknown field type %s", t))
	}
}

func (t Type) known() bool {
	switch t {
	case TypeGroup:
		return false
	default:
		_, ok := typeNames[t]
		return ok
	}
}

// Cardinality is the protobuf field label.
type Cardinality uint8

const (
	Required Cardinality = iota
	Optional
	Repeated
)

func (c Cardinality) String() string {
	switch c {
	case Required:
		return "required"
	case Optional:
		return "optional"
	case Repeated:
		return "repeated"
	default:
		return fmt.Sprintf("cardinality(%d)", uint8(c))
	}
}

// Field is one schema entry.
type Field struct {
	Number      protowire.Number
	Name        string
	Type        Type
	Cardinality Cardinality
}

// Schema is a message definition.
type Schema []Field

// Sorted returns a copy of s ordered by field number.
func (s Schema) Sorted() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Lookup returns the field called name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate reports every structural problem of the schema.
func (s Schema) Validate() error {
	var errs []error
	numbers := make(map[protowire.Number]string, len(s))
	names := make(map[string]bool, len(s))
	for _, f := range s {
		if !f.Number.IsValid() {
			errs = append(errs, fmt.Errorf("field %q: invalid number %d", f.Name, f.Number))
		}
		if prev, dup := numbers[f.Number]; dup {
			errs = append(errs, fmt.Errorf("field %q: number %d already used by %q", f.Name, f.Number, prev))
		}
		numbers[f.Number] = f.Name
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("field %d: empty name", f.Number))
		} else if names[f.Name] {
			errs = append(errs, fmt.Errorf("field %q: duplicate name", f.Name))
		}
		names[f.Name] = true
		if !f.Type.known() {
			errs = append(errs, fmt.Errorf("field %q: unsupported type %s", f.Name, f.Type))
		}
		if f.Cardinality > Repeated {
			errs = append(errs, fmt.Errorf("field %q: unknown %s", f.Name, f.Cardinality))
		}
	}
	return errors.Join(errs...)
}

// Field names of the Pinba request message.
const (
	FieldHostname        = "hostname"
	FieldServerName      = "server_name"
	FieldScriptName      = "script_name"
	FieldRequestCount    = "request_count"
	FieldDocumentSize    = "document_size"
	FieldMemoryPeak      = "memory_peak"
	FieldRequestTime     = "request_time"
	FieldRuUtime         = "ru_utime"
	FieldRuStime         = "ru_stime"
	FieldTimerHitCount   = "timer_hit_count"
	FieldTimerValue      = "timer_value"
	FieldTimerTagCount   = "timer_tag_count"
	FieldTimerTagName    = "timer_tag_name"
	FieldTimerTagValue   = "timer_tag_value"
	FieldDictionary      = "dictionary"
	FieldStatus          = "status"
	FieldMemoryFootprint = "memory_footprint"
	FieldRequests        = "requests"
	FieldSchema          = "schema"
	FieldTagName         = "tag_name"
	FieldTagValue        = "tag_value"
	FieldTimerRuUtime    = "timer_ru_utime"
	FieldTimerRuStime    = "timer_ru_stime"
)

// PinbaSchema is the Pinba.Request message understood by the pinba engine.
var PinbaSchema = Schema{
	{1, FieldHostname, TypeString, Required},
	{2, FieldServerName, TypeString, Required},
	{3, FieldScriptName, TypeString, Required},
	{4, FieldRequestCount, TypeUint32, Required},
	{5, FieldDocumentSize, TypeUint32, Required},
	{6, FieldMemoryPeak, TypeUint32, Required},
	{7, FieldRequestTime, TypeFloat, Required},
	{8, FieldRuUtime, TypeFloat, Required},
	{9, FieldRuStime, TypeFloat, Required},
	{10, FieldTimerHitCount, TypeUint32, Repeated},
	{11, FieldTimerValue, TypeFloat, Repeated},
	{12, FieldTimerTagCount, TypeUint32, Repeated},
	{13, FieldTimerTagName, TypeUint32, Repeated},
	{14, FieldTimerTagValue, TypeUint32, Repeated},
	{15, FieldDictionary, TypeString, Repeated},
	{16, FieldStatus, TypeUint32, Optional},
	{17, FieldMemoryFootprint, TypeUint32, Optional},
	{18, FieldRequests, TypeMessage, Repeated},
	{19, FieldSchema, TypeString, Optional},
	{20, FieldTagName, TypeUint32, Repeated},
	{21, FieldTagValue, TypeUint32, Repeated},
	{22, FieldTimerRuUtime, TypeFloat, Repeated},
	{23, FieldTimerRuStime, TypeFloat, Repeated},
}
