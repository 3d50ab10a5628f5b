package wire

import (
	"fmt"
	"io"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/builder"
	"github.com/jhump/protoreflect/desc/protoprint"
)

// Descriptor builds a proto2 message descriptor for schema inside package
// pkg. Message fields refer to the message itself, as Pinba.Request does
// for its nested requests; enum fields are declared as int32.
func Descriptor(schema Schema, pkg, message string) (*desc.MessageDescriptor, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	mb := builder.NewMessage(message)
	for _, f := range schema.Sorted() {
		ft, err := fieldType(f, mb)
		if err != nil {
			return nil, err
		}
		fb := builder.NewField(f.Name, ft).SetNumber(int32(f.Number))
		switch f.Cardinality {
		case Required:
			fb.SetRequired()
		case Optional:
			fb.SetOptional()
		case Repeated:
			fb.SetRepeated()
		}
		if err := mb.TryAddField(fb); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}

	fd, err := builder.NewFile(pkg + ".proto").
		SetPackageName(pkg).
		SetProto3(false).
		AddMessage(mb).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build descriptor: %w", err)
	}
	md := fd.FindMessage(qualified(pkg, message))
	if md == nil {
		return nil, fmt.Errorf("message %s missing from built file", message)
	}
	return md, nil
}

// WriteProto renders schema as a .proto source file.
func WriteProto(w io.Writer, schema Schema, pkg, message string) error {
	md, err := Descriptor(schema, pkg, message)
	if err != nil {
		return err
	}
	p := &protoprint.Printer{}
	return p.PrintProtoFile(md.GetFile(), w)
}

func fieldType(f Field, self *builder.MessageBuilder) (*builder.FieldType, error) {
	switch f.Type {
	case TypeDouble:
		return builder.FieldTypeDouble(), nil
	case TypeFloat:
		return builder.FieldTypeFloat(), nil
	case TypeInt64:
		return builder.FieldTypeInt64(), nil
	case TypeUint64:
		return builder.FieldTypeUInt64(), nil
	case TypeInt32, TypeEnum:
		return builder.FieldTypeInt32(), nil
	case TypeFixed64:
		return builder.FieldTypeFixed64(), nil
	case TypeFixed32:
		return builder.FieldTypeFixed32(), nil
	case TypeBool:
		return builder.FieldTypeBool(), nil
	case TypeString:
		return builder.FieldTypeString(), nil
	case TypeMessage:
		return builder.FieldTypeMessage(self), nil
	case TypeBytes:
		return builder.FieldTypeBytes(), nil
	case TypeUint32:
		return builder.FieldTypeUInt32(), nil
	case TypeSfixed32:
		return builder.FieldTypeSFixed32(), nil
	case TypeSfixed64:
		return builder.FieldTypeSFixed64(), nil
	case TypeSint32:
		return builder.FieldTypeSInt32(), nil
	case TypeSint64:
		return builder.FieldTypeSInt64(), nil
	default:
		return nil, fmt.Errorf("field %q: type %s cannot be rendered", f.Name, f.Type)
	}
}

func qualified(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}
