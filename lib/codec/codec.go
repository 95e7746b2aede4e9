package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// BinaryCodec is an interface model that defines the requirements for binary encoding and decoding
// A binary encoder converts data into a compact, non-human-readable binary format, which is highly
// efficient in terms of both storage size and speed for serialization and deserialization
type BinaryCodec interface {
	Marshal(message any) ([]byte, error)
	Unmarshal(data []byte, ptr any) error
}

// JSONCodec is an interface model that defines requirements for json encoding and decoding
// converts data into a human-readable text format (JSON) which can be more friendly but less performant
type JSONCodec interface {
	json.Marshaler
	json.Unmarshaler
}

// WireMessage is a structure that knows how to lay itself out as protobuf wire fields
// without a generated descriptor
type WireMessage interface {
	// AppendWire() appends the encoded fields of the message to b
	AppendWire(b []byte) []byte
	// SetWireField() consumes a single decoded field, unknown fields must be ignored
	SetWireField(f Field) error
}

// Field is a single decoded protobuf wire field
// only varint and length delimited types are ever produced
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Varint uint64
	Bytes  []byte
}

var (
	ErrNotWireMessage   = errors.New("value does not implement WireMessage")
	ErrUnsupportedWire  = errors.New("unsupported wire type")
	ErrTruncatedMessage = errors.New("truncated message")
)

// ensure the protowire codec implements the BinaryCodec interface
var _ BinaryCodec = &Protowire{}

// Protowire is an encoding implementation that writes protobuf compatible bytes by hand
type Protowire struct{}

// Marshal() converts a message to bytes
func (p *Protowire) Marshal(message any) ([]byte, error) {
	m, ok := message.(WireMessage)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotWireMessage, message)
	}
	return m.AppendWire(nil), nil
}

// Unmarshal() converts bytes to a message structure
func (p *Protowire) Unmarshal(data []byte, ptr any) error {
	m, ok := ptr.(WireMessage)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotWireMessage, ptr)
	}
	return RangeFields(data, m.SetWireField)
}

// AppendVarint() appends a varint field, zero values are omitted like proto3 does
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendBytes() appends a length delimited field, empty values are omitted
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	return AppendBytesAlways(b, num, v)
}

// AppendBytesAlways() appends a length delimited field even if it is empty
// used for repeated fields where position matters
func AppendBytesAlways(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// RangeFields() decodes every field of data in order and passes it to cb
func RangeFields(data []byte, cb func(f Field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrTruncatedMessage, protowire.ParseError(n))
		}
		data = data[n:]
		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(data)
		default:
			return fmt.Errorf("%w: %d on field %d", ErrUnsupportedWire, typ, num)
		}
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrTruncatedMessage, protowire.ParseError(n))
		}
		data = data[n:]
		if err := cb(f); err != nil {
			return err
		}
	}
	return nil
}
