package codec

import (
	"reflect"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/reoring/docmap"
)

var tUUID = reflect.TypeFor[uuid.UUID]()

// UUIDCodec writes uuid.UUID as binary subtype 4. It reads subtypes 3 and 4,
// canonical strings and null (the nil UUID). Engines register it by default.
type UUIDCodec struct{}

// ValueType implements classmap.TypedCodec.
func (UUIDCodec) ValueType() reflect.Type { return tUUID }

// EncodeValue implements bsoncodec.ValueEncoder.
func (UUIDCodec) EncodeValue(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tUUID {
		return bsoncodec.ValueEncoderError{Name: "UUIDCodec.EncodeValue", Types: []reflect.Type{tUUID}, Received: val}
	}
	u := val.Interface().(uuid.UUID)
	return vw.WriteBinaryWithSubtype(u[:], bsontype.BinaryUUID)
}

// DecodeValue implements bsoncodec.ValueDecoder.
func (UUIDCodec) DecodeValue(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tUUID {
		return bsoncodec.ValueDecoderError{Name: "UUIDCodec.DecodeValue", Types: []reflect.Type{tUUID}, Received: val}
	}
	var u uuid.UUID
	switch vr.Type() {
	case bsontype.Binary:
		data, subtype, err := vr.ReadBinary()
		if err != nil {
			return err
		}
		if subtype != bsontype.BinaryUUID && subtype != bsontype.BinaryUUIDOld {
			return docmap.NewError(docmap.KindFormat, docmap.CodeUnexpectedType, tUUID).
				WithMessage("binary subtype %#x is not a UUID", subtype)
		}
		if u, err = uuid.FromBytes(data); err != nil {
			return docmap.NewError(docmap.KindFormat, docmap.CodeUnexpectedType, tUUID).WithCause(err)
		}
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		if u, err = uuid.Parse(s); err != nil {
			return docmap.NewError(docmap.KindFormat, docmap.CodeUnexpectedType, tUUID).WithCause(err)
		}
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
	default:
		return docmap.NewError(docmap.KindFormat, docmap.CodeUnexpectedType, tUUID).
			WithMessage("cannot decode %s into a UUID", vr.Type())
	}
	val.Set(reflect.ValueOf(u))
	return nil
}
