package codec

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var tRawValue = reflect.TypeFor[bson.RawValue]()

// RawValueCodec keeps a member's element as an undecoded bson.RawValue. An
// absent element leaves the zero RawValue; a present null decodes to
// RawValue{Type: bsontype.Null}, so the two stay distinguishable. Encoding the
// zero RawValue writes null.
type RawValueCodec struct{}

// ValueType implements classmap.TypedCodec.
func (RawValueCodec) ValueType() reflect.Type { return tRawValue }

// EncodeValue implements bsoncodec.ValueEncoder.
func (RawValueCodec) EncodeValue(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tRawValue {
		return bsoncodec.ValueEncoderError{Name: "RawValueCodec.EncodeValue", Types: []reflect.Type{tRawValue}, Received: val}
	}
	rv := val.Interface().(bson.RawValue)
	if rv.Type == 0 || rv.Type == bsontype.Null {
		return vw.WriteNull()
	}
	return bsonrw.Copier{}.CopyValueFromBytes(vw, rv.Type, rv.Value)
}

// DecodeValue implements bsoncodec.ValueDecoder.
func (RawValueCodec) DecodeValue(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tRawValue {
		return bsoncodec.ValueDecoderError{Name: "RawValueCodec.DecodeValue", Types: []reflect.Type{tRawValue}, Received: val}
	}
	t, data, err := bsonrw.Copier{}.CopyValueToBytes(vr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(bson.RawValue{Type: t, Value: data}))
	return nil
}
