package codec

import (
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/reoring/docmap"
)

var tTime = reflect.TypeFor[time.Time]()

// RFC3339Codec writes time.Time as an RFC3339 string normalized to UTC, with
// trailing zero fractions trimmed. It reads such strings, BSON datetimes and
// null (the zero time). Use it per member:
//
//	b.Map("CreatedAt").Codec(codec.RFC3339Codec{})
type RFC3339Codec struct{}

// ValueType implements classmap.TypedCodec.
func (RFC3339Codec) ValueType() reflect.Type { return tTime }

// EncodeValue implements bsoncodec.ValueEncoder.
func (RFC3339Codec) EncodeValue(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tTime {
		return bsoncodec.ValueEncoderError{Name: "RFC3339Codec.EncodeValue", Types: []reflect.Type{tTime}, Received: val}
	}
	return vw.WriteString(formatRFC3339Canonical(val.Interface().(time.Time)))
}

// DecodeValue implements bsoncodec.ValueDecoder.
func (RFC3339Codec) DecodeValue(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tTime {
		return bsoncodec.ValueDecoderError{Name: "RFC3339Codec.DecodeValue", Types: []reflect.Type{tTime}, Received: val}
	}
	var t time.Time
	switch vr.Type() {
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		if t, err = parseRFC3339(s); err != nil {
			return docmap.NewError(docmap.KindFormat, docmap.CodeUnexpectedType, tTime).
				WithMessage("invalid RFC3339 time %q", s).
				WithCause(err)
		}
	case bsontype.DateTime:
		ms, err := vr.ReadDateTime()
		if err != nil {
			return err
		}
		t = time.UnixMilli(ms).UTC()
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
	default:
		return docmap.NewError(docmap.KindFormat, docmap.CodeUnexpectedType, tTime).
			WithMessage("cannot decode %s into a time", vr.Type())
	}
	val.Set(reflect.ValueOf(t))
	return nil
}

func parseRFC3339(s string) (time.Time, error) {
	// RFC3339Nano accepts fractions of any length, RFC3339 none
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

func formatRFC3339Canonical(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
