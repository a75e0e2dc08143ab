package codec

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/classmap"
)

// interfaceCodec encodes and decodes values of a registered interface type.
// Documents are dispatched on their discriminator; the decoded value is a T
// when T implements the interface and a *T otherwise.
type interfaceCodec struct {
	engine     *Engine
	iface      reflect.Type
	convention classmap.DiscriminatorConvention
}

func (ic *interfaceCodec) EncodeValue(ec bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != ic.iface {
		return bsoncodec.ValueEncoderError{Name: "interfaceCodec.EncodeValue", Types: []reflect.Type{ic.iface}, Received: val}
	}
	if val.IsNil() {
		return vw.WriteNull()
	}
	v := val.Elem()
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return vw.WriteNull()
		}
		v = v.Elem()
	}
	c, ok := ic.engine.codecs[v.Type()]
	if !ok {
		return ic.engine.unmapped(v.Type())
	}
	return c.encode(ec, vw, ic.iface, v)
}

func (ic *interfaceCodec) DecodeValue(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != ic.iface {
		return bsoncodec.ValueDecoderError{Name: "interfaceCodec.DecodeValue", Types: []reflect.Type{ic.iface}, Received: val}
	}
	switch tag := vr.Type(); {
	case isNullTag(tag):
		if err := readNull(vr); err != nil {
			return err
		}
		val.Set(reflect.Zero(ic.iface))
		return nil
	case tag != 0 && tag != bson.TypeEmbeddedDocument:
		return docmap.NewError(docmap.KindFormat, docmap.CodeUnexpectedType, ic.iface).
			WithMessage("expected embedded document, got %s", tag)
	}
	raw, err := bsonrw.Copier{}.CopyDocumentToBytes(vr)
	if err != nil {
		return docmap.NewError(docmap.KindFormat, docmap.CodeMalformed, ic.iface).WithCause(err)
	}
	actual, err := ic.convention.ActualType(ic.engine.classes, raw, ic.iface)
	if err != nil {
		return err
	}
	c, ok := ic.engine.codecs[actual]
	if !ok {
		return ic.engine.unmapped(actual)
	}
	v, err := c.decodeClass(dc, bsonrw.NewBSONDocumentReader(raw))
	if err != nil {
		return err
	}
	if !v.Type().Implements(ic.iface) {
		p := reflect.New(actual)
		p.Elem().Set(v)
		v = p
	}
	val.Set(v)
	return nil
}
