package codec

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"github.com/reoring/docmap"
)

// EncodeValue implements bsoncodec.ValueEncoder.
func (c *DocumentCodec) EncodeValue(ec bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	t := c.class.Type()
	if !val.IsValid() || val.Type() != t {
		return bsoncodec.ValueEncoderError{Name: "DocumentCodec.EncodeValue", Types: []reflect.Type{t}, Received: val}
	}
	return c.encode(ec, vw, t, val)
}

// encode writes val, a value of the class type, as a document read back as
// nominal.
func (c *DocumentCodec) encode(ec bsoncodec.EncodeContext, vw bsonrw.ValueWriter, nominal reflect.Type, val reflect.Value) error {
	obj := val
	if c.class.NeedsAddressable() && !obj.CanAddr() {
		obj = reflect.New(val.Type()).Elem()
		obj.Set(val)
	}
	dw, err := vw.WriteDocument()
	if err != nil {
		return err
	}
	written := -1
	if c.engine.idFirst && c.idIdx >= 0 {
		if err := c.encodeMember(ec, dw, c.idIdx, obj); err != nil {
			return err
		}
		written = c.idIdx
	}
	if c.writesDiscriminator(nominal) {
		if err := c.encodeDiscriminator(ec, dw, nominal); err != nil {
			return err
		}
	}
	for _, idx := range c.order {
		switch idx {
		case written:
		case c.extraIdx:
			if err := c.encodeExtra(ec, dw, obj); err != nil {
				return err
			}
		default:
			if err := c.encodeMember(ec, dw, idx, obj); err != nil {
				return err
			}
		}
	}
	return dw.WriteDocumentEnd()
}

func (c *DocumentCodec) writesDiscriminator(nominal reflect.Type) bool {
	if c.class.IsAnonymous() {
		return false
	}
	return nominal != c.class.Type() || c.class.DiscriminatorIsRequired() || c.class.InRootHierarchy()
}

func (c *DocumentCodec) encodeDiscriminator(ec bsoncodec.EncodeContext, dw bsonrw.DocumentWriter, nominal reflect.Type) error {
	conv := c.class.DiscriminatorConvention()
	value, ok := conv.DiscriminatorValue(c.engine.classes, nominal, c.class.Type())
	if !ok {
		return nil
	}
	evw, err := dw.WriteDocumentElement(conv.ElementName())
	if err != nil {
		return err
	}
	return encodeDynamic(ec, evw, reflect.ValueOf(value))
}

func (c *DocumentCodec) encodeMember(ec bsoncodec.EncodeContext, dw bsonrw.DocumentWriter, idx int, obj reflect.Value) error {
	p := &c.plans[idx]
	m := p.member
	if !m.ShouldSerialize(obj) {
		return nil
	}
	enc, err := p.encoder(c.engine.reg)
	if err != nil {
		return c.memberErr(docmap.CodeMemberEncode, m, err)
	}
	evw, err := dw.WriteDocumentElement(m.ElementName())
	if err != nil {
		return err
	}
	if err := enc.EncodeValue(ec, evw, m.Get(obj)); err != nil {
		return c.memberErr(docmap.CodeMemberEncode, m, err)
	}
	return nil
}
