package codec

import (
	"errors"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/internal/bitset"
)

// DecodeValue implements bsoncodec.ValueDecoder.
func (c *DocumentCodec) DecodeValue(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	t := c.class.Type()
	if !val.CanSet() || val.Type() != t {
		return bsoncodec.ValueDecoderError{Name: "DocumentCodec.DecodeValue", Types: []reflect.Type{t}, Received: val}
	}
	v, err := c.decode(dc, vr)
	if err != nil {
		return err
	}
	val.Set(v)
	return nil
}

func (c *DocumentCodec) decode(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader) (reflect.Value, error) {
	if err := c.checkDocument(vr); err != nil {
		return reflect.Value{}, err
	}
	if !c.polymorphic {
		return c.decodeClass(dc, vr)
	}
	raw, err := bsonrw.Copier{}.CopyDocumentToBytes(vr)
	if err != nil {
		return reflect.Value{}, c.malformed(err)
	}
	// a struct cannot hold a subtype; this only validates the discriminator
	if _, err := c.class.DiscriminatorConvention().ActualType(c.engine.classes, raw, c.class.Type()); err != nil {
		return reflect.Value{}, err
	}
	return c.decodeClass(dc, bsonrw.NewBSONDocumentReader(raw))
}

func (c *DocumentCodec) checkDocument(vr bsonrw.ValueReader) error {
	switch tag := vr.Type(); {
	case tag == 0 || tag == bson.TypeEmbeddedDocument:
		return nil
	case isNullTag(tag):
		return c.formatErr(docmap.CodeUnexpectedType).
			WithMessage("cannot decode %s into %s", tag, c.class.Type()).
			WithHint("declare the member as a pointer to accept null")
	default:
		return c.formatErr(docmap.CodeUnexpectedType).
			WithMessage("expected embedded document, got %s", tag)
	}
}

// decodeClass reads the document from vr as exactly the codec's class.
func (c *DocumentCodec) decodeClass(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader) (reflect.Value, error) {
	dr, err := vr.ReadDocument()
	if err != nil {
		return reflect.Value{}, c.malformed(err)
	}
	if c.class.HasCreators() {
		return c.decodeWithCreators(dc, dr)
	}
	return c.decodeDirect(dc, dr)
}

func (c *DocumentCodec) decodeDirect(dc bsoncodec.DecodeContext, dr bsonrw.DocumentReader) (reflect.Value, error) {
	n := len(c.plans)
	obj := c.class.NewInstance()
	var tr bitset.Tracker
	tr.Reset(n + 1)
	var bag reflect.Value
	for {
		name, evr, err := dr.ReadElement()
		if errors.Is(err, bsonrw.ErrEOD) {
			break
		}
		if err != nil {
			return reflect.Value{}, c.malformed(err)
		}
		idx, ok := c.class.Resolve(name)
		switch {
		case !ok:
			if err := c.unknown(dc, name, evr, &bag); err != nil {
				return reflect.Value{}, err
			}
			if c.extraIdx >= 0 {
				tr.Set(c.extraIdx)
			}
			continue
		case idx == n:
			tr.Set(idx)
			if err := evr.Skip(); err != nil {
				return reflect.Value{}, c.malformed(err)
			}
			continue
		}
		tr.Set(idx)
		m := c.plans[idx].member
		if m.IsReadOnly() {
			if err := evr.Skip(); err != nil {
				return reflect.Value{}, c.malformed(err)
			}
			continue
		}
		v, err := c.readMember(dc, idx, evr)
		if err != nil {
			return reflect.Value{}, err
		}
		m.Set(obj, v)
	}
	if err := c.scan(&tr, func(idx int, v reflect.Value) { c.plans[idx].member.Set(obj, v) }); err != nil {
		return reflect.Value{}, err
	}
	if bag.IsValid() {
		c.plans[c.extraIdx].member.Set(obj, bag)
	}
	return obj, nil
}

func (c *DocumentCodec) decodeWithCreators(dc bsoncodec.DecodeContext, dr bsonrw.DocumentReader) (reflect.Value, error) {
	n := len(c.plans)
	values := make([]reflect.Value, n)
	var tr bitset.Tracker
	tr.Reset(n + 1)
	var bag reflect.Value
	for {
		name, evr, err := dr.ReadElement()
		if errors.Is(err, bsonrw.ErrEOD) {
			break
		}
		if err != nil {
			return reflect.Value{}, c.malformed(err)
		}
		idx, ok := c.class.Resolve(name)
		switch {
		case !ok:
			if err := c.unknown(dc, name, evr, &bag); err != nil {
				return reflect.Value{}, err
			}
			if c.extraIdx >= 0 {
				tr.Set(c.extraIdx)
			}
			continue
		case idx == n:
			tr.Set(idx)
			if err := evr.Skip(); err != nil {
				return reflect.Value{}, c.malformed(err)
			}
			continue
		}
		tr.Set(idx)
		// read-only values still feed creator parameters
		v, err := c.readMember(dc, idx, evr)
		if err != nil {
			return reflect.Value{}, err
		}
		values[idx] = v
	}
	if err := c.scan(&tr, func(idx int, v reflect.Value) { values[idx] = v }); err != nil {
		return reflect.Value{}, err
	}

	cr, err := c.class.SelectCreator(func(i int) bool { return values[i].IsValid() })
	if err != nil {
		return reflect.Value{}, err
	}
	indices := cr.Indices()
	args := make([]reflect.Value, len(indices))
	for j, i := range indices {
		args[j] = values[i]
		values[i] = reflect.Value{}
	}
	obj, err := cr.Invoke(args)
	if err != nil {
		if _, ok := docmap.AsError(err); ok {
			return reflect.Value{}, err
		}
		return reflect.Value{}, docmap.NewError(docmap.KindConstruction, docmap.CodeCreatorFailed, c.class.Type()).WithCause(err)
	}
	for i, v := range values {
		if v.IsValid() && !c.plans[i].member.IsReadOnly() {
			c.plans[i].member.Set(obj, v)
		}
	}
	if bag.IsValid() {
		c.plans[c.extraIdx].member.Set(obj, bag)
	}
	return obj, nil
}

// scan visits the members the document did not supply, in index order:
// required members fail and defaults are passed to apply.
func (c *DocumentCodec) scan(tr *bitset.Tracker, apply func(idx int, v reflect.Value)) error {
	n := len(c.plans)
	for idx := range tr.Unset() {
		if idx >= n {
			continue
		}
		m := c.plans[idx].member
		if m.IsReadOnly() || m.IsExtraElements() {
			continue
		}
		if m.IsRequired() {
			return c.formatErr(docmap.CodeRequired).WithMember(m.Name()).WithElement(m.ElementName())
		}
		if !m.HasDefault() {
			continue
		}
		dv, err := m.DefaultValue()
		if err != nil {
			if de, ok := docmap.AsError(err); ok && de.Type == nil {
				de.Type, de.Member = c.class.Type(), m.Name()
			}
			return err
		}
		apply(idx, dv)
	}
	return nil
}

func (c *DocumentCodec) readMember(dc bsoncodec.DecodeContext, idx int, vr bsonrw.ValueReader) (reflect.Value, error) {
	p := &c.plans[idx]
	act, err := p.decodeAction(c.engine.reg)
	if err != nil {
		return reflect.Value{}, c.memberErr(docmap.CodeMemberDecode, p.member, err)
	}
	v, err := act(dc, vr)
	if err != nil {
		return reflect.Value{}, c.memberErr(docmap.CodeMemberDecode, p.member, err)
	}
	return v, nil
}

func (c *DocumentCodec) unknown(dc bsoncodec.DecodeContext, name string, vr bsonrw.ValueReader, bag *reflect.Value) error {
	switch {
	case c.extraIdx >= 0:
		return c.readExtra(dc, name, vr, bag)
	case c.class.IgnoreExtraElements():
		c.engine.debug("ignored unknown element", "type", c.class.Type().String(), "element", name)
		if err := vr.Skip(); err != nil {
			return c.malformed(err)
		}
		return nil
	}
	return c.formatErr(docmap.CodeUnknownElement).
		WithElement(name).
		WithHint("map the element, add an extra-elements member or ignore extra elements")
}
