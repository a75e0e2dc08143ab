package codec

import (
	"cmp"
	"reflect"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"github.com/reoring/docmap"
)

// readExtra decodes an unmapped element into the extra-elements bag, creating
// the bag on first use. bson.D bags keep document order.
func (c *DocumentCodec) readExtra(dc bsoncodec.DecodeContext, name string, vr bsonrw.ValueReader, bag *reflect.Value) error {
	m := c.plans[c.extraIdx].member
	t := m.Type()
	elem := tEmpty
	if t.Kind() == reflect.Map {
		elem = t.Elem()
	}
	if !bag.IsValid() {
		if t.Kind() == reflect.Map {
			*bag = reflect.MakeMap(t)
		} else {
			*bag = reflect.MakeSlice(t, 0, 4)
		}
	}
	dec, err := c.extraDec.Get(func() (bsoncodec.ValueDecoder, error) {
		return c.engine.reg.LookupDecoder(elem)
	})
	if err == nil {
		v := reflect.New(elem).Elem()
		if err = dec.DecodeValue(dc, vr, v); err == nil {
			if t.Kind() == reflect.Map {
				bag.SetMapIndex(reflect.ValueOf(name).Convert(t.Key()), v)
			} else {
				*bag = reflect.Append(*bag, reflect.ValueOf(bson.E{Key: name, Value: v.Interface()}))
			}
			return nil
		}
	}
	return c.formatErr(docmap.CodeMemberDecode).WithMember(m.Name()).WithElement(name).WithCause(err)
}

// encodeExtra writes the bag's entries as top-level elements: bson.D in its
// own order, maps in sorted key order.
func (c *DocumentCodec) encodeExtra(ec bsoncodec.EncodeContext, dw bsonrw.DocumentWriter, obj reflect.Value) error {
	m := c.plans[c.extraIdx].member
	bag := m.Get(obj)
	if bag.Len() == 0 {
		return nil
	}
	write := func(key string, v reflect.Value) error {
		evw, err := dw.WriteDocumentElement(key)
		if err != nil {
			return err
		}
		if err := encodeDynamic(ec, evw, v); err != nil {
			return c.formatErr(docmap.CodeMemberEncode).WithMember(m.Name()).WithElement(key).WithCause(err)
		}
		return nil
	}
	if bag.Kind() == reflect.Slice {
		for i := range bag.Len() {
			e := bag.Index(i).Interface().(bson.E)
			if err := write(e.Key, reflect.ValueOf(&e.Value).Elem()); err != nil {
				return err
			}
		}
		return nil
	}
	keys := bag.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) })
	for _, k := range keys {
		if err := write(k.String(), bag.MapIndex(k)); err != nil {
			return err
		}
	}
	return nil
}
