package codec

import (
	"errors"
	"reflect"

	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/classmap"
	"github.com/reoring/docmap/internal/lazy"
)

var tEmpty = reflect.TypeFor[any]()

// decodeAction reads one element value into a new value of the member type.
type decodeAction func(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader) (reflect.Value, error)

// memberPlan caches what a member needs on the hot path. Cells are filled on
// first use and shared by concurrent callers.
type memberPlan struct {
	member *classmap.Member
	enc    lazy.Cell[bsoncodec.ValueEncoder]
	dec    lazy.Cell[bsoncodec.ValueDecoder]
	action lazy.Cell[decodeAction]
}

// DocumentCodec is the bsoncodec.ValueEncoder and ValueDecoder of one class.
type DocumentCodec struct {
	engine      *Engine
	class       *classmap.Class
	plans       []memberPlan
	order       []int
	idIdx       int
	extraIdx    int
	polymorphic bool
	extraDec    lazy.Cell[bsoncodec.ValueDecoder]
}

func newDocumentCodec(e *Engine, c *classmap.Class) *DocumentCodec {
	dc := &DocumentCodec{
		engine:      e,
		class:       c,
		plans:       make([]memberPlan, c.NumMembers()),
		order:       c.EncodeOrder(),
		idIdx:       -1,
		extraIdx:    -1,
		polymorphic: e.classes.HasSubtypes(c.Type()),
	}
	for i := range dc.plans {
		dc.plans[i].member = c.Member(i)
	}
	if m, ok := c.IDMember(); ok {
		dc.idIdx = m.Index()
	}
	if m, ok := c.ExtraElementsMember(); ok {
		dc.extraIdx = m.Index()
	}
	return dc
}

// Class returns the class the codec maps.
func (c *DocumentCodec) Class() *classmap.Class { return c.class }

func (p *memberPlan) encoder(reg *bsoncodec.Registry) (bsoncodec.ValueEncoder, error) {
	return p.enc.Get(func() (bsoncodec.ValueEncoder, error) {
		if mc := p.member.Codec(); mc != nil {
			return mc, nil
		}
		t := p.member.Type()
		if t == tRawValue {
			return RawValueCodec{}, nil
		}
		enc, err := reg.LookupEncoder(t)
		if err != nil && t.Kind() == reflect.Interface {
			return dynamicEncoder{}, nil
		}
		return enc, err
	})
}

func (p *memberPlan) decoder(reg *bsoncodec.Registry) (bsoncodec.ValueDecoder, error) {
	return p.dec.Get(func() (bsoncodec.ValueDecoder, error) {
		if mc := p.member.Codec(); mc != nil {
			return mc, nil
		}
		if p.member.Type() == tRawValue {
			return RawValueCodec{}, nil
		}
		return reg.LookupDecoder(p.member.Type())
	})
}

func (p *memberPlan) decodeAction(reg *bsoncodec.Registry) (decodeAction, error) {
	return p.action.Get(func() (decodeAction, error) {
		dec, err := p.decoder(reg)
		if err != nil {
			return nil, err
		}
		t := p.member.Type()
		return func(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader) (reflect.Value, error) {
			v := reflect.New(t).Elem()
			if err := dec.DecodeValue(dc, vr, v); err != nil {
				return reflect.Value{}, err
			}
			return v, nil
		}, nil
	})
}

// dynamicEncoder encodes interface members whose interface has no codec of
// its own by the dynamic type of the value.
type dynamicEncoder struct{}

func (dynamicEncoder) EncodeValue(ec bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	return encodeDynamic(ec, vw, val)
}

func encodeDynamic(ec bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if val.Kind() == reflect.Interface {
		if val.IsNil() {
			return vw.WriteNull()
		}
		val = val.Elem()
	}
	enc, err := ec.LookupEncoder(val.Type())
	if err != nil {
		return err
	}
	return enc.EncodeValue(ec, vw, val)
}

func (c *DocumentCodec) formatErr(code string) *docmap.Error {
	return docmap.NewError(docmap.KindFormat, code, c.class.Type())
}

func (c *DocumentCodec) memberErr(code string, m *classmap.Member, cause error) error {
	return c.formatErr(code).WithMember(m.Name()).WithElement(m.ElementName()).WithCause(cause)
}

func isNullTag(t bsontype.Type) bool {
	return t == bsontype.Null || t == bsontype.Undefined
}

func readNull(vr bsonrw.ValueReader) error {
	if vr.Type() == bsontype.Undefined {
		return vr.ReadUndefined()
	}
	return vr.ReadNull()
}

// malformed wraps reader errors, leaving docmap errors untouched.
func (c *DocumentCodec) malformed(err error) error {
	var de *docmap.Error
	if errors.As(err, &de) {
		return err
	}
	return c.formatErr(docmap.CodeMalformed).WithCause(err)
}
