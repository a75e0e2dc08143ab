package codec

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson/bsoncodec"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/classmap"
)

// IDInfo describes the id of a mapped value.
type IDInfo struct {
	ID        any
	Type      reflect.Type
	Element   string
	Generator classmap.IDGenerator
}

func idErr(t reflect.Type) *docmap.Error {
	return docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidID, t)
}

// classValue dereferences v down to a value of a registered class type.
func (e *Engine) classValue(v any) (*DocumentCodec, reflect.Value, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, reflect.Value{}, idErr(rv.Type()).WithMessage("nil %s", rv.Type())
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, reflect.Value{}, idErr(nil).WithMessage("nil value")
	}
	c, ok := e.codecs[rv.Type()]
	if !ok {
		return nil, reflect.Value{}, e.unmapped(rv.Type())
	}
	return c, rv, nil
}

// GetID returns the id of v, a class value or a pointer to one. It reports
// false when the class maps no id member.
func (e *Engine) GetID(v any) (IDInfo, bool, error) {
	c, obj, err := e.classValue(v)
	if err != nil {
		return IDInfo{}, false, err
	}
	m, ok := c.class.IDMember()
	if !ok {
		return IDInfo{}, false, nil
	}
	if c.class.NeedsAddressable() && !obj.CanAddr() {
		tmp := reflect.New(obj.Type()).Elem()
		tmp.Set(obj)
		obj = tmp
	}
	return IDInfo{
		ID:        m.Get(obj).Interface(),
		Type:      m.Type(),
		Element:   m.ElementName(),
		Generator: m.IDGenerator(),
	}, true, nil
}

// SetID assigns id to the id member of the class value ptr points to. id must
// be assignable to the member type; nil sets a nullable id to nil.
func (e *Engine) SetID(ptr any, id any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return idErr(reflect.TypeOf(ptr)).WithMessage("SetID needs a non-nil pointer, got %T", ptr)
	}
	c, obj, err := e.classValue(ptr)
	if err != nil {
		return err
	}
	m, ok := c.class.IDMember()
	if !ok {
		return idErr(obj.Type()).WithMessage("%s maps no id member", obj.Type())
	}
	if m.IsReadOnly() {
		return idErr(obj.Type()).WithMember(m.Name()).WithMessage("id member %s is read-only", m.Name())
	}
	var idv reflect.Value
	switch {
	case id == nil:
		idv = reflect.Zero(m.Type())
		if !nullable(m.Type()) {
			return idErr(obj.Type()).WithMember(m.Name()).WithMessage("nil id for %s", m.Type())
		}
	case reflect.TypeOf(id).AssignableTo(m.Type()):
		idv = reflect.New(m.Type()).Elem()
		idv.Set(reflect.ValueOf(id))
	default:
		return idErr(obj.Type()).WithMember(m.Name()).
			WithMessage("id of type %T does not fit %s", id, m.Type())
	}
	m.Set(obj, idv)
	return nil
}

// EnsureID generates an id for the value ptr points to when its id is empty
// under the member's generator. It returns the id and whether it was
// generated. Members without a generator are left untouched.
func (e *Engine) EnsureID(ptr any) (any, bool, error) {
	info, ok, err := e.GetID(ptr)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, idErr(reflect.TypeOf(ptr)).WithMessage("%T maps no id member", ptr)
	}
	if info.Generator == nil || !info.Generator.IsEmpty(info.ID) {
		return info.ID, false, nil
	}
	id, err := info.Generator.Generate()
	if err != nil {
		return nil, false, idErr(info.Type).WithMessage("generate id").WithCause(err)
	}
	if err := e.SetID(ptr, id); err != nil {
		return nil, false, err
	}
	e.debug("generated id", "type", info.Type.String(), "id", id)
	return id, true, nil
}

func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// MemberInfo describes a mapped member for query builders: its element name
// and the codecs its values go through.
type MemberInfo struct {
	Name        string
	ElementName string
	Type        reflect.Type
	Encoder     bsoncodec.ValueEncoder
	Decoder     bsoncodec.ValueDecoder
}

// LookupMember returns the member of class type t named by its Go name. The
// codecs are nil when none resolves for the member type.
func (e *Engine) LookupMember(t reflect.Type, name string) (MemberInfo, bool) {
	c, ok := e.codecs[t]
	if !ok {
		return MemberInfo{}, false
	}
	m, ok := c.class.MemberByName(name)
	if !ok {
		return MemberInfo{}, false
	}
	p := &c.plans[m.Index()]
	info := MemberInfo{Name: m.Name(), ElementName: m.ElementName(), Type: m.Type()}
	if enc, err := p.encoder(e.reg); err == nil {
		info.Encoder = enc
	}
	if dec, err := p.decoder(e.reg); err == nil {
		info.Decoder = dec
	}
	return info, true
}

// LookupMemberOf is LookupMember with the member named by a field selector:
//
//	info, ok := codec.LookupMemberOf(e, func(p *Point) *int { return &p.X })
func LookupMemberOf[T, F any](e *Engine, selector func(*T) *F) (MemberInfo, bool) {
	return e.LookupMember(reflect.TypeFor[T](), docmap.MemberOf(selector))
}
