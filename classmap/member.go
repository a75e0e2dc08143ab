package classmap

import (
	"math"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/reoring/docmap"
)

// Unordered is the Order of members without an explicit order. They encode
// after ordered members, in declaration order.
const Unordered = math.MaxInt

// ValueCodec encodes and decodes one member value.
type ValueCodec interface {
	bsoncodec.ValueEncoder
	bsoncodec.ValueDecoder
}

// TypedCodec is implemented by value codecs bound to a single Go type. Builders
// check it against the member type.
type TypedCodec interface {
	ValueType() reflect.Type
}

var (
	tRawValue = reflect.TypeFor[bson.RawValue]()
	tD        = reflect.TypeFor[bson.D]()
)

// Member describes how one Go member maps to one element. Members are
// immutable once their Class is built.
type Member struct {
	name            string
	element         string
	typ             reflect.Type
	order           int
	index           int
	required        bool
	ignoreIfNull    bool
	ignoreIfDefault bool
	hasDefault      bool
	defaultValue    reflect.Value
	defaultFunc     func() any
	codec           ValueCodec
	isID            bool
	idGen           IDGenerator
	extra           bool
	shouldWrite     func(obj reflect.Value) bool
	acc             accessor

	// configuration only
	auto        bool
	defaultAny  any
	defaultText string
	textDefault bool
	inherited   bool
}

// Name returns the Go member name.
func (m *Member) Name() string { return m.name }

// ElementName returns the wire name, unique within the class.
func (m *Member) ElementName() string { return m.element }

// Type returns the declared member type.
func (m *Member) Type() reflect.Type { return m.typ }

// Order returns the explicit order, or Unordered.
func (m *Member) Order() int { return m.order }

// Index returns the member's position in Class.Members.
func (m *Member) Index() int { return m.index }

// IsRequired reports whether decode fails when the element is missing.
func (m *Member) IsRequired() bool { return m.required }

// IgnoreIfNull reports whether nil values are left out on encode.
func (m *Member) IgnoreIfNull() bool { return m.ignoreIfNull }

// IgnoreIfDefault reports whether values equal to the default are left out on
// encode.
func (m *Member) IgnoreIfDefault() bool { return m.ignoreIfDefault }

// HasDefault reports whether a default value or factory is configured.
func (m *Member) HasDefault() bool { return m.hasDefault }

// IsID reports whether the member is the class id.
func (m *Member) IsID() bool { return m.isID }

// IsExtraElements reports whether the member collects unmapped elements.
func (m *Member) IsExtraElements() bool { return m.extra }

// IsReadOnly reports whether the member has no setter. Read-only members are
// written on encode and never assigned on decode.
func (m *Member) IsReadOnly() bool { return !m.acc.settable() }

// Codec returns the explicitly configured value codec, or nil.
func (m *Member) Codec() ValueCodec { return m.codec }

// IDGenerator returns the id generator of the id member, or nil.
func (m *Member) IDGenerator() IDGenerator { return m.idGen }

// DefaultValue returns the member's default converted to the member type. A
// default factory is invoked on every call.
func (m *Member) DefaultValue() (reflect.Value, error) {
	if !m.hasDefault {
		return reflect.Zero(m.typ), nil
	}
	if m.defaultFunc == nil {
		return m.defaultValue, nil
	}
	return convertDefault(m.defaultFunc(), m.typ)
}

// Get reads the member from obj, a value of the class type. Members bound to
// closures need obj to be addressable.
func (m *Member) Get(obj reflect.Value) reflect.Value { return m.acc.get(obj) }

// Set assigns v to the member of obj, an addressable value of the class type.
func (m *Member) Set(obj, v reflect.Value) { m.acc.set(obj, v) }

// ShouldSerialize reports whether the member is written for obj. It is false
// when the ignore policy drops the value or the member's predicate rejects
// obj.
func (m *Member) ShouldSerialize(obj reflect.Value) bool {
	if m.ignoreIfNull || m.ignoreIfDefault {
		v := m.Get(obj)
		if m.ignoreIfNull && isNull(v) {
			return false
		}
		if m.ignoreIfDefault && m.isDefault(v) {
			return false
		}
	}
	return m.shouldWrite == nil || m.shouldWrite(obj)
}

// isDefault compares v with what decode would fill in for a missing element.
func (m *Member) isDefault(v reflect.Value) bool {
	if !m.hasDefault {
		return v.IsZero()
	}
	dv, err := m.DefaultValue()
	if err != nil {
		return false
	}
	return reflect.DeepEqual(v.Interface(), dv.Interface())
}

func isNull(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	if v.Type() == tRawValue {
		t := bsontype.Type(v.Field(0).Uint())
		return t == 0 || t == bsontype.Null
	}
	return false
}

// nullable reports whether t can hold nil.
func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func isBagType(t reflect.Type) bool {
	if t == tD {
		return true
	}
	return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
}

// convertDefault converts v to t. Numeric kinds convert among each other and
// string kinds among each other; anything else must be assignable.
func convertDefault(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		if nullable(t) {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidDefault, nil).
			WithMessage("nil default for non-nullable %s", t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}
	if (isNumber(rv.Kind()) && isNumber(t.Kind())) || (rv.Kind() == reflect.String && t.Kind() == reflect.String) {
		if rv.CanConvert(t) {
			return rv.Convert(t), nil
		}
	}
	return reflect.Value{}, docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidDefault, nil).
		WithMessage("default of type %s does not fit %s", rv.Type(), t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
