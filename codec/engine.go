// Package codec encodes and decodes Go values as BSON documents under the
// class maps of a classmap.Registry.
//
// An Engine freezes its class registry and binds one DocumentCodec per class,
// plus one polymorphic codec per registered interface, into a bsoncodec
// registry. Members of mapped types therefore encode and decode through the
// same codecs at any nesting depth, and the registry can be handed to the
// mongo driver.
//
//	classes := classmap.NewRegistry()
//	classmap.AutoRegister[Point](classes)
//	e, err := codec.New(classes)
//	data, err := codec.Marshal(e, Point{X: 1, Y: 2})
//	p, err := codec.Unmarshal[Point](e, data)
package codec

import (
	"context"
	"log/slog"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/classmap"
)

// Engine maps the classes of a frozen registry to BSON. It is safe for
// concurrent use.
type Engine struct {
	classes *classmap.Registry
	reg     *bsoncodec.Registry
	codecs  map[reflect.Type]*DocumentCodec
	ifaces  map[reflect.Type]*interfaceCodec
	logger  *slog.Logger
	idFirst bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger receiving decode events at Debug level, such as
// unknown elements dropped by classes that ignore extra elements.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry binds the engine's codecs into r instead of a fresh
// bson.NewRegistry(). r is modified and must not be in use concurrently.
func WithRegistry(r *bsoncodec.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.reg = r
		}
	}
}

// IDFirst writes the id member before every other element, ahead of the
// discriminator.
func IDFirst() Option {
	return func(e *Engine) { e.idFirst = true }
}

// New freezes classes and returns an Engine for its classes and interfaces.
func New(classes *classmap.Registry, opts ...Option) (*Engine, error) {
	if classes == nil {
		return nil, docmap.NewError(docmap.KindConfiguration, docmap.CodeNotFrozen, nil).
			WithMessage("nil class registry")
	}
	if err := classes.Freeze(); err != nil {
		return nil, err
	}
	e := &Engine{
		classes: classes,
		codecs:  map[reflect.Type]*DocumentCodec{},
		ifaces:  map[reflect.Type]*interfaceCodec{},
		logger:  classes.Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.reg == nil {
		e.reg = bson.NewRegistry()
	}
	e.reg.RegisterTypeEncoder(tUUID, UUIDCodec{})
	e.reg.RegisterTypeDecoder(tUUID, UUIDCodec{})

	for _, c := range classes.Classes() {
		dc := newDocumentCodec(e, c)
		e.codecs[c.Type()] = dc
		e.reg.RegisterTypeEncoder(c.Type(), dc)
		e.reg.RegisterTypeDecoder(c.Type(), dc)
	}
	for _, iface := range classes.Interfaces() {
		conv, _ := classes.InterfaceConvention(iface)
		ic := &interfaceCodec{engine: e, iface: iface, convention: conv}
		e.ifaces[iface] = ic
		e.reg.RegisterTypeEncoder(iface, ic)
		e.reg.RegisterTypeDecoder(iface, ic)
	}
	e.logger.Debug("engine ready", "classes", len(e.codecs), "interfaces", len(e.ifaces), "id_first", e.idFirst)
	return e, nil
}

// Registry returns the bsoncodec registry holding the engine's codecs.
func (e *Engine) Registry() *bsoncodec.Registry { return e.reg }

// Classes returns the frozen class registry.
func (e *Engine) Classes() *classmap.Registry { return e.classes }

// Codec returns the document codec of class type t.
func (e *Engine) Codec(t reflect.Type) (*DocumentCodec, bool) {
	c, ok := e.codecs[t]
	return c, ok
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger.Enabled(context.Background(), slog.LevelDebug) {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) unmapped(t reflect.Type) error {
	return docmap.NewError(docmap.KindConfiguration, docmap.CodeUnmappedType, t).
		WithHint("register the type with classmap.AutoRegister or Registry.Register before codec.New")
}

// Decode reads one document from vr as nominal: a registered class type, a
// pointer to one, or a registered interface. The result holds a value of
// nominal type; nil pointers and interfaces come from BSON null.
func (e *Engine) Decode(vr bsonrw.ValueReader, nominal reflect.Type) (any, error) {
	out := reflect.New(nominal).Elem()
	if err := e.decodeInto(bsoncodec.DecodeContext{Registry: e.reg}, vr, out); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func (e *Engine) decodeInto(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader, out reflect.Value) error {
	t := out.Type()
	switch t.Kind() {
	case reflect.Pointer:
		if isNullTag(vr.Type()) {
			return readNull(vr)
		}
		p := reflect.New(t.Elem())
		if err := e.decodeInto(dc, vr, p.Elem()); err != nil {
			return err
		}
		out.Set(p)
		return nil
	case reflect.Interface:
		ic, ok := e.ifaces[t]
		if !ok {
			return e.unmapped(t)
		}
		return ic.DecodeValue(dc, vr, out)
	}
	c, ok := e.codecs[t]
	if !ok {
		return e.unmapped(t)
	}
	return c.DecodeValue(dc, vr, out)
}

// Encode writes v as a document of nominal type. v must be assignable to
// nominal; a nil v writes null for pointer and interface nominal types.
// Values written under an interface or base nominal type carry their
// discriminator.
func (e *Engine) Encode(vw bsonrw.ValueWriter, nominal reflect.Type, v any) error {
	val := reflect.New(nominal).Elem()
	if v != nil {
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(nominal) {
			return docmap.NewError(docmap.KindConfiguration, docmap.CodeUnexpectedType, nominal).
				WithMessage("cannot encode %s as %s", rv.Type(), nominal)
		}
		val.Set(rv)
	}
	return e.encodeValue(bsoncodec.EncodeContext{Registry: e.reg}, vw, val)
}

func (e *Engine) encodeValue(ec bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	t := val.Type()
	switch t.Kind() {
	case reflect.Pointer:
		if val.IsNil() {
			return vw.WriteNull()
		}
		return e.encodeValue(ec, vw, val.Elem())
	case reflect.Interface:
		ic, ok := e.ifaces[t]
		if !ok {
			return e.unmapped(t)
		}
		return ic.EncodeValue(ec, vw, val)
	}
	c, ok := e.codecs[t]
	if !ok {
		return e.unmapped(t)
	}
	return c.EncodeValue(ec, vw, val)
}

// Marshal encodes v as a BSON document with T as the nominal type.
func Marshal[T any](e *Engine, v T) ([]byte, error) {
	buf := make(bsonrw.SliceWriter, 0, 256)
	vw, err := bsonrw.NewBSONValueWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := e.encodeValue(bsoncodec.EncodeContext{Registry: e.reg}, vw, reflect.ValueOf(&v).Elem()); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unmarshal decodes a BSON document into a T.
func Unmarshal[T any](e *Engine, data []byte) (T, error) {
	var out T
	if err := e.decodeInto(bsoncodec.DecodeContext{Registry: e.reg}, bsonrw.NewBSONDocumentReader(data), reflect.ValueOf(&out).Elem()); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
