package classmap

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/reoring/docmap"
)

// DefaultDiscriminatorElement is the element name of the stock conventions
// when none is given.
const DefaultDiscriminatorElement = "_t"

// TypeLookup is the view of a Registry used by discriminator conventions.
type TypeLookup interface {
	Class(t reflect.Type) (*Class, bool)
	TypeForDiscriminator(value string) (reflect.Type, bool)
	// DefaultType returns the type decoded for an interface when a document
	// carries no discriminator.
	DefaultType(iface reflect.Type) (reflect.Type, bool)
}

// DiscriminatorConvention reads and writes the element identifying the actual
// type of a polymorphic document.
type DiscriminatorConvention interface {
	ElementName() string
	// ActualType resolves the type to decode doc into for the nominal type.
	// The result is nominal itself or a type assignable to it.
	ActualType(lookup TypeLookup, doc bson.Raw, nominal reflect.Type) (reflect.Type, error)
	// DiscriminatorValue returns the value written for actual under nominal.
	DiscriminatorValue(lookup TypeLookup, nominal, actual reflect.Type) (any, bool)
}

// ScalarConvention writes the class discriminator as a string. It reads a
// string, or the last string of an array.
func ScalarConvention(element string) DiscriminatorConvention {
	if element == "" {
		element = DefaultDiscriminatorElement
	}
	return scalarConvention{element: element}
}

// HierarchicalConvention writes, for classes in a root hierarchy, the array of
// discriminators from the root class down to the actual class. Other classes
// are written as ScalarConvention does.
func HierarchicalConvention(element string) DiscriminatorConvention {
	if element == "" {
		element = DefaultDiscriminatorElement
	}
	return hierarchicalConvention{scalarConvention{element: element}}
}

type scalarConvention struct{ element string }

func (c scalarConvention) ElementName() string { return c.element }

func (c scalarConvention) ActualType(lookup TypeLookup, doc bson.Raw, nominal reflect.Type) (reflect.Type, error) {
	rv := doc.Lookup(c.element)
	if rv.Type == 0 || rv.Type == bsontype.Null {
		if nominal.Kind() != reflect.Interface {
			return nominal, nil
		}
		if t, ok := lookup.DefaultType(nominal); ok {
			return t, nil
		}
		return nil, docmap.NewError(docmap.KindFormat, docmap.CodeDiscriminatorUnknown, nominal).
			WithElement(c.element).
			WithMessage("document has no discriminator and %s has no default type", nominal)
	}
	value, ok := discriminatorString(rv)
	if !ok {
		return nil, docmap.NewError(docmap.KindFormat, docmap.CodeUnexpectedType, nominal).
			WithElement(c.element).
			WithMessage("discriminator is %s, expected string or array of strings", rv.Type)
	}
	t, ok := lookup.TypeForDiscriminator(value)
	if !ok {
		return nil, docmap.NewError(docmap.KindFormat, docmap.CodeDiscriminatorUnknown, nominal).
			WithElement(c.element).
			WithMessage("unknown discriminator %q", value)
	}
	if !Assignable(t, nominal) {
		return nil, docmap.NewError(docmap.KindFormat, docmap.CodeDiscriminatorUnknown, nominal).
			WithElement(c.element).
			WithMessage("discriminator %q names %s, which is not assignable to %s", value, t, nominal)
	}
	return t, nil
}

func (c scalarConvention) DiscriminatorValue(lookup TypeLookup, nominal, actual reflect.Type) (any, bool) {
	cls, ok := lookup.Class(actual)
	if !ok {
		return nil, false
	}
	return cls.discriminator, true
}

type hierarchicalConvention struct{ scalarConvention }

func (c hierarchicalConvention) DiscriminatorValue(lookup TypeLookup, nominal, actual reflect.Type) (any, bool) {
	cls, ok := lookup.Class(actual)
	if !ok {
		return nil, false
	}
	if !cls.InRootHierarchy() {
		return cls.discriminator, true
	}
	var chain bson.A
	started := false
	for _, k := range cls.Hierarchy() {
		started = started || k.rootClass
		if started {
			chain = append(chain, k.discriminator)
		}
	}
	return chain, true
}

// discriminatorString returns a string discriminator, or the last string of
// an array of discriminators.
func discriminatorString(rv bson.RawValue) (string, bool) {
	if s, ok := rv.StringValueOK(); ok {
		return s, true
	}
	arr, ok := rv.ArrayOK()
	if !ok {
		return "", false
	}
	values, err := arr.Values()
	if err != nil || len(values) == 0 {
		return "", false
	}
	return values[len(values)-1].StringValueOK()
}

// Assignable reports whether a value of class type t can be stored in nominal,
// directly or through a pointer to t.
func Assignable(t, nominal reflect.Type) bool {
	if t == nominal {
		return true
	}
	if nominal.Kind() != reflect.Interface {
		return false
	}
	return t.Implements(nominal) || reflect.PointerTo(t).Implements(nominal)
}
