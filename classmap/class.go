// Package classmap describes how Go struct types map to BSON documents.
//
// A Class is built once by a Builder, frozen, and then shared by every decode
// and encode of its type:
//
//	cls := classmap.New[Point]().
//		AutoMap().
//		Map("Y").Required().
//		Map("Label").Default("origin").
//		MustBuild()
//
// Classes are collected in a Registry, which also resolves discriminators for
// polymorphic hierarchies and interface-typed values.
package classmap

import (
	"reflect"
	"slices"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/internal/trie"
)

// Class is the frozen mapping of one struct type.
type Class struct {
	typ           reflect.Type
	members       []*Member
	encodeOrder   []int
	names         *trie.Trie
	idIdx         int
	extraIdx      int
	discriminator string
	discRequired  bool
	rootClass     bool
	base          *Class
	convention    DiscriminatorConvention
	ignoreExtra   bool
	creators      []*Creator
	factory       func() reflect.Value
	needsAddr     bool
	frozen        bool
}

// Type returns the mapped struct type.
func (c *Class) Type() reflect.Type { return c.typ }

// Frozen reports whether c was produced by Builder.Build. The zero Class is
// not frozen.
func (c *Class) Frozen() bool { return c != nil && c.frozen }

// NumMembers returns the number of mapped members.
func (c *Class) NumMembers() int { return len(c.members) }

// Member returns the member at index i (declaration order).
func (c *Class) Member(i int) *Member { return c.members[i] }

// Members returns the members in declaration order. Index i is the member's
// required-tracking bit.
func (c *Class) Members() []*Member { return slices.Clone(c.members) }

// EncodeOrder returns member indices sorted by ascending Order, stable.
func (c *Class) EncodeOrder() []int { return slices.Clone(c.encodeOrder) }

// MemberByName returns the member with Go name name.
func (c *Class) MemberByName(name string) (*Member, bool) {
	for _, m := range c.members {
		if m.name == name {
			return m, true
		}
	}
	return nil, false
}

// Resolve maps an element name to a member index. The discriminator element
// resolves to DiscriminatorSlot.
func (c *Class) Resolve(element string) (int, bool) { return c.names.Lookup(element) }

// DiscriminatorSlot is the synthetic index of the discriminator element.
func (c *Class) DiscriminatorSlot() int { return len(c.members) }

// IDMember returns the id member, if mapped.
func (c *Class) IDMember() (*Member, bool) {
	if c.idIdx < 0 {
		return nil, false
	}
	return c.members[c.idIdx], true
}

// ExtraElementsMember returns the member collecting unmapped elements, if any.
func (c *Class) ExtraElementsMember() (*Member, bool) {
	if c.extraIdx < 0 {
		return nil, false
	}
	return c.members[c.extraIdx], true
}

// Discriminator returns the discriminator value of the class.
func (c *Class) Discriminator() string { return c.discriminator }

// DiscriminatorElementName returns the element holding discriminators.
func (c *Class) DiscriminatorElementName() string { return c.convention.ElementName() }

// DiscriminatorConvention returns the convention reading and writing
// discriminators for the class.
func (c *Class) DiscriminatorConvention() DiscriminatorConvention { return c.convention }

// DiscriminatorIsRequired reports whether the discriminator is written even
// when the nominal type is the class itself.
func (c *Class) DiscriminatorIsRequired() bool { return c.discRequired }

// IsRootClass reports whether the class roots a hierarchy.
func (c *Class) IsRootClass() bool { return c.rootClass }

// IgnoreExtraElements reports whether unknown elements are skipped on decode.
func (c *Class) IgnoreExtraElements() bool { return c.ignoreExtra }

// BaseClass returns the class c inherits from, or nil.
func (c *Class) BaseClass() *Class { return c.base }

// IsAnonymous reports whether the type is an unnamed struct. Anonymous
// classes never write a discriminator.
func (c *Class) IsAnonymous() bool { return c.typ.Name() == "" }

// InRootHierarchy reports whether c or one of its ancestors is a root class.
func (c *Class) InRootHierarchy() bool {
	for k := c; k != nil; k = k.base {
		if k.rootClass {
			return true
		}
	}
	return false
}

// Hierarchy returns the chain of classes from the outermost ancestor down to c.
func (c *Class) Hierarchy() []*Class {
	var out []*Class
	for k := c; k != nil; k = k.base {
		out = append(out, k)
	}
	slices.Reverse(out)
	return out
}

// HasCreators reports whether decode constructs instances through creators.
func (c *Class) HasCreators() bool { return len(c.creators) > 0 }

// Creators returns the configured creators.
func (c *Class) Creators() []*Creator { return slices.Clone(c.creators) }

// NeedsAddressable reports whether some member accessor or predicate needs an
// addressable value to read from.
func (c *Class) NeedsAddressable() bool { return c.needsAddr }

// NewInstance returns a new addressable value of the class type, produced by
// the configured factory or zero.
func (c *Class) NewInstance() reflect.Value {
	if c.factory != nil {
		return c.factory()
	}
	return reflect.New(c.typ).Elem()
}

// SelectCreator picks the creator to construct an instance from the members
// for which present reports true: among creators whose parameters are all
// present, the one with the most parameters.
func (c *Class) SelectCreator(present func(int) bool) (*Creator, error) {
	var best *Creator
	ambiguous := false
	for _, cr := range c.creators {
		if !cr.satisfied(present) {
			continue
		}
		switch {
		case best == nil || len(cr.indices) > len(best.indices):
			best, ambiguous = cr, false
		case len(cr.indices) == len(best.indices):
			ambiguous = true
		}
	}
	if best == nil {
		return nil, docmap.NewError(docmap.KindConstruction, docmap.CodeNoCreator, c.typ)
	}
	if ambiguous {
		return nil, docmap.NewError(docmap.KindConstruction, docmap.CodeAmbiguousCreator, c.typ).
			WithHint("give one creator more parameters than the others")
	}
	return best, nil
}
