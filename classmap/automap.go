package classmap

import (
	"reflect"
	"slices"

	"github.com/reoring/docmap"
)

// AutoMap maps every exported field of T that is not mapped yet, flattening
// embedded structs. Element names follow the docmap tag, then the bson tag,
// then the builder's element-name convention. Fields named ID or Id (or
// tagged "_id") become the id member; a bag-typed field named ExtraElements
// collects unmapped elements.
func (b *Builder[T]) AutoMap() *Builder[T] {
	if b.frozen() || b.typ.Kind() != reflect.Struct {
		return b
	}
	for _, sf := range reflect.VisibleFields(b.typ) {
		if sf.Anonymous && isStructOrPtr(sf.Type) {
			continue
		}
		if !sf.IsExported() || b.find(sf.Name) != nil {
			continue
		}
		// shadowed by a shallower field of the same name
		if f, ok := b.typ.FieldByName(sf.Name); !ok || !slices.Equal(f.Index, sf.Index) {
			continue
		}
		if b.throughUnexportedPointer(sf.Index) {
			continue
		}
		m, err := b.fieldMember(sf)
		if err != nil {
			b.fail(err)
			continue
		}
		if m == nil {
			continue
		}
		m.auto = true
		b.members = append(b.members, m)
	}
	return b
}

func isStructOrPtr(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// throughUnexportedPointer reports whether the index path crosses an
// unexported embedded pointer, which cannot be allocated on decode.
func (b *Builder[T]) throughUnexportedPointer(index []int) bool {
	t := b.typ
	for _, x := range index[:len(index)-1] {
		f := t.Field(x)
		t = f.Type
		if t.Kind() == reflect.Pointer {
			if !f.IsExported() {
				return true
			}
			t = t.Elem()
		}
	}
	return false
}

// fieldMember builds the member of field sf from its tags and the builder's
// conventions. It returns nil for fields disabled by a tag.
func (b *Builder[T]) fieldMember(sf reflect.StructField) (*Member, error) {
	ti, err := docmap.ResolveTag(sf)
	if err != nil {
		if de, ok := docmap.AsError(err); ok {
			de.Type = b.typ
		}
		return nil, err
	}
	if ti.Skip {
		return nil, nil
	}
	m := &Member{
		name:            sf.Name,
		element:         ti.Name,
		typ:             sf.Type,
		order:           Unordered,
		required:        ti.Required,
		ignoreIfNull:    ti.IgnoreIfNull,
		ignoreIfDefault: ti.IgnoreIfDefault || (b.conventions.IgnoreIfDefault && !ti.IgnoreIfNull),
		acc:             fieldAccessor{index: sf.Index, typ: sf.Type},
	}
	if m.element == "" {
		m.element = b.conventions.elementName(sf.Name)
	}
	if ti.HasOrder {
		m.order = ti.Order
	}
	if ti.HasDefault {
		m.textDefault, m.defaultText = true, ti.Default
	}
	switch {
	case ti.ID || ti.Name == IDElement || (ti.Name == "" && (sf.Name == "ID" || sf.Name == "Id")):
		m.isID, m.element = true, IDElement
	case ti.Extra || (ti.Name == "" && sf.Name == "ExtraElements" && isBagType(sf.Type)):
		m.extra = true
	}
	return m, nil
}
