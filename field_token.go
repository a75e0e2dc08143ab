package docmap

import (
	"reflect"
)

const _maxPathDepth = 32

// MemberOf returns the Go member name of the field of T addressed by selector.
// Fields promoted from embedded structs are found too, the way AutoMap
// flattens them. The selector must return the address of a field, e.g.:
//
//	MemberOf[Order](func(o *Order) *string { return &o.Status }) // "Status"
//
// This guarantees compile-time errors if the field is renamed/removed.
func MemberOf[T any, F any](selector func(*T) *F) string {
	if selector == nil {
		panic("docmap.MemberOf: selector must not be nil")
	}
	var zero T
	rv := reflect.ValueOf(&zero).Elem()
	if rv.Kind() != reflect.Struct {
		panic("docmap.MemberOf: T must be a struct type")
	}
	target := reflect.ValueOf(selector(&zero)).Pointer()
	name, ok := findMember(rv, target, reflect.TypeFor[F](), 0)
	if !ok {
		panic("docmap.MemberOf: selector must return the address of an exported field of T")
	}
	return name
}

// findMember compares addresses and types: a struct's first field shares its
// parent's address.
func findMember(v reflect.Value, target uintptr, ft reflect.Type, depth int) (string, bool) {
	if depth > _maxPathDepth {
		return "", false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if sf.IsExported() && sf.Type == ft && fv.Addr().Pointer() == target {
			return sf.Name, true
		}
		// Recurse into embedded structs only (skip pointers for safety)
		if sf.Anonymous && fv.Kind() == reflect.Struct {
			if name, ok := findMember(fv, target, ft, depth+1); ok {
				return name, true
			}
		}
	}
	return "", false
}
