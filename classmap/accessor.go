package classmap

import "reflect"

// accessor reads and writes one member of an addressable struct value.
// Accessors are bound when a member is mapped; decode and encode never walk
// field metadata again.
type accessor interface {
	get(obj reflect.Value) reflect.Value
	set(obj, v reflect.Value)
	settable() bool
	// needsAddr reports whether get requires an addressable obj.
	needsAddr() bool
}

// fieldAccessor addresses a struct field by index path. Embedded pointers on
// the path are allocated on set and read as zero on get when nil.
type fieldAccessor struct {
	index []int
	typ   reflect.Type
}

func (a fieldAccessor) walk(obj reflect.Value, alloc bool) (reflect.Value, bool) {
	v := obj
	for i, x := range a.index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

func (a fieldAccessor) get(obj reflect.Value) reflect.Value {
	if v, ok := a.walk(obj, false); ok {
		return v
	}
	return reflect.Zero(a.typ)
}

func (a fieldAccessor) set(obj, v reflect.Value) {
	f, _ := a.walk(obj, true)
	f.Set(v)
}

func (fieldAccessor) settable() bool  { return true }
func (fieldAccessor) needsAddr() bool { return false }

// funcAccessor wraps typed getter/setter closures.
type funcAccessor struct {
	getter func(obj reflect.Value) reflect.Value
	setter func(obj, v reflect.Value)
}

func (a funcAccessor) get(obj reflect.Value) reflect.Value { return a.getter(obj) }
func (a funcAccessor) set(obj, v reflect.Value)            { a.setter(obj, v) }
func (a funcAccessor) settable() bool                      { return a.setter != nil }
func (funcAccessor) needsAddr() bool                       { return true }

func newFuncAccessor[T, F any](get func(*T) F, set func(*T, F)) funcAccessor {
	a := funcAccessor{
		getter: func(obj reflect.Value) reflect.Value {
			f := get(obj.Addr().Interface().(*T))
			// through a pointer so interface-typed F keeps its static type
			return reflect.ValueOf(&f).Elem()
		},
	}
	if set != nil {
		a.setter = func(obj, v reflect.Value) {
			var f F
			reflect.ValueOf(&f).Elem().Set(v)
			set(obj.Addr().Interface().(*T), f)
		}
	}
	return a
}

// embeddedAccessor reaches an inherited closure-bound member through the
// embedded base struct (or pointer) at field index.
type embeddedAccessor struct {
	index int
	typ   reflect.Type
	inner accessor
}

func (a embeddedAccessor) base(obj reflect.Value, alloc bool) (reflect.Value, bool) {
	v := obj.Field(a.index)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			if !alloc {
				return reflect.Value{}, false
			}
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v, true
}

func (a embeddedAccessor) get(obj reflect.Value) reflect.Value {
	b, ok := a.base(obj, false)
	if !ok {
		return reflect.Zero(a.typ)
	}
	return a.inner.get(b)
}

func (a embeddedAccessor) set(obj, v reflect.Value) {
	b, _ := a.base(obj, true)
	a.inner.set(b, v)
}

func (a embeddedAccessor) settable() bool  { return a.inner.settable() }
func (a embeddedAccessor) needsAddr() bool { return a.inner.needsAddr() }

// inherit rebinds acc, which addresses a member of a base struct, to the
// struct embedding that base at field index.
func inherit(acc accessor, index int, memberType reflect.Type) accessor {
	if fa, ok := acc.(fieldAccessor); ok {
		path := append([]int{index}, fa.index...)
		return fieldAccessor{index: path, typ: fa.typ}
	}
	return embeddedAccessor{index: index, typ: memberType, inner: acc}
}

// inheritPredicate rebinds a should-serialize predicate of the base struct to
// the struct embedding it at field index. A nil embedded pointer is seen as a
// zero base.
func inheritPredicate(pred func(reflect.Value) bool, index int, baseType reflect.Type) func(reflect.Value) bool {
	ea := embeddedAccessor{index: index}
	return func(obj reflect.Value) bool {
		b, ok := ea.base(obj, false)
		if !ok {
			b = reflect.New(baseType).Elem()
		}
		return pred(b)
	}
}
