package classmap

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/reoring/docmap"
)

var tError = reflect.TypeFor[error]()

// Creator constructs an instance from member values.
type Creator struct {
	params  []string
	indices []int
	invoke  func(args []reflect.Value) (reflect.Value, error)
	// fn is the reflected plain function of CreatorFunc; validated at Build.
	fn reflect.Value
}

// Params returns the Go member names the creator consumes, in argument order.
func (c *Creator) Params() []string { return slices.Clone(c.params) }

// Indices returns the member indices of Params.
func (c *Creator) Indices() []int { return slices.Clone(c.indices) }

func (c *Creator) satisfied(present func(int) bool) bool {
	for _, i := range c.indices {
		if !present(i) {
			return false
		}
	}
	return true
}

// Invoke calls the creator with args in parameter order and returns an
// addressable value of the class type.
func (c *Creator) Invoke(args []reflect.Value) (reflect.Value, error) {
	return c.invoke(args)
}

func anyCreator[T any](fn func(args []any) (T, error)) func([]reflect.Value) (reflect.Value, error) {
	return func(args []reflect.Value) (reflect.Value, error) {
		in := make([]any, len(args))
		for i, a := range args {
			in[i] = a.Interface()
		}
		v, err := fn(in)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(reflect.TypeFor[T]()).Elem()
		out.Set(reflect.ValueOf(&v).Elem())
		return out, nil
	}
}

// funcCreator checks fn against the class type t and the parameter member
// types, and returns its invoker. fn returns T or *T, optionally with an error.
func funcCreator(fn reflect.Value, t reflect.Type, params []*Member) (func([]reflect.Value) (reflect.Value, error), error) {
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("creator must be a function, got %s", ft)
	}
	if ft.IsVariadic() || ft.NumIn() != len(params) {
		return nil, fmt.Errorf("creator %s takes %d arguments, %d parameters given", ft, ft.NumIn(), len(params))
	}
	for i, m := range params {
		if !m.typ.AssignableTo(ft.In(i)) {
			return nil, fmt.Errorf("argument %d of %s is %s, member %s is %s", i, ft, ft.In(i), m.name, m.typ)
		}
	}
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == tError:
	default:
		return nil, fmt.Errorf("creator %s must return %s or *%s, optionally with an error", ft, t, t)
	}
	ptr := false
	switch ft.Out(0) {
	case t:
	case reflect.PointerTo(t):
		ptr = true
	default:
		return nil, fmt.Errorf("creator %s must return %s or *%s", ft, t, t)
	}
	return func(args []reflect.Value) (reflect.Value, error) {
		res := fn.Call(args)
		if len(res) == 2 && !res[1].IsNil() {
			return reflect.Value{}, res[1].Interface().(error)
		}
		v := res[0]
		if ptr {
			if v.IsNil() {
				return reflect.Value{}, docmap.NewError(docmap.KindConstruction, docmap.CodeCreatorFailed, t).
					WithMessage("creator returned nil")
			}
			v = v.Elem()
		}
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}, nil
}

// sameParams reports whether a and b name the same members in any order.
func sameParams(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
