package classmap

import (
	"cmp"
	"errors"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/internal/trie"
)

// IDElement is the element name of id members.
const IDElement = "_id"

// Builder configures the Class of struct type T. Configuration is
// single-threaded; Build freezes it. Errors are collected and reported by Err
// and Build.
type Builder[T any] struct {
	typ           reflect.Type
	members       []*Member
	conventions   Conventions
	discriminator string
	discRequired  bool
	rootClass     bool
	ignoreExtra   bool
	convention    DiscriminatorConvention
	base          *Class
	baseIndex     int
	creators      []*Creator
	factory       func() reflect.Value
	errs          []error
	built         bool
}

// New returns a Builder for struct type T with no members mapped.
func New[T any]() *Builder[T] {
	t := reflect.TypeFor[T]()
	b := &Builder[T]{typ: t, baseIndex: -1}
	if t.Kind() != reflect.Struct {
		b.fail(docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidMember, t).
			WithMessage("class maps need a struct type, got %s", t.Kind()))
	}
	return b
}

// MemberStep configures one member. Its methods chain; Map, Member and Build
// forward to the Builder.
type MemberStep[T any] struct {
	b *Builder[T]
	m *Member
}

func (b *Builder[T]) fail(err error) { b.errs = append(b.errs, err) }

func (b *Builder[T]) configErr(code string) *docmap.Error {
	return docmap.NewError(docmap.KindConfiguration, code, b.typ)
}

// frozen records a frozen error when b was already built.
func (b *Builder[T]) frozen() bool {
	if b.built {
		b.fail(b.configErr(docmap.CodeFrozen).WithHint("configure the class before Build"))
	}
	return b.built
}

func (b *Builder[T]) find(name string) *Member {
	for _, m := range b.members {
		if m.name == name {
			return m
		}
	}
	return nil
}

// WithConventions sets the conventions used by AutoMap and Map.
func (b *Builder[T]) WithConventions(c Conventions) *Builder[T] {
	if b.frozen() {
		return b
	}
	b.conventions = c
	if c.IgnoreExtraElements {
		b.ignoreExtra = true
	}
	if c.Discriminator != nil && b.convention == nil {
		b.convention = c.Discriminator
	}
	return b
}

// Map maps the exported field name (promoted fields of embedded structs
// included) and returns its step. Mapping an already mapped member returns
// its existing step.
func (b *Builder[T]) Map(name string) *MemberStep[T] {
	if b.frozen() {
		return &MemberStep[T]{b: b}
	}
	if m := b.find(name); m != nil {
		m.auto = false
		return &MemberStep[T]{b: b, m: m}
	}
	if b.typ.Kind() != reflect.Struct {
		return &MemberStep[T]{b: b}
	}
	sf, ok := b.typ.FieldByName(name)
	if !ok || !sf.IsExported() {
		b.fail(b.configErr(docmap.CodeInvalidMember).WithMember(name).
			WithMessage("%s has no exported field %s", b.typ, name))
		return &MemberStep[T]{b: b}
	}
	m, err := b.fieldMember(sf)
	if err != nil {
		b.fail(err)
		return &MemberStep[T]{b: b}
	}
	if m == nil {
		// disabled by tag; an explicit Map still maps it
		m = &Member{name: sf.Name, element: b.conventions.elementName(sf.Name), typ: sf.Type, order: Unordered,
			acc: fieldAccessor{index: sf.Index, typ: sf.Type}}
	}
	b.members = append(b.members, m)
	return &MemberStep[T]{b: b, m: m}
}

// MapField maps the field addressed by selector.
func MapField[T, F any](b *Builder[T], selector func(*T) *F) *MemberStep[T] {
	return b.Map(docmap.MemberOf(selector))
}

// Member returns the step of an already mapped member.
func (b *Builder[T]) Member(name string) *MemberStep[T] {
	if b.frozen() {
		return &MemberStep[T]{b: b}
	}
	m := b.find(name)
	if m == nil {
		b.fail(b.configErr(docmap.CodeInvalidMember).WithMember(name).WithMessage("member %s is not mapped", name))
	}
	return &MemberStep[T]{b: b, m: m}
}

// Unmap removes a mapped member.
func (b *Builder[T]) Unmap(name string) *Builder[T] {
	if b.frozen() {
		return b
	}
	b.members = slices.DeleteFunc(b.members, func(m *Member) bool { return m.name == name })
	return b
}

// MapID maps name as the id member, written as "_id".
func (b *Builder[T]) MapID(name string) *MemberStep[T] { return b.Map(name).ID() }

// MapExtraElements maps name as the bag collecting unmapped elements.
func (b *Builder[T]) MapExtraElements(name string) *MemberStep[T] { return b.Map(name).ExtraElements() }

// Property maps a member read and written through typed closures. A nil set
// makes the member read-only.
func Property[T, F any](b *Builder[T], name string, get func(*T) F, set func(*T, F)) *MemberStep[T] {
	if b.frozen() {
		return &MemberStep[T]{b: b}
	}
	if get == nil {
		b.fail(b.configErr(docmap.CodeInvalidMember).WithMember(name).WithMessage("property %s has no getter", name))
		return &MemberStep[T]{b: b}
	}
	if b.find(name) != nil {
		b.fail(b.configErr(docmap.CodeInvalidMember).WithMember(name).WithMessage("member %s is already mapped", name))
		return &MemberStep[T]{b: b}
	}
	ft := reflect.TypeFor[F]()
	m := &Member{
		name:    name,
		element: b.conventions.elementName(name),
		typ:     ft,
		order:   Unordered,
		acc:     newFuncAccessor(get, set),
	}
	b.members = append(b.members, m)
	return &MemberStep[T]{b: b, m: m}
}

// ReadOnly maps a getter-only member. It is written on encode and never
// assigned on decode; creators may consume it.
func ReadOnly[T, F any](b *Builder[T], name string, get func(*T) F) *MemberStep[T] {
	return Property(b, name, get, nil)
}

// SetDiscriminator sets the discriminator value (default: the type name).
func (b *Builder[T]) SetDiscriminator(v string) *Builder[T] {
	if !b.frozen() {
		b.discriminator = v
	}
	return b
}

// SetDiscriminatorIsRequired makes encode always write the discriminator.
func (b *Builder[T]) SetDiscriminatorIsRequired(v bool) *Builder[T] {
	if !b.frozen() {
		b.discRequired = v
	}
	return b
}

// SetRootClass marks T as the root of a hierarchy; T and every class
// inheriting from it always write a discriminator.
func (b *Builder[T]) SetRootClass(v bool) *Builder[T] {
	if !b.frozen() {
		b.rootClass = v
	}
	return b
}

// SetIgnoreExtraElements makes decode skip unmapped elements instead of
// failing. An extra-elements member takes precedence.
func (b *Builder[T]) SetIgnoreExtraElements(v bool) *Builder[T] {
	if !b.frozen() {
		b.ignoreExtra = v
	}
	return b
}

// SetDiscriminatorConvention overrides the convention for T.
func (b *Builder[T]) SetDiscriminatorConvention(c DiscriminatorConvention) *Builder[T] {
	if !b.frozen() {
		b.convention = c
	}
	return b
}

// Factory sets the function producing instances before members are assigned.
func (b *Builder[T]) Factory(fn func() T) *Builder[T] {
	if b.frozen() || fn == nil {
		return b
	}
	b.factory = func() reflect.Value {
		v := reflect.New(b.typ).Elem()
		x := fn()
		v.Set(reflect.ValueOf(&x).Elem())
		return v
	}
	return b
}

// Inherit links T to the hierarchy of base. When T embeds base's struct type
// (directly or through a pointer), base's members are mapped into T through
// the embedded field; members of T with the same element name override them.
func (b *Builder[T]) Inherit(base *Class) *Builder[T] {
	if b.frozen() {
		return b
	}
	if !base.Frozen() {
		b.fail(b.configErr(docmap.CodeNotFrozen).WithMessage("base class is not built"))
		return b
	}
	b.base = base
	b.baseIndex = -1
	if b.typ.Kind() != reflect.Struct {
		return b
	}
	for i := 0; i < b.typ.NumField(); i++ {
		sf := b.typ.Field(i)
		if !sf.Anonymous || (sf.Type != base.typ && sf.Type != reflect.PointerTo(base.typ)) {
			continue
		}
		if !sf.IsExported() && (sf.Type.Kind() == reflect.Pointer || base.needsAddr) {
			b.fail(b.configErr(docmap.CodeInvalidMember).WithMember(sf.Name).
				WithMessage("embedded %s must be exported to inherit its members", sf.Type))
			return b
		}
		b.baseIndex = i
		break
	}
	return b
}

// Creator adds a creator consuming the named members, in order.
func (b *Builder[T]) Creator(params []string, fn func(args []any) (T, error)) *Builder[T] {
	if b.frozen() {
		return b
	}
	if fn == nil {
		b.fail(b.configErr(docmap.CodeInvalidCreator).WithMessage("nil creator"))
		return b
	}
	b.creators = append(b.creators, &Creator{params: slices.Clone(params), invoke: anyCreator(fn)})
	return b
}

// CreatorFunc adds a plain function as a creator. fn takes the named members
// as arguments and returns T or *T, optionally with an error; its signature is
// checked at Build.
func (b *Builder[T]) CreatorFunc(fn any, params ...string) *Builder[T] {
	if b.frozen() {
		return b
	}
	b.creators = append(b.creators, &Creator{params: slices.Clone(params), fn: reflect.ValueOf(fn)})
	return b
}

// Err returns the configuration errors collected so far.
func (b *Builder[T]) Err() error { return errors.Join(b.errs...) }

// MustBuild is like Build but panics on error.
func (b *Builder[T]) MustBuild() *Class {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// Build validates the configuration and returns the frozen Class. Any later
// configuration call on b records a frozen error.
func (b *Builder[T]) Build() (*Class, error) {
	if b.frozen() {
		return nil, b.Err()
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	members := b.assemble()

	var errs []error
	c := &Class{
		typ:           b.typ,
		idIdx:         -1,
		extraIdx:      -1,
		discriminator: b.discriminator,
		discRequired:  b.discRequired,
		rootClass:     b.rootClass,
		base:          b.base,
		convention:    b.convention,
		ignoreExtra:   b.ignoreExtra,
		factory:       b.factory,
		frozen:        true,
	}
	if c.discriminator == "" {
		c.discriminator = b.typ.Name()
	}
	if c.convention == nil {
		if b.base != nil {
			c.convention = b.base.convention
		} else {
			c.convention = ScalarConvention(DefaultDiscriminatorElement)
		}
	}

	entries := make([]trie.Entry, 0, len(members)+1)
	for i, m := range members {
		m.index = i
		if err := b.finishMember(m); err != nil {
			errs = append(errs, err)
			continue
		}
		if m.acc.needsAddr() || m.shouldWrite != nil {
			c.needsAddr = true
		}
		switch {
		case m.isID:
			if c.idIdx >= 0 {
				errs = append(errs, b.configErr(docmap.CodeInvalidID).WithMember(m.name).
					WithMessage("members %s and %s are both ids", members[c.idIdx].name, m.name))
			}
			c.idIdx = i
		case m.extra:
			if c.extraIdx >= 0 {
				errs = append(errs, b.configErr(docmap.CodeInvalidMember).WithMember(m.name).
					WithMessage("members %s and %s both collect extra elements", members[c.extraIdx].name, m.name))
			}
			c.extraIdx = i
		}
		if !m.extra {
			entries = append(entries, trie.Entry{Name: m.element, Value: i})
		}
	}
	entries = append(entries, trie.Entry{Name: c.convention.ElementName(), Value: len(members)})
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := b.buildNames(c, entries, len(members)); err != nil {
		return nil, err
	}
	c.members = members
	c.encodeOrder = make([]int, 0, len(members))
	for i, m := range members {
		if !m.extra {
			c.encodeOrder = append(c.encodeOrder, i)
		}
	}
	slices.SortStableFunc(c.encodeOrder, func(x, y int) int { return cmp.Compare(members[x].order, members[y].order) })
	if c.extraIdx >= 0 {
		c.encodeOrder = append(c.encodeOrder, c.extraIdx)
	}

	creators, err := b.buildCreators(members)
	if err != nil {
		return nil, err
	}
	c.creators = creators
	b.built = true
	return c, nil
}

// assemble returns copies of the inherited members followed by T's own
// members. Auto-mapped members reached through the embedded base are replaced
// by the inherited ones; own members override inherited ones by element name.
func (b *Builder[T]) assemble() []*Member {
	own := make([]*Member, 0, len(b.members))
	for _, m := range b.members {
		if b.baseIndex >= 0 && m.auto && underIndex(m.acc, b.baseIndex) {
			continue
		}
		cp := *m
		own = append(own, &cp)
	}
	if b.base == nil || b.baseIndex < 0 {
		return own
	}
	out := make([]*Member, 0, len(b.base.members)+len(own))
	for _, bm := range b.base.members {
		if slices.ContainsFunc(own, func(m *Member) bool { return m.element == bm.element || m.name == bm.name }) {
			continue
		}
		cp := *bm
		cp.acc = inherit(bm.acc, b.baseIndex, bm.typ)
		if bm.shouldWrite != nil {
			cp.shouldWrite = inheritPredicate(bm.shouldWrite, b.baseIndex, b.base.typ)
		}
		cp.inherited = true
		out = append(out, &cp)
	}
	return append(out, own...)
}

func underIndex(acc accessor, index int) bool {
	fa, ok := acc.(fieldAccessor)
	return ok && len(fa.index) > 1 && fa.index[0] == index
}

// finishMember validates m and resolves its default and id generator.
func (b *Builder[T]) finishMember(m *Member) error {
	wrap := func(err error) error {
		if de, ok := docmap.AsError(err); ok && de.Type == nil {
			de.Type = b.typ
			de.Member = m.name
			return de
		}
		return err
	}
	if m.element == "" || strings.IndexByte(m.element, 0) >= 0 {
		return b.configErr(docmap.CodeInvalidMember).WithMember(m.name).
			WithMessage("invalid element name %q", m.element)
	}
	if m.ignoreIfNull && m.ignoreIfDefault {
		return b.configErr(docmap.CodeConflictingIgnore).WithMember(m.name).WithElement(m.element)
	}
	if m.extra {
		if !isBagType(m.typ) {
			return b.configErr(docmap.CodeInvalidMember).WithMember(m.name).
				WithMessage("extra elements member must be bson.D or a string-keyed map, got %s", m.typ)
		}
		if m.IsReadOnly() {
			return b.configErr(docmap.CodeInvalidMember).WithMember(m.name).
				WithMessage("extra elements member must be settable")
		}
	}
	if m.isID && m.idGen == nil {
		m.idGen = defaultIDGenerator(m.typ)
	}
	if m.codec != nil {
		if tc, ok := m.codec.(TypedCodec); ok && tc.ValueType() != m.typ {
			return b.configErr(docmap.CodeInvalidCodec).WithMember(m.name).
				WithMessage("codec handles %s, member is %s", tc.ValueType(), m.typ)
		}
	}
	switch {
	case m.defaultFunc != nil:
		m.hasDefault = true
	case m.textDefault:
		v, err := parseDefault(m.defaultText, m.typ)
		if err != nil {
			return wrap(err)
		}
		m.hasDefault, m.defaultValue = true, v
	case m.hasDefault:
		v, err := convertDefault(m.defaultAny, m.typ)
		if err != nil {
			return wrap(err)
		}
		m.defaultValue = v
	}
	return nil
}

func (b *Builder[T]) buildNames(c *Class, entries []trie.Entry, discSlot int) error {
	t, err := trie.FromEntries(entries)
	if err == nil {
		c.names = t
		return nil
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			de := b.configErr(docmap.CodeDuplicateElement).WithElement(e.Name)
			if e.Value == discSlot {
				de.WithHint("the discriminator element uses this name")
			}
			return de.WithCause(err)
		}
		seen[e.Name] = true
	}
	return b.configErr(docmap.CodeDuplicateElement).WithCause(err)
}

func (b *Builder[T]) buildCreators(members []*Member) ([]*Creator, error) {
	out := make([]*Creator, 0, len(b.creators))
	for _, cr := range b.creators {
		c := *cr
		c.indices = make([]int, len(c.params))
		params := make([]*Member, len(c.params))
		for i, p := range c.params {
			j := slices.IndexFunc(members, func(m *Member) bool { return m.name == p })
			if j < 0 {
				return nil, b.configErr(docmap.CodeInvalidCreator).WithMember(p).
					WithMessage("creator parameter %s is not a mapped member", p)
			}
			c.indices[i], params[i] = j, members[j]
		}
		if c.fn.IsValid() {
			inv, err := funcCreator(c.fn, b.typ, params)
			if err != nil {
				return nil, b.configErr(docmap.CodeInvalidCreator).WithCause(err)
			}
			c.invoke = inv
		}
		for _, prev := range out {
			if sameParams(prev.indices, c.indices) {
				return nil, b.configErr(docmap.CodeInvalidCreator).
					WithMessage("two creators take the same parameters %v", c.params)
			}
		}
		out = append(out, &c)
	}
	return out, nil
}

// ----- MemberStep methods -----

func (s *MemberStep[T]) ok() bool { return s.m != nil && !s.b.frozen() }

// Element sets the element name.
func (s *MemberStep[T]) Element(name string) *MemberStep[T] {
	if s.ok() {
		s.m.element = name
	}
	return s
}

// Order sets the encode order; lower orders are written first.
func (s *MemberStep[T]) Order(n int) *MemberStep[T] {
	if s.ok() {
		s.m.order = n
	}
	return s
}

// Required makes decode fail when the element is missing.
func (s *MemberStep[T]) Required() *MemberStep[T] {
	if s.ok() {
		s.m.required = true
	}
	return s
}

// Optional clears Required.
func (s *MemberStep[T]) Optional() *MemberStep[T] {
	if s.ok() {
		s.m.required = false
	}
	return s
}

// IgnoreIfNull omits the member on encode when it is nil.
func (s *MemberStep[T]) IgnoreIfNull() *MemberStep[T] {
	if s.ok() {
		s.m.ignoreIfNull = true
	}
	return s
}

// IgnoreIfDefault omits the member on encode when it equals its default (or
// zero).
func (s *MemberStep[T]) IgnoreIfDefault() *MemberStep[T] {
	if s.ok() {
		s.m.ignoreIfDefault = true
	}
	return s
}

// Default sets the value applied when the element is missing. It is converted
// to the member type at Build. Reference values (maps, slices, pointers) are
// shared by every decoded instance; use DefaultFunc for fresh ones.
func (s *MemberStep[T]) Default(v any) *MemberStep[T] {
	if s.ok() {
		s.m.hasDefault, s.m.defaultAny, s.m.defaultFunc, s.m.textDefault = true, v, nil, false
	}
	return s
}

// DefaultFunc sets a factory invoked each time a default is needed.
func (s *MemberStep[T]) DefaultFunc(fn func() any) *MemberStep[T] {
	if s.ok() && fn != nil {
		s.m.defaultFunc, s.m.textDefault = fn, false
	}
	return s
}

// ShouldSerialize sets a predicate consulted on encode after the ignore
// policy; the member is left out when fn returns false.
func (s *MemberStep[T]) ShouldSerialize(fn func(v *T) bool) *MemberStep[T] {
	if !s.ok() {
		return s
	}
	if fn == nil {
		s.m.shouldWrite = nil
		return s
	}
	s.m.shouldWrite = func(obj reflect.Value) bool { return fn(obj.Addr().Interface().(*T)) }
	return s
}

// Codec sets the value codec of the member.
func (s *MemberStep[T]) Codec(c ValueCodec) *MemberStep[T] {
	if s.ok() {
		s.m.codec = c
	}
	return s
}

// ID makes the member the id, written as "_id".
func (s *MemberStep[T]) ID() *MemberStep[T] {
	if s.ok() {
		s.m.isID, s.m.element = true, IDElement
	}
	return s
}

// IDGenerator sets the generator used when the id is empty.
func (s *MemberStep[T]) IDGenerator(g IDGenerator) *MemberStep[T] {
	if s.ok() {
		s.m.idGen = g
	}
	return s
}

// ExtraElements makes the member collect unmapped elements.
func (s *MemberStep[T]) ExtraElements() *MemberStep[T] {
	if s.ok() {
		s.m.extra = true
	}
	return s
}

// Map, Member, Builder, Build and MustBuild continue on the builder.

func (s *MemberStep[T]) Map(name string) *MemberStep[T]    { return s.b.Map(name) }
func (s *MemberStep[T]) Member(name string) *MemberStep[T] { return s.b.Member(name) }
func (s *MemberStep[T]) Builder() *Builder[T]              { return s.b }
func (s *MemberStep[T]) Build() (*Class, error)            { return s.b.Build() }
func (s *MemberStep[T]) MustBuild() *Class                 { return s.b.MustBuild() }

// parseDefault parses a textual default (from a tag or an override file) into
// the member type. Only string, bool and numeric kinds have a text form.
func parseDefault(s string, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	var err error
	switch t.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		var x bool
		if x, err = strconv.ParseBool(s); err == nil {
			v.SetBool(x)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var x int64
		if x, err = strconv.ParseInt(s, 10, t.Bits()); err == nil {
			v.SetInt(x)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var x uint64
		if x, err = strconv.ParseUint(s, 10, t.Bits()); err == nil {
			v.SetUint(x)
		}
	case reflect.Float32, reflect.Float64:
		var x float64
		if x, err = strconv.ParseFloat(s, t.Bits()); err == nil {
			v.SetFloat(x)
		}
	default:
		return reflect.Value{}, docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidDefault, nil).
			WithMessage("text default %q for %s; use Default or DefaultFunc", s, t)
	}
	if err != nil {
		return reflect.Value{}, docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidDefault, nil).
			WithMessage("cannot parse %q as %s", s, t).WithCause(err)
	}
	return v, nil
}
