package classmap

import (
	"cmp"
	"errors"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/reoring/docmap"
)

// Registry holds frozen classes and the lookup tables of polymorphic decoding.
// Reads are lock-free against an immutable snapshot; writers copy the
// snapshot. Freeze ends configuration.
type Registry struct {
	mu          sync.Mutex // serializes writers
	state       atomic.Pointer[registryState]
	logger      *slog.Logger
	conventions Conventions
	overrides   *Overrides
	applied     map[string]bool
}

type registryState struct {
	frozen          bool
	classes         map[reflect.Type]*Class
	byDiscriminator map[string]reflect.Type
	subtypes        map[reflect.Type][]reflect.Type
	interfaces      map[reflect.Type]reflect.Type
	ifaceConv       map[reflect.Type]DiscriminatorConvention
}

func (s *registryState) clone() *registryState {
	return &registryState{
		frozen:          s.frozen,
		classes:         maps.Clone(s.classes),
		byDiscriminator: maps.Clone(s.byDiscriminator),
		subtypes:        maps.Clone(s.subtypes),
		interfaces:      maps.Clone(s.interfaces),
		ifaceConv:       maps.Clone(s.ifaceConv),
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger receiving registration events at Debug level.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConventions sets the conventions of classes mapped by AutoRegister.
func WithConventions(c Conventions) Option {
	return func(r *Registry) { r.conventions = c }
}

// WithOverrides sets the mapping overrides applied by AutoRegister. Freeze
// fails when an override names a type that was never registered.
func WithOverrides(o *Overrides) Option {
	return func(r *Registry) { r.overrides = o }
}

// NewRegistry returns an empty, unfrozen Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:  slog.New(slog.DiscardHandler),
		applied: map[string]bool{},
	}
	for _, o := range opts {
		o(r)
	}
	r.state.Store(&registryState{
		classes:         map[reflect.Type]*Class{},
		byDiscriminator: map[string]reflect.Type{},
		subtypes:        map[reflect.Type][]reflect.Type{},
		interfaces:      map[reflect.Type]reflect.Type{},
	})
	return r
}

// Logger returns the registry's logger.
func (r *Registry) Logger() *slog.Logger { return r.logger }

// Conventions returns the conventions used by AutoRegister.
func (r *Registry) Conventions() Conventions { return r.conventions }

func (r *Registry) update(fn func(*registryState) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.state.Load()
	if cur.frozen {
		return docmap.NewError(docmap.KindConfiguration, docmap.CodeFrozen, nil).
			WithMessage("registry is frozen")
	}
	next := cur.clone()
	if err := fn(next); err != nil {
		return err
	}
	r.state.Store(next)
	return nil
}

// Register adds a built class.
func (r *Registry) Register(c *Class) error {
	if !c.Frozen() {
		var t reflect.Type
		if c != nil {
			t = c.typ
		}
		return docmap.NewError(docmap.KindConfiguration, docmap.CodeNotFrozen, t)
	}
	err := r.update(func(s *registryState) error {
		if _, dup := s.classes[c.typ]; dup {
			return docmap.NewError(docmap.KindConfiguration, docmap.CodeDuplicateClass, c.typ)
		}
		if !c.IsAnonymous() {
			if other, dup := s.byDiscriminator[c.discriminator]; dup {
				return docmap.NewError(docmap.KindConfiguration, docmap.CodeDuplicateDiscriminator, c.typ).
					WithMessage("discriminator %q is already used by %s", c.discriminator, other).
					WithHint("set a distinct discriminator with SetDiscriminator")
			}
			s.byDiscriminator[c.discriminator] = c.typ
		}
		s.classes[c.typ] = c
		for k := c.base; k != nil; k = k.base {
			s.subtypes[k.typ] = append(slices.Clone(s.subtypes[k.typ]), c.typ)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Debug("registered class",
		"type", c.typ.String(),
		"members", len(c.members),
		"discriminator", c.discriminator,
		"creators", len(c.creators))
	return nil
}

// AutoRegister maps T with AutoMap under the registry's conventions, applies
// the registry's override for T, runs configure, then builds and registers the
// class.
func AutoRegister[T any](r *Registry, configure ...func(*Builder[T])) (*Class, error) {
	b := New[T]().WithConventions(r.conventions).AutoMap()
	if ov, ok := r.overrides.For(b.typ); ok {
		b.Apply(ov)
		r.mu.Lock()
		r.applied[ov.Type] = true
		r.mu.Unlock()
	}
	for _, fn := range configure {
		if fn != nil {
			fn(b)
		}
	}
	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := r.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterInterface makes iface decodable: documents are dispatched on their
// discriminator to registered classes implementing iface. defaultType, when
// not nil, is decoded for documents without a discriminator.
func (r *Registry) RegisterInterface(iface, defaultType reflect.Type) error {
	if iface == nil || iface.Kind() != reflect.Interface {
		return docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidMember, iface).
			WithMessage("RegisterInterface needs an interface type")
	}
	return r.update(func(s *registryState) error {
		s.interfaces[iface] = defaultType
		return nil
	})
}

// Freeze validates cross-class references and ends configuration; later
// Register calls fail with a frozen error. Freezing a frozen registry is a
// no-op.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.state.Load()
	if cur.frozen {
		return nil
	}
	var errs []error
	conv := make(map[reflect.Type]DiscriminatorConvention, len(cur.interfaces))
	for iface, def := range cur.interfaces {
		c, err := r.interfaceConvention(cur, iface)
		if err != nil {
			errs = append(errs, err)
		}
		conv[iface] = c
		if def == nil {
			continue
		}
		if _, ok := cur.classes[def]; !ok {
			errs = append(errs, docmap.NewError(docmap.KindConfiguration, docmap.CodeUnmappedType, def).
				WithMessage("default type of %s is not registered", iface))
			continue
		}
		if !Assignable(def, iface) {
			errs = append(errs, docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidMember, def).
				WithMessage("default type does not implement %s", iface))
		}
	}
	if r.overrides != nil {
		for _, ov := range r.overrides.Classes {
			if !r.applied[ov.Type] {
				errs = append(errs, docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidOverride, nil).
					WithMessage("override for %q matches no auto-registered class", ov.Type))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	next := cur.clone()
	next.frozen = true
	next.ifaceConv = conv
	r.state.Store(next)
	r.logger.Debug("registry frozen", "classes", len(next.classes), "interfaces", len(next.interfaces))
	return nil
}

// interfaceConvention returns the convention shared by the classes
// implementing iface. Classes disagreeing on the discriminator element could
// not be told apart on decode, so they are rejected.
func (r *Registry) interfaceConvention(s *registryState, iface reflect.Type) (DiscriminatorConvention, error) {
	var found *Class
	for _, c := range sortedClasses(s) {
		if c.IsAnonymous() || !Assignable(c.typ, iface) {
			continue
		}
		if found == nil {
			found = c
			continue
		}
		if a, b := found.convention.ElementName(), c.convention.ElementName(); a != b {
			return found.convention, docmap.NewError(docmap.KindConfiguration, docmap.CodeConflictingDiscriminator, iface).
				WithMessage("%s writes discriminators to %q, %s to %q", found.typ, a, c.typ, b).
				WithHint("give every class implementing the interface the same discriminator element")
		}
	}
	if found != nil {
		return found.convention, nil
	}
	if r.conventions.Discriminator != nil {
		return r.conventions.Discriminator, nil
	}
	return ScalarConvention(DefaultDiscriminatorElement), nil
}

// InterfaceConvention returns the discriminator convention used to decode
// values of a registered interface. It is set by Freeze.
func (r *Registry) InterfaceConvention(iface reflect.Type) (DiscriminatorConvention, bool) {
	c, ok := r.state.Load().ifaceConv[iface]
	return c, ok
}

// Frozen reports whether Freeze succeeded.
func (r *Registry) Frozen() bool { return r.state.Load().frozen }

// Class returns the class registered for t.
func (r *Registry) Class(t reflect.Type) (*Class, bool) {
	c, ok := r.state.Load().classes[t]
	return c, ok
}

// TypeForDiscriminator returns the type registered under a discriminator.
func (r *Registry) TypeForDiscriminator(value string) (reflect.Type, bool) {
	t, ok := r.state.Load().byDiscriminator[value]
	return t, ok
}

// DefaultType returns the default type registered for iface.
func (r *Registry) DefaultType(iface reflect.Type) (reflect.Type, bool) {
	t, ok := r.state.Load().interfaces[iface]
	return t, ok && t != nil
}

// HasSubtypes reports whether some registered class inherits from t.
func (r *Registry) HasSubtypes(t reflect.Type) bool {
	return len(r.state.Load().subtypes[t]) > 0
}

// Subtypes returns the registered classes inheriting from t, directly or not.
func (r *Registry) Subtypes(t reflect.Type) []reflect.Type {
	return slices.Clone(r.state.Load().subtypes[t])
}

// Classes returns the registered classes sorted by type name.
func (r *Registry) Classes() []*Class { return sortedClasses(r.state.Load()) }

func sortedClasses(s *registryState) []*Class {
	out := slices.Collect(maps.Values(s.classes))
	slices.SortFunc(out, func(a, b *Class) int { return cmp.Compare(a.typ.String(), b.typ.String()) })
	return out
}

// Interfaces returns the registered interface types sorted by name.
func (r *Registry) Interfaces() []reflect.Type {
	out := slices.Collect(maps.Keys(r.state.Load().interfaces))
	slices.SortFunc(out, func(a, b reflect.Type) int { return cmp.Compare(a.String(), b.String()) })
	return out
}
