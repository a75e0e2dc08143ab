package classmap_test

import (
	"bytes"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/classmap"
)

func TestRegistry_AutoRegisterAndLookup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := classmap.NewRegistry(classmap.WithLogger(logger))

	c, err := classmap.AutoRegister(r, func(b *classmap.Builder[point]) {
		b.Member("Y").Required()
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := r.Class(reflect.TypeFor[point]())
	if !ok || got != c {
		t.Fatalf("Class lookup = %v, %v", got, ok)
	}
	if typ, ok := r.TypeForDiscriminator("point"); !ok || typ != reflect.TypeFor[point]() {
		t.Fatalf("TypeForDiscriminator = %v, %v", typ, ok)
	}
	if y, _ := c.MemberByName("Y"); !y.IsRequired() {
		t.Fatalf("configure callback not applied")
	}
	if !strings.Contains(buf.String(), "registered class") {
		t.Fatalf("expected registration log, got %q", buf.String())
	}
}

func TestRegistry_FreezeEndsConfiguration(t *testing.T) {
	r := classmap.NewRegistry()
	if _, err := classmap.AutoRegister[point](r); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if !r.Frozen() {
		t.Fatalf("registry must report frozen")
	}
	if err := r.Freeze(); err != nil {
		t.Fatalf("second freeze must be a no-op: %v", err)
	}
	_, err := classmap.AutoRegister[tagged](r)
	if !docmap.HasCode(err, docmap.CodeFrozen) {
		t.Fatalf("expected frozen error, got %v", err)
	}
	if _, ok := r.Class(reflect.TypeFor[tagged]()); ok {
		t.Fatalf("frozen registry must not change")
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	type other struct{ A int }

	r := classmap.NewRegistry()
	if err := r.Register(&classmap.Class{}); !docmap.HasCode(err, docmap.CodeNotFrozen) {
		t.Fatalf("expected not_frozen, got %v", err)
	}
	if _, err := classmap.AutoRegister[point](r); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := classmap.AutoRegister[point](r); !docmap.HasCode(err, docmap.CodeDuplicateClass) {
		t.Fatalf("expected duplicate_class, got %v", err)
	}
	_, err := classmap.AutoRegister(r, func(b *classmap.Builder[other]) { b.SetDiscriminator("point") })
	if !docmap.HasCode(err, docmap.CodeDuplicateDiscriminator) {
		t.Fatalf("expected duplicate_discriminator, got %v", err)
	}
}

func TestRegistry_Subtypes(t *testing.T) {
	r := classmap.NewRegistry()
	base, err := classmap.AutoRegister[Animal](r)
	if err != nil {
		t.Fatalf("register base: %v", err)
	}
	if _, err := classmap.AutoRegister(r, func(b *classmap.Builder[Cat]) { b.Inherit(base) }); err != nil {
		t.Fatalf("register cat: %v", err)
	}
	if !r.HasSubtypes(reflect.TypeFor[Animal]()) {
		t.Fatalf("Animal must have subtypes")
	}
	if r.HasSubtypes(reflect.TypeFor[Cat]()) {
		t.Fatalf("Cat has no subtypes")
	}
	if got := r.Subtypes(reflect.TypeFor[Animal]()); len(got) != 1 || got[0] != reflect.TypeFor[Cat]() {
		t.Fatalf("subtypes = %v", got)
	}
	if n := len(r.Classes()); n != 2 {
		t.Fatalf("classes = %d", n)
	}
}

func TestRegistry_InterfaceDefaults(t *testing.T) {
	speakerType := reflect.TypeFor[speaker]()

	r := classmap.NewRegistry()
	if err := r.RegisterInterface(reflect.TypeFor[point](), nil); !docmap.HasCode(err, docmap.CodeInvalidMember) {
		t.Fatalf("non-interface must be rejected, got %v", err)
	}
	if err := r.RegisterInterface(speakerType, reflect.TypeFor[Cat]()); err != nil {
		t.Fatalf("register interface: %v", err)
	}
	err := r.Freeze()
	if !docmap.HasCode(err, docmap.CodeUnmappedType) {
		t.Fatalf("expected unmapped default type, got %v", err)
	}
	if r.Frozen() {
		t.Fatalf("failed freeze must leave the registry open")
	}

	if _, err := classmap.AutoRegister[Cat](r); err != nil {
		t.Fatalf("register cat: %v", err)
	}
	if err := r.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if def, ok := r.DefaultType(speakerType); !ok || def != reflect.TypeFor[Cat]() {
		t.Fatalf("default type = %v, %v", def, ok)
	}
	if got := r.Interfaces(); len(got) != 1 || got[0] != speakerType {
		t.Fatalf("interfaces = %v", got)
	}
	if conv, ok := r.InterfaceConvention(speakerType); !ok || conv.ElementName() != classmap.DefaultDiscriminatorElement {
		t.Fatalf("interface convention = %v, %v", conv, ok)
	}
}

func TestRegistry_DefaultTypeMustImplement(t *testing.T) {
	r := classmap.NewRegistry()
	if _, err := classmap.AutoRegister[point](r); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterInterface(reflect.TypeFor[speaker](), reflect.TypeFor[point]()); err != nil {
		t.Fatalf("register interface: %v", err)
	}
	err := r.Freeze()
	if !docmap.HasCode(err, docmap.CodeInvalidMember) || !errors.Is(err, docmap.ErrConfiguration) {
		t.Fatalf("expected invalid_member, got %v", err)
	}
}

func TestRegistry_ConventionsApplyToAutoRegister(t *testing.T) {
	type profile struct {
		FirstName string
		UserID    int
	}
	r := classmap.NewRegistry(classmap.WithConventions(classmap.Conventions{
		ElementNames:        classmap.SnakeCase,
		IgnoreExtraElements: true,
		IgnoreIfDefault:     true,
	}))
	c, err := classmap.AutoRegister[profile](r)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	first, _ := c.MemberByName("FirstName")
	uid, _ := c.MemberByName("UserID")
	if first.ElementName() != "first_name" || uid.ElementName() != "user_id" {
		t.Fatalf("elements = %q, %q", first.ElementName(), uid.ElementName())
	}
	if !c.IgnoreExtraElements() || !first.IgnoreIfDefault() {
		t.Fatalf("conventions not applied")
	}
}
