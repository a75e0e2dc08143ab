package codec_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/classmap"
	"github.com/reoring/docmap/codec"
)

type Point struct {
	X, Y  int
	Label string
}

type Frame struct {
	Origin *Point
	Center Point
}

type Doc struct {
	Name  string
	Extra bson.D `docmap:"extra"`
}

type Loose struct {
	Name string
	Rest map[string]any `docmap:"extra"`
}

func auto[T any](configure ...func(*classmap.Builder[T])) func(*classmap.Registry) error {
	return func(r *classmap.Registry) error {
		_, err := classmap.AutoRegister(r, configure...)
		return err
	}
}

func pointClass(b *classmap.Builder[Point]) {
	b.Member("Y").Required()
	b.Member("Label").Default("origin")
}

func newEngine(t *testing.T, opts []codec.Option, regs ...func(*classmap.Registry) error) *codec.Engine {
	t.Helper()
	r := classmap.NewRegistry()
	for _, reg := range regs {
		if err := reg(r); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	e, err := codec.New(r, opts...)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func marshalD(t *testing.T, d bson.D) []byte {
	t.Helper()
	b, err := bson.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func sameDoc(t *testing.T, got []byte, want bson.D) {
	t.Helper()
	wb := marshalD(t, want)
	if !bytes.Equal(got, wb) {
		t.Fatalf("document mismatch\n got: %s\nwant: %s", bson.Raw(got), bson.Raw(wb))
	}
}

func TestDecode_DefaultsAndRequired(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass))

	p, err := codec.Unmarshal[Point](e, marshalD(t, bson.D{{Key: "y", Value: 5}}))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(Point{Y: 5, Label: "origin"}, p); diff != "" {
		t.Fatalf("point (-want +got):\n%s", diff)
	}

	_, err = codec.Unmarshal[Point](e, marshalD(t, bson.D{{Key: "x", Value: 1}}))
	de, ok := docmap.AsError(err)
	if !ok || de.Code != docmap.CodeRequired {
		t.Fatalf("expected required error, got %v", err)
	}
	if de.Member != "Y" || de.Element != "y" || !errors.Is(err, docmap.ErrFormat) {
		t.Fatalf("unexpected error detail: %+v", de)
	}
}

func TestRoundTrip_EncodeOrder(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass))
	in := Point{X: 1, Y: 2, Label: "a"}

	data, err := codec.Marshal(e, in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, data, bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 2}, {Key: "label", Value: "a"}})

	out, err := codec.Unmarshal[Point](e, data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_OrderedMembers(t *testing.T) {
	e := newEngine(t, nil, auto(func(b *classmap.Builder[Point]) {
		b.Member("Label").Order(0)
		b.Member("Y").Order(1)
	}))
	data, err := codec.Marshal(e, Point{X: 1, Y: 2, Label: "a"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, data, bson.D{{Key: "label", Value: "a"}, {Key: "y", Value: 2}, {Key: "x", Value: 1}})
}

type pointYLX struct {
	Y     int
	Label string
	X     int
}

type pointLXY struct {
	Label string
	X, Y  int
}

// roundTripAs encodes in, decodes it back as T and as Point, and returns the
// Point.
func roundTripAs[T any](t *testing.T, e *codec.Engine, in T) Point {
	t.Helper()
	data, err := codec.Marshal(e, in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := codec.Unmarshal[T](e, data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
	p, err := codec.Unmarshal[Point](e, data)
	if err != nil {
		t.Fatalf("unmarshal as Point: %v", err)
	}
	return p
}

func TestRoundTrip_DeclarationOrders(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass), auto[pointYLX](), auto[pointLXY]())
	want := Point{X: 1, Y: 2, Label: "a"}
	tests := []struct {
		name string
		run  func(*testing.T) Point
	}{
		{"x y label", func(t *testing.T) Point { return roundTripAs(t, e, want) }},
		{"y label x", func(t *testing.T) Point { return roundTripAs(t, e, pointYLX{Y: 2, Label: "a", X: 1}) }},
		{"label x y", func(t *testing.T) Point { return roundTripAs(t, e, pointLXY{Label: "a", X: 1, Y: 2}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(want, tt.run(t)); diff != "" {
				t.Fatalf("point (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip_OrderPermutations(t *testing.T) {
	plain := newEngine(t, nil, auto(pointClass))
	in := Point{X: 1, Y: 2, Label: "a"}
	for _, order := range [][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}} {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			e := newEngine(t, nil, auto(func(b *classmap.Builder[Point]) {
				pointClass(b)
				b.Member("X").Order(order[0])
				b.Member("Y").Order(order[1])
				b.Member("Label").Order(order[2])
			}))
			data, err := codec.Marshal(e, in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			for _, dec := range []*codec.Engine{e, plain} {
				out, err := codec.Unmarshal[Point](dec, data)
				if err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if diff := cmp.Diff(in, out); diff != "" {
					t.Fatalf("round trip (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestEncode_ShouldSerializePredicate(t *testing.T) {
	e := newEngine(t, nil, auto(func(b *classmap.Builder[Point]) {
		b.Member("Label").ShouldSerialize(func(p *Point) bool { return p.X > 0 })
	}))
	tests := []struct {
		name string
		in   Point
		want bson.D
	}{
		{"accepted", Point{X: 1, Y: 2, Label: "a"}, bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 2}, {Key: "label", Value: "a"}}},
		{"rejected", Point{X: 0, Y: 2, Label: "a"}, bson.D{{Key: "x", Value: 0}, {Key: "y", Value: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Marshal(e, tt.in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			sameDoc(t, data, tt.want)
			// the driver hands over values that are not addressable
			data, err = bson.MarshalWithRegistry(e.Registry(), tt.in)
			if err != nil {
				t.Fatalf("driver marshal: %v", err)
			}
			sameDoc(t, data, tt.want)
		})
	}
}

func TestRoundTrip_IgnoreIfDefaultWithFactory(t *testing.T) {
	e := newEngine(t, nil, auto(func(b *classmap.Builder[Point]) {
		b.Member("X").DefaultFunc(func() any { return 5 }).IgnoreIfDefault()
	}))
	tests := []struct {
		name string
		in   Point
		want bson.D
	}{
		{"zero kept", Point{X: 0, Y: 1, Label: "a"}, bson.D{{Key: "x", Value: 0}, {Key: "y", Value: 1}, {Key: "label", Value: "a"}}},
		{"default left out", Point{X: 5, Y: 1, Label: "a"}, bson.D{{Key: "y", Value: 1}, {Key: "label", Value: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Marshal(e, tt.in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			sameDoc(t, data, tt.want)
			out, err := codec.Unmarshal[Point](e, data)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if diff := cmp.Diff(tt.in, out); diff != "" {
				t.Fatalf("round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDriverRegistry(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass))

	data, err := bson.MarshalWithRegistry(e.Registry(), Point{Y: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var p Point
	if err := bson.UnmarshalWithRegistry(e.Registry(), marshalD(t, bson.D{{Key: "y", Value: 3}}), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Label != "origin" {
		t.Fatalf("driver decode skipped the class map: %+v", p)
	}
	sameDoc(t, data, bson.D{{Key: "x", Value: 0}, {Key: "y", Value: 3}, {Key: "label", Value: ""}})
}

func TestExtraElements_PreservesOrder(t *testing.T) {
	e := newEngine(t, nil, auto[Doc]())
	in := marshalD(t, bson.D{
		{Key: "b", Value: 1},
		{Key: "name", Value: "n"},
		{Key: "a", Value: bson.D{{Key: "z", Value: true}}},
		{Key: "c", Value: "s"},
	})

	d, err := codec.Unmarshal[Doc](e, in)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Doc{Name: "n", Extra: bson.D{
		{Key: "b", Value: int32(1)},
		{Key: "a", Value: bson.D{{Key: "z", Value: true}}},
		{Key: "c", Value: "s"},
	}}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Fatalf("doc (-want +got):\n%s", diff)
	}

	out, err := codec.Marshal(e, d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, out, bson.D{
		{Key: "name", Value: "n"},
		{Key: "b", Value: 1},
		{Key: "a", Value: bson.D{{Key: "z", Value: true}}},
		{Key: "c", Value: "s"},
	})
}

func TestExtraElements_MapBagSorted(t *testing.T) {
	e := newEngine(t, nil, auto[Loose]())
	data, err := codec.Marshal(e, Loose{Name: "n", Rest: map[string]any{"z": "last", "a": int32(2)}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, data, bson.D{{Key: "name", Value: "n"}, {Key: "a", Value: 2}, {Key: "z", Value: "last"}})

	l, err := codec.Unmarshal[Loose](e, data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"z": "last", "a": int32(2)}, l.Rest); diff != "" {
		t.Fatalf("bag (-want +got):\n%s", diff)
	}

	l, err = codec.Unmarshal[Loose](e, marshalD(t, bson.D{{Key: "name", Value: "n"}}))
	if err != nil || l.Rest != nil {
		t.Fatalf("bag must stay nil without extra elements: %v, %v", l.Rest, err)
	}
}

func TestUnknownElement(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass))
	_, err := codec.Unmarshal[Point](e, marshalD(t, bson.D{{Key: "y", Value: 1}, {Key: "w", Value: 2}}))
	de, ok := docmap.AsError(err)
	if !ok || de.Code != docmap.CodeUnknownElement || de.Element != "w" {
		t.Fatalf("expected unknown_element for w, got %v", err)
	}
	if de.Hint == "" {
		t.Fatalf("unknown element error should carry a hint")
	}
}

func TestUnknownElement_Ignored(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newEngine(t, []codec.Option{codec.WithLogger(logger)}, auto(func(b *classmap.Builder[Point]) {
		pointClass(b)
		b.SetIgnoreExtraElements(true)
	}))

	p, err := codec.Unmarshal[Point](e, marshalD(t, bson.D{{Key: "w", Value: bson.A{1, 2}}, {Key: "y", Value: 1}}))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Y != 1 {
		t.Fatalf("y = %d", p.Y)
	}
	if !strings.Contains(buf.String(), "ignored unknown element") || !strings.Contains(buf.String(), "element=w") {
		t.Fatalf("expected debug log, got %q", buf.String())
	}
}

func TestNestedDocumentsAndNull(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass), auto[Frame]())

	f, err := codec.Unmarshal[Frame](e, marshalD(t, bson.D{
		{Key: "origin", Value: nil},
		{Key: "center", Value: bson.D{{Key: "y", Value: 1}}},
	}))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(Frame{Center: Point{Y: 1, Label: "origin"}}, f); diff != "" {
		t.Fatalf("frame (-want +got):\n%s", diff)
	}

	data, err := codec.Marshal(e, Frame{Origin: &Point{Y: 2}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f, err = codec.Unmarshal[Frame](e, data)
	if err != nil || f.Origin == nil || f.Origin.Y != 2 {
		t.Fatalf("pointer member lost: %+v, %v", f.Origin, err)
	}

	_, err = codec.Unmarshal[Frame](e, marshalD(t, bson.D{{Key: "center", Value: nil}}))
	if !docmap.HasCode(err, docmap.CodeMemberDecode) || !docmap.HasCode(err, docmap.CodeUnexpectedType) {
		t.Fatalf("null into a struct member must fail, got %v", err)
	}
}

func TestMemberDecodeError(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass))
	_, err := codec.Unmarshal[Point](e, marshalD(t, bson.D{{Key: "y", Value: "five"}}))
	de, ok := docmap.AsError(err)
	if !ok || de.Code != docmap.CodeMemberDecode {
		t.Fatalf("expected member_decode, got %v", err)
	}
	if de.Member != "Y" || de.Element != "y" {
		t.Fatalf("error names %q/%q", de.Member, de.Element)
	}
	if errors.Unwrap(err) == nil || !errors.Is(err, docmap.ErrFormat) {
		t.Fatalf("member error must wrap its cause and match ErrFormat: %v", err)
	}
}

func TestMalformedInput(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass))
	if _, err := codec.Unmarshal[Point](e, []byte{1, 2}); !docmap.HasCode(err, docmap.CodeMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestEngine_EncodeDecode(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass))

	var buf bsonrw.SliceWriter
	vw, err := bsonrw.NewBSONValueWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Encode(vw, reflect.TypeFor[*Point](), &Point{Y: 4}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := e.Decode(bsonrw.NewBSONDocumentReader(buf), reflect.TypeFor[*Point]())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p, ok := v.(*Point); !ok || p.Y != 4 {
		t.Fatalf("decoded %#v", v)
	}

	if err := e.Encode(vw, reflect.TypeFor[Point](), "x"); !docmap.HasCode(err, docmap.CodeUnexpectedType) {
		t.Fatalf("expected unexpected_type, got %v", err)
	}
	if _, err := e.Decode(bsonrw.NewBSONDocumentReader(buf), reflect.TypeFor[Frame]()); !docmap.HasCode(err, docmap.CodeUnmappedType) {
		t.Fatalf("expected unmapped_type, got %v", err)
	}
	if _, err := codec.Marshal(e, Frame{}); !errors.Is(err, docmap.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := codec.New(nil); !errors.Is(err, docmap.ErrConfiguration) {
		t.Fatalf("nil registry: %v", err)
	}
	r := classmap.NewRegistry()
	if err := r.RegisterInterface(reflect.TypeFor[Shape](), reflect.TypeFor[Circle]()); err != nil {
		t.Fatal(err)
	}
	if _, err := codec.New(r); !docmap.HasCode(err, docmap.CodeUnmappedType) {
		t.Fatalf("expected freeze failure, got %v", err)
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := newEngine(t, nil, auto(pointClass), auto[Frame]())
	data := marshalD(t, bson.D{{Key: "center", Value: bson.D{{Key: "x", Value: 7}, {Key: "y", Value: 1}}}})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := codec.Unmarshal[Frame](e, data)
			if err == nil && f.Center.X != 7 {
				err = errors.New("wrong value")
			}
			if err == nil {
				_, err = codec.Marshal(e, f)
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent use: %v", err)
	}
}
