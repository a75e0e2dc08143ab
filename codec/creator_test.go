package codec_test

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/classmap"
	"github.com/reoring/docmap/codec"
)

type Reading struct {
	Sensor  string
	celsius float64
}

func NewReading(sensor string, celsius float64) Reading {
	return Reading{Sensor: sensor, celsius: celsius}
}

func (r Reading) Celsius() float64 { return r.celsius }

type Rect struct{ W, H int }

type Pair struct {
	A, B int
	via  string
}

func (p Pair) Via() string { return p.via }

func pairFrom(via string) func(args []any) (Pair, error) {
	return func(args []any) (Pair, error) {
		p := Pair{via: via}
		for i, a := range args {
			if i == 0 && via != "b" {
				p.A = a.(int)
			} else {
				p.B = a.(int)
			}
		}
		return p, nil
	}
}

func registerClass(c *classmap.Class) func(*classmap.Registry) error {
	return func(r *classmap.Registry) error { return r.Register(c) }
}

func TestReadOnly_PreservedThroughCreator(t *testing.T) {
	b := classmap.New[Reading]()
	b.Map("Sensor")
	classmap.ReadOnly(b, "Celsius", func(r *Reading) float64 { return r.celsius })
	b.CreatorFunc(NewReading, "Sensor", "Celsius")
	e := newEngine(t, nil, registerClass(b.MustBuild()))

	data, err := codec.Marshal(e, NewReading("s1", 21.5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, data, bson.D{{Key: "sensor", Value: "s1"}, {Key: "celsius", Value: 21.5}})

	r, err := codec.Unmarshal[Reading](e, data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Sensor != "s1" || r.Celsius() != 21.5 {
		t.Fatalf("reading = %+v", r)
	}

	_, err = codec.Unmarshal[Reading](e, marshalD(t, bson.D{{Key: "sensor", Value: "s1"}}))
	if !docmap.HasCode(err, docmap.CodeNoCreator) || !errors.Is(err, docmap.ErrConstruction) {
		t.Fatalf("expected no_creator, got %v", err)
	}
}

func TestReadOnly_SkippedWithoutCreator(t *testing.T) {
	e := newEngine(t, nil, auto(func(b *classmap.Builder[Rect]) {
		classmap.ReadOnly(b, "Area", func(r *Rect) int { return r.W * r.H })
	}))

	data, err := codec.Marshal(e, Rect{W: 2, H: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, data, bson.D{{Key: "w", Value: 2}, {Key: "h", Value: 3}, {Key: "area", Value: 6}})

	r, err := codec.Unmarshal[Rect](e, marshalD(t, bson.D{{Key: "w", Value: 2}, {Key: "h", Value: 3}, {Key: "area", Value: 99}}))
	if err != nil || r != (Rect{W: 2, H: 3}) {
		t.Fatalf("rect = %+v, %v", r, err)
	}
}

func TestCreator_Selection(t *testing.T) {
	tests := []struct {
		name     string
		creators map[string][]string
		doc      bson.D
		wantVia  string
		want     Pair
		code     string
	}{
		{
			name:     "largest satisfied creator wins",
			creators: map[string][]string{"a": {"A"}, "ab": {"A", "B"}},
			doc:      bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 2}},
			wantVia:  "ab",
			want:     Pair{A: 1, B: 2},
		},
		{
			name:     "subset when the superset is missing an element",
			creators: map[string][]string{"a": {"A"}, "ab": {"A", "B"}},
			doc:      bson.D{{Key: "a", Value: 1}},
			wantVia:  "a",
			want:     Pair{A: 1},
		},
		{
			name:     "leftover members are assigned",
			creators: map[string][]string{"a": {"A"}},
			doc:      bson.D{{Key: "b", Value: 2}, {Key: "a", Value: 1}},
			wantVia:  "a",
			want:     Pair{A: 1, B: 2},
		},
		{
			name:     "no satisfiable creator",
			creators: map[string][]string{"ab": {"A", "B"}},
			doc:      bson.D{{Key: "b", Value: 2}},
			code:     docmap.CodeNoCreator,
		},
		{
			name:     "ambiguous",
			creators: map[string][]string{"a": {"A"}, "b": {"B"}},
			doc:      bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 2}},
			code:     docmap.CodeAmbiguousCreator,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, nil, auto(func(b *classmap.Builder[Pair]) {
				for via, params := range tt.creators {
					b.Creator(params, pairFrom(via))
				}
			}))
			p, err := codec.Unmarshal[Pair](e, marshalD(t, tt.doc))
			if tt.code != "" {
				if !docmap.HasCode(err, tt.code) {
					t.Fatalf("expected %s, got %v", tt.code, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.Via() != tt.wantVia || p.A != tt.want.A || p.B != tt.want.B {
				t.Fatalf("pair = %+v via %q", p, p.Via())
			}
		})
	}
}

func TestCreator_Failure(t *testing.T) {
	boom := errors.New("boom")
	e := newEngine(t, nil, auto(func(b *classmap.Builder[Pair]) {
		b.Creator([]string{"A"}, func([]any) (Pair, error) { return Pair{}, boom })
	}))
	_, err := codec.Unmarshal[Pair](e, marshalD(t, bson.D{{Key: "a", Value: 1}}))
	if !docmap.HasCode(err, docmap.CodeCreatorFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected creator_failed wrapping boom, got %v", err)
	}
}

func TestCreator_DefaultsFeedParameters(t *testing.T) {
	e := newEngine(t, nil, auto(func(b *classmap.Builder[Pair]) {
		b.Member("B").Default(5)
		b.Creator([]string{"A", "B"}, pairFrom("ab"))
	}))
	p, err := codec.Unmarshal[Pair](e, marshalD(t, bson.D{{Key: "a", Value: 1}}))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Via() != "ab" || p.B != 5 {
		t.Fatalf("pair = %+v via %q", p, p.Via())
	}
}
