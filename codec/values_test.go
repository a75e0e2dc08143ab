package codec_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/classmap"
	"github.com/reoring/docmap/codec"
)

type Envelope struct {
	Kind string
	Body bson.RawValue
}

type Token struct {
	ID    uuid.UUID
	Owner uuid.UUID
}

type Event struct {
	Name string
	At   time.Time
}

func TestRawValue(t *testing.T) {
	e := newEngine(t, nil, auto[Envelope]())

	data, err := codec.Marshal(e, Envelope{Kind: "k"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, data, bson.D{{Key: "kind", Value: "k"}, {Key: "body", Value: nil}})

	in := marshalD(t, bson.D{{Key: "kind", Value: "k"}, {Key: "body", Value: bson.D{{Key: "a", Value: 1}}}})
	env, err := codec.Unmarshal[Envelope](e, in)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Body.Type != bsontype.EmbeddedDocument || env.Body.Document().Lookup("a").Int32() != 1 {
		t.Fatalf("body = %v", env.Body)
	}
	out, err := codec.Marshal(e, env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != string(in) {
		t.Fatalf("raw body changed: %s", bson.Raw(out))
	}
}

func TestUUIDCodec(t *testing.T) {
	e := newEngine(t, nil, auto[Token]())
	id, owner := uuid.New(), uuid.New()

	data, err := codec.Marshal(e, Token{ID: id, Owner: owner})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, data, bson.D{
		{Key: "_id", Value: primitive.Binary{Subtype: bsontype.BinaryUUID, Data: id[:]}},
		{Key: "owner", Value: primitive.Binary{Subtype: bsontype.BinaryUUID, Data: owner[:]}},
	})

	tests := []struct {
		name  string
		owner any
		want  uuid.UUID
		code  string
	}{
		{"subtype 4", primitive.Binary{Subtype: bsontype.BinaryUUID, Data: owner[:]}, owner, ""},
		{"legacy subtype 3", primitive.Binary{Subtype: bsontype.BinaryUUIDOld, Data: owner[:]}, owner, ""},
		{"string", owner.String(), owner, ""},
		{"null", nil, uuid.Nil, ""},
		{"generic binary", primitive.Binary{Subtype: bsontype.BinaryGeneric, Data: owner[:]}, uuid.Nil, docmap.CodeUnexpectedType},
		{"bad string", "not-a-uuid", uuid.Nil, docmap.CodeUnexpectedType},
		{"int", int32(4), uuid.Nil, docmap.CodeUnexpectedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := codec.Unmarshal[Token](e, marshalD(t, bson.D{{Key: "_id", Value: id.String()}, {Key: "owner", Value: tt.owner}}))
			if tt.code != "" {
				if !docmap.HasCode(err, tt.code) {
					t.Fatalf("expected %s, got %v", tt.code, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tok.ID != id || tok.Owner != tt.want {
				t.Fatalf("token = %+v", tok)
			}
		})
	}
}

func TestRFC3339Codec(t *testing.T) {
	e := newEngine(t, nil, auto(func(b *classmap.Builder[Event]) {
		b.Member("At").Codec(codec.RFC3339Codec{})
	}))
	at := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.FixedZone("CET", 3600))

	data, err := codec.Marshal(e, Event{Name: "deploy", At: at})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sameDoc(t, data, bson.D{{Key: "name", Value: "deploy"}, {Key: "at", Value: "2024-01-02T02:04:05.006Z"}})

	tests := []struct {
		name string
		at   any
		want time.Time
		code string
	}{
		{"string", "2024-01-02T02:04:05.006Z", at, ""},
		{"offset", "2024-01-02T03:04:05.006+01:00", at, ""},
		{"no fraction", "2024-01-02T02:04:05Z", time.Date(2024, 1, 2, 2, 4, 5, 0, time.UTC), ""},
		{"datetime", primitive.NewDateTimeFromTime(at), at, ""},
		{"null", nil, time.Time{}, ""},
		{"bad string", "yesterday", time.Time{}, docmap.CodeUnexpectedType},
		{"int", int64(1), time.Time{}, docmap.CodeUnexpectedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := codec.Unmarshal[Event](e, marshalD(t, bson.D{{Key: "name", Value: "x"}, {Key: "at", Value: tt.at}}))
			if tt.code != "" {
				if !docmap.HasCode(err, tt.code) {
					t.Fatalf("expected %s, got %v", tt.code, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !ev.At.Equal(tt.want) {
				t.Fatalf("at = %v, want %v", ev.At, tt.want)
			}
		})
	}
}

func TestRFC3339Codec_TypeChecked(t *testing.T) {
	_, err := classmap.New[Point]().AutoMap().Member("Label").Codec(codec.RFC3339Codec{}).Build()
	if !docmap.HasCode(err, docmap.CodeInvalidCodec) {
		t.Fatalf("expected invalid_codec, got %v", err)
	}
}
