package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/pebble"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/reoring/docmap"
	"github.com/reoring/docmap/codec"
)

// Collection stores documents of class type T under one name.
type Collection[T any] struct {
	store  *Store
	name   string
	prefix []byte
	idType reflect.Type
}

// NewCollection returns the collection name of s. T must be a registered
// class with an id member.
func NewCollection[T any](s *Store, name string) (*Collection[T], error) {
	t := reflect.TypeFor[T]()
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return nil, fmt.Errorf("docstore: invalid collection name %q", name)
	}
	dc, ok := s.engine.Codec(t)
	if !ok {
		return nil, docmap.NewError(docmap.KindConfiguration, docmap.CodeUnmappedType, t).
			WithHint("register the type before opening a collection of it")
	}
	m, ok := dc.Class().IDMember()
	if !ok {
		return nil, docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidID, t).
			WithMessage("%s maps no id member", t)
	}
	prefix := append([]byte(name), 0)
	return &Collection[T]{store: s, name: name, prefix: prefix, idType: m.Type()}, nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) key(id any) ([]byte, error) {
	if id == nil || !reflect.TypeOf(id).AssignableTo(c.idType) {
		return nil, docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidID, reflect.TypeFor[T]()).
			WithMessage("id of type %T does not fit %s", id, c.idType)
	}
	t, data, err := bson.MarshalValueWithRegistry(c.store.engine.Registry(), id)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode id: %w", err)
	}
	// the type byte keeps ids of different BSON types apart
	k := make([]byte, 0, len(c.prefix)+1+len(data))
	k = append(k, c.prefix...)
	k = append(k, byte(t))
	k = append(k, data...)
	return k, nil
}

// Put writes v, generating its id first when the id is empty and the class
// has a generator. It returns the id v is stored under.
func (c *Collection[T]) Put(ctx context.Context, v *T) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("docstore: put nil %s", reflect.TypeFor[T]())
	}
	e := c.store.engine
	if _, _, err := e.EnsureID(v); err != nil {
		return nil, err
	}
	info, _, err := e.GetID(v)
	if err != nil {
		return nil, err
	}
	k, err := c.key(info.ID)
	if err != nil {
		return nil, err
	}
	data, err := codec.Marshal(e, *v)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.store.db.Set(k, data, c.store.wo); err != nil {
		return nil, fmt.Errorf("docstore: put %s: %w", c.name, err)
	}
	return info.ID, nil
}

// PutMany writes vs in one atomic batch.
func (c *Collection[T]) PutMany(ctx context.Context, vs []*T) error {
	e := c.store.engine
	b := c.store.db.NewBatch()
	defer b.Close()
	for _, v := range vs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("docstore: put nil %s", reflect.TypeFor[T]())
		}
		if _, _, err := e.EnsureID(v); err != nil {
			return err
		}
		info, _, err := e.GetID(v)
		if err != nil {
			return err
		}
		k, err := c.key(info.ID)
		if err != nil {
			return err
		}
		data, err := codec.Marshal(e, *v)
		if err != nil {
			return err
		}
		if err := b.Set(k, data, nil); err != nil {
			return fmt.Errorf("docstore: put %s: %w", c.name, err)
		}
	}
	if err := b.Commit(c.store.wo); err != nil {
		return fmt.Errorf("docstore: commit %s: %w", c.name, err)
	}
	return nil
}

// Get reads the document stored under id.
func (c *Collection[T]) Get(ctx context.Context, id any) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	k, err := c.key(id)
	if err != nil {
		return zero, err
	}
	data, closer, err := c.store.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return zero, fmt.Errorf("%w: %s %v", ErrNotFound, c.name, id)
	}
	if err != nil {
		return zero, fmt.Errorf("docstore: get %s: %w", c.name, err)
	}
	// decoded raw values may alias the buffer, which pebble reuses after Close
	data = bytes.Clone(data)
	if err := closer.Close(); err != nil {
		return zero, fmt.Errorf("docstore: get %s: %w", c.name, err)
	}
	return codec.Unmarshal[T](c.store.engine, data)
}

// Delete removes the document stored under id. Deleting a missing id is not
// an error.
func (c *Collection[T]) Delete(ctx context.Context, id any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := c.key(id)
	if err != nil {
		return err
	}
	if err := c.store.db.Delete(k, c.store.wo); err != nil {
		return fmt.Errorf("docstore: delete %s: %w", c.name, err)
	}
	return nil
}

// Scan decodes every document of the collection in key order and passes it
// to fn. It stops at the first error from fn or decoding, or when ctx is
// done.
func (c *Collection[T]) Scan(ctx context.Context, fn func(T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	upper := bytes.Clone(c.prefix)
	upper[len(upper)-1] = 1
	it, err := c.store.db.NewIterWithContext(ctx, &pebble.IterOptions{LowerBound: c.prefix, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("docstore: scan %s: %w", c.name, err)
	}
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := it.ValueAndErr()
		if err != nil {
			return fmt.Errorf("docstore: scan %s: %w", c.name, err)
		}
		v, err := codec.Unmarshal[T](c.store.engine, bytes.Clone(data))
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("docstore: scan %s: %w", c.name, err)
	}
	return nil
}
