// Package trie resolves element names to member indices.
//
// A Trie is built once per class and is immutable afterwards, so lookups need
// no synchronization. Lookup walks one node per input byte and stops at the
// first byte with no edge; it never allocates.
package trie

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
)

// ErrDuplicate is returned by New when two names are equal.
var ErrDuplicate = errors.New("trie: duplicate name")

type node struct {
	value int32  // -1 when no name ends here
	keys  []byte // sorted edge labels
	next  []int32
}

// Trie maps byte strings to the index they were given at construction.
type Trie struct {
	nodes []node
}

// Entry maps Name to Value.
type Entry struct {
	Name  string
	Value int
}

// New builds a Trie mapping names[i] to i.
func New(names []string) (*Trie, error) {
	entries := make([]Entry, len(names))
	for i, n := range names {
		entries[i] = Entry{Name: n, Value: i}
	}
	return FromEntries(entries)
}

// FromEntries builds a Trie from explicit name/value pairs. Values must be
// non-negative.
func FromEntries(entries []Entry) (*Trie, error) {
	t := &Trie{nodes: make([]node, 1, len(entries)*4+1)}
	t.nodes[0].value = -1
	for _, e := range entries {
		if e.Value < 0 {
			return nil, fmt.Errorf("trie: negative value for %q", e.Name)
		}
		n := int32(0)
		for j := 0; j < len(e.Name); j++ {
			n = t.child(n, e.Name[j])
		}
		if t.nodes[n].value >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, e.Name)
		}
		t.nodes[n].value = int32(e.Value)
	}
	return t, nil
}

func (t *Trie) child(n int32, c byte) int32 {
	nd := &t.nodes[n]
	i, found := slices.BinarySearch(nd.keys, c)
	if found {
		return nd.next[i]
	}
	id := int32(len(t.nodes))
	nd.keys = slices.Insert(nd.keys, i, c)
	nd.next = slices.Insert(nd.next, i, id)
	t.nodes = append(t.nodes, node{value: -1})
	return id
}

// Lookup returns the index registered for name. Unmatched names are a normal
// outcome and report false.
func (t *Trie) Lookup(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	n := int32(0)
	for i := 0; i < len(name); i++ {
		nd := &t.nodes[n]
		j := bytes.IndexByte(nd.keys, name[i])
		if j < 0 {
			return 0, false
		}
		n = nd.next[j]
	}
	v := t.nodes[n].value
	return int(v), v >= 0
}

// Len returns the number of nodes, including the root.
func (t *Trie) Len() int { return len(t.nodes) }
