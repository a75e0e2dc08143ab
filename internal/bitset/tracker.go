// Package bitset records which members of a class a document has supplied.
package bitset

import (
	"iter"
	"math/bits"
)

// Tracker is a fixed-size bitset sized to a member count. Bits beyond the
// count are set at Reset so full words can be skipped by the scan.
//
// A Tracker belongs to a single decode call and must not be copied after Reset.
type Tracker struct {
	words  []uint64
	inline [2]uint64
	heap   []uint64
	n      int
}

// Reset clears the tracker and sizes it for n members.
func (t *Tracker) Reset(n int) {
	w := (n + 63) / 64
	if w <= len(t.inline) {
		t.words = t.inline[:w]
	} else {
		if cap(t.heap) < w {
			t.heap = make([]uint64, w)
		}
		t.words = t.heap[:w]
	}
	clear(t.words)
	if r := n % 64; r != 0 {
		t.words[w-1] = ^uint64(0) << r
	}
	t.n = n
}

// Len returns the member count given to Reset.
func (t *Tracker) Len() int { return t.n }

// Set marks member i as supplied.
func (t *Tracker) Set(i int) { t.words[i>>6] |= 1 << (i & 63) }

// IsSet reports whether member i was supplied.
func (t *Tracker) IsSet(i int) bool { return t.words[i>>6]&(1<<(i&63)) != 0 }

// Full reports whether every member was supplied.
func (t *Tracker) Full() bool {
	for _, w := range t.words {
		if w != ^uint64(0) {
			return false
		}
	}
	return true
}

// Unset yields the indices of members not supplied, ascending.
func (t *Tracker) Unset() iter.Seq[int] {
	return func(yield func(int) bool) {
		for wi, w := range t.words {
			for free := ^w; free != 0; free &= free - 1 {
				if !yield(wi<<6 + bits.TrailingZeros64(free)) {
					return
				}
			}
		}
	}
}
