// Package lazy holds values computed on first use and published once.
package lazy

import "sync/atomic"

// Cell is a write-once slot. Concurrent first uses may each run compute; the
// first successful result to be published wins and every caller observes it.
// Errors are returned to the caller and never cached.
//
// The zero Cell is empty and ready to use. A Cell must not be copied after
// first use.
type Cell[T any] struct {
	p atomic.Pointer[T]
}

// Get returns the published value, computing and publishing it when empty.
func (c *Cell[T]) Get(compute func() (T, error)) (T, error) {
	if v := c.p.Load(); v != nil {
		return *v, nil
	}
	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	if c.p.CompareAndSwap(nil, &v) {
		return v, nil
	}
	return *c.p.Load(), nil
}

// Load returns the published value, if any.
func (c *Cell[T]) Load() (T, bool) {
	if v := c.p.Load(); v != nil {
		return *v, true
	}
	var zero T
	return zero, false
}
