// Package docmap maps typed Go values to and from BSON documents.
//
// - Class maps (package classmap) describe how a Go struct type is laid out on
// the wire: element names, order, required elements, defaults, ids, extra
// element bags, creators and discriminators for polymorphic hierarchies.
// - The codec engine (package codec) decodes and encodes documents in a single
// pass over the wire, using a per-class name trie and a bitset to enforce
// required elements and apply defaults without per-field map lookups.
// - A stable error model via Error (kind, code, type, member, element, cause).
//
// Design policy:
// - Keep only shared types in the root package; put detailed implementations under internal/.
// - Class maps are configured once, then frozen; frozen maps are safe for concurrent use.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	reg := classmap.NewRegistry()
//	classmap.AutoRegister[Point](reg)
//	eng, err := codec.New(reg)
//	data, err := codec.Marshal(eng, Point{X: 1, Y: 2})
//	p, err := codec.Unmarshal[Point](eng, data)
package docmap
