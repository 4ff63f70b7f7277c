// Package codec implements a bidirectional, canonical JSON-shaped encoding:
// every sandbox value round-trips, cycles and duplicates collapse through
// $dup back-references, and cross-object references resolve through
// caller-supplied hooks.
//
// No library anywhere in the example pack offers a canonical-order,
// cycle-aware JSON-shaped codec (the closest relative, core/ledger.go,
// uses plain encoding/json + sha256 for its WAL and snapshot framing); this
// package is therefore a hand-rolled tree walker over encoding/json's
// generic decode output.
package codec

import "github.com/runkernel/kernel/internal/sandbox"

// Value is any value the sandbox can hold or the codec can produce.
type Value = sandbox.Value

// PlainArray is a sandbox array. Items holds the dense, contiguous
// elements; Extra holds sparse indices above the dense run and non-index
// properties, exactly as the $arr tag requires. A PlainArray with an
// empty Extra and no gaps encodes as an ordinary JSON array.
type PlainArray struct {
	Items []Value
	Extra map[string]Value // sparse/non-index properties, keyed by string index or name
}

// PlainObject is a sandbox plain object. Fields owning a key that itself
// starts with "$" forces the $obj escaping tag on encode.
type PlainObject struct {
	Fields map[string]Value
}

// Arbitrary is an instance of a deployed sidekick class stored inside a
// jig (the $arb tag): State is the plain-object field snapshot, Class
// is a reference resolved through the EncodeJig/DecodeJig hooks.
type Arbitrary struct {
	Class Value
	State Value
}

// JigRef wraps an opaque reference to another jig. The codec never
// inspects Ref; it only ever passes it to Hooks.EncodeJig and receives the
// result of Hooks.DecodeJig back as a JigRef.
type JigRef struct {
	Ref interface{}
}

// Hooks let the caller (the record engine when building a script, the
// replay pipeline when materializing one) resolve jig references without
// the codec knowing anything about jig identity.
type Hooks struct {
	EncodeJig func(v Value) (ref string, ok bool, err error)
	DecodeJig func(ref string) (Value, error)
}
