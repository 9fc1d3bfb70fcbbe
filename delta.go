// Package deltoid computes structured differences between two values of the
// same composite type. The difference (a delta) is plain serializable data:
// it can be stored or transmitted and applied to the first value much later,
// possibly in another process, to reconstruct the second value.
//
// Every type shape participates through a Differ: atoms (Atom, AtomFunc),
// optionals (Ptr), products (StructOf), tagged unions (UnionOf), sequences
// (Slice), mappings (MapOf, MapFunc) and sets (SetOf, SetFunc). Composers
// recurse into child Differs, so arbitrarily nested values diff one level
// at a time and bottom out at atoms.
//
// Compute never fails for two valid values. Apply fails with a typed error
// from the deltoid_errors package whenever a delta assumes a shape the
// receiver is not in; it never returns a partially patched value.
package deltoid

import (
	"github.com/fxamacker/cbor/v2"
)

// Differ is the participation contract for one type. Compute produces the
// delta turning a into b; Apply combines a base value with such a delta;
// Noop reports whether a delta is the identity.
//
// Implementations are pure: they read only their arguments and never mutate
// them, so independent calls are safe from any number of goroutines.
type Differ[T, D any] interface {
	Compute(a, b T) (D, error)
	Apply(base T, d D) (T, error)
	Noop(d D) bool
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Marshal encodes a value or a delta in the canonical form used throughout
// the engine: deterministic map ordering, RFC3339 timestamps.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data produced by Marshal.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// encChild encodes a child delta for embedding into a parent delta.
func encChild(d any) (cbor.RawMessage, error) {
	raw, err := encMode.Marshal(d)
	if err != nil {
		return nil, err
	}
	return cbor.RawMessage(raw), nil
}

func decChild[D any](raw cbor.RawMessage) (d D, err error) {
	err = decMode.Unmarshal(raw, &d)
	return
}
