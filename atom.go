package deltoid

// AtomDelta is the delta of a leaf value: nil means unchanged, anything
// else replaces the receiver wholesale.
type AtomDelta[T any] struct {
	Value *T `cbor:"v,omitempty"`
}

type atom[T any] struct {
	eq func(a, b T) bool
}

// Atom returns the Differ for a comparable leaf type. The whole value is
// the unit of change; there is no recursion and Apply cannot fail.
func Atom[T comparable]() Differ[T, AtomDelta[T]] {
	return atom[T]{eq: func(a, b T) bool { return a == b }}
}

// AtomFunc is Atom for leaf types that are not comparable with ==, e.g.
// types carrying slices, or floats where NaN handling matters.
func AtomFunc[T any](eq func(a, b T) bool) Differ[T, AtomDelta[T]] {
	return atom[T]{eq: eq}
}

func (t atom[T]) Compute(a, b T) (d AtomDelta[T], _ error) {
	if t.eq(a, b) {
		return
	}
	v := b
	d.Value = &v
	return
}

func (t atom[T]) Apply(base T, d AtomDelta[T]) (T, error) {
	if d.Value == nil {
		return base, nil
	}
	return *d.Value, nil
}

func (t atom[T]) Noop(d AtomDelta[T]) bool {
	return d.Value == nil
}
