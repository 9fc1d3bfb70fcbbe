package deltoid

import (
	"fmt"

	"github.com/robjtede/deltoid/deltoid_errors"
)

// OptChange tags a presence transition of an optional value.
type OptChange uint8

const (
	OptUnchanged OptChange = iota
	OptBecameNone
	OptBecameSome
	OptEdited
)

// OptDelta is the delta of an optional value. Exactly one of Value (for
// OptBecameSome) and Child (for OptEdited) is set; presence transitions
// carry no payload delta.
type OptDelta[T, D any] struct {
	Change OptChange `cbor:"c,omitempty"`
	Value  *T        `cbor:"v,omitempty"`
	Child  *D        `cbor:"d,omitempty"`
}

type option[T, D any] struct {
	elem Differ[T, D]
}

// Ptr returns the Differ for a pointer-shaped optional. A nil pointer is
// absence. Transitions across presence always apply; only a payload edit
// (some to some) requires the receiver to currently be present.
func Ptr[T, D any](elem Differ[T, D]) Differ[*T, OptDelta[T, D]] {
	return option[T, D]{elem: elem}
}

func (o option[T, D]) Compute(a, b *T) (d OptDelta[T, D], err error) {
	switch {
	case a == nil && b == nil:
		return
	case b == nil:
		d.Change = OptBecameNone
	case a == nil:
		v := *b
		d.Change = OptBecameSome
		d.Value = &v
	default:
		child, cerr := o.elem.Compute(*a, *b)
		if cerr != nil {
			return d, deltoid_errors.Nest(cerr, "some")
		}
		if o.elem.Noop(child) {
			return
		}
		d.Change = OptEdited
		d.Child = &child
	}
	return
}

func (o option[T, D]) Apply(base *T, d OptDelta[T, D]) (*T, error) {
	switch d.Change {
	case OptUnchanged:
		return base, nil
	case OptBecameNone:
		return nil, nil
	case OptBecameSome:
		if d.Value == nil {
			return base, deltoid_errors.ErrBadDelta
		}
		v := *d.Value
		return &v, nil
	case OptEdited:
		if d.Child == nil {
			return base, deltoid_errors.ErrBadDelta
		}
		if base == nil {
			return base, fmt.Errorf("%w: payload edit of an absent value", deltoid_errors.ErrVariantMismatch)
		}
		nv, err := o.elem.Apply(*base, *d.Child)
		if err != nil {
			return base, deltoid_errors.Nest(err, "some")
		}
		return &nv, nil
	default:
		return base, deltoid_errors.ErrBadDelta
	}
}

func (o option[T, D]) Noop(d OptDelta[T, D]) bool {
	return d.Change == OptUnchanged
}

// Opt is an explicit presence wrapper for places where a pointer is
// inconvenient: value-typed map entries, or wire shapes where nil would be
// ambiguous. The zero Opt is absent.
type Opt[T any] struct {
	Set   bool `cbor:"s,omitempty"`
	Value T    `cbor:"v,omitempty"`
}

func Some[T any](v T) Opt[T] { return Opt[T]{Set: true, Value: v} }

func None[T any]() Opt[T] { return Opt[T]{} }

func (o Opt[T]) Get() (T, bool) { return o.Value, o.Set }

type optval[T, D any] struct {
	elem Differ[T, D]
}

// Option is Ptr for Opt-wrapped optionals; the two share OptDelta, so a
// delta computed over pointers applies to a wrapped value and vice versa.
func Option[T, D any](elem Differ[T, D]) Differ[Opt[T], OptDelta[T, D]] {
	return optval[T, D]{elem: elem}
}

func (o optval[T, D]) Compute(a, b Opt[T]) (d OptDelta[T, D], err error) {
	switch {
	case !a.Set && !b.Set:
		return
	case !b.Set:
		d.Change = OptBecameNone
	case !a.Set:
		v := b.Value
		d.Change = OptBecameSome
		d.Value = &v
	default:
		child, cerr := o.elem.Compute(a.Value, b.Value)
		if cerr != nil {
			return d, deltoid_errors.Nest(cerr, "some")
		}
		if o.elem.Noop(child) {
			return
		}
		d.Change = OptEdited
		d.Child = &child
	}
	return
}

func (o optval[T, D]) Apply(base Opt[T], d OptDelta[T, D]) (Opt[T], error) {
	switch d.Change {
	case OptUnchanged:
		return base, nil
	case OptBecameNone:
		return None[T](), nil
	case OptBecameSome:
		if d.Value == nil {
			return base, deltoid_errors.ErrBadDelta
		}
		return Some(*d.Value), nil
	case OptEdited:
		if d.Child == nil {
			return base, deltoid_errors.ErrBadDelta
		}
		if !base.Set {
			return base, fmt.Errorf("%w: payload edit of an absent value", deltoid_errors.ErrVariantMismatch)
		}
		nv, err := o.elem.Apply(base.Value, *d.Child)
		if err != nil {
			return base, deltoid_errors.Nest(err, "some")
		}
		return Some(nv), nil
	default:
		return base, deltoid_errors.ErrBadDelta
	}
}

func (o optval[T, D]) Noop(d OptDelta[T, D]) bool {
	return d.Change == OptUnchanged
}
