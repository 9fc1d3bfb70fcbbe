package deltoid

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/robjtede/deltoid/deltoid_errors"
)

// UnionDelta is the delta of a tagged union. Tag plus Child means "edit
// the payload of variant Tag" and requires the receiver to be in that
// variant; Tag plus Repl means "replace with variant Tag carrying this
// payload" and applies regardless of the receiver's current variant.
// Replacements go through the registered variant machinery so the delta
// stays decodable even when T is an interface type. Whole is the raw
// fallback for a value outside the registered set; it only survives a
// wire round trip when T is a concrete type. The zero UnionDelta is the
// no-op.
type UnionDelta[T any] struct {
	Tag   string          `cbor:"t,omitempty"`
	Child cbor.RawMessage `cbor:"d,omitempty"`
	Repl  cbor.RawMessage `cbor:"v,omitempty"`
	Whole *T              `cbor:"w,omitempty"`
}

// Variant is one registered case of a union type. Build one with V.
type Variant[T any] struct {
	tag     string
	matches func(T) bool
	compute func(a, b T) (cbor.RawMessage, error)
	apply   func(recv T, raw cbor.RawMessage) (T, error)
	project func(v T) (cbor.RawMessage, error)
	rebuild func(raw cbor.RawMessage) (T, error)
}

// V registers a variant: proj extracts the payload and reports whether the
// value is in this variant, inj rebuilds the union value from a payload,
// and pt diffs payloads (a product composer or an atom, typically).
func V[T, P, D any](tag string, proj func(T) (P, bool), inj func(P) T, pt Differ[P, D]) Variant[T] {
	return Variant[T]{
		tag: tag,
		matches: func(v T) bool {
			_, ok := proj(v)
			return ok
		},
		compute: func(a, b T) (cbor.RawMessage, error) {
			pa, _ := proj(a)
			pb, _ := proj(b)
			child, err := pt.Compute(pa, pb)
			if err != nil {
				return nil, err
			}
			if pt.Noop(child) {
				return nil, nil
			}
			return encChild(child)
		},
		apply: func(recv T, raw cbor.RawMessage) (T, error) {
			p, _ := proj(recv)
			child, err := decChild[D](raw)
			if err != nil {
				return recv, fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
			}
			np, err := pt.Apply(p, child)
			if err != nil {
				return recv, err
			}
			return inj(np), nil
		},
		project: func(v T) (cbor.RawMessage, error) {
			p, _ := proj(v)
			return encChild(p)
		},
		rebuild: func(raw cbor.RawMessage) (T, error) {
			p, err := decChild[P](raw)
			if err != nil {
				var zero T
				return zero, fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
			}
			return inj(p), nil
		},
	}
}

// Union is the sum composer for T, with one registered case per variant.
type Union[T any] struct {
	name     string
	variants []Variant[T]
}

// UnionOf registers the closed set of variants of T. Panics on a duplicate
// tag.
func UnionOf[T any](name string, variants ...Variant[T]) *Union[T] {
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		if _, ok := seen[v.tag]; ok {
			panic("deltoid: duplicate variant " + name + "." + v.tag)
		}
		seen[v.tag] = struct{}{}
	}
	return &Union[T]{name: name, variants: variants}
}

func (u *Union[T]) variantOf(v T) (int, bool) {
	for i := range u.variants {
		if u.variants[i].matches(v) {
			return i, true
		}
	}
	return 0, false
}

func (u *Union[T]) variantByTag(tag string) (int, bool) {
	for i := range u.variants {
		if u.variants[i].tag == tag {
			return i, true
		}
	}
	return 0, false
}

// Compute never fails over the variant structure itself: when a and b are
// in different variants the delta replaces through b's registered variant;
// a b matching no registered variant falls back to raw whole-value
// replacement.
func (u *Union[T]) Compute(a, b T) (d UnionDelta[T], err error) {
	ai, aok := u.variantOf(a)
	bi, bok := u.variantOf(b)
	if aok && bok && ai == bi {
		raw, cerr := u.variants[ai].compute(a, b)
		if cerr != nil {
			return d, deltoid_errors.Nest(cerr, u.variants[ai].tag)
		}
		if raw == nil {
			return // same variant, identical payloads
		}
		d.Tag = u.variants[ai].tag
		d.Child = raw
		return
	}
	if bok {
		raw, cerr := u.variants[bi].project(b)
		if cerr != nil {
			return d, deltoid_errors.Nest(cerr, u.variants[bi].tag)
		}
		d.Tag = u.variants[bi].tag
		d.Repl = raw
		return
	}
	r := b
	d.Whole = &r
	return
}

func (u *Union[T]) Apply(base T, d UnionDelta[T]) (T, error) {
	if d.Whole != nil {
		return *d.Whole, nil
	}
	if d.Tag == "" {
		if len(d.Child) != 0 || len(d.Repl) != 0 {
			return base, deltoid_errors.ErrBadDelta
		}
		return base, nil
	}
	if len(d.Repl) != 0 {
		if len(d.Child) != 0 {
			return base, deltoid_errors.ErrBadDelta
		}
		i, ok := u.variantByTag(d.Tag)
		if !ok {
			return base, fmt.Errorf("%w: %s has no variant %q", deltoid_errors.ErrBadDelta, u.name, d.Tag)
		}
		nv, err := u.variants[i].rebuild(d.Repl)
		if err != nil {
			return base, deltoid_errors.Nest(err, d.Tag)
		}
		return nv, nil
	}
	i, ok := u.variantOf(base)
	if !ok || u.variants[i].tag != d.Tag {
		cur := "unregistered"
		if ok {
			cur = u.variants[i].tag
		}
		return base, fmt.Errorf("%w: %s delta edits %s, value is %s",
			deltoid_errors.ErrVariantMismatch, u.name, d.Tag, cur)
	}
	nv, err := u.variants[i].apply(base, d.Child)
	if err != nil {
		return base, deltoid_errors.Nest(err, d.Tag)
	}
	return nv, nil
}

func (u *Union[T]) Noop(d UnionDelta[T]) bool {
	return d.Tag == "" && d.Whole == nil && len(d.Child) == 0 && len(d.Repl) == 0
}
