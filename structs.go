package deltoid

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/robjtede/deltoid/deltoid_errors"
)

// StructDelta maps field names to encoded child deltas. Fields whose child
// delta is the identity are absent; an empty StructDelta is the no-op.
// Children are kept in canonical encoded form because sibling fields have
// unrelated delta types.
type StructDelta map[string]cbor.RawMessage

// Field is one registered field of a product type. Build one with F.
type Field[T any] struct {
	name    string
	compute func(a, b *T) (cbor.RawMessage, error)
	apply   func(recv *T, raw cbor.RawMessage) error
}

// F registers field name of T, addressed by the accessor get, diffed by ft.
func F[T, FV, D any](name string, get func(*T) *FV, ft Differ[FV, D]) Field[T] {
	return Field[T]{
		name: name,
		compute: func(a, b *T) (cbor.RawMessage, error) {
			child, err := ft.Compute(*get(a), *get(b))
			if err != nil {
				return nil, err
			}
			if ft.Noop(child) {
				return nil, nil
			}
			return encChild(child)
		},
		apply: func(recv *T, raw cbor.RawMessage) error {
			child, err := decChild[D](raw)
			if err != nil {
				return fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
			}
			nv, err := ft.Apply(*get(recv), child)
			if err != nil {
				return err
			}
			*get(recv) = nv
			return nil
		},
	}
}

// Struct is the product composer for T: field-wise recursive deltas, with
// fields addressed by identifier rather than position.
type Struct[T any] struct {
	name   string
	fields []Field[T]
	byName map[string]struct{}
}

// StructOf registers the fields of T once, in declaration order. It panics
// on a duplicate field name since that is a wiring bug, not an input error.
func StructOf[T any](name string, fields ...Field[T]) *Struct[T] {
	s := &Struct[T]{name: name, fields: fields, byName: make(map[string]struct{}, len(fields))}
	for _, f := range fields {
		if _, ok := s.byName[f.name]; ok {
			panic("deltoid: duplicate field " + name + "." + f.name)
		}
		s.byName[f.name] = struct{}{}
	}
	return s
}

func (s *Struct[T]) Compute(a, b T) (StructDelta, error) {
	var d StructDelta
	for _, f := range s.fields {
		raw, err := f.compute(&a, &b)
		if err != nil {
			return nil, deltoid_errors.Nest(err, f.name)
		}
		if raw == nil {
			continue
		}
		if d == nil {
			d = make(StructDelta)
		}
		d[f.name] = raw
	}
	return d, nil
}

func (s *Struct[T]) Apply(base T, d StructDelta) (T, error) {
	for name := range d {
		if _, ok := s.byName[name]; !ok {
			return base, fmt.Errorf("%w: %s has no field %q", deltoid_errors.ErrMissingKey, s.name, name)
		}
	}
	out := base
	for _, f := range s.fields {
		raw, ok := d[f.name]
		if !ok {
			continue
		}
		if err := f.apply(&out, raw); err != nil {
			return base, deltoid_errors.Nest(err, f.name)
		}
	}
	return out, nil
}

func (s *Struct[T]) Noop(d StructDelta) bool {
	return len(d) == 0
}
