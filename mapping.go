package deltoid

import (
	"fmt"
	"maps"
	"sort"

	"golang.org/x/exp/constraints"

	"github.com/robjtede/deltoid/deltoid_errors"
)

// MapOp is one operation of a mapping delta, addressed by key.
type MapOp[K comparable, V, D any] struct {
	Kind  OpKind `cbor:"o"`
	Key   K      `cbor:"k"`
	Value *V     `cbor:"v,omitempty"`
	Child *D     `cbor:"d,omitempty"`
}

// MapDelta holds one operation per affected key, in ascending key order.
type MapDelta[K comparable, V, D any] []MapOp[K, V, D]

type mapping[K comparable, V, D any] struct {
	vals Differ[V, D]
	less func(a, b K) bool
}

// MapOf returns the Differ for map[K]V over ordered keys, given the value
// Differ. Delta entries are sorted by key, which keeps the wire form
// deterministic.
func MapOf[K constraints.Ordered, V, D any](vals Differ[V, D]) Differ[map[K]V, MapDelta[K, V, D]] {
	return mapping[K, V, D]{vals: vals, less: func(a, b K) bool { return a < b }}
}

// MapFunc is MapOf for key types with no natural order; less must be a
// strict total order so the delta stays deterministic.
func MapFunc[K comparable, V, D any](vals Differ[V, D], less func(a, b K) bool) Differ[map[K]V, MapDelta[K, V, D]] {
	return mapping[K, V, D]{vals: vals, less: less}
}

func (m mapping[K, V, D]) Compute(a, b map[K]V) (d MapDelta[K, V, D], err error) {
	keys := make([]K, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return m.less(keys[i], keys[j]) })
	for _, k := range keys {
		av, aok := a[k]
		bv, bok := b[k]
		switch {
		case !bok:
			d = append(d, MapOp[K, V, D]{Kind: OpRemove, Key: k})
		case !aok:
			v := bv
			d = append(d, MapOp[K, V, D]{Kind: OpInsert, Key: k, Value: &v})
		default:
			child, cerr := m.vals.Compute(av, bv)
			if cerr != nil {
				return nil, deltoid_errors.Nest(cerr, fmt.Sprint(k))
			}
			if m.vals.Noop(child) {
				continue
			}
			c := child
			d = append(d, MapOp[K, V, D]{Kind: OpEdit, Key: k, Child: &c})
		}
	}
	return
}

func (m mapping[K, V, D]) Apply(base map[K]V, d MapDelta[K, V, D]) (map[K]V, error) {
	out := maps.Clone(base)
	if out == nil && len(d) > 0 {
		out = make(map[K]V, len(d))
	}
	for _, op := range d {
		cur, ok := out[op.Key]
		switch op.Kind {
		case OpInsert:
			if op.Value == nil {
				return base, deltoid_errors.ErrBadDelta
			}
			if ok {
				return base, fmt.Errorf("%w: %v", deltoid_errors.ErrDuplicateKey, op.Key)
			}
			out[op.Key] = *op.Value
		case OpRemove:
			if !ok {
				return base, fmt.Errorf("%w: %v", deltoid_errors.ErrMissingKey, op.Key)
			}
			delete(out, op.Key)
		case OpEdit:
			if op.Child == nil {
				return base, deltoid_errors.ErrBadDelta
			}
			if !ok {
				return base, fmt.Errorf("%w: %v", deltoid_errors.ErrMissingKey, op.Key)
			}
			nv, err := m.vals.Apply(cur, *op.Child)
			if err != nil {
				return base, deltoid_errors.Nest(err, fmt.Sprint(op.Key))
			}
			out[op.Key] = nv
		default:
			return base, deltoid_errors.ErrBadDelta
		}
	}
	return out, nil
}

func (m mapping[K, V, D]) Noop(d MapDelta[K, V, D]) bool {
	return len(d) == 0
}
