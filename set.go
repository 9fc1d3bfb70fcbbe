package deltoid

import (
	"maps"
	"sort"

	"golang.org/x/exp/constraints"
)

// SetDelta lists the members to add and to remove, each sorted ascending.
type SetDelta[T comparable] struct {
	Add    []T `cbor:"a,omitempty"`
	Remove []T `cbor:"r,omitempty"`
}

type set[T comparable] struct {
	less func(a, b T) bool
}

// SetOf returns the Differ for a set represented as map[T]struct{}.
//
// Unlike sequences and mappings, applying a set delta is idempotent and
// never fails: membership has no position or associated value that drift
// could corrupt, so adding a present member or removing an absent one is
// simply a no-op.
func SetOf[T constraints.Ordered]() Differ[map[T]struct{}, SetDelta[T]] {
	return set[T]{less: func(a, b T) bool { return a < b }}
}

// SetFunc is SetOf for member types with no natural order.
func SetFunc[T comparable](less func(a, b T) bool) Differ[map[T]struct{}, SetDelta[T]] {
	return set[T]{less: less}
}

func (s set[T]) Compute(a, b map[T]struct{}) (d SetDelta[T], _ error) {
	for m := range b {
		if _, ok := a[m]; !ok {
			d.Add = append(d.Add, m)
		}
	}
	for m := range a {
		if _, ok := b[m]; !ok {
			d.Remove = append(d.Remove, m)
		}
	}
	sort.Slice(d.Add, func(i, j int) bool { return s.less(d.Add[i], d.Add[j]) })
	sort.Slice(d.Remove, func(i, j int) bool { return s.less(d.Remove[i], d.Remove[j]) })
	return
}

func (s set[T]) Apply(base map[T]struct{}, d SetDelta[T]) (map[T]struct{}, error) {
	if s.Noop(d) {
		return base, nil
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[T]struct{}, len(d.Add))
	}
	for _, m := range d.Add {
		out[m] = struct{}{}
	}
	for _, m := range d.Remove {
		delete(out, m)
	}
	return out, nil
}

func (s set[T]) Noop(d SetDelta[T]) bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}
