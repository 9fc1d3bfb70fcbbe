package deltoid

import (
	"fmt"
	"slices"

	"github.com/robjtede/deltoid/deltoid_errors"
)

// OpKind tags one entry-level operation of a sequence or mapping delta.
type OpKind uint8

const (
	OpEdit OpKind = iota + 1
	OpInsert
	OpRemove
)

// SeqOp is one operation of a sequence delta. Insert carries Value, Edit
// carries Child, Remove carries the index alone.
type SeqOp[T, D any] struct {
	Kind  OpKind `cbor:"o"`
	Index int    `cbor:"i,omitempty"`
	Value *T     `cbor:"v,omitempty"`
	Child *D     `cbor:"d,omitempty"`
}

// SeqDelta is an ordered list of operations; order matters because every
// insert and remove shifts the elements after it.
type SeqDelta[T, D any] []SeqOp[T, D]

type seq[T, D any] struct {
	elem Differ[T, D]
}

// Slice returns the Differ for []T given the element Differ.
//
// Compute aligns elements positionally: edits over the common prefix,
// ascending inserts for the tail of b, descending removes for the tail of
// a (so sequential application never invalidates a later index). A single
// mid-sequence insertion therefore shows up as a cascade of tail edits;
// simplicity is preferred over minimal deltas here, and the trade-off is
// load-bearing: stored deltas would not survive a change of alignment.
func Slice[T, D any](elem Differ[T, D]) Differ[[]T, SeqDelta[T, D]] {
	return seq[T, D]{elem: elem}
}

func (s seq[T, D]) Compute(a, b []T) (d SeqDelta[T, D], err error) {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		child, cerr := s.elem.Compute(a[i], b[i])
		if cerr != nil {
			return nil, deltoid_errors.Nest(cerr, fmt.Sprintf("[%d]", i))
		}
		if s.elem.Noop(child) {
			continue
		}
		c := child
		d = append(d, SeqOp[T, D]{Kind: OpEdit, Index: i, Child: &c})
	}
	for i := len(a); i < len(b); i++ {
		v := b[i]
		d = append(d, SeqOp[T, D]{Kind: OpInsert, Index: i, Value: &v})
	}
	for i := len(a) - 1; i >= len(b); i-- {
		d = append(d, SeqOp[T, D]{Kind: OpRemove, Index: i})
	}
	return
}

func (s seq[T, D]) Apply(base []T, d SeqDelta[T, D]) ([]T, error) {
	out := slices.Clone(base)
	for _, op := range d {
		switch op.Kind {
		case OpEdit:
			if op.Index < 0 || op.Index >= len(out) || op.Child == nil {
				return base, s.badIndex(op, len(out))
			}
			nv, err := s.elem.Apply(out[op.Index], *op.Child)
			if err != nil {
				return base, deltoid_errors.Nest(err, fmt.Sprintf("[%d]", op.Index))
			}
			out[op.Index] = nv
		case OpInsert:
			if op.Index < 0 || op.Index > len(out) || op.Value == nil {
				return base, s.badIndex(op, len(out))
			}
			out = slices.Insert(out, op.Index, *op.Value)
		case OpRemove:
			if op.Index < 0 || op.Index >= len(out) {
				return base, s.badIndex(op, len(out))
			}
			out = slices.Delete(out, op.Index, op.Index+1)
		default:
			return base, deltoid_errors.ErrBadDelta
		}
	}
	return out, nil
}

func (s seq[T, D]) badIndex(op SeqOp[T, D], n int) error {
	if op.Kind == OpEdit && op.Child == nil || op.Kind == OpInsert && op.Value == nil {
		return deltoid_errors.ErrBadDelta
	}
	return fmt.Errorf("%w: index %d, length %d", deltoid_errors.ErrIndexOutOfRange, op.Index, n)
}

func (s seq[T, D]) Noop(d SeqDelta[T, D]) bool {
	return len(d) == 0
}
