// Package reflectx wires plain Go types into the delta engine at runtime,
// substituting a reflection table for hand-written registration. For(v)
// walks the type once, caches a descriptor, and returns a Differ over any
// whose deltas use the same wire shapes as the generic composers: exported
// struct fields by name, pointers as optionals, slices positionally, maps
// by ordered key, everything else as a replace-wholesale atom.
//
// Struct fields honor the `deltoid` tag: a name overrides the field name,
// "-" leaves the field out of the algebra entirely.
package reflectx

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/robjtede/deltoid"
	"github.com/robjtede/deltoid/deltoid_errors"
)

var (
	ErrUnsupported  = errors.New("reflectx: unsupported kind")
	ErrTypeMismatch = errors.New("reflectx: value type mismatch")
)

// Wire forms, field-compatible with the generic composers' delta types.
type (
	wireAtom struct {
		Value cbor.RawMessage `cbor:"v,omitempty"`
	}
	wireOpt struct {
		Change uint8           `cbor:"c,omitempty"`
		Value  cbor.RawMessage `cbor:"v,omitempty"`
		Child  cbor.RawMessage `cbor:"d,omitempty"`
	}
	wireSeqOp struct {
		Kind  uint8           `cbor:"o"`
		Index int             `cbor:"i,omitempty"`
		Value cbor.RawMessage `cbor:"v,omitempty"`
		Child cbor.RawMessage `cbor:"d,omitempty"`
	}
	wireMapOp struct {
		Kind  uint8           `cbor:"o"`
		Key   cbor.RawMessage `cbor:"k"`
		Value cbor.RawMessage `cbor:"v,omitempty"`
		Child cbor.RawMessage `cbor:"d,omitempty"`
	}
)

type kind uint8

const (
	kindAtom kind = iota + 1
	kindPtr
	kindStruct
	kindSlice
	kindMap
)

type fieldDesc struct {
	name  string
	index int
	d     *desc
}

type desc struct {
	t      reflect.Type
	kind   kind
	elem   *desc // ptr target, slice element, map value
	key    reflect.Type
	fields []fieldDesc
}

var descs = xsync.NewMapOf[reflect.Type, *desc]()

func descFor(t reflect.Type) (*desc, error) {
	if d, ok := descs.Load(t); ok {
		return d, nil
	}
	built := make(map[reflect.Type]*desc)
	d, err := buildDesc(t, built)
	if err != nil {
		return nil, err
	}
	for bt, bd := range built {
		descs.Store(bt, bd)
	}
	return d, nil
}

// buildDesc publishes in-progress descriptors into built so recursive
// types (trees, linked lists) link back instead of looping forever. The
// batch reaches the shared cache only once the whole tree built cleanly.
func buildDesc(t reflect.Type, built map[reflect.Type]*desc) (*desc, error) {
	if d, ok := descs.Load(t); ok {
		return d, nil
	}
	if d, ok := built[t]; ok {
		return d, nil
	}
	d := &desc{t: t}
	built[t] = d
	var err error
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		d.kind = kindAtom
	case reflect.Pointer:
		d.kind = kindPtr
		d.elem, err = buildDesc(t.Elem(), built)
	case reflect.Slice:
		d.kind = kindSlice
		d.elem, err = buildDesc(t.Elem(), built)
	case reflect.Map:
		if !orderedKey(t.Key().Kind()) {
			return nil, fmt.Errorf("%w: map key %s has no order", ErrUnsupported, t.Key())
		}
		d.kind = kindMap
		d.key = t.Key()
		d.elem, err = buildDesc(t.Elem(), built)
	case reflect.Struct:
		d.kind = kindStruct
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("deltoid"); ok {
				if tag == "-" {
					continue
				}
				name = tag
			}
			fd, ferr := buildDesc(f.Type, built)
			if ferr != nil {
				return nil, deltoid_errors.Nest(ferr, name)
			}
			d.fields = append(d.fields, fieldDesc{name: name, index: i, d: fd})
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func orderedKey(k reflect.Kind) bool {
	switch k {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Dyn is a Differ over any for one concrete Go type. Deltas are handed out
// pre-encoded; an empty raw message is the no-op.
type Dyn struct {
	d *desc
}

var _ deltoid.Differ[any, cbor.RawMessage] = (*Dyn)(nil)

// For builds (or fetches from the cache) the differ for the dynamic type
// of template.
func For(template any) (*Dyn, error) {
	rt := reflect.TypeOf(template)
	if rt == nil {
		return nil, fmt.Errorf("%w: untyped nil", ErrUnsupported)
	}
	d, err := descFor(rt)
	if err != nil {
		return nil, err
	}
	return &Dyn{d: d}, nil
}

func (y *Dyn) value(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() != y.d.t {
		return rv, fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, y.d.t, v)
	}
	return rv, nil
}

func (y *Dyn) Compute(a, b any) (cbor.RawMessage, error) {
	av, err := y.value(a)
	if err != nil {
		return nil, err
	}
	bv, err := y.value(b)
	if err != nil {
		return nil, err
	}
	return computeValue(y.d, av, bv)
}

func (y *Dyn) Apply(base any, d cbor.RawMessage) (any, error) {
	bv, err := y.value(base)
	if err != nil {
		return base, err
	}
	nv, err := applyValue(y.d, bv, d)
	if err != nil {
		return base, err
	}
	return nv.Interface(), nil
}

func (y *Dyn) Noop(d cbor.RawMessage) bool {
	return len(d) == 0
}

func enc(v any) (cbor.RawMessage, error) {
	raw, err := deltoid.Marshal(v)
	if err != nil {
		return nil, err
	}
	return cbor.RawMessage(raw), nil
}

func decNew(t reflect.Type, raw cbor.RawMessage) (reflect.Value, error) {
	p := reflect.New(t)
	if err := deltoid.Unmarshal(raw, p.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
	}
	return p.Elem(), nil
}

func computeValue(d *desc, av, bv reflect.Value) (cbor.RawMessage, error) {
	switch d.kind {
	case kindAtom:
		if av.Interface() == bv.Interface() {
			return nil, nil
		}
		raw, err := enc(bv.Interface())
		if err != nil {
			return nil, err
		}
		return enc(wireAtom{Value: raw})
	case kindPtr:
		return computePtr(d, av, bv)
	case kindStruct:
		return computeStruct(d, av, bv)
	case kindSlice:
		return computeSlice(d, av, bv)
	case kindMap:
		return computeMap(d, av, bv)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, d.t)
}

func computePtr(d *desc, av, bv reflect.Value) (cbor.RawMessage, error) {
	switch {
	case av.IsNil() && bv.IsNil():
		return nil, nil
	case bv.IsNil():
		return enc(wireOpt{Change: uint8(deltoid.OptBecameNone)})
	case av.IsNil():
		raw, err := enc(bv.Elem().Interface())
		if err != nil {
			return nil, err
		}
		return enc(wireOpt{Change: uint8(deltoid.OptBecameSome), Value: raw})
	default:
		child, err := computeValue(d.elem, av.Elem(), bv.Elem())
		if err != nil {
			return nil, deltoid_errors.Nest(err, "some")
		}
		if child == nil {
			return nil, nil
		}
		return enc(wireOpt{Change: uint8(deltoid.OptEdited), Child: child})
	}
}

func computeStruct(d *desc, av, bv reflect.Value) (cbor.RawMessage, error) {
	m := make(map[string]cbor.RawMessage)
	for _, f := range d.fields {
		child, err := computeValue(f.d, av.Field(f.index), bv.Field(f.index))
		if err != nil {
			return nil, deltoid_errors.Nest(err, f.name)
		}
		if child != nil {
			m[f.name] = child
		}
	}
	if len(m) == 0 {
		return nil, nil
	}
	return enc(m)
}

func computeSlice(d *desc, av, bv reflect.Value) (cbor.RawMessage, error) {
	var ops []wireSeqOp
	n := min(av.Len(), bv.Len())
	for i := 0; i < n; i++ {
		child, err := computeValue(d.elem, av.Index(i), bv.Index(i))
		if err != nil {
			return nil, deltoid_errors.Nest(err, fmt.Sprintf("[%d]", i))
		}
		if child != nil {
			ops = append(ops, wireSeqOp{Kind: uint8(deltoid.OpEdit), Index: i, Child: child})
		}
	}
	for i := av.Len(); i < bv.Len(); i++ {
		raw, err := enc(bv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		ops = append(ops, wireSeqOp{Kind: uint8(deltoid.OpInsert), Index: i, Value: raw})
	}
	for i := av.Len() - 1; i >= bv.Len(); i-- {
		ops = append(ops, wireSeqOp{Kind: uint8(deltoid.OpRemove), Index: i})
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return enc(ops)
}

func lessKey(t reflect.Type, a, b reflect.Value) bool {
	switch t.Kind() {
	case reflect.String:
		return a.String() < b.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() < b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return a.Uint() < b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() < b.Float()
	}
	return false
}

func computeMap(d *desc, av, bv reflect.Value) (cbor.RawMessage, error) {
	keys := av.MapKeys()
	for _, k := range bv.MapKeys() {
		if !av.MapIndex(k).IsValid() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(d.key, keys[i], keys[j]) })
	var ops []wireMapOp
	for _, k := range keys {
		rawKey, err := enc(k.Interface())
		if err != nil {
			return nil, err
		}
		avv := av.MapIndex(k)
		bvv := bv.MapIndex(k)
		switch {
		case !bvv.IsValid():
			ops = append(ops, wireMapOp{Kind: uint8(deltoid.OpRemove), Key: rawKey})
		case !avv.IsValid():
			raw, err := enc(bvv.Interface())
			if err != nil {
				return nil, err
			}
			ops = append(ops, wireMapOp{Kind: uint8(deltoid.OpInsert), Key: rawKey, Value: raw})
		default:
			child, err := computeValue(d.elem, avv, bvv)
			if err != nil {
				return nil, deltoid_errors.Nest(err, fmt.Sprint(k.Interface()))
			}
			if child != nil {
				ops = append(ops, wireMapOp{Kind: uint8(deltoid.OpEdit), Key: rawKey, Child: child})
			}
		}
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return enc(ops)
}

func applyValue(d *desc, base reflect.Value, raw cbor.RawMessage) (reflect.Value, error) {
	if len(raw) == 0 {
		return base, nil
	}
	switch d.kind {
	case kindAtom:
		var w wireAtom
		if err := deltoid.Unmarshal(raw, &w); err != nil {
			return base, fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
		}
		if w.Value == nil {
			return base, nil
		}
		return decNew(d.t, w.Value)
	case kindPtr:
		return applyPtr(d, base, raw)
	case kindStruct:
		return applyStruct(d, base, raw)
	case kindSlice:
		return applySlice(d, base, raw)
	case kindMap:
		return applyMap(d, base, raw)
	}
	return base, fmt.Errorf("%w: %s", ErrUnsupported, d.t)
}

func applyPtr(d *desc, base reflect.Value, raw cbor.RawMessage) (reflect.Value, error) {
	var w wireOpt
	if err := deltoid.Unmarshal(raw, &w); err != nil {
		return base, fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
	}
	switch deltoid.OptChange(w.Change) {
	case deltoid.OptUnchanged:
		return base, nil
	case deltoid.OptBecameNone:
		return reflect.Zero(d.t), nil
	case deltoid.OptBecameSome:
		if w.Value == nil {
			return base, deltoid_errors.ErrBadDelta
		}
		nv, err := decNew(d.t.Elem(), w.Value)
		if err != nil {
			return base, err
		}
		p := reflect.New(d.t.Elem())
		p.Elem().Set(nv)
		return p, nil
	case deltoid.OptEdited:
		if base.IsNil() {
			return base, fmt.Errorf("%w: payload edit of an absent value", deltoid_errors.ErrVariantMismatch)
		}
		nv, err := applyValue(d.elem, base.Elem(), w.Child)
		if err != nil {
			return base, deltoid_errors.Nest(err, "some")
		}
		p := reflect.New(d.t.Elem())
		p.Elem().Set(nv)
		return p, nil
	}
	return base, deltoid_errors.ErrBadDelta
}

func applyStruct(d *desc, base reflect.Value, raw cbor.RawMessage) (reflect.Value, error) {
	var m map[string]cbor.RawMessage
	if err := deltoid.Unmarshal(raw, &m); err != nil {
		return base, fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
	}
	known := make(map[string]struct{}, len(d.fields))
	for _, f := range d.fields {
		known[f.name] = struct{}{}
	}
	for name := range m {
		if _, ok := known[name]; !ok {
			return base, fmt.Errorf("%w: %s has no field %q", deltoid_errors.ErrMissingKey, d.t, name)
		}
	}
	out := reflect.New(d.t).Elem()
	out.Set(base)
	for _, f := range d.fields {
		child, ok := m[f.name]
		if !ok {
			continue
		}
		nv, err := applyValue(f.d, out.Field(f.index), child)
		if err != nil {
			return base, deltoid_errors.Nest(err, f.name)
		}
		out.Field(f.index).Set(nv)
	}
	return out, nil
}

func insertAt(s reflect.Value, i int, v reflect.Value) reflect.Value {
	out := reflect.MakeSlice(s.Type(), s.Len()+1, s.Len()+1)
	reflect.Copy(out.Slice(0, i), s.Slice(0, i))
	out.Index(i).Set(v)
	reflect.Copy(out.Slice(i+1, out.Len()), s.Slice(i, s.Len()))
	return out
}

func removeAt(s reflect.Value, i int) reflect.Value {
	out := reflect.MakeSlice(s.Type(), s.Len()-1, s.Len()-1)
	reflect.Copy(out.Slice(0, i), s.Slice(0, i))
	reflect.Copy(out.Slice(i, out.Len()), s.Slice(i+1, s.Len()))
	return out
}

func applySlice(d *desc, base reflect.Value, raw cbor.RawMessage) (reflect.Value, error) {
	var ops []wireSeqOp
	if err := deltoid.Unmarshal(raw, &ops); err != nil {
		return base, fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
	}
	out := reflect.MakeSlice(d.t, base.Len(), base.Len())
	reflect.Copy(out, base)
	for _, op := range ops {
		switch deltoid.OpKind(op.Kind) {
		case deltoid.OpEdit:
			if op.Index < 0 || op.Index >= out.Len() {
				return base, fmt.Errorf("%w: index %d, length %d", deltoid_errors.ErrIndexOutOfRange, op.Index, out.Len())
			}
			nv, err := applyValue(d.elem, out.Index(op.Index), op.Child)
			if err != nil {
				return base, deltoid_errors.Nest(err, fmt.Sprintf("[%d]", op.Index))
			}
			out.Index(op.Index).Set(nv)
		case deltoid.OpInsert:
			if op.Index < 0 || op.Index > out.Len() {
				return base, fmt.Errorf("%w: index %d, length %d", deltoid_errors.ErrIndexOutOfRange, op.Index, out.Len())
			}
			nv, err := decNew(d.t.Elem(), op.Value)
			if err != nil {
				return base, err
			}
			out = insertAt(out, op.Index, nv)
		case deltoid.OpRemove:
			if op.Index < 0 || op.Index >= out.Len() {
				return base, fmt.Errorf("%w: index %d, length %d", deltoid_errors.ErrIndexOutOfRange, op.Index, out.Len())
			}
			out = removeAt(out, op.Index)
		default:
			return base, deltoid_errors.ErrBadDelta
		}
	}
	return out, nil
}

func applyMap(d *desc, base reflect.Value, raw cbor.RawMessage) (reflect.Value, error) {
	var ops []wireMapOp
	if err := deltoid.Unmarshal(raw, &ops); err != nil {
		return base, fmt.Errorf("%w: %v", deltoid_errors.ErrBadDelta, err)
	}
	out := reflect.MakeMapWithSize(d.t, base.Len())
	iter := base.MapRange()
	for iter.Next() {
		out.SetMapIndex(iter.Key(), iter.Value())
	}
	for _, op := range ops {
		key, err := decNew(d.key, op.Key)
		if err != nil {
			return base, err
		}
		cur := out.MapIndex(key)
		switch deltoid.OpKind(op.Kind) {
		case deltoid.OpInsert:
			if cur.IsValid() {
				return base, fmt.Errorf("%w: %v", deltoid_errors.ErrDuplicateKey, key.Interface())
			}
			nv, err := decNew(d.t.Elem(), op.Value)
			if err != nil {
				return base, err
			}
			out.SetMapIndex(key, nv)
		case deltoid.OpRemove:
			if !cur.IsValid() {
				return base, fmt.Errorf("%w: %v", deltoid_errors.ErrMissingKey, key.Interface())
			}
			out.SetMapIndex(key, reflect.Value{})
		case deltoid.OpEdit:
			if !cur.IsValid() {
				return base, fmt.Errorf("%w: %v", deltoid_errors.ErrMissingKey, key.Interface())
			}
			nv, err := applyValue(d.elem, cur, op.Child)
			if err != nil {
				return base, deltoid_errors.Nest(err, fmt.Sprint(key.Interface()))
			}
			out.SetMapIndex(key, nv)
		default:
			return base, deltoid_errors.ErrBadDelta
		}
	}
	return out, nil
}
