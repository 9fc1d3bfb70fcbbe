// Provides common deltoid error definitions.
package deltoid_errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrVariantMismatch = errors.New("deltoid: delta assumes another variant")
	ErrIndexOutOfRange = errors.New("deltoid: index out of range")
	ErrMissingKey      = errors.New("deltoid: missing key")
	ErrDuplicateKey    = errors.New("deltoid: duplicate key")

	ErrBadDelta    = errors.New("deltoid: malformed delta")
	ErrBadEnvelope = errors.New("deltoid: bad envelope record")
	ErrClosed      = errors.New("deltoid: store is closed")
)

// Nested wraps a failure from a child delta with the location it happened
// at: field names, variant tags, "[index]" and map keys, outermost first.
type Nested struct {
	Path []string
	Err  error
}

func (n *Nested) Error() string {
	var b strings.Builder
	for i, seg := range n.Path {
		if i > 0 && !strings.HasPrefix(seg, "[") {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return fmt.Sprintf("at %s: %v", b.String(), n.Err)
}

func (n *Nested) Unwrap() error { return n.Err }

// Nest prepends a path segment to err. Nil stays nil; an already nested
// error keeps its inner error and grows its path.
func Nest(err error, seg string) error {
	if err == nil {
		return nil
	}
	if n, ok := err.(*Nested); ok {
		path := make([]string, 0, len(n.Path)+1)
		path = append(path, seg)
		path = append(path, n.Path...)
		return &Nested{Path: path, Err: n.Err}
	}
	return &Nested{Path: []string{seg}, Err: err}
}

// PathOf returns the location of a nested failure, nil for a plain error.
func PathOf(err error) []string {
	var n *Nested
	if errors.As(err, &n) {
		return n.Path
	}
	return nil
}

// Kind is the closed set of failure kinds, stable across processes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindVariantMismatch
	KindIndexOutOfRange
	KindMissingKey
	KindDuplicateKey
	KindBadDelta
	KindBadEnvelope
	KindClosed
)

var kindErrs = map[Kind]error{
	KindVariantMismatch: ErrVariantMismatch,
	KindIndexOutOfRange: ErrIndexOutOfRange,
	KindMissingKey:      ErrMissingKey,
	KindDuplicateKey:    ErrDuplicateKey,
	KindBadDelta:        ErrBadDelta,
	KindBadEnvelope:     ErrBadEnvelope,
	KindClosed:          ErrClosed,
}

// KindOf maps an error to its kind, KindUnknown for anything foreign.
func KindOf(err error) Kind {
	for k, sentinel := range kindErrs {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return KindUnknown
}

// Wire is the serializable form of an engine failure, so apply errors can
// cross process and network boundaries intact.
type Wire struct {
	Kind Kind     `cbor:"k"`
	Path []string `cbor:"p,omitempty"`
	Msg  string   `cbor:"m,omitempty"`
}

func ToWire(err error) Wire {
	if err == nil {
		return Wire{}
	}
	return Wire{Kind: KindOf(err), Path: PathOf(err), Msg: err.Error()}
}

// Err reconstructs an error matching the original via errors.Is. The
// message of the inner error is not preserved, only kind and path.
func (w Wire) Err() error {
	inner, ok := kindErrs[w.Kind]
	if !ok {
		if w.Msg == "" {
			return nil
		}
		inner = errors.New(w.Msg)
	}
	if len(w.Path) == 0 {
		return inner
	}
	return &Nested{Path: w.Path, Err: inner}
}
