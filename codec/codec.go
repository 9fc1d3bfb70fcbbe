// Package codec frames deltas, values, snapshots and apply failures into
// self-describing envelopes: a TLV record whose body is the canonical CBOR
// form of the payload. Envelopes are what the store persists and what
// callers ship across process boundaries.
package codec

import (
	"fmt"

	"github.com/robjtede/deltoid"
	"github.com/robjtede/deltoid/deltoid_errors"
	"github.com/robjtede/deltoid/protocol"
)

// Envelope type letters.
const (
	LitDelta    byte = 'D'
	LitValue    byte = 'V'
	LitSnapshot byte = 'S'
	LitError    byte = 'E'
)

// Seal builds an envelope of the given type around the canonical encoding
// of v.
func Seal(lit byte, v any) ([]byte, error) {
	body, err := deltoid.Marshal(v)
	if err != nil {
		return nil, err
	}
	return protocol.Record(lit, body), nil
}

// Open unpacks an envelope into v, rejecting wrong or trailing records.
func Open(lit byte, env []byte, v any) error {
	body, rest, err := protocol.TakeWary(lit, env)
	if err != nil {
		return fmt.Errorf("%w: %v", deltoid_errors.ErrBadEnvelope, err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", deltoid_errors.ErrBadEnvelope, len(rest))
	}
	return deltoid.Unmarshal(body, v)
}

// Codec binds the value and delta types of one participating type to the
// envelope format.
type Codec[T, D any] struct{}

func (Codec[T, D]) EncodeValue(v T) ([]byte, error) {
	return Seal(LitValue, v)
}

func (Codec[T, D]) DecodeValue(env []byte) (v T, err error) {
	err = Open(LitValue, env, &v)
	return
}

func (Codec[T, D]) EncodeDelta(d D) ([]byte, error) {
	return Seal(LitDelta, d)
}

func (Codec[T, D]) DecodeDelta(env []byte) (d D, err error) {
	err = Open(LitDelta, env, &d)
	return
}

// EncodeError wires an apply failure for transport; kind and path survive
// the trip, per-error detail text is carried verbatim.
func EncodeError(err error) ([]byte, error) {
	return Seal(LitError, deltoid_errors.ToWire(err))
}

// DecodeError reconstructs a transported failure. The result matches the
// original sentinel under errors.Is.
func DecodeError(env []byte) (error, error) {
	var w deltoid_errors.Wire
	if err := Open(LitError, env, &w); err != nil {
		return nil, err
	}
	return w.Err(), nil
}
