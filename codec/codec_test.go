package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robjtede/deltoid"
	"github.com/robjtede/deltoid/deltoid_errors"
)

func TestValueEnvelope(t *testing.T) {
	c := Codec[[]int64, deltoid.SeqDelta[int64, deltoid.AtomDelta[int64]]]{}

	env, err := c.EncodeValue([]int64{1, 2, 3})
	assert.Nil(t, err)
	back, err := c.DecodeValue(env)
	assert.Nil(t, err)
	assert.Equal(t, []int64{1, 2, 3}, back)
}

func TestDeltaEnvelopeRoundTrip(t *testing.T) {
	ints := deltoid.Slice(deltoid.Atom[int64]())
	c := Codec[[]int64, deltoid.SeqDelta[int64, deltoid.AtomDelta[int64]]]{}

	a := []int64{1, 2, 3}
	b := []int64{1, 5, 3, 9}
	d, err := ints.Compute(a, b)
	assert.Nil(t, err)

	env, err := c.EncodeDelta(d)
	assert.Nil(t, err)
	back, err := c.DecodeDelta(env)
	assert.Nil(t, err)

	out, err := ints.Apply(a, back)
	assert.Nil(t, err)
	assert.Equal(t, b, out)
}

func TestWrongLiteral(t *testing.T) {
	c := Codec[[]int64, deltoid.SeqDelta[int64, deltoid.AtomDelta[int64]]]{}
	env, err := c.EncodeValue([]int64{1})
	assert.Nil(t, err)

	_, err = c.DecodeDelta(env)
	assert.ErrorIs(t, err, deltoid_errors.ErrBadEnvelope)
}

func TestTrailingBytes(t *testing.T) {
	c := Codec[[]int64, deltoid.SeqDelta[int64, deltoid.AtomDelta[int64]]]{}
	env, _ := c.EncodeValue([]int64{1})
	env = append(env, 0xff)

	_, err := c.DecodeValue(env)
	assert.ErrorIs(t, err, deltoid_errors.ErrBadEnvelope)
}

func TestErrorEnvelope(t *testing.T) {
	orig := deltoid_errors.Nest(deltoid_errors.ErrMissingKey, "scores")
	env, err := EncodeError(orig)
	assert.Nil(t, err)

	back, err := DecodeError(env)
	assert.Nil(t, err)
	assert.ErrorIs(t, back, deltoid_errors.ErrMissingKey)
	assert.Equal(t, []string{"scores"}, deltoid_errors.PathOf(back))
}
