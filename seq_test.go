package deltoid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robjtede/deltoid/deltoid_errors"
)

func TestSliceEditAndTailInsert(t *testing.T) {
	ints := Slice(Atom[int64]())
	a := []int64{1, 2, 3}
	b := []int64{1, 5, 3, 9}

	d, err := ints.Compute(a, b)
	assert.Nil(t, err)
	assert.Len(t, d, 2)
	assert.Equal(t, OpEdit, d[0].Kind)
	assert.Equal(t, 1, d[0].Index)
	assert.Equal(t, OpInsert, d[1].Kind)
	assert.Equal(t, 3, d[1].Index)
	assert.Equal(t, int64(9), *d[1].Value)

	out, err := ints.Apply(a, d)
	assert.Nil(t, err)
	assert.Equal(t, b, out)
	assert.Equal(t, []int64{1, 2, 3}, a)
}

func TestSliceRemovesDescend(t *testing.T) {
	ints := Slice(Atom[int64]())
	a := []int64{1, 2, 3, 4, 5}
	b := []int64{1, 2}

	d, err := ints.Compute(a, b)
	assert.Nil(t, err)
	assert.Len(t, d, 3)
	assert.Equal(t, []int{4, 3, 2}, []int{d[0].Index, d[1].Index, d[2].Index})

	out, err := ints.Apply(a, d)
	assert.Nil(t, err)
	assert.Equal(t, b, out)
}

func TestSliceIdentity(t *testing.T) {
	ints := Slice(Atom[int64]())
	a := []int64{1, 2, 3}
	d, err := ints.Compute(a, a)
	assert.Nil(t, err)
	assert.True(t, ints.Noop(d))
	out, err := ints.Apply(a, d)
	assert.Nil(t, err)
	assert.Equal(t, a, out)
}

func TestSliceIndexOutOfRange(t *testing.T) {
	ints := Slice(Atom[int64]())
	c := []int64{1, 2, 3, 4}
	d, err := ints.Compute(c, []int64{1, 2, 3, 7})
	assert.Nil(t, err)

	// delta edits index 3; the unrelated base is too short
	_, err = ints.Apply([]int64{1}, d)
	assert.ErrorIs(t, err, deltoid_errors.ErrIndexOutOfRange)
}

func TestSliceNested(t *testing.T) {
	rows := Slice(Slice(Atom[int64]()))
	a := [][]int64{{1, 2}, {3}}
	b := [][]int64{{1, 7}, {3}, {8}}

	d, err := rows.Compute(a, b)
	assert.Nil(t, err)
	out, err := rows.Apply(a, d)
	assert.Nil(t, err)
	assert.Equal(t, b, out)
}

func TestSliceDeltaSerializable(t *testing.T) {
	ints := Slice(Atom[int64]())
	a := []int64{1, 2, 3}
	b := []int64{1, 5, 3, 9}
	d, _ := ints.Compute(a, b)

	raw, err := Marshal(d)
	assert.Nil(t, err)
	var back SeqDelta[int64, AtomDelta[int64]]
	assert.Nil(t, Unmarshal(raw, &back))

	out, err := ints.Apply(a, back)
	assert.Nil(t, err)
	assert.Equal(t, b, out)
}
