package deltoid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mkset(members ...int64) map[int64]struct{} {
	s := make(map[int64]struct{}, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

func TestSetAddRemove(t *testing.T) {
	sets := SetOf[int64]()
	a := mkset(1, 2, 3)
	b := mkset(2, 3, 4)

	d, err := sets.Compute(a, b)
	assert.Nil(t, err)
	assert.Equal(t, []int64{4}, d.Add)
	assert.Equal(t, []int64{1}, d.Remove)

	out, err := sets.Apply(a, d)
	assert.Nil(t, err)
	assert.Equal(t, b, out)
	assert.Equal(t, mkset(1, 2, 3), a)
}

func TestSetApplyIdempotent(t *testing.T) {
	sets := SetOf[int64]()
	d, err := sets.Compute(mkset(1, 2, 3), mkset(2, 3, 4))
	assert.Nil(t, err)

	// base already lacks 1 and has 4: both ops are no-ops
	out, err := sets.Apply(mkset(2, 3, 4), d)
	assert.Nil(t, err)
	assert.Equal(t, mkset(2, 3, 4), out)
}

func TestSetIdentity(t *testing.T) {
	sets := SetOf[int64]()
	a := mkset(5, 6)
	d, err := sets.Compute(a, a)
	assert.Nil(t, err)
	assert.True(t, sets.Noop(d))
	out, err := sets.Apply(a, d)
	assert.Nil(t, err)
	assert.Equal(t, a, out)
}

func TestSetDeltaDeterministic(t *testing.T) {
	sets := SetOf[int64]()
	d, err := sets.Compute(mkset(), mkset(3, 1, 2))
	assert.Nil(t, err)
	assert.Equal(t, []int64{1, 2, 3}, d.Add)
}
