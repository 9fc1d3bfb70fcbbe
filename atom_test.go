package deltoid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomRoundTrip(t *testing.T) {
	ints := Atom[int64]()
	d, err := ints.Compute(1, 5)
	assert.Nil(t, err)
	assert.False(t, ints.Noop(d))
	out, err := ints.Apply(1, d)
	assert.Nil(t, err)
	assert.Equal(t, int64(5), out)
}

func TestAtomIdentity(t *testing.T) {
	strs := Atom[string]()
	d, err := strs.Compute("same", "same")
	assert.Nil(t, err)
	assert.True(t, strs.Noop(d))
	out, err := strs.Apply("same", d)
	assert.Nil(t, err)
	assert.Equal(t, "same", out)
}

func TestAtomFunc(t *testing.T) {
	// custom equality: same length counts as unchanged
	folded := AtomFunc[string](func(a, b string) bool { return len(a) == len(b) })
	d, err := folded.Compute("abc", "xyz")
	assert.Nil(t, err)
	assert.True(t, folded.Noop(d))
}

func TestAtomDeltaSerializable(t *testing.T) {
	ints := Atom[int64]()
	d, _ := ints.Compute(1, 42)
	raw, err := Marshal(d)
	assert.Nil(t, err)
	var back AtomDelta[int64]
	assert.Nil(t, Unmarshal(raw, &back))
	out, err := ints.Apply(1, back)
	assert.Nil(t, err)
	assert.Equal(t, int64(42), out)
}
