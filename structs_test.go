package deltoid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robjtede/deltoid/deltoid_errors"
)

type pet struct {
	Name string
	Age  int64
	Tags []string
}

func petDiffer() *Struct[pet] {
	return StructOf("pet",
		F("name", func(p *pet) *string { return &p.Name }, Atom[string]()),
		F("age", func(p *pet) *int64 { return &p.Age }, Atom[int64]()),
		F("tags", func(p *pet) *[]string { return &p.Tags }, Slice(Atom[string]())),
	)
}

func TestStructRoundTrip(t *testing.T) {
	pets := petDiffer()
	a := pet{Name: "Rex", Age: 3, Tags: []string{"dog"}}
	b := pet{Name: "Rex", Age: 4, Tags: []string{"dog", "good"}}

	d, err := pets.Compute(a, b)
	assert.Nil(t, err)
	// only the changed fields are present
	assert.Len(t, d, 2)
	assert.Contains(t, d, "age")
	assert.Contains(t, d, "tags")

	out, err := pets.Apply(a, d)
	assert.Nil(t, err)
	assert.Equal(t, b, out)
	assert.Equal(t, pet{Name: "Rex", Age: 3, Tags: []string{"dog"}}, a)
}

func TestStructIdentity(t *testing.T) {
	pets := petDiffer()
	a := pet{Name: "Rex", Age: 3}
	d, err := pets.Compute(a, a)
	assert.Nil(t, err)
	assert.True(t, pets.Noop(d))
	out, err := pets.Apply(a, d)
	assert.Nil(t, err)
	assert.Equal(t, a, out)
}

func TestStructUnknownField(t *testing.T) {
	pets := petDiffer()
	d := StructDelta{"color": []byte{0xf6}}
	_, err := pets.Apply(pet{}, d)
	assert.ErrorIs(t, err, deltoid_errors.ErrMissingKey)
}

func TestStructNestedErrorPath(t *testing.T) {
	pets := petDiffer()
	a := pet{Tags: []string{"x", "y", "z"}}
	b := pet{Tags: []string{"x", "y", "q"}}
	d, err := pets.Compute(a, b)
	assert.Nil(t, err)

	// unrelated base: the tags slice is too short for the edit at [2]
	_, err = pets.Apply(pet{Tags: []string{"x"}}, d)
	assert.ErrorIs(t, err, deltoid_errors.ErrIndexOutOfRange)
	assert.Equal(t, []string{"tags"}, deltoid_errors.PathOf(err))
	assert.Contains(t, err.Error(), "index 2")
}

func TestStructDeltaSerializable(t *testing.T) {
	pets := petDiffer()
	a := pet{Name: "Rex", Age: 3}
	b := pet{Name: "Fido", Age: 3}
	d, _ := pets.Compute(a, b)

	raw, err := Marshal(d)
	assert.Nil(t, err)
	var back StructDelta
	assert.Nil(t, Unmarshal(raw, &back))

	out, err := pets.Apply(a, back)
	assert.Nil(t, err)
	assert.Equal(t, b, out)
}

func TestStructDuplicateFieldPanics(t *testing.T) {
	assert.Panics(t, func() {
		StructOf("pet",
			F("name", func(p *pet) *string { return &p.Name }, Atom[string]()),
			F("name", func(p *pet) *string { return &p.Name }, Atom[string]()),
		)
	})
}
