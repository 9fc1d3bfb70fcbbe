package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLVAppend(t *testing.T) {
	buf := []byte{}
	buf = Append(buf, 'A', []byte{'A'})
	buf = Append(buf, 'b', []byte{'B', 'B'})
	correct2 := []byte{'a', 1, 'A', '2', 'B', 'B'}
	assert.Equal(t, correct2, buf)

	var c256 [256]byte
	for n := range c256 {
		c256[n] = 'c'
	}
	buf = Append(buf, 'C', c256[:])
	assert.Equal(t, len(correct2)+1+4+len(c256), len(buf))

	lit, body, buf := TakeAny(buf)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, []byte{'A'}, body)

	body2, _, err := TakeWary('B', buf)
	assert.Nil(t, err)
	assert.Equal(t, []byte{'B', 'B'}, body2)
}

func TestTinyRecord(t *testing.T) {
	tiny := TinyRecord('X', []byte("12"))
	assert.Equal(t, "212", string(tiny))
}

func TestTakeWrongType(t *testing.T) {
	rec := Record('D', []byte("payload"))
	_, _, err := TakeWary('V', rec)
	assert.ErrorIs(t, err, ErrBadRecord)

	body, rest, err := TakeWary('D', rec)
	assert.Nil(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, 0, len(rest))
}

func TestTakeIncomplete(t *testing.T) {
	rec := Record('D', []byte("payload"))
	_, _, err := TakeWary('D', rec[:3])
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestSplit(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	buf.Write(Record('D', []byte("one")))
	buf.Write(Record('V', []byte("two")))

	recs, err := Split(buf)
	assert.Nil(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, uint8('D'), Lit(recs[0]))
	assert.Equal(t, uint8('V'), Lit(recs[1]))

	buf.Write(Record('S', []byte("three"))[:2])
	_, err = Split(buf)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestRecordsPrefixSuffix(t *testing.T) {
	recs := Records{
		Record('D', []byte("aa")),
		Record('D', []byte("bb")),
		Record('D', []byte("cc")),
	}
	one := int64(len(recs[0]))

	prefix, rem := recs.WholeRecordPrefix(one*2 + 1)
	assert.Len(t, prefix, 2)
	assert.Equal(t, int64(1), rem)

	suffix := recs.ExactSuffix(one * 2)
	assert.Len(t, suffix, 1)
	assert.Equal(t, recs[2], suffix[0])

	cut := recs.ExactSuffix(one*2 + 1)
	assert.Len(t, cut, 1)
	assert.Equal(t, recs[2][1:], cut[0])

	assert.Equal(t, one*3, recs.TotalLen())
}
