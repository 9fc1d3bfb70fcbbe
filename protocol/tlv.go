// Framing is based on ToyTLV (MIT licence) written by Victor Grishchenko in 2024
// Original project: https://github.com/learn-decentralized-systems/toytlv

// Package protocol implements the compact TLV (type-length-value) framing
// used for delta, value and snapshot envelopes.
//
// A record is a one-letter type plus a length-prefixed body. Three header
// forms are chosen automatically by body size: tiny (one byte, '0'..'9',
// bodies up to 9 bytes, type information dropped), short (lowercase letter
// plus one length byte, bodies up to 255 bytes) and long (uppercase letter
// plus 4-byte little-endian length, bodies up to 2GB). Passing a lowercase
// type letter permits the tiny form; uppercase forces an explicit header.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadRecord  = errors.New("bad TLV record format")
)

// ProbeHeader inspects a record header without consuming it. lit is the
// canonical type ('A'-'Z', '0' for tiny, '-' for garbage, 0 when the
// header itself is incomplete); hdrlen is 1, 2 or 5.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	switch {
	case dlit >= '0' && dlit <= '9': // tiny
		lit = '0'
		bodylen = int(dlit - '0')
		hdrlen = 1
	case dlit >= 'a' && dlit <= 'z': // short
		if len(data) < 2 {
			return
		}
		lit = dlit - CaseBit
		hdrlen = 2
		bodylen = int(data[1])
	case dlit >= 'A' && dlit <= 'Z': // long
		if len(data) < 5 {
			return
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			lit = '-'
			return
		}
		lit = dlit
		bodylen = int(bl)
		hdrlen = 5
	default:
		lit = '-'
	}
	return
}

// AppendHeader appends a record header, picking the shortest form the
// body length and the case of lit allow.
func AppendHeader(into []byte, lit byte, bodylen int) (ret []byte) {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("TLV record type is A..Z")
	}
	if bodylen < 10 && (lit&CaseBit) != 0 {
		return append(into, byte('0'+bodylen))
	}
	if bodylen > 0xff {
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		ret = append(into, biglit)
		return binary.LittleEndian.AppendUint32(ret, uint32(bodylen))
	}
	return append(into, lit|CaseBit, byte(bodylen))
}

// Take extracts the body of one record of type lit. Returns a nil body
// with the original data when the record is incomplete, and nil/nil when
// the next record has another type. Tiny records match any type.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data // incomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil // wrong type
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:]
}

// TakeWary is Take for untrusted input, with explicit errors instead of
// nil returns.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}

// TakeAny extracts the next record whatever its type.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	lit = data[0] & ^CaseBit
	body, rest = Take(lit, data)
	return
}

// Lit returns the canonical type of a record's first byte.
func Lit(rec []byte) byte {
	b := rec[0]
	switch {
	case b >= 'a' && b <= 'z':
		return b - CaseBit
	case b >= 'A' && b <= 'Z':
		return b
	case b >= '0' && b <= '9':
		return '0'
	default:
		return '-'
	}
}

// Append appends a complete record to the buffer.
func Append(into []byte, lit byte, body ...[]byte) (res []byte) {
	res = AppendHeader(into, lit, TotalLen(body))
	for _, b := range body {
		res = append(res, b...)
	}
	return
}

// Record builds a complete record with pre-allocated capacity.
func Record(lit byte, body ...[]byte) []byte {
	total := TotalLen(body)
	ret := make([]byte, 0, total+5)
	ret = AppendHeader(ret, lit, total)
	for _, b := range body {
		ret = append(ret, b...)
	}
	return ret
}

// TinyRecord builds a record permitting the tiny header form.
func TinyRecord(lit byte, body []byte) []byte {
	return Record(lit|CaseBit, body)
}

// Split consumes complete records from the buffer. A trailing partial
// record is left in place and reported as ErrIncomplete.
func Split(data *bytes.Buffer) (recs Records, err error) {
	for data.Len() > 0 {
		lit, hlen, blen := ProbeHeader(data.Bytes())
		if lit == '-' {
			if len(recs) == 0 {
				err = ErrBadRecord
			}
			return
		}
		if lit == 0 {
			return
		}
		if hlen+blen > data.Len() {
			return recs, errors.Join(ErrIncomplete,
				fmt.Errorf("record size %d, buffered %d", hlen+blen, data.Len()))
		}
		rec := make([]byte, hlen+blen)
		if _, err = data.Read(rec); err != nil {
			return
		}
		recs = append(recs, rec)
	}
	return
}

// TotalLen sums the lengths of the given byte slices.
func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}
