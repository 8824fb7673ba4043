package codec

import (
	"bytes"
	"math"
)

// Encoder appends the canonical encoding of values to an in-memory buffer.
// Integers are fixed width little-endian, variable length data carries a
// u64 length prefix, enum tags are u32 and options lead with a 0/1 byte.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder creates an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) Len() int {
	return e.buf.Len()
}

func (e *Encoder) PutUint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf.WriteByte(1)
		return
	}
	e.buf.WriteByte(0)
}

func (e *Encoder) PutUint32(v uint32) {
	e.buf.Write(E_l(uint64(v), 4))
}

func (e *Encoder) PutUint64(v uint64) {
	e.buf.Write(E_l(v, 8))
}

func (e *Encoder) PutFloat32(v float32) {
	e.PutUint32(math.Float32bits(v))
}

// PutLen writes a sequence length.
func (e *Encoder) PutLen(n int) {
	e.PutUint64(uint64(n))
}

func (e *Encoder) PutBytes(b []byte) {
	e.PutLen(len(b))
	e.buf.Write(b)
}

func (e *Encoder) PutString(s string) {
	e.PutLen(len(s))
	e.buf.WriteString(s)
}

// PutOptionalBytes writes 0 for nil and 1 followed by the bytes otherwise.
func (e *Encoder) PutOptionalBytes(b []byte) {
	if b == nil {
		e.PutUint8(0)
		return
	}
	e.PutUint8(1)
	e.PutBytes(b)
}

func (e *Encoder) PutOptionalFloat32(v *float32) {
	if v == nil {
		e.PutUint8(0)
		return
	}
	e.PutUint8(1)
	e.PutFloat32(*v)
}

// Put appends the encoding of a nested value.
func (e *Encoder) Put(v Marshaler) {
	v.EncodeTo(e)
}
