package codec

import (
	"errors"
)

var (
	ErrUnexpectedEOF = errors.New("codec: unexpected end of input")
	ErrInvalidTag    = errors.New("codec: invalid option tag")
	ErrTrailingBytes = errors.New("codec: trailing bytes after decode")
	ErrLengthTooLong = errors.New("codec: length prefix exceeds remaining input")
)

// Marshaler is implemented by types that write their canonical encoding.
type Marshaler interface {
	EncodeTo(e *Encoder)
}

// Unmarshaler is implemented by types that read their canonical encoding.
type Unmarshaler interface {
	DecodeFrom(d *Decoder) error
}

// Encode returns the canonical bytes of v.
func Encode(v Marshaler) []byte {
	e := NewEncoder()
	v.EncodeTo(e)
	return e.Bytes()
}

// Decode fills v from b and requires b to be consumed entirely.
func Decode(b []byte, v Unmarshaler) error {
	d := NewDecoder(b)
	if err := v.DecodeFrom(d); err != nil {
		return err
	}
	if d.Remaining() != 0 {
		return ErrTrailingBytes
	}
	return nil
}

// E_l encodes x as an l-byte little-endian integer.
func E_l(x uint64, l uint32) []byte {
	if l == 0 {
		return []byte{}
	}
	encoded := make([]byte, l)
	for i := uint32(0); i < l && i < 8; i++ {
		encoded[i] = byte(x)
		x >>= 8
	}
	return encoded
}

// DecodeE_l is the inverse of E_l.
func DecodeE_l(encoded []byte) uint64 {
	var x uint64
	for i := len(encoded) - 1; i >= 0; i-- {
		if i >= 8 {
			continue
		}
		x = x<<8 | uint64(encoded[i])
	}
	return x
}
