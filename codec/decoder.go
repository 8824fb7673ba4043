package codec

import (
	"math"
)

// Decoder reads canonical values back from a byte slice.
type Decoder struct {
	data   []byte
	offset int
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) Remaining() int {
	return len(d.data) - d.offset
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}
	b := d.data[d.offset : d.offset+n]
	d.offset += n
	return b, nil
}

func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, ErrInvalidTag
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return uint32(DecodeE_l(b)), nil
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return DecodeE_l(b), nil
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// Len reads a sequence length and checks it against the remaining input
// when each element occupies at least minElem bytes.
func (d *Decoder) Len(minElem int) (int, error) {
	n, err := d.Uint64()
	if err != nil {
		return 0, err
	}
	if minElem < 1 {
		minElem = 1
	}
	if n > uint64(d.Remaining()/minElem) {
		return 0, ErrLengthTooLong
	}
	return int(n), nil
}

func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Len(1)
	if err != nil {
		return nil, err
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (d *Decoder) String() (string, error) {
	b, err := d.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) OptionalBytes() ([]byte, error) {
	some, err := d.Bool()
	if err != nil {
		return nil, err
	}
	if !some {
		return nil, nil
	}
	return d.Bytes()
}

func (d *Decoder) OptionalFloat32() (*float32, error) {
	some, err := d.Bool()
	if err != nil {
		return nil, err
	}
	if !some {
		return nil, nil
	}
	v, err := d.Float32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}
