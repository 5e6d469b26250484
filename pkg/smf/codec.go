package smf

import (
	"errors"
	"io"
)

// ErrVarLenOverflow is returned when a variable-length quantity does not
// terminate within four bytes.
var ErrVarLenOverflow = errors.New("variable-length quantity exceeds 4 bytes")

const maxVarLenBytes = 4

// ReadFixed reads n bytes (1 to 4) most significant byte first.
func ReadFixed(r io.ByteReader, n int) (uint32, error) {
	var value uint32
	for i := 0; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return value, err
		}
		value = value<<8 | uint32(b)
	}
	return value, nil
}

// ReadVarLen reads a variable-length quantity: 7 bits per byte, high bit set
// on every byte but the last.
func ReadVarLen(r io.ByteReader) (uint32, error) {
	var value uint32
	for i := 0; i < maxVarLenBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return value, err
		}
		value = value<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return value, nil
		}
	}
	return value, ErrVarLenOverflow
}

// AppendVarLen appends v encoded as a variable-length quantity. Values above
// 0x0FFFFFFF are truncated to 28 bits.
func AppendVarLen(dst []byte, v uint32) []byte {
	v &= 0x0FFFFFFF
	var tmp [maxVarLenBytes]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7F)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7F) | 0x80
	}
	return append(dst, tmp[i:]...)
}
