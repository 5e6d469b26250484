package smf

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReadVarLen(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    uint32
		wantErr error
	}{
		{"zero", []byte{0x00}, 0, nil},
		{"one byte max", []byte{0x7F}, 127, nil},
		{"128", []byte{0x81, 0x00}, 128, nil},
		{"200", []byte{0x81, 0x48}, 200, nil},
		{"two byte max", []byte{0xFF, 0x7F}, 16383, nil},
		{"three bytes", []byte{0x81, 0x80, 0x00}, 16384, nil},
		{"four byte max", []byte{0xFF, 0xFF, 0xFF, 0x7F}, 0x0FFFFFFF, nil},
		{"runaway", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, 0x0FFFFFFF, ErrVarLenOverflow},
		{"truncated", []byte{0x81}, 1, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadVarLen(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadVarLen() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got != tt.want {
				t.Errorf("ReadVarLen() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadVarLenStopsAtFourBytes(t *testing.T) {
	r := bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x00})
	if _, err := ReadVarLen(r); !errors.Is(err, ErrVarLenOverflow) {
		t.Fatalf("ReadVarLen() error = %v, want overflow", err)
	}
	if r.Len() != 1 {
		t.Errorf("ReadVarLen() consumed %d bytes, want 4", 5-r.Len())
	}
}

func TestReadFixed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		n    int
		want uint32
	}{
		{"byte", []byte{0x2A}, 1, 0x2A},
		{"word", []byte{0x01, 0xE0}, 2, 480},
		{"tryte", []byte{0x07, 0xA1, 0x20}, 3, 500000},
		{"long", []byte{0x00, 0x00, 0x00, 0x06}, 4, 6},
		{"reads only n", []byte{0x12, 0x34, 0x56}, 2, 0x1234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadFixed(bytes.NewReader(tt.data), tt.n)
			if err != nil {
				t.Fatalf("ReadFixed() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadFixed() = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := ReadFixed(bytes.NewReader([]byte{0x01}), 2); err == nil {
		t.Error("ReadFixed() on short input should fail")
	}
}

func TestAppendVarLen(t *testing.T) {
	tests := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x81, 0x00}},
		{16383, []byte{0xFF, 0x7F}},
		{0x0FFFFFFF, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, tt := range tests {
		got := AppendVarLen(nil, tt.value)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("AppendVarLen(%d) = % X, want % X", tt.value, got, tt.want)
		}
	}
}
