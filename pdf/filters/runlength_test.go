package filters

import (
	"bytes"
	"testing"
)

func TestRunLengthDecode(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"literal", []byte{0x02, 0x41, 0x42, 0x43}, []byte("ABC")},
		{"repeat", []byte{0xFE, 0x58}, []byte("XXX")},
		{"end marker", []byte{0x80, 0x00, 0x02, 0x41, 0x42, 0x43}, nil},
		{"mixed", []byte{0x01, 'a', 'b', 0x81, 'c', 0x80}, append([]byte("ab"), bytes.Repeat([]byte("c"), 128)...)},
		{"truncated literal", []byte{0x05, 'a', 'b'}, []byte("ab")},
		{"lone header byte", []byte{0x00, 'a', 0x03}, []byte("a")},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drain(t, NewRunLengthStream(NewStream(tt.input, nil), 0))
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decoded %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunLengthEncode(t *testing.T) {
	got := encodeRunLength([]byte("aaaabcd"))
	want := []byte{0xFD, 'a', 0x02, 'b', 'c', 'd', 0x80}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeRunLength = %x, want %x", got, want)
	}
}

func TestRunLengthRoundTrip(t *testing.T) {
	for _, size := range roundTripSizes {
		for _, data := range [][]byte{randomBytes(size, 128), bytes.Repeat([]byte{7}, size), textBytes(size)} {
			encoded := encodeRunLength(data)
			got := drain(t, NewRunLengthStream(NewStream(encoded, nil), len(encoded)))
			if !bytes.Equal(got, data) {
				t.Errorf("size %d: round trip mismatch", size)
			}
		}
	}
}
