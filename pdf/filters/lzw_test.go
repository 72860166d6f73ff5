package filters

import (
	"bytes"
	"errors"
	"testing"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

func TestLZWDecode(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"literals with end code", []byte{0x20, 0x90, 0xa0, 0x20}, []byte("AB")},
		{"no end code", []byte{0x20, 0x80}, []byte("A")},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drain(t, NewLZWStream(NewStream(tt.input, nil), 0, 1))
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decoded %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLZWDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		// Clear, then code 300 before any entry exists.
		{"invalid code", []byte{0x80, 0x4b, 0x00}},
		{"truncated code", []byte{0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadAll(NewLZWStream(NewStream(tt.input, nil), 0, 1), 0)
			if !errors.Is(err, generic.ErrMalformedStream) {
				t.Errorf("expected malformed stream error, got %v", err)
			}
		})
	}
}

func TestLZWRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	inputs := map[string][]byte{
		"byte values": all,
		"kwkwk":       bytes.Repeat([]byte("a"), 100),
		"text":        textBytes(20000),
		// Enough distinct sequences to fill the dictionary and force a
		// clear code.
		"random": randomBytes(30000, 12),
	}

	for name, data := range inputs {
		for _, early := range []int{0, 1} {
			encoded, err := encodeLZW(data, early == 1)
			if err != nil {
				t.Fatalf("%s: encode failed: %v", name, err)
			}
			got := drain(t, NewLZWStream(NewStream(encoded, nil), len(encoded), early))
			if !bytes.Equal(got, data) {
				t.Errorf("%s early=%d: round trip mismatch (%d vs %d bytes)", name, early, len(got), len(data))
			}
		}
	}
}
