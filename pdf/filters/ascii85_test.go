package filters

import (
	"bytes"
	"errors"
	"testing"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

func TestAscii85Decode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"hello world", "87cURD]i,\"Ebo7~>", []byte("Hello World")},
		{"hello world punctuated", "87cURD_*#4DfTZ)+T~>", []byte("Hello, World!")},
		{"z shorthand", "z~>", []byte{0, 0, 0, 0}},
		{"z between groups", "87cURzD]i,\"~>", []byte("Hell\x00\x00\x00\x00o Wo")},
		{"empty", "~>", nil},
		{"no terminator", "87cUR", []byte("Hell")},
		{"whitespace", " 87c\nUR\tD]i,\r\"Eb o7 ~>", []byte("Hello World")},
		{"single trailing char", "87cURD~>", []byte("Hell")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drain(t, NewAscii85Stream(NewStream([]byte(tt.input), nil), len(tt.input)))
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decoded %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAscii85InvalidCharacter(t *testing.T) {
	for _, input := range []string{"87c{U~>", "8zcUR~>", "\x7f~>"} {
		_, err := ReadAll(NewAscii85Stream(NewStream([]byte(input), nil), 0), 0)
		if !errors.Is(err, generic.ErrMalformedStream) {
			t.Errorf("%q: expected malformed stream error, got %v", input, err)
		}
	}
}

func TestAscii85RoundTrip(t *testing.T) {
	for _, size := range roundTripSizes {
		data := randomBytes(size, 85)
		if size > 8 {
			copy(data[4:8], []byte{0, 0, 0, 0})
		}
		encoded, err := encodeAscii85(data)
		if err != nil {
			t.Fatalf("size %d: encode: %v", size, err)
		}
		got := drain(t, NewAscii85Stream(NewStream(encoded, nil), len(encoded)))
		if !bytes.Equal(got, data) {
			t.Errorf("size %d: round trip mismatch", size)
		}
	}
}
