package filters

import (
	"bytes"
	"errors"
	"testing"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

func TestFlateDecode(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{
			"stored block",
			[]byte{0x78, 0x9c, 0x01, 0x05, 0x00, 0xfa, 0xff, 'h', 'e', 'l', 'l', 'o'},
			[]byte("hello"),
		},
		{
			"fixed huffman",
			[]byte{0x78, 0x9c, 0xcb, 0x48, 0xcd, 0xc9, 0xc9, 0x57, 0xc8, 0x40, 0x90, 0x00, 0x3a, 0x2e, 0x06, 0x7d},
			[]byte("hello hello hello"),
		},
		{
			"empty stored block with zero check",
			[]byte{0x78, 0x9c, 0x01, 0x00, 0x00, 0x00, 0x00},
			nil,
		},
		{
			"missing final block",
			[]byte{0x78, 0x9c, 0x00, 0x03, 0x00, 0xfc, 0xff, 'a', 'b', 'c'},
			[]byte("abc"),
		},
		{
			"truncated stored block",
			[]byte{0x78, 0x9c, 0x01, 0x05, 0x00, 0xfa, 0xff, 'h', 'e'},
			[]byte("he"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFlateStream(NewStream(tt.input, nil), len(tt.input))
			if err != nil {
				t.Fatalf("NewFlateStream failed: %v", err)
			}
			got := drain(t, s)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decoded %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlateHeaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"one byte", []byte{0x78}},
		{"unknown method", []byte{0x79, 0x9c}},
		{"bad check", []byte{0x78, 0x9d}},
		{"preset dictionary", []byte{0x78, 0xbb}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFlateStream(NewStream(tt.input, nil), 0)
			if !errors.Is(err, generic.ErrMalformedStream) {
				t.Errorf("expected malformed stream error, got %v", err)
			}
		})
	}
}

func lowEntropyBytes(n int) []byte {
	b := randomBytes(n, 31)
	for i := range b {
		b[i] = 'a' + b[i]%16
	}
	return b
}

func TestFlateDecodeErrors(t *testing.T) {
	compressed, err := CompressFlate(lowEntropyBytes(30000), 9)
	if err != nil {
		t.Fatalf("CompressFlate failed: %v", err)
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{"reserved block type", []byte{0x78, 0x9c, 0x07}},
		{"bad stored length", []byte{0x78, 0x9c, 0x01, 0x05, 0x00, 0x00, 0x00, 'h'}},
		{"truncated dynamic block", compressed[:len(compressed)/2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFlateStream(NewStream(tt.input, nil), 0)
			if err != nil {
				t.Fatalf("NewFlateStream failed: %v", err)
			}
			if _, err := ReadAll(s, 0); !errors.Is(err, generic.ErrMalformedStream) {
				t.Errorf("expected malformed stream error, got %v", err)
			}
		})
	}
}

func TestCompressFlateLevels(t *testing.T) {
	data := textBytes(10000)
	for _, level := range []int{-1, 0, 1, 9} {
		compressed, err := CompressFlate(data, level)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		s, err := NewFlateStream(NewStream(compressed, nil), len(compressed))
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		if got := drain(t, s); !bytes.Equal(got, data) {
			t.Errorf("level %d: round trip mismatch", level)
		}
	}

	if _, err := CompressFlate(data, 42); err == nil {
		t.Error("expected an error for an invalid level")
	}
}

func TestFlateRoundTrip(t *testing.T) {
	for _, size := range roundTripSizes {
		for _, data := range [][]byte{randomBytes(size, 3), lowEntropyBytes(size), textBytes(size)} {
			compressed, err := CompressFlate(data, 6)
			if err != nil {
				t.Fatal(err)
			}
			s, err := NewFlateStream(NewStream(compressed, nil), len(compressed))
			if err != nil {
				t.Fatal(err)
			}
			if got := drain(t, s); !bytes.Equal(got, data) {
				t.Errorf("size %d: round trip mismatch", size)
			}
		}
	}
}
