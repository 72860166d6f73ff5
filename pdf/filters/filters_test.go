package filters

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// roundTripSizes straddle the buffer doubling boundaries.
var roundTripSizes = []int{0, 1, 511, 512, 513, 4097}

func randomBytes(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, 0))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func textBytes(n int) []byte {
	const text = "The quick brown fox jumps over the lazy dog. 0123456789\n"
	return bytes.Repeat([]byte(text), n/len(text)+1)[:n]
}

func drain(t *testing.T, s Source) []byte {
	t.Helper()
	out, err := ReadAll(s, 0)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return out
}

func filterDict(filter generic.PdfObject, parms generic.PdfObject) *generic.DictionaryObject {
	d := generic.NewDictionary()
	if filter != nil {
		d.Set("Filter", filter)
	}
	if parms != nil {
		d.Set("DecodeParms", parms)
	}
	return d
}

func TestCanonicalName(t *testing.T) {
	tests := map[string]string{
		"AHx":         ASCIIHexDecode,
		"A85":         ASCII85Decode,
		"LZW":         LZWDecode,
		"Fl":          FlateDecode,
		"RL":          RunLengthDecode,
		"CCF":         CCITTFaxDecode,
		"DCT":         DCTDecode,
		"FlateDecode": FlateDecode,
		"Custom":      "Custom",
	}
	for in, want := range tests {
		if got := CanonicalName(in); got != want {
			t.Errorf("CanonicalName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetDecoder(t *testing.T) {
	for _, name := range []string{"FlateDecode", "Fl", "LZWDecode", "ASCII85Decode", "AHx", "RL", "CCF"} {
		if _, err := GetDecoder(name); err != nil {
			t.Errorf("GetDecoder(%q) failed: %v", name, err)
		}
	}
	if _, err := GetDecoder("UnknownFilter"); !errors.Is(err, ErrUnsupportedFilter) {
		t.Errorf("expected ErrUnsupportedFilter, got %v", err)
	}
}

func TestFilterList(t *testing.T) {
	parms := generic.NewDictionary()
	parms.Set("Predictor", generic.IntegerObject(12))

	tests := []struct {
		name      string
		dict      *generic.DictionaryObject
		wantNames []string
		wantParms []bool
	}{
		{"none", filterDict(nil, nil), nil, nil},
		{"single name", filterDict(generic.NameObject("Fl"), parms), []string{"Fl"}, []bool{true}},
		{"array", filterDict(generic.NewArray(generic.NameObject("A85"), generic.NameObject("Fl")), nil), []string{"A85", "Fl"}, []bool{false, false}},
		{"array parms", filterDict(
			generic.NewArray(generic.NameObject("A85"), generic.NameObject("Fl")),
			generic.NewArray(generic.NullObject{}, parms),
		), []string{"A85", "Fl"}, []bool{false, true}},
		{"array with dict parms", filterDict(
			generic.NewArray(generic.NameObject("Fl"), generic.NameObject("AHx")),
			parms,
		), []string{"Fl", "AHx"}, []bool{false, false}},
		{"one element array with dict parms", filterDict(generic.NewArray(generic.NameObject("Fl")), parms), []string{"Fl"}, []bool{false}},
		{"null filter", filterDict(generic.NullObject{}, nil), nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, got, err := FilterList(tt.dict)
			if err != nil {
				t.Fatalf("FilterList failed: %v", err)
			}
			if diff := cmp.Diff(tt.wantNames, names); diff != "" {
				t.Errorf("names mismatch (-want +got):\n%s", diff)
			}
			for i, want := range tt.wantParms {
				if (got[i] != nil) != want {
					t.Errorf("parms[%d] present = %v, want %v", i, got[i] != nil, want)
				}
			}
		})
	}

	inline := generic.NewDictionary()
	inline.Set("F", generic.NameObject("AHx"))
	inline.Set("DP", parms)
	names, got, err := FilterList(inline)
	if err != nil || len(names) != 1 || names[0] != "AHx" || got[0] != parms {
		t.Errorf("inline image keys: %v, %v, %v", names, got, err)
	}

	fileSpec := generic.NewDictionary()
	fileSpec.Set("F", generic.NewLiteralString("external.dat"))
	if names, _, err := FilterList(fileSpec); err != nil || names != nil {
		t.Errorf("F file specification should be ignored: %v, %v", names, err)
	}

	if _, _, err := FilterList(filterDict(generic.IntegerObject(3), nil)); !errors.Is(err, generic.ErrMalformedStream) {
		t.Errorf("expected malformed stream error, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	chains := [][]string{
		{FlateDecode},
		{LZWDecode},
		{ASCII85Decode},
		{ASCIIHexDecode},
		{RunLengthDecode},
		{ASCII85Decode, FlateDecode},
		{ASCIIHexDecode, LZWDecode, RunLengthDecode},
	}

	for _, chain := range chains {
		for _, size := range roundTripSizes {
			for _, data := range [][]byte{randomBytes(size, uint64(size)), textBytes(size)} {
				t.Run(fmt.Sprintf("%v/%d", chain, size), func(t *testing.T) {
					encoded, err := Encode(data, chain, nil)
					if err != nil {
						t.Fatalf("Encode failed: %v", err)
					}

					arr := generic.NewArray()
					for _, name := range chain {
						arr = append(arr, generic.NameObject(name))
					}
					decoded, err := Decode(encoded, filterDict(arr, nil))
					if err != nil {
						t.Fatalf("Decode failed: %v", err)
					}
					if !bytes.Equal(decoded, data) {
						t.Errorf("round trip mismatch: got %d bytes, want %d", len(decoded), len(data))
					}
				})
			}
		}
	}
}

func TestDecodeWithoutFilter(t *testing.T) {
	data := []byte("plain data")
	got, err := Decode(data, nil)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("Decode(nil dict) = %q, %v", got, err)
	}
}

func TestDecodeFlateWithPredictor(t *testing.T) {
	// Two PNG Up rows of three columns.
	raw := []byte{0, 10, 20, 30, 2, 5, 5, 5}
	encoded, err := CompressFlate(raw, 9)
	if err != nil {
		t.Fatalf("CompressFlate failed: %v", err)
	}

	parms := generic.NewDictionary()
	parms.Set("Predictor", generic.IntegerObject(12))
	parms.Set("Columns", generic.IntegerObject(3))

	got, err := Decode(encoded, filterDict(generic.NameObject("FlateDecode"), parms))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []byte{10, 20, 30, 15, 25, 35}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeUnsupportedPredictorPassesThrough(t *testing.T) {
	encoded, err := CompressFlate([]byte("abc"), -1)
	if err != nil {
		t.Fatalf("CompressFlate failed: %v", err)
	}
	parms := generic.NewDictionary()
	parms.Set("Predictor", generic.IntegerObject(5))

	got, err := Decode(encoded, filterDict(generic.NameObject("FlateDecode"), parms))
	if err != nil || string(got) != "abc" {
		t.Errorf("Decode = %q, %v", got, err)
	}
}

func TestDecodeStopsAtImageCodec(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}
	encoded := encodeAsciiHex(jpeg)
	dict := filterDict(generic.NewArray(generic.NameObject("AHx"), generic.NameObject("DCTDecode")), nil)

	got, err := Decode(encoded, dict)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(got, jpeg) {
		t.Errorf("Decode = %x, want %x", got, jpeg)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		filter string
		target error
	}{
		{"unknown filter", []byte("x"), "Bogus", ErrUnsupportedFilter},
		{"bad flate header", []byte{0x79, 0x9c}, "FlateDecode", generic.ErrMalformedStream},
		{"bad ascii85", []byte("87c{~>"), "ASCII85Decode", generic.ErrMalformedStream},
		{"bad lzw code", []byte{0x80, 0x4b, 0x00}, "LZWDecode", ErrDecodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, filterDict(generic.NameObject(tt.filter), nil))
			if !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestDecodeMaxSize(t *testing.T) {
	encoded, err := CompressFlate(make([]byte, 10000), 9)
	if err != nil {
		t.Fatalf("CompressFlate failed: %v", err)
	}
	dict := filterDict(generic.NameObject("FlateDecode"), nil)

	if _, err := DecodeWithOptions(encoded, dict, ChainOptions{MaxDecodedSize: 9999}); !errors.Is(err, ErrDecodedSizeExceeded) {
		t.Errorf("expected ErrDecodedSizeExceeded, got %v", err)
	}
	got, err := DecodeWithOptions(encoded, dict, ChainOptions{MaxDecodedSize: 10000, MinBufferLength: 3000})
	if err != nil || len(got) != 10000 {
		t.Errorf("DecodeWithOptions = %d bytes, %v", len(got), err)
	}
}

func TestEncodeErrors(t *testing.T) {
	if _, err := Encode([]byte("x"), []string{"CCITTFaxDecode"}, nil); !errors.Is(err, ErrUnsupportedFilter) {
		t.Errorf("expected ErrUnsupportedFilter, got %v", err)
	}
	parms := generic.NewDictionary()
	parms.Set("Predictor", generic.IntegerObject(12))
	if _, err := Encode([]byte("x"), []string{"FlateDecode"}, []*generic.DictionaryObject{parms}); !errors.Is(err, ErrUnsupportedFilter) {
		t.Errorf("expected ErrUnsupportedFilter for predictor, got %v", err)
	}
}

func TestEncodeLZWEarlyChange(t *testing.T) {
	data := textBytes(5000)
	for _, ec := range []int{0, 1} {
		parms := generic.NewDictionary()
		parms.Set("EarlyChange", generic.IntegerObject(ec))
		encoded, err := Encode(data, []string{"LZW"}, []*generic.DictionaryObject{parms})
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		decoded, err := Decode(encoded, filterDict(generic.NameObject("LZW"), parms))
		if err != nil {
			t.Fatalf("EarlyChange %d: Decode failed: %v", ec, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("EarlyChange %d: round trip mismatch", ec)
		}
	}
}
