package filters

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/ccitt"
)

// packBits turns a string of '0' and '1' into bytes, zero padding the last
// byte.
func packBits(bits string) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, c := range bits {
		if c == '1' {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

func runCode(codes []ccittCode, n int) string {
	table := make(map[int]string)
	for _, c := range codes {
		table[c.value] = c.bits
	}
	for _, c := range extendedMakeupCodes {
		table[c.value] = c.bits
	}
	var sb strings.Builder
	for n >= 2560 {
		sb.WriteString(table[2560])
		n -= 2560
	}
	if n >= 64 {
		sb.WriteString(table[n/64*64])
		n %= 64
	}
	sb.WriteString(table[n])
	return sb.String()
}

// rowsBitmap renders alternating white/black runs, white first, with white
// as 1 bits.
func rowsBitmap(rows [][]int) []byte {
	var sb strings.Builder
	for _, runs := range rows {
		var row strings.Builder
		for i, n := range runs {
			bit := "1"
			if i%2 == 1 {
				bit = "0"
			}
			row.WriteString(strings.Repeat(bit, n))
		}
		for row.Len()%8 != 0 {
			row.WriteByte('0')
		}
		sb.WriteString(row.String())
	}
	return packBits(sb.String())
}

func encodeGroup3(rows [][]int) []byte {
	var sb strings.Builder
	for _, runs := range rows {
		sb.WriteString(eolCode)
		for i, n := range runs {
			if i%2 == 0 {
				sb.WriteString(runCode(whiteCodes, n))
			} else {
				sb.WriteString(runCode(blackCodes, n))
			}
		}
	}
	return packBits(sb.String())
}

// encodeGroup4 codes each row in horizontal mode, or as vertical 0 codes
// when the row repeats the previous one. Rows must have an even number of
// runs.
func encodeGroup4(rows [][]int) []byte {
	return packBits(group4Bits(rows))
}

// eofb is the Group 4 end of block marker: two EOL codes.
const eofb = "000000000001" + "000000000001"

func group4Bits(rows [][]int) string {
	var sb strings.Builder
	for r, runs := range rows {
		if r > 0 && cmp.Equal(runs, rows[r-1]) {
			sb.WriteString(strings.Repeat("1", len(runs)))
			continue
		}
		for i := 0; i+1 < len(runs); i += 2 {
			sb.WriteString("001")
			sb.WriteString(runCode(whiteCodes, runs[i]))
			sb.WriteString(runCode(blackCodes, runs[i+1]))
		}
	}
	return sb.String()
}

var ccittTestRows = [][]int{
	{0, 32},
	{3, 29},
	{3, 29},
	{8, 8, 8, 8},
	{31, 1},
	{1, 1, 1, 29},
	{16, 16},
	{10, 2, 4, 16},
}

func decodeCCITT(t *testing.T, data []byte, opts CCITTOptions) []byte {
	t.Helper()
	return drain(t, NewCCITTFaxStream(NewStream(data, nil), len(data), opts))
}

func TestCCITTGroup4(t *testing.T) {
	encoded := encodeGroup4(ccittTestRows)
	want := rowsBitmap(ccittTestRows)

	r := ccitt.NewReader(bytes.NewReader(encoded), ccitt.MSB, ccitt.Group4, 32, len(ccittTestRows), &ccitt.Options{})
	reference, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reference decoder failed: %v", err)
	}
	if diff := cmp.Diff(want, reference); diff != "" {
		t.Fatalf("test encoder produced unexpected data (-want +got):\n%s", diff)
	}

	got := decodeCCITT(t, encoded, CCITTOptions{K: -1, Columns: 32, Rows: len(ccittTestRows)})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded mismatch (-want +got):\n%s", diff)
	}
}

func TestCCITTGroup3(t *testing.T) {
	rows := append(ccittTestRows, []int{5, 3, 24}, []int{32})
	got := decodeCCITT(t, encodeGroup3(rows), CCITTOptions{K: 0, EndOfLine: true, Columns: 32, Rows: len(rows)})
	if diff := cmp.Diff(rowsBitmap(rows), got); diff != "" {
		t.Errorf("decoded mismatch (-want +got):\n%s", diff)
	}
}

func TestCCITTDefaultWidthWhiteRow(t *testing.T) {
	// Make-up 1728 followed by terminating 0.
	encoded := packBits("010011011" + "00110101")
	for _, blackIs1 := range []bool{false, true} {
		opts := CCITTOptionsFromDict(nil)
		opts.Rows = 1
		opts.EndOfBlock = false
		opts.BlackIs1 = blackIs1

		want := bytes.Repeat([]byte{0xFF}, 216)
		if blackIs1 {
			want = make([]byte, 216)
		}
		if got := decodeCCITT(t, encoded, opts); !bytes.Equal(got, want) {
			t.Errorf("BlackIs1=%v: got % x", blackIs1, got)
		}
	}
}

func TestCCITTGarbageTerminates(t *testing.T) {
	for seed := uint64(0); seed < 8; seed++ {
		data := randomBytes(200, seed)
		s := NewCCITTFaxStream(NewStream(data, nil), len(data), CCITTOptions{K: 0, EndOfLine: true, Columns: 64, EndOfBlock: true})
		if _, err := ReadAll(s, 1<<20); errors.Is(err, ErrDecodedSizeExceeded) {
			t.Errorf("seed %d: decoder did not stop at the end of the data", seed)
		}
	}
}

func TestCCITTOptionsFromDict(t *testing.T) {
	if diff := cmp.Diff(CCITTOptions{Columns: 1728, EndOfBlock: true}, CCITTOptionsFromDict(nil)); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}

	d := generic.NewDictionary()
	d.Set("K", generic.IntegerObject(-1))
	d.Set("Columns", generic.IntegerObject(32))
	d.Set("Rows", generic.IntegerObject(8))
	d.Set("BlackIs1", generic.BooleanObject(true))
	d.Set("EndOfBlock", generic.BooleanObject(false))
	d.Set("EncodedByteAlign", generic.BooleanObject(true))
	want := CCITTOptions{K: -1, Columns: 32, Rows: 8, BlackIs1: true, EncodedByteAlign: true}
	if diff := cmp.Diff(want, CCITTOptionsFromDict(d)); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestCCITTThroughDecodeChain(t *testing.T) {
	// EndOfBlock defaults to true, in which case Rows is not consulted and
	// the EOFB marker decodes as at most one trailing white row.
	tests := []struct {
		name     string
		data     []byte
		parm     func(*generic.DictionaryObject)
		trailing int
	}{
		{
			name:     "end of block",
			data:     packBits(group4Bits(ccittTestRows) + eofb),
			parm:     func(*generic.DictionaryObject) {},
			trailing: 4,
		},
		{
			name: "rows without end of block",
			data: encodeGroup4(ccittTestRows),
			parm: func(d *generic.DictionaryObject) {
				d.Set("EndOfBlock", generic.BooleanObject(false))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parms := generic.NewDictionary()
			parms.Set("K", generic.IntegerObject(-1))
			parms.Set("Columns", generic.IntegerObject(32))
			parms.Set("Rows", generic.IntegerObject(len(ccittTestRows)))
			tt.parm(parms)

			got, err := Decode(tt.data, filterDict(generic.NameObject("CCF"), parms))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			want := rowsBitmap(ccittTestRows)
			if len(got) < len(want) {
				t.Fatalf("decoded %d bytes, want at least %d", len(got), len(want))
			}
			if diff := cmp.Diff(want, got[:len(want)]); diff != "" {
				t.Errorf("decoded mismatch (-want +got):\n%s", diff)
			}
			rest := got[len(want):]
			if len(rest) > tt.trailing || !bytes.Equal(rest, bytes.Repeat([]byte{0xff}, len(rest))) {
				t.Errorf("unexpected trailing data % x", rest)
			}
		})
	}
}
