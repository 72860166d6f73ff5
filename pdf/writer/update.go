package writer

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"strconv"
	"time"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// XRefInfo describes the document an incremental update is appended to.
type XRefInfo struct {
	// NewRef is the reference of the cross-reference stream. It is required
	// when writing an xref stream and must be above every changed object
	// number.
	NewRef *generic.Reference

	// StartXRef is the offset of the previous cross-reference section.
	// Zero means there is none and no Prev entry is written.
	StartXRef int64

	Root    *generic.Reference
	Info    *generic.Reference
	Encrypt *generic.Reference

	// FileIDs are the identifiers of the previous revision. When not empty
	// a new ID pair is computed.
	FileIDs [][]byte

	// Filename and InfoMap feed the file identifier digest.
	Filename string
	InfoMap  *generic.DictionaryObject

	// PrevSize is the Size of the previous trailer.
	PrevSize int
}

// UpdateOptions control how IncrementalUpdate writes the changes.
type UpdateOptions struct {
	UseXrefStream bool

	// Encrypt, when set, encrypts the strings and streams of every written
	// object except EncryptRef and the cross-reference stream.
	Encrypt    Encrypter
	EncryptRef *generic.Reference

	Serializer *Serializer

	// Now returns the time used for file identifiers.
	Now func() time.Time
}

type xrefEntry struct {
	num    int
	typ    int
	field2 int64
	field3 int64
}

// IncrementalUpdate appends the changes to original and returns the whole
// new file. original is not modified. On error no output is returned.
func IncrementalUpdate(original []byte, info XRefInfo, changes *ChangeSet, opts UpdateOptions) ([]byte, error) {
	s := opts.Serializer
	if s == nil {
		s = NewSerializer()
	}
	if changes == nil {
		changes = NewChangeSet()
	}
	sorted := changes.Sorted()
	if err := validateChanges(sorted, info, opts); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	baseOffset := int64(len(original))
	if n := len(original); n == 0 || (original[n-1] != '\n' && original[n-1] != '\r') {
		buf.WriteByte('\n')
		baseOffset++
	}

	entries := make([]xrefEntry, 0, len(sorted)+1)
	maxNum := -1
	for _, c := range sorted {
		ref := c.Ref
		maxNum = max(maxNum, ref.ObjectNumber)
		switch {
		case c.ObjStm != nil:
			entries = append(entries, xrefEntry{ref.ObjectNumber, 2, int64(c.ObjStm.ObjectNumber), int64(c.ObjStmIndex)})
		case c.Deleted():
			entries = append(entries, xrefEntry{ref.ObjectNumber, 0, 0, int64(min(ref.GenerationNumber+1, 0xffff))})
		default:
			entries = append(entries, xrefEntry{ref.ObjectNumber, 1, baseOffset, int64(min(ref.GenerationNumber, 0xffff))})
			start := buf.Len()
			if c.Data != nil {
				buf.Write(c.Data)
			} else {
				enc := opts.Encrypt
				if opts.EncryptRef != nil && *opts.EncryptRef == ref {
					enc = nil
				}
				if err := s.WriteObject(&buf, ref, c.Value, enc); err != nil {
					return nil, fmt.Errorf("writing object %s: %w", ref, err)
				}
			}
			baseOffset += int64(buf.Len() - start)
		}
	}

	size := max(maxNum+1, info.PrevSize)
	if info.NewRef != nil {
		size = max(size, info.NewRef.ObjectNumber+1)
	}

	trailer := generic.NewDictionary()
	trailer.Set("Size", generic.IntegerObject(size))
	if info.StartXRef != 0 {
		trailer.Set("Prev", generic.IntegerObject(info.StartXRef))
	}
	if opts.UseXrefStream {
		trailer.Set("Type", generic.NameObject("XRef"))
	}
	if info.Root != nil {
		trailer.Set("Root", *info.Root)
	}
	if info.Info != nil {
		trailer.Set("Info", *info.Info)
	}
	if info.Encrypt != nil {
		trailer.Set("Encrypt", *info.Encrypt)
	}
	if len(info.FileIDs) > 0 {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		digest := ComputeFileID(now(), info.Filename, baseOffset, info.InfoMap)
		first := info.FileIDs[0]
		if len(first) == 0 {
			first = digest
		}
		trailer.Set("ID", generic.ArrayObject{generic.NewHexString(first), generic.NewHexString(digest)})
	}

	xrefOffset := baseOffset
	if opts.UseXrefStream {
		ref := *info.NewRef
		entries = append(entries, xrefEntry{ref.ObjectNumber, 1, xrefOffset, int64(min(ref.GenerationNumber, 0xffff))})
		stream := buildXRefStream(trailer, entries)
		if err := s.WriteObject(&buf, ref, stream, nil); err != nil {
			return nil, fmt.Errorf("writing xref stream: %w", err)
		}
	} else {
		writeXRefTable(&buf, entries)
		buf.WriteString("trailer\n")
		if err := s.WriteDict(&buf, trailer, nil); err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	out := make([]byte, 0, len(original)+buf.Len())
	out = append(out, original...)
	return append(out, buf.Bytes()...), nil
}

func validateChanges(sorted []*Change, info XRefInfo, opts UpdateOptions) error {
	for i, c := range sorted {
		if c.Ref.ObjectNumber < 0 || c.Ref.GenerationNumber < 0 {
			return generic.NewPdfWriteError(fmt.Sprintf("invalid reference %s", c.Ref))
		}
		if i > 0 && sorted[i-1].Ref.ObjectNumber == c.Ref.ObjectNumber {
			return generic.NewPdfWriteError(fmt.Sprintf("object number %d changed twice", c.Ref.ObjectNumber))
		}
		if c.ObjStm != nil && !opts.UseXrefStream {
			return generic.NewPdfWriteError(fmt.Sprintf("object %s is in an object stream, which needs an xref stream", c.Ref))
		}
	}
	if !opts.UseXrefStream {
		return nil
	}
	if info.NewRef == nil {
		return generic.NewPdfWriteError("xref stream needs a reference")
	}
	if n := len(sorted); n > 0 && sorted[n-1].Ref.ObjectNumber >= info.NewRef.ObjectNumber {
		return generic.NewPdfWriteError(fmt.Sprintf("xref stream %s must come after object %d",
			*info.NewRef, sorted[n-1].Ref.ObjectNumber))
	}
	return nil
}

// subsections groups entries sorted by number into runs of consecutive
// object numbers.
func subsections(entries []xrefEntry) [][]xrefEntry {
	var runs [][]xrefEntry
	start := 0
	for i := 1; i <= len(entries); i++ {
		if i == len(entries) || entries[i].num != entries[i-1].num+1 {
			runs = append(runs, entries[start:i])
			start = i
		}
	}
	return runs
}

func writeXRefTable(buf *bytes.Buffer, entries []xrefEntry) {
	buf.WriteString("xref\n")
	for _, run := range subsections(entries) {
		fmt.Fprintf(buf, "%d %d\n", run[0].num, len(run))
		for _, e := range run {
			if e.typ == 0 {
				fmt.Fprintf(buf, "0000000000 %05d f\r\n", e.field3)
			} else {
				fmt.Fprintf(buf, "%010d %05d n\r\n", e.field2, e.field3)
			}
		}
	}
}

// buildXRefStream adds W and Index to trailer and packs entries as
// big-endian fields of those widths.
func buildXRefStream(trailer *generic.DictionaryObject, entries []xrefEntry) *generic.StreamObject {
	var max2, max3 int64
	for _, e := range entries {
		max2 = max(max2, e.field2)
		max3 = max(max3, e.field3)
	}
	w := [3]int{1, byteWidth(max2), byteWidth(max3)}

	var index generic.ArrayObject
	for _, run := range subsections(entries) {
		index = append(index, generic.IntegerObject(run[0].num), generic.IntegerObject(len(run)))
	}
	trailer.Set("Index", index)
	trailer.Set("W", generic.ArrayObject{
		generic.IntegerObject(w[0]), generic.IntegerObject(w[1]), generic.IntegerObject(w[2]),
	})

	data := make([]byte, 0, len(entries)*(w[0]+w[1]+w[2]))
	for _, e := range entries {
		data = appendBigEndian(data, int64(e.typ), w[0])
		data = appendBigEndian(data, e.field2, w[1])
		data = appendBigEndian(data, e.field3, w[2])
	}
	return generic.NewStream(trailer, data)
}

func byteWidth(v int64) int {
	n := 1
	for v > 0xff {
		v >>= 8
		n++
	}
	return n
}

func appendBigEndian(dst []byte, v int64, width int) []byte {
	for shift := (width - 1) * 8; shift >= 0; shift -= 8 {
		dst = append(dst, byte(v>>shift))
	}
	return dst
}

// ComputeFileID returns the MD5 digest of the time in unix seconds, the
// file name, the file size and the string values of info.
func ComputeFileID(t time.Time, filename string, fileSize int64, info *generic.DictionaryObject) []byte {
	h := md5.New()
	h.Write([]byte(strconv.FormatInt(t.Unix(), 10)))
	h.Write([]byte(filename))
	h.Write([]byte(strconv.FormatInt(fileSize, 10)))
	if info != nil {
		for _, key := range info.Keys() {
			if s, ok := info.Get(key).(*generic.StringObject); ok {
				h.Write(s.Value)
			}
		}
	}
	return h.Sum(nil)
}
