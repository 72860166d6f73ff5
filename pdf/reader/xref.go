package reader

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// XRefType represents different types of cross-reference entries.
type XRefType int

const (
	// XRefTypeFree represents a freed object number.
	XRefTypeFree XRefType = iota
	// XRefTypeStandard represents a regular top-level object.
	XRefTypeStandard
	// XRefTypeInObjStream represents an object that's part of an object stream.
	XRefTypeInObjStream
)

// String returns the string representation of the XRef type.
func (t XRefType) String() string {
	switch t {
	case XRefTypeFree:
		return "free"
	case XRefTypeStandard:
		return "standard"
	case XRefTypeInObjStream:
		return "in_obj_stream"
	default:
		return "unknown"
	}
}

// XRefEntry is one cross-reference entry.
type XRefEntry struct {
	Type XRefType

	// Offset is the byte offset of a standard entry.
	Offset     int64
	Generation int

	// ObjStream and Index locate an object inside an object stream.
	ObjStream int
	Index     int
}

// xrefTable maps object numbers to entries. Entries seen first win, so
// sections must be added newest first.
type xrefTable map[int]*XRefEntry

func (t xrefTable) add(num int, e *XRefEntry) {
	if _, seen := t[num]; !seen {
		t[num] = e
	}
}

// parseXRefTable parses a classic table starting at the "xref" keyword and
// returns the trailer that follows it.
func parseXRefTable(data []byte, pos int, table xrefTable) (*generic.TrailerDictionary, error) {
	p := generic.NewParserAt(data, pos)
	if tok := p.ReadToken(); tok != "xref" {
		return nil, fmt.Errorf("%w: expected xref at %d, got %q", ErrInvalidXRef, pos, tok)
	}

	for {
		tok := p.ReadToken()
		if tok == "trailer" {
			break
		}
		start, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: bad subsection start %q", ErrInvalidXRef, tok)
		}
		count, err := strconv.Atoi(p.ReadToken())
		if err != nil || count < 0 {
			return nil, fmt.Errorf("%w: bad subsection count for %d", ErrInvalidXRef, start)
		}

		for i := 0; i < count; i++ {
			offTok, genTok, typTok := p.ReadToken(), p.ReadToken(), p.ReadToken()
			offset, err1 := strconv.ParseInt(offTok, 10, 64)
			gen, err2 := strconv.Atoi(genTok)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("%w: bad entry %d: %q %q", ErrInvalidXRef, start+i, offTok, genTok)
			}
			switch typTok {
			case "n":
				table.add(start+i, &XRefEntry{Type: XRefTypeStandard, Offset: offset, Generation: gen})
			case "f":
				table.add(start+i, &XRefEntry{Type: XRefTypeFree, Generation: gen})
			default:
				return nil, fmt.Errorf("%w: bad entry type %q for %d", ErrInvalidXRef, typTok, start+i)
			}
		}
	}

	obj, err := p.ParseObjectOrReference()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer: %w", err)
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: trailer must be dictionary", ErrInvalidXRef)
	}
	return &generic.TrailerDictionary{DictionaryObject: dict}, nil
}

// parseXRefStreamData adds the entries of a decoded xref stream to table.
func parseXRefStreamData(dict *generic.DictionaryObject, data []byte, table xrefTable) error {
	wArray := dict.GetArray("W")
	if len(wArray) != 3 {
		return fmt.Errorf("%w: invalid W array", ErrInvalidXRef)
	}
	var w [3]int
	for i, v := range wArray {
		iv, ok := v.(generic.IntegerObject)
		if !ok || iv < 0 || iv > 8 {
			return fmt.Errorf("%w: invalid W array", ErrInvalidXRef)
		}
		w[i] = int(iv)
	}
	entrySize := w[0] + w[1] + w[2]
	if entrySize == 0 {
		return fmt.Errorf("%w: zero entry size", ErrInvalidXRef)
	}

	var index []int
	if arr := dict.GetArray("Index"); arr != nil {
		for _, v := range arr {
			iv, ok := v.(generic.IntegerObject)
			if !ok {
				return fmt.Errorf("%w: invalid Index array", ErrInvalidXRef)
			}
			index = append(index, int(iv))
		}
		if len(index)%2 != 0 {
			return fmt.Errorf("%w: odd Index array", ErrInvalidXRef)
		}
	} else {
		index = []int{0, dict.GetIntDefault("Size", 0)}
	}

	pos := 0
	for i := 0; i < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+entrySize > len(data) {
				return fmt.Errorf("%w: xref stream data too short", ErrInvalidXRef)
			}
			entry := data[pos : pos+entrySize]
			pos += entrySize

			typ := int64(1)
			if w[0] > 0 {
				typ = readField(entry[:w[0]])
			}
			f2 := readField(entry[w[0] : w[0]+w[1]])
			f3 := readField(entry[w[0]+w[1]:])
			switch typ {
			case 0:
				table.add(start+j, &XRefEntry{Type: XRefTypeFree, Generation: int(f3)})
			case 1:
				table.add(start+j, &XRefEntry{Type: XRefTypeStandard, Offset: f2, Generation: int(f3)})
			case 2:
				table.add(start+j, &XRefEntry{Type: XRefTypeInObjStream, ObjStream: int(f2), Index: int(f3)})
			default:
				// Unknown types are references to the null object.
				table.add(start+j, &XRefEntry{Type: XRefTypeFree})
			}
		}
	}
	return nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// ObjectStream is a decoded object stream.
type ObjectStream struct {
	data    []byte
	first   int
	numbers []int
	offsets []int
}

// ParseObjectStream reads the header of a decoded object stream.
func ParseObjectStream(dict *generic.DictionaryObject, data []byte) (*ObjectStream, error) {
	if dict.GetName("Type") != "ObjStm" {
		return nil, fmt.Errorf("%w: not an object stream", ErrInvalidPDF)
	}
	n := dict.GetIntDefault("N", -1)
	first := dict.GetIntDefault("First", -1)
	if n < 0 || first < 0 || first > len(data) {
		return nil, fmt.Errorf("%w: bad object stream N %d First %d", ErrInvalidPDF, n, first)
	}

	os := &ObjectStream{data: data, first: first}
	p := generic.NewParser(data[:first])
	for i := 0; i < n; i++ {
		num, err1 := strconv.Atoi(p.ReadToken())
		off, err2 := strconv.Atoi(p.ReadToken())
		if err1 != nil || err2 != nil || off < 0 || first+off > len(data) {
			return nil, fmt.Errorf("%w: bad object stream header entry %d", ErrInvalidPDF, i)
		}
		os.numbers = append(os.numbers, num)
		os.offsets = append(os.offsets, off)
	}
	return os, nil
}

// Len returns the number of objects in the stream.
func (os *ObjectStream) Len() int {
	return len(os.numbers)
}

// Object parses the object at index and returns it with its number.
func (os *ObjectStream) Object(index int) (int, generic.PdfObject, error) {
	if index < 0 || index >= len(os.numbers) {
		return 0, nil, fmt.Errorf("%w: index %d of %d", ErrObjectNotFound, index, len(os.numbers))
	}
	p := generic.NewParserAt(os.data, os.first+os.offsets[index])
	obj, err := p.ParseObjectOrReference()
	if err != nil {
		return 0, nil, err
	}
	return os.numbers[index], obj, nil
}

// findStartXRef returns the offset following the last startxref keyword.
func findStartXRef(data []byte) (int64, error) {
	pos := bytes.LastIndex(data, []byte("startxref"))
	if pos == -1 {
		return 0, ErrNoXRef
	}
	p := generic.NewParserAt(data, pos+len("startxref"))
	tok := p.ReadToken()
	offset, err := strconv.ParseInt(tok, 10, 64)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: invalid startxref %q", ErrInvalidXRef, tok)
	}
	return offset, nil
}
