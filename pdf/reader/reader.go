// Package reader provides PDF file reading: cross-reference sections,
// object fetching and page enumeration.
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/crypt"
	"github.com/georgepadayatti/pdfstream/pdf/filters"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
	"github.com/georgepadayatti/pdfstream/pdf/writer"
)

// Common errors
var (
	ErrInvalidPDF     = errors.New("invalid PDF file")
	ErrNoXRef         = errors.New("no xref found")
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidXRef    = errors.New("invalid xref")
	ErrEncrypted      = errors.New("PDF is encrypted")
)

var headerRegex = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// Options configure a PdfFileReader.
type Options struct {
	// Filters bound stream decoding.
	Filters filters.ChainOptions

	// Cipher decrypts strings and streams of encrypted files.
	Cipher *crypt.CipherFactory
}

// PdfFileReader reads a PDF file held in memory.
type PdfFileReader struct {
	data    []byte
	opts    Options
	Version string
	Trailer *generic.TrailerDictionary
	XRef    map[int]*XRefEntry

	// XRefOffsets lists the cross-reference sections, newest first.
	XRefOffsets []int64

	// HasXRefStream is set when the newest section is a stream.
	HasXRefStream bool

	objects    map[int]generic.PdfObject
	objStreams map[int]*ObjectStream
	loading    map[int]bool
	encryptRef *generic.Reference
	pages      []*Page
}

// NewPdfFileReader reads all of r and parses it.
func NewPdfFileReader(r io.Reader, opts Options) (*PdfFileReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}
	return NewPdfFileReaderFromBytes(data, opts)
}

// NewPdfFileReaderFromBytes parses data. The reader keeps data; callers
// must not modify it.
func NewPdfFileReaderFromBytes(data []byte, opts Options) (*PdfFileReader, error) {
	r := &PdfFileReader{
		data:       data,
		opts:       opts,
		XRef:       make(map[int]*XRefEntry),
		objects:    make(map[int]generic.PdfObject),
		objStreams: make(map[int]*ObjectStream),
		loading:    make(map[int]bool),
	}
	if err := r.parse(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PdfFileReader) parse() error {
	match := headerRegex.FindSubmatch(r.data[:min(1024, len(r.data))])
	if match == nil {
		return fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}
	r.Version = string(match[1])

	offset, err := findStartXRef(r.data)
	if err != nil {
		return err
	}
	if err := r.parseXRefChain(offset); err != nil {
		return err
	}

	r.encryptRef = r.Trailer.GetEncrypt()
	if r.encryptRef != nil && r.opts.Cipher == nil {
		logging.Logger().Warn("encrypted file read without a cipher, strings and streams stay encrypted")
	}
	if r.Trailer.GetRoot() == nil {
		return fmt.Errorf("%w: missing Root", ErrInvalidPDF)
	}
	return nil
}

func (r *PdfFileReader) parseXRefChain(offset int64) error {
	table := xrefTable(r.XRef)
	visited := make(map[int64]bool)
	for {
		if visited[offset] {
			logging.Logger().Warn("xref chain loops", slog.Int64("offset", offset))
			break
		}
		visited[offset] = true
		if offset >= int64(len(r.data)) {
			return fmt.Errorf("%w: xref offset %d out of bounds", ErrInvalidXRef, offset)
		}
		r.XRefOffsets = append(r.XRefOffsets, offset)

		trailer, isStream, err := r.parseXRefSection(int(offset), table)
		if err != nil {
			return err
		}
		if r.Trailer == nil {
			r.Trailer = trailer
			r.HasXRefStream = isStream
		}

		// Hybrid files point to an additional xref stream.
		if stm, ok := trailer.GetInt("XRefStm"); ok && !isStream && !visited[stm] {
			visited[stm] = true
			if _, _, err := r.parseXRefSection(int(stm), table); err != nil {
				return err
			}
		}

		prev, ok := trailer.GetPrev()
		if !ok {
			break
		}
		offset = prev
	}
	return nil
}

func (r *PdfFileReader) parseXRefSection(pos int, table xrefTable) (*generic.TrailerDictionary, bool, error) {
	p := generic.NewParserAt(r.data, pos)
	p.SkipWhitespace()
	if bytes.HasPrefix(r.data[p.Pos():], []byte("xref")) {
		trailer, err := parseXRefTable(r.data, p.Pos(), table)
		return trailer, false, err
	}

	ind, err := p.ParseIndirectObject()
	if err != nil {
		return nil, true, fmt.Errorf("failed to parse xref stream at %d: %w", pos, err)
	}
	stream, ok := ind.Object.(*generic.StreamObject)
	if !ok || stream.Dictionary.GetName("Type") != "XRef" {
		return nil, true, fmt.Errorf("%w: no xref stream at %d", ErrInvalidXRef, pos)
	}
	data, err := r.DecodeStream(stream)
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode xref stream: %w", err)
	}
	if err := parseXRefStreamData(stream.Dictionary, data, table); err != nil {
		return nil, true, err
	}
	return &generic.TrailerDictionary{DictionaryObject: stream.Dictionary}, true, nil
}

// Data returns the file bytes.
func (r *PdfFileReader) Data() []byte {
	return r.data
}

// Cipher returns the cipher factory the reader decrypts with, or nil.
func (r *PdfFileReader) Cipher() *crypt.CipherFactory {
	return r.opts.Cipher
}

// IsEncrypted reports whether the trailer names an Encrypt dictionary.
func (r *PdfFileReader) IsEncrypted() bool {
	return r.encryptRef != nil
}

// GetObject returns the object ref points to. Free or missing objects are
// the null object.
func (r *PdfFileReader) GetObject(ref generic.Reference) (generic.PdfObject, error) {
	num := ref.ObjectNumber
	if obj, ok := r.objects[num]; ok {
		return obj, nil
	}
	entry, ok := r.XRef[num]
	if !ok || entry.Type == XRefTypeFree {
		return generic.NullObject{}, nil
	}
	if r.loading[num] {
		return nil, fmt.Errorf("%w: object %d refers to itself while loading", ErrInvalidPDF, num)
	}
	r.loading[num] = true
	defer delete(r.loading, num)

	var obj generic.PdfObject
	var err error
	if entry.Type == XRefTypeInObjStream {
		obj, err = r.objectFromStream(num, entry)
	} else {
		obj, err = r.objectAtOffset(num, entry)
	}
	if err != nil {
		return nil, err
	}
	r.objects[num] = obj
	return obj, nil
}

// Resolve follows obj if it is a reference.
func (r *PdfFileReader) Resolve(obj generic.PdfObject) (generic.PdfObject, error) {
	if ref, ok := obj.(generic.Reference); ok {
		return r.GetObject(ref)
	}
	return obj, nil
}

// ResolveDict resolves obj and returns it when it is a dictionary.
func (r *PdfFileReader) ResolveDict(obj generic.PdfObject) (*generic.DictionaryObject, error) {
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil, err
	}
	dict, _ := resolved.(*generic.DictionaryObject)
	return dict, nil
}

func (r *PdfFileReader) objectAtOffset(num int, entry *XRefEntry) (generic.PdfObject, error) {
	if entry.Offset < 0 || entry.Offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("%w: object %d offset %d out of bounds", ErrObjectNotFound, num, entry.Offset)
	}
	p := generic.NewParserAt(r.data, int(entry.Offset))
	p.ResolveLength = r.resolveLength
	ind, err := p.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	if ind.ObjectNumber != num {
		return nil, fmt.Errorf("%w: xref entry for %d points to object %d", ErrInvalidXRef, num, ind.ObjectNumber)
	}

	obj := ind.Object
	if r.encryptRef != nil && r.opts.Cipher != nil && r.encryptRef.ObjectNumber != num {
		if !isXRefStream(obj) {
			tr := r.opts.Cipher.CreateCipherTransform(num, ind.GenerationNumber)
			if err := decryptObject(obj, tr); err != nil {
				return nil, fmt.Errorf("object %d: %w", num, err)
			}
		}
	}
	return obj, nil
}

func isXRefStream(obj generic.PdfObject) bool {
	s, ok := obj.(*generic.StreamObject)
	return ok && s.Dictionary.GetName("Type") == "XRef"
}

func (r *PdfFileReader) resolveLength(ref generic.Reference) (int64, bool) {
	obj, err := r.GetObject(ref)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(generic.IntegerObject)
	return int64(n), ok
}

func (r *PdfFileReader) objectFromStream(num int, entry *XRefEntry) (generic.PdfObject, error) {
	os, ok := r.objStreams[entry.ObjStream]
	if !ok {
		obj, err := r.GetObject(generic.NewReference(entry.ObjStream, 0))
		if err != nil {
			return nil, err
		}
		stream, ok := obj.(*generic.StreamObject)
		if !ok {
			return nil, fmt.Errorf("%w: object stream %d is not a stream", ErrInvalidPDF, entry.ObjStream)
		}
		data, err := r.DecodeStream(stream)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", entry.ObjStream, err)
		}
		if os, err = ParseObjectStream(stream.Dictionary, data); err != nil {
			return nil, err
		}
		r.objStreams[entry.ObjStream] = os
	}

	got, obj, err := os.Object(entry.Index)
	if err != nil {
		return nil, err
	}
	if got != num {
		return nil, fmt.Errorf("%w: object stream %d holds %d at index %d, not %d",
			ErrInvalidXRef, entry.ObjStream, got, entry.Index, num)
	}
	return obj, nil
}

// DecodeStream returns the decoded data of stream.
func (r *PdfFileReader) DecodeStream(stream *generic.StreamObject) ([]byte, error) {
	return filters.DecodeWithOptions(stream.Data, stream.Dictionary, r.opts.Filters)
}

// decryptObject decrypts the strings and stream data of obj in place.
func decryptObject(obj generic.PdfObject, tr *crypt.CipherTransform) error {
	switch v := obj.(type) {
	case *generic.StringObject:
		plain, err := tr.DecryptString(v.Value)
		if err != nil {
			return err
		}
		v.Value = plain
	case generic.ArrayObject:
		for _, item := range v {
			if err := decryptObject(item, tr); err != nil {
				return err
			}
		}
	case *generic.DictionaryObject:
		for _, key := range v.Keys() {
			if err := decryptObject(v.Get(key), tr); err != nil {
				return err
			}
		}
	case *generic.StreamObject:
		if err := decryptObject(v.Dictionary, tr); err != nil {
			return err
		}
		plain, err := tr.DecryptStream(v.Data)
		if err != nil {
			return err
		}
		v.Data = plain
	}
	return nil
}

// Root returns the document catalog.
func (r *PdfFileReader) Root() (*generic.DictionaryObject, error) {
	root, err := r.ResolveDict(*r.Trailer.GetRoot())
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: Root is not a dictionary", ErrInvalidPDF)
	}
	return root, nil
}

// Info returns the document information dictionary, or nil.
func (r *PdfFileReader) Info() *generic.DictionaryObject {
	ref := r.Trailer.GetInfo()
	if ref == nil {
		return nil
	}
	info, err := r.ResolveDict(*ref)
	if err != nil {
		logging.Logger().Warn("cannot load Info dictionary", slog.Any("error", err))
		return nil
	}
	return info
}

// Size returns the number of object numbers in use: the larger of the
// trailer Size and the highest cross-referenced number plus one.
func (r *PdfFileReader) Size() int {
	size := int(r.Trailer.GetSize())
	for num := range r.XRef {
		size = max(size, num+1)
	}
	return size
}

// XRefInfo describes this file for an incremental update. NewRef is left
// for the caller to set.
func (r *PdfFileReader) XRefInfo(filename string) writer.XRefInfo {
	info := writer.XRefInfo{
		StartXRef: r.XRefOffsets[0],
		Root:      r.Trailer.GetRoot(),
		Info:      r.Trailer.GetInfo(),
		Encrypt:   r.Trailer.GetEncrypt(),
		FileIDs:   r.Trailer.GetID(),
		Filename:  filename,
		InfoMap:   r.Info(),
		PrevSize:  r.Size(),
	}
	return info
}
