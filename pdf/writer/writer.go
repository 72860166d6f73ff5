package writer

import (
	"fmt"
	"io"
	"time"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
	"github.com/georgepadayatti/pdfstream/pdf/metadata"
)

// PdfFileWriter creates new PDF files. Objects are collected in memory and
// written as a single revision by the incremental update engine.
type PdfFileWriter struct {
	Version string

	// UseXrefStream writes a cross-reference stream instead of a table.
	UseXrefStream bool

	// UseObjectStreams packs non-stream objects into object streams. It
	// implies UseXrefStream.
	UseObjectStreams bool

	Serializer *Serializer
	Encrypt    Encrypter
	Now        func() time.Time

	objects    *ChangeSet
	nextObjNum int
	root       *generic.Reference
	info       *generic.Reference
	encrypt    *generic.Reference
	fileID     []byte
}

// NewPdfFileWriter creates a writer for a file of the given version.
func NewPdfFileWriter(version string) *PdfFileWriter {
	if version == "" {
		version = "1.7"
	}
	return &PdfFileWriter{
		Version:    version,
		objects:    NewChangeSet(),
		nextObjNum: 1,
	}
}

// AddObject adds an object and returns its reference.
func (w *PdfFileWriter) AddObject(obj generic.PdfObject) generic.Reference {
	ref := w.ReserveRef()
	w.objects.PutObject(ref, obj)
	return ref
}

// ReserveRef allocates an object number without an object.
func (w *PdfFileWriter) ReserveRef() generic.Reference {
	ref := generic.NewReference(w.nextObjNum, 0)
	w.nextObjNum++
	return ref
}

// SetObject stores obj under a reference from ReserveRef or AddObject.
func (w *PdfFileWriter) SetObject(ref generic.Reference, obj generic.PdfObject) {
	w.objects.PutObject(ref, obj)
}

// SetRoot sets the document catalog.
func (w *PdfFileWriter) SetRoot(ref generic.Reference) {
	w.root = &ref
}

// SetInfo adds info as the document information dictionary.
func (w *PdfFileWriter) SetInfo(info *generic.DictionaryObject) generic.Reference {
	ref := w.AddObject(info)
	w.info = &ref
	return ref
}

// SetEncrypt sets the Encrypt dictionary and the first file identifier it
// was derived with. The dictionary itself is written unencrypted.
func (w *PdfFileWriter) SetEncrypt(ref generic.Reference, fileID []byte) {
	w.encrypt = &ref
	w.fileID = fileID
}

// NextObjectNumber returns the number the next added object gets.
func (w *PdfFileWriter) NextObjectNumber() int {
	return w.nextObjNum
}

// Header returns the file header: the version line and a binary comment.
func Header(version string, binary []byte) []byte {
	h := fmt.Appendf(nil, "%%PDF-%s\n%%", version)
	h = append(h, binary...)
	return append(h, '\n')
}

// Write writes the complete file to out.
func (w *PdfFileWriter) Write(out io.Writer) error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// Bytes returns the complete file.
func (w *PdfFileWriter) Bytes() ([]byte, error) {
	if w.root == nil {
		return nil, generic.NewPdfWriteError("document has no catalog")
	}

	changes := NewChangeSet()
	for _, c := range w.objects.Sorted() {
		changes.PutObject(c.Ref, c.Value)
	}
	changes.Delete(generic.NewReference(0, 0xffff))

	next := w.nextObjNum
	if w.UseObjectStreams {
		// The Encrypt dictionary has to stay a top-level object.
		encrypt := w.encrypt
		if encrypt != nil {
			changes.Delete(*encrypt)
		}
		alloc := func() generic.Reference {
			ref := generic.NewReference(next, 0)
			next++
			return ref
		}
		if _, err := changes.PackObjectStreams(alloc, w.Serializer); err != nil {
			return nil, err
		}
		if encrypt != nil {
			if c, ok := w.objects.Get(encrypt.ObjectNumber); ok {
				changes.PutObject(*encrypt, c.Value)
			}
		}
	}

	info := XRefInfo{
		Root:    w.root,
		Info:    w.info,
		Encrypt: w.encrypt,
		FileIDs: [][]byte{w.fileID},
	}
	if w.info != nil {
		if c, ok := w.objects.Get(w.info.ObjectNumber); ok {
			info.InfoMap, _ = c.Value.(*generic.DictionaryObject)
		}
	}
	opts := UpdateOptions{
		UseXrefStream: w.UseXrefStream || w.UseObjectStreams,
		Encrypt:       w.Encrypt,
		EncryptRef:    w.encrypt,
		Serializer:    w.Serializer,
		Now:           w.Now,
	}
	if opts.UseXrefStream {
		xrefRef := generic.NewReference(next, 0)
		info.NewRef = &xrefRef
	}
	return IncrementalUpdate(Header(w.Version, []byte{0xe2, 0xe3, 0xcf, 0xd3}), info, changes, opts)
}

// NewInfoDict creates an Info dictionary with a creation date and this
// package as producer.
func NewInfoDict(now time.Time) *generic.DictionaryObject {
	return metadata.NewDocumentMetadata(now).InfoDict()
}
