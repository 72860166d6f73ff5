// Package writer provides PDF object serialization, incremental updates and
// whole file writing.
package writer

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/georgepadayatti/pdfstream/config"
	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/crypt"
	"github.com/georgepadayatti/pdfstream/pdf/filters"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// DefaultCompressThreshold is the stream length from which streams that are
// not yet Flate encoded get compressed.
const DefaultCompressThreshold = 256

// Transform encrypts the strings and stream data of one object.
type Transform interface {
	EncryptString(data []byte) ([]byte, error)
	EncryptStream(data []byte) ([]byte, error)
}

// Encrypter creates the cipher transform of an object. *crypt.CipherFactory
// implements it.
type Encrypter interface {
	CreateCipherTransform(num, gen int) *crypt.CipherTransform
}

// Serializer writes PDF values in file syntax.
type Serializer struct {
	// CompressThreshold is the smallest stream length that is compressed.
	// Negative disables compression of streams that are not flagged
	// Unfiltered.
	CompressThreshold int

	// Level is the zlib compression level.
	Level int
}

// NewSerializer creates a serializer with the default settings.
func NewSerializer() *Serializer {
	return &Serializer{CompressThreshold: DefaultCompressThreshold, Level: -1}
}

// NewSerializerFromConfig creates a serializer from writer configuration.
func NewSerializerFromConfig(cfg *config.WriterConfig) *Serializer {
	s := NewSerializer()
	if cfg == nil {
		return s
	}
	if cfg.CompressThreshold != nil {
		s.CompressThreshold = *cfg.CompressThreshold
	}
	if cfg.CompressionLevel != nil {
		s.Level = *cfg.CompressionLevel
	}
	return s
}

// WriteObject writes ref's value wrapped in "num gen obj" and "endobj".
// When enc is not nil the object's strings and streams are encrypted with
// its transform.
func (s *Serializer) WriteObject(buf *bytes.Buffer, ref generic.Reference, value generic.PdfObject, enc Encrypter) error {
	var tr Transform
	if enc != nil {
		if ct := enc.CreateCipherTransform(ref.ObjectNumber, ref.GenerationNumber); ct != nil {
			tr = ct
		}
	}
	fmt.Fprintf(buf, "%d %d obj\n", ref.ObjectNumber, ref.GenerationNumber)
	if err := s.WriteValue(buf, value, tr); err != nil {
		return err
	}
	buf.WriteString("\nendobj\n")
	return nil
}

// WriteValue writes value. Unknown kinds are logged and skipped.
func (s *Serializer) WriteValue(buf *bytes.Buffer, value generic.PdfObject, tr Transform) error {
	switch v := value.(type) {
	case generic.NameObject:
		buf.WriteByte('/')
		buf.WriteString(v.Escaped())
	case generic.Reference:
		fmt.Fprintf(buf, "%d %d R", v.ObjectNumber, v.GenerationNumber)
	case generic.ArrayObject:
		return s.writeArray(buf, v, tr)
	case *generic.StringObject:
		return writeString(buf, v, tr)
	case generic.IntegerObject:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case generic.RealObject:
		buf.WriteString(v.String())
	case generic.BooleanObject:
		buf.WriteString(strconv.FormatBool(bool(v)))
	case nil, generic.NullObject:
		buf.WriteString("null")
	case *generic.DictionaryObject:
		return s.WriteDict(buf, v, tr)
	case *generic.StreamObject:
		return s.writeStream(buf, v, tr)
	default:
		warnUnknownKind(value)
	}
	return nil
}

// writable reports whether WriteValue has a representation for value. A
// nil value is written as null.
func writable(value generic.PdfObject) bool {
	switch value.(type) {
	case nil, generic.NullObject, generic.NameObject, generic.Reference, generic.ArrayObject,
		*generic.StringObject, generic.IntegerObject, generic.RealObject, generic.BooleanObject,
		*generic.DictionaryObject, *generic.StreamObject:
		return true
	}
	return false
}

func warnUnknownKind(value generic.PdfObject) {
	logging.Logger().Warn("skipping value of unknown kind", slog.String("type", fmt.Sprintf("%T", value)))
}

// WriteDict writes "<<", then " /Key value" for every entry in order, then
// ">>". Entries whose value has an unknown kind are left out entirely.
func (s *Serializer) WriteDict(buf *bytes.Buffer, dict *generic.DictionaryObject, tr Transform) error {
	buf.WriteString("<<")
	for _, key := range dict.Keys() {
		if v := dict.Get(key); !writable(v) {
			warnUnknownKind(v)
			continue
		}
		buf.WriteString(" /")
		buf.WriteString(generic.NameObject(key).Escaped())
		buf.WriteByte(' ')
		if err := s.WriteValue(buf, dict.Get(key), tr); err != nil {
			return err
		}
	}
	buf.WriteString(">>")
	return nil
}

func (s *Serializer) writeArray(buf *bytes.Buffer, arr generic.ArrayObject, tr Transform) error {
	buf.WriteByte('[')
	sep := false
	for _, item := range arr {
		if !writable(item) {
			warnUnknownKind(item)
			continue
		}
		if sep {
			buf.WriteByte(' ')
		}
		sep = true
		if err := s.WriteValue(buf, item, tr); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeString(buf *bytes.Buffer, str *generic.StringObject, tr Transform) error {
	value := str.Value
	if tr != nil {
		var err error
		if value, err = tr.EncryptString(value); err != nil {
			return fmt.Errorf("encrypting string: %w", err)
		}
	}
	if str.IsHex {
		buf.WriteByte('<')
		for _, b := range value {
			buf.WriteByte(hexDigits[b>>4])
			buf.WriteByte(hexDigits[b&0x0f])
		}
		buf.WriteByte('>')
		return nil
	}
	buf.WriteByte('(')
	buf.Write(EscapeString(value))
	buf.WriteByte(')')
	return nil
}

const hexDigits = "0123456789ABCDEF"

// EscapeString escapes a literal string body: backslash, parentheses and
// the usual control characters get a backslash escape, other control bytes
// become three digit octal escapes.
func EscapeString(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for _, c := range data {
		switch c {
		case '\\', '(', ')':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		case '\t':
			out = append(out, '\\', 't')
		case '\b':
			out = append(out, '\\', 'b')
		case '\f':
			out = append(out, '\\', 'f')
		default:
			if c < 0x20 || c == 0x7f {
				out = append(out, '\\', '0'+c>>6, '0'+(c>>3)&7, '0'+c&7)
			} else {
				out = append(out, c)
			}
		}
	}
	return out
}

// writeStream writes the stream dictionary followed by the data. The
// dictionary is copied so that Filter, DecodeParms and Length changes do
// not leak into the caller's object.
func (s *Serializer) writeStream(buf *bytes.Buffer, stream *generic.StreamObject, tr Transform) error {
	dict := stream.Dictionary.Clone().(*generic.DictionaryObject)
	data := s.compressStream(dict, stream)

	if tr != nil {
		var err error
		if data, err = tr.EncryptStream(data); err != nil {
			return fmt.Errorf("encrypting stream: %w", err)
		}
	}
	dict.Set("Length", generic.IntegerObject(len(data)))

	if err := s.WriteDict(buf, dict, tr); err != nil {
		return err
	}
	buf.WriteString(" stream\n")
	buf.Write(data)
	buf.WriteString("\nendstream")
	return nil
}

// compressStream returns the data to store for stream, updating dict's
// filters when the data gets compressed.
func (s *Serializer) compressStream(dict *generic.DictionaryObject, stream *generic.StreamObject) []byte {
	filter := dict.Get("Filter")
	first := filter
	if arr, ok := filter.(generic.ArrayObject); ok {
		first = arr.Get(0)
	}
	firstIsFlate := first == generic.NameObject(filters.FlateDecode)

	switch {
	case stream.Unfiltered:
	case firstIsFlate:
		return stream.Data
	case s.CompressThreshold < 0 || len(stream.Data) < s.CompressThreshold:
		return stream.Data
	}

	compressed, err := filters.CompressFlate(stream.Data, s.Level)
	if err != nil {
		logging.Logger().Warn("cannot compress stream, writing it uncompressed", slog.Any("error", err))
		if stream.Unfiltered && firstIsFlate {
			dropFirstFilter(dict)
		}
		return stream.Data
	}

	if stream.Unfiltered && firstIsFlate {
		return compressed
	}
	switch f := filter.(type) {
	case nil, generic.NullObject:
		dict.Set("Filter", generic.NameObject(filters.FlateDecode))
	case generic.ArrayObject:
		dict.Set("Filter", append(generic.ArrayObject{generic.NameObject(filters.FlateDecode)}, f...))
	default:
		dict.Set("Filter", generic.ArrayObject{generic.NameObject(filters.FlateDecode), f})
	}
	switch p := dict.Get("DecodeParms").(type) {
	case nil, generic.NullObject:
	case generic.ArrayObject:
		dict.Set("DecodeParms", append(generic.ArrayObject{generic.NullObject{}}, p...))
	default:
		dict.Set("DecodeParms", generic.ArrayObject{generic.NullObject{}, p})
	}
	return compressed
}

func dropFirstFilter(dict *generic.DictionaryObject) {
	arr, ok := dict.Get("Filter").(generic.ArrayObject)
	if !ok || len(arr) <= 1 {
		dict.Delete("Filter")
		dict.Delete("DecodeParms")
		return
	}
	dict.Set("Filter", arr[1:])
	if parms, ok := dict.Get("DecodeParms").(generic.ArrayObject); ok && len(parms) > 1 {
		dict.Set("DecodeParms", parms[1:])
	} else {
		dict.Delete("DecodeParms")
	}
}
