// Package filters implements the PDF stream filter pipeline: a cursor over
// raw bytes, a lazily decoding buffered stream, one decoder per standard
// filter, and the registry that chains them from a stream dictionary.
package filters

import (
	"fmt"
	"io"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// Source is a readable byte cursor. Both the raw Stream and every decoder
// implement it, so decoders can be stacked in any order.
//
// GetByte and PeekByte return -1 at the end of the data. GetBytes with
// n <= 0 reads everything that is left.
type Source interface {
	io.Reader

	GetByte() int
	GetBytes(n int) []byte
	PeekByte() int
	PeekBytes(n int) []byte
	GetUint16() int
	GetInt32() int
	Skip(n int)
	Reset()
	IsEmpty() bool

	// LengthHint is the expected decoded length, or 0 when unknown.
	LengthHint() int
	Dict() *generic.DictionaryObject

	// Err reports the first fatal decode error, if any.
	Err() error
}

// Stream is a cursor over a fixed byte slice. The slice is shared, never
// copied.
type Stream struct {
	bytes []byte
	start int
	pos   int
	end   int
	dict  *generic.DictionaryObject
}

// NewStream returns a cursor over all of data.
func NewStream(data []byte, dict *generic.DictionaryObject) *Stream {
	return &Stream{bytes: data, end: len(data), dict: dict}
}

// NewStreamRange returns a cursor over data[start:start+length]. A negative
// length extends the range to the end of data. Out of range bounds are
// clamped.
func NewStreamRange(data []byte, start, length int, dict *generic.DictionaryObject) *Stream {
	if start < 0 {
		start = 0
	}
	if start > len(data) {
		start = len(data)
	}
	end := len(data)
	if length >= 0 && start+length < end {
		end = start + length
	}
	return &Stream{bytes: data, start: start, pos: start, end: end, dict: dict}
}

// Length is the number of bytes in the cursor's range.
func (s *Stream) Length() int { return s.end - s.start }

// LengthHint implements Source.
func (s *Stream) LengthHint() int { return s.Length() }

// IsEmpty implements Source.
func (s *Stream) IsEmpty() bool { return s.Length() == 0 }

// Dict implements Source.
func (s *Stream) Dict() *generic.DictionaryObject { return s.dict }

// Err implements Source. A raw stream never fails.
func (s *Stream) Err() error { return nil }

// Pos returns the absolute cursor position.
func (s *Stream) Pos() int { return s.pos }

// GetByte implements Source.
func (s *Stream) GetByte() int {
	if s.pos >= s.end {
		return -1
	}
	b := s.bytes[s.pos]
	s.pos++
	return int(b)
}

// GetBytes implements Source.
func (s *Stream) GetBytes(n int) []byte {
	pos := s.pos
	end := s.end
	if n > 0 && pos+n < end {
		end = pos + n
	}
	s.pos = end
	return s.bytes[pos:end:end]
}

// PeekByte implements Source.
func (s *Stream) PeekByte() int {
	b := s.GetByte()
	if b != -1 {
		s.pos--
	}
	return b
}

// PeekBytes implements Source.
func (s *Stream) PeekBytes(n int) []byte {
	b := s.GetBytes(n)
	s.pos -= len(b)
	return b
}

// GetUint16 implements Source.
func (s *Stream) GetUint16() int { return readUint16(s) }

// GetInt32 implements Source.
func (s *Stream) GetInt32() int { return readInt32(s) }

// Skip advances the cursor by n bytes, or one byte when n is 0.
func (s *Stream) Skip(n int) {
	if n == 0 {
		n = 1
	}
	s.pos += n
	if s.pos > s.end {
		s.pos = s.end
	}
}

// Reset implements Source.
func (s *Stream) Reset() { s.pos = s.start }

// MoveStart makes the current position the new start of the range.
func (s *Stream) MoveStart() { s.start = s.pos }

// MakeSubStream returns an independent cursor over the same bytes. start is
// absolute within the underlying slice.
func (s *Stream) MakeSubStream(start, length int, dict *generic.DictionaryObject) *Stream {
	return NewStreamRange(s.bytes[:s.end], start, length, dict)
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if s.pos >= s.end {
		return 0, io.EOF
	}
	n := copy(p, s.bytes[s.pos:s.end])
	s.pos += n
	return n, nil
}

type byteGetter interface {
	GetByte() int
}

func readUint16(g byteGetter) int {
	b0 := g.GetByte()
	b1 := g.GetByte()
	if b0 < 0 || b1 < 0 {
		return -1
	}
	return b0<<8 | b1
}

func readInt32(g byteGetter) int {
	var v uint32
	for i := 0; i < 4; i++ {
		b := g.GetByte()
		if b < 0 {
			return -1
		}
		v = v<<8 | uint32(b)
	}
	return int(int32(v))
}

func streamErrorf(format string, args ...any) error {
	return generic.NewPdfStreamError(fmt.Sprintf(format, args...))
}
