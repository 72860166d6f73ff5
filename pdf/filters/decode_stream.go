package filters

import (
	"io"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// DefaultMinBufferLength is the smallest buffer a DecodeStream allocates.
const DefaultMinBufferLength = 512

// blockReader is implemented by every decoder. readBlock appends zero or
// more bytes after bufferLength and sets eof when its input is exhausted.
type blockReader interface {
	readBlock() error
}

// DecodeStream is the buffered, lazily filled output side shared by all
// decoders. Decoders embed it and supply readBlock.
type DecodeStream struct {
	buffer       []byte
	bufferLength int
	pos          int
	eof          bool
	err          error

	minBufferLength    int
	rawMinBufferLength int

	dict  *generic.DictionaryObject
	src   Source
	block blockReader
}

func newDecodeStream(block blockReader, src Source, maybeLength int) *DecodeStream {
	d := &DecodeStream{
		block:              block,
		src:                src,
		minBufferLength:    DefaultMinBufferLength,
		rawMinBufferLength: maybeLength,
	}
	if src != nil {
		d.dict = src.Dict()
	}
	d.growMinBuffer(maybeLength)
	return d
}

func (d *DecodeStream) growMinBuffer(n int) {
	for d.minBufferLength < n {
		d.minBufferLength *= 2
	}
}

func (d *DecodeStream) base() *DecodeStream { return d }

// setMinBufferLength raises the growth floor to the next power of two of n.
func (d *DecodeStream) setMinBufferLength(n int) {
	if n <= 0 {
		return
	}
	size := 1
	for size < n {
		size *= 2
	}
	if size > d.minBufferLength {
		d.minBufferLength = size
	}
	d.growMinBuffer(d.rawMinBufferLength)
}

// ensureBuffer grows the buffer to hold at least requested bytes and
// returns it. The whole old buffer is kept, since decoders may have written
// past bufferLength.
func (d *DecodeStream) ensureBuffer(requested int) []byte {
	if requested <= len(d.buffer) {
		return d.buffer
	}
	size := d.minBufferLength
	for size < requested {
		size *= 2
	}
	buf := make([]byte, size)
	copy(buf, d.buffer)
	d.buffer = buf
	return buf
}

func (d *DecodeStream) fail(err error) {
	if d.err == nil {
		d.err = err
	}
	d.eof = true
}

// readMore runs one readBlock. It returns false once the stream is done.
func (d *DecodeStream) readMore() bool {
	if d.eof {
		return false
	}
	if err := d.block.readBlock(); err != nil {
		d.fail(err)
		return false
	}
	if d.src != nil {
		if err := d.src.Err(); err != nil {
			d.fail(err)
		}
	}
	return true
}

// Err implements Source.
func (d *DecodeStream) Err() error { return d.err }

// Dict implements Source.
func (d *DecodeStream) Dict() *generic.DictionaryObject { return d.dict }

// LengthHint implements Source.
func (d *DecodeStream) LengthHint() int { return d.rawMinBufferLength }

// IsEmpty implements Source.
func (d *DecodeStream) IsEmpty() bool {
	for !d.eof && d.bufferLength == 0 {
		d.readMore()
	}
	return d.bufferLength == 0
}

// GetByte implements Source.
func (d *DecodeStream) GetByte() int {
	for d.bufferLength <= d.pos {
		if !d.readMore() {
			return -1
		}
	}
	b := d.buffer[d.pos]
	d.pos++
	return int(b)
}

// GetBytes implements Source. The returned slice aliases the decode buffer
// and must not be modified. A cursor moved past the decoded data by Skip
// yields an empty slice and is pulled back to the end of the data.
func (d *DecodeStream) GetBytes(n int) []byte {
	pos := d.pos
	end := d.bufferLength
	if n > 0 {
		end = pos + n
		if pos <= d.bufferLength {
			d.ensureBuffer(end)
		}
	}
	for !d.eof && (n <= 0 || d.bufferLength < end) {
		d.readMore()
	}
	if n <= 0 || end > d.bufferLength {
		end = d.bufferLength
	}
	pos = min(pos, end)
	d.pos = end
	return d.buffer[pos:end:end]
}

// PeekByte implements Source.
func (d *DecodeStream) PeekByte() int {
	b := d.GetByte()
	if b != -1 {
		d.pos--
	}
	return b
}

// PeekBytes implements Source.
func (d *DecodeStream) PeekBytes(n int) []byte {
	b := d.GetBytes(n)
	d.pos -= len(b)
	return b
}

// GetUint16 implements Source.
func (d *DecodeStream) GetUint16() int { return readUint16(d) }

// GetInt32 implements Source.
func (d *DecodeStream) GetInt32() int { return readInt32(d) }

// Skip advances the output cursor by n bytes, or one byte when n is 0.
func (d *DecodeStream) Skip(n int) {
	if n == 0 {
		n = 1
	}
	d.pos += n
}

// Reset rewinds the output cursor. Decoded bytes are kept.
func (d *DecodeStream) Reset() { d.pos = 0 }

// MakeSubStream decodes far enough to cover [start, start+length) and
// returns a cursor over that range of the decoded bytes. A negative length
// decodes everything.
func (d *DecodeStream) MakeSubStream(start, length int, dict *generic.DictionaryObject) *Stream {
	if length < 0 {
		for !d.eof {
			d.readMore()
		}
	} else {
		end := start + length
		for d.bufferLength <= end && !d.eof {
			d.readMore()
		}
	}
	return NewStreamRange(d.buffer[:d.bufferLength], start, length, dict)
}

// Read implements io.Reader. Decode failures surface as the error once the
// decoded bytes before them have been returned.
func (d *DecodeStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := copy(p, d.GetBytes(len(p)))
	if n == 0 {
		if d.err != nil {
			return 0, d.err
		}
		return 0, io.EOF
	}
	return n, nil
}
