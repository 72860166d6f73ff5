package filters

import (
	"bytes"
	"encoding/ascii85"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// Ascii85Stream decodes ASCII85Decode data.
type Ascii85Stream struct {
	*DecodeStream
	str   Source
	input [5]int
}

// NewAscii85Stream wraps str. maybeLength is the encoded length, if known.
func NewAscii85Stream(str Source, maybeLength int) *Ascii85Stream {
	s := &Ascii85Stream{str: str}
	if maybeLength > 0 {
		maybeLength = int(float64(maybeLength) * 0.8)
	}
	s.DecodeStream = newDecodeStream(s, str, maybeLength)
	return s
}

func (s *Ascii85Stream) nextNonSpace() int {
	c := s.str.GetByte()
	for c >= 0 && generic.IsWhitespace(byte(c)) {
		c = s.str.GetByte()
	}
	return c
}

func (s *Ascii85Stream) readBlock() error {
	c := s.nextNonSpace()
	if c == -1 || c == '~' {
		s.eof = true
		return nil
	}

	bufferLength := s.bufferLength
	if c == 'z' {
		buffer := s.ensureBuffer(bufferLength + 4)
		for i := 0; i < 4; i++ {
			buffer[bufferLength+i] = 0
		}
		s.bufferLength += 4
		return nil
	}

	input := &s.input
	input[0] = c
	i := 1
	for ; i < 5; i++ {
		c = s.nextNonSpace()
		input[i] = c
		if c == -1 || c == '~' {
			break
		}
	}
	for j := 0; j < i; j++ {
		if input[j] < '!' || input[j] > 'u' {
			return streamErrorf("ascii85: invalid character %#02x", input[j])
		}
	}

	buffer := s.ensureBuffer(bufferLength + 4)
	s.bufferLength += i - 1
	if i < 5 {
		for ; i < 5; i++ {
			input[i] = '!' + 84
		}
		s.eof = true
	}
	var t uint64
	for i = 0; i < 5; i++ {
		t = t*85 + uint64(input[i]-'!')
	}
	for i = 3; i >= 0; i-- {
		buffer[bufferLength+i] = byte(t)
		t >>= 8
	}
	return nil
}

// encodeAscii85 produces ASCII85 data terminated by "~>".
func encodeAscii85(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := ascii85.NewEncoder(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("~>")
	return buf.Bytes(), nil
}
