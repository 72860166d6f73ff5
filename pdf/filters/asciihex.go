package filters

import "encoding/hex"

const asciiHexUpstreamBlock = 8000

// AsciiHexStream decodes ASCIIHexDecode data. Bytes other than hex digits
// are ignored and '>' ends the data.
type AsciiHexStream struct {
	*DecodeStream
	str        Source
	firstDigit int
}

// NewAsciiHexStream wraps str. maybeLength is the encoded length, if known.
func NewAsciiHexStream(str Source, maybeLength int) *AsciiHexStream {
	s := &AsciiHexStream{str: str, firstDigit: -1}
	s.DecodeStream = newDecodeStream(s, str, maybeLength/2)
	return s
}

func hexDigit(ch byte) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch & 0x0f)
	case ch >= 'A' && ch <= 'F', ch >= 'a' && ch <= 'f':
		return int(ch&0x0f) + 9
	}
	return -1
}

func (s *AsciiHexStream) readBlock() error {
	data := s.str.GetBytes(asciiHexUpstreamBlock)
	if len(data) == 0 {
		s.eof = true
		if s.firstDigit >= 0 {
			buffer := s.ensureBuffer(s.bufferLength + 1)
			buffer[s.bufferLength] = byte(s.firstDigit << 4)
			s.bufferLength++
			s.firstDigit = -1
		}
		return nil
	}

	buffer := s.ensureBuffer(s.bufferLength + (len(data)+1)>>1)
	bufferLength := s.bufferLength
	firstDigit := s.firstDigit
	for _, ch := range data {
		if ch == '>' {
			s.eof = true
			break
		}
		digit := hexDigit(ch)
		if digit < 0 {
			continue
		}
		if firstDigit < 0 {
			firstDigit = digit
		} else {
			buffer[bufferLength] = byte(firstDigit<<4 | digit)
			bufferLength++
			firstDigit = -1
		}
	}
	if firstDigit >= 0 && s.eof {
		buffer[bufferLength] = byte(firstDigit << 4)
		bufferLength++
		firstDigit = -1
	}
	s.firstDigit = firstDigit
	s.bufferLength = bufferLength
	return nil
}

// encodeAsciiHex produces upper case hex data terminated by '>'.
func encodeAsciiHex(data []byte) []byte {
	out := make([]byte, hex.EncodedLen(len(data)), hex.EncodedLen(len(data))+1)
	hex.Encode(out, data)
	for i, c := range out {
		if c >= 'a' {
			out[i] = c - 'a' + 'A'
		}
	}
	return append(out, '>')
}
