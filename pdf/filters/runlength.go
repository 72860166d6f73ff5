package filters

import "bytes"

// RunLengthStream decodes RunLengthDecode data.
type RunLengthStream struct {
	*DecodeStream
	str Source
}

// NewRunLengthStream wraps str.
func NewRunLengthStream(str Source, maybeLength int) *RunLengthStream {
	s := &RunLengthStream{str: str}
	s.DecodeStream = newDecodeStream(s, str, maybeLength)
	return s
}

func (s *RunLengthStream) readBlock() error {
	header := s.str.GetBytes(2)
	if len(header) < 2 || header[0] == 128 {
		s.eof = true
		return nil
	}

	bufferLength := s.bufferLength
	n, b := int(header[0]), header[1]
	if n < 128 {
		buffer := s.ensureBuffer(bufferLength + n + 1)
		buffer[bufferLength] = b
		bufferLength++
		if n > 0 {
			bufferLength += copy(buffer[bufferLength:], s.str.GetBytes(n))
		}
	} else {
		n = 257 - n
		buffer := s.ensureBuffer(bufferLength + n + 1)
		for i := 0; i < n; i++ {
			buffer[bufferLength] = b
			bufferLength++
		}
	}
	s.bufferLength = bufferLength
	return nil
}

// encodeRunLength produces RunLengthDecode data terminated by 128.
func encodeRunLength(data []byte) []byte {
	var output bytes.Buffer
	i := 0
	for i < len(data) {
		runStart := i
		for i < len(data)-1 && data[i] == data[i+1] && i-runStart < 127 {
			i++
		}

		if runLength := i - runStart + 1; runLength > 1 {
			output.WriteByte(byte(257 - runLength))
			output.WriteByte(data[runStart])
			i++
			continue
		}

		literalStart := i
		for i < len(data) && (i == len(data)-1 || data[i] != data[i+1]) && i-literalStart < 128 {
			i++
		}
		output.WriteByte(byte(i - literalStart - 1))
		output.Write(data[literalStart:i])
	}
	output.WriteByte(128)
	return output.Bytes()
}
