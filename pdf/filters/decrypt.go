package filters

const decryptChunkSize = 512

// DecryptFunc decrypts one chunk of a stream. final is set for the last
// chunk so that padding can be removed.
type DecryptFunc func(chunk []byte, final bool) ([]byte, error)

// DecryptStream applies a DecryptFunc to fixed size chunks of str, reading
// one chunk ahead to know which chunk is the last.
type DecryptStream struct {
	*DecodeStream
	str       Source
	decrypt   DecryptFunc
	nextChunk []byte
	initiated bool
}

// NewDecryptStream wraps str.
func NewDecryptStream(str Source, maybeLength int, decrypt DecryptFunc) *DecryptStream {
	s := &DecryptStream{str: str, decrypt: decrypt}
	s.DecodeStream = newDecodeStream(s, str, maybeLength)
	return s
}

func (s *DecryptStream) readBlock() error {
	var chunk []byte
	if s.initiated {
		chunk = s.nextChunk
	} else {
		chunk = append([]byte(nil), s.str.GetBytes(decryptChunkSize)...)
		s.initiated = true
	}
	if len(chunk) == 0 {
		s.eof = true
		return nil
	}
	s.nextChunk = append([]byte(nil), s.str.GetBytes(decryptChunkSize)...)
	hasMoreData := len(s.nextChunk) > 0

	out, err := s.decrypt(chunk, !hasMoreData)
	if err != nil {
		return err
	}
	bufferLength := s.bufferLength
	buffer := s.ensureBuffer(bufferLength + len(out))
	copy(buffer[bufferLength:], out)
	s.bufferLength = bufferLength + len(out)
	return nil
}
