package filters

import (
	"bytes"

	"github.com/hhrutter/lzw"
)

const (
	lzwMaxDictionarySize = 4096
	lzwBlockSize         = 512
	lzwClearCode         = 256
	lzwEndCode           = 257
)

// LZWStream decodes LZWDecode data with variable code widths of 9 to 12
// bits, MSB first.
type LZWStream struct {
	*DecodeStream
	str Source

	cachedData uint32
	bitsCached int

	earlyChange       int
	codeLength        int
	nextCode          int
	prevCode          int
	dictionaryValues  [lzwMaxDictionarySize]byte
	dictionaryLengths [lzwMaxDictionarySize]uint16
	dictionaryPrev    [lzwMaxDictionarySize]uint16
	currentSequence   [lzwMaxDictionarySize]byte
	currentLength     int
}

// NewLZWStream wraps str. earlyChange is the EarlyChange parameter, 0 or 1.
func NewLZWStream(str Source, maybeLength, earlyChange int) *LZWStream {
	s := &LZWStream{
		str:         str,
		earlyChange: earlyChange,
		codeLength:  9,
		nextCode:    258,
	}
	for i := 0; i < 256; i++ {
		s.dictionaryValues[i] = byte(i)
		s.dictionaryLengths[i] = 1
	}
	s.DecodeStream = newDecodeStream(s, str, maybeLength)
	return s
}

// readBits returns the next n bit code. ok is false at the end of input;
// err is set when the input ends inside a code.
func (s *LZWStream) readBits(n int) (code int, ok bool, err error) {
	for s.bitsCached < n {
		c := s.str.GetByte()
		if c == -1 {
			if s.bitsCached >= 8 {
				return 0, false, streamErrorf("lzw: truncated %d bit code", n)
			}
			return 0, false, nil
		}
		s.cachedData = s.cachedData<<8 | uint32(c)
		s.bitsCached += 8
	}
	s.bitsCached -= n
	return int(s.cachedData>>s.bitsCached) & (1<<n - 1), true, nil
}

func (s *LZWStream) readBlock() error {
	buffer := s.ensureBuffer(s.bufferLength + lzwBlockSize*2)
	bufferLength := s.bufferLength
	defer func() { s.bufferLength = bufferLength }()

	for i := 0; i < lzwBlockSize; i++ {
		code, ok, err := s.readBits(s.codeLength)
		if err != nil {
			return err
		}
		if !ok {
			s.eof = true
			return nil
		}

		hasPrev := s.currentLength > 0
		switch {
		case code < 256:
			s.currentSequence[0] = byte(code)
			s.currentLength = 1
		case code == lzwClearCode:
			s.codeLength = 9
			s.nextCode = 258
			s.currentLength = 0
			continue
		case code == lzwEndCode:
			s.eof = true
			return nil
		case code < s.nextCode:
			s.currentLength = int(s.dictionaryLengths[code])
			q := code
			for j := s.currentLength - 1; j >= 0; j-- {
				s.currentSequence[j] = s.dictionaryValues[q]
				q = int(s.dictionaryPrev[q])
			}
		case code == s.nextCode && hasPrev:
			s.currentSequence[s.currentLength] = s.currentSequence[0]
			s.currentLength++
		default:
			return streamErrorf("lzw: invalid code %d (next code %d)", code, s.nextCode)
		}

		if hasPrev && s.nextCode < lzwMaxDictionarySize {
			s.dictionaryPrev[s.nextCode] = uint16(s.prevCode)
			s.dictionaryLengths[s.nextCode] = s.dictionaryLengths[s.prevCode] + 1
			s.dictionaryValues[s.nextCode] = s.currentSequence[0]
			s.nextCode++
			if n := s.nextCode + s.earlyChange; n&(n-1) == 0 {
				s.codeLength = min(log2(n)+1, 12)
			}
		}
		s.prevCode = code

		buffer = s.ensureBuffer(bufferLength + s.currentLength)
		bufferLength += copy(buffer[bufferLength:], s.currentSequence[:s.currentLength])
	}
	return nil
}

func log2(n int) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}

// encodeLZW produces LZWDecode data with the given EarlyChange setting.
func encodeLZW(data []byte, earlyChange bool) ([]byte, error) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, earlyChange)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
