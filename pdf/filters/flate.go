package filters

import (
	"bytes"

	"github.com/klauspost/compress/zlib"
)

var codeLenCodeMap = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// Base value in the low 16 bits, extra bit count above.
var lengthDecode = [31]int32{
	0x00003, 0x00004, 0x00005, 0x00006, 0x00007, 0x00008, 0x00009, 0x0000a,
	0x1000b, 0x1000d, 0x1000f, 0x10011, 0x20013, 0x20017, 0x2001b, 0x2001f,
	0x30023, 0x3002b, 0x30033, 0x3003b, 0x40043, 0x40053, 0x40063, 0x40073,
	0x50083, 0x500a3, 0x500c3, 0x500e3, 0x00102, 0x00102, 0x00102,
}

var distDecode = [30]int32{
	0x00001, 0x00002, 0x00003, 0x00004, 0x10005, 0x10007, 0x20009, 0x2000d,
	0x30011, 0x30019, 0x40021, 0x40031, 0x50041, 0x50061, 0x60081, 0x600c1,
	0x70101, 0x70181, 0x80201, 0x80301, 0x90401, 0x90601, 0xa0801, 0xa0c01,
	0xb1001, 0xb1801, 0xc2001, 0xc3001, 0xd4001, 0xd6001,
}

// huffmanTable maps maxLen input bits, least significant first, to
// (code length << 16) | symbol.
type huffmanTable struct {
	codes  []int32
	maxLen int
}

var fixedLitCodeTab, fixedDistCodeTab huffmanTable

func init() {
	lengths := make([]int, 288)
	for i := range lengths {
		switch {
		case i < 144:
			lengths[i] = 8
		case i < 256:
			lengths[i] = 9
		case i < 280:
			lengths[i] = 7
		default:
			lengths[i] = 8
		}
	}
	fixedLitCodeTab = generateHuffmanTable(lengths)

	dist := make([]int, 30)
	for i := range dist {
		dist[i] = 5
	}
	fixedDistCodeTab = generateHuffmanTable(dist)
}

func generateHuffmanTable(lengths []int) huffmanTable {
	maxLen := 0
	for _, l := range lengths {
		maxLen = max(maxLen, l)
	}

	size := 1 << maxLen
	codes := make([]int32, size)
	for length, code, skip := 1, 0, 2; length <= maxLen; length, code, skip = length+1, code<<1, skip<<1 {
		for val, l := range lengths {
			if l != length {
				continue
			}
			code2 := 0
			t := code
			for i := 0; i < length; i++ {
				code2 = code2<<1 | t&1
				t >>= 1
			}
			for i := code2; i < size; i += skip {
				codes[i] = int32(length<<16 | val)
			}
			code++
		}
	}
	return huffmanTable{codes: codes, maxLen: maxLen}
}

// FlateStream inflates zlib wrapped DEFLATE data. The Adler-32 trailer is
// not checked.
type FlateStream struct {
	*DecodeStream
	str Source

	codeSize int
	codeBuf  uint32
}

// NewFlateStream reads and validates the two byte zlib header from str.
func NewFlateStream(str Source, maybeLength int) (*FlateStream, error) {
	cmf := str.GetByte()
	flg := str.GetByte()
	switch {
	case cmf == -1 || flg == -1:
		return nil, streamErrorf("flate: invalid header: %d, %d", cmf, flg)
	case cmf&0x0f != 0x08:
		return nil, streamErrorf("flate: unknown compression method: %d, %d", cmf, flg)
	case (cmf<<8+flg)%31 != 0:
		return nil, streamErrorf("flate: bad FCHECK: %d, %d", cmf, flg)
	case flg&0x20 != 0:
		return nil, streamErrorf("flate: FDICT bit set: %d, %d", cmf, flg)
	}

	s := &FlateStream{str: str}
	s.DecodeStream = newDecodeStream(s, str, maybeLength)
	return s, nil
}

func (s *FlateStream) getBits(bits int) (int, error) {
	for s.codeSize < bits {
		b := s.str.GetByte()
		if b == -1 {
			return 0, streamErrorf("flate: bad encoding")
		}
		s.codeBuf |= uint32(b) << s.codeSize
		s.codeSize += 8
	}
	b := int(s.codeBuf & (1<<bits - 1))
	s.codeBuf >>= bits
	s.codeSize -= bits
	return b, nil
}

func (s *FlateStream) getCode(table huffmanTable) (int, error) {
	for s.codeSize < table.maxLen {
		b := s.str.GetByte()
		if b == -1 {
			// The code may still fit in the bits already read.
			break
		}
		s.codeBuf |= uint32(b) << s.codeSize
		s.codeSize += 8
	}
	code := table.codes[s.codeBuf&(1<<table.maxLen-1)]
	codeLen := int(code >> 16)
	if codeLen < 1 || s.codeSize < codeLen {
		return 0, streamErrorf("flate: bad encoding")
	}
	s.codeBuf >>= codeLen
	s.codeSize -= codeLen
	return int(code & 0xffff), nil
}

func (s *FlateStream) readBlock() error {
	if s.codeSize < 8 && s.str.PeekByte() == -1 {
		// Missing final block: the remaining bits are padding.
		s.eof = true
		return nil
	}

	hdr, err := s.getBits(3)
	if err != nil {
		return err
	}
	if hdr&1 != 0 {
		s.eof = true
	}
	hdr >>= 1

	var litCodeTable, distCodeTable huffmanTable
	switch hdr {
	case 0:
		return s.readStoredBlock()
	case 1:
		litCodeTable, distCodeTable = fixedLitCodeTab, fixedDistCodeTab
	case 2:
		if litCodeTable, distCodeTable, err = s.readDynamicTables(); err != nil {
			return err
		}
	default:
		return streamErrorf("flate: unknown block type %d", hdr)
	}

	buffer := s.buffer
	pos := s.bufferLength
	for {
		code1, err := s.getCode(litCodeTable)
		if err != nil {
			return err
		}
		if code1 < 256 {
			if pos+1 >= len(buffer) {
				buffer = s.ensureBuffer(pos + 1)
			}
			buffer[pos] = byte(code1)
			pos++
			continue
		}
		if code1 == 256 {
			s.bufferLength = pos
			return nil
		}

		code1 -= 257
		if code1 >= len(lengthDecode) {
			return streamErrorf("flate: bad length code %d", code1+257)
		}
		entry := lengthDecode[code1]
		extra, err := s.getBits(int(entry >> 16))
		if err != nil {
			return err
		}
		length := int(entry&0xffff) + extra

		code2, err := s.getCode(distCodeTable)
		if err != nil {
			return err
		}
		if code2 >= len(distDecode) {
			return streamErrorf("flate: bad distance code %d", code2)
		}
		entry = distDecode[code2]
		extra, err = s.getBits(int(entry >> 16))
		if err != nil {
			return err
		}
		dist := int(entry&0xffff) + extra
		if dist > pos {
			return streamErrorf("flate: distance %d too far back", dist)
		}

		if pos+length >= len(buffer) {
			buffer = s.ensureBuffer(pos + length)
		}
		for k := 0; k < length; k++ {
			buffer[pos] = buffer[pos-dist]
			pos++
		}
	}
}

func (s *FlateStream) readStoredBlock() error {
	var header [4]int
	for i := range header {
		if header[i] = s.str.GetByte(); header[i] == -1 {
			return streamErrorf("flate: bad block header")
		}
	}
	blockLen := header[0] | header[1]<<8
	check := header[2] | header[3]<<8
	if check != ^blockLen&0xffff && (blockLen != 0 || check != 0) {
		return streamErrorf("flate: bad uncompressed block length")
	}

	s.codeBuf = 0
	s.codeSize = 0

	bufferLength := s.bufferLength
	buffer := s.ensureBuffer(bufferLength + blockLen)
	if blockLen == 0 {
		if s.str.PeekByte() == -1 {
			s.eof = true
		}
		return nil
	}
	n := copy(buffer[bufferLength:], s.str.GetBytes(blockLen))
	s.bufferLength = bufferLength + n
	if n < blockLen {
		s.eof = true
	}
	return nil
}

func (s *FlateStream) readDynamicTables() (lit, dist huffmanTable, err error) {
	var hlit, hdist, hclen int
	if hlit, err = s.getBits(5); err != nil {
		return
	}
	if hdist, err = s.getBits(5); err != nil {
		return
	}
	if hclen, err = s.getBits(4); err != nil {
		return
	}
	numLitCodes := hlit + 257
	numDistCodes := hdist + 1
	numCodeLenCodes := hclen + 4

	codeLenCodeLengths := make([]int, len(codeLenCodeMap))
	for i := 0; i < numCodeLenCodes; i++ {
		if codeLenCodeLengths[codeLenCodeMap[i]], err = s.getBits(3); err != nil {
			return
		}
	}
	codeLenCodeTab := generateHuffmanTable(codeLenCodeLengths)

	codes := numLitCodes + numDistCodes
	codeLengths := make([]int, codes)
	length := 0
	for i := 0; i < codes; {
		var code int
		if code, err = s.getCode(codeLenCodeTab); err != nil {
			return
		}

		var bitsLength, bitsOffset, what int
		switch code {
		case 16:
			bitsLength, bitsOffset, what = 2, 3, length
		case 17:
			bitsLength, bitsOffset, what = 3, 3, 0
			length = 0
		case 18:
			bitsLength, bitsOffset, what = 7, 11, 0
			length = 0
		default:
			length = code
			codeLengths[i] = code
			i++
			continue
		}

		var repeat int
		if repeat, err = s.getBits(bitsLength); err != nil {
			return
		}
		repeat += bitsOffset
		if i+repeat > codes {
			err = streamErrorf("flate: code length repeat overflows table")
			return
		}
		for ; repeat > 0; repeat-- {
			codeLengths[i] = what
			i++
		}
	}

	lit = generateHuffmanTable(codeLengths[:numLitCodes])
	dist = generateHuffmanTable(codeLengths[numLitCodes:])
	return lit, dist, nil
}

// CompressFlate compresses data with zlib at the given level.
func CompressFlate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
