package filters

import "github.com/georgepadayatti/pdfstream/pdf/generic"

// PredictorStream undoes PNG (Predictor 10-15) or TIFF (Predictor 2)
// prediction applied to image rows.
type PredictorStream struct {
	*DecodeStream
	str Source

	predictor int
	colors    int
	bits      int
	columns   int
	pixBytes  int
	rowBytes  int
	raw       []byte
}

func positiveParam(params *generic.DictionaryObject, def int, keys ...string) int {
	for _, key := range keys {
		if v, ok := params.GetInt(key); ok {
			if v <= 0 {
				return def
			}
			return int(v)
		}
	}
	return def
}

// NewPredictorStream wraps str according to the Predictor, Colors,
// BitsPerComponent and Columns entries of params. str itself is returned
// when params is nil or Predictor is 1 or absent.
func NewPredictorStream(str Source, maybeLength int, params *generic.DictionaryObject) (Source, error) {
	if params == nil {
		return str, nil
	}
	predictor := positiveParam(params, 1, "Predictor")
	if predictor <= 1 {
		return str, nil
	}
	if predictor != 2 && (predictor < 10 || predictor > 15) {
		return nil, streamErrorf("unsupported predictor: %d", predictor)
	}

	s := &PredictorStream{
		str:       str,
		predictor: predictor,
		colors:    positiveParam(params, 1, "Colors"),
		bits:      positiveParam(params, 8, "BitsPerComponent", "BPC"),
		columns:   positiveParam(params, 1, "Columns"),
	}
	switch s.bits {
	case 1, 2, 4, 8, 16:
	default:
		return nil, streamErrorf("predictor: unsupported BitsPerComponent %d", s.bits)
	}
	if s.colors > 32 {
		return nil, streamErrorf("predictor: too many colors %d", s.colors)
	}
	s.pixBytes = (s.colors*s.bits + 7) >> 3
	s.rowBytes = (s.columns*s.colors*s.bits + 7) >> 3
	s.raw = make([]byte, s.rowBytes)
	s.DecodeStream = newDecodeStream(s, str, maybeLength)
	return s, nil
}

// readRow fills s.raw with the next row, zero padding a short one. It
// returns false at the end of the data.
func (s *PredictorStream) readRow() bool {
	n := copy(s.raw, s.str.GetBytes(s.rowBytes))
	if n == 0 {
		return false
	}
	clear(s.raw[n:])
	return true
}

func (s *PredictorStream) readBlock() error {
	if s.predictor == 2 {
		return s.readBlockTiff()
	}
	return s.readBlockPng()
}

func (s *PredictorStream) readBlockPng() error {
	rowBytes, pixBytes := s.rowBytes, s.pixBytes

	predictor := s.str.GetByte()
	if !s.readRow() {
		s.eof = true
		return nil
	}
	raw := s.raw

	bufferLength := s.bufferLength
	buffer := s.ensureBuffer(bufferLength + rowBytes)
	var prevRow []byte
	if bufferLength >= rowBytes {
		prevRow = buffer[bufferLength-rowBytes : bufferLength]
	} else {
		prevRow = make([]byte, rowBytes)
	}
	row := buffer[bufferLength : bufferLength+rowBytes]

	switch predictor {
	case 0:
		copy(row, raw)
	case 1:
		copy(row[:pixBytes], raw)
		for i := pixBytes; i < rowBytes; i++ {
			row[i] = row[i-pixBytes] + raw[i]
		}
	case 2:
		for i := 0; i < rowBytes; i++ {
			row[i] = prevRow[i] + raw[i]
		}
	case 3:
		i := 0
		for ; i < pixBytes && i < rowBytes; i++ {
			row[i] = prevRow[i]>>1 + raw[i]
		}
		for ; i < rowBytes; i++ {
			row[i] = byte((int(prevRow[i])+int(row[i-pixBytes]))>>1) + raw[i]
		}
	case 4:
		i := 0
		for ; i < pixBytes && i < rowBytes; i++ {
			row[i] = prevRow[i] + raw[i]
		}
		for ; i < rowBytes; i++ {
			up := int(prevRow[i])
			upLeft := int(prevRow[i-pixBytes])
			left := int(row[i-pixBytes])
			p := left + up - upLeft
			pa, pb, pc := abs(p-left), abs(p-up), abs(p-upLeft)
			switch {
			case pa <= pb && pa <= pc:
				row[i] = byte(left) + raw[i]
			case pb <= pc:
				row[i] = byte(up) + raw[i]
			default:
				row[i] = byte(upLeft) + raw[i]
			}
		}
	default:
		return streamErrorf("unsupported PNG row predictor: %d", predictor)
	}
	s.bufferLength += rowBytes
	return nil
}

func (s *PredictorStream) readBlockTiff() error {
	rowBytes := s.rowBytes
	if !s.readRow() {
		s.eof = true
		return nil
	}
	raw := s.raw

	bufferLength := s.bufferLength
	buffer := s.ensureBuffer(bufferLength + rowBytes)
	bits, colors := s.bits, s.colors
	pos := bufferLength

	switch {
	case bits == 1 && colors == 1:
		var inbuf byte
		for i := 0; i < rowBytes; i++ {
			c := raw[i] ^ inbuf
			c ^= c >> 1
			c ^= c >> 2
			c ^= c >> 4
			inbuf = (c & 1) << 7
			buffer[pos] = c
			pos++
		}
	case bits == 8:
		i := 0
		for ; i < colors && i < rowBytes; i++ {
			buffer[pos] = raw[i]
			pos++
		}
		for ; i < rowBytes; i++ {
			buffer[pos] = buffer[pos-colors] + raw[i]
			pos++
		}
	case bits == 16:
		bytesPerPixel := colors * 2
		i := 0
		for ; i < bytesPerPixel && i < rowBytes; i++ {
			buffer[pos] = raw[i]
			pos++
		}
		for ; i+1 < rowBytes; i += 2 {
			sum := int(raw[i])<<8 + int(raw[i+1]) +
				int(buffer[pos-bytesPerPixel])<<8 + int(buffer[pos-bytesPerPixel+1])
			buffer[pos] = byte(sum >> 8)
			buffer[pos+1] = byte(sum)
			pos += 2
		}
	default:
		var compArray [33]uint32
		bitMask := uint32(1)<<bits - 1
		var inbuf, outbuf uint32
		inbits, outbits := 0, 0
		j, k := 0, bufferLength
		for i := 0; i < s.columns; i++ {
			for kk := 0; kk < colors; kk++ {
				if inbits < bits {
					inbuf = inbuf<<8 | uint32(raw[j])
					j++
					inbits += 8
				}
				compArray[kk] = (compArray[kk] + inbuf>>(inbits-bits)) & bitMask
				inbits -= bits
				outbuf = outbuf<<bits | compArray[kk]
				outbits += bits
				if outbits >= 8 {
					buffer[k] = byte(outbuf >> (outbits - 8))
					k++
					outbits -= 8
				}
			}
		}
		if outbits > 0 {
			buffer[k] = byte(outbuf<<(8-outbits) + inbuf&(1<<(8-outbits)-1))
		}
	}
	s.bufferLength += rowBytes
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
