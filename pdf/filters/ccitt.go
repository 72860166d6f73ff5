package filters

import (
	"log/slog"

	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// CCITTOptions are the CCITTFaxDecode parameters.
type CCITTOptions struct {
	// K selects the coding: < 0 pure 2D (Group 4), 0 pure 1D (Group 3),
	// > 0 mixed 1D/2D (Group 3).
	K                int
	EndOfLine        bool
	EncodedByteAlign bool
	Columns          int
	Rows             int
	EndOfBlock       bool
	BlackIs1         bool
}

// CCITTOptionsFromDict reads CCITTFaxDecode parameters, applying the PDF
// defaults for missing entries.
func CCITTOptionsFromDict(params *generic.DictionaryObject) CCITTOptions {
	opts := CCITTOptions{Columns: 1728, EndOfBlock: true}
	if params == nil {
		return opts
	}
	opts.K = params.GetIntDefault("K", 0)
	opts.EndOfLine = params.GetBool("EndOfLine", false)
	opts.EncodedByteAlign = params.GetBool("EncodedByteAlign", false)
	if c := params.GetIntDefault("Columns", 0); c > 0 {
		opts.Columns = c
	}
	if r := params.GetIntDefault("Rows", 0); r > 0 {
		opts.Rows = r
	}
	opts.EndOfBlock = params.GetBool("EndOfBlock", true)
	opts.BlackIs1 = params.GetBool("BlackIs1", false)
	return opts
}

// vertDelta is the distance of a vertical mode from the reference change.
var vertDelta = [...]int{
	twoDimVert0:  0,
	twoDimVertR1: 1,
	twoDimVertL1: 1,
	twoDimVertR2: 2,
	twoDimVertL2: 2,
	twoDimVertR3: 3,
	twoDimVertL3: 3,
}

// ccittDecoder produces one byte of packed output per readNextChar call.
type ccittDecoder struct {
	src Source

	encoding  int
	eoline    bool
	byteAlign bool
	columns   int
	rows      int
	eoblock   bool
	black     bool

	codingLine []int
	refLine    []int
	codingPos  int
	row        int
	nextLine2D bool
	inputBits  int
	inputBuf   uint32
	outputBits int
	rowsDone   bool
	eof        bool
	err        bool
}

func newCCITTDecoder(src Source, opts CCITTOptions) *ccittDecoder {
	if opts.Columns <= 0 {
		opts.Columns = 1728
	}
	d := &ccittDecoder{
		src:        src,
		encoding:   opts.K,
		eoline:     opts.EndOfLine,
		byteAlign:  opts.EncodedByteAlign,
		columns:    opts.Columns,
		rows:       opts.Rows,
		eoblock:    opts.EndOfBlock,
		black:      opts.BlackIs1,
		codingLine: make([]int, opts.Columns+1),
		refLine:    make([]int, opts.Columns+2),
		nextLine2D: opts.K < 0,
	}
	d.codingLine[0] = d.columns

	code1 := d.lookBits(12)
	for code1 == 0 {
		d.eatBits(1)
		code1 = d.lookBits(12)
	}
	if code1 == 1 {
		d.eatBits(12)
	}
	if d.encoding > 0 {
		d.nextLine2D = d.lookBits(1) == 0
		d.eatBits(1)
	}
	return d
}

func (d *ccittDecoder) softError(msg string, args ...any) {
	logging.Logger().Debug("ccitt: "+msg, args...)
	d.err = true
}

// refAt reads the reference line, treating positions past its end as the
// end of the row.
func (d *ccittDecoder) refAt(i int) int {
	if i < 0 || i >= len(d.refLine) {
		return d.columns
	}
	return d.refLine[i]
}

// advanceRef moves refPos past the current coding position.
func (d *ccittDecoder) advanceRef(refPos int) int {
	for d.refAt(refPos) <= d.codingLine[d.codingPos] && d.refAt(refPos) < d.columns {
		refPos += 2
	}
	return refPos
}

func (d *ccittDecoder) readRun(black bool) int {
	total := 0
	for {
		var code int
		if black {
			code = d.getBlackCode()
		} else {
			code = d.getWhiteCode()
		}
		total += code
		if code < 64 {
			return total
		}
	}
}

func (d *ccittDecoder) decodeRow2D() {
	columns := d.columns
	codingLine, refLine := d.codingLine, d.refLine

	i := 0
	for ; codingLine[i] < columns; i++ {
		refLine[i] = codingLine[i]
	}
	refLine[i] = columns
	refLine[i+1] = columns
	codingLine[0] = 0
	d.codingPos = 0
	refPos := 0
	blackPixels := 0

	for codingLine[d.codingPos] < columns {
		switch code := d.getTwoDimCode(); code {
		case twoDimPass:
			d.addPixels(d.refAt(refPos+1), blackPixels)
			if d.refAt(refPos+1) < columns {
				refPos += 2
			}
		case twoDimHoriz:
			var code1, code2 int
			if blackPixels != 0 {
				code1 = d.readRun(true)
				code2 = d.readRun(false)
			} else {
				code1 = d.readRun(false)
				code2 = d.readRun(true)
			}
			d.addPixels(codingLine[d.codingPos]+code1, blackPixels)
			if codingLine[d.codingPos] < columns {
				d.addPixels(codingLine[d.codingPos]+code2, blackPixels^1)
			}
			refPos = d.advanceRef(refPos)
		case twoDimVert0, twoDimVertR1, twoDimVertR2, twoDimVertR3:
			d.addPixels(d.refAt(refPos)+vertDelta[code], blackPixels)
			blackPixels ^= 1
			if codingLine[d.codingPos] < columns {
				refPos = d.advanceRef(refPos + 1)
			}
		case twoDimVertL1, twoDimVertL2, twoDimVertL3:
			d.addPixelsNeg(d.refAt(refPos)-vertDelta[code], blackPixels)
			blackPixels ^= 1
			if codingLine[d.codingPos] < columns {
				if refPos > 0 {
					refPos--
				} else {
					refPos++
				}
				refPos = d.advanceRef(refPos)
			}
		case ccittEOF:
			d.addPixels(columns, 0)
			d.eof = true
		default:
			d.addPixels(columns, 0)
			d.softError("bad 2d code", slog.Int("row", d.row))
		}
	}
}

func (d *ccittDecoder) decodeRow1D() {
	codingLine := d.codingLine
	codingLine[0] = 0
	d.codingPos = 0
	blackPixels := 0
	for codingLine[d.codingPos] < d.columns {
		run := d.readRun(blackPixels != 0)
		d.addPixels(codingLine[d.codingPos]+run, blackPixels)
		blackPixels ^= 1
	}
}

// endRow consumes the row trailer: alignment padding, EOL, the 1D/2D tag
// bit and the return to control sequence.
func (d *ccittDecoder) endRow() (done bool) {
	gotEOL := false

	if d.byteAlign {
		d.inputBits &^= 7
	}

	if !d.eoblock && d.row == d.rows-1 {
		d.rowsDone = true
	} else {
		code1 := d.lookBits(12)
		if d.eoline {
			for code1 != ccittEOF && code1 != 1 {
				d.eatBits(1)
				code1 = d.lookBits(12)
			}
		} else {
			for code1 == 0 {
				d.eatBits(1)
				code1 = d.lookBits(12)
			}
		}
		if code1 == 1 {
			d.eatBits(12)
			gotEOL = true
		} else if code1 == ccittEOF {
			d.eof = true
		}
	}

	if !d.eof && d.encoding > 0 && !d.rowsDone {
		d.nextLine2D = d.lookBits(1) == 0
		d.eatBits(1)
	}

	switch {
	case d.eoblock && gotEOL && d.byteAlign:
		if d.lookBits(12) == 1 {
			d.eatBits(12)
			if d.encoding > 0 {
				d.lookBits(1)
				d.eatBits(1)
			}
			if d.encoding >= 0 {
				for i := 0; i < 4; i++ {
					if code1 := d.lookBits(12); code1 != 1 {
						logging.Logger().Debug("ccitt: bad rtc code", slog.Int("code", code1))
					}
					d.eatBits(12)
					if d.encoding > 0 {
						d.lookBits(1)
						d.eatBits(1)
					}
				}
			}
			d.eof = true
		}
	case d.err && d.eoline:
		logging.Logger().Warn("ccitt: resynchronising at next EOL", slog.Int("row", d.row))
		var code1 int
		for {
			code1 = d.lookBits(13)
			if code1 == ccittEOF {
				d.eof = true
				return true
			}
			if code1>>1 == 1 {
				break
			}
			d.eatBits(1)
		}
		d.eatBits(12)
		if d.encoding > 0 {
			d.eatBits(1)
			d.nextLine2D = code1&1 == 0
		}
	}
	return false
}

func (d *ccittDecoder) readNextChar() int {
	if d.eof {
		return -1
	}
	codingLine := d.codingLine
	columns := d.columns

	if d.outputBits == 0 {
		if d.rowsDone {
			d.eof = true
		}
		if d.eof {
			return -1
		}
		d.err = false

		if d.nextLine2D {
			d.decodeRow2D()
		} else {
			d.decodeRow1D()
		}
		if d.endRow() {
			return -1
		}

		if codingLine[0] > 0 {
			d.codingPos = 0
		} else {
			d.codingPos = 1
		}
		d.outputBits = codingLine[d.codingPos]
		d.row++
	}

	var c int
	if d.outputBits >= 8 {
		if d.codingPos&1 == 0 {
			c = 0xff
		}
		d.outputBits -= 8
		if d.outputBits == 0 && codingLine[d.codingPos] < columns {
			d.codingPos++
			d.outputBits = codingLine[d.codingPos] - codingLine[d.codingPos-1]
		}
	} else {
		bits := 8
		for bits > 0 {
			if d.outputBits > bits {
				c <<= bits
				if d.codingPos&1 == 0 {
					c |= 0xff >> (8 - bits)
				}
				d.outputBits -= bits
				bits = 0
			} else {
				c <<= d.outputBits
				if d.codingPos&1 == 0 {
					c |= 0xff >> (8 - d.outputBits)
				}
				bits -= d.outputBits
				d.outputBits = 0
				if codingLine[d.codingPos] < columns {
					d.codingPos++
					d.outputBits = codingLine[d.codingPos] - codingLine[d.codingPos-1]
				} else if bits > 0 {
					c <<= bits
					bits = 0
				}
			}
		}
	}
	if d.black {
		c ^= 0xff
	}
	return c & 0xff
}

func (d *ccittDecoder) addPixels(a1, blackPixels int) {
	codingPos := d.codingPos
	if a1 > d.codingLine[codingPos] {
		if a1 > d.columns {
			d.softError("row is wrong length", slog.Int("row", d.row))
			a1 = d.columns
		}
		if codingPos&1^blackPixels != 0 {
			codingPos++
		}
		d.codingLine[codingPos] = a1
	}
	d.codingPos = codingPos
}

func (d *ccittDecoder) addPixelsNeg(a1, blackPixels int) {
	codingPos := d.codingPos
	switch {
	case a1 > d.codingLine[codingPos]:
		if a1 > d.columns {
			d.softError("row is wrong length", slog.Int("row", d.row))
			a1 = d.columns
		}
		if codingPos&1^blackPixels != 0 {
			codingPos++
		}
		d.codingLine[codingPos] = a1
	case a1 < d.codingLine[codingPos]:
		if a1 < 0 {
			d.softError("invalid code", slog.Int("row", d.row))
			a1 = 0
		}
		for codingPos > 0 && a1 < d.codingLine[codingPos-1] {
			codingPos--
		}
		d.codingLine[codingPos] = a1
	}
	d.codingPos = codingPos
}

// findTableCode searches table for a code of start to end bits. found is
// false when no length matches; eaten is false when the input ended.
func (d *ccittDecoder) findTableCode(start, end int, table []ccittEntry, limit int) (found bool, value int, eaten bool) {
	for i := start; i <= end; i++ {
		code := d.lookBits(i)
		if code == ccittEOF {
			return true, 1, false
		}
		if i < end {
			code <<= end - i
		}
		if limit == 0 || code >= limit {
			idx := code - limit
			if idx < len(table) && table[idx].length == i {
				d.eatBits(i)
				return true, table[idx].value, true
			}
		}
	}
	return false, 0, false
}

func (d *ccittDecoder) getTwoDimCode() int {
	if d.eoblock {
		code := d.lookBits(7)
		if code >= 0 {
			if p := twoDimTable[code]; p.length > 0 {
				d.eatBits(p.length)
				return p.value
			}
		}
	} else if found, value, eaten := d.findTableCode(1, 7, twoDimTable, 0); found && eaten {
		return value
	}
	logging.Logger().Debug("ccitt: bad two dim code", slog.Int("row", d.row))
	return ccittEOF
}

func (d *ccittDecoder) getWhiteCode() int {
	if d.eoblock {
		code := d.lookBits(12)
		if code == ccittEOF {
			return 1
		}
		var p ccittEntry
		if code>>5 == 0 {
			p = whiteTable1[code]
		} else {
			p = whiteTable2[code>>3]
		}
		if p.length > 0 {
			d.eatBits(p.length)
			return p.value
		}
	} else {
		if found, value, _ := d.findTableCode(1, 9, whiteTable2, 0); found {
			return value
		}
		if found, value, _ := d.findTableCode(11, 12, whiteTable1, 0); found {
			return value
		}
	}
	logging.Logger().Debug("ccitt: bad white code", slog.Int("row", d.row))
	d.eatBits(1)
	return 1
}

func (d *ccittDecoder) getBlackCode() int {
	if d.eoblock {
		code := d.lookBits(13)
		if code == ccittEOF {
			return 1
		}
		var p ccittEntry
		switch {
		case code>>7 == 0:
			p = blackTable1[code]
		case code>>9 == 0:
			p = blackTable2[code>>1-64]
		default:
			p = blackTable3[code>>7]
		}
		if p.length > 0 {
			d.eatBits(p.length)
			return p.value
		}
	} else {
		if found, value, _ := d.findTableCode(2, 6, blackTable3, 0); found {
			return value
		}
		if found, value, _ := d.findTableCode(7, 12, blackTable2, 64); found {
			return value
		}
		if found, value, _ := d.findTableCode(10, 13, blackTable1, 0); found {
			return value
		}
	}
	logging.Logger().Debug("ccitt: bad black code", slog.Int("row", d.row))
	d.eatBits(1)
	return 1
}

// lookBits returns the next n bits without consuming them. Past the end of
// the input the value is padded with zero bits; once no bits remain it is
// ccittEOF.
func (d *ccittDecoder) lookBits(n int) int {
	mask := uint32(0xffff) >> (16 - n)
	for d.inputBits < n {
		c := d.src.GetByte()
		if c == -1 {
			if d.inputBits == 0 {
				return ccittEOF
			}
			return int(d.inputBuf << (n - d.inputBits) & mask)
		}
		d.inputBuf = d.inputBuf<<8 | uint32(c)
		d.inputBits += 8
	}
	return int(d.inputBuf >> (d.inputBits - n) & mask)
}

func (d *ccittDecoder) eatBits(n int) {
	d.inputBits -= n
	if d.inputBits < 0 {
		d.inputBits = 0
	}
}

// CCITTFaxStream decodes CCITTFaxDecode (ITU-T T.4 and T.6) data into
// packed rows, one bit per pixel.
type CCITTFaxStream struct {
	*DecodeStream
	decoder *ccittDecoder
}

// NewCCITTFaxStream wraps str with the given parameters.
func NewCCITTFaxStream(str Source, maybeLength int, opts CCITTOptions) *CCITTFaxStream {
	s := &CCITTFaxStream{decoder: newCCITTDecoder(str, opts)}
	s.DecodeStream = newDecodeStream(s, str, maybeLength)
	return s
}

func (s *CCITTFaxStream) readBlock() error {
	for n := 0; n < s.minBufferLength; n++ {
		c := s.decoder.readNextChar()
		if c == -1 {
			s.eof = true
			return nil
		}
		buffer := s.ensureBuffer(s.bufferLength + 1)
		buffer[s.bufferLength] = byte(c)
		s.bufferLength++
	}
	return nil
}
