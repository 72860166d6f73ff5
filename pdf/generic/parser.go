package generic

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Syntax errors returned by Parser. Each is wrapped with the offending
// detail.
var (
	ErrInvalidObject     = errors.New("invalid PDF object")
	ErrInvalidDictionary = errors.New("invalid PDF dictionary")
	ErrInvalidArray      = errors.New("invalid PDF array")
	ErrInvalidString     = errors.New("invalid PDF string")
	ErrInvalidName       = errors.New("invalid PDF name")
	ErrInvalidNumber     = errors.New("invalid PDF number")
)

// LengthResolver looks up the value of an indirect stream /Length.
type LengthResolver func(ref Reference) (int64, bool)

// Parser tokenizes PDF syntax from a byte slice that holds the whole file,
// so stream bodies can be returned as subslices without copying.
type Parser struct {
	data []byte
	pos  int

	// ResolveLength is used for streams whose /Length is a reference. If
	// it is nil or cannot answer, the body ends at the next "endstream".
	ResolveLength LengthResolver
}

func NewParser(data []byte) *Parser { return &Parser{data: data} }

// NewParserAt starts reading data at offset.
func NewParserAt(data []byte, offset int) *Parser {
	return &Parser{data: data, pos: offset}
}

// Pos is the offset of the next unread byte.
func (p *Parser) Pos() int { return p.pos }

func (p *Parser) eof() bool { return p.pos >= len(p.data) }

// peek returns the next byte, or -1 at the end of the input.
func (p *Parser) peek() int {
	if p.eof() {
		return -1
	}
	return int(p.data[p.pos])
}

// accept consumes c when it is the next byte.
func (p *Parser) accept(c byte) bool {
	if p.peek() == int(c) {
		p.pos++
		return true
	}
	return false
}

// SkipWhitespace moves past whitespace and % comments.
func (p *Parser) SkipWhitespace() {
	for !p.eof() {
		c := p.data[p.pos]
		if c == '%' {
			for !p.eof() && p.data[p.pos] != '\r' && p.data[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		if !IsWhitespace(c) {
			return
		}
		p.pos++
	}
}

// ReadToken skips leading whitespace and returns the run of regular
// characters that follows, which is empty at a delimiter.
func (p *Parser) ReadToken() string {
	p.SkipWhitespace()
	start := p.pos
	for !p.eof() && IsRegularCharacter(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

func isDigit(c int) bool { return c >= '0' && c <= '9' }

// ParseObject reads one direct object. A leading integer is returned as is
// even when "g R" follows; ParseObjectOrReference handles references.
func (p *Parser) ParseObject() (PdfObject, error) {
	p.SkipWhitespace()
	c := p.peek()
	switch {
	case c < 0:
		return nil, fmt.Errorf("%w: unexpected end of data", ErrInvalidObject)
	case c == '/':
		return p.parseName(), nil
	case c == '(':
		return p.parseLiteral()
	case c == '[':
		return p.parseArray()
	case c == '<':
		p.pos++
		if p.accept('<') {
			return p.parseDictionary()
		}
		return p.parseHex()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.parseNumber()
	case IsRegularCharacter(byte(c)):
		return p.parseKeyword()
	}
	return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidObject, rune(c), p.pos)
}

func (p *Parser) parseKeyword() (PdfObject, error) {
	switch tok := p.ReadToken(); tok {
	case "true":
		return BooleanObject(true), nil
	case "false":
		return BooleanObject(false), nil
	case "null":
		return NullObject{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown keyword %q", ErrInvalidObject, tok)
	}
}

var literalEscapes = map[byte]byte{
	'n': '\n', 'r': '\r', 't': '\t', 'b': '\b', 'f': '\f',
}

func (p *Parser) parseLiteral() (*StringObject, error) {
	p.pos++
	var out []byte
	for depth := 1; ; {
		if p.eof() {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidString)
		}
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
		case ')':
			if depth--; depth == 0 {
				return &StringObject{Value: out}, nil
			}
		case '\\':
			if p.eof() {
				return nil, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidString)
			}
			c = p.data[p.pos]
			p.pos++
			if r, ok := literalEscapes[c]; ok {
				out = append(out, r)
				continue
			}
			switch {
			case c == '\r':
				p.accept('\n')
			case c == '\n':
			case c >= '0' && c <= '7':
				v := c - '0'
				for n := 0; n < 2; n++ {
					d := p.peek()
					if d < '0' || d > '7' {
						break
					}
					v = v<<3 | byte(d-'0')
					p.pos++
				}
				out = append(out, v)
			default:
				out = append(out, c)
			}
			continue
		}
		out = append(out, c)
	}
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// parseHex reads the body of <...> after the opening bracket. An odd digit
// count is completed with a trailing zero.
func (p *Parser) parseHex() (*StringObject, error) {
	out := []byte{}
	half := -1
	for {
		if p.eof() {
			return nil, fmt.Errorf("%w: missing '>'", ErrInvalidString)
		}
		c := p.data[p.pos]
		p.pos++
		if c == '>' {
			break
		}
		if IsWhitespace(c) {
			continue
		}
		v, ok := hexValue(c)
		if !ok {
			return nil, fmt.Errorf("%w: bad hex digit %q", ErrInvalidString, c)
		}
		if half < 0 {
			half = int(v)
		} else {
			out = append(out, byte(half)<<4|v)
			half = -1
		}
	}
	if half >= 0 {
		out = append(out, byte(half)<<4)
	}
	return &StringObject{Value: out, IsHex: true}, nil
}

// parseDictionary reads entries after "<<". Null values are kept so the
// dictionary writes back unchanged.
func (p *Parser) parseDictionary() (*DictionaryObject, error) {
	dict := NewDictionary()
	for {
		p.SkipWhitespace()
		switch p.peek() {
		case -1:
			return nil, fmt.Errorf("%w: missing '>>'", ErrInvalidDictionary)
		case '>':
			p.pos++
			if !p.accept('>') {
				return nil, fmt.Errorf("%w: single '>' at offset %d", ErrInvalidDictionary, p.pos)
			}
			return dict, nil
		case '/':
		default:
			return nil, fmt.Errorf("%w: key at offset %d is not a name", ErrInvalidDictionary, p.pos)
		}

		key := p.parseName()
		value, err := p.ParseObjectOrReference()
		if err != nil {
			return nil, fmt.Errorf("%w: /%s: %w", ErrInvalidDictionary, key, err)
		}
		dict.Set(string(key), value)
	}
}

func (p *Parser) parseArray() (ArrayObject, error) {
	p.pos++
	arr := ArrayObject{}
	for {
		p.SkipWhitespace()
		if p.eof() {
			return nil, fmt.Errorf("%w: missing ']'", ErrInvalidArray)
		}
		if p.accept(']') {
			return arr, nil
		}
		item, err := p.ParseObjectOrReference()
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrInvalidArray, len(arr), err)
		}
		arr = append(arr, item)
	}
}

// parseName reads a name after its slash, decoding #XX escapes. A '#' not
// followed by two hex digits is kept literally.
func (p *Parser) parseName() NameObject {
	p.pos++
	var out []byte
	for !p.eof() && IsRegularCharacter(p.data[p.pos]) {
		c := p.data[p.pos]
		p.pos++
		if c == '#' && p.pos+1 < len(p.data) {
			hi, ok1 := hexValue(p.data[p.pos])
			lo, ok2 := hexValue(p.data[p.pos+1])
			if ok1 && ok2 {
				c = hi<<4 | lo
				p.pos += 2
			}
		}
		out = append(out, c)
	}
	return NameObject(out)
}

// parseNumber reads an optional sign, digits and at most one decimal point.
// A point makes the result a RealObject.
func (p *Parser) parseNumber() (PdfObject, error) {
	start := p.pos
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
	}
	isReal, digits := false, 0
	for {
		c := p.peek()
		if isDigit(c) {
			digits++
		} else if c == '.' && !isReal {
			isReal = true
		} else {
			break
		}
		p.pos++
	}

	text := string(p.data[start:p.pos])
	if digits == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, text)
	}
	if isReal {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidNumber, err)
		}
		return RealObject(f), nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNumber, err)
	}
	return IntegerObject(n), nil
}

// ParseObjectOrReference is ParseObject with "num gen R" recognised as a
// Reference. When the lookahead does not complete a reference the parser is
// left just after the first number.
func (p *Parser) ParseObjectOrReference() (PdfObject, error) {
	p.SkipWhitespace()
	if !isDigit(p.peek()) {
		return p.ParseObject()
	}
	first, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	num, ok := first.(IntegerObject)
	if !ok {
		return first, nil
	}

	after := p.pos
	if ref, ok := p.referenceTail(int(num)); ok {
		return ref, nil
	}
	p.pos = after
	return first, nil
}

// referenceTail tries to read "gen R" following an object number.
func (p *Parser) referenceTail(num int) (Reference, bool) {
	p.SkipWhitespace()
	if !isDigit(p.peek()) {
		return Reference{}, false
	}
	second, err := p.parseNumber()
	if err != nil {
		return Reference{}, false
	}
	gen, ok := second.(IntegerObject)
	if !ok {
		return Reference{}, false
	}
	p.SkipWhitespace()
	if !p.accept('R') {
		return Reference{}, false
	}
	if c := p.peek(); c >= 0 && IsRegularCharacter(byte(c)) {
		return Reference{}, false
	}
	return NewReference(num, int(gen)), true
}

// objectNumber reads one of the two integers of an "n g obj" header.
func (p *Parser) objectNumber(what string) (int, error) {
	p.SkipWhitespace()
	obj, err := p.parseNumber()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidObject, what, err)
	}
	n, ok := obj.(IntegerObject)
	if !ok {
		return 0, fmt.Errorf("%w: %s %v is not an integer", ErrInvalidObject, what, obj)
	}
	return int(n), nil
}

// ParseIndirectObject reads "n g obj <object> endobj". A dictionary followed
// by the stream keyword becomes a *StreamObject. A missing endobj is
// tolerated.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	num, err := p.objectNumber("object number")
	if err != nil {
		return nil, err
	}
	gen, err := p.objectNumber("generation number")
	if err != nil {
		return nil, err
	}
	if kw := p.ReadToken(); kw != "obj" {
		return nil, fmt.Errorf("%w: want obj keyword, found %q", ErrInvalidObject, kw)
	}

	obj, err := p.ParseObjectOrReference()
	if err != nil {
		return nil, err
	}
	p.SkipWhitespace()
	if dict, ok := obj.(*DictionaryObject); ok && p.hasPrefix("stream") {
		p.pos += len("stream")
		if obj, err = p.streamBody(dict); err != nil {
			return nil, err
		}
	}

	mark := p.pos
	if p.ReadToken() != "endobj" {
		p.pos = mark
	}
	return NewIndirectObject(num, gen, obj), nil
}

func (p *Parser) hasPrefix(kw string) bool {
	return bytes.HasPrefix(p.data[p.pos:], []byte(kw))
}

// declaredLength returns the /Length of a stream, or -1 when it is absent
// or cannot be resolved.
func (p *Parser) declaredLength(dict *DictionaryObject) int {
	switch v := dict.Get("Length").(type) {
	case IntegerObject:
		return int(v)
	case Reference:
		if p.ResolveLength != nil {
			if n, ok := p.ResolveLength(v); ok {
				return int(n)
			}
		}
	}
	return -1
}

// streamBody reads stream data following the "stream" keyword. The
// declared length is trusted only when "endstream" follows it; otherwise the
// body runs to the keyword minus one end-of-line marker.
func (p *Parser) streamBody(dict *DictionaryObject) (*StreamObject, error) {
	p.accept('\r')
	p.accept('\n')
	start := p.pos

	if n := p.declaredLength(dict); n >= 0 && n <= len(p.data)-start {
		end := start + n
		after := NewParserAt(p.data, end)
		if after.ReadToken() == "endstream" {
			p.pos = after.pos
			return NewStream(dict, p.data[start:end:end]), nil
		}
	}

	idx := bytes.Index(p.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: stream at offset %d has no endstream", ErrInvalidObject, start)
	}
	p.pos = start + idx + len("endstream")
	end := start + idx
	if end > start && p.data[end-1] == '\n' {
		end--
	}
	if end > start && p.data[end-1] == '\r' {
		end--
	}
	return NewStream(dict, p.data[start:end:end]), nil
}

// ParseRectangle converts a rectangle array such as /MediaBox.
func ParseRectangle(obj PdfObject) (*Rectangle, error) {
	arr, ok := obj.(ArrayObject)
	if !ok {
		return nil, fmt.Errorf("rectangle must be an array, got %T", obj)
	}
	return NewRectangle(arr)
}
