// Package generic holds the PDF object model shared by the reader, the
// writer and the filter pipeline, together with the tokenizer that
// produces it.
package generic

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"

	"golang.org/x/text/encoding/unicode"
)

// PdfObject is the closed set of PDF value kinds: NameObject, Reference,
// ArrayObject, *DictionaryObject, *StreamObject, *StringObject,
// IntegerObject, RealObject, BooleanObject and NullObject.
// *IndirectObject only appears for top-level "n g obj" definitions.
type PdfObject interface {
	// Clone returns a copy that shares no mutable state with the receiver.
	Clone() PdfObject

	pdfObject()
}

// Reference is an "n g R" pointer. It is comparable and used as a map key
// throughout the reader and writer.
type Reference struct {
	ObjectNumber     int
	GenerationNumber int
}

func NewReference(objNum, genNum int) Reference {
	return Reference{objNum, genNum}
}

func (r Reference) Clone() PdfObject { return r }
func (Reference) pdfObject()         {}

func (r Reference) String() string {
	return strconv.Itoa(r.ObjectNumber) + " " + strconv.Itoa(r.GenerationNumber) + " R"
}

// IndirectObject is a numbered top-level object as found in a file body.
type IndirectObject struct {
	ObjectNumber     int
	GenerationNumber int
	Object           PdfObject
}

func NewIndirectObject(objNum, genNum int, obj PdfObject) *IndirectObject {
	return &IndirectObject{objNum, genNum, obj}
}

func (i *IndirectObject) Clone() PdfObject {
	c := *i
	if c.Object != nil {
		c.Object = c.Object.Clone()
	}
	return &c
}

func (*IndirectObject) pdfObject() {}

// GetReference returns the reference that points at i.
func (i *IndirectObject) GetReference() Reference {
	return NewReference(i.ObjectNumber, i.GenerationNumber)
}

// Scalar kinds. Their Clone returns the receiver since they are values.
type (
	NullObject    struct{}
	BooleanObject bool
	IntegerObject int64
	RealObject    float64
	// NameObject stores a name without its leading slash.
	NameObject string
)

func (NullObject) Clone() PdfObject      { return NullObject{} }
func (b BooleanObject) Clone() PdfObject { return b }
func (i IntegerObject) Clone() PdfObject { return i }
func (r RealObject) Clone() PdfObject    { return r }
func (n NameObject) Clone() PdfObject    { return n }

func (NullObject) pdfObject()    {}
func (BooleanObject) pdfObject() {}
func (IntegerObject) pdfObject() {}
func (RealObject) pdfObject()    {}
func (NameObject) pdfObject()    {}

// String formats r in positional notation, the only form PDF accepts, using
// the fewest digits that round-trip. NaN and infinities become 0.
func (r RealObject) String() string {
	f := float64(r)
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return "0"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (n NameObject) String() string { return string(n) }

// Escaped returns the body of the name as written in a file: bytes outside
// the printable range and delimiter bytes become #XX.
func (n NameObject) Escaped() string {
	const hex = "0123456789ABCDEF"
	i := 0
	for i < len(n) && plainNameByte(n[i]) {
		i++
	}
	if i == len(n) {
		return string(n)
	}
	out := []byte(n[:i])
	for ; i < len(n); i++ {
		c := n[i]
		if plainNameByte(c) {
			out = append(out, c)
		} else {
			out = append(out, '#', hex[c>>4], hex[c&0xf])
		}
	}
	return string(out)
}

func plainNameByte(c byte) bool {
	if c < '!' || c > '~' || c == '#' {
		return false
	}
	return !IsDelimiter(c)
}

// StringObject is a literal "(...)" or hex "<...>" string. Encoding is
// "utf-16be", "pdfdoc" or empty when the bytes carry no text meaning.
type StringObject struct {
	Value    []byte
	IsHex    bool
	Encoding string
}

func NewLiteralString(s string) *StringObject {
	return &StringObject{Value: []byte(s)}
}

func NewHexString(data []byte) *StringObject {
	return &StringObject{Value: data, IsHex: true}
}

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

// NewTextString stores ASCII text unchanged and everything else as
// UTF-16BE behind a byte order mark.
func NewTextString(s string) *StringObject {
	if !isASCII(s) {
		if enc, err := utf16BE.NewEncoder().String(s); err == nil {
			return &StringObject{Value: []byte(enc), Encoding: "utf-16be"}
		}
	}
	return &StringObject{Value: []byte(s), Encoding: "pdfdoc"}
}

func isASCII(s string) bool {
	for _, c := range []byte(s) {
		if c > 0x7f {
			return false
		}
	}
	return true
}

func (s *StringObject) Clone() PdfObject {
	c := *s
	c.Value = bytes.Clone(s.Value)
	return &c
}

func (*StringObject) pdfObject() {}

// Text interprets the value as a text string, honouring a UTF-16BE byte
// order mark.
func (s *StringObject) Text() string {
	if bytes.HasPrefix(s.Value, []byte{0xfe, 0xff}) {
		if text, err := utf16BE.NewDecoder().Bytes(s.Value); err == nil {
			return string(text)
		}
	}
	return string(s.Value)
}

// ArrayObject is a PDF array. Nil elements are written as null.
type ArrayObject []PdfObject

func NewArray(items ...PdfObject) ArrayObject { return items }

func (a ArrayObject) Clone() PdfObject {
	out := make(ArrayObject, 0, len(a))
	for _, item := range a {
		if item != nil {
			item = item.Clone()
		}
		out = append(out, item)
	}
	return out
}

func (ArrayObject) pdfObject() {}

// Get returns element i, or nil when i is out of range.
func (a ArrayObject) Get(i int) PdfObject {
	if uint(i) >= uint(len(a)) {
		return nil
	}
	return a[i]
}

type dictEntry struct {
	key   string
	value PdfObject
}

// DictionaryObject maps names to values. Iteration and serialization follow
// insertion order; overwriting a key keeps its slot.
type DictionaryObject struct {
	items []dictEntry
	index map[string]int
}

func NewDictionary() *DictionaryObject {
	return &DictionaryObject{index: map[string]int{}}
}

func (d *DictionaryObject) Clone() PdfObject {
	c := &DictionaryObject{
		items: make([]dictEntry, len(d.items)),
		index: make(map[string]int, len(d.index)),
	}
	for i, e := range d.items {
		if e.value != nil {
			e.value = e.value.Clone()
		}
		c.items[i] = e
		c.index[e.key] = i
	}
	return c
}

func (*DictionaryObject) pdfObject() {}

func (d *DictionaryObject) Set(key string, value PdfObject) {
	if i, ok := d.index[key]; ok {
		d.items[i].value = value
		return
	}
	d.index[key] = len(d.items)
	d.items = append(d.items, dictEntry{key, value})
}

// Get returns the value stored under key, or nil.
func (d *DictionaryObject) Get(key string) PdfObject {
	if i, ok := d.index[key]; ok {
		return d.items[i].value
	}
	return nil
}

func (d *DictionaryObject) Delete(key string) {
	i, ok := d.index[key]
	if !ok {
		return
	}
	d.items = slices.Delete(d.items, i, i+1)
	delete(d.index, key)
	for j := i; j < len(d.items); j++ {
		d.index[d.items[j].key] = j
	}
}

// Has reports whether key holds a value other than null. A null entry is
// kept for serialization but means the same as a missing one.
func (d *DictionaryObject) Has(key string) bool {
	return !IsNull(d.Get(key))
}

// Keys returns a fresh slice of the keys in insertion order.
func (d *DictionaryObject) Keys() []string {
	keys := make([]string, len(d.items))
	for i, e := range d.items {
		keys[i] = e.key
	}
	return keys
}

func (d *DictionaryObject) Len() int { return len(d.items) }

// GetName returns the name under key, or "" when it holds something else.
func (d *DictionaryObject) GetName(key string) string {
	n, _ := d.Get(key).(NameObject)
	return string(n)
}

// GetInt returns a numeric value truncated to an integer.
func (d *DictionaryObject) GetInt(key string) (int64, bool) {
	switch v := d.Get(key).(type) {
	case IntegerObject:
		return int64(v), true
	case RealObject:
		return int64(v), true
	}
	return 0, false
}

func (d *DictionaryObject) GetIntDefault(key string, def int) int {
	v, ok := d.GetInt(key)
	if !ok {
		return def
	}
	return int(v)
}

func (d *DictionaryObject) GetBool(key string, def bool) bool {
	b, ok := d.Get(key).(BooleanObject)
	if !ok {
		return def
	}
	return bool(b)
}

func (d *DictionaryObject) GetArray(key string) ArrayObject {
	a, _ := d.Get(key).(ArrayObject)
	return a
}

func (d *DictionaryObject) GetDict(key string) *DictionaryObject {
	sub, _ := d.Get(key).(*DictionaryObject)
	return sub
}

// StreamObject pairs a dictionary with its payload. Data is normally the
// encoded form described by the dictionary's Filter entry. With Unfiltered
// set, Data is plain and the writer deflates it on output; the dictionary
// already names FlateDecode first.
type StreamObject struct {
	Dictionary *DictionaryObject
	Data       []byte
	Unfiltered bool
}

// NewStream wraps data; a nil dict is replaced by an empty one.
func NewStream(dict *DictionaryObject, data []byte) *StreamObject {
	if dict == nil {
		dict = NewDictionary()
	}
	return &StreamObject{Dictionary: dict, Data: data}
}

func (s *StreamObject) Clone() PdfObject {
	return &StreamObject{
		Dictionary: s.Dictionary.Clone().(*DictionaryObject),
		Data:       bytes.Clone(s.Data),
		Unfiltered: s.Unfiltered,
	}
}

func (*StreamObject) pdfObject() {}

// IsNull reports whether obj is missing or the null object.
func IsNull(obj PdfObject) bool {
	switch obj.(type) {
	case nil, NullObject:
		return true
	}
	return false
}

// Number converts an integer or real object to float64.
func Number(obj PdfObject) (float64, bool) {
	if i, ok := obj.(IntegerObject); ok {
		return float64(i), true
	}
	r, ok := obj.(RealObject)
	return float64(r), ok
}

// Rectangle is a box given by its lower-left and upper-right corners.
type Rectangle struct {
	LLX, LLY float64
	URX, URY float64
}

// NewRectangle reads a four-number array such as a MediaBox.
func NewRectangle(arr ArrayObject) (*Rectangle, error) {
	if n := len(arr); n != 4 {
		return nil, fmt.Errorf("rectangle needs 4 numbers, got %d", n)
	}
	var c [4]float64
	for i := range c {
		v, ok := Number(arr[i])
		if !ok {
			return nil, fmt.Errorf("rectangle element %d is not a number", i)
		}
		c[i] = v
	}
	return &Rectangle{c[0], c[1], c[2], c[3]}, nil
}

// ToArray is the inverse of NewRectangle. Integral coordinates are written
// as integers.
func (r *Rectangle) ToArray() ArrayObject {
	out := make(ArrayObject, 0, 4)
	for _, v := range []float64{r.LLX, r.LLY, r.URX, r.URY} {
		var obj PdfObject = RealObject(v)
		if v == math.Trunc(v) {
			obj = IntegerObject(v)
		}
		out = append(out, obj)
	}
	return out
}

func (r *Rectangle) Equal(o *Rectangle) bool {
	if r == nil || o == nil {
		return r == o
	}
	return *r == *o
}

func (r *Rectangle) Width() float64  { return r.URX - r.LLX }
func (r *Rectangle) Height() float64 { return r.URY - r.LLY }

// TrailerDictionary adds typed accessors for the trailer keys to a
// dictionary. Cross-reference stream dictionaries are wrapped the same way.
type TrailerDictionary struct {
	*DictionaryObject
}

func NewTrailer() *TrailerDictionary {
	return &TrailerDictionary{NewDictionary()}
}

func (t *TrailerDictionary) GetRoot() *Reference    { return t.ref("Root") }
func (t *TrailerDictionary) GetInfo() *Reference    { return t.ref("Info") }
func (t *TrailerDictionary) GetEncrypt() *Reference { return t.ref("Encrypt") }

func (t *TrailerDictionary) ref(key string) *Reference {
	r, ok := t.Get(key).(Reference)
	if !ok {
		return nil
	}
	return &r
}

// GetSize returns /Size, or 0 when missing.
func (t *TrailerDictionary) GetSize() int64 {
	size, _ := t.GetInt("Size")
	return size
}

// GetPrev returns the offset of the previous cross-reference section.
func (t *TrailerDictionary) GetPrev() (int64, bool) {
	return t.GetInt("Prev")
}

// GetID returns copies of both /ID strings, or nil unless the entry is a
// pair of strings.
func (t *TrailerDictionary) GetID() [][]byte {
	arr := t.GetArray("ID")
	if len(arr) != 2 {
		return nil
	}
	var ids [][]byte
	for _, item := range arr {
		s, ok := item.(*StringObject)
		if !ok {
			return nil
		}
		ids = append(ids, bytes.Clone(s.Value))
	}
	return ids
}
