// Package metadata provides document information dictionary handling: PDF
// dates, text strings and the standard Info entries.
package metadata

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// Vendor is the default Producer and Creator.
const Vendor = "pdfstream"

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

// DocumentMetadata holds the standard Info dictionary entries.
type DocumentMetadata struct {
	Title    string
	Author   string
	Subject  string
	Keywords []string

	// Creator is the software that authored the original document.
	Creator string

	// Producer is the software that produced the PDF.
	Producer string

	Created      *time.Time
	LastModified *time.Time
}

// NewDocumentMetadata creates metadata produced by this package and
// created now.
func NewDocumentMetadata(now time.Time) *DocumentMetadata {
	return &DocumentMetadata{
		Producer: Vendor,
		Creator:  Vendor,
		Created:  &now,
	}
}

// ViewOver returns m with empty fields taken from base. LastModified is
// never inherited.
func (m *DocumentMetadata) ViewOver(base *DocumentMetadata) *DocumentMetadata {
	result := *m
	result.Keywords = append([]string(nil), m.Keywords...)
	if base == nil {
		return &result
	}
	if result.Title == "" {
		result.Title = base.Title
	}
	if result.Author == "" {
		result.Author = base.Author
	}
	if result.Subject == "" {
		result.Subject = base.Subject
	}
	if len(result.Keywords) == 0 {
		result.Keywords = append([]string(nil), base.Keywords...)
	}
	if result.Creator == "" {
		result.Creator = base.Creator
	}
	if result.Producer == "" {
		result.Producer = base.Producer
	}
	if result.Created == nil {
		result.Created = base.Created
	}
	return &result
}

// InfoDictEntry is one entry of an Info dictionary.
type InfoDictEntry struct {
	Key   string
	Value string
}

// Entries returns the non-empty fields as Info entries, dates formatted.
func (m *DocumentMetadata) Entries() []InfoDictEntry {
	var entries []InfoDictEntry
	add := func(key, value string) {
		if value != "" {
			entries = append(entries, InfoDictEntry{Key: key, Value: value})
		}
	}
	add("Title", m.Title)
	add("Author", m.Author)
	add("Subject", m.Subject)
	add("Keywords", strings.Join(m.Keywords, ", "))
	add("Creator", m.Creator)
	add("Producer", m.Producer)
	if m.Created != nil {
		add("CreationDate", FormatDate(*m.Created))
	}
	if m.LastModified != nil {
		add("ModDate", FormatDate(*m.LastModified))
	}
	return entries
}

// InfoDict builds an Info dictionary.
func (m *DocumentMetadata) InfoDict() *generic.DictionaryObject {
	dict := generic.NewDictionary()
	for _, e := range m.Entries() {
		dict.Set(e.Key, EncodeTextString(e.Value))
	}
	return dict
}

// FromInfoDict reads the standard entries of an Info dictionary. Malformed
// dates are ignored.
func FromInfoDict(dict *generic.DictionaryObject) *DocumentMetadata {
	m := &DocumentMetadata{}
	if dict == nil {
		return m
	}
	text := func(key string) string {
		if s, ok := dict.Get(key).(*generic.StringObject); ok {
			return DecodeTextString(s.Value)
		}
		return ""
	}
	m.Title = text("Title")
	m.Author = text("Author")
	m.Subject = text("Subject")
	if kw := text("Keywords"); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				m.Keywords = append(m.Keywords, k)
			}
		}
	}
	m.Creator = text("Creator")
	m.Producer = text("Producer")
	if t, err := ParseDate(text("CreationDate")); err == nil {
		m.Created = &t
	}
	if t, err := ParseDate(text("ModDate")); err == nil {
		m.LastModified = &t
	}
	return m
}

// EncodeTextString encodes s as a PDF text string: ASCII as is, anything
// else as UTF-16BE with a byte order mark.
func EncodeTextString(s string) *generic.StringObject {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			encoded, err := utf16BE.NewEncoder().Bytes([]byte(s))
			if err != nil {
				break
			}
			return &generic.StringObject{Value: encoded, Encoding: "utf-16be"}
		}
	}
	return &generic.StringObject{Value: []byte(s), Encoding: "pdfdoc"}
}

// DecodeTextString decodes the bytes of a PDF text string.
func DecodeTextString(data []byte) string {
	if len(data) >= 2 && data[0] == 0xfe && data[1] == 0xff {
		if decoded, err := utf16BE.NewDecoder().Bytes(data); err == nil {
			return string(decoded)
		}
	}
	return string(data)
}

// FormatDate formats t as D:YYYYMMDDHHmmSSOHH'mm'.
func FormatDate(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("D:%04d%02d%02d%02d%02d%02d%s%02d'%02d'",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
		sign, offset/3600, offset%3600/60)
}

// ParseDate parses a PDF date. Trailing fields may be omitted.
func ParseDate(s string) (time.Time, error) {
	if !strings.HasPrefix(s, "D:") {
		return time.Time{}, fmt.Errorf("invalid PDF date %q: missing D: prefix", s)
	}
	s = strings.ReplaceAll(s[2:], "'", "")
	if i := strings.IndexByte(s, 'Z'); i >= 0 {
		s = s[:i+1]
	}

	formats := []string{
		"20060102150405-0700",
		"20060102150405Z",
		"20060102150405",
		"200601021504",
		"2006010215",
		"20060102",
		"200601",
		"2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse PDF date %q", s)
}
