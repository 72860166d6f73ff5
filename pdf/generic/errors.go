package generic

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	ErrStreamEndedPrematurely = errors.New("stream ended prematurely")
	ErrMalformedStream        = errors.New("malformed stream data")
)

const (
	regular byte = iota
	white
	delim
)

// charClass classifies bytes for the tokenizer.
var charClass = func() (t [256]byte) {
	for _, c := range []byte(" \n\r\t\f\x00") {
		t[c] = white
	}
	for _, c := range []byte("()<>[]{}/%") {
		t[c] = delim
	}
	return t
}()

// IsWhitespace reports whether b separates tokens.
func IsWhitespace(b byte) bool { return charClass[b] == white }

// IsDelimiter reports whether b starts or ends a token by itself.
func IsDelimiter(b byte) bool { return charClass[b] == delim }

// IsRegularCharacter reports whether b can be part of a name, number or
// keyword.
func IsRegularCharacter(b byte) bool { return charClass[b] == regular }

// PdfError carries a message and an optional cause.
type PdfError struct {
	Message string
	Cause   error
}

func (e *PdfError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *PdfError) Unwrap() error { return e.Cause }

// PdfStreamError reports malformed filter input. It aborts decoding of the
// stream it occurred in and matches ErrMalformedStream.
type PdfStreamError struct {
	PdfError
}

// NewPdfStreamError returns a stream error with the given message.
func NewPdfStreamError(msg string) *PdfStreamError {
	return &PdfStreamError{PdfError{Message: msg}}
}

func (e *PdfStreamError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrMalformedStream}
	}
	return []error{ErrMalformedStream, e.Cause}
}

// PdfWriteError reports an object graph that cannot be written, such as a
// document without a catalog.
type PdfWriteError struct {
	PdfError
}

// NewPdfWriteError returns a write error with the given message.
func NewPdfWriteError(msg string) *PdfWriteError {
	return &PdfWriteError{PdfError{Message: msg}}
}
