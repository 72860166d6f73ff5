package editor

import (
	"fmt"

	"github.com/georgepadayatti/pdfstream/pdf/generic"
	"github.com/georgepadayatti/pdfstream/pdf/reader"
)

// copier copies objects of one source document into the editor's object
// table. Every source reference is copied once; later uses map to the same
// new reference.
type copier struct {
	doc   *reader.PdfFileReader
	e     *PDFEditor
	trans map[generic.Reference]generic.Reference

	// pages holds the source pages selected for the output.
	pages map[generic.Reference]bool
}

func newCopier(e *PDFEditor, doc *reader.PdfFileReader) *copier {
	return &copier{
		doc:   doc,
		e:     e,
		trans: make(map[generic.Reference]generic.Reference),
		pages: make(map[generic.Reference]bool),
	}
}

// Redirect makes references to orig map to newRef without copying orig.
func (c *copier) Redirect(orig, newRef generic.Reference) {
	c.trans[orig] = newRef
}

// Copy returns obj with every reference replaced by its copy. Containers
// are cloned unless mustClone is false, in which case obj is updated in
// place.
func (c *copier) Copy(obj generic.PdfObject, mustClone bool) (generic.PdfObject, error) {
	switch v := obj.(type) {
	case generic.Reference:
		return c.copyReference(v)
	case generic.ArrayObject:
		if mustClone {
			v = append(generic.ArrayObject(nil), v...)
		}
		for i, item := range v {
			repl, err := c.Copy(item, true)
			if err != nil {
				return nil, err
			}
			v[i] = repl
		}
		return v, nil
	case *generic.DictionaryObject:
		if mustClone {
			v = v.Clone().(*generic.DictionaryObject)
		}
		if err := c.copyEntries(v); err != nil {
			return nil, err
		}
		return v, nil
	case *generic.StreamObject:
		stream := v.Clone().(*generic.StreamObject)
		if err := c.copyEntries(stream.Dictionary); err != nil {
			return nil, err
		}
		return stream, nil
	default:
		return obj, nil
	}
}

func (c *copier) copyEntries(dict *generic.DictionaryObject) error {
	for _, key := range dict.Keys() {
		repl, err := c.Copy(dict.Get(key), true)
		if err != nil {
			return err
		}
		dict.Set(key, repl)
	}
	return nil
}

// copyReference reserves the new reference before copying the target so
// that cycles terminate. Numbers are inlined.
func (c *copier) copyReference(ref generic.Reference) (generic.PdfObject, error) {
	if newRef, ok := c.trans[ref]; ok {
		return newRef, nil
	}
	obj, err := c.doc.GetObject(ref)
	if err != nil {
		return nil, err
	}
	switch obj.(type) {
	case generic.IntegerObject, generic.RealObject:
		return obj, nil
	}
	if dict, ok := obj.(*generic.DictionaryObject); ok && dict.GetName("Type") == "Page" && !c.pages[ref] {
		return nil, fmt.Errorf("%w: %s", ErrDeletedPage, ref)
	}

	newRef := c.e.newRef()
	c.trans[ref] = newRef
	copied, err := c.Copy(obj, true)
	if err != nil {
		return nil, err
	}
	c.e.objects[newRef.ObjectNumber] = copied
	return newRef, nil
}
