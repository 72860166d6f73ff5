// Package editor builds new PDF documents out of pages of existing ones.
//
// A PDFEditor copies the selected pages together with everything they
// reference, rebuilds a balanced page tree, writes a fresh Info
// dictionary and hands the result to the incremental update engine as a
// file without a previous revision.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/georgepadayatti/pdfstream/config"
	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/crypt"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
	"github.com/georgepadayatti/pdfstream/pdf/metadata"
	"github.com/georgepadayatti/pdfstream/pdf/reader"
	"github.com/georgepadayatti/pdfstream/pdf/writer"
)

// Common errors
var (
	ErrDeletedPage      = errors.New("reference to a page that is not extracted")
	ErrInvalidPageRange = errors.New("invalid page range")
	ErrEditorUsed       = errors.New("editor already produced a document")
)

// binaryMarker follows the header so that sniffers treat the file as binary.
var binaryMarker = []byte{0xfa, 0xde, 0xfa, 0xce}

// PageRange is an inclusive range of zero-based page indices.
type PageRange struct {
	Start, End int
}

// Page returns the range holding the single page i.
func Page(i int) PageRange {
	return PageRange{Start: i, End: i}
}

func (r PageRange) contains(i int) bool {
	return i >= r.Start && i <= r.End
}

// ParsePageRanges parses a comma separated list of indices and inclusive
// ranges such as "0,2-4".
func ParsePageRanges(s string) ([]PageRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var ranges []PageRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || start < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPageRange, part)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPageRange, part)
			}
		}
		ranges = append(ranges, PageRange{Start: start, End: end})
	}
	return ranges, nil
}

// PageInfo selects pages of one document. Excluded pages are never taken;
// when Include is empty every other page is.
type PageInfo struct {
	Document *reader.PdfFileReader
	Include  []PageRange
	Exclude  []PageRange
}

func (p PageInfo) selected(i int) bool {
	for _, r := range p.Exclude {
		if r.contains(i) {
			return false
		}
	}
	if len(p.Include) == 0 {
		return true
	}
	for _, r := range p.Include {
		if r.contains(i) {
			return true
		}
	}
	return false
}

// selectedPage is a source page with the reference of its copy.
type selectedPage struct {
	page   *reader.Page
	copier *copier
	ref    generic.Reference
}

// PDFEditor assembles a new document. An editor produces one document.
type PDFEditor struct {
	cfg config.EditorConfig

	// UseXrefStream writes a cross-reference stream even without object
	// streams.
	UseXrefStream bool

	Serializer *writer.Serializer
	Now        func() time.Time

	// objects is indexed by object number; slot 0 stays empty.
	objects []generic.PdfObject

	// objStreams marks the numbers reserved for object streams.
	objStreams       bitset.BitSet
	objStreamMembers map[int][]generic.Reference

	root, info, pages             generic.Reference
	rootDict, infoDict, pagesDict *generic.DictionaryObject
	newPages                      []generic.Reference
	used                          bool
}

// NewPDFEditor creates an editor. A nil cfg uses the defaults.
func NewPDFEditor(cfg *config.EditorConfig) *PDFEditor {
	var c config.EditorConfig
	if cfg != nil {
		c = *cfg
	}
	c.SetDefaults()

	e := &PDFEditor{
		cfg:              c,
		Now:              time.Now,
		objects:          []generic.PdfObject{nil},
		objStreamMembers: make(map[int][]generic.Reference),
	}
	e.root, e.rootDict = e.newDict()
	e.info, e.infoDict = e.newDict()
	e.pages, e.pagesDict = e.newDict()
	return e
}

func (e *PDFEditor) newRef() generic.Reference {
	e.objects = append(e.objects, nil)
	return generic.NewReference(len(e.objects)-1, 0)
}

func (e *PDFEditor) newDict() (generic.Reference, *generic.DictionaryObject) {
	ref := e.newRef()
	dict := generic.NewDictionary()
	e.objects[ref.ObjectNumber] = dict
	return ref, dict
}

func (e *PDFEditor) useObjectStreams() bool {
	return *e.cfg.UseObjectStreams
}

// ExtractPages copies the selected pages of every document, in order, into
// a new file and returns its bytes.
func (e *PDFEditor) ExtractPages(ctx context.Context, infos []PageInfo) ([]byte, error) {
	if e.used {
		return nil, ErrEditorUsed
	}
	e.used = true
	log := logging.Logger()

	var selected []selectedPage
	var sources []*reader.PdfFileReader
	for _, info := range infos {
		doc := info.Document
		if doc == nil {
			continue
		}
		if doc.IsEncrypted() && doc.Cipher() == nil {
			return nil, fmt.Errorf("%w: no cipher to read the source document", reader.ErrEncrypted)
		}
		sources = append(sources, doc)

		pages, err := doc.Pages()
		if err != nil {
			return nil, err
		}
		c := newCopier(e, doc)
		for i, page := range pages {
			if !info.selected(i) {
				continue
			}
			c.pages[page.Ref] = true
		}
		// Page copies get their numbers first so that pages referring to
		// each other resolve to the copies.
		for i, page := range pages {
			if !info.selected(i) {
				continue
			}
			ref := e.newRef()
			c.Redirect(page.Ref, ref)
			selected = append(selected, selectedPage{page: page, copier: c, ref: ref})
		}
	}
	log.Debug("extracting pages", slog.Int("documents", len(sources)), slog.Int("pages", len(selected)))

	for _, sp := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.copyPage(sp); err != nil {
			return nil, err
		}
		e.newPages = append(e.newPages, sp.ref)
	}

	e.makeRoot()
	var single *reader.PdfFileReader
	if len(infos) == 1 {
		single = infos[0].Document
	}
	e.makeInfo(single)
	encrypt, err := e.makeEncrypt(single)
	if err != nil {
		return nil, err
	}
	return e.write(encrypt)
}

// pageKeys are dropped from copied pages and set again from the resolved,
// inherited page attributes.
var pageKeys = []string{
	"Rotate", "MediaBox", "CropBox", "BleedBox", "TrimBox", "ArtBox",
	"Resources", "Annots", "Parent", "UserUnit",
}

func (e *PDFEditor) copyPage(sp selectedPage) error {
	page, c := sp.page, sp.copier
	dict := page.Dict.Clone().(*generic.DictionaryObject)
	for _, key := range pageKeys {
		dict.Delete(key)
	}
	e.objects[sp.ref.ObjectNumber] = dict

	firstNew := len(e.objects)
	if _, err := c.Copy(dict, false); err != nil {
		return fmt.Errorf("copying page %s: %w", page.Ref, err)
	}

	dict.Set("Rotate", generic.IntegerObject(page.Rotate))
	dict.Set("MediaBox", page.MediaBox.ToArray())
	for _, box := range []struct {
		key  string
		rect *generic.Rectangle
	}{
		{"CropBox", page.CropBox},
		{"BleedBox", page.BleedBox},
		{"TrimBox", page.TrimBox},
		{"ArtBox", page.ArtBox},
	} {
		if box.rect != nil && !box.rect.Equal(page.MediaBox) {
			dict.Set(box.key, box.rect.ToArray())
		}
	}
	if page.UserUnit != 1 {
		dict.Set("UserUnit", generic.RealObject(page.UserUnit))
	}
	if page.Resources != nil {
		resources, err := c.Copy(page.Resources, true)
		if err != nil {
			return fmt.Errorf("copying resources of page %s: %w", page.Ref, err)
		}
		dict.Set("Resources", resources)
	}

	annots, err := e.keptAnnotations(c, page)
	if err != nil {
		return err
	}
	if len(annots) > 0 {
		copied, err := c.Copy(annots, true)
		if err != nil {
			return fmt.Errorf("copying annotations of page %s: %w", page.Ref, err)
		}
		dict.Set("Annots", copied)
	}

	if e.useObjectStreams() {
		e.packPageObjects(firstNew)
	}
	return nil
}

// keptAnnotations returns the annotations of page without links to pages
// that are not extracted. Links to named destinations are dropped since
// the destination names are not carried over.
func (e *PDFEditor) keptAnnotations(c *copier, page *reader.Page) (generic.ArrayObject, error) {
	raw, err := c.doc.Resolve(page.Dict.Get("Annots"))
	if err != nil {
		return nil, err
	}
	annots, _ := raw.(generic.ArrayObject)

	var kept generic.ArrayObject
	for _, item := range annots {
		annot, err := c.doc.ResolveDict(item)
		if err != nil {
			return nil, err
		}
		if annot == nil || annot.GetName("Subtype") != "Link" {
			kept = append(kept, item)
			continue
		}

		dest := annot.Get("Dest")
		if action, _ := c.doc.ResolveDict(annot.Get("A")); action != nil {
			dest = action.Get("D")
		}
		if dest, err = c.doc.Resolve(dest); err != nil {
			return nil, err
		}
		switch d := dest.(type) {
		case nil, generic.NullObject:
			kept = append(kept, item)
		case generic.ArrayObject:
			target, isRef := d.Get(0).(generic.Reference)
			if !isRef || c.pages[target] {
				kept = append(kept, item)
				continue
			}
			logging.Logger().Debug("dropping link to a page that is not extracted",
				slog.String("page", page.Ref.String()), slog.String("target", target.String()))
		default:
			logging.Logger().Debug("dropping link to a named destination", slog.String("page", page.Ref.String()))
		}
	}
	return kept, nil
}

// packPageObjects reserves object streams for the non-stream objects
// created since firstNew.
func (e *PDFEditor) packPageObjects(firstNew int) {
	var refs []generic.Reference
	for num := firstNew; num < len(e.objects); num++ {
		if _, isStream := e.objects[num].(*generic.StreamObject); isStream {
			continue
		}
		refs = append(refs, generic.NewReference(num, 0))
	}
	for len(refs) > 0 {
		n := min(len(refs), writer.MaxObjectsPerStream)
		ref := e.newRef()
		e.objStreams.Set(uint(ref.ObjectNumber))
		e.objStreamMembers[ref.ObjectNumber] = refs[:n]
		refs = refs[n:]
	}
}

func (e *PDFEditor) makeRoot() {
	e.rootDict.Set("Type", generic.NameObject("Catalog"))
	e.rootDict.Set("Version", generic.NameObject(e.cfg.PDFVersion))
	e.rootDict.Set("Pages", e.pages)
	e.makePageTree()
}

// makePageTree splits the pages into nodes of at most
// MaxLeavesPerPagesNode kids.
func (e *PDFEditor) makePageTree() {
	e.pagesDict.Set("Type", generic.NameObject("Pages"))
	e.pagesDict.Set("Count", generic.IntegerObject(len(e.newPages)))

	maxLeaves := e.cfg.MaxLeavesPerPagesNode
	if maxLeaves <= 1 {
		maxLeaves = len(e.newPages)
	}
	type node struct {
		dict   *generic.DictionaryObject
		kids   []generic.Reference
		parent generic.Reference
	}
	stack := []node{{dict: e.pagesDict, kids: e.newPages, parent: e.pages}}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(n.kids) <= maxLeaves {
			kids := make(generic.ArrayObject, len(n.kids))
			for i, ref := range n.kids {
				kids[i] = ref
				e.objects[ref.ObjectNumber].(*generic.DictionaryObject).Set("Parent", n.parent)
			}
			n.dict.Set("Kids", kids)
			continue
		}

		chunkSize := max(maxLeaves, (len(n.kids)+maxLeaves-1)/maxLeaves)
		var kids generic.ArrayObject
		for start := 0; start < len(n.kids); start += chunkSize {
			chunk := n.kids[start:min(start+chunkSize, len(n.kids))]
			ref, dict := e.newDict()
			dict.Set("Type", generic.NameObject("Pages"))
			dict.Set("Parent", n.parent)
			dict.Set("Count", generic.IntegerObject(len(chunk)))
			kids = append(kids, ref)
			stack = append(stack, node{dict: dict, kids: chunk, parent: ref})
		}
		n.dict.Set("Kids", kids)
	}
}

// makeInfo fills the Info dictionary. The text entries of a single source
// document are kept, except ModDate.
func (e *PDFEditor) makeInfo(single *reader.PdfFileReader) {
	values := generic.NewDictionary()
	if single != nil {
		if old := single.Info(); old != nil {
			for _, key := range old.Keys() {
				if s, ok := old.Get(key).(*generic.StringObject); ok {
					values.Set(key, metadata.EncodeTextString(metadata.DecodeTextString(s.Value)))
				}
			}
		}
	}
	values.Delete("ModDate")
	values.Set("CreationDate", metadata.EncodeTextString(metadata.FormatDate(e.Now())))
	values.Set("Creator", metadata.EncodeTextString(e.cfg.Creator))
	values.Set("Producer", metadata.EncodeTextString(e.cfg.Producer))
	if e.cfg.Author != "" {
		values.Set("Author", metadata.EncodeTextString(e.cfg.Author))
	}
	if e.cfg.Title != "" {
		values.Set("Title", metadata.EncodeTextString(e.cfg.Title))
	}
	for _, key := range values.Keys() {
		e.infoDict.Set(key, values.Get(key))
	}
}

// encryption carries the Encrypt dictionary of a single source document.
type encryption struct {
	ref     *generic.Reference
	factory *crypt.CipherFactory
	fileIDs [][]byte
}

func (e *PDFEditor) makeEncrypt(single *reader.PdfFileReader) (encryption, error) {
	if single == nil {
		return encryption{}, nil
	}
	oldRef := single.Trailer.GetEncrypt()
	if oldRef == nil {
		return encryption{}, nil
	}
	dict, err := single.ResolveDict(*oldRef)
	if err != nil {
		return encryption{}, err
	}
	if dict == nil {
		return encryption{}, nil
	}

	c := newCopier(e, single)
	copied, err := c.Copy(dict, true)
	if err != nil {
		return encryption{}, fmt.Errorf("copying Encrypt dictionary: %w", err)
	}
	ref := e.newRef()
	e.objects[ref.ObjectNumber] = copied
	return encryption{
		ref:     &ref,
		factory: single.Cipher(),
		fileIDs: single.Trailer.GetID(),
	}, nil
}

func (e *PDFEditor) createChanges() (*writer.ChangeSet, error) {
	changes := writer.NewChangeSet()
	changes.Delete(generic.NewReference(0, 0xffff))
	for num := 1; num < len(e.objects); num++ {
		ref := generic.NewReference(num, 0)
		if e.objStreams.Test(uint(num)) {
			if err := changes.PackObjectStream(ref, e.objStreamMembers[num], e.Serializer); err != nil {
				return nil, err
			}
			continue
		}
		obj := e.objects[num]
		if obj == nil {
			obj = generic.NullObject{}
		}
		changes.PutObject(ref, obj)
	}
	return changes, nil
}

func (e *PDFEditor) write(enc encryption) ([]byte, error) {
	changes, err := e.createChanges()
	if err != nil {
		return nil, err
	}
	info := writer.XRefInfo{
		Root:    &e.root,
		Info:    &e.info,
		Encrypt: enc.ref,
		FileIDs: enc.fileIDs,
		InfoMap: e.infoDict,
	}
	opts := writer.UpdateOptions{
		UseXrefStream: e.UseXrefStream || e.useObjectStreams(),
		EncryptRef:    enc.ref,
		Serializer:    e.Serializer,
		Now:           e.Now,
	}
	if opts.UseXrefStream {
		xrefRef := e.newRef()
		info.NewRef = &xrefRef
	}
	if enc.factory != nil {
		opts.Encrypt = enc.factory
	}
	return writer.IncrementalUpdate(writer.Header(e.cfg.PDFVersion, binaryMarker), info, changes, opts)
}
