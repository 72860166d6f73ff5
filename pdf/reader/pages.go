package reader

import (
	"fmt"
	"log/slog"

	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// letterSize is the MediaBox of pages that do not define one.
var letterSize = &generic.Rectangle{LLX: 0, LLY: 0, URX: 612, URY: 792}

// Page is a leaf of the page tree with its inheritable attributes resolved.
type Page struct {
	Ref  generic.Reference
	Dict *generic.DictionaryObject

	MediaBox *generic.Rectangle
	CropBox  *generic.Rectangle
	BleedBox *generic.Rectangle
	TrimBox  *generic.Rectangle
	ArtBox   *generic.Rectangle

	// Rotate is normalised to 0, 90, 180 or 270.
	Rotate    int
	Resources generic.PdfObject
	UserUnit  float64
}

// inherited holds the attributes a Pages node passes to its kids.
type inherited struct {
	mediaBox  generic.PdfObject
	cropBox   generic.PdfObject
	rotate    generic.PdfObject
	resources generic.PdfObject
}

func (in inherited) override(node *generic.DictionaryObject) inherited {
	if v := node.Get("MediaBox"); !generic.IsNull(v) {
		in.mediaBox = v
	}
	if v := node.Get("CropBox"); !generic.IsNull(v) {
		in.cropBox = v
	}
	if v := node.Get("Rotate"); !generic.IsNull(v) {
		in.rotate = v
	}
	if v := node.Get("Resources"); !generic.IsNull(v) {
		in.resources = v
	}
	return in
}

// Pages returns the pages of the document in order.
func (r *PdfFileReader) Pages() ([]*Page, error) {
	if r.pages != nil {
		return r.pages, nil
	}
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	ref, ok := root.Get("Pages").(generic.Reference)
	if !ok {
		return nil, fmt.Errorf("%w: missing Pages reference", ErrInvalidPDF)
	}

	var pages []*Page
	visited := make(map[generic.Reference]bool)
	if err := r.walkPageTree(ref, inherited{}, visited, &pages); err != nil {
		return nil, err
	}
	r.pages = pages
	return pages, nil
}

// NumPages returns the number of pages.
func (r *PdfFileReader) NumPages() (int, error) {
	pages, err := r.Pages()
	return len(pages), err
}

func (r *PdfFileReader) walkPageTree(ref generic.Reference, in inherited, visited map[generic.Reference]bool, pages *[]*Page) error {
	if visited[ref] {
		return fmt.Errorf("%w: page tree cycle at %s", ErrInvalidPDF, ref)
	}
	visited[ref] = true

	node, err := r.ResolveDict(ref)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("%w: page tree node %s is not a dictionary", ErrInvalidPDF, ref)
	}
	in = in.override(node)

	kids := node.GetArray("Kids")
	if node.GetName("Type") == "Page" || (kids == nil && node.GetName("Type") != "Pages") {
		page, err := r.newPage(ref, node, in)
		if err != nil {
			return err
		}
		*pages = append(*pages, page)
		return nil
	}

	for _, kid := range kids {
		kidRef, ok := kid.(generic.Reference)
		if !ok {
			logging.Logger().Warn("skipping direct page tree kid", slog.String("parent", ref.String()))
			continue
		}
		if err := r.walkPageTree(kidRef, in, visited, pages); err != nil {
			return err
		}
	}
	return nil
}

func (r *PdfFileReader) newPage(ref generic.Reference, dict *generic.DictionaryObject, in inherited) (*Page, error) {
	page := &Page{Ref: ref, Dict: dict, UserUnit: 1}

	var err error
	if page.MediaBox, err = r.rectangle(in.mediaBox); err != nil || page.MediaBox == nil {
		page.MediaBox = letterSize
	}
	if page.CropBox, err = r.rectangle(in.cropBox); err != nil || page.CropBox == nil {
		page.CropBox = page.MediaBox
	}
	for _, box := range []struct {
		key string
		dst **generic.Rectangle
	}{
		{"BleedBox", &page.BleedBox},
		{"TrimBox", &page.TrimBox},
		{"ArtBox", &page.ArtBox},
	} {
		if *box.dst, err = r.rectangle(dict.Get(box.key)); err != nil || *box.dst == nil {
			*box.dst = page.CropBox
		}
	}

	if rot, err := r.Resolve(in.rotate); err == nil {
		if n, ok := rot.(generic.IntegerObject); ok && n%90 == 0 {
			page.Rotate = int((n%360 + 360) % 360)
		}
	}
	if unit, err := r.Resolve(dict.Get("UserUnit")); err == nil {
		if v, ok := generic.Number(unit); ok && v > 0 {
			page.UserUnit = v
		}
	}
	page.Resources = in.resources
	return page, nil
}

func (r *PdfFileReader) rectangle(obj generic.PdfObject) (*generic.Rectangle, error) {
	if obj == nil {
		return nil, nil
	}
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil, err
	}
	arr, ok := resolved.(generic.ArrayObject)
	if !ok {
		return nil, nil
	}
	return generic.NewRectangle(arr)
}
