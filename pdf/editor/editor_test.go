package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/georgepadayatti/pdfstream/config"
	"github.com/georgepadayatti/pdfstream/pdf/crypt"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
	"github.com/georgepadayatti/pdfstream/pdf/metadata"
	"github.com/georgepadayatti/pdfstream/pdf/reader"
	"github.com/georgepadayatti/pdfstream/pdf/writer"
)

var testNow = time.Unix(1700000000, 0)

func ints(values ...int) generic.ArrayObject {
	arr := make(generic.ArrayObject, len(values))
	for i, v := range values {
		arr[i] = generic.IntegerObject(v)
	}
	return arr
}

// source is a document under construction. Page dictionaries can be
// changed until read is called.
type source struct {
	w         *writer.PdfFileWriter
	pagesRef  generic.Reference
	pages     []generic.Reference
	pageDicts []*generic.DictionaryObject
	font      generic.Reference
}

// newSource builds a document of n pages labelled "name i". The page tree
// root carries MediaBox, Rotate and Resources for every page.
func newSource(name string, n int) *source {
	s := &source{w: writer.NewPdfFileWriter("1.7")}
	s.w.Now = func() time.Time { return testNow }
	s.pagesRef = s.w.ReserveRef()

	font := generic.NewDictionary()
	font.Set("Type", generic.NameObject("Font"))
	font.Set("BaseFont", generic.NameObject("Helvetica"))
	s.font = s.w.AddObject(font)

	var kids generic.ArrayObject
	for i := 0; i < n; i++ {
		content := s.w.AddObject(generic.NewStream(nil, []byte(fmt.Sprintf("BT (%s %d) Tj ET", name, i))))
		page := generic.NewDictionary()
		page.Set("Type", generic.NameObject("Page"))
		page.Set("Parent", s.pagesRef)
		page.Set("Contents", content)
		page.Set("Label", generic.NewLiteralString(fmt.Sprintf("%s %d", name, i)))
		ref := s.w.AddObject(page)
		s.pages = append(s.pages, ref)
		s.pageDicts = append(s.pageDicts, page)
		kids = append(kids, ref)
	}

	fonts := generic.NewDictionary()
	fonts.Set("F1", s.font)
	resources := generic.NewDictionary()
	resources.Set("Font", fonts)

	pages := generic.NewDictionary()
	pages.Set("Type", generic.NameObject("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", generic.IntegerObject(n))
	pages.Set("MediaBox", ints(0, 0, 300, 400))
	pages.Set("Rotate", generic.IntegerObject(90))
	pages.Set("Resources", resources)
	s.w.SetObject(s.pagesRef, pages)

	catalog := generic.NewDictionary()
	catalog.Set("Type", generic.NameObject("Catalog"))
	catalog.Set("Pages", s.pagesRef)
	s.w.SetRoot(s.w.AddObject(catalog))

	info := generic.NewDictionary()
	info.Set("Title", generic.NewLiteralString("Source "+name))
	info.Set("ModDate", generic.NewLiteralString("D:20200101000000Z"))
	info.Set("Producer", generic.NewLiteralString("other"))
	info.Set("Pages", generic.IntegerObject(n))
	s.w.SetInfo(info)
	return s
}

func (s *source) read(t *testing.T, opts reader.Options) *reader.PdfFileReader {
	t.Helper()
	data, err := s.w.Bytes()
	if err != nil {
		t.Fatalf("writing source: %v", err)
	}
	r, err := reader.NewPdfFileReaderFromBytes(data, opts)
	if err != nil {
		t.Fatalf("reading source: %v", err)
	}
	return r
}

func newTestEditor(cfg *config.EditorConfig) *PDFEditor {
	e := NewPDFEditor(cfg)
	e.Now = func() time.Time { return testNow }
	return e
}

func extract(t *testing.T, e *PDFEditor, infos []PageInfo, opts reader.Options) ([]byte, *reader.PdfFileReader) {
	t.Helper()
	out, err := e.ExtractPages(context.Background(), infos)
	if err != nil {
		t.Fatalf("ExtractPages error: %v", err)
	}
	r, err := reader.NewPdfFileReaderFromBytes(out, opts)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	return out, r
}

func labels(t *testing.T, r *reader.PdfFileReader) []string {
	t.Helper()
	pages, err := r.Pages()
	if err != nil {
		t.Fatalf("Pages error: %v", err)
	}
	var got []string
	for _, p := range pages {
		s, _ := p.Dict.Get("Label").(*generic.StringObject)
		if s == nil {
			t.Fatalf("page %s has no label", p.Ref)
		}
		got = append(got, string(s.Value))
	}
	return got
}

func boolPtr(v bool) *bool { return &v }

func TestParsePageRanges(t *testing.T) {
	tests := []struct {
		input   string
		want    []PageRange
		wantErr bool
	}{
		{"", nil, false},
		{"3", []PageRange{{3, 3}}, false},
		{"0, 2-4 ,7", []PageRange{{0, 0}, {2, 4}, {7, 7}}, false},
		{"5-5", []PageRange{{5, 5}}, false},
		{"4-2", nil, true},
		{"-1", nil, true},
		{"a", nil, true},
		{"1,,2", nil, true},
		{"1-x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePageRanges(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPageRange) {
					t.Fatalf("error = %v, want ErrInvalidPageRange", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePageRanges error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ranges mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPageInfoSelected(t *testing.T) {
	tests := []struct {
		name string
		info PageInfo
		want []int
	}{
		{"all", PageInfo{}, []int{0, 1, 2, 3, 4, 5}},
		{"include", PageInfo{Include: []PageRange{Page(4), Page(1)}}, []int{1, 4}},
		{"include range", PageInfo{Include: []PageRange{{1, 3}, Page(5)}}, []int{1, 2, 3, 5}},
		{"exclude", PageInfo{Exclude: []PageRange{Page(0), {3, 4}}}, []int{1, 2, 5}},
		{"exclude wins", PageInfo{Include: []PageRange{{0, 3}}, Exclude: []PageRange{Page(2)}}, []int{0, 1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for i := 0; i < 6; i++ {
				if tt.info.selected(i) {
					got = append(got, i)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("selection mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractPages(t *testing.T) {
	for _, objStreams := range []bool{true, false} {
		t.Run(fmt.Sprintf("object streams %v", objStreams), func(t *testing.T) {
			src := newSource("a", 4)
			src.pageDicts[1].Set("UserUnit", generic.IntegerObject(2))
			src.pageDicts[2].Set("CropBox", ints(10, 10, 200, 200))
			doc := src.read(t, reader.Options{})

			e := newTestEditor(&config.EditorConfig{UseObjectStreams: boolPtr(objStreams)})
			out, r := extract(t, e, []PageInfo{{Document: doc, Include: []PageRange{{1, 2}, Page(0)}}}, reader.Options{})

			if !bytes.HasPrefix(out, []byte("%PDF-1.7\n%\xfa\xde\xfa\xce\n")) {
				t.Errorf("unexpected header %q", out[:16])
			}
			if r.HasXRefStream != objStreams {
				t.Errorf("HasXRefStream = %v, want %v", r.HasXRefStream, objStreams)
			}
			if got := bytes.Contains(out, []byte("/Type /ObjStm")); got != objStreams {
				t.Errorf("object stream written = %v", got)
			}

			if diff := cmp.Diff([]string{"a 0", "a 1", "a 2"}, labels(t, r)); diff != "" {
				t.Errorf("labels mismatch (-want +got):\n%s", diff)
			}

			root, err := r.Root()
			if err != nil {
				t.Fatalf("Root error: %v", err)
			}
			if root.GetName("Version") != "1.7" {
				t.Errorf("catalog Version = %q", root.GetName("Version"))
			}

			pages, _ := r.Pages()
			media := &generic.Rectangle{LLX: 0, LLY: 0, URX: 300, URY: 400}
			crop := &generic.Rectangle{LLX: 10, LLY: 10, URX: 200, URY: 200}
			for i, p := range pages {
				if p.Rotate != 90 {
					t.Errorf("page %d: Rotate = %d, want 90", i, p.Rotate)
				}
				if diff := cmp.Diff(media, p.MediaBox); diff != "" {
					t.Errorf("page %d: MediaBox mismatch (-want +got):\n%s", i, diff)
				}
				if !p.Dict.Has("MediaBox") || !p.Dict.Has("Rotate") {
					t.Errorf("page %d: attributes not set on the page", i)
				}
				if p.Dict.Get("Parent") == nil {
					t.Errorf("page %d: no Parent", i)
				}
			}
			if pages[0].Dict.Has("CropBox") || pages[0].Dict.Has("UserUnit") {
				t.Errorf("default attributes written for page 0: %v", pages[0].Dict.Keys())
			}
			if pages[1].UserUnit != 2 {
				t.Errorf("page 1: UserUnit = %v, want 2", pages[1].UserUnit)
			}
			for _, key := range []string{"CropBox", "BleedBox", "TrimBox", "ArtBox"} {
				rect, err := generic.NewRectangle(pages[2].Dict.GetArray(key))
				if err != nil {
					t.Fatalf("page 2: %s: %v", key, err)
				}
				if diff := cmp.Diff(crop, rect); diff != "" {
					t.Errorf("page 2: %s mismatch (-want +got):\n%s", key, diff)
				}
			}

			// The shared font is copied once.
			var fonts []generic.PdfObject
			for _, p := range pages {
				res, err := r.ResolveDict(p.Dict.Get("Resources"))
				if err != nil || res == nil {
					t.Fatalf("Resources = %v, %v", p.Dict.Get("Resources"), err)
				}
				fontDict, _ := r.ResolveDict(res.Get("Font"))
				fonts = append(fonts, fontDict.Get("F1"))
			}
			if fonts[0] != fonts[1] || fonts[1] != fonts[2] {
				t.Errorf("font copied more than once: %v", fonts)
			}
			font, err := r.ResolveDict(fonts[0])
			if err != nil || font.GetName("BaseFont") != "Helvetica" {
				t.Errorf("font = %v, %v", font, err)
			}

			stream, err := r.Resolve(pages[1].Dict.Get("Contents"))
			if err != nil {
				t.Fatalf("Contents error: %v", err)
			}
			content, err := r.DecodeStream(stream.(*generic.StreamObject))
			if err != nil {
				t.Fatalf("DecodeStream error: %v", err)
			}
			if string(content) != "BT (a 1) Tj ET" {
				t.Errorf("content = %q", content)
			}
		})
	}
}

func TestExtractPagesInfo(t *testing.T) {
	doc := newSource("a", 1).read(t, reader.Options{})
	e := newTestEditor(&config.EditorConfig{Author: "Ann"})
	_, r := extract(t, e, []PageInfo{{Document: doc}}, reader.Options{})

	info := r.Info()
	if info == nil {
		t.Fatal("no Info dictionary")
	}
	got := map[string]string{}
	for _, key := range info.Keys() {
		if s, ok := info.Get(key).(*generic.StringObject); ok {
			got[key] = metadata.DecodeTextString(s.Value)
		}
	}
	want := map[string]string{
		"Title":        "Source a",
		"Producer":     "pdfstream",
		"Creator":      "pdfstream",
		"Author":       "Ann",
		"CreationDate": metadata.FormatDate(testNow),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Info mismatch (-want +got):\n%s", diff)
	}
	if info.Has("Pages") {
		t.Errorf("non-string Info entry carried over")
	}

	e = newTestEditor(&config.EditorConfig{Title: "New"})
	_, r = extract(t, e, []PageInfo{{Document: doc}}, reader.Options{})
	if s, _ := r.Info().Get("Title").(*generic.StringObject); s == nil || string(s.Value) != "New" {
		t.Errorf("Title = %v, want New", r.Info().Get("Title"))
	}
}

func TestExtractPagesMultipleDocuments(t *testing.T) {
	a := newSource("a", 3).read(t, reader.Options{})
	b := newSource("b", 2).read(t, reader.Options{})

	e := newTestEditor(nil)
	_, r := extract(t, e, []PageInfo{
		{Document: b, Exclude: []PageRange{Page(0)}},
		{Document: nil},
		{Document: a, Include: []PageRange{Page(2), Page(0)}},
	}, reader.Options{})

	if diff := cmp.Diff([]string{"b 1", "a 0", "a 2"}, labels(t, r)); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if r.Info().Has("Title") {
		t.Errorf("Info of a source carried into a merged document")
	}
}

func TestExtractPagesTree(t *testing.T) {
	const n = 40
	doc := newSource("a", n).read(t, reader.Options{})
	e := newTestEditor(&config.EditorConfig{MaxLeavesPerPagesNode: 4})
	_, r := extract(t, e, []PageInfo{{Document: doc}}, reader.Options{})

	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("a %d", i)
	}
	if diff := cmp.Diff(want, labels(t, r)); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	root, _ := r.Root()
	rootRef := root.Get("Pages").(generic.Reference)
	var walk func(ref, parent generic.Reference) int
	walk = func(ref, parent generic.Reference) int {
		node, err := r.ResolveDict(ref)
		if err != nil || node == nil {
			t.Fatalf("node %s: %v", ref, err)
		}
		if ref != rootRef {
			if got, _ := node.Get("Parent").(generic.Reference); got != parent {
				t.Errorf("node %s: Parent = %v, want %s", ref, node.Get("Parent"), parent)
			}
		}
		if node.GetName("Type") == "Page" {
			return 1
		}
		kids := node.GetArray("Kids")
		if len(kids) > 4 {
			t.Errorf("node %s has %d kids", ref, len(kids))
		}
		count := 0
		for _, kid := range kids {
			count += walk(kid.(generic.Reference), ref)
		}
		if c, _ := node.GetInt("Count"); int(c) != count {
			t.Errorf("node %s: Count = %d, want %d", ref, c, count)
		}
		return count
	}
	if got := walk(rootRef, generic.Reference{}); got != n {
		t.Errorf("tree holds %d pages, want %d", got, n)
	}
}

func TestExtractPagesCrossReferences(t *testing.T) {
	newDoc := func() *reader.PdfFileReader {
		src := newSource("a", 3)
		src.pageDicts[0].Set("Next", src.pages[1])
		return src.read(t, reader.Options{})
	}

	doc := newDoc()
	e := newTestEditor(nil)
	_, r := extract(t, e, []PageInfo{{Document: doc, Include: []PageRange{{0, 1}}}}, reader.Options{})
	pages, _ := r.Pages()
	if got, _ := pages[0].Dict.Get("Next").(generic.Reference); got != pages[1].Ref {
		t.Errorf("Next = %v, want copy of page 1 %s", pages[0].Dict.Get("Next"), pages[1].Ref)
	}

	doc = newDoc()
	_, err := newTestEditor(nil).ExtractPages(context.Background(), []PageInfo{{Document: doc, Include: []PageRange{Page(0)}}})
	if !errors.Is(err, ErrDeletedPage) {
		t.Errorf("error = %v, want ErrDeletedPage", err)
	}
}

func TestExtractPagesAnnotations(t *testing.T) {
	src := newSource("a", 3)
	w := src.w
	link := func(entries ...any) generic.Reference {
		d := generic.NewDictionary()
		d.Set("Type", generic.NameObject("Annot"))
		d.Set("Subtype", generic.NameObject("Link"))
		for i := 0; i < len(entries); i += 2 {
			d.Set(entries[i].(string), entries[i+1].(generic.PdfObject))
		}
		return w.AddObject(d)
	}
	goTo := generic.NewDictionary()
	goTo.Set("S", generic.NameObject("GoTo"))
	goTo.Set("D", generic.ArrayObject{src.pages[2], generic.NameObject("Fit")})

	text := generic.NewDictionary()
	text.Set("Subtype", generic.NameObject("Text"))
	text.Set("Contents", generic.NewLiteralString("note"))

	src.pageDicts[0].Set("Annots", generic.ArrayObject{
		link("Dest", generic.ArrayObject{src.pages[1], generic.NameObject("Fit")}),
		link("A", goTo),
		link("Dest", generic.NewLiteralString("chapter1")),
		link("Dest", generic.ArrayObject{generic.IntegerObject(0), generic.NameObject("Fit")}),
		w.AddObject(text),
	})
	doc := src.read(t, reader.Options{})

	e := newTestEditor(nil)
	_, r := extract(t, e, []PageInfo{{Document: doc, Exclude: []PageRange{Page(1)}}}, reader.Options{})
	pages, _ := r.Pages()

	annots := pages[0].Dict.GetArray("Annots")
	if len(annots) != 3 {
		t.Fatalf("got %d annotations, want 3", len(annots))
	}
	first, err := r.ResolveDict(annots[0])
	if err != nil || first == nil {
		t.Fatalf("annotation 0: %v", err)
	}
	action, _ := r.ResolveDict(first.Get("A"))
	if action == nil {
		t.Fatalf("annotation 0 is not the GoTo link: %v", first.Keys())
	}
	if got, _ := action.GetArray("D").Get(0).(generic.Reference); got != pages[1].Ref {
		t.Errorf("link target = %v, want %s", action.GetArray("D").Get(0), pages[1].Ref)
	}
	last, _ := r.ResolveDict(annots[2])
	if last == nil || last.GetName("Subtype") != "Text" {
		t.Errorf("annotation 2 = %v", last)
	}
}

func TestExtractPagesEncrypted(t *testing.T) {
	factory, err := crypt.NewCipherFactory([]byte{7, 7, 7, 7, 7}, crypt.CryptFilterV2)
	if err != nil {
		t.Fatalf("NewCipherFactory error: %v", err)
	}
	src := newSource("a", 2)
	encrypt := generic.NewDictionary()
	encrypt.Set("Filter", generic.NameObject("Standard"))
	encrypt.Set("O", generic.NewLiteralString("owner"))
	src.w.Encrypt = factory
	src.w.SetEncrypt(src.w.AddObject(encrypt), []byte("0123456789abcdef"))
	data, err := src.w.Bytes()
	if err != nil {
		t.Fatalf("writing source: %v", err)
	}

	plain, err := reader.NewPdfFileReaderFromBytes(data, reader.Options{})
	if err != nil {
		t.Fatalf("reading source: %v", err)
	}
	if _, err := newTestEditor(nil).ExtractPages(context.Background(), []PageInfo{{Document: plain}}); !errors.Is(err, reader.ErrEncrypted) {
		t.Errorf("error without cipher = %v, want ErrEncrypted", err)
	}

	doc, err := reader.NewPdfFileReaderFromBytes(data, reader.Options{Cipher: factory})
	if err != nil {
		t.Fatalf("reading source: %v", err)
	}
	out, r := extract(t, newTestEditor(nil), []PageInfo{{Document: doc}}, reader.Options{Cipher: factory})
	if !r.IsEncrypted() {
		t.Fatal("output is not encrypted")
	}
	if bytes.Contains(out, []byte("Source a")) {
		t.Errorf("Info written in the clear")
	}
	if ids := r.Trailer.GetID(); len(ids) != 2 || string(ids[0]) != "0123456789abcdef" {
		t.Errorf("ID = %q", ids)
	}
	enc, _ := r.ResolveDict(*r.Trailer.GetEncrypt())
	if o, _ := enc.Get("O").(*generic.StringObject); o == nil || string(o.Value) != "owner" {
		t.Errorf("Encrypt O = %v", enc.Get("O"))
	}
	if s, _ := r.Info().Get("Title").(*generic.StringObject); s == nil || string(s.Value) != "Source a" {
		t.Errorf("Title = %v", r.Info().Get("Title"))
	}
	if diff := cmp.Diff([]string{"a 0", "a 1"}, labels(t, r)); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPagesMergedEncryptedSources(t *testing.T) {
	factory, err := crypt.NewCipherFactory([]byte{1, 1, 1, 1, 1}, crypt.CryptFilterV2)
	if err != nil {
		t.Fatalf("NewCipherFactory error: %v", err)
	}
	src := newSource("a", 1)
	src.w.Encrypt = factory
	src.w.SetEncrypt(src.w.AddObject(generic.NewDictionary()), []byte("id"))
	enc := src.read(t, reader.Options{Cipher: factory})
	plain := newSource("b", 1).read(t, reader.Options{})

	_, r := extract(t, newTestEditor(nil), []PageInfo{{Document: enc}, {Document: plain}}, reader.Options{})
	if r.IsEncrypted() {
		t.Errorf("merged output carries an Encrypt dictionary")
	}
	if diff := cmp.Diff([]string{"a 0", "b 0"}, labels(t, r)); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPagesSingleUse(t *testing.T) {
	doc := newSource("a", 1).read(t, reader.Options{})
	e := newTestEditor(nil)
	if _, err := e.ExtractPages(context.Background(), []PageInfo{{Document: doc}}); err != nil {
		t.Fatalf("ExtractPages error: %v", err)
	}
	if _, err := e.ExtractPages(context.Background(), []PageInfo{{Document: doc}}); !errors.Is(err, ErrEditorUsed) {
		t.Errorf("second call error = %v, want ErrEditorUsed", err)
	}
}

func TestExtractPagesCanceled(t *testing.T) {
	doc := newSource("a", 2).read(t, reader.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestEditor(nil).ExtractPages(ctx, []PageInfo{{Document: doc}}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestExtractPagesEmpty(t *testing.T) {
	doc := newSource("a", 2).read(t, reader.Options{})
	_, r := extract(t, newTestEditor(nil), []PageInfo{{Document: doc, Include: []PageRange{Page(9)}}}, reader.Options{})
	if n, err := r.NumPages(); err != nil || n != 0 {
		t.Errorf("NumPages = %d, %v", n, err)
	}
}
