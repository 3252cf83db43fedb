package extractor

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/internal/testpdf"
	"github.com/wudi/pagekit/parser"
)

func openDoc(t *testing.T, b *testpdf.Builder) *parser.Document {
	t.Helper()
	doc, err := parser.Open(context.Background(), b.Bytes(testpdf.Options{}), parser.DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc
}

func textPage(t *testing.T, p testpdf.Page, rawOrder bool) *TextPage {
	t.Helper()
	doc := openDoc(t, testpdf.Pages(p))
	page, err := doc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	tp, err := Build(context.Background(), page, Config{RawOrder: rawOrder})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return tp
}

func wordTexts(words []Word) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}
	return out
}

func TestWordsReadingAndRawOrder(t *testing.T) {
	content := testpdf.Text(72, 100, 12, "bottom line") + testpdf.Text(72, 700, 12, "top line")
	tests := []struct {
		name string
		raw  bool
		want []string
	}{
		{"reading", false, []string{"top", "line", "bottom", "line"}},
		{"raw", true, []string{"bottom", "line", "top", "line"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := textPage(t, testpdf.Page{Content: content}, tt.raw)
			if diff := cmp.Diff(tt.want, wordTexts(tp.Words())); diff != "" {
				t.Fatalf("words (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWordBoxes(t *testing.T) {
	tp := textPage(t, testpdf.Page{Content: testpdf.Text(100, 692, 10, "ab cd")}, false)
	words := tp.Words()
	if len(words) != 2 {
		t.Fatalf("words = %q", wordTexts(words))
	}
	// Each character advances testpdf.CharWidth/1000 of the font size.
	adv := testpdf.CharWidth / 1000.0 * 10
	approx := cmpopts.EquateApprox(0, 1e-6)
	if diff := cmp.Diff([]float64{100, 100 + 3*adv}, []float64{words[0].Box.X2 - 2*adv, words[1].Box.X1}, approx); diff != "" {
		t.Fatalf("x positions (-want +got):\n%s", diff)
	}
	// Baseline at y = 692 is 100 points below the top of a Letter page.
	if b := words[0].Box; b.Y1 > 100 || b.Y2 < 100 || b.Y1 < 88 {
		t.Fatalf("box = %+v", b)
	}
	if tp.Width != 612 || tp.Height != 792 {
		t.Fatalf("size = %vx%v", tp.Width, tp.Height)
	}
}

func TestRotatedPage(t *testing.T) {
	tp := textPage(t, testpdf.Page{Content: testpdf.Text(72, 700, 12, "hi"), Rotate: 90}, false)
	if tp.Width != 792 || tp.Height != 612 {
		t.Fatalf("size = %vx%v", tp.Width, tp.Height)
	}
	words := tp.Words()
	if len(words) != 1 {
		t.Fatalf("words = %q", wordTexts(words))
	}
	if c := words[0].Chars[0]; c.Dir != 1 {
		t.Fatalf("dir = %d", c.Dir)
	}
	b := words[0].Box
	if b.X1 < 0 || b.X2 > 792 || b.Y1 < 0 || b.Y2 > 612 {
		t.Fatalf("box outside the page: %+v", b)
	}
}

func TestFindText(t *testing.T) {
	content := testpdf.Text(72, 700, 10, "Hello hello HELLO") + testpdf.Text(72, 600, 10, "aaaa")
	tp := textPage(t, testpdf.Page{Content: content}, false)
	tests := []struct {
		needle string
		want   int
	}{
		{"hello", 3},
		{"Hello hello", 1},
		{"aa", 2},
		{"missing", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.needle, func(t *testing.T) {
			got := tp.FindText(tt.needle)
			if got == nil {
				t.Fatal("nil result")
			}
			if len(got) != tt.want {
				t.Fatalf("matches = %d, want %d", len(got), tt.want)
			}
		})
	}
	boxes := tp.FindText("aa")
	if boxes[0].X2 > boxes[1].X1+1e-9 {
		t.Fatalf("matches overlap: %+v", boxes)
	}
	if w := boxes[0].Width(); math.Abs(w-10) > 1e-6 {
		t.Fatalf("match width = %v", w)
	}
}

func TestFindTextLigature(t *testing.T) {
	b := testpdf.New()
	catalog, tree := b.Reserve(), b.Reserve()
	cmap := b.AddStream("", []byte("/CIDInit /ProcSet findresource begin 12 dict begin begincmap\n1 begincodespacerange <00> <FF> endcodespacerange\n1 beginbfchar <41> <FB01> endbfchar\nendcmap end end"))
	font := b.Add(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /FirstChar 65 /LastChar 65 /Widths [500] /ToUnicode %d 0 R >>", cmap))
	content := b.AddStream("", []byte("BT /F1 10 Tf 10 10 Td (A) Tj ET"))
	page := b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 200 200] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>", tree, content, font))
	b.Set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page))
	b.Set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))
	b.Root = catalog
	doc := openDoc(t, b)
	p, err := doc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	tp, err := Build(context.Background(), p, Config{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if n := len(tp.FindText("FI")); n != 1 {
		t.Fatalf("matches = %d", n)
	}
}

func TestTextAndEmpty(t *testing.T) {
	tp := textPage(t, testpdf.Page{Content: testpdf.Text(72, 700, 12, "one two") + testpdf.Text(72, 680, 12, "three")}, false)
	if got := tp.Text(); got != "one two\nthree" {
		t.Fatalf("text = %q", got)
	}
	if tp.Empty() {
		t.Fatal("page has text")
	}
	if !textPage(t, testpdf.Page{Content: "0 0 10 10 re f"}, false).Empty() {
		t.Fatal("page has no text")
	}
}

func TestMetadataAndLabels(t *testing.T) {
	b := testpdf.Pages(testpdf.Page{}, testpdf.Page{}, testpdf.Page{})
	b.Info = b.Add("<< /Title (Fixture) /Author (Someone) >>")
	pages := b.PageNumbers()
	outline := b.Reserve()
	item := b.Add(fmt.Sprintf("<< /Title (Intro) /Parent %d 0 R /Dest [%d 0 R /Fit] >>", outline, pages[1]))
	b.Set(outline, fmt.Sprintf("<< /Type /Outlines /First %d 0 R /Last %d 0 R /Count 1 >>", item, item))
	tree := b.Reserve()
	b.Set(b.Root, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R /Lang (en-US) /MarkInfo << /Marked true >> /Outlines %d 0 R /PageLabels << /Nums [0 << /S /r >> 2 << /S /D /P (A-) >>] >> >>", tree, outline))
	b.Set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R %d 0 R %d 0 R] /Count 3 >>", pages[0], pages[1], pages[2]))
	for _, p := range pages {
		b.Set(p, fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 100 100] >>", tree))
	}

	ctx := context.Background()
	ext, err := New(openDoc(t, b))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	meta := ext.Metadata(ctx)
	want := Metadata{Version: "1.7", Title: "Fixture", Author: "Someone", Lang: "en-US", Marked: true, PageCount: 3}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Fatalf("metadata (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"i", "ii", "A-1"}, ext.PageLabels(ctx)); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Bookmark{{Title: "Intro", Page: 2}}, ext.Outline(ctx)); diff != "" {
		t.Fatalf("outline (-want +got):\n%s", diff)
	}
}

func TestFonts(t *testing.T) {
	b := testpdf.Pages(testpdf.Page{Content: testpdf.Text(72, 700, 12, "x")}, testpdf.Page{})
	ext, err := New(openDoc(t, b))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	want := []FontInfo{{ResourceName: "F1", BaseFont: "Helvetica", Subtype: "Type1", Encoding: "WinAnsiEncoding", Pages: []int{1, 2}}}
	if diff := cmp.Diff(want, ext.Fonts(context.Background())); diff != "" {
		t.Fatalf("fonts (-want +got):\n%s", diff)
	}
}

func TestDescribeAnnotation(t *testing.T) {
	b := testpdf.Pages(testpdf.Page{Annots: []string{
		"<< /Type /Annot /Subtype /Highlight /Rect [10 20 30 40] /QuadPoints [10 40 30 40 10 20 30 20] /C [0 1 0] /CA 0.5 /F 4 >>",
		"<< /Type /Annot /Subtype /Link /Rect [0 0 5 5] /A << /S /URI /URI (https://example.com) >> /F 2 >>",
	}})
	doc := openDoc(t, b)
	ctx := context.Background()
	page, err := doc.Page(ctx, 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	var got []AnnotationInfo
	for _, a := range page.Annotations(ctx) {
		got = append(got, DescribeAnnotation(ctx, doc, a.Dict))
	}
	want := []AnnotationInfo{
		{
			Subtype: "Highlight", Rect: coords.Rect{X1: 10, Y1: 20, X2: 30, Y2: 40}, Flags: 4,
			Color: []float64{0, 1, 0}, Opacity: 0.5,
			Quads: [][4]coords.Point{{{X: 10, Y: 40}, {X: 30, Y: 40}, {X: 10, Y: 20}, {X: 30, Y: 20}}},
		},
		{Subtype: "Link", Rect: coords.Rect{X2: 5, Y2: 5}, Flags: 2, Opacity: 1, URI: "https://example.com"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("annotations (-want +got):\n%s", diff)
	}
	if got[0].Hidden() || !got[1].Hidden() {
		t.Fatal("hidden flags")
	}
}
