package document

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wudi/pagekit/args"
	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/internal/testpdf"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/parser"
)

func TestBuildQuadrilateral(t *testing.T) {
	r := FracRect{X1: 0.1, Y1: 0.2, X2: 0.3, Y2: 0.4}
	tests := []struct {
		rotate int
		want   Quadrilateral
	}{
		{0, Quadrilateral{{X: 10, Y: 80}, {X: 10, Y: 40}, {X: 30, Y: 80}, {X: 30, Y: 40}}},
		{90, Quadrilateral{{X: 80, Y: 20}, {X: 80, Y: 60}, {X: 60, Y: 20}, {X: 60, Y: 60}}},
		{180, Quadrilateral{{X: 70, Y: 160}, {X: 70, Y: 120}, {X: 90, Y: 160}, {X: 90, Y: 120}}},
		{270, Quadrilateral{{X: 20, Y: 180}, {X: 20, Y: 140}, {X: 40, Y: 180}, {X: 40, Y: 140}}},
		{45, Quadrilateral{{X: 10, Y: 80}, {X: 10, Y: 40}, {X: 30, Y: 80}, {X: 30, Y: 40}}},
	}
	for _, tt := range tests {
		got := BuildQuadrilateral(r, tt.rotate, 100, 200)
		if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("rotate %d (-want +got):\n%s", tt.rotate, diff)
		}
	}
}

func quad(x1, y1, x2, y2 any) args.Value {
	return args.MustFrom(map[string]any{"x1": x1, "y1": y1, "x2": x2, "y2": y2})
}

func TestAddAnnotationsValidation(t *testing.T) {
	d := openDoc(t, textPDF())
	p := openPage(t, d, 1)
	valid := quad(0.1, 0.1, 0.2, 0.2)

	tests := []struct {
		name  string
		quads []args.Value
		want  string
	}{
		{"not a map", []args.Value{args.String("x")}, "Invalid rectangle definition for annotation quadrilateral"},
		{"missing key", []args.Value{args.MustFrom(map[string]any{"x1": 0, "y1": 0, "x2": 1})}, "Invalid rectangle definition for annotation quadrilateral"},
		{"not a number", []args.Value{quad(0, 0, 1, "1")}, "Wrong values for rectangle corners definition"},
		{"last one bad", []args.Value{valid, valid, quad(0, 0, nil, 1)}, "Wrong values for rectangle corners definition"},
		{"bad inside array", []args.Value{args.Array(valid, args.Null())}, "Invalid rectangle definition for annotation quadrilateral"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.AddAnnotations(tt.quads...)
			if !errors.Is(err, ErrInvalidArgument) || err.Error() != tt.want {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
			if n, _ := p.NumAnnotations(); n != 0 {
				t.Errorf("rejected input attached %d annotations", n)
			}
		})
	}

	if err := p.AddAnnotations(); err != nil {
		t.Fatal(err)
	}
	if err := p.AddAnnotations(args.Array()); err != nil {
		t.Fatal(err)
	}
	if n, _ := p.NumAnnotations(); n != 0 {
		t.Errorf("empty input attached %d annotations", n)
	}

	if err := p.AddAnnotations(args.Array(valid, quad(0.5, 0.5, 0.6, 0.6))); err != nil {
		t.Fatal(err)
	}
	if err := p.AddAnnotations(valid); err != nil {
		t.Fatal(err)
	}
	if n, _ := p.NumAnnotations(); n != 2 {
		t.Errorf("NumAnnotations = %d, want 2", n)
	}
}

// saved reopens the document written by d.Save and returns the
// annotations of page n.
func saved(t *testing.T, d *Document, n int) []parser.Annotation {
	t.Helper()
	var buf bytes.Buffer
	if err := d.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	ctx := context.Background()
	doc, err := parser.Open(ctx, buf.Bytes(), parser.DefaultConfig())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	pg, err := doc.Page(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	return pg.Annotations(ctx)
}

func floats(t *testing.T, d *raw.DictObj, key string) []float64 {
	t.Helper()
	v, _ := d.Get(key)
	arr, ok := raw.AsArray(v)
	if !ok {
		t.Fatalf("/%s is not an array", key)
	}
	out := make([]float64, 0, arr.Len())
	for _, it := range arr.Items {
		f, _ := raw.AsFloat(it)
		out = append(out, f)
	}
	return out
}

func TestHighlightDictionary(t *testing.T) {
	crop := [4]float64{10, 20, 110, 220}
	data := testpdf.Document(testpdf.Options{}, testpdf.Page{MediaBox: [4]float64{0, 0, 300, 400}, CropBox: &crop})
	d := openDoc(t, data)
	p := openPage(t, d, 1)
	if err := p.AddHighlights(FracRect{X1: 0, Y1: 0, X2: 1, Y2: 1}, FracRect{X1: 0.5, Y1: 0.5, X2: 0.6, Y2: 0.75}); err != nil {
		t.Fatal(err)
	}

	annots := saved(t, d, 1)
	if len(annots) != 1 || annots[0].Subtype() != "Highlight" {
		t.Fatalf("annotations = %+v", annots)
	}
	dict := annots[0].Dict
	approx := cmpopts.EquateApprox(0, 1e-6)
	wantQuads := []float64{
		10, 220, 10, 20, 110, 220, 110, 20,
		60, 170, 60, 120, 70, 170, 70, 120,
	}
	if diff := cmp.Diff(wantQuads, floats(t, dict, "QuadPoints"), approx); diff != "" {
		t.Errorf("QuadPoints (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{10, 20, 110, 220}, floats(t, dict, "Rect"), approx); diff != "" {
		t.Errorf("Rect (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 1, 0}, floats(t, dict, "C")); diff != "" {
		t.Errorf("C (-want +got):\n%s", diff)
	}
	ca, _ := dict.Get("CA")
	if f, _ := raw.AsFloat(ca); f != 0.5 {
		t.Errorf("CA = %v", ca)
	}
	parent, _ := dict.Get("P")
	if _, ok := raw.AsRef(parent); !ok {
		t.Errorf("P = %v", parent)
	}
}

func TestQuadPointsRoundTrip(t *testing.T) {
	d := openDoc(t, testpdf.Document(testpdf.Options{}, testpdf.Page{MediaBox: [4]float64{0, 0, 200, 100}, Rotate: 270}))
	p := openPage(t, d, 1)
	if err := p.AddHighlights(FracRect{X1: 0.25, Y1: 0.5, X2: 0.75, Y2: 1}); err != nil {
		t.Fatal(err)
	}
	q := BuildQuadrilateral(FracRect{X1: 0.25, Y1: 0.5, X2: 0.75, Y2: 1}, 270, 200, 100)
	var want []float64
	for _, pt := range q {
		want = append(want, pt.X, pt.Y)
	}
	got := floats(t, saved(t, d, 1)[0].Dict, "QuadPoints")
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("QuadPoints (-want +got):\n%s", diff)
	}
	if want := (coords.Point{X: 100, Y: 75}); q[0] != want {
		t.Errorf("first corner = %v, want %v", q[0], want)
	}
}

const (
	textAnnot      = "<< /Type /Annot /Subtype /Text /Rect [0 0 10 10] >>"
	highlightAnnot = "<< /Type /Annot /Subtype /Highlight /Rect [0 0 10 10] /QuadPoints [0 10 0 0 10 10 10 0] >>"
)

func subtypes(annots []parser.Annotation) []string {
	out := []string{}
	for _, a := range annots {
		out = append(out, a.Subtype())
	}
	return out
}

func TestDeleteAnnotations(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		added    int
		want     []string
	}{
		{"trailing run", []string{textAnnot, highlightAnnot}, 2, []string{"Text"}},
		{"stops at other kind", []string{highlightAnnot, textAnnot}, 1, []string{"Highlight", "Text"}},
		{"all highlights", []string{highlightAnnot}, 1, []string{}},
		{"nothing to delete", []string{textAnnot}, 0, []string{"Text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := openDoc(t, testpdf.Document(testpdf.Options{}, testpdf.Page{Annots: tt.existing}))
			p := openPage(t, d, 1)
			for i := 0; i < tt.added; i++ {
				if err := p.AddHighlights(FracRect{X2: 0.5, Y2: 0.5}); err != nil {
					t.Fatal(err)
				}
			}
			if n, _ := p.NumAnnotations(); n != len(tt.existing)+tt.added {
				t.Fatalf("NumAnnotations = %d before delete", n)
			}
			for i := 0; i < 2; i++ {
				if err := p.DeleteAnnotations(); err != nil {
					t.Fatal(err)
				}
			}
			if n, _ := p.NumAnnotations(); n != len(tt.want) {
				t.Errorf("NumAnnotations = %d, want %d", n, len(tt.want))
			}
			if diff := cmp.Diff(tt.want, subtypes(saved(t, d, 1))); diff != "" {
				t.Errorf("saved annotations (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnnotationsSharedBetweenHandles(t *testing.T) {
	d := openDoc(t, textPDF())
	a, b := openPage(t, d, 1), openPage(t, d, 1)
	if err := a.AddHighlights(FracRect{X2: 1, Y2: 1}); err != nil {
		t.Fatal(err)
	}
	if n, _ := b.NumAnnotations(); n != 1 {
		t.Errorf("second handle sees %d annotations", n)
	}
	a.Close()
	if err := b.DeleteAnnotations(); err != nil {
		t.Fatal(err)
	}
	if n, _ := openPage(t, d, 1).NumAnnotations(); n != 0 {
		t.Errorf("reopened page has %d annotations", n)
	}
}

func TestSaveUnchanged(t *testing.T) {
	data := textPDF()
	d := openDoc(t, data)
	var buf bytes.Buffer
	if err := d.Save(&buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("unchanged document was rewritten")
	}
	got, err := d.Bytes()
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("Bytes = %d bytes, %v", len(got), err)
	}
}

func TestSaveAppends(t *testing.T) {
	data := textPDF()
	d := openDoc(t, data)
	if err := openPage(t, d, 2).AddHighlights(FracRect{X2: 1, Y2: 1}); err != nil {
		t.Fatal(err)
	}
	got, err := d.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(got, data) || len(got) == len(data) {
		t.Fatal("update does not extend the original file")
	}
	re, err := OpenBytes(got)
	if err != nil {
		t.Fatal(err)
	}
	defer re.Close()
	if n, _ := openPage(t, re, 2).NumAnnotations(); n != 1 {
		t.Errorf("reopened page 2 has %d annotations", n)
	}
	if n, _ := openPage(t, re, 1).NumAnnotations(); n != 0 {
		t.Errorf("reopened page 1 has %d annotations", n)
	}
}
