package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPageInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	region := Region{X: 0, Y: 0, Width: 1, Height: 1}
	meta := map[string]string{"psm": "6"}

	in, err := PageInput(2, img, 150,
		WithLanguages("eng", "spa"),
		WithRegion(region),
		WithDPI(300),
		WithMetadata(meta),
	)
	if err != nil {
		t.Fatalf("PageInput: %v", err)
	}
	if in.Format != ImageFormatPNG || in.Page != 2 || in.ID != "page-2" || in.DPI != 300 {
		t.Fatalf("input = %+v", in)
	}
	decoded, err := png.Decode(bytes.NewReader(in.Image))
	if err != nil || decoded.Bounds().Dx() != 3 {
		t.Fatalf("image does not decode: %v", err)
	}
	if diff := cmp.Diff([]string{"eng", "spa"}, in.Languages); diff != "" {
		t.Errorf("languages (-want +got):\n%s", diff)
	}
	if in.Region == nil || *in.Region != region {
		t.Errorf("region = %#v", in.Region)
	}
	meta["psm"] = "7"
	if in.Metadata["psm"] != "6" {
		t.Errorf("metadata was not copied: %+v", in.Metadata)
	}
}

func TestInputOptions(t *testing.T) {
	in := Input{Region: &Region{X: 1, Y: 1, Width: 2, Height: 2}}
	WithRegion(Region{})(&in)
	if in.Region != nil {
		t.Errorf("empty region kept: %#v", in.Region)
	}
	WithTesseractPSM(6)(&in)
	WithTesseractWhitelist("ABC")(&in)
	want := map[string]string{"tessedit_pageseg_mode": "6", "tessedit_char_whitelist": "ABC"}
	if diff := cmp.Diff(want, in.Metadata); diff != "" {
		t.Errorf("metadata (-want +got):\n%s", diff)
	}
}

type fakeEngine struct {
	calls int
	fail  bool
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, in Input) (Result, error) {
	f.calls++
	if f.fail {
		return Result{}, errors.New("no")
	}
	return Result{InputID: in.ID, Blocks: []TextBlock{{Lines: []TextLine{
		{Words: []TextWord{{Text: "a"}, {Text: "b"}}},
		{Words: []TextWord{{Text: "c"}}},
	}}}}, nil
}

func TestRecognizeAll(t *testing.T) {
	e := &fakeEngine{}
	res, err := RecognizeAll(context.Background(), e, []Input{{ID: "x"}, {ID: "y"}})
	if err != nil {
		t.Fatal(err)
	}
	if e.calls != 2 || res[1].InputID != "y" {
		t.Fatalf("calls = %d, results = %+v", e.calls, res)
	}
	var texts []string
	for _, w := range res[0].Words() {
		texts = append(texts, w.Text)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, texts); diff != "" {
		t.Errorf("words (-want +got):\n%s", diff)
	}
	if _, err := RecognizeAll(context.Background(), &fakeEngine{fail: true}, []Input{{ID: "x"}}); err == nil {
		t.Error("engine failure swallowed")
	}
}
