package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"os/exec"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pagekit/ocr"
)

func requireTesseract(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestRecognize(t *testing.T) {
	requireTesseract(t)

	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString("Hello PDF")

	in, err := ocr.PageInput(1, img, 300)
	if err != nil {
		t.Fatal(err)
	}
	results, err := ocr.RecognizeAll(context.Background(), New("eng"), []ocr.Input{in})
	if err != nil {
		t.Fatalf("RecognizeAll: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	res := results[0]
	got := strings.ToLower(res.PlainText)
	if !strings.Contains(got, "hello") || !strings.Contains(got, "pdf") {
		t.Fatalf("unexpected OCR output: %q", res.PlainText)
	}
	if len(res.Words()) == 0 {
		t.Fatal("no word boxes")
	}
	if res.InputID != "page-1" || res.Language != "eng" {
		t.Errorf("result = %+v", res)
	}
}

func TestCropImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	in, err := ocr.PageInput(1, img, 72)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := crop(in.Image, &ocr.Region{X: 20, Y: 20, Width: 5, Height: 5}); err == nil {
		t.Error("region outside the image accepted")
	}
	out, err := crop(in.Image, nil)
	if err != nil || len(out) != len(in.Image) {
		t.Errorf("nil region changed the image: %v", err)
	}
}

func TestCropRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	img.Set(12, 7, color.Black)
	in, err := ocr.PageInput(1, img, 72)
	if err != nil {
		t.Fatal(err)
	}
	out, err := crop(in.Image, &ocr.Region{X: 10, Y: 5, Width: 100, Height: 10})
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if b := got.Bounds(); b.Dx() != 30 || b.Dy() != 10 {
		t.Fatalf("bounds = %v, want 30x10", b)
	}
	if r, _, _, a := got.At(2, 2).RGBA(); r != 0 || a == 0 {
		t.Errorf("pixel (2,2) = %v, want the black source pixel", got.At(2, 2))
	}
}

func TestRegionOffset(t *testing.T) {
	got := region(image.Rect(1, 2, 11, 7), &ocr.Region{X: 100, Y: 50, Width: 10, Height: 10})
	want := ocr.Region{X: 101, Y: 52, Width: 10, Height: 5}
	if got != want {
		t.Errorf("region = %+v, want %+v", got, want)
	}
	u := union(ocr.Region{}, want)
	if u != want {
		t.Errorf("union with empty = %+v", u)
	}
	u = union(ocr.Region{X: 0, Y: 0, Width: 1, Height: 1}, want)
	if u != (ocr.Region{X: 0, Y: 0, Width: 111, Height: 57}) {
		t.Errorf("union = %+v", u)
	}
}
