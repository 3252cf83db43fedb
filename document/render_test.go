package document

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/tiff"

	"github.com/wudi/pagekit/args"
	"github.com/wudi/pagekit/internal/testpdf"
	"github.com/wudi/pagekit/workerpool"
)

func blankPDF() []byte {
	return testpdf.Document(testpdf.Options{}, testpdf.Page{MediaBox: [4]float64{0, 0, 100, 200}})
}

func decode(t *testing.T, format string, data []byte) image.Image {
	t.Helper()
	var (
		img image.Image
		err error
	)
	switch format {
	case "png":
		img, err = png.Decode(bytes.NewReader(data))
	case "jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "tiff":
		img, err = tiff.Decode(bytes.NewReader(data))
	}
	if err != nil {
		t.Fatalf("decode %s: %v", format, err)
	}
	return img
}

func TestRenderToBuffer(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	quality := 50
	tests := []struct {
		name   string
		format string
		opts   *RenderOptions
		size   image.Point
	}{
		{"png", "png", nil, image.Pt(100, 200)},
		{"png suffix", "png8", nil, image.Pt(100, 200)},
		{"jpeg", "jpeg", &RenderOptions{Quality: &quality, Progressive: true}, image.Pt(100, 200)},
		{"tiff", "tiff", nil, image.Pt(100, 200)},
		{"tiff deflate", "tiff", &RenderOptions{Compression: "deflate"}, image.Pt(100, 200)},
		{"slice", "png", &RenderOptions{Slice: &Slice{X: 0, Y: 0.5, W: 0.5, H: 0.5}}, image.Pt(50, 100)},
		{"slice clamped", "png", &RenderOptions{Slice: &Slice{X: 0.5, Y: 0.5, W: 1, H: 1}}, image.Pt(50, 100)},
	}
	d := openDoc(t, blankPDF())
	p := openPage(t, d, 1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.RenderToBuffer(tt.format, 72, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if res.Type != ResultBuffer || res.Format != tt.format || res.Path != "" {
				t.Fatalf("result = %+v", res)
			}
			img := decode(t, decoderOf(tt.format), res.Data)
			if got := img.Bounds().Size(); got != tt.size {
				t.Errorf("size = %v, want %v", got, tt.size)
			}
		})
	}
	left, err := os.ReadDir(os.TempDir())
	if err != nil || len(left) != 0 {
		t.Errorf("temporary files left behind: %v %v", left, err)
	}
}

func decoderOf(method string) string {
	for _, f := range []string{"png", "jpeg", "tiff"} {
		if strings.HasPrefix(method, f) {
			return f
		}
	}
	return method
}

func TestRenderToFile(t *testing.T) {
	d := openDoc(t, blankPDF())
	p := openPage(t, d, 1)
	path := filepath.Join(t.TempDir(), "out.jpg")
	res, err := p.RenderToFile(path, "jpeg", 36, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&Result{Type: ResultFile, Path: path}, res); diff != "" {
		t.Fatalf("result (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := decode(t, "jpeg", data).Bounds().Size(); got != image.Pt(50, 100) {
		t.Errorf("size = %v", got)
	}
}

func TestRenderHighlight(t *testing.T) {
	d := openDoc(t, blankPDF())
	p := openPage(t, d, 1)
	if err := p.AddHighlights(FracRect{X1: 0.5, X2: 1, Y2: 1}); err != nil {
		t.Fatal(err)
	}
	res, err := p.RenderToBuffer("png", 72, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := decode(t, "png", res.Data)
	if got := color.RGBAModel.Convert(img.At(75, 100)); got != (color.RGBA{128, 255, 128, 255}) {
		t.Errorf("highlighted pixel = %v", got)
	}
	if got := color.RGBAModel.Convert(img.At(25, 100)); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("plain pixel = %v", got)
	}
}

func TestRenderValidation(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.png")
	opts := func(m map[string]any) args.Value { return args.MustFrom(m) }
	slice := func(x, y, w, h any) args.Value {
		return args.MustFrom(map[string]any{"slice": map[string]any{"x": x, "y": y, "w": w, "h": h}})
	}
	file := func(method string, o args.Value) RenderArgs {
		return RenderArgs{ToFile: true, Path: args.String(out), Method: args.String(method), PPI: args.Number(72), Options: o}
	}
	buffer := func(method string, o args.Value) RenderArgs {
		return RenderArgs{Method: args.String(method), PPI: args.Number(72), Options: o}
	}

	tests := []struct {
		name string
		in   RenderArgs
		want string
	}{
		{"path type", RenderArgs{ToFile: true, Path: args.Number(1), Method: args.String("png"), PPI: args.Number(72)}, "'path' must be an instance of string"},
		{"path empty", RenderArgs{ToFile: true, Path: args.String(""), Method: args.String("png"), PPI: args.Number(72)}, "'path' can't be empty"},
		{"method type", RenderArgs{Method: args.Number(1), PPI: args.Number(72)}, "'method' must be an instance of String"},
		{"method empty", buffer("", args.Undefined()), "'method' must be an instance of String"},
		{"method unknown", buffer("gif", args.Undefined()), "Unsupported compression method"},
		{"method case", buffer("PNG", args.Undefined()), "Unsupported compression method"},
		{"ppi type", RenderArgs{Method: args.String("png"), PPI: args.String("72")}, "'PPI' must be an instance of number"},
		{"ppi zero", RenderArgs{Method: args.String("png"), PPI: args.Number(0)}, "'PPI' value must be greater then 0"},
		{"ppi negative", RenderArgs{Method: args.String("png"), PPI: args.Number(-1)}, "'PPI' value must be greater then 0"},
		{"unwritable", RenderArgs{ToFile: true, Path: args.String(filepath.Join(dir, "missing", "out.png")), Method: args.String("png"), PPI: args.Number(72)}, "Could not open output stream"},
		{"options type", file("png", args.String("x")), "'options' must be an instance of Object"},
		{"compression type", file("tiff", opts(map[string]any{"compression": 1})), "'compression' option must be an instance of string"},
		{"compression empty", file("tiff", opts(map[string]any{"compression": ""})), "'compression' option value could not be an empty string"},
		{"compression unknown", buffer("tiff", opts(map[string]any{"compression": "bogus"})), "Unsupported compression method"},
		{"quality fraction", file("jpeg", opts(map[string]any{"quality": 50.5})), "'quality' option value must be 0 - 100 interval integer"},
		{"quality negative", file("jpeg", opts(map[string]any{"quality": -1})), "'quality' option value must be 0 - 100 interval integer"},
		{"quality range", file("jpeg", opts(map[string]any{"quality": 101})), "'quality' not in 0 - 100 interval"},
		{"progressive type", file("jpeg", opts(map[string]any{"progressive": "yes"})), "'progressive' option value must be a boolean value"},
		{"slice type", file("png", opts(map[string]any{"slice": "all"})), "'slice' option value must be an instance of Object"},
		{"slice missing", file("png", opts(map[string]any{"slice": map[string]any{"x": 0, "y": 0, "w": 1}})), "Slice must be an object: {x: Number, y: Number, w: Number, h: Number}"},
		{"slice value type", file("png", slice(0, 0, "1", 1)), "Slice must be an object: {x: Number, y: Number, w: Number, h: Number}"},
		{"slice range", file("png", slice(0, 1.5, 1, 1)), "Slice values must be 0 - 1 interval numbers"},
		{"slice negative", buffer("png", slice(-0.1, 0, 1, 1)), "Slice values must be 0 - 1 interval numbers"},
		{"too big", RenderArgs{ToFile: true, Path: args.String(out), Method: args.String("png"), PPI: args.Number(72 * 100)}, "Result image is too big"},
		{"huge ppi", RenderArgs{Method: args.String("png"), PPI: args.Number(1e20)}, "Result image is too big"},
		{"huge ppi file", RenderArgs{ToFile: true, Path: args.String(out), Method: args.String("tiff"), PPI: args.Number(1e300)}, "Result image is too big"},
		{"infinite ppi", RenderArgs{Method: args.String("jpeg"), PPI: args.Number(math.Inf(1))}, "Result image is too big"},
		{"nan ppi", RenderArgs{Method: args.String("png"), PPI: args.Number(math.NaN())}, "'PPI' value must be greater then 0"},
		{"huge ppi thin slice", RenderArgs{Method: args.String("png"), PPI: args.Number(1e20), Options: slice(0, 0, 1e-30, 1e-30)}, "Result image is too big"},
		{"first failure wins", file("jpeg", opts(map[string]any{"quality": 101, "slice": "x"})), "'quality' not in 0 - 100 interval"},
	}
	d := openDoc(t, blankPDF())
	p := openPage(t, d, 1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Render(tt.in)
			if err == nil || err.Error() != tt.want {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
			if res != nil {
				t.Errorf("failed render returned %+v", res)
			}
			if !errors.Is(err, ErrInvalidArgument) && !errors.Is(err, ErrRender) {
				t.Errorf("error %T is neither an argument nor a render error", err)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("output file left behind: %v", err)
				os.Remove(out)
			}
			if left, _ := os.ReadDir(tmp); len(left) != 0 {
				t.Errorf("temporary files left behind: %v", left)
			}
		})
	}
}

func TestRenderSliceClampIdempotent(t *testing.T) {
	data := testpdf.Document(testpdf.Options{}, testpdf.Page{
		MediaBox: [4]float64{0, 0, 100, 200},
		Content:  "1 0 0 rg 60 0 30 200 re f 0 0 1 rg 80 50 20 20 re f\n",
	})
	d := openDoc(t, data)
	p := openPage(t, d, 1)

	clamped := ClampSlice(Slice{X: 0.6, Y: 0, W: 0.6, H: 1})
	if math.Abs(clamped.W-0.4) > 1e-12 || clamped.H != 1 {
		t.Fatalf("clamped slice = %+v", clamped)
	}

	first, err := p.RenderToBuffer("png", 72, &RenderOptions{Slice: &Slice{X: 0.6, Y: 0, W: 0.6, H: 1}})
	if err != nil {
		t.Fatal(err)
	}
	again, err := p.RenderToBuffer("png", 72, &RenderOptions{Slice: &Slice{X: 0.6, Y: 0, W: 0.4, H: 1}})
	if err != nil {
		t.Fatal(err)
	}
	img := decode(t, "png", first.Data)
	if got := img.Bounds().Size(); got != image.Pt(40, 200) {
		t.Fatalf("size = %v, want 40x200", got)
	}
	if got := color.RGBAModel.Convert(img.At(15, 100)); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("pixel inside the red band = %v", got)
	}
	if got := color.RGBAModel.Convert(img.At(35, 100)); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("pixel right of the red band = %v", got)
	}
	if !bytes.Equal(first.Data, again.Data) {
		t.Error("clamped and resubmitted slices render differently")
	}
}

func TestRenderIgnoresForeignOptions(t *testing.T) {
	d := openDoc(t, blankPDF())
	p := openPage(t, d, 1)
	o := args.MustFrom(map[string]any{"quality": "high", "compression": 3, "extra": true})
	res, err := p.Render(RenderArgs{Method: args.String("png"), PPI: args.Number(18), Options: o})
	if err != nil {
		t.Fatal(err)
	}
	decode(t, "png", res.Data)
}

func TestRenderEmptySlice(t *testing.T) {
	d := openDoc(t, blankPDF())
	p := openPage(t, d, 1)
	path := filepath.Join(t.TempDir(), "empty.png")
	_, err := p.RenderToFile(path, "png", 72, &RenderOptions{Slice: &Slice{X: 0.5, Y: 0.5, W: 0, H: 0.5}})
	if !errors.Is(err, ErrRender) || err.Error() != "EncodeError 254" {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("failed render left %s: %v", path, err)
	}
}

func TestRenderAsync(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Workers: 2})
	defer pool.Close()
	d := openDoc(t, blankPDF(), WithPool(pool))
	p := openPage(t, d, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	futures := []*workerpool.Future[*Result]{
		p.RenderToBufferAsync(ctx, "png", 36, nil),
		p.RenderToBufferAsync(ctx, "tiff", 36, nil),
		p.RenderToFileAsync(ctx, filepath.Join(t.TempDir(), "a.png"), "png", 36, nil),
	}
	for i, f := range futures {
		res, err := f.Wait(ctx)
		if err != nil {
			t.Fatalf("future %d: %v", i, err)
		}
		if res.Type == ResultBuffer {
			decode(t, map[int]string{0: "png", 1: "tiff"}[i], res.Data)
		} else if _, err := os.Stat(res.Path); err != nil {
			t.Errorf("future %d: %v", i, err)
		}
	}

	f := p.RenderToBufferAsync(ctx, "gif", 36, nil)
	_, err, ok := f.Result()
	if !ok || err == nil || err.Error() != "Unsupported compression method" {
		t.Errorf("validation failure not settled: %v %v", ok, err)
	}

	done := make(chan error, 1)
	p.RenderToBufferAsync(ctx, "png", 0, nil).Then(workerpool.Inline, func(_ *Result, err error) { done <- err })
	if err := <-done; err == nil || err.Error() != "'PPI' value must be greater then 0" {
		t.Errorf("callback error = %v", err)
	}
}

func TestRenderAsyncClosedPool(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Workers: 1})
	pool.Close()
	d := openDoc(t, blankPDF(), WithPool(pool))
	p := openPage(t, d, 1)
	path := filepath.Join(t.TempDir(), "never.png")
	_, err := p.RenderToFileAsync(context.Background(), path, "png", 36, nil).Wait(context.Background())
	if !errors.Is(err, workerpool.ErrClosed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("unsubmitted job left %s", path)
	}
}

func TestRenderAfterClose(t *testing.T) {
	d := openDoc(t, blankPDF())
	p := openPage(t, d, 1)
	d.Close()
	if _, err := p.RenderToFile(filepath.Join(t.TempDir(), "x.png"), "png", 72, nil); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("err = %v", err)
	}
}
