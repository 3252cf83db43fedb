package encode

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/wudi/pagekit/observability"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"png", PNG, true},
		{"png8", PNG, true},
		{"jpeg", JPEG, true},
		{"jpegx", JPEG, true},
		{"tiff", TIFF, true},
		{"jpg", 0, false},
		{"PNG", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseFormat(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func sample() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if x < 4 {
				c = color.RGBA{255, 0, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		opts   Options
		decode func(*bytes.Reader) (image.Image, error)
		exact  bool
	}{
		{"png", PNG, DefaultOptions(), func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) }, true},
		{"jpeg", JPEG, Options{Quality: 90, Progressive: true}, func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) }, false},
		{"tiff", TIFF, DefaultOptions(), func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) }, true},
		{"tiff deflate", TIFF, Options{Compression: "adeflate"}, func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) }, true},
		{"tiff lzw", TIFF, Options{Compression: "lzw"}, func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := New(tt.format, tt.opts)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if enc.Format() != tt.format {
				t.Fatalf("Format() = %v", enc.Format())
			}
			var buf bytes.Buffer
			if err := enc.Encode(&buf, sample()); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			img, err := tt.decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
				t.Fatalf("bounds = %v", b)
			}
			r, g, _, _ := img.At(1, 1).RGBA()
			if tt.exact && (r>>8 != 255 || g>>8 != 0) {
				t.Errorf("pixel = %d,%d", r>>8, g>>8)
			}
			if !tt.exact && (r>>8 < 200 || g>>8 > 60) {
				t.Errorf("pixel = %d,%d, want reddish", r>>8, g>>8)
			}
		})
	}
}

func TestTIFFCompression(t *testing.T) {
	tests := []struct {
		name    string
		want    tiff.CompressionType
		wantErr bool
	}{
		{"", tiff.Uncompressed, false},
		{"none", tiff.Uncompressed, false},
		{"deflate", tiff.Deflate, false},
		{"packbits", tiff.Deflate, false},
		{"ccittfax4", 0, true},
		{"jpeg", 0, true},
		{"zstd", 0, true},
	}
	for _, tt := range tests {
		got, err := TIFFCompression(tt.name, nil)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedCompression) {
				t.Errorf("%q: err = %v", tt.name, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q = %v, %v", tt.name, got, err)
		}
	}
}

func TestEncodeEmptyImage(t *testing.T) {
	enc, err := New(PNG, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	err = enc.Encode(&bytes.Buffer{}, image.NewRGBA(image.Rectangle{}))
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeZeroImage {
		t.Fatalf("err = %v", err)
	}
	if e.Error() != "EncodeError 254" {
		t.Errorf("message = %q", e.Error())
	}
}

func TestFallbacksAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if _, err := New(JPEG, Options{Quality: 80, Progressive: true, Logger: logger}); err != nil {
		t.Fatal(err)
	}
	if _, err := New(TIFF, Options{Compression: "packbits", Logger: logger}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"level=DEBUG msg=\"progressive jpeg written as baseline\"",
		"level=WARN msg=\"tiff compression replaced with deflate\" compression=packbits",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if _, err := New(JPEG, Options{Quality: 80, Logger: logger}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("baseline request logged %q", buf.String())
	}
}
