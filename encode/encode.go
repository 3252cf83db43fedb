// Package encode writes rendered pages as PNG, JPEG or TIFF.
package encode

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/wudi/pagekit/observability"
)

// Format selects an encoder.
type Format int

const (
	PNG Format = iota
	JPEG
	TIFF
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case JPEG:
		return "jpeg"
	case TIFF:
		return "tiff"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat matches name by prefix, so "png" and "png8" both select PNG.
// Matching is case sensitive.
func ParseFormat(name string) (Format, bool) {
	switch {
	case strings.HasPrefix(name, "png"):
		return PNG, true
	case strings.HasPrefix(name, "jpeg"):
		return JPEG, true
	case strings.HasPrefix(name, "tiff"):
		return TIFF, true
	}
	return 0, false
}

// Code classifies encoder failures. The values follow the status codes of
// the Splash raster library so callers see familiar numbers.
type Code int

const (
	CodeOK        Code = 0
	CodeOpenFile  Code = 5
	CodeBadArg    Code = 9
	CodeZeroImage Code = 254
	CodeGeneric   Code = 255
)

// Error is an encoder failure.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("EncodeError %d", int(e.Code)) }

func (e *Error) Unwrap() error { return e.Err }

// ErrUnsupportedCompression is returned for TIFF compression names that
// are known but cannot be written.
var ErrUnsupportedCompression = errors.New("Unsupported compression method")

// Options parameterizes an encoder.
type Options struct {
	// Quality is the JPEG quality in [0, 100].
	Quality int
	// Progressive requests a progressive JPEG; the file is written as
	// baseline.
	Progressive bool
	// Compression is a libtiff compression name; empty means none.
	Compression string
	Logger      observability.Logger
}

// DefaultOptions returns JPEG quality 100 and uncompressed TIFF.
func DefaultOptions() Options {
	return Options{Quality: 100}
}

// Encoder serializes one image.
type Encoder interface {
	Format() Format
	Encode(w io.Writer, img image.Image) error
}

// New returns the encoder for f. Only TIFF options can fail validation.
func New(f Format, opts Options) (Encoder, error) {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	switch f {
	case PNG:
		return pngEncoder{}, nil
	case JPEG:
		q := min(max(opts.Quality, 0), 100)
		if opts.Progressive {
			opts.Logger.Debug("progressive jpeg written as baseline")
		}
		return jpegEncoder{quality: q}, nil
	case TIFF:
		c, err := TIFFCompression(opts.Compression, opts.Logger)
		if err != nil {
			return nil, err
		}
		return tiffEncoder{compression: c}, nil
	}
	return nil, &Error{Code: CodeBadArg, Err: fmt.Errorf("unknown format %d", int(f))}
}

// tiffNames are the compression names libtiff understands.
var tiffNames = map[string]bool{
	"none": true, "ccittrle": true, "ccittfax3": true, "ccittt4": true,
	"ccittfax4": true, "ccittt6": true, "lzw": true, "ojpeg": true,
	"jpeg": true, "next": true, "packbits": true, "ccittrlew": true,
	"deflate": true, "adeflate": true, "dcs": true, "jbig": true,
	"jp2000": true,
}

// TIFFCompression maps a libtiff compression name to a supported scheme.
// lzw and packbits fall back to deflate.
func TIFFCompression(name string, logger observability.Logger) (tiff.CompressionType, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	switch name {
	case "", "none":
		return tiff.Uncompressed, nil
	case "deflate", "adeflate":
		return tiff.Deflate, nil
	case "lzw", "packbits":
		logger.Warn("tiff compression replaced with deflate", observability.String("compression", name))
		return tiff.Deflate, nil
	}
	if tiffNames[name] {
		return 0, ErrUnsupportedCompression
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
}

type pngEncoder struct{}

func (pngEncoder) Format() Format { return PNG }

func (pngEncoder) Encode(w io.Writer, img image.Image) error {
	if err := check(img); err != nil {
		return err
	}
	return wrap(png.Encode(w, img))
}

type jpegEncoder struct{ quality int }

func (jpegEncoder) Format() Format { return JPEG }

func (e jpegEncoder) Encode(w io.Writer, img image.Image) error {
	if err := check(img); err != nil {
		return err
	}
	return wrap(jpeg.Encode(w, img, &jpeg.Options{Quality: e.quality}))
}

type tiffEncoder struct{ compression tiff.CompressionType }

func (tiffEncoder) Format() Format { return TIFF }

func (e tiffEncoder) Encode(w io.Writer, img image.Image) error {
	if err := check(img); err != nil {
		return err
	}
	return wrap(tiff.Encode(w, img, &tiff.Options{
		Compression: e.compression,
		Predictor:   e.compression == tiff.Deflate,
	}))
}

func check(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return &Error{Code: CodeZeroImage, Err: errors.New("empty image")}
	}
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeGeneric, Err: err}
}
