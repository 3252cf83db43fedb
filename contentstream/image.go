package contentstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"golang.org/x/image/ccitt"
	"golang.org/x/image/draw"

	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/parser"
)

// Image is a decoded image. It covers the unit square of the user space
// in effect when it is painted, with its first row at y = 1.
type Image struct {
	Pix *image.NRGBA
	// Stencil images carry only coverage in the alpha channel and are
	// painted with the fill colour.
	Stencil     bool
	Interpolate bool
}

// ErrUnsupportedImage is returned for JPXDecode and JBIG2Decode images.
var ErrUnsupportedImage = errors.New("unsupported image codec")

type imageParams struct {
	width, height int
	bpc           int
	mask          bool
	cs            ColorSpace
	decode        []float64
}

func (in *Interpreter) imageParams(ctx context.Context, dict *raw.DictObj, res *raw.DictObj) (imageParams, error) {
	var p imageParams
	w, _ := raw.AsInt(in.resolve(ctx, get(dict, "Width")))
	h, _ := raw.AsInt(in.resolve(ctx, get(dict, "Height")))
	p.width, p.height = int(w), int(h)
	if err := in.limits.CheckImage(p.width, p.height); err != nil {
		return p, err
	}
	p.mask, _ = raw.AsBool(in.resolve(ctx, get(dict, "ImageMask")))
	bpc, ok := raw.AsInt(in.resolve(ctx, get(dict, "BitsPerComponent")))
	if !ok || p.mask {
		bpc = 1
		if !p.mask {
			bpc = 8
		}
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
		p.bpc = int(bpc)
	default:
		return p, fmt.Errorf("image BitsPerComponent %d", bpc)
	}
	if !p.mask {
		csObj := get(dict, "ColorSpace")
		if csObj == nil {
			p.cs = DeviceGray
		} else {
			cs, err := in.colorSpace(ctx, csObj, res, 0)
			if err != nil {
				return p, err
			}
			p.cs = cs
		}
	}
	p.decode = floats(in.resolve(ctx, get(dict, "Decode")))
	if n := 2 * p.components(); len(p.decode) != n {
		p.decode = defaultDecode(p.cs, p.bpc)
	}
	return p, nil
}

func (p imageParams) components() int {
	if p.mask || p.cs == nil {
		return 1
	}
	return p.cs.Components()
}

func defaultDecode(cs ColorSpace, bpc int) []float64 {
	switch c := cs.(type) {
	case nil:
		return []float64{0, 1}
	case *indexed:
		return []float64{0, float64(int(1)<<bpc - 1)}
	case lab:
		return []float64{0, 100, c.rng[0], c.rng[1], c.rng[2], c.rng[3]}
	}
	out := make([]float64, 0, 2*cs.Components())
	for i := 0; i < cs.Components(); i++ {
		out = append(out, 0, 1)
	}
	return out
}

// decodeImage turns an image XObject or inline image into pixels.
func (in *Interpreter) decodeImage(ctx context.Context, dict *raw.DictObj, dec parser.Decoded, res *raw.DictObj) (*Image, error) {
	p, err := in.imageParams(ctx, dict, res)
	if err != nil {
		return nil, err
	}
	interp, _ := raw.AsBool(in.resolve(ctx, get(dict, "Interpolate")))
	out := &Image{Stencil: p.mask, Interpolate: interp}

	data := dec.Data
	switch dec.Codec {
	case "":
	case "DCTDecode", "DCT":
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("dct image: %w", err)
		}
		out.Pix = toNRGBA(img, invertedDecode(p.decode))
		return in.applyMasks(ctx, dict, out, res)
	case "CCITTFaxDecode", "CCF":
		if data, err = decodeCCITT(data, dec.CodecParams, p); err != nil {
			return nil, err
		}
		p.bpc = 1
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, dec.Codec)
	}

	var colorKey []float64
	if arr, ok := in.resolve(ctx, get(dict, "Mask")).(*raw.ArrayObj); ok && !p.mask {
		colorKey = floats(arr)
	}
	out.Pix = samplesToNRGBA(data, p, colorKey)
	return in.applyMasks(ctx, dict, out, res)
}

func invertedDecode(d []float64) bool { return len(d) >= 2 && d[0] > d[1] }

func toNRGBA(img image.Image, invert bool) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	if invert {
		for i := 0; i < len(out.Pix); i += 4 {
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = 255-out.Pix[i], 255-out.Pix[i+1], 255-out.Pix[i+2]
		}
	}
	return out
}

func decodeCCITT(data []byte, params *raw.DictObj, p imageParams) ([]byte, error) {
	k := intParam(params, "K", 0)
	cols := intParam(params, "Columns", 1728)
	rows := intParam(params, "Rows", p.height)
	if rows <= 0 {
		rows = p.height
	}
	align, _ := raw.AsBool(get(params, "EncodedByteAlign"))
	black1, _ := raw.AsBool(get(params, "BlackIs1"))
	sub := ccitt.Group3
	if k < 0 {
		sub = ccitt.Group4
	}
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sub, cols, rows, &ccitt.Options{Align: align, Invert: black1})
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("ccitt image: %w", err)
	}
	return out, nil
}

func intParam(d *raw.DictObj, key string, def int) int {
	if v, ok := raw.AsInt(get(d, key)); ok {
		return int(v)
	}
	return def
}

// samples reads packed big endian samples of bpc bits with rows padded
// to a byte boundary.
type samples struct {
	data   []byte
	bpc    int
	stride int
}

func (s samples) at(row, i int) int {
	bit := row*s.stride*8 + i*s.bpc
	switch s.bpc {
	case 8:
		if bit/8 < len(s.data) {
			return int(s.data[bit/8])
		}
	case 16:
		if bit/8+1 < len(s.data) {
			return int(s.data[bit/8])<<8 | int(s.data[bit/8+1])
		}
	default:
		if bit/8 < len(s.data) {
			shift := 8 - s.bpc - bit%8
			return int(s.data[bit/8]>>uint(shift)) & (1<<s.bpc - 1)
		}
	}
	return 0
}

func samplesToNRGBA(data []byte, p imageParams, colorKey []float64) *image.NRGBA {
	n := p.components()
	s := samples{data: data, bpc: p.bpc, stride: (p.width*n*p.bpc + 7) / 8}
	out := image.NewNRGBA(image.Rect(0, 0, p.width, p.height))
	maxv := float64(int(1)<<p.bpc - 1)
	comps := make([]float64, n)
	raws := make([]int, n)
	cache := make(map[[4]int]color.NRGBA)
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			for c := 0; c < n; c++ {
				raws[c] = s.at(y, x*n+c)
			}
			o := out.PixOffset(x, y)
			if p.mask {
				v := float64(raws[0])/maxv*(p.decode[1]-p.decode[0]) + p.decode[0]
				if v < 0.5 {
					out.Pix[o+3] = 255
				}
				continue
			}
			var key [4]int
			cacheable := n <= 4
			if cacheable {
				copy(key[:], raws)
				if col, ok := cache[key]; ok {
					out.SetNRGBA(x, y, col)
					continue
				}
			}
			for c := range comps {
				comps[c] = p.decode[2*c] + float64(raws[c])*(p.decode[2*c+1]-p.decode[2*c])/maxv
			}
			rgb := RGBA(p.cs, comps)
			col := color.NRGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 255}
			if colorKey != nil && keyed(raws, colorKey) {
				col.A = 0
			}
			if cacheable && len(cache) < 1<<16 {
				cache[key] = col
			}
			out.SetNRGBA(x, y, col)
		}
	}
	return out
}

func keyed(raws []int, ranges []float64) bool {
	if len(ranges) < 2*len(raws) {
		return false
	}
	for i, v := range raws {
		if float64(v) < ranges[2*i] || float64(v) > ranges[2*i+1] {
			return false
		}
	}
	return true
}

// applyMasks folds /SMask or an explicit /Mask stencil into the alpha
// channel.
func (in *Interpreter) applyMasks(ctx context.Context, dict *raw.DictObj, img *Image, res *raw.DictObj) (*Image, error) {
	if img.Stencil {
		return img, nil
	}
	var alpha *image.NRGBA
	var soft bool
	if st, ok := in.resolve(ctx, get(dict, "SMask")).(*raw.StreamObj); ok {
		m, err := in.decodeMask(ctx, st, res, true)
		if err != nil {
			return img, nil
		}
		alpha, soft = m, true
	} else if st, ok := in.resolve(ctx, get(dict, "Mask")).(*raw.StreamObj); ok {
		m, err := in.decodeMask(ctx, st, res, false)
		if err != nil {
			return img, nil
		}
		alpha = m
	}
	if alpha == nil {
		return img, nil
	}
	w, h := img.Pix.Bounds().Dx(), img.Pix.Bounds().Dy()
	mw, mh := alpha.Bounds().Dx(), alpha.Bounds().Dy()
	for y := 0; y < h; y++ {
		my := y * mh / h
		for x := 0; x < w; x++ {
			mo := alpha.PixOffset(x*mw/w, my)
			a := alpha.Pix[mo+3]
			if soft {
				a = alpha.Pix[mo]
			}
			o := img.Pix.PixOffset(x, y)
			img.Pix.Pix[o+3] = uint8(uint16(img.Pix.Pix[o+3]) * uint16(a) / 255)
		}
	}
	return img, nil
}

// decodeMask decodes a soft mask (luminosity in the red channel) or a
// stencil mask (coverage in alpha).
func (in *Interpreter) decodeMask(ctx context.Context, st *raw.StreamObj, res *raw.DictObj, soft bool) (*image.NRGBA, error) {
	dict := st.Dict.Clone()
	dict.Delete("SMask")
	dict.Delete("Mask")
	if soft {
		dict.Set("ColorSpace", raw.NameLiteral("DeviceGray"))
		dict.Delete("ImageMask")
	} else {
		dict.Set("ImageMask", raw.Bool(true))
	}
	dec, err := in.src.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	img, err := in.decodeImage(ctx, dict, dec, res)
	if err != nil {
		return nil, err
	}
	return img.Pix, nil
}
