package contentstream

import (
	"context"
	"fmt"
	"image/color"
	"math"

	"github.com/wudi/pagekit/cmm"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/observability"
)

// ColorSpace converts colour components to sRGB.
type ColorSpace interface {
	Name() string
	Components() int
	RGB(v []float64) (r, g, b float64)
	// Initial is the colour selected by CS/cs.
	Initial() []float64
}

// Device colour spaces.
var (
	DeviceGray ColorSpace = deviceGray{}
	DeviceRGB  ColorSpace = deviceRGB{}
	DeviceCMYK ColorSpace = deviceCMYK{}
)

type deviceGray struct{}

func (deviceGray) Name() string       { return "DeviceGray" }
func (deviceGray) Components() int    { return 1 }
func (deviceGray) Initial() []float64 { return []float64{0} }
func (deviceGray) RGB(v []float64) (float64, float64, float64) {
	g := at(v, 0)
	return g, g, g
}

type deviceRGB struct{}

func (deviceRGB) Name() string       { return "DeviceRGB" }
func (deviceRGB) Components() int    { return 3 }
func (deviceRGB) Initial() []float64 { return []float64{0, 0, 0} }
func (deviceRGB) RGB(v []float64) (float64, float64, float64) {
	return at(v, 0), at(v, 1), at(v, 2)
}

type deviceCMYK struct{}

func (deviceCMYK) Name() string       { return "DeviceCMYK" }
func (deviceCMYK) Components() int    { return 4 }
func (deviceCMYK) Initial() []float64 { return []float64{0, 0, 0, 1} }
func (deviceCMYK) RGB(v []float64) (float64, float64, float64) {
	k := at(v, 3)
	return (1 - at(v, 0)) * (1 - k), (1 - at(v, 1)) * (1 - k), (1 - at(v, 2)) * (1 - k)
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return clip(v[i], 0, 1)
	}
	return 0
}

// RGBA converts v to an opaque colour.
func RGBA(cs ColorSpace, v []float64) color.RGBA {
	r, g, b := cs.RGB(v)
	return color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 255}
}

func to8(x float64) uint8 { return uint8(math.Round(clip(x, 0, 1) * 255)) }

type iccBased struct {
	n    int
	conv cmm.Converter
	alt  ColorSpace
}

func (c *iccBased) Name() string    { return "ICCBased" }
func (c *iccBased) Components() int { return c.n }
func (c *iccBased) Initial() []float64 {
	return make([]float64, c.n)
}
func (c *iccBased) RGB(v []float64) (float64, float64, float64) {
	if c.conv != nil {
		in := make([]float64, c.n)
		for i := range in {
			in[i] = at(v, i)
		}
		return c.conv(in)
	}
	return c.alt.RGB(v)
}

type calGray struct {
	white [3]float64
	gamma float64
}

func (calGray) Name() string       { return "CalGray" }
func (calGray) Components() int    { return 1 }
func (calGray) Initial() []float64 { return []float64{0} }
func (c calGray) RGB(v []float64) (float64, float64, float64) {
	return cmm.CalGray(at(v, 0), c.white, c.gamma)
}

type calRGB struct{ cmm.CalRGB }

func (calRGB) Name() string       { return "CalRGB" }
func (calRGB) Components() int    { return 3 }
func (calRGB) Initial() []float64 { return []float64{0, 0, 0} }
func (c calRGB) RGB(v []float64) (float64, float64, float64) {
	return c.Convert([]float64{at(v, 0), at(v, 1), at(v, 2)})
}

type lab struct {
	white [3]float64
	rng   [4]float64
}

func (lab) Name() string         { return "Lab" }
func (lab) Components() int      { return 3 }
func (c lab) Initial() []float64 { return []float64{0, clip(0, c.rng[0], c.rng[1]), clip(0, c.rng[2], c.rng[3])} }
func (c lab) RGB(v []float64) (float64, float64, float64) {
	l := 0.0
	if len(v) > 0 {
		l = clip(v[0], 0, 100)
	}
	a, b := 0.0, 0.0
	if len(v) > 2 {
		a, b = clip(v[1], c.rng[0], c.rng[1]), clip(v[2], c.rng[2], c.rng[3])
	}
	return cmm.XYZToSRGB(cmm.LabToXYZ([]float64{l, a, b}, c.white), c.white)
}

type indexed struct {
	base   ColorSpace
	hival  int
	lookup []byte
}

func (c *indexed) Name() string       { return "Indexed" }
func (c *indexed) Components() int    { return 1 }
func (c *indexed) Initial() []float64 { return []float64{0} }
func (c *indexed) RGB(v []float64) (float64, float64, float64) {
	i := 0
	if len(v) > 0 {
		i = int(clip(math.Round(v[0]), 0, float64(c.hival)))
	}
	n := c.base.Components()
	comps := make([]float64, n)
	for k := range comps {
		if j := i*n + k; j < len(c.lookup) {
			comps[k] = float64(c.lookup[j]) / 255
		}
	}
	if l, ok := c.base.(lab); ok {
		comps[0] *= 100
		comps[1] = l.rng[0] + comps[1]*(l.rng[1]-l.rng[0])
		comps[2] = l.rng[2] + comps[2]*(l.rng[3]-l.rng[2])
	}
	return c.base.RGB(comps)
}

// separation covers Separation and DeviceN spaces through their tint
// transform.
type separation struct {
	name string
	n    int
	alt  ColorSpace
	tint Function
	none bool
}

func (c *separation) Name() string    { return c.name }
func (c *separation) Components() int { return c.n }
func (c *separation) Initial() []float64 {
	v := make([]float64, c.n)
	for i := range v {
		v[i] = 1
	}
	return v
}
func (c *separation) RGB(v []float64) (float64, float64, float64) {
	in := make([]float64, c.n)
	for i := range in {
		in[i] = at(v, i)
	}
	if c.tint == nil || c.alt == nil {
		var sum float64
		for _, t := range in {
			sum += t
		}
		g := 1 - sum/float64(max(c.n, 1))
		return g, g, g
	}
	return c.alt.RGB(c.tint.Eval(in))
}

// pattern is the Pattern space. Pattern fills are not painted; an
// uncoloured pattern keeps its underlying space for the tint.
type pattern struct{ under ColorSpace }

func (pattern) Name() string { return "Pattern" }
func (c pattern) Components() int {
	if c.under != nil {
		return c.under.Components()
	}
	return 0
}
func (pattern) Initial() []float64 { return nil }
func (c pattern) RGB(v []float64) (float64, float64, float64) {
	if c.under != nil {
		return c.under.RGB(v)
	}
	return 0.5, 0.5, 0.5
}

// colorSpace resolves a colour space operand or image /ColorSpace entry.
func (in *Interpreter) colorSpace(ctx context.Context, obj raw.Object, res *raw.DictObj, depth int) (ColorSpace, error) {
	if depth > 8 {
		return nil, fmt.Errorf("colour space nesting too deep")
	}
	if ref, ok := obj.(raw.RefObj); ok {
		if cs, ok := in.spaces[ref.R]; ok {
			return cs, nil
		}
		cs, err := in.colorSpace(ctx, in.resolve(ctx, obj), res, depth+1)
		if err == nil {
			in.spaces[ref.R] = cs
		}
		return cs, err
	}
	switch t := obj.(type) {
	case raw.NameObj:
		switch t.Val {
		case "DeviceGray", "G", "CalGray":
			return DeviceGray, nil
		case "DeviceRGB", "RGB", "CalRGB":
			return DeviceRGB, nil
		case "DeviceCMYK", "CMYK":
			return DeviceCMYK, nil
		case "Pattern":
			return pattern{}, nil
		}
		named, ok := in.resource(ctx, res, "ColorSpace", t.Val)
		if !ok {
			return nil, fmt.Errorf("colour space %s not found", t.Val)
		}
		return in.colorSpace(ctx, named, res, depth+1)
	case *raw.ArrayObj:
		return in.colorSpaceArray(ctx, t, res, depth)
	}
	return nil, fmt.Errorf("colour space %T", obj)
}

func (in *Interpreter) colorSpaceArray(ctx context.Context, arr *raw.ArrayObj, res *raw.DictObj, depth int) (ColorSpace, error) {
	if len(arr.Items) == 0 {
		return nil, fmt.Errorf("empty colour space array")
	}
	family, _ := raw.AsName(in.resolve(ctx, arr.Items[0]))
	arg := func(i int) raw.Object {
		if i < len(arr.Items) {
			return in.resolve(ctx, arr.Items[i])
		}
		return nil
	}
	switch family {
	case "DeviceGray", "G", "DeviceRGB", "RGB", "DeviceCMYK", "CMYK":
		return in.colorSpace(ctx, raw.NameLiteral(family), res, depth+1)
	case "CalGray", "CalRGB", "Lab":
		d, _ := arg(1).(*raw.DictObj)
		white := cmm.D50
		if wp := floats(in.resolve(ctx, get(d, "WhitePoint"))); len(wp) == 3 {
			copy(white[:], wp)
		}
		switch family {
		case "CalGray":
			g, ok := raw.AsFloat(get(d, "Gamma"))
			if !ok {
				g = 1
			}
			return calGray{white: white, gamma: g}, nil
		case "CalRGB":
			return calRGB{cmm.NewCalRGB(white, floats(in.resolve(ctx, get(d, "Gamma"))), floats(in.resolve(ctx, get(d, "Matrix"))))}, nil
		}
		c := lab{white: white, rng: [4]float64{-100, 100, -100, 100}}
		if r := floats(in.resolve(ctx, get(d, "Range"))); len(r) == 4 {
			copy(c.rng[:], r)
		}
		return c, nil
	case "ICCBased":
		st, ok := arg(1).(*raw.StreamObj)
		if !ok {
			return nil, fmt.Errorf("ICCBased without profile stream")
		}
		n64, _ := raw.AsInt(get(st.Dict, "N"))
		c := &iccBased{n: int(n64)}
		if alt, ok := st.Dict.Get("Alternate"); ok {
			if cs, err := in.colorSpace(ctx, in.resolve(ctx, alt), res, depth+1); err == nil && cs.Components() == c.n {
				c.alt = cs
			}
		}
		if dec, err := in.src.DecodeStream(ctx, st); err == nil {
			if prof, err := cmm.Parse(dec.Data); err == nil && (c.n == 0 || prof.Components() == c.n) {
				c.n = prof.Components()
				if conv, err := prof.Converter(); err == nil {
					c.conv = conv
				} else {
					in.logger.Debug("icc profile not convertible, using alternate", observability.Error("error", err))
				}
			}
		}
		if c.alt == nil {
			switch c.n {
			case 1:
				c.alt = DeviceGray
			case 4:
				c.alt = DeviceCMYK
			default:
				c.n, c.alt = 3, DeviceRGB
			}
		}
		return c, nil
	case "Indexed", "I":
		base, err := in.colorSpace(ctx, arg(1), res, depth+1)
		if err != nil {
			return nil, err
		}
		hival, _ := raw.AsInt(arg(2))
		c := &indexed{base: base, hival: int(clip(float64(hival), 0, 255))}
		switch lk := arg(3).(type) {
		case raw.StringObj:
			c.lookup = lk.Bytes
		case *raw.StreamObj:
			dec, err := in.src.DecodeStream(ctx, lk)
			if err != nil {
				return nil, fmt.Errorf("indexed lookup: %w", err)
			}
			c.lookup = dec.Data
		}
		return c, nil
	case "Separation", "DeviceN":
		c := &separation{name: family, n: 1}
		if family == "DeviceN" {
			names, _ := arg(1).(*raw.ArrayObj)
			if names == nil || names.Len() == 0 {
				return nil, fmt.Errorf("DeviceN without colorants")
			}
			c.n = names.Len()
		} else if n, _ := raw.AsName(arg(1)); n == "None" {
			c.none = true
		}
		alt, err := in.colorSpace(ctx, arg(2), res, depth+1)
		if err != nil {
			in.logger.Debug("alternate colour space unusable", observability.Error("error", err))
		} else if fn, err := in.loadFunction(ctx, arr.Items[min(3, len(arr.Items)-1)], 0); err == nil {
			c.alt, c.tint = alt, fn
		} else {
			in.logger.Debug("tint transform unusable", observability.Error("error", err))
		}
		return c, nil
	case "Pattern":
		p := pattern{}
		if len(arr.Items) > 1 {
			if under, err := in.colorSpace(ctx, arg(1), res, depth+1); err == nil {
				p.under = under
			}
		}
		return p, nil
	}
	return nil, fmt.Errorf("unsupported colour space %s", family)
}
