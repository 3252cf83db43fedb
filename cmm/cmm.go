// Package cmm converts device colours described by ICC profiles and CIE
// based PDF colour spaces to sRGB.
package cmm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Converter maps n input components in [0,1] to sRGB in [0,1].
type Converter func(in []float64) (r, g, b float64)

// Profile is a parsed ICC profile header with its tag table.
type Profile struct {
	data  []byte
	tags  map[string][]byte
	Space string
	PCS   string
	Class string
}

var ErrUnsupported = errors.New("unsupported icc profile")

// Parse reads the header and tag directory of an ICC profile.
func Parse(data []byte) (*Profile, error) {
	if len(data) < 132 {
		return nil, errors.New("icc profile truncated")
	}
	p := &Profile{
		data:  data,
		tags:  make(map[string][]byte),
		Class: string(data[12:16]),
		Space: string(data[16:20]),
		PCS:   string(data[20:24]),
	}
	n := int(binary.BigEndian.Uint32(data[128:132]))
	if n > (len(data)-132)/12 {
		return nil, errors.New("icc tag table truncated")
	}
	for i := 0; i < n; i++ {
		e := data[132+12*i:]
		sig := string(e[:4])
		off := binary.BigEndian.Uint32(e[4:8])
		size := binary.BigEndian.Uint32(e[8:12])
		if uint64(off)+uint64(size) > uint64(len(data)) {
			continue
		}
		p.tags[sig] = data[off : off+size]
	}
	return p, nil
}

// Components returns the channel count of the profile's data colour space.
func (p *Profile) Components() int {
	switch p.Space {
	case "GRAY":
		return 1
	case "RGB ", "Lab ", "XYZ ":
		return 3
	case "CMYK":
		return 4
	}
	return 0
}

func (p *Profile) tag(sig string) ([]byte, bool) {
	b, ok := p.tags[sig]
	return b, ok
}

// Converter builds an sRGB converter from the profile's A2B0 table or
// its matrix and tone curves.
func (p *Profile) Converter() (Converter, error) {
	toPCS, err := p.toPCS()
	if err != nil {
		return nil, err
	}
	lab := p.PCS == "Lab "
	return func(in []float64) (r, g, b float64) {
		v := toPCS(in)
		if lab {
			v = LabToXYZ([]float64{v[0] * 100, v[1]*255 - 128, v[2]*255 - 128}, D50)
		}
		return XYZToSRGB(v, D50)
	}, nil
}

func (p *Profile) toPCS() (func([]float64) []float64, error) {
	if lut, err := p.ReadLUT("A2B0"); err == nil {
		return func(in []float64) []float64 {
			out, err := lut.Convert(in)
			if err != nil {
				return []float64{0, 0, 0}
			}
			return out
		}, nil
	}
	switch p.Space {
	case "RGB ":
		var cols [3][3]float64
		var trc [3]curve
		for i, ch := range []string{"r", "g", "b"} {
			xyz, err := p.readXYZ(ch + "XYZ")
			if err != nil {
				return nil, err
			}
			cols[i] = xyz
			if trc[i], err = p.readCurve(ch + "TRC"); err != nil {
				return nil, err
			}
		}
		return func(in []float64) []float64 {
			var out [3]float64
			for i := 0; i < 3 && i < len(in); i++ {
				lin := trc[i].eval(in[i])
				for k := 0; k < 3; k++ {
					out[k] += cols[i][k] * lin
				}
			}
			return out[:]
		}, nil
	case "GRAY":
		trc, err := p.readCurve("kTRC")
		if err != nil {
			return nil, err
		}
		return func(in []float64) []float64 {
			y := trc.eval(in[0])
			return []float64{D50[0] * y, D50[1] * y, D50[2] * y}
		}, nil
	}
	return nil, fmt.Errorf("%w: %s without A2B0", ErrUnsupported, p.Space)
}

func (p *Profile) readXYZ(sig string) ([3]float64, error) {
	b, ok := p.tag(sig)
	if !ok || len(b) < 20 || string(b[:4]) != "XYZ " {
		return [3]float64{}, fmt.Errorf("%w: tag %s", ErrUnsupported, sig)
	}
	var out [3]float64
	for i := range out {
		out[i] = s15Fixed16(binary.BigEndian.Uint32(b[8+4*i:]))
	}
	return out, nil
}

// curve is an ICC tone curve: a gamma, a table or a parametric function.
type curve struct {
	gamma  float64
	table  []float64
	params []float64
	kind   uint16
}

func (p *Profile) readCurve(sig string) (curve, error) {
	b, ok := p.tag(sig)
	if !ok || len(b) < 12 {
		return curve{}, fmt.Errorf("%w: tag %s", ErrUnsupported, sig)
	}
	switch string(b[:4]) {
	case "curv":
		n := int(binary.BigEndian.Uint32(b[8:12]))
		switch {
		case n == 0:
			return curve{gamma: 1}, nil
		case n == 1 && len(b) >= 14:
			return curve{gamma: float64(binary.BigEndian.Uint16(b[12:])) / 256}, nil
		case len(b) >= 12+2*n:
			t := make([]float64, n)
			for i := range t {
				t[i] = float64(binary.BigEndian.Uint16(b[12+2*i:])) / 65535
			}
			return curve{table: t}, nil
		}
	case "para":
		kind := binary.BigEndian.Uint16(b[8:10])
		counts := []int{1, 3, 4, 5, 7}
		if int(kind) >= len(counts) || len(b) < 12+4*counts[kind] {
			break
		}
		ps := make([]float64, counts[kind])
		for i := range ps {
			ps[i] = s15Fixed16(binary.BigEndian.Uint32(b[12+4*i:]))
		}
		return curve{params: ps, kind: kind}, nil
	}
	return curve{}, fmt.Errorf("%w: curve %s", ErrUnsupported, sig)
}

func (c curve) eval(x float64) float64 {
	x = clamp01(x)
	switch {
	case c.table != nil:
		return interp1D(x, c.table)
	case c.params != nil:
		p := c.params
		g := p[0]
		switch c.kind {
		case 0:
			return math.Pow(x, g)
		case 1:
			if x >= -p[2]/p[1] {
				return math.Pow(p[1]*x+p[2], g)
			}
			return 0
		case 2:
			if x >= -p[2]/p[1] {
				return math.Pow(p[1]*x+p[2], g) + p[3]
			}
			return p[3]
		case 3:
			if x >= p[4] {
				return math.Pow(p[1]*x+p[2], g)
			}
			return p[3] * x
		case 4:
			if x >= p[4] {
				return math.Pow(p[1]*x+p[2], g) + p[5]
			}
			return p[3]*x + p[6]
		}
	}
	return math.Pow(x, c.gamma)
}

func s15Fixed16(v uint32) float64 { return float64(int32(v)) / 65536 }

func clamp01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
