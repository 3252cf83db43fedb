package cmm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// LUT is a lut8 or lut16 transform.
type LUT struct {
	InputChannels  uint8
	OutputChannels uint8
	GridPoints     uint8
	Matrix         [9]float64
	// tables hold values normalized to [0,1]
	InputTables  [][]float64
	CLUT         []float64
	OutputTables [][]float64
}

// ReadLUT parses an mft1 or mft2 tag.
func (p *Profile) ReadLUT(sig string) (*LUT, error) {
	data, ok := p.tag(sig)
	if !ok {
		return nil, fmt.Errorf("%w: no %s tag", ErrUnsupported, sig)
	}
	if len(data) < 52 {
		return nil, errors.New("lut tag truncated")
	}
	switch string(data[:4]) {
	case "mft1":
		return parseLUT(data, 1, 256, 256, 48)
	case "mft2":
		in := int(binary.BigEndian.Uint16(data[48:50]))
		out := int(binary.BigEndian.Uint16(data[50:52]))
		return parseLUT(data, 2, in, out, 52)
	}
	return nil, fmt.Errorf("%w: lut type %q", ErrUnsupported, data[:4])
}

// parseLUT reads a lut8 (width 1) or lut16 (width 2) body starting at off.
func parseLUT(data []byte, width, inEntries, outEntries, off int) (*LUT, error) {
	lut := &LUT{InputChannels: data[8], OutputChannels: data[9], GridPoints: data[10]}
	if lut.InputChannels == 0 || lut.OutputChannels == 0 || lut.GridPoints < 2 || inEntries < 2 || outEntries < 2 {
		return nil, errors.New("lut tag malformed")
	}
	for i := range lut.Matrix {
		lut.Matrix[i] = s15Fixed16(binary.BigEndian.Uint32(data[12+4*i:]))
	}
	scale := float64(int(1)<<(8*width) - 1)
	read := func(n int) ([]float64, error) {
		if off+n*width > len(data) {
			return nil, errors.New("lut tag truncated")
		}
		t := make([]float64, n)
		for i := range t {
			if width == 1 {
				t[i] = float64(data[off+i]) / scale
			} else {
				t[i] = float64(binary.BigEndian.Uint16(data[off+2*i:])) / scale
			}
		}
		off += n * width
		return t, nil
	}
	var err error
	lut.InputTables = make([][]float64, lut.InputChannels)
	for c := range lut.InputTables {
		if lut.InputTables[c], err = read(inEntries); err != nil {
			return nil, err
		}
	}
	points := int(math.Pow(float64(lut.GridPoints), float64(lut.InputChannels)))
	if lut.CLUT, err = read(points * int(lut.OutputChannels)); err != nil {
		return nil, err
	}
	lut.OutputTables = make([][]float64, lut.OutputChannels)
	for c := range lut.OutputTables {
		if lut.OutputTables[c], err = read(outEntries); err != nil {
			return nil, err
		}
	}
	return lut, nil
}

// Convert runs in through the matrix (three channel input only), the
// input curves, the CLUT and the output curves.
func (lut *LUT) Convert(in []float64) ([]float64, error) {
	if len(in) != int(lut.InputChannels) {
		return nil, errors.New("input channels mismatch")
	}
	v := make([]float64, len(in))
	copy(v, in)
	if lut.InputChannels == 3 {
		m := lut.Matrix
		v[0], v[1], v[2] = v[0]*m[0]+v[1]*m[1]+v[2]*m[2], v[0]*m[3]+v[1]*m[4]+v[2]*m[5], v[0]*m[6]+v[1]*m[7]+v[2]*m[8]
	}
	for c := range v {
		v[c] = interp1D(v[c], lut.InputTables[c])
	}
	grid := interpCLUT(v, lut.CLUT, int(lut.InputChannels), int(lut.OutputChannels), int(lut.GridPoints))
	out := make([]float64, lut.OutputChannels)
	for c := range out {
		out[c] = interp1D(grid[c], lut.OutputTables[c])
	}
	return out, nil
}

func interp1D(val float64, table []float64) float64 {
	if val <= 0 {
		return table[0]
	}
	if val >= 1 {
		return table[len(table)-1]
	}
	f := val * float64(len(table)-1)
	idx := int(f)
	frac := f - float64(idx)
	return table[idx]*(1-frac) + table[idx+1]*frac
}

func interpCLUT(in []float64, clut []float64, inCh, outCh, gridPoints int) []float64 {
	if inCh == 3 {
		return interpCLUT3D(in, clut, outCh, gridPoints)
	}
	return interpCLUTNearest(in, clut, inCh, outCh, gridPoints)
}

func interpCLUTNearest(in []float64, clut []float64, inCh, outCh, gridPoints int) []float64 {
	idx := 0
	for i := 0; i < inCh; i++ {
		idx = idx*gridPoints + int(clamp01(in[i])*float64(gridPoints-1)+0.5)
	}
	out := make([]float64, outCh)
	copy(out, clut[idx*outCh:])
	return out
}

// interpCLUT3D interpolates trilinearly; the first dimension varies least
// rapidly in the table.
func interpCLUT3D(in []float64, clut []float64, outCh, gridPoints int) []float64 {
	var lo [3]int
	var frac [3]float64
	for i := range lo {
		v := clamp01(in[i]) * float64(gridPoints-1)
		lo[i] = min(int(v), gridPoints-2)
		frac[i] = v - float64(lo[i])
	}
	at := func(dx, dy, dz, ch int) float64 {
		idx := ((lo[0]+dx)*gridPoints+lo[1]+dy)*gridPoints + lo[2] + dz
		return clut[idx*outCh+ch]
	}
	out := make([]float64, outCh)
	for c := range out {
		var sum float64
		for corner := 0; corner < 8; corner++ {
			dx, dy, dz := corner>>2&1, corner>>1&1, corner&1
			w := 1.0
			for k, d := range [3]int{dx, dy, dz} {
				if d == 1 {
					w *= frac[k]
				} else {
					w *= 1 - frac[k]
				}
			}
			sum += w * at(dx, dy, dz, c)
		}
		out[c] = sum
	}
	return out
}
