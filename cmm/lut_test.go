package cmm

import (
	"encoding/binary"
	"math"
	"testing"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestInterpCLUT3D(t *testing.T) {
	// output = 10x + 20y + 40z on a 2x2x2 grid
	table := make([]float64, 8)
	for i := range table {
		x, y, z := i>>2&1, i>>1&1, i&1
		table[i] = float64(10*x + 20*y + 40*z)
	}
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{0, 0, 0}, 0},
		{[]float64{1, 0, 0}, 10},
		{[]float64{0, 0, 1}, 40},
		{[]float64{1, 1, 1}, 70},
		{[]float64{0.5, 0.5, 0}, 15},
		{[]float64{0.5, 0.5, 0.5}, 35},
	}
	for _, tc := range tests {
		got := interpCLUT3D(tc.in, table, 1, 2)
		if !near(got[0], tc.want, 1e-9) {
			t.Errorf("interp(%v) = %v, want %v", tc.in, got[0], tc.want)
		}
	}
}

type tagSpec struct {
	sig  string
	body []byte
}

func buildProfile(space, pcs string, tags []tagSpec) []byte {
	head := make([]byte, 132+12*len(tags))
	copy(head[12:], "mntr")
	copy(head[16:], space)
	copy(head[20:], pcs)
	binary.BigEndian.PutUint32(head[128:], uint32(len(tags)))
	off := len(head)
	for i, tg := range tags {
		e := head[132+12*i:]
		copy(e, tg.sig)
		binary.BigEndian.PutUint32(e[4:], uint32(off))
		binary.BigEndian.PutUint32(e[8:], uint32(len(tg.body)))
		off += len(tg.body)
	}
	out := head
	for _, tg := range tags {
		out = append(out, tg.body...)
	}
	return out
}

func xyzTag(x, y, z float64) []byte {
	b := make([]byte, 20)
	copy(b, "XYZ ")
	for i, v := range []float64{x, y, z} {
		binary.BigEndian.PutUint32(b[8+4*i:], uint32(int32(math.Round(v*65536))))
	}
	return b
}

func gammaTag(g float64) []byte {
	b := make([]byte, 14)
	copy(b, "curv")
	binary.BigEndian.PutUint32(b[8:], 1)
	binary.BigEndian.PutUint16(b[12:], uint16(g*256))
	return b
}

func TestMatrixTRCProfile(t *testing.T) {
	data := buildProfile("RGB ", "XYZ ", []tagSpec{
		{"rXYZ", xyzTag(0.4361, 0.2225, 0.0139)},
		{"gXYZ", xyzTag(0.3851, 0.7169, 0.0971)},
		{"bXYZ", xyzTag(0.1431, 0.0606, 0.7141)},
		{"rTRC", gammaTag(1)},
		{"gTRC", gammaTag(1)},
		{"bTRC", gammaTag(1)},
	})
	p, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if p.Components() != 3 {
		t.Fatalf("components = %d", p.Components())
	}
	conv, err := p.Converter()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in      []float64
		r, g, b float64
	}{
		{[]float64{0, 0, 0}, 0, 0, 0},
		{[]float64{1, 1, 1}, 1, 1, 1},
		{[]float64{0.5, 0.5, 0.5}, 0.735, 0.735, 0.735},
	}
	for _, tc := range tests {
		r, g, b := conv(tc.in)
		if !near(r, tc.r, 0.03) || !near(g, tc.g, 0.03) || !near(b, tc.b, 0.03) {
			t.Errorf("convert(%v) = %.3f %.3f %.3f, want %v %v %v", tc.in, r, g, b, tc.r, tc.g, tc.b)
		}
	}
}

func TestGrayProfile(t *testing.T) {
	p, err := Parse(buildProfile("GRAY", "XYZ ", []tagSpec{{"kTRC", gammaTag(1)}}))
	if err != nil {
		t.Fatal(err)
	}
	conv, err := p.Converter()
	if err != nil {
		t.Fatal(err)
	}
	r, g, b := conv([]float64{0.5})
	for _, v := range []float64{r, g, b} {
		if !near(v, 0.735, 0.01) {
			t.Fatalf("gray 0.5 = %.3f %.3f %.3f", r, g, b)
		}
	}
}

func TestProfileErrors(t *testing.T) {
	if _, err := Parse(make([]byte, 40)); err == nil {
		t.Error("short profile parsed")
	}
	p, err := Parse(buildProfile("CMYK", "Lab ", nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Converter(); err == nil {
		t.Error("cmyk profile without A2B0 produced a converter")
	}
}

func TestLUTProfile(t *testing.T) {
	// one gray input, identity curves, grid of two points mapping to XYZ
	// black and D50 white
	body := make([]byte, 52)
	copy(body, "mft2")
	body[8], body[9], body[10] = 1, 3, 2
	binary.BigEndian.PutUint16(body[48:], 2)
	binary.BigEndian.PutUint16(body[50:], 2)
	u16 := func(vs ...float64) {
		for _, v := range vs {
			body = binary.BigEndian.AppendUint16(body, uint16(math.Round(v*65535)))
		}
	}
	u16(0, 1)
	u16(0, 0, 0, D50[0]/2, D50[1]/2, D50[2]/2)
	u16(0, 1, 0, 1, 0, 1)
	p, err := Parse(buildProfile("GRAY", "XYZ ", []tagSpec{{"A2B0", body}}))
	if err != nil {
		t.Fatal(err)
	}
	lut, err := p.ReadLUT("A2B0")
	if err != nil {
		t.Fatal(err)
	}
	out, err := lut.Convert([]float64{1})
	if err != nil {
		t.Fatal(err)
	}
	if !near(out[1], 0.5, 1e-3) {
		t.Fatalf("lut Y = %v", out[1])
	}
	if _, err := lut.Convert([]float64{1, 2}); err == nil {
		t.Error("channel mismatch accepted")
	}
}

func TestLabAndCal(t *testing.T) {
	xyz := LabToXYZ([]float64{100, 0, 0}, D50)
	for i := range xyz {
		if !near(xyz[i], D50[i], 1e-6) {
			t.Fatalf("lab white = %v", xyz)
		}
	}
	r, g, b := XYZToSRGB(D65[:], D65)
	if !near(r, 1, 0.01) || !near(g, 1, 0.01) || !near(b, 1, 0.01) {
		t.Errorf("D65 white = %.3f %.3f %.3f", r, g, b)
	}
	cal := NewCalRGB(D65, nil, []float64{0.4124, 0.2126, 0.0193, 0.3576, 0.7152, 0.1192, 0.1805, 0.0722, 0.9505})
	r, g, b = cal.Convert([]float64{1, 1, 1})
	if !near(r, 1, 0.02) || !near(g, 1, 0.02) || !near(b, 1, 0.02) {
		t.Errorf("calrgb white = %.3f %.3f %.3f", r, g, b)
	}
	r, _, _ = CalGray(0, D65, 2.2)
	if r != 0 {
		t.Errorf("calgray black = %v", r)
	}
}
