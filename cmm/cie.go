package cmm

import "math"

// White points as XYZ.
var (
	D50 = [3]float64{0.9642, 1.0, 0.8249}
	D65 = [3]float64{0.9505, 1.0, 1.0890}
)

// LabToXYZ converts CIE L*a*b* to XYZ relative to white.
func LabToXYZ(lab []float64, white [3]float64) []float64 {
	fy := (lab[0] + 16) / 116
	fx := fy + lab[1]/500
	fz := fy - lab[2]/200
	inv := func(t float64) float64 {
		if t > 6.0/29 {
			return t * t * t
		}
		return 3 * (6.0 / 29) * (6.0 / 29) * (t - 4.0/29)
	}
	return []float64{white[0] * inv(fx), white[1] * inv(fy), white[2] * inv(fz)}
}

// bradford adapts XYZ from white to D65.
func bradford(xyz []float64, white [3]float64) [3]float64 {
	m := [9]float64{0.8951, 0.2664, -0.1614, -0.7502, 1.7135, 0.0367, 0.0389, -0.0685, 1.0296}
	mi := [9]float64{0.9869929, -0.1470543, 0.1599627, 0.4323053, 0.5183603, 0.0492912, -0.0085287, 0.0400428, 0.9684867}
	mul := func(m [9]float64, v [3]float64) [3]float64 {
		return [3]float64{
			m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
			m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
			m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
		}
	}
	src := mul(m, white)
	dst := mul(m, D65)
	c := mul(m, [3]float64{xyz[0], xyz[1], xyz[2]})
	for i := range c {
		if src[i] != 0 {
			c[i] *= dst[i] / src[i]
		}
	}
	return mul(mi, c)
}

// XYZToSRGB converts XYZ relative to white into gamma encoded sRGB.
func XYZToSRGB(xyz []float64, white [3]float64) (r, g, b float64) {
	v := bradford(xyz, white)
	lr := 3.2406*v[0] - 1.5372*v[1] - 0.4986*v[2]
	lg := -0.9689*v[0] + 1.8758*v[1] + 0.0415*v[2]
	lb := 0.0557*v[0] - 0.2040*v[1] + 1.0570*v[2]
	return gammaSRGB(lr), gammaSRGB(lg), gammaSRGB(lb)
}

func gammaSRGB(x float64) float64 {
	x = clamp01(x)
	if x <= 0.0031308 {
		return 12.92 * x
	}
	return 1.055*math.Pow(x, 1/2.4) - 0.055
}

// CalRGB describes a PDF CalRGB colour space.
type CalRGB struct {
	White  [3]float64
	Gamma  [3]float64
	Matrix [9]float64
}

// NewCalRGB fills defaults for missing Gamma and Matrix entries.
func NewCalRGB(white [3]float64, gamma []float64, matrix []float64) CalRGB {
	c := CalRGB{White: white, Gamma: [3]float64{1, 1, 1}, Matrix: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
	if len(gamma) == 3 {
		copy(c.Gamma[:], gamma)
	}
	if len(matrix) == 9 {
		copy(c.Matrix[:], matrix)
	}
	return c
}

func (c CalRGB) Convert(in []float64) (r, g, b float64) {
	var xyz [3]float64
	for i := 0; i < 3 && i < len(in); i++ {
		v := math.Pow(clamp01(in[i]), c.Gamma[i])
		for k := 0; k < 3; k++ {
			xyz[k] += c.Matrix[3*i+k] * v
		}
	}
	return XYZToSRGB(xyz[:], c.White)
}

// CalGray converts a CalGray component with the given gamma.
func CalGray(in float64, white [3]float64, gamma float64) (r, g, b float64) {
	y := math.Pow(clamp01(in), gamma)
	return XYZToSRGB([]float64{white[0] * y, white[1] * y, white[2] * y}, white)
}
