// Package coords holds the affine geometry shared by the content
// interpreter, the text layout and the raster device.
package coords

import (
	"errors"
	"math"
)

// Matrix is a PDF transformation [a b c d e f]. Points are row vectors, so
// m.Multiply(o) applies m first and o second.
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// TransformVector ignores the translation part.
func (m Matrix) TransformVector(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y, Y: m[1]*p.X + m[3]*p.Y}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det, -m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// Expansion is the geometric mean scale factor of m, used for line widths
// and font sizes.
func (m Matrix) Expansion() float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is an axis-aligned rectangle in PDF points. Normalized rectangles
// have X1 <= X2 and Y1 <= Y2.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

func (r Rect) Normalize() Rect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

func (r Rect) Width() float64  { return r.X2 - r.X1 }
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }
func (r Rect) Empty() bool     { return r.X2 <= r.X1 || r.Y2 <= r.Y1 }

// Intersect returns the overlap of two normalized rectangles.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X1: math.Max(r.X1, o.X1), Y1: math.Max(r.Y1, o.Y1),
		X2: math.Min(r.X2, o.X2), Y2: math.Min(r.Y2, o.Y2),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

func (r Rect) Union(o Rect) Rect {
	return Rect{
		X1: math.Min(r.X1, o.X1), Y1: math.Min(r.Y1, o.Y1),
		X2: math.Max(r.X2, o.X2), Y2: math.Max(r.Y2, o.Y2),
	}
}

// Transform returns the bounding box of r mapped through m.
func (r Rect) Transform(m Matrix) Rect {
	pts := [4]Point{
		m.Transform(Point{r.X1, r.Y1}),
		m.Transform(Point{r.X2, r.Y1}),
		m.Transform(Point{r.X1, r.Y2}),
		m.Transform(Point{r.X2, r.Y2}),
	}
	out := Rect{X1: pts[0].X, Y1: pts[0].Y, X2: pts[0].X, Y2: pts[0].Y}
	for _, p := range pts[1:] {
		out.X1 = math.Min(out.X1, p.X)
		out.Y1 = math.Min(out.Y1, p.Y)
		out.X2 = math.Max(out.X2, p.X)
		out.Y2 = math.Max(out.Y2, p.Y)
	}
	return out
}

// PageToDevice maps user space to a top-left-origin device space rotated
// clockwise by rotate degrees, k device units per point. crop is the
// visible page area.
func PageToDevice(crop Rect, rotate int, k float64) Matrix {
	switch rotate {
	case 90:
		return Matrix{0, k, k, 0, -k * crop.Y1, -k * crop.X1}
	case 180:
		return Matrix{-k, 0, 0, k, k * crop.X2, -k * crop.Y1}
	case 270:
		return Matrix{0, -k, -k, 0, k * crop.Y2, k * crop.X2}
	}
	return Matrix{k, 0, 0, -k, -k * crop.X1, k * crop.Y2}
}
