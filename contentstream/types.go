package contentstream

import (
	"math"

	"github.com/wudi/pagekit/coords"
)

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// Fills reports whether glyphs are filled in this mode.
func (m TextRenderMode) Fills() bool {
	return m == TextFill || m == TextFillStroke || m == TextFillClip || m == TextFillStrokeClip
}

// Strokes reports whether glyph outlines are stroked in this mode.
func (m TextRenderMode) Strokes() bool {
	return m == TextStroke || m == TextFillStroke || m == TextStrokeClip || m == TextFillStrokeClip
}

// Clips reports whether glyphs are added to the clipping path.
func (m TextRenderMode) Clips() bool { return m >= TextFillClip && m <= TextClip }

// LineCap represents the line cap style (J operator).
type LineCap int

const (
	LineCapButt LineCap = iota
	LineCapRound
	LineCapSquare
)

// LineJoin represents the line join style (j operator).
type LineJoin int

const (
	LineJoinMiter LineJoin = iota
	LineJoinRound
	LineJoinBevel
)

// PathOp enumerates path segment types.
type PathOp int

const (
	PathMoveTo PathOp = iota
	PathLineTo
	PathQuadTo
	PathCurveTo
	PathClose
)

// Segment is one path element. MoveTo and LineTo use Pts[0], QuadTo uses
// Pts[0:2] and CurveTo all three.
type Segment struct {
	Op  PathOp
	Pts [3]coords.Point
}

// Path is a sequence of subpaths, each starting with a MoveTo.
type Path struct {
	Segments []Segment

	start, cur coords.Point
	open       bool
}

func (p *Path) MoveTo(pt coords.Point) {
	p.Segments = append(p.Segments, Segment{Op: PathMoveTo, Pts: [3]coords.Point{pt}})
	p.start, p.cur, p.open = pt, pt, true
}

// LineTo appends a line; without a current point it starts a subpath.
func (p *Path) LineTo(pt coords.Point) {
	if !p.open {
		p.MoveTo(pt)
		return
	}
	p.Segments = append(p.Segments, Segment{Op: PathLineTo, Pts: [3]coords.Point{pt}})
	p.cur = pt
}

func (p *Path) QuadTo(c, pt coords.Point) {
	if !p.open {
		p.MoveTo(c)
	}
	p.Segments = append(p.Segments, Segment{Op: PathQuadTo, Pts: [3]coords.Point{c, pt}})
	p.cur = pt
}

func (p *Path) CurveTo(c1, c2, pt coords.Point) {
	if !p.open {
		p.MoveTo(c1)
	}
	p.Segments = append(p.Segments, Segment{Op: PathCurveTo, Pts: [3]coords.Point{c1, c2, pt}})
	p.cur = pt
}

func (p *Path) Close() {
	if !p.open {
		return
	}
	p.Segments = append(p.Segments, Segment{Op: PathClose})
	p.cur = p.start
}

// Current returns the current point and whether one exists.
func (p *Path) Current() (coords.Point, bool) { return p.cur, p.open }

// Rect appends a closed rectangle subpath (the re operator).
func (p *Path) Rect(x, y, w, h float64) {
	p.MoveTo(coords.Point{X: x, Y: y})
	p.LineTo(coords.Point{X: x + w, Y: y})
	p.LineTo(coords.Point{X: x + w, Y: y + h})
	p.LineTo(coords.Point{X: x, Y: y + h})
	p.Close()
}

func (p *Path) Empty() bool { return len(p.Segments) == 0 }

func (p *Path) Reset() {
	p.Segments = p.Segments[:0]
	p.open = false
}

// Transform returns a copy of p with every point mapped through m.
func (p *Path) Transform(m coords.Matrix) *Path {
	out := &Path{Segments: make([]Segment, len(p.Segments)), open: p.open}
	for i, s := range p.Segments {
		for j := range s.Pts {
			s.Pts[j] = m.Transform(s.Pts[j])
		}
		out.Segments[i] = s
	}
	out.start, out.cur = m.Transform(p.start), m.Transform(p.cur)
	return out
}

// Bounds returns the bounding box of all points, control points included.
func (p *Path) Bounds() coords.Rect {
	r := coords.Rect{X1: math.Inf(1), Y1: math.Inf(1), X2: math.Inf(-1), Y2: math.Inf(-1)}
	n := 0
	for _, s := range p.Segments {
		var k int
		switch s.Op {
		case PathMoveTo, PathLineTo:
			k = 1
		case PathQuadTo:
			k = 2
		case PathCurveTo:
			k = 3
		}
		for _, pt := range s.Pts[:k] {
			r.X1, r.Y1 = math.Min(r.X1, pt.X), math.Min(r.Y1, pt.Y)
			r.X2, r.Y2 = math.Max(r.X2, pt.X), math.Max(r.Y2, pt.Y)
			n++
		}
	}
	if n == 0 {
		return coords.Rect{}
	}
	return r
}

// Append adds the segments of o to p.
func (p *Path) Append(o *Path) {
	p.Segments = append(p.Segments, o.Segments...)
	p.start, p.cur, p.open = o.start, o.cur, o.open
}
