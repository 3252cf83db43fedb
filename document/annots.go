package document

import (
	"errors"
	"math"

	"github.com/wudi/pagekit/args"
	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/observability"
)

// Quadrilateral is a highlighted area in unrotated page points, as stored
// in /QuadPoints.
type Quadrilateral [4]coords.Point

// BuildQuadrilateral maps r, given in fractions of the displayed page, onto
// a crop box of cw by ch points shown with the given rotation.
func BuildQuadrilateral(r FracRect, rotate int, cw, ch float64) Quadrilateral {
	// left is x1 and x2, right is x3 and x4, low is y2 and y4, high is y1
	// and y3.
	var left, right, low, high float64
	switch rotate {
	case 90:
		left, right = cw*(1-r.Y1), cw*(1-r.Y2)
		low, high = ch*r.X2, ch*r.X1
	case 180:
		left, right = cw*(1-r.X2), cw*(1-r.X1)
		low, high = ch*(1-r.Y2), ch*(1-r.Y1)
	case 270:
		left, right = cw*r.Y1, cw*r.Y2
		low, high = ch*(1-r.X2), ch*(1-r.X1)
	default:
		left, right = cw*r.X1, cw*r.X2
		low, high = ch*r.Y1, ch*r.Y2
	}
	return Quadrilateral{
		{X: left, Y: high},
		{X: left, Y: low},
		{X: right, Y: high},
		{X: right, Y: low},
	}
}

// Highlight appearance.
var (
	highlightColor   = []float64{0, 1, 0}
	highlightOpacity = 0.5
)

// AddAnnotations validates every quad, then attaches one highlight
// covering all of them. A quad is a map with numeric x1, y1, x2 and y2; an
// array of such maps is accepted as a single argument. Nothing is attached
// when any quad is rejected.
func (p *Page) AddAnnotations(quads ...args.Value) error {
	if len(quads) == 1 && quads[0].IsArray() {
		quads, _ = quads[0].Items()
	}
	rects := make([]FracRect, 0, len(quads))
	for _, q := range quads {
		v, err := args.Numbers(q, "x1", "x2", "y1", "y2")
		switch {
		case errors.Is(err, args.ErrNotNumber):
			return argError(msgQuadValues)
		case err != nil:
			return argError(msgQuadDefinition)
		}
		rects = append(rects, FracRect{X1: v[0], X2: v[1], Y1: v[2], Y2: v[3]})
	}
	return p.AddHighlights(rects...)
}

// AddHighlights attaches one highlight annotation with a quad per rect.
func (p *Page) AddHighlights(rects ...FracRect) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()
	if len(rects) == 0 {
		return nil
	}
	pg := p.model.page
	crop := pg.CropBox
	points := make([]float64, 0, 8*len(rects))
	bbox := Rect{X1: math.Inf(1), Y1: math.Inf(1), X2: math.Inf(-1), Y2: math.Inf(-1)}
	for _, r := range rects {
		q := BuildQuadrilateral(r, pg.Rotate, crop.Width(), crop.Height())
		for _, pt := range q {
			x, y := pt.X+crop.X1, pt.Y+crop.Y1
			points = append(points, x, y)
			bbox.X1, bbox.Y1 = math.Min(bbox.X1, x), math.Min(bbox.Y1, y)
			bbox.X2, bbox.Y2 = math.Max(bbox.X2, x), math.Max(bbox.Y2, y)
		}
	}

	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Annot"))
	dict.Set("Subtype", raw.NameLiteral("Highlight"))
	dict.Set("Rect", raw.Floats(bbox.X1, bbox.Y1, bbox.X2, bbox.Y2))
	dict.Set("QuadPoints", raw.Floats(points...))
	dict.Set("C", raw.Floats(highlightColor...))
	dict.Set("CA", raw.NumberFloat(highlightOpacity))
	dict.Set("F", raw.NumberInt(4))

	m := p.model
	m.mu.Lock()
	m.annots = append(m.annots, annotation{dict: dict, added: true})
	m.dirty = true
	m.mu.Unlock()
	p.doc.cfg.logger.Debug("highlight added",
		observability.Int("page", p.num),
		observability.Int("quads", len(rects)))
	return nil
}

// DeleteAnnotations removes highlight annotations from the end of the
// page's list, stopping at the first annotation of another kind.
func (p *Page) DeleteAnnotations() error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()
	m := p.model
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.annots)
	for n > 0 && m.annots[n-1].subtype() == "Highlight" {
		n--
	}
	if n < len(m.annots) {
		clear(m.annots[n:])
		m.annots = m.annots[:n]
		m.dirty = true
	}
	return nil
}

// annotationDicts snapshots the annotation list for rendering.
func (m *pageModel) annotationDicts() []*raw.DictObj {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*raw.DictObj, len(m.annots))
	for i, a := range m.annots {
		out[i] = a.dict
	}
	return out
}
