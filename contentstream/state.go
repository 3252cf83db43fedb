package contentstream

import (
	"image/color"

	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/fonts"
)

// BlendMode is the subset of PDF blend modes the raster device honours.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendDarken
	BlendLighten
)

func blendMode(name string) BlendMode {
	switch name {
	case "Multiply":
		return BlendMultiply
	case "Screen":
		return BlendScreen
	case "Darken":
		return BlendDarken
	case "Lighten":
		return BlendLighten
	}
	return BlendNormal
}

// TextState holds the text parameters of the graphics state.
type TextState struct {
	Font       *fonts.Font
	Size       float64
	CharSpace  float64
	WordSpace  float64
	HScale     float64
	Leading    float64
	Rise       float64
	RenderMode TextRenderMode
}

// GraphicsState is the PDF graphics state. Colours are kept both as
// components in their space and converted to sRGB.
type GraphicsState struct {
	CTM coords.Matrix

	FillSpace, StrokeSpace ColorSpace
	FillComps, StrokeComps []float64
	FillColor, StrokeColor color.RGBA
	FillAlpha, StrokeAlpha float64
	// FillPattern is set while the fill colour space is Pattern.
	FillPattern, StrokePattern bool
	Blend                      BlendMode

	LineWidth  float64
	LineCap    LineCap
	LineJoin   LineJoin
	MiterLimit float64
	Dash       []float64
	DashPhase  float64

	Text TextState

	// Clip is owned by the Device: it is saved and restored with q/Q but
	// never interpreted here.
	Clip any
}

// NewGraphicsState returns the initial state for a page whose user space
// maps to device space through ctm.
func NewGraphicsState(ctm coords.Matrix) *GraphicsState {
	return &GraphicsState{
		CTM:         ctm,
		FillSpace:   DeviceGray,
		StrokeSpace: DeviceGray,
		FillComps:   []float64{0},
		StrokeComps: []float64{0},
		FillColor:   color.RGBA{A: 255},
		StrokeColor: color.RGBA{A: 255},
		FillAlpha:   1,
		StrokeAlpha: 1,
		LineWidth:   1,
		MiterLimit:  10,
		Text:        TextState{HScale: 1},
	}
}

// Clone returns a copy that shares no slices with gs.
func (gs *GraphicsState) Clone() *GraphicsState {
	c := *gs
	c.FillComps = append([]float64(nil), gs.FillComps...)
	c.StrokeComps = append([]float64(nil), gs.StrokeComps...)
	c.Dash = append([]float64(nil), gs.Dash...)
	return &c
}

// DeviceLineWidth is the stroke width in device units. Zero width strokes
// are one device pixel wide.
func (gs *GraphicsState) DeviceLineWidth() float64 {
	w := gs.LineWidth * gs.CTM.Expansion()
	if w < 1 {
		return 1
	}
	return w
}

func (gs *GraphicsState) setFill(cs ColorSpace, comps []float64) {
	gs.FillSpace, gs.FillComps = cs, comps
	_, gs.FillPattern = cs.(pattern)
	if gs.FillPattern && comps == nil {
		return
	}
	gs.FillColor = RGBA(cs, comps)
}

func (gs *GraphicsState) setStroke(cs ColorSpace, comps []float64) {
	gs.StrokeSpace, gs.StrokeComps = cs, comps
	_, gs.StrokePattern = cs.(pattern)
	if gs.StrokePattern && comps == nil {
		return
	}
	gs.StrokeColor = RGBA(cs, comps)
}

// stack saves graphics states for q and Q.
type stack struct {
	states []*GraphicsState
}

func (s *stack) push(gs *GraphicsState) { s.states = append(s.states, gs.Clone()) }

func (s *stack) pop() (*GraphicsState, bool) {
	if len(s.states) == 0 {
		return nil, false
	}
	gs := s.states[len(s.states)-1]
	s.states = s.states[:len(s.states)-1]
	return gs, true
}

func (s *stack) depth() int { return len(s.states) }
