package fonts

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	gtfont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/font/cff"
	ot "github.com/go-text/typesetting/font/opentype"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pagekit/coords"
)

// SegmentOp is an outline drawing command.
type SegmentOp uint8

const (
	MoveTo SegmentOp = iota
	LineTo
	QuadTo
	CubeTo
)

// Segment is one outline command. Points are in text space for a font
// size of 1, y up.
type Segment struct {
	Op  SegmentOp
	Pts [3]coords.Point
}

// glyphProgram is a source of glyph outlines.
type glyphProgram interface {
	outline(gid uint16) ([]Segment, bool)
	// advance is the horizontal advance in text space units for size 1.
	advance(gid uint16) float64
	byRune(r rune) (uint16, bool)
	byName(name string) (uint16, bool)
}

// sfntProgram serves embedded TrueType and OpenType programs.
type sfntProgram struct {
	face *gtfont.Face
	upem float64
}

func newSFNTProgram(data []byte) (*sfntProgram, error) {
	face, err := gtfont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse sfnt: %w", err)
	}
	upem := float64(face.Upem())
	if upem == 0 {
		upem = 1000
	}
	return &sfntProgram{face: face, upem: upem}, nil
}

func (p *sfntProgram) outline(gid uint16) ([]Segment, bool) {
	var segs []gtfont.Segment
	switch data := p.face.GlyphData(gtfont.GID(gid)).(type) {
	case gtfont.GlyphOutline:
		segs = data.Segments
	case gtfont.GlyphBitmap:
		if data.Outline != nil {
			segs = data.Outline.Segments
		}
	case gtfont.GlyphSVG:
		segs = data.Outline.Segments
	default:
		return nil, false
	}
	return convertOT(segs, coords.Scale(1/p.upem, 1/p.upem)), true
}

func (p *sfntProgram) advance(gid uint16) float64 {
	return float64(p.face.HorizontalAdvance(gtfont.GID(gid))) / p.upem
}

func (p *sfntProgram) byRune(r rune) (uint16, bool) {
	gid, ok := p.face.NominalGlyph(r)
	return uint16(gid), ok
}

func (p *sfntProgram) byName(string) (uint16, bool) { return 0, false }

// cffProgram serves bare CFF programs (FontFile3 /Type1C and /CIDFontType0C).
type cffProgram struct {
	font  *cff.CFF
	info  *cffInfo
	once  sync.Once
	names map[string]uint16
}

func newCFFProgram(data []byte) (*cffProgram, error) {
	f, err := cff.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse cff: %w", err)
	}
	info, err := parseCFFInfo(data)
	if err != nil {
		return nil, err
	}
	return &cffProgram{font: f, info: info}, nil
}

func (p *cffProgram) outline(gid uint16) ([]Segment, bool) {
	segs, _, err := p.font.LoadGlyph(gid)
	if err != nil {
		return nil, false
	}
	return convertOT(segs, p.info.fontMatrix), true
}

func (p *cffProgram) advance(uint16) float64 { return 0 }

func (p *cffProgram) byRune(r rune) (uint16, bool) { return p.byName(RuneGlyphName(r)) }

func (p *cffProgram) byName(name string) (uint16, bool) {
	p.once.Do(func() {
		p.names = make(map[string]uint16, len(p.font.Charstrings))
		for gid := range p.font.Charstrings {
			if n := p.font.GlyphName(ot.GID(gid)); n != "" {
				p.names[n] = uint16(gid)
			}
		}
	})
	gid, ok := p.names[name]
	return gid, ok
}

// byCID maps a CID of a CID-keyed program through its charset.
func (p *cffProgram) byCID(cid uint32) uint16 {
	if p.info.cidToGID == nil {
		return uint16(cid)
	}
	return p.info.cidToGID[cid]
}

func convertOT(segs []ot.Segment, m coords.Matrix) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i].Op = SegmentOp(s.Op)
		for j, a := range s.ArgsSlice() {
			out[i].Pts[j] = m.Transform(coords.Point{X: float64(a.X), Y: float64(a.Y)})
		}
	}
	return out
}

// fallbackProgram draws non-embedded fonts with a Go font face.
type fallbackProgram struct {
	font *sfnt.Font
	upem float64
}

var (
	fallbackMu    sync.Mutex
	fallbackFaces = make(map[string]*fallbackProgram)
)

var fallbackData = map[string][]byte{
	"regular":        goregular.TTF,
	"bold":           gobold.TTF,
	"italic":         goitalic.TTF,
	"bolditalic":     gobolditalic.TTF,
	"mono":           gomono.TTF,
	"monobold":       gomonobold.TTF,
	"monoitalic":     gomonoitalic.TTF,
	"monobolditalic": gomonobolditalic.TTF,
}

// fallbackStyle picks a Go font for a PDF font name and descriptor traits.
func fallbackStyle(baseFont string, fixed, bold, italic bool) string {
	name := strings.ToLower(baseFont)
	if strings.Contains(name, "courier") || strings.Contains(name, "mono") {
		fixed = true
	}
	if strings.Contains(name, "bold") || strings.Contains(name, "black") || strings.Contains(name, "heavy") {
		bold = true
	}
	if strings.Contains(name, "italic") || strings.Contains(name, "oblique") {
		italic = true
	}
	style := ""
	if fixed {
		style = "mono"
	}
	if bold {
		style += "bold"
	}
	if italic {
		style += "italic"
	}
	if style == "" {
		style = "regular"
	}
	return style
}

func loadFallback(style string) (*fallbackProgram, error) {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	if p, ok := fallbackFaces[style]; ok {
		return p, nil
	}
	data, ok := fallbackData[style]
	if !ok {
		data = goregular.TTF
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, err
	}
	p := &fallbackProgram{font: f, upem: float64(f.UnitsPerEm())}
	fallbackFaces[style] = p
	return p, nil
}

func (p *fallbackProgram) ppem() fixed.Int26_6 { return fixed.Int26_6(int(p.upem) << 6) }

func (p *fallbackProgram) outline(gid uint16) ([]Segment, bool) {
	var buf sfnt.Buffer
	segs, err := p.font.LoadGlyph(&buf, sfnt.GlyphIndex(gid), p.ppem(), nil)
	if err != nil {
		return nil, false
	}
	k := 1 / (64 * p.upem)
	out := make([]Segment, len(segs))
	for i, s := range segs {
		n := 1
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			out[i].Op = MoveTo
		case sfnt.SegmentOpLineTo:
			out[i].Op = LineTo
		case sfnt.SegmentOpQuadTo:
			out[i].Op, n = QuadTo, 2
		case sfnt.SegmentOpCubeTo:
			out[i].Op, n = CubeTo, 3
		}
		for j := 0; j < n; j++ {
			out[i].Pts[j] = coords.Point{X: float64(s.Args[j].X) * k, Y: -float64(s.Args[j].Y) * k}
		}
	}
	return out, true
}

func (p *fallbackProgram) advance(gid uint16) float64 {
	var buf sfnt.Buffer
	adv, err := p.font.GlyphAdvance(&buf, sfnt.GlyphIndex(gid), p.ppem(), xfont.HintingNone)
	if err != nil {
		return 0
	}
	return float64(adv) / (64 * p.upem)
}

func (p *fallbackProgram) byRune(r rune) (uint16, bool) {
	var buf sfnt.Buffer
	gid, err := p.font.GlyphIndex(&buf, r)
	if err != nil || gid == 0 {
		return 0, false
	}
	return uint16(gid), true
}

func (p *fallbackProgram) byName(name string) (uint16, bool) {
	text, ok := GlyphRune(name)
	if !ok {
		return 0, false
	}
	r := []rune(text)
	if len(r) != 1 {
		return 0, false
	}
	return p.byRune(r[0])
}
