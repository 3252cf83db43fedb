package extractor

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/wudi/pagekit/contentstream"
	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/fonts"
	"github.com/wudi/pagekit/observability"
	"github.com/wudi/pagekit/parser"
	"github.com/wudi/pagekit/security"
)

// Char is one shown glyph with its box in page points. Boxes use a top-left
// origin on the rotated crop box, the way the page is displayed.
type Char struct {
	Text   string
	Box    coords.Rect
	Origin coords.Point
	// Size is the font size in points along the baseline.
	Size float64
	// Dir is the writing direction in quarter turns clockwise.
	Dir int
}

// Word is a run of characters without a gap wide enough to be a space.
type Word struct {
	Text  string
	Box   coords.Rect
	Chars []Char
}

// Line is a row of words sharing a baseline.
type Line struct {
	Words []Word
	Box   coords.Rect
}

// TextPage is the text layer of one page.
type TextPage struct {
	Width, Height float64
	Chars         []Char
	RawOrder      bool

	words []Word
	lines []Line
}

// Config tunes Build.
type Config struct {
	// Fonts is shared between pages of one document.
	Fonts  *fonts.Cache
	Logger observability.Logger
	Limits security.Limits
	// RawOrder keeps words in content stream order instead of reading
	// order.
	RawOrder bool
}

// Build runs the page contents and collects its text.
func Build(ctx context.Context, page *parser.Page, cfg Config) (*TextPage, error) {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	doc := page.Document()
	dev := &textDevice{}
	in := contentstream.New(doc, dev, contentstream.Config{
		Fonts:      cfg.Fonts,
		Logger:     cfg.Logger,
		Limits:     cfg.Limits,
		SkipImages: true,
	})
	if err := in.RunPage(ctx, page, coords.PageToDevice(page.CropBox, page.Rotate, 1)); err != nil {
		return nil, err
	}
	tp := &TextPage{Chars: dev.chars, RawOrder: cfg.RawOrder}
	tp.Width, tp.Height = page.CropBox.Width(), page.CropBox.Height()
	if page.Rotate == 90 || page.Rotate == 270 {
		tp.Width, tp.Height = tp.Height, tp.Width
	}
	tp.layout()
	return tp, nil
}

type textDevice struct {
	contentstream.NopDevice
	chars []Char
}

func (d *textDevice) DrawGlyph(g *contentstream.Glyph, _ *contentstream.GraphicsState) {
	if g.Char.Text == "" {
		return
	}
	f := g.Font
	box := coords.Rect{X1: 0, Y1: f.Descent, X2: g.Char.Width, Y2: f.Ascent}
	if box.X2 <= 0 {
		box.X2 = 0.5
	}
	adv := g.Trm.TransformVector(coords.Point{X: 1})
	d.chars = append(d.chars, Char{
		Text:   g.Char.Text,
		Box:    box.Transform(g.Trm),
		Origin: g.Trm.Transform(coords.Point{}),
		Size:   math.Hypot(g.Trm[2], g.Trm[3]),
		Dir:    direction(adv),
	})
}

func direction(v coords.Point) int {
	if math.Abs(v.X) >= math.Abs(v.Y) {
		if v.X >= 0 {
			return 0
		}
		return 2
	}
	if v.Y > 0 {
		return 1
	}
	return 3
}

// span projects c onto its writing direction: where it starts and ends
// along the line, and where its baseline sits across it.
func (c Char) span() (start, end, base float64) {
	switch c.Dir {
	case 1:
		return c.Box.Y1, c.Box.Y2, -c.Origin.X
	case 2:
		return -c.Box.X2, -c.Box.X1, -c.Origin.Y
	case 3:
		return -c.Box.Y2, -c.Box.Y1, c.Origin.X
	}
	return c.Box.X1, c.Box.X2, c.Origin.Y
}

func isSpace(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

const (
	// wordGap is the smallest gap, in units of font size, that separates
	// two words.
	wordGap = 0.1
	// baselineSlack is how far, in units of font size, baselines of one
	// line may differ.
	baselineSlack = 0.5
)

func (tp *TextPage) layout() {
	tp.words = groupWords(tp.Chars)
	tp.lines = groupLines(tp.words, tp.RawOrder)
	if !tp.RawOrder {
		tp.words = tp.words[:0:0]
		for _, l := range tp.lines {
			tp.words = append(tp.words, l.Words...)
		}
	}
}

func groupWords(chars []Char) []Word {
	var words []Word
	var cur []Char
	flush := func() {
		if len(cur) == 0 {
			return
		}
		w := Word{Chars: cur, Box: cur[0].Box}
		var sb strings.Builder
		for _, c := range cur {
			sb.WriteString(c.Text)
			w.Box = w.Box.Union(c.Box)
		}
		w.Text = sb.String()
		words = append(words, w)
		cur = nil
	}
	for _, c := range chars {
		if isSpace(c.Text) {
			flush()
			continue
		}
		if len(cur) > 0 && !sameWord(cur[len(cur)-1], c) {
			flush()
		}
		cur = append(cur, c)
	}
	flush()
	return words
}

func sameWord(prev, next Char) bool {
	if prev.Dir != next.Dir {
		return false
	}
	_, pEnd, pBase := prev.span()
	nStart, _, nBase := next.span()
	size := math.Max(prev.Size, next.Size)
	if math.Abs(pBase-nBase) > baselineSlack*size {
		return false
	}
	gap := nStart - pEnd
	return gap < wordGap*size && gap > -baselineSlack*size
}

// groupLines collects words into lines. In reading order lines run top to
// bottom and words left to right in the frame of their direction; in raw
// order a line is a run of consecutive words on one baseline.
func groupLines(words []Word, rawOrder bool) []Line {
	if len(words) == 0 {
		return nil
	}
	type entry struct {
		w           Word
		start, base float64
		size        float64
		dir         int
	}
	entries := make([]entry, len(words))
	for i, w := range words {
		first := w.Chars[0]
		start, _, base := first.span()
		entries[i] = entry{w: w, start: start, base: base, size: first.Size, dir: first.Dir}
	}
	if !rawOrder {
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.dir != b.dir {
				return a.dir < b.dir
			}
			return a.base < b.base
		})
	}

	var lines []Line
	var cur []entry
	flush := func() {
		if len(cur) == 0 {
			return
		}
		if !rawOrder {
			sort.SliceStable(cur, func(i, j int) bool { return cur[i].start < cur[j].start })
		}
		l := Line{Box: cur[0].w.Box}
		for _, e := range cur {
			l.Words = append(l.Words, e.w)
			l.Box = l.Box.Union(e.w.Box)
		}
		lines = append(lines, l)
		cur = nil
	}
	for _, e := range entries {
		if len(cur) > 0 {
			head := cur[0]
			if head.dir != e.dir || math.Abs(head.base-e.base) > baselineSlack*math.Max(head.size, e.size) {
				flush()
			} else if rawOrder && e.start < cur[len(cur)-1].start {
				flush()
			}
		}
		cur = append(cur, e)
	}
	flush()
	return lines
}

// Words returns the words in the order the page was built for.
func (tp *TextPage) Words() []Word { return tp.words }

// Lines returns the lines of the page.
func (tp *TextPage) Lines() []Line { return tp.lines }

// Empty reports whether the page shows no text.
func (tp *TextPage) Empty() bool { return len(tp.words) == 0 }

// Text returns the page text, one line per row.
func (tp *TextPage) Text() string {
	var sb strings.Builder
	for i, l := range tp.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for j, w := range l.Words {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w.Text)
		}
	}
	return sb.String()
}
