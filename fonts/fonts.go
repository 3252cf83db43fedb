// Package fonts decodes PDF font dictionaries: character codes to glyphs,
// widths and Unicode text, and glyph outlines for rendering.
package fonts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/observability"
	"github.com/wudi/pagekit/parser"
)

// Source resolves objects and decodes streams of the document a font
// dictionary belongs to. *parser.Document implements it.
type Source interface {
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
	DecodeStream(ctx context.Context, st *raw.StreamObj) (parser.Decoded, error)
}

// Font descriptor flags.
const (
	flagFixedPitch = 1 << 0
	flagSymbolic   = 1 << 2
	flagItalic     = 1 << 6
	flagForceBold  = 1 << 18
)

// Char is one decoded character code of a shown string.
type Char struct {
	Code uint32
	// Len is the number of bytes the code occupies.
	Len   int
	CID   uint32
	GID   uint16
	Width float64
	Text  string
	// Space marks the single byte code 32, which receives word spacing.
	Space bool
}

// Font is a loaded font dictionary. It is safe for concurrent use.
type Font struct {
	Name    string
	Subtype string
	// Embedded reports whether outlines come from the document rather than
	// a substitute face.
	Embedded bool
	// Ascent and Descent bound glyphs vertically in text space at size 1.
	Ascent, Descent float64

	composite bool
	encoding  *CMap
	toUnicode *CMap

	// simple fonts, indexed by code
	gids   [256]uint16
	texts  [256]string
	widths [256]float64

	// composite fonts
	cidWidths    map[uint32]float64
	defaultWidth float64
	cidToGID     []uint16
	cff          *cffProgram
	// substitute faces are indexed by Unicode rather than by CID
	substitute bool

	program glyphProgram
	// hScale stretches substitute outlines to the widths of the document.
	hScale bool

	type3 *Type3
}

// Type3 carries the glyph procedures of a Type 3 font.
type Type3 struct {
	Matrix    coords.Matrix
	Resources *raw.DictObj
	procs     *raw.DictObj
	names     [256]string
}

// Proc returns the content stream drawing c.
func (t *Type3) Proc(c Char) (*raw.StreamObj, bool) {
	if c.Code > 255 || t.names[c.Code] == "" {
		return nil, false
	}
	v, ok := t.procs.Get(t.names[c.Code])
	if !ok {
		return nil, false
	}
	st, ok := v.(*raw.StreamObj)
	return st, ok
}

// Type3 returns the glyph procedures for Type 3 fonts, nil otherwise.
func (f *Font) Type3() *Type3 { return f.type3 }

// Decode splits a shown string into characters.
func (f *Font) Decode(s []byte) []Char {
	out := make([]Char, 0, len(s))
	if !f.composite {
		for _, b := range s {
			out = append(out, Char{
				Code: uint32(b), Len: 1, CID: uint32(b), GID: f.gids[b],
				Width: f.widths[b], Text: f.texts[b], Space: b == ' ',
			})
		}
		return out
	}
	for len(s) > 0 {
		code, n := f.encoding.Next(s)
		c := Char{Code: code, Len: n, Space: n == 1 && code == ' '}
		c.CID, _ = f.encoding.CID(code, n)
		c.GID = f.gidForCID(c.CID)
		if w, ok := f.cidWidths[c.CID]; ok {
			c.Width = w
		} else {
			c.Width = f.defaultWidth
		}
		if f.toUnicode != nil {
			c.Text = f.unicode(code, n)
		}
		if f.substitute && f.program != nil {
			c.GID, _ = f.program.byRune(firstRune(c.Text))
		}
		out = append(out, c)
		s = s[n:]
	}
	return out
}

func (f *Font) unicode(code uint32, n int) string {
	if s, ok := f.toUnicode.Unicode(code, n); ok {
		return s
	}
	if n == 1 {
		s, _ := f.toUnicode.Unicode(code, 2)
		return s
	}
	return ""
}

func (f *Font) gidForCID(cid uint32) uint16 {
	switch {
	case f.cidToGID != nil:
		if int(cid) < len(f.cidToGID) {
			return f.cidToGID[cid]
		}
		return 0
	case f.cff != nil:
		return f.cff.byCID(cid)
	}
	return uint16(cid)
}

// Outline returns the glyph outline for c in text space for a font size
// of 1, before horizontal scaling. Type 3 fonts have no outlines.
func (f *Font) Outline(c Char) ([]Segment, bool) {
	if f.program == nil {
		return nil, false
	}
	segs, ok := f.program.outline(c.GID)
	if !ok || len(segs) == 0 {
		return segs, ok
	}
	if f.hScale {
		if adv := f.program.advance(c.GID); adv > 0 && c.Width > 0 {
			if k := c.Width / adv; k < 0.98 || k > 1.02 {
				m := coords.Scale(k, 1)
				for i := range segs {
					for j := range segs[i].Pts {
						segs[i].Pts[j] = m.Transform(segs[i].Pts[j])
					}
				}
			}
		}
	}
	return segs, true
}

// Cache loads each font dictionary of a document once.
type Cache struct {
	src    Source
	logger observability.Logger

	mu    sync.Mutex
	fonts map[raw.ObjectRef]*Font
}

// NewCache returns a cache loading from src.
func NewCache(src Source, logger observability.Logger) *Cache {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Cache{src: src, logger: logger, fonts: make(map[raw.ObjectRef]*Font)}
}

// Load returns the font for a font dictionary or a reference to one.
func (c *Cache) Load(ctx context.Context, obj raw.Object) (*Font, error) {
	ref, isRef := raw.AsRef(obj)
	if isRef {
		c.mu.Lock()
		f, ok := c.fonts[ref]
		c.mu.Unlock()
		if ok {
			return f, nil
		}
	}
	l := &loader{src: c.src, logger: c.logger}
	f, err := l.load(ctx, obj)
	if err != nil {
		return nil, err
	}
	if isRef {
		c.mu.Lock()
		c.fonts[ref] = f
		c.mu.Unlock()
	}
	return f, nil
}

// Load reads a font dictionary without caching.
func Load(ctx context.Context, src Source, obj raw.Object, logger observability.Logger) (*Font, error) {
	return NewCache(src, logger).Load(ctx, obj)
}

// ErrNotFont is returned when a font resource is not a dictionary.
var ErrNotFont = errors.New("not a font dictionary")

type loader struct {
	src    Source
	logger observability.Logger
}

func (l *loader) resolve(ctx context.Context, obj raw.Object) raw.Object {
	if obj == nil {
		return raw.NullObj{}
	}
	v, err := l.src.Resolve(ctx, obj)
	if err != nil {
		l.logger.Warn("font object unavailable", observability.Error("error", err))
		return raw.NullObj{}
	}
	return v
}

func (l *loader) dict(ctx context.Context, d *raw.DictObj, key string) (*raw.DictObj, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	return raw.AsDict(l.resolve(ctx, v))
}

func (l *loader) name(ctx context.Context, d *raw.DictObj, key string) string {
	v, _ := d.Get(key)
	n, _ := raw.AsName(l.resolve(ctx, v))
	return n
}

func (l *loader) number(ctx context.Context, d *raw.DictObj, key string, def float64) float64 {
	v, ok := d.Get(key)
	if !ok {
		return def
	}
	if f, ok := raw.AsFloat(l.resolve(ctx, v)); ok {
		return f
	}
	return def
}

func (l *loader) array(ctx context.Context, d *raw.DictObj, key string) []raw.Object {
	v, _ := d.Get(key)
	arr, ok := raw.AsArray(l.resolve(ctx, v))
	if !ok {
		return nil
	}
	out := make([]raw.Object, len(arr.Items))
	for i, it := range arr.Items {
		out[i] = l.resolve(ctx, it)
	}
	return out
}

func (l *loader) stream(ctx context.Context, d *raw.DictObj, key string) ([]byte, *raw.DictObj, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, nil, false
	}
	st, ok := l.resolve(ctx, v).(*raw.StreamObj)
	if !ok {
		return nil, nil, false
	}
	dec, err := l.src.DecodeStream(ctx, st)
	if err != nil || dec.Codec != "" {
		l.logger.Warn("font stream undecodable", observability.String("key", key), observability.Error("error", err))
		return nil, nil, false
	}
	return dec.Data, st.Dict, true
}

func (l *loader) load(ctx context.Context, obj raw.Object) (*Font, error) {
	d, ok := raw.AsDict(l.resolve(ctx, obj))
	if !ok {
		return nil, ErrNotFont
	}
	f := &Font{
		Subtype: l.name(ctx, d, "Subtype"), Name: l.name(ctx, d, "BaseFont"),
		Ascent: defaultAscent, Descent: defaultDescent,
	}
	if body, _, ok := l.stream(ctx, d, "ToUnicode"); ok {
		if cm, err := ParseCMap(body); err == nil {
			f.toUnicode = cm
		} else {
			l.logger.Warn("bad ToUnicode cmap", observability.String("font", f.Name), observability.Error("error", err))
		}
	}
	var err error
	switch f.Subtype {
	case "Type0":
		err = l.loadType0(ctx, f, d)
	case "Type3":
		err = l.loadType3(ctx, f, d)
	default:
		err = l.loadSimple(ctx, f, d)
	}
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", f.Name, err)
	}
	return f, nil
}

const (
	defaultAscent  = 0.95
	defaultDescent = -0.35
)

// verticalMetrics reads /Ascent and /Descent, keeping the defaults when
// they are missing or implausible.
func (l *loader) verticalMetrics(ctx context.Context, f *Font, desc *raw.DictObj) {
	asc := l.number(ctx, desc, "Ascent", 0) / 1000
	desc0 := l.number(ctx, desc, "Descent", 0) / 1000
	if asc > 0 && asc < 3 {
		f.Ascent = asc
	}
	if desc0 > 0 {
		desc0 = -desc0
	}
	if desc0 < 0 && desc0 > -3 {
		f.Descent = desc0
	}
}

type embedded struct {
	program glyphProgram
	type1   *type1Info
}

// embeddedProgram loads the font program of a descriptor. A program that
// fails to parse is dropped with a warning.
func (l *loader) embeddedProgram(ctx context.Context, desc *raw.DictObj, name string) embedded {
	if desc == nil {
		return embedded{}
	}
	warn := func(err error) embedded {
		l.logger.Warn("embedded font program unusable, substituting",
			observability.String("font", name), observability.Error("error", err))
		return embedded{}
	}
	if data, _, ok := l.stream(ctx, desc, "FontFile2"); ok {
		p, err := newSFNTProgram(data)
		if err != nil {
			return warn(err)
		}
		return embedded{program: p}
	}
	if data, dict, ok := l.stream(ctx, desc, "FontFile3"); ok {
		sub, _ := raw.AsName(get(dict, "Subtype"))
		if sub == "OpenType" || isSFNT(data) {
			p, err := newSFNTProgram(data)
			if err != nil {
				return warn(err)
			}
			return embedded{program: p}
		}
		p, err := newCFFProgram(data)
		if err != nil {
			return warn(err)
		}
		return embedded{program: p}
	}
	if data, dict, ok := l.stream(ctx, desc, "FontFile"); ok {
		n, _ := raw.AsInt(get(dict, "Length1"))
		info, err := parseType1Info(data, int(n))
		if err != nil {
			return warn(err)
		}
		return embedded{type1: info}
	}
	return embedded{}
}

func isSFNT(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch string(data[:4]) {
	case "\x00\x01\x00\x00", "OTTO", "true", "ttcf":
		return true
	}
	return false
}

func get(d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return nil
	}
	v, _ := d.Get(key)
	return v
}

func (l *loader) fallback(ctx context.Context, f *Font, desc *raw.DictObj, t1 *type1Info) glyphProgram {
	flags := int(l.number(ctx, desc, "Flags", 0))
	fixed := flags&flagFixedPitch != 0
	bold := flags&flagForceBold != 0 || l.number(ctx, desc, "FontWeight", 400) >= 600
	italic := flags&flagItalic != 0 || l.number(ctx, desc, "ItalicAngle", 0) != 0
	if t1 != nil {
		fixed = fixed || t1.FixedPitch
		bold = bold || t1.bold()
		italic = italic || t1.ItalicAngle != 0
	}
	p, err := loadFallback(fallbackStyle(f.Name, fixed, bold, italic))
	if err != nil {
		l.logger.Warn("fallback face unavailable", observability.Error("error", err))
		return nil
	}
	f.hScale = true
	return p
}

func (l *loader) loadSimple(ctx context.Context, f *Font, d *raw.DictObj) error {
	desc, _ := l.dict(ctx, d, "FontDescriptor")
	if desc == nil {
		desc = raw.Dict()
	}
	l.verticalMetrics(ctx, f, desc)
	emb := l.embeddedProgram(ctx, desc, f.Name)
	f.program = emb.program
	f.Embedded = emb.program != nil
	if f.program == nil {
		f.program = l.fallback(ctx, f, desc, emb.type1)
	}
	symbolic := int(l.number(ctx, desc, "Flags", 0))&flagSymbolic != 0

	var builtin map[int]string
	if emb.type1 != nil {
		builtin = emb.type1.BuiltinNames
	}
	names, texts := l.simpleEncoding(ctx, d, symbolic, builtin)

	for code := 0; code < 256; code++ {
		if f.toUnicode != nil {
			f.texts[code] = f.unicode(uint32(code), 1)
		}
		if f.texts[code] == "" {
			f.texts[code] = texts[code]
		}
		f.gids[code] = l.simpleGID(f, code, names[code], texts[code], symbolic)
	}

	first := int(l.number(ctx, d, "FirstChar", 0))
	widths := l.array(ctx, d, "Widths")
	missing := l.number(ctx, desc, "MissingWidth", 0) / 1000
	for code := 0; code < 256; code++ {
		i := code - first
		if i >= 0 && i < len(widths) {
			if w, ok := raw.AsFloat(widths[i]); ok {
				f.widths[code] = w / 1000
				continue
			}
		}
		if widths == nil && f.program != nil {
			f.widths[code] = f.program.advance(f.gids[code])
		} else {
			f.widths[code] = missing
		}
	}
	return nil
}

// simpleEncoding resolves /Encoding into glyph names and text per code.
func (l *loader) simpleEncoding(ctx context.Context, d *raw.DictObj, symbolic bool, builtin map[int]string) (names, texts [256]string) {
	var base *Encoding
	var diffs []raw.Object
	switch enc := l.resolve(ctx, get(d, "Encoding")).(type) {
	case raw.NameObj:
		base, _ = EncodingByName(enc.Val)
	case *raw.DictObj:
		base, _ = EncodingByName(l.name(ctx, enc, "BaseEncoding"))
		diffs = l.array(ctx, enc, "Differences")
	}
	if base == nil && builtin == nil && !symbolic {
		base = &StandardEncoding
	}
	for code := 0; code < 256; code++ {
		switch {
		case base != nil:
			if r := base[code]; r != 0 {
				names[code] = RuneGlyphName(r)
				texts[code] = string(r)
			}
		case builtin != nil:
			names[code] = builtin[code]
			texts[code], _ = GlyphRune(names[code])
		}
	}
	code := 0
	for _, it := range diffs {
		switch v := it.(type) {
		case raw.NumberObj:
			code = int(v.Int())
		case raw.NameObj:
			if code >= 0 && code < 256 {
				names[code] = v.Val
				texts[code], _ = GlyphRune(v.Val)
			}
			code++
		}
	}
	return names, texts
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func (l *loader) simpleGID(f *Font, code int, name, text string, symbolic bool) uint16 {
	p := f.program
	if p == nil {
		return 0
	}
	if name != "" {
		if gid, ok := p.byName(name); ok {
			return gid
		}
	}
	if r := firstRune(text); r != 0 {
		if gid, ok := p.byRune(r); ok {
			return gid
		}
	}
	if _, isSFNT := p.(*sfntProgram); isSFNT {
		if gid, ok := p.byRune(0xf000 + rune(code)); ok {
			return gid
		}
		if gid, ok := p.byRune(rune(code)); ok {
			return gid
		}
		if symbolic {
			return uint16(code)
		}
	}
	return 0
}

func (l *loader) loadType0(ctx context.Context, f *Font, d *raw.DictObj) error {
	f.composite = true
	switch enc := l.resolve(ctx, get(d, "Encoding")).(type) {
	case raw.NameObj:
		cm, known := PredefinedCMap(enc.Val)
		if !known {
			l.logger.Warn("predefined cmap not available, using identity", observability.String("cmap", enc.Val))
		}
		f.encoding = cm
	case *raw.StreamObj:
		dec, err := l.src.DecodeStream(ctx, enc)
		if err != nil {
			return fmt.Errorf("encoding cmap: %w", err)
		}
		cm, err := ParseCMap(dec.Data)
		if err != nil {
			return fmt.Errorf("encoding cmap: %w", err)
		}
		f.encoding = cm
	default:
		f.encoding = IdentityCMap(false)
	}

	descendants := l.array(ctx, d, "DescendantFonts")
	if len(descendants) == 0 {
		return errors.New("missing /DescendantFonts")
	}
	cid, ok := raw.AsDict(descendants[0])
	if !ok {
		return errors.New("descendant font is not a dictionary")
	}
	f.defaultWidth = l.number(ctx, cid, "DW", 1000) / 1000
	f.cidWidths = l.cidWidths(ctx, cid)

	desc, _ := l.dict(ctx, cid, "FontDescriptor")
	if desc == nil {
		desc = raw.Dict()
	}
	l.verticalMetrics(ctx, f, desc)
	emb := l.embeddedProgram(ctx, desc, f.Name)
	f.program = emb.program
	f.Embedded = emb.program != nil
	if c, ok := emb.program.(*cffProgram); ok && c.info.cidKeyed {
		f.cff = c
	}
	if f.program == nil {
		f.program = l.fallback(ctx, f, desc, nil)
	}
	if st, ok := l.resolve(ctx, get(cid, "CIDToGIDMap")).(*raw.StreamObj); ok {
		if dec, err := l.src.DecodeStream(ctx, st); err == nil {
			f.cidToGID = make([]uint16, len(dec.Data)/2)
			for i := range f.cidToGID {
				f.cidToGID[i] = uint16(dec.Data[2*i])<<8 | uint16(dec.Data[2*i+1])
			}
		}
	}
	f.substitute = !f.Embedded
	return nil
}

func (l *loader) cidWidths(ctx context.Context, d *raw.DictObj) map[uint32]float64 {
	out := make(map[uint32]float64)
	w := l.array(ctx, d, "W")
	for i := 0; i < len(w); {
		first, ok := raw.AsInt(w[i])
		if !ok || i+1 >= len(w) {
			break
		}
		if arr, ok := raw.AsArray(w[i+1]); ok {
			for j, it := range arr.Items {
				if v, ok := raw.AsFloat(l.resolve(ctx, it)); ok {
					out[uint32(first)+uint32(j)] = v / 1000
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(w) {
			break
		}
		last, ok1 := raw.AsInt(w[i+1])
		v, ok2 := raw.AsFloat(w[i+2])
		if ok1 && ok2 && last >= first && last-first < 1<<16 {
			for c := first; c <= last; c++ {
				out[uint32(c)] = v / 1000
			}
		}
		i += 3
	}
	return out
}

func (l *loader) loadType3(ctx context.Context, f *Font, d *raw.DictObj) error {
	t := &Type3{Matrix: coords.Scale(0.001, 0.001)}
	if m := l.array(ctx, d, "FontMatrix"); len(m) == 6 {
		var v [6]float64
		for i, it := range m {
			v[i], _ = raw.AsFloat(it)
		}
		t.Matrix = coords.Matrix(v)
	}
	procs, ok := l.dict(ctx, d, "CharProcs")
	if !ok {
		return errors.New("type3 font without /CharProcs")
	}
	t.procs = raw.Dict()
	for _, k := range procs.Keys() {
		v, _ := procs.Get(k)
		t.procs.Set(k, l.resolve(ctx, v))
	}
	t.Resources, _ = l.dict(ctx, d, "Resources")

	names, texts := l.simpleEncoding(ctx, d, true, nil)
	t.names = names
	first := int(l.number(ctx, d, "FirstChar", 0))
	widths := l.array(ctx, d, "Widths")
	for code := 0; code < 256; code++ {
		if f.toUnicode != nil {
			f.texts[code] = f.unicode(uint32(code), 1)
		}
		if f.texts[code] == "" {
			f.texts[code] = texts[code]
		}
		if i := code - first; i >= 0 && i < len(widths) {
			w, _ := raw.AsFloat(widths[i])
			f.widths[code] = t.Matrix.TransformVector(coords.Point{X: w}).X
		}
	}
	f.type3 = t
	return nil
}
