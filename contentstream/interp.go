package contentstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/fonts"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/observability"
	"github.com/wudi/pagekit/parser"
	"github.com/wudi/pagekit/security"
)

// Source resolves objects and decodes streams. *parser.Document
// implements it.
type Source interface {
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
	DecodeStream(ctx context.Context, st *raw.StreamObj) (parser.Decoded, error)
}

// Glyph is one shown character.
type Glyph struct {
	Font *fonts.Font
	Char fonts.Char
	// Trm maps text space at font size 1 to device space: the glyph
	// origin is Trm.Transform(0, 0) and its advance ends at
	// Trm.Transform(Char.Width, 0).
	Trm coords.Matrix
	// Outline is the glyph in device space, nil for Type 3 glyphs and
	// fonts without a usable program.
	Outline *Path
}

// Device receives painting operations in device space.
type Device interface {
	FillPath(p *Path, gs *GraphicsState, evenOdd bool)
	StrokePath(p *Path, gs *GraphicsState)
	// ClipPath intersects the clip with p. Devices keep their clip in
	// gs.Clip so it follows q and Q.
	ClipPath(p *Path, gs *GraphicsState, evenOdd bool)
	// DrawGlyph is called for every shown glyph, whatever the render
	// mode; the glyphs of Type 3 fonts are painted through the other
	// methods afterwards.
	DrawGlyph(g *Glyph, gs *GraphicsState)
	DrawImage(img *Image, gs *GraphicsState)
}

// NopDevice ignores everything. Embed it to implement part of Device.
type NopDevice struct{}

func (NopDevice) FillPath(*Path, *GraphicsState, bool) {}
func (NopDevice) StrokePath(*Path, *GraphicsState)     {}
func (NopDevice) ClipPath(*Path, *GraphicsState, bool) {}
func (NopDevice) DrawGlyph(*Glyph, *GraphicsState)     {}
func (NopDevice) DrawImage(*Image, *GraphicsState)     {}

// Handler executes one operator.
type Handler func(ctx context.Context, in *Interpreter, args []raw.Object) error

type Config struct {
	// Fonts is shared between interpreters of one document; a private
	// cache is created when nil.
	Fonts  *fonts.Cache
	Logger observability.Logger
	Limits security.Limits
	// SkipImages leaves image XObjects and inline images undecoded.
	SkipImages bool
}

// Interpreter executes content streams against a Device. It is not safe
// for concurrent use.
type Interpreter struct {
	src        Source
	dev        Device
	fonts      *fonts.Cache
	logger     observability.Logger
	limits     security.Limits
	skipImages bool

	handlers map[string]Handler
	spaces   map[raw.ObjectRef]ColorSpace
	images   map[raw.ObjectRef]*Image

	gs       *GraphicsState
	saved    stack
	res      *raw.DictObj
	path     Path
	clip     int // pending W: 1 nonzero, 2 even-odd
	tm, tlm  coords.Matrix
	textClip *Path
	depth    int
	active   map[raw.ObjectRef]bool
}

const (
	clipNone = iota
	clipNonZero
	clipEvenOdd
)

// New returns an interpreter reading resources from src.
func New(src Source, dev Device, cfg Config) *Interpreter {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Fonts == nil {
		cfg.Fonts = fonts.NewCache(src, cfg.Logger)
	}
	in := &Interpreter{
		src:        src,
		dev:        dev,
		fonts:      cfg.Fonts,
		logger:     cfg.Logger,
		limits:     cfg.Limits.WithDefaults(),
		skipImages: cfg.SkipImages,
		handlers:   make(map[string]Handler),
		spaces:     make(map[raw.ObjectRef]ColorSpace),
		images:     make(map[raw.ObjectRef]*Image),
		active:     make(map[raw.ObjectRef]bool),
	}
	registerBuiltins(in)
	return in
}

// RegisterHandler installs h for op, replacing any built-in handler.
func (in *Interpreter) RegisterHandler(op string, h Handler) { in.handlers[op] = h }

// State returns the current graphics state.
func (in *Interpreter) State() *GraphicsState { return in.gs }

// Resources returns the resource dictionary of the stream being run.
func (in *Interpreter) Resources() *raw.DictObj { return in.res }

// RunPage interprets the page contents with ctm mapping user space to
// device space.
func (in *Interpreter) RunPage(ctx context.Context, page *parser.Page, ctm coords.Matrix) error {
	content, err := page.Contents(ctx)
	if err != nil {
		return fmt.Errorf("page contents: %w", err)
	}
	return in.Run(ctx, content, page.Resources, NewGraphicsState(ctm))
}

// RunAppearance paints an annotation appearance stream. The form's
// bounding box, mapped through its /Matrix, is fitted to rect; ctm maps
// the page's user space to device space.
func (in *Interpreter) RunAppearance(ctx context.Context, st *raw.StreamObj, rect coords.Rect, ctm coords.Matrix) error {
	m := coords.Identity()
	if v := floats(in.resolve(ctx, get(st.Dict, "Matrix"))); len(v) == 6 {
		m = matrixOf(v)
	}
	bbox := floats(in.resolve(ctx, get(st.Dict, "BBox")))
	if len(bbox) != 4 {
		return errors.New("appearance without /BBox")
	}
	box := coords.Rect{X1: bbox[0], Y1: bbox[1], X2: bbox[2], Y2: bbox[3]}.Normalize().Transform(m)
	rect = rect.Normalize()
	if box.Empty() || rect.Empty() {
		return nil
	}
	fit := coords.Translate(-box.X1, -box.Y1).
		Multiply(coords.Scale(rect.Width()/box.Width(), rect.Height()/box.Height())).
		Multiply(coords.Translate(rect.X1, rect.Y1))
	in.gs, in.res = NewGraphicsState(fit.Multiply(ctm)), nil
	in.saved = stack{}
	in.path.Reset()
	in.clip = clipNone
	return in.runForm(ctx, st)
}

// Run interprets content. Operator errors are logged and skipped; only
// cancellation of ctx stops the run early.
func (in *Interpreter) Run(ctx context.Context, content []byte, res *raw.DictObj, gs *GraphicsState) error {
	ops, err := Parse(content)
	if err != nil {
		in.logger.Warn("content stream truncated", observability.Error("error", err))
	}
	in.gs, in.res = gs, res
	in.saved = stack{}
	in.path.Reset()
	in.clip = clipNone
	return in.execute(ctx, ops)
}

func (in *Interpreter) execute(ctx context.Context, ops []Operation) error {
	for i, op := range ops {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		h, ok := in.handlers[op.Operator]
		if !ok {
			continue
		}
		args := op.Operands
		if op.Inline != nil {
			args = []raw.Object{raw.NewStream(op.Inline.Dict, op.Inline.Data)}
		}
		if err := h(ctx, in, args); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			in.logger.Debug("operator failed", observability.String("op", op.Operator), observability.Error("error", err))
		}
	}
	return nil
}

// runNested executes content in a fresh path and text context with the
// graphics state saved around it.
func (in *Interpreter) runNested(ctx context.Context, content []byte, res *raw.DictObj, setup func(gs *GraphicsState)) error {
	if in.depth >= in.limits.MaxXObjectDepth {
		return fmt.Errorf("nesting deeper than %d", in.limits.MaxXObjectDepth)
	}
	ops, err := Parse(content)
	if err != nil {
		in.logger.Warn("nested content truncated", observability.Error("error", err))
	}
	outer := struct {
		res      *raw.DictObj
		path     Path
		clip     int
		tm, tlm  coords.Matrix
		textClip *Path
		base     int
		gs       *GraphicsState
	}{in.res, in.path, in.clip, in.tm, in.tlm, in.textClip, in.saved.depth(), in.gs}

	in.gs = in.gs.Clone()
	if res != nil {
		in.res = res
	}
	in.path = Path{}
	in.clip = clipNone
	in.depth++
	setup(in.gs)
	err = in.execute(ctx, ops)
	in.depth--

	for in.saved.depth() > outer.base {
		in.saved.pop()
	}
	in.res, in.path, in.clip = outer.res, outer.path, outer.clip
	in.tm, in.tlm, in.textClip = outer.tm, outer.tlm, outer.textClip
	in.gs = outer.gs
	return err
}

func (in *Interpreter) resolve(ctx context.Context, obj raw.Object) raw.Object {
	if obj == nil {
		return nil
	}
	r, err := in.src.Resolve(ctx, obj)
	if err != nil {
		return nil
	}
	return r
}

// resource looks up name in the category sub-dictionary of res, leaving
// the entry unresolved so references can serve as cache keys.
func (in *Interpreter) resource(ctx context.Context, res *raw.DictObj, category, name string) (raw.Object, bool) {
	cat, ok := in.resolve(ctx, get(res, category)).(*raw.DictObj)
	if !ok {
		return nil, false
	}
	v, ok := cat.Get(name)
	return v, ok && v != nil
}

var errOperands = errors.New("wrong operands")

func numbers(args []raw.Object, n int) ([]float64, error) {
	if len(args) < n {
		return nil, errOperands
	}
	out := make([]float64, n)
	for i, a := range args[len(args)-n:] {
		v, ok := raw.AsFloat(a)
		if !ok {
			return nil, errOperands
		}
		out[i] = v
	}
	return out, nil
}

func allNumbers(args []raw.Object) []float64 {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		if v, ok := raw.AsFloat(a); ok {
			out = append(out, v)
		}
	}
	return out
}

func name(args []raw.Object) (string, error) {
	if len(args) == 0 {
		return "", errOperands
	}
	n, ok := raw.AsName(args[len(args)-1])
	if !ok {
		return "", errOperands
	}
	return n, nil
}
