package contentstream

import (
	"context"
	"fmt"

	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/fonts"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/observability"
)

func opBeginText(_ context.Context, in *Interpreter, _ []raw.Object) error {
	in.tm, in.tlm = coords.Identity(), coords.Identity()
	in.textClip = nil
	return nil
}

// opEndText applies the clip accumulated by the clipping render modes.
func opEndText(_ context.Context, in *Interpreter, _ []raw.Object) error {
	if in.textClip != nil {
		in.dev.ClipPath(in.textClip, in.gs, false)
		in.textClip = nil
	}
	return nil
}

func textParam(op string) Handler {
	return func(_ context.Context, in *Interpreter, args []raw.Object) error {
		v, err := numbers(args, 1)
		if err != nil {
			return err
		}
		ts := &in.gs.Text
		switch op {
		case "Tc":
			ts.CharSpace = v[0]
		case "Tw":
			ts.WordSpace = v[0]
		case "Tz":
			ts.HScale = v[0] / 100
		case "TL":
			ts.Leading = v[0]
		case "Ts":
			ts.Rise = v[0]
		case "Tr":
			if v[0] < 0 || v[0] > 7 {
				return fmt.Errorf("render mode %v", v[0])
			}
			ts.RenderMode = TextRenderMode(v[0])
		}
		return nil
	}
}

func opFont(ctx context.Context, in *Interpreter, args []raw.Object) error {
	if len(args) < 2 {
		return errOperands
	}
	size, ok := raw.AsFloat(args[1])
	if !ok {
		return errOperands
	}
	in.gs.Text.Size = size
	n, ok := raw.AsName(args[0])
	if !ok {
		return errOperands
	}
	obj, ok := in.resource(ctx, in.res, "Font", n)
	if !ok {
		in.gs.Text.Font = nil
		return fmt.Errorf("font %s not found", n)
	}
	f, err := in.fonts.Load(ctx, obj)
	if err != nil {
		in.gs.Text.Font = nil
		return fmt.Errorf("font %s: %w", n, err)
	}
	in.gs.Text.Font = f
	return nil
}

func textMove(op string) Handler {
	return func(_ context.Context, in *Interpreter, args []raw.Object) error {
		var tx, ty float64
		switch op {
		case "T*":
			ty = -in.gs.Text.Leading
		default:
			v, err := numbers(args, 2)
			if err != nil {
				return err
			}
			tx, ty = v[0], v[1]
			if op == "TD" {
				in.gs.Text.Leading = -ty
			}
		}
		in.nextLine(tx, ty)
		return nil
	}
}

func (in *Interpreter) nextLine(tx, ty float64) {
	in.tlm = coords.Translate(tx, ty).Multiply(in.tlm)
	in.tm = in.tlm
}

func opTextMatrix(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 6)
	if err != nil {
		return err
	}
	in.tm, in.tlm = matrixOf(v), matrixOf(v)
	return nil
}

// show handles Tj and the quote operators, which move to the next line
// first and, for ", set word and character spacing.
func show(op string) Handler {
	return func(ctx context.Context, in *Interpreter, args []raw.Object) error {
		if len(args) == 0 {
			return errOperands
		}
		s, ok := raw.AsString(args[len(args)-1])
		if !ok {
			return errOperands
		}
		if op == "\"" {
			v, err := numbers(args[:len(args)-1], 2)
			if err != nil {
				return err
			}
			in.gs.Text.WordSpace, in.gs.Text.CharSpace = v[0], v[1]
		}
		if op != "Tj" {
			in.nextLine(0, -in.gs.Text.Leading)
		}
		return in.showString(ctx, s)
	}
}

func opShowArray(ctx context.Context, in *Interpreter, args []raw.Object) error {
	if len(args) == 0 {
		return errOperands
	}
	arr, ok := args[len(args)-1].(*raw.ArrayObj)
	if !ok {
		return errOperands
	}
	ts := in.gs.Text
	for _, item := range arr.Items {
		if n, ok := raw.AsFloat(item); ok {
			in.tm = coords.Translate(-n/1000*ts.Size*ts.HScale, 0).Multiply(in.tm)
			continue
		}
		if s, ok := raw.AsString(item); ok {
			if err := in.showString(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in *Interpreter) showString(ctx context.Context, s []byte) error {
	ts := in.gs.Text
	if ts.Font == nil {
		return fmt.Errorf("text shown without a font")
	}
	t3 := ts.Font.Type3()
	for _, c := range ts.Font.Decode(s) {
		trm := coords.Matrix{ts.Size * ts.HScale, 0, 0, ts.Size, 0, ts.Rise}.Multiply(in.tm).Multiply(in.gs.CTM)
		g := &Glyph{Font: ts.Font, Char: c, Trm: trm}
		if t3 == nil {
			g.Outline = glyphPath(ts.Font, c, trm)
		}
		in.dev.DrawGlyph(g, in.gs)
		if ts.RenderMode.Clips() && g.Outline != nil {
			if in.textClip == nil {
				in.textClip = &Path{}
			}
			in.textClip.Append(g.Outline)
		}
		if t3 != nil && ts.RenderMode != TextInvisible && ts.RenderMode != TextClip {
			if err := in.runType3(ctx, t3, c, trm); err != nil {
				if ctx.Err() != nil {
					return err
				}
				in.logger.Debug("type3 glyph failed", observability.Int("code", int(c.Code)), observability.Error("error", err))
			}
		}

		tx := c.Width*ts.Size + ts.CharSpace
		if c.Space {
			tx += ts.WordSpace
		}
		in.tm = coords.Translate(tx*ts.HScale, 0).Multiply(in.tm)
	}
	return nil
}

func glyphPath(f *fonts.Font, c fonts.Char, trm coords.Matrix) *Path {
	segs, ok := f.Outline(c)
	if !ok || len(segs) == 0 {
		return nil
	}
	p := &Path{}
	for _, s := range segs {
		switch s.Op {
		case fonts.MoveTo:
			p.Close()
			p.MoveTo(trm.Transform(s.Pts[0]))
		case fonts.LineTo:
			p.LineTo(trm.Transform(s.Pts[0]))
		case fonts.QuadTo:
			p.QuadTo(trm.Transform(s.Pts[0]), trm.Transform(s.Pts[1]))
		case fonts.CubeTo:
			p.CurveTo(trm.Transform(s.Pts[0]), trm.Transform(s.Pts[1]), trm.Transform(s.Pts[2]))
		}
	}
	p.Close()
	return p
}

func (in *Interpreter) runType3(ctx context.Context, t3 *fonts.Type3, c fonts.Char, trm coords.Matrix) error {
	st, ok := t3.Proc(c)
	if !ok {
		return fmt.Errorf("no glyph procedure")
	}
	dec, err := in.src.DecodeStream(ctx, st)
	if err != nil {
		return err
	}
	res := t3.Resources
	if res == nil {
		res = in.res
	}
	return in.runNested(ctx, dec.Data, res, func(gs *GraphicsState) {
		gs.CTM = t3.Matrix.Multiply(trm)
	})
}
