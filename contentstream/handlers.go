package contentstream

import (
	"context"
	"fmt"

	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/observability"
)

func registerBuiltins(in *Interpreter) {
	graphics := map[string]Handler{
		"q":  opSave,
		"Q":  opRestore,
		"cm": opConcat,
		"w":  opLineWidth,
		"J":  opLineCap,
		"j":  opLineJoin,
		"M":  opMiterLimit,
		"d":  opDash,
		"gs": opExtGState,
		"ri": opNoop,
		"i":  opNoop,
	}
	paths := map[string]Handler{
		"m":  opMoveTo,
		"l":  opLineTo,
		"c":  curveTo("c"),
		"v":  curveTo("v"),
		"y":  curveTo("y"),
		"h":  opClosePath,
		"re": opRect,
		"W":  clipWith(clipNonZero),
		"W*": clipWith(clipEvenOdd),
		"S":  paint("S"),
		"s":  paint("s"),
		"f":  paint("f"),
		"F":  paint("F"),
		"f*": paint("f*"),
		"B":  paint("B"),
		"B*": paint("B*"),
		"b":  paint("b"),
		"b*": paint("b*"),
		"n":  paint("n"),
	}
	colors := map[string]Handler{
		"CS":  colorSpaceOp(true),
		"cs":  colorSpaceOp(false),
		"SC":  colorOp(true),
		"SCN": colorOp(true),
		"sc":  colorOp(false),
		"scn": colorOp(false),
		"G":   deviceColorOp(DeviceGray, true),
		"g":   deviceColorOp(DeviceGray, false),
		"RG":  deviceColorOp(DeviceRGB, true),
		"rg":  deviceColorOp(DeviceRGB, false),
		"K":   deviceColorOp(DeviceCMYK, true),
		"k":   deviceColorOp(DeviceCMYK, false),
	}
	text := map[string]Handler{
		"BT": opBeginText,
		"ET": opEndText,
		"Tc": textParam("Tc"),
		"Tw": textParam("Tw"),
		"Tz": textParam("Tz"),
		"TL": textParam("TL"),
		"Ts": textParam("Ts"),
		"Tr": textParam("Tr"),
		"Tf": opFont,
		"Td": textMove("Td"),
		"TD": textMove("TD"),
		"T*": textMove("T*"),
		"Tm": opTextMatrix,
		"Tj": show("Tj"),
		"'":  show("'"),
		"\"": show("\""),
		"TJ": opShowArray,
		"d0": opNoop,
		"d1": opNoop,
	}
	objects := map[string]Handler{
		"Do":  opXObject,
		"BI":  opInlineImage,
		"sh":  opShading,
		"BMC": opNoop,
		"BDC": opNoop,
		"EMC": opNoop,
		"MP":  opNoop,
		"DP":  opNoop,
		"BX":  opNoop,
		"EX":  opNoop,
	}
	for _, group := range []map[string]Handler{graphics, paths, colors, text, objects} {
		for op, h := range group {
			in.RegisterHandler(op, h)
		}
	}
}

func opNoop(context.Context, *Interpreter, []raw.Object) error { return nil }

func opSave(_ context.Context, in *Interpreter, _ []raw.Object) error {
	in.saved.push(in.gs)
	return nil
}

func opRestore(_ context.Context, in *Interpreter, _ []raw.Object) error {
	if gs, ok := in.saved.pop(); ok {
		in.gs = gs
	}
	return nil
}

func matrixOf(v []float64) coords.Matrix {
	return coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
}

func opConcat(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 6)
	if err != nil {
		return err
	}
	in.gs.CTM = matrixOf(v).Multiply(in.gs.CTM)
	return nil
}

func opLineWidth(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 1)
	if err != nil {
		return err
	}
	in.gs.LineWidth = v[0]
	return nil
}

func opLineCap(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 1)
	if err != nil {
		return err
	}
	in.gs.LineCap = LineCap(clip(v[0], 0, 2))
	return nil
}

func opLineJoin(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 1)
	if err != nil {
		return err
	}
	in.gs.LineJoin = LineJoin(clip(v[0], 0, 2))
	return nil
}

func opMiterLimit(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 1)
	if err != nil {
		return err
	}
	in.gs.MiterLimit = v[0]
	return nil
}

func opDash(_ context.Context, in *Interpreter, args []raw.Object) error {
	if len(args) < 2 {
		return errOperands
	}
	in.gs.Dash = floats(args[0])
	in.gs.DashPhase, _ = raw.AsFloat(args[1])
	return nil
}

func opExtGState(ctx context.Context, in *Interpreter, args []raw.Object) error {
	n, err := name(args)
	if err != nil {
		return err
	}
	obj, ok := in.resource(ctx, in.res, "ExtGState", n)
	if !ok {
		return fmt.Errorf("ExtGState %s not found", n)
	}
	d, ok := in.resolve(ctx, obj).(*raw.DictObj)
	if !ok {
		return fmt.Errorf("ExtGState %s is not a dictionary", n)
	}
	gs := in.gs
	for _, k := range d.Keys() {
		v := in.resolve(ctx, get(d, k))
		switch k {
		case "LW":
			gs.LineWidth, _ = raw.AsFloat(v)
		case "LC":
			c, _ := raw.AsInt(v)
			gs.LineCap = LineCap(c)
		case "LJ":
			j, _ := raw.AsInt(v)
			gs.LineJoin = LineJoin(j)
		case "ML":
			gs.MiterLimit, _ = raw.AsFloat(v)
		case "D":
			if arr, ok := v.(*raw.ArrayObj); ok && arr.Len() == 2 {
				gs.Dash = floats(in.resolve(ctx, arr.Items[0]))
				gs.DashPhase, _ = raw.AsFloat(arr.Items[1])
			}
		case "ca":
			if a, ok := raw.AsFloat(v); ok {
				gs.FillAlpha = clip(a, 0, 1)
			}
		case "CA":
			if a, ok := raw.AsFloat(v); ok {
				gs.StrokeAlpha = clip(a, 0, 1)
			}
		case "BM":
			switch bm := v.(type) {
			case raw.NameObj:
				gs.Blend = blendMode(bm.Val)
			case *raw.ArrayObj:
				if bm.Len() > 0 {
					n, _ := raw.AsName(bm.Items[0])
					gs.Blend = blendMode(n)
				}
			}
		case "Font":
			if arr, ok := v.(*raw.ArrayObj); ok && arr.Len() == 2 {
				if f, err := in.fonts.Load(ctx, arr.Items[0]); err == nil {
					gs.Text.Font = f
				}
				gs.Text.Size, _ = raw.AsFloat(arr.Items[1])
			}
		}
	}
	return nil
}

// paths

func opMoveTo(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 2)
	if err != nil {
		return err
	}
	in.path.MoveTo(coords.Point{X: v[0], Y: v[1]})
	return nil
}

func opLineTo(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 2)
	if err != nil {
		return err
	}
	in.path.LineTo(coords.Point{X: v[0], Y: v[1]})
	return nil
}

// curveTo handles c, and v and y which take one control point from the
// current or the end point.
func curveTo(op string) Handler {
	n := 6
	if op != "c" {
		n = 4
	}
	return func(_ context.Context, in *Interpreter, args []raw.Object) error {
		v, err := numbers(args, n)
		if err != nil {
			return err
		}
		cur, _ := in.path.Current()
		switch op {
		case "c":
			in.path.CurveTo(coords.Point{X: v[0], Y: v[1]}, coords.Point{X: v[2], Y: v[3]}, coords.Point{X: v[4], Y: v[5]})
		case "v":
			in.path.CurveTo(cur, coords.Point{X: v[0], Y: v[1]}, coords.Point{X: v[2], Y: v[3]})
		case "y":
			end := coords.Point{X: v[2], Y: v[3]}
			in.path.CurveTo(coords.Point{X: v[0], Y: v[1]}, end, end)
		}
		return nil
	}
}

func opClosePath(_ context.Context, in *Interpreter, _ []raw.Object) error {
	in.path.Close()
	return nil
}

func opRect(_ context.Context, in *Interpreter, args []raw.Object) error {
	v, err := numbers(args, 4)
	if err != nil {
		return err
	}
	in.path.Rect(v[0], v[1], v[2], v[3])
	return nil
}

func clipWith(rule int) Handler {
	return func(_ context.Context, in *Interpreter, _ []raw.Object) error {
		in.clip = rule
		return nil
	}
}

// paint ends the path with the painting operator op, then applies a
// pending clip.
func paint(op string) Handler {
	closes := op == "s" || op == "b" || op == "b*"
	evenOdd := op == "f*" || op == "B*" || op == "b*"
	return func(_ context.Context, in *Interpreter, _ []raw.Object) error {
		if closes {
			in.path.Close()
		}
		dev := in.path.Transform(in.gs.CTM)
		switch op {
		case "f", "F", "f*":
			in.fill(dev, evenOdd)
		case "S", "s":
			in.stroke(dev)
		case "B", "B*", "b", "b*":
			in.fill(dev, evenOdd)
			in.stroke(dev)
		}
		if in.clip != clipNone && !dev.Empty() {
			in.dev.ClipPath(dev, in.gs, in.clip == clipEvenOdd)
		}
		in.clip = clipNone
		in.path.Reset()
		return nil
	}
}

func paints(cs ColorSpace) bool {
	if s, ok := cs.(*separation); ok && s.none {
		return false
	}
	return true
}

func (in *Interpreter) fill(p *Path, evenOdd bool) {
	if p.Empty() || !paints(in.gs.FillSpace) {
		return
	}
	if in.gs.FillPattern {
		in.logger.Debug("pattern fill not painted")
		return
	}
	in.dev.FillPath(p, in.gs, evenOdd)
}

func (in *Interpreter) stroke(p *Path) {
	if p.Empty() || !paints(in.gs.StrokeSpace) {
		return
	}
	if in.gs.StrokePattern {
		in.logger.Debug("pattern stroke not painted")
		return
	}
	in.dev.StrokePath(p, in.gs)
}

// colours

func colorSpaceOp(stroke bool) Handler {
	return func(ctx context.Context, in *Interpreter, args []raw.Object) error {
		if len(args) == 0 {
			return errOperands
		}
		cs, err := in.colorSpace(ctx, args[len(args)-1], in.res, 0)
		if err != nil {
			return err
		}
		in.setColor(stroke, cs, cs.Initial())
		return nil
	}
}

// colorOp sets components in the current space. In a Pattern space the
// operands end with a pattern name, preceded by tint components for
// uncoloured patterns.
func colorOp(stroke bool) Handler {
	return func(_ context.Context, in *Interpreter, args []raw.Object) error {
		cs := in.gs.FillSpace
		if stroke {
			cs = in.gs.StrokeSpace
		}
		comps := allNumbers(args)
		if p, ok := cs.(pattern); ok {
			if p.under == nil || len(comps) == 0 {
				comps = nil
			}
			in.setColor(stroke, cs, comps)
			return nil
		}
		if len(comps) < cs.Components() {
			return errOperands
		}
		in.setColor(stroke, cs, comps[:cs.Components()])
		return nil
	}
}

func (in *Interpreter) setColor(stroke bool, cs ColorSpace, comps []float64) {
	if stroke {
		in.gs.setStroke(cs, comps)
	} else {
		in.gs.setFill(cs, comps)
	}
}

func deviceColorOp(cs ColorSpace, stroke bool) Handler {
	return func(_ context.Context, in *Interpreter, args []raw.Object) error {
		v, err := numbers(args, cs.Components())
		if err != nil {
			return err
		}
		in.setColor(stroke, cs, v)
		return nil
	}
}

// XObjects and images

func opXObject(ctx context.Context, in *Interpreter, args []raw.Object) error {
	n, err := name(args)
	if err != nil {
		return err
	}
	obj, ok := in.resource(ctx, in.res, "XObject", n)
	if !ok {
		return fmt.Errorf("XObject %s not found", n)
	}
	st, ok := in.resolve(ctx, obj).(*raw.StreamObj)
	if !ok {
		return fmt.Errorf("XObject %s is not a stream", n)
	}
	ref, isRef := obj.(raw.RefObj)
	sub, _ := raw.AsName(get(st.Dict, "Subtype"))
	switch sub {
	case "Form":
		if isRef {
			if in.active[ref.R] {
				return fmt.Errorf("form %s draws itself", ref.R)
			}
			in.active[ref.R] = true
			defer delete(in.active, ref.R)
		}
		return in.runForm(ctx, st)
	case "Image":
		if in.skipImages {
			return nil
		}
		if isRef {
			if img, ok := in.images[ref.R]; ok {
				in.drawImage(img)
				return nil
			}
		}
		dec, err := in.src.DecodeStream(ctx, st)
		if err != nil {
			return fmt.Errorf("image %s: %w", n, err)
		}
		img, err := in.decodeImage(ctx, st.Dict, dec, in.res)
		if err != nil {
			in.logger.Warn("image not drawn", observability.String("name", n), observability.Error("error", err))
			return nil
		}
		if isRef {
			in.images[ref.R] = img
		}
		in.drawImage(img)
	}
	return nil
}

func (in *Interpreter) drawImage(img *Image) {
	if img.Stencil && in.gs.FillPattern {
		return
	}
	in.dev.DrawImage(img, in.gs)
}

func (in *Interpreter) runForm(ctx context.Context, st *raw.StreamObj) error {
	dec, err := in.src.DecodeStream(ctx, st)
	if err != nil {
		return fmt.Errorf("form: %w", err)
	}
	m := coords.Identity()
	if v := floats(in.resolve(ctx, get(st.Dict, "Matrix"))); len(v) == 6 {
		m = matrixOf(v)
	}
	bbox := floats(in.resolve(ctx, get(st.Dict, "BBox")))
	res, _ := in.resolve(ctx, get(st.Dict, "Resources")).(*raw.DictObj)
	return in.runNested(ctx, dec.Data, res, func(gs *GraphicsState) {
		gs.CTM = m.Multiply(gs.CTM)
		if len(bbox) == 4 {
			var p Path
			r := coords.Rect{X1: bbox[0], Y1: bbox[1], X2: bbox[2], Y2: bbox[3]}.Normalize()
			p.Rect(r.X1, r.Y1, r.Width(), r.Height())
			in.dev.ClipPath(p.Transform(gs.CTM), gs, false)
		}
	})
}

func opInlineImage(ctx context.Context, in *Interpreter, args []raw.Object) error {
	if in.skipImages || len(args) == 0 {
		return nil
	}
	st, ok := args[0].(*raw.StreamObj)
	if !ok {
		return errOperands
	}
	dec, err := in.src.DecodeStream(ctx, st)
	if err != nil {
		return fmt.Errorf("inline image: %w", err)
	}
	img, err := in.decodeImage(ctx, st.Dict, dec, in.res)
	if err != nil {
		in.logger.Warn("inline image not drawn", observability.Error("error", err))
		return nil
	}
	in.drawImage(img)
	return nil
}

func opShading(context.Context, *Interpreter, []raw.Object) error {
	return fmt.Errorf("shading fills are not painted")
}
