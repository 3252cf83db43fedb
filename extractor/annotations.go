package extractor

import (
	"context"

	"github.com/wudi/pagekit/coords"
	"github.com/wudi/pagekit/fonts"
	"github.com/wudi/pagekit/ir/raw"
)

// Annotation flags.
const (
	FlagInvisible = 1 << 0
	FlagHidden    = 1 << 1
	FlagNoView    = 1 << 5
)

// Resolver resolves indirect objects. *parser.Document implements it.
type Resolver interface {
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
}

// AnnotationInfo summarizes a page annotation.
type AnnotationInfo struct {
	Subtype  string
	Rect     coords.Rect
	Contents string
	URI      string
	Flags    int
	Color    []float64
	// Opacity is /CA, 1 when absent.
	Opacity float64
	// Quads holds /QuadPoints in groups of four corners.
	Quads [][4]coords.Point
	// Appearance is the normal appearance stream, nil when absent.
	Appearance *raw.StreamObj
}

// Hidden reports whether viewers do not display the annotation.
func (a AnnotationInfo) Hidden() bool {
	return a.Flags&(FlagHidden|FlagNoView) != 0
}

// DescribeAnnotation reads the fields of an annotation dictionary.
func DescribeAnnotation(ctx context.Context, r Resolver, dict *raw.DictObj) AnnotationInfo {
	res := func(obj raw.Object) raw.Object {
		if obj == nil {
			return nil
		}
		v, err := r.Resolve(ctx, obj)
		if err != nil {
			return nil
		}
		return v
	}
	info := AnnotationInfo{Opacity: 1}
	info.Subtype, _ = raw.AsName(res(get(dict, "Subtype")))
	if v := floatArray(res, res(get(dict, "Rect"))); len(v) == 4 {
		info.Rect = coords.Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}.Normalize()
	}
	if b, ok := raw.AsString(res(get(dict, "Contents"))); ok {
		info.Contents = fonts.DecodeTextString(b)
	}
	if f, ok := raw.AsInt(res(get(dict, "F"))); ok {
		info.Flags = int(f)
	}
	info.Color = floatArray(res, res(get(dict, "C")))
	if ca, ok := raw.AsFloat(res(get(dict, "CA"))); ok && ca >= 0 && ca <= 1 {
		info.Opacity = ca
	}
	q := floatArray(res, res(get(dict, "QuadPoints")))
	for i := 0; i+8 <= len(q); i += 8 {
		info.Quads = append(info.Quads, [4]coords.Point{
			{X: q[i], Y: q[i+1]}, {X: q[i+2], Y: q[i+3]},
			{X: q[i+4], Y: q[i+5]}, {X: q[i+6], Y: q[i+7]},
		})
	}
	if ap, ok := res(get(dict, "AP")).(*raw.DictObj); ok {
		switch n := res(get(ap, "N")).(type) {
		case *raw.StreamObj:
			info.Appearance = n
		case *raw.DictObj:
			state, _ := raw.AsName(res(get(dict, "AS")))
			if st, ok := res(get(n, state)).(*raw.StreamObj); ok {
				info.Appearance = st
			}
		}
	}
	info.URI = annotationURI(res, dict)
	return info
}

func floatArray(res func(raw.Object) raw.Object, obj raw.Object) []float64 {
	arr, ok := raw.AsArray(obj)
	if !ok {
		return nil
	}
	out := make([]float64, 0, arr.Len())
	for _, it := range arr.Items {
		if v, ok := raw.AsFloat(res(it)); ok {
			out = append(out, v)
		}
	}
	return out
}

func annotationURI(res func(raw.Object) raw.Object, dict *raw.DictObj) string {
	action, ok := res(get(dict, "A")).(*raw.DictObj)
	if !ok {
		return ""
	}
	if s, _ := raw.AsName(res(get(action, "S"))); s != "URI" {
		return ""
	}
	b, _ := raw.AsString(res(get(action, "URI")))
	return string(b)
}
