package extractor

import (
	"context"

	"github.com/wudi/pagekit/fonts"
	"github.com/wudi/pagekit/ir/raw"
)

// Bookmark describes a PDF outline entry. Page counts from 1 and is 0 when
// the destination is not a page of this document.
type Bookmark struct {
	Title    string
	Page     int
	Children []Bookmark
}

// Outline walks the document outline tree, if present.
func (e *Extractor) Outline(ctx context.Context) []Bookmark {
	root, ok := e.doc.ResolveDict(ctx, get(e.doc.Catalog(), "Outlines"))
	if !ok {
		return nil
	}
	pages := make(map[raw.ObjectRef]int)
	for n := 1; n <= e.doc.NumPages(); n++ {
		if p, err := e.doc.Page(ctx, n); err == nil {
			pages[p.Ref] = n
		}
	}
	seen := make(map[raw.ObjectRef]bool)
	return e.outlineBranch(ctx, get(root, "First"), pages, seen, 0)
}

func (e *Extractor) outlineBranch(ctx context.Context, obj raw.Object, pages map[raw.ObjectRef]int, seen map[raw.ObjectRef]bool, depth int) []Bookmark {
	var list []Bookmark
	for obj != nil && depth < 64 {
		if ref, ok := raw.AsRef(obj); ok {
			if seen[ref] {
				break
			}
			seen[ref] = true
		}
		dict, ok := e.doc.ResolveDict(ctx, obj)
		if !ok {
			break
		}
		b := Bookmark{Title: e.text(ctx, dict, "Title")}
		b.Page = e.destPage(ctx, get(dict, "Dest"), pages, 0)
		if b.Page == 0 {
			if action, ok := e.doc.ResolveDict(ctx, get(dict, "A")); ok {
				if s, _ := raw.AsName(e.resolve(ctx, get(action, "S"))); s == "GoTo" {
					b.Page = e.destPage(ctx, get(action, "D"), pages, 0)
				}
			}
		}
		b.Children = e.outlineBranch(ctx, get(dict, "First"), pages, seen, depth+1)
		list = append(list, b)
		obj = get(dict, "Next")
	}
	return list
}

func (e *Extractor) destPage(ctx context.Context, obj raw.Object, pages map[raw.ObjectRef]int, depth int) int {
	if obj == nil || depth > 4 {
		return 0
	}
	switch v := e.resolve(ctx, obj).(type) {
	case *raw.ArrayObj:
		if v.Len() == 0 {
			return 0
		}
		if ref, ok := raw.AsRef(v.Items[0]); ok {
			return pages[ref]
		}
		if n, ok := raw.AsInt(v.Items[0]); ok && int(n) < e.doc.NumPages() {
			return int(n) + 1
		}
	case *raw.DictObj:
		return e.destPage(ctx, get(v, "D"), pages, depth+1)
	case raw.NameObj:
		dests, _ := e.doc.ResolveDict(ctx, get(e.doc.Catalog(), "Dests"))
		return e.destPage(ctx, get(dests, v.Val), pages, depth+1)
	case raw.StringObj:
		return e.destPage(ctx, e.namedDest(ctx, fonts.DecodeTextString(v.Bytes)), pages, depth+1)
	}
	return 0
}

// namedDest looks name up in the /Dests name tree of the catalog.
func (e *Extractor) namedDest(ctx context.Context, name string) raw.Object {
	names, ok := e.doc.ResolveDict(ctx, get(e.doc.Catalog(), "Names"))
	if !ok {
		return nil
	}
	node, ok := e.doc.ResolveDict(ctx, get(names, "Dests"))
	for depth := 0; ok && depth < 32; depth++ {
		if arr, isArr := raw.AsArray(e.resolve(ctx, get(node, "Names"))); isArr {
			for i := 0; i+1 < arr.Len(); i += 2 {
				if k, _ := raw.AsString(e.resolve(ctx, arr.Items[i])); fonts.DecodeTextString(k) == name {
					return arr.Items[i+1]
				}
			}
		}
		kids, isArr := raw.AsArray(e.resolve(ctx, get(node, "Kids")))
		if !isArr {
			return nil
		}
		var next *raw.DictObj
		for _, kid := range kids.Items {
			kd, kok := e.doc.ResolveDict(ctx, kid)
			if !kok {
				continue
			}
			limits, _ := raw.AsArray(e.resolve(ctx, get(kd, "Limits")))
			if limits == nil || limits.Len() != 2 {
				next = kd
				break
			}
			lo, _ := raw.AsString(e.resolve(ctx, limits.Items[0]))
			hi, _ := raw.AsString(e.resolve(ctx, limits.Items[1]))
			if name >= fonts.DecodeTextString(lo) && name <= fonts.DecodeTextString(hi) {
				next = kd
				break
			}
		}
		node, ok = next, next != nil
	}
	return nil
}
