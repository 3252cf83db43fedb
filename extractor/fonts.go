package extractor

import (
	"context"
	"sort"

	"github.com/wudi/pagekit/ir/raw"
)

// FontInfo describes a font dictionary and the pages using it.
type FontInfo struct {
	ResourceName string
	BaseFont     string
	Subtype      string
	Encoding     string
	Embedded     bool
	HasToUnicode bool
	Pages        []int
}

// Fonts reports the distinct fonts referenced from page resources. Page
// numbers count from 1.
func (e *Extractor) Fonts(ctx context.Context) []FontInfo {
	byRef := make(map[raw.ObjectRef]*FontInfo)
	var direct []*FontInfo
	for n := 1; n <= e.doc.NumPages(); n++ {
		page, err := e.doc.Page(ctx, n)
		if err != nil {
			continue
		}
		fontDict, ok := e.doc.ResolveDict(ctx, get(page.Resources, "Font"))
		if !ok {
			continue
		}
		for _, name := range fontDict.Keys() {
			obj := get(fontDict, name)
			ref, isRef := raw.AsRef(obj)
			if isRef {
				if info, ok := byRef[ref]; ok {
					if info.Pages[len(info.Pages)-1] != n {
						info.Pages = append(info.Pages, n)
					}
					continue
				}
			}
			dict, ok := e.doc.ResolveDict(ctx, obj)
			if !ok {
				continue
			}
			info := e.fontInfo(ctx, name, dict)
			info.Pages = []int{n}
			if isRef {
				byRef[ref] = info
			} else {
				direct = append(direct, info)
			}
		}
	}
	out := make([]FontInfo, 0, len(byRef)+len(direct))
	for _, info := range byRef {
		out = append(out, *info)
	}
	for _, info := range direct {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BaseFont == out[j].BaseFont {
			return out[i].ResourceName < out[j].ResourceName
		}
		return out[i].BaseFont < out[j].BaseFont
	})
	return out
}

func (e *Extractor) fontInfo(ctx context.Context, name string, dict *raw.DictObj) *FontInfo {
	info := &FontInfo{ResourceName: name}
	info.BaseFont, _ = raw.AsName(e.resolve(ctx, get(dict, "BaseFont")))
	info.Subtype, _ = raw.AsName(e.resolve(ctx, get(dict, "Subtype")))
	switch enc := e.resolve(ctx, get(dict, "Encoding")).(type) {
	case raw.NameObj:
		info.Encoding = enc.Val
	case *raw.DictObj:
		info.Encoding, _ = raw.AsName(e.resolve(ctx, get(enc, "BaseEncoding")))
		if info.Encoding == "" {
			info.Encoding = "Differences"
		}
	}
	_, info.HasToUnicode = e.resolve(ctx, get(dict, "ToUnicode")).(*raw.StreamObj)

	desc, _ := e.doc.ResolveDict(ctx, get(dict, "FontDescriptor"))
	if info.Subtype == "Type0" {
		if kids, ok := raw.AsArray(e.resolve(ctx, get(dict, "DescendantFonts"))); ok && kids.Len() > 0 {
			if kid, ok := e.doc.ResolveDict(ctx, kids.Items[0]); ok {
				desc, _ = e.doc.ResolveDict(ctx, get(kid, "FontDescriptor"))
			}
		}
	}
	for _, k := range []string{"FontFile", "FontFile2", "FontFile3"} {
		if _, ok := e.resolve(ctx, get(desc, k)).(*raw.StreamObj); ok {
			info.Embedded = true
		}
	}
	return info
}
