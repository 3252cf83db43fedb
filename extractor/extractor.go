// Package extractor pulls text, metadata, fonts and annotations out of a
// parsed document.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pagekit/fonts"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/parser"
)

// Extractor reads document level information.
type Extractor struct {
	doc *parser.Document
}

// New creates an extractor backed by the parsed document.
func New(doc *parser.Document) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	if doc.Catalog() == nil {
		return nil, errors.New("pdf catalog not found in trailer")
	}
	return &Extractor{doc: doc}, nil
}

// Metadata holds the document information dictionary and catalog flags.
type Metadata struct {
	Version    string
	Title      string
	Author     string
	Subject    string
	Keywords   string
	Creator    string
	Producer   string
	Lang       string
	Marked     bool
	Encrypted  bool
	Linearized bool
	PageCount  int
}

// Metadata aggregates the /Info dictionary, language and tagging flags.
func (e *Extractor) Metadata(ctx context.Context) Metadata {
	major, minor := e.doc.Version()
	meta := Metadata{
		Version:    fmt.Sprintf("%d.%d", major, minor),
		Encrypted:  e.doc.IsEncrypted(),
		Linearized: e.doc.IsLinearized(),
		PageCount:  e.doc.NumPages(),
	}
	if info, ok := e.doc.ResolveDict(ctx, get(e.doc.Trailer(), "Info")); ok {
		for key, dst := range map[string]*string{
			"Title": &meta.Title, "Author": &meta.Author, "Subject": &meta.Subject,
			"Keywords": &meta.Keywords, "Creator": &meta.Creator, "Producer": &meta.Producer,
		} {
			*dst = e.text(ctx, info, key)
		}
	}
	meta.Lang = e.text(ctx, e.doc.Catalog(), "Lang")
	if mark, ok := e.doc.ResolveDict(ctx, get(e.doc.Catalog(), "MarkInfo")); ok {
		meta.Marked, _ = raw.AsBool(e.resolve(ctx, get(mark, "Marked")))
	}
	return meta
}

// PageLabels returns the label of every page, or nil when the catalog has
// no /PageLabels tree.
func (e *Extractor) PageLabels(ctx context.Context) []string {
	tree, ok := e.doc.ResolveDict(ctx, get(e.doc.Catalog(), "PageLabels"))
	if !ok {
		return nil
	}
	type rangeStart struct {
		index  int
		style  string
		prefix string
		start  int
	}
	var ranges []rangeStart
	e.numberTree(ctx, tree, 0, func(key int, v raw.Object) {
		d, ok := e.doc.ResolveDict(ctx, v)
		if !ok {
			return
		}
		r := rangeStart{index: key, start: 1}
		r.style, _ = raw.AsName(e.resolve(ctx, get(d, "S")))
		r.prefix = e.text(ctx, d, "P")
		if st, ok := raw.AsInt(e.resolve(ctx, get(d, "St"))); ok && st > 0 {
			r.start = int(st)
		}
		ranges = append(ranges, r)
	})
	if len(ranges) == 0 {
		return nil
	}
	n := e.doc.NumPages()
	out := make([]string, n)
	for p := 0; p < n; p++ {
		cur := -1
		for i, r := range ranges {
			if r.index <= p && (cur < 0 || r.index >= ranges[cur].index) {
				cur = i
			}
		}
		if cur < 0 {
			out[p] = fmt.Sprint(p + 1)
			continue
		}
		r := ranges[cur]
		out[p] = r.prefix + labelNumber(r.style, r.start+p-r.index)
	}
	return out
}

func (e *Extractor) numberTree(ctx context.Context, node *raw.DictObj, depth int, visit func(int, raw.Object)) {
	if depth > 32 {
		return
	}
	if nums, ok := raw.AsArray(e.resolve(ctx, get(node, "Nums"))); ok {
		for i := 0; i+1 < nums.Len(); i += 2 {
			if k, ok := raw.AsInt(e.resolve(ctx, nums.Items[i])); ok {
				visit(int(k), nums.Items[i+1])
			}
		}
	}
	if kids, ok := raw.AsArray(e.resolve(ctx, get(node, "Kids"))); ok {
		for _, kid := range kids.Items {
			if d, ok := e.doc.ResolveDict(ctx, kid); ok {
				e.numberTree(ctx, d, depth+1, visit)
			}
		}
	}
}

func labelNumber(style string, n int) string {
	switch style {
	case "D":
		return fmt.Sprint(n)
	case "R":
		return strings.ToUpper(roman(n))
	case "r":
		return roman(n)
	case "A":
		return strings.ToUpper(letters(n))
	case "a":
		return letters(n)
	}
	return ""
}

func roman(n int) string {
	if n <= 0 {
		return ""
	}
	vals := []int{1000, 900, 500, 400, 100, 90, 50, 40, 10, 9, 5, 4, 1}
	syms := []string{"m", "cm", "d", "cd", "c", "xc", "l", "xl", "x", "ix", "v", "iv", "i"}
	var sb strings.Builder
	for i, v := range vals {
		for n >= v {
			sb.WriteString(syms[i])
			n -= v
		}
	}
	return sb.String()
}

// letters numbers pages a..z, then aa..zz and so on.
func letters(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(string(rune('a'+(n-1)%26)), (n-1)/26+1)
}

func (e *Extractor) resolve(ctx context.Context, obj raw.Object) raw.Object {
	if obj == nil {
		return nil
	}
	r, err := e.doc.Resolve(ctx, obj)
	if err != nil {
		return nil
	}
	return r
}

func (e *Extractor) text(ctx context.Context, d *raw.DictObj, key string) string {
	b, ok := raw.AsString(e.resolve(ctx, get(d, key)))
	if !ok {
		return ""
	}
	return fonts.DecodeTextString(b)
}

func get(d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return nil
	}
	v, _ := d.Get(key)
	return v
}
