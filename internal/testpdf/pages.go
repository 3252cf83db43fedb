package testpdf

import (
	"fmt"
	"strings"
)

// CharWidth is the advance, in thousandths of the font size, of every
// character of the /F1 font added by Pages.
const CharWidth = 500

// Page describes one page for Pages.
type Page struct {
	// MediaBox defaults to US Letter.
	MediaBox [4]float64
	CropBox  *[4]float64
	Rotate   int
	Content  string
	// Annots are annotation dictionaries in PDF syntax.
	Annots []string
	// Compress stores the content stream with /FlateDecode.
	Compress bool
}

// Pages builds a catalog with a flat page tree and a shared Helvetica
// resource named /F1.
func Pages(pages ...Page) *Builder {
	b := New()
	catalog := b.Reserve()
	tree := b.Reserve()
	widths := strings.TrimSpace(strings.Repeat(fmt.Sprintf("%d ", CharWidth), 126-32+1))
	font := b.Add(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths))

	kids := make([]string, 0, len(pages))
	for _, p := range pages {
		mb := p.MediaBox
		if mb == [4]float64{} {
			mb = [4]float64{0, 0, 612, 792}
		}
		var content int
		if p.Compress {
			content = b.AddStream("/Filter /FlateDecode", deflate([]byte(p.Content)))
		} else {
			content = b.AddStream("", []byte(p.Content))
		}
		num := b.Reserve()
		var sb strings.Builder
		fmt.Fprintf(&sb, "<< /Type /Page /Parent %d 0 R /MediaBox %s /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >>", tree, box(mb), content, font)
		if p.CropBox != nil {
			fmt.Fprintf(&sb, " /CropBox %s", box(*p.CropBox))
		}
		if p.Rotate != 0 {
			fmt.Fprintf(&sb, " /Rotate %d", p.Rotate)
		}
		if len(p.Annots) > 0 {
			refs := make([]string, len(p.Annots))
			for i, a := range p.Annots {
				refs[i] = fmt.Sprintf("%d 0 R", b.Add(a))
			}
			fmt.Fprintf(&sb, " /Annots [%s]", strings.Join(refs, " "))
		}
		sb.WriteString(" >>")
		b.Set(num, sb.String())
		b.pages = append(b.pages, num)
		kids = append(kids, fmt.Sprintf("%d 0 R", num))
	}
	b.Set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	b.Set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))
	b.Root = catalog
	b.tree = tree
	return b
}

// Document is Pages(pages...).Bytes(opts).
func Document(opts Options, pages ...Page) []byte {
	return Pages(pages...).Bytes(opts)
}

// Text returns a content stream showing s at (x, y) in /F1 at size.
func Text(x, y, size float64, s string) string {
	return fmt.Sprintf("BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, x, y, escape(s))
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}

func box(b [4]float64) string {
	return fmt.Sprintf("[%g %g %g %g]", b[0], b[1], b[2], b[3])
}

// Catalog rewrites the catalog built by Pages with extra entries appended.
func (b *Builder) Catalog(extra string) {
	b.Set(b.Root, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R %s >>", b.tree, extra))
}

// PageNumbers returns the object numbers of the pages added by Pages.
func (b *Builder) PageNumbers() []int { return append([]int(nil), b.pages...) }
