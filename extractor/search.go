package extractor

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pagekit/coords"
)

// fold maps text to the form compared by FindText: compatibility
// decomposition splits ligatures and full case folding removes case.
func fold(s string) []rune {
	return []rune(cases.Fold().String(norm.NFKC.String(s)))
}

// FindText returns the boxes of every occurrence of needle, scanning lines
// top to bottom. Matching ignores case and does not span lines; after a
// match the scan resumes at its end, so matches never overlap.
func (tp *TextPage) FindText(needle string) []coords.Rect {
	out := []coords.Rect{}
	pat := fold(needle)
	if len(pat) == 0 {
		return out
	}
	for _, l := range tp.lines {
		runes, owners := l.folded()
		for i := 0; i+len(pat) <= len(runes); {
			if !matchAt(runes, pat, i) {
				i++
				continue
			}
			var box coords.Rect
			found := false
			for _, c := range owners[i : i+len(pat)] {
				if c == nil {
					continue
				}
				if !found {
					box, found = c.Box, true
				} else {
					box = box.Union(c.Box)
				}
			}
			if found {
				out = append(out, box)
			}
			i += len(pat)
		}
	}
	return out
}

func matchAt(runes, pat []rune, i int) bool {
	for j, r := range pat {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}

// folded returns the folded text of the line with the character each rune
// came from; word separators map to nil.
func (l Line) folded() ([]rune, []*Char) {
	var runes []rune
	var owners []*Char
	for wi := range l.Words {
		if wi > 0 {
			runes = append(runes, ' ')
			owners = append(owners, nil)
		}
		w := &l.Words[wi]
		for ci := range w.Chars {
			for _, r := range fold(w.Chars[ci].Text) {
				runes = append(runes, r)
				owners = append(owners, &w.Chars[ci])
			}
		}
	}
	return runes, owners
}
