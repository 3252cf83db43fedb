package fonts

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding maps single byte codes to runes. Zero marks an unmapped code.
type Encoding [256]rune

var (
	StandardEncoding = standardEncoding()
	WinAnsiEncoding  = winAnsiEncoding()
	MacRomanEncoding = macRomanEncoding()
	PDFDocEncoding   = pdfDocEncoding()
)

// EncodingByName returns the predefined encoding for a PDF /Encoding name.
func EncodingByName(name string) (*Encoding, bool) {
	switch name {
	case "StandardEncoding":
		return &StandardEncoding, true
	case "WinAnsiEncoding":
		return &WinAnsiEncoding, true
	case "MacRomanEncoding":
		return &MacRomanEncoding, true
	case "PDFDocEncoding":
		return &PDFDocEncoding, true
	}
	return nil, false
}

func ascii() Encoding {
	var e Encoding
	for c := 0x20; c < 0x7f; c++ {
		e[c] = rune(c)
	}
	return e
}

func standardEncoding() Encoding {
	e := ascii()
	e[0x27] = '’'
	e[0x60] = '‘'
	high := map[byte]string{
		0xa1: "exclamdown", 0xa2: "cent", 0xa3: "sterling", 0xa4: "fraction", 0xa5: "yen",
		0xa6: "florin", 0xa7: "section", 0xa8: "currency", 0xa9: "quotesingle", 0xaa: "quotedblleft",
		0xab: "guillemotleft", 0xac: "guilsinglleft", 0xad: "guilsinglright", 0xae: "fi", 0xaf: "fl",
		0xb1: "endash", 0xb2: "dagger", 0xb3: "daggerdbl", 0xb4: "periodcentered", 0xb6: "paragraph",
		0xb7: "bullet", 0xb8: "quotesinglbase", 0xb9: "quotedblbase", 0xba: "quotedblright",
		0xbb: "guillemotright", 0xbc: "ellipsis", 0xbd: "perthousand", 0xbf: "questiondown",
		0xc1: "grave", 0xc2: "acute", 0xc3: "circumflex", 0xc4: "tilde", 0xc5: "macron", 0xc6: "breve",
		0xc7: "dotaccent", 0xc8: "dieresis", 0xca: "ring", 0xcb: "cedilla", 0xcd: "hungarumlaut",
		0xce: "ogonek", 0xcf: "caron", 0xd0: "emdash", 0xe1: "AE", 0xe3: "ordfeminine", 0xe8: "Lslash",
		0xe9: "Oslash", 0xea: "OE", 0xeb: "ordmasculine", 0xf1: "ae", 0xf5: "dotlessi", 0xf8: "lslash",
		0xf9: "oslash", 0xfa: "oe", 0xfb: "germandbls",
	}
	for code, name := range high {
		e[code] = glyphNames[name]
	}
	return e
}

func fromCharmap(cm *charmap.Charmap) Encoding {
	e := ascii()
	for c := 0x80; c < 0x100; c++ {
		r := cm.DecodeByte(byte(c))
		if r != utf8.RuneError && (r < 0x80 || r > 0x9f) {
			e[c] = r
		}
	}
	return e
}

func winAnsiEncoding() Encoding {
	e := fromCharmap(charmap.Windows1252)
	for c := 0x80; c < 0xa0; c++ {
		if e[c] == 0 {
			e[c] = '•'
		}
	}
	e[0xa0] = ' '
	e[0xad] = '-'
	return e
}

func macRomanEncoding() Encoding {
	e := fromCharmap(charmap.Macintosh)
	e[0xdb] = '¤'
	return e
}

func pdfDocEncoding() Encoding {
	e := ascii()
	for c := 0xa1; c < 0x100; c++ {
		e[c] = rune(c)
	}
	e[0xad] = 0
	e['\t'], e['\n'], e['\r'] = '\t', '\n', '\r'
	copy(e[0x18:0x20], []rune{'˘', 'ˇ', 'ˆ', '˙', '˝', '˛', '˚', '˜'})
	copy(e[0x80:0xa1], []rune{
		'•', '†', '‡', '…', '—', '–', 'ƒ', '⁄',
		'‹', '›', '−', '‰', '„', '“', '”', '‘',
		'’', '‚', '™', 'ﬁ', 'ﬂ', 'Ł', 'Œ', 'Š',
		'Ÿ', 'Ž', 'ı', 'ł', 'œ', 'š', 'ž', 0,
		'€',
	})
	return e
}

// DecodeTextString decodes a PDF text string: UTF-16BE or UTF-8 when
// marked by a byte order mark, PDFDocEncoding otherwise.
func DecodeTextString(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte{0xfe, 0xff}):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(b)
		if err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, []byte{0xef, 0xbb, 0xbf}):
		return string(b[3:])
	}
	var sb []rune
	for _, c := range b {
		if r := PDFDocEncoding[c]; r != 0 {
			sb = append(sb, r)
		}
	}
	return string(sb)
}
