package fonts

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// glyphNames maps Adobe glyph names of the Latin character sets to runes.
var glyphNames = map[string]rune{
	"space": 0x0020, "exclam": 0x0021, "quotedbl": 0x0022, "numbersign": 0x0023,
	"dollar": 0x0024, "percent": 0x0025, "ampersand": 0x0026, "quotesingle": 0x0027,
	"parenleft": 0x0028, "parenright": 0x0029, "asterisk": 0x002a, "plus": 0x002b,
	"comma": 0x002c, "hyphen": 0x002d, "period": 0x002e, "slash": 0x002f,
	"zero": 0x0030, "one": 0x0031, "two": 0x0032, "three": 0x0033,
	"four": 0x0034, "five": 0x0035, "six": 0x0036, "seven": 0x0037,
	"eight": 0x0038, "nine": 0x0039, "colon": 0x003a, "semicolon": 0x003b,
	"less": 0x003c, "equal": 0x003d, "greater": 0x003e, "question": 0x003f,
	"at": 0x0040, "A": 0x0041, "B": 0x0042, "C": 0x0043,
	"D": 0x0044, "E": 0x0045, "F": 0x0046, "G": 0x0047,
	"H": 0x0048, "I": 0x0049, "J": 0x004a, "K": 0x004b,
	"L": 0x004c, "M": 0x004d, "N": 0x004e, "O": 0x004f,
	"P": 0x0050, "Q": 0x0051, "R": 0x0052, "S": 0x0053,
	"T": 0x0054, "U": 0x0055, "V": 0x0056, "W": 0x0057,
	"X": 0x0058, "Y": 0x0059, "Z": 0x005a, "bracketleft": 0x005b,
	"backslash": 0x005c, "bracketright": 0x005d, "asciicircum": 0x005e, "underscore": 0x005f,
	"grave": 0x0060, "a": 0x0061, "b": 0x0062, "c": 0x0063,
	"d": 0x0064, "e": 0x0065, "f": 0x0066, "g": 0x0067,
	"h": 0x0068, "i": 0x0069, "j": 0x006a, "k": 0x006b,
	"l": 0x006c, "m": 0x006d, "n": 0x006e, "o": 0x006f,
	"p": 0x0070, "q": 0x0071, "r": 0x0072, "s": 0x0073,
	"t": 0x0074, "u": 0x0075, "v": 0x0076, "w": 0x0077,
	"x": 0x0078, "y": 0x0079, "z": 0x007a, "braceleft": 0x007b,
	"bar": 0x007c, "braceright": 0x007d, "asciitilde": 0x007e, "nbspace": 0x00a0,
	"exclamdown": 0x00a1, "cent": 0x00a2, "sterling": 0x00a3, "currency": 0x00a4,
	"yen": 0x00a5, "brokenbar": 0x00a6, "section": 0x00a7, "dieresis": 0x00a8,
	"copyright": 0x00a9, "ordfeminine": 0x00aa, "guillemotleft": 0x00ab, "logicalnot": 0x00ac,
	"sfthyphen": 0x00ad, "registered": 0x00ae, "macron": 0x00af, "degree": 0x00b0,
	"plusminus": 0x00b1, "twosuperior": 0x00b2, "threesuperior": 0x00b3, "acute": 0x00b4,
	"mu": 0x00b5, "paragraph": 0x00b6, "periodcentered": 0x00b7, "cedilla": 0x00b8,
	"onesuperior": 0x00b9, "ordmasculine": 0x00ba, "guillemotright": 0x00bb, "onequarter": 0x00bc,
	"onehalf": 0x00bd, "threequarters": 0x00be, "questiondown": 0x00bf, "Agrave": 0x00c0,
	"Aacute": 0x00c1, "Acircumflex": 0x00c2, "Atilde": 0x00c3, "Adieresis": 0x00c4,
	"Aring": 0x00c5, "AE": 0x00c6, "Ccedilla": 0x00c7, "Egrave": 0x00c8,
	"Eacute": 0x00c9, "Ecircumflex": 0x00ca, "Edieresis": 0x00cb, "Igrave": 0x00cc,
	"Iacute": 0x00cd, "Icircumflex": 0x00ce, "Idieresis": 0x00cf, "Eth": 0x00d0,
	"Ntilde": 0x00d1, "Ograve": 0x00d2, "Oacute": 0x00d3, "Ocircumflex": 0x00d4,
	"Otilde": 0x00d5, "Odieresis": 0x00d6, "multiply": 0x00d7, "Oslash": 0x00d8,
	"Ugrave": 0x00d9, "Uacute": 0x00da, "Ucircumflex": 0x00db, "Udieresis": 0x00dc,
	"Yacute": 0x00dd, "Thorn": 0x00de, "germandbls": 0x00df, "agrave": 0x00e0,
	"aacute": 0x00e1, "acircumflex": 0x00e2, "atilde": 0x00e3, "adieresis": 0x00e4,
	"aring": 0x00e5, "ae": 0x00e6, "ccedilla": 0x00e7, "egrave": 0x00e8,
	"eacute": 0x00e9, "ecircumflex": 0x00ea, "edieresis": 0x00eb, "igrave": 0x00ec,
	"iacute": 0x00ed, "icircumflex": 0x00ee, "idieresis": 0x00ef, "eth": 0x00f0,
	"ntilde": 0x00f1, "ograve": 0x00f2, "oacute": 0x00f3, "ocircumflex": 0x00f4,
	"otilde": 0x00f5, "odieresis": 0x00f6, "divide": 0x00f7, "oslash": 0x00f8,
	"ugrave": 0x00f9, "uacute": 0x00fa, "ucircumflex": 0x00fb, "udieresis": 0x00fc,
	"yacute": 0x00fd, "thorn": 0x00fe, "ydieresis": 0x00ff, "Abreve": 0x0102,
	"abreve": 0x0103, "Aogonek": 0x0104, "aogonek": 0x0105, "Cacute": 0x0106,
	"cacute": 0x0107, "Ccaron": 0x010c, "ccaron": 0x010d, "Dcaron": 0x010e,
	"dcaron": 0x010f, "Dcroat": 0x0110, "dcroat": 0x0111, "Eogonek": 0x0118,
	"eogonek": 0x0119, "Ecaron": 0x011a, "ecaron": 0x011b, "Gbreve": 0x011e,
	"gbreve": 0x011f, "Idotaccent": 0x0130, "dotlessi": 0x0131, "Lacute": 0x0139,
	"lacute": 0x013a, "Lcaron": 0x013d, "lcaron": 0x013e, "Lslash": 0x0141,
	"lslash": 0x0142, "Nacute": 0x0143, "nacute": 0x0144, "Ncaron": 0x0147,
	"ncaron": 0x0148, "Ohungarumlaut": 0x0150, "ohungarumlaut": 0x0151, "OE": 0x0152,
	"oe": 0x0153, "Racute": 0x0154, "racute": 0x0155, "Rcaron": 0x0158,
	"rcaron": 0x0159, "Sacute": 0x015a, "sacute": 0x015b, "Scedilla": 0x015e,
	"scedilla": 0x015f, "Scaron": 0x0160, "scaron": 0x0161, "Tcaron": 0x0164,
	"tcaron": 0x0165, "Uring": 0x016e, "uring": 0x016f, "Uhungarumlaut": 0x0170,
	"uhungarumlaut": 0x0171, "Ydieresis": 0x0178, "Zacute": 0x0179, "zacute": 0x017a,
	"Zdotaccent": 0x017b, "zdotaccent": 0x017c, "Zcaron": 0x017d, "zcaron": 0x017e,
	"florin": 0x0192, "dotlessj": 0x0237, "circumflex": 0x02c6, "caron": 0x02c7,
	"breve": 0x02d8, "dotaccent": 0x02d9, "ring": 0x02da, "ogonek": 0x02db,
	"tilde": 0x02dc, "hungarumlaut": 0x02dd, "pi": 0x03c0, "endash": 0x2013,
	"emdash": 0x2014, "quoteleft": 0x2018, "quoteright": 0x2019, "quotesinglbase": 0x201a,
	"quotedblleft": 0x201c, "quotedblright": 0x201d, "quotedblbase": 0x201e, "dagger": 0x2020,
	"daggerdbl": 0x2021, "bullet": 0x2022, "onedotenleader": 0x2024, "twodotenleader": 0x2025,
	"ellipsis": 0x2026, "perthousand": 0x2030, "guilsinglleft": 0x2039, "guilsinglright": 0x203a,
	"fraction": 0x2044, "Euro": 0x20ac, "trademark": 0x2122, "Omega": 0x2126,
	"partialdiff": 0x2202, "Delta": 0x2206, "product": 0x220f, "summation": 0x2211,
	"minus": 0x2212, "radical": 0x221a, "infinity": 0x221e, "integral": 0x222b,
	"approxequal": 0x2248, "notequal": 0x2260, "lessequal": 0x2264, "greaterequal": 0x2265,
	"lozenge": 0x25ca, "commaaccent": 0xf6c3, "apple": 0xf8ff, "ff": 0xfb00,
	"fi": 0xfb01, "fl": 0xfb02, "ffi": 0xfb03, "ffl": 0xfb04,
}

var runeNames = func() map[rune]string {
	m := make(map[rune]string, len(glyphNames))
	for name, r := range glyphNames {
		if prev, ok := m[r]; !ok || name < prev {
			m[r] = name
		}
	}
	return m
}()

// GlyphRune returns the text a glyph name stands for. Besides the named
// glyphs it understands uniXXXX sequences, uXXXX[XX] and the ".suffix" and
// "a_b" ligature conventions.
func GlyphRune(name string) (string, bool) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if strings.Contains(name, "_") {
		var sb strings.Builder
		for _, part := range strings.Split(name, "_") {
			s, ok := GlyphRune(part)
			if !ok {
				return "", false
			}
			sb.WriteString(s)
		}
		return sb.String(), true
	}
	if r, ok := glyphNames[name]; ok {
		return string(r), true
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 && (len(name)-3)%4 == 0 {
		var sb strings.Builder
		for i := 3; i < len(name); i += 4 {
			v, err := strconv.ParseUint(name[i:i+4], 16, 32)
			if err != nil {
				return "", false
			}
			sb.WriteRune(rune(v))
		}
		return sb.String(), true
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil && utf8.ValidRune(rune(v)) {
			return string(rune(v)), true
		}
	}
	return "", false
}

// RuneGlyphName returns the glyph name conventionally used for r.
func RuneGlyphName(r rune) string {
	if n, ok := runeNames[r]; ok {
		return n
	}
	if r > 0xffff {
		return fmt.Sprintf("u%X", r)
	}
	return fmt.Sprintf("uni%04X", r)
}
