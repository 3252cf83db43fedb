package fonts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pagekit/internal/testpdf"
	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/parser"
)

func openWith(t *testing.T, add func(b *testpdf.Builder) int) (*parser.Document, raw.Object) {
	t.Helper()
	b := testpdf.Pages(testpdf.Page{})
	ref := add(b)
	doc, err := parser.Open(context.Background(), b.Bytes(testpdf.Options{}), parser.DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc, raw.Ref(ref, 0)
}

type charSummary struct {
	Code  uint32
	Width float64
	Text  string
	Space bool
}

func summarize(chars []Char) []charSummary {
	out := make([]charSummary, len(chars))
	for i, c := range chars {
		out[i] = charSummary{c.Code, c.Width, c.Text, c.Space}
	}
	return out
}

func TestSimpleFontWinAnsi(t *testing.T) {
	doc, ref := openWith(t, func(b *testpdf.Builder) int {
		return b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 34 /Widths [278 500 600] >>")
	})
	f, err := Load(context.Background(), doc, ref, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := summarize(f.Decode([]byte(" !\x22\x80")))
	want := []charSummary{
		{32, 0.278, " ", true},
		{33, 0.5, "!", false},
		{34, 0.6, "\"", false},
		{0x80, 0, "€", false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decode mismatch (-want +got):\n%s", diff)
	}
	if f.Embedded {
		t.Fatal("Helvetica is not embedded")
	}
	segs, ok := f.Outline(f.Decode([]byte("H"))[0])
	if !ok || len(segs) == 0 {
		t.Fatal("expected a substitute outline for H")
	}
}

func TestSimpleFontDifferences(t *testing.T) {
	doc, ref := openWith(t, func(b *testpdf.Builder) int {
		return b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Times-Bold /Encoding << /BaseEncoding /WinAnsiEncoding /Differences [65 /bullet /uni20AC 90 /f_i] >> >>")
	})
	f, err := Load(context.Background(), doc, ref, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var text string
	for _, c := range f.Decode([]byte("ABCZ")) {
		text += c.Text
	}
	if text != "•€Cfi" {
		t.Fatalf("text = %q", text)
	}
	if w := f.Decode([]byte("C"))[0].Width; w <= 0 {
		t.Fatalf("standard font without /Widths should use face advances, got %v", w)
	}
}

const toUnicode = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CMapName /Test-UCS def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
1 beginbfchar
<0003> <0041>
endbfchar
2 beginbfrange
<0010> <0012> <0061>
<0020> <0021> [<00660069> <D83DDE00>]
endbfrange
endcmap
CMapName currentdict /CMap defineresource pop
end
end
`

func TestType0Identity(t *testing.T) {
	doc, ref := openWith(t, func(b *testpdf.Builder) int {
		tu := b.AddStream("", []byte(toUnicode))
		cid := b.Add("<< /Type /Font /Subtype /CIDFontType2 /BaseFont /Test /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> /W [3 [600] 16 18 250] >>")
		return b.Add(fmt.Sprintf("<< /Type /Font /Subtype /Type0 /BaseFont /Test /Encoding /Identity-H /DescendantFonts [%d 0 R] /ToUnicode %d 0 R >>", cid, tu))
	})
	f, err := Load(context.Background(), doc, ref, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := summarize(f.Decode([]byte("\x00\x03\x00\x11\x00\x20\x00\x21\x00\x05")))
	want := []charSummary{
		{3, 0.6, "A", false},
		{0x11, 0.25, "b", false},
		{0x20, 1, "fi", false},
		{0x21, 1, "😀", false},
		{5, 1, "", false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decode mismatch (-want +got):\n%s", diff)
	}
}

func TestFontCache(t *testing.T) {
	doc, ref := openWith(t, func(b *testpdf.Builder) int {
		return b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>")
	})
	c := NewCache(doc, nil)
	a, err := c.Load(context.Background(), ref)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, _ := c.Load(context.Background(), ref)
	if a != b {
		t.Fatal("expected cached font")
	}
	if _, err := c.Load(context.Background(), raw.NumberInt(3)); err == nil {
		t.Fatal("expected error for non-dictionary")
	}
}

func TestCMapMixedCodespace(t *testing.T) {
	cm, err := ParseCMap([]byte(`2 begincodespacerange
<00> <80>
<8140> <9FFC>
endcodespacerange
1 begincidrange
<8140> <8142> 633
endcidrange
1 begincidchar
<41> 34
endcidchar`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := []byte("\x41\x81\x41\xff")
	var cids []uint32
	for len(s) > 0 {
		code, n := cm.Next(s)
		cid, _ := cm.CID(code, n)
		cids = append(cids, cid)
		s = s[n:]
	}
	if diff := cmp.Diff([]uint32{34, 634, 0}, cids); diff != "" {
		t.Fatalf("cids (-want +got):\n%s", diff)
	}
}

func TestDecodeTextString(t *testing.T) {
	tests := map[string]string{
		"\xfe\xff\x00A\x00\xe9": "Aé",
		"\xef\xbb\xbfhé":       "hé",
		"a\x93b\x80":           "aﬁb•",
	}
	for in, want := range tests {
		if got := DecodeTextString([]byte(in)); got != want {
			t.Errorf("DecodeTextString(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGlyphRune(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"A", "A", true},
		{"uni00410042", "AB", true},
		{"f_i", "fi", true},
		{"a.sc", "a", true},
		{"u1F600", "😀", true},
		{"Euro", "€", true},
		{"g123", "", false},
	}
	for _, tt := range tests {
		got, ok := GlyphRune(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("GlyphRune(%q) = %q, %v", tt.name, got, ok)
		}
	}
	if RuneGlyphName('é') != "eacute" || RuneGlyphName('Ж') != "uni0416" {
		t.Errorf("RuneGlyphName: %q %q", RuneGlyphName('é'), RuneGlyphName('Ж'))
	}
}

func TestParseCFFInfo(t *testing.T) {
	int32op := func(v int) []byte {
		b := []byte{29, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], uint32(v))
		return b
	}
	milli := []byte{30, 0x0a, 0x00, 0x05, 0xff} // 0.0005
	const headerAndNames = 4 + 9
	const charStrings = headerAndNames + 38
	const charset = charStrings + 10

	var dict []byte
	dict = append(dict, milli...)
	dict = append(dict, 139, 139)
	dict = append(dict, milli...)
	dict = append(dict, 139, 139, 12, 7)
	dict = append(dict, 139, 139, 139, 12, 30)
	dict = append(dict, int32op(charStrings)...)
	dict = append(dict, 17)
	dict = append(dict, int32op(charset)...)
	dict = append(dict, 15)

	var buf bytes.Buffer
	buf.Write([]byte{1, 0, 4, 1})
	buf.Write([]byte{0, 1, 1, 1, 5})
	buf.WriteString("Test")
	buf.Write([]byte{0, 1, 1, 1, byte(1 + len(dict))})
	buf.Write(dict)
	if buf.Len() != charStrings {
		t.Fatalf("fixture layout: charstrings at %d", buf.Len())
	}
	buf.Write([]byte{0, 3, 1, 1, 2, 3, 4, 14, 14, 14})
	buf.Write([]byte{0, 0, 5, 0, 9})

	info, err := parseCFFInfo(buf.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.name != "Test" || !info.cidKeyed || info.fontMatrix[0] != 0.0005 || info.fontMatrix[3] != 0.0005 {
		t.Fatalf("info: %+v", info)
	}
	if diff := cmp.Diff(map[uint32]uint16{0: 0, 5: 1, 9: 2}, info.cidToGID); diff != "" {
		t.Fatalf("charset (-want +got):\n%s", diff)
	}
}
