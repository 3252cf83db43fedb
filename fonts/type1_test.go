package fonts

import (
	"bytes"
	"encoding/binary"
	"testing"
)

const type1Clear = `%!PS-AdobeFont-1.0: TestFont 1.0
/FontName /TestFont-BoldItalic def
/FontInfo 8 dict dup begin
/Weight (Bold) readonly def
/ItalicAngle -12 def
/isFixedPitch true def
end readonly def
/FontBBox {-50 -200 1000 900} readonly def
/Encoding 256 array
0 1 255 {1 index exch /.notdef put} for
dup 65 /Alpha put
dup 66 /B put
readonly def
currentdict end
currentfile eexec
`

func TestParseType1InfoPFA(t *testing.T) {
	data := append([]byte(type1Clear), 0xDE, 0xAD, 0xBE, 0xEF)
	info, err := parseType1Info(data, len(type1Clear))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.FontName != "TestFont-BoldItalic" || !info.bold() || info.ItalicAngle != -12 || !info.FixedPitch {
		t.Fatalf("info: %+v", info)
	}
	if info.FontBBox != [4]float64{-50, -200, 1000, 900} {
		t.Fatalf("bbox: %v", info.FontBBox)
	}
	if info.BuiltinNames[65] != "Alpha" || info.BuiltinNames[66] != "B" {
		t.Fatalf("encoding: %v", info.BuiltinNames)
	}
}

func TestParseType1InfoPFB(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x80, 0x01})
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(type1Clear)))
	buf.WriteString(type1Clear)
	buf.Write([]byte{0x80, 0x02, 4, 0, 0, 0, 0xDE, 0xAD, 0xBE, 0xEF})

	info, err := parseType1Info(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.FontName != "TestFont-BoldItalic" {
		t.Fatalf("name: %q", info.FontName)
	}

	buf.Truncate(20)
	if _, err := parseType1Info(buf.Bytes(), 0); err == nil {
		t.Fatal("expected error for truncated segment")
	}
}
