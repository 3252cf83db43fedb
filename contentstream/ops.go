// Package contentstream parses and executes page content streams. The
// Interpreter tracks the graphics state and reports paths, glyphs and
// images in device space to a Device.
package contentstream

import (
	"bytes"
	"errors"
	"io"

	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/recovery"
	"github.com/wudi/pagekit/scanner"
)

// Operation is one operator with the operands preceding it.
type Operation struct {
	Operator string
	Operands []raw.Object
	// Inline is set for the BI operator.
	Inline *InlineImage
}

// InlineImage is a BI ... ID ... EI image. Dict uses full key names.
type InlineImage struct {
	Dict *raw.DictObj
	Data []byte
}

var inlineKeys = map[string]string{
	"BPC": "BitsPerComponent", "CS": "ColorSpace", "D": "Decode", "DP": "DecodeParms",
	"F": "Filter", "H": "Height", "IM": "ImageMask", "I": "Interpolate", "W": "Width",
	"L": "Length",
}

var inlineNames = map[string]string{
	"G": "DeviceGray", "RGB": "DeviceRGB", "CMYK": "DeviceCMYK", "I": "Indexed",
	"AHx": "ASCIIHexDecode", "A85": "ASCII85Decode", "LZW": "LZWDecode",
	"Fl": "FlateDecode", "RL": "RunLengthDecode", "CCF": "CCITTFaxDecode", "DCT": "DCTDecode",
}

// Parse splits content into operations. Malformed tokens are skipped; an
// error is returned only for an inline image whose data cannot be
// delimited, together with the operations read so far.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(data, scanner.Config{Recovery: recovery.NewLenientStrategy()})
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			continue
		}
		if tok.Type != scanner.TokenKeyword {
			obj, err := s.Value(tok)
			if err != nil {
				continue
			}
			operands = append(operands, obj)
			continue
		}
		switch tok.Str {
		case "BI":
			img, err := readInlineImage(s)
			if err != nil {
				return ops, err
			}
			ops = append(ops, Operation{Operator: "BI", Inline: img})
		case "{", "}", ">":
		default:
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
		}
		operands = nil
	}
}

var errInlineImage = errors.New("inline image: missing EI")

func readInlineImage(s *scanner.Scanner) (*InlineImage, error) {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, errInlineImage
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "ID" {
			break
		}
		if tok.Type != scanner.TokenName {
			continue
		}
		key := tok.Str
		if full, ok := inlineKeys[key]; ok {
			key = full
		}
		vt, err := s.Next()
		if err != nil {
			return nil, errInlineImage
		}
		v, err := s.Value(vt)
		if err != nil {
			continue
		}
		dict.Set(key, expandInline(v))
	}

	data := s.Data()
	start := s.Position()
	if start < int64(len(data)) && scanner.IsWhitespace(data[start]) {
		start++
	}
	end := int64(-1)
	if n, ok := raw.AsInt(get(dict, "Length")); ok && n >= 0 && start+n <= int64(len(data)) {
		end = start + n
	} else {
		end = findEI(data, start)
	}
	if end < 0 {
		return nil, errInlineImage
	}
	img := &InlineImage{Dict: dict, Data: data[start:end]}
	if err := s.Seek(skipEI(data, end)); err != nil {
		return nil, errInlineImage
	}
	return img, nil
}

func expandInline(v raw.Object) raw.Object {
	switch t := v.(type) {
	case raw.NameObj:
		if full, ok := inlineNames[t.Val]; ok {
			return raw.NameLiteral(full)
		}
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range t.Items {
			out.Append(expandInline(it))
		}
		return out
	}
	return v
}

// findEI returns the end of inline image data starting at start: the
// offset of the whitespace before an "EI" that is followed by whitespace,
// a delimiter or the end of data.
func findEI(data []byte, start int64) int64 {
	for i := start; i+2 <= int64(len(data)); i++ {
		if data[i] != 'E' || data[i+1] != 'I' {
			continue
		}
		if i == start || !scanner.IsWhitespace(data[i-1]) {
			continue
		}
		if j := i + 2; j < int64(len(data)) && !scanner.IsWhitespace(data[j]) && !scanner.IsDelimiter(data[j]) {
			continue
		}
		return i - 1
	}
	return -1
}

func skipEI(data []byte, end int64) int64 {
	i := bytes.Index(data[end:], []byte("EI"))
	if i < 0 {
		return int64(len(data))
	}
	return end + int64(i) + 2
}

func get(d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return nil
	}
	v, _ := d.Get(key)
	return v
}
