package fonts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pagekit/coords"
)

// cffInfo holds the parts of a bare CFF program's Top DICT that the glyph
// loader does not expose.
type cffInfo struct {
	name       string
	fontMatrix coords.Matrix
	cidKeyed   bool
	// cidToGID is filled for CID-keyed fonts from the charset.
	cidToGID map[uint32]uint16
}

type cffOperand struct {
	Int   int
	Float float64
	IsInt bool
}

func (o cffOperand) value() float64 {
	if o.IsInt {
		return float64(o.Int)
	}
	return o.Float
}

const (
	cffOpCharset     = 15
	cffOpCharStrings = 17
	cffOpFontMatrix  = 1207
	cffOpROS         = 1230
)

func parseCFFInfo(data []byte) (*cffInfo, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("cff header truncated")
	}
	r := bytes.NewReader(data)
	if _, err := r.Seek(int64(data[2]), io.SeekStart); err != nil {
		return nil, err
	}
	names, err := readIndex(r)
	if err != nil {
		return nil, fmt.Errorf("read name index: %w", err)
	}
	topDicts, err := readIndex(r)
	if err != nil {
		return nil, fmt.Errorf("read top dict index: %w", err)
	}
	if len(topDicts) == 0 {
		return nil, fmt.Errorf("cff has no top dict")
	}
	top, err := parseDict(topDicts[0])
	if err != nil {
		return nil, fmt.Errorf("parse top dict: %w", err)
	}

	info := &cffInfo{fontMatrix: coords.Scale(0.001, 0.001)}
	if len(names) > 0 {
		info.name = string(names[0])
	}
	if m := top[cffOpFontMatrix]; len(m) == 6 {
		info.fontMatrix = coords.Matrix{m[0].value(), m[1].value(), m[2].value(), m[3].value(), m[4].value(), m[5].value()}
	}
	_, info.cidKeyed = top[cffOpROS]
	if !info.cidKeyed {
		return info, nil
	}

	cs := top[cffOpCharStrings]
	if len(cs) != 1 || cs[0].Int <= 0 || cs[0].Int >= len(data) {
		return info, nil
	}
	r.Reset(data)
	if _, err := r.Seek(int64(cs[0].Int), io.SeekStart); err != nil {
		return info, nil
	}
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return info, nil
	}
	if set := top[cffOpCharset]; len(set) == 1 && set[0].Int > 2 && set[0].Int < len(data) {
		info.cidToGID = readCharset(data[set[0].Int:], int(count))
	}
	return info, nil
}

// readCharset maps the SIDs (CIDs for CID-keyed fonts) of a charset to
// glyph indices. Glyph 0 is always .notdef and is not listed.
func readCharset(b []byte, numGlyphs int) map[uint32]uint16 {
	if len(b) == 0 {
		return nil
	}
	out := map[uint32]uint16{0: 0}
	gid := 1
	p := 1
	u16 := func() (uint32, bool) {
		if p+2 > len(b) {
			return 0, false
		}
		v := uint32(binary.BigEndian.Uint16(b[p:]))
		p += 2
		return v, true
	}
	switch b[0] {
	case 0:
		for gid < numGlyphs {
			cid, ok := u16()
			if !ok {
				break
			}
			out[cid] = uint16(gid)
			gid++
		}
	case 1, 2:
		for gid < numGlyphs {
			first, ok := u16()
			if !ok {
				break
			}
			var left uint32
			if b[0] == 1 {
				if p >= len(b) {
					break
				}
				left = uint32(b[p])
				p++
			} else if left, ok = u16(); !ok {
				break
			}
			for i := uint32(0); i <= left && gid < numGlyphs; i++ {
				out[first+i] = uint16(gid)
				gid++
			}
		}
	}
	return out
}

func readIndex(r *bytes.Reader) ([][]byte, error) {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	offSize, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if offSize < 1 || offSize > 4 {
		return nil, fmt.Errorf("invalid index offset size %d", offSize)
	}
	offsets := make([]int, count+1)
	for i := range offsets {
		off, err := readOffset(r, int(offSize))
		if err != nil {
			return nil, err
		}
		offsets[i] = off
	}
	total := offsets[count] - 1
	if total < 0 || total > r.Len() {
		return nil, fmt.Errorf("invalid index size %d", total)
	}
	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	items := make([][]byte, count)
	for i := range items {
		start, end := offsets[i]-1, offsets[i+1]-1
		if start < 0 || end > len(data) || start > end {
			return nil, fmt.Errorf("invalid index offsets")
		}
		items[i] = data[start:end]
	}
	return items, nil
}

func readOffset(r io.Reader, size int) (int, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[4-size:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(buf[:])), nil
}

func parseDict(data []byte) (map[int][]cffOperand, error) {
	dict := make(map[int][]cffOperand)
	var operands []cffOperand
	r := bytes.NewReader(data)
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			return dict, nil
		}
		if err != nil {
			return nil, err
		}
		switch {
		case b <= 21:
			op := int(b)
			if b == 12 {
				b2, err := r.ReadByte()
				if err != nil {
					return nil, err
				}
				op = 1200 + int(b2)
			}
			dict[op] = operands
			operands = nil
		case b == 28 || b == 29 || (b >= 32 && b <= 254):
			_ = r.UnreadByte()
			val, err := readInteger(r)
			if err != nil {
				return nil, err
			}
			operands = append(operands, cffOperand{Int: val, IsInt: true})
		case b == 30:
			val, err := readReal(r)
			if err != nil {
				return nil, err
			}
			operands = append(operands, cffOperand{Float: val})
		}
	}
}

func readReal(r *bytes.Reader) (float64, error) {
	var s []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		for _, n := range [2]byte{b >> 4, b & 0x0f} {
			switch n {
			case 0xa:
				s = append(s, '.')
			case 0xb:
				s = append(s, 'E')
			case 0xc:
				s = append(s, 'E', '-')
			case 0xd:
			case 0xe:
				s = append(s, '-')
			case 0xf:
				return strconv.ParseFloat(string(s), 64)
			default:
				s = append(s, '0'+n)
			}
		}
	}
}

func readInteger(r *bytes.Reader) (int, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b0 >= 32 && b0 <= 246:
		return int(b0) - 139, nil
	case b0 >= 247 && b0 <= 250:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return (int(b0)-247)*256 + int(b1) + 108, nil
	case b0 >= 251 && b0 <= 254:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return -(int(b0)-251)*256 - int(b1) - 108, nil
	case b0 == 28:
		var val int16
		if err := binary.Read(r, binary.BigEndian, &val); err != nil {
			return 0, err
		}
		return int(val), nil
	case b0 == 29:
		var val int32
		if err := binary.Read(r, binary.BigEndian, &val); err != nil {
			return 0, err
		}
		return int(val), nil
	}
	return 0, fmt.Errorf("invalid integer prefix: %d", b0)
}
