package fonts

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pagekit/scanner"
)

// CMap maps character codes to CIDs (/Encoding of a Type0 font) or to
// Unicode text (/ToUnicode).
type CMap struct {
	Name    string
	WMode   int
	UseCMap string

	identity bool
	space    []codespace
	bfChars  map[uint64]string
	bfRanges []bfRange
	cidChars map[uint64]uint32
	cidRange []cidRange
}

type codespace struct {
	lo, hi []byte
}

type bfRange struct {
	lo, hi uint32
	n      int
	base   []uint16
	list   []string
}

type cidRange struct {
	lo, hi uint32
	n      int
	cid    uint32
}

func key(code uint32, n int) uint64 { return uint64(n)<<32 | uint64(code) }

// IdentityCMap returns the predefined Identity-H or Identity-V CMap.
func IdentityCMap(vertical bool) *CMap {
	c := &CMap{Name: "Identity-H", identity: true, space: []codespace{{lo: []byte{0, 0}, hi: []byte{0xff, 0xff}}}}
	if vertical {
		c.Name, c.WMode = "Identity-V", 1
	}
	return c
}

// PredefinedCMap returns a CMap for a predefined name. Only the Identity
// CMaps are built in; other names yield a two-byte identity mapping and
// false.
func PredefinedCMap(name string) (*CMap, bool) {
	switch name {
	case "Identity-H":
		return IdentityCMap(false), true
	case "Identity-V":
		return IdentityCMap(true), true
	}
	c := IdentityCMap(len(name) > 2 && name[len(name)-2:] == "-V")
	c.Name = name
	return c, false
}

// ParseCMap reads a CMap program.
func ParseCMap(data []byte) (*CMap, error) {
	c := &CMap{bfChars: make(map[uint64]string), cidChars: make(map[uint64]uint32)}
	s := scanner.New(data, scanner.Config{})
	var prev scanner.Token
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch {
		case tok.Type == scanner.TokenName && tok.Str == "CMapName":
			if n, err := s.Next(); err == nil && n.Type == scanner.TokenName {
				c.Name = n.Str
			}
		case tok.Type == scanner.TokenName && tok.Str == "WMode":
			if n, err := s.Next(); err == nil && n.Type == scanner.TokenNumber {
				c.WMode = int(n.Int)
			}
		case tok.Type == scanner.TokenKeyword:
			switch tok.Str {
			case "usecmap":
				if prev.Type == scanner.TokenName {
					c.UseCMap = prev.Str
				}
			case "begincodespacerange":
				err = c.readCodespace(s)
			case "beginbfchar":
				err = c.readBFChar(s)
			case "beginbfrange":
				err = c.readBFRange(s)
			case "begincidchar", "beginnotdefchar":
				err = c.readCIDChar(s, tok.Str == "beginnotdefchar")
			case "begincidrange", "beginnotdefrange":
				err = c.readCIDRange(s, tok.Str == "beginnotdefrange")
			}
			if err != nil {
				return nil, fmt.Errorf("cmap %s: %w", tok.Str, err)
			}
		}
		prev = tok
	}
	if c.UseCMap == "Identity-H" || c.UseCMap == "Identity-V" {
		c.identity = len(c.cidChars) == 0 && len(c.cidRange) == 0
		if len(c.space) == 0 {
			c.space = IdentityCMap(false).space
		}
	}
	return c, nil
}

// pairs reads "<a> <b>" groups until the end keyword and calls fn for each
// group of n tokens.
func pairs(s *scanner.Scanner, n int, fn func([]scanner.Token) error) error {
	group := make([]scanner.Token, 0, n)
	for {
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if tok.Type == scanner.TokenKeyword && len(tok.Str) > 3 && tok.Str[:3] == "end" {
			return nil
		}
		if tok.Type == scanner.TokenArray {
			arr, err := readArrayTokens(s)
			if err != nil {
				return err
			}
			tok = scanner.Token{Type: scanner.TokenArray, Pos: tok.Pos}
			group = append(group, tok)
			if err := fn(append(group, arr...)); err != nil {
				return err
			}
			group = group[:0]
			continue
		}
		group = append(group, tok)
		if len(group) == n {
			if err := fn(group); err != nil {
				return err
			}
			group = group[:0]
		}
	}
}

func readArrayTokens(s *scanner.Scanner) ([]scanner.Token, error) {
	var out []scanner.Token
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenArrayEnd {
			return out, nil
		}
		out = append(out, tok)
	}
}

func codeOf(tok scanner.Token) (uint32, int, bool) {
	if tok.Type != scanner.TokenString || len(tok.Bytes) == 0 || len(tok.Bytes) > 4 {
		return 0, 0, false
	}
	var v uint32
	for _, b := range tok.Bytes {
		v = v<<8 | uint32(b)
	}
	return v, len(tok.Bytes), true
}

func (c *CMap) readCodespace(s *scanner.Scanner) error {
	return pairs(s, 2, func(g []scanner.Token) error {
		if g[0].Type != scanner.TokenString || g[1].Type != scanner.TokenString || len(g[0].Bytes) != len(g[1].Bytes) || len(g[0].Bytes) == 0 {
			return nil
		}
		c.space = append(c.space, codespace{lo: g[0].Bytes, hi: g[1].Bytes})
		return nil
	})
}

func (c *CMap) readBFChar(s *scanner.Scanner) error {
	return pairs(s, 2, func(g []scanner.Token) error {
		code, n, ok := codeOf(g[0])
		if !ok {
			return nil
		}
		switch g[1].Type {
		case scanner.TokenString:
			c.bfChars[key(code, n)] = utf16be(g[1].Bytes)
		case scanner.TokenName:
			if text, ok := GlyphRune(g[1].Str); ok {
				c.bfChars[key(code, n)] = text
			}
		}
		return nil
	})
}

func (c *CMap) readBFRange(s *scanner.Scanner) error {
	return pairs(s, 3, func(g []scanner.Token) error {
		lo, n, ok1 := codeOf(g[0])
		hi, m, ok2 := codeOf(g[1])
		if !ok1 || !ok2 || n != m || hi < lo {
			return nil
		}
		r := bfRange{lo: lo, hi: hi, n: n}
		switch g[2].Type {
		case scanner.TokenString:
			r.base = units(g[2].Bytes)
			if len(r.base) == 0 {
				return nil
			}
		case scanner.TokenArray:
			for _, t := range g[3:] {
				if t.Type == scanner.TokenString {
					r.list = append(r.list, utf16be(t.Bytes))
				} else {
					r.list = append(r.list, "")
				}
			}
		default:
			return nil
		}
		c.bfRanges = append(c.bfRanges, r)
		return nil
	})
}

func (c *CMap) readCIDChar(s *scanner.Scanner, notdef bool) error {
	return pairs(s, 2, func(g []scanner.Token) error {
		code, n, ok := codeOf(g[0])
		if ok && g[1].Type == scanner.TokenNumber && !notdef {
			c.cidChars[key(code, n)] = uint32(g[1].Int)
		}
		return nil
	})
}

func (c *CMap) readCIDRange(s *scanner.Scanner, notdef bool) error {
	return pairs(s, 3, func(g []scanner.Token) error {
		lo, n, ok1 := codeOf(g[0])
		hi, m, ok2 := codeOf(g[1])
		if ok1 && ok2 && n == m && hi >= lo && g[2].Type == scanner.TokenNumber && !notdef {
			c.cidRange = append(c.cidRange, cidRange{lo: lo, hi: hi, n: n, cid: uint32(g[2].Int)})
		}
		return nil
	})
}

func units(b []byte) []uint16 {
	out := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		out = append(out, uint16(b[i])<<8|uint16(b[i+1]))
	}
	if len(b)%2 == 1 {
		out = append(out, uint16(b[len(b)-1]))
	}
	return out
}

var utf16Decoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

func utf16be(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	out, err := utf16Decoder.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// Next splits the first character code off s. It returns the code and its
// length in bytes; n is 0 only for empty input.
func (c *CMap) Next(s []byte) (code uint32, n int) {
	if len(s) == 0 {
		return 0, 0
	}
	for n := 1; n <= 4 && n <= len(s); n++ {
		for _, sp := range c.space {
			if len(sp.lo) != n {
				continue
			}
			match := true
			for i := 0; i < n; i++ {
				if s[i] < sp.lo[i] || s[i] > sp.hi[i] {
					match = false
					break
				}
			}
			if match {
				var v uint32
				for _, b := range s[:n] {
					v = v<<8 | uint32(b)
				}
				return v, n
			}
		}
	}
	n = 1
	if len(c.space) > 0 {
		n = len(c.space[0].lo)
		for _, sp := range c.space[1:] {
			if len(sp.lo) < n {
				n = len(sp.lo)
			}
		}
	}
	if n > len(s) {
		n = len(s)
	}
	var v uint32
	for _, b := range s[:n] {
		v = v<<8 | uint32(b)
	}
	return v, n
}

// Unicode returns the text for a code read by Next.
func (c *CMap) Unicode(code uint32, n int) (string, bool) {
	if s, ok := c.bfChars[key(code, n)]; ok {
		return s, true
	}
	for _, r := range c.bfRanges {
		if r.n != n || code < r.lo || code > r.hi {
			continue
		}
		off := int(code - r.lo)
		if r.list != nil {
			if off < len(r.list) && r.list[off] != "" {
				return r.list[off], true
			}
			return "", false
		}
		u := append([]uint16(nil), r.base...)
		u[len(u)-1] += uint16(off)
		b := make([]byte, 0, 2*len(u))
		for _, v := range u {
			b = append(b, byte(v>>8), byte(v))
		}
		return utf16be(b), true
	}
	return "", false
}

// CID returns the CID for a code read by Next.
func (c *CMap) CID(code uint32, n int) (uint32, bool) {
	if c.identity {
		return code, true
	}
	if cid, ok := c.cidChars[key(code, n)]; ok {
		return cid, true
	}
	for _, r := range c.cidRange {
		if r.n == n && code >= r.lo && code <= r.hi {
			return r.cid + code - r.lo, true
		}
	}
	return 0, false
}

// Identity reports whether codes are CIDs.
func (c *CMap) Identity() bool { return c.identity }
