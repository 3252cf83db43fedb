package fonts

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// type1Info is read from the cleartext part of an embedded Type 1 program.
// The charstrings are not interpreted; it only picks a fallback face and
// supplies the built-in encoding.
type type1Info struct {
	FontName     string
	Weight       string
	ItalicAngle  float64
	FixedPitch   bool
	FontBBox     [4]float64
	BuiltinNames map[int]string
}

// cleartext returns the unencrypted part of a Type 1 program in PFA form
// (limited by /Length1 when known) or in PFB segments.
func cleartext(data []byte, length1 int) ([]byte, error) {
	if len(data) >= 6 && data[0] == 0x80 && data[1] == 1 {
		n := int(binary.LittleEndian.Uint32(data[2:6]))
		if 6+n > len(data) {
			return nil, fmt.Errorf("pfb segment length %d exceeds data", n)
		}
		return data[6 : 6+n], nil
	}
	if length1 > 0 && length1 <= len(data) {
		return data[:length1], nil
	}
	if i := bytes.Index(data, []byte("eexec")); i >= 0 {
		return data[:i], nil
	}
	return data, nil
}

func parseType1Info(data []byte, length1 int) (*type1Info, error) {
	text, err := cleartext(data, length1)
	if err != nil {
		return nil, err
	}
	m := &type1Info{}
	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "/FontName":
			m.FontName = strings.TrimPrefix(fields[1], "/")
		case "/Weight":
			m.Weight = strings.Trim(fields[1], "()")
		case "/ItalicAngle":
			m.ItalicAngle, _ = strconv.ParseFloat(fields[1], 64)
		case "/isFixedPitch":
			m.FixedPitch = fields[1] == "true"
		case "/FontBBox":
			start, end := strings.IndexAny(line, "{["), strings.IndexAny(line, "}]")
			if start != -1 && end > start {
				nums := strings.Fields(line[start+1 : end])
				for i := 0; i < 4 && i < len(nums); i++ {
					m.FontBBox[i], _ = strconv.ParseFloat(nums[i], 64)
				}
			}
		case "dup":
			// dup 65 /A put
			if len(fields) >= 4 && fields[3] == "put" && strings.HasPrefix(fields[2], "/") {
				if code, err := strconv.Atoi(fields[1]); err == nil && code >= 0 && code < 256 {
					if m.BuiltinNames == nil {
						m.BuiltinNames = make(map[int]string)
					}
					m.BuiltinNames[code] = fields[2][1:]
				}
			}
		}
	}
	return m, sc.Err()
}

func (m *type1Info) bold() bool {
	w := strings.ToLower(m.Weight)
	return strings.Contains(w, "bold") || strings.Contains(w, "black") || strings.Contains(w, "heavy")
}
