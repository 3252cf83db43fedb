// Package testpdf builds small PDF files in memory for tests. Object bodies
// are written in PDF syntax; the builder computes offsets, cross-reference
// data and optional encryption.
package testpdf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/security"
)

type object struct {
	body     string
	dict     string
	data     []byte
	isStream bool
}

// Builder assembles a PDF file object by object.
type Builder struct {
	Version string
	Root    int
	Info    int
	ID      []byte

	objects map[int]object
	next    int
	pages   []int
	tree    int
}

func New() *Builder {
	return &Builder{Version: "1.7", objects: make(map[int]object), next: 1, ID: []byte("pagekit-test-id!")}
}

// Reserve allocates an object number to be filled later with Set or SetStream.
func (b *Builder) Reserve() int {
	n := b.next
	b.next++
	return n
}

func (b *Builder) Set(num int, body string) { b.objects[num] = object{body: body} }

func (b *Builder) Add(body string) int {
	n := b.Reserve()
	b.Set(n, body)
	return n
}

// SetStream stores a stream object. dict holds the dictionary entries
// without the enclosing "<< >>"; /Length is added by the builder.
func (b *Builder) SetStream(num int, dict string, data []byte) {
	b.objects[num] = object{dict: dict, data: data, isStream: true}
}

func (b *Builder) AddStream(dict string, data []byte) int {
	n := b.Reserve()
	b.SetStream(n, dict, data)
	return n
}

// Options selects how Bytes serializes the file.
type Options struct {
	// XRefStream writes a compressed cross-reference stream instead of a
	// classic table.
	XRefStream bool
	// ObjectStream packs every non-stream object into one object stream.
	// It implies XRefStream.
	ObjectStream bool
	// Encrypt protects stream data with the standard security handler.
	Encrypt *security.EncryptionConfig
	// Linearized adds a linearization dictionary as the first object.
	Linearized bool
}

// Bytes serializes the document.
func (b *Builder) Bytes(opts Options) []byte {
	if opts.ObjectStream {
		opts.XRefStream = true
	}
	objs := make(map[int]object, len(b.objects)+3)
	for k, v := range b.objects {
		objs[k] = v
	}
	next := b.next

	linNum := 0
	if opts.Linearized {
		linNum = next
		next++
		first := 0
		if len(b.pages) > 0 {
			first = b.pages[0]
		}
		objs[linNum] = object{body: fmt.Sprintf("<< /Linearized 1 /L %s /H [0 0] /O %d /E 0 /N %d /T 0 >>", lengthPlaceholder, first, len(b.pages))}
	}

	var handler security.Handler
	encNum := 0
	if opts.Encrypt != nil {
		cfg := *opts.Encrypt
		cfg.FileID = b.ID
		dict, h, err := security.BuildStandardEncryption(cfg)
		if err != nil {
			panic(err)
		}
		handler = h
		encNum = next
		next++
		objs[encNum] = object{body: Format(dict)}
	}

	nums := make([]int, 0, len(objs))
	for k := range objs {
		if k != linNum {
			nums = append(nums, k)
		}
	}
	sort.Ints(nums)
	if linNum != 0 {
		nums = append([]int{linNum}, nums...)
	}

	type loc struct {
		offset      int
		inStream    int
		streamIndex int
	}
	locs := make(map[int]loc)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", b.Version)

	var packed []int
	for _, n := range nums {
		o := objs[n]
		if opts.ObjectStream && !o.isStream && n != encNum && n != linNum {
			packed = append(packed, n)
			continue
		}
		locs[n] = loc{offset: buf.Len()}
		writeObject(&buf, n, o, handler)
	}
	if len(packed) > 0 {
		stmNum := next
		next++
		var header, body bytes.Buffer
		for i, n := range packed {
			fmt.Fprintf(&header, "%d %d ", n, body.Len())
			body.WriteString(objs[n].body)
			body.WriteString("\n")
			locs[n] = loc{inStream: stmNum, streamIndex: i}
		}
		data := append(header.Bytes(), body.Bytes()...)
		locs[stmNum] = loc{offset: buf.Len()}
		writeObject(&buf, stmNum, object{
			dict:     fmt.Sprintf("/Type /ObjStm /N %d /First %d /Filter /FlateDecode", len(packed), header.Len()),
			data:     deflate(data),
			isStream: true,
		}, handler)
	}

	trailer := fmt.Sprintf("/Root %d 0 R /ID [<%x> <%x>]", b.Root, b.ID, b.ID)
	if b.Info != 0 {
		trailer += fmt.Sprintf(" /Info %d 0 R", b.Info)
	}
	if encNum != 0 {
		trailer += fmt.Sprintf(" /Encrypt %d 0 R", encNum)
	}

	xrefOffset := buf.Len()
	if opts.XRefStream {
		xrefNum := next
		next++
		locs[xrefNum] = loc{offset: xrefOffset}
		var rows bytes.Buffer
		for n := 0; n < next; n++ {
			l, ok := locs[n]
			row := make([]byte, 7)
			switch {
			case !ok:
				row[0] = 0
				binary.BigEndian.PutUint16(row[5:], 0xffff)
			case l.inStream != 0:
				row[0] = 2
				binary.BigEndian.PutUint32(row[1:], uint32(l.inStream))
				binary.BigEndian.PutUint16(row[5:], uint16(l.streamIndex))
			default:
				row[0] = 1
				binary.BigEndian.PutUint32(row[1:], uint32(l.offset))
			}
			rows.Write(row)
		}
		// Cross-reference streams are never encrypted.
		writeObject(&buf, xrefNum, object{
			dict:     fmt.Sprintf("/Type /XRef /Size %d /W [1 4 2] /Filter /FlateDecode %s", next, trailer),
			data:     deflate(rows.Bytes()),
			isStream: true,
		}, nil)
	} else {
		fmt.Fprintf(&buf, "xref\n0 %d\n", next)
		buf.WriteString("0000000000 65535 f\r\n")
		for n := 1; n < next; n++ {
			if l, ok := locs[n]; ok {
				fmt.Fprintf(&buf, "%010d 00000 n\r\n", l.offset)
			} else {
				buf.WriteString("0000000000 65535 f\r\n")
			}
		}
		fmt.Fprintf(&buf, "trailer\n<< /Size %d %s >>\n", next, trailer)
	}
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	out := buf.Bytes()
	if linNum != 0 {
		out = bytes.Replace(out, []byte(lengthPlaceholder), []byte(fmt.Sprintf("%010d", len(out))), 1)
	}
	return out
}

const lengthPlaceholder = "LLLLLLLLLL"

func writeObject(buf *bytes.Buffer, num int, o object, h security.Handler) {
	fmt.Fprintf(buf, "%d 0 obj\n", num)
	if !o.isStream {
		buf.WriteString(o.body)
		buf.WriteString("\nendobj\n")
		return
	}
	data := o.data
	if h != nil {
		enc, err := h.Encrypt(num, 0, data, security.DataClassStream)
		if err != nil {
			panic(err)
		}
		data = enc
	}
	fmt.Fprintf(buf, "<< %s /Length %d >>\nstream\n", o.dict, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream\nendobj\n")
}

func deflate(data []byte) []byte {
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	zw.Write(data)
	zw.Close()
	return out.Bytes()
}

// Deflate returns data compressed for /FlateDecode.
func Deflate(data []byte) []byte { return deflate(data) }

// Format writes a raw object in PDF syntax. Strings are written as hex.
func Format(obj raw.Object) string {
	switch v := obj.(type) {
	case raw.NameObj:
		return "/" + v.Val
	case raw.NumberObj:
		if v.IsInt {
			return fmt.Sprintf("%d", v.I)
		}
		return fmt.Sprintf("%g", v.F)
	case raw.BoolObj:
		return fmt.Sprintf("%t", v.V)
	case raw.StringObj:
		return fmt.Sprintf("<%x>", v.Bytes)
	case raw.RefObj:
		return fmt.Sprintf("%d %d R", v.R.Num, v.R.Gen)
	case *raw.ArrayObj:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = Format(it)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case *raw.DictObj:
		var sb strings.Builder
		sb.WriteString("<<")
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			fmt.Fprintf(&sb, " /%s %s", k, Format(val))
		}
		sb.WriteString(" >>")
		return sb.String()
	}
	return "null"
}
