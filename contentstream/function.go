package contentstream

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wudi/pagekit/ir/raw"
	"github.com/wudi/pagekit/recovery"
	"github.com/wudi/pagekit/scanner"
)

// Function is a PDF function object (types 0, 2, 3 and 4).
type Function interface {
	Eval(in []float64) []float64
}

var errFunction = errors.New("bad function")

func floats(obj raw.Object) []float64 {
	arr, ok := obj.(*raw.ArrayObj)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(arr.Items))
	for _, it := range arr.Items {
		v, _ := raw.AsFloat(it)
		out = append(out, v)
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func interpolate(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// loadFunction builds a function; arrays of functions are combined into
// one with an output per element.
func (in *Interpreter) loadFunction(ctx context.Context, obj raw.Object, depth int) (Function, error) {
	if depth > 8 {
		return nil, fmt.Errorf("%w: nesting too deep", errFunction)
	}
	obj = in.resolve(ctx, obj)
	if arr, ok := obj.(*raw.ArrayObj); ok {
		var fs multiFunc
		for _, it := range arr.Items {
			f, err := in.loadFunction(ctx, it, depth+1)
			if err != nil {
				return nil, err
			}
			fs = append(fs, f)
		}
		return fs, nil
	}
	var dict *raw.DictObj
	var body []byte
	switch t := obj.(type) {
	case *raw.DictObj:
		dict = t
	case *raw.StreamObj:
		dict = t.Dict
		dec, err := in.src.DecodeStream(ctx, t)
		if err != nil {
			return nil, err
		}
		body = dec.Data
	default:
		return nil, fmt.Errorf("%w: %T", errFunction, obj)
	}
	domain := floats(in.resolve(ctx, get(dict, "Domain")))
	rng := floats(in.resolve(ctx, get(dict, "Range")))
	typ, _ := raw.AsInt(get(dict, "FunctionType"))
	switch typ {
	case 0:
		return newSampled(dict, body, domain, rng, in.resolve(ctx, get(dict, "Size")))
	case 2:
		f := expFunc{c0: []float64{0}, c1: []float64{1}, n: 1, domain: domain}
		if c := floats(in.resolve(ctx, get(dict, "C0"))); c != nil {
			f.c0 = c
		}
		if c := floats(in.resolve(ctx, get(dict, "C1"))); c != nil {
			f.c1 = c
		}
		f.n, _ = raw.AsFloat(get(dict, "N"))
		if len(f.c0) != len(f.c1) {
			return nil, fmt.Errorf("%w: C0 and C1 differ in size", errFunction)
		}
		return f, nil
	case 3:
		st := stitchFunc{domain: domain, bounds: floats(in.resolve(ctx, get(dict, "Bounds"))), encode: floats(in.resolve(ctx, get(dict, "Encode")))}
		fns, _ := in.resolve(ctx, get(dict, "Functions")).(*raw.ArrayObj)
		if fns == nil || len(domain) < 2 {
			return nil, fmt.Errorf("%w: stitching function without Functions", errFunction)
		}
		for _, it := range fns.Items {
			f, err := in.loadFunction(ctx, it, depth+1)
			if err != nil {
				return nil, err
			}
			st.fns = append(st.fns, f)
		}
		if len(st.bounds) != len(st.fns)-1 || len(st.encode) < 2*len(st.fns) {
			return nil, fmt.Errorf("%w: stitching arrays mismatch", errFunction)
		}
		return st, nil
	case 4:
		prog, err := parseCalculator(body)
		if err != nil {
			return nil, err
		}
		return calcFunc{prog: prog, domain: domain, rng: rng}, nil
	}
	return nil, fmt.Errorf("%w: type %d", errFunction, typ)
}

type multiFunc []Function

func (m multiFunc) Eval(in []float64) []float64 {
	var out []float64
	for _, f := range m {
		out = append(out, f.Eval(in)...)
	}
	return out
}

type expFunc struct {
	c0, c1 []float64
	n      float64
	domain []float64
}

func (f expFunc) Eval(in []float64) []float64 {
	x := 0.0
	if len(in) > 0 {
		x = in[0]
	}
	if len(f.domain) >= 2 {
		x = clip(x, f.domain[0], f.domain[1])
	}
	p := math.Pow(x, f.n)
	out := make([]float64, len(f.c0))
	for i := range out {
		out[i] = f.c0[i] + p*(f.c1[i]-f.c0[i])
	}
	return out
}

type stitchFunc struct {
	domain, bounds, encode []float64
	fns                    []Function
}

func (f stitchFunc) Eval(in []float64) []float64 {
	x := 0.0
	if len(in) > 0 {
		x = in[0]
	}
	x = clip(x, f.domain[0], f.domain[1])
	k := 0
	for k < len(f.bounds) && x >= f.bounds[k] {
		k++
	}
	lo, hi := f.domain[0], f.domain[1]
	if k > 0 {
		lo = f.bounds[k-1]
	}
	if k < len(f.bounds) {
		hi = f.bounds[k]
	}
	return f.fns[k].Eval([]float64{interpolate(x, lo, hi, f.encode[2*k], f.encode[2*k+1])})
}

type sampledFunc struct {
	size           []int
	bps            int
	domain, rng    []float64
	encode, decode []float64
	samples        []float64
	outputs        int
}

func newSampled(dict *raw.DictObj, body []byte, domain, rng []float64, sizeObj raw.Object) (Function, error) {
	f := &sampledFunc{domain: domain, rng: rng}
	for _, s := range floats(sizeObj) {
		f.size = append(f.size, int(s))
	}
	bps, _ := raw.AsInt(get(dict, "BitsPerSample"))
	f.bps = int(bps)
	m, n := len(domain)/2, len(rng)/2
	if m == 0 || n == 0 || len(f.size) != m {
		return nil, fmt.Errorf("%w: sampled function shape", errFunction)
	}
	switch f.bps {
	case 1, 2, 4, 8, 12, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: BitsPerSample %d", errFunction, f.bps)
	}
	f.outputs = n
	f.encode = floats(get(dict, "Encode"))
	if len(f.encode) != 2*m {
		f.encode = make([]float64, 0, 2*m)
		for _, s := range f.size {
			f.encode = append(f.encode, 0, float64(s-1))
		}
	}
	f.decode = floats(get(dict, "Decode"))
	if len(f.decode) != 2*n {
		f.decode = rng
	}
	total := n
	for _, s := range f.size {
		if s <= 0 || total > 1<<24/s {
			return nil, fmt.Errorf("%w: sampled function too large", errFunction)
		}
		total *= s
	}
	scale := math.Pow(2, float64(f.bps)) - 1
	f.samples = make([]float64, total)
	for i := range f.samples {
		v, ok := readBits(body, i*f.bps, f.bps)
		if !ok {
			break
		}
		f.samples[i] = float64(v) / scale
	}
	return f, nil
}

func readBits(data []byte, bit, n int) (uint32, bool) {
	if (bit+n+7)/8 > len(data) {
		return 0, false
	}
	var v uint32
	for i := 0; i < n; i++ {
		b := data[(bit+i)/8] >> (7 - uint((bit+i)%8)) & 1
		v = v<<1 | uint32(b)
	}
	return v, true
}

// Eval interpolates linearly along the first input and takes the nearest
// sample along the others.
func (f *sampledFunc) Eval(in []float64) []float64 {
	m := len(f.size)
	idx := 0
	stride := f.outputs
	var frac float64
	var next int
	for i := 0; i < m; i++ {
		x := 0.0
		if i < len(in) {
			x = in[i]
		}
		x = clip(x, f.domain[2*i], f.domain[2*i+1])
		e := clip(interpolate(x, f.domain[2*i], f.domain[2*i+1], f.encode[2*i], f.encode[2*i+1]), 0, float64(f.size[i]-1))
		k := int(e)
		if i == 0 {
			frac = e - float64(k)
			if k+1 < f.size[0] {
				next = stride
			}
		} else {
			k = int(math.Round(e))
		}
		idx += k * stride
		stride *= f.size[i]
	}
	out := make([]float64, f.outputs)
	for j := range out {
		s := f.samples[idx+j]
		if frac > 0 && next > 0 {
			s += frac * (f.samples[idx+next+j] - s)
		}
		out[j] = clip(interpolate(s, 0, 1, f.decode[2*j], f.decode[2*j+1]), f.rng[2*j], f.rng[2*j+1])
	}
	return out
}

// calcProc is a parsed calculator procedure: numbers, booleans, operator
// names and nested procedures.
type calcProc []any

func parseCalculator(body []byte) (calcProc, error) {
	s := scanner.New(body, scanner.Config{Recovery: recovery.NewStrictStrategy()})
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenKeyword || tok.Str != "{" {
		return nil, fmt.Errorf("%w: calculator program must start with {", errFunction)
	}
	return parseProc(s, 0)
}

func parseProc(s *scanner.Scanner, depth int) (calcProc, error) {
	if depth > 32 {
		return nil, fmt.Errorf("%w: calculator nesting too deep", errFunction)
	}
	var p calcProc
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated calculator procedure", errFunction)
		}
		switch {
		case tok.Type == scanner.TokenNumber:
			p = append(p, tok.Number())
		case tok.Type == scanner.TokenBoolean:
			p = append(p, tok.Bool)
		case tok.Type == scanner.TokenKeyword && tok.Str == "{":
			sub, err := parseProc(s, depth+1)
			if err != nil {
				return nil, err
			}
			p = append(p, sub)
		case tok.Type == scanner.TokenKeyword && tok.Str == "}":
			return p, nil
		case tok.Type == scanner.TokenKeyword:
			p = append(p, tok.Str)
		default:
			return nil, fmt.Errorf("%w: unexpected %s in calculator", errFunction, tok.Type)
		}
	}
}

type calcFunc struct {
	prog        calcProc
	domain, rng []float64
}

func (f calcFunc) Eval(in []float64) []float64 {
	st := make(calcStack, 0, 32)
	for i := 0; i+1 < len(f.domain); i += 2 {
		x := 0.0
		if i/2 < len(in) {
			x = in[i/2]
		}
		st.push(clip(x, f.domain[i], f.domain[i+1]))
	}
	_ = st.run(f.prog, 0)
	n := len(f.rng) / 2
	out := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		v, err := st.pop()
		if err != nil {
			break
		}
		out[i] = clip(num(v), f.rng[2*i], f.rng[2*i+1])
	}
	return out
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
	}
	return 0
}

var errCalcStack = errors.New("calculator stack underflow")

type calcStack []any

func (s *calcStack) push(v any) { *s = append(*s, v) }

func (s *calcStack) pop() (any, error) {
	if len(*s) == 0 {
		return nil, errCalcStack
	}
	v := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return v, nil
}

func (s *calcStack) pop2() (any, any, error) {
	b, err := s.pop()
	if err != nil {
		return nil, nil, err
	}
	a, err := s.pop()
	return a, b, err
}

func (s *calcStack) run(p calcProc, depth int) error {
	if depth > 64 {
		return fmt.Errorf("%w: calculator recursion", errFunction)
	}
	for i := 0; i < len(p); i++ {
		switch t := p[i].(type) {
		case float64, bool:
			s.push(t)
		case calcProc:
			// procedures are only operands of a following if or ifelse
			if i+1 < len(p) && p[i+1] == "if" {
				c, err := s.pop()
				if err != nil {
					return err
				}
				if c == true {
					if err := s.run(t, depth+1); err != nil {
						return err
					}
				}
				i++
				continue
			}
			if alt, ok := p[min(i+1, len(p)-1)].(calcProc); ok && i+2 < len(p) && p[i+2] == "ifelse" {
				c, err := s.pop()
				if err != nil {
					return err
				}
				branch := alt
				if c == true {
					branch = t
				}
				if err := s.run(branch, depth+1); err != nil {
					return err
				}
				i += 2
			}
		case string:
			if err := s.op(t); err != nil {
				return err
			}
		}
	}
	return nil
}

var calcUnary = map[string]func(float64) float64{
	"neg":      func(x float64) float64 { return -x },
	"abs":      math.Abs,
	"ceiling":  math.Ceil,
	"floor":    math.Floor,
	"round":    func(x float64) float64 { return math.Floor(x + 0.5) },
	"truncate": math.Trunc,
	"cvi":      math.Trunc,
	"cvr":      func(x float64) float64 { return x },
	"sqrt":     math.Sqrt,
	"ln":       math.Log,
	"log":      math.Log10,
	"sin":      func(x float64) float64 { return math.Sin(x * math.Pi / 180) },
	"cos":      func(x float64) float64 { return math.Cos(x * math.Pi / 180) },
}

func (s *calcStack) op(op string) error {
	if fn, ok := calcUnary[op]; ok {
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.push(fn(num(v)))
		return nil
	}
	switch op {
	case "add", "sub", "mul", "div", "idiv", "mod", "exp", "atan", "eq", "ne", "gt", "ge", "lt", "le":
		av, bv, err := s.pop2()
		if err != nil {
			return err
		}
		s.push(arith(op, num(av), num(bv)))
	case "and", "or", "xor":
		av, bv, err := s.pop2()
		if err != nil {
			return err
		}
		ab, aok := av.(bool)
		bb, bok := bv.(bool)
		if aok && bok {
			switch op {
			case "and":
				s.push(ab && bb)
			case "or":
				s.push(ab || bb)
			default:
				s.push(ab != bb)
			}
			return nil
		}
		a, b := int64(num(av)), int64(num(bv))
		switch op {
		case "and":
			s.push(float64(a & b))
		case "or":
			s.push(float64(a | b))
		default:
			s.push(float64(a ^ b))
		}
	case "not":
		v, err := s.pop()
		if err != nil {
			return err
		}
		if b, ok := v.(bool); ok {
			s.push(!b)
		} else {
			s.push(float64(^int64(num(v))))
		}
	case "true", "false":
		s.push(op == "true")
	case "pop":
		_, err := s.pop()
		return err
	case "dup":
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.push(v)
		s.push(v)
	case "exch":
		a, b, err := s.pop2()
		if err != nil {
			return err
		}
		s.push(b)
		s.push(a)
	case "copy", "index":
		v, err := s.pop()
		if err != nil {
			return err
		}
		n := int(num(v))
		if op == "copy" {
			if n < 0 || n > len(*s) {
				return errCalcStack
			}
			*s = append(*s, (*s)[len(*s)-n:]...)
			return nil
		}
		if n < 0 || n >= len(*s) {
			return errCalcStack
		}
		s.push((*s)[len(*s)-1-n])
	case "roll":
		nv, jv, err := s.pop2()
		if err != nil {
			return err
		}
		n, j := int(num(nv)), int(num(jv))
		if n < 0 || n > len(*s) {
			return errCalcStack
		}
		if n > 0 {
			win := (*s)[len(*s)-n:]
			top := append([]any(nil), win...)
			j = (j%n + n) % n
			for i := range top {
				win[(i+j)%n] = top[i]
			}
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", errFunction, op)
	}
	return nil
}

func arith(op string, a, b float64) any {
	switch op {
	case "add":
		return a + b
	case "sub":
		return a - b
	case "mul":
		return a * b
	case "div":
		if b == 0 {
			return 0.0
		}
		return a / b
	case "idiv", "mod":
		if int64(b) == 0 {
			return 0.0
		}
		if op == "idiv" {
			return float64(int64(a) / int64(b))
		}
		return float64(int64(a) % int64(b))
	case "exp":
		return math.Pow(a, b)
	case "atan":
		r := math.Atan2(a, b) * 180 / math.Pi
		if r < 0 {
			r += 360
		}
		return r
	case "eq":
		return a == b
	case "ne":
		return a != b
	case "gt":
		return a > b
	case "ge":
		return a >= b
	case "lt":
		return a < b
	}
	return a <= b
}
