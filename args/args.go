// Package args is a small dynamic value model for arguments that arrive
// from untyped callers such as scripts or command lines. Operations that
// accept a Value validate it field by field and report the first problem.
package args

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindBytes
	KindArray
	KindMap
	KindCallback
)

var kindNames = [...]string{"undefined", "null", "string", "number", "boolean", "bytes", "array", "object", "function"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Callback receives the results of an asynchronous operation.
type Callback func(args ...Value)

// Value is one dynamic argument. The zero Value is undefined.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
	raw  []byte
	arr  []Value
	m    map[string]Value
	fn   Callback
}

func Undefined() Value             { return Value{} }
func Null() Value                  { return Value{kind: KindNull} }
func String(s string) Value        { return Value{kind: KindString, s: s} }
func Number(n float64) Value       { return Value{kind: KindNumber, n: n} }
func Int(n int) Value              { return Value{kind: KindNumber, n: float64(n)} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Bytes(b []byte) Value         { return Value{kind: KindBytes, raw: b} }
func Array(items ...Value) Value   { return Value{kind: KindArray, arr: items} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }
func Func(fn Callback) Value       { return Value{kind: KindCallback, fn: fn} }

func (v Value) Kind() Kind { return v.kind }

// Missing reports whether v is undefined or null.
func (v Value) Missing() bool { return v.kind == KindUndefined || v.kind == KindNull }

func (v Value) IsString() bool   { return v.kind == KindString }
func (v Value) IsNumber() bool   { return v.kind == KindNumber }
func (v Value) IsBool() bool     { return v.kind == KindBool }
func (v Value) IsMap() bool      { return v.kind == KindMap }
func (v Value) IsArray() bool    { return v.kind == KindArray }
func (v Value) IsCallback() bool { return v.kind == KindCallback }

func (v Value) Str() (string, bool)        { return v.s, v.kind == KindString }
func (v Value) Num() (float64, bool)       { return v.n, v.kind == KindNumber }
func (v Value) Boolean() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) Raw() ([]byte, bool)        { return v.raw, v.kind == KindBytes }
func (v Value) Items() ([]Value, bool)     { return v.arr, v.kind == KindArray }
func (v Value) Callback() (Callback, bool) { return v.fn, v.kind == KindCallback && v.fn != nil }

// Uint32 reports whether v is an integral number that fits in uint32.
func (v Value) Uint32() (uint32, bool) {
	if v.kind != KindNumber || v.n < 0 || v.n > math.MaxUint32 || v.n != math.Trunc(v.n) {
		return 0, false
	}
	return uint32(v.n), true
}

// Get returns the member key of a map value. It reports false for absent
// keys and for non-map values.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	m, ok := v.m[key]
	return m, ok
}

// Keys returns the map keys in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindNumber:
		return fmt.Sprint(v.n)
	case KindBool:
		return fmt.Sprint(v.b)
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.raw))
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, it := range v.arr {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, len(v.m))
		for _, k := range v.Keys() {
			parts = append(parts, k+": "+v.m[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return v.kind.String()
}

// From converts plain Go values: nil, string, bool, the integer and float
// types, []byte, []any, map[string]any, func(...Value) and Value itself.
func From(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case []byte:
		return Bytes(t), nil
	case Callback:
		return Func(t), nil
	case func(...Value):
		return Func(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			v, err := From(it)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, it := range t {
			v, err := From(it)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = v
		}
		return Map(m), nil
	}
	return Value{}, fmt.Errorf("args: unsupported type %T", x)
}

// MustFrom is From for literals in tests and examples.
func MustFrom(x any) Value {
	v, err := From(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Schema errors returned by Numbers.
var (
	ErrNotMap     = errors.New("args: not an object")
	ErrMissingKey = errors.New("args: missing key")
	ErrNotNumber  = errors.New("args: not a number")
)

// Numbers reads the numeric members keys of a map value in order. Absent
// keys are reported before mistyped ones, so a caller can tell an
// incomplete object from a malformed one.
func Numbers(v Value, keys ...string) ([]float64, error) {
	if v.kind != KindMap {
		return nil, ErrNotMap
	}
	for _, k := range keys {
		if _, ok := v.m[k]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingKey, k)
		}
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		n, ok := v.m[k].Num()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotNumber, k)
		}
		out[i] = n
	}
	return out, nil
}

// Optional returns the member key of v, or undefined when v is missing or
// has no such member.
func Optional(v Value, key string) Value {
	m, _ := v.Get(key)
	return m
}
