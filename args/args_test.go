package args

import (
	"errors"
	"testing"
)

func TestFrom(t *testing.T) {
	v := MustFrom(map[string]any{
		"x":    0.25,
		"name": "a",
		"ok":   true,
		"list": []any{1, "b", nil},
		"raw":  []byte{1, 2},
	})
	if !v.IsMap() {
		t.Fatalf("kind = %v", v.Kind())
	}
	if n, ok := Optional(v, "x").Num(); !ok || n != 0.25 {
		t.Errorf("x = %v, %v", n, ok)
	}
	if s, ok := Optional(v, "name").Str(); !ok || s != "a" {
		t.Errorf("name = %q, %v", s, ok)
	}
	items, ok := Optional(v, "list").Items()
	if !ok || len(items) != 3 || items[2].Kind() != KindNull {
		t.Errorf("list = %v", Optional(v, "list"))
	}
	if got := Optional(v, "absent"); got.Kind() != KindUndefined || !got.Missing() {
		t.Errorf("absent = %v", got)
	}
	if _, err := From(struct{}{}); err == nil {
		t.Error("struct accepted")
	}
	if got := v.String(); got != `{list: [1, "b", null], name: "a", ok: true, raw: bytes[2], x: 0.25}` {
		t.Errorf("String = %s", got)
	}
}

func TestUint32(t *testing.T) {
	tests := []struct {
		v    Value
		want uint32
		ok   bool
	}{
		{Int(100), 100, true},
		{Int(0), 0, true},
		{Number(-1), 0, false},
		{Number(1.5), 0, false},
		{Number(5e9), 0, false},
		{String("5"), 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.v.Uint32()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%v.Uint32() = %d, %v", tt.v, got, ok)
		}
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want error
	}{
		{"ok", MustFrom(map[string]any{"x": 1, "y": 2}), nil},
		{"not map", Array(), ErrNotMap},
		{"missing", MustFrom(map[string]any{"x": 1}), ErrMissingKey},
		{"missing wins", MustFrom(map[string]any{"x": "1"}), ErrMissingKey},
		{"not number", MustFrom(map[string]any{"x": 1, "y": "2"}), ErrNotNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Numbers(tt.v, "x", "y")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if err == nil && (got[0] != 1 || got[1] != 2) {
				t.Errorf("got = %v", got)
			}
		})
	}
}

func TestCallback(t *testing.T) {
	var got []Value
	v := Func(func(a ...Value) { got = a })
	fn, ok := v.Callback()
	if !ok {
		t.Fatal("not a callback")
	}
	fn(Null(), String("x"))
	if len(got) != 2 || !got[0].Missing() {
		t.Errorf("got = %v", got)
	}
	if _, ok := Undefined().Callback(); ok {
		t.Error("undefined is a callback")
	}
}
