package coords

import (
	"math"
	"testing"
)

func near(a, b Point) bool { return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9 }

func TestMultiplyOrder(t *testing.T) {
	m := Scale(2, 2).Multiply(Translate(10, 0))
	if got := m.Transform(Point{1, 1}); !near(got, Point{12, 2}) {
		t.Fatalf("scale then translate: %v", got)
	}
	inv, err := m.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	if got := inv.Transform(Point{12, 2}); !near(got, Point{1, 1}) {
		t.Fatalf("inverse: %v", got)
	}
	if _, err := Scale(0, 1).Inverse(); err == nil {
		t.Fatal("singular matrix should not invert")
	}
}

func TestPageToDeviceCorners(t *testing.T) {
	crop := Rect{10, 20, 110, 220} // 100 x 200
	tests := []struct {
		rotate        int
		topLeftSource Point
		w, h          float64
	}{
		{0, Point{10, 220}, 100, 200},
		{90, Point{10, 20}, 200, 100},
		{180, Point{110, 20}, 100, 200},
		{270, Point{110, 220}, 200, 100},
	}
	for _, tt := range tests {
		m := PageToDevice(crop, tt.rotate, 2)
		if got := m.Transform(tt.topLeftSource); !near(got, Point{0, 0}) {
			t.Fatalf("rotate %d: top-left maps to %v", tt.rotate, got)
		}
		box := crop.Transform(m)
		if math.Abs(box.Width()-2*tt.w) > 1e-9 || math.Abs(box.Height()-2*tt.h) > 1e-9 || box.X1 != 0 || box.Y1 != 0 {
			t.Fatalf("rotate %d: device box %v", tt.rotate, box)
		}
	}
}

func TestRectOps(t *testing.T) {
	r := Rect{10, 10, 0, 0}.Normalize()
	if r != (Rect{0, 0, 10, 10}) {
		t.Fatalf("normalize: %v", r)
	}
	if got := r.Intersect(Rect{5, 5, 20, 20}); got != (Rect{5, 5, 10, 10}) {
		t.Fatalf("intersect: %v", got)
	}
	if !r.Intersect(Rect{20, 20, 30, 30}).Empty() {
		t.Fatal("disjoint rectangles should intersect to empty")
	}
}
