package utils

import (
	"math"
	"testing"
)

func TestArea(t *testing.T) {
	tests := []struct {
		name string
		box  Box
		want int
	}{
		{"simple", Box{0, 0, 10, 10}, 100},
		{"offset", Box{5, 5, 15, 25}, 200},
		{"zero width", Box{10, 0, 10, 10}, 0},
		{"inverted", Box{10, 10, 0, 0}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.box.Area(); got != tc.want {
				t.Errorf("Area() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestIntersectionOverUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{"identical", Box{0, 0, 100, 100}, Box{0, 0, 100, 100}, 1.0},
		{"disjoint", Box{0, 0, 100, 100}, Box{200, 200, 300, 300}, 0.0},
		{"touching edges", Box{0, 0, 100, 100}, Box{100, 0, 200, 100}, 0.0},
		// 50x100 overlap over a 15000px union
		{"half overlap", Box{0, 0, 100, 100}, Box{50, 0, 150, 100}, 5000.0 / 15000.0},
		{"contained", Box{0, 0, 100, 100}, Box{25, 25, 75, 75}, 2500.0 / 10000.0},
		{"degenerate", Box{0, 0, 0, 0}, Box{0, 0, 100, 100}, 0.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IntersectionOverUnion(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("IoU = %g, want %g", got, tc.want)
			}
			// IoU is symmetric
			if rev := IntersectionOverUnion(tc.b, tc.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("IoU not symmetric: %g vs %g", got, rev)
			}
		})
	}
}
