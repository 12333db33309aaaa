package colormap

import (
	"image/color"
	"math"
	"testing"
)

// TestRampEndpoints verifies out-of-range and NaN inputs clamp to the ends
func TestRampEndpoints(t *testing.T) {
	first := color.NRGBA{68, 1, 84, 255}
	last := color.NRGBA{253, 231, 37, 255}

	cases := []struct {
		t    float64
		want color.Color
	}{
		{0, first},
		{-1, first},
		{math.NaN(), first},
		{1, last},
		{2.5, last},
	}
	for _, c := range cases {
		if got := Viridis.At(c.t); got != c.want {
			t.Errorf("Viridis.At(%v) = %v, want %v", c.t, got, c.want)
		}
	}
}

// TestRampMonotonicGray verifies the gray ramp brightens with intensity
func TestRampMonotonicGray(t *testing.T) {
	prev := -1
	for i := 0; i <= 10; i++ {
		c := Gray.At(float64(i) / 10).(color.NRGBA)
		if int(c.R) < prev {
			t.Fatalf("gray ramp not monotonic at %d: %v", i, c)
		}
		if c.R != c.G || c.G != c.B {
			t.Fatalf("gray ramp produced a tinted color: %v", c)
		}
		prev = int(c.R)
	}
}

// TestRampInterpolation verifies the midpoint of a two-color ramp blends
func TestRampInterpolation(t *testing.T) {
	c := Gray.At(0.5).(color.NRGBA)
	if c.R < 120 || c.R > 135 {
		t.Errorf("gray midpoint = %v, want about 128", c.R)
	}
}

// TestByName verifies colormap lookup with a viridis default
func TestByName(t *testing.T) {
	if ByName("gray").At(1) != Gray.At(1) {
		t.Error("gray lookup failed")
	}
	if ByName("grey").At(1) != Gray.At(1) {
		t.Error("grey alias failed")
	}
	if ByName("anything").At(0) != Viridis.At(0) {
		t.Error("unknown name did not default to viridis")
	}
}
