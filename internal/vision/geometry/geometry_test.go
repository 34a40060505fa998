package geometry

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b image.Rectangle
		want float64
	}{
		{
			name: "identical boxes",
			a:    image.Rect(10, 10, 50, 50),
			b:    image.Rect(10, 10, 50, 50),
			want: 1.0,
		},
		{
			name: "disjoint boxes",
			a:    image.Rect(0, 0, 10, 10),
			b:    image.Rect(100, 100, 110, 110),
			want: 0.0,
		},
		{
			name: "half overlap",
			a:    image.Rect(0, 0, 20, 10),
			b:    image.Rect(10, 0, 30, 10),
			// inter = 100, union = 200 + 200 - 100
			want: 100.0 / 300.0,
		},
		{
			name: "zero area boxes",
			a:    image.Rect(5, 5, 5, 5),
			b:    image.Rect(5, 5, 5, 5),
			want: 0.0,
		},
		{
			name: "contained box",
			a:    image.Rect(0, 0, 100, 100),
			b:    image.Rect(25, 25, 75, 75),
			want: 2500.0 / 10000.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-9)
			// IoU is symmetric.
			assert.InDelta(t, tt.want, IoU(tt.b, tt.a), 1e-9)
		})
	}
}

func TestCentroid(t *testing.T) {
	t.Parallel()

	x, y := Centroid(image.Rect(0, 0, 10, 20))
	assert.InDelta(t, 5.0, x, 1e-9)
	assert.InDelta(t, 10.0, y, 1e-9)

	// Odd extents land on half-pixel centres.
	x, y = Centroid(image.Rect(0, 0, 5, 5))
	assert.InDelta(t, 2.5, x, 1e-9)
	assert.InDelta(t, 2.5, y, 1e-9)
}

func TestCentroidDistance(t *testing.T) {
	t.Parallel()

	a := image.Rect(0, 0, 10, 10)
	b := image.Rect(30, 40, 40, 50)
	// Centres: (5,5) and (35,45) → 3-4-5 triangle scaled by 10.
	assert.InDelta(t, 50.0, CentroidDistance(a, b), 1e-9)
	assert.InDelta(t, 0.0, CentroidDistance(a, a), 1e-9)
}

func TestRelativeAreaChange(t *testing.T) {
	t.Parallel()

	prev := image.Rect(0, 0, 10, 10) // 100
	next := image.Rect(0, 0, 12, 10) // 120
	assert.InDelta(t, 0.2, RelativeAreaChange(prev, next), 1e-9)

	// Shrinking counts the same as growing.
	assert.InDelta(t, 1.0/6.0, RelativeAreaChange(next, prev), 1e-9)

	// Degenerate previous box stays finite.
	got := RelativeAreaChange(image.Rect(0, 0, 0, 0), next)
	assert.False(t, math.IsInf(got, 0))
	assert.InDelta(t, 120.0, got, 1e-9)
}

func TestClip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, image.Rect(0, 0, 10, 10), Clip(image.Rect(-5, -5, 10, 10), 640, 480))
	assert.Equal(t, image.Rect(630, 470, 640, 480), Clip(image.Rect(630, 470, 700, 500), 640, 480))
	assert.True(t, Clip(image.Rect(700, 500, 710, 510), 640, 480).Empty())
}

func TestCanon(t *testing.T) {
	t.Parallel()

	assert.Equal(t, image.Rect(10, 10, 50, 50), Canon(image.Rect(50, 50, 10, 10)))
}
