package geometry

import (
	"image"
	"math"
)

// IoU computes the intersection-over-union of two boxes. Boxes with no
// overlap (or a zero-area union) score 0.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	interArea := inter.Dx() * inter.Dy()
	denom := Area(a) + Area(b) - interArea
	if denom == 0 {
		return 0
	}
	return float64(interArea) / float64(denom)
}

// Area returns the pixel area of r.
func Area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// Centroid returns the centre of r in continuous pixel coordinates.
func Centroid(r image.Rectangle) (x, y float64) {
	return float64(r.Min.X+r.Max.X) / 2, float64(r.Min.Y+r.Max.Y) / 2
}

// CentroidDistance returns the Euclidean distance between the centres of
// two boxes.
func CentroidDistance(a, b image.Rectangle) float64 {
	ax, ay := Centroid(a)
	bx, by := Centroid(b)
	return math.Hypot(ax-bx, ay-by)
}

// RelativeAreaChange returns |area(next) − area(prev)| / area(prev).
// A zero-area prev is treated as area 1 to keep the ratio finite.
func RelativeAreaChange(prev, next image.Rectangle) float64 {
	prevArea := Area(prev)
	if prevArea == 0 {
		prevArea = 1
	}
	return math.Abs(float64(Area(next)-Area(prev))) / float64(prevArea)
}

// Clip intersects r with the frame bounds [0,0,width,height]. Detections
// partially outside the frame are trimmed; fully-outside detections clip
// to an empty rectangle, which callers must reject before region analysis.
func Clip(r image.Rectangle, width, height int) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, width, height))
}

// Canon returns r with Min/Max ordered so Dx and Dy are non-negative.
// Upstream detectors occasionally emit inverted corners; lifecycle and
// classification code assumes canonical boxes.
func Canon(r image.Rectangle) image.Rectangle {
	return r.Canon()
}
