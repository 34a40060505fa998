package material

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// ErrDegenerateRegion is returned when a region has no area inside the
// frame and therefore carries no surface evidence.
var ErrDegenerateRegion = fmt.Errorf("material: region has no pixels inside frame")

// Analyzer reduces a region of a frame to a Measurement. The pipeline
// depends on this interface so classification logic can be tested without
// image data.
type Analyzer interface {
	Measure(frame gocv.Mat, region image.Rectangle) (Measurement, error)
}

// HistogramAnalyzer measures entropy over a 256-bin grayscale histogram
// and glare as the fraction of pixels strictly brighter than
// BrightThreshold.
type HistogramAnalyzer struct {
	// BrightThreshold is the grayscale value (0..255) above which a pixel
	// counts as a specular highlight.
	BrightThreshold int
}

// NewHistogramAnalyzer returns an analyzer with the production highlight
// threshold.
func NewHistogramAnalyzer() *HistogramAnalyzer {
	return &HistogramAnalyzer{BrightThreshold: 200}
}

// Measure computes the Measurement for region within frame. The region is
// clipped to the frame bounds first; a region left empty by clipping
// returns ErrDegenerateRegion.
func (a *HistogramAnalyzer) Measure(frame gocv.Mat, region image.Rectangle) (Measurement, error) {
	if frame.Empty() {
		return Measurement{}, fmt.Errorf("material: empty frame")
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	region = region.Intersect(bounds)
	if region.Empty() {
		return Measurement{}, ErrDegenerateRegion
	}

	roi := frame.Region(region)
	defer roi.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray); err != nil {
		return Measurement{}, fmt.Errorf("material: grayscale conversion: %w", err)
	}

	hist := gocv.NewMat()
	defer hist.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	if err := gocv.CalcHist([]gocv.Mat{gray}, []int{0}, mask, &hist, []int{256}, []float64{0, 256}, false); err != nil {
		return Measurement{}, fmt.Errorf("material: histogram: %w", err)
	}

	total := float64(region.Dx() * region.Dy())
	probs := make([]float64, 256)
	for i := 0; i < 256; i++ {
		probs[i] = float64(hist.GetFloatAt(i, 0)) / total
	}

	bright := gocv.NewMat()
	defer bright.Close()
	gocv.Threshold(gray, &bright, float32(a.BrightThreshold), 255, gocv.ThresholdBinary)

	return Measurement{
		EntropyBits: stat.Entropy(probs) / math.Ln2,
		GlareRatio:  float64(gocv.CountNonZero(bright)) / total,
	}, nil
}
