package detect

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/usage.report/internal/vision/geometry"
)

// DNNDetector runs a frozen SSD-style detection network via the OpenCV DNN
// module. It emits one Detection per network row above the confidence gate.
// SSD networks carry no temporal state, so every detection has NoTrackID;
// identifier-aware classification degrades to instantaneous glare only.
type DNNDetector struct {
	net           gocv.Net
	classes       map[int]string
	minConfidence float64
	inputSize     image.Point
}

// DNNConfig holds construction parameters for a DNNDetector.
type DNNConfig struct {
	ModelPath  string
	ConfigPath string

	// Classes maps network class ids to labels. Rows with unknown ids are
	// discarded.
	Classes map[int]string

	// MinConfidence gates rows before they become detections.
	MinConfidence float64
}

// NewDNNDetector loads the network from disk. Errors here are fatal to the
// pipeline instance, matching source-unavailable semantics.
func NewDNNDetector(cfg DNNConfig) (*DNNDetector, error) {
	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load detection network from %q / %q", cfg.ModelPath, cfg.ConfigPath)
	}
	return &DNNDetector{
		net:           net,
		classes:       cfg.Classes,
		minConfidence: cfg.MinConfidence,
		inputSize:     image.Pt(300, 300),
	}, nil
}

// Detect runs a forward pass and decodes the SSD output tensor
// [1,1,N,7] = (batch, classID, confidence, left, top, right, bottom)
// with normalised coordinates.
func (d *DNNDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("detect on empty frame")
	}

	blob := gocv.BlobFromImage(frame, 1.0/127.5, d.inputSize, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	width := frame.Cols()
	height := frame.Rows()

	var detections []Detection
	rows := out.Total() / 7
	for i := 0; i < rows; i++ {
		confidence := float64(out.GetFloatAt(0, i*7+2))
		if confidence < d.minConfidence {
			continue
		}

		classID := int(out.GetFloatAt(0, i*7+1))
		label, known := d.classes[classID]
		if !known {
			continue
		}

		left := int(out.GetFloatAt(0, i*7+3) * float32(width))
		top := int(out.GetFloatAt(0, i*7+4) * float32(height))
		right := int(out.GetFloatAt(0, i*7+5) * float32(width))
		bottom := int(out.GetFloatAt(0, i*7+6) * float32(height))

		box := geometry.Clip(geometry.Canon(image.Rect(left, top, right, bottom)), width, height)
		if box.Empty() {
			continue
		}

		detections = append(detections, Detection{
			Box:        box,
			Label:      label,
			Confidence: confidence,
			TrackID:    NoTrackID,
		})
	}

	return detections, nil
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	return d.net.Close()
}
