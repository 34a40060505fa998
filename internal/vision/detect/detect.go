// Package detect owns the frame-detector boundary of the vision pipeline.
//
// Responsibilities: the Detection type consumed by association and
// classification, the Detector contract, and the gocv DNN adapter.
// The detection model itself is a black box; this package never reasons
// about what produced a box, only about its shape on the wire.
package detect

import (
	"image"

	"gocv.io/x/gocv"
)

// NoTrackID is the sentinel for detections without an externally assigned
// persistent identifier.
const NoTrackID int64 = -1

// Detection is a single per-frame observation from the detector.
// Boxes are axis-aligned in full-frame pixel coordinates, already
// canonicalised (Min < Max on both axes).
type Detection struct {
	Box        image.Rectangle
	Label      string
	Confidence float64

	// TrackID is the detector's persistent identifier for this physical
	// object, stable across consecutive frames while the object remains
	// tracked. NoTrackID when the detector does not track.
	TrackID int64
}

// HasTrackID reports whether the detection carries a persistent identifier.
func (d Detection) HasTrackID() bool {
	return d.TrackID != NoTrackID
}

// Detector produces raw detections for a single frame. Implementations
// must be safe to call repeatedly from one goroutine; they need not be
// safe for concurrent use (the pipeline is single-writer).
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
	Close() error
}
