// Package frames abstracts where video comes from. A Source yields frames
// one at a time from a camera device, a stream URL, or a recorded file;
// the pipeline only sees the Source interface so tests can feed synthetic
// frames.
package frames

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gocv.io/x/gocv"
)

// ErrExhausted is returned when a finite source has delivered its last
// frame. A live source never returns it.
var ErrExhausted = errors.New("frames: source exhausted")

// ErrRead is returned when a live source fails to deliver a frame. The
// caller may retry; repeated ErrRead usually means the camera went away.
var ErrRead = errors.New("frames: read failed")

// Source yields frames until closed.
type Source interface {
	// Read overwrites frame with the next frame. Returns ErrExhausted
	// when a finite source ends and ErrRead on a transient live failure.
	Read(frame *gocv.Mat) error
	Close() error
}

// CaptureSource reads from a camera device index, a stream URL, or a
// video file via OpenCV.
type CaptureSource struct {
	capture *gocv.VideoCapture
	spec    string
	isFile  bool
	loop    bool
}

// Open opens spec as a frame source. A spec naming an existing file opens
// as a recording; a small integer opens as a local camera device;
// anything else is treated as a stream URL. loop only applies to
// recordings: when set, a recording restarts from the first frame instead
// of exhausting.
func Open(spec string, loop bool) (*CaptureSource, error) {
	src := &CaptureSource{spec: spec, loop: loop}

	var err error
	if _, statErr := os.Stat(spec); statErr == nil {
		src.capture, err = gocv.VideoCaptureFile(spec)
		src.isFile = true
	} else if id, ok := deviceID(spec); ok {
		src.capture, err = gocv.VideoCaptureDevice(id)
	} else {
		src.capture, err = gocv.OpenVideoCapture(spec)
	}
	if err != nil {
		return nil, fmt.Errorf("frames: open %q: %w", spec, err)
	}
	return src, nil
}

// deviceID reports whether spec names a local camera device index.
func deviceID(spec string) (int, bool) {
	id, err := strconv.Atoi(spec)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// Read implements Source.
func (s *CaptureSource) Read(frame *gocv.Mat) error {
	if ok := s.capture.Read(frame); ok && !frame.Empty() {
		return nil
	}
	if !s.isFile {
		return ErrRead
	}
	if !s.loop {
		return ErrExhausted
	}
	// Rewind and try once; a recording that fails to restart is done.
	s.capture.Set(gocv.VideoCapturePosFrames, 0)
	if ok := s.capture.Read(frame); ok && !frame.Empty() {
		return nil
	}
	return ErrExhausted
}

// Close implements Source.
func (s *CaptureSource) Close() error {
	return s.capture.Close()
}
