// Package overlay draws session annotations onto frames for the live
// stream: bounding boxes coloured by alert state, an elapsed-time label
// per tracked object, and the material tag. People get a plain box with
// no timer.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/usage.report/internal/vision/material"
)

var (
	colorActive   = color.RGBA{R: 255, G: 255, B: 0}   // open session, unclassified
	colorAlert    = color.RGBA{R: 255, G: 0, B: 0}     // alert fired
	colorMatte    = color.RGBA{R: 255, G: 0, B: 0}     // classified matte
	colorSpecular = color.RGBA{R: 0, G: 255, B: 0}     // classified specular
	colorPerson   = color.RGBA{R: 0, G: 255, B: 0}     // person, untimed
	colorLabel    = color.RGBA{R: 255, G: 255, B: 255} // label text
)

// Annotation is one drawable region.
type Annotation struct {
	Region   image.Rectangle
	Label    string
	Material material.Material // empty when not classified this frame

	// EntropyBits is the measured texture entropy shown in the label.
	// Only meaningful when Material is set.
	EntropyBits float64

	// GlareSeen marks that glare evidence (this frame, or remembered for
	// the identifier) forced the specular reading.
	GlareSeen bool

	Elapsed time.Duration
	Alert   bool

	// Untimed draws only the box, with no duration or material label.
	// Used for people, which are detected but never accounted.
	Untimed bool
}

// FormatElapsed renders a duration as MM:SS for the overlay label.
// Negative durations render as 00:00 and anything at or beyond 100
// minutes clamps to 99:59 so the label width stays fixed.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	if total > 99*60+59 {
		total = 99*60 + 59
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// labelText builds the text line drawn above the box: elapsed time, the
// material call with its entropy readout, and for specular reads the
// reason tag (remembered glare vs low entropy).
func labelText(a Annotation) string {
	text := a.Label + " " + FormatElapsed(a.Elapsed)
	if a.Material == "" {
		return text
	}
	text += fmt.Sprintf(" %s E:%.1f", a.Material, a.EntropyBits)
	if a.Material == material.Specular {
		if a.GlareSeen {
			text += " G-Mem"
		} else {
			text += " L-Ent"
		}
	}
	return text
}

// boxColor picks the box colour: alert state wins, then the material
// call, then the plain open-session colour.
func boxColor(a Annotation) color.RGBA {
	switch {
	case a.Untimed:
		return colorPerson
	case a.Alert:
		return colorAlert
	case a.Material == material.Matte:
		return colorMatte
	case a.Material == material.Specular:
		return colorSpecular
	default:
		return colorActive
	}
}

// Compose draws all annotations onto frame in place.
func Compose(frame *gocv.Mat, annotations []Annotation) error {
	for _, a := range annotations {
		if err := gocv.Rectangle(frame, a.Region, boxColor(a), 2); err != nil {
			return fmt.Errorf("overlay: draw box: %w", err)
		}
		if a.Untimed {
			continue
		}
		pt := image.Pt(a.Region.Min.X, a.Region.Min.Y-5)
		if pt.Y < 12 {
			// Label would fall off the top edge; draw inside the box.
			pt.Y = a.Region.Min.Y + 16
		}
		if err := gocv.PutText(frame, labelText(a), pt, gocv.FontHersheySimplex, 0.5, colorLabel, 1); err != nil {
			return fmt.Errorf("overlay: draw label: %w", err)
		}
	}
	return nil
}

// EncodeJPEG serialises the composed frame for the MJPEG stream and
// snapshot endpoints.
func EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", frame)
	if err != nil {
		return nil, fmt.Errorf("overlay: jpeg encode: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
