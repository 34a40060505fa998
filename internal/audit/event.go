package audit

import (
	"image"
	"time"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindUsageStart     Kind = "usage_start"
	KindUsageEnd       Kind = "usage_end"
	KindAlertTriggered Kind = "alert_triggered"
)

// Event is one audit trail row. Box is [x1,y1,x2,y2] in pixel
// coordinates. DurationSeconds and AlertTriggered are only present on
// usage_end: the duration is the session's accumulated usage truncated to
// whole seconds.
type Event struct {
	ID              string    `json:"event_id"`
	Timestamp       time.Time `json:"timestamp"`
	Camera          string    `json:"camera"`
	Kind            Kind      `json:"event"`
	SessionID       int64     `json:"session_id"`
	Box             [4]int    `json:"box"`
	DurationSeconds *int64    `json:"duration_seconds,omitempty"`
	AlertTriggered  *bool     `json:"alert_triggered,omitempty"`
}

// boxCoords flattens a rectangle into the audit row layout.
func boxCoords(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

// Sink persists events. Implementations must be safe for use from a
// single writer goroutine; the Trail serialises writes.
type Sink interface {
	Write(e Event) error
	Close() error
}
