package audit

import (
	"github.com/google/uuid"

	"github.com/banshee-data/usage.report/internal/monitoring"
	"github.com/banshee-data/usage.report/internal/timeutil"
	"github.com/banshee-data/usage.report/internal/vision/sessions"
)

// Trail fans lifecycle events out to every sink. It implements
// sessions.Recorder: the lifecycle hands it session snapshots and the
// Trail stamps them with an event id, the camera name, and the clock's
// current time.
type Trail struct {
	camera string
	clock  timeutil.Clock
	sinks  []Sink

	// OnWriteError is called for each failed sink write, after the
	// failure has been logged. Used to bump the dropped-write counter.
	// May be nil.
	OnWriteError func(err error)
}

// NewTrail creates a Trail writing to sinks. A nil clock uses real time.
func NewTrail(camera string, clock timeutil.Clock, sinks ...Sink) *Trail {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Trail{camera: camera, clock: clock, sinks: sinks}
}

// UsageStart implements sessions.Recorder.
func (t *Trail) UsageStart(s sessions.Session) {
	t.write(Event{
		Kind:      KindUsageStart,
		SessionID: s.ID,
		Box:       boxCoords(s.Box),
	})
}

// UsageEnd implements sessions.Recorder.
func (t *Trail) UsageEnd(s sessions.Session) {
	seconds := int64(s.Accumulated.Seconds())
	alerted := s.AlertFired
	t.write(Event{
		Kind:            KindUsageEnd,
		SessionID:       s.ID,
		Box:             boxCoords(s.Box),
		DurationSeconds: &seconds,
		AlertTriggered:  &alerted,
	})
}

// AlertTriggered implements sessions.Recorder.
func (t *Trail) AlertTriggered(s sessions.Session) {
	seconds := int64(s.Accumulated.Seconds())
	t.write(Event{
		Kind:            KindAlertTriggered,
		SessionID:       s.ID,
		Box:             boxCoords(s.Box),
		DurationSeconds: &seconds,
	})
}

func (t *Trail) write(e Event) {
	e.ID = uuid.NewString()
	e.Timestamp = t.clock.Now().UTC()
	e.Camera = t.camera

	for _, sink := range t.sinks {
		if err := sink.Write(e); err != nil {
			monitoring.Logf("audit: dropped %s event for session %d: %v", e.Kind, e.SessionID, err)
			if t.OnWriteError != nil {
				t.OnWriteError(err)
			}
		}
	}
}

// Close closes every sink, returning the first error.
func (t *Trail) Close() error {
	var first error
	for _, sink := range t.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
