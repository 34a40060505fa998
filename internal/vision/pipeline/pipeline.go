package pipeline

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/banshee-data/usage.report/internal/metrics"
	"github.com/banshee-data/usage.report/internal/timeutil"
	"github.com/banshee-data/usage.report/internal/vision/associate"
	"github.com/banshee-data/usage.report/internal/vision/detect"
	"github.com/banshee-data/usage.report/internal/vision/material"
	"github.com/banshee-data/usage.report/internal/vision/overlay"
	"github.com/banshee-data/usage.report/internal/vision/sessions"
)

// PersonLabel is the detector class that is drawn but never accounted.
const PersonLabel = "person"

// Pipeline runs the per-frame sequence for one camera. It is not safe for
// concurrent ProcessFrame calls; the Runner drives it from a single
// goroutine.
type Pipeline struct {
	camera   string
	detector detect.Detector
	matcher  associate.Matcher
	store    *sessions.Store
	memory   *material.Memory
	analyzer material.Analyzer
	clock    timeutil.Clock
}

// Options wires a Pipeline. All fields are required except Clock, which
// defaults to real time.
type Options struct {
	Camera   string
	Detector detect.Detector
	Matcher  associate.Matcher
	Store    *sessions.Store
	Memory   *material.Memory
	Analyzer material.Analyzer
	Clock    timeutil.Clock
}

// New creates a Pipeline from opts.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Camera == "":
		return nil, fmt.Errorf("pipeline: camera name required")
	case opts.Detector == nil:
		return nil, fmt.Errorf("pipeline: detector required")
	case opts.Matcher == nil:
		return nil, fmt.Errorf("pipeline: matcher required")
	case opts.Store == nil:
		return nil, fmt.Errorf("pipeline: session store required")
	case opts.Memory == nil:
		return nil, fmt.Errorf("pipeline: material memory required")
	case opts.Analyzer == nil:
		return nil, fmt.Errorf("pipeline: material analyzer required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		camera:   opts.Camera,
		detector: opts.Detector,
		matcher:  opts.Matcher,
		store:    opts.Store,
		memory:   opts.Memory,
		analyzer: opts.Analyzer,
		clock:    clock,
	}, nil
}

// Result is one processed frame's output.
type Result struct {
	// JPEG is the annotated frame, ready for the stream.
	JPEG []byte

	// Stats summarises the lifecycle transitions this frame caused.
	Stats sessions.FrameStats

	// Sessions is the post-tick snapshot of open sessions.
	Sessions []sessions.Session
}

// ProcessFrame runs one tick: detect, associate, advance the lifecycle,
// classify materials, draw the overlay in place, and encode the frame.
func (p *Pipeline) ProcessFrame(frame *gocv.Mat) (Result, error) {
	now := p.clock.Now()
	p.memory.NextFrame()

	detections, err := p.detector.Detect(*frame)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: detect: %w", err)
	}

	var objects, people []detect.Detection
	for _, d := range detections {
		if d.Label == PersonLabel {
			people = append(people, d)
		} else {
			objects = append(objects, d)
		}
	}

	assignments := p.matcher.Match(objects, p.store.Candidates())
	resolved, stats := p.store.Update(objects, assignments, now)

	metrics.FramesProcessed.WithLabelValues(p.camera).Inc()
	metrics.SessionsStarted.WithLabelValues(p.camera).Add(float64(stats.Started))
	metrics.SessionsEnded.WithLabelValues(p.camera).Add(float64(stats.Ended))
	metrics.AlertsTriggered.WithLabelValues(p.camera).Add(float64(stats.Alerted))
	metrics.SessionsOpen.WithLabelValues(p.camera).Set(float64(p.store.Count()))

	if stats.Started > 0 || stats.Ended > 0 || stats.Alerted > 0 {
		diagf("%s: %d started, %d ended, %d alerted, %d open",
			p.camera, stats.Started, stats.Ended, stats.Alerted, p.store.Count())
	}
	tracef("%s: %d detections (%d people), %d matched",
		p.camera, len(detections), len(people), stats.Matched)

	snapshot := p.store.Snapshot()
	byID := make(map[int64]sessions.Session, len(snapshot))
	for _, s := range snapshot {
		byID[s.ID] = s
	}

	gapTolerance := p.store.Config().GapTolerance
	annotations := make([]overlay.Annotation, 0, len(objects)+len(people))
	for i, obj := range objects {
		s, ok := byID[resolved[i]]
		if !ok {
			continue
		}
		mat, meas, glareSeen := p.classify(frame, obj)
		annotations = append(annotations, overlay.Annotation{
			Region:      obj.Box,
			Label:       obj.Label,
			Material:    mat,
			EntropyBits: meas.EntropyBits,
			GlareSeen:   glareSeen,
			Elapsed:     s.Elapsed(now, gapTolerance),
			Alert:       s.AlertFired,
		})
	}
	for _, person := range people {
		annotations = append(annotations, overlay.Annotation{
			Region:  person.Box,
			Label:   person.Label,
			Untimed: true,
		})
	}

	if err := overlay.Compose(frame, annotations); err != nil {
		return Result{}, fmt.Errorf("pipeline: compose: %w", err)
	}
	jpeg, err := overlay.EncodeJPEG(*frame)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: encode: %w", err)
	}

	return Result{JPEG: jpeg, Stats: stats, Sessions: snapshot}, nil
}

// classify measures the detection's region and classifies its surface.
// Detections carrying the detector's persistent identifier fold into the
// per-identifier glare history; without one, only this frame's evidence
// counts and nothing is remembered. A region too degenerate to measure
// leaves the annotation untagged.
func (p *Pipeline) classify(frame *gocv.Mat, obj detect.Detection) (material.Material, material.Measurement, bool) {
	m, err := p.analyzer.Measure(*frame, obj.Box)
	if err != nil {
		diagf("%s: %s: material measure: %v", p.camera, obj.Label, err)
		return "", material.Measurement{}, false
	}
	if obj.HasTrackID() {
		mat := p.memory.Observe(obj.TrackID, m)
		return mat, m, p.memory.GlareLatched(obj.TrackID)
	}
	th := p.memory.Thresholds()
	glareNow := m.GlareRatio > th.GlareRatio
	return material.Classify(m, glareNow, th), m, glareNow
}

// Sessions returns the current open-session snapshot.
func (p *Pipeline) Sessions() []sessions.Session {
	return p.store.Snapshot()
}

// Camera returns the camera name this pipeline serves.
func (p *Pipeline) Camera() string {
	return p.camera
}
