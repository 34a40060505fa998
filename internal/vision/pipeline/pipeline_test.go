package pipeline

import (
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/banshee-data/usage.report/internal/timeutil"
	"github.com/banshee-data/usage.report/internal/vision/associate"
	"github.com/banshee-data/usage.report/internal/vision/detect"
	"github.com/banshee-data/usage.report/internal/vision/material"
	"github.com/banshee-data/usage.report/internal/vision/sessions"
)

// fakeDetector replays one scripted detection set per call.
type fakeDetector struct {
	script [][]detect.Detection
	calls  int
	err    error
}

func (f *fakeDetector) Detect(gocv.Mat) ([]detect.Detection, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.script) {
		return nil, nil
	}
	dets := f.script[f.calls]
	f.calls++
	return dets, nil
}

func (f *fakeDetector) Close() error { return nil }

// fakeAnalyzer returns a fixed measurement for every region.
type fakeAnalyzer struct {
	m   material.Measurement
	err error
}

func (f *fakeAnalyzer) Measure(gocv.Mat, image.Rectangle) (material.Measurement, error) {
	return f.m, f.err
}

func newTestPipeline(t *testing.T, detector detect.Detector, analyzer material.Analyzer, clock timeutil.Clock) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Camera:   "bench-cam",
		Detector: detector,
		Matcher:  associate.NewGreedyMatcher(associate.DefaultGates()),
		Store:    sessions.NewStore(sessions.DefaultConfig(), nil),
		Memory:   material.NewMemory(material.DefaultThresholds(), 1800),
		Analyzer: analyzer,
		Clock:    clock,
	})
	require.NoError(t, err)
	return p
}

func newTestFrame(t *testing.T) *gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return &frame
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Camera: "cam"})
	assert.Error(t, err)

	_, err = New(Options{})
	assert.Error(t, err)
}

func TestProcessFrameOpensAndContinuesSession(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	detector := &fakeDetector{script: [][]detect.Detection{
		{{Box: box, Label: "cup", Confidence: 0.9, TrackID: detect.NoTrackID}},
		{{Box: box.Add(image.Pt(4, 0)), Label: "cup", Confidence: 0.9, TrackID: detect.NoTrackID}},
	}}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := newTestPipeline(t, detector, &fakeAnalyzer{m: material.Measurement{EntropyBits: 6.0}}, clock)
	frame := newTestFrame(t)

	result, err := p.ProcessFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Started)
	assert.NotEmpty(t, result.JPEG)
	require.Len(t, result.Sessions, 1)
	assert.Equal(t, int64(1), result.Sessions[0].ID)

	clock.Advance(40 * time.Millisecond)
	result, err = p.ProcessFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Matched)
	require.Len(t, result.Sessions, 1)
	assert.Equal(t, 40*time.Millisecond, result.Sessions[0].Accumulated)
}

func TestProcessFramePeopleAreNotSessioned(t *testing.T) {
	detector := &fakeDetector{script: [][]detect.Detection{
		{
			{Box: image.Rect(10, 10, 60, 120), Label: "person", Confidence: 0.9, TrackID: detect.NoTrackID},
			{Box: image.Rect(300, 300, 380, 380), Label: "cup", Confidence: 0.9, TrackID: detect.NoTrackID},
		},
	}}
	clock := timeutil.NewMockClock(time.Now())
	p := newTestPipeline(t, detector, &fakeAnalyzer{m: material.Measurement{EntropyBits: 6.0}}, clock)

	result, err := p.ProcessFrame(newTestFrame(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Started, "only the cup opens a session")
	require.Len(t, result.Sessions, 1)
}

func TestProcessFrameGlareLatchKeyedByTrackID(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	script := make([][]detect.Detection, 3)
	for i := range script {
		script[i] = []detect.Detection{{Box: box, Label: "cup", Confidence: 0.9, TrackID: 7}}
	}
	clock := timeutil.NewMockClock(time.Now())
	analyzer := &fakeAnalyzer{m: material.Measurement{EntropyBits: 6.0}}
	p := newTestPipeline(t, &fakeDetector{script: script}, analyzer, clock)
	frame := newTestFrame(t)

	_, err := p.ProcessFrame(frame)
	require.NoError(t, err)

	// One glaring frame latches the detector's identifier.
	analyzer.m = material.Measurement{EntropyBits: 6.0, GlareRatio: 0.02}
	clock.Advance(30 * time.Millisecond)
	_, err = p.ProcessFrame(frame)
	require.NoError(t, err)

	analyzer.m = material.Measurement{EntropyBits: 6.0}
	clock.Advance(30 * time.Millisecond)
	_, err = p.ProcessFrame(frame)
	require.NoError(t, err)

	assert.True(t, p.memory.GlareLatched(7))
	assert.False(t, p.memory.GlareLatched(1), "session ids do not key the glare history")
}

func TestProcessFrameGlareLatchSurvivesSessionTurnover(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	clock := timeutil.NewMockClock(time.Now())
	analyzer := &fakeAnalyzer{m: material.Measurement{EntropyBits: 6.0, GlareRatio: 0.02}}
	detector := &fakeDetector{script: [][]detect.Detection{
		{{Box: box, Label: "cup", Confidence: 0.9, TrackID: 3}},
		{}, // object out of view long enough to finalize the session
		{{Box: box, Label: "cup", Confidence: 0.9, TrackID: 3}},
	}}
	p := newTestPipeline(t, detector, analyzer, clock)
	frame := newTestFrame(t)

	result, err := p.ProcessFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Started)

	clock.Advance(sessions.DefaultConfig().GapTolerance + time.Second)
	result, err = p.ProcessFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Ended)

	// Identifier 3 comes back glare-free under a fresh session. The
	// tracker still knows it glared, so it must read specular.
	analyzer.m = material.Measurement{EntropyBits: 6.0}
	clock.Advance(30 * time.Millisecond)
	result, err = p.ProcessFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Started, "a new session opens for the reappearance")
	assert.True(t, p.memory.GlareLatched(3))

	mat, _, glareSeen := p.classify(frame, detect.Detection{Box: box, Label: "cup", TrackID: 3})
	assert.Equal(t, material.Specular, mat)
	assert.True(t, glareSeen)
}

func TestClassifyWithoutIdentifierHasNoMemory(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)
	clock := timeutil.NewMockClock(time.Now())
	analyzer := &fakeAnalyzer{m: material.Measurement{EntropyBits: 6.0, GlareRatio: 0.02}}
	p := newTestPipeline(t, &fakeDetector{}, analyzer, clock)
	frame := newTestFrame(t)
	det := detect.Detection{Box: box, Label: "cup", TrackID: detect.NoTrackID}

	mat, _, glareSeen := p.classify(frame, det)
	assert.Equal(t, material.Specular, mat, "glare this frame reads specular")
	assert.True(t, glareSeen)
	assert.Equal(t, 0, p.memory.TrackCount(), "nothing is remembered without an identifier")

	// The glare is forgotten the moment it stops: only this frame counts.
	analyzer.m = material.Measurement{EntropyBits: 6.0}
	mat, _, glareSeen = p.classify(frame, det)
	assert.Equal(t, material.Matte, mat)
	assert.False(t, glareSeen)
}

func TestProcessFrameDetectorErrorPropagates(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	detector := &fakeDetector{err: fmt.Errorf("camera unplugged")}
	p := newTestPipeline(t, detector, &fakeAnalyzer{}, clock)

	_, err := p.ProcessFrame(newTestFrame(t))
	assert.ErrorContains(t, err, "camera unplugged")
}

func TestProcessFrameDegenerateRegionSkipsClassification(t *testing.T) {
	detector := &fakeDetector{script: [][]detect.Detection{
		{{Box: image.Rect(100, 100, 200, 200), Label: "cup", Confidence: 0.9, TrackID: detect.NoTrackID}},
	}}
	clock := timeutil.NewMockClock(time.Now())
	analyzer := &fakeAnalyzer{err: material.ErrDegenerateRegion}
	p := newTestPipeline(t, detector, analyzer, clock)

	result, err := p.ProcessFrame(newTestFrame(t))
	require.NoError(t, err, "an unmeasurable region is not a frame failure")
	assert.Equal(t, 1, result.Stats.Started)
	assert.False(t, p.memory.GlareLatched(1))
}
