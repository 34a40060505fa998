package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/usage.report/internal/frames"
	"github.com/banshee-data/usage.report/internal/metrics"
	"github.com/banshee-data/usage.report/internal/vision/sessions"
)

// readRetryDelay is how long the capture loop backs off after a transient
// read failure before trying the source again.
const readRetryDelay = 250 * time.Millisecond

// Runner owns the capture and processing goroutines for one pipeline.
// Frames pass from capture to processing through a single-slot channel:
// when processing falls behind, the capture side replaces the waiting
// frame, so the processor always works on the newest frame and backlog
// never builds.
type Runner struct {
	pipeline *Pipeline
	source   frames.Source

	paused atomic.Bool
	slot   chan gocv.Mat

	mu     sync.RWMutex
	latest []byte
	seq    uint64
}

// NewRunner creates a Runner for pipeline reading from source. The caller
// retains ownership of source and closes it after Run returns.
func NewRunner(pipeline *Pipeline, source frames.Source) *Runner {
	return &Runner{
		pipeline: pipeline,
		source:   source,
		slot:     make(chan gocv.Mat, 1),
	}
}

// Run processes frames until ctx is cancelled or the source is exhausted.
func (r *Runner) Run(ctx context.Context) error {
	go r.capture(ctx)
	return r.process(ctx)
}

func (r *Runner) capture(ctx context.Context) {
	camera := r.pipeline.Camera()
	frame := gocv.NewMat()
	defer frame.Close()

	for ctx.Err() == nil {
		err := r.source.Read(&frame)
		if errors.Is(err, frames.ErrExhausted) {
			opsf("%s: source exhausted", camera)
			close(r.slot)
			return
		}
		if err != nil {
			metrics.FrameReadErrors.WithLabelValues(camera).Inc()
			opsf("%s: frame read: %v", camera, err)
			r.pipeline.clock.Sleep(readRetryDelay)
			continue
		}

		clone := frame.Clone()
		select {
		case stale := <-r.slot:
			stale.Close()
			metrics.FramesDropped.WithLabelValues(camera).Inc()
			tracef("%s: dropped stale frame", camera)
		default:
		}
		select {
		case r.slot <- clone:
		case <-ctx.Done():
			clone.Close()
			return
		}
	}
}

func (r *Runner) process(ctx context.Context) error {
	camera := r.pipeline.Camera()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case frame, ok := <-r.slot:
			if !ok {
				return nil
			}
			if r.paused.Load() {
				frame.Close()
				continue
			}
			result, err := r.pipeline.ProcessFrame(&frame)
			frame.Close()
			if err != nil {
				opsf("%s: process frame: %v", camera, err)
				continue
			}
			r.mu.Lock()
			r.latest = result.JPEG
			r.seq++
			r.mu.Unlock()
		}
	}
}

// drain closes any frame left in the slot after cancellation.
func (r *Runner) drain() {
	select {
	case frame, ok := <-r.slot:
		if ok {
			frame.Close()
		}
	default:
	}
}

// SetPaused toggles processing. While paused, frames are read and
// discarded: sessions stop accruing and finalise naturally once their gap
// tolerance runs out.
func (r *Runner) SetPaused(paused bool) {
	was := r.paused.Swap(paused)
	if was != paused {
		opsf("%s: paused=%v", r.pipeline.Camera(), paused)
	}
}

// Paused reports whether processing is paused.
func (r *Runner) Paused() bool {
	return r.paused.Load()
}

// Camera returns the camera name this runner serves.
func (r *Runner) Camera() string {
	return r.pipeline.Camera()
}

// Sessions returns the current open-session snapshot.
func (r *Runner) Sessions() []sessions.Session {
	return r.pipeline.Sessions()
}

// SessionConfig returns the lifecycle parameters in effect.
func (r *Runner) SessionConfig() sessions.Config {
	return r.pipeline.store.Config()
}

// LatestJPEG returns the most recently encoded frame and its sequence
// number. The sequence increments once per processed frame, so pollers can
// skip frames they have already served. Returns nil before the first frame.
func (r *Runner) LatestJPEG() ([]byte, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.seq
}
