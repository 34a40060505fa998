package sessions

import (
	"image"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/usage.report/internal/vision/associate"
	"github.com/banshee-data/usage.report/internal/vision/detect"
)

// Session is a contiguous, gap-tolerant period during which one physical
// object is attributed a single identity for duration accounting.
type Session struct {
	// ID is assigned monotonically per Store and never reused.
	ID int64

	// Box is the last box the session was observed in.
	Box image.Rectangle

	StartedAt  time.Time
	LastSeenAt time.Time

	// Accumulated is the continuously-attributable presence time. It only
	// grows, and never beyond wall-clock time since StartedAt: each frame
	// adds at most the real gap since the previous sighting, and only when
	// that gap is within tolerance.
	Accumulated time.Duration

	// AlertFired latches true once the accumulated duration crosses the
	// alert threshold. Never resets.
	AlertFired bool
}

// Elapsed returns the duration to display for this session at time now:
// the accumulated total plus the live partial gap since the last sighting,
// provided that gap is still within tolerance (and so would be bridged by
// the next sighting).
func (s Session) Elapsed(now time.Time, gapTolerance time.Duration) time.Duration {
	gap := now.Sub(s.LastSeenAt)
	if gap > 0 && gap <= gapTolerance {
		return s.Accumulated + gap
	}
	return s.Accumulated
}

// Config holds the lifecycle timing parameters.
type Config struct {
	// GapTolerance is the longest a session may go undetected while still
	// counting as the same usage episode.
	GapTolerance time.Duration

	// AlertThreshold is the accumulated duration at which the one-shot
	// alert fires.
	AlertThreshold time.Duration
}

// DefaultConfig returns the production lifecycle parameters.
func DefaultConfig() Config {
	return Config{
		GapTolerance:   100 * time.Millisecond,
		AlertThreshold: 15 * time.Minute,
	}
}

// Recorder receives lifecycle events as they happen, interleaved with the
// state transitions that produce them. Implementations must be best-effort:
// a Recorder never returns an error to the lifecycle, because an audit
// failure must not abort frame processing.
type Recorder interface {
	UsageStart(s Session)
	UsageEnd(s Session)
	AlertTriggered(s Session)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) UsageStart(Session)     {}
func (NopRecorder) UsageEnd(Session)       {}
func (NopRecorder) AlertTriggered(Session) {}

// FrameStats summarises one lifecycle tick for metrics and logging.
type FrameStats struct {
	Matched int // detections that continued an existing session
	Started int // sessions created this tick
	Ended   int // sessions finalised this tick
	Alerted int // alerts fired this tick
}

// Store owns all open sessions for one pipeline instance. Exactly one
// goroutine may call Update; the read accessors take snapshots so HTTP
// viewers and the compositor never hold lifecycle state across a tick.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	nextID   int64

	config   Config
	recorder Recorder
}

// NewStore creates an empty Store. A nil recorder is replaced with
// NopRecorder.
func NewStore(config Config, recorder Recorder) *Store {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Store{
		sessions: make(map[int64]*Session),
		nextID:   1,
		config:   config,
		recorder: recorder,
	}
}

// Candidates returns the open sessions as matcher input, ordered by id so
// association is deterministic for a given store state.
func (st *Store) Candidates() []associate.Candidate {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]associate.Candidate, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, associate.Candidate{SessionID: s.ID, Box: s.Box})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Update applies one lifecycle tick at time now. assignments must be the
// matcher output for detections against this store's Candidates().
//
// Order within the tick: matched sessions update and unmatched detections
// open new sessions (usage_start), then disappeared sessions finalise
// (usage_end, removed after the event is emitted), then alerts evaluate
// against every still-open session.
//
// The returned slice holds the resolved session id per detection: the
// matched session for continued detections, the freshly created session
// for the rest.
func (st *Store) Update(detections []detect.Detection, assignments []int64, now time.Time) ([]int64, FrameStats) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var stats FrameStats
	resolved := make([]int64, len(detections))
	seen := make(map[int64]bool, len(detections))

	for i, det := range detections {
		var sid int64
		if i < len(assignments) {
			sid = assignments[i]
		}

		if s, ok := st.sessions[sid]; sid != associate.NoSession && ok {
			// Bridge the gap since the last sighting only when it is
			// within tolerance; refresh last-seen unconditionally so a
			// session sighted this frame is never finalised for a slow
			// prior update.
			gap := now.Sub(s.LastSeenAt)
			if gap >= 0 && gap <= st.config.GapTolerance {
				s.Accumulated += gap
			}
			s.Box = det.Box
			s.LastSeenAt = now
			seen[sid] = true
			resolved[i] = sid
			stats.Matched++
			continue
		}

		s := &Session{
			ID:         st.nextID,
			Box:        det.Box,
			StartedAt:  now,
			LastSeenAt: now,
		}
		st.nextID++
		st.sessions[s.ID] = s
		seen[s.ID] = true
		resolved[i] = s.ID
		stats.Started++
		st.recorder.UsageStart(*s)
	}

	// Finalise sessions that stayed invisible past tolerance. Sessions
	// within tolerance are left untouched: no accrual while invisible.
	for id, s := range st.sessions {
		if seen[id] {
			continue
		}
		if now.Sub(s.LastSeenAt) > st.config.GapTolerance {
			st.recorder.UsageEnd(*s)
			delete(st.sessions, id)
			stats.Ended++
		}
	}

	for _, s := range st.sessions {
		if !s.AlertFired && s.Accumulated >= st.config.AlertThreshold {
			s.AlertFired = true
			stats.Alerted++
			st.recorder.AlertTriggered(*s)
		}
	}

	return resolved, stats
}

// Snapshot returns copies of all open sessions ordered by id.
func (st *Store) Snapshot() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of open sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Config returns the store's lifecycle parameters.
func (st *Store) Config() Config {
	return st.config
}
