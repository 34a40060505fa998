package material

// Material is the surface-finish class assigned to a tracked object.
type Material string

const (
	// Matte surfaces have rich texture and have never shown a specular
	// highlight.
	Matte Material = "matte"

	// Specular surfaces are either low-texture or have glared at least
	// once while tracked.
	Specular Material = "specular"
)

// Measurement is one frame's worth of surface evidence for a region.
type Measurement struct {
	// EntropyBits is the Shannon entropy of the region's grayscale
	// histogram, in bits. A uniform gray patch scores 0; a maximally
	// varied 8-bit patch scores 8.
	EntropyBits float64

	// GlareRatio is the fraction of region pixels at or above the bright
	// threshold.
	GlareRatio float64
}

// Thresholds holds the classifier decision boundaries.
type Thresholds struct {
	// EntropyBits is the texture boundary: strictly above reads as matte
	// texture, at or below reads as smooth.
	EntropyBits float64

	// GlareRatio is the highlight boundary: strictly above counts as a
	// glare sighting for the track.
	GlareRatio float64
}

// DefaultThresholds returns the production decision boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{EntropyBits: 5.5, GlareRatio: 0.005}
}

// Classify applies the decision rule: matte requires textured entropy AND a
// glare-free history; everything else is specular.
func Classify(m Measurement, glareLatched bool, th Thresholds) Material {
	if m.EntropyBits > th.EntropyBits && !glareLatched {
		return Matte
	}
	return Specular
}

type trackState struct {
	glareSeen    bool
	lastSeenTick uint64
}

// Memory carries the per-track glare latch across frames. It is not safe
// for concurrent use; the pipeline owns one Memory per camera and drives it
// from the frame loop.
type Memory struct {
	thresholds     Thresholds
	evictionFrames uint64

	tracks map[int64]*trackState
	tick   uint64
}

// NewMemory creates an empty Memory. evictionFrames is how many frames a
// track may go unobserved before its latch state is forgotten; zero
// disables eviction.
func NewMemory(th Thresholds, evictionFrames int) *Memory {
	ev := uint64(0)
	if evictionFrames > 0 {
		ev = uint64(evictionFrames)
	}
	return &Memory{
		thresholds:     th,
		evictionFrames: ev,
		tracks:         make(map[int64]*trackState),
	}
}

// NextFrame advances the frame counter and evicts tracks that have gone
// unobserved for longer than the eviction window. Call once per processed
// frame, before the frame's Observe calls.
func (mem *Memory) NextFrame() {
	mem.tick++
	if mem.evictionFrames == 0 {
		return
	}
	for id, st := range mem.tracks {
		if mem.tick-st.lastSeenTick > mem.evictionFrames {
			delete(mem.tracks, id)
		}
	}
}

// Observe folds one frame's measurement into the track's history and
// returns the resulting classification. A glare sighting latches: once a
// track has glared, every later Observe returns Specular regardless of
// entropy, until the track is evicted.
func (mem *Memory) Observe(trackID int64, m Measurement) Material {
	st, ok := mem.tracks[trackID]
	if !ok {
		st = &trackState{}
		mem.tracks[trackID] = st
	}
	st.lastSeenTick = mem.tick
	if m.GlareRatio > mem.thresholds.GlareRatio {
		st.glareSeen = true
	}
	return Classify(m, st.glareSeen, mem.thresholds)
}

// Thresholds returns the decision boundaries this Memory classifies with.
func (mem *Memory) Thresholds() Thresholds {
	return mem.thresholds
}

// GlareLatched reports whether the track has a recorded glare sighting.
func (mem *Memory) GlareLatched(trackID int64) bool {
	st, ok := mem.tracks[trackID]
	return ok && st.glareSeen
}

// TrackCount returns the number of tracks currently remembered.
func (mem *Memory) TrackCount() int {
	return len(mem.tracks)
}
