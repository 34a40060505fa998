package material

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	tests := []struct {
		name         string
		m            Measurement
		glareLatched bool
		want         Material
	}{
		{"textured glare-free is matte", Measurement{EntropyBits: 6.2}, false, Matte},
		{"smooth surface is specular", Measurement{EntropyBits: 4.0}, false, Specular},
		{"entropy exactly at boundary is specular", Measurement{EntropyBits: 5.5}, false, Specular},
		{"latched glare overrides texture", Measurement{EntropyBits: 6.2}, true, Specular},
		{"latched glare with smooth surface", Measurement{EntropyBits: 3.0}, true, Specular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.m, tt.glareLatched, th))
		})
	}
}

func TestMemoryGlareLatchesAcrossFrames(t *testing.T) {
	t.Parallel()

	mem := NewMemory(DefaultThresholds(), 1800)

	// Textured and glare-free at first: matte.
	mem.NextFrame()
	got := mem.Observe(7, Measurement{EntropyBits: 6.2, GlareRatio: 0.0})
	assert.Equal(t, Matte, got)

	// One glaring frame flips the track to specular.
	mem.NextFrame()
	got = mem.Observe(7, Measurement{EntropyBits: 6.2, GlareRatio: 0.02})
	assert.Equal(t, Specular, got)

	// Glare gone, entropy still high: the latch holds.
	mem.NextFrame()
	got = mem.Observe(7, Measurement{EntropyBits: 6.0, GlareRatio: 0.0})
	assert.Equal(t, Specular, got)
	assert.True(t, mem.GlareLatched(7))
}

func TestMemoryGlareRatioBoundaryDoesNotLatch(t *testing.T) {
	t.Parallel()

	mem := NewMemory(DefaultThresholds(), 0)
	mem.NextFrame()
	got := mem.Observe(1, Measurement{EntropyBits: 6.0, GlareRatio: 0.005})
	assert.Equal(t, Matte, got, "latch requires strictly above the glare boundary")
	assert.False(t, mem.GlareLatched(1))
}

func TestMemoryTracksAreIndependent(t *testing.T) {
	t.Parallel()

	mem := NewMemory(DefaultThresholds(), 1800)
	mem.NextFrame()
	mem.Observe(1, Measurement{EntropyBits: 6.0, GlareRatio: 0.02})
	got := mem.Observe(2, Measurement{EntropyBits: 6.0, GlareRatio: 0.0})

	assert.Equal(t, Matte, got)
	assert.True(t, mem.GlareLatched(1))
	assert.False(t, mem.GlareLatched(2))
}

func TestMemoryEvictsUnseenTracks(t *testing.T) {
	t.Parallel()

	mem := NewMemory(DefaultThresholds(), 5)
	mem.NextFrame()
	mem.Observe(1, Measurement{EntropyBits: 6.0, GlareRatio: 0.02})
	assert.Equal(t, 1, mem.TrackCount())

	// Unseen for exactly the window: still remembered.
	for i := 0; i < 5; i++ {
		mem.NextFrame()
	}
	assert.Equal(t, 1, mem.TrackCount())
	assert.True(t, mem.GlareLatched(1))

	// One frame past the window: forgotten, latch included.
	mem.NextFrame()
	assert.Equal(t, 0, mem.TrackCount())
	assert.False(t, mem.GlareLatched(1))

	// A fresh sighting starts from a clean history.
	got := mem.Observe(1, Measurement{EntropyBits: 6.0, GlareRatio: 0.0})
	assert.Equal(t, Matte, got)
}

func TestMemoryObservationResetsEvictionWindow(t *testing.T) {
	t.Parallel()

	mem := NewMemory(DefaultThresholds(), 3)
	mem.NextFrame()
	mem.Observe(1, Measurement{EntropyBits: 6.0, GlareRatio: 0.02})

	for round := 0; round < 4; round++ {
		mem.NextFrame()
		mem.NextFrame()
		mem.Observe(1, Measurement{EntropyBits: 6.0, GlareRatio: 0.0})
	}
	assert.True(t, mem.GlareLatched(1), "regular sightings keep the latch alive indefinitely")
}

func TestMemoryZeroEvictionWindowDisablesEviction(t *testing.T) {
	t.Parallel()

	mem := NewMemory(DefaultThresholds(), 0)
	mem.NextFrame()
	mem.Observe(1, Measurement{EntropyBits: 6.0, GlareRatio: 0.02})
	for i := 0; i < 10_000; i++ {
		mem.NextFrame()
	}
	assert.True(t, mem.GlareLatched(1))
}
