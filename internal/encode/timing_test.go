package encode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveFrameRate(t *testing.T) {
	tests := []struct {
		name         string
		source       int
		target       int
		interpolated bool
		want         int
	}{
		{"interpolated uses target", 16, 32, true, 32},
		{"not interpolated uses source", 16, 32, false, 16},
		{"equal rates", 24, 24, true, 24},
		{"slow motion target", 16, 24, true, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveFrameRate(tt.source, tt.target, tt.interpolated))
		})
	}
}

func TestFrameDuration(t *testing.T) {
	assert.Equal(t, 62500*time.Microsecond, FrameDuration(16))
	assert.Equal(t, 31250*time.Microsecond, FrameDuration(32))
	assert.Equal(t, time.Second/24, FrameDuration(24))
}

func TestTimestamp(t *testing.T) {
	assert.Equal(t, time.Duration(0), Timestamp(0, 32))
	assert.Equal(t, 31250*time.Microsecond, Timestamp(1, 32))
	assert.Equal(t, time.Second, Timestamp(32, 32))

	// Index-based timestamps do not accumulate rounding: frame 3000 at
	// 30fps lands exactly on 100s.
	assert.Equal(t, 100*time.Second, Timestamp(3000, 30))
}

func TestTimestampsStrictlyMonotonic(t *testing.T) {
	prev := time.Duration(-1)
	for i := 0; i < 500; i++ {
		ts := Timestamp(i, 24)
		assert.Greater(t, ts, prev)
		prev = ts
	}
}

// An 81-frame sequence interpolated x2 yields 161 frames; at the doubled
// rate the clip plays in the same wall time it was generated for.
func TestTotalDurationAfterInterpolation(t *testing.T) {
	const sourceFrames = 81
	const factor = 2
	interpolated := (sourceFrames-1)*factor + 1

	assert.Equal(t, 161, interpolated)
	assert.InDelta(t, 5.03125, TotalDuration(interpolated, 32), 1e-9)
	assert.InDelta(t, 5.0625, TotalDuration(sourceFrames, 16), 1e-9)

	// Retiming the same interpolated frames to playback at 24fps stretches
	// the clip instead.
	assert.InDelta(t, 6.708333333, TotalDuration(interpolated, 24), 1e-6)
}
