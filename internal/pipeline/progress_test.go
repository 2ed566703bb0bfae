package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectProgress() (*[]float64, func(float64)) {
	var values []float64
	return &values, func(p float64) { values = append(values, p) }
}

func TestTrackerAllStagesWeighted(t *testing.T) {
	values, out := collectProgress()
	tr := newProgressTracker(out, true, true)

	tr.stage("upscale")(1)
	tr.stage("interpolate")(1)
	tr.stage("encode")(1)

	require.Len(t, *values, 3)
	assert.InDelta(t, 0.45, (*values)[0], 1e-9)
	assert.InDelta(t, 0.80, (*values)[1], 1e-9)
	assert.InDelta(t, 1.00, (*values)[2], 1e-9)
}

func TestTrackerNormalizesOverActiveStages(t *testing.T) {
	// With upscaling disabled, interpolate and encode share the full range
	// 35:20.
	values, out := collectProgress()
	tr := newProgressTracker(out, false, true)

	tr.stage("interpolate")(1)
	require.Len(t, *values, 1)
	assert.InDelta(t, 35.0/55.0, (*values)[0], 1e-9)

	tr.stage("encode")(1)
	assert.InDelta(t, 1.0, (*values)[1], 1e-9)
}

func TestTrackerEncodeOnly(t *testing.T) {
	values, out := collectProgress()
	tr := newProgressTracker(out, false, false)

	tr.stage("encode")(0.5)
	tr.stage("encode")(1)

	require.Len(t, *values, 2)
	assert.InDelta(t, 0.5, (*values)[0], 1e-9)
	assert.InDelta(t, 1.0, (*values)[1], 1e-9)
}

func TestTrackerMonotonic(t *testing.T) {
	values, out := collectProgress()
	tr := newProgressTracker(out, true, false)

	up := tr.stage("upscale")
	up(0.5)
	up(0.25) // regression is swallowed
	up(0.75)

	require.Len(t, *values, 2)
	assert.Less(t, (*values)[0], (*values)[1])
}

func TestTrackerClampsInput(t *testing.T) {
	values, out := collectProgress()
	tr := newProgressTracker(out, false, false)

	tr.stage("encode")(1.5)
	require.Len(t, *values, 1)
	assert.InDelta(t, 1.0, (*values)[0], 1e-9)
}

// A stage restarting its reporting from zero, as the fallback reprocessing
// does, must not move global progress backwards.
func TestTrackerFallbackRestart(t *testing.T) {
	values, out := collectProgress()
	tr := newProgressTracker(out, true, false)

	up := tr.stage("upscale")
	up(0.8)
	up(0.1) // fallback restarted the stage
	up(0.9)
	up(1.0)

	for i := 1; i < len(*values); i++ {
		assert.Greater(t, (*values)[i], (*values)[i-1])
	}
}

func TestTrackerFinish(t *testing.T) {
	values, out := collectProgress()
	tr := newProgressTracker(out, true, true)

	tr.stage("encode")(0.5)
	tr.finish()
	tr.finish() // idempotent

	last := (*values)[len(*values)-1]
	assert.InDelta(t, 1.0, last, 1e-9)
	count := 0
	for _, v := range *values {
		if v == 1.0 {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestTrackerNilOutput(t *testing.T) {
	tr := newProgressTracker(nil, true, true)
	// Must not panic.
	tr.stage("upscale")(0.5)
	tr.finish()
}
