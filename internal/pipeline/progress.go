package pipeline

import "sync"

// Stage progress weights, relative to each other. Only the active stages
// participate; the tracker normalizes over that set so a two-stage run
// still spans the full [0,1] range.
const (
	weightUpscale     = 45
	weightInterpolate = 35
	weightEncode      = 20
)

// progressTracker converts per-stage progress into one monotonically
// non-decreasing global value. Stage callbacks may arrive from other
// goroutines, so emission is serialized and clamped against regression.
type progressTracker struct {
	mu   sync.Mutex
	out  func(float64)
	last float64

	base   map[string]float64
	weight map[string]float64
}

// newProgressTracker allocates weights across the active stage set in
// pipeline order.
func newProgressTracker(out func(float64), upscaleActive, interpolateActive bool) *progressTracker {
	type stageWeight struct {
		name   string
		weight float64
	}
	var active []stageWeight
	if upscaleActive {
		active = append(active, stageWeight{"upscale", weightUpscale})
	}
	if interpolateActive {
		active = append(active, stageWeight{"interpolate", weightInterpolate})
	}
	active = append(active, stageWeight{"encode", weightEncode})

	total := 0.0
	for _, s := range active {
		total += s.weight
	}

	t := &progressTracker{
		out:    out,
		base:   make(map[string]float64, len(active)),
		weight: make(map[string]float64, len(active)),
	}
	offset := 0.0
	for _, s := range active {
		w := s.weight / total
		t.base[s.name] = offset
		t.weight[s.name] = w
		offset += w
	}
	return t
}

// stage returns the progress callback for one stage. Values outside [0,1]
// are clamped; global progress never decreases.
func (t *progressTracker) stage(name string) func(float64) {
	return func(v float64) {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		t.emit(t.base[name] + t.weight[name]*v)
	}
}

// finish emits the terminal 1.0.
func (t *progressTracker) finish() {
	t.emit(1)
}

func (t *progressTracker) emit(global float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if global <= t.last {
		return
	}
	t.last = global
	if t.out != nil {
		t.out(global)
	}
}
