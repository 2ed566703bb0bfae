// Package interpolate increases the temporal resolution of a sequence by
// synthesizing intermediate frames between each adjacent pair, producing
// exactly (N-1)*factor+1 frames for N inputs with both endpoints preserved
// unchanged. A motion-aware ML backend is used when available; a cross-fade
// blend backend is the universal fallback.
package interpolate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/capability"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/frame"
)

// ErrInsufficientFrames is returned for inputs of fewer than two frames;
// interpolation is undefined there.
var ErrInsufficientFrames = errors.New("interpolation requires at least 2 frames")

// ErrInvalidFactor is returned when the multiplication factor is below 2.
var ErrInvalidFactor = errors.New("interpolation factor must be at least 2")

// ErrModelDownloadRequired is returned when the pinned motion backend's
// artifacts are absent.
var ErrModelDownloadRequired = errors.New("model artifacts must be downloaded first")

// UnavailableError reports a pinned backend that failed its capability
// probe.
type UnavailableError struct {
	Kind   backend.Kind
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %s", e.Kind, e.Reason)
}

// ProcessingError reports a runtime backend failure at a specific pair.
type ProcessingError struct {
	Kind      backend.Kind
	PairIndex int
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("backend %s failed at pair %d: %v", e.Kind, e.PairIndex, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// PassMode selects between single-pass synthesis and the higher-quality
// multi-pass refinement. Multi-pass is a hint to the accelerated backend,
// only meaningful for factors above 2, not a contract on identical output.
type PassMode int

const (
	SinglePass PassMode = iota
	MultiPass
)

// String returns the pass mode name.
func (m PassMode) String() string {
	if m == MultiPass {
		return "multi"
	}
	return "single"
}

// PairRequest is one batched submission: both endpoint frames plus every
// phase offset to fill. Backends fill all phases of a pair in a single
// submission so downstream ordering assumptions hold.
type PairRequest struct {
	First     image.Image
	Second    image.Image
	Phases    []float64
	Mode      backend.SubmissionMode
	MultiPass bool
}

// Backend is one interpolation implementation. An instance is a session
// owned by a single stage run.
type Backend interface {
	Kind() backend.Kind
	Interpolate(ctx context.Context, req PairRequest) ([]image.Image, error)
	Close() error
}

// BackendFactory constructs a backend session for the given kind.
type BackendFactory func(kind backend.Kind) (Backend, error)

// Options configures a stage run.
type Options struct {
	Factor    int
	Pass      PassMode
	Preferred backend.Selection
}

// Stage runs the interpolation step of the pipeline.
type Stage struct {
	probe   *capability.Probe
	factory BackendFactory
	log     zerolog.Logger
}

// NewStage returns a stage using the probe for selection and the factory
// for backend construction.
func NewStage(probe *capability.Probe, factory BackendFactory, log zerolog.Logger) *Stage {
	return &Stage{
		probe:   probe,
		factory: factory,
		log:     log.With().Str("stage", "interpolate").Logger(),
	}
}

// Run multiplies the temporal resolution of seq by opts.Factor and returns
// the new sequence along with the backend kind that produced it. The same
// fallback policy as upscaling applies: auto-selected accelerated failures
// degrade to the blend backend, pinned failures surface.
func (s *Stage) Run(ctx context.Context, seq frame.Sequence, opts Options, onProgress func(float64)) (frame.Sequence, backend.Kind, error) {
	if opts.Factor < 2 {
		return frame.Sequence{}, backend.KindUnknown, ErrInvalidFactor
	}
	if seq.Len() < 2 {
		return frame.Sequence{}, backend.KindUnknown, ErrInsufficientFrames
	}
	width, height, err := seq.Geometry()
	if err != nil {
		return frame.Sequence{}, backend.KindUnknown, err
	}

	kind, err := s.selectBackend(opts.Preferred, width, height)
	if err != nil {
		return frame.Sequence{}, backend.KindUnknown, err
	}
	s.log.Info().
		Stringer("backend", kind).
		Int("frames", seq.Len()).
		Int("factor", opts.Factor).
		Stringer("pass", opts.Pass).
		Msg("interpolation backend selected")

	out, err := s.runBackend(ctx, kind, seq, opts, onProgress)
	if err == nil {
		return out, kind, nil
	}
	if ctx.Err() != nil {
		return frame.Sequence{}, backend.KindUnknown, err
	}

	if opts.Preferred.IsAuto() && kind.Accelerated() {
		s.log.Warn().Err(err).
			Stringer("failed_backend", kind).
			Msg("motion backend failed, falling back to cross-fade blending")
		out, fbErr := s.runBackend(ctx, backend.KindBlend, seq, opts, onProgress)
		if fbErr != nil {
			return frame.Sequence{}, backend.KindUnknown, fbErr
		}
		return out, backend.KindBlend, nil
	}
	return frame.Sequence{}, backend.KindUnknown, err
}

// selectBackend mirrors the upscaling rule: pinned choices are probed and
// surface their failure; auto prefers the motion backend and falls back to
// blending.
func (s *Stage) selectBackend(sel backend.Selection, width, height int) (backend.Kind, error) {
	if kind, pinned := sel.Pinned(); pinned {
		switch kind {
		case backend.KindMLMotion, backend.KindBlend:
		default:
			return backend.KindUnknown, fmt.Errorf("backend %s cannot interpolate", kind)
		}
		if !kind.Accelerated() {
			return kind, nil
		}
		av := s.probe.Check(kind, width, height)
		if av.Available {
			return kind, nil
		}
		if av.Model == capability.ModelDownloadRequired || av.Model == capability.ModelDownloading {
			return backend.KindUnknown, fmt.Errorf("%s: %w", kind, ErrModelDownloadRequired)
		}
		return backend.KindUnknown, &UnavailableError{Kind: kind, Reason: av.Reason}
	}

	av := s.probe.Check(backend.KindMLMotion, width, height)
	if av.Available {
		return backend.KindMLMotion, nil
	}
	s.log.Debug().Str("reason", av.Reason).Msg("motion backend skipped")
	return backend.KindBlend, nil
}

// phases returns the evenly spaced phase offsets k/factor, k=1..factor-1.
func phases(factor int) []float64 {
	out := make([]float64, factor-1)
	for k := 1; k < factor; k++ {
		out[k-1] = float64(k) / float64(factor)
	}
	return out
}

// runBackend emits frame[i] followed by the synthesized phases for every
// adjacent pair, then the final original frame once. The session is closed
// before returning regardless of outcome.
func (s *Stage) runBackend(ctx context.Context, kind backend.Kind, seq frame.Sequence, opts Options, onProgress func(float64)) (frame.Sequence, error) {
	b, err := s.factory(kind)
	if err != nil {
		return frame.Sequence{}, fmt.Errorf("construct %s backend: %w", kind, err)
	}
	defer b.Close()

	multiPass := opts.Pass == MultiPass && opts.Factor > 2
	offsets := phases(opts.Factor)

	var synthesized [][]image.Image
	if kind == backend.KindBlend {
		synthesized, err = s.runParallel(ctx, b, seq, offsets, onProgress)
	} else {
		synthesized, err = s.runSequential(ctx, b, seq, offsets, multiPass, onProgress)
	}
	if err != nil {
		return frame.Sequence{}, err
	}

	out := make([]frame.Frame, 0, (seq.Len()-1)*opts.Factor+1)
	for i := 0; i < seq.Len()-1; i++ {
		out = append(out, seq.Frames[i])
		for _, img := range synthesized[i] {
			out = append(out, frame.FromImage(img))
		}
	}
	out = append(out, seq.Frames[seq.Len()-1])
	return seq.WithFrames(out), nil
}

// runSequential drives the stateful motion backend pair by pair. The first
// pair is submitted random-access, the rest sequential.
func (s *Stage) runSequential(ctx context.Context, b Backend, seq frame.Sequence, offsets []float64, multiPass bool, onProgress func(float64)) ([][]image.Image, error) {
	pairs := seq.Len() - 1
	synthesized := make([][]image.Image, pairs)

	prev, err := seq.Frames[0].Load()
	if err != nil {
		return nil, fmt.Errorf("load frame 0: %w", err)
	}
	for i := 0; i < pairs; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := seq.Frames[i+1].Load()
		if err != nil {
			return nil, fmt.Errorf("load frame %d: %w", i+1, err)
		}
		mode := backend.Sequential
		if i == 0 {
			mode = backend.RandomAccess
		}
		imgs, err := b.Interpolate(ctx, PairRequest{
			First:     prev,
			Second:    next,
			Phases:    offsets,
			Mode:      mode,
			MultiPass: multiPass,
		})
		if err != nil {
			return nil, &ProcessingError{Kind: b.Kind(), PairIndex: i, Err: err}
		}
		if len(imgs) != len(offsets) {
			return nil, &ProcessingError{Kind: b.Kind(), PairIndex: i,
				Err: fmt.Errorf("backend returned %d frames for %d phases", len(imgs), len(offsets))}
		}
		synthesized[i] = imgs
		prev = next
		if onProgress != nil {
			onProgress(float64(i+1) / float64(pairs))
		}
	}
	return synthesized, nil
}

// runParallel drives the stateless blend backend across worker goroutines,
// one pair per task. Order is preserved by index.
func (s *Stage) runParallel(ctx context.Context, b Backend, seq frame.Sequence, offsets []float64, onProgress func(float64)) ([][]image.Image, error) {
	pairs := seq.Len() - 1
	synthesized := make([][]image.Image, pairs)

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < pairs; i++ {
		i := i
		g.Go(func() error {
			first, err := seq.Frames[i].Load()
			if err != nil {
				return fmt.Errorf("load frame %d: %w", i, err)
			}
			second, err := seq.Frames[i+1].Load()
			if err != nil {
				return fmt.Errorf("load frame %d: %w", i+1, err)
			}
			imgs, err := b.Interpolate(gctx, PairRequest{
				First:  first,
				Second: second,
				Phases: offsets,
				Mode:   backend.RandomAccess,
			})
			if err != nil {
				return &ProcessingError{Kind: b.Kind(), PairIndex: i, Err: err}
			}
			synthesized[i] = imgs

			mu.Lock()
			completed++
			if onProgress != nil {
				onProgress(float64(completed) / float64(pairs))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return synthesized, nil
}
