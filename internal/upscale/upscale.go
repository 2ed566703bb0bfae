// Package upscale maps N input frames to N output frames at an integer
// scale factor. It selects among a temporal-aware ML backend, a low-latency
// ML backend, and a classical resampler based on capability probing and the
// caller's preference, and degrades to the classical backend when an
// auto-selected accelerated backend fails at runtime.
package upscale

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

// ErrInvalidFactor is returned when the scale factor is below 2. A factor of
// 1 is equivalent to disabling the stage and is rejected here.
var ErrInvalidFactor = errors.New("upscale factor must be at least 2")

// ErrEmptySequence is returned for an input with no frames.
var ErrEmptySequence = errors.New("upscale input sequence is empty")

// ErrModelDownloadRequired is returned when a pinned ML backend's artifacts
// are absent. Pinned backends never fall back silently, so this surfaces to
// the caller instead of degrading.
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

// ProcessingError reports a runtime backend failure at a specific frame.
type ProcessingError struct {
	Kind       backend.Kind
	FrameIndex int
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("backend %s failed at frame %d: %v", e.Kind, e.FrameIndex, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Request carries one frame submission to a backend. Accelerated backends
// use the previous source and previous output frames for temporal
// coherence; the classical backend ignores them.
type Request struct {
	Frame          image.Image
	Previous       image.Image // previous source frame, nil for the first
	PreviousOutput image.Image // previous stage output, nil for the first
	Mode           backend.SubmissionMode
	Factor         int
}

// Backend is one upscaling implementation. A backend instance is a session
// owned by a single stage run; Close tears it down deterministically.
type Backend interface {
	Kind() backend.Kind
	Process(ctx context.Context, req Request) (image.Image, error)
	Close() error
}

// BackendFactory constructs a backend session for the given kind.
type BackendFactory func(kind backend.Kind) (Backend, error)

// Options configures a stage run.
type Options struct {
	Factor    int
	Preferred backend.Selection
}

// Stage runs the upscaling step of the pipeline.
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
		log:     log.With().Str("stage", "upscale").Logger(),
	}
}

// autoPriority is the selection order for auto mode. The classical backend
// is the implicit fallback and not listed.
var autoPriority = []backend.Kind{backend.KindMLTemporal, backend.KindMLFast}

// AutoPriority returns the backend order auto selection tries, most capable
// first. Callers use it to pre-fetch models before a run.
func AutoPriority() []backend.Kind {
	out := make([]backend.Kind, len(autoPriority))
	copy(out, autoPriority)
	return out
}

// Run upscales every frame of seq by opts.Factor and returns the new
// sequence along with the backend kind that actually produced it. Progress
// is reported in [0,1] as frames complete.
//
// A pinned backend that fails at runtime aborts the run. An auto-selected
// accelerated backend that fails mid-run does not: the stage logs the
// failure and reprocesses the entire input through the classical backend so
// the output stays uniform.
func (s *Stage) Run(ctx context.Context, seq frame.Sequence, opts Options, onProgress func(float64)) (frame.Sequence, backend.Kind, error) {
	if opts.Factor < 2 {
		return frame.Sequence{}, backend.KindUnknown, ErrInvalidFactor
	}
	if seq.Len() == 0 {
		return frame.Sequence{}, backend.KindUnknown, ErrEmptySequence
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
		Msg("upscale backend selected")

	out, err := s.runBackend(ctx, kind, seq, opts.Factor, onProgress)
	if err == nil {
		return out, kind, nil
	}
	if ctx.Err() != nil {
		return frame.Sequence{}, backend.KindUnknown, err
	}

	// Degrade-on-failure: only auto-selected accelerated backends may fall
	// back. The whole input is reprocessed classically so every output frame
	// comes from the same implementation.
	if opts.Preferred.IsAuto() && kind.Accelerated() {
		s.log.Warn().Err(err).
			Stringer("failed_backend", kind).
			Msg("accelerated backend failed, falling back to classical resampling")
		out, fbErr := s.runBackend(ctx, backend.KindClassical, seq, opts.Factor, onProgress)
		if fbErr != nil {
			return frame.Sequence{}, backend.KindUnknown, fbErr
		}
		return out, backend.KindClassical, nil
	}
	return frame.Sequence{}, backend.KindUnknown, err
}

// selectBackend applies the pinned-vs-auto rule: a pinned backend is probed
// and its failure surfaces; auto picks the first available accelerated kind
// and otherwise the classical backend.
func (s *Stage) selectBackend(sel backend.Selection, width, height int) (backend.Kind, error) {
	if kind, pinned := sel.Pinned(); pinned {
		switch kind {
		case backend.KindMLTemporal, backend.KindMLFast, backend.KindClassical:
		default:
			return backend.KindUnknown, fmt.Errorf("backend %s cannot upscale", kind)
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

	for _, kind := range autoPriority {
		av := s.probe.Check(kind, width, height)
		if av.Available {
			return kind, nil
		}
		s.log.Debug().Stringer("backend", kind).Str("reason", av.Reason).Msg("backend skipped")
	}
	return backend.KindClassical, nil
}

// runBackend processes the whole sequence through one backend session. The
// session is closed before returning regardless of outcome.
func (s *Stage) runBackend(ctx context.Context, kind backend.Kind, seq frame.Sequence, factor int, onProgress func(float64)) (frame.Sequence, error) {
	b, err := s.factory(kind)
	if err != nil {
		return frame.Sequence{}, fmt.Errorf("construct %s backend: %w", kind, err)
	}
	defer b.Close()

	if kind == backend.KindClassical {
		return s.runParallel(ctx, b, seq, factor, onProgress)
	}
	return s.runSequential(ctx, b, seq, factor, onProgress)
}

// runSequential drives a stateful backend one frame at a time, carrying the
// previous source and previous output between calls. The first frame is
// submitted in random-access mode so the backend starts from a clean state.
func (s *Stage) runSequential(ctx context.Context, b Backend, seq frame.Sequence, factor int, onProgress func(float64)) (frame.Sequence, error) {
	frames := make([]frame.Frame, seq.Len())
	var prevSrc, prevOut image.Image

	for i, f := range seq.Frames {
		if err := ctx.Err(); err != nil {
			return frame.Sequence{}, err
		}
		img, err := f.Load()
		if err != nil {
			return frame.Sequence{}, fmt.Errorf("load frame %d: %w", i, err)
		}
		mode := backend.Sequential
		if i == 0 {
			mode = backend.RandomAccess
		}
		out, err := b.Process(ctx, Request{
			Frame:          img,
			Previous:       prevSrc,
			PreviousOutput: prevOut,
			Mode:           mode,
			Factor:         factor,
		})
		if err != nil {
			return frame.Sequence{}, &ProcessingError{Kind: b.Kind(), FrameIndex: i, Err: err}
		}
		if err := checkScaled(img, out, factor); err != nil {
			return frame.Sequence{}, &ProcessingError{Kind: b.Kind(), FrameIndex: i, Err: err}
		}
		frames[i] = frame.FromImage(out)
		prevSrc, prevOut = img, out
		if onProgress != nil {
			onProgress(float64(i+1) / float64(seq.Len()))
		}
	}
	return seq.WithFrames(frames), nil
}

// runParallel drives the stateless classical backend across worker
// goroutines. Output order is preserved by index.
func (s *Stage) runParallel(ctx context.Context, b Backend, seq frame.Sequence, factor int, onProgress func(float64)) (frame.Sequence, error) {
	frames := make([]frame.Frame, seq.Len())

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range seq.Frames {
		i, f := i, f
		g.Go(func() error {
			img, err := f.Load()
			if err != nil {
				return fmt.Errorf("load frame %d: %w", i, err)
			}
			out, err := b.Process(gctx, Request{Frame: img, Mode: backend.RandomAccess, Factor: factor})
			if err != nil {
				return &ProcessingError{Kind: b.Kind(), FrameIndex: i, Err: err}
			}
			frames[i] = frame.FromImage(out)

			mu.Lock()
			completed++
			if onProgress != nil {
				onProgress(float64(completed) / float64(seq.Len()))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return frame.Sequence{}, err
	}
	return seq.WithFrames(frames), nil
}

// checkScaled verifies the exact output geometry contract:
// output = input × factor on both axes.
func checkScaled(in, out image.Image, factor int) error {
	ib, ob := in.Bounds(), out.Bounds()
	wantW, wantH := ib.Dx()*factor, ib.Dy()*factor
	if ob.Dx() != wantW || ob.Dy() != wantH {
		return fmt.Errorf("output geometry %dx%d, want %dx%d", ob.Dx(), ob.Dy(), wantW, wantH)
	}
	return nil
}
