// Package pipeline orchestrates the three-stage frame transform: upscale,
// interpolate, encode. It owns the run state machine, converts per-stage
// progress into one weighted global value, translates stage failures into a
// single error taxonomy, and guarantees that a failed or cancelled run
// never leaves a partial output file in place.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/capability"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/encode"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/frame"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/interpolate"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/mlworker"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/upscale"
)

// State is the run state machine: Idle → Upscaling? → Interpolating? →
// Encoding → Done, with a direct Failed edge from any stage. Disabled
// stages are skipped entirely.
type State int32

const (
	StateIdle State = iota
	StateUpscaling
	StateInterpolating
	StateEncoding
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUpscaling:
		return "upscaling"
	case StateInterpolating:
		return "interpolating"
	case StateEncoding:
		return "encoding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result records what one successful run produced, including which backends
// actually did the work after any fallback.
type Result struct {
	RunID      string
	OutputPath string

	FramesIn      int
	FramesEncoded int

	// Backends that produced the output; KindUnknown when the stage was
	// skipped.
	UpscaleBackend       backend.Kind
	InterpolationBackend backend.Kind

	EffectiveFrameRate int
	// PredictedDuration is the playback duration in seconds implied by the
	// encoded frame count and the effective rate.
	PredictedDuration float64

	Elapsed      time.Duration
	StageElapsed map[string]time.Duration
}

// Pipeline sequences the stages for one run at a time. Concurrent runs need
// separate Pipeline instances; each stage run constructs its own backend
// session, so independent pipelines never share mutable state.
type Pipeline struct {
	upscale *upscale.Stage
	interp  *interpolate.Stage
	encoder *encode.Stage
	log     zerolog.Logger

	onProgress func(float64)
	state      atomic.Int32
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress installs the side-channel progress consumer. Values are
// monotonically non-decreasing in [0,1]; callbacks may arrive on another
// goroutine and are informational only.
func WithProgress(fn func(float64)) Option {
	return func(p *Pipeline) { p.onProgress = fn }
}

// New assembles a pipeline from explicitly constructed stages.
func New(up *upscale.Stage, in *interpolate.Stage, enc *encode.Stage, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		upscale: up,
		interp:  in,
		encoder: enc,
		log:     log.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDefault wires the production stages: capability-probed worker backends
// for the accelerated paths, classical fallbacks, and the ffmpeg writer.
func NewDefault(probe *capability.Probe, worker mlworker.Config, log zerolog.Logger, opts ...Option) *Pipeline {
	return New(
		upscale.NewStage(probe, upscale.DefaultFactory(worker, log), log),
		interpolate.NewStage(probe, interpolate.DefaultFactory(worker, log), log),
		encode.NewStage(encode.NewFFmpegFactory(log), log),
		log,
		opts...,
	)
}

// State returns the current run state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
}

// Run executes the configured stages over seq and returns the result or the
// first stage's translated error. The caller's sequence is never mutated.
func (p *Pipeline) Run(ctx context.Context, seq frame.Sequence, cfg Configuration) (*Result, error) {
	cfg = cfg.Normalized()
	p.setState(StateIdle)

	if err := cfg.Validate(); err != nil {
		return nil, p.fail(&Error{Kind: KindInvalidInput, Stage: "pipeline", FrameIndex: -1, Err: err})
	}
	if seq.Len() == 0 {
		return nil, p.fail(&Error{Kind: KindInvalidInput, Stage: "pipeline", FrameIndex: -1,
			Err: fmt.Errorf("input sequence is empty")})
	}
	// Checked up front so a doomed run does not waste processing work; the
	// encode stage re-checks before creating the file.
	if _, err := os.Stat(cfg.OutputPath); err == nil && !cfg.Overwrite {
		return nil, p.fail(&Error{Kind: KindAlreadyExists, Stage: "pipeline", FrameIndex: -1,
			Err: fmt.Errorf("%s: %w", cfg.OutputPath, encode.ErrOutputExists)})
	}

	result := &Result{
		RunID:        uuid.NewString(),
		FramesIn:     seq.Len(),
		StageElapsed: make(map[string]time.Duration),
	}
	tracker := newProgressTracker(p.onProgress, cfg.Upscale.Enabled, cfg.Interpolate.Enabled)
	started := time.Now()

	p.log.Info().
		Str("run_id", result.RunID).
		Int("frames", seq.Len()).
		Bool("upscale", cfg.Upscale.Enabled).
		Bool("interpolate", cfg.Interpolate.Enabled).
		Int("effective_rate", cfg.EffectiveFrameRate()).
		Msg("run started")

	current := seq

	if cfg.Upscale.Enabled {
		p.setState(StateUpscaling)
		t0 := time.Now()
		out, kind, err := p.upscale.Run(ctx, current, upscale.Options{
			Factor:    cfg.Upscale.Factor,
			Preferred: cfg.Upscale.Preferred,
		}, tracker.stage("upscale"))
		result.StageElapsed["upscale"] = time.Since(t0)
		if err != nil {
			return nil, p.failStage(ctx, "upscale", err)
		}
		result.UpscaleBackend = kind
		current = out
	}

	if cfg.Interpolate.Enabled {
		p.setState(StateInterpolating)
		t0 := time.Now()
		out, kind, err := p.interp.Run(ctx, current, interpolate.Options{
			Factor:    cfg.Interpolate.Factor,
			Pass:      cfg.Interpolate.Pass,
			Preferred: cfg.Interpolate.Preferred,
		}, tracker.stage("interpolate"))
		result.StageElapsed["interpolate"] = time.Since(t0)
		if err != nil {
			return nil, p.failStage(ctx, "interpolate", err)
		}
		result.InterpolationBackend = kind
		current = out
	}

	p.setState(StateEncoding)
	rate := cfg.EffectiveFrameRate()
	t0 := time.Now()
	outputPath, err := p.encoder.Run(ctx, current, encode.Options{
		OutputPath: cfg.OutputPath,
		Codec:      cfg.Codec,
		Quality:    cfg.Quality,
		FrameRate:  rate,
		Overwrite:  cfg.Overwrite,
	}, tracker.stage("encode"))
	result.StageElapsed["encode"] = time.Since(t0)
	if err != nil {
		return nil, p.failStage(ctx, "encode", err)
	}

	tracker.finish()
	p.setState(StateDone)

	result.OutputPath = outputPath
	result.FramesEncoded = current.Len()
	result.EffectiveFrameRate = rate
	result.PredictedDuration = encode.TotalDuration(current.Len(), rate)
	result.Elapsed = time.Since(started)

	p.log.Info().
		Str("run_id", result.RunID).
		Str("output", outputPath).
		Int("frames_encoded", result.FramesEncoded).
		Float64("duration_s", result.PredictedDuration).
		Dur("elapsed", result.Elapsed).
		Msg("run finished")
	return result, nil
}

// failStage translates a stage error unless the run was cancelled, in which
// case the context error passes through untranslated.
func (p *Pipeline) failStage(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		p.setState(StateFailed)
		p.log.Warn().Str("stage", stage).Msg("run cancelled")
		return err
	}
	return p.fail(translate(stage, err))
}

func (p *Pipeline) fail(err *Error) error {
	p.setState(StateFailed)
	p.log.Error().
		Str("stage", err.Stage).
		Stringer("kind", err.Kind).
		Int("frame", err.FrameIndex).
		Err(err.Err).
		Msg("run failed")
	return err
}
