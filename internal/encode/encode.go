// Package encode writes a frame sequence into a single video file with
// correct per-frame presentation timing. It validates uniform frame
// geometry, honors the overwrite policy before any work begins, and drives
// the underlying writer through a readiness-polled submission loop.
package encode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/frame"
)

// Codec identifies the video codec. The container is always MP4; codec
// identifiers map onto valid entries for it.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecHEVC Codec = "hevc"
)

// encoderName maps the codec onto the ffmpeg encoder for the MP4 container.
func (c Codec) encoderName() (string, error) {
	switch c {
	case CodecH264:
		return "libx264", nil
	case CodecHEVC:
		return "libx265", nil
	default:
		return "", fmt.Errorf("unsupported codec %q", string(c))
	}
}

// Valid reports whether the codec maps onto a container entry.
func (c Codec) Valid() bool {
	_, err := c.encoderName()
	return err == nil
}

// Quality is the encoding quality preset.
type Quality string

const (
	QualityDraft    Quality = "draft"
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
)

// crf maps the preset onto a constant rate factor.
func (q Quality) crf() (int, error) {
	switch q {
	case QualityDraft:
		return 28, nil
	case QualityStandard:
		return 23, nil
	case QualityHigh:
		return 18, nil
	default:
		return 0, fmt.Errorf("unsupported quality preset %q", string(q))
	}
}

// Valid reports whether the quality preset is known.
func (q Quality) Valid() bool {
	_, err := q.crf()
	return err == nil
}

// ErrEmptySequence is returned when there is nothing to encode.
var ErrEmptySequence = errors.New("encode input sequence is empty")

// ErrOutputExists is returned when the destination exists and overwriting
// is disabled. It is surfaced before any work begins.
var ErrOutputExists = errors.New("output file already exists")

// GeometryError reports a frame whose size differs from the first frame's.
// Mismatched sequences are never silently cropped or padded.
type GeometryError struct {
	FrameIndex    int
	Width, Height int
	WantW, WantH  int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("frame %d is %dx%d, expected %dx%d",
		e.FrameIndex, e.Width, e.Height, e.WantW, e.WantH)
}

// Options configures one encode run. FrameRate is the effective rate
// already resolved by the caller (see EffectiveFrameRate).
type Options struct {
	OutputPath string
	Codec      Codec
	Quality    Quality
	FrameRate  int
	Overwrite  bool
}

// Stage runs the encoding step of the pipeline.
type Stage struct {
	factory      WriterFactory
	log          zerolog.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewStage returns a stage using factory to construct writers.
func NewStage(factory WriterFactory, log zerolog.Logger) *Stage {
	return &Stage{
		factory:      factory,
		log:          log.With().Str("stage", "encode").Logger(),
		pollInterval: 5 * time.Millisecond,
		pollTimeout:  30 * time.Second,
	}
}

// Run encodes seq into opts.OutputPath and returns the output path.
// Preconditions are checked before the writer is constructed, so a failing
// run never creates or overwrites the destination.
func (s *Stage) Run(ctx context.Context, seq frame.Sequence, opts Options, onProgress func(float64)) (string, error) {
	if seq.Len() == 0 {
		return "", ErrEmptySequence
	}
	if opts.FrameRate <= 0 {
		return "", fmt.Errorf("frame rate must be positive, got %d", opts.FrameRate)
	}

	width, height, err := s.checkGeometry(seq)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(opts.OutputPath); err == nil && !opts.Overwrite {
		return "", fmt.Errorf("%s: %w", opts.OutputPath, ErrOutputExists)
	}

	w, err := s.factory(opts)
	if err != nil {
		return "", err
	}
	if err := w.Start(width, height); err != nil {
		return "", err
	}

	s.log.Info().
		Str("output", opts.OutputPath).
		Int("frames", seq.Len()).
		Int("frame_rate", opts.FrameRate).
		Str("codec", string(opts.Codec)).
		Msg("encoding started")

	if err := s.submitFrames(ctx, w, seq, opts, onProgress); err != nil {
		// A partial file must never look like a valid result.
		if abortErr := w.Abort(); abortErr != nil {
			s.log.Warn().Err(abortErr).Msg("abort after failed encode")
		}
		return "", err
	}

	if err := w.Finalize(); err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			s.log.Warn().Err(abortErr).Msg("abort after failed finalize")
		}
		return "", err
	}
	return opts.OutputPath, nil
}

// checkGeometry verifies every frame matches the first frame's size and
// returns that size. Runs before any output is created.
func (s *Stage) checkGeometry(seq frame.Sequence) (width, height int, err error) {
	width, height, err = seq.Geometry()
	if err != nil {
		return 0, 0, err
	}
	for i, f := range seq.Frames {
		w, h, err := f.Size()
		if err != nil {
			return 0, 0, fmt.Errorf("frame %d: %w", i, err)
		}
		if w != width || h != height {
			return 0, 0, &GeometryError{FrameIndex: i, Width: w, Height: h, WantW: width, WantH: height}
		}
	}
	return width, height, nil
}

// submitFrames feeds the writer in order, polling readiness with a short
// bounded sleep rather than busy-spinning. Timestamps are index * frame
// duration, strictly monotonic and gap-free.
func (s *Stage) submitFrames(ctx context.Context, w Writer, seq frame.Sequence, opts Options, onProgress func(float64)) error {
	for i, f := range seq.Frames {
		if err := s.waitReady(ctx, w); err != nil {
			return err
		}
		img, err := f.Load()
		if err != nil {
			return &WriterError{Op: OpAppend, Err: fmt.Errorf("load frame %d: %w", i, err)}
		}
		if err := w.Append(img, Timestamp(i, opts.FrameRate)); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(float64(i+1) / float64(seq.Len()))
		}
	}
	return nil
}

// waitReady polls for writer readiness, respecting cancellation and a
// bounded overall wait.
func (s *Stage) waitReady(ctx context.Context, w Writer) error {
	deadline := time.Now().Add(s.pollTimeout)
	for !w.ReadyForMore() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return &WriterError{Op: OpAppend, Err: fmt.Errorf("writer not ready after %s", s.pollTimeout)}
		}
		time.Sleep(s.pollInterval)
	}
	return ctx.Err()
}
