package pipeline

import (
	"errors"
	"fmt"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/encode"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/interpolate"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/upscale"
)

// ErrorKind classifies a run failure for callers. The pipeline itself never
// produces user-facing text; the structured detail here is enough to build
// an actionable message.
type ErrorKind int

const (
	// KindInvalidInput covers empty or too-short sequences, non-positive
	// factors, and mismatched geometry. Never retried.
	KindInvalidInput ErrorKind = iota
	// KindCapabilityUnavailable means a pinned accelerated backend is not
	// usable here. Auto selections recover via fallback and never surface it.
	KindCapabilityUnavailable
	// KindModelNotReady means a pinned ML backend's artifacts are absent.
	KindModelNotReady
	// KindTransientProcessing means an accelerated backend failed at
	// runtime despite passing its capability checks.
	KindTransientProcessing
	// KindIO covers writer and file-system failures. Never retried
	// automatically; the caller may retry the whole run.
	KindIO
	// KindAlreadyExists means the destination exists with overwriting
	// disabled, detected before any processing.
	KindAlreadyExists
)

// String returns the kind's stable name.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindCapabilityUnavailable:
		return "capability_unavailable"
	case KindModelNotReady:
		return "model_not_ready"
	case KindTransientProcessing:
		return "transient_processing"
	case KindIO:
		return "io_failure"
	case KindAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// Error is the single taxonomy every stage failure maps into. FrameIndex is
// -1 when no specific frame is at fault.
type Error struct {
	Kind       ErrorKind
	Stage      string
	FrameIndex int
	Err        error
}

func (e *Error) Error() string {
	if e.FrameIndex >= 0 {
		return fmt.Sprintf("%s stage failed (%s) at frame %d: %v", e.Stage, e.Kind, e.FrameIndex, e.Err)
	}
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// translate maps a stage error into the taxonomy.
func translate(stage string, err error) *Error {
	out := &Error{Stage: stage, FrameIndex: -1, Err: err}

	switch {
	case errors.Is(err, upscale.ErrInvalidFactor),
		errors.Is(err, upscale.ErrEmptySequence),
		errors.Is(err, interpolate.ErrInvalidFactor),
		errors.Is(err, interpolate.ErrInsufficientFrames),
		errors.Is(err, encode.ErrEmptySequence):
		out.Kind = KindInvalidInput
		return out
	case errors.Is(err, upscale.ErrModelDownloadRequired),
		errors.Is(err, interpolate.ErrModelDownloadRequired):
		out.Kind = KindModelNotReady
		return out
	case errors.Is(err, encode.ErrOutputExists):
		out.Kind = KindAlreadyExists
		return out
	}

	var geo *encode.GeometryError
	if errors.As(err, &geo) {
		out.Kind = KindInvalidInput
		out.FrameIndex = geo.FrameIndex
		return out
	}
	var upUnavailable *upscale.UnavailableError
	var inUnavailable *interpolate.UnavailableError
	if errors.As(err, &upUnavailable) || errors.As(err, &inUnavailable) {
		out.Kind = KindCapabilityUnavailable
		return out
	}
	var upProc *upscale.ProcessingError
	if errors.As(err, &upProc) {
		out.Kind = KindTransientProcessing
		out.FrameIndex = upProc.FrameIndex
		return out
	}
	var inProc *interpolate.ProcessingError
	if errors.As(err, &inProc) {
		out.Kind = KindTransientProcessing
		out.FrameIndex = inProc.PairIndex
		return out
	}
	var writer *encode.WriterError
	if errors.As(err, &writer) {
		out.Kind = KindIO
		return out
	}

	out.Kind = KindIO
	return out
}
