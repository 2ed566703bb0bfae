package encode

import (
	"fmt"
	"image"
	"time"
)

// LifecycleOp names the writer lifecycle step that failed, letting callers
// tell configuration problems (construct, negotiate) from transient I/O
// problems (start, append, finalize).
type LifecycleOp string

const (
	OpConstruct LifecycleOp = "construct"
	OpNegotiate LifecycleOp = "negotiate"
	OpStart     LifecycleOp = "start"
	OpAppend    LifecycleOp = "append"
	OpFinalize  LifecycleOp = "finalize"
)

// WriterError wraps a failure of one writer lifecycle step.
type WriterError struct {
	Op  LifecycleOp
	Err error
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("writer %s: %v", e.Op, e.Err)
}

func (e *WriterError) Unwrap() error { return e.Err }

// Writer consumes frames for a single output file. Implementations report
// readiness so the stage can poll instead of blocking, and guarantee that
// Abort never leaves a valid-looking partial file behind.
type Writer interface {
	// Start opens the encoding session for frames of the given geometry.
	Start(width, height int) error
	// ReadyForMore reports whether the writer can accept another frame
	// without blocking.
	ReadyForMore() bool
	// Append submits one frame with its presentation timestamp. Timestamps
	// must be strictly monotonic and gap-free.
	Append(img image.Image, pts time.Duration) error
	// Finalize flushes and closes the output file.
	Finalize() error
	// Abort stops the session and removes any partial output.
	Abort() error
}

// WriterFactory constructs a writer for the given options. Construction and
// input negotiation failures are reported here, before any session starts.
type WriterFactory func(opts Options) (Writer, error)
