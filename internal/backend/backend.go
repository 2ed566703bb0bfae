// Package backend defines the identifiers and primitives shared by the
// processing stages: backend kinds, auto-vs-pinned selection, submission
// modes for stateful backends, and the single-shot completion used for
// asynchronous backend calls.
package backend

// Kind identifies a concrete backend implementation satisfying a stage
// contract.
type Kind int

const (
	// KindUnknown is the zero value and never a valid choice.
	KindUnknown Kind = iota

	// KindMLTemporal is the temporal-aware ML upscaler. It carries internal
	// state between sequential submissions and produces the best quality.
	KindMLTemporal

	// KindMLFast is the low-latency ML upscaler. Stateless on the caller
	// side but still accelerated and capability-gated.
	KindMLFast

	// KindClassical is the classical resampling upscaler. Always usable.
	KindClassical

	// KindMLMotion is the motion-aware ML frame interpolator.
	KindMLMotion

	// KindBlend is the cross-fade blend interpolator. Always usable.
	KindBlend
)

// String returns the stable name used in logs and capability reports.
func (k Kind) String() string {
	switch k {
	case KindMLTemporal:
		return "ml_temporal"
	case KindMLFast:
		return "ml_fast"
	case KindClassical:
		return "classical"
	case KindMLMotion:
		return "ml_motion"
	case KindBlend:
		return "blend"
	default:
		return "unknown"
	}
}

// Accelerated reports whether the kind is a hardware/ML-accelerated backend
// subject to capability gating. Classical and blend backends are plain CPU
// implementations and are always usable.
func (k Kind) Accelerated() bool {
	switch k {
	case KindMLTemporal, KindMLFast, KindMLMotion:
		return true
	default:
		return false
	}
}

// SubmissionMode tells a stateful backend whether internal state built by
// earlier calls may be assumed valid.
type SubmissionMode int

const (
	// RandomAccess marks an independent submission. The backend must not
	// assume any previous call succeeded. The first frame (or pair) of a run
	// is always submitted in this mode.
	RandomAccess SubmissionMode = iota

	// Sequential marks a submission that directly follows a successful one,
	// letting the backend exploit temporal coherence.
	Sequential
)

// String returns a short name suitable for worker arguments and logs.
func (m SubmissionMode) String() string {
	if m == RandomAccess {
		return "random"
	}
	return "sequential"
}

// Selection expresses the caller's backend choice as an explicit tagged
// value rather than a nullable kind. Auto selections permit fallback to the
// classical backend; pinned selections never fall back silently.
type Selection struct {
	kind   Kind
	pinned bool
}

// Auto returns a selection that lets the stage pick the best available
// backend and fall back on failure.
func Auto() Selection {
	return Selection{}
}

// Pin returns a selection fixed to the given kind. A pinned backend that is
// unavailable or fails at runtime surfaces an error instead of degrading.
func Pin(k Kind) Selection {
	return Selection{kind: k, pinned: true}
}

// Pinned returns the pinned kind and true, or (KindUnknown, false) for an
// auto selection.
func (s Selection) Pinned() (Kind, bool) {
	if !s.pinned {
		return KindUnknown, false
	}
	return s.kind, true
}

// IsAuto reports whether the stage is free to choose and to fall back.
func (s Selection) IsAuto() bool {
	return !s.pinned
}

// String returns "auto" or the pinned kind's name.
func (s Selection) String() string {
	if s.pinned {
		return s.kind.String()
	}
	return "auto"
}
