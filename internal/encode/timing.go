package encode

import "time"

// EffectiveFrameRate returns the rate frames are actually encoded at. When
// interpolation ran, the frame count already reflects the desired cadence
// and the target rate applies. When it did not, the source rate must be
// used: encoding original frames at the target rate would silently shrink
// or stretch playback relative to the capture cadence.
func EffectiveFrameRate(sourceRate, targetRate int, interpolated bool) int {
	if interpolated {
		return targetRate
	}
	return sourceRate
}

// FrameDuration returns the presentation duration of one frame at the
// given rate.
func FrameDuration(rate int) time.Duration {
	return time.Second / time.Duration(rate)
}

// Timestamp returns the presentation timestamp of the frame at index:
// index * (1s / rate), computed without accumulating per-frame rounding.
func Timestamp(index, rate int) time.Duration {
	return time.Duration(index) * time.Second / time.Duration(rate)
}

// TotalDuration returns the playback duration in seconds of frameCount
// frames at the given rate.
func TotalDuration(frameCount, rate int) float64 {
	return float64(frameCount) / float64(rate)
}
