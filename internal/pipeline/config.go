package pipeline

import (
	"fmt"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/encode"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/interpolate"
)

// UpscaleRequest asks for the upscaling stage.
type UpscaleRequest struct {
	Enabled   bool
	Factor    int
	Preferred backend.Selection
}

// InterpolateRequest asks for the interpolation stage.
type InterpolateRequest struct {
	Enabled   bool
	Factor    int
	Preferred backend.Selection
	Pass      interpolate.PassMode
}

// Configuration describes one run's desired output. It is constructed once
// per run and never mutated mid-run; reprocessing with different settings
// means a new configuration and a new run.
type Configuration struct {
	OutputPath string
	Codec      encode.Codec
	Quality    encode.Quality
	Overwrite  bool

	Upscale     UpscaleRequest
	Interpolate InterpolateRequest

	// SourceFrameRate is the cadence the frames were generated at.
	// TargetFrameRate is the desired playback rate after interpolation.
	// Both are free integers; no preset table is hard-coded here.
	SourceFrameRate int
	TargetFrameRate int
}

// DefaultConfiguration returns a configuration encoding at the source
// cadence with both optional stages disabled.
func DefaultConfiguration(outputPath string) Configuration {
	return Configuration{
		OutputPath:      outputPath,
		Codec:           encode.CodecH264,
		Quality:         encode.QualityStandard,
		SourceFrameRate: 16,
		TargetFrameRate: 32,
	}
}

// Normalized returns a copy with factor-1 stage requests disabled; a factor
// of 1 is equivalent to not running the stage at all.
func (c Configuration) Normalized() Configuration {
	if c.Upscale.Enabled && c.Upscale.Factor == 1 {
		c.Upscale.Enabled = false
	}
	if c.Interpolate.Enabled && c.Interpolate.Factor == 1 {
		c.Interpolate.Enabled = false
	}
	return c
}

// Validate checks the configuration invariants: enabled stages carry a
// factor of at least 2, frame rates are positive, and the output settings
// map onto the container.
func (c Configuration) Validate() error {
	if c.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if !c.Codec.Valid() {
		return fmt.Errorf("unsupported codec %q", string(c.Codec))
	}
	if !c.Quality.Valid() {
		return fmt.Errorf("unsupported quality preset %q", string(c.Quality))
	}
	if c.SourceFrameRate <= 0 {
		return fmt.Errorf("source frame rate must be positive, got %d", c.SourceFrameRate)
	}
	if c.TargetFrameRate <= 0 {
		return fmt.Errorf("target frame rate must be positive, got %d", c.TargetFrameRate)
	}
	if c.Upscale.Enabled && c.Upscale.Factor < 2 {
		return fmt.Errorf("upscale factor must be at least 2, got %d", c.Upscale.Factor)
	}
	if c.Interpolate.Enabled && c.Interpolate.Factor < 2 {
		return fmt.Errorf("interpolation factor must be at least 2, got %d", c.Interpolate.Factor)
	}
	return nil
}

// EffectiveFrameRate resolves the rate the encode stage will use for this
// configuration.
func (c Configuration) EffectiveFrameRate() int {
	return encode.EffectiveFrameRate(c.SourceFrameRate, c.TargetFrameRate, c.Interpolate.Enabled)
}
