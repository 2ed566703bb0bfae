// config.go
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/encode"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/interpolate"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/pipeline"
)

// fileConfig is the YAML shape accepted on the command line. Every field is
// optional; zero values fall back to the interactive defaults.
type fileConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`

	Codec     string `yaml:"codec"`
	Quality   string `yaml:"quality"`
	Overwrite bool   `yaml:"overwrite"`

	SourceFrameRate int `yaml:"source_frame_rate"`
	TargetFrameRate int `yaml:"target_frame_rate"`

	Upscale struct {
		Enabled bool   `yaml:"enabled"`
		Factor  int    `yaml:"factor"`
		Backend string `yaml:"backend"`
	} `yaml:"upscale"`

	Interpolate struct {
		Enabled bool   `yaml:"enabled"`
		Factor  int    `yaml:"factor"`
		Backend string `yaml:"backend"`
		Pass    string `yaml:"pass"`
	} `yaml:"interpolate"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// toConfiguration maps the YAML fields onto a run configuration, filling
// gaps from the defaults.
func (fc fileConfig) toConfiguration() (pipeline.Configuration, error) {
	cfg := pipeline.DefaultConfiguration(fc.Output)

	if fc.Codec != "" {
		cfg.Codec = encode.Codec(fc.Codec)
	}
	if fc.Quality != "" {
		cfg.Quality = encode.Quality(fc.Quality)
	}
	cfg.Overwrite = fc.Overwrite
	if fc.SourceFrameRate > 0 {
		cfg.SourceFrameRate = fc.SourceFrameRate
	}
	if fc.TargetFrameRate > 0 {
		cfg.TargetFrameRate = fc.TargetFrameRate
	}

	if fc.Upscale.Enabled {
		sel, err := parseSelection(fc.Upscale.Backend, backend.KindMLTemporal, backend.KindMLFast, backend.KindClassical)
		if err != nil {
			return cfg, fmt.Errorf("upscale: %w", err)
		}
		cfg.Upscale = pipeline.UpscaleRequest{
			Enabled:   true,
			Factor:    fc.Upscale.Factor,
			Preferred: sel,
		}
	}

	if fc.Interpolate.Enabled {
		sel, err := parseSelection(fc.Interpolate.Backend, backend.KindMLMotion, backend.KindBlend)
		if err != nil {
			return cfg, fmt.Errorf("interpolate: %w", err)
		}
		pass := interpolate.SinglePass
		switch fc.Interpolate.Pass {
		case "", "single":
		case "multi":
			pass = interpolate.MultiPass
		default:
			return cfg, fmt.Errorf("interpolate: unknown pass mode %q", fc.Interpolate.Pass)
		}
		cfg.Interpolate = pipeline.InterpolateRequest{
			Enabled:   true,
			Factor:    fc.Interpolate.Factor,
			Preferred: sel,
			Pass:      pass,
		}
	}

	return cfg, nil
}

// parseSelection maps a backend name onto a pinned selection; empty or
// "auto" leaves selection to the capability probe.
func parseSelection(name string, allowed ...backend.Kind) (backend.Selection, error) {
	if name == "" || name == "auto" {
		return backend.Auto(), nil
	}
	for _, kind := range allowed {
		if name == kind.String() {
			return backend.Pin(kind), nil
		}
	}
	return backend.Selection{}, fmt.Errorf("unknown backend %q", name)
}
