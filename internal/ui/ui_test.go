package ui

import (
	"image"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/capability"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/frame"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/pipeline"
)

func TestSequenceInfo(t *testing.T) {
	seq := frame.NewSequence(
		image.NewRGBA(image.Rect(0, 0, 640, 360)),
		image.NewRGBA(image.Rect(0, 0, 640, 360)),
	)
	seq.Meta.SourceJobID = "job-7"
	seq.Meta.Prompt = "a foggy harbor at dawn"
	seq.Meta.Model = "flux-1"

	out := SequenceInfo(seq)
	assert.Contains(t, out, "2")
	assert.Contains(t, out, "640x360")
	assert.Contains(t, out, "job-7")
	assert.Contains(t, out, "foggy harbor")
	assert.Contains(t, out, "flux-1")
}

func TestSequenceInfoTruncatesPrompt(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "very long "
	}
	seq := frame.NewSequence(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	seq.Meta.Prompt = long

	out := SequenceInfo(seq)
	assert.NotContains(t, out, long)
	assert.Contains(t, out, "…")
}

func TestCapabilityReportListsAllBackends(t *testing.T) {
	models := capability.NewModelManager(t.TempDir(), "http://unused", zerolog.Nop())
	probe := capability.NewProbe(models, zerolog.Nop(),
		capability.WithHostInfoFunc(func() (*host.InfoStat, error) {
			return &host.InfoStat{PlatformVersion: "14.2"}, nil
		}),
		capability.WithMemoryFunc(func() (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Available: 16 << 30}, nil
		}),
		capability.WithGetenvFunc(func(string) string { return "" }),
	)

	out := CapabilityReport(probe, 1280, 720)
	for _, name := range []string{"ml_temporal", "ml_fast", "classical", "ml_motion", "blend"} {
		assert.Contains(t, out, name)
	}
	// Classical backends always render as available.
	assert.Contains(t, out, "available")
}

func TestResultSummary(t *testing.T) {
	res := &pipeline.Result{
		OutputPath:           "/videos/clip.mp4",
		FramesIn:             81,
		FramesEncoded:        161,
		UpscaleBackend:       backend.KindClassical,
		InterpolationBackend: backend.KindBlend,
		EffectiveFrameRate:   32,
		PredictedDuration:    5.03125,
	}

	out := ResultSummary(res)
	assert.Contains(t, out, "clip.mp4")
	assert.Contains(t, out, "81 in → 161 encoded")
	assert.Contains(t, out, "32 fps")
	assert.Contains(t, out, "00:05")
	assert.Contains(t, out, "classical")
	assert.Contains(t, out, "blend")
}

func TestResultSummarySkipsDisabledStages(t *testing.T) {
	res := &pipeline.Result{
		OutputPath:         "clip.mp4",
		FramesIn:           10,
		FramesEncoded:      10,
		EffectiveFrameRate: 16,
	}
	out := ResultSummary(res)
	assert.NotContains(t, out, "Upscaler")
	assert.NotContains(t, out, "Interpolator")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(0.4))
	assert.Equal(t, "00:05", FormatDuration(5.03))
	assert.Equal(t, "01:30", FormatDuration(90))
	assert.Equal(t, "12:05", FormatDuration(725))
}

func TestStatusLines(t *testing.T) {
	assert.Contains(t, Success("done"), "done")
	assert.Contains(t, Warning("careful"), "careful")
	assert.Contains(t, Error("broken"), "broken")
}
