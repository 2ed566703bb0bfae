package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/capability"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/encode"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/frame"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/interpolate"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/upscale"
)

func testSequence(n, w, h int) frame.Sequence {
	images := make([]image.Image, n)
	for i := range images {
		images[i] = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	return frame.NewSequence(images...)
}

// recordingWriter is an encode.Writer that records appends and never touches
// the filesystem unless given an output path.
type recordingWriter struct {
	mu         sync.Mutex
	appends    int
	finalized  bool
	aborted    bool
	outputPath string
}

func (w *recordingWriter) Start(width, height int) error {
	if w.outputPath != "" {
		return os.WriteFile(w.outputPath, []byte("partial"), 0o644)
	}
	return nil
}

func (w *recordingWriter) ReadyForMore() bool { return true }

func (w *recordingWriter) Append(img image.Image, pts time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appends++
	return nil
}

func (w *recordingWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true
	return nil
}

func (w *recordingWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.aborted = true
	if w.outputPath != "" {
		os.Remove(w.outputPath)
	}
	return nil
}

// testPipeline wires real stages over a classical upscaler, the blend
// interpolator, and a recording writer, with every capability gate passing
// but no model artifacts present.
func testPipeline(t *testing.T, opts ...Option) (*Pipeline, *recordingWriter) {
	t.Helper()
	models := capability.NewModelManager(t.TempDir(), "http://unused", zerolog.Nop())
	probe := capability.NewProbe(models, zerolog.Nop(),
		capability.WithHostInfoFunc(func() (*host.InfoStat, error) {
			return &host.InfoStat{PlatformVersion: "14.2"}, nil
		}),
		capability.WithMemoryFunc(func() (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Available: 16 << 30}, nil
		}),
		capability.WithGetenvFunc(func(key string) string {
			if key == "DISPLAY" {
				return ":0"
			}
			return ""
		}),
	)

	upFactory := func(kind backend.Kind) (upscale.Backend, error) {
		if kind != backend.KindClassical {
			return nil, fmt.Errorf("unexpected backend %s", kind)
		}
		return upscale.NewClassical(), nil
	}
	inFactory := func(kind backend.Kind) (interpolate.Backend, error) {
		if kind != backend.KindBlend {
			return nil, fmt.Errorf("unexpected backend %s", kind)
		}
		return interpolate.NewBlend(), nil
	}

	writer := &recordingWriter{}
	encFactory := func(opts encode.Options) (encode.Writer, error) {
		writer.outputPath = opts.OutputPath
		return writer, nil
	}

	p := New(
		upscale.NewStage(probe, upFactory, zerolog.Nop()),
		interpolate.NewStage(probe, inFactory, zerolog.Nop()),
		encode.NewStage(encFactory, zerolog.Nop()),
		zerolog.Nop(),
		opts...,
	)
	return p, writer
}

func fullConfiguration(dir string) Configuration {
	cfg := DefaultConfiguration(filepath.Join(dir, "out.mp4"))
	cfg.Upscale = UpscaleRequest{Enabled: true, Factor: 2}
	cfg.Interpolate = InterpolateRequest{Enabled: true, Factor: 2}
	return cfg
}

func TestRunFullPipeline(t *testing.T) {
	p, writer := testPipeline(t)
	cfg := fullConfiguration(t.TempDir())

	res, err := p.Run(context.Background(), testSequence(5, 8, 6), cfg)
	require.NoError(t, err)
	assert.Equal(t, StateDone, p.State())

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, cfg.OutputPath, res.OutputPath)
	assert.Equal(t, 5, res.FramesIn)
	// 5 frames upscaled to 5, interpolated x2 to 9.
	assert.Equal(t, 9, res.FramesEncoded)
	assert.Equal(t, 9, writer.appends)
	assert.True(t, writer.finalized)

	assert.Equal(t, backend.KindClassical, res.UpscaleBackend)
	assert.Equal(t, backend.KindBlend, res.InterpolationBackend)

	// Interpolation ran, so the target rate applies.
	assert.Equal(t, 32, res.EffectiveFrameRate)
	assert.InDelta(t, 9.0/32.0, res.PredictedDuration, 1e-9)

	assert.Contains(t, res.StageElapsed, "upscale")
	assert.Contains(t, res.StageElapsed, "interpolate")
	assert.Contains(t, res.StageElapsed, "encode")
}

func TestRunEncodeOnly(t *testing.T) {
	p, writer := testPipeline(t)
	cfg := DefaultConfiguration(filepath.Join(t.TempDir(), "out.mp4"))

	res, err := p.Run(context.Background(), testSequence(3, 4, 4), cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, res.FramesEncoded)
	assert.Equal(t, 3, writer.appends)
	assert.Equal(t, backend.KindUnknown, res.UpscaleBackend)
	assert.Equal(t, backend.KindUnknown, res.InterpolationBackend)
	// No interpolation, so the source rate applies.
	assert.Equal(t, 16, res.EffectiveFrameRate)
}

func TestRunNormalizesFactorOne(t *testing.T) {
	p, _ := testPipeline(t)
	cfg := DefaultConfiguration(filepath.Join(t.TempDir(), "out.mp4"))
	cfg.Upscale = UpscaleRequest{Enabled: true, Factor: 1}
	cfg.Interpolate = InterpolateRequest{Enabled: true, Factor: 1}

	res, err := p.Run(context.Background(), testSequence(2, 4, 4), cfg)
	require.NoError(t, err)
	assert.Equal(t, backend.KindUnknown, res.UpscaleBackend)
	assert.Equal(t, 2, res.FramesEncoded)
	assert.Equal(t, 16, res.EffectiveFrameRate)
}

func TestRunInvalidConfiguration(t *testing.T) {
	p, _ := testPipeline(t)
	cfg := fullConfiguration(t.TempDir())
	cfg.SourceFrameRate = 0

	_, err := p.Run(context.Background(), testSequence(2, 4, 4), cfg)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindInvalidInput, perr.Kind)
	assert.Equal(t, StateFailed, p.State())
}

func TestRunEmptySequence(t *testing.T) {
	p, _ := testPipeline(t)
	_, err := p.Run(context.Background(), frame.Sequence{}, fullConfiguration(t.TempDir()))

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindInvalidInput, perr.Kind)
}

func TestRunOutputExistsCheckedFirst(t *testing.T) {
	p, writer := testPipeline(t)
	cfg := fullConfiguration(t.TempDir())
	require.NoError(t, os.WriteFile(cfg.OutputPath, []byte("old"), 0o644))

	_, err := p.Run(context.Background(), testSequence(3, 4, 4), cfg)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindAlreadyExists, perr.Kind)
	// Detected before any processing: the writer never started.
	assert.Zero(t, writer.appends)
}

func TestRunOverwrite(t *testing.T) {
	p, _ := testPipeline(t)
	cfg := fullConfiguration(t.TempDir())
	cfg.Overwrite = true
	require.NoError(t, os.WriteFile(cfg.OutputPath, []byte("old"), 0o644))

	_, err := p.Run(context.Background(), testSequence(3, 4, 4), cfg)
	assert.NoError(t, err)
}

func TestRunInterpolationSingleFrameFails(t *testing.T) {
	p, _ := testPipeline(t)
	cfg := DefaultConfiguration(filepath.Join(t.TempDir(), "out.mp4"))
	cfg.Interpolate = InterpolateRequest{Enabled: true, Factor: 2}

	_, err := p.Run(context.Background(), testSequence(1, 4, 4), cfg)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindInvalidInput, perr.Kind)
	assert.Equal(t, "interpolate", perr.Stage)
}

func TestRunPinnedModelNotReady(t *testing.T) {
	p, _ := testPipeline(t)
	cfg := fullConfiguration(t.TempDir())
	cfg.Upscale.Preferred = backend.Pin(backend.KindMLTemporal)

	_, err := p.Run(context.Background(), testSequence(2, 4, 4), cfg)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindModelNotReady, perr.Kind)
	assert.Equal(t, "upscale", perr.Stage)
}

func TestRunProgressMonotonicAndComplete(t *testing.T) {
	var mu sync.Mutex
	var progress []float64
	p, _ := testPipeline(t, WithProgress(func(v float64) {
		mu.Lock()
		progress = append(progress, v)
		mu.Unlock()
	}))

	_, err := p.Run(context.Background(), testSequence(4, 4, 4), fullConfiguration(t.TempDir()))
	require.NoError(t, err)

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
	assert.InDelta(t, 1.0, progress[len(progress)-1], 1e-9)
}

func TestRunCancellationPassesThrough(t *testing.T) {
	p, _ := testPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, testSequence(3, 4, 4), fullConfiguration(t.TempDir()))
	assert.ErrorIs(t, err, context.Canceled)
	var perr *Error
	assert.False(t, errors.As(err, &perr), "cancellation is not translated into the taxonomy")
	assert.Equal(t, StateFailed, p.State())
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateUpscaling, "upscaling"},
		{StateInterpolating, "interpolating"},
		{StateEncoding, "encoding"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
