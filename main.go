// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/capability"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/encode"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/frame"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/interpolate"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/mlworker"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/pipeline"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/ui"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/upscale"
)

const defaultModelBaseURL = "https://models.euphoriacyberware.ai/videokit"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			MarginBottom(1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06B6D4")).
			Bold(true)
)

func main() {
	fmt.Println(titleStyle.Render("🎬 DrawThings VideoKit"))
	fmt.Println("Turn generated frame sequences into video.")
	fmt.Println()

	log := newLogger()

	if !encode.FFmpegAvailable() {
		fmt.Println(ui.Error("FFmpeg is not installed or not in PATH"))
		fmt.Println("Please install FFmpeg and try again.")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg pipeline.Configuration
	var inputDir string
	var err error

	if len(os.Args) > 1 {
		var fc fileConfig
		fc, err = loadFileConfig(os.Args[1])
		if err == nil {
			inputDir = fc.Input
			cfg, err = fc.toConfiguration()
		}
		if err != nil {
			fmt.Println(ui.Error(fmt.Sprintf("Config file: %v", err)))
			os.Exit(1)
		}
	}

	if inputDir == "" {
		inputDir = promptInputDir()
	}

	seq, err := frame.LoadDirectory(inputDir)
	if err != nil {
		fmt.Println(ui.Error(fmt.Sprintf("Loading frames: %v", err)))
		os.Exit(1)
	}
	if seq.Len() == 0 {
		fmt.Println(ui.Error("No frames found in " + inputDir))
		os.Exit(1)
	}
	fmt.Println(ui.SequenceInfo(seq))

	models := capability.NewModelManager(modelDir(), defaultModelBaseURL, log)
	probe := capability.NewProbe(models, log)

	width, height, err := seq.Geometry()
	if err != nil {
		fmt.Println(ui.Error(fmt.Sprintf("Reading frame geometry: %v", err)))
		os.Exit(1)
	}
	fmt.Println(promptStyle.Render("⚙️  Backend availability:"))
	fmt.Println(ui.CapabilityReport(probe, width, height))

	if len(os.Args) <= 1 {
		cfg = promptConfiguration()
	}

	if err := ensureModels(ctx, probe, models, cfg, width, height); err != nil {
		fmt.Println(ui.Error(fmt.Sprintf("Model download: %v", err)))
		os.Exit(1)
	}

	bar := newPipelineBar()
	worker := mlworker.Config{ModelDir: models.Dir()}
	pipe := pipeline.NewDefault(probe, worker, log, pipeline.WithProgress(func(p float64) {
		_ = bar.Set(int(p * 1000))
	}))

	fmt.Println()
	result, err := pipe.Run(ctx, seq, cfg)
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		reportFailure(err)
		os.Exit(1)
	}

	fmt.Println(ui.Success("Encoding completed"))
	fmt.Println(ui.ResultSummary(result))
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if v := os.Getenv("VIDEOKIT_LOG"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func modelDir() string {
	if dir := os.Getenv("VIDEOKIT_MODEL_DIR"); dir != "" {
		return dir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "videokit", "models")
	}
	return filepath.Join(cache, "videokit", "models")
}

func promptInputDir() string {
	prompt := promptui.Prompt{
		Label: "📁 Frame directory",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("path cannot be empty")
			}
			info, err := os.Stat(strings.TrimSpace(input))
			if err != nil {
				return fmt.Errorf("directory does not exist")
			}
			if !info.IsDir() {
				return fmt.Errorf("not a directory")
			}
			return nil
		},
	}
	dir, err := prompt.Run()
	if err != nil {
		os.Exit(1)
	}
	abs, err := filepath.Abs(strings.TrimSpace(dir))
	if err != nil {
		fmt.Println(ui.Error(fmt.Sprintf("Invalid path: %v", err)))
		os.Exit(1)
	}
	return abs
}

func promptConfiguration() pipeline.Configuration {
	cfg := pipeline.DefaultConfiguration("")

	if promptYesNo("🔍 Upscale frames?") {
		cfg.Upscale.Enabled = true
		cfg.Upscale.Factor = promptInt("Upscale factor", 2, 2, 4)
		cfg.Upscale.Preferred = promptBackend("Upscaling backend",
			backend.KindMLTemporal, backend.KindMLFast, backend.KindClassical)
	}

	if promptYesNo("🌀 Interpolate frames?") {
		cfg.Interpolate.Enabled = true
		cfg.Interpolate.Factor = promptInt("Interpolation factor", 2, 2, 8)
		cfg.Interpolate.Preferred = promptBackend("Interpolation backend",
			backend.KindMLMotion, backend.KindBlend)
		if cfg.Interpolate.Factor > 2 && promptYesNo("Use multi-pass interpolation?") {
			cfg.Interpolate.Pass = interpolate.MultiPass
		}
	}

	cfg.SourceFrameRate = promptInt("🎞  Source frame rate", 16, 1, 240)
	if cfg.Interpolate.Enabled {
		cfg.TargetFrameRate = promptInt("🎬 Target frame rate", cfg.SourceFrameRate*cfg.Interpolate.Factor, 1, 240)
	} else {
		cfg.TargetFrameRate = cfg.SourceFrameRate
	}

	cfg.Codec = encode.Codec(promptSelect("📼 Codec", []string{string(encode.CodecH264), string(encode.CodecHEVC)}))
	cfg.Quality = encode.Quality(promptSelect("✨ Quality", []string{
		string(encode.QualityDraft), string(encode.QualityStandard), string(encode.QualityHigh),
	}))

	cfg.OutputPath = promptOutputPath()
	if _, err := os.Stat(cfg.OutputPath); err == nil {
		cfg.Overwrite = promptYesNo("Output exists, overwrite?")
	}
	return cfg
}

func promptYesNo(label string) bool {
	return promptSelect(label, []string{"No", "Yes"}) == "Yes"
}

func promptSelect(label string, items []string) string {
	sel := promptui.Select{Label: label, Items: items}
	_, choice, err := sel.Run()
	if err != nil {
		os.Exit(1)
	}
	return choice
}

func promptInt(label string, def, min, max int) int {
	prompt := promptui.Prompt{
		Label:   label,
		Default: strconv.Itoa(def),
		Validate: func(input string) error {
			n, err := strconv.Atoi(strings.TrimSpace(input))
			if err != nil {
				return fmt.Errorf("not a number")
			}
			if n < min || n > max {
				return fmt.Errorf("must be between %d and %d", min, max)
			}
			return nil
		},
	}
	raw, err := prompt.Run()
	if err != nil {
		os.Exit(1)
	}
	n, _ := strconv.Atoi(strings.TrimSpace(raw))
	return n
}

func promptBackend(label string, kinds ...backend.Kind) backend.Selection {
	items := []string{"auto"}
	for _, kind := range kinds {
		items = append(items, kind.String())
	}
	choice := promptSelect(label, items)
	sel, err := parseSelection(choice, kinds...)
	if err != nil {
		os.Exit(1)
	}
	return sel
}

func promptOutputPath() string {
	prompt := promptui.Prompt{
		Label:   "💾 Output path",
		Default: "output.mp4",
	}
	path, err := prompt.Run()
	if err != nil {
		os.Exit(1)
	}
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		fmt.Println(ui.Error(fmt.Sprintf("Invalid path: %v", err)))
		os.Exit(1)
	}
	if filepath.Ext(abs) == "" {
		abs += ".mp4"
	}
	return abs
}

// ensureModels downloads model artifacts for any pinned accelerated backend
// that needs them, and offers the download when auto selection would prefer
// an accelerated backend that is one download away.
func ensureModels(ctx context.Context, probe *capability.Probe, models *capability.ModelManager, cfg pipeline.Configuration, width, height int) error {
	var wanted []downloadCandidate

	if cfg.Upscale.Enabled {
		wanted = append(wanted, candidates(cfg.Upscale.Preferred, upscale.AutoPriority(), cfg.Upscale.Factor)...)
	}
	if cfg.Interpolate.Enabled {
		wanted = append(wanted, candidates(cfg.Interpolate.Preferred, []backend.Kind{backend.KindMLMotion}, cfg.Interpolate.Factor)...)
	}

	for _, cand := range wanted {
		avail := probe.Check(cand.kind, width, height)
		if avail.Model != capability.ModelDownloadRequired {
			continue
		}
		if !cand.pinned && !promptYesNo(fmt.Sprintf("Backend %s needs a model download, fetch it now?", cand.kind)) {
			continue
		}
		bar := progressbar.NewOptions(1000,
			progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s model", cand.kind)),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(50),
		)
		err := models.Download(ctx, cand.kind, width, height, cand.factor, func(p float64) {
			_ = bar.Set(int(p * 1000))
		})
		_ = bar.Finish()
		fmt.Println()
		if err != nil {
			if cand.pinned {
				return err
			}
			fmt.Println(ui.Warning(fmt.Sprintf("Download for %s failed, will fall back: %v", cand.kind, err)))
		}
	}
	return nil
}

type downloadCandidate struct {
	kind   backend.Kind
	factor int
	pinned bool
}

func candidates(sel backend.Selection, autoOrder []backend.Kind, factor int) []downloadCandidate {
	if kind, ok := sel.Pinned(); ok {
		if !kind.Accelerated() {
			return nil
		}
		return []downloadCandidate{{kind: kind, factor: factor, pinned: true}}
	}
	var out []downloadCandidate
	for _, kind := range autoOrder {
		if kind.Accelerated() {
			out = append(out, downloadCandidate{kind: kind, factor: factor})
		}
	}
	return out
}

func newPipelineBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(1000,
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func reportFailure(err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Println(ui.Warning("Cancelled, partial output removed"))
		return
	}
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		msg := fmt.Sprintf("%s failed (%s): %v", perr.Stage, perr.Kind, perr.Err)
		if perr.FrameIndex >= 0 {
			msg = fmt.Sprintf("%s failed (%s) at frame %d: %v", perr.Stage, perr.Kind, perr.FrameIndex, perr.Err)
		}
		fmt.Println(ui.Error(msg))
		return
	}
	fmt.Println(ui.Error(err.Error()))
}
