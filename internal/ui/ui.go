// Package ui renders terminal panels for the interactive CLI: the loaded
// sequence summary, the backend capability report, and the final run result.
package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/capability"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/frame"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/pipeline"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#111827"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

// SequenceInfo renders a panel describing the loaded frame sequence.
func SequenceInfo(seq frame.Sequence) string {
	w, h, err := seq.Geometry()
	geometry := "unknown"
	if err == nil {
		geometry = fmt.Sprintf("%dx%d", w, h)
	}

	rows := []string{
		row("🎞  Frames:", fmt.Sprintf("%d", seq.Len())),
		row("📐 Dimensions:", geometry),
	}
	if seq.Meta.SourceJobID != "" {
		rows = append(rows, row("🆔 Job:", seq.Meta.SourceJobID))
	}
	if seq.Meta.Prompt != "" {
		rows = append(rows, row("💬 Prompt:", truncate(seq.Meta.Prompt, 60)))
	}
	if seq.Meta.Model != "" {
		rows = append(rows, row("🧠 Model:", seq.Meta.Model))
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

// CapabilityReport renders one line per backend kind with its availability
// and, where relevant, the blocking reason or model download state.
func CapabilityReport(probe *capability.Probe, width, height int) string {
	kinds := []backend.Kind{
		backend.KindMLTemporal,
		backend.KindMLFast,
		backend.KindClassical,
		backend.KindMLMotion,
		backend.KindBlend,
	}

	var rows []string
	for _, kind := range kinds {
		avail := probe.Check(kind, width, height)
		rows = append(rows, capabilityRow(kind, avail))
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func capabilityRow(kind backend.Kind, avail capability.Availability) string {
	name := labelStyle.Render(fmt.Sprintf("%-12s", kind.String()))
	switch {
	case avail.Available:
		return fmt.Sprintf("%s %s", name, okStyle.Render("✓ available"))
	case avail.Model == capability.ModelDownloadRequired:
		return fmt.Sprintf("%s %s", name, warnStyle.Render("⬇ model download required"))
	case avail.Model == capability.ModelDownloading:
		return fmt.Sprintf("%s %s", name,
			warnStyle.Render(fmt.Sprintf("⬇ downloading (%.0f%%)", avail.DownloadProgress*100)))
	default:
		return fmt.Sprintf("%s %s", name, errorStyle.Render("✗ "+avail.Reason))
	}
}

// ResultSummary renders the final panel after a successful run.
func ResultSummary(res *pipeline.Result) string {
	rows := []string{
		row("📁 Output:", filepath.Base(res.OutputPath)),
		row("🎞  Frames:", fmt.Sprintf("%d in → %d encoded", res.FramesIn, res.FramesEncoded)),
		row("🎬 Frame rate:", fmt.Sprintf("%d fps", res.EffectiveFrameRate)),
		row("⏱  Duration:", FormatDuration(res.PredictedDuration)),
		row("⚙️  Elapsed:", formatElapsed(res.Elapsed)),
	}
	if res.UpscaleBackend != backend.KindUnknown {
		rows = append(rows, row("🔍 Upscaler:", res.UpscaleBackend.String()))
	}
	if res.InterpolationBackend != backend.KindUnknown {
		rows = append(rows, row("🌀 Interpolator:", res.InterpolationBackend.String()))
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

// Success renders a green confirmation line.
func Success(msg string) string {
	return okStyle.Render("✓ " + msg)
}

// Warning renders an amber notice line.
func Warning(msg string) string {
	return warnStyle.Render("⚠ " + msg)
}

// Error renders a red failure line.
func Error(msg string) string {
	return errorStyle.Render("✗ " + msg)
}

func row(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(label), valueStyle.Render(value))
}

// FormatDuration converts seconds to MM:SS format.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
