// Package capability decides at runtime whether an accelerated backend is
// usable: platform version, execution environment, input geometry, memory
// headroom, and ML model-artifact readiness. Probing is side-effect free;
// model downloads only happen through the explicit ModelManager.Download.
package capability

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
)

// Limits describes the static requirements of an accelerated backend family.
type Limits struct {
	// MinPlatformMajor is the minimum major OS/platform version.
	MinPlatformMajor int
	// MaxWidth and MaxHeight cap the input geometry regardless of the
	// requested output size.
	MaxWidth  int
	MaxHeight int
	// RequiresModel marks ML backends whose artifacts must be downloaded.
	RequiresModel bool
	// MemoryPerPixel is the rough working-set estimate in bytes per input
	// pixel, used for the memory headroom gate.
	MemoryPerPixel int
}

// backendLimits holds the declared limits per accelerated backend. Classical
// backends have no entry: they pass every gate.
var backendLimits = map[backend.Kind]Limits{
	backend.KindMLTemporal: {
		MinPlatformMajor: 4,
		MaxWidth:         1920,
		MaxHeight:        1080,
		RequiresModel:    true,
		MemoryPerPixel:   64,
	},
	backend.KindMLFast: {
		MinPlatformMajor: 4,
		MaxWidth:         3840,
		MaxHeight:        2160,
		RequiresModel:    true,
		MemoryPerPixel:   32,
	},
	backend.KindMLMotion: {
		MinPlatformMajor: 4,
		MaxWidth:         1920,
		MaxHeight:        1080,
		RequiresModel:    true,
		MemoryPerPixel:   96,
	},
}

// Availability is the result of a probe: either usable, or not with a
// human-readable reason. For ML backends it also carries the model
// readiness tri-state.
type Availability struct {
	Available        bool
	Reason           string
	Model            ModelState
	DownloadProgress float64 // meaningful only while Model is ModelDownloading
}

// Probe performs capability checks for accelerated backends. Probes are
// recomputed on demand and never cached beyond a single call: model
// availability can change between runs, for example after a download
// completes.
type Probe struct {
	models *ModelManager
	log    zerolog.Logger

	// Swappable for tests.
	hostInfo      func() (*host.InfoStat, error)
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	getenv        func(string) string
}

// ProbeOption overrides how a probe inspects the host. Used by tests and by
// callers that already hold platform information.
type ProbeOption func(*Probe)

// WithHostInfoFunc replaces the platform version lookup.
func WithHostInfoFunc(fn func() (*host.InfoStat, error)) ProbeOption {
	return func(p *Probe) { p.hostInfo = fn }
}

// WithMemoryFunc replaces the memory statistics lookup.
func WithMemoryFunc(fn func() (*mem.VirtualMemoryStat, error)) ProbeOption {
	return func(p *Probe) { p.virtualMemory = fn }
}

// WithGetenvFunc replaces the environment lookup.
func WithGetenvFunc(fn func(string) string) ProbeOption {
	return func(p *Probe) { p.getenv = fn }
}

// NewProbe returns a probe backed by the given model manager.
func NewProbe(models *ModelManager, log zerolog.Logger, opts ...ProbeOption) *Probe {
	p := &Probe{
		models:        models,
		log:           log.With().Str("component", "capability").Logger(),
		hostInfo:      host.Info,
		virtualMemory: mem.VirtualMemory,
		getenv:        os.Getenv,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check reports whether the backend is usable for inputs of the given
// geometry. Checks run in a fixed order: platform version, execution
// environment, geometry, memory headroom, model artifacts. The first
// failing gate determines the reason.
func (p *Probe) Check(kind backend.Kind, width, height int) Availability {
	limits, accelerated := backendLimits[kind]
	if !accelerated {
		// Classical backends are always ready once geometry is sane.
		return Availability{Available: true, Model: ModelReady}
	}

	if reason := p.checkPlatform(limits); reason != "" {
		return Availability{Reason: reason}
	}
	if reason := p.checkEnvironment(); reason != "" {
		return Availability{Reason: reason}
	}
	if width > limits.MaxWidth || height > limits.MaxHeight {
		return Availability{Reason: fmt.Sprintf(
			"input %dx%d exceeds %s limit of %dx%d",
			width, height, kind, limits.MaxWidth, limits.MaxHeight)}
	}
	if reason := p.checkMemory(limits, width, height); reason != "" {
		return Availability{Reason: reason}
	}

	if limits.RequiresModel {
		state, progress := p.models.State(kind)
		if state != ModelReady {
			return Availability{
				Reason:           fmt.Sprintf("model artifacts for %s are not ready", kind),
				Model:            state,
				DownloadProgress: progress,
			}
		}
	}
	return Availability{Available: true, Model: ModelReady}
}

// checkPlatform gates on the OS major version reported by the host.
func (p *Probe) checkPlatform(limits Limits) string {
	info, err := p.hostInfo()
	if err != nil {
		return fmt.Sprintf("cannot determine platform version: %v", err)
	}
	major := platformMajor(info.PlatformVersion)
	if major == 0 {
		major = platformMajor(info.KernelVersion)
	}
	if major < limits.MinPlatformMajor {
		return fmt.Sprintf("platform version %s is below required major %d",
			info.PlatformVersion, limits.MinPlatformMajor)
	}
	return ""
}

// checkEnvironment gates on headless or emulated execution environments
// where accelerated backends cannot attach to a compute device.
func (p *Probe) checkEnvironment() string {
	if p.getenv("VIDEOKIT_FORCE_HEADLESS") == "1" {
		return "headless environment forced via VIDEOKIT_FORCE_HEADLESS"
	}
	if p.getenv("CI") != "" {
		return "accelerated backends are unavailable in CI environments"
	}
	if runtime.GOOS == "linux" &&
		p.getenv("DISPLAY") == "" && p.getenv("WAYLAND_DISPLAY") == "" {
		return "no display server detected, assuming headless host"
	}
	return ""
}

// checkMemory requires enough free memory for the backend's working set at
// this geometry.
func (p *Probe) checkMemory(limits Limits, width, height int) string {
	vm, err := p.virtualMemory()
	if err != nil {
		// Memory stats being unreadable is not a reason to refuse work.
		p.log.Debug().Err(err).Msg("memory stats unavailable, skipping headroom gate")
		return ""
	}
	need := uint64(width) * uint64(height) * uint64(limits.MemoryPerPixel)
	if need > vm.Available {
		return fmt.Sprintf("insufficient memory: need %d MiB, %d MiB available",
			need/(1024*1024), vm.Available/(1024*1024))
	}
	return ""
}

// platformMajor extracts the leading major number of a version string like
// "22.04" or "6.8.0-41-generic". Returns 0 when unparsable.
func platformMajor(version string) int {
	version = strings.TrimSpace(version)
	if version == "" {
		return 0
	}
	end := strings.IndexAny(version, ".-")
	if end == -1 {
		end = len(version)
	}
	major, err := strconv.Atoi(version[:end])
	if err != nil {
		return 0
	}
	return major
}
