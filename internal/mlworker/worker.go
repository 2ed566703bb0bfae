// Package mlworker manages the external worker process that backs the
// accelerated upscaling and interpolation backends. The worker is an opaque
// collaborator: frames go in as PNG files inside a per-session directory,
// results come back the same way. One session is owned by exactly one stage
// run and torn down when the stage finishes.
package mlworker

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
)

// Config locates the worker and its resources.
type Config struct {
	// Path is the worker executable. Empty means "videokit-worker" resolved
	// from PATH.
	Path string
	// ModelDir holds the downloaded model artifacts.
	ModelDir string
	// TempDir is the base for session directories; empty uses the system
	// temp dir.
	TempDir string
}

// Available reports whether the worker executable can be found.
func (c Config) Available() bool {
	_, err := exec.LookPath(c.executable())
	return err == nil
}

func (c Config) executable() string {
	if c.Path != "" {
		return c.Path
	}
	return "videokit-worker"
}

// Session is one exclusive processing context for a stage run. It enforces
// the single-request-in-flight rule: concurrent submissions fail instead of
// corrupting the worker's previous-frame state.
type Session struct {
	cfg Config
	dir string
	log zerolog.Logger

	inflight sync.Mutex
	closed   bool
	mu       sync.Mutex
}

// NewSession creates a session directory and returns the session handle.
func NewSession(cfg Config, name string, log zerolog.Logger) (*Session, error) {
	dir, err := os.MkdirTemp(cfg.TempDir, "videokit_"+name+"_*")
	if err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Session{
		cfg: cfg,
		dir: dir,
		log: log.With().Str("component", "mlworker").Str("session", filepath.Base(dir)).Logger(),
	}, nil
}

// Dir returns the session's working directory.
func (s *Session) Dir() string { return s.dir }

// WriteFrame stores img as a PNG in the session directory and returns its
// absolute path.
func (s *Session) WriteFrame(name string, img image.Image) (string, error) {
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path, nil
}

// ReadFrame decodes a PNG the worker produced in the session directory.
func (s *Session) ReadFrame(name string) (image.Image, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open worker output %s: %w", name, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode worker output %s: %w", name, err)
	}
	return img, nil
}

// Run executes one worker invocation and waits for its completion. The
// worker signals completion by exiting; the exit is delivered through a
// single-shot completion so cancellation and success cannot race. Only one
// invocation may be in flight per session.
func (s *Session) Run(ctx context.Context, args ...string) error {
	if !s.inflight.TryLock() {
		return fmt.Errorf("worker session busy: a request is already in flight")
	}
	defer s.inflight.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("worker session is closed")
	}
	s.mu.Unlock()

	args = append(args, "--model-dir", s.cfg.ModelDir, "--work-dir", s.dir)
	cmd := exec.CommandContext(ctx, s.cfg.executable(), args...) // #nosec G204

	done := backend.NewCompletion[[]byte]()
	go func() {
		out, err := cmd.CombinedOutput()
		done.Fulfill(out, err)
	}()

	out, err := done.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("worker failed: %w\noutput: %s", err, out)
	}
	return nil
}

// Close removes the session directory. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return os.RemoveAll(s.dir)
}
