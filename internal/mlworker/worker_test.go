package mlworker

import (
	"context"
	"image"
	"os"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	cfg.TempDir = t.TempDir()
	s, err := NewSession(cfg, "test", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConfigExecutableDefault(t *testing.T) {
	assert.Equal(t, "videokit-worker", Config{}.executable())
	assert.Equal(t, "/opt/worker", Config{Path: "/opt/worker"}.executable())
}

func TestSessionDirectoryLifecycle(t *testing.T) {
	s := newSession(t, Config{})
	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, s.Close())
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))

	// Close is idempotent.
	assert.NoError(t, s.Close())
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	s := newSession(t, Config{})

	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	path, err := s.WriteFrame("input.png", img)
	require.NoError(t, err)
	assert.FileExists(t, path)

	back, err := s.ReadFrame("input.png")
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), back.Bounds())
}

func TestReadFrameMissing(t *testing.T) {
	s := newSession(t, Config{})
	_, err := s.ReadFrame("never_written.png")
	assert.Error(t, err)
}

func TestRunExecutes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/sh")
	}
	s := newSession(t, Config{Path: "/bin/sh"})
	// The trailing --model-dir/--work-dir flags land in the script's
	// positional parameters and are ignored.
	err := s.Run(context.Background(), "-c", "exit 0")
	assert.NoError(t, err)
}

func TestRunReportsWorkerFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/sh")
	}
	s := newSession(t, Config{Path: "/bin/sh"})
	err := s.Run(context.Background(), "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunSingleInFlight(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/sh")
	}
	s := newSession(t, Config{Path: "/bin/sh"})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Run(context.Background(), "-c", "sleep 0.3")
	}()

	time.Sleep(50 * time.Millisecond)
	err := s.Run(context.Background(), "-c", "exit 0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")
	wg.Wait()
}

func TestRunCancellation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/sh")
	}
	s := newSession(t, Config{Path: "/bin/sh"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Run(ctx, "-c", "sleep 5")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunAfterClose(t *testing.T) {
	s := newSession(t, Config{Path: "/bin/sh"})
	require.NoError(t, s.Close())
	err := s.Run(context.Background(), "-c", "exit 0")
	assert.Contains(t, err.Error(), "closed")
}
