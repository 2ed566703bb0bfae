package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FFmpegAvailable reports whether the ffmpeg binary can be found.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// NewFFmpegFactory returns a WriterFactory producing writers that pipe raw
// RGBA frames into an ffmpeg process. Construction checks the binary;
// negotiation maps codec and quality onto encoder arguments.
func NewFFmpegFactory(log zerolog.Logger) WriterFactory {
	return func(opts Options) (Writer, error) {
		if !FFmpegAvailable() {
			return nil, &WriterError{Op: OpConstruct, Err: fmt.Errorf("ffmpeg not found in PATH")}
		}
		encoder, err := opts.Codec.encoderName()
		if err != nil {
			return nil, &WriterError{Op: OpNegotiate, Err: err}
		}
		crf, err := opts.Quality.crf()
		if err != nil {
			return nil, &WriterError{Op: OpNegotiate, Err: err}
		}
		return &ffmpegWriter{
			opts:    opts,
			encoder: encoder,
			crf:     crf,
			log:     log.With().Str("component", "ffmpeg").Logger(),
		}, nil
	}
}

// ffmpegWriter streams raw RGBA frames to ffmpeg's stdin. A small queue
// decouples submission from the pipe; readiness reflects queue room so the
// stage can poll instead of blocking on a stalled encoder.
type ffmpegWriter struct {
	opts    Options
	encoder string
	crf     int
	log     zerolog.Logger

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    bytes.Buffer
	queue     chan *image.RGBA
	pumpDone  chan error
	failed    atomic.Bool
	closeOnce sync.Once

	width, height int
	lastPTS       time.Duration
	appended      int
}

func (w *ffmpegWriter) Start(width, height int) error {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.Itoa(w.opts.FrameRate),
		"-i", "-",
		"-c:v", w.encoder,
		"-crf", strconv.Itoa(w.crf),
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		w.opts.OutputPath,
	}

	w.cmd = exec.Command("ffmpeg", args...)
	w.cmd.Stderr = &w.stderr
	stdin, err := w.cmd.StdinPipe()
	if err != nil {
		return &WriterError{Op: OpStart, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	w.stdin = stdin

	if err := w.cmd.Start(); err != nil {
		return &WriterError{Op: OpStart, Err: fmt.Errorf("ffmpeg start: %w", err)}
	}

	w.width, w.height = width, height
	w.lastPTS = -1
	w.queue = make(chan *image.RGBA, 8)
	w.pumpDone = make(chan error, 1)
	go w.pump()
	return nil
}

// pump drains the queue into ffmpeg's stdin. After a write error it keeps
// draining so Append never blocks forever, and reports the first error on
// exit.
func (w *ffmpegWriter) pump() {
	var pumpErr error
	for rgba := range w.queue {
		if pumpErr != nil {
			continue
		}
		if _, err := w.stdin.Write(rgba.Pix); err != nil {
			pumpErr = err
			w.failed.Store(true)
		}
	}
	if err := w.stdin.Close(); err != nil && pumpErr == nil {
		pumpErr = err
	}
	w.pumpDone <- pumpErr
}

func (w *ffmpegWriter) ReadyForMore() bool {
	if w.queue == nil || w.failed.Load() {
		// A failed pipe is "ready" so the next Append surfaces the error
		// instead of the stage polling until timeout.
		return true
	}
	return len(w.queue) < cap(w.queue)
}

func (w *ffmpegWriter) Append(img image.Image, pts time.Duration) error {
	if w.cmd == nil {
		return &WriterError{Op: OpAppend, Err: fmt.Errorf("session not started")}
	}
	if w.failed.Load() {
		return &WriterError{Op: OpAppend, Err: fmt.Errorf("encoder pipe failed: %s", w.stderrTail())}
	}
	if pts <= w.lastPTS {
		return &WriterError{Op: OpAppend, Err: fmt.Errorf(
			"timestamp %s not after previous %s", pts, w.lastPTS)}
	}
	b := img.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return &WriterError{Op: OpAppend, Err: fmt.Errorf(
			"frame is %dx%d, session negotiated %dx%d", b.Dx(), b.Dy(), w.width, w.height)}
	}

	w.queue <- toPackedRGBA(img)
	w.lastPTS = pts
	w.appended++
	return nil
}

func (w *ffmpegWriter) Finalize() error {
	if w.cmd == nil {
		return &WriterError{Op: OpFinalize, Err: fmt.Errorf("session not started")}
	}
	w.closeQueue()
	pumpErr := <-w.pumpDone
	waitErr := w.cmd.Wait()
	if pumpErr != nil {
		return &WriterError{Op: OpFinalize, Err: fmt.Errorf("%v: %s", pumpErr, w.stderrTail())}
	}
	if waitErr != nil {
		return &WriterError{Op: OpFinalize, Err: fmt.Errorf("%v: %s", waitErr, w.stderrTail())}
	}
	if _, err := os.Stat(w.opts.OutputPath); err != nil {
		return &WriterError{Op: OpFinalize, Err: fmt.Errorf("output file missing after encode: %w", err)}
	}
	w.log.Info().Int("frames", w.appended).Str("output", w.opts.OutputPath).Msg("encode finalized")
	return nil
}

func (w *ffmpegWriter) Abort() error {
	if w.cmd == nil {
		return nil
	}
	w.closeQueue()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	<-w.pumpDone
	_ = w.cmd.Wait()
	if err := os.Remove(w.opts.OutputPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partial output: %w", err)
	}
	return nil
}

func (w *ffmpegWriter) closeQueue() {
	w.closeOnce.Do(func() { close(w.queue) })
}

// stderrTail returns the last ffmpeg diagnostics for error messages.
func (w *ffmpegWriter) stderrTail() string {
	const max = 512
	s := w.stderr.String()
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}

// toPackedRGBA normalizes an image to a zero-origin RGBA with packed
// stride, the layout the rawvideo input expects.
func toPackedRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok &&
		rgba.Rect.Min == (image.Point{}) && rgba.Stride == rgba.Rect.Dx()*4 {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
