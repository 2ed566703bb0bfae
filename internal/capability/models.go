package capability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
)

// ModelState is the readiness tri-state of an ML backend's artifacts.
type ModelState int

const (
	// ModelReady means all artifacts are present on disk.
	ModelReady ModelState = iota
	// ModelDownloadRequired means at least one artifact is missing and no
	// download is in flight.
	ModelDownloadRequired
	// ModelDownloading means a download is currently in progress.
	ModelDownloading
)

// String returns the readable state name.
func (s ModelState) String() string {
	switch s {
	case ModelReady:
		return "ready"
	case ModelDownloadRequired:
		return "download_required"
	case ModelDownloading:
		return "downloading"
	default:
		return "unknown"
	}
}

// modelArtifacts lists the files each ML backend needs under the model
// directory, relative to dir.
var modelArtifacts = map[backend.Kind][]string{
	backend.KindMLTemporal: {"esrgan_temporal/weights.bin", "esrgan_temporal/config.json"},
	backend.KindMLFast:     {"esrgan_fast/weights.bin", "esrgan_fast/config.json"},
	backend.KindMLMotion:   {"motion_flow/weights.bin", "motion_flow/config.json"},
}

// ProgressFunc receives download progress in [0,1].
type ProgressFunc func(progress float64)

// ModelManager tracks ML model artifacts on disk and downloads missing ones
// on explicit request. Downloads are idempotent: invoking Download when the
// artifacts are already present completes immediately without touching the
// network, and concurrent callers share a single in-flight download.
type ModelManager struct {
	dir     string
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu        sync.Mutex
	downloads map[backend.Kind]*inflightDownload
}

type inflightDownload struct {
	progress float64
	done     *backend.Completion[struct{}]
}

// NewModelManager returns a manager storing artifacts under dir and
// fetching missing ones from baseURL.
func NewModelManager(dir, baseURL string, log zerolog.Logger) *ModelManager {
	return &ModelManager{
		dir:       dir,
		baseURL:   baseURL,
		client:    http.DefaultClient,
		log:       log.With().Str("component", "models").Logger(),
		downloads: make(map[backend.Kind]*inflightDownload),
	}
}

// Dir returns the model artifact directory.
func (m *ModelManager) Dir() string {
	return m.dir
}

// State reports the readiness of the backend's artifacts, plus the current
// download progress when one is in flight.
func (m *ModelManager) State(kind backend.Kind) (ModelState, float64) {
	m.mu.Lock()
	if dl, ok := m.downloads[kind]; ok {
		progress := dl.progress
		m.mu.Unlock()
		return ModelDownloading, progress
	}
	m.mu.Unlock()

	artifacts, ok := modelArtifacts[kind]
	if !ok {
		return ModelReady, 0
	}
	for _, name := range artifacts {
		if _, err := os.Stat(filepath.Join(m.dir, name)); err != nil {
			return ModelDownloadRequired, 0
		}
	}
	return ModelReady, 0
}

// Download fetches the backend's missing artifacts, reporting progress in
// [0,1] through onProgress. Width, height, and factor are recorded for the
// registry request so the server can pick a fitting variant; they do not
// change which files are required. When the artifacts are already ready the
// call returns nil immediately. A concurrent call for the same backend waits
// for the in-flight download instead of starting a second one.
func (m *ModelManager) Download(ctx context.Context, kind backend.Kind, width, height, factor int, onProgress ProgressFunc) error {
	artifacts, ok := modelArtifacts[kind]
	if !ok {
		return fmt.Errorf("backend %s has no model artifacts", kind)
	}

	m.mu.Lock()
	if dl, inflight := m.downloads[kind]; inflight {
		m.mu.Unlock()
		_, err := dl.done.Wait(ctx)
		return err
	}
	if state, _ := m.stateLocked(kind); state == ModelReady {
		m.mu.Unlock()
		if onProgress != nil {
			onProgress(1)
		}
		m.log.Debug().Stringer("backend", kind).Msg("model already ready, download skipped")
		return nil
	}
	dl := &inflightDownload{done: backend.NewCompletion[struct{}]()}
	m.downloads[kind] = dl
	m.mu.Unlock()

	err := m.fetchArtifacts(ctx, kind, artifacts, width, height, factor, func(p float64) {
		m.mu.Lock()
		dl.progress = p
		m.mu.Unlock()
		if onProgress != nil {
			onProgress(p)
		}
	})

	m.mu.Lock()
	delete(m.downloads, kind)
	m.mu.Unlock()
	dl.done.Fulfill(struct{}{}, err)
	return err
}

// stateLocked is State without the in-flight check; callers hold mu.
func (m *ModelManager) stateLocked(kind backend.Kind) (ModelState, float64) {
	for _, name := range modelArtifacts[kind] {
		if _, err := os.Stat(filepath.Join(m.dir, name)); err != nil {
			return ModelDownloadRequired, 0
		}
	}
	return ModelReady, 0
}

// fetchArtifacts downloads each missing artifact to a temporary file and
// renames it into place, so a cancelled download never leaves a partial
// artifact behind.
func (m *ModelManager) fetchArtifacts(ctx context.Context, kind backend.Kind, artifacts []string, width, height, factor int, report ProgressFunc) error {
	for i, name := range artifacts {
		dest := filepath.Join(m.dir, name)
		if _, err := os.Stat(dest); err == nil {
			report(float64(i+1) / float64(len(artifacts)))
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create model directory: %w", err)
		}

		url := fmt.Sprintf("%s/%s?w=%d&h=%d&factor=%d", m.baseURL, name, width, height, factor)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build model request: %w", err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch model artifact %s: %w", name, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("fetch model artifact %s: unexpected status %s", name, resp.Status)
		}

		err = m.writeArtifact(dest, resp.Body, resp.ContentLength, func(filePart float64) {
			report((float64(i) + filePart) / float64(len(artifacts)))
		})
		resp.Body.Close()
		if err != nil {
			return err
		}
		m.log.Info().Stringer("backend", kind).Str("artifact", name).Msg("model artifact downloaded")
	}
	report(1)
	return nil
}

func (m *ModelManager) writeArtifact(dest string, body io.Reader, total int64, report ProgressFunc) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download_*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	var written int64
	buf := make([]byte, 256*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				tmp.Close()
				return fmt.Errorf("write artifact: %w", err)
			}
			written += int64(n)
			if total > 0 {
				report(float64(written) / float64(total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			return fmt.Errorf("read artifact body: %w", readErr)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}
