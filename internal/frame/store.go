package frame

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

const (
	manifestName    = "manifest.yaml"
	manifestVersion = 1
	framePattern    = "frame_%06d.png"
)

// manifest records frame order, format, and metadata for a saved sequence.
type manifest struct {
	Version  int      `yaml:"version"`
	Format   string   `yaml:"format"`
	Frames   []string `yaml:"frames"`
	Metadata Metadata `yaml:"metadata"`
}

// Save writes the sequence into dir as numbered PNG files plus a versioned
// manifest. The manifest is written atomically and last, so a directory with
// a manifest always describes fully written frames.
func Save(dir string, seq Sequence) error {
	if seq.Len() == 0 {
		return fmt.Errorf("cannot save an empty sequence")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sequence directory: %w", err)
	}

	m := manifest{
		Version:  manifestVersion,
		Format:   "png",
		Frames:   make([]string, seq.Len()),
		Metadata: seq.Meta,
	}

	for i, f := range seq.Frames {
		name := fmt.Sprintf(framePattern, i)
		img, err := f.Load()
		if err != nil {
			return fmt.Errorf("load frame %d: %w", i, err)
		}
		out, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("create frame file %s: %w", name, err)
		}
		if err := png.Encode(out, img); err != nil {
			out.Close()
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("close frame file %s: %w", name, err)
		}
		m.Frames[i] = name
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a sequence saved by Save. Frames are returned lazy, referencing
// the files in dir in manifest order.
func Load(dir string) (Sequence, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return Sequence{}, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Sequence{}, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return Sequence{}, fmt.Errorf("unsupported manifest version %d", m.Version)
	}

	frames := make([]Frame, len(m.Frames))
	for i, name := range m.Frames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			return Sequence{}, fmt.Errorf("frame %d listed in manifest is missing: %w", i, err)
		}
		frames[i] = FromFile(path)
	}
	return Sequence{Frames: frames, Meta: m.Metadata}, nil
}

// LoadDirectory builds a sequence from the image files of a plain directory
// without a manifest, in lexical filename order. Useful for sequences that
// were exported by other tools.
func LoadDirectory(dir string) (Sequence, error) {
	if _, err := os.Stat(filepath.Join(dir, manifestName)); err == nil {
		return Load(dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Sequence{}, fmt.Errorf("read directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return Sequence{}, fmt.Errorf("no image files found in %s", dir)
	}
	sort.Strings(names)

	frames := make([]Frame, len(names))
	for i, name := range names {
		frames[i] = FromFile(filepath.Join(dir, name))
	}
	return Sequence{Frames: frames}, nil
}
