// Package frame provides the image sequence container the pipeline operates
// on: individual frames (in memory or referenced by file path), ordered
// sequences with provenance metadata, an incremental collector fed by
// generation jobs, and a directory-based persistence format.
package frame

import (
	"fmt"
	"image"
	"os"

	// Registered decoders for lazily loaded frames.
	_ "image/jpeg"
	_ "image/png"
)

// Frame is a single image, either materialized in memory or referenced by a
// file path and loaded on demand. A lazy frame is not cached: every Load
// re-reads the file. Callers that need repeated access should Materialize
// once.
type Frame struct {
	img  image.Image
	path string
}

// FromImage wraps an in-memory image.
func FromImage(img image.Image) Frame {
	return Frame{img: img}
}

// FromFile references an image file to be decoded on demand.
func FromFile(path string) Frame {
	return Frame{path: path}
}

// InMemory reports whether the frame is already materialized.
func (f Frame) InMemory() bool {
	return f.img != nil
}

// Path returns the backing file path, or "" for an in-memory frame.
func (f Frame) Path() string {
	return f.path
}

// Load returns the frame's image, decoding the backing file for a lazy
// frame. The decoded image is not retained.
func (f Frame) Load() (image.Image, error) {
	if f.img != nil {
		return f.img, nil
	}
	if f.path == "" {
		return nil, fmt.Errorf("frame has neither image nor path")
	}
	r, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", f.path, err)
	}
	defer r.Close()
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", f.path, err)
	}
	return img, nil
}

// Materialize returns a frame holding the decoded image in memory.
// Materializing an already in-memory frame is a no-op.
func (f Frame) Materialize() (Frame, error) {
	if f.img != nil {
		return f, nil
	}
	img, err := f.Load()
	if err != nil {
		return Frame{}, err
	}
	return Frame{img: img}, nil
}

// Size returns the frame's pixel width and height, loading the image if
// necessary.
func (f Frame) Size() (width, height int, err error) {
	img, err := f.Load()
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// Sequence is an ordered list of frames with optional provenance metadata.
// Array order is temporal order. Stages never mutate a caller's sequence;
// each stage produces a new one.
type Sequence struct {
	Frames []Frame
	Meta   Metadata
}

// NewSequence builds a sequence from in-memory images.
func NewSequence(images ...image.Image) Sequence {
	frames := make([]Frame, len(images))
	for i, img := range images {
		frames[i] = FromImage(img)
	}
	return Sequence{Frames: frames}
}

// Len returns the number of frames.
func (s Sequence) Len() int {
	return len(s.Frames)
}

// Geometry returns the width and height of the first frame. It fails for an
// empty sequence.
func (s Sequence) Geometry() (width, height int, err error) {
	if len(s.Frames) == 0 {
		return 0, 0, fmt.Errorf("sequence is empty")
	}
	return s.Frames[0].Size()
}

// WithFrames returns a copy of the sequence carrying the same metadata but
// the given frames. Used by stages to emit their output.
func (s Sequence) WithFrames(frames []Frame) Sequence {
	return Sequence{Frames: frames, Meta: s.Meta}
}
