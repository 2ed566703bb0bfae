package frame

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestFrameFromImage(t *testing.T) {
	f := FromImage(testImage(4, 2, color.RGBA{R: 255, A: 255}))
	assert.True(t, f.InMemory())
	assert.Empty(t, f.Path())

	w, h, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, 4, w)
	assert.Equal(t, 2, h)
}

func TestFrameFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	writePNG(t, path, testImage(8, 6, color.RGBA{G: 128, A: 255}))

	f := FromFile(path)
	assert.False(t, f.InMemory())
	assert.Equal(t, path, f.Path())

	img, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())
}

func TestFrameLoadMissingFile(t *testing.T) {
	f := FromFile(filepath.Join(t.TempDir(), "nope.png"))
	_, err := f.Load()
	assert.Error(t, err)
}

func TestFrameLoadEmpty(t *testing.T) {
	var f Frame
	_, err := f.Load()
	assert.Error(t, err)
}

func TestFrameMaterialize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	writePNG(t, path, testImage(2, 2, color.RGBA{B: 200, A: 255}))

	f, err := FromFile(path).Materialize()
	require.NoError(t, err)
	assert.True(t, f.InMemory())

	// A materialized frame survives deletion of the backing file.
	require.NoError(t, os.Remove(path))
	_, err = f.Load()
	assert.NoError(t, err)
}

func TestSequenceGeometry(t *testing.T) {
	seq := NewSequence(
		testImage(16, 9, color.RGBA{A: 255}),
		testImage(16, 9, color.RGBA{A: 255}),
	)
	assert.Equal(t, 2, seq.Len())

	w, h, err := seq.Geometry()
	require.NoError(t, err)
	assert.Equal(t, 16, w)
	assert.Equal(t, 9, h)
}

func TestSequenceGeometryEmpty(t *testing.T) {
	var seq Sequence
	_, _, err := seq.Geometry()
	assert.Error(t, err)
}

func TestSequenceWithFramesKeepsMetadata(t *testing.T) {
	seq := NewSequence(testImage(2, 2, color.RGBA{A: 255}))
	seq.Meta.SourceJobID = "job-1"
	seq.Meta.Prompt = "a red square"

	out := seq.WithFrames([]Frame{FromImage(testImage(4, 4, color.RGBA{A: 255}))})
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, "job-1", out.Meta.SourceJobID)
	assert.Equal(t, "a red square", out.Meta.Prompt)
}
