package interpolate

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
)

// blendBackend synthesizes intermediate frames as weighted cross-dissolves
// between the pair's endpoints. Each phase is computed independently; there
// is no temporal state and no capability gating.
type blendBackend struct{}

// NewBlend returns the cross-fade blend backend.
func NewBlend() Backend {
	return blendBackend{}
}

func (blendBackend) Kind() backend.Kind {
	return backend.KindBlend
}

func (blendBackend) Interpolate(ctx context.Context, req PairRequest) ([]image.Image, error) {
	if req.First.Bounds().Size() != req.Second.Bounds().Size() {
		return nil, fmt.Errorf("pair geometry mismatch: %v vs %v",
			req.First.Bounds().Size(), req.Second.Bounds().Size())
	}

	a := toRGBA(req.First)
	b := toRGBA(req.Second)

	out := make([]image.Image, len(req.Phases))
	for i, phase := range req.Phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = crossDissolve(a, b, phase)
	}
	return out, nil
}

func (blendBackend) Close() error { return nil }

// crossDissolve computes (1-t)*a + t*b per channel.
func crossDissolve(a, b *image.RGBA, t float64) *image.RGBA {
	bounds := a.Bounds()
	dst := image.NewRGBA(bounds)
	wa := 1 - t
	for i := range dst.Pix {
		dst.Pix[i] = uint8(float64(a.Pix[i])*wa + float64(b.Pix[i])*t + 0.5)
	}
	return dst
}

// toRGBA normalizes an image to a zero-origin RGBA with packed stride so
// the dissolve can walk raw pixel data.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok &&
		rgba.Rect.Min == (image.Point{}) && rgba.Stride == rgba.Rect.Dx()*4 {
		return rgba
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}
