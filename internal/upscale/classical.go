package upscale

import (
	"context"
	"image"

	"golang.org/x/image/draw"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
)

// classicalBackend upscales with Catmull-Rom resampling. It is stateless,
// needs no capability gating, and serves as the universal fallback.
type classicalBackend struct{}

// NewClassical returns the classical resampling backend.
func NewClassical() Backend {
	return classicalBackend{}
}

func (classicalBackend) Kind() backend.Kind {
	return backend.KindClassical
}

func (classicalBackend) Process(ctx context.Context, req Request) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := req.Frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*req.Factor, b.Dy()*req.Factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), req.Frame, b, draw.Src, nil)
	return dst, nil
}

func (classicalBackend) Close() error { return nil }
