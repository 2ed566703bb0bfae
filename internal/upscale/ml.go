package upscale

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/mlworker"
)

// mlBackend submits frames to the external ML worker. The worker keeps its
// own temporal state between sequential submissions, which is why the stage
// marks the first frame of a run random-access.
type mlBackend struct {
	kind backend.Kind
	sess *mlworker.Session
}

// NewML returns an accelerated upscaling backend of the given kind backed
// by a fresh worker session.
func NewML(kind backend.Kind, cfg mlworker.Config, log zerolog.Logger) (Backend, error) {
	switch kind {
	case backend.KindMLTemporal, backend.KindMLFast:
	default:
		return nil, fmt.Errorf("%s is not an ML upscaling backend", kind)
	}
	sess, err := mlworker.NewSession(cfg, "upscale", log)
	if err != nil {
		return nil, err
	}
	return &mlBackend{kind: kind, sess: sess}, nil
}

func (b *mlBackend) Kind() backend.Kind { return b.kind }

func (b *mlBackend) Process(ctx context.Context, req Request) (image.Image, error) {
	in, err := b.sess.WriteFrame("input.png", req.Frame)
	if err != nil {
		return nil, err
	}

	args := []string{
		"upscale",
		"--backend", b.kind.String(),
		"--scale", strconv.Itoa(req.Factor),
		"--mode", req.Mode.String(),
		"--input", in,
		"--output", "output.png",
	}
	if req.Previous != nil {
		prev, err := b.sess.WriteFrame("previous.png", req.Previous)
		if err != nil {
			return nil, err
		}
		args = append(args, "--previous", prev)
	}
	if req.PreviousOutput != nil {
		prevOut, err := b.sess.WriteFrame("previous_output.png", req.PreviousOutput)
		if err != nil {
			return nil, err
		}
		args = append(args, "--previous-output", prevOut)
	}

	if err := b.sess.Run(ctx, args...); err != nil {
		return nil, err
	}
	return b.sess.ReadFrame("output.png")
}

func (b *mlBackend) Close() error { return b.sess.Close() }

// DefaultFactory builds production backends: worker-backed sessions for the
// ML kinds and the in-process classical resampler.
func DefaultFactory(cfg mlworker.Config, log zerolog.Logger) BackendFactory {
	return func(kind backend.Kind) (Backend, error) {
		switch kind {
		case backend.KindClassical:
			return NewClassical(), nil
		case backend.KindMLTemporal, backend.KindMLFast:
			return NewML(kind, cfg, log)
		default:
			return nil, fmt.Errorf("no upscaling backend for kind %s", kind)
		}
	}
}
