package interpolate

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/backend"
	"github.com/euphoriacyberware-ai/DrawThingsVideoKit/internal/mlworker"
)

// motionBackend submits frame pairs to the external ML worker. All phases
// of a pair go out in one batched submission; the worker fills one output
// slot per phase.
type motionBackend struct {
	sess *mlworker.Session
}

// NewMotion returns the motion-aware ML interpolation backend backed by a
// fresh worker session.
func NewMotion(cfg mlworker.Config, log zerolog.Logger) (Backend, error) {
	sess, err := mlworker.NewSession(cfg, "interpolate", log)
	if err != nil {
		return nil, err
	}
	return &motionBackend{sess: sess}, nil
}

func (b *motionBackend) Kind() backend.Kind { return backend.KindMLMotion }

func (b *motionBackend) Interpolate(ctx context.Context, req PairRequest) ([]image.Image, error) {
	first, err := b.sess.WriteFrame("first.png", req.First)
	if err != nil {
		return nil, err
	}
	second, err := b.sess.WriteFrame("second.png", req.Second)
	if err != nil {
		return nil, err
	}

	parts := make([]string, len(req.Phases))
	for i, p := range req.Phases {
		parts[i] = strconv.FormatFloat(p, 'f', -1, 64)
	}
	args := []string{
		"interpolate",
		"--backend", b.Kind().String(),
		"--mode", req.Mode.String(),
		"--first", first,
		"--second", second,
		"--phases", strings.Join(parts, ","),
		"--output-pattern", "phase_%02d.png",
	}
	if req.MultiPass {
		args = append(args, "--multi-pass")
	}

	if err := b.sess.Run(ctx, args...); err != nil {
		return nil, err
	}

	out := make([]image.Image, len(req.Phases))
	for i := range req.Phases {
		img, err := b.sess.ReadFrame(fmt.Sprintf("phase_%02d.png", i))
		if err != nil {
			return nil, err
		}
		out[i] = img
	}
	return out, nil
}

func (b *motionBackend) Close() error { return b.sess.Close() }

// DefaultFactory builds production backends: the worker-backed motion
// backend and the in-process blend backend.
func DefaultFactory(cfg mlworker.Config, log zerolog.Logger) BackendFactory {
	return func(kind backend.Kind) (Backend, error) {
		switch kind {
		case backend.KindBlend:
			return NewBlend(), nil
		case backend.KindMLMotion:
			return NewMotion(cfg, log)
		default:
			return nil, fmt.Errorf("no interpolation backend for kind %s", kind)
		}
	}
}
