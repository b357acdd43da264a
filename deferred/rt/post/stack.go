package post

import (
	"context"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/gbuffer"
	"github.com/go-gl/mathgl/mgl32"
)

type Input struct {
	View    core.ViewUniform
	GBuffer *gbuffer.GBuffer
	// Color is the composited HDR scene. It is not modified.
	Color *core.Surface[mgl32.Vec3]
}

type Stats struct {
	TAAHistory   bool
	MotionBlur   bool
	DepthOfField bool
	Bloom        bool
}

// Stack runs the post chain: TAA, motion blur, depth of field, bloom and the
// display grade. It owns the TAA history, so one Stack serves one view.
type Stack struct {
	settings lumen.PostSettings
	log      lumen.Logger
	history  History
	a, b     *core.Surface[mgl32.Vec3]
	last     *core.Surface[mgl32.Vec3]
}

func NewStack(settings lumen.PostSettings, log lumen.Logger) *Stack {
	return &Stack{settings: settings, log: lumen.OrNop(log)}
}

func (s *Stack) Settings() lumen.PostSettings { return s.settings }

// SetSettings swaps the configuration. Turning TAA off drops its history.
func (s *Stack) SetSettings(settings lumen.PostSettings) {
	if !settings.TAA {
		s.history.Invalidate()
	}
	s.settings = settings
}

// Reset invalidates temporal history; the next frame is not blended.
func (s *Stack) Reset() {
	s.history.Invalidate()
}

// Ungraded returns the HDR image the last Process handed to the display
// grade, or nil before the first frame. It is overwritten by the next call.
func (s *Stack) Ungraded() *core.Surface[mgl32.Vec3] { return s.last }

func (s *Stack) scratch(w, h int) {
	if s.a.SameSize(w, h) {
		return
	}
	s.a = core.NewSurface[mgl32.Vec3](w, h)
	s.b = core.NewSurface[mgl32.Vec3](w, h)
}

// Process writes display-referred color in [0,1] to out, which must match
// the size of in.Color.
func (s *Stack) Process(ctx context.Context, in Input, out *core.Surface[mgl32.Vec3]) (Stats, error) {
	var st Stats
	w, h := in.Color.Width, in.Color.Height
	s.scratch(w, h)
	cfg := s.settings

	cur, spare := s.a, s.b
	if cfg.TAA {
		st.TAAHistory = ResolveTAA(&s.history, in.View, in.GBuffer, in.Color, cur, cfg.TAABlend)
	} else {
		cur.CopyFrom(in.Color)
	}

	if cfg.MotionBlur && cfg.MotionBlurScale > 0 {
		if err := MotionBlur(ctx, in.GBuffer, cur, spare, cfg.MotionBlurSamples, cfg.MotionBlurScale); err != nil {
			return Stats{}, err
		}
		cur, spare = spare, cur
		st.MotionBlur = true
	}

	if cfg.DepthOfField {
		if err := DepthOfField(ctx, in.View, in.GBuffer, cur, spare, cfg); err != nil {
			return Stats{}, err
		}
		cur, spare = spare, cur
		st.DepthOfField = true
	}

	if cfg.Bloom && cfg.BloomIntensity > 0 {
		if err := Bloom(ctx, cur, cfg.BloomThreshold, cfg.BloomIntensity); err != nil {
			return Stats{}, err
		}
		st.Bloom = true
	}

	s.last = cur
	if err := Grade(ctx, cfg, cur, out); err != nil {
		return Stats{}, err
	}
	return st, nil
}
