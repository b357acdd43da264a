package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/cull"
	"github.com/gekko3d/lumen/deferred/rt/gbuffer"
	"github.com/gekko3d/lumen/deferred/rt/lighting"
	"github.com/gekko3d/lumen/deferred/rt/post"
	"github.com/gekko3d/lumen/deferred/rt/reflection"
	"github.com/gekko3d/lumen/deferred/rt/shadow"
	"github.com/gekko3d/lumen/deferred/rt/volumetric"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ErrAllocation is returned when screen-sized resources cannot be created.
// It is fatal to the pipeline.
var ErrAllocation = errors.New("pipeline: resource allocation failed")

type Option func(*Pipeline)

// WithReflectionOptions forwards options to the reflection stage.
func WithReflectionOptions(opts ...reflection.Option) Option {
	return func(p *Pipeline) { p.reflOpts = append(p.reflOpts, opts...) }
}

// WithProfiler records stage timings into prof.
func WithProfiler(prof *Profiler) Option {
	return func(p *Pipeline) { p.prof = prof }
}

// Stats aggregates the per-stage statistics of one frame.
type Stats struct {
	Normalize  core.NormalizeReport
	GBuffer    gbuffer.Stats
	Shadows    shadow.Stats
	Cull       cull.Stats
	Lighting   lighting.Stats
	Reflection reflection.Stats
	Volumetric volumetric.Stats
	Post       post.Stats
	Variant    Variant
	FrameTime  time.Duration
}

// FrameResult holds the outputs of Render. The surfaces are owned by the
// pipeline and overwritten by the next frame.
type FrameResult struct {
	Index uint64
	// HDR is the linear scene radiance after reflections and volumetrics.
	HDR *core.Surface[mgl32.Vec3]
	// Ungraded is the post chain output before exposure and the display
	// grade. GPU presenters grade it themselves.
	Ungraded *core.Surface[mgl32.Vec3]
	// Color is display-referred in [0,1].
	Color *core.Surface[mgl32.Vec3]
	Stats Stats
}

// Pipeline runs every stage of a frame in dependency order: G-buffer,
// shadows, culling, lighting, reflections, volumetrics and post.
type Pipeline struct {
	ID  uuid.UUID
	log lumen.Logger

	base      lumen.Settings
	effective lumen.Settings
	variant   Variant
	governor  *QualityGovernor

	width, height int

	gb       *gbuffer.GBuffer
	pass     *gbuffer.Pass
	shadows  *shadow.System
	culler   *cull.Culler
	resolver *lighting.Resolver
	refl     *reflection.Stage
	reflOpts []reflection.Option
	vol      *volumetric.Stage
	post     *post.Stack
	prof     *Profiler

	lit, reflBuf, display *core.Surface[mgl32.Vec3]
	grid                  *cull.Grid

	prevViewProj mgl32.Mat4
	hasPrev      bool
	// cullSettings built the current culler.
	cullSettings lumen.CullingSettings
}

// New validates settings and allocates every resource for a width x height
// render target.
func New(settings lumen.Settings, width, height int, log lumen.Logger, opts ...Option) (*Pipeline, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		ID:       uuid.New(),
		log:      lumen.OrNop(log),
		base:     settings,
		variant:  VariantFor(settings.Quality.Tier),
		governor: NewQualityGovernor(settings.Quality),
	}
	for _, o := range opts {
		o(p)
	}
	if p.prof == nil {
		p.prof = NewProfiler()
	}
	if dl, ok := p.log.(*lumen.DefaultLogger); ok {
		p.log = dl.WithPrefix("pipeline " + p.ID.String()[:8])
	}
	p.effective = p.variant.Apply(settings)

	s := p.effective
	p.pass = gbuffer.NewPass(p.log)
	p.shadows = shadow.NewSystem(s.Shadows, p.log)
	p.culler = cull.NewCuller(s.Culling, p.log)
	p.cullSettings = s.Culling
	p.resolver = lighting.NewResolver(p.log)
	p.refl = reflection.NewStage(s.RayTracing, p.log, p.reflOpts...)
	p.vol = volumetric.NewStage(s.Volumetric, p.log)
	p.post = post.NewStack(s.Post, p.log)
	if err := p.vol.Allocate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	if err := p.Resize(width, height); err != nil {
		return nil, err
	}
	p.log.Infof("initialized %dx%d, quality %s", width, height, p.variant.Tier)
	return p, nil
}

func (p *Pipeline) Size() (int, int) { return p.width, p.height }

// Close stops the culling workers and waits for any acceleration build in
// flight. The pipeline cannot render afterwards.
func (p *Pipeline) Close() {
	p.culler.Close()
	p.refl.Wait()
}

// Settings returns the settings in force after the quality variant.
func (p *Pipeline) Settings() lumen.Settings { return p.effective }

func (p *Pipeline) Variant() Variant { return p.variant }

func (p *Pipeline) Profiler() *Profiler { return p.prof }

// GBuffer returns the attachments of the last rendered frame.
func (p *Pipeline) GBuffer() *gbuffer.GBuffer { return p.gb }

// Grid returns the light tiles of the last rendered frame, or nil.
func (p *Pipeline) Grid() *cull.Grid { return p.grid }

// Resize reallocates the screen-sized resources and discards all temporal
// history, so the next frame is rendered without it.
func (p *Pipeline) Resize(width, height int) error {
	gb, err := gbuffer.New(width, height)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	p.gb = gb
	p.width, p.height = width, height
	p.lit = core.NewSurface[mgl32.Vec3](width, height)
	p.reflBuf = core.NewSurface[mgl32.Vec3](width, height)
	p.display = core.NewSurface[mgl32.Vec3](width, height)
	p.resetHistory()
	p.log.Debugf("resized to %dx%d", width, height)
	return nil
}

func (p *Pipeline) resetHistory() {
	p.post.Reset()
	p.vol.Reset()
	p.refl.Reset()
	p.hasPrev = false
}

// Reconfigure validates and applies new settings. The quality variant is
// re-resolved and temporal history is discarded.
func (p *Pipeline) Reconfigure(settings lumen.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	p.base = settings
	p.variant = VariantFor(settings.Quality.Tier)
	p.effective = p.variant.Apply(settings)
	s := p.effective

	p.shadows.SetSettings(s.Shadows)
	if s.Culling != p.cullSettings {
		p.culler.Close()
		p.culler = cull.NewCuller(s.Culling, p.log)
		p.cullSettings = s.Culling
	}
	p.refl.SetSettings(s.RayTracing)
	if err := p.vol.SetSettings(s.Volumetric); err != nil {
		return fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	p.post.SetSettings(s.Post)
	q := settings.Quality
	q.Tier = p.governor.settings.Tier
	if q != p.governor.settings {
		p.governor = NewQualityGovernor(settings.Quality)
	} else {
		p.governor.tier = settings.Quality.Tier
	}
	p.resetHistory()
	p.log.Infof("reconfigured, quality %s", p.variant.Tier)
	return nil
}

func vec3(a [3]float32) mgl32.Vec3 { return mgl32.Vec3(a) }

// Render produces one frame. A frame whose view size differs from the
// pipeline's resizes it first. The pipeline tracks the previous
// view-projection itself; the one in frame.View is ignored.
func (p *Pipeline) Render(ctx context.Context, frame *core.FrameInput) (*FrameResult, error) {
	start := time.Now()
	if frame.View.Width != p.width || frame.View.Height != p.height {
		p.log.Infof("view is %dx%d, resizing", frame.View.Width, frame.View.Height)
		if err := p.Resize(frame.View.Width, frame.View.Height); err != nil {
			return nil, err
		}
	}
	s := p.effective
	st := Stats{Variant: p.variant}
	st.Normalize = frame.Normalize()
	if st.Normalize.InvalidLights > 0 || st.Normalize.LightsTruncated > 0 {
		p.log.Debugf("light list: %d invalid, %d over the cap", st.Normalize.InvalidLights, st.Normalize.LightsTruncated)
	}

	view := frame.View
	prev := view.ViewProj
	if p.hasPrev {
		prev = p.prevViewProj
	}
	view = view.WithPrevious(prev)
	if s.Post.TAA {
		view = view.WithJitter(core.JitterSequence(frame.Index))
	} else {
		view = view.WithJitter(mgl32.Vec2{})
	}
	frame.View = view

	sky := vec3(s.Lighting.SkyColor)
	if frame.Environment.SkyColor != (mgl32.Vec3{}) {
		sky = frame.Environment.SkyColor
	}

	end := p.prof.Scope("GBuffer")
	st.GBuffer = p.pass.Render(p.gb, frame)
	end()

	var err error
	end = p.prof.Scope("Shadows")
	st.Shadows, err = p.shadows.Build(ctx, frame)
	end()
	if err != nil {
		return nil, fmt.Errorf("shadows: %w", err)
	}

	end = p.prof.Scope("Cull")
	grid, cst, err := p.culler.Cull(ctx, view, p.gb.Depth, frame.Lights)
	end()
	if err != nil {
		return nil, fmt.Errorf("cull: %w", err)
	}
	p.grid = grid
	st.Cull = cst

	end = p.prof.Scope("Lighting")
	st.Lighting, err = p.resolver.Resolve(ctx, lighting.Input{
		View:     view,
		GBuffer:  p.gb,
		Lights:   frame.Lights,
		Grid:     grid,
		Shadows:  p.shadows,
		Ambient:  vec3(s.Lighting.Ambient),
		SkyColor: sky,
	}, p.lit)
	end()
	if err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}

	end = p.prof.Scope("Reflections")
	p.refl.Prepare(ctx, frame)
	st.Reflection, err = p.refl.Trace(ctx, reflection.Input{
		Frame:     frame.Index,
		View:      view,
		GBuffer:   p.gb,
		Lights:    frame.Lights,
		Materials: frame.Materials,
		Ambient:   vec3(s.Lighting.Ambient),
		SkyColor:  sky,
	}, p.reflBuf)
	if err == nil && st.Reflection.Applied {
		reflection.Composite(p.lit, p.reflBuf)
	}
	end()
	if err != nil {
		return nil, fmt.Errorf("reflections: %w", err)
	}

	end = p.prof.Scope("Volumetric")
	st.Volumetric, err = p.vol.Apply(ctx, volumetric.Input{
		View:        view,
		Depth:       p.gb.Depth,
		Lights:      frame.Lights,
		Environment: frame.Environment,
		Shadows:     p.shadows,
	}, p.lit)
	end()
	if err != nil {
		return nil, fmt.Errorf("volumetric: %w", err)
	}

	end = p.prof.Scope("Post")
	st.Post, err = p.post.Process(ctx, post.Input{View: view, GBuffer: p.gb, Color: p.lit}, p.display)
	end()
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}

	p.prevViewProj = view.ViewProj
	p.hasPrev = true
	st.FrameTime = time.Since(start)
	p.count(st)

	if p.base.Quality.Dynamic {
		if tier, changed := p.governor.Observe(st.FrameTime); changed {
			next := p.base
			next.Quality.Tier = tier
			p.log.Infof("average frame time %v, switching quality to %s", p.governor.Average(), tier)
			if err := p.Reconfigure(next); err != nil {
				return nil, err
			}
		}
	}

	return &FrameResult{Index: frame.Index, HDR: p.lit, Ungraded: p.post.Ungraded(), Color: p.display, Stats: st}, nil
}

func (p *Pipeline) count(st Stats) {
	p.prof.SetCount("Drawn", st.GBuffer.Drawn)
	p.prof.SetCount("Dropped", st.GBuffer.Dropped)
	p.prof.SetCount("Triangles", st.GBuffer.Triangles)
	p.prof.SetCount("LightsInTiles", st.Cull.Assigned)
	p.prof.SetCount("TilesOverflow", st.Cull.Overflowed)
	p.prof.SetCount("ReflPixels", int(st.Reflection.Pixels))
	p.prof.SetCount("MarchSteps", int(st.Volumetric.Steps))
}
