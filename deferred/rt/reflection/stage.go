package reflection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/bvh"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Builder constructs an acceleration structure. The default is bvh.Build.
type Builder func(tris []bvh.Triangle) (*bvh.Structure, error)

type Option func(*Stage)

// WithBuilder replaces the acceleration-structure builder.
func WithBuilder(b Builder) Option {
	return func(s *Stage) { s.build = b }
}

// WithCapability gates the stage on backend support for ray queries.
func WithCapability(ok bool) Option {
	return func(s *Stage) { s.capable = ok }
}

type built struct {
	s    *bvh.Structure
	topo bvh.Topology
}

// Stage owns the acceleration structure and the reflection history. Once a
// build fails the stage stays disabled until a new Stage is created.
type Stage struct {
	settings lumen.RayTracingSettings
	log      lumen.Logger
	build    Builder
	capable  bool

	disabled  atomic.Bool
	disableMu sync.Once
	current   atomic.Pointer[built]
	building  atomic.Bool
	wg        sync.WaitGroup
	tris      []bvh.Triangle

	denoise denoiser
}

func NewStage(settings lumen.RayTracingSettings, log lumen.Logger, opts ...Option) *Stage {
	s := &Stage{
		settings: settings,
		log:      lumen.OrNop(log),
		build:    bvh.Build,
		capable:  true,
	}
	for _, o := range opts {
		o(s)
	}
	if !s.capable {
		s.Disable(errors.New("backend has no ray query support"))
	}
	return s
}

func (s *Stage) Settings() lumen.RayTracingSettings { return s.settings }

// SetSettings swaps the configuration. History is discarded.
func (s *Stage) SetSettings(settings lumen.RayTracingSettings) {
	s.settings = settings
	s.Reset()
}

// Active reports whether Trace will run.
func (s *Stage) Active() bool {
	return s.settings.Enabled && !s.disabled.Load()
}

// Disable turns reflections off for the rest of the session.
func (s *Stage) Disable(reason error) {
	s.disabled.Store(true)
	s.disableMu.Do(func() {
		s.log.Warnf("ray-traced reflections disabled: %v", reason)
	})
}

// Structure returns the structure traced by the next Trace call, or nil.
func (s *Stage) Structure() *bvh.Structure {
	if b := s.current.Load(); b != nil {
		return b.s
	}
	return nil
}

// Prepare brings the acceleration structure up to date with frame. Unchanged
// topology is refit in place; a new topology is rebuilt, asynchronously when
// configured and a previous structure can keep serving. Failures never
// propagate: they disable the stage.
func (s *Stage) Prepare(ctx context.Context, frame *core.FrameInput) {
	if !s.Active() || ctx.Err() != nil {
		return
	}
	if s.building.Load() {
		// an async build is in flight; keep tracing the previous structure
		return
	}

	var topo bvh.Topology
	s.tris, topo = bvh.FrameTriangles(frame, s.tris)
	cur := s.current.Load()

	switch {
	case cur != nil && cur.topo == topo:
		return
	case cur != nil && cur.topo.Triangles == topo.Triangles:
		if err := cur.s.Refit(s.tris); err != nil {
			s.Disable(err)
			s.current.Store(nil)
			return
		}
		s.current.Store(&built{s: cur.s, topo: topo})
		s.log.Debugf("refit %s generation %d", cur.s.ID, cur.s.Generation)
		return
	case len(s.tris) == 0:
		s.current.Store(nil)
		return
	}

	if s.settings.AsyncBuild && cur != nil {
		tris := append([]bvh.Triangle(nil), s.tris...)
		s.building.Store(true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.building.Store(false)
			s.finish(tris, topo)
		}()
		return
	}
	s.finish(s.tris, topo)
}

func (s *Stage) finish(tris []bvh.Triangle, topo bvh.Topology) {
	st, err := s.build(tris)
	if err != nil {
		s.Disable(err)
		s.current.Store(nil)
		return
	}
	s.current.Store(&built{s: st, topo: topo})
	s.log.Debugf("built acceleration structure %s: %d nodes, %d triangles", st.ID, len(st.Nodes), len(st.Tris))
}

// Wait blocks until any asynchronous build has finished.
func (s *Stage) Wait() {
	s.wg.Wait()
}

// Reset discards reflection history; the next frame is not blended.
func (s *Stage) Reset() {
	s.denoise.reset()
}

// Composite adds the reflection buffer onto lit in place.
func Composite(lit, refl *core.Surface[mgl32.Vec3]) {
	for i := range lit.Pix {
		lit.Pix[i] = core.SanitizeRadiance(lit.Pix[i].Add(refl.Pix[i]))
	}
}
