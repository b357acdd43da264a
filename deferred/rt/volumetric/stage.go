package volumetric

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/shadow"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// historyBlend is the weight of a fresh volume against the previous one.
const historyBlend = 0.5

type Input struct {
	View        core.ViewUniform
	Depth       *core.Surface[float32]
	Lights      []core.Light
	Environment core.Environment
	// Shadows may be nil.
	Shadows shadow.Sampler
}

type Stats struct {
	Applied       bool
	Rays          int64
	Steps         int64
	MaxSteps      int
	EarlyExits    int64
	VolumeUpdated bool
	HistoryUsed   bool
}

// Stage applies atmospheric scattering to the lit image in place. In volume
// mode the medium is baked into a VolumeTexture every UpdateInterval frames
// and blended with the previous bake.
type Stage struct {
	settings lumen.VolumetricSettings
	log      lumen.Logger

	volume  *VolumeTexture
	scratch *VolumeTexture
	// frames since the last bake
	frames int
	valid  bool
}

func NewStage(settings lumen.VolumetricSettings, log lumen.Logger) *Stage {
	return &Stage{settings: settings, log: lumen.OrNop(log)}
}

func (s *Stage) Settings() lumen.VolumetricSettings { return s.settings }

// SetSettings swaps the configuration; volume state is discarded and must be
// reallocated.
func (s *Stage) SetSettings(settings lumen.VolumetricSettings) error {
	s.settings = settings
	s.volume, s.scratch = nil, nil
	s.Reset()
	return s.Allocate()
}

// Allocate creates the volume textures required by the current mode.
func (s *Stage) Allocate() error {
	if !s.settings.Enabled || s.settings.Mode != lumen.VolumetricVolumeTexture {
		return nil
	}
	if s.volume != nil {
		return nil
	}
	lo := mgl32.Vec3(s.settings.BoundsMin)
	hi := mgl32.Vec3(s.settings.BoundsMax)
	vol, err := NewVolumeTexture(s.settings.VolumeSize, lo, hi)
	if err != nil {
		return fmt.Errorf("volumetric: %w", err)
	}
	scratch, err := NewVolumeTexture(s.settings.VolumeSize, lo, hi)
	if err != nil {
		return fmt.Errorf("volumetric: %w", err)
	}
	s.volume, s.scratch = vol, scratch
	s.log.Debugf("allocated %dx%dx%d volume", vol.W, vol.H, vol.D)
	return nil
}

// Reset forgets the baked volume; the next frame bakes without blending.
func (s *Stage) Reset() {
	s.valid = false
	s.frames = 0
}

// Volume exposes the current bake, nil outside volume mode.
func (s *Stage) Volume() *VolumeTexture { return s.volume }

func (s *Stage) marcher(ctx context.Context, in Input, st *Stats) (*Marcher, error) {
	m := &Marcher{
		Scattering:  s.settings.Scattering,
		Absorption:  s.settings.Absorption,
		Steps:       s.settings.Steps,
		MaxDistance: s.settings.MaxDistance,
		BoundsMin:   mgl32.Vec3(s.settings.BoundsMin),
		BoundsMax:   mgl32.Vec3(s.settings.BoundsMax),
		Exponential: s.settings.Exponential,
	}
	field := NewField(s.settings, in.Environment)
	lights := &LightSource{Lights: in.Lights, Anisotropy: s.settings.Anisotropy, Shadows: in.Shadows, View: in.View}
	if s.settings.Mode != lumen.VolumetricVolumeTexture {
		m.Field, m.Source = field, lights
		return m, nil
	}

	if err := s.Allocate(); err != nil {
		return nil, err
	}
	interval := max(s.settings.UpdateInterval, 1)
	if !s.valid || s.frames+1 >= interval {
		if err := s.scratch.Populate(ctx, field, lights, in.View.CameraPos); err != nil {
			return nil, err
		}
		alpha := float32(1)
		if s.valid {
			alpha = historyBlend
			st.HistoryUsed = true
		}
		s.volume.Blend(s.scratch, alpha)
		st.VolumeUpdated = true
		s.valid = true
		s.frames = 0
	} else {
		s.frames++
		st.HistoryUsed = true
	}
	m.Field, m.Source = s.volume, s.volume
	return m, nil
}

// Apply marches one ray per pixel and composites scene*T + scattered.
func (s *Stage) Apply(ctx context.Context, in Input, scene *core.Surface[mgl32.Vec3]) (Stats, error) {
	var st Stats
	if !s.settings.Enabled || s.settings.Density <= 0 {
		return st, nil
	}
	m, err := s.marcher(ctx, in, &st)
	if err != nil {
		return Stats{}, err
	}

	var steps, exits, rays atomic.Int64
	var maxSteps atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for y := 0; y < scene.Height; y++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var rowSteps, rowExits int64
			rowMax := 0
			for x := 0; x < scene.Width; x++ {
				uv := in.View.PixelUV(x, y)
				d := in.Depth.At(x, y)
				end := in.View.Unproject(uv, min(d, 1))
				dir := end.Sub(in.View.CameraPos)
				dist := dir.Len()
				if dist < 1e-6 {
					continue
				}
				dir = dir.Mul(1 / dist)
				if core.IsSky(d) {
					dist = s.settings.MaxDistance
				}
				r := m.March(in.View.CameraPos, dir, dist)
				scene.Set(x, y, r.Composite(scene.At(x, y)))
				rowSteps += int64(r.Steps)
				rowMax = max(rowMax, r.Steps)
				if r.EarlyExit {
					rowExits++
				}
			}
			steps.Add(rowSteps)
			exits.Add(rowExits)
			rays.Add(int64(scene.Width))
			for {
				cur := maxSteps.Load()
				if int64(rowMax) <= cur || maxSteps.CompareAndSwap(cur, int64(rowMax)) {
					break
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	st.Applied = true
	st.Rays = rays.Load()
	st.Steps = steps.Load()
	st.EarlyExits = exits.Load()
	st.MaxSteps = int(maxSteps.Load())
	return st, nil
}
