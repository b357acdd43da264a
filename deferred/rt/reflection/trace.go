package reflection

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"github.com/gekko3d/lumen/deferred/rt/bvh"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/gbuffer"
	"github.com/gekko3d/lumen/deferred/rt/lighting"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// rayEpsilon offsets secondary ray origins off the surface.
const rayEpsilon = 1e-3

// maxShadedLights bounds the lights evaluated at a reflection hit.
const maxShadedLights = 16

type Input struct {
	Frame     uint64
	View      core.ViewUniform
	GBuffer   *gbuffer.GBuffer
	Lights    []core.Light
	Materials []core.Material
	Ambient   mgl32.Vec3
	SkyColor  mgl32.Vec3
}

type Stats struct {
	Applied      bool
	Pixels       int64
	Rays         int64
	HistoryUsed  bool
	Generation   uint64
	StructureTri int
}

// Trace fills out with the denoised, Fresnel-weighted reflection radiance.
// When the stage is inactive out is zeroed and Applied is false.
func (s *Stage) Trace(ctx context.Context, in Input, out *core.Surface[mgl32.Vec3]) (Stats, error) {
	b := s.current.Load()
	if !s.Active() || b == nil {
		out.Fill(mgl32.Vec3{})
		return Stats{}, nil
	}
	st := b.s

	raw := s.denoise.target(out.Width, out.Height)
	var pixels, rays atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for y := 0; y < out.Height; y++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, r := s.traceRow(st, in, raw, y)
			pixels.Add(p)
			rays.Add(r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	used := s.denoise.run(in.View, in.GBuffer, raw, out, s.settings.TemporalAlpha, s.settings.BlurRadius)
	return Stats{
		Applied:      true,
		Pixels:       pixels.Load(),
		Rays:         rays.Load(),
		HistoryUsed:  used,
		Generation:   st.Generation,
		StructureTri: len(st.Tris),
	}, nil
}

func (s *Stage) traceRow(st *bvh.Structure, in Input, dst *core.Surface[mgl32.Vec3], y int) (pixels, rays int64) {
	rng := rand.New(rand.NewPCG(in.Frame, uint64(y)))
	spp := max(int(s.settings.SamplesPerPixel), 1)
	threshold := s.settings.RoughnessThreshold
	for x := 0; x < dst.Width; x++ {
		tx := in.GBuffer.Fetch(x, y)
		if !tx.Covered || core.IsSky(tx.Depth) || tx.Roughness >= threshold {
			dst.Set(x, y, mgl32.Vec3{})
			continue
		}
		pixels++

		p := in.View.Unproject(in.View.PixelUV(x, y), tx.Depth)
		n := tx.Normal
		v := in.View.CameraPos.Sub(p).Normalize()
		mirror := reflect(v.Mul(-1), n)

		var sum mgl32.Vec3
		for k := 0; k < spp; k++ {
			dir := mirror
			if spp > 1 {
				dir = perturb(rng, mirror, n, tx.Roughness)
			}
			c, r := s.tracePath(st, in, bvh.Ray{Origin: p.Add(n.Mul(rayEpsilon)), Dir: dir})
			sum = sum.Add(c)
			rays += r
		}
		radiance := sum.Mul(1 / float32(spp))

		f0 := lighting.BaseReflectance(tx.Albedo.Vec3(), tx.Metallic)
		fr := lighting.FresnelSchlick(max(n.Dot(v), 0), f0)
		fade := 1 - tx.Roughness/threshold
		w := mgl32.Vec3{fr.X() * fade, fr.Y() * fade, fr.Z() * fade}
		dst.Set(x, y, core.SanitizeRadiance(mul(radiance, w)))
	}
	return pixels, rays
}

// tracePath follows a specular path for up to MaxBounces hits.
func (s *Stage) tracePath(st *bvh.Structure, in Input, r bvh.Ray) (mgl32.Vec3, int64) {
	var acc mgl32.Vec3
	throughput := mgl32.Vec3{1, 1, 1}
	var rays int64
	bounces := max(int(s.settings.MaxBounces), 1)
	for b := 0; b < bounces; b++ {
		rays++
		hit, ok := st.Intersect(r, 0, s.settings.MaxRayDistance)
		if !ok {
			acc = acc.Add(mul(throughput, in.SkyColor))
			break
		}
		tri := &st.Tris[hit.Triangle]
		pos := r.At(hit.T)
		n := tri.ShadingNormal(hit.U, hit.V)
		if n.Dot(r.Dir) > 0 {
			n = n.Mul(-1)
		}
		mat := materialAt(in.Materials, int(tri.Material))
		surf := lighting.Surface{
			Position:  pos,
			Normal:    n,
			Albedo:    mat.BaseColor.Vec3(),
			Metallic:  mat.Metalness,
			Roughness: mat.Roughness,
		}
		v := r.Dir.Mul(-1)
		acc = acc.Add(mul(throughput, s.shadeHit(st, in, surf, v, &rays)))
		acc = acc.Add(mul(throughput, surf.Albedo.Mul(mat.Emissive)))

		f0 := lighting.BaseReflectance(surf.Albedo, surf.Metallic)
		throughput = mul(throughput, lighting.FresnelSchlick(max(n.Dot(v), 0), f0)).Mul(1 - surf.Roughness)
		if core.Luminance(throughput) < 1e-3 {
			break
		}
		r = bvh.Ray{Origin: pos.Add(n.Mul(rayEpsilon)), Dir: reflect(r.Dir, n)}
	}
	return acc, rays
}

// shadeHit is the simplified material evaluation at a reflection hit: direct
// light from the first lights with a shadow ray, plus ambient.
func (s *Stage) shadeHit(st *bvh.Structure, in Input, surf lighting.Surface, v mgl32.Vec3, rays *int64) mgl32.Vec3 {
	var c mgl32.Vec3
	for i, l := range in.Lights {
		if i >= maxShadedLights {
			break
		}
		contrib := lighting.EvaluateLight(l, surf, v)
		if contrib == (mgl32.Vec3{}) {
			continue
		}
		if l.CastShadows {
			toLight, _ := lighting.Attenuation(l, surf.Position)
			dist := s.settings.MaxRayDistance
			if l.Type != core.LightDirectional {
				dist = l.Position.Sub(surf.Position).Len()
			}
			*rays++
			if st.Occluded(bvh.Ray{Origin: surf.Position.Add(surf.Normal.Mul(rayEpsilon)), Dir: toLight}, 0, dist) {
				continue
			}
		}
		c = c.Add(core.SanitizeRadiance(contrib))
	}
	c = c.Add(mul(in.Ambient, surf.Albedo))
	return c
}

func materialAt(mats []core.Material, i int) core.Material {
	if i < 0 || i >= len(mats) {
		return core.DefaultMaterial()
	}
	return mats[i]
}

func reflect(d, n mgl32.Vec3) mgl32.Vec3 {
	return d.Sub(n.Mul(2 * d.Dot(n)))
}

// perturb jitters dir inside a cone that widens with roughness and keeps it
// above the surface.
func perturb(rng *rand.Rand, dir, n mgl32.Vec3, roughness float32) mgl32.Vec3 {
	spread := roughness * roughness
	z := 1 - rng.Float64()*2
	phi := rng.Float64() * 2 * math.Pi
	rxy := math.Sqrt(1 - z*z)
	jitter := mgl32.Vec3{float32(rxy * math.Cos(phi)), float32(rxy * math.Sin(phi)), float32(z)}
	out := dir.Add(jitter.Mul(spread)).Normalize()
	if out.Dot(n) <= 0 {
		return dir
	}
	return out
}

func mul(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a.X() * b.X(), a.Y() * b.Y(), a.Z() * b.Z()}
}
