package lighting

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/cull"
	"github.com/gekko3d/lumen/deferred/rt/gbuffer"
	"github.com/gekko3d/lumen/deferred/rt/shadow"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// Input is everything the resolve reads for one frame.
type Input struct {
	View    core.ViewUniform
	GBuffer *gbuffer.GBuffer
	Lights  []core.Light
	// Grid restricts each pixel to its tile's lights. Nil evaluates every light.
	Grid *cull.Grid
	// Shadows may be nil, in which case every light is unoccluded.
	Shadows  shadow.Sampler
	Ambient  mgl32.Vec3
	SkyColor mgl32.Vec3
}

type Stats struct {
	LitPixels        int64
	LightEvaluations int64
}

// Resolver turns the G-buffer into linear HDR radiance.
type Resolver struct {
	log  lumen.Logger
	rows int // rows per band
}

func NewResolver(log lumen.Logger) *Resolver {
	return &Resolver{log: lumen.OrNop(log), rows: 8}
}

// Resolve writes radiance for every pixel of out. Bands of rows are shaded
// concurrently; each pixel is written by exactly one band.
func (r *Resolver) Resolve(ctx context.Context, in Input, out *core.Surface[mgl32.Vec3]) (Stats, error) {
	var lit, evals atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	h := in.GBuffer.Height
	for y0 := 0; y0 < h; y0 += r.rows {
		y1 := min(y0+r.rows, h)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			l, e := r.shadeRows(in, out, y0, y1)
			lit.Add(l)
			evals.Add(e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return Stats{LitPixels: lit.Load(), LightEvaluations: evals.Load()}, nil
}

func (r *Resolver) shadeRows(in Input, out *core.Surface[mgl32.Vec3], y0, y1 int) (lit, evals int64) {
	gb := in.GBuffer
	all := make([]uint32, len(in.Lights))
	for i := range all {
		all[i] = uint32(i)
	}
	for y := y0; y < y1; y++ {
		for x := 0; x < gb.Width; x++ {
			tx := gb.Fetch(x, y)
			if !tx.Covered || core.IsSky(tx.Depth) {
				out.Set(x, y, in.SkyColor)
				continue
			}
			lit++

			uv := in.View.PixelUV(x, y)
			s := Surface{
				Position:  in.View.Unproject(uv, tx.Depth),
				Normal:    tx.Normal,
				Albedo:    tx.Albedo.Vec3(),
				Metallic:  tx.Metallic,
				Roughness: tx.Roughness,
			}
			v := in.View.CameraPos.Sub(s.Position).Normalize()
			viewDepth := in.View.LinearizeDepth(tx.Depth)

			indices := all
			if in.Grid != nil {
				indices = in.Grid.TileAt(x, y).Lights()
			}

			var sum mgl32.Vec3
			for _, li := range indices {
				light := in.Lights[li]
				c := EvaluateLight(light, s, v)
				evals++
				if c == (mgl32.Vec3{}) {
					continue
				}
				if in.Shadows != nil && light.CastShadows {
					c = c.Mul(in.Shadows.Visibility(int(li), s.Position, s.Normal, viewDepth))
				}
				sum = sum.Add(core.SanitizeRadiance(c))
			}

			ambient := mgl32.Vec3{in.Ambient.X() * s.Albedo.X(), in.Ambient.Y() * s.Albedo.Y(), in.Ambient.Z() * s.Albedo.Z()}
			emissive := s.Albedo.Mul(tx.Emissive)
			out.Set(x, y, core.SanitizeRadiance(sum.Add(ambient).Add(emissive)))
		}
	}
	return lit, evals
}
