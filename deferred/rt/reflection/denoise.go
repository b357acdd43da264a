package reflection

import (
	"math"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/gbuffer"
	"github.com/go-gl/mathgl/mgl32"
)

// denoiser holds the raw trace target and the temporal history.
type denoiser struct {
	raw     *core.Surface[mgl32.Vec3]
	history *core.Surface[mgl32.Vec3]
	temp    *core.Surface[mgl32.Vec3]
	valid   bool
}

func (d *denoiser) reset() {
	d.valid = false
}

// target returns the raw buffer, reallocating and dropping history when the
// size changed.
func (d *denoiser) target(w, h int) *core.Surface[mgl32.Vec3] {
	if !d.raw.SameSize(w, h) {
		d.raw = core.NewSurface[mgl32.Vec3](w, h)
		d.history = core.NewSurface[mgl32.Vec3](w, h)
		d.temp = core.NewSurface[mgl32.Vec3](w, h)
		d.valid = false
	}
	return d.raw
}

// run applies temporal accumulation followed by an edge-aware spatial blur.
// It reports whether history contributed.
func (d *denoiser) run(view core.ViewUniform, gb *gbuffer.GBuffer, raw, out *core.Surface[mgl32.Vec3], alpha float32, radius int) bool {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	used := d.valid && alpha < 1
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			cur := raw.At(x, y)
			if !used {
				d.temp.Set(x, y, cur)
				continue
			}
			uv := view.PixelUV(x, y)
			prev := uv.Sub(gb.Motion.At(x, y))
			if _, _, ok := core.NearestUV(raw.Width, raw.Height, prev); !ok {
				d.temp.Set(x, y, cur)
				continue
			}
			hist := core.SampleVec3(d.history, prev)
			d.temp.Set(x, y, hist.Mul(1-alpha).Add(cur.Mul(alpha)))
		}
	}
	d.history.CopyFrom(d.temp)
	d.valid = true

	if radius <= 0 {
		out.CopyFrom(d.temp)
		return used
	}
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			out.Set(x, y, d.blurAt(view, gb, x, y, radius))
		}
	}
	return used
}

func (d *denoiser) blurAt(view core.ViewUniform, gb *gbuffer.GBuffer, x, y, radius int) mgl32.Vec3 {
	center := gb.Fetch(x, y)
	if !center.Covered || core.IsSky(center.Depth) {
		return mgl32.Vec3{}
	}
	cd := view.LinearizeDepth(center.Depth)
	var sum mgl32.Vec3
	var wsum float32
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			sx, sy := x+dx, y+dy
			if !d.temp.InBounds(sx, sy) {
				continue
			}
			s := gb.Fetch(sx, sy)
			if !s.Covered || core.IsSky(s.Depth) {
				continue
			}
			nw := float32(math.Pow(float64(max(center.Normal.Dot(s.Normal), 0)), 16))
			dz := (view.LinearizeDepth(s.Depth) - cd) / cd
			dw := float32(math.Exp(float64(-dz * dz * 400)))
			sw := float32(math.Exp(-float64(dx*dx+dy*dy) / float64(2*radius*radius)))
			w := nw * dw * sw
			sum = sum.Add(d.temp.At(sx, sy).Mul(w))
			wsum += w
		}
	}
	if wsum <= 0 {
		return d.temp.At(x, y)
	}
	return sum.Mul(1 / wsum)
}
