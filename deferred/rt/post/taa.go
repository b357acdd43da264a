package post

import (
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/gbuffer"
	"github.com/go-gl/mathgl/mgl32"
)

// disocclusionTolerance is the relative view-depth mismatch above which a
// reprojected history sample is rejected.
const disocclusionTolerance = 0.1

// History is the double-buffered temporal state of the TAA resolve.
type History struct {
	color *core.Surface[mgl32.Vec3]
	depth *core.Surface[float32]
	next  *core.Surface[mgl32.Vec3]
	valid bool
}

// Valid reports whether the next resolve may blend with history.
func (h *History) Valid() bool { return h.valid }

// Invalidate forces the next resolve to pass the current frame through.
func (h *History) Invalidate() { h.valid = false }

func (h *History) ensure(w, hgt int) {
	if h.color.SameSize(w, hgt) {
		return
	}
	h.color = core.NewSurface[mgl32.Vec3](w, hgt)
	h.next = core.NewSurface[mgl32.Vec3](w, hgt)
	h.depth = core.NewSurface[float32](w, hgt)
	h.valid = false
}

// ResolveTAA blends cur with reprojected history into out. History samples
// that fall off screen or onto a different surface are rejected, and
// accepted ones are clamped to the 3x3 neighbourhood of cur. Without valid
// history cur is copied. It reports whether history was used.
func ResolveTAA(h *History, view core.ViewUniform, gb *gbuffer.GBuffer, cur, out *core.Surface[mgl32.Vec3], blend float32) bool {
	w, hgt := cur.Width, cur.Height
	h.ensure(w, hgt)
	used := h.valid
	blend = mgl32.Clamp(blend, 0, 1)

	for y := 0; y < hgt; y++ {
		for x := 0; x < w; x++ {
			c := cur.At(x, y)
			if !used {
				h.next.Set(x, y, c)
				continue
			}
			uv := view.PixelUV(x, y)
			prevUV := uv.Sub(gb.Motion.At(x, y))
			px, py, ok := core.NearestUV(w, hgt, prevUV)
			if !ok {
				h.next.Set(x, y, c)
				continue
			}

			d := gb.Depth.At(x, y)
			if !core.IsSky(d) {
				p := view.Unproject(uv, d)
				_, expect, ok := core.ProjectWith(view.PrevViewProj, p)
				prevDepth := h.depth.At(px, py)
				if !ok || core.IsSky(prevDepth) {
					h.next.Set(x, y, c)
					continue
				}
				a, b := view.LinearizeDepth(expect), view.LinearizeDepth(prevDepth)
				if abs(a-b) > disocclusionTolerance*a {
					h.next.Set(x, y, c)
					continue
				}
			}

			lo, hi := neighbourhood(cur, x, y)
			hist := core.SampleVec3(h.color, prevUV)
			hist = mgl32.Vec3{
				mgl32.Clamp(hist.X(), lo.X(), hi.X()),
				mgl32.Clamp(hist.Y(), lo.Y(), hi.Y()),
				mgl32.Clamp(hist.Z(), lo.Z(), hi.Z()),
			}
			h.next.Set(x, y, hist.Mul(1-blend).Add(c.Mul(blend)))
		}
	}

	out.CopyFrom(h.next)
	h.color, h.next = h.next, h.color
	h.depth.CopyFrom(gb.Depth)
	h.valid = true
	return used
}

func neighbourhood(s *core.Surface[mgl32.Vec3], x, y int) (mgl32.Vec3, mgl32.Vec3) {
	lo := s.At(x, y)
	hi := lo
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			c := s.AtClamped(x+dx, y+dy)
			lo = mgl32.Vec3{min(lo.X(), c.X()), min(lo.Y(), c.Y()), min(lo.Z(), c.Z())}
			hi = mgl32.Vec3{max(hi.X(), c.X()), max(hi.Y(), c.Y()), max(hi.Z(), c.Z())}
		}
	}
	return lo, hi
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
