package shadow

import (
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/raster"
	"github.com/go-gl/mathgl/mgl32"
)

// DepthMap stores the nearest occluder depth seen from a light. Projective
// maps store ndc.z*0.5+0.5; cube faces store normalized linear distance.
type DepthMap struct {
	*core.Surface[float32]
}

func NewDepthMap(size int) *DepthMap {
	m := &DepthMap{core.NewSurface[float32](size, size)}
	m.Fill(1)
	return m
}

// Render rasterizes every caster with vp, keeping the nearest depth. When
// linear is set, the stored value is (distance(eye) - near) / (far - near).
func (m *DepthMap) Render(casters []Caster, vp mgl32.Mat4, linear *LinearDepth) int {
	m.Fill(1)
	planes := core.ExtractFrustum(vp)
	tris := 0
	for _, c := range casters {
		if !core.AABBInFrustum(c.Bounds, planes) {
			continue
		}
		mvp := vp.Mul4(c.Model)
		mesh := c.Mesh
		var tri [3]raster.Vertex
		for t := 0; t+2 < len(mesh.Indices); t += 3 {
			for k := 0; k < 3; k++ {
				local := mesh.Vertices[mesh.Indices[t+k]].Position.Vec4(1)
				tri[k].Clip = mvp.Mul4x1(local)
				if linear != nil {
					w := c.Model.Mul4x1(local).Vec3()
					tri[k].V[0], tri[k].V[1], tri[k].V[2] = w.X(), w.Y(), w.Z()
				}
			}
			raster.Rasterize(m.Width, m.Height, tri, func(x, y int, depth float32, v *raster.Varyings, front bool) {
				if linear != nil {
					depth = linear.Normalize(mgl32.Vec3{v[0], v[1], v[2]})
				}
				idx := y*m.Width + x
				if depth < m.Pix[idx] {
					m.Pix[idx] = depth
				}
			})
			tris++
		}
	}
	return tris
}

// SamplePCF returns the lit fraction of a (2r+1)^2 comparison kernel around
// uv. Texels outside the map count as lit.
func (m *DepthMap) SamplePCF(uv mgl32.Vec2, depth, bias float32, r int) float32 {
	cx := int(uv.X() * float32(m.Width))
	cy := int(uv.Y() * float32(m.Height))
	var lit, taps float32
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			taps++
			x, y := cx+dx, cy+dy
			if !m.InBounds(x, y) {
				lit++
				continue
			}
			if depth-bias <= m.At(x, y) {
				lit++
			}
		}
	}
	return lit / taps
}

// Caster is a drawable prepared for shadow rendering.
type Caster struct {
	Mesh   *core.Mesh
	Model  mgl32.Mat4
	Bounds [2]mgl32.Vec3
}

func CollectCasters(frame *core.FrameInput) []Caster {
	out := make([]Caster, 0, len(frame.Drawables))
	for i := range frame.Drawables {
		d := &frame.Drawables[i]
		if d.Mesh.Validate() != nil {
			continue
		}
		out = append(out, Caster{Mesh: d.Mesh, Model: d.Model(), Bounds: d.WorldAABB()})
	}
	return out
}

// LinearDepth maps world positions to normalized distance from Eye.
type LinearDepth struct {
	Eye       mgl32.Vec3
	Near, Far float32
}

func (l *LinearDepth) Normalize(p mgl32.Vec3) float32 {
	return mgl32.Clamp((p.Sub(l.Eye).Len()-l.Near)/(l.Far-l.Near), 0, 1)
}
