package gbuffer

import (
	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/raster"
	"github.com/go-gl/mathgl/mgl32"
)

// Stats summarizes one geometry pass.
type Stats struct {
	Drawn     int
	Culled    int
	Dropped   int
	Triangles int
}

// Pass rasterizes opaque drawables into a GBuffer.
type Pass struct {
	log    lumen.Logger
	warned map[*core.Mesh]struct{}
}

func NewPass(log lumen.Logger) *Pass {
	return &Pass{log: lumen.OrNop(log)}
}

// varyings layout
const (
	vWorld  = 0 // xyz
	vNormal = 3 // xyz
	vPrev   = 6 // previous clip x, y, w
)

// Render clears g and draws every visible drawable of the frame. Drawables
// whose mesh fails validation are skipped with a warning.
func (p *Pass) Render(g *GBuffer, frame *core.FrameInput) Stats {
	var st Stats
	g.Clear()

	view := frame.View
	planes := core.ExtractFrustum(view.ViewProj)
	jittered := view.JitteredViewProj()

	// warned only keeps meshes that are still invalid this frame
	var invalid map[*core.Mesh]struct{}
	for i := range frame.Drawables {
		d := &frame.Drawables[i]
		if err := d.Mesh.Validate(); err != nil {
			st.Dropped++
			if invalid == nil {
				invalid = map[*core.Mesh]struct{}{}
			}
			invalid[d.Mesh] = struct{}{}
			if _, ok := p.warned[d.Mesh]; !ok {
				p.log.Warnf("dropping drawable %d: %v", i, err)
			}
			continue
		}
		if !core.AABBInFrustum(d.WorldAABB(), planes) {
			st.Culled++
			continue
		}
		st.Drawn++
		st.Triangles += p.drawMesh(g, view, jittered, d, frame.Material(d.MaterialIndex))
	}
	p.warned = invalid
	return st
}

func (p *Pass) drawMesh(g *GBuffer, view core.ViewUniform, jittered mgl32.Mat4, d *core.Drawable, mat core.Material) int {
	model := d.Model()
	prevMVP := view.PrevViewProj.Mul4(d.PrevModel())
	normalM := d.Transform.NormalMatrix()
	mvp := jittered.Mul4(model)

	metalRough := mgl32.Vec4{
		mgl32.Clamp(mat.Metalness, 0, 1),
		mgl32.Clamp(mat.Roughness, 0, 1),
		max(mat.Emissive, 0),
		1,
	}

	mesh := d.Mesh
	var tri [3]raster.Vertex
	for t := 0; t+2 < len(mesh.Indices); t += 3 {
		for k := 0; k < 3; k++ {
			src := mesh.Vertices[mesh.Indices[t+k]]
			local := src.Position.Vec4(1)
			world := model.Mul4x1(local).Vec3()
			n := normalM.Mul3x1(src.Normal)
			prev := prevMVP.Mul4x1(local)

			v := &tri[k]
			v.Clip = mvp.Mul4x1(local)
			v.V[vWorld], v.V[vWorld+1], v.V[vWorld+2] = world.X(), world.Y(), world.Z()
			v.V[vNormal], v.V[vNormal+1], v.V[vNormal+2] = n.X(), n.Y(), n.Z()
			v.V[vPrev], v.V[vPrev+1], v.V[vPrev+2] = prev.X(), prev.Y(), prev.W()
		}

		raster.Rasterize(g.Width, g.Height, tri, func(x, y int, depth float32, v *raster.Varyings, front bool) {
			idx := y*g.Width + x
			if depth >= g.Depth.Pix[idx] {
				return
			}
			g.Depth.Pix[idx] = depth

			world := mgl32.Vec3{v[vWorld], v[vWorld+1], v[vWorld+2]}
			n := mgl32.Vec3{v[vNormal], v[vNormal+1], v[vNormal+2]}
			if n.Len() > 0 {
				n = n.Normalize()
			} else {
				n = mgl32.Vec3{0, 1, 0}
			}
			// two-sided: face the viewer
			if n.Dot(view.CameraPos.Sub(world)) < 0 {
				n = n.Mul(-1)
			}

			g.Albedo.Pix[idx] = mat.BaseColor
			g.Normal.Pix[idx] = EncodeNormal(n)
			g.MetalRough.Pix[idx] = metalRough
			g.Motion.Pix[idx] = motionVector(view, world, v[vPrev], v[vPrev+1], v[vPrev+2])
		})
	}
	return len(mesh.Indices) / 3
}

// motionVector is the screen-space uv delta between this frame's unjittered
// projection and last frame's projection of the same surface point.
func motionVector(view core.ViewUniform, world mgl32.Vec3, px, py, pw float32) mgl32.Vec2 {
	cur, _, ok := view.Project(world)
	if !ok || pw <= 1e-6 {
		return mgl32.Vec2{}
	}
	prev := mgl32.Vec2{px/pw*0.5 + 0.5, 0.5 - py/pw*0.5}
	return cur.Sub(prev)
}
