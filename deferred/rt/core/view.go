package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ViewUniform holds the per-frame camera state shared read-only by every
// stage. Depth is stored as ndc.z*0.5+0.5, so 1 is the far plane and the sky.
// Screen space has its origin at the top-left pixel.
type ViewUniform struct {
	View         mgl32.Mat4
	Proj         mgl32.Mat4
	ViewProj     mgl32.Mat4
	InvView      mgl32.Mat4
	InvProj      mgl32.Mat4
	InvViewProj  mgl32.Mat4
	PrevViewProj mgl32.Mat4
	CameraPos    mgl32.Vec3
	Width        int
	Height       int
	Near         float32
	Far          float32
	// Jitter is the sub-pixel offset in pixels applied while rasterizing.
	Jitter mgl32.Vec2
}

func NewViewUniform(view, proj mgl32.Mat4, width, height int, near, far float32) ViewUniform {
	vp := proj.Mul4(view)
	invView := view.Inv()
	return ViewUniform{
		View:         view,
		Proj:         proj,
		ViewProj:     vp,
		InvView:      invView,
		InvProj:      proj.Inv(),
		InvViewProj:  vp.Inv(),
		PrevViewProj: vp,
		CameraPos:    invView.Col(3).Vec3(),
		Width:        width,
		Height:       height,
		Near:         near,
		Far:          far,
	}
}

// WithPrevious sets the previous frame's view-projection used for motion vectors.
func (v ViewUniform) WithPrevious(prev mgl32.Mat4) ViewUniform {
	v.PrevViewProj = prev
	return v
}

// WithJitter sets the sub-pixel raster offset in pixels.
func (v ViewUniform) WithJitter(j mgl32.Vec2) ViewUniform {
	v.Jitter = j
	return v
}

// JitteredViewProj shifts ViewProj in NDC by the raster jitter.
func (v ViewUniform) JitteredViewProj() mgl32.Mat4 {
	if v.Width <= 0 || v.Height <= 0 || v.Jitter == (mgl32.Vec2{}) {
		return v.ViewProj
	}
	dx := 2 * v.Jitter.X() / float32(v.Width)
	dy := -2 * v.Jitter.Y() / float32(v.Height)
	return mgl32.Translate3D(dx, dy, 0).Mul4(v.ViewProj)
}

// PixelUV returns the normalized screen coordinate of the pixel center.
func (v ViewUniform) PixelUV(x, y int) mgl32.Vec2 {
	return mgl32.Vec2{(float32(x) + 0.5) / float32(v.Width), (float32(y) + 0.5) / float32(v.Height)}
}

// JitterUV is the raster jitter in uv units.
func (v ViewUniform) JitterUV() mgl32.Vec2 {
	if v.Width <= 0 || v.Height <= 0 {
		return mgl32.Vec2{}
	}
	return mgl32.Vec2{v.Jitter.X() / float32(v.Width), v.Jitter.Y() / float32(v.Height)}
}

// JitteredInvViewProj inverts JitteredViewProj. Depth written with the
// jittered matrix reconstructs exactly through it.
func (v ViewUniform) JitteredInvViewProj() mgl32.Mat4 {
	if v.Width <= 0 || v.Height <= 0 || v.Jitter == (mgl32.Vec2{}) {
		return v.InvViewProj
	}
	dx := 2 * v.Jitter.X() / float32(v.Width)
	dy := -2 * v.Jitter.Y() / float32(v.Height)
	return v.InvViewProj.Mul4(mgl32.Translate3D(-dx, -dy, 0))
}

// Unproject reconstructs a world position from a screen uv and the depth
// rasterized at that uv, undoing the raster jitter.
func (v ViewUniform) Unproject(uv mgl32.Vec2, depth float32) mgl32.Vec3 {
	return UnprojectWith(v.InvViewProj, uv.Sub(v.JitterUV()), depth)
}

// UnprojectView reconstructs a view-space position.
func (v ViewUniform) UnprojectView(uv mgl32.Vec2, depth float32) mgl32.Vec3 {
	return UnprojectWith(v.InvProj, uv.Sub(v.JitterUV()), depth)
}

func UnprojectWith(inv mgl32.Mat4, uv mgl32.Vec2, depth float32) mgl32.Vec3 {
	ndc := mgl32.Vec4{uv.X()*2 - 1, 1 - uv.Y()*2, depth*2 - 1, 1}
	p := inv.Mul4x1(ndc)
	if p.W() == 0 {
		return p.Vec3()
	}
	return p.Vec3().Mul(1 / p.W())
}

// Project maps a world position to screen uv and stored depth. ok is false
// for points behind the camera.
func (v ViewUniform) Project(world mgl32.Vec3) (uv mgl32.Vec2, depth float32, ok bool) {
	return ProjectWith(v.ViewProj, world)
}

func ProjectWith(vp mgl32.Mat4, world mgl32.Vec3) (uv mgl32.Vec2, depth float32, ok bool) {
	c := vp.Mul4x1(world.Vec4(1))
	if c.W() <= 1e-6 {
		return mgl32.Vec2{}, 1, false
	}
	inv := 1 / c.W()
	ndc := c.Vec3().Mul(inv)
	return mgl32.Vec2{ndc.X()*0.5 + 0.5, 0.5 - ndc.Y()*0.5}, ndc.Z()*0.5 + 0.5, true
}

// ViewDepth is the positive distance along the view axis.
func (v ViewUniform) ViewDepth(world mgl32.Vec3) float32 {
	return -v.View.Mul4x1(world.Vec4(1)).Z()
}

// LinearizeDepth converts stored perspective depth into view-space distance.
func (v ViewUniform) LinearizeDepth(depth float32) float32 {
	n, f := v.Near, v.Far
	ndc := depth*2 - 1
	return 2 * n * f / (f + n - ndc*(f-n))
}

// IsSky reports whether a stored depth value was never written.
func IsSky(depth float32) bool {
	return depth >= 1
}

// Halton returns the radical inverse of index in the given base.
func Halton(index, base int) float32 {
	f := float32(1)
	r := float32(0)
	for i := index; i > 0; i /= base {
		f /= float32(base)
		r += f * float32(i%base)
	}
	return r
}

// JitterSequence returns the sub-pixel offset for a frame, in [-0.5, 0.5).
// The sequence repeats every 8 frames.
func JitterSequence(frame uint64) mgl32.Vec2 {
	i := int(frame%8) + 1
	return mgl32.Vec2{Halton(i, 2) - 0.5, Halton(i, 3) - 0.5}
}
