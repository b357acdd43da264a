package shadow

import (
	"math"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// ComputeSplits divides [near, far] into n cascades, blending logarithmic and
// uniform distributions by lambda. The result has n+1 strictly increasing
// entries with splits[0] == near and splits[n] == far, so every view depth in
// range belongs to exactly one cascade.
func ComputeSplits(near, far float32, n int, lambda float32) []float32 {
	if n < 1 {
		n = 1
	}
	lambda = mgl32.Clamp(lambda, 0, 1)
	splits := make([]float32, n+1)
	splits[0] = near
	splits[n] = far
	ratio := float64(far) / float64(near)
	for i := 1; i < n; i++ {
		p := float64(i) / float64(n)
		log := float64(near) * math.Pow(ratio, p)
		uni := float64(near) + float64(far-near)*p
		splits[i] = float32(float64(lambda)*log + (1-float64(lambda))*uni)
	}
	return splits
}

// SelectCascade returns the cascade whose [splits[i], splits[i+1]) range
// contains viewDepth. Depths past the last split map to the last cascade.
func SelectCascade(viewDepth float32, splits []float32) int {
	last := len(splits) - 2
	for i := 0; i < last; i++ {
		if viewDepth < splits[i+1] {
			return i
		}
	}
	return max(last, 0)
}

// Cascade is one orthographic slice of the directional shadow.
type Cascade struct {
	Near, Far  float32 // view-depth range covered
	ViewProj   mgl32.Mat4
	TexelWorld float32 // world size of one shadow texel
	DepthRange float32 // world distance covered by stored depth 0..1
	Map        *DepthMap
}

// sliceCorners returns the world-space corners of the view frustum between
// view depths d0 and d1.
func sliceCorners(view core.ViewUniform, d0, d1 float32) [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	ndc := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	span := view.Far - view.Near
	for i, c := range ndc {
		nearP := view.InvViewProj.Mul4x1(mgl32.Vec4{c[0], c[1], -1, 1})
		farP := view.InvViewProj.Mul4x1(mgl32.Vec4{c[0], c[1], 1, 1})
		n := nearP.Vec3().Mul(1 / nearP.W())
		f := farP.Vec3().Mul(1 / farP.W())
		ray := f.Sub(n)
		out[i] = n.Add(ray.Mul((d0 - view.Near) / span))
		out[i+4] = n.Add(ray.Mul((d1 - view.Near) / span))
	}
	return out
}

// casterMargin extends the light volume towards the light so that occluders
// outside the view slice still cast into it.
const casterMargin = 50

// CascadeMatrix fits a stable orthographic projection around the view slice.
// The bounding sphere keeps the size constant under camera rotation and the
// origin is snapped to whole texels.
func CascadeMatrix(view core.ViewUniform, lightDir mgl32.Vec3, d0, d1 float32, resolution int) Cascade {
	corners := sliceCorners(view, d0, d1)
	var center mgl32.Vec3
	for _, c := range corners {
		center = center.Add(c)
	}
	center = center.Mul(1.0 / 8)
	var radius float32
	for _, c := range corners {
		radius = max(radius, c.Sub(center).Len())
	}
	radius = float32(math.Ceil(float64(radius)*16) / 16)

	dir := lightDir.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(dir.Dot(up))) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	back := radius + casterMargin
	eye := center.Sub(dir.Mul(back))
	lightView := mgl32.LookAtV(eye, center, up)
	depthRange := back + radius
	proj := mgl32.Ortho(-radius, radius, -radius, radius, 0, depthRange)

	vp := proj.Mul4(lightView)
	half := float32(resolution) / 2
	origin := vp.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	ox, oy := origin.X()*half, origin.Y()*half
	dx := (float32(math.Round(float64(ox))) - ox) / half
	dy := (float32(math.Round(float64(oy))) - oy) / half
	proj = mgl32.Translate3D(dx, dy, 0).Mul4(proj)

	return Cascade{
		Near:       d0,
		Far:        d1,
		ViewProj:   proj.Mul4(lightView),
		TexelWorld: 2 * radius / float32(resolution),
		DepthRange: depthRange,
	}
}
