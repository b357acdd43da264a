package raster

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxVaryings is the number of per-vertex attributes carried through clipping
// and interpolation.
const MaxVaryings = 12

type Varyings [MaxVaryings]float32

// Vertex is a clip-space vertex with its attributes.
type Vertex struct {
	Clip mgl32.Vec4
	V    Varyings
}

// Fragment is called once per covered pixel center with the stored depth
// (ndc.z*0.5+0.5) and perspective-correct varyings. front reports whether the
// triangle is counter-clockwise on screen.
type Fragment func(x, y int, depth float32, v *Varyings, front bool)

const nearEpsilon = 1e-5

func lerpVertex(a, b Vertex, t float32) Vertex {
	var out Vertex
	out.Clip = a.Clip.Add(b.Clip.Sub(a.Clip).Mul(t))
	for i := range out.V {
		out.V[i] = a.V[i] + (b.V[i]-a.V[i])*t
	}
	return out
}

// ClipTriangle clips a triangle against the near plane (z >= -w, w > 0) in
// homogeneous space. The result is a convex polygon of 0, 3 or 4 vertices
// appended to dst.
func ClipTriangle(tri [3]Vertex, dst []Vertex) []Vertex {
	dist := func(v Vertex) float32 { return v.Clip.Z() + v.Clip.W() - nearEpsilon }
	for i := 0; i < 3; i++ {
		a := tri[i]
		b := tri[(i+1)%3]
		da, db := dist(a), dist(b)
		if da >= 0 {
			dst = append(dst, a)
		}
		if (da >= 0) != (db >= 0) {
			t := da / (da - db)
			dst = append(dst, lerpVertex(a, b, t))
		}
	}
	return dst
}

// Rasterize clips the triangle and scan-converts it into a width x height
// target. Screen origin is the top-left corner and pixels are sampled at their
// centers.
func Rasterize(width, height int, tri [3]Vertex, frag Fragment) {
	var buf [6]Vertex
	poly := ClipTriangle(tri, buf[:0])
	for i := 1; i+1 < len(poly); i++ {
		rasterizeClipped(width, height, poly[0], poly[i], poly[i+1], frag)
	}
}

type screenVertex struct {
	x, y, z float64
	invW    float64
	v       *Varyings
}

func toScreen(width, height int, v *Vertex) screenVertex {
	invW := 1 / float64(v.Clip.W())
	return screenVertex{
		x:    (float64(v.Clip.X())*invW*0.5 + 0.5) * float64(width),
		y:    (0.5 - float64(v.Clip.Y())*invW*0.5) * float64(height),
		z:    float64(v.Clip.Z())*invW*0.5 + 0.5,
		invW: invW,
		v:    &v.V,
	}
}

func rasterizeClipped(width, height int, a, b, c Vertex, frag Fragment) {
	p0 := toScreen(width, height, &a)
	p1 := toScreen(width, height, &b)
	p2 := toScreen(width, height, &c)

	// Signed area; y grows downwards so counter-clockwise gives a negative value.
	det := (p1.x-p0.x)*(p2.y-p0.y) - (p2.x-p0.x)*(p1.y-p0.y)
	if math.Abs(det) < 1e-12 {
		return
	}
	front := det < 0
	invDet := 1 / det

	minX := int(math.Floor(math.Min(math.Min(p0.x, p1.x), p2.x)))
	maxX := int(math.Ceil(math.Max(math.Max(p0.x, p1.x), p2.x)))
	minY := int(math.Floor(math.Min(math.Min(p0.y, p1.y), p2.y)))
	maxY := int(math.Ceil(math.Max(math.Max(p0.y, p1.y), p2.y)))
	minX = max(minX, 0)
	minY = max(minY, 0)
	maxX = min(maxX, width-1)
	maxY = min(maxY, height-1)
	if minX > maxX || minY > maxY {
		return
	}

	var out Varyings
	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			// Edge functions scaled by the signed area so both windings are covered.
			w0 := ((p1.x-px)*(p2.y-py) - (p2.x-px)*(p1.y-py)) * invDet
			w1 := ((p2.x-px)*(p0.y-py) - (p0.x-px)*(p2.y-py)) * invDet
			w2 := ((p0.x-px)*(p1.y-py) - (p1.x-px)*(p0.y-py)) * invDet
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			// Shared edges: a pixel exactly on an edge belongs to one side only.
			if (w0 == 0 && !topLeft(p1, p2, front)) ||
				(w1 == 0 && !topLeft(p2, p0, front)) ||
				(w2 == 0 && !topLeft(p0, p1, front)) {
				continue
			}

			z := w0*p0.z + w1*p1.z + w2*p2.z
			if z < 0 || z > 1 {
				continue
			}
			q0 := w0 * p0.invW
			q1 := w1 * p1.invW
			q2 := w2 * p2.invW
			norm := 1 / (q0 + q1 + q2)
			q0 *= norm
			q1 *= norm
			q2 *= norm
			for i := range out {
				out[i] = float32(q0*float64(p0.v[i]) + q1*float64(p1.v[i]) + q2*float64(p2.v[i]))
			}
			frag(x, y, float32(z), &out, front)
		}
	}
}

func topLeft(a, b screenVertex, front bool) bool {
	dx, dy := b.x-a.x, b.y-a.y
	if !front {
		dx, dy = -dx, -dy
	}
	// With y down and counter-clockwise order, top edges run leftwards and
	// left edges run downwards.
	return (dy == 0 && dx < 0) || dy > 0
}
