package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Plane builds a square in the XZ plane centered at the origin, facing +Y.
func Plane(size float32) *Mesh {
	h := size / 2
	n := mgl32.Vec3{0, 1, 0}
	return &Mesh{
		Name:   "plane",
		Format: VertexFormatPositionNormalUV,
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-h, 0, -h}, Normal: n, UV: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{h, 0, -h}, Normal: n, UV: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{h, 0, h}, Normal: n, UV: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{-h, 0, h}, Normal: n, UV: mgl32.Vec2{0, 1}},
		},
		// counter-clockwise seen from +Y
		Indices: []uint32{0, 2, 1, 0, 3, 2},
	}
}

// Cube builds an axis-aligned box between minB and maxB with per-face normals.
func Cube(minB, maxB mgl32.Vec3) *Mesh {
	m := &Mesh{Name: "cube", Format: VertexFormatPositionNormalUV}
	faces := []struct {
		n    mgl32.Vec3
		u, v mgl32.Vec3
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	center := minB.Add(maxB).Mul(0.5)
	half := maxB.Sub(minB).Mul(0.5)
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := f.n.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1]))
			pos := center.Add(mgl32.Vec3{p.X() * half.X(), p.Y() * half.Y(), p.Z() * half.Z()})
			m.Vertices = append(m.Vertices, Vertex{
				Position: pos,
				Normal:   f.n,
				UV:       mgl32.Vec2{c[0]*0.5 + 0.5, c[1]*0.5 + 0.5},
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Sphere builds a UV sphere.
func Sphere(center mgl32.Vec3, radius float32, segments, rings int) *Mesh {
	segments = max(segments, 3)
	rings = max(rings, 2)
	m := &Mesh{Name: "sphere", Format: VertexFormatPositionNormalUV}
	for r := 0; r <= rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s <= segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			n := mgl32.Vec3{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(-math.Sin(phi) * math.Sin(theta)),
			}
			m.Vertices = append(m.Vertices, Vertex{
				Position: center.Add(n.Mul(radius)),
				Normal:   n,
				UV:       mgl32.Vec2{float32(s) / float32(segments), float32(r) / float32(rings)},
			})
		}
	}
	stride := uint32(segments + 1)
	for r := 0; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a := uint32(r)*stride + uint32(s)
			b := a + stride
			m.Indices = append(m.Indices, a, b, a+1, a+1, b, b+1)
		}
	}
	return m
}
