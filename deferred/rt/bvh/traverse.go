package bvh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ray is a half-line; Dir need not be unit length but T is measured in Dir units.
type Ray struct {
	Origin mgl32.Vec3
	Dir    mgl32.Vec3
}

func (r Ray) At(t float32) mgl32.Vec3 { return r.Origin.Add(r.Dir.Mul(t)) }

// Hit describes the nearest intersection.
type Hit struct {
	T        float32
	U, V     float32 // barycentrics of vertices 1 and 2
	Triangle int     // index into Structure.Tris
}

const maxStack = 64

// Intersect returns the nearest hit with tMin < t < tMax. It is safe to call
// concurrently.
func (s *Structure) Intersect(r Ray, tMin, tMax float32) (Hit, bool) {
	return s.traverse(r, tMin, tMax, false)
}

// Occluded reports whether anything lies between tMin and tMax.
func (s *Structure) Occluded(r Ray, tMin, tMax float32) bool {
	_, ok := s.traverse(r, tMin, tMax, true)
	return ok
}

func (s *Structure) traverse(r Ray, tMin, tMax float32, anyHit bool) (Hit, bool) {
	var best Hit
	found := false
	inv := mgl32.Vec3{safeInv(r.Dir.X()), safeInv(r.Dir.Y()), safeInv(r.Dir.Z())}

	var buf [maxStack]int32
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		n := &s.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !slab(r.Origin, inv, n.Min, n.Max, tMin, tMax) {
			continue
		}
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.Left)
			continue
		}
		for k := n.LeafFirst; k < n.LeafFirst+n.LeafCount; k++ {
			t, u, v, ok := intersectTriangle(r, &s.Tris[k])
			if ok && t > tMin && t < tMax {
				best = Hit{T: t, U: u, V: v, Triangle: int(k)}
				tMax = t
				found = true
				if anyHit {
					return best, true
				}
			}
		}
	}
	return best, found
}

func safeInv(v float32) float32 {
	if v == 0 {
		return float32(math.Inf(1))
	}
	return 1 / v
}

func slab(o, inv, lo, hi mgl32.Vec3, tMin, tMax float32) bool {
	for a := 0; a < 3; a++ {
		t0 := (lo[a] - o[a]) * inv[a]
		t1 := (hi[a] - o[a]) * inv[a]
		if inv[a] < 0 {
			t0, t1 = t1, t0
		}
		// NaN from 0*inf leaves the interval unchanged
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMax < tMin {
			return false
		}
	}
	return true
}

// intersectTriangle is the Moller-Trumbore test; both faces count.
func intersectTriangle(r Ray, tri *Triangle) (t, u, v float32, ok bool) {
	const eps = 1e-9
	e1 := tri.V[1].Sub(tri.V[0])
	e2 := tri.V[2].Sub(tri.V[0])
	p := r.Dir.Cross(e2)
	det := e1.Dot(p)
	if det > -eps && det < eps {
		return 0, 0, 0, false
	}
	invDet := 1 / det
	s := r.Origin.Sub(tri.V[0])
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v = r.Dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = e2.Dot(q) * invDet
	return t, u, v, true
}
