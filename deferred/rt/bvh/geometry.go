package bvh

import (
	"math"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Triangle is a world-space triangle with per-vertex shading normals.
type Triangle struct {
	V        [3]mgl32.Vec3
	N        [3]mgl32.Vec3
	Material int32
}

func (t *Triangle) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	minB, maxB := emptyBounds()
	for _, v := range t.V {
		minB, maxB = grow(minB, maxB, v, v)
	}
	return minB, maxB
}

// GeometricNormal is the unit face normal following counter-clockwise winding.
func (t *Triangle) GeometricNormal() mgl32.Vec3 {
	return t.V[1].Sub(t.V[0]).Cross(t.V[2].Sub(t.V[0])).Normalize()
}

// ShadingNormal interpolates vertex normals at barycentrics (u, v).
func (t *Triangle) ShadingNormal(u, v float32) mgl32.Vec3 {
	n := t.N[0].Mul(1 - u - v).Add(t.N[1].Mul(u)).Add(t.N[2].Mul(v))
	if n.Len() < 1e-6 {
		return t.GeometricNormal()
	}
	return n.Normalize()
}

func (t *Triangle) valid() bool {
	for _, v := range t.V {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return false
			}
		}
	}
	return true
}

// Topology identifies the triangle layout of a frame. Two frames with equal
// topology can share a tree through Refit.
type Topology struct {
	Version   uint64
	Triangles int
}

// FrameTriangles flattens every drawable with a valid mesh into world space.
func FrameTriangles(frame *core.FrameInput, dst []Triangle) ([]Triangle, Topology) {
	dst = dst[:0]
	for i := range frame.Drawables {
		d := &frame.Drawables[i]
		if d.Mesh.Validate() != nil {
			continue
		}
		model := d.Model()
		normal := d.Transform.NormalMatrix()
		m := d.Mesh
		for k := 0; k+2 < len(m.Indices); k += 3 {
			var tri Triangle
			tri.Material = int32(d.MaterialIndex)
			for c := 0; c < 3; c++ {
				v := m.Vertices[m.Indices[k+c]]
				tri.V[c] = model.Mul4x1(v.Position.Vec4(1)).Vec3()
				tri.N[c] = normal.Mul3x1(v.Normal).Normalize()
			}
			dst = append(dst, tri)
		}
	}
	return dst, Topology{Version: frame.GeometryVersion, Triangles: len(dst)}
}
