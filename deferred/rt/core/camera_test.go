package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCameraBasis(t *testing.T) {
	c := NewCameraState()
	f, r := c.GetForward(), c.GetRight()
	assert.InDeltaSlice(t, []float32{0, 0, -1}, f[:], 1e-6)
	assert.InDeltaSlice(t, []float32{1, 0, 0}, r[:], 1e-6)

	c.Yaw = math.Pi / 2
	f, r = c.GetForward(), c.GetRight()
	assert.InDeltaSlice(t, []float32{1, 0, 0}, f[:], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 0, 1}, r[:], 1e-6)

	for _, a := range [][2]float32{{0.3, 0.2}, {-2.1, -0.7}, {4, 1.2}} {
		c.Yaw, c.Pitch = a[0], a[1]
		f, r := c.GetForward(), c.GetRight()
		assert.InDelta(t, 1, f.Len(), 1e-5)
		assert.InDelta(t, 0, f.Dot(r), 1e-5, "yaw=%v pitch=%v", a[0], a[1])
		assert.InDelta(t, math.Sin(float64(a[1])), f.Y(), 1e-5)
	}
}

func TestCameraViewLooksAlongForward(t *testing.T) {
	c := NewCameraState()
	c.Position = mgl32.Vec3{3, 2, 5}
	c.Yaw, c.Pitch = 0.4, -0.2

	v := c.View(320, 180)
	ahead := c.Position.Add(c.GetForward().Mul(7))
	p := v.View.Mul4x1(ahead.Vec4(1)).Vec3()
	assert.InDeltaSlice(t, []float32{0, 0, -7}, p[:], 1e-4)
	assert.InDeltaSlice(t, c.Position[:], v.CameraPos[:], 1e-4)

	// points ahead of the camera land mid-screen
	uv, _, ok := v.Project(ahead)
	assert.True(t, ok)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, uv[:], 1e-4)
}

func TestCameraFrustumCulling(t *testing.T) {
	// 60 degree vertical fov at 2:1 gives a half-width of about 11.5 at 10 units
	c := NewCameraState()
	c.Position = mgl32.Vec3{0, 1, 0}
	c.Far = 50
	planes := ExtractFrustum(c.View(200, 100).ViewProj)

	box := func(center mgl32.Vec3, half float32) [2]mgl32.Vec3 {
		h := mgl32.Vec3{half, half, half}
		return [2]mgl32.Vec3{center.Sub(h), center.Add(h)}
	}
	tests := []struct {
		name string
		aabb [2]mgl32.Vec3
		want bool
	}{
		{"ahead", box(mgl32.Vec3{0, 1, -10}, 1), true},
		{"behind", box(mgl32.Vec3{0, 1, 10}, 1), false},
		{"past far plane", box(mgl32.Vec3{0, 1, -60}, 1), false},
		{"left of the fov", box(mgl32.Vec3{-16, 1, -10}, 1), false},
		{"straddling the left plane", box(mgl32.Vec3{-12, 1, -10}, 1), true},
		{"below the fov", box(mgl32.Vec3{0, -10, -10}, 1), false},
		{"around the camera", box(mgl32.Vec3{0, 1, 0}, 500), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AABBInFrustum(tt.aabb, planes), tt.name)
	}

	// turning right brings +X into view
	c.Yaw = math.Pi / 2
	planes = ExtractFrustum(c.View(200, 100).ViewProj)
	assert.True(t, AABBInFrustum(box(mgl32.Vec3{10, 1, 0}, 1), planes))
	assert.False(t, AABBInFrustum(box(mgl32.Vec3{0, 1, -10}, 1), planes))
}

// Shadow cascades cull casters against an orthographic light frustum.
func TestOrthoLightFrustum(t *testing.T) {
	view := mgl32.LookAtV(mgl32.Vec3{0, 50, 0}, mgl32.Vec3{}, mgl32.Vec3{0, 0, -1})
	proj := mgl32.Ortho(-10, 10, -10, 10, 1, 100)
	planes := ExtractFrustum(proj.Mul4(view))

	assert.True(t, AABBInFrustum([2]mgl32.Vec3{{-1, 0, -1}, {1, 2, 1}}, planes), "caster on the ground")
	assert.False(t, AABBInFrustum([2]mgl32.Vec3{{14, 0, -1}, {16, 2, 1}}, planes), "outside the ortho width")
	assert.False(t, AABBInFrustum([2]mgl32.Vec3{{-1, 55, -1}, {1, 57, 1}}, planes), "above the light")
	assert.True(t, AABBInFrustum([2]mgl32.Vec3{{9, 0, 9}, {12, 1, 12}}, planes), "clipped by a corner")
}

func TestTransformAABB(t *testing.T) {
	tr := NewTransform()
	tr.Position = mgl32.Vec3{0, 3, 0}
	tr.Scale = mgl32.Vec3{2, 1, 1}
	w := TransformAABB([2]mgl32.Vec3{{-1, 0, -1}, {1, 1, 1}}, tr.ObjectToWorld())
	assert.InDeltaSlice(t, []float32{-2, 3, -1}, w[0][:], 1e-5)
	assert.InDeltaSlice(t, []float32{2, 4, 1}, w[1][:], 1e-5)

	// a quarter turn about Y maps +X to -Z and +Z to +X
	tr = NewTransform()
	tr.Rotation = mgl32.QuatRotate(math.Pi/2, mgl32.Vec3{0, 1, 0})
	w = TransformAABB([2]mgl32.Vec3{{0, 0, 0}, {2, 1, 1}}, tr.ObjectToWorld())
	assert.InDeltaSlice(t, []float32{0, 0, -2}, w[0][:], 1e-5)
	assert.InDeltaSlice(t, []float32{1, 1, 0}, w[1][:], 1e-5)
}

func TestTransformInverseAndNormals(t *testing.T) {
	tr := Transform{
		Position: mgl32.Vec3{4, -1, 2},
		Rotation: mgl32.QuatRotate(0.7, mgl32.Vec3{1, 1, 0}.Normalize()),
		Scale:    mgl32.Vec3{2, 1, 0.5},
	}
	id := tr.ObjectToWorld().Mul4(tr.WorldToObject())
	ident := mgl32.Ident4()
	assert.InDeltaSlice(t, ident[:], id[:], 1e-5)

	// normals stay perpendicular to tangents under non-uniform scale
	tangent := mgl32.Vec3{1, 0, 1}
	normal := mgl32.Vec3{1, 0, -1}
	wt := tr.ObjectToWorld().Mul4x1(tangent.Vec4(0)).Vec3()
	wn := tr.NormalMatrix().Mul3x1(normal)
	assert.InDelta(t, 0, wt.Dot(wn), 1e-5)
}
