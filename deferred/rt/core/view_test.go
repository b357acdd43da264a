package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testView() ViewUniform {
	view := mgl32.LookAtV(mgl32.Vec3{0, 2, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 4.0/3.0, 0.1, 100)
	return NewViewUniform(view, proj, 64, 48, 0.1, 100)
}

func TestViewUniformProjectRoundTrip(t *testing.T) {
	v := testView()
	assert.InDelta(t, 0, v.CameraPos.Sub(mgl32.Vec3{0, 2, 5}).Len(), 1e-4)

	points := []mgl32.Vec3{{0, 0, 0}, {1, 0.5, -2}, {-3, 1, -10}}
	for _, p := range points {
		uv, depth, ok := v.Project(p)
		require.True(t, ok)
		back := v.Unproject(uv, depth)
		assert.InDelta(t, 0, back.Sub(p).Len(), 1e-2, "point %v", p)
	}
}

func TestViewUniformScreenOrientation(t *testing.T) {
	v := testView()
	// A point above the look-at target lands in the upper half of the screen.
	uv, _, ok := v.Project(mgl32.Vec3{0, 1, 0})
	require.True(t, ok)
	assert.Less(t, uv.Y(), float32(0.5))

	_, _, ok = v.Project(mgl32.Vec3{0, 2, 10})
	assert.False(t, ok, "points behind the camera do not project")
}

func TestLinearizeDepth(t *testing.T) {
	v := testView()
	for _, dist := range []float32{0.1, 1, 7.5, 50, 100} {
		p := v.CameraPos.Add(mgl32.Vec3{0, -2, -5}.Normalize().Mul(dist))
		_, depth, ok := v.Project(p)
		require.True(t, ok)
		assert.InEpsilon(t, v.ViewDepth(p), v.LinearizeDepth(depth), 1e-2)
	}
	assert.InDelta(t, 100, v.LinearizeDepth(1), 1e-2)
	assert.True(t, IsSky(1))
}

func TestJitterSequence(t *testing.T) {
	seen := map[mgl32.Vec2]bool{}
	for i := uint64(0); i < 8; i++ {
		j := JitterSequence(i)
		assert.GreaterOrEqual(t, j.X(), float32(-0.5))
		assert.Less(t, j.X(), float32(0.5))
		assert.GreaterOrEqual(t, j.Y(), float32(-0.5))
		assert.Less(t, j.Y(), float32(0.5))
		seen[j] = true
	}
	assert.Len(t, seen, 8)
	assert.Equal(t, JitterSequence(3), JitterSequence(11))
	assert.InDelta(t, 0.5, Halton(1, 2), 1e-6)
	assert.InDelta(t, 1.0/3.0, Halton(1, 3), 1e-6)
}

func TestJitteredViewProjShiftsByPixels(t *testing.T) {
	v := testView().WithJitter(mgl32.Vec2{0.5, 0.25})
	p := mgl32.Vec3{0.3, 0.2, -1}
	uv0, _, _ := ProjectWith(v.ViewProj, p)
	uv1, _, _ := ProjectWith(v.JitteredViewProj(), p)
	assert.InDelta(t, 0.5, (uv1.X()-uv0.X())*float32(v.Width), 1e-3)
	assert.InDelta(t, 0.25, (uv1.Y()-uv0.Y())*float32(v.Height), 1e-3)
}

func TestUnprojectUndoesJitter(t *testing.T) {
	v := testView().WithJitter(mgl32.Vec2{0.5, -0.375})
	ident := mgl32.Ident4()
	id := v.JitteredInvViewProj().Mul4(v.JitteredViewProj())
	assert.InDeltaSlice(t, ident[:], id[:], 1e-4)

	for _, p := range []mgl32.Vec3{{0, 0, 0}, {1, 0.5, -2}, {-3, 1, -10}} {
		uv, depth, ok := ProjectWith(v.JitteredViewProj(), p)
		require.True(t, ok)
		back := v.Unproject(uv, depth)
		assert.InDelta(t, 0, back.Sub(p).Len(), 1e-2, "point %v", p)
		viewP := v.View.Mul4x1(p.Vec4(1)).Vec3()
		assert.InDelta(t, 0, v.UnprojectView(uv, depth).Sub(viewP).Len(), 1e-2, "point %v", p)
	}
}

func TestSurfaceSampling(t *testing.T) {
	s := NewSurface[mgl32.Vec3](2, 1)
	s.Set(0, 0, mgl32.Vec3{0, 0, 0})
	s.Set(1, 0, mgl32.Vec3{1, 2, 3})

	mid := SampleVec3(s, mgl32.Vec2{0.5, 0.5})
	assert.InDelta(t, 0.5, mid.X(), 1e-6)
	assert.InDelta(t, 1.5, mid.Y(), 1e-6)

	edge := SampleVec3(s, mgl32.Vec2{0, 0.5})
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, edge, "clamp to edge")

	f := NewSurface[float32](2, 2)
	f.Fill(4)
	assert.Equal(t, float32(4), SampleFloat(f, mgl32.Vec2{0.3, 0.9}))

	_, _, ok := NearestUV(2, 2, mgl32.Vec2{1.0, 0.2})
	assert.False(t, ok)
}

func TestSanitizeRadiance(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	got := SanitizeRadiance(mgl32.Vec3{nan, inf, 1e9})
	assert.Equal(t, mgl32.Vec3{0, 0, MaxRadiance}, got)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, SanitizeRadiance(mgl32.Vec3{1, 2, 3}))
	assert.Equal(t, float32(0), SanitizeFloat(-1))
}
