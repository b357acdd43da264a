package gbuffer

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	cases := []mgl32.Vec3{
		{0, 0, 1}, {0, 0, -1}, {1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0},
		mgl32.Vec3{1, 1, -1}.Normalize(), mgl32.Vec3{-1, -1, -1}.Normalize(),
	}
	for i := 0; i < 5000; i++ {
		v := mgl32.Vec3{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())}
		if v.Len() < 1e-3 {
			continue
		}
		cases = append(cases, v.Normalize())
	}
	for _, n := range cases {
		e := EncodeNormal(n)
		require.True(t, e.X() >= 0 && e.X() <= 1 && e.Y() >= 0 && e.Y() <= 1, "encoded %v out of range", e)
		d := DecodeNormal(e)
		assert.InDelta(t, 1, d.Len(), 1e-6)
		assert.InDelta(t, 0, d.Sub(n).Len(), 1e-5, "normal %v decoded as %v", n, d)
	}
}

func TestDecodeAlwaysUnit(t *testing.T) {
	for x := 0; x <= 16; x++ {
		for y := 0; y <= 16; y++ {
			d := DecodeNormal(mgl32.Vec2{float32(x) / 16, float32(y) / 16})
			assert.InDelta(t, 1, d.Len(), 1e-6)
		}
	}
}

func TestNewRejectsBadSize(t *testing.T) {
	_, err := New(0, 10)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = New(10, MaxDimension+1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	g, err := New(4, 3)
	require.NoError(t, err)
	assert.Len(t, g.Depth.Pix, 12)
	assert.Equal(t, float32(1), g.Depth.At(3, 2))
}

type countingLogger struct {
	lumen.Logger
	mu    sync.Mutex
	warns int
}

func (c *countingLogger) Warnf(format string, args ...any) {
	c.mu.Lock()
	c.warns++
	c.mu.Unlock()
}

func planeFrame(w, h int) core.FrameInput {
	view := mgl32.LookAtV(mgl32.Vec3{0, 3, 6}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), float32(w)/float32(h), 0.1, 100)
	return core.FrameInput{
		View: core.NewViewUniform(view, proj, w, h, 0.1, 100),
		Drawables: []core.Drawable{
			{Mesh: core.Plane(40), Transform: *core.NewTransform()},
		},
		Materials: []core.Material{core.NewMaterial(mgl32.Vec4{0.8, 0.2, 0.1, 1}, 0.4, 0.25)},
	}
}

func TestPassWritesAttachments(t *testing.T) {
	const w, h = 32, 24
	g, err := New(w, h)
	require.NoError(t, err)
	frame := planeFrame(w, h)

	st := NewPass(nil).Render(g, &frame)
	assert.Equal(t, 1, st.Drawn)
	assert.Equal(t, 2, st.Triangles)

	// bottom row sees the floor, top row sees the sky
	bottom := g.Fetch(w/2, h-1)
	require.True(t, bottom.Covered)
	assert.Less(t, bottom.Depth, float32(1))
	assert.Equal(t, mgl32.Vec4{0.8, 0.2, 0.1, 1}, bottom.Albedo)
	assert.InDelta(t, 0.25, bottom.Metallic, 1e-6)
	assert.InDelta(t, 0.4, bottom.Roughness, 1e-6)
	assert.InDelta(t, 0, bottom.Normal.Sub(mgl32.Vec3{0, 1, 0}).Len(), 1e-4)
	assert.InDelta(t, 0, bottom.Motion.Len(), 1e-5, "static camera and geometry")

	top := g.Fetch(w/2, 0)
	assert.False(t, top.Covered)
	assert.True(t, core.IsSky(top.Depth))

	// depth reconstructs a point on the plane
	uv := frame.View.PixelUV(w/2, h-1)
	p := frame.View.Unproject(uv, bottom.Depth)
	assert.InDelta(t, 0, p.Y(), 1e-2)
}

func TestPassMotionVectorsFollowCamera(t *testing.T) {
	const w, h = 32, 24
	g, err := New(w, h)
	require.NoError(t, err)
	frame := planeFrame(w, h)

	prevView := mgl32.LookAtV(mgl32.Vec3{0.5, 3, 6}, mgl32.Vec3{0.5, 0, 0}, mgl32.Vec3{0, 1, 0})
	prevVP := frame.View.Proj.Mul4(prevView)
	frame.View = frame.View.WithPrevious(prevVP)

	NewPass(nil).Render(g, &frame)
	x, y := w/2, h-2
	tx := g.Fetch(x, y)
	require.True(t, tx.Covered)

	world := frame.View.Unproject(frame.View.PixelUV(x, y), tx.Depth)
	prevUV, _, ok := core.ProjectWith(prevVP, world)
	require.True(t, ok)
	want := frame.View.PixelUV(x, y).Sub(prevUV)
	assert.InDelta(t, want.X(), tx.Motion.X(), 1e-3)
	assert.InDelta(t, want.Y(), tx.Motion.Y(), 1e-3)
	assert.Greater(t, float64(tx.Motion.X()), 0.0, "camera moved left, scene moves right")
}

func TestPassDropsInvalidDrawables(t *testing.T) {
	const w, h = 16, 16
	g, err := New(w, h)
	require.NoError(t, err)
	frame := planeFrame(w, h)

	bad := core.Plane(1)
	bad.Format = core.VertexFormatPosition
	frame.Drawables = append(frame.Drawables, core.Drawable{Mesh: bad, Transform: *core.NewTransform()})

	log := &countingLogger{Logger: lumen.NewNopLogger()}
	pass := NewPass(log)
	for i := 0; i < 3; i++ {
		st := pass.Render(g, &frame)
		assert.Equal(t, 1, st.Dropped)
		assert.Equal(t, 1, st.Drawn)
	}
	assert.Equal(t, 1, log.warns, "one warning per mesh")
}

func TestPassForgetsReplacedInvalidMeshes(t *testing.T) {
	const w, h = 8, 8
	g, err := New(w, h)
	require.NoError(t, err)
	log := &countingLogger{Logger: lumen.NewNopLogger()}
	pass := NewPass(log)

	for i := 0; i < 50; i++ {
		frame := planeFrame(w, h)
		bad := core.Plane(1)
		bad.Format = core.VertexFormatPosition
		frame.Drawables = append(frame.Drawables, core.Drawable{Mesh: bad, Transform: *core.NewTransform()})
		pass.Render(g, &frame)
		assert.Len(t, pass.warned, 1)
	}
	assert.Equal(t, 50, log.warns, "each new mesh warns once")

	frame := planeFrame(w, h)
	pass.Render(g, &frame)
	assert.Empty(t, pass.warned)
}

func TestPassJitteredDepthReconstructs(t *testing.T) {
	const w, h = 32, 24
	for _, j := range []mgl32.Vec2{{0.5, -0.5}, {-0.4, 0.3}} {
		g, err := New(w, h)
		require.NoError(t, err)
		frame := planeFrame(w, h)
		frame.View = frame.View.WithJitter(j)
		NewPass(nil).Render(g, &frame)

		for _, y := range []int{h - 1, h - 4, h - 8} {
			x := w / 3
			tx := g.Fetch(x, y)
			require.True(t, tx.Covered)
			p := frame.View.Unproject(frame.View.PixelUV(x, y), tx.Depth)
			assert.InDelta(t, 0, p.Y(), 5e-3, "jitter %v row %d", j, y)
		}
	}
}

func TestPassFrustumCulls(t *testing.T) {
	const w, h = 16, 16
	g, err := New(w, h)
	require.NoError(t, err)
	frame := planeFrame(w, h)
	behind := core.NewTransform()
	behind.Position = mgl32.Vec3{0, 0, 200}
	frame.Drawables = append(frame.Drawables, core.Drawable{Mesh: core.Cube(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}), Transform: *behind})

	st := NewPass(nil).Render(g, &frame)
	assert.Equal(t, 1, st.Culled)
	assert.False(t, math.IsNaN(float64(g.Depth.At(0, 0))))
}
