package shadow

import (
	"context"
	"testing"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSplits(t *testing.T) {
	for _, lambda := range []float32{0, 0.5, 0.75, 1} {
		for n := 1; n <= 6; n++ {
			splits := ComputeSplits(0.1, 200, n, lambda)
			require.Len(t, splits, n+1)
			assert.Equal(t, float32(0.1), splits[0])
			assert.Equal(t, float32(200), splits[n])
			for i := 1; i <= n; i++ {
				assert.Greater(t, splits[i], splits[i-1], "lambda %v n %d", lambda, n)
			}
		}
	}
}

func TestSelectCascadeHasNoGaps(t *testing.T) {
	splits := ComputeSplits(0.5, 100, 4, 0.75)
	for d := float32(0.5); d < 100; d += 0.25 {
		i := SelectCascade(d, splits)
		assert.GreaterOrEqual(t, d, splits[i])
		assert.Less(t, d, splits[i+1])
	}
	// boundaries belong to the farther cascade
	assert.Equal(t, 1, SelectCascade(splits[1], splits))
	assert.Equal(t, 3, SelectCascade(1000, splits))
	assert.Equal(t, 0, SelectCascade(0, splits))
}

func TestFaceFor(t *testing.T) {
	assert.Equal(t, 0, FaceFor(mgl32.Vec3{2, 1, 1}))
	assert.Equal(t, 1, FaceFor(mgl32.Vec3{-2, 1, 1}))
	assert.Equal(t, 2, FaceFor(mgl32.Vec3{0, 3, 1}))
	assert.Equal(t, 3, FaceFor(mgl32.Vec3{0, -3, 1}))
	assert.Equal(t, 4, FaceFor(mgl32.Vec3{0, 1, 3}))
	assert.Equal(t, 5, FaceFor(mgl32.Vec3{0, 1, -3}))
}

func TestPCFOutsideMapIsLit(t *testing.T) {
	m := NewDepthMap(4)
	m.Fill(0)
	assert.Equal(t, float32(0), m.SamplePCF(mgl32.Vec2{0.5, 0.5}, 0.5, 0, 1))
	// corner texel: 5 of 9 taps fall outside
	assert.InDelta(t, 5.0/9.0, m.SamplePCF(mgl32.Vec2{0.01, 0.01}, 0.5, 0, 1), 1e-6)
}

func occluderFrame() core.FrameInput {
	view := mgl32.LookAtV(mgl32.Vec3{0, 6, 10}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 50)
	return core.FrameInput{
		View: core.NewViewUniform(view, proj, 64, 64, 0.1, 50),
		Drawables: []core.Drawable{
			{Mesh: core.Plane(40), Transform: *core.NewTransform()},
			{Mesh: core.Cube(mgl32.Vec3{-1, 1, -1}, mgl32.Vec3{1, 2, 1}), Transform: *core.NewTransform()},
		},
	}
}

func testSettings() lumen.ShadowSettings {
	s := lumen.DefaultSettings().Shadows
	s.Resolution = 256
	s.PointResolution = 128
	return s
}

func TestDirectionalCascadesShadowUnderOccluder(t *testing.T) {
	frame := occluderFrame()
	sun := core.NewDirectionalLight(mgl32.Vec3{0.1, -1, 0.05}, mgl32.Vec3{1, 1, 1}, 3)
	frame.Lights = []core.Light{sun}

	sys := NewSystem(testSettings(), nil)
	st, err := sys.Build(context.Background(), &frame)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Cascades)
	assert.Equal(t, 0, sys.CascadedLight())
	assert.Positive(t, st.Triangles)

	up := mgl32.Vec3{0, 1, 0}
	under := mgl32.Vec3{0, 0, 0}
	open := mgl32.Vec3{6, 0, 4}
	assert.InDelta(t, 0, sys.Visibility(0, under, up, frame.View.ViewDepth(under)), 1e-6)
	assert.InDelta(t, 1, sys.Visibility(0, open, up, frame.View.ViewDepth(open)), 1e-6)

	// top of the occluder is not self-shadowed
	top := mgl32.Vec3{0, 2, 0}
	assert.InDelta(t, 1, sys.Visibility(0, top, up, frame.View.ViewDepth(top)), 1e-6)
}

func TestPointLightCubeShadow(t *testing.T) {
	frame := occluderFrame()
	lamp := core.NewPointLight(mgl32.Vec3{0, 4, 0}, mgl32.Vec3{1, 1, 1}, 10, 20)
	lamp.CastShadows = true
	frame.Lights = []core.Light{lamp}

	sys := NewSystem(testSettings(), nil)
	st, err := sys.Build(context.Background(), &frame)
	require.NoError(t, err)
	assert.Equal(t, 1, st.PointMaps)
	require.NotNil(t, sys.PointMap(0))

	up := mgl32.Vec3{0, 1, 0}
	assert.InDelta(t, 0, sys.Visibility(0, mgl32.Vec3{0, 0, 0}, up, 5), 1e-6)
	assert.InDelta(t, 1, sys.Visibility(0, mgl32.Vec3{8, 0, 0}, up, 5), 1e-6)
}

func TestSpotLightShadow(t *testing.T) {
	frame := occluderFrame()
	spot := core.NewSpotLight(mgl32.Vec3{0, 6, 0}, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 10, 20, mgl32.DegToRad(50))
	spot.CastShadows = true
	frame.Lights = []core.Light{spot}

	sys := NewSystem(testSettings(), nil)
	st, err := sys.Build(context.Background(), &frame)
	require.NoError(t, err)
	assert.Equal(t, 1, st.SpotMaps)

	up := mgl32.Vec3{0, 1, 0}
	assert.InDelta(t, 0, sys.Visibility(0, mgl32.Vec3{0, 0, 0}, up, 5), 1e-6)
	assert.InDelta(t, 1, sys.Visibility(0, mgl32.Vec3{4, 0, 0}, up, 5), 1e-6)
}

func TestDisabledShadowsAreLit(t *testing.T) {
	frame := occluderFrame()
	frame.Lights = []core.Light{core.NewDirectionalLight(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 1)}
	s := testSettings()
	s.Enabled = false
	sys := NewSystem(s, nil)
	_, err := sys.Build(context.Background(), &frame)
	require.NoError(t, err)
	assert.Equal(t, float32(1), sys.Visibility(0, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 5))
}

func TestBuildHonorsCancellation(t *testing.T) {
	frame := occluderFrame()
	frame.Lights = []core.Light{core.NewDirectionalLight(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSystem(testSettings(), nil).Build(ctx, &frame)
	assert.ErrorIs(t, err, context.Canceled)
}
