package volumetric

import (
	"context"
	"math"
	"testing"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHenyeyGreenstein(t *testing.T) {
	assert.InDelta(t, 1/(4*math.Pi), HenyeyGreenstein(0.3, 0), 1e-6)
	for _, g := range []float32{-0.5, 0, 0.3, 0.8} {
		// integral over the sphere is 1
		const n = 20000
		var sum float64
		for i := 0; i < n; i++ {
			c := -1 + (float64(i)+0.5)*2/n
			sum += float64(HenyeyGreenstein(float32(c), g)) * 2 / n
		}
		assert.InDelta(t, 1, 2*math.Pi*sum, 0.01, "g=%v", g)
	}
	assert.Greater(t, HenyeyGreenstein(1, 0.6), HenyeyGreenstein(-1, 0.6))
	assert.Less(t, HenyeyGreenstein(1, -0.6), HenyeyGreenstein(-1, -0.6))
}

type constSource mgl32.Vec3

func (c constSource) InScatter(mgl32.Vec3, mgl32.Vec3) mgl32.Vec3 { return mgl32.Vec3(c) }

func testMarcher(field DensityField, exp bool) *Marcher {
	return &Marcher{
		Field:       field,
		Source:      constSource{1, 1, 1},
		Scattering:  0.6,
		Absorption:  0.4,
		Steps:       64,
		MaxDistance: 100,
		BoundsMin:   mgl32.Vec3{-50, -50, -200},
		BoundsMax:   mgl32.Vec3{50, 50, 50},
		Exponential: exp,
	}
}

func TestTransmittanceMonotonicWithinBudget(t *testing.T) {
	for _, exp := range []bool{false, true} {
		m := testMarcher(Uniform(0.1), exp)
		var trace []float32
		m.Observer = func(step int, _ float32, tr float32) {
			assert.Equal(t, len(trace)+1, step)
			trace = append(trace, tr)
		}
		r := m.March(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 1000)
		assert.True(t, r.EarlyExit, "exponential=%v", exp)
		assert.Less(t, r.Transmittance, float32(MinTransmittance))
		assert.LessOrEqual(t, r.Steps, m.Steps)
		require.Len(t, trace, r.Steps)
		prev := float32(1)
		for i, tr := range trace {
			assert.LessOrEqual(t, tr, prev, "step %d", i+1)
			assert.GreaterOrEqual(t, tr, float32(0))
			prev = tr
		}
		// the march stops on the first step below the threshold
		assert.GreaterOrEqual(t, trace[len(trace)-2], float32(MinTransmittance))
		assert.Greater(t, r.Scattered.X(), float32(0))
	}
}

func TestEmptyMediumSkipsWithGrowingSteps(t *testing.T) {
	m := testMarcher(Uniform(0), false)
	r := m.March(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 1000)
	assert.Equal(t, float32(1), r.Transmittance)
	assert.Equal(t, mgl32.Vec3{}, r.Scattered)
	assert.Less(t, r.Steps, m.Steps/2)
}

func TestMarchClipsToBoxAndDepth(t *testing.T) {
	m := testMarcher(Uniform(0.05), false)
	miss := m.March(mgl32.Vec3{0, 100, 0}, mgl32.Vec3{0, 1, 0}, 1000)
	assert.Zero(t, miss.Steps)
	assert.Equal(t, float32(1), miss.Transmittance)

	short := m.March(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 2)
	long := m.March(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 20)
	assert.Greater(t, short.Transmittance, long.Transmittance)
	assert.InDelta(t, 0.9, short.Transmittance, 0.01, "about exp(-0.05*2) in front of a surface at 2 units")
}

func TestCompositeFormula(t *testing.T) {
	r := Result{Scattered: mgl32.Vec3{0.1, 0.2, 0.3}, Transmittance: 0.5}
	c := r.Composite(mgl32.Vec3{1, 2, 4})
	assert.InDeltaSlice(t, []float32{0.6, 1.2, 2.3}, c[:], 1e-6)
}

func TestMarchIntegration(t *testing.T) {
	// four one-unit steps through density 0.1
	m := &Marcher{
		Field:       Uniform(0.1),
		Source:      constSource{1, 1, 1},
		Scattering:  0.6,
		Absorption:  0.1,
		Steps:       4,
		MaxDistance: 4,
		BoundsMin:   mgl32.Vec3{-10, -10, -10},
		BoundsMax:   mgl32.Vec3{10, 10, 10},
	}
	tests := []struct {
		exp       bool
		trans     float64
		scattered float64
	}{
		// T = 0.9^4, S = 0.6*0.1*(1+0.9+0.81+0.729)
		{false, 0.6561, 0.20634},
		// T = exp(-0.1*4), S = 0.6*0.1*(1+e^-0.1+e^-0.2+e^-0.3)
		{true, 0.670320, 0.207863},
	}
	for _, tt := range tests {
		m.Exponential = tt.exp
		r := m.March(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 100)
		assert.Equal(t, 4, r.Steps)
		assert.InDelta(t, tt.trans, r.Transmittance, 1e-4, "exponential=%v", tt.exp)
		assert.InDelta(t, tt.scattered, r.Scattered.X(), 1e-4, "exponential=%v", tt.exp)
	}
}

func TestForwardScatteringTowardsSun(t *testing.T) {
	sun := core.NewDirectionalLight(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 1, 1}, 5)
	m := testMarcher(Uniform(0.02), true)
	m.Source = &LightSource{Lights: []core.Light{sun}, Anisotropy: 0.7}
	towards := m.March(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 40)
	away := m.March(mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}, 40)
	assert.Greater(t, towards.Scattered.X(), 5*away.Scattered.X())
}

func TestVolumeTexture(t *testing.T) {
	_, err := NewVolumeTexture([3]int{0, 4, 4}, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})
	assert.ErrorIs(t, err, ErrInvalidVolume)
	_, err = NewVolumeTexture([3]int{4, 4, 4}, mgl32.Vec3{}, mgl32.Vec3{1, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidVolume)

	v, err := NewVolumeTexture([3]int{8, 4, 6}, mgl32.Vec3{-4, 0, -3}, mgl32.Vec3{4, 4, 3})
	require.NoError(t, err)
	require.NoError(t, v.Populate(context.Background(), Uniform(0.2), constSource{0.5, 0.25, 1}, mgl32.Vec3{}))

	s := v.Sample(mgl32.Vec3{1.3, 2.2, -0.7})
	assert.InDelta(t, 0.2, s.W(), 1e-6)
	assert.InDelta(t, 0.25, s.Y(), 1e-6)
	assert.Equal(t, mgl32.Vec4{}, v.Sample(mgl32.Vec3{0, 10, 0}))

	// blending towards an empty volume halves everything
	empty, err := NewVolumeTexture([3]int{8, 4, 6}, v.Min, v.Max)
	require.NoError(t, err)
	v.Blend(empty, 0.5)
	assert.InDelta(t, 0.1, v.Density(mgl32.Vec3{}), 1e-6)
}

func stageInput(w, h int) (Input, *core.Surface[mgl32.Vec3]) {
	view := mgl32.LookAtV(mgl32.Vec3{0, 2, 0}, mgl32.Vec3{0, 2, -1}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), float32(w)/float32(h), 0.1, 100)
	depth := core.NewSurface[float32](w, h)
	depth.Fill(1)
	scene := core.NewSurface[mgl32.Vec3](w, h)
	scene.Fill(mgl32.Vec3{1, 1, 1})
	return Input{
		View:   core.NewViewUniform(view, proj, w, h, 0.1, 100),
		Depth:  depth,
		Lights: []core.Light{core.NewDirectionalLight(mgl32.Vec3{0.3, -1, -0.2}, mgl32.Vec3{1, 0.9, 0.8}, 3)},
	}, scene
}

func TestStageScreenSpace(t *testing.T) {
	settings := lumen.DefaultVolumetricSettings()
	settings.Steps = 32
	s := NewStage(settings, nil)
	in, scene := stageInput(8, 4)

	st, err := s.Apply(context.Background(), in, scene)
	require.NoError(t, err)
	assert.True(t, st.Applied)
	assert.Equal(t, int64(32), st.Rays)
	assert.LessOrEqual(t, st.MaxSteps, 32)
	for _, c := range scene.Pix {
		assert.NotEqual(t, mgl32.Vec3{1, 1, 1}, c)
		for i := range c {
			assert.False(t, math.IsNaN(float64(c[i])))
		}
	}

	off := settings
	off.Enabled = false
	require.NoError(t, s.SetSettings(off))
	in, scene = stageInput(8, 4)
	st, err = s.Apply(context.Background(), in, scene)
	require.NoError(t, err)
	assert.False(t, st.Applied)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, scene.At(3, 2))
}

func TestStageVolumeCadence(t *testing.T) {
	settings := lumen.DefaultVolumetricSettings()
	settings.Mode = lumen.VolumetricVolumeTexture
	settings.VolumeSize = [3]int{8, 4, 8}
	settings.UpdateInterval = 3
	settings.Steps = 16
	s := NewStage(settings, nil)
	require.NoError(t, s.Allocate())
	require.NotNil(t, s.Volume())

	type frame struct{ updated, history bool }
	want := []frame{{true, false}, {false, true}, {false, true}, {true, true}}
	for i, w := range want {
		in, scene := stageInput(4, 4)
		st, err := s.Apply(context.Background(), in, scene)
		require.NoError(t, err)
		assert.Equal(t, w.updated, st.VolumeUpdated, "frame %d", i)
		assert.Equal(t, w.history, st.HistoryUsed, "frame %d", i)
	}

	s.Reset()
	in, scene := stageInput(4, 4)
	st, err := s.Apply(context.Background(), in, scene)
	require.NoError(t, err)
	assert.True(t, st.VolumeUpdated)
	assert.False(t, st.HistoryUsed)
}

func TestStageCancelled(t *testing.T) {
	s := NewStage(lumen.DefaultVolumetricSettings(), nil)
	in, scene := stageInput(4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Apply(ctx, in, scene)
	assert.ErrorIs(t, err, context.Canceled)
}
