package lumen

import (
	"path/filepath"
	"testing"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScenePresetFrame(t *testing.T) {
	p := DefaultScenePreset()
	f, err := p.Frame(64, 32, 5)
	require.NoError(t, err)

	assert.Equal(t, uint64(5), f.Index)
	assert.Equal(t, uint64(1), f.GeometryVersion)
	assert.Equal(t, 64, f.View.Width)
	assert.Equal(t, 32, f.View.Height)
	assert.Equal(t, float32(0.1), f.View.Near)
	assert.Equal(t, float32(200), f.View.Far)

	require.Len(t, f.Drawables, 4)
	require.Len(t, f.Lights, 3)
	require.Len(t, f.Materials, 4)

	assert.Equal(t, core.LightDirectional, f.Lights[0].Type)
	assert.Equal(t, core.LightPoint, f.Lights[1].Type)
	assert.Equal(t, core.LightSpot, f.Lights[2].Type)
	assert.InDelta(t, mgl32.DegToRad(30), f.Lights[2].SpotAngle, 1e-6)
	for _, l := range f.Lights {
		assert.True(t, l.CastShadows)
	}
	for i, d := range f.Drawables {
		assert.NotNil(t, d.Mesh, i)
		assert.Equal(t, p.Objects[i].Material, d.MaterialIndex)
	}
	assert.Equal(t, float32(4), f.Materials[3].Emissive)
}

func TestScenePresetSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	p := DefaultScenePreset()
	require.NoError(t, SaveScenePreset(p, path))

	back, err := LoadScenePreset(path)
	require.NoError(t, err)
	assert.Equal(t, p.Name, back.Name)
	assert.Equal(t, p.Camera, back.Camera)
	assert.Equal(t, p.Lights, back.Lights)
	assert.Equal(t, p.Objects, back.Objects)
	assert.Equal(t, p.Materials, back.Materials)

	f, err := back.Frame(16, 16, 0)
	require.NoError(t, err)
	assert.Len(t, f.Drawables, 4)
}

func TestLoadScenePresetMissing(t *testing.T) {
	_, err := LoadScenePreset(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestParseScenePresetRejects(t *testing.T) {
	cam := `"camera": {"position": [0, 1, 5], "target": [0, 0, 0], "fov_deg": 60, "near": 0.1, "far": 100}`
	cases := map[string]string{
		"json":       `{"name": `,
		"shape":      `{` + cam + `, "objects": [{"shape": "torus"}]}`,
		"light type": `{` + cam + `, "lights": [{"type": "area", "color": [1, 1, 1], "intensity": 1}]}`,
		"clip":       `{"camera": {"fov_deg": 60, "near": 5, "far": 1}}`,
		"fov":        `{"camera": {"fov_deg": 0, "near": 0.1, "far": 10}}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenePreset([]byte(data))
			assert.ErrorIs(t, err, ErrInvalidScene)
		})
	}
}

func TestScenePresetTransformDefaults(t *testing.T) {
	data := `{
		"camera": {"position": [0, 1, 5], "target": [0, 0, 0], "fov_deg": 60, "near": 0.1, "far": 100},
		"materials": [{"base_color": [1, 1, 1, 1], "roughness": 0.5, "metalness": 0}],
		"objects": [{"shape": "Sphere", "radius": 2, "position": [1, 2, 3]}]
	}`
	p, err := ParseScenePreset([]byte(data))
	require.NoError(t, err)

	f, err := p.Frame(8, 8, 0)
	require.NoError(t, err)
	require.Len(t, f.Drawables, 1)
	tr := f.Drawables[0].Transform
	assert.Equal(t, mgl32.QuatIdent(), tr.Rotation)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, tr.Scale)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, tr.Position)
	assert.Empty(t, f.Lights)
}
