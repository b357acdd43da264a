package lumen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, DefaultSettings(), s)
}

func TestParseSettingsPartial(t *testing.T) {
	data := []byte(`
post:
  tone_mapping: reinhard
  exposure: 1.5
quality:
  tier: ultra
  dynamic: true
volumetric:
  mode: volume
`)
	s, err := ParseSettings(data)
	require.NoError(t, err)
	assert.Equal(t, ToneMappingReinhard, s.Post.ToneMapping)
	assert.Equal(t, float32(1.5), s.Post.Exposure)
	assert.Equal(t, QualityUltra, s.Quality.Tier)
	assert.True(t, s.Quality.Dynamic)
	assert.Equal(t, VolumetricVolumeTexture, s.Volumetric.Mode)

	d := DefaultSettings()
	assert.Equal(t, d.Shadows, s.Shadows)
	assert.Equal(t, d.Post.Gamma, s.Post.Gamma)
}

func TestParseSettingsEmpty(t *testing.T) {
	s, err := ParseSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestParseSettingsRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "post:\n  glow: 3\n",
		"tone mapping":  "post:\n  tone_mapping: filmic\n",
		"tier":          "quality:\n  tier: extreme\n",
		"gamma":         "post:\n  gamma: 0\n",
		"cascades":      "shadows:\n  cascades: 9\n",
		"steps":         "volumetric:\n  steps: 0\n",
		"anisotropy":    "volumetric:\n  anisotropy: 1\n",
		"volume mode":   "volumetric:\n  mode: fog\n",
		"empty bounds":  "volumetric:\n  bounds_min: [0, 0, 0]\n  bounds_max: [0, 1, 1]\n",
		"lens":          "post:\n  f_stop: 0\n",
		"shadow res":    "shadows:\n  resolution: 8\n",
		"volume size":   "volumetric:\n  volume_size: [0, 4, 4]\n",
		"not a mapping": "post: 3\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSettings([]byte(data))
			assert.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
}

func TestValidateClamps(t *testing.T) {
	s := DefaultSettings()
	s.Post.TAABlend = 0
	s.Post.VignetteRadius = -1
	s.Post.MotionBlurSamples = 0
	s.Volumetric.Density = 3
	s.Volumetric.Mode = ""
	s.Volumetric.UpdateInterval = 0
	s.Shadows.PCFRadius = -2
	s.RayTracing.SamplesPerPixel = 0
	require.NoError(t, s.Validate())

	assert.Equal(t, float32(0.1), s.Post.TAABlend)
	assert.Equal(t, float32(0.5), s.Post.VignetteRadius)
	assert.Equal(t, 1, s.Post.MotionBlurSamples)
	assert.Equal(t, float32(1), s.Volumetric.Density)
	assert.Equal(t, VolumetricScreenSpace, s.Volumetric.Mode)
	assert.Equal(t, 1, s.Volumetric.UpdateInterval)
	assert.Equal(t, 0, s.Shadows.PCFRadius)
	assert.Equal(t, uint32(1), s.RayTracing.SamplesPerPixel)
}

func TestSettingsYAMLRoundTrip(t *testing.T) {
	s := DefaultSettings()
	s.Post = CinematicPostSettings()
	s.Quality.Tier = QualityHigh
	require.NoError(t, s.Validate())

	data, err := yaml.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tier: high")

	back, err := ParseSettings(data)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("post:\n  tone_mapping: aces\n"), 0644))
	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, ToneMappingACES, s.Post.ToneMapping)

	_, err = LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRayTracingPreset(t *testing.T) {
	assert.Equal(t, RayTracingMedium, RayTracingPreset("bogus").Preset)
	assert.Equal(t, uint32(4), RayTracingPreset("bogus").MaxBounces)
	assert.Equal(t, RayTracingCustom, RayTracingPreset(RayTracingCustom).Preset)

	ultra := RayTracingPreset(RayTracingUltra)
	low := RayTracingPreset(RayTracingLow)
	assert.Greater(t, ultra.SamplesPerPixel, low.SamplesPerPixel)
	assert.Greater(t, ultra.MaxRayDistance, low.MaxRayDistance)
}

func TestParseQualityTier(t *testing.T) {
	q, err := ParseQualityTier(" Ultra ")
	require.NoError(t, err)
	assert.Equal(t, QualityUltra, q)
	_, err = ParseQualityTier("max")
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Equal(t, "QualityTier(7)", QualityTier(7).String())
}
