package pipeline

import (
	"github.com/gekko3d/lumen"
)

// Variant is the statically specialized configuration selected by a quality
// tier. Its limits cap the user settings; they never raise them.
type Variant struct {
	Tier                lumen.QualityTier
	PCFRadius           int
	MaxShadowResolution int
	MaxMarchSteps       int
	Reflections         bool
	MaxRaySamples       uint32
	MaxBounces          uint32
	VolumeTexture       bool
}

var variants = [...]Variant{
	lumen.QualityLow:    {Tier: lumen.QualityLow, PCFRadius: 0, MaxShadowResolution: 512, MaxMarchSteps: 16, MaxRaySamples: 1, MaxBounces: 1},
	lumen.QualityMedium: {Tier: lumen.QualityMedium, PCFRadius: 1, MaxShadowResolution: 1024, MaxMarchSteps: 32, Reflections: true, MaxRaySamples: 1, MaxBounces: 2},
	lumen.QualityHigh:   {Tier: lumen.QualityHigh, PCFRadius: 1, MaxShadowResolution: 2048, MaxMarchSteps: 48, Reflections: true, MaxRaySamples: 2, MaxBounces: 4, VolumeTexture: true},
	lumen.QualityUltra:  {Tier: lumen.QualityUltra, PCFRadius: 2, MaxShadowResolution: 4096, MaxMarchSteps: 64, Reflections: true, MaxRaySamples: 8, MaxBounces: 16, VolumeTexture: true},
}

// VariantFor returns the variant of a tier; out-of-range tiers clamp.
func VariantFor(tier lumen.QualityTier) Variant {
	tier = min(max(tier, lumen.QualityLow), lumen.QualityUltra)
	return variants[tier]
}

// Apply returns s with the variant's limits in force.
func (v Variant) Apply(s lumen.Settings) lumen.Settings {
	s.Shadows.PCFRadius = min(s.Shadows.PCFRadius, v.PCFRadius)
	s.Shadows.Resolution = min(s.Shadows.Resolution, v.MaxShadowResolution)
	s.Shadows.PointResolution = min(s.Shadows.PointResolution, v.MaxShadowResolution/2)
	s.Volumetric.Steps = min(s.Volumetric.Steps, v.MaxMarchSteps)
	if !v.VolumeTexture {
		s.Volumetric.Mode = lumen.VolumetricScreenSpace
	}
	s.RayTracing.Enabled = s.RayTracing.Enabled && v.Reflections
	s.RayTracing.SamplesPerPixel = min(s.RayTracing.SamplesPerPixel, v.MaxRaySamples)
	s.RayTracing.MaxBounces = min(s.RayTracing.MaxBounces, v.MaxBounces)
	return s
}
