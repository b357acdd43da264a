package volumetric

import (
	"math"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// DensityField returns the participating-medium density at a world position.
// Implementations must be safe for concurrent use.
type DensityField interface {
	Density(p mgl32.Vec3) float32
}

// Uniform is a constant-density medium.
type Uniform float32

func (u Uniform) Density(mgl32.Vec3) float32 { return float32(u) }

// HeightFog thins exponentially above BaseHeight and is modulated by a
// drifting trigonometric noise.
type HeightFog struct {
	Base       float32 // density at BaseHeight
	BaseHeight float32
	Falloff    float32 // per world unit above BaseHeight
	// Noise in [0,1] is the share of density modulated by the noise term.
	Noise      float32
	NoiseScale float32
	Offset     mgl32.Vec3 // wind * time
	Time       float32
}

func (h *HeightFog) Density(p mgl32.Vec3) float32 {
	d := h.Base
	if above := p.Y() - h.BaseHeight; above > 0 && h.Falloff > 0 {
		d *= float32(math.Exp(float64(-h.Falloff * above)))
	}
	if h.Noise > 0 {
		q := p.Add(h.Offset).Mul(h.NoiseScale)
		t := float64(h.Time)
		n := math.Sin(float64(q.X())*4+t*0.1) *
			math.Cos(float64(q.Y())*4+t*0.2) *
			math.Sin(float64(q.Z())*4+t*0.15)
		d *= 1 - h.Noise + h.Noise*float32(n*0.5+0.5)
	}
	return max(d, 0)
}

// NewField derives the frame's medium from settings and weather. Humidity
// thickens the fog up to twice the configured density.
func NewField(s lumen.VolumetricSettings, env core.Environment) DensityField {
	density := s.Density * (1 + mgl32.Clamp(env.Humidity, 0, 1))
	if s.BoundsMax[1] <= s.BoundsMin[1] {
		return Uniform(density)
	}
	return &HeightFog{
		Base:       density,
		BaseHeight: s.BoundsMin[1],
		Falloff:    0.08,
		Noise:      0.5,
		NoiseScale: 1.0 / 16,
		Offset:     env.Wind.Mul(env.Time),
		Time:       env.Time,
	}
}
