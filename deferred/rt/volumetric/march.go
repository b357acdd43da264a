package volumetric

import (
	"math"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/lighting"
	"github.com/gekko3d/lumen/deferred/rt/shadow"
	"github.com/go-gl/mathgl/mgl32"
)

// MinTransmittance ends a march early; the rest of the ray contributes
// less than one percent.
const MinTransmittance = 0.01

const (
	densityEpsilon = 1e-4
	maxStepGrowth  = 4
)

// Source supplies the radiance scattered towards the viewer at p per unit
// scattering coefficient, for a view ray travelling along dir.
type Source interface {
	InScatter(p, dir mgl32.Vec3) mgl32.Vec3
}

// LightSource evaluates the frame's lights at every sample.
type LightSource struct {
	Lights     []core.Light
	Anisotropy float32
	// Shadows may be nil.
	Shadows shadow.Sampler
	View    core.ViewUniform
}

func (l *LightSource) InScatter(p, dir mgl32.Vec3) mgl32.Vec3 {
	var sum mgl32.Vec3
	for i, light := range l.Lights {
		toLight, atten := lighting.Attenuation(light, p)
		if atten <= 0 {
			continue
		}
		phase := HenyeyGreenstein(dir.Dot(toLight), l.Anisotropy)
		vis := float32(1)
		if l.Shadows != nil && light.CastShadows {
			vis = l.Shadows.Visibility(i, p, toLight, l.View.ViewDepth(p))
			if vis <= 0 {
				continue
			}
		}
		sum = sum.Add(light.Radiance().Mul(atten * phase * vis))
	}
	return sum
}

// Marcher integrates scattering along view rays through a bounded box.
//
// Each occupied step adds Scattering*in*density*h*T to the scattered light.
// The linear form then applies T *= 1-density*h; the exponential form
// applies T *= exp(-Absorption*h).
type Marcher struct {
	Field  DensityField
	Source Source
	// Scattering scales the accumulated in-scatter.
	Scattering float32
	// Absorption is the extinction per unit length of the exponential form.
	Absorption float32
	// Steps is the hard budget of density samples per ray.
	Steps       int
	MaxDistance float32
	BoundsMin   mgl32.Vec3
	BoundsMax   mgl32.Vec3
	Exponential bool
	// Observer, when set, sees every step after transmittance is updated.
	Observer func(step int, t, transmittance float32)
}

type Result struct {
	Scattered     mgl32.Vec3
	Transmittance float32
	Steps         int
	EarlyExit     bool
}

// Composite applies a march result to the color behind it.
func (r Result) Composite(scene mgl32.Vec3) mgl32.Vec3 {
	return core.SanitizeRadiance(scene.Mul(r.Transmittance).Add(r.Scattered))
}

// March integrates from origin along the unit direction dir up to maxT.
func (m *Marcher) March(origin, dir mgl32.Vec3, maxT float32) Result {
	res := Result{Transmittance: 1}
	t0, t1, ok := clipBox(origin, dir, m.BoundsMin, m.BoundsMax)
	if !ok || m.Steps <= 0 {
		return res
	}
	t0 = max(t0, 0)
	t1 = min(t1, maxT, m.MaxDistance)
	if t1 <= t0 {
		return res
	}

	base := (t1 - t0) / float32(m.Steps)
	step := base
	t := t0
	for res.Steps < m.Steps && t < t1 {
		h := min(step, t1-t)
		p := origin.Add(dir.Mul(t + 0.5*h))
		density := m.Field.Density(p)
		res.Steps++
		t += h

		if density <= densityEpsilon {
			step = min(step*2, maxStepGrowth*base)
			if m.Observer != nil {
				m.Observer(res.Steps, t, res.Transmittance)
			}
			continue
		}
		step = base

		in := m.Source.InScatter(p, dir)
		res.Scattered = res.Scattered.Add(core.SanitizeRadiance(in.Mul(m.Scattering * density * h * res.Transmittance)))
		if m.Exponential {
			res.Transmittance *= float32(math.Exp(float64(-m.Absorption * h)))
		} else {
			res.Transmittance *= mgl32.Clamp(1-density*h, 0, 1)
		}
		if m.Observer != nil {
			m.Observer(res.Steps, t, res.Transmittance)
		}
		if res.Transmittance < MinTransmittance {
			res.EarlyExit = true
			break
		}
	}
	return res
}

// clipBox returns the parametric interval of the ray inside [lo, hi].
func clipBox(o, d, lo, hi mgl32.Vec3) (float32, float32, bool) {
	tNear := float32(math.Inf(-1))
	tFar := float32(math.Inf(1))
	for a := 0; a < 3; a++ {
		if d[a] == 0 {
			if o[a] < lo[a] || o[a] > hi[a] {
				return 0, 0, false
			}
			continue
		}
		inv := 1 / d[a]
		t0 := (lo[a] - o[a]) * inv
		t1 := (hi[a] - o[a]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tNear = max(tNear, t0)
		tFar = min(tFar, t1)
	}
	if tFar < max(tNear, 0) {
		return 0, 0, false
	}
	return tNear, tFar, true
}
