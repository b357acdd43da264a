package lighting

import (
	"math"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// MinRoughness keeps the GGX lobe away from a delta distribution.
const MinRoughness = 0.045

// DielectricF0 is the normal-incidence reflectance of non-metals.
const DielectricF0 = 0.04

// DistributionGGX is the Trowbridge-Reitz normal distribution with alpha =
// roughness^2.
func DistributionGGX(nh, roughness float32) float32 {
	a := roughness * roughness
	a2 := a * a
	d := nh*nh*(a2-1) + 1
	return a2 / (math.Pi * d * d)
}

// VisibilitySmithGGX is the height-correlated Smith term, already divided by
// 4 n.l n.v.
func VisibilitySmithGGX(nv, nl, roughness float32) float32 {
	a := roughness * roughness
	a2 := a * a
	ggxV := nl * sqrt32(nv*nv*(1-a2)+a2)
	ggxL := nv * sqrt32(nl*nl*(1-a2)+a2)
	denom := ggxV + ggxL
	if denom <= 0 {
		return 0
	}
	return 0.5 / denom
}

func FresnelSchlick(vh float32, f0 mgl32.Vec3) mgl32.Vec3 {
	f := pow5(1 - mgl32.Clamp(vh, 0, 1))
	return mgl32.Vec3{
		f0.X() + (1-f0.X())*f,
		f0.Y() + (1-f0.Y())*f,
		f0.Z() + (1-f0.Z())*f,
	}
}

// BaseReflectance interpolates F0 between the dielectric constant and albedo.
func BaseReflectance(albedo mgl32.Vec3, metallic float32) mgl32.Vec3 {
	d := float32(DielectricF0)
	return mgl32.Vec3{
		d + (albedo.X()-d)*metallic,
		d + (albedo.Y()-d)*metallic,
		d + (albedo.Z()-d)*metallic,
	}
}

// Surface is a reconstructed G-buffer sample.
type Surface struct {
	Position  mgl32.Vec3
	Normal    mgl32.Vec3
	Albedo    mgl32.Vec3
	Metallic  float32
	Roughness float32
}

// CookTorrance returns the reflected radiance factor (diffuse + specular)
// times n.l for unit light and view directions. The caller multiplies by the
// incoming radiance.
func CookTorrance(s Surface, v, l mgl32.Vec3) mgl32.Vec3 {
	nl := s.Normal.Dot(l)
	if nl <= 0 {
		return mgl32.Vec3{}
	}
	nv := max(s.Normal.Dot(v), 1e-4)
	h := v.Add(l)
	if h.Len() < 1e-6 {
		return mgl32.Vec3{}
	}
	h = h.Normalize()
	nh := max(s.Normal.Dot(h), 0)
	vh := max(v.Dot(h), 0)

	rough := max(s.Roughness, MinRoughness)
	f0 := BaseReflectance(s.Albedo, s.Metallic)
	F := FresnelSchlick(vh, f0)
	D := DistributionGGX(nh, rough)
	V := VisibilitySmithGGX(nv, nl, rough)

	spec := F.Mul(D * V)
	kd := (1 - s.Metallic) / math.Pi
	diffuse := mgl32.Vec3{
		(1 - F.X()) * kd * s.Albedo.X(),
		(1 - F.Y()) * kd * s.Albedo.Y(),
		(1 - F.Z()) * kd * s.Albedo.Z(),
	}
	return diffuse.Add(spec).Mul(nl)
}

// Attenuation returns the unit direction towards the light and the distance
// and cone falloff at p. Directional lights have constant attenuation 1.
func Attenuation(light core.Light, p mgl32.Vec3) (toLight mgl32.Vec3, atten float32) {
	if light.Type == core.LightDirectional {
		return light.Direction.Normalize().Mul(-1), 1
	}
	d := light.Position.Sub(p)
	dist2 := d.Dot(d)
	dist := sqrt32(dist2)
	if dist < 1e-6 || dist >= light.Range {
		return mgl32.Vec3{}, 0
	}
	toLight = d.Mul(1 / dist)

	ratio := dist / light.Range
	r4 := ratio * ratio * ratio * ratio
	window := mgl32.Clamp(1-r4, 0, 1)
	atten = window * window / max(dist2, 1e-4)

	if light.Type == core.LightSpot {
		cosOuter := float32(math.Cos(float64(light.SpotAngle)))
		cosInner := float32(math.Cos(float64(light.SpotAngle) * core.SpotInnerRatio))
		cd := light.Direction.Normalize().Dot(toLight.Mul(-1))
		atten *= smoothstep(cosOuter, cosInner, cd)
	}
	return toLight, atten
}

// EvaluateLight is the unshadowed direct contribution of one light.
func EvaluateLight(light core.Light, s Surface, v mgl32.Vec3) mgl32.Vec3 {
	l, atten := Attenuation(light, s.Position)
	if atten <= 0 {
		return mgl32.Vec3{}
	}
	brdf := CookTorrance(s, v, l)
	rad := light.Radiance().Mul(atten)
	return mgl32.Vec3{brdf.X() * rad.X(), brdf.Y() * rad.Y(), brdf.Z() * rad.Z()}
}

func smoothstep(e0, e1, x float32) float32 {
	if e1 == e0 {
		if x >= e1 {
			return 1
		}
		return 0
	}
	t := mgl32.Clamp((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(max(v, 0))))
}

func pow5(x float32) float32 {
	x2 := x * x
	return x2 * x2 * x
}
