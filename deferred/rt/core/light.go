package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type LightType uint32

const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
)

func (t LightType) String() string {
	switch t {
	case LightDirectional:
		return "directional"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	}
	return "unknown"
}

// Light is one entry of the per-frame light list. Direction is the direction
// light travels (from the light into the scene).
type Light struct {
	Type        LightType
	Position    mgl32.Vec3
	Direction   mgl32.Vec3
	Color       mgl32.Vec3
	Intensity   float32
	Range       float32
	SpotAngle   float32 // outer cone half-angle, radians
	CastShadows bool
	// ShadowViewProj is used by spot lights that cast shadows. Zero means
	// the shadow system derives one from position, direction and angle.
	ShadowViewProj mgl32.Mat4
}

func NewDirectionalLight(dir, color mgl32.Vec3, intensity float32) Light {
	return Light{
		Type:        LightDirectional,
		Direction:   dir.Normalize(),
		Color:       color,
		Intensity:   intensity,
		CastShadows: true,
	}
}

func NewPointLight(pos, color mgl32.Vec3, intensity, lightRange float32) Light {
	return Light{
		Type:      LightPoint,
		Position:  pos,
		Color:     color,
		Intensity: intensity,
		Range:     lightRange,
	}
}

func NewSpotLight(pos, dir, color mgl32.Vec3, intensity, lightRange, angle float32) Light {
	return Light{
		Type:      LightSpot,
		Position:  pos,
		Direction: dir.Normalize(),
		Color:     color,
		Intensity: intensity,
		Range:     lightRange,
		SpotAngle: angle,
	}
}

// Radiance is the unattenuated emitted radiance.
func (l Light) Radiance() mgl32.Vec3 {
	return l.Color.Mul(l.Intensity)
}

// BoundingSphere returns the world-space influence sphere. Directional
// lights report infinite = true.
func (l Light) BoundingSphere() (center mgl32.Vec3, radius float32, infinite bool) {
	if l.Type == LightDirectional {
		return mgl32.Vec3{}, float32(math.Inf(1)), true
	}
	return l.Position, l.Range, false
}

// Valid reports whether the light can contribute at all.
func (l Light) Valid() bool {
	if l.Intensity <= 0 || !finite3(l.Color) {
		return false
	}
	switch l.Type {
	case LightDirectional:
		return l.Direction.Len() > 0
	case LightPoint:
		return l.Range > 0 && finite3(l.Position)
	case LightSpot:
		return l.Range > 0 && l.Direction.Len() > 0 && l.SpotAngle > 0 && finite3(l.Position)
	}
	return false
}

// GPULight is the storage-buffer layout of a light.
type GPULight struct {
	Position  [4]float32 // xyz, range
	Direction [4]float32 // xyz, cos outer angle
	Color     [4]float32 // rgb, intensity
	Params    [4]float32 // type, cos inner angle, cast shadows, shadow slot
}

func (l Light) GPU(shadowSlot int) GPULight {
	cosOuter := float32(math.Cos(float64(l.SpotAngle)))
	cosInner := float32(math.Cos(float64(l.SpotAngle) * SpotInnerRatio))
	shadows := float32(0)
	if l.CastShadows {
		shadows = 1
	}
	return GPULight{
		Position:  [4]float32{l.Position.X(), l.Position.Y(), l.Position.Z(), l.Range},
		Direction: [4]float32{l.Direction.X(), l.Direction.Y(), l.Direction.Z(), cosOuter},
		Color:     [4]float32{l.Color.X(), l.Color.Y(), l.Color.Z(), l.Intensity},
		Params:    [4]float32{float32(l.Type), cosInner, shadows, float32(shadowSlot)},
	}
}

// SpotInnerRatio places the inner cone at a fraction of the outer angle.
const SpotInnerRatio = 0.9

func finite3(v mgl32.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}
