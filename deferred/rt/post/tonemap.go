package post

import (
	"github.com/gekko3d/lumen"
	"github.com/go-gl/mathgl/mgl32"
)

// ACES is the Narkowicz fit of the ACES filmic curve, clamped to [0,1].
func ACES(x float32) float32 {
	const (
		a = 2.51
		b = 0.03
		c = 2.43
		d = 0.59
		e = 0.14
	)
	x = max(x, 0)
	return mgl32.Clamp(x*(a*x+b)/(x*(c*x+d)+e), 0, 1)
}

func Reinhard(x float32) float32 {
	x = max(x, 0)
	return x / (1 + x)
}

// Hable's filmic curve parameters.
const (
	hableA     = 0.15
	hableB     = 0.50
	hableC     = 0.10
	hableD     = 0.20
	hableE     = 0.02
	hableF     = 0.30
	hableWhite = 11.2
	hableBias  = 2.0
)

func hable(x float32) float32 {
	return (x*(hableA*x+hableC*hableB)+hableD*hableE)/(x*(hableA*x+hableB)+hableD*hableF) - hableE/hableF
}

// Uncharted2 is Hable's operator with exposure bias 2, normalized so the
// white point maps to 1.
func Uncharted2(x float32) float32 {
	x = max(x, 0)
	return mgl32.Clamp(hable(x*hableBias)/hable(hableWhite), 0, 1)
}

// ToneMap applies op per channel. ToneMappingNone passes values through.
func ToneMap(c mgl32.Vec3, op lumen.ToneMapping) mgl32.Vec3 {
	var f func(float32) float32
	switch op {
	case lumen.ToneMappingACES:
		f = ACES
	case lumen.ToneMappingReinhard:
		f = Reinhard
	case lumen.ToneMappingUncharted2:
		f = Uncharted2
	default:
		return c
	}
	return mgl32.Vec3{f(c.X()), f(c.Y()), f(c.Z())}
}
