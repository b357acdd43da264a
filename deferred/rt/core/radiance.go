package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxRadiance is the largest value representable in a half-float target.
const MaxRadiance = 65504

// SanitizeRadiance replaces NaN and Inf components with zero and clamps the
// rest to [0, MaxRadiance].
func SanitizeRadiance(c mgl32.Vec3) mgl32.Vec3 {
	for i := range c {
		c[i] = SanitizeFloat(c[i])
	}
	return c
}

func SanitizeFloat(v float32) float32 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) || v < 0 {
		return 0
	}
	if v > MaxRadiance {
		return MaxRadiance
	}
	return v
}

// Luminance uses Rec. 709 weights.
func Luminance(c mgl32.Vec3) float32 {
	return 0.2126*c.X() + 0.7152*c.Y() + 0.0722*c.Z()
}
