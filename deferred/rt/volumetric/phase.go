package volumetric

import (
	"math"
)

// HenyeyGreenstein is the phase function for the angle between the light's
// propagation direction and the scattered direction. g > 0 favours forward
// scattering, g < 0 backward; g = 0 is isotropic 1/(4 pi).
func HenyeyGreenstein(cosTheta, g float32) float32 {
	g = min(max(g, -0.999), 0.999)
	g2 := g * g
	denom := 1 + g2 - 2*g*cosTheta
	if denom <= 0 {
		return 0
	}
	return (1 - g2) / (4 * math.Pi * float32(math.Pow(float64(denom), 1.5)))
}
