package gbuffer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// EncodeNormal maps a unit vector to [0,1]^2 with an octahedral projection.
func EncodeNormal(n mgl32.Vec3) mgl32.Vec2 {
	x, y, z := float64(n.X()), float64(n.Y()), float64(n.Z())
	l1 := math.Abs(x) + math.Abs(y) + math.Abs(z)
	if l1 == 0 || math.IsNaN(l1) {
		return mgl32.Vec2{0.5, 0.5}
	}
	x, y, z = x/l1, y/l1, z/l1
	if z < 0 {
		x, y = (1-math.Abs(y))*signNotZero(x), (1-math.Abs(x))*signNotZero(y)
	}
	return mgl32.Vec2{float32(x*0.5 + 0.5), float32(y*0.5 + 0.5)}
}

// DecodeNormal inverts EncodeNormal. The result is always unit length.
func DecodeNormal(e mgl32.Vec2) mgl32.Vec3 {
	x := float64(e.X())*2 - 1
	y := float64(e.Y())*2 - 1
	z := 1 - math.Abs(x) - math.Abs(y)
	t := math.Max(-z, 0)
	if x >= 0 {
		x -= t
	} else {
		x += t
	}
	if y >= 0 {
		y -= t
	} else {
		y += t
	}
	l := math.Sqrt(x*x + y*y + z*z)
	return mgl32.Vec3{float32(x / l), float32(y / l), float32(z / l)}
}

func signNotZero(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
