package post

import (
	"context"
	"math"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Exposure multiplies by 2^stops.
func Exposure(c mgl32.Vec3, stops float32) mgl32.Vec3 {
	return c.Mul(float32(math.Exp2(float64(stops))))
}

func Contrast(c mgl32.Vec3, k float32) mgl32.Vec3 {
	return mgl32.Vec3{0.5 + (c.X()-0.5)*k, 0.5 + (c.Y()-0.5)*k, 0.5 + (c.Z()-0.5)*k}
}

// Saturation lerps from the pixel's luminance (s = 0) to the pixel (s = 1).
func Saturation(c mgl32.Vec3, s float32) mgl32.Vec3 {
	l := core.Luminance(c)
	return mgl32.Vec3{l + (c.X()-l)*s, l + (c.Y()-l)*s, l + (c.Z()-l)*s}
}

func Brightness(c mgl32.Vec3, b float32) mgl32.Vec3 {
	return c.Mul(b)
}

// Vignette is the radial falloff 1 - (d/radius)^(2*strength), d being the
// distance of uv from the screen center. Non-positive strength disables it.
func Vignette(uv mgl32.Vec2, strength, radius float32) float32 {
	if strength <= 0 || radius <= 0 {
		return 1
	}
	d := uv.Sub(mgl32.Vec2{0.5, 0.5}).Len()
	return mgl32.Clamp(1-float32(math.Pow(float64(d/radius), float64(2*strength))), 0, 1)
}

func Gamma(c mgl32.Vec3, gamma float32) mgl32.Vec3 {
	if gamma <= 0 {
		return c
	}
	inv := 1 / float64(gamma)
	return mgl32.Vec3{
		float32(math.Pow(float64(max(c.X(), 0)), inv)),
		float32(math.Pow(float64(max(c.Y(), 0)), inv)),
		float32(math.Pow(float64(max(c.Z(), 0)), inv)),
	}
}

// ChromaticAberration samples red and blue displaced away from and towards
// the screen center by strength times the offset from the center.
func ChromaticAberration(src *core.Surface[mgl32.Vec3], uv mgl32.Vec2, strength float32) mgl32.Vec3 {
	if strength == 0 {
		return core.SampleVec3(src, uv)
	}
	off := uv.Sub(mgl32.Vec2{0.5, 0.5}).Mul(strength)
	return mgl32.Vec3{
		core.SampleVec3(src, uv.Add(off)).X(),
		core.SampleVec3(src, uv).Y(),
		core.SampleVec3(src, uv.Sub(off)).Z(),
	}
}

// GradePixel runs the display transform on an exposed HDR color: tone
// mapping, contrast, saturation, brightness, vignette, gamma. The result is
// clamped to [0,1].
func GradePixel(c mgl32.Vec3, uv mgl32.Vec2, s lumen.PostSettings) mgl32.Vec3 {
	c = ToneMap(c, s.ToneMapping)
	c = Contrast(c, s.Contrast)
	c = Saturation(c, s.Saturation)
	c = Brightness(c, s.Brightness)
	c = c.Mul(Vignette(uv, s.VignetteStrength, s.VignetteRadius))
	c = Gamma(c, s.Gamma)
	return mgl32.Vec3{mgl32.Clamp(c.X(), 0, 1), mgl32.Clamp(c.Y(), 0, 1), mgl32.Clamp(c.Z(), 0, 1)}
}

// Grade applies exposure and chromatic aberration to src, then GradePixel,
// writing display-referred color to dst.
func Grade(ctx context.Context, s lumen.PostSettings, src, dst *core.Surface[mgl32.Vec3]) error {
	return forRows(ctx, src.Height, func(y int) {
		for x := 0; x < src.Width; x++ {
			uv := mgl32.Vec2{(float32(x) + 0.5) / float32(src.Width), (float32(y) + 0.5) / float32(src.Height)}
			var c mgl32.Vec3
			if s.ChromaticAberration != 0 {
				c = ChromaticAberration(src, uv, s.ChromaticAberration)
			} else {
				c = src.At(x, y)
			}
			dst.Set(x, y, GradePixel(core.SanitizeRadiance(Exposure(c, s.Exposure)), uv, s))
		}
	})
}
