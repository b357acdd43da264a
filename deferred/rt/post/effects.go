package post

import (
	"context"
	"math"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/gbuffer"
	"github.com/go-gl/mathgl/mgl32"
)

// MotionBlur averages samples along each pixel's motion vector, centered on
// the pixel. Pixels moving less than half a pixel are copied.
func MotionBlur(ctx context.Context, gb *gbuffer.GBuffer, src, dst *core.Surface[mgl32.Vec3], samples int, scale float32) error {
	samples = max(samples, 2)
	w, h := float32(src.Width), float32(src.Height)
	return forRows(ctx, src.Height, func(y int) {
		for x := 0; x < src.Width; x++ {
			m := gb.Motion.At(x, y).Mul(scale)
			if math.Hypot(float64(m.X()*w), float64(m.Y()*h)) < 0.5 {
				dst.Set(x, y, src.At(x, y))
				continue
			}
			uv := mgl32.Vec2{(float32(x) + 0.5) / w, (float32(y) + 0.5) / h}
			var sum mgl32.Vec3
			for i := 0; i < samples; i++ {
				t := float32(i)/float32(samples-1) - 0.5
				sum = sum.Add(core.SampleVec3(src, uv.Sub(m.Mul(t))))
			}
			dst.Set(x, y, sum.Mul(1/float32(samples)))
		}
	})
}

// CircleOfConfusion returns the thin-lens blur diameter in pixels for a
// point at viewDist world units (meters), clamped to s.MaxCoC.
func CircleOfConfusion(viewDist float32, s lumen.PostSettings, imageHeight int) float32 {
	if s.FStop <= 0 || s.FocalLength <= 0 || s.SensorHeight <= 0 {
		return 0
	}
	f := float64(s.FocalLength)
	focus := float64(s.FocusDistance) * 1000
	dist := float64(viewDist) * 1000
	if focus <= f || dist <= 0 {
		return 0
	}
	aperture := f / float64(s.FStop)
	cocMM := math.Abs(aperture * f * (dist - focus) / (dist * (focus - f)))
	px := cocMM / float64(s.SensorHeight) * float64(imageHeight)
	return float32(min(px, float64(s.MaxCoC)))
}

// dofTaps is the number of samples on the gather disc.
const dofTaps = 24

// DepthOfField gathers a disc whose diameter is each pixel's circle of
// confusion. Samples sharper than their distance to the center do not bleed
// onto blurrier neighbours.
func DepthOfField(ctx context.Context, view core.ViewUniform, gb *gbuffer.GBuffer, src, dst *core.Surface[mgl32.Vec3], s lumen.PostSettings) error {
	coc := core.NewSurface[float32](src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			d := gb.Depth.At(x, y)
			dist := view.Far
			if !core.IsSky(d) {
				dist = view.LinearizeDepth(d)
			}
			coc.Set(x, y, CircleOfConfusion(dist, s, src.Height))
		}
	}
	golden := math.Pi * (3 - math.Sqrt(5))
	return forRows(ctx, src.Height, func(y int) {
		for x := 0; x < src.Width; x++ {
			r := coc.At(x, y) / 2
			if r < 0.5 {
				dst.Set(x, y, src.At(x, y))
				continue
			}
			sum := src.At(x, y)
			wsum := float32(1)
			for i := 1; i < dofTaps; i++ {
				rad := r * float32(math.Sqrt(float64(i)/dofTaps))
				a := float64(i) * golden
				sx := x + int(math.Round(float64(rad)*math.Cos(a)))
				sy := y + int(math.Round(float64(rad)*math.Sin(a)))
				if !src.InBounds(sx, sy) {
					continue
				}
				if coc.At(sx, sy)/2 < rad*0.5 {
					continue
				}
				sum = sum.Add(src.At(sx, sy))
				wsum++
			}
			dst.Set(x, y, sum.Mul(1/wsum))
		}
	})
}

// bloomKernel is a normalized 9-tap Gaussian (sigma 2).
var bloomKernel = func() [9]float32 {
	var k [9]float32
	var sum float32
	for i := range k {
		d := float64(i - 4)
		k[i] = float32(math.Exp(-d * d / 8))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}()

// Bloom extracts the energy above threshold at half resolution, blurs it
// separably and adds it back scaled by intensity. src is modified in place.
func Bloom(ctx context.Context, src *core.Surface[mgl32.Vec3], threshold, intensity float32) error {
	if intensity <= 0 {
		return nil
	}
	hw, hh := max(src.Width/2, 1), max(src.Height/2, 1)
	bright := core.NewSurface[mgl32.Vec3](hw, hh)
	tmp := core.NewSurface[mgl32.Vec3](hw, hh)
	if err := forRows(ctx, hh, func(y int) {
		for x := 0; x < hw; x++ {
			uv := mgl32.Vec2{(float32(x) + 0.5) / float32(hw), (float32(y) + 0.5) / float32(hh)}
			c := core.SampleVec3(src, uv)
			l := core.Luminance(c)
			if l <= threshold || l <= 0 {
				continue
			}
			bright.Set(x, y, c.Mul((l-threshold)/l))
		}
	}); err != nil {
		return err
	}
	blur := func(in, out *core.Surface[mgl32.Vec3], dx, dy int) error {
		return forRows(ctx, hh, func(y int) {
			for x := 0; x < hw; x++ {
				var sum mgl32.Vec3
				for i, k := range bloomKernel {
					sum = sum.Add(in.AtClamped(x+(i-4)*dx, y+(i-4)*dy).Mul(k))
				}
				out.Set(x, y, sum)
			}
		})
	}
	if err := blur(bright, tmp, 1, 0); err != nil {
		return err
	}
	if err := blur(tmp, bright, 0, 1); err != nil {
		return err
	}
	return forRows(ctx, src.Height, func(y int) {
		for x := 0; x < src.Width; x++ {
			uv := mgl32.Vec2{(float32(x) + 0.5) / float32(src.Width), (float32(y) + 0.5) / float32(src.Height)}
			src.Set(x, y, src.At(x, y).Add(core.SampleVec3(bright, uv).Mul(intensity)))
		}
	})
}
