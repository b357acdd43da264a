package volumetric

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidVolume = errors.New("invalid volume texture")

// maxVoxels bounds a volume at 256^3.
const maxVoxels = 256 * 256 * 256

// VolumeTexture is a world-aligned 3D grid. Each voxel holds the radiance
// scattered towards the camera per unit scattering (rgb) and the density (a).
type VolumeTexture struct {
	W, H, D int
	Min     mgl32.Vec3
	Max     mgl32.Vec3
	Voxels  []mgl32.Vec4
}

func NewVolumeTexture(size [3]int, lo, hi mgl32.Vec3) (*VolumeTexture, error) {
	w, h, d := size[0], size[1], size[2]
	if w <= 0 || h <= 0 || d <= 0 || w*h*d > maxVoxels {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidVolume, w, h, d)
	}
	if lo.X() >= hi.X() || lo.Y() >= hi.Y() || lo.Z() >= hi.Z() {
		return nil, fmt.Errorf("%w: empty bounds %v..%v", ErrInvalidVolume, lo, hi)
	}
	return &VolumeTexture{W: w, H: h, D: d, Min: lo, Max: hi, Voxels: make([]mgl32.Vec4, w*h*d)}, nil
}

func (v *VolumeTexture) index(x, y, z int) int {
	return (z*v.H+y)*v.W + x
}

// Center returns the world position of a voxel center.
func (v *VolumeTexture) Center(x, y, z int) mgl32.Vec3 {
	ext := v.Max.Sub(v.Min)
	return mgl32.Vec3{
		v.Min.X() + (float32(x)+0.5)/float32(v.W)*ext.X(),
		v.Min.Y() + (float32(y)+0.5)/float32(v.H)*ext.Y(),
		v.Min.Z() + (float32(z)+0.5)/float32(v.D)*ext.Z(),
	}
}

// Populate evaluates the medium at every voxel center as seen from eye.
// Depth slices are filled concurrently.
func (v *VolumeTexture) Populate(ctx context.Context, field DensityField, src Source, eye mgl32.Vec3) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for z := 0; z < v.D; z++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for y := 0; y < v.H; y++ {
				for x := 0; x < v.W; x++ {
					p := v.Center(x, y, z)
					density := field.Density(p)
					var in mgl32.Vec3
					if density > densityEpsilon {
						dir := p.Sub(eye)
						if dir.Len() > 1e-6 {
							dir = dir.Normalize()
						}
						in = src.InScatter(p, dir)
					}
					v.Voxels[v.index(x, y, z)] = in.Vec4(density)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Blend moves v towards fresh by alpha; alpha 1 copies fresh.
func (v *VolumeTexture) Blend(fresh *VolumeTexture, alpha float32) {
	for i := range v.Voxels {
		v.Voxels[i] = v.Voxels[i].Mul(1 - alpha).Add(fresh.Voxels[i].Mul(alpha))
	}
}

// Sample reads the volume trilinearly; outside the bounds it is empty.
func (v *VolumeTexture) Sample(p mgl32.Vec3) mgl32.Vec4 {
	ext := v.Max.Sub(v.Min)
	f := [3]float32{
		(p.X()-v.Min.X())/ext.X()*float32(v.W) - 0.5,
		(p.Y()-v.Min.Y())/ext.Y()*float32(v.H) - 0.5,
		(p.Z()-v.Min.Z())/ext.Z()*float32(v.D) - 0.5,
	}
	dims := [3]int{v.W, v.H, v.D}
	var i0 [3]int
	var frac [3]float32
	for a := 0; a < 3; a++ {
		if f[a] < -0.5 || f[a] > float32(dims[a])-0.5 {
			return mgl32.Vec4{}
		}
		fl := float32(math.Floor(float64(f[a])))
		i0[a] = int(fl)
		frac[a] = f[a] - fl
	}
	var out mgl32.Vec4
	for c := 0; c < 8; c++ {
		w := float32(1)
		var idx [3]int
		for a := 0; a < 3; a++ {
			bit := (c >> a) & 1
			idx[a] = min(max(i0[a]+bit, 0), dims[a]-1)
			if bit == 1 {
				w *= frac[a]
			} else {
				w *= 1 - frac[a]
			}
		}
		if w == 0 {
			continue
		}
		out = out.Add(v.Voxels[v.index(idx[0], idx[1], idx[2])].Mul(w))
	}
	return out
}

func (v *VolumeTexture) Density(p mgl32.Vec3) float32 {
	return v.Sample(p).W()
}

// InScatter ignores dir: the phase term was baked from the camera position
// at populate time.
func (v *VolumeTexture) InScatter(p, _ mgl32.Vec3) mgl32.Vec3 {
	return v.Sample(p).Vec3()
}
