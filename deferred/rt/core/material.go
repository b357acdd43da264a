package core

import "github.com/go-gl/mathgl/mgl32"

type Material struct {
	BaseColor mgl32.Vec4 // linear RGBA
	Roughness float32
	Metalness float32
	// Emissive scales BaseColor into emitted radiance.
	Emissive float32
}

func NewMaterial(baseColor mgl32.Vec4, roughness, metalness float32) Material {
	return Material{
		BaseColor: baseColor,
		Roughness: roughness,
		Metalness: metalness,
	}
}

// MaterialFromRGBA8 converts an sRGB 8-bit color into a linear material.
func MaterialFromRGBA8(c [4]uint8, roughness, metalness float32) Material {
	lin := func(v uint8) float32 {
		f := float32(v) / 255
		return mgl32.Clamp(f*f, 0, 1)
	}
	return NewMaterial(mgl32.Vec4{lin(c[0]), lin(c[1]), lin(c[2]), float32(c[3]) / 255}, roughness, metalness)
}

// Helper for default white
func DefaultMaterial() Material {
	return Material{
		BaseColor: mgl32.Vec4{1, 1, 1, 1},
		Roughness: 1.0,
		Metalness: 0.0,
	}
}
