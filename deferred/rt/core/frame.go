package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// MaxLights bounds the global per-frame light list.
const MaxLights = 1024

type Drawable struct {
	Mesh      *Mesh
	Transform Transform
	// PrevTransform is last frame's transform; zero means the drawable did not move.
	PrevTransform Transform
	MaterialIndex int
}

func (d *Drawable) Model() mgl32.Mat4 {
	return d.Transform.ObjectToWorld()
}

func (d *Drawable) PrevModel() mgl32.Mat4 {
	if d.PrevTransform.IsZero() {
		return d.Transform.ObjectToWorld()
	}
	return d.PrevTransform.ObjectToWorld()
}

func (d *Drawable) WorldAABB() [2]mgl32.Vec3 {
	return TransformAABB(d.Mesh.LocalBounds(), d.Model())
}

// Environment carries weather and time-of-day parameters.
type Environment struct {
	SkyColor mgl32.Vec3 // zero selects the configured sky color
	// Humidity in [0,1] thickens the participating medium.
	Humidity float32
	// Time in seconds animates the medium.
	Time float32
	Wind mgl32.Vec3
}

// FrameInput is everything the pipeline consumes for one frame. It replaces
// any ambient scene state: nothing but history survives between frames.
type FrameInput struct {
	Index       uint64
	View        ViewUniform
	Lights      []Light
	Drawables   []Drawable
	Materials   []Material
	Environment Environment
	// GeometryVersion changes whenever drawable geometry or placement does.
	GeometryVersion uint64
}

// NormalizeReport describes what Normalize had to discard.
type NormalizeReport struct {
	LightsTruncated int
	InvalidLights   int
}

// Normalize drops invalid lights and truncates the list to MaxLights.
func (f *FrameInput) Normalize() NormalizeReport {
	var rep NormalizeReport
	kept := f.Lights[:0:0]
	for _, l := range f.Lights {
		if !l.Valid() {
			rep.InvalidLights++
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) > MaxLights {
		rep.LightsTruncated = len(kept) - MaxLights
		kept = kept[:MaxLights]
	}
	f.Lights = kept
	return rep
}

// Material resolves a material index, falling back to the default material.
func (f *FrameInput) Material(i int) Material {
	if i < 0 || i >= len(f.Materials) {
		return DefaultMaterial()
	}
	return f.Materials[i]
}

// DirectionalLight returns the first directional light, if any.
func (f *FrameInput) DirectionalLight() (Light, bool) {
	for _, l := range f.Lights {
		if l.Type == LightDirectional {
			return l, true
		}
	}
	return Light{}, false
}
