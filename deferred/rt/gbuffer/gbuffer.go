package gbuffer

import (
	"errors"
	"fmt"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidSize = errors.New("invalid g-buffer size")

// MaxDimension matches the largest 2D texture size the GPU backend requests.
const MaxDimension = 8192

// GBuffer is the fixed attachment set written by the geometry pass.
type GBuffer struct {
	Width  int
	Height int

	Albedo *core.Surface[mgl32.Vec4]
	Normal *core.Surface[mgl32.Vec2] // octahedral, [0,1]
	// MetalRough packs metallic, roughness, emissive scale and coverage.
	MetalRough *core.Surface[mgl32.Vec4]
	Motion     *core.Surface[mgl32.Vec2] // current uv - previous uv
	Depth      *core.Surface[float32]
}

func New(width, height int) (*GBuffer, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	g := &GBuffer{
		Width:      width,
		Height:     height,
		Albedo:     core.NewSurface[mgl32.Vec4](width, height),
		Normal:     core.NewSurface[mgl32.Vec2](width, height),
		MetalRough: core.NewSurface[mgl32.Vec4](width, height),
		Motion:     core.NewSurface[mgl32.Vec2](width, height),
		Depth:      core.NewSurface[float32](width, height),
	}
	g.Clear()
	return g, nil
}

func (g *GBuffer) Clear() {
	g.Albedo.Fill(mgl32.Vec4{})
	g.Normal.Fill(mgl32.Vec2{0.5, 0.5})
	g.MetalRough.Fill(mgl32.Vec4{})
	g.Motion.Fill(mgl32.Vec2{})
	g.Depth.Fill(1)
}

// Texel is the decoded content of one G-buffer pixel.
type Texel struct {
	Albedo    mgl32.Vec4
	Normal    mgl32.Vec3
	Metallic  float32
	Roughness float32
	Emissive  float32
	Motion    mgl32.Vec2
	Depth     float32
	Covered   bool
}

func (g *GBuffer) Fetch(x, y int) Texel {
	i := y*g.Width + x
	mr := g.MetalRough.Pix[i]
	return Texel{
		Albedo:    g.Albedo.Pix[i],
		Normal:    DecodeNormal(g.Normal.Pix[i]),
		Metallic:  mr[0],
		Roughness: mr[1],
		Emissive:  mr[2],
		Motion:    g.Motion.Pix[i],
		Depth:     g.Depth.Pix[i],
		Covered:   mr[3] > 0,
	}
}
