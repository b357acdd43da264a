package pipeline

import (
	"image"
	"image/color"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
)

// Compositor converts the display-referred frame into an 8-bit image of the
// presentation size, resampling when the render resolution differs.
type Compositor struct {
	Width  int
	Height int

	frame  *image.RGBA
	output *image.RGBA
}

func NewCompositor(width, height int) *Compositor {
	return &Compositor{Width: width, Height: height}
}

// ToRGBA quantizes a [0,1] surface into img, which must have the same size.
func ToRGBA(src *core.Surface[mgl32.Vec3], img *image.RGBA) {
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			c := src.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: quantize(c.X()), G: quantize(c.Y()), B: quantize(c.Z()), A: 255})
		}
	}
}

func quantize(v float32) uint8 {
	if v != v {
		return 0
	}
	return uint8(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}

// Compose returns the presentation image. It is reused by the next call.
func (c *Compositor) Compose(src *core.Surface[mgl32.Vec3]) *image.RGBA {
	if c.frame == nil || c.frame.Rect.Dx() != src.Width || c.frame.Rect.Dy() != src.Height {
		c.frame = image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	}
	ToRGBA(src, c.frame)
	if c.Width <= 0 || c.Height <= 0 || (c.Width == src.Width && c.Height == src.Height) {
		return c.frame
	}
	if c.output == nil || c.output.Rect.Dx() != c.Width || c.output.Rect.Dy() != c.Height {
		c.output = image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	}
	draw.CatmullRom.Scale(c.output, c.output.Bounds(), c.frame, c.frame.Bounds(), draw.Src, nil)
	return c.output
}
