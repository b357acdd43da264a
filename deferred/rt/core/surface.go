package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Surface is a screen- or map-sized 2D attachment, row-major from the top-left.
type Surface[T any] struct {
	Width  int
	Height int
	Pix    []T
}

func NewSurface[T any](width, height int) *Surface[T] {
	return &Surface[T]{Width: width, Height: height, Pix: make([]T, width*height)}
}

func (s *Surface[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.Width && y < s.Height
}

func (s *Surface[T]) At(x, y int) T {
	return s.Pix[y*s.Width+x]
}

// AtClamped reads with clamp-to-edge addressing.
func (s *Surface[T]) AtClamped(x, y int) T {
	x = min(max(x, 0), s.Width-1)
	y = min(max(y, 0), s.Height-1)
	return s.Pix[y*s.Width+x]
}

func (s *Surface[T]) Set(x, y int, v T) {
	s.Pix[y*s.Width+x] = v
}

func (s *Surface[T]) Fill(v T) {
	for i := range s.Pix {
		s.Pix[i] = v
	}
}

func (s *Surface[T]) Clone() *Surface[T] {
	out := &Surface[T]{Width: s.Width, Height: s.Height, Pix: make([]T, len(s.Pix))}
	copy(out.Pix, s.Pix)
	return out
}

// CopyFrom copies o into s; sizes must match.
func (s *Surface[T]) CopyFrom(o *Surface[T]) {
	copy(s.Pix, o.Pix)
}

func (s *Surface[T]) SameSize(w, h int) bool {
	return s != nil && s.Width == w && s.Height == h
}

// SampleVec3 bilinearly samples s at normalized uv with clamp-to-edge.
func SampleVec3(s *Surface[mgl32.Vec3], uv mgl32.Vec2) mgl32.Vec3 {
	fx := uv.X()*float32(s.Width) - 0.5
	fy := uv.Y()*float32(s.Height) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	a := s.AtClamped(x0, y0)
	b := s.AtClamped(x0+1, y0)
	c := s.AtClamped(x0, y0+1)
	d := s.AtClamped(x0+1, y0+1)
	top := a.Mul(1 - tx).Add(b.Mul(tx))
	bot := c.Mul(1 - tx).Add(d.Mul(tx))
	return top.Mul(1 - ty).Add(bot.Mul(ty))
}

// SampleFloat bilinearly samples a scalar surface.
func SampleFloat(s *Surface[float32], uv mgl32.Vec2) float32 {
	fx := uv.X()*float32(s.Width) - 0.5
	fy := uv.Y()*float32(s.Height) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	top := s.AtClamped(x0, y0)*(1-tx) + s.AtClamped(x0+1, y0)*tx
	bot := s.AtClamped(x0, y0+1)*(1-tx) + s.AtClamped(x0+1, y0+1)*tx
	return top*(1-ty) + bot*ty
}

// NearestUV returns the pixel containing uv and whether it lies on the surface.
func NearestUV(w, h int, uv mgl32.Vec2) (x, y int, ok bool) {
	if uv.X() < 0 || uv.Y() < 0 || uv.X() >= 1 || uv.Y() >= 1 {
		return 0, 0, false
	}
	return int(uv.X() * float32(w)), int(uv.Y() * float32(h)), true
}
