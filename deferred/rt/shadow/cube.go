package shadow

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// PointNear is the near plane of point-light shadow faces.
const PointNear = 0.05

var cubeFaces = [6]struct {
	dir, up mgl32.Vec3
}{
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, -1}},
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, -1, 0}},
}

// CubeMap is a six-face linear-distance shadow map around a point light.
type CubeMap struct {
	Position mgl32.Vec3
	Far      float32
	Faces    [6]*DepthMap
	ViewProj [6]mgl32.Mat4
}

func NewCubeMap(size int) *CubeMap {
	c := &CubeMap{}
	for i := range c.Faces {
		c.Faces[i] = NewDepthMap(size)
	}
	return c
}

func (c *CubeMap) setLight(pos mgl32.Vec3, far float32) {
	c.Position = pos
	c.Far = max(far, PointNear*2)
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, PointNear, c.Far)
	for i, f := range cubeFaces {
		c.ViewProj[i] = proj.Mul4(mgl32.LookAtV(pos, pos.Add(f.dir), f.up))
	}
}

// FaceFor selects the face by the major axis of dir.
func FaceFor(dir mgl32.Vec3) int {
	ax, ay, az := math.Abs(float64(dir.X())), math.Abs(float64(dir.Y())), math.Abs(float64(dir.Z()))
	switch {
	case ax >= ay && ax >= az:
		if dir.X() >= 0 {
			return 0
		}
		return 1
	case ay >= az:
		if dir.Y() >= 0 {
			return 2
		}
		return 3
	default:
		if dir.Z() >= 0 {
			return 4
		}
		return 5
	}
}

// LinearDepth is the stored value for a point at distance d from the light.
func (c *CubeMap) LinearDepth(d float32) float32 {
	return (d - PointNear) / (c.Far - PointNear)
}

// Sample returns the PCF lit fraction for a world position.
func (c *CubeMap) Sample(p mgl32.Vec3, bias float32, r int) float32 {
	dir := p.Sub(c.Position)
	dist := dir.Len()
	if dist >= c.Far {
		return 1
	}
	face := FaceFor(dir)
	clip := c.ViewProj[face].Mul4x1(p.Vec4(1))
	if clip.W() <= 0 {
		return 1
	}
	uv := mgl32.Vec2{clip.X()/clip.W()*0.5 + 0.5, 0.5 - clip.Y()/clip.W()*0.5}
	return c.Faces[face].SamplePCF(uv, c.LinearDepth(dist), bias, r)
}
