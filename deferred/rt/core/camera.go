package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraState is a free-look camera (Y-up, looking down -Z at zero yaw).
type CameraState struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	FovY        float32 // radians
	Near        float32
	Far         float32
	Speed       float32
	Sensitivity float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position:    mgl32.Vec3{0, 2, 10},
		Yaw:         0,
		Pitch:       0,
		FovY:        mgl32.DegToRad(60),
		Near:        0.1,
		Far:         200,
		Speed:       10.0,
		Sensitivity: 0.003,
	}
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
	}
}

func (c *CameraState) GetRight() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		0,
		float32(math.Sin(float64(c.Yaw))),
	}
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	eye := c.Position
	target := eye.Add(c.GetForward())
	return mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0})
}

func (c *CameraState) GetProjection(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(c.FovY, aspect, c.Near, c.Far)
}

// View builds the per-frame view uniform for a render target of the given size.
func (c *CameraState) View(width, height int) ViewUniform {
	aspect := float32(width) / float32(max(height, 1))
	return NewViewUniform(c.GetViewMatrix(), c.GetProjection(aspect), width, height, c.Near, c.Far)
}

// ExtractFrustum extracts the 6 planes of the frustum from the view-projection matrix.
// Returns planes in order: Left, Right, Bottom, Top, Near, Far.
// Plane is Ax + By + Cz + D = 0, normal pointing inside.
func ExtractFrustum(vp mgl32.Mat4) [6]mgl32.Vec4 {
	var planes [6]mgl32.Vec4
	row := func(r int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(r, 0), vp.At(r, 1), vp.At(r, 2), vp.At(r, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	planes[0] = r3.Add(r0) // left
	planes[1] = r3.Sub(r0) // right
	planes[2] = r3.Add(r1) // bottom
	planes[3] = r3.Sub(r1) // top
	planes[4] = r3.Add(r2) // near (GL depth -1..1)
	planes[5] = r3.Sub(r2) // far

	for i := 0; i < 6; i++ {
		length := float32(math.Sqrt(float64(planes[i][0]*planes[i][0] + planes[i][1]*planes[i][1] + planes[i][2]*planes[i][2])))
		if length > 0 {
			planes[i] = planes[i].Mul(1.0 / length)
		}
	}
	return planes
}

// AABBInFrustum checks if an AABB is visible within the frustum defined by 6 planes.
// Planes are expected to be in Ax+By+Cz+D=0 form, with the normal pointing INSIDE.
func AABBInFrustum(aabb [2]mgl32.Vec3, planes [6]mgl32.Vec4) bool {
	for i := 0; i < 6; i++ {
		plane := planes[i]
		// Most-inside corner; if it is behind the plane the whole box is.
		var p mgl32.Vec3
		for a := 0; a < 3; a++ {
			if plane[a] > 0 {
				p[a] = aabb[1][a]
			} else {
				p[a] = aabb[0][a]
			}
		}
		dist := plane[0]*p[0] + plane[1]*p[1] + plane[2]*p[2] + plane[3]
		if dist < 0 {
			return false
		}
	}
	return true
}

// TransformAABB returns the world-space bounds of a local box under m.
func TransformAABB(local [2]mgl32.Vec3, m mgl32.Mat4) [2]mgl32.Vec3 {
	minB, maxB := local[0], local[1]
	inf := float32(math.Inf(1))
	wMin := mgl32.Vec3{inf, inf, inf}
	wMax := mgl32.Vec3{-inf, -inf, -inf}
	for i := 0; i < 8; i++ {
		c := mgl32.Vec3{minB.X(), minB.Y(), minB.Z()}
		if i&1 != 0 {
			c[0] = maxB.X()
		}
		if i&2 != 0 {
			c[1] = maxB.Y()
		}
		if i&4 != 0 {
			c[2] = maxB.Z()
		}
		wc := m.Mul4x1(c.Vec4(1.0)).Vec3()
		for a := 0; a < 3; a++ {
			wMin[a] = min(wMin[a], wc[a])
			wMax[a] = max(wMax[a], wc[a])
		}
	}
	return [2]mgl32.Vec3{wMin, wMax}
}
