package app

import (
	"testing"

	"github.com/gekko3d/lumen"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCameraFromPresetLooksAtTarget(t *testing.T) {
	cases := []lumen.CameraData{
		{Position: mgl32.Vec3{0, 4, 12}, Target: mgl32.Vec3{0, 1, 0}, FovY: 50, Near: 0.1, Far: 300},
		{Position: mgl32.Vec3{5, 1, 0}, Target: mgl32.Vec3{0, 1, 0}, FovY: 70, Near: 0.5, Far: 50},
		{Position: mgl32.Vec3{-3, 2, -3}, Target: mgl32.Vec3{1, 0, 2}},
	}
	for _, c := range cases {
		cam := CameraFromPreset(c)
		want := c.Target.Sub(c.Position).Normalize()
		got := cam.GetForward()
		assert.InDelta(t, 1, got.Dot(want), 1e-5, "%v", c)
		assert.Equal(t, c.Position, cam.Position)
	}
}

func TestCameraFromPresetLens(t *testing.T) {
	cam := CameraFromPreset(lumen.CameraData{Position: mgl32.Vec3{0, 0, 5}, FovY: 45, Near: 0.2, Far: 80})
	assert.InDelta(t, mgl32.DegToRad(45), cam.FovY, 1e-6)
	assert.Equal(t, float32(0.2), cam.Near)
	assert.Equal(t, float32(80), cam.Far)

	// invalid clip planes keep the defaults
	cam = CameraFromPreset(lumen.CameraData{Position: mgl32.Vec3{0, 0, 5}, Near: 5, Far: 1})
	assert.Equal(t, float32(0.1), cam.Near)
	assert.Equal(t, float32(200), cam.Far)
}
