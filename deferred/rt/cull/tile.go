package cull

import (
	"sync/atomic"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// TileSize is the width and height in pixels of each screen-space tile.
const TileSize = 16

// MaxLightsPerTile is the capacity of a tile's light index array. Matches
// beyond it are dropped.
const MaxLightsPerTile = 256

// TileCounts computes the number of tiles in each dimension for a given screen
// resolution and the configured TileSize.
func TileCounts(screenWidth, screenHeight int) (tileCountX, tileCountY uint32) {
	tileCountX = (uint32(screenWidth) + TileSize - 1) / TileSize
	tileCountY = (uint32(screenHeight) + TileSize - 1) / TileSize
	return
}

// TileLightList is the per-tile culling record. The counter may run past
// MaxLightsPerTile; only the first MaxLightsPerTile appends are stored.
type TileLightList struct {
	MinDepth float32 // view-space distance
	MaxDepth float32
	count    atomic.Uint32
	Indices  [MaxLightsPerTile]uint32
}

// Append adds a light index. It reports false when the tile is full and the
// index was dropped.
func (t *TileLightList) Append(light uint32) bool {
	slot := t.count.Add(1) - 1
	if slot >= MaxLightsPerTile {
		return false
	}
	t.Indices[slot] = light
	return true
}

// Count is the number of stored indices, never above MaxLightsPerTile.
func (t *TileLightList) Count() int {
	return int(min(t.count.Load(), MaxLightsPerTile))
}

func (t *TileLightList) Overflowed() bool {
	return t.count.Load() > MaxLightsPerTile
}

func (t *TileLightList) Lights() []uint32 {
	return t.Indices[:t.Count()]
}

func (t *TileLightList) Reset() {
	t.count.Store(0)
	t.MinDepth = 0
	t.MaxDepth = 0
}

// TileFrustum holds six view-space planes (xyz normal pointing inside, w
// offset): left, right, top, bottom, near, far.
type TileFrustum [6]mgl32.Vec4

// BuildTileFrustum derives the view-space frustum of the pixel rectangle
// [x0,x1) x [y0,y1) bounded by view distances minDepth and maxDepth.
//
// Side planes pass through the eye and two adjacent corners unprojected at the
// far plane. Each normal is checked against a point known to be inside the
// tile (center ray at mid depth) and flipped if it points outward, so the
// result does not depend on corner winding or handedness.
func BuildTileFrustum(invProj mgl32.Mat4, width, height, x0, y0, x1, y1 int, minDepth, maxDepth float32) TileFrustum {
	u0 := float32(x0) / float32(width)
	u1 := float32(x1) / float32(width)
	v0 := float32(y0) / float32(height)
	v1 := float32(y1) / float32(height)

	corners := [4]mgl32.Vec3{
		core.UnprojectWith(invProj, mgl32.Vec2{u0, v0}, 1),
		core.UnprojectWith(invProj, mgl32.Vec2{u1, v0}, 1),
		core.UnprojectWith(invProj, mgl32.Vec2{u1, v1}, 1),
		core.UnprojectWith(invProj, mgl32.Vec2{u0, v1}, 1),
	}
	center := corners[0].Add(corners[1]).Add(corners[2]).Add(corners[3]).Mul(0.25)
	mid := 0.5 * (minDepth + maxDepth)
	inside := center.Mul(mid / -center.Z())

	var f TileFrustum
	// left, right, top, bottom
	edges := [4][2]int{{3, 0}, {1, 2}, {0, 1}, {2, 3}}
	for i, e := range edges {
		n := corners[e[0]].Cross(corners[e[1]]).Normalize()
		if n.Dot(inside) < 0 {
			n = n.Mul(-1)
		}
		f[i] = n.Vec4(0)
	}
	f[4] = mgl32.Vec4{0, 0, -1, -minDepth}
	f[5] = mgl32.Vec4{0, 0, 1, maxDepth}
	return f
}

// SphereIntersects reports whether a view-space sphere touches the frustum.
// A sphere is rejected only when it lies entirely behind one plane.
func (f *TileFrustum) SphereIntersects(center mgl32.Vec3, radius float32) bool {
	for _, p := range f {
		if p.Vec3().Dot(center)+p.W() < -radius {
			return false
		}
	}
	return true
}
