package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/cull"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func u32At(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func testView() core.ViewUniform {
	view := mgl32.LookAtV(mgl32.Vec3{0, 2, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 40.0/20.0, 0.1, 100)
	return core.NewViewUniform(view, proj, 40, 20, 0.1, 100)
}

func TestPackViewLayout(t *testing.T) {
	v := testView()
	b := PackView(v, 7, 3)
	require.Len(t, b, ViewSize)

	for i := 0; i < 16; i++ {
		assert.Equal(t, v.ViewProj[i], f32At(b, i*4))
		assert.Equal(t, v.InvProj[i], f32At(b, 256+i*4))
	}
	assert.InDelta(t, 2, f32At(b, 324), 1e-5) // cam_pos.y
	assert.Equal(t, float32(40), f32At(b, 336))
	assert.Equal(t, float32(20), f32At(b, 340))
	assert.InDelta(t, 1.0/40, f32At(b, 344), 1e-7)
	assert.Equal(t, float32(0.1), f32At(b, 352))
	assert.Equal(t, float32(100), f32At(b, 356))
	assert.Equal(t, uint32(7), u32At(b, 368))
	assert.Equal(t, uint32(3), u32At(b, 372))
	assert.Equal(t, uint32(3), u32At(b, 376)) // ceil(40/16)
	assert.Equal(t, uint32(2), u32At(b, 380)) // ceil(20/16)
}

func TestPackViewJitter(t *testing.T) {
	v := testView().WithJitter(mgl32.Vec2{0.25, -0.25})
	b := PackView(v, 0, 0)
	jvp := v.JitteredViewProj()
	for i := 0; i < 16; i++ {
		assert.Equal(t, jvp[i], f32At(b, i*4))
	}
	// inv_view_proj inverts the jittered matrix
	var inv mgl32.Mat4
	for i := range inv {
		inv[i] = f32At(b, 64+i*4)
	}
	ident, id := mgl32.Ident4(), inv.Mul4(jvp)
	assert.InDeltaSlice(t, ident[:], id[:], 1e-4)
	assert.Equal(t, float32(0.25), f32At(b, 360))
	assert.Equal(t, float32(-0.25), f32At(b, 364))
}

func TestPackLightsShadowSlots(t *testing.T) {
	sun := core.NewDirectionalLight(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 3)
	lamp := core.NewPointLight(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{1, 0.5, 0}, 10, 8)
	spot := core.NewSpotLight(mgl32.Vec3{0, 4, 0}, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 5, 12, 0.5)
	spot.CastShadows = true

	b := PackLights([]core.Light{sun, lamp, spot})
	require.Len(t, b, 3*LightSize)

	assert.Equal(t, float32(0), f32At(b, 60))
	assert.Equal(t, float32(-1), f32At(b, LightSize+60))
	assert.Equal(t, float32(1), f32At(b, 2*LightSize+60))

	// point light position and range
	assert.Equal(t, float32(3), f32At(b, LightSize+8))
	assert.Equal(t, float32(8), f32At(b, LightSize+12))
	// spot type and cos outer
	assert.Equal(t, float32(core.LightSpot), f32At(b, 2*LightSize+48))
	assert.InDelta(t, math.Cos(0.5), f32At(b, 2*LightSize+28), 1e-6)
}

func TestPackLightsEmpty(t *testing.T) {
	b := PackLights(nil)
	assert.Equal(t, make([]byte, LightSize), b)
}

func TestPackPost(t *testing.T) {
	s := lumen.DefaultPostSettings()
	s.ToneMapping = lumen.ToneMappingUncharted2
	s.Exposure = 1.5
	b := PackPost(s, 640, 360, DebugTileMap)
	require.Len(t, b, PostSize)
	assert.Equal(t, float32(1.5), f32At(b, 0))
	assert.Equal(t, s.Gamma, f32At(b, 4))
	assert.Equal(t, uint32(3), u32At(b, 32))
	assert.Equal(t, uint32(640), u32At(b, 36))
	assert.Equal(t, uint32(360), u32At(b, 40))
	assert.Equal(t, DebugTileMap, u32At(b, 44))
	assert.Equal(t, s.BloomThreshold, f32At(b, 52))
}

func TestPackTilesAndReadback(t *testing.T) {
	g := &cull.Grid{TilesX: 3, TilesY: 1, Tiles: make([]cull.TileLightList, 3)}
	g.Tiles[0].MinDepth, g.Tiles[0].MaxDepth = 1.5, 9
	g.Tiles[0].Append(4)
	g.Tiles[0].Append(2)
	for i := 0; i < cull.MaxLightsPerTile+10; i++ {
		g.Tiles[2].Append(uint32(i))
	}

	b := PackTiles(g)
	require.Len(t, b, 3*TileSize)
	assert.Equal(t, float32(1.5), f32At(b, 0))
	assert.Equal(t, float32(9), f32At(b, 4))
	assert.Equal(t, uint32(4), u32At(b, 16))
	assert.Equal(t, uint32(2), u32At(b, 20))

	counts := decodeTileCounts(b, 3)
	assert.Equal(t, []uint32{2, 0, cull.MaxLightsPerTile}, counts)
	last := 2*TileSize + 16 + 4*(cull.MaxLightsPerTile-1)
	assert.Equal(t, uint32(cull.MaxLightsPerTile-1), u32At(b, last))
}

func TestDecodeTileCountsShortBuffer(t *testing.T) {
	b := make([]byte, TileSize+4)
	binary.LittleEndian.PutUint32(b[8:], 5)
	assert.Equal(t, []uint32{5, 0}, decodeTileCounts(b, 2))
}

func TestSummarizeTileCounts(t *testing.T) {
	st := SummarizeTileCounts([]uint32{0, 3, 300, cull.MaxLightsPerTile})
	assert.Equal(t, 4, st.Tiles)
	assert.Equal(t, 3+2*cull.MaxLightsPerTile, st.Assigned)
	assert.Equal(t, 1, st.Overflowed)
}

func TestPackSurfaces(t *testing.T) {
	c := core.NewSurface[mgl32.Vec3](2, 1)
	c.Set(1, 0, mgl32.Vec3{1, 2, 3})
	b := PackHDR(c)
	require.Len(t, b, 32)
	assert.Equal(t, float32(3), f32At(b, 24))
	assert.Equal(t, float32(1), f32At(b, 28))

	d := core.NewSurface[float32](2, 2)
	d.Fill(1)
	d.Set(0, 1, 0.25)
	db := PackDepth(d)
	require.Len(t, db, 16)
	assert.Equal(t, float32(0.25), f32At(db, 8))
	assert.Equal(t, float32(1), f32At(db, 12))
}
