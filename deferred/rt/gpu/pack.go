package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/cull"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ViewSize  = 384
	LightSize = 64
	PostSize  = 64
	TileSize  = 16 + 4*cull.MaxLightsPerTile
)

// Debug modes understood by the present shader.
const (
	DebugNone    uint32 = 0
	DebugTileMap uint32 = 1
)

// PackView lays out the per-frame view uniform.
//
//	struct View {
//	  view_proj, inv_view_proj, prev_view_proj, view, inv_proj: mat4x4<f32>; -- 0..320
//	  cam_pos: vec4<f32>;   -- 320
//	  viewport: vec4<f32>;  -- 336 (w, h, 1/w, 1/h)
//	  clip: vec4<f32>;      -- 352 (near, far, jitter x, jitter y)
//	  frame, light_count, tiles_x, tiles_y: u32; -- 368
//	} -> 384 bytes
func PackView(v core.ViewUniform, frame uint64, lightCount int) []byte {
	buf := make([]byte, 0, ViewSize)
	buf = append(buf, mat4ToBytes(v.JitteredViewProj())...)
	buf = append(buf, mat4ToBytes(v.JitteredInvViewProj())...)
	buf = append(buf, mat4ToBytes(v.PrevViewProj)...)
	buf = append(buf, mat4ToBytes(v.View)...)
	buf = append(buf, mat4ToBytes(v.InvProj)...)
	buf = append(buf, vec3ToBytesPadded(v.CameraPos)...)

	w, h := float32(v.Width), float32(v.Height)
	var invW, invH float32
	if w > 0 {
		invW = 1 / w
	}
	if h > 0 {
		invH = 1 / h
	}
	buf = append(buf, vec4ToBytes([4]float32{w, h, invW, invH})...)
	buf = append(buf, vec4ToBytes([4]float32{v.Near, v.Far, v.Jitter.X(), v.Jitter.Y()})...)

	tx, ty := cull.TileCounts(max(v.Width, 0), max(v.Height, 0))
	buf = append(buf, uint32ToBytes(uint32(frame))...)
	buf = append(buf, uint32ToBytes(uint32(lightCount))...)
	buf = append(buf, uint32ToBytes(tx)...)
	buf = append(buf, uint32ToBytes(ty)...)
	return buf
}

// PackLights writes one 64-byte record per light. Shadow-casting lights get
// consecutive slots in list order; the rest get -1. An empty list still
// produces one zeroed record since storage bindings cannot be empty.
func PackLights(lights []core.Light) []byte {
	if len(lights) == 0 {
		return make([]byte, LightSize)
	}
	buf := make([]byte, 0, len(lights)*LightSize)
	slot := 0
	for _, l := range lights {
		s := -1
		if l.CastShadows {
			s = slot
			slot++
		}
		g := l.GPU(s)
		buf = append(buf, vec4ToBytes(g.Position)...)
		buf = append(buf, vec4ToBytes(g.Direction)...)
		buf = append(buf, vec4ToBytes(g.Color)...)
		buf = append(buf, vec4ToBytes(g.Params)...)
	}
	return buf
}

// PackPost lays out the grade parameters.
//
//	struct Post {
//	  exposure, gamma, contrast, saturation: f32;                            -- 0
//	  brightness, chromatic, vignette_strength, vignette_radius: f32;        -- 16
//	  tone_mapping, width, height, debug_mode: u32;                          -- 32
//	  bloom_intensity, bloom_threshold, taa_blend, pad: f32;                 -- 48
//	} -> 64 bytes
func PackPost(s lumen.PostSettings, width, height int, debugMode uint32) []byte {
	buf := make([]byte, 0, PostSize)
	buf = append(buf, vec4ToBytes([4]float32{s.Exposure, s.Gamma, s.Contrast, s.Saturation})...)
	buf = append(buf, vec4ToBytes([4]float32{s.Brightness, s.ChromaticAberration, s.VignetteStrength, s.VignetteRadius})...)
	buf = append(buf, uint32ToBytes(uint32(s.ToneMapping))...)
	buf = append(buf, uint32ToBytes(uint32(max(width, 0)))...)
	buf = append(buf, uint32ToBytes(uint32(max(height, 0)))...)
	buf = append(buf, uint32ToBytes(debugMode)...)
	buf = append(buf, vec4ToBytes([4]float32{s.BloomIntensity, s.BloomThreshold, s.TAABlend, 0})...)
	return buf
}

// PackTiles serializes a CPU culling grid in the shader's Tile layout. The
// stored count is clamped to the index capacity.
func PackTiles(g *cull.Grid) []byte {
	if g == nil || len(g.Tiles) == 0 {
		return make([]byte, TileSize)
	}
	buf := make([]byte, len(g.Tiles)*TileSize)
	for i := range g.Tiles {
		t := &g.Tiles[i]
		rec := buf[i*TileSize:]
		binary.LittleEndian.PutUint32(rec[0:], math.Float32bits(t.MinDepth))
		binary.LittleEndian.PutUint32(rec[4:], math.Float32bits(t.MaxDepth))
		binary.LittleEndian.PutUint32(rec[8:], uint32(t.Count()))
		for j, idx := range t.Lights() {
			binary.LittleEndian.PutUint32(rec[16+j*4:], idx)
		}
	}
	return buf
}

// PackHDR writes a color surface as one vec4<f32> per pixel.
func PackHDR(s *core.Surface[mgl32.Vec3]) []byte {
	buf := make([]byte, len(s.Pix)*16)
	for i, c := range s.Pix {
		o := i * 16
		binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(c.X()))
		binary.LittleEndian.PutUint32(buf[o+4:], math.Float32bits(c.Y()))
		binary.LittleEndian.PutUint32(buf[o+8:], math.Float32bits(c.Z()))
		binary.LittleEndian.PutUint32(buf[o+12:], math.Float32bits(1))
	}
	return buf
}

// PackDepth writes a depth surface as tightly packed r32float rows.
func PackDepth(s *core.Surface[float32]) []byte {
	buf := make([]byte, len(s.Pix)*4)
	for i, d := range s.Pix {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(d))
	}
	return buf
}

// Helpers
func mat4ToBytes(m mgl32.Mat4) []byte {
	buf := make([]byte, 64)
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func vec3ToBytesPadded(v mgl32.Vec3) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v[2]))
	return buf
}

func vec4ToBytes(v [4]float32) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(v[3]))
	return buf
}

func uint32ToBytes(u uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, u)
	return buf
}
