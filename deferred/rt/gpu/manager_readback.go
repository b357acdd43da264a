package gpu

import (
	"encoding/binary"
	"sync"

	"github.com/gekko3d/lumen/deferred/rt/cull"

	"github.com/cogentcore/webgpu/wgpu"
)

// Readback states. A copy is only issued while idle, so at most one
// request is in flight.
const (
	readbackIdle = iota
	readbackCopy
	readbackMapping
	readbackMapped
)

// tileReadback copies the GPU tile buffer to a mappable buffer and decodes
// the per-tile light counts a frame or more later.
type tileReadback struct {
	mu    sync.Mutex
	state int
	buf   *wgpu.Buffer
	tiles int
	last  []uint32
}

func (r *tileReadback) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buf != nil {
		if r.state == readbackMapped {
			r.buf.Unmap()
		}
		r.buf.Release()
		r.buf = nil
	}
	r.state = readbackIdle
	r.last = nil
}

func (m *GpuBufferManager) requestTileReadback(encoder *wgpu.CommandEncoder) error {
	r := &m.readback
	tiles := int(m.TilesX * m.TilesY)
	size := uint64(tiles * TileSize)

	r.mu.Lock()
	state := r.state
	r.mu.Unlock()
	if state != readbackIdle {
		return nil
	}

	if r.buf == nil || r.tiles != tiles {
		r.release()
		buf, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Tile Readback",
			Size:  size,
			Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
		})
		if err != nil {
			return err
		}
		r.buf = buf
		r.tiles = tiles
	}

	encoder.CopyBufferToBuffer(m.TilesBuf, 0, r.buf, 0, size)

	r.mu.Lock()
	r.state = readbackCopy
	r.mu.Unlock()
	return nil
}

// ReadbackTileCounts returns the most recent raw per-tile light counts the
// GPU produced. Counts above cull.MaxLightsPerTile mark overflowed tiles.
// ok is false until the first readback completes.
func (m *GpuBufferManager) ReadbackTileCounts() (counts []uint32, ok bool) {
	r := &m.readback
	if r.buf == nil {
		return nil, false
	}

	r.mu.Lock()
	// The copy was submitted with the previous frame; start mapping now.
	if r.state == readbackCopy {
		r.state = readbackMapping
		r.buf.MapAsync(wgpu.MapModeRead, 0, r.buf.GetSize(), func(status wgpu.BufferMapAsyncStatus) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if status == wgpu.BufferMapAsyncStatusSuccess {
				r.state = readbackMapped
			} else {
				r.state = readbackIdle
			}
		})
	}

	if r.state == readbackMapped {
		size := r.buf.GetSize()
		data := r.buf.GetMappedRange(0, uint(size))
		r.last = decodeTileCounts(data, r.tiles)
		r.buf.Unmap()
		r.state = readbackIdle
	}
	last := r.last
	r.mu.Unlock()

	return last, last != nil
}

func decodeTileCounts(data []byte, tiles int) []uint32 {
	counts := make([]uint32, tiles)
	for i := range counts {
		off := i*TileSize + 8
		if off+4 > len(data) {
			break
		}
		counts[i] = binary.LittleEndian.Uint32(data[off:])
	}
	return counts
}

// SummarizeTileCounts turns raw GPU counts into the same statistics the CPU
// culler reports.
func SummarizeTileCounts(counts []uint32) cull.Stats {
	st := cull.Stats{Tiles: len(counts)}
	for _, c := range counts {
		st.Assigned += int(min(c, cull.MaxLightsPerTile))
		if c > cull.MaxLightsPerTile {
			st.Overflowed++
		}
	}
	return st
}
