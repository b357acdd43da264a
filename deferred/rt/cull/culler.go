package cull

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrClosed = errors.New("culler closed")

// Grid is the per-frame culling output. Tiles are row-major.
type Grid struct {
	TilesX int
	TilesY int
	Tiles  []TileLightList
}

// TileAt returns the tile containing pixel (x, y).
func (g *Grid) TileAt(x, y int) *TileLightList {
	return &g.Tiles[(y/TileSize)*g.TilesX+x/TileSize]
}

type Stats struct {
	Tiles      int
	Assigned   int // stored indices over all tiles
	Overflowed int // tiles that dropped lights
}

// Culler bins lights into screen tiles. Tile rows are dispatched to a worker
// pool that runs until Close; tiles never share state.
type Culler struct {
	pool     worker.DynamicWorkerPool
	workers  int
	closed   bool
	log      lumen.Logger
	overflow *lumen.OnceLogger
	grid     Grid
	taskID   int
}

func NewCuller(settings lumen.CullingSettings, log lumen.Logger) *Culler {
	workers := settings.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU()-1, 1)
	}
	log = lumen.OrNop(log)
	return &Culler{
		pool:     worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		workers:  workers,
		log:      log,
		overflow: lumen.NewOnceLogger(log),
	}
}

func (c *Culler) Workers() int { return c.workers }

// Close stops the worker pool. Cull fails with ErrClosed afterwards.
func (c *Culler) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.pool.Stop()
}

type viewLight struct {
	center   mgl32.Vec3
	radius   float32
	infinite bool
}

// Cull recomputes every tile for the frame. depth is the G-buffer depth
// attachment; lights is the frame's light list and stored indices refer to it.
func (c *Culler) Cull(ctx context.Context, view core.ViewUniform, depth *core.Surface[float32], lights []core.Light) (*Grid, Stats, error) {
	if c.closed {
		return nil, Stats{}, ErrClosed
	}
	tx, ty := TileCounts(view.Width, view.Height)
	n := int(tx * ty)
	if cap(c.grid.Tiles) < n {
		c.grid.Tiles = make([]TileLightList, n)
	}
	c.grid.Tiles = c.grid.Tiles[:n]
	c.grid.TilesX, c.grid.TilesY = int(tx), int(ty)

	vl := make([]viewLight, len(lights))
	for i, l := range lights {
		center, radius, inf := l.BoundingSphere()
		vl[i] = viewLight{
			center:   view.View.Mul4x1(center.Vec4(1)).Vec3(),
			radius:   radius,
			infinite: inf,
		}
	}

	var (
		wg       sync.WaitGroup
		assigned atomic.Int64
		overflow atomic.Int64
	)
	for row := 0; row < int(ty); row++ {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, Stats{}, err
		}
		wg.Add(1)
		r := row
		c.taskID++
		c.pool.SubmitTask(worker.Task{
			ID: c.taskID,
			Do: func() (any, error) {
				defer wg.Done()
				for col := 0; col < int(tx); col++ {
					tile := &c.grid.Tiles[r*int(tx)+col]
					cullTile(tile, view, depth, vl, col, r)
					assigned.Add(int64(tile.Count()))
					if tile.Overflowed() {
						overflow.Add(1)
					}
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	st := Stats{Tiles: n, Assigned: int(assigned.Load()), Overflowed: int(overflow.Load())}
	if st.Overflowed > 0 {
		c.overflow.Warnf("%d tiles exceeded %d lights; extra lights dropped", st.Overflowed, MaxLightsPerTile)
	}
	return &c.grid, st, nil
}

// TileDepthBounds returns the view-distance range of geometry in the tile.
// Tiles with no geometry use the whole view range.
func TileDepthBounds(view core.ViewUniform, depth *core.Surface[float32], x0, y0, x1, y1 int) (float32, float32) {
	minD := float32(1)
	maxD := float32(0)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			d := depth.At(x, y)
			if core.IsSky(d) {
				continue
			}
			minD = min(minD, d)
			maxD = max(maxD, d)
		}
	}
	if minD > maxD {
		return view.Near, view.Far
	}
	return view.LinearizeDepth(minD), view.LinearizeDepth(maxD)
}

func cullTile(tile *TileLightList, view core.ViewUniform, depth *core.Surface[float32], lights []viewLight, col, row int) {
	tile.Reset()
	x0, y0 := col*TileSize, row*TileSize
	x1, y1 := min(x0+TileSize, view.Width), min(y0+TileSize, view.Height)
	tile.MinDepth, tile.MaxDepth = TileDepthBounds(view, depth, x0, y0, x1, y1)
	f := BuildTileFrustum(view.InvProj, view.Width, view.Height, x0, y0, x1, y1, tile.MinDepth, tile.MaxDepth)
	for i, l := range lights {
		if l.infinite || f.SphereIntersects(l.center, l.radius) {
			if !tile.Append(uint32(i)) {
				return
			}
		}
	}
}
