package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/gpu"
	"github.com/gekko3d/lumen/deferred/rt/pipeline"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

// App is the interactive viewer: the frame is rendered by the pipeline on
// the CPU, then culled again, graded and presented on the GPU.
type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	BufferManager *gpu.GpuBufferManager
	Pipeline      *pipeline.Pipeline
	Profiler      *pipeline.Profiler
	Scene         *lumen.ScenePreset
	Camera        *core.CameraState
	Settings      lumen.Settings

	Snapshots *pipeline.FilePresenter
	composer  *pipeline.Compositor
	last      *pipeline.FrameResult

	log      lumen.Logger
	overflow *lumen.OnceLogger

	MouseX, MouseY float64
	MouseCaptured  bool
	DebugMode      bool
	// CPUTiles shows the CPU culling grid in the tile overlay instead of
	// the GPU one.
	CPUTiles bool

	FrameIndex     uint64
	LastTime       float64
	LastRenderTime float64
	FrameCount     int
	FPS            float64
	FPSTime        float64
}

func NewApp(window *glfw.Window, settings lumen.Settings, scene *lumen.ScenePreset, log lumen.Logger) *App {
	log = lumen.OrNop(log)
	return &App{
		Window:    window,
		Settings:  settings,
		Scene:     scene,
		Camera:    CameraFromPreset(scene.Camera),
		Profiler:  pipeline.NewProfiler(),
		Snapshots: &pipeline.FilePresenter{Dir: "snapshots", Prefix: "view", Format: "png"},
		log:       log,
		overflow:  lumen.NewOnceLogger(log),
	}
}

// CameraFromPreset turns a look-at camera into the free-look state.
func CameraFromPreset(c lumen.CameraData) *core.CameraState {
	cam := core.NewCameraState()
	cam.Position = c.Position
	if dir := c.Target.Sub(c.Position); dir.Len() > 0 {
		dir = dir.Normalize()
		cam.Pitch = float32(math.Asin(float64(mgl32.Clamp(dir.Y(), -1, 1))))
		cam.Yaw = float32(math.Atan2(float64(dir.X()), float64(-dir.Z())))
	}
	if c.FovY > 0 {
		cam.FovY = mgl32.DegToRad(c.FovY)
	}
	if c.Near > 0 && c.Far > c.Near {
		cam.Near, cam.Far = c.Near, c.Far
	}
	return cam
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)

	a.BufferManager = gpu.NewGpuBufferManager(a.Device, a.log)
	if err := a.BufferManager.CreatePipelines(a.Config.Format); err != nil {
		return err
	}
	if err := a.BufferManager.CreateFrameTextures(uint32(width), uint32(height)); err != nil {
		return err
	}

	a.Pipeline, err = pipeline.New(a.Settings, width, height, a.log, pipeline.WithProfiler(a.Profiler))
	if err != nil {
		return err
	}
	a.composer = pipeline.NewCompositor(width, height)

	a.LastTime = glfw.GetTime()
	return nil
}

func (a *App) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	a.Config.Width = uint32(w)
	a.Config.Height = uint32(h)
	a.Surface.Configure(a.Adapter, a.Device, a.Config)
	if err := a.Pipeline.Resize(w, h); err != nil {
		a.log.Errorf("resize: %v", err)
	}
	if err := a.BufferManager.CreateFrameTextures(uint32(w), uint32(h)); err != nil {
		a.log.Errorf("resize: %v", err)
	}
	a.composer = pipeline.NewCompositor(w, h)
}

// Look applies a mouse delta in pixels to the camera while the cursor is
// captured.
func (a *App) Look(dx, dy float64) {
	if !a.MouseCaptured {
		return
	}
	a.Camera.Yaw += float32(dx) * a.Camera.Sensitivity
	a.Camera.Pitch -= float32(dy) * a.Camera.Sensitivity
	limit := float32(math.Pi/2 - 0.01)
	a.Camera.Pitch = mgl32.Clamp(a.Camera.Pitch, -limit, limit)
}

// Update moves the camera from the held keys.
func (a *App) Update() {
	now := glfw.GetTime()
	dt := float32(now - a.LastTime)
	a.LastTime = now

	step := a.Camera.Speed * dt
	if a.Window.GetKey(glfw.KeyLeftShift) == glfw.Press {
		step *= 4
	}
	fwd := a.Camera.GetForward()
	right := a.Camera.GetRight()
	moves := []struct {
		key glfw.Key
		dir mgl32.Vec3
	}{
		{glfw.KeyW, fwd},
		{glfw.KeyS, fwd.Mul(-1)},
		{glfw.KeyD, right},
		{glfw.KeyA, right.Mul(-1)},
		{glfw.KeyE, mgl32.Vec3{0, 1, 0}},
		{glfw.KeyQ, mgl32.Vec3{0, -1, 0}},
	}
	for _, m := range moves {
		if a.Window.GetKey(m.key) == glfw.Press {
			a.Camera.Position = a.Camera.Position.Add(m.dir.Mul(step))
		}
	}
}

func (a *App) Render(ctx context.Context) {
	w, h := int(a.Config.Width), int(a.Config.Height)
	if w == 0 || h == 0 {
		return
	}

	frame, err := a.Scene.Frame(w, h, a.FrameIndex)
	if err != nil {
		a.log.Errorf("scene: %v", err)
		return
	}
	frame.View = a.Camera.View(w, h)

	res, err := a.Pipeline.Render(ctx, frame)
	if err != nil {
		a.log.Errorf("render: %v", err)
		return
	}
	a.last = res
	a.FrameIndex++

	data := gpu.FrameData{
		Index:  res.Index,
		View:   frame.View,
		Lights: frame.Lights,
		Depth:  a.Pipeline.GBuffer().Depth,
		HDR:    res.Ungraded,
		Post:   a.Pipeline.Settings().Post,
	}
	if a.DebugMode {
		data.DebugMode = gpu.DebugTileMap
	}
	if a.CPUTiles {
		data.Grid = a.Pipeline.Grid()
	}
	if err := a.BufferManager.UpdateFrame(data); err != nil {
		a.log.Errorf("upload: %v", err)
		return
	}

	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.log.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.log.Errorf("CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.log.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}

	if err := a.BufferManager.Dispatch(encoder); err != nil {
		a.log.Errorf("dispatch: %v", err)
		return
	}

	rPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{0, 0, 0, 1},
		}},
	})
	a.BufferManager.DrawPresent(rPass)
	if err := rPass.End(); err != nil {
		a.log.Errorf("present pass End failed: %v", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.log.Errorf("encoder Finish failed: %v", err)
		return
	}
	a.Queue.Submit(cmd)
	a.Surface.Present()

	if counts, ok := a.BufferManager.ReadbackTileCounts(); ok && !a.CPUTiles {
		if st := gpu.SummarizeTileCounts(counts); st.Overflowed > 0 {
			a.overflow.Warnf("gpu culling: %d tiles exceeded the light limit", st.Overflowed)
		}
	}

	a.tickFPS(res.Stats.FrameTime)
}

func (a *App) tickFPS(frameTime time.Duration) {
	now := glfw.GetTime()
	if a.LastRenderTime > 0 {
		a.FrameCount++
		a.FPSTime += now - a.LastRenderTime
		if a.FPSTime >= 1.0 {
			a.FPS = float64(a.FrameCount) / a.FPSTime
			a.FrameCount = 0
			a.FPSTime = 0
			a.Window.SetTitle(fmt.Sprintf("lumen  %.1f fps  %v  %s", a.FPS, frameTime.Round(time.Microsecond), a.Pipeline.Variant().Tier))
			if a.DebugMode {
				a.log.Debugf("\n%s", a.Profiler)
			}
		}
	}
	a.LastRenderTime = now
}

// Snapshot writes the last display-referred frame through the snapshot
// presenter.
func (a *App) Snapshot(ctx context.Context) error {
	if a.last == nil {
		return fmt.Errorf("snapshot: no frame rendered yet")
	}
	img := a.composer.Compose(a.last.Color)
	if err := a.Snapshots.Present(ctx, a.last.Index, img); err != nil {
		return err
	}
	a.log.Infof("snapshot %s", a.Snapshots.Path(a.last.Index))
	return nil
}

func (a *App) Release() {
	if a.Pipeline != nil {
		a.Pipeline.Close()
	}
	if a.BufferManager != nil {
		a.BufferManager.Release()
	}
}
