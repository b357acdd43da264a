package gpu

import (
	"errors"
	"fmt"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/gekko3d/lumen/deferred/rt/cull"
	"github.com/gekko3d/lumen/deferred/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cogentcore/webgpu/wgpu"
)

const (
	HeadroomLights = 16 * LightSize
	HeadroomTiles  = 64 * TileSize
)

var ErrNotReady = errors.New("gpu resources not created")

// FrameData is everything the GPU half of a frame consumes. Depth and HDR
// come from the CPU pipeline's G-buffer and post chain.
type FrameData struct {
	Index     uint64
	View      core.ViewUniform
	Lights    []core.Light
	Depth     *core.Surface[float32]
	HDR       *core.Surface[mgl32.Vec3]
	Post      lumen.PostSettings
	DebugMode uint32
	// Grid, when set, replaces GPU light culling with the CPU result.
	Grid *cull.Grid
}

// GpuBufferManager owns the device buffers, textures and pipelines of the
// GPU frame: light culling, display grade and the present blit.
type GpuBufferManager struct {
	Device *wgpu.Device
	log    lumen.Logger

	ViewBuf   *wgpu.Buffer
	LightsBuf *wgpu.Buffer
	TilesBuf  *wgpu.Buffer
	PostBuf   *wgpu.Buffer
	HDRBuf    *wgpu.Buffer

	DepthTexture *wgpu.Texture
	DepthView    *wgpu.TextureView
	FrameTexture *wgpu.Texture
	FrameView    *wgpu.TextureView
	Sampler      *wgpu.Sampler

	CullPipeline    *wgpu.ComputePipeline
	GradePipeline   *wgpu.ComputePipeline
	PresentPipeline *wgpu.RenderPipeline

	CullBindGroup    *wgpu.BindGroup
	GradeBindGroup   *wgpu.BindGroup
	PresentBindGroup *wgpu.BindGroup

	Width, Height  uint32
	TilesX, TilesY uint32

	gpuCull       bool
	bindingsDirty bool
	readback      tileReadback
}

func NewGpuBufferManager(device *wgpu.Device, log lumen.Logger) *GpuBufferManager {
	return &GpuBufferManager{
		Device: device,
		log:    lumen.OrNop(log),
	}
}

// ensureBuffer uploads data, recreating the buffer when it is missing or too
// small. It reports whether a new buffer was created, which invalidates any
// bind group referencing the old one.
func (m *GpuBufferManager) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) (bool, error) {
	neededSize := uint64(len(data) + headroom)
	if neededSize%4 != 0 {
		neededSize += 4 - (neededSize % 4)
	}

	current := *buf
	if current == nil || current.GetSize() < neededSize {
		if current != nil {
			current.Release()
		}

		newBuf, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            name,
			Size:             neededSize,
			Usage:            usage | wgpu.BufferUsageCopyDst,
			MappedAtCreation: false,
		})
		if err != nil {
			*buf = nil
			return false, fmt.Errorf("create %s: %w", name, err)
		}
		*buf = newBuf

		if len(data) > 0 {
			m.Device.GetQueue().WriteBuffer(*buf, 0, data)
		}
		return true, nil
	}
	if len(data) > 0 {
		m.Device.GetQueue().WriteBuffer(*buf, 0, data)
	}
	return false, nil
}

func (m *GpuBufferManager) shaderModule(stage shaders.Stage) (*wgpu.ShaderModule, error) {
	// naga reports readable diagnostics before the driver sees the source
	if _, err := shaders.Compile(stage); err != nil {
		return nil, err
	}
	src, err := shaders.Source(stage)
	if err != nil {
		return nil, err
	}
	return m.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          string(stage),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src},
	})
}

// CreatePipelines builds the compute and present pipelines. Layouts are
// derived from the shaders.
func (m *GpuBufferManager) CreatePipelines(surfaceFormat wgpu.TextureFormat) error {
	cullMod, err := m.shaderModule(shaders.LightCull)
	if err != nil {
		return err
	}
	m.CullPipeline, err = m.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "Light Cull Pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     cullMod,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("light cull pipeline: %w", err)
	}

	gradeMod, err := m.shaderModule(shaders.Grade)
	if err != nil {
		return err
	}
	m.GradePipeline, err = m.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "Grade Pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     gradeMod,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("grade pipeline: %w", err)
	}

	presentMod, err := m.shaderModule(shaders.Present)
	if err != nil {
		return err
	}
	m.PresentPipeline, err = m.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Present Pipeline",
		Vertex: wgpu.VertexState{
			Module:     presentMod,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     presentMod,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    surfaceFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("present pipeline: %w", err)
	}

	if m.Sampler == nil {
		m.Sampler, err = m.Device.CreateSampler(&wgpu.SamplerDescriptor{
			AddressModeU:  wgpu.AddressModeClampToEdge,
			AddressModeV:  wgpu.AddressModeClampToEdge,
			AddressModeW:  wgpu.AddressModeClampToEdge,
			MinFilter:     wgpu.FilterModeLinear,
			MagFilter:     wgpu.FilterModeLinear,
			MaxAnisotropy: 1,
		})
		if err != nil {
			return fmt.Errorf("sampler: %w", err)
		}
	}
	m.bindingsDirty = true
	return nil
}

// CreateFrameTextures (re)allocates the depth input and the graded output
// for a new frame size.
func (m *GpuBufferManager) CreateFrameTextures(w, h uint32) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("frame textures: invalid size %dx%d", w, h)
	}
	m.releaseTextures()

	var err error
	m.DepthTexture, err = m.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Depth Input",
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("depth texture: %w", err)
	}
	m.DepthView, err = m.DepthTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("depth view: %w", err)
	}

	m.FrameTexture, err = m.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Graded Frame",
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("frame texture: %w", err)
	}
	m.FrameView, err = m.FrameTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("frame view: %w", err)
	}

	m.Width, m.Height = w, h
	m.TilesX, m.TilesY = cull.TileCounts(int(w), int(h))
	m.bindingsDirty = true
	m.log.Debugf("frame textures %dx%d, %dx%d tiles", w, h, m.TilesX, m.TilesY)
	return nil
}

// UpdateFrame uploads one frame's uniforms, lights, depth and ungraded
// color. Bind groups are rebuilt when any resource was recreated.
func (m *GpuBufferManager) UpdateFrame(f FrameData) error {
	if f.Depth == nil || f.HDR == nil {
		return errors.New("update frame: missing depth or color input")
	}
	if f.Depth.Width != f.HDR.Width || f.Depth.Height != f.HDR.Height {
		return fmt.Errorf("update frame: depth %dx%d does not match color %dx%d",
			f.Depth.Width, f.Depth.Height, f.HDR.Width, f.HDR.Height)
	}
	w, h := uint32(f.HDR.Width), uint32(f.HDR.Height)
	if w != m.Width || h != m.Height || m.DepthTexture == nil {
		if err := m.CreateFrameTextures(w, h); err != nil {
			return err
		}
	}

	uploads := []struct {
		name     string
		buf      **wgpu.Buffer
		data     []byte
		usage    wgpu.BufferUsage
		headroom int
	}{
		{"ViewUB", &m.ViewBuf, PackView(f.View, f.Index, len(f.Lights)), wgpu.BufferUsageUniform, 0},
		{"LightsBuf", &m.LightsBuf, PackLights(f.Lights), wgpu.BufferUsageStorage, HeadroomLights},
		{"PostUB", &m.PostBuf, PackPost(f.Post, int(w), int(h), f.DebugMode), wgpu.BufferUsageUniform, 0},
		{"HDRBuf", &m.HDRBuf, PackHDR(f.HDR), wgpu.BufferUsageStorage, 0},
	}
	for _, u := range uploads {
		created, err := m.ensureBuffer(u.name, u.buf, u.data, u.usage, u.headroom)
		if err != nil {
			return err
		}
		m.bindingsDirty = m.bindingsDirty || created
	}

	m.gpuCull = f.Grid == nil
	tilesBytes := int(m.TilesX*m.TilesY) * TileSize
	var tiles []byte
	if !m.gpuCull {
		tiles = PackTiles(f.Grid)
	} else if m.TilesBuf == nil || m.TilesBuf.GetSize() < uint64(tilesBytes) {
		// the cull shader resets counts itself; only the size matters
		tiles = make([]byte, tilesBytes)
	}
	if tiles != nil {
		created, err := m.ensureBuffer("TilesBuf", &m.TilesBuf, tiles, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc, HeadroomTiles)
		if err != nil {
			return err
		}
		m.bindingsDirty = m.bindingsDirty || created
	}

	m.Device.GetQueue().WriteTexture(m.DepthTexture.AsImageCopy(), PackDepth(f.Depth), &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  w * 4,
		RowsPerImage: h,
	}, &wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1})

	if m.bindingsDirty {
		return m.CreateBindGroups()
	}
	return nil
}

// CreateBindGroups binds the current buffers and textures to every pipeline.
func (m *GpuBufferManager) CreateBindGroups() error {
	if m.CullPipeline == nil || m.GradePipeline == nil || m.PresentPipeline == nil {
		return ErrNotReady
	}
	if m.ViewBuf == nil || m.TilesBuf == nil || m.HDRBuf == nil || m.FrameView == nil {
		return ErrNotReady
	}

	var err error
	m.CullBindGroup, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Light Cull BG",
		Layout: m.CullPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.ViewBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.LightsBuf, Size: wgpu.WholeSize},
			{Binding: 2, TextureView: m.DepthView},
			{Binding: 3, Buffer: m.TilesBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("light cull bind group: %w", err)
	}

	m.GradeBindGroup, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Grade BG",
		Layout: m.GradePipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.PostBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.HDRBuf, Size: wgpu.WholeSize},
			{Binding: 2, TextureView: m.FrameView},
		},
	})
	if err != nil {
		return fmt.Errorf("grade bind group: %w", err)
	}

	m.PresentBindGroup, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Present BG",
		Layout: m.PresentPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.PostBuf, Size: wgpu.WholeSize},
			{Binding: 1, TextureView: m.FrameView},
			{Binding: 2, Sampler: m.Sampler},
			{Binding: 3, Buffer: m.TilesBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("present bind group: %w", err)
	}

	m.bindingsDirty = false
	return nil
}

// Dispatch records light culling, unless the frame supplied a CPU grid,
// and the display grade.
func (m *GpuBufferManager) Dispatch(encoder *wgpu.CommandEncoder) error {
	if m.CullBindGroup == nil || m.GradeBindGroup == nil {
		return ErrNotReady
	}

	if m.gpuCull {
		cPass := encoder.BeginComputePass(nil)
		cPass.SetPipeline(m.CullPipeline)
		cPass.SetBindGroup(0, m.CullBindGroup, nil)
		cPass.DispatchWorkgroups(m.TilesX, m.TilesY, 1)
		if err := cPass.End(); err != nil {
			return fmt.Errorf("light cull pass: %w", err)
		}
	}

	gPass := encoder.BeginComputePass(nil)
	gPass.SetPipeline(m.GradePipeline)
	gPass.SetBindGroup(0, m.GradeBindGroup, nil)
	gPass.DispatchWorkgroups((m.Width+7)/8, (m.Height+7)/8, 1)
	if err := gPass.End(); err != nil {
		return fmt.Errorf("grade pass: %w", err)
	}

	return m.requestTileReadback(encoder)
}

// DrawPresent records the fullscreen blit into an open render pass.
func (m *GpuBufferManager) DrawPresent(pass *wgpu.RenderPassEncoder) {
	if m.PresentBindGroup == nil {
		return
	}
	pass.SetPipeline(m.PresentPipeline)
	pass.SetBindGroup(0, m.PresentBindGroup, nil)
	pass.Draw(3, 1, 0, 0)
}

func (m *GpuBufferManager) releaseTextures() {
	if m.DepthView != nil {
		m.DepthView.Release()
		m.DepthView = nil
	}
	if m.DepthTexture != nil {
		m.DepthTexture.Release()
		m.DepthTexture = nil
	}
	if m.FrameView != nil {
		m.FrameView.Release()
		m.FrameView = nil
	}
	if m.FrameTexture != nil {
		m.FrameTexture.Release()
		m.FrameTexture = nil
	}
}

func (m *GpuBufferManager) Release() {
	m.releaseTextures()
	for _, b := range []**wgpu.Buffer{&m.ViewBuf, &m.LightsBuf, &m.TilesBuf, &m.PostBuf, &m.HDRBuf} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	m.readback.release()
	if m.Sampler != nil {
		m.Sampler.Release()
		m.Sampler = nil
	}
}
