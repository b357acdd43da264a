package lumen

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidScene = errors.New("invalid scene preset")

type CameraData struct {
	Position mgl32.Vec3 `json:"position"`
	Target   mgl32.Vec3 `json:"target"`
	FovY     float32    `json:"fov_deg"`
	Near     float32    `json:"near"`
	Far      float32    `json:"far"`
}

type LightData struct {
	Type        string     `json:"type"`
	Position    mgl32.Vec3 `json:"position,omitempty"`
	Direction   mgl32.Vec3 `json:"direction,omitempty"`
	Color       mgl32.Vec3 `json:"color"`
	Intensity   float32    `json:"intensity"`
	Range       float32    `json:"range,omitempty"`
	SpotAngle   float32    `json:"spot_angle_deg,omitempty"`
	CastShadows bool       `json:"cast_shadows"`
}

type MaterialData struct {
	BaseColor mgl32.Vec4 `json:"base_color"`
	Roughness float32    `json:"roughness"`
	Metalness float32    `json:"metalness"`
	Emissive  float32    `json:"emissive,omitempty"`
}

// ObjectData places one procedural shape: "plane" (Size), "box" (Min, Max)
// or "sphere" (Radius).
type ObjectData struct {
	Shape    string     `json:"shape"`
	Size     float32    `json:"size,omitempty"`
	Min      mgl32.Vec3 `json:"min,omitempty"`
	Max      mgl32.Vec3 `json:"max,omitempty"`
	Radius   float32    `json:"radius,omitempty"`
	Position mgl32.Vec3 `json:"position"`
	Rotation mgl32.Quat `json:"rotation"`
	Scale    mgl32.Vec3 `json:"scale"`
	Material int        `json:"material"`
}

type EnvironmentData struct {
	SkyColor mgl32.Vec3 `json:"sky_color,omitempty"`
	Humidity float32    `json:"humidity"`
	Time     float32    `json:"time"`
}

// ScenePreset is a self-contained scene description used by the viewer and
// tests in place of a game's scene provider.
type ScenePreset struct {
	Name        string          `json:"name"`
	Camera      CameraData      `json:"camera"`
	Environment EnvironmentData `json:"environment"`
	Materials   []MaterialData  `json:"materials"`
	Lights      []LightData     `json:"lights"`
	Objects     []ObjectData    `json:"objects"`

	meshes []*core.Mesh
}

// DefaultScenePreset is a ground plane with a few boxes and a mirror sphere
// under a sun and two local lights.
func DefaultScenePreset() *ScenePreset {
	ident := mgl32.QuatIdent()
	one := mgl32.Vec3{1, 1, 1}
	return &ScenePreset{
		Name: "default",
		Camera: CameraData{
			Position: mgl32.Vec3{0, 4, 12},
			Target:   mgl32.Vec3{0, 1, 0},
			FovY:     60,
			Near:     0.1,
			Far:      200,
		},
		Environment: EnvironmentData{Humidity: 0.3},
		Materials: []MaterialData{
			{BaseColor: mgl32.Vec4{0.6, 0.6, 0.6, 1}, Roughness: 0.2, Metalness: 0.8},
			{BaseColor: mgl32.Vec4{0.8, 0.2, 0.1, 1}, Roughness: 0.6},
			{BaseColor: mgl32.Vec4{0.95, 0.95, 0.95, 1}, Roughness: 0.05, Metalness: 1},
			{BaseColor: mgl32.Vec4{1, 0.8, 0.4, 1}, Roughness: 1, Emissive: 4},
		},
		Lights: []LightData{
			{Type: "directional", Direction: mgl32.Vec3{-0.4, -1, -0.3}, Color: mgl32.Vec3{1, 0.95, 0.85}, Intensity: 3, CastShadows: true},
			{Type: "point", Position: mgl32.Vec3{3, 2, 2}, Color: mgl32.Vec3{0.3, 0.5, 1}, Intensity: 20, Range: 12, CastShadows: true},
			{Type: "spot", Position: mgl32.Vec3{-4, 6, 3}, Direction: mgl32.Vec3{0.5, -1, -0.4}, Color: mgl32.Vec3{1, 0.6, 0.3}, Intensity: 40, Range: 20, SpotAngle: 30, CastShadows: true},
		},
		Objects: []ObjectData{
			{Shape: "plane", Size: 40, Rotation: ident, Scale: one, Material: 0},
			{Shape: "box", Min: mgl32.Vec3{-1, 0, -1}, Max: mgl32.Vec3{1, 2, 1}, Position: mgl32.Vec3{-2.5, 0, 0}, Rotation: ident, Scale: one, Material: 1},
			{Shape: "sphere", Radius: 1, Position: mgl32.Vec3{1.5, 1, 0}, Rotation: ident, Scale: one, Material: 2},
			{Shape: "box", Min: mgl32.Vec3{-0.25, 0, -0.25}, Max: mgl32.Vec3{0.25, 0.5, 0.25}, Position: mgl32.Vec3{0, 0, 3}, Rotation: ident, Scale: one, Material: 3},
		},
	}
}

func LoadScenePreset(filename string) (*ScenePreset, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	p, err := ParseScenePreset(bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return p, nil
}

func ParseScenePreset(data []byte) (*ScenePreset, error) {
	var p ScenePreset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	if err := p.build(); err != nil {
		return nil, err
	}
	return &p, nil
}

func SaveScenePreset(p *ScenePreset, filename string) error {
	bytes, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}

// build validates the preset and creates its meshes once.
func (p *ScenePreset) build() error {
	if p.Camera.Far <= p.Camera.Near || p.Camera.Near <= 0 {
		return fmt.Errorf("%w: camera near %v far %v", ErrInvalidScene, p.Camera.Near, p.Camera.Far)
	}
	if p.Camera.FovY <= 0 || p.Camera.FovY >= 180 {
		return fmt.Errorf("%w: fov %v", ErrInvalidScene, p.Camera.FovY)
	}
	p.meshes = make([]*core.Mesh, len(p.Objects))
	for i, o := range p.Objects {
		switch strings.ToLower(o.Shape) {
		case "plane":
			p.meshes[i] = core.Plane(o.Size)
		case "box":
			p.meshes[i] = core.Cube(o.Min, o.Max)
		case "sphere":
			p.meshes[i] = core.Sphere(mgl32.Vec3{}, o.Radius, 24, 16)
		default:
			return fmt.Errorf("%w: object %d: unknown shape %q", ErrInvalidScene, i, o.Shape)
		}
	}
	for i, l := range p.Lights {
		switch strings.ToLower(l.Type) {
		case "directional", "point", "spot":
		default:
			return fmt.Errorf("%w: light %d: unknown type %q", ErrInvalidScene, i, l.Type)
		}
	}
	return nil
}

// Frame builds the frame input for a render target of the given size.
// Geometry is static, so the geometry version stays 1.
func (p *ScenePreset) Frame(width, height int, index uint64) (*core.FrameInput, error) {
	if p.meshes == nil {
		if err := p.build(); err != nil {
			return nil, err
		}
	}
	c := p.Camera
	view := mgl32.LookAtV(c.Position, c.Target, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(c.FovY), float32(width)/float32(max(height, 1)), c.Near, c.Far)

	frame := &core.FrameInput{
		Index: index,
		View:  core.NewViewUniform(view, proj, width, height, c.Near, c.Far),
		Environment: core.Environment{
			SkyColor: p.Environment.SkyColor,
			Humidity: p.Environment.Humidity,
			Time:     p.Environment.Time,
		},
		GeometryVersion: 1,
	}
	for _, m := range p.Materials {
		frame.Materials = append(frame.Materials, core.Material{
			BaseColor: m.BaseColor,
			Roughness: m.Roughness,
			Metalness: m.Metalness,
			Emissive:  m.Emissive,
		})
	}
	for _, l := range p.Lights {
		var light core.Light
		switch strings.ToLower(l.Type) {
		case "directional":
			light = core.NewDirectionalLight(l.Direction, l.Color, l.Intensity)
		case "point":
			light = core.NewPointLight(l.Position, l.Color, l.Intensity, l.Range)
		case "spot":
			light = core.NewSpotLight(l.Position, l.Direction, l.Color, l.Intensity, l.Range, mgl32.DegToRad(l.SpotAngle))
		}
		light.CastShadows = l.CastShadows
		frame.Lights = append(frame.Lights, light)
	}
	for i, o := range p.Objects {
		tr := core.Transform{Position: o.Position, Rotation: o.Rotation, Scale: o.Scale}
		if tr.Rotation == (mgl32.Quat{}) {
			tr.Rotation = mgl32.QuatIdent()
		}
		if tr.Scale == (mgl32.Vec3{}) {
			tr.Scale = mgl32.Vec3{1, 1, 1}
		}
		frame.Drawables = append(frame.Drawables, core.Drawable{
			Mesh:          p.meshes[i],
			Transform:     tr,
			MaterialIndex: o.Material,
		})
	}
	return frame, nil
}
