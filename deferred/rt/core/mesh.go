package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnsupportedVertexFormat = errors.New("unsupported vertex format")
	ErrInvalidMesh             = errors.New("invalid mesh")
)

type VertexFormat uint8

const (
	VertexFormatUnknown VertexFormat = iota
	VertexFormatPosition
	VertexFormatPositionNormal
	VertexFormatPositionNormalUV
)

func (f VertexFormat) String() string {
	switch f {
	case VertexFormatPosition:
		return "position"
	case VertexFormatPositionNormal:
		return "position+normal"
	case VertexFormatPositionNormalUV:
		return "position+normal+uv"
	}
	return fmt.Sprintf("VertexFormat(%d)", uint8(f))
}

// Supported reports whether the G-buffer pass can consume the format. Normals
// are required; position-only meshes carry no shading frame.
func (f VertexFormat) Supported() bool {
	return f == VertexFormatPositionNormal || f == VertexFormatPositionNormalUV
}

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

type Mesh struct {
	Name     string
	Format   VertexFormat
	Vertices []Vertex
	Indices  []uint32
}

func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

func (m *Mesh) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil mesh", ErrInvalidMesh)
	}
	if !m.Format.Supported() {
		return fmt.Errorf("mesh %q: %w: %s", m.Name, ErrUnsupportedVertexFormat, m.Format)
	}
	if len(m.Indices) == 0 || len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh %q: %w: %d indices", m.Name, ErrInvalidMesh, len(m.Indices))
	}
	for _, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("mesh %q: %w: index %d out of range", m.Name, ErrInvalidMesh, idx)
		}
	}
	for i, v := range m.Vertices {
		if !finite3(v.Position) {
			return fmt.Errorf("mesh %q: %w: vertex %d position not finite", m.Name, ErrInvalidMesh, i)
		}
	}
	return nil
}

// LocalBounds returns the object-space AABB.
func (m *Mesh) LocalBounds() [2]mgl32.Vec3 {
	inf := float32(math.Inf(1))
	b := [2]mgl32.Vec3{{inf, inf, inf}, {-inf, -inf, -inf}}
	for _, v := range m.Vertices {
		for a := 0; a < 3; a++ {
			b[0][a] = min(b[0][a], v.Position[a])
			b[1][a] = max(b[1][a], v.Position[a])
		}
	}
	return b
}
