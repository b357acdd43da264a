package bvh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var (
	ErrEmptyGeometry     = errors.New("bvh: no triangles")
	ErrInvalidGeometry   = errors.New("bvh: non-finite or degenerate geometry")
	ErrTooManyPrimitives = errors.New("bvh: primitive count exceeds limit")
	ErrTopologyChanged   = errors.New("bvh: refit with different triangle count")
)

// MaxPrimitives bounds a single structure; the GPU node buffer is indexed with i32.
const MaxPrimitives = 1 << 22

// LeafSize is the largest triangle count stored in one leaf.
const LeafSize = 4

// NodeSize is the byte size of one packed node.
const NodeSize = 64

// Matches WGSL BVHNode
// struct BVHNode {
//    aabb_min : vec4<f32>; (16)
//    aabb_max : vec4<f32>; (16)
//    left : i32; (4)
//    right : i32; (4)
//    leaf_first : i32; (4)
//    leaf_count : i32; (4)
//    padding : i32[2]; (8)
// }; -> 64 bytes

type Node struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

func (n *Node) IsLeaf() bool { return n.Left < 0 }

func (n *Node) ToBytes() []byte {
	buf := make([]byte, NodeSize)
	n.put(buf)
	return buf
}

func (n *Node) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(n.Min.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(n.Min.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(n.Min.Z()))
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(n.Max.X()))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(n.Max.Y()))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(n.Max.Z()))
	binary.LittleEndian.PutUint32(buf[28:32], 0)

	binary.LittleEndian.PutUint32(buf[32:36], uint32(n.Left))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(n.Right))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(n.LeafFirst))
	binary.LittleEndian.PutUint32(buf[44:48], uint32(n.LeafCount))
}

// Structure is a triangle BVH. It is immutable while being traced; Refit
// must not run concurrently with queries on the same value.
type Structure struct {
	ID         uuid.UUID
	Generation uint64 // bumped by every Refit
	Nodes      []Node
	Tris       []Triangle // leaf order
	order      []int32    // leaf slot -> input index
}

type buildItem struct {
	min      mgl32.Vec3
	max      mgl32.Vec3
	centroid mgl32.Vec3
	index    int32
}

// Build constructs a structure over tris with a median split on the widest
// centroid axis.
func Build(tris []Triangle) (*Structure, error) {
	if len(tris) == 0 {
		return nil, ErrEmptyGeometry
	}
	if len(tris) > MaxPrimitives {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPrimitives, len(tris), MaxPrimitives)
	}

	items := make([]buildItem, len(tris))
	for i := range tris {
		if !tris[i].valid() {
			return nil, fmt.Errorf("%w: triangle %d", ErrInvalidGeometry, i)
		}
		lo, hi := tris[i].Bounds()
		items[i] = buildItem{min: lo, max: hi, centroid: lo.Add(hi).Mul(0.5), index: int32(i)}
	}

	s := &Structure{
		ID:    uuid.New(),
		Nodes: make([]Node, 0, 2*len(tris)/LeafSize+1),
		Tris:  make([]Triangle, 0, len(tris)),
		order: make([]int32, 0, len(tris)),
	}
	s.recursiveBuild(items, tris)
	return s, nil
}

func (s *Structure) recursiveBuild(items []buildItem, tris []Triangle) int32 {
	idx := int32(len(s.Nodes))
	s.Nodes = append(s.Nodes, Node{Left: -1, Right: -1, LeafFirst: -1})

	minB, maxB := emptyBounds()
	cMin, cMax := emptyBounds()
	for _, it := range items {
		minB, maxB = grow(minB, maxB, it.min, it.max)
		cMin, cMax = grow(cMin, cMax, it.centroid, it.centroid)
	}
	s.Nodes[idx].Min = minB
	s.Nodes[idx].Max = maxB

	extent := cMax.Sub(cMin)
	if len(items) <= LeafSize || extent == (mgl32.Vec3{}) && len(items) <= 4*LeafSize {
		s.Nodes[idx].LeafFirst = int32(len(s.Tris))
		s.Nodes[idx].LeafCount = int32(len(items))
		for _, it := range items {
			s.Tris = append(s.Tris, tris[it.index])
			s.order = append(s.order, it.index)
		}
		return idx
	}

	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})

	mid := len(items) / 2
	left := s.recursiveBuild(items[:mid], tris)
	right := s.recursiveBuild(items[mid:], tris)
	s.Nodes[idx].Left = left
	s.Nodes[idx].Right = right
	return idx
}

// Refit updates vertex positions in place and recomputes node bounds without
// changing the tree topology. tris must be in the same order and count as the
// slice the structure was built from.
func (s *Structure) Refit(tris []Triangle) error {
	if len(tris) != len(s.order) {
		return fmt.Errorf("%w: %d != %d", ErrTopologyChanged, len(tris), len(s.order))
	}
	for slot, src := range s.order {
		if !tris[src].valid() {
			return fmt.Errorf("%w: triangle %d", ErrInvalidGeometry, src)
		}
		s.Tris[slot] = tris[src]
	}
	// children always follow their parent
	for i := len(s.Nodes) - 1; i >= 0; i-- {
		n := &s.Nodes[i]
		minB, maxB := emptyBounds()
		if n.IsLeaf() {
			for k := n.LeafFirst; k < n.LeafFirst+n.LeafCount; k++ {
				lo, hi := s.Tris[k].Bounds()
				minB, maxB = grow(minB, maxB, lo, hi)
			}
		} else {
			l, r := &s.Nodes[n.Left], &s.Nodes[n.Right]
			minB, maxB = grow(minB, maxB, l.Min, l.Max)
			minB, maxB = grow(minB, maxB, r.Min, r.Max)
		}
		n.Min, n.Max = minB, maxB
	}
	s.Generation++
	return nil
}

// Bounds is the root box.
func (s *Structure) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	return s.Nodes[0].Min, s.Nodes[0].Max
}

// Bytes packs every node in the WGSL layout.
func (s *Structure) Bytes() []byte {
	out := make([]byte, len(s.Nodes)*NodeSize)
	for i := range s.Nodes {
		s.Nodes[i].put(out[i*NodeSize:])
	}
	return out
}

func emptyBounds() (mgl32.Vec3, mgl32.Vec3) {
	inf := float32(math.Inf(1))
	return mgl32.Vec3{inf, inf, inf}, mgl32.Vec3{-inf, -inf, -inf}
}

func grow(minB, maxB, lo, hi mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	return mgl32.Vec3{min(minB.X(), lo.X()), min(minB.Y(), lo.Y()), min(minB.Z(), lo.Z())},
		mgl32.Vec3{max(maxB.X(), hi.X()), max(maxB.Y(), hi.Y()), max(maxB.Z(), hi.Z())}
}
