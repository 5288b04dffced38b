package octree

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/cjsb/SparseVoxelOctree/types"
)

// Supported octree depths. The root cube is level 0 and leaves live at
// level Depth, so a depth D octree has a resolution of 2^D cells per axis.
const (
	MinDepth = 2
	MaxDepth = 12
)

// LeafFlag marks a pointer that references a leaf attribute slot instead
// of a child node range.
const LeafFlag uint32 = 1 << 31

var (
	ErrInvalidDepth = fmt.Errorf("octree: depth must be in the [%d, %d] range", MinDepth, MaxDepth)
	ErrCorrupted    = errors.New("octree: corrupted node data")
)

// ValidDepth returns ErrInvalidDepth if depth is outside the supported range.
func ValidDepth(depth int) error {
	if depth < MinDepth || depth > MaxDepth {
		return fmt.Errorf("%w; got %d", ErrInvalidDepth, depth)
	}
	return nil
}

// Transform maps mesh space into the unit octree cube: p' = p*Scale + Offset.
type Transform struct {
	Scale  float32
	Offset types.Vec3
}

// Apply the transform to a mesh-space point.
func (t Transform) Apply(p types.Vec3) types.Vec3 {
	return p.Mul(t.Scale).Add(t.Offset)
}

// Invert maps an octree-space point back to mesh space.
func (t Transform) Invert(p types.Vec3) types.Vec3 {
	if t.Scale == 0 {
		return p
	}
	return p.Sub(t.Offset).Mul(1 / t.Scale)
}

// An Octree is a pointer-free sparse voxel octree covering [0,1]^3.
//
// Nodes are stored level by level as a structure of arrays. For an interior
// node Masks holds one bit per existing child (bit i is octant i) and
// Pointers the index of its first child; siblings are contiguous and
// ordered by octant. Leaves live at level Depth, have an empty mask and a
// pointer with LeafFlag set whose low bits index the attribute arrays.
//
// An octree is immutable once built and may be shared by any number of
// concurrent readers.
type Octree struct {
	Depth int

	Masks    []uint8
	Pointers []uint32

	// LevelOffsets[l] is the index of the first node of level l. It holds
	// Depth+2 entries; the last one equals the node count.
	LevelOffsets []uint32

	// Per-leaf attributes.
	Normals  []types.Vec3
	Albedo   []types.Vec3
	Emission []types.Vec3

	// Mapping from the source mesh space into octree space.
	Transform Transform
}

// NewEmpty creates a root-only octree.
func NewEmpty(depth int) *Octree {
	offsets := make([]uint32, depth+2)
	for idx := 1; idx < len(offsets); idx++ {
		offsets[idx] = 1
	}
	return &Octree{
		Depth:        depth,
		Masks:        []uint8{0},
		Pointers:     []uint32{0},
		LevelOffsets: offsets,
		Transform:    Transform{Scale: 1},
	}
}

// Resolution returns the number of leaf cells per axis.
func (o *Octree) Resolution() uint32 {
	return 1 << uint(o.Depth)
}

// NodeCount returns the total number of nodes including leaves.
func (o *Octree) NodeCount() int {
	return len(o.Masks)
}

// LeafCount returns the number of occupied leaf cells.
func (o *Octree) LeafCount() int {
	return len(o.Normals)
}

// Empty returns true if the octree contains no geometry.
func (o *Octree) Empty() bool {
	return o.LeafCount() == 0
}

// LevelSize returns the number of nodes at a given level.
func (o *Octree) LevelSize(level int) int {
	return int(o.LevelOffsets[level+1] - o.LevelOffsets[level])
}

// IsLeaf returns true if node is a leaf.
func (o *Octree) IsLeaf(node uint32) bool {
	return o.Pointers[node]&LeafFlag != 0
}

// LeafIndex returns the attribute slot of a leaf node.
func (o *Octree) LeafIndex(node uint32) uint32 {
	return o.Pointers[node] &^ LeafFlag
}

// Child returns the index of the child occupying octant of node, if any.
func (o *Octree) Child(node uint32, octant uint8) (uint32, bool) {
	mask := o.Masks[node]
	bit := uint8(1) << octant
	if mask&bit == 0 {
		return 0, false
	}
	return o.Pointers[node] + uint32(bits.OnesCount8(mask&(bit-1))), true
}

// Lookup returns the attribute slot of the leaf cell at (x, y, z) where each
// coordinate is in [0, Resolution()).
func (o *Octree) Lookup(x, y, z uint32) (uint32, bool) {
	res := o.Resolution()
	if x >= res || y >= res || z >= res {
		return 0, false
	}

	var node uint32
	for level := 1; level <= o.Depth; level++ {
		child, ok := o.Child(node, OctantAt(x, y, z, uint(o.Depth-level)))
		if !ok {
			return 0, false
		}
		node = child
	}
	return o.LeafIndex(node), true
}

// LookupPoint returns the attribute slot of the leaf containing an
// octree-space point.
func (o *Octree) LookupPoint(p types.Vec3) (uint32, bool) {
	res := float32(o.Resolution())
	for i := 0; i < 3; i++ {
		if p[i] < 0 || p[i] >= 1 {
			return 0, false
		}
	}
	return o.Lookup(uint32(p[0]*res), uint32(p[1]*res), uint32(p[2]*res))
}

// Validate checks the structural invariants of the node arrays: child
// ranges of each level tile the next level in order without overlap,
// every set mask bit has a child, and leaves only appear at level Depth.
func (o *Octree) Validate() error {
	if len(o.LevelOffsets) != o.Depth+2 || len(o.Masks) != len(o.Pointers) {
		return fmt.Errorf("%w: level table has %d entries for depth %d", ErrCorrupted, len(o.LevelOffsets), o.Depth)
	}
	if int(o.LevelOffsets[o.Depth+1]) != len(o.Masks) || o.LevelOffsets[0] != 0 || o.LevelOffsets[1] != 1 {
		return fmt.Errorf("%w: level table does not cover the node arrays", ErrCorrupted)
	}
	if len(o.Normals) != len(o.Albedo) || len(o.Normals) != len(o.Emission) {
		return fmt.Errorf("%w: attribute arrays have mismatched lengths", ErrCorrupted)
	}

	if o.Empty() {
		if len(o.Masks) != 1 || o.Masks[0] != 0 {
			return fmt.Errorf("%w: empty octree must only contain a childless root", ErrCorrupted)
		}
		return nil
	}

	for level := 0; level < o.Depth; level++ {
		expFirst := o.LevelOffsets[level+1]
		for node := o.LevelOffsets[level]; node < o.LevelOffsets[level+1]; node++ {
			if o.IsLeaf(node) {
				return fmt.Errorf("%w: node %d at level %d is a leaf", ErrCorrupted, node, level)
			}
			if o.Masks[node] == 0 {
				return fmt.Errorf("%w: interior node %d at level %d has no children", ErrCorrupted, node, level)
			}
			if o.Pointers[node] != expFirst {
				return fmt.Errorf("%w: node %d at level %d points to %d; expected %d", ErrCorrupted, node, level, o.Pointers[node], expFirst)
			}
			expFirst += uint32(bits.OnesCount8(o.Masks[node]))
		}
		if expFirst != o.LevelOffsets[level+2] {
			return fmt.Errorf("%w: level %d children do not tile level %d", ErrCorrupted, level, level+1)
		}
	}

	leafBase := o.LevelOffsets[o.Depth]
	if o.LevelSize(o.Depth) != o.LeafCount() {
		return fmt.Errorf("%w: %d leaf nodes for %d attribute slots", ErrCorrupted, o.LevelSize(o.Depth), o.LeafCount())
	}
	for node := leafBase; node < uint32(len(o.Masks)); node++ {
		if !o.IsLeaf(node) || o.Masks[node] != 0 || o.LeafIndex(node) != node-leafBase {
			return fmt.Errorf("%w: malformed leaf node %d", ErrCorrupted, node)
		}
	}
	return nil
}
