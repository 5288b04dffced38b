package octree

import (
	"errors"
	"strings"
	"testing"

	"github.com/cjsb/SparseVoxelOctree/types"
)

func TestKeyRoundTrip(t *testing.T) {
	type spec struct {
		x, y, z uint32
		exp     Key
	}
	specs := []spec{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{0, 1, 0, 2},
		{0, 0, 1, 4},
		{3, 3, 3, 63},
		{4095, 0, 4095, EncodeKey(4095, 0, 4095)},
	}

	for idx, s := range specs {
		k := EncodeKey(s.x, s.y, s.z)
		if k != s.exp {
			t.Fatalf("[spec %d] expected key %d; got %d", idx, s.exp, k)
		}
		x, y, z := k.Decode()
		if x != s.x || y != s.y || z != s.z {
			t.Fatalf("[spec %d] expected decoded coords (%d, %d, %d); got (%d, %d, %d)", idx, s.x, s.y, s.z, x, y, z)
		}
	}
}

func TestKeyAncestor(t *testing.T) {
	k := EncodeKey(5, 2, 7)
	px, py, pz := k.Ancestor(1).Decode()
	if px != 2 || py != 1 || pz != 3 {
		t.Fatalf("expected parent cell (2, 1, 3); got (%d, %d, %d)", px, py, pz)
	}
	if k.Octant() != OctantAt(5, 2, 7, 0) {
		t.Fatalf("expected key octant %d to match coordinate octant %d", k.Octant(), OctantAt(5, 2, 7, 0))
	}
}

func TestValidDepth(t *testing.T) {
	for _, depth := range []int{-1, 0, 1, 13, 64} {
		if err := ValidDepth(depth); !errors.Is(err, ErrInvalidDepth) {
			t.Fatalf("expected depth %d to be rejected; got %v", depth, err)
		}
	}
	for depth := MinDepth; depth <= MaxDepth; depth++ {
		if err := ValidDepth(depth); err != nil {
			t.Fatalf("expected depth %d to be accepted; got %v", depth, err)
		}
	}
}

func TestEmptyOctree(t *testing.T) {
	o := NewEmpty(5)
	if !o.Empty() {
		t.Fatal("expected octree to be empty")
	}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	if o.NodeCount() != 1 {
		t.Fatalf("expected root-only octree; got %d nodes", o.NodeCount())
	}
	if _, found := o.Lookup(0, 0, 0); found {
		t.Fatal("expected lookup in empty octree to fail")
	}
}

// Two leaves in opposite corners of a depth 2 octree.
func twoLeafOctree() *Octree {
	return &Octree{
		Depth:        2,
		Masks:        []uint8{0x81, 0x01, 0x80, 0, 0},
		Pointers:     []uint32{1, 3, 4, LeafFlag | 0, LeafFlag | 1},
		LevelOffsets: []uint32{0, 1, 3, 5},
		Normals:      []types.Vec3{{1, 0, 0}, {0, 1, 0}},
		Albedo:       []types.Vec3{{1, 1, 1}, {0.5, 0.5, 0.5}},
		Emission:     []types.Vec3{{}, {}},
		Transform:    Transform{Scale: 1},
	}
}

func TestLookup(t *testing.T) {
	o := twoLeafOctree()
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}

	type spec struct {
		x, y, z   uint32
		expFound  bool
		expAttrib uint32
	}
	specs := []spec{
		{0, 0, 0, true, 0},
		{3, 3, 3, true, 1},
		{1, 0, 0, false, 0},
		{2, 2, 2, false, 0},
		{4, 0, 0, false, 0},
	}
	for idx, s := range specs {
		attrib, found := o.Lookup(s.x, s.y, s.z)
		if found != s.expFound || (found && attrib != s.expAttrib) {
			t.Fatalf("[spec %d] expected lookup (%t, %d); got (%t, %d)", idx, s.expFound, s.expAttrib, found, attrib)
		}
	}

	if attrib, found := o.LookupPoint(types.Vec3{0.9, 0.8, 0.99}); !found || attrib != 1 {
		t.Fatalf("expected point lookup to find leaf 1; got (%t, %d)", found, attrib)
	}
	if _, found := o.LookupPoint(types.Vec3{1, 0, 0}); found {
		t.Fatal("expected points outside the unit cube to miss")
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	type spec struct {
		corrupt func(*Octree)
		expMsg  string
	}
	specs := []spec{
		{func(o *Octree) { o.Pointers[1] = 4 }, "points to 4"},
		{func(o *Octree) { o.Masks[2] = 0 }, "has no children"},
		{func(o *Octree) { o.Masks[0] = 0x83 }, "do not tile"},
		{func(o *Octree) { o.Pointers[4] = 1 }, "malformed leaf"},
		{func(o *Octree) { o.LevelOffsets = o.LevelOffsets[:3] }, "level table"},
	}

	for idx, s := range specs {
		o := twoLeafOctree()
		s.corrupt(o)
		err := o.Validate()
		if !errors.Is(err, ErrCorrupted) || !strings.Contains(err.Error(), s.expMsg) {
			t.Fatalf("[spec %d] expected corruption error containing %q; got %v", idx, s.expMsg, err)
		}
	}
}

func TestTransform(t *testing.T) {
	tr := Transform{Scale: 0.5, Offset: types.Vec3{0.25, 0, 0}}
	p := types.Vec3{1, 2, -1}
	out := tr.Apply(p)
	if !types.ApproxEqual(out, types.Vec3{0.75, 1, -0.5}, 1e-6) {
		t.Fatalf("unexpected transformed point %v", out)
	}
	if back := tr.Invert(out); !types.ApproxEqual(back, p, 1e-6) {
		t.Fatalf("expected inverse transform to restore %v; got %v", p, back)
	}
}

func TestStats(t *testing.T) {
	stats := twoLeafOctree().Stats()
	for _, exp := range []string{"Level", "Leaf attributes", "Total"} {
		if !strings.Contains(stats, exp) {
			t.Fatalf("expected stats table to contain %q; got\n%s", exp, stats)
		}
	}
}
