package voxel

import (
	"context"
	"math"
	"slices"

	"github.com/cjsb/SparseVoxelOctree/octree"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Crossings closer than this along a scanline are treated as one; rays
// through shared edges would otherwise flip parity twice.
const crossingEpsilon = 1e-7

type crossing struct {
	x   float64
	tri int
}

// fillInterior emits fragments for the cells whose centers lie inside the
// mesh, using even-odd parity along +x scanlines through cell centers. It
// assumes a closed mesh. Interior fragments inherit the attributes of the
// triangle where their span enters the mesh.
func (v *voxelizer) fillInterior(ctx context.Context, workers int) ([]Fragment, error) {
	tris := make([][3]r3.Vec, len(v.mesh.Triangles))
	for idx := range v.mesh.Triangles {
		for vi := 0; vi < 3; vi++ {
			tris[idx][vi] = v.toOctreeSpace(v.mesh.Triangles[idx].Vertices[vi])
		}
	}

	sliceFragments := make([][]Fragment, v.res)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for z := 0; z < v.res; z++ {
		z := z
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sliceFragments[z] = v.fillSlice(tris, z)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Fragment
	for _, list := range sliceFragments {
		out = append(out, list...)
	}
	return out, nil
}

func (v *voxelizer) fillSlice(tris [][3]r3.Vec, z int) []Fragment {
	var out []Fragment
	zc := (float64(z) + 0.5) * v.cellSize
	crossings := make([]crossing, 0, 16)
	for y := 0; y < v.res; y++ {
		yc := (float64(y) + 0.5) * v.cellSize

		crossings = crossings[:0]
		for idx := range tris {
			if x, ok := rayCrossX(tris[idx], yc, zc); ok {
				crossings = append(crossings, crossing{x: x, tri: idx})
			}
		}
		slices.SortFunc(crossings, func(a, b crossing) int {
			switch {
			case a.x < b.x:
				return -1
			case a.x > b.x:
				return 1
			}
			return a.tri - b.tri
		})
		crossings = slices.CompactFunc(crossings, func(a, b crossing) bool {
			return math.Abs(a.x-b.x) < crossingEpsilon
		})

		for idx := 0; idx+1 < len(crossings); idx += 2 {
			enter, exit := crossings[idx], crossings[idx+1]
			tri := &v.mesh.Triangles[enter.tri]
			mat := v.mesh.Material(tri)
			normal := tri.Cross().Normalize()

			for x := v.cellIndex(enter.x); x <= v.cellIndex(exit.x); x++ {
				xc := (float64(x) + 0.5) * v.cellSize
				if xc < enter.x || xc > exit.x {
					continue
				}
				out = append(out, Fragment{
					Key:      octree.EncodeKey(uint32(x), uint32(y), uint32(z)),
					Normal:   normal,
					Albedo:   mat.Albedo,
					Emission: mat.Emission,
				})
			}
		}
	}
	return out
}
