package voxel

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/asset/mesh"
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/types"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Number of triangles processed by each voxelization task.
const trianglesPerTask = 512

// A Fragment is one occupied cell at the target depth together with the
// surface attributes sampled inside it. The same cell may be emitted by
// several triangles.
type Fragment struct {
	Key      octree.Key
	Normal   types.Vec3
	Albedo   types.Vec3
	Emission types.Vec3
}

// Options control voxelization.
type Options struct {
	// Octree depth; the grid has 2^Depth cells per axis.
	Depth int

	// Fill the interior of closed meshes in addition to their surface.
	Solid bool

	// Max number of concurrent workers. Defaults to runtime.NumCPU().
	Workers int
}

// The Result of a voxelization pass.
type Result struct {
	Fragments []Fragment

	// Mesh space to octree space mapping used for the pass.
	Transform octree.Transform
}

var logger = log.New("voxelizer")

// Voxelize the surface of a mesh at the given depth.
func Voxelize(ctx context.Context, m *mesh.Mesh, depth int) ([]Fragment, error) {
	res, err := Run(ctx, m, Options{Depth: depth})
	if err != nil {
		return nil, err
	}
	return res.Fragments, nil
}

// Run a voxelization pass. Triangles are rasterized in parallel with a
// conservative triangle/cell overlap test; each overlapped cell yields a
// fragment whose attributes are interpolated at the point of the triangle
// closest to the cell center. Degenerate triangles are skipped and an empty
// mesh yields no fragments.
func Run(ctx context.Context, m *mesh.Mesh, opts Options) (*Result, error) {
	if err := octree.ValidDepth(opts.Depth); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()
	xform := FitTransform(m)
	res := &Result{Transform: xform}
	if len(m.Triangles) == 0 {
		logger.Warning("mesh contains no triangles")
		return res, nil
	}

	v := &voxelizer{
		mesh:     m,
		xform:    xform,
		res:      1 << uint(opts.Depth),
		cellSize: 1.0 / float64(uint32(1)<<uint(opts.Depth)),
	}

	taskCount := (len(m.Triangles) + trianglesPerTask - 1) / trianglesPerTask
	taskFragments := make([][]Fragment, taskCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for task := 0; task < taskCount; task++ {
		task := task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			first := task * trianglesPerTask
			last := min(first+trianglesPerTask, len(m.Triangles))
			out := make([]Fragment, 0, last-first)
			for idx := first; idx < last; idx++ {
				out = v.rasterize(&m.Triangles[idx], out)
			}
			taskFragments[task] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, list := range taskFragments {
		total += len(list)
	}
	res.Fragments = make([]Fragment, 0, total)
	for _, list := range taskFragments {
		res.Fragments = append(res.Fragments, list...)
	}

	if opts.Solid {
		interior, err := v.fillInterior(ctx, workers)
		if err != nil {
			return nil, err
		}
		res.Fragments = append(res.Fragments, interior...)
	}

	logger.Infof(
		"voxelized %d triangles into %d fragments at depth %d in %d ms",
		len(m.Triangles), len(res.Fragments), opts.Depth, time.Since(start).Nanoseconds()/1e6,
	)
	return res, nil
}

// FitTransform computes the uniform scale and translation that centers the
// mesh bounding box inside the unit cube with its largest extent mapped to 1.
func FitTransform(m *mesh.Mesh) octree.Transform {
	if len(m.Triangles) == 0 {
		return octree.Transform{Scale: 1}
	}

	bbox := m.BBox()
	extent := bbox[1].Sub(bbox[0]).MaxComponent()
	scale := float32(1)
	if extent > 0 {
		scale = 1 / extent
	}
	center := bbox[0].Add(bbox[1]).Mul(0.5)
	return octree.Transform{
		Scale:  scale,
		Offset: types.Splat3(0.5).Sub(center.Mul(scale)),
	}
}

type voxelizer struct {
	mesh     *mesh.Mesh
	xform    octree.Transform
	res      int
	cellSize float64
}

func (v *voxelizer) toOctreeSpace(p types.Vec3) r3.Vec {
	q := v.xform.Apply(p)
	return r3.Vec{X: float64(q[0]), Y: float64(q[1]), Z: float64(q[2])}
}

// Clamp a coordinate to a cell index.
func (v *voxelizer) cellIndex(c float64) int {
	idx := int(math.Floor(c / v.cellSize))
	if idx < 0 {
		return 0
	}
	if idx >= v.res {
		return v.res - 1
	}
	return idx
}

// rasterize appends one fragment per cell overlapped by tri.
func (v *voxelizer) rasterize(tri *mesh.Triangle, out []Fragment) []Fragment {
	if tri.Degenerate() {
		return out
	}

	verts := [3]r3.Vec{
		v.toOctreeSpace(tri.Vertices[0]),
		v.toOctreeSpace(tri.Vertices[1]),
		v.toOctreeSpace(tri.Vertices[2]),
	}
	faceNormal := r3.Cross(r3.Sub(verts[1], verts[0]), r3.Sub(verts[2], verts[0]))
	if r3.Norm(faceNormal) < 1e-18 {
		return out
	}

	mat := v.mesh.Material(tri)

	var minCell, maxCell [3]int
	for axis := 0; axis < 3; axis++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, p := range verts {
			c := component(p, axis)
			lo, hi = math.Min(lo, c), math.Max(hi, c)
		}
		minCell[axis] = v.cellIndex(lo - overlapEpsilon)
		maxCell[axis] = v.cellIndex(hi + overlapEpsilon)
	}

	half := v.cellSize * 0.5
	for z := minCell[2]; z <= maxCell[2]; z++ {
		for y := minCell[1]; y <= maxCell[1]; y++ {
			for x := minCell[0]; x <= maxCell[0]; x++ {
				center := r3.Vec{
					X: (float64(x) + 0.5) * v.cellSize,
					Y: (float64(y) + 0.5) * v.cellSize,
					Z: (float64(z) + 0.5) * v.cellSize,
				}
				if !triangleBoxOverlap(verts, center, half) {
					continue
				}

				out = append(out, Fragment{
					Key:      octree.EncodeKey(uint32(x), uint32(y), uint32(z)),
					Normal:   interpolateNormal(tri, closestPointBarycentric(verts, center)),
					Albedo:   mat.Albedo,
					Emission: mat.Emission,
				})
			}
		}
	}
	return out
}

// Barycentric interpolation of the vertex normals. Falls back to the face
// normal if the interpolated normal vanishes.
func interpolateNormal(tri *mesh.Triangle, bary [3]float64) types.Vec3 {
	var n types.Vec3
	for idx := 0; idx < 3; idx++ {
		n = n.Add(tri.Normals[idx].Mul(float32(bary[idx])))
	}
	if n.Len() < 1e-6 || math32.IsNaN(n[0]) {
		return tri.Cross().Normalize()
	}
	return n.Normalize()
}

func component(p r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	}
	return p.Z
}
