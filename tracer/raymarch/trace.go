package raymarch

import (
	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/types"
)

// Direction components smaller than this are nudged so that plane crossing
// parameters stay finite.
const minDirComponent = 1e-9

// NoSkip disables leaf skipping in TraceSkip.
const NoSkip = ^uint32(0)

// Hit describes the first leaf along a ray.
type Hit struct {
	Found bool

	// Ray parameter and position of the leaf entry point.
	T        float32
	Position types.Vec3

	// Leaf attribute slot and attributes.
	Leaf     uint32
	Normal   types.Vec3
	Albedo   types.Vec3
	Emission types.Vec3

	// Number of traversal steps.
	Iterations int
}

// A Ray in octree space with a precomputed inverse direction.
type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
	invDir types.Vec3
}

// NewRay creates a ray. Dir does not need to be normalized but ray
// parameters are expressed in multiples of it.
func NewRay(origin, dir types.Vec3) Ray {
	r := Ray{Origin: origin, Dir: dir}
	for i := 0; i < 3; i++ {
		d := dir[i]
		if math32.Abs(d) < minDirComponent {
			if d < 0 {
				d = -minDirComponent
			} else {
				d = minDirComponent
			}
			r.Dir[i] = d
		}
		r.invDir[i] = 1 / d
	}
	return r
}

// At returns the point at ray parameter t.
func (r *Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// intersectBox returns the parametric interval in which the ray overlaps
// the box [min, max]. The interval is empty if t0 > t1.
func (r *Ray) intersectBox(min, max types.Vec3) (t0, t1 float32) {
	t0, t1 = math32.Inf(-1), math32.Inf(1)
	for i := 0; i < 3; i++ {
		near := (min[i] - r.Origin[i]) * r.invDir[i]
		far := (max[i] - r.Origin[i]) * r.invDir[i]
		if near > far {
			near, far = far, near
		}
		t0 = math32.Max(t0, near)
		t1 = math32.Min(t1, far)
	}
	return t0, t1
}

type frame struct {
	node  uint32
	min   types.Vec3
	size  float32
	tExit float32
}

// Trace marches a ray through the octree starting at ray parameter tStart
// and returns the first leaf it enters. maxIterations bounds the number of
// traversal steps; rays exceeding it are reported as misses.
func Trace(o *octree.Octree, ray Ray, tStart float32, maxIterations int) Hit {
	return TraceSkip(o, ray, tStart, maxIterations, NoSkip)
}

// TraceSkip works like Trace but ignores the leaf with attribute slot skip.
// It is used for secondary rays leaving a surface.
//
// The traversal keeps one stack frame per level. At each step the octant
// containing the current ray parameter is derived from the crossing
// parameters of the node's center planes. Empty octants are skipped by
// advancing to their exit parameter without descending, and a node is
// popped once the ray parameter reaches its exit.
func TraceSkip(o *octree.Octree, ray Ray, tStart float32, maxIterations int, skip uint32) Hit {
	var hit Hit

	tEnter, tExit := ray.intersectBox(types.Vec3{}, types.Vec3{1, 1, 1})
	t := math32.Max(tEnter, math32.Max(tStart, 0))
	if t >= tExit {
		return hit
	}

	var stack [octree.MaxDepth + 1]frame
	level := 0
	stack[0] = frame{node: 0, size: 1, tExit: tExit}

	for hit.Iterations < maxIterations {
		hit.Iterations++
		cur := &stack[level]

		if t >= cur.tExit {
			if level == 0 {
				return hit
			}
			level--
			continue
		}

		if level == o.Depth {
			leaf := o.LeafIndex(cur.node)
			if leaf != skip {
				hit.Found = true
				hit.T = t
				hit.Position = ray.At(t)
				hit.Leaf = leaf
				hit.Normal = o.Normals[leaf]
				hit.Albedo = o.Albedo[leaf]
				hit.Emission = o.Emission[leaf]
				return hit
			}
			t = cur.tExit
			continue
		}

		half := cur.size * 0.5
		var octant uint8
		childMin := cur.min
		childExit := cur.tExit
		for i := 0; i < 3; i++ {
			center := cur.min[i] + half
			tc := (center - ray.Origin[i]) * ray.invDir[i]

			var upper bool
			if ray.Dir[i] > 0 {
				upper = t >= tc
			} else {
				upper = t < tc
			}
			if upper {
				octant |= 1 << uint(i)
				childMin[i] = center
			}

			// The ray leaves the child through the center plane if it
			// still has to cross it.
			if upper != (ray.Dir[i] > 0) {
				childExit = math32.Min(childExit, tc)
			}
		}

		child, ok := o.Child(cur.node, octant)
		if !ok {
			t = childExit
			continue
		}

		level++
		stack[level] = frame{node: child, min: childMin, size: half, tExit: childExit}
	}

	// Iteration cap reached; report a miss.
	return Hit{Iterations: hit.Iterations}
}
