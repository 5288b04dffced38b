package raymarch

import (
	"container/heap"

	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/types"
)

const (
	// Upper bound for the nodes a beam may expand before giving up.
	maxBeamExpansions = 1 << 14

	halfDiagonal = 0.8660254 // sqrt(3) / 2
)

// A beam is a cone around the ray through the center of a pixel block. Its
// radius at axis distance s is originSize + (tanTheta + dirSize) * s.
type beam struct {
	axis       Ray
	tanTheta   float32
	originSize float32
	dirSize    float32
}

// newBeam creates a beam for the pixel rays in dirs that share origin. The
// axis is the normalized mean of the corner directions and the cone angle
// is the largest angle between the axis and any of them.
func newBeam(origin types.Vec3, corners [4]types.Vec3, originSize, dirSize float32) beam {
	var axis types.Vec3
	for _, d := range corners {
		axis = axis.Add(d.Normalize())
	}
	axis = axis.Normalize()

	minCos := float32(1)
	for _, d := range corners {
		minCos = math32.Min(minCos, axis.Dot(d.Normalize()))
	}
	minCos = math32.Max(minCos, 1e-3)

	return beam{
		axis:       NewRay(origin, axis),
		tanTheta:   math32.Sqrt(1-minCos*minCos) / minCos,
		originSize: originSize,
		dirSize:    dirSize,
	}
}

func (b *beam) radius(s float32) float32 {
	return b.originSize + (b.tanTheta+b.dirSize)*s
}

type beamNode struct {
	node  uint32
	level int
	min   types.Vec3
	size  float32
	s0    float32
}

type beamQueue []beamNode

func (q beamQueue) Len() int            { return len(q) }
func (q beamQueue) Less(i, j int) bool  { return q[i].s0 < q[j].s0 }
func (q beamQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *beamQueue) Push(x interface{}) { *q = append(*q, x.(beamNode)) }
func (q *beamQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// enter returns the axis distance at which the beam enters node's cube
// enlarged by the beam radius. Any point of the cube that a ray of the beam
// reaches is at least this far along that ray.
func (b *beam) enter(min types.Vec3, size float32) (float32, bool) {
	center := min.Add(types.Splat3(size * 0.5))
	far := center.Sub(b.axis.Origin).Len() + size*halfDiagonal
	r := b.radius(far)

	s0, s1 := b.axis.intersectBox(min.Sub(types.Splat3(r)), min.Add(types.Splat3(size+r)))
	if s0 > s1 || s1 < 0 {
		return 0, false
	}
	return math32.Max(s0, 0), true
}

// start performs a best-first descent over the octree nodes overlapped by
// the beam. It stops at the closest leaf or at the closest node that is not
// larger than the beam radius and returns its entry distance, which is a
// lower bound for the hit distance of every ray inside the beam. If no node
// is overlapped it returns +Inf.
func (b *beam) start(o *octree.Octree) float32 {
	s0, ok := b.enter(types.Vec3{}, 1)
	if !ok || o.Masks[0] == 0 {
		return math32.Inf(1)
	}

	q := beamQueue{{node: 0, size: 1, s0: s0}}
	for expansions := 0; q.Len() > 0; expansions++ {
		cur := heap.Pop(&q).(beamNode)
		if cur.level == o.Depth || cur.size <= b.radius(cur.s0) || expansions == maxBeamExpansions {
			return cur.s0
		}

		half := cur.size * 0.5
		mask := o.Masks[cur.node]
		for octant := uint8(0); octant < 8; octant++ {
			if mask&(1<<octant) == 0 {
				continue
			}
			child, _ := o.Child(cur.node, octant)
			childMin := cur.min
			for i := 0; i < 3; i++ {
				if octant&(1<<uint(i)) != 0 {
					childMin[i] += half
				}
			}
			if cs0, hit := b.enter(childMin, half); hit {
				heap.Push(&q, beamNode{node: child, level: cur.level + 1, min: childMin, size: half, s0: math32.Max(cs0, cur.s0)})
			}
		}
	}
	return math32.Inf(1)
}

// rayStart converts a beam distance into a safe start parameter for unit
// length pixel rays.
func rayStart(s float32) float32 {
	if math32.IsInf(s, 1) {
		return s
	}
	return math32.Max(0, s-(1e-4+1e-3*s))
}
