package mesh

import (
	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/types"
)

// Append an axis-aligned box with outward facing normals using material
// matIndex.
func (m *Mesh) AddBox(min, max types.Vec3, matIndex int) {
	corner := func(i int) types.Vec3 {
		c := min
		if i&1 != 0 {
			c[0] = max[0]
		}
		if i&2 != 0 {
			c[1] = max[1]
		}
		if i&4 != 0 {
			c[2] = max[2]
		}
		return c
	}

	// Corner indices per face, counter-clockwise when viewed from outside.
	faces := [6][4]int{
		{0, 4, 6, 2}, // -x
		{1, 3, 7, 5}, // +x
		{0, 1, 5, 4}, // -y
		{2, 6, 7, 3}, // +y
		{0, 2, 3, 1}, // -z
		{4, 5, 7, 6}, // +z
	}
	normals := [6]types.Vec3{{-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}, {0, 0, -1}, {0, 0, 1}}

	for faceIdx, f := range faces {
		n := normals[faceIdx]
		for _, tri := range [2][3]int{{f[0], f[1], f[2]}, {f[0], f[2], f[3]}} {
			m.AddTriangle(Triangle{
				Vertices:      [3]types.Vec3{corner(tri[0]), corner(tri[1]), corner(tri[2])},
				Normals:       [3]types.Vec3{n, n, n},
				MaterialIndex: matIndex,
			})
		}
	}
}

// Append a UV sphere with smooth normals using material matIndex.
func (m *Mesh) AddSphere(center types.Vec3, radius float32, rings, segments int, matIndex int) {
	point := func(ring, seg int) (types.Vec3, types.Vec3) {
		theta := math32.Pi * float32(ring) / float32(rings)
		phi := 2 * math32.Pi * float32(seg) / float32(segments)
		n := types.Vec3{
			math32.Sin(theta) * math32.Cos(phi),
			math32.Cos(theta),
			math32.Sin(theta) * math32.Sin(phi),
		}
		return center.Add(n.Mul(radius)), n
	}

	for ring := 0; ring < rings; ring++ {
		for seg := 0; seg < segments; seg++ {
			p00, n00 := point(ring, seg)
			p01, n01 := point(ring, seg+1)
			p10, n10 := point(ring+1, seg)
			p11, n11 := point(ring+1, seg+1)

			if ring > 0 {
				m.AddTriangle(Triangle{
					Vertices:      [3]types.Vec3{p00, p01, p10},
					Normals:       [3]types.Vec3{n00, n01, n10},
					MaterialIndex: matIndex,
				})
			}
			if ring < rings-1 {
				m.AddTriangle(Triangle{
					Vertices:      [3]types.Vec3{p01, p11, p10},
					Normals:       [3]types.Vec3{n01, n11, n10},
					MaterialIndex: matIndex,
				})
			}
		}
	}
}
